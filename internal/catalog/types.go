package catalog

import (
	"fmt"
	"strings"
)

// ProductRecord is a single product as extracted from a listing page. Code is
// the source catalog's own identifier and acts as the business key.
type ProductRecord struct {
	Code     int64  `json:"code"`
	Name     string `json:"name"`
	Price    int64  `json:"price"`
	Currency string `json:"currency"`
}

// Validate rejects records that cannot be persisted.
func (r ProductRecord) Validate() error {
	switch {
	case r.Code <= 0:
		return fmt.Errorf("%w: code must be > 0", ErrInvalidRecord)
	case strings.TrimSpace(r.Name) == "":
		return fmt.Errorf("%w: name is required", ErrInvalidRecord)
	case r.Price < 0:
		return fmt.Errorf("%w: price must be >= 0", ErrInvalidRecord)
	case strings.TrimSpace(r.Currency) == "":
		return fmt.Errorf("%w: currency is required", ErrInvalidRecord)
	}
	return nil
}

// Product is a persisted record. ID is assigned by the store and never changes.
type Product struct {
	ID       int64  `json:"id"`
	Code     int64  `json:"code"`
	Name     string `json:"name"`
	Price    int64  `json:"price"`
	Currency string `json:"currency"`
}

// Record strips the surrogate key.
func (p Product) Record() ProductRecord {
	return ProductRecord{
		Code:     p.Code,
		Name:     p.Name,
		Price:    p.Price,
		Currency: p.Currency,
	}
}

// Apply overwrites the mutable fields with the record's values.
func (p Product) Apply(rec ProductRecord) Product {
	p.Name = rec.Name
	p.Price = rec.Price
	p.Currency = rec.Currency
	return p
}
