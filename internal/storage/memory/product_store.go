package memory

import (
	"context"
	"fmt"
	"sort"
	"sync"

	"github.com/JakeFAU/catalog-scraper/internal/catalog"
)

// ProductStore provides an in-memory catalog.Store for development/testing.
type ProductStore struct {
	mu     sync.RWMutex
	byID   map[int64]catalog.Product
	byCode map[int64]int64
	nextID int64
}

// NewProductStore constructs an empty ProductStore.
func NewProductStore() *ProductStore {
	return &ProductStore{
		byID:   make(map[int64]catalog.Product),
		byCode: make(map[int64]int64),
	}
}

// List returns every product ordered by id.
func (s *ProductStore) List(_ context.Context) ([]catalog.Product, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := make([]catalog.Product, 0, len(s.byID))
	for _, p := range s.byID {
		out = append(out, p)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out, nil
}

// Get fetches a product by id.
func (s *ProductStore) Get(_ context.Context, id int64) (catalog.Product, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	p, ok := s.byID[id]
	if !ok {
		return catalog.Product{}, catalog.ErrNotFound
	}
	return p, nil
}

// GetByCode fetches a product by its catalog code.
func (s *ProductStore) GetByCode(_ context.Context, code int64) (catalog.Product, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	id, ok := s.byCode[code]
	if !ok {
		return catalog.Product{}, catalog.ErrNotFound
	}
	return s.byID[id], nil
}

// UpsertByCode inserts rec or overwrites the product that holds rec.Code.
func (s *ProductStore) UpsertByCode(_ context.Context, rec catalog.ProductRecord) (catalog.Product, bool, error) {
	if err := rec.Validate(); err != nil {
		return catalog.Product{}, false, err
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	p, created := s.upsertLocked(rec)
	return p, created, nil
}

// Update overwrites every field of the product with the given id.
func (s *ProductStore) Update(_ context.Context, id int64, rec catalog.ProductRecord) (catalog.Product, error) {
	if err := rec.Validate(); err != nil {
		return catalog.Product{}, err
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	p, ok := s.byID[id]
	if !ok {
		return catalog.Product{}, catalog.ErrNotFound
	}
	if owner, taken := s.byCode[rec.Code]; taken && owner != id {
		return catalog.Product{}, fmt.Errorf("%w: code %d", catalog.ErrConflict, rec.Code)
	}
	delete(s.byCode, p.Code)
	p.Code = rec.Code
	p = p.Apply(rec)
	s.byID[id] = p
	s.byCode[p.Code] = id
	return p, nil
}

// Delete removes a product by id.
func (s *ProductStore) Delete(_ context.Context, id int64) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	p, ok := s.byID[id]
	if !ok {
		return catalog.ErrNotFound
	}
	delete(s.byID, id)
	delete(s.byCode, p.Code)
	return nil
}

// UpsertBatch applies every record in order to a staged copy and swaps it in
// only if all of them succeed.
func (s *ProductStore) UpsertBatch(_ context.Context, recs []catalog.ProductRecord) error {
	for i, rec := range recs {
		if err := rec.Validate(); err != nil {
			return fmt.Errorf("%w: record %d: %w", catalog.ErrStore, i, err)
		}
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	staged := &ProductStore{
		byID:   make(map[int64]catalog.Product, len(s.byID)+len(recs)),
		byCode: make(map[int64]int64, len(s.byCode)+len(recs)),
		nextID: s.nextID,
	}
	for id, p := range s.byID {
		staged.byID[id] = p
	}
	for code, id := range s.byCode {
		staged.byCode[code] = id
	}
	for _, rec := range recs {
		staged.upsertLocked(rec)
	}
	s.byID, s.byCode, s.nextID = staged.byID, staged.byCode, staged.nextID
	return nil
}

func (s *ProductStore) upsertLocked(rec catalog.ProductRecord) (catalog.Product, bool) {
	if id, ok := s.byCode[rec.Code]; ok {
		p := s.byID[id].Apply(rec)
		s.byID[id] = p
		return p, false
	}
	s.nextID++
	p := catalog.Product{
		ID:       s.nextID,
		Code:     rec.Code,
		Name:     rec.Name,
		Price:    rec.Price,
		Currency: rec.Currency,
	}
	s.byID[p.ID] = p
	s.byCode[p.Code] = p.ID
	return p, true
}
