package notify

import (
	"encoding/json"
	"time"

	"github.com/JakeFAU/catalog-scraper/internal/catalog"
)

// Kind names the type of a broadcast event.
type Kind string

// Supported event kinds.
const (
	KindProductsListed  Kind = "products_listed"
	KindProductFetched  Kind = "product_fetched"
	KindProductCreated  Kind = "product_created"
	KindProductUpdated  Kind = "product_updated"
	KindProductDeleted  Kind = "product_deleted"
	KindScrapeCompleted Kind = "scrape_completed"
	KindScrapeFailed    Kind = "scrape_failed"
)

// Event is the structured summary pushed to subscribers.
type Event struct {
	Kind    Kind             `json:"event"`
	Product *catalog.Product `json:"product,omitempty"`
	ID      int64            `json:"id,omitempty"`
	Count   *int             `json:"count,omitempty"`
	RunID   string           `json:"run_id,omitempty"`
	Error   string           `json:"error,omitempty"`
	TS      time.Time        `json:"ts,omitzero"`
}

// Encode renders the event as its JSON text form.
func (e Event) Encode() string {
	data, err := json.Marshal(e)
	if err != nil {
		// Event only holds plain values; Marshal cannot fail in practice.
		return `{"event":"` + string(e.Kind) + `"}`
	}
	return string(data)
}

// ProductEvent builds an event carrying a single product.
func ProductEvent(kind Kind, p catalog.Product) Event {
	return Event{Kind: kind, Product: &p}
}

// CountEvent builds an event carrying a record count.
func CountEvent(kind Kind, n int) Event {
	return Event{Kind: kind, Count: &n}
}
