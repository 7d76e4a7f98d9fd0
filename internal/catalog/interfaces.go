package catalog

import (
	"context"
	"io"
	"time"
)

// Store persists products keyed by surrogate id with a unique secondary key on
// code. Every method is atomic on its own.
type Store interface {
	List(ctx context.Context) ([]Product, error)
	Get(ctx context.Context, id int64) (Product, error)
	GetByCode(ctx context.Context, code int64) (Product, error)
	// UpsertByCode inserts rec or overwrites the product holding rec.Code.
	// created reports whether a new product was inserted.
	UpsertByCode(ctx context.Context, rec ProductRecord) (product Product, created bool, err error)
	// Update overwrites every field of the product with the given id.
	Update(ctx context.Context, id int64, rec ProductRecord) (Product, error)
	Delete(ctx context.Context, id int64) error
	// UpsertBatch applies UpsertByCode for each record in order inside a
	// single transaction; either every record is applied or none is.
	UpsertBatch(ctx context.Context, recs []ProductRecord) error
}

// PageFetcher retrieves the raw markup behind a URL.
type PageFetcher interface {
	FetchPage(ctx context.Context, url string) ([]byte, error)
}

// PageArchive keeps a copy of fetched listing pages and returns a URI.
type PageArchive interface {
	PutObject(ctx context.Context, path string, contentType string, data io.Reader) (string, error)
}

// Broadcaster delivers a text event to every live subscriber.
type Broadcaster interface {
	Broadcast(ctx context.Context, text string) int
}

// Clock returns the current time (useful for testing).
type Clock interface {
	Now() time.Time
}

// IDGenerator produces scrape run IDs.
type IDGenerator interface {
	NewID() (string, error)
}
