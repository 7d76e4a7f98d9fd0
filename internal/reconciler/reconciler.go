// Package reconciler merges scraped records into the product store.
package reconciler

import (
	"context"
	"errors"
	"fmt"

	"go.uber.org/zap"

	"github.com/JakeFAU/catalog-scraper/internal/catalog"
)

// Reconciler applies a scrape's records to a Store as one atomic batch.
type Reconciler struct {
	store  catalog.Store
	logger *zap.Logger
}

// New returns a Reconciler bound to store.
func New(store catalog.Store, logger *zap.Logger) *Reconciler {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Reconciler{store: store, logger: logger.Named("reconciler")}
}

// Reconcile upserts every record by code in input order, so the last
// occurrence of a repeated code wins. Either all effects commit or none do.
// It returns len(recs), not the number of distinct mutations.
func (r *Reconciler) Reconcile(ctx context.Context, recs []catalog.ProductRecord) (int, error) {
	if len(recs) == 0 {
		return 0, nil
	}
	if err := r.store.UpsertBatch(ctx, recs); err != nil {
		if !errors.Is(err, catalog.ErrStore) {
			err = fmt.Errorf("%w: %w", catalog.ErrStore, err)
		}
		return 0, fmt.Errorf("reconcile %d records: %w", len(recs), err)
	}
	r.logger.Debug("records reconciled", zap.Int("records", len(recs)))
	return len(recs), nil
}
