package memory

import (
	"context"
	"errors"
	"sync"
	"testing"

	"github.com/JakeFAU/catalog-scraper/internal/catalog"
)

func rec(code int64, name string, price int64) catalog.ProductRecord {
	return catalog.ProductRecord{Code: code, Name: name, Price: price, Currency: "руб"}
}

func TestProductStoreLifecycle(t *testing.T) {
	t.Parallel()

	store := NewProductStore()
	ctx := context.Background()

	created, isNew, err := store.UpsertByCode(ctx, rec(100, "Лейка", 349))
	if err != nil || !isNew || created.ID != 1 {
		t.Fatalf("UpsertByCode() unexpected result: p=%+v created=%v err=%v", created, isNew, err)
	}
	updated, isNew, err := store.UpsertByCode(ctx, rec(100, "Лейка 10л", 399))
	if err != nil || isNew {
		t.Fatalf("UpsertByCode() second call: created=%v err=%v", isNew, err)
	}
	if updated.ID != created.ID || updated.Price != 399 || updated.Name != "Лейка 10л" {
		t.Fatalf("expected in-place overwrite, got %+v", updated)
	}

	byCode, err := store.GetByCode(ctx, 100)
	if err != nil || byCode != updated {
		t.Fatalf("GetByCode() = %+v, %v", byCode, err)
	}

	if err := store.Delete(ctx, created.ID); err != nil {
		t.Fatalf("Delete() error = %v", err)
	}
	if _, err := store.Get(ctx, created.ID); !errors.Is(err, catalog.ErrNotFound) {
		t.Fatalf("expected ErrNotFound after delete, got %v", err)
	}
	if _, err := store.GetByCode(ctx, 100); !errors.Is(err, catalog.ErrNotFound) {
		t.Fatalf("expected code index cleared after delete, got %v", err)
	}
}

func TestProductStoreDeleteMissingLeavesStoreUnchanged(t *testing.T) {
	t.Parallel()

	store := NewProductStore()
	ctx := context.Background()
	if _, _, err := store.UpsertByCode(ctx, rec(1, "Шланг", 500)); err != nil {
		t.Fatalf("UpsertByCode() error = %v", err)
	}
	before, _ := store.List(ctx)

	if err := store.Delete(ctx, 42); !errors.Is(err, catalog.ErrNotFound) {
		t.Fatalf("expected ErrNotFound, got %v", err)
	}
	after, _ := store.List(ctx)
	if len(before) != len(after) || before[0] != after[0] {
		t.Fatalf("store changed after failed delete: before=%+v after=%+v", before, after)
	}
}

func TestProductStoreUpdate(t *testing.T) {
	t.Parallel()

	store := NewProductStore()
	ctx := context.Background()
	a, _, _ := store.UpsertByCode(ctx, rec(1, "A", 1))
	b, _, _ := store.UpsertByCode(ctx, rec(2, "B", 2))

	if _, err := store.Update(ctx, a.ID, rec(2, "A", 1)); !errors.Is(err, catalog.ErrConflict) {
		t.Fatalf("expected ErrConflict on code collision, got %v", err)
	}
	if _, err := store.Update(ctx, 99, rec(3, "C", 3)); !errors.Is(err, catalog.ErrNotFound) {
		t.Fatalf("expected ErrNotFound, got %v", err)
	}
	if _, err := store.Update(ctx, a.ID, catalog.ProductRecord{Code: 1}); !errors.Is(err, catalog.ErrInvalidRecord) {
		t.Fatalf("expected ErrInvalidRecord, got %v", err)
	}

	moved, err := store.Update(ctx, a.ID, rec(3, "A2", 10))
	if err != nil {
		t.Fatalf("Update() error = %v", err)
	}
	if moved.ID != a.ID || moved.Code != 3 {
		t.Fatalf("unexpected update result %+v", moved)
	}
	if _, err := store.GetByCode(ctx, 1); !errors.Is(err, catalog.ErrNotFound) {
		t.Fatalf("expected old code released, got %v", err)
	}
	if got, _ := store.GetByCode(ctx, 2); got.ID != b.ID {
		t.Fatalf("unrelated product changed: %+v", got)
	}
}

func TestProductStoreUpsertBatch(t *testing.T) {
	t.Parallel()

	store := NewProductStore()
	ctx := context.Background()
	existing, _, _ := store.UpsertByCode(ctx, rec(5, "Old", 1))

	err := store.UpsertBatch(ctx, []catalog.ProductRecord{
		rec(5, "New", 2),
		rec(6, "Fresh", 3),
		rec(6, "Fresh again", 4),
	})
	if err != nil {
		t.Fatalf("UpsertBatch() error = %v", err)
	}
	all, _ := store.List(ctx)
	if len(all) != 2 {
		t.Fatalf("expected 2 products, got %+v", all)
	}
	if all[0].ID != existing.ID || all[0].Name != "New" {
		t.Fatalf("expected existing product overwritten in place, got %+v", all[0])
	}
	if all[1].Name != "Fresh again" || all[1].Price != 4 {
		t.Fatalf("expected last occurrence to win, got %+v", all[1])
	}
}

func TestProductStoreUpsertBatchAllOrNothing(t *testing.T) {
	t.Parallel()

	store := NewProductStore()
	ctx := context.Background()
	_, _, _ = store.UpsertByCode(ctx, rec(1, "Keep", 10))

	err := store.UpsertBatch(ctx, []catalog.ProductRecord{
		rec(1, "Changed", 20),
		rec(2, "Added", 30),
		{Code: 0, Name: "broken"},
	})
	if !errors.Is(err, catalog.ErrStore) {
		t.Fatalf("expected ErrStore, got %v", err)
	}
	all, _ := store.List(ctx)
	if len(all) != 1 || all[0].Name != "Keep" || all[0].Price != 10 {
		t.Fatalf("expected no partial writes, got %+v", all)
	}

	next, _, _ := store.UpsertByCode(ctx, rec(3, "Next", 1))
	if next.ID != 2 {
		t.Fatalf("expected id sequence untouched by failed batch, got %d", next.ID)
	}
}

func TestProductStoreConcurrentSameCode(t *testing.T) {
	t.Parallel()

	store := NewProductStore()
	ctx := context.Background()

	var (
		wg      sync.WaitGroup
		mu      sync.Mutex
		creates int
	)
	for i := 0; i < 32; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			_, created, err := store.UpsertByCode(ctx, rec(777, "Разбрызгиватель", int64(i)))
			if err != nil {
				t.Errorf("UpsertByCode() error = %v", err)
				return
			}
			if created {
				mu.Lock()
				creates++
				mu.Unlock()
			}
		}(i)
	}
	wg.Wait()

	all, _ := store.List(ctx)
	if len(all) != 1 || creates != 1 {
		t.Fatalf("expected exactly one product for code 777, got %d products and %d creates", len(all), creates)
	}
}
