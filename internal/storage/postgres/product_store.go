// Package postgres provides Postgres-backed persistence implementations.
package postgres

import (
	"context"
	"errors"
	"fmt"
	"regexp"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/JakeFAU/catalog-scraper/internal/catalog"
)

var validTableName = regexp.MustCompile(`^[a-zA-Z_][a-zA-Z0-9_]*$`)

const uniqueViolation = "23505"

// ProductStoreConfig controls the Postgres connection pool used for products.
type ProductStoreConfig struct {
	DSN             string
	Table           string
	MaxConns        int32
	MinConns        int32
	MaxConnLifetime time.Duration
}

type pool interface {
	Begin(context.Context) (pgx.Tx, error)
	Exec(context.Context, string, ...any) (pgconn.CommandTag, error)
	Query(context.Context, string, ...any) (pgx.Rows, error)
	QueryRow(context.Context, string, ...any) pgx.Row
	Close()
}

// ProductStore implements catalog.Store on a single products table with a
// unique constraint on code.
type ProductStore struct {
	pool  pool
	table string
}

// NewProductStore creates a Postgres-backed ProductStore using the provided config.
func NewProductStore(ctx context.Context, cfg ProductStoreConfig) (*ProductStore, error) {
	if cfg.DSN == "" {
		return nil, fmt.Errorf("database.dsn is required")
	}
	table, err := tableName(cfg.Table)
	if err != nil {
		return nil, err
	}
	poolCfg, err := pgxpool.ParseConfig(cfg.DSN)
	if err != nil {
		return nil, fmt.Errorf("parse postgres dsn: %w", err)
	}
	if cfg.MaxConns > 0 {
		poolCfg.MaxConns = cfg.MaxConns
	}
	if cfg.MinConns > 0 {
		poolCfg.MinConns = cfg.MinConns
	}
	if cfg.MaxConnLifetime > 0 {
		poolCfg.MaxConnLifetime = cfg.MaxConnLifetime
	}
	p, err := pgxpool.NewWithConfig(ctx, poolCfg)
	if err != nil {
		return nil, fmt.Errorf("connect postgres: %w", err)
	}
	return &ProductStore{pool: p, table: table}, nil
}

// NewProductStoreWithPool constructs a store from an existing pool (primarily for testing).
func NewProductStoreWithPool(p pool, table string) (*ProductStore, error) {
	if p == nil {
		return nil, fmt.Errorf("pool is required")
	}
	name, err := tableName(table)
	if err != nil {
		return nil, err
	}
	return &ProductStore{pool: p, table: name}, nil
}

func tableName(table string) (string, error) {
	if table == "" {
		table = "products"
	}
	if !validTableName.MatchString(table) {
		return "", fmt.Errorf("invalid table name %q", table)
	}
	return table, nil
}

// Close releases the underlying pool resources.
func (s *ProductStore) Close() {
	if s == nil || s.pool == nil {
		return
	}
	s.pool.Close()
}

// EnsureSchema creates the products table if it does not exist.
func (s *ProductStore) EnsureSchema(ctx context.Context) error {
	query := fmt.Sprintf(`
CREATE TABLE IF NOT EXISTS %s (
	id BIGSERIAL PRIMARY KEY,
	code BIGINT NOT NULL UNIQUE,
	name TEXT NOT NULL,
	price BIGINT NOT NULL,
	currency TEXT NOT NULL
)`, s.table)
	if _, err := s.pool.Exec(ctx, query); err != nil {
		return fmt.Errorf("%w: create table %s: %w", catalog.ErrStore, s.table, err)
	}
	return nil
}

// Ping verifies the database answers queries.
func (s *ProductStore) Ping(ctx context.Context) error {
	var one int
	if err := s.pool.QueryRow(ctx, "SELECT 1").Scan(&one); err != nil {
		return fmt.Errorf("%w: ping: %w", catalog.ErrStore, err)
	}
	return nil
}

// List returns every product ordered by id.
func (s *ProductStore) List(ctx context.Context) ([]catalog.Product, error) {
	rows, err := s.pool.Query(ctx, fmt.Sprintf(`SELECT id, code, name, price, currency FROM %s ORDER BY id`, s.table))
	if err != nil {
		return nil, fmt.Errorf("%w: list products: %w", catalog.ErrStore, err)
	}
	defer rows.Close()

	products := []catalog.Product{}
	for rows.Next() {
		var p catalog.Product
		if err := rows.Scan(&p.ID, &p.Code, &p.Name, &p.Price, &p.Currency); err != nil {
			return nil, fmt.Errorf("%w: scan product: %w", catalog.ErrStore, err)
		}
		products = append(products, p)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("%w: list products: %w", catalog.ErrStore, err)
	}
	return products, nil
}

// Get fetches a product by id.
func (s *ProductStore) Get(ctx context.Context, id int64) (catalog.Product, error) {
	query := fmt.Sprintf(`SELECT id, code, name, price, currency FROM %s WHERE id = $1`, s.table)
	return s.queryOne(ctx, "get product", query, id)
}

// GetByCode fetches a product by its catalog code.
func (s *ProductStore) GetByCode(ctx context.Context, code int64) (catalog.Product, error) {
	query := fmt.Sprintf(`SELECT id, code, name, price, currency FROM %s WHERE code = $1`, s.table)
	return s.queryOne(ctx, "get product by code", query, code)
}

// UpsertByCode inserts rec or overwrites the row holding rec.Code in one
// statement.
func (s *ProductStore) UpsertByCode(ctx context.Context, rec catalog.ProductRecord) (catalog.Product, bool, error) {
	if err := rec.Validate(); err != nil {
		return catalog.Product{}, false, err
	}
	var (
		p       catalog.Product
		created bool
	)
	err := s.pool.QueryRow(ctx, s.upsertSQL()+`
RETURNING id, code, name, price, currency, (xmax = 0) AS inserted`,
		rec.Code, rec.Name, rec.Price, rec.Currency,
	).Scan(&p.ID, &p.Code, &p.Name, &p.Price, &p.Currency, &created)
	if err != nil {
		return catalog.Product{}, false, fmt.Errorf("%w: upsert product %d: %w", catalog.ErrStore, rec.Code, err)
	}
	return p, created, nil
}

// Update overwrites every field of the row with the given id.
func (s *ProductStore) Update(ctx context.Context, id int64, rec catalog.ProductRecord) (catalog.Product, error) {
	if err := rec.Validate(); err != nil {
		return catalog.Product{}, err
	}
	query := fmt.Sprintf(`
UPDATE %s SET code = $2, name = $3, price = $4, currency = $5
WHERE id = $1
RETURNING id, code, name, price, currency`, s.table)
	return s.queryOne(ctx, "update product", query, id, rec.Code, rec.Name, rec.Price, rec.Currency)
}

// Delete removes a product by id.
func (s *ProductStore) Delete(ctx context.Context, id int64) error {
	tag, err := s.pool.Exec(ctx, fmt.Sprintf(`DELETE FROM %s WHERE id = $1`, s.table), id)
	if err != nil {
		return fmt.Errorf("%w: delete product %d: %w", catalog.ErrStore, id, err)
	}
	if tag.RowsAffected() == 0 {
		return catalog.ErrNotFound
	}
	return nil
}

// UpsertBatch runs every upsert in one transaction and rolls back on the
// first failure.
func (s *ProductStore) UpsertBatch(ctx context.Context, recs []catalog.ProductRecord) error {
	for i, rec := range recs {
		if err := rec.Validate(); err != nil {
			return fmt.Errorf("%w: record %d: %w", catalog.ErrStore, i, err)
		}
	}
	tx, err := s.pool.Begin(ctx)
	if err != nil {
		return fmt.Errorf("%w: begin batch: %w", catalog.ErrStore, err)
	}
	query := s.upsertSQL()
	for _, rec := range recs {
		if _, err := tx.Exec(ctx, query, rec.Code, rec.Name, rec.Price, rec.Currency); err != nil {
			return rollback(ctx, tx, fmt.Errorf("%w: upsert product %d: %w", catalog.ErrStore, rec.Code, err))
		}
	}
	if err := tx.Commit(ctx); err != nil {
		return fmt.Errorf("%w: commit batch: %w", catalog.ErrStore, err)
	}
	return nil
}

func (s *ProductStore) upsertSQL() string {
	return fmt.Sprintf(`
INSERT INTO %s (code, name, price, currency) VALUES ($1, $2, $3, $4)
ON CONFLICT (code) DO UPDATE SET
	name = EXCLUDED.name,
	price = EXCLUDED.price,
	currency = EXCLUDED.currency`, s.table)
}

func (s *ProductStore) queryOne(ctx context.Context, op, query string, args ...any) (catalog.Product, error) {
	var p catalog.Product
	err := s.pool.QueryRow(ctx, query, args...).Scan(&p.ID, &p.Code, &p.Name, &p.Price, &p.Currency)
	if err != nil {
		return catalog.Product{}, classify(op, err)
	}
	return p, nil
}

func classify(op string, err error) error {
	if errors.Is(err, pgx.ErrNoRows) {
		return catalog.ErrNotFound
	}
	var pgErr *pgconn.PgError
	if errors.As(err, &pgErr) && pgErr.Code == uniqueViolation {
		return fmt.Errorf("%w: %s", catalog.ErrConflict, pgErr.Detail)
	}
	return fmt.Errorf("%w: %s: %w", catalog.ErrStore, op, err)
}

func rollback(ctx context.Context, tx pgx.Tx, cause error) error {
	if err := tx.Rollback(ctx); err != nil {
		return errors.Join(cause, fmt.Errorf("rollback: %w", err))
	}
	return cause
}
