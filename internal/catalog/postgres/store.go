// Package postgres reads products directly from the storefront database.
package postgres

import (
	"context"
	"errors"
	"fmt"
	"regexp"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/alsamah-store/storefront-edge/internal/catalog"
	"github.com/alsamah-store/storefront-edge/internal/metrics"
)

var validTableName = regexp.MustCompile(`^[a-zA-Z_][a-zA-Z0-9_]*$`)

// Config controls the Postgres connection pool.
type Config struct {
	DSN             string
	Table           string
	MaxConns        int32
	MaxConnLifetime time.Duration
}

type queryCloser interface {
	QueryRow(ctx context.Context, sql string, args ...any) pgx.Row
	Ping(ctx context.Context) error
	Close()
}

// Store implements catalog.Store with a point lookup by id.
type Store struct {
	pool  queryCloser
	query string
}

// New connects a pgx pool using cfg.
func New(ctx context.Context, cfg Config) (*Store, error) {
	if cfg.DSN == "" {
		return nil, catalog.ErrNotConfigured
	}
	poolCfg, err := pgxpool.ParseConfig(cfg.DSN)
	if err != nil {
		return nil, fmt.Errorf("parse postgres dsn: %w", err)
	}
	if cfg.MaxConns > 0 {
		poolCfg.MaxConns = cfg.MaxConns
	}
	if cfg.MaxConnLifetime > 0 {
		poolCfg.MaxConnLifetime = cfg.MaxConnLifetime
	}
	pool, err := pgxpool.NewWithConfig(ctx, poolCfg)
	if err != nil {
		return nil, fmt.Errorf("connect postgres: %w", err)
	}
	store, err := NewWithPool(pool, cfg.Table)
	if err != nil {
		pool.Close()
		return nil, err
	}
	return store, nil
}

// NewWithPool constructs a store from an existing pool (primarily for testing).
func NewWithPool(pool queryCloser, table string) (*Store, error) {
	if pool == nil {
		return nil, fmt.Errorf("pool is required")
	}
	if table == "" {
		table = "services"
	}
	if !validTableName.MatchString(table) {
		return nil, fmt.Errorf("invalid table name %q", table)
	}
	return &Store{
		pool:  pool,
		query: fmt.Sprintf("SELECT title, description, image_url FROM %s WHERE id::text = $1 LIMIT 1", table),
	}, nil
}

// LookupProduct fetches the product with the given id.
func (s *Store) LookupProduct(ctx context.Context, id string) (catalog.Product, error) {
	start := time.Now()
	product := catalog.Product{ID: id}
	err := s.pool.QueryRow(ctx, s.query, id).Scan(&product.Title, &product.Description, &product.ImageURL)
	switch {
	case errors.Is(err, pgx.ErrNoRows):
		metrics.ObserveCatalogLookup("postgres", "not_found", time.Since(start))
		return catalog.Product{}, catalog.ErrNotFound
	case err != nil:
		metrics.ObserveCatalogLookup("postgres", "error", time.Since(start))
		return catalog.Product{}, fmt.Errorf("lookup product %q: %w", id, err)
	}
	metrics.ObserveCatalogLookup("postgres", "found", time.Since(start))
	return product, nil
}

// Ping verifies the database is reachable.
func (s *Store) Ping(ctx context.Context) error {
	if err := s.pool.Ping(ctx); err != nil {
		return fmt.Errorf("ping postgres: %w", err)
	}
	return nil
}

// Close releases the pool.
func (s *Store) Close() {
	if s.pool != nil {
		s.pool.Close()
	}
}
