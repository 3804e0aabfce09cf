// Package rest reads products through the storefront's hosted PostgREST
// endpoint using the public anonymous key.
package rest

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"regexp"
	"strings"
	"time"

	"github.com/alsamah-store/storefront-edge/internal/catalog"
	"github.com/alsamah-store/storefront-edge/internal/metrics"
)

const (
	defaultTable   = "services"
	maxPayloadSize = 1 << 20
	selectColumns  = "title,description,image_url"
)

var validTableName = regexp.MustCompile(`^[a-zA-Z_][a-zA-Z0-9_]*$`)

// Config captures the PostgREST connection parameters.
type Config struct {
	// BaseURL is the project URL, e.g. https://xyz.supabase.co.
	BaseURL string
	// AnonKey is sent as both the apikey header and the bearer token.
	AnonKey string
	// Table defaults to "services".
	Table string
	// Client defaults to a client with a 10s timeout.
	Client *http.Client
}

// Store implements catalog.Store against PostgREST.
type Store struct {
	baseURL string
	key     string
	table   string
	client  *http.Client
}

type row struct {
	Title       string  `json:"title"`
	Description *string `json:"description"`
	ImageURL    *string `json:"image_url"`
}

// New builds a Store. Missing credentials are not an error: the store then
// answers every lookup with catalog.ErrNotConfigured.
func New(cfg Config) (*Store, error) {
	table := cfg.Table
	if table == "" {
		table = defaultTable
	}
	if !validTableName.MatchString(table) {
		return nil, fmt.Errorf("invalid table name %q", table)
	}
	client := cfg.Client
	if client == nil {
		client = &http.Client{Timeout: 10 * time.Second}
	}
	return &Store{
		baseURL: strings.TrimRight(strings.TrimSpace(cfg.BaseURL), "/"),
		key:     strings.TrimSpace(cfg.AnonKey),
		table:   table,
		client:  client,
	}, nil
}

// Configured reports whether both the base URL and the key are present.
func (s *Store) Configured() bool {
	return s.baseURL != "" && s.key != ""
}

// LookupProduct fetches the product with the given id.
func (s *Store) LookupProduct(ctx context.Context, id string) (catalog.Product, error) {
	if !s.Configured() {
		return catalog.Product{}, catalog.ErrNotConfigured
	}
	start := time.Now()
	product, err := s.lookup(ctx, id)
	metrics.ObserveCatalogLookup("rest", outcome(err), time.Since(start))
	return product, err
}

func (s *Store) lookup(ctx context.Context, id string) (catalog.Product, error) {
	endpoint := fmt.Sprintf("%s/rest/v1/%s?id=eq.%s&select=%s",
		s.baseURL, s.table, url.QueryEscape(id), selectColumns)
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, endpoint, nil)
	if err != nil {
		return catalog.Product{}, fmt.Errorf("build lookup request: %w", err)
	}
	req.Header.Set("apikey", s.key)
	req.Header.Set("Authorization", "Bearer "+s.key)
	req.Header.Set("Accept", "application/json")

	resp, err := s.client.Do(req)
	if err != nil {
		return catalog.Product{}, fmt.Errorf("lookup product %q: %w", id, err)
	}
	defer func() {
		_ = resp.Body.Close()
	}()
	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		_, _ = io.Copy(io.Discard, io.LimitReader(resp.Body, maxPayloadSize))
		return catalog.Product{}, fmt.Errorf("lookup product %q: unexpected status %d", id, resp.StatusCode)
	}

	var rows []row
	if err := json.NewDecoder(io.LimitReader(resp.Body, maxPayloadSize)).Decode(&rows); err != nil {
		return catalog.Product{}, fmt.Errorf("decode product %q: %w", id, err)
	}
	if len(rows) == 0 {
		return catalog.Product{}, catalog.ErrNotFound
	}
	return catalog.Product{
		ID:          id,
		Title:       rows[0].Title,
		Description: rows[0].Description,
		ImageURL:    rows[0].ImageURL,
	}, nil
}

func outcome(err error) string {
	switch {
	case err == nil:
		return "found"
	case errors.Is(err, catalog.ErrNotFound):
		return "not_found"
	default:
		return "error"
	}
}
