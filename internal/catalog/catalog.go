// Package catalog reads the product fields that link previews need from the
// storefront's data store. Drivers live in subpackages: rest for the hosted
// PostgREST endpoint and postgres for a direct database connection.
package catalog

import (
	"context"
	"errors"
)

var (
	// ErrNotFound is returned when no product has the requested id.
	ErrNotFound = errors.New("catalog: product not found")
	// ErrNotConfigured is returned when the store has no credentials or
	// connection details.
	ErrNotConfigured = errors.New("catalog: store not configured")
)

// Product carries the fields rendered into a preview document. Description
// and ImageURL are nil when the stored column is null.
type Product struct {
	ID          string
	Title       string
	Description *string
	ImageURL    *string
}

// DescriptionOrEmpty returns the description, or "" when unset.
func (p Product) DescriptionOrEmpty() string {
	if p.Description == nil {
		return ""
	}
	return *p.Description
}

// Image returns the stored image reference, or "" when unset.
func (p Product) Image() string {
	if p.ImageURL == nil {
		return ""
	}
	return *p.ImageURL
}

// Store looks up a single product by id.
type Store interface {
	LookupProduct(ctx context.Context, id string) (Product, error)
}

// Unconfigured is a Store whose every lookup fails with ErrNotConfigured.
type Unconfigured struct{}

// LookupProduct implements Store.
func (Unconfigured) LookupProduct(context.Context, string) (Product, error) {
	return Product{}, ErrNotConfigured
}
