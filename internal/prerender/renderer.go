package prerender

import (
	"context"
	"errors"
)

var (
	// ErrUpstreamStatus marks a rendering response outside the 2xx range.
	ErrUpstreamStatus = errors.New("prerender: upstream returned non-success status")
	// ErrEmptyBody marks a successful response without content.
	ErrEmptyBody = errors.New("prerender: upstream returned an empty body")
	// ErrBudgetExceeded marks a render skipped by the host budget.
	ErrBudgetExceeded = errors.New("prerender: render budget exhausted")
	// ErrNotConfigured marks a renderer missing its credentials.
	ErrNotConfigured = errors.New("prerender: renderer not configured")
	// ErrBodyTooLarge marks a document larger than the renderer accepts.
	ErrBodyTooLarge = errors.New("prerender: upstream body exceeds size limit")
	// ErrOffsite marks a render that ended on a different host than the one
	// requested.
	ErrOffsite = errors.New("prerender: render ended on another host")
)

// RenderRequest describes one page to render.
type RenderRequest struct {
	// PageURL is the absolute storefront URL to render.
	PageURL string
	// UserAgent is the crawler's original User-Agent.
	UserAgent string
}

// RenderResponse is what a rendering engine returned.
type RenderResponse struct {
	StatusCode int
	Body       []byte
	// FinalURL is the URL that produced Body.
	FinalURL string
}

// Renderer turns a storefront URL into fully rendered HTML.
type Renderer interface {
	// Name is reported in the X-Prerender-Engine header.
	Name() string
	// Endpoint returns the URL the engine fetches for pageURL.
	Endpoint(pageURL string) string
	// Render fetches the rendered document. A non-2xx status is reported in
	// the response, not as an error.
	Render(ctx context.Context, req RenderRequest) (RenderResponse, error)
}

// Budget decides whether a render may start now. It must not block.
type Budget interface {
	Allow(pageURL string) bool
}
