// Package preview answers link-preview agents on product pages with a small
// server-rendered document carrying Open Graph and Twitter card metadata.
package preview

import (
	"context"
	"errors"
	"net/http"
	"regexp"
	"strings"
	"time"

	"go.uber.org/zap"

	"github.com/alsamah-store/storefront-edge/internal/botdetect"
	"github.com/alsamah-store/storefront-edge/internal/catalog"
	"github.com/alsamah-store/storefront-edge/internal/edge"
)

// HandlerName identifies the synthesizer in results and audit events.
const HandlerName = "preview"

const defaultTimeout = 5 * time.Second

var schemePattern = regexp.MustCompile(`^[a-zA-Z][a-zA-Z0-9+.-]*:`)

// Config configures a Synthesizer.
type Config struct {
	// SiteBaseURL is the canonical storefront origin used for og:url and
	// relative image paths. When empty the request's own origin is used.
	SiteBaseURL string
	// SiteName is appended to titles; defaults to DefaultSiteName.
	SiteName string
	// Timeout bounds the product lookup; defaults to 5s.
	Timeout time.Duration
	// Store serves product lookups. A nil Store passes every request through.
	Store catalog.Store
	// Matcher defaults to botdetect.Social().
	Matcher *botdetect.Matcher
	Logger  *zap.Logger
}

// Synthesizer implements edge.Handler.
type Synthesizer struct {
	baseURL  string
	siteName string
	timeout  time.Duration
	store    catalog.Store
	matcher  *botdetect.Matcher
	logger   *zap.Logger
}

// configurable is implemented by stores that can report missing credentials
// without a round trip.
type configurable interface {
	Configured() bool
}

// New builds a Synthesizer from cfg.
func New(cfg Config) *Synthesizer {
	s := &Synthesizer{
		baseURL:  strings.TrimRight(strings.TrimSpace(cfg.SiteBaseURL), "/"),
		siteName: cfg.SiteName,
		timeout:  cfg.Timeout,
		store:    cfg.Store,
		matcher:  cfg.Matcher,
		logger:   cfg.Logger,
	}
	if s.siteName == "" {
		s.siteName = DefaultSiteName
	}
	if s.timeout <= 0 {
		s.timeout = defaultTimeout
	}
	if s.matcher == nil {
		s.matcher = botdetect.Social()
	}
	if s.logger == nil {
		s.logger = zap.NewNop()
	}
	return s
}

// Name implements edge.Handler.
func (s *Synthesizer) Name() string { return HandlerName }

// Handle implements edge.Handler.
func (s *Synthesizer) Handle(ctx context.Context, r *http.Request) edge.Result {
	if !s.matcher.IsCrawler(r.UserAgent()) {
		return edge.PassThrough(edge.ReasonNotCrawler)
	}
	id, ok := ProductID(r.URL.Path)
	if !ok {
		return edge.PassThrough(edge.ReasonNotApplicable)
	}
	if !s.configured() {
		s.logger.Warn("product store is not configured; skipping preview", zap.String("path", r.URL.Path))
		return edge.PassThrough(edge.ReasonNotConfigured)
	}

	lookupCtx, cancel := context.WithTimeout(ctx, s.timeout)
	defer cancel()
	product, err := s.store.LookupProduct(lookupCtx, id)
	switch {
	case errors.Is(err, catalog.ErrNotFound):
		return edge.PassThrough(edge.ReasonNotFound)
	case errors.Is(err, catalog.ErrNotConfigured):
		s.logger.Warn("product store is not configured; skipping preview", zap.String("path", r.URL.Path))
		return edge.PassThrough(edge.ReasonNotConfigured)
	case errors.Is(err, context.DeadlineExceeded):
		s.logger.Warn("product lookup timed out", zap.String("product_id", id), zap.Duration("timeout", s.timeout))
		return edge.PassThrough(edge.ReasonTimeout).WithDiagnostics(edge.Diagnostics{Err: err})
	case err != nil:
		s.logger.Warn("product lookup failed", zap.String("product_id", id), zap.Error(err))
		return edge.PassThrough(edge.ReasonUpstream).WithDiagnostics(edge.Diagnostics{Err: err})
	}

	origin := s.origin(r)
	pageURL := origin + r.URL.RequestURI()
	body, err := Render(Document{
		Title:       product.Title,
		Description: product.DescriptionOrEmpty(),
		SiteName:    s.siteName,
		PageURL:     pageURL,
		ImageURL:    NormalizeImageURL(product.Image(), origin),
	})
	if err != nil {
		s.logger.Warn("preview render failed", zap.String("product_id", id), zap.Error(err))
		return edge.PassThrough(edge.ReasonUpstream).WithDiagnostics(edge.Diagnostics{Err: err})
	}
	return edge.Intercepted(&edge.Response{
		Status: http.StatusOK,
		Header: http.Header{
			"Content-Type": []string{"text/html; charset=utf-8"},
			"X-Robots-Tag": []string{"noindex"},
		},
		Body: body,
	})
}

func (s *Synthesizer) origin(r *http.Request) string {
	if s.baseURL != "" {
		return s.baseURL
	}
	return edge.RequestOrigin(r)
}

func (s *Synthesizer) configured() bool {
	if s.store == nil {
		return false
	}
	if c, ok := s.store.(configurable); ok {
		return c.Configured()
	}
	return true
}

// ProductID extracts the product id from a /service/{id} or /product/{id}
// path: the final path segment. A trailing slash yields no id.
func ProductID(p string) (string, bool) {
	if !strings.Contains(p, "/service/") && !strings.Contains(p, "/product/") {
		return "", false
	}
	id := p[strings.LastIndex(p, "/")+1:]
	return id, id != ""
}

// NormalizeImageURL turns a stored image reference into an absolute URL.
// Values that already carry a scheme are returned unchanged; protocol-relative
// values take the scheme of origin; anything else is joined to origin.
func NormalizeImageURL(raw, origin string) string {
	raw = strings.TrimSpace(raw)
	switch {
	case raw == "":
		return ""
	case schemePattern.MatchString(raw):
		return raw
	case strings.HasPrefix(raw, "//"):
		scheme, _, _ := strings.Cut(origin, "://")
		return scheme + ":" + raw
	case strings.HasPrefix(raw, "/"):
		return origin + raw
	default:
		return origin + "/" + raw
	}
}
