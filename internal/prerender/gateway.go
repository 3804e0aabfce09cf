// Package prerender serves fully rendered HTML to crawlers by delegating the
// render to a Renderer: the hosted prerender service or a local headless
// browser. Any failure hands the request back to the origin.
package prerender

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"net/url"
	"strings"
	"time"

	"go.uber.org/zap"

	"github.com/alsamah-store/storefront-edge/internal/botdetect"
	"github.com/alsamah-store/storefront-edge/internal/edge"
	"github.com/alsamah-store/storefront-edge/internal/metrics"
)

// HandlerName identifies the gateway in results and audit events.
const HandlerName = "prerender"

// Response headers set on rendered documents.
const (
	HeaderPrerender       = "X-Prerender"
	HeaderPrerenderEngine = "X-Prerender-Engine"
)

const (
	defaultTimeout      = 10 * time.Second
	defaultCacheControl = "public, max-age=3600"
)

// Config configures a Gateway.
type Config struct {
	// SiteBaseURL is the canonical storefront origin, e.g.
	// https://alsamah-store.com. Required: pages are always rendered from it,
	// never from the Host or X-Forwarded-Host of the incoming request.
	SiteBaseURL string
	// Timeout bounds one render; defaults to 10s.
	Timeout time.Duration
	// CacheControl is sent with rendered documents.
	CacheControl string
	// ReservedPrefixes are never rendered; defaults to
	// botdetect.DefaultReservedPrefixes.
	ReservedPrefixes []string
	Renderer         Renderer
	// Budget is optional; nil renders every crawler request.
	Budget  Budget
	Matcher *botdetect.Matcher
	Logger  *zap.Logger
}

// Gateway implements edge.Handler.
type Gateway struct {
	baseURL      string
	siteHost     string
	timeout      time.Duration
	cacheControl string
	reserved     []string
	renderer     Renderer
	budget       Budget
	matcher      *botdetect.Matcher
	logger       *zap.Logger
}

// New builds a Gateway from cfg.
func New(cfg Config) (*Gateway, error) {
	if cfg.Renderer == nil {
		return nil, fmt.Errorf("renderer is required")
	}
	baseURL := strings.TrimRight(strings.TrimSpace(cfg.SiteBaseURL), "/")
	site, err := url.Parse(baseURL)
	if err != nil || baseURL == "" || (site.Scheme != "http" && site.Scheme != "https") || site.Host == "" {
		return nil, fmt.Errorf("site base url %q must be an absolute http(s) url", cfg.SiteBaseURL)
	}
	g := &Gateway{
		baseURL:      baseURL,
		siteHost:     site.Hostname(),
		timeout:      cfg.Timeout,
		cacheControl: cfg.CacheControl,
		reserved:     cfg.ReservedPrefixes,
		renderer:     cfg.Renderer,
		budget:       cfg.Budget,
		matcher:      cfg.Matcher,
		logger:       cfg.Logger,
	}
	if g.timeout <= 0 {
		g.timeout = defaultTimeout
	}
	if g.cacheControl == "" {
		g.cacheControl = defaultCacheControl
	}
	if g.reserved == nil {
		g.reserved = botdetect.DefaultReservedPrefixes
	}
	if g.matcher == nil {
		g.matcher = botdetect.General()
	}
	if g.logger == nil {
		g.logger = zap.NewNop()
	}
	return g, nil
}

// Name implements edge.Handler.
func (g *Gateway) Name() string { return HandlerName }

// PageURL returns the absolute storefront URL for r: the configured base
// URL followed by the request's path and query.
func (g *Gateway) PageURL(r *http.Request) string {
	return g.baseURL + r.URL.RequestURI()
}

// onsite reports whether a render that ended at finalURL stayed on the
// storefront or the renderer's own endpoint.
func (g *Gateway) onsite(finalURL, endpoint string) bool {
	if finalURL == "" {
		return true
	}
	final, err := url.Parse(finalURL)
	if err != nil {
		return false
	}
	host := final.Hostname()
	if strings.EqualFold(host, g.siteHost) {
		return true
	}
	ep, err := url.Parse(endpoint)
	return err == nil && strings.EqualFold(host, ep.Hostname())
}

// Handle implements edge.Handler.
func (g *Gateway) Handle(ctx context.Context, r *http.Request) edge.Result {
	if botdetect.IsExempt(r.URL.Path, g.reserved) {
		return edge.PassThrough(edge.ReasonNotApplicable)
	}
	ua := r.UserAgent()
	if !g.matcher.IsCrawler(ua) {
		return edge.PassThrough(edge.ReasonNotCrawler)
	}

	pageURL := g.PageURL(r)
	diag := edge.Diagnostics{
		Engine:      g.renderer.Name(),
		UpstreamURL: g.renderer.Endpoint(pageURL),
	}
	if g.budget != nil && !g.budget.Allow(pageURL) {
		diag.Err = ErrBudgetExceeded
		return edge.PassThrough(edge.ReasonBudget).WithDiagnostics(diag)
	}

	renderCtx, cancel := context.WithTimeout(ctx, g.timeout)
	defer cancel()
	start := time.Now()
	resp, err := g.renderer.Render(renderCtx, RenderRequest{PageURL: pageURL, UserAgent: ua})
	elapsed := time.Since(start)
	diag.UpstreamStatus = resp.StatusCode

	logFields := []zap.Field{
		zap.String("engine", diag.Engine),
		zap.String("upstream_url", diag.UpstreamURL),
		zap.Duration("elapsed", elapsed),
	}
	switch {
	case errors.Is(err, ErrNotConfigured):
		metrics.ObserveUpstreamFetch(diag.Engine, "not_configured", elapsed)
		g.logger.Warn("renderer is not configured; passing through", logFields...)
		diag.Err = err
		return edge.PassThrough(edge.ReasonNotConfigured).WithDiagnostics(diag)
	case err != nil && (errors.Is(err, context.DeadlineExceeded) || errors.Is(renderCtx.Err(), context.DeadlineExceeded)):
		metrics.ObserveUpstreamFetch(diag.Engine, "timeout", elapsed)
		g.logger.Warn("render timed out", append(logFields, zap.Error(err))...)
		diag.Err = err
		return edge.PassThrough(edge.ReasonTimeout).WithDiagnostics(diag)
	case err != nil:
		metrics.ObserveUpstreamFetch(diag.Engine, "error", elapsed)
		g.logger.Warn("render failed", append(logFields, zap.Error(err))...)
		diag.Err = err
		return edge.PassThrough(edge.ReasonUpstream).WithDiagnostics(diag)
	case !g.onsite(resp.FinalURL, diag.UpstreamURL):
		metrics.ObserveUpstreamFetch(diag.Engine, "offsite", elapsed)
		g.logger.Warn("render ended on another host", append(logFields, zap.String("final_url", resp.FinalURL))...)
		diag.Err = fmt.Errorf("%w: %s", ErrOffsite, resp.FinalURL)
		return edge.PassThrough(edge.ReasonUpstream).WithDiagnostics(diag)
	case resp.StatusCode < 200 || resp.StatusCode >= 300:
		metrics.ObserveUpstreamFetch(diag.Engine, "status", elapsed)
		g.logger.Warn("render returned non-success status", append(logFields, zap.Int("status", resp.StatusCode))...)
		diag.Err = fmt.Errorf("%w: %d", ErrUpstreamStatus, resp.StatusCode)
		return edge.PassThrough(edge.ReasonUpstreamCode).WithDiagnostics(diag)
	case len(resp.Body) == 0:
		metrics.ObserveUpstreamFetch(diag.Engine, "empty", elapsed)
		g.logger.Warn("render returned an empty body", logFields...)
		diag.Err = ErrEmptyBody
		return edge.PassThrough(edge.ReasonEmptyBody).WithDiagnostics(diag)
	}

	metrics.ObserveUpstreamFetch(diag.Engine, "ok", elapsed)
	return edge.Intercepted(&edge.Response{
		Status: http.StatusOK,
		Header: http.Header{
			"Content-Type":        []string{"text/html; charset=utf-8"},
			"Cache-Control":       []string{g.cacheControl},
			HeaderPrerender:       []string{"true"},
			HeaderPrerenderEngine: []string{diag.Engine},
		},
		Body: resp.Body,
	}).WithDiagnostics(diag)
}
