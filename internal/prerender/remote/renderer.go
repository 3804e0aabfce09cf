// Package remote renders pages through a hosted prerender service. The page
// URL is appended to the service URL and the account token travels in the
// X-Prerender-Token header.
package remote

import (
	"context"
	"fmt"
	"net"
	"net/http"
	"strings"
	"time"

	"github.com/gocolly/colly/v2"

	"github.com/alsamah-store/storefront-edge/internal/prerender"
)

// EngineName is reported in the X-Prerender-Engine header.
const EngineName = "prerender.io"

const (
	// DefaultServiceURL is the hosted prerender endpoint.
	DefaultServiceURL   = "https://service.prerender.io"
	defaultMaxBodyBytes = 10 << 20
	defaultTimeout      = 10 * time.Second
)

// TokenHeader carries the prerender account token.
const TokenHeader = "X-Prerender-Token"

// Config controls the remote renderer.
type Config struct {
	ServiceURL string
	Token      string
	// Timeout is the hard HTTP client timeout; the gateway's context deadline
	// usually fires first.
	Timeout      time.Duration
	MaxBodyBytes int
	// Transport overrides the HTTP transport (tests).
	Transport http.RoundTripper
}

// Renderer implements prerender.Renderer using a Colly collector.
type Renderer struct {
	serviceURL    string
	token         string
	maxBody       int
	baseCollector *colly.Collector
}

type collectorHooks interface {
	OnRequest(colly.RequestCallback)
	OnResponse(colly.ResponseCallback)
	OnError(colly.ErrorCallback)
}

// New builds a Renderer.
func New(cfg Config) *Renderer {
	serviceURL := strings.TrimRight(strings.TrimSpace(cfg.ServiceURL), "/")
	if serviceURL == "" {
		serviceURL = DefaultServiceURL
	}
	maxBody := cfg.MaxBodyBytes
	if maxBody <= 0 {
		maxBody = defaultMaxBodyBytes
	}
	timeout := cfg.Timeout
	if timeout <= 0 {
		timeout = defaultTimeout
	}
	transport := cfg.Transport
	if transport == nil {
		transport = newHTTPTransport()
	}

	c := colly.NewCollector(
		colly.Async(false),
		colly.AllowURLRevisit(),
		colly.IgnoreRobotsTxt(),
		colly.ParseHTTPErrorResponse(),
		// One byte over the limit so an oversized document is detectable;
		// colly truncates silently.
		colly.MaxBodySize(maxBody+1),
	)
	// Clones share the base collector's HTTP backend, so client settings are
	// applied once here.
	c.SetRequestTimeout(timeout)
	c.WithTransport(transport)
	// A redirect from the service would be followed straight to the
	// storefront without the loop marker; report it as a status instead.
	c.SetRedirectHandler(func(*http.Request, []*http.Request) error {
		return http.ErrUseLastResponse
	})

	return &Renderer{
		serviceURL:    serviceURL,
		token:         strings.TrimSpace(cfg.Token),
		maxBody:       maxBody,
		baseCollector: c,
	}
}

// Name implements prerender.Renderer.
func (r *Renderer) Name() string { return EngineName }

// Endpoint implements prerender.Renderer.
func (r *Renderer) Endpoint(pageURL string) string {
	return r.serviceURL + "/" + pageURL
}

// Render fetches the rendered page. The crawler's User-Agent is forwarded.
func (r *Renderer) Render(ctx context.Context, req prerender.RenderRequest) (prerender.RenderResponse, error) {
	if r.token == "" {
		return prerender.RenderResponse{}, prerender.ErrNotConfigured
	}
	var (
		result   prerender.RenderResponse
		fetchErr error
	)
	collector := r.baseCollector.Clone()
	collector.Context = ctx
	collector.UserAgent = req.UserAgent
	r.configureHooks(collector, &result, &fetchErr)

	completed, err := runCollector(ctx, collector, r.Endpoint(req.PageURL), &fetchErr)
	if !completed {
		// The visit may still be writing result.
		return prerender.RenderResponse{}, err
	}
	return result, err
}

func (r *Renderer) configureHooks(hooks collectorHooks, result *prerender.RenderResponse, fetchErr *error) {
	hooks.OnRequest(func(cr *colly.Request) {
		cr.Headers.Set(TokenHeader, r.token)
	})

	hooks.OnResponse(func(cr *colly.Response) {
		*result = prerender.RenderResponse{
			StatusCode: cr.StatusCode,
			FinalURL:   cr.Request.URL.String(),
		}
		if len(cr.Body) > r.maxBody {
			*fetchErr = fmt.Errorf("%w: limit %d bytes", prerender.ErrBodyTooLarge, r.maxBody)
			return
		}
		result.Body = append([]byte(nil), cr.Body...)
	})

	hooks.OnError(func(cr *colly.Response, err error) {
		if cr != nil && cr.StatusCode != 0 {
			result.StatusCode = cr.StatusCode
		}
		*fetchErr = err
	})
}

// runCollector visits url and reports whether the visit finished before ctx
// was done.
func runCollector(ctx context.Context, collector *colly.Collector, url string, fetchErr *error) (bool, error) {
	done := make(chan error, 1)
	go func() {
		done <- collector.Visit(url)
	}()

	select {
	case <-ctx.Done():
		return false, fmt.Errorf("prerender fetch canceled: %w", ctx.Err())
	case err := <-done:
		if err != nil {
			return true, fmt.Errorf("prerender visit failed: %w", err)
		}
		if *fetchErr != nil {
			return true, fmt.Errorf("prerender response failed: %w", *fetchErr)
		}
		return true, nil
	}
}

func newHTTPTransport() *http.Transport {
	return &http.Transport{
		Proxy: http.ProxyFromEnvironment,
		DialContext: (&net.Dialer{
			Timeout:   5 * time.Second,
			KeepAlive: 30 * time.Second,
		}).DialContext,
		TLSHandshakeTimeout:   5 * time.Second,
		ExpectContinueTimeout: 1 * time.Second,
		MaxIdleConns:          100,
		MaxIdleConnsPerHost:   20,
		IdleConnTimeout:       90 * time.Second,
	}
}
