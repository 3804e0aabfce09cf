// Package headless renders storefront pages in a local headless Chrome via
// chromedp, for deployments that do not use a hosted prerender service.
package headless

import (
	"context"
	"fmt"
	"net/http"
	"sync"
	"time"

	"github.com/chromedp/cdproto/emulation"
	"github.com/chromedp/cdproto/network"
	"github.com/chromedp/chromedp"

	"github.com/alsamah-store/storefront-edge/internal/prerender"
)

// EngineName is reported in the X-Prerender-Engine header.
const EngineName = "chromedp"

// DefaultUserAgent identifies the renderer as a regular browser so the
// storefront serves the client application rather than crawler content.
const DefaultUserAgent = "Mozilla/5.0 (X11; Linux x86_64) AppleWebKit/537.36 (KHTML, like Gecko) Chrome/124.0.0.0 Safari/537.36"

const (
	defaultNavTimeout = 20 * time.Second
	settleDelay       = 500 * time.Millisecond
)

// Config controls the behavior of the headless renderer.
type Config struct {
	MaxParallel       int
	UserAgent         string
	NavigationTimeout time.Duration
}

// Renderer implements prerender.Renderer using chromedp and headless Chrome.
type Renderer struct {
	cfg         Config
	limiter     chan struct{}
	allocator   context.Context
	allocCancel context.CancelFunc
}

// New creates a headless renderer backed by chromedp. Chrome starts lazily
// on the first render.
func New(cfg Config) (*Renderer, error) {
	if cfg.MaxParallel < 0 {
		return nil, fmt.Errorf("max parallel must be >= 0")
	}
	if cfg.NavigationTimeout <= 0 {
		cfg.NavigationTimeout = defaultNavTimeout
	}
	if cfg.UserAgent == "" {
		cfg.UserAgent = DefaultUserAgent
	}
	var limiter chan struct{}
	if cfg.MaxParallel > 0 {
		limiter = make(chan struct{}, cfg.MaxParallel)
	}

	opts := append(chromedp.DefaultExecAllocatorOptions[:],
		chromedp.Flag("headless", "new"),
		chromedp.Flag("disable-gpu", true),
		chromedp.Flag("hide-scrollbars", true),
		chromedp.Flag("enable-automation", false),
		chromedp.Flag("lang", "ar"),
	)
	allocCtx, allocCancel := chromedp.NewExecAllocator(context.Background(), opts...)

	return &Renderer{
		cfg:         cfg,
		limiter:     limiter,
		allocator:   allocCtx,
		allocCancel: allocCancel,
	}, nil
}

// Close stops the browser.
func (r *Renderer) Close() {
	r.allocCancel()
}

// Name implements prerender.Renderer.
func (r *Renderer) Name() string { return EngineName }

// Endpoint implements prerender.Renderer; the browser loads the page itself.
func (r *Renderer) Endpoint(pageURL string) string { return pageURL }

// Render navigates to the page and returns the serialized DOM once the body
// is ready. The crawler's User-Agent is not forwarded: the browser presents
// itself with the configured renderer agent and the loop marker header.
func (r *Renderer) Render(ctx context.Context, req prerender.RenderRequest) (prerender.RenderResponse, error) {
	if err := r.acquire(ctx); err != nil {
		return prerender.RenderResponse{}, err
	}
	defer r.release()

	tabCtx, tabCancel := chromedp.NewContext(r.allocator)
	defer tabCancel()

	// Cancel the tab when either the caller or the navigation deadline ends.
	tabCtx, cancel := context.WithTimeout(tabCtx, r.navTimeout())
	defer cancel()
	stop := context.AfterFunc(ctx, cancel)
	defer stop()

	meta := newResponseMeta()
	chromedp.ListenTarget(tabCtx, meta.captureEvent)

	html, finalURL, err := r.run(tabCtx, req.PageURL)
	if err != nil {
		if ctxErr := ctx.Err(); ctxErr != nil {
			return prerender.RenderResponse{}, fmt.Errorf("headless render: %w", ctxErr)
		}
		return prerender.RenderResponse{}, err
	}

	status, responseURL := meta.snapshotWithFallbacks(req.PageURL, finalURL)
	return prerender.RenderResponse{
		StatusCode: status,
		Body:       []byte(html),
		FinalURL:   responseURL,
	}, nil
}

func (r *Renderer) run(ctx context.Context, pageURL string) (string, string, error) {
	var (
		html     string
		finalURL string
	)
	actions := []chromedp.Action{
		r.networkSetupAction(),
		chromedp.Navigate(pageURL),
		chromedp.WaitReady("body", chromedp.ByQuery),
		chromedp.Sleep(settleDelay),
		chromedp.Location(&finalURL),
		chromedp.OuterHTML("html", &html, chromedp.ByQuery),
	}
	if err := chromedp.Run(ctx, actions...); err != nil {
		return "", "", fmt.Errorf("chromedp run: %w", err)
	}
	return "<!DOCTYPE html>\n" + html, finalURL, nil
}

func (r *Renderer) networkSetupAction() chromedp.Action {
	return chromedp.ActionFunc(func(ctx context.Context) error {
		if err := network.Enable().Do(ctx); err != nil {
			return fmt.Errorf("enable network domain: %w", err)
		}
		if err := emulation.SetUserAgentOverride(r.cfg.UserAgent).WithAcceptLanguage("ar").Do(ctx); err != nil {
			return fmt.Errorf("set user-agent: %w", err)
		}
		if err := network.SetExtraHTTPHeaders(loopMarkerHeaders()).Do(ctx); err != nil {
			return fmt.Errorf("set extra headers: %w", err)
		}
		return nil
	})
}

func (r *Renderer) acquire(ctx context.Context) error {
	if r.limiter == nil {
		return nil
	}
	select {
	case r.limiter <- struct{}{}:
		return nil
	case <-ctx.Done():
		return fmt.Errorf("headless slot wait canceled: %w", ctx.Err())
	}
}

func (r *Renderer) release() {
	if r.limiter == nil {
		return
	}
	select {
	case <-r.limiter:
	default:
	}
}

func (r *Renderer) navTimeout() time.Duration {
	if r.cfg.NavigationTimeout > 0 {
		return r.cfg.NavigationTimeout
	}
	return defaultNavTimeout
}

// loopMarkerHeaders marks the browser's requests so the edge boundary lets
// them reach the origin.
func loopMarkerHeaders() network.Headers {
	return network.Headers{"X-Prerender": "1"}
}

// responseMeta records the main document response seen by the browser.
type responseMeta struct {
	mu     sync.RWMutex
	status int
	url    string
}

func newResponseMeta() *responseMeta {
	return &responseMeta{}
}

func (m *responseMeta) capture(event *network.EventResponseReceived) {
	if event.Type != network.ResourceTypeDocument || event.Response == nil {
		return
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	// Frames load documents too; the first one is the page itself.
	if m.status != 0 {
		return
	}
	m.status = int(event.Response.Status)
	m.url = event.Response.URL
}

func (m *responseMeta) captureEvent(ev any) {
	if resp, ok := ev.(*network.EventResponseReceived); ok {
		m.capture(resp)
	}
}

func (m *responseMeta) snapshotWithFallbacks(requestURL, finalURL string) (int, string) {
	m.mu.RLock()
	status, url := m.status, m.url
	m.mu.RUnlock()

	switch {
	case url != "":
	case finalURL != "":
		url = finalURL
	default:
		url = requestURL
	}
	if status == 0 {
		status = http.StatusOK
	}
	return status, url
}
