package remote

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"net/url"
	"strings"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/gocolly/colly/v2"
	"github.com/stretchr/testify/require"

	"github.com/alsamah-store/storefront-edge/internal/prerender"
)

const googlebotUA = "Mozilla/5.0 (compatible; Googlebot/2.1; +http://www.google.com/bot.html)"

type seenRequest struct {
	requestURI string
	token      string
	userAgent  string
}

type recordingService struct {
	mu   sync.Mutex
	seen []seenRequest
}

func (s *recordingService) record(r *http.Request) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.seen = append(s.seen, seenRequest{
		requestURI: r.RequestURI,
		token:      r.Header.Get(TokenHeader),
		userAgent:  r.UserAgent(),
	})
}

func (s *recordingService) Seen() []seenRequest {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]seenRequest(nil), s.seen...)
}

func newService(t *testing.T, handler func(w http.ResponseWriter, r *http.Request)) (*recordingService, string) {
	t.Helper()
	rec := &recordingService{}
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		rec.record(r)
		handler(w, r)
	}))
	t.Cleanup(srv.Close)
	return rec, srv.URL
}

func TestRenderFetchesThroughService(t *testing.T) {
	t.Parallel()

	rec, serviceURL := newService(t, func(w http.ResponseWriter, _ *http.Request) {
		w.Header().Set("Content-Type", "text/html")
		_, _ = w.Write([]byte("<html><body>rendered</body></html>"))
	})
	renderer := New(Config{ServiceURL: serviceURL + "/", Token: "secret"})

	resp, err := renderer.Render(context.Background(), prerender.RenderRequest{
		PageURL:   "https://alsamah-store.com/product/5?ref=wa",
		UserAgent: googlebotUA,
	})
	require.NoError(t, err)
	require.Equal(t, http.StatusOK, resp.StatusCode)
	require.Equal(t, "<html><body>rendered</body></html>", string(resp.Body))
	require.Contains(t, resp.FinalURL, "/https://alsamah-store.com/product/5")

	seen := rec.Seen()
	require.Len(t, seen, 1)
	require.Equal(t, "/https://alsamah-store.com/product/5?ref=wa", seen[0].requestURI)
	require.Equal(t, "secret", seen[0].token)
	require.Equal(t, googlebotUA, seen[0].userAgent)
}

func TestRenderRepeatsSameURL(t *testing.T) {
	t.Parallel()

	rec, serviceURL := newService(t, func(w http.ResponseWriter, _ *http.Request) {
		_, _ = w.Write([]byte("ok"))
	})
	renderer := New(Config{ServiceURL: serviceURL, Token: "secret"})
	req := prerender.RenderRequest{PageURL: "https://alsamah-store.com/", UserAgent: googlebotUA}

	for range 2 {
		_, err := renderer.Render(context.Background(), req)
		require.NoError(t, err)
	}
	require.Len(t, rec.Seen(), 2)
}

func TestRenderReportsErrorStatus(t *testing.T) {
	t.Parallel()

	_, serviceURL := newService(t, func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusServiceUnavailable)
		_, _ = w.Write([]byte("busy"))
	})
	renderer := New(Config{ServiceURL: serviceURL, Token: "secret"})

	resp, err := renderer.Render(context.Background(), prerender.RenderRequest{PageURL: "https://alsamah-store.com/", UserAgent: googlebotUA})
	require.NoError(t, err)
	require.Equal(t, http.StatusServiceUnavailable, resp.StatusCode)
}

func TestRenderRejectsOversizedBody(t *testing.T) {
	t.Parallel()

	page := "<html>" + strings.Repeat("x", 100) + "</html>"
	_, serviceURL := newService(t, func(w http.ResponseWriter, _ *http.Request) {
		_, _ = w.Write([]byte(page))
	})
	req := prerender.RenderRequest{PageURL: "https://alsamah-store.com/", UserAgent: googlebotUA}

	small := New(Config{ServiceURL: serviceURL, Token: "secret", MaxBodyBytes: 32})
	resp, err := small.Render(context.Background(), req)
	require.ErrorIs(t, err, prerender.ErrBodyTooLarge)
	require.Empty(t, resp.Body)

	exact := New(Config{ServiceURL: serviceURL, Token: "secret", MaxBodyBytes: len(page)})
	resp, err = exact.Render(context.Background(), req)
	require.NoError(t, err)
	require.Equal(t, page, string(resp.Body))
}

func TestRenderDoesNotFollowRedirects(t *testing.T) {
	t.Parallel()

	var storefrontHits atomic.Int32
	storefront := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		storefrontHits.Add(1)
		_, _ = w.Write([]byte("<html>storefront</html>"))
	}))
	t.Cleanup(storefront.Close)

	_, serviceURL := newService(t, func(w http.ResponseWriter, r *http.Request) {
		http.Redirect(w, r, storefront.URL+"/about", http.StatusFound)
	})
	renderer := New(Config{ServiceURL: serviceURL, Token: "secret"})

	resp, err := renderer.Render(context.Background(), prerender.RenderRequest{PageURL: "https://alsamah-store.com/about", UserAgent: googlebotUA})
	require.NoError(t, err)
	require.Equal(t, http.StatusFound, resp.StatusCode)
	require.Zero(t, storefrontHits.Load())
}

func TestRenderHonoursContext(t *testing.T) {
	t.Parallel()

	release := make(chan struct{})
	_, serviceURL := newService(t, func(w http.ResponseWriter, _ *http.Request) {
		<-release
		_, _ = w.Write([]byte("late"))
	})
	defer close(release)
	renderer := New(Config{ServiceURL: serviceURL, Token: "secret"})

	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Millisecond)
	defer cancel()
	start := time.Now()
	_, err := renderer.Render(ctx, prerender.RenderRequest{PageURL: "https://alsamah-store.com/", UserAgent: googlebotUA})
	require.Error(t, err)
	require.ErrorIs(t, err, context.DeadlineExceeded)
	require.Less(t, time.Since(start), 2*time.Second)
}

func TestRenderWithoutTokenIsNotConfigured(t *testing.T) {
	t.Parallel()

	renderer := New(Config{})
	_, err := renderer.Render(context.Background(), prerender.RenderRequest{PageURL: "https://alsamah-store.com/"})
	require.ErrorIs(t, err, prerender.ErrNotConfigured)
}

func TestEndpointAndName(t *testing.T) {
	t.Parallel()

	renderer := New(Config{})
	require.Equal(t, EngineName, renderer.Name())
	require.Equal(t, "https://service.prerender.io/https://alsamah-store.com/about", renderer.Endpoint("https://alsamah-store.com/about"))
}

func TestConfigureHooks(t *testing.T) {
	t.Parallel()

	renderer := New(Config{Token: "secret"})
	var result prerender.RenderResponse
	var fetchErr error

	hooks := &stubHooks{}
	renderer.configureHooks(hooks, &result, &fetchErr)
	require.NotNil(t, hooks.onRequest)
	require.NotNil(t, hooks.onResponse)
	require.NotNil(t, hooks.onError)

	collyReq := &colly.Request{Headers: &http.Header{}}
	hooks.onRequest(collyReq)
	require.Equal(t, "secret", collyReq.Headers.Get(TokenHeader))

	hooks.onResponse(&colly.Response{
		StatusCode: http.StatusOK,
		Body:       []byte("body"),
		Request:    &colly.Request{URL: mustParseURL(t, "https://service.prerender.io/https://alsamah-store.com/")},
	})
	require.Equal(t, "body", string(result.Body))
	require.Equal(t, "https://service.prerender.io/https://alsamah-store.com/", result.FinalURL)

	hooks.onError(&colly.Response{StatusCode: http.StatusBadGateway}, errors.New("boom"))
	require.EqualError(t, fetchErr, "boom")
	require.Equal(t, http.StatusBadGateway, result.StatusCode)
}

func mustParseURL(t *testing.T, raw string) *url.URL {
	t.Helper()
	u, err := url.Parse(raw)
	require.NoError(t, err)
	return u
}

type stubHooks struct {
	onRequest  colly.RequestCallback
	onResponse colly.ResponseCallback
	onError    colly.ErrorCallback
}

func (s *stubHooks) OnRequest(cb colly.RequestCallback) {
	s.onRequest = cb
}

func (s *stubHooks) OnResponse(cb colly.ResponseCallback) {
	s.onResponse = cb
}

func (s *stubHooks) OnError(cb colly.ErrorCallback) {
	s.onError = cb
}
