package edge

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"sync"
	"sync/atomic"
	"testing"

	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
	"go.uber.org/zap/zaptest/observer"

	"github.com/alsamah-store/storefront-edge/internal/audit"
)

const googlebotUA = "Mozilla/5.0 (compatible; Googlebot/2.1; +http://www.google.com/bot.html)"

type recordingEmitter struct {
	mu     sync.Mutex
	events []audit.Event
}

func (e *recordingEmitter) Emit(evt audit.Event) {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.events = append(e.events, evt)
}

func (e *recordingEmitter) Events() []audit.Event {
	e.mu.Lock()
	defer e.mu.Unlock()
	return append([]audit.Event(nil), e.events...)
}

type countingOrigin struct {
	calls atomic.Int32
}

func (o *countingOrigin) ServeHTTP(w http.ResponseWriter, _ *http.Request) {
	o.calls.Add(1)
	w.Header().Set("Content-Type", "text/html")
	_, _ = w.Write([]byte("<div id=\"root\"></div>"))
}

func intercepting(name, body string) HandlerFunc {
	return HandlerFunc{HandlerName: name, Fn: func(context.Context, *http.Request) Result {
		return Intercepted(&Response{
			Status: http.StatusOK,
			Header: http.Header{"Content-Type": []string{"text/html; charset=utf-8"}},
			Body:   []byte(body),
		})
	}}
}

func passing(name, reason string, calls *atomic.Int32) HandlerFunc {
	return HandlerFunc{HandlerName: name, Fn: func(context.Context, *http.Request) Result {
		if calls != nil {
			calls.Add(1)
		}
		return PassThrough(reason)
	}}
}

func serve(t *testing.T, h http.Handler, method, target, ua string, headers map[string]string) *httptest.ResponseRecorder {
	t.Helper()
	req := httptest.NewRequest(method, target, nil)
	if ua != "" {
		req.Header.Set("User-Agent", ua)
	}
	for k, v := range headers {
		req.Header.Set(k, v)
	}
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, req)
	return rec
}

func TestBoundaryInterceptsCrawler(t *testing.T) {
	t.Parallel()

	origin := &countingOrigin{}
	emitter := &recordingEmitter{}
	boundary := NewBoundary(Options{Emitter: emitter, CaptureBodies: true}, intercepting("prerender", "<html>ok</html>"))

	rec := serve(t, boundary.Middleware(origin), http.MethodGet, "https://shop.example/about?x=1", googlebotUA, nil)

	require.Equal(t, http.StatusOK, rec.Code)
	require.Equal(t, "<html>ok</html>", rec.Body.String())
	require.Equal(t, "text/html; charset=utf-8", rec.Header().Get("Content-Type"))
	require.Equal(t, int32(0), origin.calls.Load(), "origin must not run after interception")

	events := emitter.Events()
	require.Len(t, events, 1)
	require.Equal(t, audit.DecisionIntercepted, events[0].Decision)
	require.Equal(t, "prerender", events[0].Handler)
	require.Equal(t, "Googlebot", events[0].Agent)
	require.Equal(t, "search", events[0].AgentKind)
	require.Equal(t, "https://shop.example/about?x=1", events[0].URL)
	require.Equal(t, []byte("<html>ok</html>"), events[0].Body)
	require.NoError(t, events[0].Validate())
}

func TestBoundaryFirstInterceptWins(t *testing.T) {
	t.Parallel()

	var later atomic.Int32
	origin := &countingOrigin{}
	boundary := NewBoundary(Options{},
		passing("preview", ReasonNotApplicable, nil),
		intercepting("prerender", "second"),
		passing("never", ReasonNotApplicable, &later),
	)
	require.Equal(t, []string{"preview", "prerender", "never"}, boundary.Handlers())

	rec := serve(t, boundary.Middleware(origin), http.MethodGet, "/product/9", googlebotUA, nil)
	require.Equal(t, "second", rec.Body.String())
	require.Equal(t, int32(0), later.Load())
	require.Equal(t, int32(0), origin.calls.Load())
}

func TestBoundaryPassThroughCallsNextOnce(t *testing.T) {
	t.Parallel()

	origin := &countingOrigin{}
	emitter := &recordingEmitter{}
	boundary := NewBoundary(Options{Emitter: emitter},
		passing("preview", ReasonNotApplicable, nil),
		passing("prerender", ReasonUpstreamCode, nil),
	)

	rec := serve(t, boundary.Middleware(origin), http.MethodGet, "/about", googlebotUA, nil)
	require.Equal(t, int32(1), origin.calls.Load())
	require.Equal(t, "<div id=\"root\"></div>", rec.Body.String())
	require.Empty(t, rec.Header().Get(HeaderDecision), "diagnostics are off by default")

	events := emitter.Events()
	require.Len(t, events, 1)
	require.Equal(t, audit.DecisionPassThrough, events[0].Decision)
	require.Equal(t, ReasonUpstreamCode, events[0].Reason)
	require.Nil(t, events[0].Body)
}

func TestBoundaryExemptRequestsSkipHandlers(t *testing.T) {
	t.Parallel()

	cases := []struct {
		name    string
		method  string
		target  string
		headers map[string]string
	}{
		{name: "static asset", method: http.MethodGet, target: "/assets/app.JS"},
		{name: "image", method: http.MethodGet, target: "/img/sofa.webp"},
		{name: "platform prefix", method: http.MethodGet, target: "/.netlify/functions/x"},
		{name: "api prefix", method: http.MethodGet, target: "/api/products"},
		{name: "post", method: http.MethodPost, target: "/product/1"},
		{name: "loop marker", method: http.MethodGet, target: "/product/1", headers: map[string]string{"X-Prerender": "1"}},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			t.Parallel()

			var handled atomic.Int32
			origin := &countingOrigin{}
			emitter := &recordingEmitter{}
			boundary := NewBoundary(Options{Emitter: emitter}, HandlerFunc{HandlerName: "x", Fn: func(context.Context, *http.Request) Result {
				handled.Add(1)
				return Intercepted(&Response{Body: []byte("nope")})
			}})

			serve(t, boundary.Middleware(origin), tc.method, tc.target, googlebotUA, tc.headers)
			require.Equal(t, int32(0), handled.Load())
			require.Equal(t, int32(1), origin.calls.Load())
			require.Empty(t, emitter.Events())
		})
	}
}

func TestBoundaryHumanVisitorsReachOrigin(t *testing.T) {
	t.Parallel()

	var handled atomic.Int32
	origin := &countingOrigin{}
	boundary := NewBoundary(Options{}, passing("prerender", ReasonNotApplicable, &handled))

	for _, ua := range []string{"", "Mozilla/5.0 (iPhone; CPU iPhone OS 17_0 like Mac OS X) Safari/604.1"} {
		serve(t, boundary.Middleware(origin), http.MethodGet, "/product/1", ua, nil)
	}
	require.Equal(t, int32(0), handled.Load())
	require.Equal(t, int32(2), origin.calls.Load())
}

func TestBoundaryRecoversHandlerPanic(t *testing.T) {
	t.Parallel()

	core, logs := observer.New(zap.WarnLevel)
	origin := &countingOrigin{}
	emitter := &recordingEmitter{}
	boundary := NewBoundary(Options{Emitter: emitter, Logger: zap.New(core), Diagnostics: true},
		HandlerFunc{HandlerName: "preview", Fn: func(context.Context, *http.Request) Result {
			panic("nil product")
		}},
	)

	rec := serve(t, boundary.Middleware(origin), http.MethodGet, "/product/1", googlebotUA, nil)
	require.Equal(t, int32(1), origin.calls.Load())
	require.Equal(t, ReasonPanic, rec.Header().Get(HeaderReason))
	require.Contains(t, rec.Header().Get(HeaderError), "nil product")
	require.Equal(t, 1, logs.FilterMessage("edge handler panicked").Len())
	require.Equal(t, ReasonPanic, emitter.Events()[0].Reason)
}

func TestBoundaryDiagnosticsHeaders(t *testing.T) {
	t.Parallel()

	origin := &countingOrigin{}
	boundary := NewBoundary(Options{Diagnostics: true}, HandlerFunc{HandlerName: "prerender", Fn: func(context.Context, *http.Request) Result {
		return PassThrough(ReasonUpstreamCode).WithDiagnostics(Diagnostics{
			Engine:         "prerender.io",
			UpstreamURL:    "https://service.prerender.io/https://shop.example/about",
			UpstreamStatus: http.StatusBadGateway,
			Err:            errors.New("upstream returned 502"),
		})
	}})

	rec := serve(t, boundary.Middleware(origin), http.MethodGet, "/about", googlebotUA, nil)
	require.Equal(t, "<div id=\"root\"></div>", rec.Body.String())
	require.Equal(t, "Googlebot", rec.Header().Get(HeaderCrawler))
	require.Equal(t, "prerender", rec.Header().Get(HeaderHandler))
	require.Equal(t, "pass_through", rec.Header().Get(HeaderDecision))
	require.Equal(t, ReasonUpstreamCode, rec.Header().Get(HeaderReason))
	require.Equal(t, "https://service.prerender.io/https://shop.example/about", rec.Header().Get(HeaderUpstreamURL))
	require.Equal(t, "502", rec.Header().Get(HeaderUpstreamStatus))
	require.Equal(t, "upstream returned 502", rec.Header().Get(HeaderError))
}

func TestBoundaryHeadOmitsBody(t *testing.T) {
	t.Parallel()

	boundary := NewBoundary(Options{}, intercepting("prerender", "<html>ok</html>"))
	rec := serve(t, boundary.Middleware(&countingOrigin{}), http.MethodHead, "/about", googlebotUA, nil)
	require.Equal(t, http.StatusOK, rec.Code)
	require.Empty(t, rec.Body.String())
	require.Equal(t, "15", rec.Header().Get("Content-Length"))
}

func TestBoundaryWithoutHandlersPassesThrough(t *testing.T) {
	t.Parallel()

	origin := &countingOrigin{}
	emitter := &recordingEmitter{}
	boundary := NewBoundary(Options{Emitter: emitter}, nil)
	serve(t, boundary.Middleware(origin), http.MethodGet, "/", googlebotUA, nil)
	require.Equal(t, int32(1), origin.calls.Load())
	require.Equal(t, ReasonNotApplicable, emitter.Events()[0].Reason)
}

func TestInterceptedDefaults(t *testing.T) {
	t.Parallel()

	res := Intercepted(&Response{Body: []byte("x")})
	require.True(t, res.IsIntercepted())
	require.Equal(t, http.StatusOK, res.Response().Status)
	require.NotNil(t, res.Response().Header)

	require.False(t, Intercepted(nil).IsIntercepted())
	require.False(t, PassThrough(ReasonBudget).IsIntercepted())
	require.Equal(t, ReasonTimeout, PassThrough(ReasonBudget).WithReason(ReasonTimeout).Reason())
}

func TestRequestURL(t *testing.T) {
	t.Parallel()

	req := httptest.NewRequest(http.MethodGet, "http://shop.example/product/5?ref=wa", nil)
	require.Equal(t, "http", Scheme(req))
	require.Equal(t, "http://shop.example/product/5?ref=wa", RequestURL(req))

	req.Header.Set("X-Forwarded-Proto", "https, http")
	req.Header.Set("X-Forwarded-Host", "alsamah-store.com")
	require.Equal(t, "https", Scheme(req))
	require.Equal(t, "https://alsamah-store.com", RequestOrigin(req))

	req.Header.Set("X-Forwarded-Proto", "gopher")
	require.Equal(t, "http", Scheme(req))
}
