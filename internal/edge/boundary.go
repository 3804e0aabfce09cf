package edge

import (
	"fmt"
	"net/http"
	"strconv"
	"time"

	"go.uber.org/zap"

	"github.com/alsamah-store/storefront-edge/internal/audit"
	"github.com/alsamah-store/storefront-edge/internal/botdetect"
	"github.com/alsamah-store/storefront-edge/internal/metrics"
)

// Diagnostic header names attached to pass-through responses when enabled.
const (
	HeaderCrawler        = "X-Edge-Crawler"
	HeaderHandler        = "X-Edge-Handler"
	HeaderDecision       = "X-Edge-Decision"
	HeaderReason         = "X-Edge-Reason"
	HeaderUpstreamURL    = "X-Edge-Upstream-URL"
	HeaderUpstreamStatus = "X-Edge-Upstream-Status"
	HeaderError          = "X-Edge-Error"
)

// Options configures a Boundary.
type Options struct {
	// ReservedPrefixes bypass interception; defaults to
	// botdetect.DefaultReservedPrefixes.
	ReservedPrefixes []string
	// Diagnostics attaches X-Edge-* headers to pass-through responses.
	Diagnostics bool
	// CaptureBodies copies intercepted bodies into audit events so the
	// archive sink can store them.
	CaptureBodies bool
	// Matcher classifies crawlers; defaults to botdetect.General().
	Matcher *botdetect.Matcher
	Emitter audit.Emitter
	Logger  *zap.Logger
}

// Boundary dispatches crawler requests to handlers before the origin.
type Boundary struct {
	handlers    []Handler
	reserved    []string
	diagnostics bool
	capture     bool
	matcher     *botdetect.Matcher
	emitter     audit.Emitter
	logger      *zap.Logger
}

// NewBoundary builds a Boundary that offers crawler requests to handlers in
// the given order. Nil handlers are ignored.
func NewBoundary(opts Options, handlers ...Handler) *Boundary {
	b := &Boundary{
		reserved:    opts.ReservedPrefixes,
		diagnostics: opts.Diagnostics,
		capture:     opts.CaptureBodies,
		matcher:     opts.Matcher,
		emitter:     opts.Emitter,
		logger:      opts.Logger,
	}
	if b.reserved == nil {
		b.reserved = botdetect.DefaultReservedPrefixes
	}
	if b.matcher == nil {
		b.matcher = botdetect.General()
	}
	if b.emitter == nil {
		b.emitter = audit.NopEmitter{}
	}
	if b.logger == nil {
		b.logger = zap.NewNop()
	}
	for _, h := range handlers {
		if h != nil {
			b.handlers = append(b.handlers, h)
		}
	}
	return b
}

// Handlers returns the registered handler names in dispatch order.
func (b *Boundary) Handlers() []string {
	names := make([]string, 0, len(b.handlers))
	for _, h := range b.handlers {
		names = append(names, h.Name())
	}
	return names
}

// Middleware wraps next. For every request exactly one of two things
// happens: a handler's response is written, or next is invoked once.
func (b *Boundary) Middleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if b.exempt(r) {
			next.ServeHTTP(w, r)
			return
		}
		sig, ok := b.matcher.Match(r.UserAgent())
		if !ok {
			next.ServeHTTP(w, r)
			return
		}

		start := time.Now()
		var (
			last     Result
			lastName string
		)
		for _, h := range b.handlers {
			res := b.invoke(h, r)
			if res.IsIntercepted() {
				b.write(w, r, res.Response())
				b.emit(r, sig, h.Name(), res, audit.DecisionIntercepted, time.Since(start))
				return
			}
			last, lastName = res, h.Name()
		}
		if lastName == "" {
			last = PassThrough(ReasonNotApplicable)
		}
		if b.diagnostics {
			b.annotate(w.Header(), sig, lastName, last)
		}
		b.emit(r, sig, lastName, last, audit.DecisionPassThrough, time.Since(start))
		next.ServeHTTP(w, r)
	})
}

func (b *Boundary) exempt(r *http.Request) bool {
	if r.Method != http.MethodGet && r.Method != http.MethodHead {
		return true
	}
	if r.Header.Get(LoopMarkerHeader) != "" {
		return true
	}
	return botdetect.IsExempt(r.URL.Path, b.reserved)
}

func (b *Boundary) invoke(h Handler, r *http.Request) (res Result) {
	defer func() {
		if rec := recover(); rec != nil {
			metrics.ObserveHandlerPanic(h.Name())
			b.logger.Warn("edge handler panicked",
				zap.String("handler", h.Name()),
				zap.String("path", r.URL.Path),
				zap.Any("panic", rec),
			)
			res = PassThrough(ReasonPanic).WithDiagnostics(Diagnostics{Err: fmt.Errorf("handler panic: %v", rec)})
		}
	}()
	return h.Handle(r.Context(), r)
}

func (b *Boundary) write(w http.ResponseWriter, r *http.Request, resp *Response) {
	header := w.Header()
	for key, values := range resp.Header {
		header[key] = append([]string(nil), values...)
	}
	header.Set("Content-Length", strconv.Itoa(len(resp.Body)))
	w.WriteHeader(resp.Status)
	if r.Method == http.MethodHead {
		return
	}
	if _, err := w.Write(resp.Body); err != nil {
		b.logger.Debug("write intercepted response", zap.Error(err))
	}
}

func (b *Boundary) annotate(h http.Header, sig botdetect.Signature, handler string, res Result) {
	diag := res.Diagnostics()
	h.Set(HeaderCrawler, sig.Token)
	h.Set(HeaderDecision, string(audit.DecisionPassThrough))
	h.Set(HeaderReason, res.Reason())
	if handler != "" {
		h.Set(HeaderHandler, handler)
	}
	if diag.UpstreamURL != "" {
		h.Set(HeaderUpstreamURL, diag.UpstreamURL)
	}
	if diag.UpstreamStatus != 0 {
		h.Set(HeaderUpstreamStatus, strconv.Itoa(diag.UpstreamStatus))
	}
	if diag.Err != nil {
		h.Set(HeaderError, diag.Err.Error())
	}
}

func (b *Boundary) emit(
	r *http.Request,
	sig botdetect.Signature,
	handler string,
	res Result,
	decision audit.Decision,
	dur time.Duration,
) {
	diag := res.Diagnostics()
	evt := audit.Event{
		ID:             audit.NewEventID(),
		TS:             time.Now().UTC(),
		Decision:       decision,
		Handler:        handler,
		Reason:         res.Reason(),
		Path:           r.URL.Path,
		URL:            RequestURL(r),
		Agent:          sig.Token,
		AgentKind:      string(sig.Kind),
		Engine:         diag.Engine,
		UpstreamStatus: diag.UpstreamStatus,
		Dur:            dur,
	}
	if diag.Err != nil {
		evt.Note = diag.Err.Error()
	}
	if resp := res.Response(); resp != nil {
		evt.Bytes = int64(len(resp.Body))
		if b.capture {
			evt.ContentType = resp.Header.Get("Content-Type")
			evt.Body = append([]byte(nil), resp.Body...)
		}
	}
	metrics.ObserveEdgeDecision(handler, string(decision), evt.Reason)
	b.emitter.Emit(evt)
}
