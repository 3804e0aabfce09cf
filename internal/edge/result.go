package edge

import (
	"context"
	"net/http"
)

// Response is a complete answer produced by a handler.
type Response struct {
	Status int
	Header http.Header
	Body   []byte
}

// Diagnostics describes the upstream interaction behind a result. It feeds
// the optional X-Edge-* headers and the audit trail.
type Diagnostics struct {
	Engine         string
	UpstreamURL    string
	UpstreamStatus int
	Err            error
}

// Result is the tagged outcome of a handler: either an intercepted response
// or a pass-through with a machine-readable reason.
type Result struct {
	response *Response
	reason   string
	diag     Diagnostics
}

// Common pass-through reasons.
const (
	ReasonNotCrawler    = "not_crawler"
	ReasonNotApplicable = "not_applicable"
	ReasonNotConfigured = "not_configured"
	ReasonNotFound      = "not_found"
	ReasonUpstream      = "upstream_error"
	ReasonUpstreamCode  = "upstream_status"
	ReasonEmptyBody     = "empty_body"
	ReasonTimeout       = "timeout"
	ReasonBudget        = "budget"
	ReasonPanic         = "panic"
)

// Intercepted answers the request with resp.
func Intercepted(resp *Response) Result {
	if resp == nil {
		return PassThrough(ReasonNotApplicable)
	}
	if resp.Status == 0 {
		resp.Status = http.StatusOK
	}
	if resp.Header == nil {
		resp.Header = make(http.Header)
	}
	return Result{response: resp, reason: "served"}
}

// PassThrough defers the request to the next handler or the origin.
func PassThrough(reason string) Result {
	return Result{reason: reason}
}

// WithDiagnostics returns a copy of r carrying d.
func (r Result) WithDiagnostics(d Diagnostics) Result {
	r.diag = d
	return r
}

// WithReason returns a copy of r with its reason replaced.
func (r Result) WithReason(reason string) Result {
	r.reason = reason
	return r
}

// IsIntercepted reports whether the result carries a response.
func (r Result) IsIntercepted() bool { return r.response != nil }

// Response returns the intercepted response, or nil for a pass-through.
func (r Result) Response() *Response { return r.response }

// Reason returns the pass-through reason or the interception label.
func (r Result) Reason() string { return r.reason }

// Diagnostics returns the upstream details attached to the result.
func (r Result) Diagnostics() Diagnostics { return r.diag }

// Handler decides whether to intercept a crawler request. Implementations
// must not write to the client and must convert every failure into a
// pass-through result.
type Handler interface {
	Name() string
	Handle(ctx context.Context, r *http.Request) Result
}

// HandlerFunc adapts a function to the Handler interface.
type HandlerFunc struct {
	HandlerName string
	Fn          func(ctx context.Context, r *http.Request) Result
}

// Name implements Handler.
func (f HandlerFunc) Name() string { return f.HandlerName }

// Handle implements Handler.
func (f HandlerFunc) Handle(ctx context.Context, r *http.Request) Result { return f.Fn(ctx, r) }
