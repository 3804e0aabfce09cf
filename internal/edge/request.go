package edge

import (
	"net/http"
	"strings"
)

// LoopMarkerHeader is set by rendering services when they fetch the origin.
// Requests carrying it always reach the origin, otherwise the renderer's own
// fetch would be intercepted again.
const LoopMarkerHeader = "X-Prerender"

// Scheme reports the scheme the client used, honouring X-Forwarded-Proto
// from the load balancer.
func Scheme(r *http.Request) string {
	if proto := r.Header.Get("X-Forwarded-Proto"); proto != "" {
		first, _, _ := strings.Cut(proto, ",")
		if first = strings.ToLower(strings.TrimSpace(first)); first == "http" || first == "https" {
			return first
		}
	}
	if r.TLS != nil {
		return "https"
	}
	return "http"
}

// RequestOrigin returns scheme://host for r.
func RequestOrigin(r *http.Request) string {
	host := r.Host
	if fwd := r.Header.Get("X-Forwarded-Host"); fwd != "" {
		first, _, _ := strings.Cut(fwd, ",")
		host = strings.TrimSpace(first)
	}
	return Scheme(r) + "://" + host
}

// RequestURL returns the absolute URL the client requested, query included.
func RequestURL(r *http.Request) string {
	return RequestOrigin(r) + r.URL.RequestURI()
}
