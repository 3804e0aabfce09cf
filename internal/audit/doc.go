// Package audit records what the edge did with each crawler request. Events
// are emitted from the request path without blocking, batched on a background
// goroutine, and fanned out to pluggable sinks: structured logs, Prometheus
// counters, a Pub/Sub topic for SEO analytics, and a snapshot archive of the
// documents served to crawlers.
package audit
