// Package edge is the dispatch boundary in front of the storefront origin.
//
// A Boundary wraps the origin handler. For each request it decides whether
// the request is exempt (static asset, reserved prefix, non-GET method, or a
// rendering service fetching the origin), classifies the User-Agent, and
// offers crawler requests to its handlers in registration order. The first
// handler that returns an Intercepted result answers the request; if every
// handler passes through, the origin handler runs exactly once. Handler
// failures never reach the client: errors become pass-through results and
// panics are recovered.
package edge
