// Package api hosts the HTTP server and middleware in front of the storefront.
// Notable routes:
//   - GET /healthz and /readyz for container probes.
//   - GET /metrics for Prometheus scraping.
//   - Everything else flows through the edge boundary to the storefront origin.
package api
