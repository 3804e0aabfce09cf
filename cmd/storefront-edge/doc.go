// Package main hosts the storefront edge entrypoint.
//
// Architecture overview:
//   - HTTP server: internal/api.Server exposes health, readiness, and metrics endpoints and hands every other
//     request to the edge boundary wrapped around the storefront origin.
//   - Edge boundary: internal/edge.Boundary skips non-GET requests, static assets, reserved prefixes, and the
//     renderer's own loop-marked requests, classifies the User-Agent, and offers crawler requests to handlers in
//     order. The first interception wins; every other outcome reaches the origin exactly once.
//   - Handlers: the preview synthesizer answers link-preview agents on /product/{id} and /service/{id} with an
//     Open Graph document built from the catalog (PostgREST or Postgres). The prerender gateway asks the hosted
//     prerender service (Colly) or a local headless Chrome (chromedp) for the rendered page, budgeted per host.
//   - Origin: a reverse proxy to the storefront host, or the built single-page app served from disk with
//     index.html fallback.
//   - Audit: each crawler request yields one event, batched by a non-blocking hub and fanned out to zap logs,
//     Prometheus counters, an optional Pub/Sub topic, and an optional snapshot archive (memory/local/GCS).
//
// Quick checklist:
//   - Configure env vars: EDGE_ORIGIN_URL or EDGE_ORIGIN_STATIC_DIR, SITE_URL, PRERENDER_TOKEN,
//     VITE_SUPABASE_URL and VITE_SUPABASE_ANON_KEY (or EDGE_STORE_DSN with EDGE_STORE_DRIVER=postgres), PORT.
//     Missing credentials disable the affected handler rather than failing startup.
//   - Run locally: go run ./cmd/storefront-edge -config config.yaml (or rely solely on env overrides).
//   - The process drains on SIGTERM: the HTTP server stops first, then the audit hub flushes its sinks.
package main
