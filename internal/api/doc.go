// Package api hosts the HTTP server, middleware chain and handlers for the
// product catalog. Notable routes:
//   - GET /healthz / readyz for Kubernetes probes.
//   - GET /metrics for Prometheus scraping.
//   - /api/products/... for product CRUD and the on-demand scrape.
//   - GET /websocket for the live notification channel.
//
// Every successful product read or mutation is broadcast to subscribers.
package api
