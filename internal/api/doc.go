// Package api hosts the read-only HTTP server over the archive. Routes:
//   - GET /healthz and /readyz for probes; readyz queries the store.
//   - GET /metrics for Prometheus scraping.
//   - GET /v1/tags and /v1/tags/{name}/comics for the tag vocabulary.
//   - GET /v1/comics/{date} and /v1/comics/{date}/image for one strip.
//   - GET /v1/search?q= for transcript search and /v1/stats for totals.
package api
