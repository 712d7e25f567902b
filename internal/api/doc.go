// Package api hosts the operator HTTP listener. Routes:
//   - GET /healthz and /readyz for probes; readyz checks the store.
//   - GET /metrics for Prometheus scraping.
package api
