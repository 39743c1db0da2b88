// Package api hosts the operator status server. Routes:
//   - GET /healthz and /readyz for liveness and readiness probes.
//   - GET /metrics for Prometheus scraping.
//   - GET /v1/progress and /v1/progress/{batch_id} for batch status.
//   - GET /v1/routes?input= to show how an input is classified.
//   - POST /v1/harvest to harvest a single URL or pasted list on demand.
package api
