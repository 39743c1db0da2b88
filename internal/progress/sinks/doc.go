// Package sinks implements progress consumers: structured logs, Prometheus
// batch metrics, and the in-memory status snapshot served over HTTP.
package sinks
