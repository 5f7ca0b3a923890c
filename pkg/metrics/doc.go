// Package metrics defines and registers the control plane's Prometheus
// metrics: node registry counts, shard placement and generation counters,
// reconciler cycle and live-migration outcomes, compute hook notification
// counts, and API request/latency metrics. Handler exposes them for
// scraping; Timer is a small helper for observing operation duration into a
// histogram. HealthChecker (health.go) tracks component readiness
// separately from the Prometheus registry.
package metrics
