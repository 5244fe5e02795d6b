// Package metrics declares the Prometheus collectors neutrino exposes on
// /metrics, plus a small Timer helper for observing operation durations.
package metrics
