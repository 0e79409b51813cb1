// Package sinks implements progress consumers: structured logs, Prometheus
// counters, a terminal progress bar, and a completion publisher.
package sinks
