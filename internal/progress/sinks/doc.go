// Package sinks implements concrete progress consumers: structured logging,
// Prometheus collectors, the session-history repository and completion
// notices. Each sink satisfies progress.Sink and tolerates repeated
// Consume/Close cycles.
package sinks
