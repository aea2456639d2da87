// Package progress carries session lifecycle and poll events from the
// controller to pluggable sinks. The Hub batches events on a background
// goroutine and never blocks the emitter; sinks turn batches into log lines,
// Prometheus metrics, session-history rows or outbound notifications.
package progress
