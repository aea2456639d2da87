// Package api hosts the dashboard HTTP server, middleware, and REST handlers.
// Notable routes:
//   - GET /healthz / readyz for probes and GET /metrics for Prometheus.
//   - /api/session/... for lifecycle commands and the controller snapshot.
//   - /api/results/..., /api/stats, /api/graph and /api/report for views.
//   - /api/export and /api/exports for downloads and archived artifacts.
//   - /api/settings for persisted preferences.
//   - /api/sessions for session history via store.SessionRepository.
package api
