// Command crawlctl drives an external crawl engine.
//
// Architecture overview:
//   - serve: the dashboard API (internal/api) over a session controller that issues engine commands, polls
//     status and results, and feeds the results pipeline. Progress events fan out to log, Prometheus,
//     session-history and notification sinks.
//   - crawl: a one-shot session from the terminal. It polls until the engine finishes, terminates the session on
//     SIGINT, prints a Markdown report and can write an export artifact.
//   - results: fetches live or persisted results and writes them as CSV, JSON or legacy Excel text.
//   - clear-db: wipes the engine's persisted results.
//
// Configuration comes from an optional file (--config) and CRAWLCTL_* environment variables, e.g.
// CRAWLCTL_ENGINE_BASE_URL, CRAWLCTL_DB_DSN, CRAWLCTL_STORAGE_BACKEND, CRAWLCTL_PUBSUB_PROJECT_ID.
package main
