// Package client talks to the crawl engine's REST interface.
//
// The engine exposes a handful of JSON endpoints under /api: start, stop,
// terminate and clear-db commands plus status, results and db-results
// queries. Every failure (transport error or non-2xx status) is reported as a
// *crawler.NetworkError so callers can treat the engine uniformly.
package client
