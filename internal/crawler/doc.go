// Package crawler defines the domain types shared across the console: crawl
// results and engine status as reported by the remote crawl engine, the crawl
// configuration sent on start, status classes, the error taxonomy, and the
// collaborator interfaces (clock, id generator, blob store, publisher).
package crawler
