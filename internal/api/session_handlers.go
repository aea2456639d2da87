package api

import (
	"context"
	"net/http"

	"github.com/JakeFAU/crawl-console/internal/crawler"
)

func (s *Server) getSession(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, http.StatusOK, s.deps.Controller.Snapshot())
}

// startSession decodes a crawl config over the configured defaults. The same
// request resumes a paused session.
func (s *Server) startSession(w http.ResponseWriter, r *http.Request) {
	cfg := s.deps.CrawlDefaults
	if cfg == (crawler.CrawlConfig{}) {
		cfg = crawler.DefaultCrawlConfig()
	}
	if err := decodeJSON(r, &cfg); err != nil {
		s.fail(w, r, err)
		return
	}
	if err := s.deps.Controller.Start(r.Context(), cfg); err != nil {
		s.fail(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, s.deps.Controller.Snapshot())
}

// command adapts a bodiless lifecycle command to a handler that answers
// with the resulting snapshot.
func (s *Server) command(fn func(context.Context) error) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if err := fn(r.Context()); err != nil {
			s.fail(w, r, err)
			return
		}
		writeJSON(w, http.StatusOK, s.deps.Controller.Snapshot())
	}
}

func (s *Server) loadPersisted(w http.ResponseWriter, r *http.Request) {
	n, err := s.deps.Controller.LoadPersisted(r.Context())
	if err != nil {
		s.fail(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{
		"loaded":  n,
		"session": s.deps.Controller.Snapshot(),
	})
}
