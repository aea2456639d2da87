package api

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/prometheus/client_golang/prometheus"
	"go.uber.org/zap"

	"github.com/JakeFAU/crawl-console/internal/crawler"
	"github.com/JakeFAU/crawl-console/internal/export"
	"github.com/JakeFAU/crawl-console/internal/graph"
	"github.com/JakeFAU/crawl-console/internal/metrics"
	"github.com/JakeFAU/crawl-console/internal/policy/ratelimit"
	"github.com/JakeFAU/crawl-console/internal/session"
	"github.com/JakeFAU/crawl-console/internal/store"
)

const (
	defaultRequestTimeout = 60 * time.Second
	maxBodyBytes          = 1 << 20
)

// Deps are the collaborators the server routes to. Controller and Graph are
// required; a nil Archiver or History answers 503 on its routes.
type Deps struct {
	Controller *session.Controller
	Graph      *graph.Builder
	Archiver   *export.Archiver
	History    store.SessionRepository
	// CrawlDefaults fills fields omitted from a start request.
	CrawlDefaults crawler.CrawlConfig
	Clock         crawler.Clock
	Gatherer      prometheus.Gatherer
	HTTPMetrics   *metrics.HTTP
	// Ready reports downstream readiness for /readyz. Nil means always ready.
	Ready  func(ctx context.Context) error
	Logger *zap.Logger
}

// Options tune server behavior.
type Options struct {
	APIKey         string
	RequestTimeout time.Duration
	// CommandLimiter throttles session commands per client. Nil disables it.
	CommandLimiter *ratelimit.Limiter
}

// Server wires HTTP handlers to the session controller and stores.
type Server struct {
	router chi.Router
	deps   Deps
	logger *zap.Logger
}

// NewServer constructs a Server with middleware and routes.
func NewServer(deps Deps, opts Options) *Server {
	if deps.Logger == nil {
		deps.Logger = zap.NewNop()
	}
	if opts.RequestTimeout <= 0 {
		opts.RequestTimeout = defaultRequestTimeout
	}
	s := &Server{deps: deps, logger: deps.Logger.Named("api")}

	r := chi.NewRouter()
	r.Use(requestIDMiddleware)
	r.Use(loggingMiddleware(s.logger))
	r.Use(recoverMiddleware(s.logger))
	if deps.HTTPMetrics != nil {
		r.Use(deps.HTTPMetrics.Middleware)
	}
	r.Use(timeoutMiddleware(opts.RequestTimeout))

	r.Get("/healthz", s.healthz)
	r.Get("/readyz", s.readyz)
	if deps.Gatherer != nil {
		r.Method(http.MethodGet, "/metrics", metrics.Handler(deps.Gatherer))
	}

	history := NewHistoryHandler(deps.History, s.logger)
	r.Route("/api", func(r chi.Router) {
		if opts.APIKey != "" {
			r.Use(apiKeyMiddleware(opts.APIKey))
		}
		r.Route("/session", func(r chi.Router) {
			r.Get("/", s.getSession)
			r.Group(func(r chi.Router) {
				if opts.CommandLimiter != nil {
					r.Use(rateLimitMiddleware(opts.CommandLimiter))
				}
				r.Post("/start", s.startSession)
				r.Post("/pause", s.command(s.deps.Controller.Pause))
				r.Post("/terminate", s.command(s.deps.Controller.Terminate))
				r.Post("/reset", s.command(s.deps.Controller.Reset))
				r.Post("/clear-db", s.command(s.deps.Controller.ClearDatabase))
				r.Post("/load-db", s.loadPersisted)
			})
		})
		r.Route("/results", func(r chi.Router) {
			r.Get("/", s.getResults)
			r.Post("/filter", s.filterResults)
			r.Post("/sort", s.sortResults)
			r.Post("/page", s.setPage)
			r.Post("/page-size", s.setPageSize)
		})
		r.Get("/stats", s.getStats)
		r.Get("/graph", s.getGraph)
		r.Get("/report", s.getReport)
		r.Get("/export", s.downloadExport)
		r.Post("/exports", s.archiveExport)
		r.Get("/settings", s.getSettings)
		r.Put("/settings", s.putSettings)
		r.Get("/sessions", history.ListSessions)
		r.Get("/sessions/{session_id}", history.GetSession)
	})

	s.router = r
	return s
}

// Handler returns the Router for use with http.Server.
func (s *Server) Handler() http.Handler {
	return s.router
}

func (s *Server) healthz(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

func (s *Server) readyz(w http.ResponseWriter, r *http.Request) {
	if s.deps.Ready != nil {
		ctx, cancel := context.WithTimeout(r.Context(), 2*time.Second)
		defer cancel()
		if err := s.deps.Ready(ctx); err != nil {
			s.logger.Warn("readiness check failed", zap.Error(err))
			writeJSON(w, http.StatusServiceUnavailable, map[string]string{"status": "unavailable", "error": err.Error()})
			return
		}
	}
	writeJSON(w, http.StatusOK, map[string]string{"status": "ready"})
}

// statusFor maps domain errors to HTTP status codes.
func statusFor(err error) int {
	var netErr *crawler.NetworkError
	switch {
	case errors.Is(err, crawler.ErrValidation):
		return http.StatusBadRequest
	case errors.Is(err, crawler.ErrInvalidTransition), errors.Is(err, crawler.ErrCommandInFlight):
		return http.StatusConflict
	case errors.Is(err, crawler.ErrNoData), errors.Is(err, store.ErrNotFound):
		return http.StatusNotFound
	case errors.As(err, &netErr):
		return http.StatusBadGateway
	case errors.Is(err, context.DeadlineExceeded):
		return http.StatusGatewayTimeout
	default:
		return http.StatusInternalServerError
	}
}

func (s *Server) fail(w http.ResponseWriter, r *http.Request, err error) {
	status := statusFor(err)
	if status >= http.StatusInternalServerError {
		s.logger.Error("request failed",
			zap.String("path", r.URL.Path),
			zap.String("request_id", RequestID(r.Context())),
			zap.Error(err))
	}
	writeError(w, status, err.Error())
}

// decodeJSON reads a size-limited JSON body into dst. An empty body leaves
// dst untouched.
func decodeJSON(r *http.Request, dst any) error {
	dec := json.NewDecoder(io.LimitReader(r.Body, maxBodyBytes))
	dec.DisallowUnknownFields()
	if err := dec.Decode(dst); err != nil && !errors.Is(err, io.EOF) {
		return &crawler.ValidationError{Reason: fmt.Sprintf("invalid JSON: %v", err)}
	}
	return nil
}

func writeJSON(w http.ResponseWriter, status int, payload any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(payload); err != nil {
		zap.L().Error("write JSON failed", zap.Error(err))
	}
}

func writeError(w http.ResponseWriter, status int, msg string) {
	writeJSON(w, status, map[string]string{"error": msg})
}

func (s *Server) now() time.Time {
	if s.deps.Clock != nil {
		return s.deps.Clock.Now()
	}
	return time.Now().UTC()
}
