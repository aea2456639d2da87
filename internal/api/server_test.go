package api

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/JakeFAU/crawl-console/internal/client"
	"github.com/JakeFAU/crawl-console/internal/crawler"
	"github.com/JakeFAU/crawl-console/internal/export"
	"github.com/JakeFAU/crawl-console/internal/graph"
	"github.com/JakeFAU/crawl-console/internal/metrics"
	"github.com/JakeFAU/crawl-console/internal/policy/ratelimit"
	"github.com/JakeFAU/crawl-console/internal/session"
	"github.com/JakeFAU/crawl-console/internal/storage/memory"
	"github.com/JakeFAU/crawl-console/internal/store"
)

const engineResults = `[
 {"url":"https://example.com/","statusCode":200,"contentSize":1200,"contentType":"text/html","timestamp":1700000000000,"referrer":null,"title":"Home"},
 {"url":"https://example.com/about","statusCode":404,"contentSize":10,"contentType":"text/html","timestamp":1700000001000,"referrer":"https://example.com/","title":null},
 {"url":"https://cdn.example.com/a.png","statusCode":200,"contentSize":4096,"contentType":"image/png","timestamp":1700000002000,"referrer":"https://example.com/","title":null}
]`

// fakeEngine serves the engine REST surface from in-memory state.
type fakeEngine struct {
	mu      sync.Mutex
	running bool
	paused  bool
	results string
}

func (f *fakeEngine) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	f.mu.Lock()
	defer f.mu.Unlock()
	switch r.URL.Path {
	case "/api/start":
		f.running, f.paused = true, false
		_, _ = w.Write([]byte(`{"status":"started"}`))
	case "/api/stop":
		f.running, f.paused = false, true
		_, _ = w.Write([]byte(`{}`))
	case "/api/terminate":
		f.running, f.paused = false, false
		_, _ = w.Write([]byte(`{}`))
	case "/api/clear-db":
		_, _ = w.Write([]byte(`{"success":true}`))
	case "/api/status":
		_ = json.NewEncoder(w).Encode(map[string]any{
			"running": f.running, "paused": f.paused, "totalTasks": 3, "completedTasks": 3, "duration": 900,
		})
	case "/api/results", "/api/db-results":
		_, _ = w.Write([]byte(f.results))
	default:
		http.NotFound(w, r)
	}
}

type testEnv struct {
	server     *Server
	controller *session.Controller
	history    *memory.SessionStore
	blobs      *memory.BlobStore
}

func newTestEnv(t *testing.T, opts Options) *testEnv {
	t.Helper()
	engine := &fakeEngine{results: engineResults}
	ts := httptest.NewServer(engine)
	t.Cleanup(ts.Close)

	ctrl := session.New(
		client.New(client.WithBaseURL(ts.URL), client.WithHTTPClient(ts.Client())),
		session.WithConfirmDelay(5*time.Millisecond),
	)
	t.Cleanup(ctrl.Close)
	builder, err := graph.NewBuilder(graph.DefaultDomainCacheSize)
	require.NoError(t, err)

	reg := prometheus.NewRegistry()
	httpMetrics, err := metrics.NewHTTP(reg)
	require.NoError(t, err)

	blobs := memory.NewBlobStore()
	history := memory.NewSessionStore()
	server := NewServer(Deps{
		Controller:  ctrl,
		Graph:       builder,
		Archiver:    export.NewArchiver(blobs, "exports", nil),
		History:     history,
		Gatherer:    reg,
		HTTPMetrics: httpMetrics,
		Logger:      zap.NewNop(),
	}, opts)
	return &testEnv{server: server, controller: ctrl, history: history, blobs: blobs}
}

func (e *testEnv) do(t *testing.T, method, path, body string) *httptest.ResponseRecorder {
	t.Helper()
	req := httptest.NewRequest(method, path, strings.NewReader(body))
	rec := httptest.NewRecorder()
	e.server.Handler().ServeHTTP(rec, req)
	return rec
}

func decode[T any](t *testing.T, rec *httptest.ResponseRecorder) T {
	t.Helper()
	var out T
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &out), rec.Body.String())
	return out
}

func (e *testEnv) startAndWait(t *testing.T) {
	t.Helper()
	rec := e.do(t, http.MethodPost, "/api/session/start", `{"seedUrl":"https://example.com/"}`)
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	require.Eventually(t, func() bool {
		return e.controller.Pipeline().Len() == 3
	}, 2*time.Second, 5*time.Millisecond)
}

func TestServer_HealthAndMetrics(t *testing.T) {
	t.Parallel()

	env := newTestEnv(t, Options{})
	rec := env.do(t, http.MethodGet, "/healthz", "")
	require.Equal(t, http.StatusOK, rec.Code)
	require.NotEmpty(t, rec.Header().Get("X-Request-ID"))

	rec = env.do(t, http.MethodGet, "/readyz", "")
	require.Equal(t, http.StatusOK, rec.Code)

	rec = env.do(t, http.MethodGet, "/metrics", "")
	require.Equal(t, http.StatusOK, rec.Code)
	require.Contains(t, rec.Body.String(), "crawlctl_http_requests_total")
}

func TestServer_ReadyzReportsFailure(t *testing.T) {
	t.Parallel()

	env := newTestEnv(t, Options{})
	env.server.deps.Ready = func(context.Context) error { return errors.New("engine down") }
	rec := env.do(t, http.MethodGet, "/readyz", "")
	require.Equal(t, http.StatusServiceUnavailable, rec.Code)
	require.Contains(t, rec.Body.String(), "engine down")
}

func TestServer_StartValidationAndConflicts(t *testing.T) {
	t.Parallel()

	env := newTestEnv(t, Options{})

	rec := env.do(t, http.MethodPost, "/api/session/start", `{}`)
	require.Equal(t, http.StatusBadRequest, rec.Code)
	require.Contains(t, rec.Body.String(), "seedUrl")

	rec = env.do(t, http.MethodPost, "/api/session/start", `{"bogus":1}`)
	require.Equal(t, http.StatusBadRequest, rec.Code)

	rec = env.do(t, http.MethodPost, "/api/session/pause", "")
	require.Equal(t, http.StatusConflict, rec.Code)

	env.startAndWait(t)
	rec = env.do(t, http.MethodPost, "/api/session/start", `{"seedUrl":"https://example.com/"}`)
	require.Equal(t, http.StatusConflict, rec.Code)
}

func TestServer_SessionLifecycle(t *testing.T) {
	t.Parallel()

	env := newTestEnv(t, Options{})
	env.startAndWait(t)

	snap := decode[session.Snapshot](t, env.do(t, http.MethodGet, "/api/session", ""))
	require.Equal(t, session.StateRunning, snap.State)
	require.Equal(t, crawler.DefaultUserAgent, snap.Config.UserAgent)

	rec := env.do(t, http.MethodPost, "/api/session/pause", "")
	require.Equal(t, http.StatusOK, rec.Code)
	require.Equal(t, session.StatePaused, decode[session.Snapshot](t, rec).State)

	rec = env.do(t, http.MethodPost, "/api/session/terminate", "")
	require.Equal(t, http.StatusOK, rec.Code)
	require.Equal(t, session.StateTerminated, decode[session.Snapshot](t, rec).State)

	rec = env.do(t, http.MethodPost, "/api/session/reset", "")
	require.Equal(t, http.StatusOK, rec.Code)
	require.Equal(t, session.StateIdle, decode[session.Snapshot](t, rec).State)
	require.Equal(t, 0, env.controller.Pipeline().Len())

	rec = env.do(t, http.MethodPost, "/api/session/load-db", "")
	require.Equal(t, http.StatusOK, rec.Code)
	require.EqualValues(t, 3, decode[map[string]any](t, rec)["loaded"])

	rec = env.do(t, http.MethodPost, "/api/session/clear-db", "")
	require.Equal(t, http.StatusOK, rec.Code)
	require.Equal(t, 0, env.controller.Pipeline().Len())
}

func TestServer_ResultsViews(t *testing.T) {
	t.Parallel()

	env := newTestEnv(t, Options{})
	env.startAndWait(t)

	type page struct {
		Items []map[string]any `json:"items"`
		View  struct {
			Info struct {
				Page       int `json:"page"`
				TotalPages int `json:"totalPages"`
				TotalItems int `json:"totalItems"`
			} `json:"pageInfo"`
		} `json:"view"`
	}

	got := decode[page](t, env.do(t, http.MethodGet, "/api/results", ""))
	require.Len(t, got.Items, 3)
	require.EqualValues(t, 1, got.Items[0]["index"])

	rec := env.do(t, http.MethodPost, "/api/results/filter", `{"searchText":"EXAMPLE.com/","statusFilter":"4xx"}`)
	require.Equal(t, http.StatusOK, rec.Code)
	got = decode[page](t, rec)
	require.Len(t, got.Items, 1)
	require.Equal(t, "https://example.com/about", got.Items[0]["url"])

	rec = env.do(t, http.MethodPost, "/api/results/filter", `{"statusFilter":"abc"}`)
	require.Equal(t, http.StatusBadRequest, rec.Code)

	rec = env.do(t, http.MethodPost, "/api/results/filter", `{}`)
	require.Equal(t, http.StatusOK, rec.Code)
	rec = env.do(t, http.MethodPost, "/api/results/sort", `{"field":"contentSize"}`)
	require.Equal(t, http.StatusOK, rec.Code)
	rec = env.do(t, http.MethodPost, "/api/results/sort", `{"field":"contentSize"}`)
	got = decode[page](t, rec)
	require.EqualValues(t, 4096, got.Items[0]["contentSize"])

	rec = env.do(t, http.MethodPost, "/api/results/sort", `{"field":"nope","direction":"asc"}`)
	require.Equal(t, http.StatusBadRequest, rec.Code)

	rec = env.do(t, http.MethodPost, "/api/results/page-size", `{"pageSize":2}`)
	require.Equal(t, http.StatusOK, rec.Code)
	rec = env.do(t, http.MethodPost, "/api/results/page", `{"page":9}`)
	got = decode[page](t, rec)
	require.Equal(t, 2, got.View.Info.Page)
	require.Equal(t, 2, got.View.Info.TotalPages)
	require.Len(t, got.Items, 1)

	rec = env.do(t, http.MethodPost, "/api/results/page-size", `{"pageSize":0}`)
	require.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestServer_StatsGraphReport(t *testing.T) {
	t.Parallel()

	env := newTestEnv(t, Options{})
	env.startAndWait(t)

	statsBody := decode[map[string]any](t, env.do(t, http.MethodGet, "/api/stats", ""))
	require.EqualValues(t, 3, statsBody["count"])
	require.EqualValues(t, 2, statsBody["successCount"])
	require.EqualValues(t, 67, statsBody["successRate"])

	model := decode[graph.Model](t, env.do(t, http.MethodGet, "/api/graph", ""))
	require.Len(t, model.Nodes, 3)
	require.Len(t, model.Edges, 2)

	rec := env.do(t, http.MethodGet, "/api/report", "")
	require.Equal(t, http.StatusOK, rec.Code)
	require.True(t, strings.HasPrefix(rec.Header().Get("Content-Type"), "text/markdown"))
	require.Contains(t, rec.Body.String(), "# Crawl Session Report")
}

func TestServer_Exports(t *testing.T) {
	t.Parallel()

	env := newTestEnv(t, Options{})

	rec := env.do(t, http.MethodGet, "/api/export?format=csv", "")
	require.Equal(t, http.StatusNotFound, rec.Code)

	env.startAndWait(t)

	rec = env.do(t, http.MethodGet, "/api/export?format=csv", "")
	require.Equal(t, http.StatusOK, rec.Code)
	require.Equal(t, "text/csv", rec.Header().Get("Content-Type"))
	require.Contains(t, rec.Header().Get("Content-Disposition"), "crawl-results.csv")
	require.True(t, strings.HasPrefix(rec.Body.String(),
		"url,statusCode,contentSize,contentType,timestamp,referrer,title\n"))

	etag := rec.Header().Get("ETag")
	require.NotEmpty(t, etag)
	req := httptest.NewRequest(http.MethodGet, "/api/export?format=csv", nil)
	req.Header.Set("If-None-Match", etag)
	cached := httptest.NewRecorder()
	env.server.Handler().ServeHTTP(cached, req)
	require.Equal(t, http.StatusNotModified, cached.Code)
	require.Empty(t, cached.Body.String())

	rec = env.do(t, http.MethodGet, "/api/export?format=pdf", "")
	require.Equal(t, http.StatusBadRequest, rec.Code)

	rec = env.do(t, http.MethodPost, "/api/exports?format=json", "")
	require.Equal(t, http.StatusCreated, rec.Code)
	body := decode[map[string]any](t, rec)
	require.Equal(t, "crawl-results.json", body["filename"])
	require.Len(t, body["sha256"], 64)
	sessionID := env.controller.Snapshot().SessionID
	_, ok := env.blobs.Object("exports/" + sessionID + "/crawl-results.json")
	require.True(t, ok)
}

func TestServer_Settings(t *testing.T) {
	t.Parallel()

	env := newTestEnv(t, Options{})

	got := decode[map[string]any](t, env.do(t, http.MethodGet, "/api/settings", ""))
	require.EqualValues(t, 10, got["resultsPerPage"])

	rec := env.do(t, http.MethodPut, "/api/settings", `{"resultsPerPage":25,"theme":"dark"}`)
	require.Equal(t, http.StatusOK, rec.Code)
	got = decode[map[string]any](t, rec)
	require.EqualValues(t, 25, got["resultsPerPage"])
	require.EqualValues(t, 1, got["autoRefreshSeconds"])
	require.Equal(t, 25, env.controller.Pipeline().View().Info.PageSize)

	rec = env.do(t, http.MethodPut, "/api/settings", `{"resultsPerPage":-1}`)
	require.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestServer_History(t *testing.T) {
	t.Parallel()

	env := newTestEnv(t, Options{})
	id := uuid.Must(uuid.NewV7())
	require.NoError(t, env.history.UpsertSessionStart(context.Background(), id, "https://example.com", time.Now().UTC()))

	rec := env.do(t, http.MethodGet, "/api/sessions?status=running&limit=5", "")
	require.Equal(t, http.StatusOK, rec.Code)
	list := decode[struct {
		Sessions []sessionDTO `json:"sessions"`
	}](t, rec)
	require.Len(t, list.Sessions, 1)
	require.Equal(t, id.String(), list.Sessions[0].ID)

	rec = env.do(t, http.MethodGet, "/api/sessions/"+id.String(), "")
	require.Equal(t, http.StatusOK, rec.Code)

	rec = env.do(t, http.MethodGet, "/api/sessions/"+uuid.NewString(), "")
	require.Equal(t, http.StatusNotFound, rec.Code)

	rec = env.do(t, http.MethodGet, "/api/sessions/not-a-uuid", "")
	require.Equal(t, http.StatusBadRequest, rec.Code)

	rec = env.do(t, http.MethodGet, "/api/sessions?status=weird", "")
	require.Equal(t, http.StatusBadRequest, rec.Code)

	rec = env.do(t, http.MethodGet, "/api/sessions?limit=0", "")
	require.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestServer_APIKey(t *testing.T) {
	t.Parallel()

	env := newTestEnv(t, Options{APIKey: "secret"})

	rec := env.do(t, http.MethodGet, "/api/session", "")
	require.Equal(t, http.StatusForbidden, rec.Code)

	rec = env.do(t, http.MethodGet, "/api/session?api_key=secret", "")
	require.Equal(t, http.StatusOK, rec.Code)

	rec = env.do(t, http.MethodGet, "/healthz", "")
	require.Equal(t, http.StatusOK, rec.Code)
}

func TestServer_CommandRateLimit(t *testing.T) {
	t.Parallel()

	env := newTestEnv(t, Options{CommandLimiter: ratelimit.New(ratelimit.Config{RPS: 0.001, Burst: 1})})

	rec := env.do(t, http.MethodPost, "/api/session/reset", "")
	require.Equal(t, http.StatusOK, rec.Code)
	rec = env.do(t, http.MethodPost, "/api/session/reset", "")
	require.Equal(t, http.StatusTooManyRequests, rec.Code)
	require.Equal(t, "1", rec.Header().Get("Retry-After"))

	rec = env.do(t, http.MethodGet, "/api/session", "")
	require.Equal(t, http.StatusOK, rec.Code)
}

func TestHistoryHandlerWithoutRepo(t *testing.T) {
	t.Parallel()

	h := NewHistoryHandler(nil, nil)
	rec := httptest.NewRecorder()
	h.ListSessions(rec, httptest.NewRequest(http.MethodGet, "/api/sessions", nil))
	require.Equal(t, http.StatusServiceUnavailable, rec.Code)
}

func TestStatusFor(t *testing.T) {
	t.Parallel()

	cases := []struct {
		err  error
		want int
	}{
		{&crawler.ValidationError{Field: "x"}, http.StatusBadRequest},
		{&crawler.TransitionError{From: "idle", Command: "pause"}, http.StatusConflict},
		{crawler.ErrCommandInFlight, http.StatusConflict},
		{crawler.ErrNoData, http.StatusNotFound},
		{store.ErrNotFound, http.StatusNotFound},
		{&crawler.NetworkError{Op: "start", StatusCode: 500}, http.StatusBadGateway},
		{errors.New("boom"), http.StatusInternalServerError},
	}
	for _, tc := range cases {
		require.Equal(t, tc.want, statusFor(tc.err), tc.err.Error())
	}
}
