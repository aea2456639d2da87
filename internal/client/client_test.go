package client

import (
	"context"
	"encoding/json"
	"io"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/JakeFAU/crawl-console/internal/crawler"
)

func newEngine(t *testing.T, handler http.HandlerFunc) *Client {
	t.Helper()
	server := httptest.NewServer(handler)
	t.Cleanup(server.Close)
	return New(WithBaseURL(server.URL+"/"), WithHTTPClient(server.Client()))
}

func TestClient_StartSendsConfig(t *testing.T) {
	t.Parallel()

	var got map[string]any
	c := newEngine(t, func(w http.ResponseWriter, r *http.Request) {
		require.Equal(t, http.MethodPost, r.Method)
		require.Equal(t, "/api/start", r.URL.Path)
		require.Equal(t, "application/json", r.Header.Get("Content-Type"))
		body, err := io.ReadAll(r.Body)
		require.NoError(t, err)
		require.NoError(t, json.Unmarshal(body, &got))
		_, _ = w.Write([]byte(`{"status":"started"}`))
	})

	cfg := crawler.DefaultCrawlConfig()
	cfg.SeedURL = "https://example.com"
	require.NoError(t, c.Start(context.Background(), cfg))

	require.Equal(t, "https://example.com", got["seedUrl"])
	require.EqualValues(t, 2, got["maxDepth"])
	require.EqualValues(t, 4, got["threads"])
	require.EqualValues(t, 0, got["delay"])
	require.Equal(t, "MultiCrawlerBot/1.0", got["userAgent"])
	require.Equal(t, "", got["filter"])
	require.EqualValues(t, 10000, got["timeout"])
}

func TestClient_ErrorResponseBecomesNetworkError(t *testing.T) {
	t.Parallel()

	c := newEngine(t, func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusBadRequest)
		_, _ = w.Write([]byte(`{"error":"bad seed"}`))
	})

	err := c.Stop(context.Background())
	var nerr *crawler.NetworkError
	require.ErrorAs(t, err, &nerr)
	require.Equal(t, "stop", nerr.Op)
	require.Equal(t, http.StatusBadRequest, nerr.StatusCode)
	require.Equal(t, "bad seed", nerr.Message)
}

func TestClient_TransportError(t *testing.T) {
	t.Parallel()

	server := httptest.NewServer(http.NotFoundHandler())
	url := server.URL
	server.Close()

	c := New(WithBaseURL(url))
	_, err := c.Status(context.Background())
	var nerr *crawler.NetworkError
	require.ErrorAs(t, err, &nerr)
	require.Equal(t, "status", nerr.Op)
	require.Error(t, nerr.Err)
}

func TestClient_Status(t *testing.T) {
	t.Parallel()

	c := newEngine(t, func(w http.ResponseWriter, r *http.Request) {
		require.Equal(t, "/api/status", r.URL.Path)
		_, _ = w.Write([]byte(`{"running":true,"paused":false,"totalTasks":8,"completedTasks":2,"duration":1200}`))
	})

	status, err := c.Status(context.Background())
	require.NoError(t, err)
	require.Equal(t, crawler.Status{Running: true, TotalTasks: 8, CompletedTasks: 2, DurationMs: 1200}, status)
	require.Equal(t, 25, status.ProgressPercent())
}

func TestClient_ResultsKeepKeyOrder(t *testing.T) {
	t.Parallel()

	c := newEngine(t, func(w http.ResponseWriter, r *http.Request) {
		switch r.URL.Path {
		case "/api/results":
			_, _ = w.Write([]byte(`[{"url":"a","statusCode":200,"contentSize":10},{"statusCode":null,"url":"b"}]`))
		case "/api/db-results":
			_, _ = w.Write([]byte(`null`))
		default:
			http.NotFound(w, r)
		}
	})

	results, err := c.Results(context.Background())
	require.NoError(t, err)
	require.Len(t, results, 2)
	require.Equal(t, []string{"url", "statusCode", "contentSize"}, results[0].Keys())
	require.Equal(t, []string{"statusCode", "url"}, results[1].Keys())
	require.Nil(t, results[1].StatusCode)

	persisted, err := c.DBResults(context.Background())
	require.NoError(t, err)
	require.Empty(t, persisted)
}

func TestClient_MalformedResults(t *testing.T) {
	t.Parallel()

	c := newEngine(t, func(w http.ResponseWriter, _ *http.Request) {
		_, _ = w.Write([]byte(`{"not":"an array"}`))
	})

	_, err := c.Results(context.Background())
	var nerr *crawler.NetworkError
	require.ErrorAs(t, err, &nerr)
	require.Equal(t, "results", nerr.Op)
}

func TestClient_ClearDBReportsFailure(t *testing.T) {
	t.Parallel()

	c := newEngine(t, func(w http.ResponseWriter, r *http.Request) {
		require.Equal(t, "/api/clear-db", r.URL.Path)
		_, _ = w.Write([]byte(`{"success":false}`))
	})

	require.Error(t, c.ClearDB(context.Background()))
}

func TestDecodeResults(t *testing.T) {
	t.Parallel()

	_, err := DecodeResults([]byte(`[1]`))
	require.Error(t, err)
	_, err = DecodeResults([]byte(`[{`))
	require.Error(t, err)
	got, err := DecodeResults([]byte(`[]`))
	require.NoError(t, err)
	require.Empty(t, got)
}
