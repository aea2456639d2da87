package client

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/tidwall/gjson"
	"go.uber.org/zap"

	"github.com/JakeFAU/crawl-console/internal/crawler"
)

// DefaultBaseURL is where a locally started engine listens.
const DefaultBaseURL = "http://localhost:4567"

const maxErrorBody = 4 << 10

// Client is a crawl engine API client.
type Client struct {
	baseURL    string
	httpClient *http.Client
	logger     *zap.Logger
}

var _ crawler.Engine = (*Client)(nil)

// Option is a functional option for configuring the Client.
type Option func(*Client)

// WithBaseURL sets a custom base URL for the engine.
func WithBaseURL(baseURL string) Option {
	return func(c *Client) {
		c.baseURL = strings.TrimSuffix(baseURL, "/")
	}
}

// WithHTTPClient sets a custom HTTP client.
func WithHTTPClient(httpClient *http.Client) Option {
	return func(c *Client) {
		if httpClient != nil {
			c.httpClient = httpClient
		}
	}
}

// WithLogger attaches a logger for request tracing.
func WithLogger(logger *zap.Logger) Option {
	return func(c *Client) {
		if logger != nil {
			c.logger = logger
		}
	}
}

// WithTimeout bounds each request made by the default HTTP client.
func WithTimeout(timeout time.Duration) Option {
	return func(c *Client) {
		if timeout > 0 {
			c.httpClient = &http.Client{Timeout: timeout}
		}
	}
}

// New creates a new engine client.
func New(opts ...Option) *Client {
	c := &Client{
		baseURL:    DefaultBaseURL,
		httpClient: http.DefaultClient,
		logger:     zap.NewNop(),
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// BaseURL returns the configured engine URL.
func (c *Client) BaseURL() string {
	return c.baseURL
}

// Start asks the engine to begin (or resume) a crawl.
func (c *Client) Start(ctx context.Context, cfg crawler.CrawlConfig) error {
	payload, err := json.Marshal(cfg)
	if err != nil {
		return fmt.Errorf("encoding crawl config: %w", err)
	}
	_, err = c.do(ctx, "start", http.MethodPost, "/api/start", payload)
	return err
}

// Stop pauses the running crawl.
func (c *Client) Stop(ctx context.Context) error {
	_, err := c.do(ctx, "stop", http.MethodPost, "/api/stop", nil)
	return err
}

// Terminate ends the crawl for good.
func (c *Client) Terminate(ctx context.Context) error {
	_, err := c.do(ctx, "terminate", http.MethodPost, "/api/terminate", nil)
	return err
}

// ClearDB wipes the engine's persisted results.
func (c *Client) ClearDB(ctx context.Context) error {
	body, err := c.do(ctx, "clear-db", http.MethodPost, "/api/clear-db", nil)
	if err != nil {
		return err
	}
	if ok := gjson.GetBytes(body, "success"); ok.Exists() && !ok.Bool() {
		return &crawler.NetworkError{Op: "clear-db", StatusCode: http.StatusOK, Message: "engine reported failure"}
	}
	return nil
}

// Status fetches the engine's current status.
func (c *Client) Status(ctx context.Context) (crawler.Status, error) {
	body, err := c.do(ctx, "status", http.MethodGet, "/api/status", nil)
	if err != nil {
		return crawler.Status{}, err
	}
	var status crawler.Status
	if err := json.Unmarshal(body, &status); err != nil {
		return crawler.Status{}, &crawler.NetworkError{Op: "status", Message: "malformed status", Err: err}
	}
	return status, nil
}

// Results fetches the live result snapshot.
func (c *Client) Results(ctx context.Context) ([]crawler.CrawlResult, error) {
	return c.results(ctx, "results", "/api/results")
}

// DBResults fetches results persisted by the engine.
func (c *Client) DBResults(ctx context.Context) ([]crawler.CrawlResult, error) {
	return c.results(ctx, "db-results", "/api/db-results")
}

func (c *Client) results(ctx context.Context, op, path string) ([]crawler.CrawlResult, error) {
	body, err := c.do(ctx, op, http.MethodGet, path, nil)
	if err != nil {
		return nil, err
	}
	results, err := DecodeResults(body)
	if err != nil {
		return nil, &crawler.NetworkError{Op: op, Message: "malformed results", Err: err}
	}
	return results, nil
}

// DecodeResults parses a JSON array of result records, keeping each record's
// key order. A null body decodes to an empty slice.
func DecodeResults(body []byte) ([]crawler.CrawlResult, error) {
	if !gjson.ValidBytes(body) {
		return nil, fmt.Errorf("invalid JSON")
	}
	parsed := gjson.ParseBytes(body)
	if parsed.Type == gjson.Null {
		return []crawler.CrawlResult{}, nil
	}
	if !parsed.IsArray() {
		return nil, fmt.Errorf("expected array, got %s", parsed.Type)
	}
	out := make([]crawler.CrawlResult, 0, len(parsed.Array()))
	var decodeErr error
	parsed.ForEach(func(_, value gjson.Result) bool {
		res, err := crawler.ResultFromJSON(value)
		if err != nil {
			decodeErr = fmt.Errorf("record %d: %w", len(out), err)
			return false
		}
		out = append(out, res)
		return true
	})
	if decodeErr != nil {
		return nil, decodeErr
	}
	return out, nil
}

func (c *Client) do(ctx context.Context, op, method, path string, payload []byte) ([]byte, error) {
	start := time.Now()

	var reader io.Reader
	if payload != nil {
		reader = bytes.NewReader(payload)
	}
	req, err := http.NewRequestWithContext(ctx, method, c.baseURL+path, reader)
	if err != nil {
		return nil, &crawler.NetworkError{Op: op, Message: "creating request", Err: err}
	}
	if payload != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	req.Header.Set("Accept", "application/json")

	resp, err := c.httpClient.Do(req)
	if err != nil {
		c.logger.Debug("engine request failed",
			zap.String("method", method),
			zap.String("path", path),
			zap.Error(err),
			zap.Int64("duration_ms", time.Since(start).Milliseconds()),
		)
		return nil, &crawler.NetworkError{Op: op, Err: err}
	}
	defer func() {
		_ = resp.Body.Close()
	}()

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		c.logger.Debug("engine returned error",
			zap.String("method", method),
			zap.String("path", path),
			zap.Int("status", resp.StatusCode),
			zap.Int64("duration_ms", time.Since(start).Milliseconds()),
		)
		return nil, parseError(op, resp)
	}

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, &crawler.NetworkError{Op: op, StatusCode: resp.StatusCode, Message: "reading body", Err: err}
	}

	c.logger.Debug("engine request completed",
		zap.String("method", method),
		zap.String("path", path),
		zap.Int("status", resp.StatusCode),
		zap.Int64("duration_ms", time.Since(start).Milliseconds()),
	)
	return body, nil
}

// parseError turns an error response into a NetworkError, preferring the
// engine's {"error": "..."} message.
func parseError(op string, resp *http.Response) error {
	body, _ := io.ReadAll(io.LimitReader(resp.Body, maxErrorBody))
	msg := strings.TrimSpace(string(body))
	if gjson.ValidBytes(body) {
		if e := gjson.GetBytes(body, "error"); e.Exists() && e.String() != "" {
			msg = e.String()
		}
	}
	return &crawler.NetworkError{Op: op, StatusCode: resp.StatusCode, Message: msg}
}
