package report

import (
	"bytes"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/JakeFAU/crawl-console/internal/crawler"
	"github.com/JakeFAU/crawl-console/internal/session"
	"github.com/JakeFAU/crawl-console/internal/stats"
)

func TestWriteMarkdownIncludesBreakdowns(t *testing.T) {
	t.Parallel()

	results := []crawler.CrawlResult{
		{URL: "https://a.test/", StatusCode: crawler.IntPtr(200), ContentSize: 2048, ContentType: crawler.StringPtr("text/html")},
		{URL: "https://a.test/x", StatusCode: crawler.IntPtr(404), ContentSize: 10, ContentType: crawler.StringPtr("text/html")},
		{URL: "https://a.test/y.png", StatusCode: crawler.IntPtr(200), ContentSize: 4096, ContentType: crawler.StringPtr("image/png")},
	}
	started := time.Date(2026, 1, 2, 3, 4, 5, 0, time.UTC)
	var buf bytes.Buffer
	err := WriteMarkdown(&buf, Summary{
		SessionID:    "0190-session",
		SeedURL:      "https://a.test/",
		State:        "completed",
		StartedAt:    &started,
		Elapsed:      1500 * time.Millisecond,
		ServerStatus: &crawler.Status{TotalTasks: 4, CompletedTasks: 3},
		Stats:        stats.Compute(results),
		GeneratedAt:  started.Add(time.Minute),
	})
	require.NoError(t, err)

	out := buf.String()
	assert.Contains(t, out, "# Crawl Session Report")
	assert.Contains(t, out, "https://a.test/")
	assert.Contains(t, out, "1.5s")
	assert.Contains(t, out, "75%")
	assert.Contains(t, out, "## Status Codes")
	assert.Contains(t, out, "## Content Types")
	assert.Contains(t, out, "```mermaid")
	assert.Contains(t, out, "67%")
}

func TestWriteMarkdownEmptySession(t *testing.T) {
	t.Parallel()

	var buf bytes.Buffer
	require.NoError(t, WriteMarkdown(&buf, Summary{Stats: stats.Compute(nil), GeneratedAt: time.Now()}))

	out := buf.String()
	assert.Contains(t, out, "No results were collected.")
	assert.NotContains(t, out, "## Status Codes")
	assert.NotContains(t, out, "```mermaid")
}

func TestFromSnapshotElapsed(t *testing.T) {
	t.Parallel()

	started := time.Date(2024, 5, 1, 12, 0, 0, 0, time.UTC)
	now := started.Add(90 * time.Second)
	results := []crawler.CrawlResult{{URL: "https://example.com/", StatusCode: crawler.IntPtr(200), ContentSize: 10}}

	running := session.Snapshot{State: session.StateRunning, SessionID: "s-1", StartedAt: &started}
	running.Config.SeedURL = "https://example.com/"
	got := FromSnapshot(running, results, now)
	require.Equal(t, 90*time.Second, got.Elapsed)
	require.Equal(t, "running", got.State)
	require.Equal(t, "https://example.com/", got.SeedURL)
	require.Equal(t, 1, got.Stats.SuccessCount)

	ended := session.Snapshot{State: session.StateTerminated, StartedAt: &started, LastDurationMs: 1500}
	require.Equal(t, 1500*time.Millisecond, FromSnapshot(ended, nil, now).Elapsed)
}
