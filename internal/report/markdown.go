// Package report renders a Markdown summary of a crawl session: session
// facts, headline stats, and status-class and content-type breakdowns with
// mermaid pie charts.
package report

import (
	"fmt"
	"io"
	"slices"
	"strconv"
	"time"

	"github.com/dustin/go-humanize"
	"github.com/nao1215/markdown"
	"github.com/nao1215/markdown/mermaid/piechart"

	"github.com/JakeFAU/crawl-console/internal/crawler"
	"github.com/JakeFAU/crawl-console/internal/session"
	"github.com/JakeFAU/crawl-console/internal/stats"
)

// Summary is everything the report shows.
type Summary struct {
	SessionID    string
	SeedURL      string
	State        string
	StartedAt    *time.Time
	Elapsed      time.Duration
	ServerStatus *crawler.Status
	Stats        stats.Stats
	GeneratedAt  time.Time
}

// FromSnapshot builds a Summary from a controller snapshot and the ingested
// results. Elapsed is the final runtime once a session has ended, otherwise
// the time since it started.
func FromSnapshot(snap session.Snapshot, results []crawler.CrawlResult, now time.Time) Summary {
	s := Summary{
		SessionID:    snap.SessionID,
		SeedURL:      snap.Config.SeedURL,
		State:        string(snap.State),
		StartedAt:    snap.StartedAt,
		ServerStatus: snap.ServerStatus,
		Stats:        stats.Compute(results),
		GeneratedAt:  now,
	}
	switch {
	case snap.LastDurationMs > 0:
		s.Elapsed = time.Duration(snap.LastDurationMs) * time.Millisecond
	case snap.StartedAt != nil:
		s.Elapsed = now.Sub(*snap.StartedAt)
	}
	return s
}

var statusClassOrder = []crawler.StatusClass{
	crawler.Status1xx,
	crawler.Status2xx,
	crawler.Status3xx,
	crawler.Status4xx,
	crawler.Status5xx,
	crawler.StatusUnknown,
}

// WriteMarkdown renders s to w.
func WriteMarkdown(w io.Writer, s Summary) error {
	md := markdown.NewMarkdown(w)

	md.H1("Crawl Session Report")
	md.PlainText("")
	writeSession(md, s)
	writeStats(md, s.Stats)
	writeStatusClasses(md, s.Stats)
	writeContentTypes(md, s.Stats)

	md.HorizontalRule()
	md.PlainText("")
	md.PlainTextf("*Generated %s by crawlctl*", s.GeneratedAt.UTC().Format(time.RFC3339))

	if err := md.Build(); err != nil {
		return fmt.Errorf("write markdown report: %w", err)
	}
	return nil
}

func writeSession(md *markdown.Markdown, s Summary) {
	rows := [][]string{
		{"Session", orDash(s.SessionID)},
		{"Seed URL", orDash(s.SeedURL)},
		{"State", orDash(s.State)},
	}
	if s.StartedAt != nil {
		rows = append(rows, []string{"Started", s.StartedAt.UTC().Format("2006-01-02 15:04:05 MST")})
	}
	rows = append(rows, []string{"Elapsed", fmt.Sprintf("%.1fs", s.Elapsed.Seconds())})
	if st := s.ServerStatus; st != nil {
		rows = append(rows,
			[]string{"Tasks", fmt.Sprintf("%d / %d", st.CompletedTasks, st.TotalTasks)},
			[]string{"Progress", strconv.Itoa(st.ProgressPercent()) + "%"},
		)
	}
	md.Table(markdown.TableSet{Header: []string{"Property", "Value"}, Rows: rows})
	md.PlainText("")
}

func writeStats(md *markdown.Markdown, st stats.Stats) {
	md.H2("Results")
	md.PlainText("")
	md.Table(markdown.TableSet{
		Header: []string{"Metric", "Value"},
		Rows: [][]string{
			{"Pages", strconv.Itoa(st.Count)},
			{"Successful (2xx)", strconv.Itoa(st.SuccessCount)},
			{"Revisits (304)", strconv.Itoa(st.RevisitCount)},
			{"Errors", strconv.Itoa(st.ErrorCount)},
			{"Success rate", strconv.Itoa(st.SuccessRatePercent) + "%"},
			{"Total size", humanize.IBytes(uint64(max(st.TotalSize, 0)))},
			{"Average size", humanize.IBytes(uint64(max(st.AverageSize, 0)))},
		},
	})
	md.PlainText("")

	switch {
	case st.Count == 0:
		md.Note("No results were collected.")
	case st.ErrorCount > st.SuccessCount:
		md.Warningf("%d of %d pages failed.", st.ErrorCount, st.Count)
	}
	md.PlainText("")
}

func writeStatusClasses(md *markdown.Markdown, st stats.Stats) {
	if st.Count == 0 {
		return
	}
	md.H2("Status Codes")
	md.PlainText("")
	var rows [][]string
	chart := piechart.NewPieChart(io.Discard, piechart.WithTitle("Status Codes"), piechart.WithShowData(true))
	for _, class := range statusClassOrder {
		n := st.StatusClasses[class]
		if n == 0 {
			continue
		}
		rows = append(rows, []string{string(class), strconv.Itoa(n)})
		chart.LabelAndIntValue(string(class), uint64(n))
	}
	md.Table(markdown.TableSet{Header: []string{"Class", "Count"}, Rows: rows})
	md.PlainText("")
	md.CodeBlocks(markdown.SyntaxHighlightMermaid, chart.String())
	md.PlainText("")
}

func writeContentTypes(md *markdown.Markdown, st stats.Stats) {
	if len(st.ContentTypes) == 0 {
		return
	}
	md.H2("Content Types")
	md.PlainText("")
	types := make([]string, 0, len(st.ContentTypes))
	for t := range st.ContentTypes {
		types = append(types, t)
	}
	// Largest first, name breaks ties.
	slices.SortFunc(types, func(a, b string) int {
		if d := st.ContentTypes[b] - st.ContentTypes[a]; d != 0 {
			return d
		}
		if a < b {
			return -1
		}
		if a > b {
			return 1
		}
		return 0
	})
	rows := make([][]string, 0, len(types))
	chart := piechart.NewPieChart(io.Discard, piechart.WithTitle("Content Types"), piechart.WithShowData(true))
	for _, t := range types {
		n := st.ContentTypes[t]
		rows = append(rows, []string{t, strconv.Itoa(n)})
		chart.LabelAndIntValue(t, uint64(n))
	}
	md.Table(markdown.TableSet{Header: []string{"Type", "Count"}, Rows: rows})
	md.PlainText("")
	md.CodeBlocks(markdown.SyntaxHighlightMermaid, chart.String())
	md.PlainText("")
}

func orDash(s string) string {
	if s == "" {
		return "-"
	}
	return s
}
