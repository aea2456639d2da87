// Package export serializes result snapshots into downloadable artifacts.
package export

import (
	"bytes"
	"fmt"
	"strings"

	"github.com/tidwall/pretty"
	"github.com/tidwall/sjson"

	"github.com/JakeFAU/crawl-console/internal/crawler"
	"github.com/JakeFAU/crawl-console/internal/hash/sha256"
)

// Format is an export format.
type Format string

// Supported formats. Excel is CSV content under the legacy spreadsheet MIME
// type.
const (
	FormatCSV   Format = "csv"
	FormatJSON  Format = "json"
	FormatExcel Format = "excel"
)

// Formats lists the supported formats.
var Formats = []Format{FormatCSV, FormatJSON, FormatExcel}

var prettyOptions = &pretty.Options{Indent: "  ", SortKeys: false}

// Artifact is a serialized export ready to download or archive.
type Artifact struct {
	Filename    string
	ContentType string
	Data        []byte
	// Checksum is the hex SHA-256 of Data.
	Checksum string
}

// ParseFormat validates a user-supplied format name.
func ParseFormat(s string) (Format, error) {
	f := Format(strings.ToLower(strings.TrimSpace(s)))
	switch f {
	case FormatCSV, FormatJSON, FormatExcel:
		return f, nil
	default:
		return "", &crawler.ValidationError{Field: "format", Reason: fmt.Sprintf("want csv, json or excel, got %q", s)}
	}
}

// Export serializes results. An empty result set yields crawler.ErrNoData.
func Export(results []crawler.CrawlResult, format Format) (Artifact, error) {
	if len(results) == 0 {
		return Artifact{}, crawler.ErrNoData
	}
	var artifact Artifact
	switch format {
	case FormatCSV:
		artifact = Artifact{Filename: "crawl-results.csv", ContentType: "text/csv", Data: CSV(results)}
	case FormatExcel:
		artifact = Artifact{Filename: "crawl-results.xls", ContentType: "application/vnd.ms-excel", Data: CSV(results)}
	case FormatJSON:
		data, err := JSON(results)
		if err != nil {
			return Artifact{}, err
		}
		artifact = Artifact{Filename: "crawl-results.json", ContentType: "application/json", Data: data}
	default:
		return Artifact{}, &crawler.ValidationError{Field: "format", Reason: fmt.Sprintf("unsupported format %q", format)}
	}
	artifact.Checksum = sha256.Sum(artifact.Data)
	return artifact, nil
}

// CSV renders results with the first record's keys as the header. Values
// containing a comma or a quote are quoted with inner quotes doubled; missing
// values are empty.
func CSV(results []crawler.CrawlResult) []byte {
	if len(results) == 0 {
		return nil
	}
	headers := results[0].Keys()

	var buf bytes.Buffer
	buf.WriteString(strings.Join(headers, ","))
	buf.WriteByte('\n')
	for _, r := range results {
		for i, h := range headers {
			if i > 0 {
				buf.WriteByte(',')
			}
			buf.WriteString(escape(r.Text(h)))
		}
		buf.WriteByte('\n')
	}
	return buf.Bytes()
}

func escape(v string) string {
	if !strings.ContainsAny(v, `,"`) {
		return v
	}
	return `"` + strings.ReplaceAll(v, `"`, `""`) + `"`
}

// JSON renders results as a two-space indented array, keeping each record's
// key order and including index.
func JSON(results []crawler.CrawlResult) ([]byte, error) {
	out := []byte("[]")
	for _, r := range results {
		raw, err := r.MarshalJSON()
		if err != nil {
			return nil, fmt.Errorf("encode result %d: %w", r.Index, err)
		}
		if out, err = sjson.SetRawBytes(out, "-1", raw); err != nil {
			return nil, fmt.Errorf("append result %d: %w", r.Index, err)
		}
	}
	return pretty.PrettyOptions(out, prettyOptions), nil
}
