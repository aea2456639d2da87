// Package stats aggregates counts and sizes over a result snapshot.
package stats

import (
	"math"
	"strings"

	"github.com/JakeFAU/crawl-console/internal/crawler"
)

// UnknownContentType labels results without a content type.
const UnknownContentType = "Unknown"

const statusNotModified = 304

// Stats summarises a full ingested result set.
type Stats struct {
	Count              int                         `json:"count"`
	SuccessCount       int                         `json:"successCount"`
	RevisitCount       int                         `json:"revisitCount"`
	ErrorCount         int                         `json:"errorCount"`
	TotalSize          int64                       `json:"totalSize"`
	AverageSize        float64                     `json:"averageSize"`
	SuccessRatePercent int                         `json:"successRate"`
	StatusClasses      map[crawler.StatusClass]int `json:"statusClasses"`
	ContentTypes       map[string]int              `json:"contentTypes"`
}

// Compute aggregates results. 2xx counts as success, 304 as a revisit and
// everything else (null status included) as an error.
func Compute(results []crawler.CrawlResult) Stats {
	s := Stats{
		Count:         len(results),
		StatusClasses: make(map[crawler.StatusClass]int),
		ContentTypes:  make(map[string]int),
	}
	for _, r := range results {
		code := r.Code()
		switch {
		case code >= 200 && code < 300:
			s.SuccessCount++
		case code == statusNotModified:
			s.RevisitCount++
		default:
			s.ErrorCount++
		}
		s.TotalSize += r.ContentSize
		s.StatusClasses[crawler.ClassifyStatus(r.StatusCode)]++
		s.ContentTypes[ContentCategory(r.ContentType)]++
	}
	if s.Count > 0 {
		s.AverageSize = float64(s.TotalSize) / float64(s.Count)
		s.SuccessRatePercent = int(math.Round(100 * float64(s.SuccessCount) / float64(s.Count)))
	}
	return s
}

// ContentCategory reduces a content type to its major type, e.g.
// "text/html; charset=utf-8" becomes "text".
func ContentCategory(contentType *string) string {
	if contentType == nil {
		return UnknownContentType
	}
	major, _, _ := strings.Cut(*contentType, ";")
	major, _, _ = strings.Cut(major, "/")
	major = strings.TrimSpace(major)
	if major == "" {
		return UnknownContentType
	}
	return major
}
