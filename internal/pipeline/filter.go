package pipeline

import (
	"fmt"
	"regexp"
	"strconv"
	"strings"

	"github.com/JakeFAU/crawl-console/internal/crawler"
)

// StatusAll matches every record regardless of status code.
const StatusAll = "all"

var bucketPattern = regexp.MustCompile(`^([1-9])xx$`)

// FilterCriteria narrows the ingested results.
type FilterCriteria struct {
	SearchText string `json:"searchText"`
	Status     string `json:"statusFilter"`
}

// statusMatcher is a parsed status filter.
type statusMatcher func(code *int) bool

// parseStatus turns "all", an exact code or an "Nxx" bucket into a matcher.
// A null status code never matches a code or bucket filter.
func parseStatus(filter string) (statusMatcher, error) {
	filter = strings.ToLower(strings.TrimSpace(filter))
	if filter == "" || filter == StatusAll {
		return func(*int) bool { return true }, nil
	}
	if m := bucketPattern.FindStringSubmatch(filter); m != nil {
		n, _ := strconv.Atoi(m[1])
		low, high := n*100, n*100+100
		return func(code *int) bool {
			return code != nil && *code >= low && *code < high
		}, nil
	}
	exact, err := strconv.Atoi(filter)
	if err != nil {
		return nil, &crawler.ValidationError{
			Field:  "statusFilter",
			Reason: fmt.Sprintf("want %q, a status code or an Nxx class, got %q", StatusAll, filter),
		}
	}
	return func(code *int) bool {
		return code != nil && *code == exact
	}, nil
}

// Validate reports whether the criteria can be applied.
func (f FilterCriteria) Validate() error {
	_, err := parseStatus(f.Status)
	return err
}

func (f FilterCriteria) matcher() (func(crawler.CrawlResult) bool, error) {
	status, err := parseStatus(f.Status)
	if err != nil {
		return nil, err
	}
	needle := strings.ToLower(f.SearchText)
	return func(r crawler.CrawlResult) bool {
		if needle != "" && !strings.Contains(strings.ToLower(r.URL), needle) {
			return false
		}
		return status(r.StatusCode)
	}, nil
}
