package pipeline

import (
	"cmp"
	"fmt"
	"slices"
	"strings"

	"github.com/JakeFAU/crawl-console/internal/crawler"
)

// Direction is a sort direction.
type Direction string

// Sort directions.
const (
	Asc  Direction = "asc"
	Desc Direction = "desc"
)

// SortSpec orders the filtered results.
type SortSpec struct {
	Field     string    `json:"field"`
	Direction Direction `json:"direction"`
}

// DefaultSort orders by ingestion index, ascending.
func DefaultSort() SortSpec {
	return SortSpec{Field: crawler.FieldIndex, Direction: Asc}
}

// Validate checks the field and direction.
func (s SortSpec) Validate() error {
	if !crawler.IsKnownField(s.Field) {
		return &crawler.ValidationError{Field: "sortField", Reason: fmt.Sprintf("unknown field %q", s.Field)}
	}
	if s.Direction != Asc && s.Direction != Desc {
		return &crawler.ValidationError{Field: "sortDirection", Reason: fmt.Sprintf("want asc or desc, got %q", s.Direction)}
	}
	return nil
}

// compare orders two records by the sort field; numeric fields treat
// nulls as 0 and text fields compare lowercased with nulls empty.
func (s SortSpec) compare(a, b crawler.CrawlResult) int {
	var c int
	if crawler.IsNumericField(s.Field) {
		c = cmp.Compare(a.Number(s.Field), b.Number(s.Field))
	} else {
		c = strings.Compare(strings.ToLower(a.Text(s.Field)), strings.ToLower(b.Text(s.Field)))
	}
	if s.Direction == Desc {
		return -c
	}
	return c
}

func sortResults(results []crawler.CrawlResult, spec SortSpec) {
	slices.SortStableFunc(results, spec.compare)
}
