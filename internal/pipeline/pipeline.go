// Package pipeline owns the ingested result sequence and its derived
// filtered, sorted and paged views.
package pipeline

import (
	"fmt"
	"slices"
	"sync"

	"github.com/JakeFAU/crawl-console/internal/crawler"
)

// DefaultPageSize matches the dashboard's default results-per-page setting.
const DefaultPageSize = 10

// PageInfo describes the current page of the filtered view.
type PageInfo struct {
	Page       int `json:"page"`
	PageSize   int `json:"pageSize"`
	TotalPages int `json:"totalPages"`
	TotalItems int `json:"totalItems"`
}

// View is a read-only description of the pipeline's state.
type View struct {
	Filter FilterCriteria `json:"filter"`
	Sort   SortSpec       `json:"sort"`
	Info   PageInfo       `json:"pageInfo"`
	Total  int            `json:"totalResults"`
}

// Pipeline holds the latest snapshot and derives views from it. It is safe
// for concurrent use by readers and the polling writer.
type Pipeline struct {
	mu       sync.RWMutex
	results  []crawler.CrawlResult
	filtered []crawler.CrawlResult
	filter   FilterCriteria
	match    func(crawler.CrawlResult) bool
	sort     SortSpec
	page     int
	pageSize int
}

// New creates an empty pipeline. A non-positive pageSize uses DefaultPageSize.
func New(pageSize int) *Pipeline {
	if pageSize <= 0 {
		pageSize = DefaultPageSize
	}
	p := &Pipeline{
		sort:     DefaultSort(),
		page:     1,
		pageSize: pageSize,
	}
	p.match, _ = p.filter.matcher()
	return p
}

// Ingest replaces the ingested sequence with a full snapshot, assigning
// index 1..N in arrival order, and re-derives the filtered view.
func (p *Pipeline) Ingest(results []crawler.CrawlResult) {
	indexed := make([]crawler.CrawlResult, len(results))
	for i, r := range results {
		indexed[i] = r.WithIndex(i + 1)
	}

	p.mu.Lock()
	defer p.mu.Unlock()
	p.results = indexed
	p.recomputeLocked()
	p.page = 1
}

// ApplyFilter sets new criteria and recomputes the filtered view.
func (p *Pipeline) ApplyFilter(criteria FilterCriteria) error {
	match, err := criteria.matcher()
	if err != nil {
		return err
	}

	p.mu.Lock()
	defer p.mu.Unlock()
	p.filter = criteria
	p.match = match
	p.recomputeLocked()
	p.page = 1
	return nil
}

// ApplySort sets the sort spec and recomputes the filtered view.
func (p *Pipeline) ApplySort(spec SortSpec) error {
	if err := spec.Validate(); err != nil {
		return err
	}

	p.mu.Lock()
	defer p.mu.Unlock()
	p.sort = spec
	p.recomputeLocked()
	p.page = 1
	return nil
}

// ToggleSort flips the direction when field is already the sort field and
// otherwise sorts ascending by field.
func (p *Pipeline) ToggleSort(field string) (SortSpec, error) {
	p.mu.RLock()
	next := SortSpec{Field: field, Direction: Asc}
	if p.sort.Field == field && p.sort.Direction == Asc {
		next.Direction = Desc
	}
	p.mu.RUnlock()

	if err := p.ApplySort(next); err != nil {
		return SortSpec{}, err
	}
	return next, nil
}

// SetPage moves to a page, clamped to the valid range.
func (p *Pipeline) SetPage(page int) PageInfo {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.page = clamp(page, 1, p.totalPagesLocked())
	return p.infoLocked()
}

// SetPageSize changes the page size and returns to page 1.
func (p *Pipeline) SetPageSize(size int) error {
	if size <= 0 {
		return &crawler.ValidationError{Field: "pageSize", Reason: fmt.Sprintf("must be > 0, got %d", size)}
	}
	p.mu.Lock()
	defer p.mu.Unlock()
	p.pageSize = size
	p.page = 1
	return nil
}

// Clear drops all results and restores the default filter, sort and page.
func (p *Pipeline) Clear() {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.results = nil
	p.filtered = nil
	p.filter = FilterCriteria{}
	p.match, _ = p.filter.matcher()
	p.sort = DefaultSort()
	p.page = 1
}

// Results returns a copy of the full ingested sequence.
func (p *Pipeline) Results() []crawler.CrawlResult {
	p.mu.RLock()
	defer p.mu.RUnlock()
	return slices.Clone(p.results)
}

// Filtered returns a copy of the filtered, sorted view.
func (p *Pipeline) Filtered() []crawler.CrawlResult {
	p.mu.RLock()
	defer p.mu.RUnlock()
	return slices.Clone(p.filtered)
}

// Len returns the size of the ingested sequence.
func (p *Pipeline) Len() int {
	p.mu.RLock()
	defer p.mu.RUnlock()
	return len(p.results)
}

// Page returns the current page of the filtered view.
func (p *Pipeline) Page() ([]crawler.CrawlResult, PageInfo) {
	p.mu.RLock()
	defer p.mu.RUnlock()
	info := p.infoLocked()
	start := (info.Page - 1) * info.PageSize
	if start >= len(p.filtered) {
		return []crawler.CrawlResult{}, info
	}
	end := min(start+info.PageSize, len(p.filtered))
	return slices.Clone(p.filtered[start:end]), info
}

// View describes the current filter, sort and paging.
func (p *Pipeline) View() View {
	p.mu.RLock()
	defer p.mu.RUnlock()
	return View{
		Filter: p.filter,
		Sort:   p.sort,
		Info:   p.infoLocked(),
		Total:  len(p.results),
	}
}

func (p *Pipeline) recomputeLocked() {
	filtered := make([]crawler.CrawlResult, 0, len(p.results))
	for _, r := range p.results {
		if p.match(r) {
			filtered = append(filtered, r)
		}
	}
	sortResults(filtered, p.sort)
	p.filtered = filtered
}

func (p *Pipeline) totalPagesLocked() int {
	return max(1, (len(p.filtered)+p.pageSize-1)/p.pageSize)
}

func (p *Pipeline) infoLocked() PageInfo {
	return PageInfo{
		Page:       p.page,
		PageSize:   p.pageSize,
		TotalPages: p.totalPagesLocked(),
		TotalItems: len(p.filtered),
	}
}

func clamp(v, lo, hi int) int {
	return max(lo, min(v, hi))
}
