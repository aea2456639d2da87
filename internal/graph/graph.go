// Package graph builds the node/edge model of a crawl from its results and
// their referrers.
package graph

import (
	"fmt"
	"net/url"

	lru "github.com/hashicorp/golang-lru/v2"

	"github.com/JakeFAU/crawl-console/internal/crawler"
)

// DefaultDomainCacheSize bounds the memoized URL-to-host lookups.
const DefaultDomainCacheSize = 4096

// Node is one distinct URL.
type Node struct {
	ID          int                 `json:"id"`
	URL         string              `json:"url"`
	Domain      string              `json:"domain"`
	StatusClass crawler.StatusClass `json:"statusClass"`
}

// Edge links a referrer node to the node it led to.
type Edge struct {
	Source int `json:"source"`
	Target int `json:"target"`
}

// Model is a freshly built graph; node IDs are positions in Nodes.
type Model struct {
	Nodes []Node `json:"nodes"`
	Edges []Edge `json:"edges"`
}

// Builder turns result snapshots into graph models. It is safe for
// concurrent use.
type Builder struct {
	domains *lru.Cache[string, string]
}

// NewBuilder creates a Builder whose host cache holds up to cacheSize URLs.
func NewBuilder(cacheSize int) (*Builder, error) {
	if cacheSize <= 0 {
		cacheSize = DefaultDomainCacheSize
	}
	cache, err := lru.New[string, string](cacheSize)
	if err != nil {
		return nil, fmt.Errorf("creating domain cache: %w", err)
	}
	return &Builder{domains: cache}, nil
}

// Build walks results in ingestion order. The first sighting of a URL adds a
// node; a referrer not yet seen gets a placeholder node of unknown status
// that takes the real status if the referrer later shows up as a result.
// Each result with a referrer other than itself adds one edge.
func (b *Builder) Build(results []crawler.CrawlResult) Model {
	model := Model{
		Nodes: make([]Node, 0, len(results)),
		Edges: make([]Edge, 0, len(results)),
	}
	ids := make(map[string]int, len(results))
	placeholder := make(map[int]bool)

	nodeFor := func(rawURL string, class crawler.StatusClass) int {
		if id, ok := ids[rawURL]; ok {
			return id
		}
		id := len(model.Nodes)
		ids[rawURL] = id
		model.Nodes = append(model.Nodes, Node{
			ID:          id,
			URL:         rawURL,
			Domain:      b.Domain(rawURL),
			StatusClass: class,
		})
		return id
	}

	for _, r := range results {
		class := crawler.ClassifyStatus(r.StatusCode)
		id, seen := ids[r.URL]
		if !seen {
			id = nodeFor(r.URL, class)
		} else if placeholder[id] {
			model.Nodes[id].StatusClass = class
			delete(placeholder, id)
		}

		ref := r.RefererURL()
		if ref == "" || ref == r.URL {
			continue
		}
		refID, known := ids[ref]
		if !known {
			refID = nodeFor(ref, crawler.StatusUnknown)
			placeholder[refID] = true
		}
		model.Edges = append(model.Edges, Edge{Source: refID, Target: id})
	}
	return model
}

// Domain returns the host of rawURL, or rawURL itself when it has none.
func (b *Builder) Domain(rawURL string) string {
	if host, ok := b.domains.Get(rawURL); ok {
		return host
	}
	host := rawURL
	if u, err := url.Parse(rawURL); err == nil && u.Hostname() != "" {
		host = u.Hostname()
	}
	b.domains.Add(rawURL, host)
	return host
}
