package crawler

import (
	"fmt"
	"strings"
)

// Crawl defaults mirror the engine's own fallbacks.
const (
	DefaultMaxDepth  = 2
	DefaultThreads   = 4
	DefaultDelayMs   = 0
	DefaultUserAgent = "MultiCrawlerBot/1.0"
	DefaultTimeoutMs = 10000
)

// CrawlConfig is the payload of POST /api/start. It is used both for fresh
// starts and for resuming a paused crawl.
type CrawlConfig struct {
	SeedURL       string `json:"seedUrl" mapstructure:"seed_url"`
	MaxDepth      int    `json:"maxDepth" mapstructure:"max_depth"`
	Threads       int    `json:"threads" mapstructure:"threads"`
	DelayMs       int    `json:"delay" mapstructure:"delay_ms"`
	UserAgent     string `json:"userAgent" mapstructure:"user_agent"`
	FilterPattern string `json:"filter" mapstructure:"filter"`
	TimeoutMs     int    `json:"timeout" mapstructure:"timeout_ms"`
}

// DefaultCrawlConfig returns the configuration a reset console starts from.
func DefaultCrawlConfig() CrawlConfig {
	return CrawlConfig{
		MaxDepth:  DefaultMaxDepth,
		Threads:   DefaultThreads,
		DelayMs:   DefaultDelayMs,
		UserAgent: DefaultUserAgent,
		TimeoutMs: DefaultTimeoutMs,
	}
}

// Validate checks the configuration before any command is issued.
func (c CrawlConfig) Validate() error {
	if strings.TrimSpace(c.SeedURL) == "" {
		return &ValidationError{Field: "seedUrl", Reason: "seed URL is required"}
	}
	if c.MaxDepth < 0 {
		return &ValidationError{Field: "maxDepth", Reason: fmt.Sprintf("must be >= 0, got %d", c.MaxDepth)}
	}
	if c.Threads < 1 {
		return &ValidationError{Field: "threads", Reason: fmt.Sprintf("must be >= 1, got %d", c.Threads)}
	}
	if c.DelayMs < 0 {
		return &ValidationError{Field: "delay", Reason: fmt.Sprintf("must be >= 0, got %d", c.DelayMs)}
	}
	if c.TimeoutMs < 0 {
		return &ValidationError{Field: "timeout", Reason: fmt.Sprintf("must be >= 0, got %d", c.TimeoutMs)}
	}
	return nil
}
