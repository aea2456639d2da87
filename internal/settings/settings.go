// Package settings persists the dashboard's user preferences as one JSON
// blob under a fixed namespace key.
package settings

import (
	"context"
	"encoding/json"
	"fmt"
	"path/filepath"

	"github.com/adrg/xdg"
	"github.com/tidwall/gjson"

	"github.com/JakeFAU/crawl-console/internal/crawler"
)

// Namespace is the key the settings blob is stored under.
const Namespace = "multicrawler-settings"

// Default values applied when nothing (or nothing usable) is stored.
const (
	DefaultResultsPerPage     = 10
	DefaultAutoRefreshSeconds = 1
	DefaultTheme              = "light"
)

var themes = map[string]bool{"light": true, "dark": true, "system": true}

// Settings are the persisted dashboard preferences. AutoRefreshSeconds is the
// poll interval; 0 disables periodic polling.
type Settings struct {
	ResultsPerPage     int    `json:"resultsPerPage"`
	AutoRefreshSeconds int    `json:"autoRefreshSeconds"`
	Theme              string `json:"theme"`
}

// Store loads and saves Settings.
type Store interface {
	// Load returns the stored settings, or Defaults when none are stored.
	Load(ctx context.Context) (Settings, error)
	// Save validates and persists s.
	Save(ctx context.Context, s Settings) error
}

// Defaults returns the out-of-the-box settings.
func Defaults() Settings {
	return Settings{
		ResultsPerPage:     DefaultResultsPerPage,
		AutoRefreshSeconds: DefaultAutoRefreshSeconds,
		Theme:              DefaultTheme,
	}
}

// Validate checks ranges and the theme name.
func (s Settings) Validate() error {
	if s.ResultsPerPage < 1 {
		return &crawler.ValidationError{Field: "resultsPerPage", Reason: fmt.Sprintf("must be >= 1, got %d", s.ResultsPerPage)}
	}
	if s.AutoRefreshSeconds < 0 {
		return &crawler.ValidationError{Field: "autoRefreshSeconds", Reason: fmt.Sprintf("must be >= 0, got %d", s.AutoRefreshSeconds)}
	}
	if !themes[s.Theme] {
		return &crawler.ValidationError{Field: "theme", Reason: fmt.Sprintf("unknown theme %q", s.Theme)}
	}
	return nil
}

// Decode reads a stored blob leniently: unusable or missing fields fall back
// to defaults, and the older "autoRefresh" key is honored.
func Decode(blob string) Settings {
	out := Defaults()
	if !gjson.Valid(blob) {
		return out
	}
	parsed := gjson.Parse(blob)
	if v := parsed.Get("resultsPerPage"); v.Type == gjson.Number && v.Int() > 0 {
		out.ResultsPerPage = int(v.Int())
	}
	refresh := parsed.Get("autoRefreshSeconds")
	if !refresh.Exists() {
		refresh = parsed.Get("autoRefresh")
	}
	if refresh.Type == gjson.Number && refresh.Int() >= 0 {
		out.AutoRefreshSeconds = int(refresh.Int())
	}
	if v := parsed.Get("theme"); v.Type == gjson.String && themes[v.String()] {
		out.Theme = v.String()
	}
	return out
}

// Encode renders settings as the stored blob.
func Encode(s Settings) (string, error) {
	b, err := json.Marshal(s)
	if err != nil {
		return "", fmt.Errorf("encode settings: %w", err)
	}
	return string(b), nil
}

// DefaultPath is the settings database location under the XDG data dir.
func DefaultPath() string {
	return filepath.Join(xdg.DataHome, "crawlctl", "settings.db")
}
