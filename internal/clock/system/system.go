// Package system is the wall clock used outside tests.
package system

import (
	"time"

	"github.com/JakeFAU/crawl-console/internal/crawler"
)

// Clock reads UTC wall time at millisecond resolution, the resolution the
// engine reports durations and result timestamps in.
type Clock struct{}

var _ crawler.Clock = (*Clock)(nil)

// New returns a Clock.
func New() *Clock {
	return &Clock{}
}

// Now returns the current time.
func (*Clock) Now() time.Time {
	return time.Now().UTC().Truncate(time.Millisecond)
}
