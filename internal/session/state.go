package session

import (
	"time"

	"github.com/JakeFAU/crawl-console/internal/crawler"
)

// State is the controller's lifecycle state.
type State string

// Lifecycle states. Completed is entered when the engine reports neither
// running nor paused while the session is running.
const (
	StateIdle       State = "idle"
	StateRunning    State = "running"
	StatePaused     State = "paused"
	StateTerminated State = "terminated"
	StateCompleted  State = "completed"
)

// Finished reports whether a session in this state has ended.
func (s State) Finished() bool {
	return s == StateTerminated || s == StateCompleted
}

// Snapshot is a read-only view of the controller.
type Snapshot struct {
	State           State               `json:"state"`
	Busy            bool                `json:"busy"`
	SessionID       string              `json:"sessionId,omitempty"`
	Config          crawler.CrawlConfig `json:"config"`
	StartedAt       *time.Time          `json:"startedAt,omitempty"`
	LastDurationMs  int64               `json:"lastDurationMs"`
	ServerStatus    *crawler.Status     `json:"serverStatus,omitempty"`
	ProgressPercent int                 `json:"progressPercent"`
	LastPollAt      *time.Time          `json:"lastPollAt,omitempty"`
	LastPollError   string              `json:"lastPollError,omitempty"`
}
