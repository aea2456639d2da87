package crawler

import (
	"fmt"
	"time"
)

// Status is the engine's answer to GET /api/status.
type Status struct {
	Running        bool  `json:"running"`
	Paused         bool  `json:"paused"`
	TotalTasks     int   `json:"totalTasks"`
	CompletedTasks int   `json:"completedTasks"`
	DurationMs     int64 `json:"duration"`
}

// Active reports whether the engine still holds a session (running or paused).
func (s Status) Active() bool {
	return s.Running || s.Paused
}

// ProgressPercent returns completed/total as a whole percentage, 0 when no
// tasks are known yet.
func (s Status) ProgressPercent() int {
	if s.TotalTasks <= 0 {
		return 0
	}
	pct := s.CompletedTasks * 100 / s.TotalTasks
	if pct > 100 {
		return 100
	}
	return pct
}

// Duration converts the engine-reported duration to a time.Duration.
func (s Status) Duration() time.Duration {
	return time.Duration(s.DurationMs) * time.Millisecond
}

// StatusClass is a coarse HTTP status bucket such as "2xx".
type StatusClass string

// Status classes used for filtering, graph colouring and stats breakdowns.
const (
	Status1xx     StatusClass = "1xx"
	Status2xx     StatusClass = "2xx"
	Status3xx     StatusClass = "3xx"
	Status4xx     StatusClass = "4xx"
	Status5xx     StatusClass = "5xx"
	StatusUnknown StatusClass = "unknown"
)

// ClassifyCode buckets a status code into [100n, 100n+100). Zero and negative
// codes are unknown.
func ClassifyCode(code int) StatusClass {
	if code <= 0 {
		return StatusUnknown
	}
	return StatusClass(fmt.Sprintf("%dxx", code/100))
}

// ClassifyStatus buckets an optional status code; nil is unknown.
func ClassifyStatus(code *int) StatusClass {
	if code == nil {
		return StatusUnknown
	}
	return ClassifyCode(*code)
}
