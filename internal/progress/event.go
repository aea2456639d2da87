// Package progress defines the session events emitted by the controller.
package progress

import (
	"errors"
	"fmt"
	"time"
)

// Stage denotes the type of milestone represented by an Event.
type Stage string

// Supported progress stages.
const (
	StageSessionStart     Stage = "SESSION_START"
	StageSessionResume    Stage = "SESSION_RESUME"
	StageSessionPause     Stage = "SESSION_PAUSE"
	StageSessionTerminate Stage = "SESSION_TERMINATE"
	StageSessionComplete  Stage = "SESSION_COMPLETE"
	StageSessionReset     Stage = "SESSION_RESET"
	StagePollOK           Stage = "POLL_OK"
	StagePollError        Stage = "POLL_ERROR"
)

// Event captures one session milestone or poll outcome.
type Event struct {
	// SessionID identifies the crawl session (UUIDv7 string).
	SessionID string
	// TS is the UTC timestamp recorded by the emitter.
	TS time.Time
	// Stage denotes which milestone occurred.
	Stage Stage
	// SeedURL is set on start events.
	SeedURL string
	// Results, Success, Errors and Bytes describe the latest snapshot.
	Results int
	Success int
	Errors  int
	Bytes   int64
	// CompletedTasks and TotalTasks mirror the engine's progress counters.
	CompletedTasks int
	TotalTasks     int
	// Dur is the session runtime reported by the engine.
	Dur time.Duration
	// Note carries low-volume context such as error text.
	Note string
}

// Validate performs coarse validation on Event payloads.
func (e Event) Validate() error {
	if e.SessionID == "" {
		return errors.New("session id is required")
	}
	if e.TS.IsZero() {
		return errors.New("timestamp is required")
	}
	switch e.Stage {
	case StageSessionStart:
		if e.SeedURL == "" {
			return errors.New("session start requires seed url")
		}
	case StageSessionResume, StageSessionPause, StageSessionTerminate,
		StageSessionComplete, StageSessionReset, StagePollOK, StagePollError:
	default:
		return fmt.Errorf("unknown stage %q", e.Stage)
	}
	if e.Dur < 0 {
		return errors.New("duration must be >= 0")
	}
	if e.Results < 0 || e.Bytes < 0 {
		return errors.New("counters must be >= 0")
	}
	return nil
}

// Terminal reports whether the stage ends a session.
func (s Stage) Terminal() bool {
	return s == StageSessionComplete || s == StageSessionTerminate || s == StageSessionReset
}
