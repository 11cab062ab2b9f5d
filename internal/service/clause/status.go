package clause

import (
	"errors"
	"fmt"
)

// Status represents the lifecycle state of a transcription session.
type Status int

const (
	// StatusIdle - Session created, capture not started.
	StatusIdle Status = iota
	// StatusStarting - Upstream connection being established.
	StatusStarting
	// StatusStreaming - Partials are flowing; pulse timer is live.
	StatusStreaming
	// StatusStopped - Session ended normally. Terminal.
	StatusStopped
	// StatusError - Session ended on an upstream error. Terminal.
	StatusError
)

// String returns the string representation of the status.
func (s Status) String() string {
	switch s {
	case StatusIdle:
		return "IDLE"
	case StatusStarting:
		return "STARTING"
	case StatusStreaming:
		return "STREAMING"
	case StatusStopped:
		return "STOPPED"
	case StatusError:
		return "ERROR"
	default:
		return fmt.Sprintf("UNKNOWN(%d)", s)
	}
}

// IsTerminal returns true if the status is terminal (STOPPED or ERROR).
func (s Status) IsTerminal() bool {
	return s == StatusStopped || s == StatusError
}

// ErrBadTransition is returned for status transitions outside the table.
var ErrBadTransition = errors.New("invalid session status transition")

// Transitions:
//
//	IDLE → STARTING → STREAMING → STOPPED
//	  │        │           │
//	  └────────┴───────────┴──→ ERROR
//
// Terminal states accept nothing further; a new Session (or Reset) is
// required to stream again.
func (s Status) canTransition(to Status) bool {
	if s.IsTerminal() {
		return false
	}
	switch to {
	case StatusStarting:
		return s == StatusIdle
	case StatusStreaming:
		return s == StatusStarting || s == StatusIdle
	case StatusStopped, StatusError:
		return true
	default:
		return false
	}
}
