// Package clause owns the per-session clause state machine: it consumes
// raw partial-transcript snapshots, accumulates the in-progress clause,
// and decides when the clause is done. Exactly one finalize event is
// emitted per logical utterance boundary.
package clause

import "time"

// Reason is the trigger that finalized a clause.
type Reason string

const (
	// ReasonBoundary - the clause ended at a detected sentence boundary.
	ReasonBoundary Reason = "boundary"
	// ReasonSilence - the linger timer expired with a viable clause.
	ReasonSilence Reason = "silence-timeout"
	// ReasonRebase - the upstream hypothesis restarted and the old
	// buffer was complete enough to keep.
	ReasonRebase Reason = "rebase-flush"
	// ReasonForced - session stop or an explicit finalize request.
	ReasonForced Reason = "forced"
)

// FinalizeEvent is an immutable record of a finished clause, ready to
// translate. Order is a per-session logical emission order, not a
// transport sequence.
type FinalizeEvent struct {
	Text   string
	Order  uint64
	Reason Reason
	At     time.Time
}

// Sink receives session output. Implementations must be safe to call
// from timer callbacks.
type Sink interface {
	// CaptionUpdate surfaces the freshest interim snapshot for operator
	// display. Called on every partial, independent of finalize
	// decisions.
	CaptionUpdate(text string)

	// Finalize hands a finished clause downstream. Called at most once
	// per OnPartial invocation.
	Finalize(ev FinalizeEvent)
}
