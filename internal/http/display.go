package http

import (
	"sync"
	"time"
)

const committedHistory = 20

// displayState mirrors what a caption consumer would render: the
// freshest interim line plus a short history of committed lines. The
// reconciler drives it through the reconcile.Sink interface.
type displayState struct {
	mu        sync.Mutex
	interim   string
	committed []committedLine
	updatedAt time.Time
}

type committedLine struct {
	Text        string    `json:"text"`
	CommittedAt time.Time `json:"committedAt"`
}

// displaySnapshot is the JSON body served by GET /v1/display.
type displaySnapshot struct {
	Interim   string          `json:"interim"`
	Committed []committedLine `json:"committed"`
	UpdatedAt time.Time       `json:"updatedAt"`
}

func newDisplayState() *displayState {
	return &displayState{}
}

// Display replaces the interim line. Called for every accepted segment.
func (d *displayState) Display(text string) {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.interim = text
	d.updatedAt = time.Now().UTC()
}

// Dispatch appends a committed line, keeping a bounded history.
func (d *displayState) Dispatch(text string) {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.committed = append(d.committed, committedLine{Text: text, CommittedAt: time.Now().UTC()})
	if len(d.committed) > committedHistory {
		d.committed = d.committed[len(d.committed)-committedHistory:]
	}
	d.updatedAt = time.Now().UTC()
}

// ClearInterim blanks the interim line after a commit.
func (d *displayState) ClearInterim() {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.interim = ""
	d.updatedAt = time.Now().UTC()
}

func (d *displayState) snapshot() displaySnapshot {
	d.mu.Lock()
	defer d.mu.Unlock()
	out := displaySnapshot{
		Interim:   d.interim,
		Committed: make([]committedLine, len(d.committed)),
		UpdatedAt: d.updatedAt,
	}
	copy(out.Committed, d.committed)
	return out
}
