package clause

import (
	"sync"
	"time"

	"github.com/Nick-Bae/deepgram/internal/clock"
)

// Pulser delivers the zero-argument "finalize now" signal to the
// upstream transcription producer.
type Pulser interface {
	RequestFinalize()
}

// PulserFunc adapts a function to the Pulser interface.
type PulserFunc func()

func (f PulserFunc) RequestFinalize() { f() }

// Pulse rate-limits the upstream finalize nudge. Both the session's
// periodic check and the dispatch gate's send-final side effect route
// through the same throttle, so the producer is never pulsed more than
// once per throttle window.
type Pulse struct {
	mu       sync.Mutex
	clk      clock.Clock
	target   Pulser
	interval time.Duration
	throttle float64
	last     time.Time
}

// NewPulse wraps target with a throttle of throttle*interval.
func NewPulse(clk clock.Clock, target Pulser, interval time.Duration, throttle float64) *Pulse {
	return &Pulse{clk: clk, target: target, interval: interval, throttle: throttle}
}

// Trigger requests an upstream finalize unless one fired within the
// throttle window. Returns true if the signal was sent.
func (p *Pulse) Trigger() bool {
	p.mu.Lock()
	now := p.clk.Now()
	window := time.Duration(float64(p.interval) * p.throttle)
	if !p.last.IsZero() && now.Sub(p.last) < window {
		p.mu.Unlock()
		return false
	}
	p.last = now
	target := p.target
	p.mu.Unlock()

	if target != nil {
		target.RequestFinalize()
	}
	return true
}

// Reset clears the throttle state for a new session.
func (p *Pulse) Reset() {
	p.mu.Lock()
	p.last = time.Time{}
	p.mu.Unlock()
}
