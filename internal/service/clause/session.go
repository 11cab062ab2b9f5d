package clause

import (
	"regexp"
	"strings"
	"sync"
	"time"
	"unicode/utf8"

	"github.com/rs/zerolog"

	"github.com/Nick-Bae/deepgram/internal/clock"
	"github.com/Nick-Bae/deepgram/internal/observability/logging"
	"github.com/Nick-Bae/deepgram/internal/observability/metrics"
	"github.com/Nick-Bae/deepgram/internal/service/boundary"
)

// Config tunes one session's segmentation behavior.
type Config struct {
	SourceLang string

	// Linger is the silence debounce before a non-boundary clause
	// finalizes. Zero falls back to 300ms.
	Linger time.Duration

	// MinClauseRunes is the minimum clause length for a silence
	// finalize. Zero falls back to 10.
	MinClauseRunes int

	// RebaseFlushMargin is added to MinClauseRunes when deciding
	// whether a rebase flushes the old buffer or drops it.
	RebaseFlushMargin int

	// CJKPendingHold replaces Linger when the source language writes
	// without spaces (ko, zh, ja) and the buffer does not yet read as a
	// complete sentence. Zero falls back to 600ms.
	CJKPendingHold time.Duration

	// IntroHoldPatterns are clause-leading phrases withheld from the
	// silence finalize; they typically precede a pause mid-thought.
	IntroHoldPatterns []string

	// PulseInterval is the cadence of the periodic upstream
	// finalize-now check. Zero falls back to 2600ms.
	PulseInterval time.Duration

	// PulseThrottle is the fraction of PulseInterval that must elapse
	// between pulses. Zero falls back to 0.8.
	PulseThrottle float64
}

func (c Config) withDefaults() Config {
	if c.Linger <= 0 {
		c.Linger = 300 * time.Millisecond
	}
	if c.MinClauseRunes <= 0 {
		c.MinClauseRunes = 10
	}
	if c.CJKPendingHold <= 0 {
		c.CJKPendingHold = 600 * time.Millisecond
	}
	if c.RebaseFlushMargin < 0 {
		c.RebaseFlushMargin = 0
	}
	if c.PulseInterval <= 0 {
		c.PulseInterval = 2600 * time.Millisecond
	}
	if c.PulseThrottle <= 0 || c.PulseThrottle > 1 {
		c.PulseThrottle = 0.8
	}
	return c
}

// Session is the clause accumulator and finalization scheduler for one
// active transcription stream. All mutation happens under one lock;
// timer callbacks are guarded by a generation token so a stale timer
// firing after Reset or Stop is a no-op.
type Session struct {
	mu sync.Mutex

	id     string
	cfg    Config
	det    *boundary.Detector
	clk    clock.Clock
	sink   Sink
	pulse  *Pulse
	format func(string) string
	hold   []*regexp.Regexp
	log    zerolog.Logger
	m      *metrics.Metrics

	status      Status
	gen         uint64
	buf         string
	lastInterim string
	order       uint64
	linger      clock.Timer
	pulseTimer  clock.Timer
	startedAt   time.Time
}

// NewSession creates a session in IDLE status. pulse may be nil when no
// upstream producer accepts finalize nudges; format may be nil to
// surface captions verbatim.
func NewSession(id string, cfg Config, det *boundary.Detector, clk clock.Clock, sink Sink, pulse *Pulse) *Session {
	cfg = cfg.withDefaults()
	s := &Session{
		id:     id,
		cfg:    cfg,
		det:    det,
		clk:    clk,
		sink:   sink,
		pulse:  pulse,
		log:    logging.WithComponent("clause").With().Str("sessionId", id).Logger(),
		m:      metrics.DefaultMetrics,
		status: StatusIdle,
	}
	for _, p := range cfg.IntroHoldPatterns {
		p = strings.TrimSpace(p)
		if p == "" {
			continue
		}
		s.hold = append(s.hold, regexp.MustCompile(`(?i)^`+regexp.QuoteMeta(p)))
	}
	return s
}

// SetCaptionFormatter installs a formatter applied to interim snapshots
// before they are surfaced as the live caption (e.g. Korean spacing).
func (s *Session) SetCaptionFormatter(f func(string) string) {
	s.mu.Lock()
	s.format = f
	s.mu.Unlock()
}

// ID returns the session id.
func (s *Session) ID() string { return s.id }

// Status returns the current lifecycle status.
func (s *Session) Status() Status {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.status
}

// Start moves the session to STREAMING and arms the periodic upstream
// pulse check.
func (s *Session) Start() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if !s.status.canTransition(StatusStreaming) {
		return ErrBadTransition
	}
	s.status = StatusStreaming
	s.startedAt = s.clk.Now()
	s.m.RecordSessionStart()
	s.armPulseLocked()
	s.log.Info().Msg("session streaming")
	return nil
}

// Stop ends the session. Any lingering clause buffer is force-finalized
// before state is cleared, so the tail of an utterance is never lost.
func (s *Session) Stop() {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.status.IsTerminal() {
		return
	}
	if cur := strings.TrimSpace(s.buf); cur != "" {
		s.emitLocked(cur, ReasonForced)
	}
	s.status = StatusStopped
	s.clearLocked()
	s.m.RecordSessionEnd(s.clk.Now().Sub(s.startedAt).Seconds())
	s.log.Info().Msg("session stopped")
}

// Fail marks the session errored. The buffer is discarded, not flushed:
// a hypothesis that died mid-error is not worth broadcasting.
func (s *Session) Fail(err error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.status.IsTerminal() {
		return
	}
	s.status = StatusError
	s.clearLocked()
	s.log.Warn().Err(err).Msg("session failed")
}

// Reset returns the session to IDLE with all buffers, counters, and
// timers cleared. Stale timers from before the reset are no-ops.
func (s *Session) Reset() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.status = StatusIdle
	s.order = 0
	s.clearLocked()
	if s.pulse != nil {
		s.pulse.Reset()
	}
	s.log.Debug().Msg("session reset")
}

// clearLocked bumps the generation token and empties all mutable state.
func (s *Session) clearLocked() {
	s.gen++
	s.buf = ""
	s.lastInterim = ""
	if s.linger != nil {
		s.linger.Stop()
		s.linger = nil
	}
	if s.pulseTimer != nil {
		s.pulseTimer.Stop()
		s.pulseTimer = nil
	}
}

// OnPartial consumes one partial-transcript snapshot. It computes the
// incremental delta, detects rebases, and emits at most one finalize
// event per call; rebase-flush and boundary-finalize are mutually
// exclusive within a single invocation.
func (s *Session) OnPartial(text string) {
	s.mu.Lock()
	defer s.mu.Unlock()

	trimmed := strings.TrimSpace(text)
	if trimmed == "" {
		return
	}
	s.m.PartialsReceived.Inc()

	var delta string
	flushed := false
	switch {
	case s.lastInterim == "" || strings.HasPrefix(trimmed, s.lastInterim):
		// Growing transcript: the delta is the new suffix.
		delta = strings.TrimPrefix(trimmed, s.lastInterim)
	default:
		// The producer rebased its hypothesis. Keep the old buffer if
		// it already looks complete, drop it otherwise.
		s.m.Rebases.Inc()
		cur := strings.TrimSpace(s.buf)
		if cur != "" && s.looksCompleteLocked(cur) {
			s.emitLocked(cur, ReasonRebase)
			flushed = true
		} else if cur != "" {
			s.log.Debug().Str("dropped", cur).Msg("rebase dropped short buffer")
		}
		s.buf = ""
		delta = trimmed
	}

	s.buf += delta

	if cur := strings.TrimSpace(s.buf); cur != "" {
		if !flushed && s.det.IsBoundary(cur, s.cfg.SourceLang) {
			s.emitLocked(cur, ReasonBoundary)
		} else {
			s.armLingerLocked()
		}
	}

	s.lastInterim = trimmed
	s.surfaceCaptionLocked(trimmed)
}

// ForceFlush handles an explicit finalize request from the producer
// side. Clauses still below the rebase-flush threshold are held for one
// more linger window instead of being committed half-formed.
func (s *Session) ForceFlush() {
	s.mu.Lock()
	defer s.mu.Unlock()
	cur := strings.TrimSpace(s.buf)
	if cur == "" {
		return
	}
	if !s.looksCompleteLocked(cur) {
		s.armLingerLocked()
		return
	}
	s.emitLocked(cur, ReasonForced)
}

// Buffer returns the in-progress clause text.
func (s *Session) Buffer() string {
	s.mu.Lock()
	defer s.mu.Unlock()
	return strings.TrimSpace(s.buf)
}

// looksCompleteLocked reports whether text can stand alone as a clause:
// it either passes the boundary test or is long enough that dropping it
// would lose real speech.
func (s *Session) looksCompleteLocked(text string) bool {
	if s.det.IsBoundary(text, s.cfg.SourceLang) {
		return true
	}
	return utf8.RuneCountInString(text) >= s.cfg.MinClauseRunes+s.cfg.RebaseFlushMargin
}

func (s *Session) surfaceCaptionLocked(text string) {
	if s.format != nil {
		text = s.format(text)
	}
	s.sink.CaptionUpdate(text)
}

func (s *Session) emitLocked(text string, reason Reason) {
	s.order++
	ev := FinalizeEvent{
		Text:   text,
		Order:  s.order,
		Reason: reason,
		At:     s.clk.Now(),
	}
	s.buf = ""
	if s.linger != nil {
		s.linger.Stop()
		s.linger = nil
	}
	s.m.RecordFinalize(string(reason), utf8.RuneCountInString(text))
	s.log.Debug().Uint64("order", ev.Order).Str("reason", string(reason)).Str("text", text).Msg("finalize")
	s.sink.Finalize(ev)
}

// armLingerLocked (re)arms the silence debounce: each call cancels and
// replaces any pending timer. Space-free CJK sources get the longer
// hold while the buffer still reads as an unfinished sentence, since
// interim rewrites arrive more aggressively for those languages.
func (s *Session) armLingerLocked() {
	if s.linger != nil {
		s.linger.Stop()
	}
	d := s.cfg.Linger
	if cjkSource(s.cfg.SourceLang) && !s.det.IsBoundary(strings.TrimSpace(s.buf), s.cfg.SourceLang) {
		d = s.cfg.CJKPendingHold
	}
	gen := s.gen
	s.linger = s.clk.AfterFunc(d, func() { s.onLinger(gen) })
}

func cjkSource(lang string) bool {
	l := strings.ToLower(lang)
	return strings.HasPrefix(l, "ko") || strings.HasPrefix(l, "zh") || strings.HasPrefix(l, "ja")
}

func (s *Session) onLinger(gen uint64) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if gen != s.gen {
		return
	}
	s.linger = nil

	cur := strings.TrimSpace(s.buf)
	if cur == "" {
		return
	}
	if s.heldByIntroLocked(cur) {
		// False-boundary trap: phrases like these precede a pause
		// mid-thought. Wait for the speaker to continue.
		s.m.FinalizeWithheld.WithLabelValues("intro-hold").Inc()
		return
	}
	if utf8.RuneCountInString(cur) < s.cfg.MinClauseRunes && !s.det.IsBoundary(cur, s.cfg.SourceLang) {
		// Too short to commit; the next partial re-arms the timer.
		s.m.FinalizeWithheld.WithLabelValues("too-short").Inc()
		return
	}
	s.emitLocked(cur, ReasonSilence)
}

// heldByIntroLocked reports whether text is still just an intro phrase:
// it starts with a configured pattern and whatever follows the match is
// below the minimum clause length. Once real content accumulates behind
// the intro, the clause finalizes normally.
func (s *Session) heldByIntroLocked(text string) bool {
	for _, re := range s.hold {
		loc := re.FindStringIndex(text)
		if loc == nil {
			continue
		}
		rest := strings.TrimSpace(text[loc[1]:])
		if utf8.RuneCountInString(rest) < s.cfg.MinClauseRunes {
			return true
		}
	}
	return false
}

// armPulseLocked schedules the periodic upstream finalize-now check.
func (s *Session) armPulseLocked() {
	gen := s.gen
	s.pulseTimer = s.clk.AfterFunc(s.cfg.PulseInterval, func() { s.onPulseTick(gen) })
}

func (s *Session) onPulseTick(gen uint64) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if gen != s.gen || s.status != StatusStreaming {
		return
	}
	cur := strings.TrimSpace(s.buf)
	if cur != "" && s.pulse != nil &&
		(s.det.IsBoundary(cur, s.cfg.SourceLang) || utf8.RuneCountInString(cur) >= s.cfg.MinClauseRunes) {
		if s.pulse.Trigger() {
			s.m.UpstreamPulses.Inc()
			s.log.Debug().Str("buffer", cur).Msg("upstream finalize pulse")
		}
	}
	s.armPulseLocked()
}
