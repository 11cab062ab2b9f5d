package clause

import (
	"sync"
	"testing"
	"time"

	"github.com/Nick-Bae/deepgram/internal/clock"
	"github.com/Nick-Bae/deepgram/internal/service/boundary"
)

// recordingSink captures captions and finalize events.
type recordingSink struct {
	mu       sync.Mutex
	captions []string
	finals   []FinalizeEvent
}

func (r *recordingSink) CaptionUpdate(text string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.captions = append(r.captions, text)
}

func (r *recordingSink) Finalize(ev FinalizeEvent) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.finals = append(r.finals, ev)
}

func (r *recordingSink) finalTexts() []string {
	r.mu.Lock()
	defer r.mu.Unlock()
	out := make([]string, len(r.finals))
	for i, ev := range r.finals {
		out[i] = ev.Text
	}
	return out
}

type countingPulser struct {
	mu    sync.Mutex
	count int
}

func (p *countingPulser) RequestFinalize() {
	p.mu.Lock()
	p.count++
	p.mu.Unlock()
}

func (p *countingPulser) pulses() int {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.count
}

func newTestSession(t *testing.T) (*Session, *recordingSink, *clock.Fake, *countingPulser) {
	t.Helper()
	clk := clock.NewFake()
	sink := &recordingSink{}
	pulser := &countingPulser{}
	cfg := Config{SourceLang: "ko", CJKPendingHold: 300 * time.Millisecond}
	pulse := NewPulse(clk, pulser, 2600*time.Millisecond, 0.8)
	s := NewSession("sess-1", cfg, boundary.Default(), clk, sink, pulse)
	return s, sink, clk, pulser
}

func TestOnPartial_PrefixGrowthAndBoundaryFinalize(t *testing.T) {
	s, sink, _, _ := newTestSession(t)

	s.OnPartial("오늘 하나")
	s.OnPartial("오늘 하나님은")
	s.OnPartial("오늘 하나님은 사랑이십니다.")

	finals := sink.finalTexts()
	if len(finals) != 1 {
		t.Fatalf("expected exactly one finalize, got %d: %v", len(finals), finals)
	}
	if finals[0] != "오늘 하나님은 사랑이십니다." {
		t.Errorf("unexpected finalized text %q", finals[0])
	}
	if sink.finals[0].Reason != ReasonBoundary {
		t.Errorf("expected boundary reason, got %s", sink.finals[0].Reason)
	}
	if got := s.Buffer(); got != "" {
		t.Errorf("expected cleared buffer, got %q", got)
	}
}

func TestOnPartial_RebaseAfterFinalize_NoFlush(t *testing.T) {
	s, sink, _, _ := newTestSession(t)

	s.OnPartial("오늘 하나님은 사랑이십니다.")
	if len(sink.finalTexts()) != 1 {
		t.Fatalf("setup: expected one finalize")
	}

	// Next snapshot does not extend the previous one; the old buffer is
	// already empty so no rebase-flush fires.
	s.OnPartial("그리고")

	if len(sink.finalTexts()) != 1 {
		t.Fatalf("rebase with empty buffer must not emit, got %v", sink.finalTexts())
	}
	if got := s.Buffer(); got != "그리고" {
		t.Errorf("expected buffer %q, got %q", "그리고", got)
	}
}

func TestOnPartial_RebaseFlushesCompleteBuffer(t *testing.T) {
	s, sink, _, _ := newTestSession(t)

	// No terminal morpheme, but longer than min+margin runes.
	s.OnPartial("우리가 함께 찬양하는 이 시간에")
	// Rebase: new text is not an extension.
	s.OnPartial("새로운 문장")

	finals := sink.finalTexts()
	if len(finals) != 1 {
		t.Fatalf("expected one rebase-flush, got %d: %v", len(finals), finals)
	}
	if finals[0] != "우리가 함께 찬양하는 이 시간에" {
		t.Errorf("unexpected flushed text %q", finals[0])
	}
	if sink.finals[0].Reason != ReasonRebase {
		t.Errorf("expected rebase reason, got %s", sink.finals[0].Reason)
	}
	if got := s.Buffer(); got != "새로운 문장" {
		t.Errorf("expected buffer %q, got %q", "새로운 문장", got)
	}
}

func TestOnPartial_RebaseDropsShortBuffer(t *testing.T) {
	s, sink, _, _ := newTestSession(t)

	s.OnPartial("오늘 하나")
	s.OnPartial("다른 가설")

	if len(sink.finalTexts()) != 0 {
		t.Fatalf("short ambiguous buffer must be dropped silently, got %v", sink.finalTexts())
	}
	if got := s.Buffer(); got != "다른 가설" {
		t.Errorf("expected buffer %q, got %q", "다른 가설", got)
	}
}

func TestOnPartial_AtMostOneFinalizePerCall(t *testing.T) {
	s, sink, _, _ := newTestSession(t)

	// Build a buffer that passes the rebase-flush test, then rebase onto
	// text that itself ends at a boundary. Only the rebase-flush may
	// fire in that single call.
	s.OnPartial("우리가 함께 찬양하는 이 시간에")
	s.OnPartial("하나님은 사랑이십니다.")

	finals := sink.finals
	if len(finals) != 1 {
		t.Fatalf("expected exactly one finalize in the rebase call, got %d", len(finals))
	}
	if finals[0].Reason != ReasonRebase {
		t.Errorf("expected rebase reason, got %s", finals[0].Reason)
	}

	// The new buffer finalizes on the next snapshot or timer, not in the
	// same invocation.
	s.OnPartial("하나님은 사랑이십니다. 아멘입니다.")
	if len(sink.finals) != 2 {
		t.Fatalf("expected second finalize on next call, got %d", len(sink.finals))
	}
}

func TestOnPartial_EmptyAndWhitespaceNoOp(t *testing.T) {
	s, sink, _, _ := newTestSession(t)

	s.OnPartial("")
	s.OnPartial("   ")

	if len(sink.captions) != 0 || len(sink.finals) != 0 {
		t.Error("empty snapshots must be complete no-ops")
	}
}

func TestOnPartial_CaptionSurfacedEvenWithoutDelta(t *testing.T) {
	s, sink, _, _ := newTestSession(t)

	s.OnPartial("오늘 하나")
	s.OnPartial("오늘 하나")

	if len(sink.captions) != 2 {
		t.Fatalf("live caption must update on every non-empty snapshot, got %d", len(sink.captions))
	}
}

func TestOnPartial_CaptionFormatterApplied(t *testing.T) {
	s, sink, _, _ := newTestSession(t)
	s.SetCaptionFormatter(func(text string) string { return "[" + text + "]" })

	s.OnPartial("오늘 하나")

	if sink.captions[0] != "[오늘 하나]" {
		t.Errorf("expected formatted caption, got %q", sink.captions[0])
	}
}

func TestLinger_SilenceFinalizesViableClause(t *testing.T) {
	s, sink, clk, _ := newTestSession(t)

	// Long enough, no boundary morpheme.
	s.OnPartial("우리가 함께 찬양하는 시간")
	if len(sink.finals) != 0 {
		t.Fatal("must not finalize before the linger expires")
	}

	clk.Advance(300 * time.Millisecond)

	if len(sink.finals) != 1 {
		t.Fatalf("expected silence finalize, got %d", len(sink.finals))
	}
	if sink.finals[0].Reason != ReasonSilence {
		t.Errorf("expected silence reason, got %s", sink.finals[0].Reason)
	}
	if got := s.Buffer(); got != "" {
		t.Errorf("expected cleared buffer, got %q", got)
	}
}

func TestLinger_DebounceCancelAndReplace(t *testing.T) {
	s, sink, clk, _ := newTestSession(t)

	s.OnPartial("우리가 함께 찬양하는")
	clk.Advance(200 * time.Millisecond)
	s.OnPartial("우리가 함께 찬양하는 시간")
	clk.Advance(200 * time.Millisecond)

	// First timer was replaced; only 300ms after the second snapshot
	// may the clause finalize.
	if len(sink.finals) != 0 {
		t.Fatal("replaced timer must not fire")
	}
	clk.Advance(100 * time.Millisecond)
	if len(sink.finals) != 1 {
		t.Fatalf("expected finalize after full linger, got %d", len(sink.finals))
	}
}

func TestLinger_ShortClauseWaits(t *testing.T) {
	s, sink, clk, _ := newTestSession(t)

	s.OnPartial("그리고")
	clk.Advance(time.Second)

	if len(sink.finals) != 0 {
		t.Fatal("short non-boundary clause must wait for more input")
	}
	// Not rescheduled automatically: nothing fires later either.
	clk.Advance(10 * time.Second)
	if len(sink.finals) != 0 {
		t.Fatal("linger must not self-rearm")
	}
}

func TestLinger_ShortBoundaryClauseFinalizes(t *testing.T) {
	s, sink, clk, _ := newTestSession(t)

	// Shorter than the minimum but ends like a sentence: the boundary
	// path already fired on the partial itself.
	s.OnPartial("갑니다.")
	if len(sink.finals) != 1 {
		t.Fatalf("boundary clause finalizes immediately, got %d", len(sink.finals))
	}
	if sink.finals[0].Reason != ReasonBoundary {
		t.Errorf("expected boundary reason, got %s", sink.finals[0].Reason)
	}
	clk.Advance(time.Second)
	if len(sink.finals) != 1 {
		t.Fatal("no second finalize from the timer")
	}
}

func TestLinger_IntroHoldWithheld(t *testing.T) {
	clk := clock.NewFake()
	sink := &recordingSink{}
	cfg := Config{
		SourceLang:        "en",
		IntroHoldPatterns: []string{"in summary"},
	}
	s := NewSession("sess-1", cfg, boundary.Default(), clk, sink, nil)

	s.OnPartial("In summary,")
	clk.Advance(10 * time.Second)

	if len(sink.finals) != 0 {
		t.Fatalf("intro-hold clause must not finalize, got %v", sink.finalTexts())
	}

	// Once real content follows the intro phrase the hold lifts.
	s.OnPartial("In summary, the Lord keeps every promise")
	clk.Advance(time.Second)
	if len(sink.finals) != 1 {
		t.Fatalf("intro followed by content must finalize, got %d", len(sink.finals))
	}
}

func TestStop_ForcesRemainingBuffer(t *testing.T) {
	s, sink, _, _ := newTestSession(t)
	if err := s.Start(); err != nil {
		t.Fatalf("start: %v", err)
	}

	s.OnPartial("마지막으로 전할 말씀")
	s.Stop()

	finals := sink.finals
	if len(finals) != 1 {
		t.Fatalf("expected forced finalize on stop, got %d", len(finals))
	}
	if finals[0].Text != "마지막으로 전할 말씀" || finals[0].Reason != ReasonForced {
		t.Errorf("unexpected event %+v", finals[0])
	}
	if s.Status() != StatusStopped {
		t.Errorf("expected STOPPED, got %s", s.Status())
	}
}

func TestStop_StaleTimerIsNoOp(t *testing.T) {
	s, sink, clk, _ := newTestSession(t)

	s.OnPartial("우리가 함께 찬양하는 시간")
	s.Stop()
	clk.Advance(time.Second)

	// Stop already flushed the buffer (forced); the armed linger from
	// the partial must not produce a second event.
	if len(sink.finals) != 1 {
		t.Fatalf("expected only the forced flush, got %d", len(sink.finals))
	}
}

func TestReset_ClearsEverything(t *testing.T) {
	s, sink, clk, _ := newTestSession(t)

	s.OnPartial("우리가 함께 찬양하는 시간")
	s.Reset()

	if got := s.Buffer(); got != "" {
		t.Errorf("expected empty buffer after reset, got %q", got)
	}
	if s.Status() != StatusIdle {
		t.Errorf("expected IDLE after reset, got %s", s.Status())
	}
	clk.Advance(time.Minute)
	if len(sink.finals) != 0 {
		t.Fatal("timers from before the reset must be no-ops")
	}

	// A fresh utterance starts from scratch, not as a suffix delta.
	s.OnPartial("새 세션의 첫 문장입니다.")
	if len(sink.finals) != 1 || sink.finals[0].Text != "새 세션의 첫 문장입니다." {
		t.Fatalf("expected clean accumulation after reset, got %v", sink.finalTexts())
	}
}

func TestFinalizeOrder_MonotonicallyIncreasing(t *testing.T) {
	s, sink, _, _ := newTestSession(t)

	s.OnPartial("첫 번째 문장입니다.")
	s.OnPartial("두 번째 문장입니다.")
	s.OnPartial("세 번째 문장입니다.")

	if len(sink.finals) != 3 {
		t.Fatalf("expected 3 finalizes, got %d", len(sink.finals))
	}
	for i := 1; i < len(sink.finals); i++ {
		if sink.finals[i].Order <= sink.finals[i-1].Order {
			t.Errorf("order not increasing: %d then %d", sink.finals[i-1].Order, sink.finals[i].Order)
		}
	}
}

func TestForceFlush(t *testing.T) {
	s, sink, clk, _ := newTestSession(t)

	// Short buffer: held for another linger window instead.
	s.OnPartial("짧은 구절")
	s.ForceFlush()
	if len(sink.finals) != 0 {
		t.Fatal("short clause must be held, not force-committed")
	}

	// Complete-looking buffer commits immediately.
	s.OnPartial("짧은 구절이지만 충분히 길어진 문장으로")
	s.ForceFlush()
	if len(sink.finals) != 1 {
		t.Fatalf("expected forced finalize, got %d", len(sink.finals))
	}
	if sink.finals[0].Reason != ReasonForced {
		t.Errorf("expected forced reason, got %s", sink.finals[0].Reason)
	}

	// Empty buffer: no-op.
	s.ForceFlush()
	clk.Advance(time.Second)
	if len(sink.finals) != 1 {
		t.Fatal("force flush on empty buffer must be a no-op")
	}
}

func TestPulse_NudgesUpstreamWhenBufferLingers(t *testing.T) {
	s, sink, clk, pulser := newTestSession(t)
	if err := s.Start(); err != nil {
		t.Fatalf("start: %v", err)
	}

	// Keep extending the hypothesis just before each linger expiry so
	// the buffer stays open past the pulse interval without a single
	// local finalize firing.
	text := "우리가 함께 찬양하는"
	s.OnPartial(text)
	for i := 0; i < 12; i++ {
		clk.Advance(250 * time.Millisecond)
		text += " 은혜"
		s.OnPartial(text)
	}

	if got := len(sink.finals); got != 0 {
		t.Fatalf("buffer must stay open while partials keep arriving, got %d finals", got)
	}

	if pulser.pulses() == 0 {
		t.Fatal("expected at least one upstream pulse for a lingering buffer")
	}
}

func TestPulse_Throttled(t *testing.T) {
	clk := clock.NewFake()
	pulser := &countingPulser{}
	p := NewPulse(clk, pulser, 2600*time.Millisecond, 0.8)

	if !p.Trigger() {
		t.Fatal("first trigger must fire")
	}
	if p.Trigger() {
		t.Fatal("immediate second trigger must be throttled")
	}
	clk.Advance(2200 * time.Millisecond)
	if !p.Trigger() {
		t.Fatal("trigger past 80% of the interval must fire")
	}
	if pulser.pulses() != 2 {
		t.Errorf("expected 2 pulses, got %d", pulser.pulses())
	}
}

func TestStart_InvalidTransition(t *testing.T) {
	s, _, _, _ := newTestSession(t)
	s.Stop()

	if err := s.Start(); err != ErrBadTransition {
		t.Errorf("expected ErrBadTransition, got %v", err)
	}
}

func TestLinger_CJKPendingHold(t *testing.T) {
	clk := clock.NewFake()
	sink := &recordingSink{}
	pulse := NewPulse(clk, &countingPulser{}, 2600*time.Millisecond, 0.8)
	s := NewSession("sess-cjk", Config{SourceLang: "ko"}, boundary.Default(), clk, sink, pulse)

	// Non-boundary Korean buffer: the default linger is not enough, the
	// 600ms pending hold applies.
	s.OnPartial("오늘 하나님은 사랑을 베푸시고")

	clk.Advance(300 * time.Millisecond)
	if n := len(sink.finalTexts()); n != 0 {
		t.Fatalf("finalized before the pending hold elapsed: %d", n)
	}

	clk.Advance(300 * time.Millisecond)
	finals := sink.finalTexts()
	if len(finals) != 1 {
		t.Fatalf("expected one finalize after the pending hold, got %d", len(finals))
	}
	if sink.finals[0].Reason != ReasonSilence {
		t.Errorf("expected silence reason, got %s", sink.finals[0].Reason)
	}
}

func TestLinger_NonCJKUsesBaseLinger(t *testing.T) {
	clk := clock.NewFake()
	sink := &recordingSink{}
	pulse := NewPulse(clk, &countingPulser{}, 2600*time.Millisecond, 0.8)
	s := NewSession("sess-en", Config{SourceLang: "en"}, boundary.Default(), clk, sink, pulse)

	s.OnPartial("and then we will continue together")

	clk.Advance(300 * time.Millisecond)
	if got := len(sink.finalTexts()); got != 1 {
		t.Fatalf("expected the base linger to finalize, got %d finals", got)
	}
}
