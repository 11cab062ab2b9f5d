// Package reconcile consumes the fan-out stream of translated segments
// and decides what actually reaches the consumer sink. Sequence ids are
// dispatched as final at most once, no matter how often or in what
// order the broadcast channel repeats them.
package reconcile

import (
	"strings"
	"sync"
	"time"

	"github.com/rs/zerolog"

	"github.com/Nick-Bae/deepgram/internal/clock"
	"github.com/Nick-Bae/deepgram/internal/models"
	"github.com/Nick-Bae/deepgram/internal/observability/logging"
	"github.com/Nick-Bae/deepgram/internal/observability/metrics"
	"github.com/Nick-Bae/deepgram/internal/service/boundary"
)

// Sink receives reconciled output.
type Sink interface {
	// Display shows the freshest translated text, final or not.
	Display(text string)

	// Dispatch commits a finalized text to the consumer (display line,
	// TTS queue). Called at most once per sequence id.
	Dispatch(text string)

	// ClearInterim drops any locally buffered interim text tied to the
	// clause that just finalized.
	ClearInterim()
}

// Config tunes soft-final promotion.
type Config struct {
	TargetLang string

	// StableRepeats promotes a non-final segment once its text has been
	// seen unchanged this many times. Zero falls back to 2.
	StableRepeats int

	// StableAge promotes a non-final segment once it has aged past
	// this. Zero falls back to 900ms.
	StableAge time.Duration
}

func (c Config) withDefaults() Config {
	if c.StableRepeats <= 0 {
		c.StableRepeats = 2
	}
	if c.StableAge <= 0 {
		c.StableAge = 900 * time.Millisecond
	}
	return c
}

// entry tracks revisions of one sequence id while it is still
// non-final.
type entry struct {
	text        string
	repeatCount int
	firstSeenAt time.Time
	lastSeenAt  time.Time
}

// Reconciler applies the watermark and stability rules to inbound
// broadcast segments. Sequence ids are 1-based; the zero watermark
// means nothing has been handled yet.
type Reconciler struct {
	mu sync.Mutex

	cfg  Config
	det  *boundary.Detector
	clk  clock.Clock
	sink Sink
	log  zerolog.Logger
	m    *metrics.Metrics

	lastHandledSeq     int64
	entries            map[int64]*entry
	spoken             string
	lastServerSrc      string
	lastSourceUpdateAt time.Time
}

// New builds a reconciler delivering into sink.
func New(cfg Config, det *boundary.Detector, clk clock.Clock, sink Sink) *Reconciler {
	return &Reconciler{
		cfg:     cfg.withDefaults(),
		det:     det,
		clk:     clk,
		sink:    sink,
		log:     logging.WithComponent("reconcile"),
		m:       metrics.DefaultMetrics,
		entries: make(map[int64]*entry),
	}
}

// NoteSourceUpdate records that a local source-language update just
// happened; the commit latency sample measures from this point.
func (r *Reconciler) NoteSourceUpdate() {
	r.mu.Lock()
	r.lastSourceUpdateAt = r.clk.Now()
	r.mu.Unlock()
}

// HandleRaw normalizes one raw broadcast frame and reconciles it.
// Unparseable or shapeless frames are dropped at the edge.
func (r *Reconciler) HandleRaw(raw []byte) {
	seg, ok := models.Normalize(raw)
	if !ok {
		r.m.SegmentsDropped.WithLabelValues("malformed").Inc()
		return
	}
	r.Handle(seg)
}

// Handle reconciles one normalized broadcast segment.
func (r *Reconciler) Handle(seg models.BroadcastSegment) {
	text := strings.TrimSpace(seg.Text)
	if text == "" {
		r.m.SegmentsDropped.WithLabelValues("empty").Inc()
		return
	}
	r.m.RecordSegment(seg.IsFinal)

	r.mu.Lock()
	defer r.mu.Unlock()

	// Freshest text always reaches the display, final or not.
	r.sink.Display(text)

	if seg.IsFinal {
		r.handleFinalLocked(seg.Seq, text, seg.SourceEcho)
		return
	}

	if seg.Seq == nil {
		// Stability cannot be tracked without an id.
		r.m.SegmentsDropped.WithLabelValues("no-seq").Inc()
		return
	}
	seq := *seg.Seq
	now := r.clk.Now()

	e, ok := r.entries[seq]
	if !ok {
		e = &entry{text: text, repeatCount: 1, firstSeenAt: now}
		r.entries[seq] = e
	} else if e.text == text {
		e.repeatCount++
	} else {
		e.text = text
		e.repeatCount = 1
	}
	e.lastSeenAt = now

	stable := e.repeatCount >= r.cfg.StableRepeats || now.Sub(e.firstSeenAt) > r.cfg.StableAge
	if stable && seq > r.lastHandledSeq && r.det.IsBoundary(text, r.cfg.TargetLang) {
		r.m.SoftFinalPromotions.Inc()
		r.log.Debug().Int64("seq", seq).Int("repeats", e.repeatCount).Msg("soft-final promotion")
		r.handleFinalLocked(seg.Seq, text, seg.SourceEcho)
	}
}

// handleFinalLocked runs the final dispatch path shared by true finals
// and soft-final promotions.
func (r *Reconciler) handleFinalLocked(seq *int64, text, srcEcho string) {
	if seq != nil {
		if *seq <= r.lastHandledSeq {
			// Expected race: a repeat or reordered final for a sequence
			// id already handled.
			r.m.DispatchSuppressed.WithLabelValues("watermark").Inc()
			r.log.Debug().Int64("seq", *seq).Msg("final at or below watermark")
			return
		}
		r.lastHandledSeq = *seq
		delete(r.entries, *seq)
	}

	suppressed := false
	if srcEcho != "" {
		if r.lastServerSrc != "" && len(srcEcho) < len(r.lastServerSrc) && strings.HasSuffix(r.lastServerSrc, srcEcho) {
			// Tail fragment of a source clause the server already sent
			// in full; the translation would double up on the consumer.
			suppressed = true
			r.m.DispatchSuppressed.WithLabelValues("source-echo").Inc()
			r.log.Debug().Str("src", srcEcho).Msg("suppressed duplicate source tail")
		}
		r.lastServerSrc = srcEcho
	}

	if !suppressed {
		if text == r.spoken {
			r.m.DispatchSuppressed.WithLabelValues("spoken-duplicate").Inc()
		} else {
			r.spoken = text
			r.m.Dispatched.Inc()
			r.sink.Dispatch(text)
		}
	}

	r.sink.ClearInterim()
	if !r.lastSourceUpdateAt.IsZero() {
		r.m.CommitLatency.Observe(r.clk.Now().Sub(r.lastSourceUpdateAt).Seconds())
	}
}

// Watermark returns the highest sequence id handled as final.
func (r *Reconciler) Watermark() int64 {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.lastHandledSeq
}

// Reset clears all reconciliation state for a new session.
func (r *Reconciler) Reset() {
	r.mu.Lock()
	r.lastHandledSeq = 0
	r.entries = make(map[int64]*entry)
	r.spoken = ""
	r.lastServerSrc = ""
	r.lastSourceUpdateAt = time.Time{}
	r.mu.Unlock()
}
