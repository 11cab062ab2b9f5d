// Package dispatch decides which finalized clauses and interim previews
// actually leave the service. It owns the outbound sequence counter,
// deduplicates stale rebroadcasts, and drives the translation call.
package dispatch

import (
	"context"
	"strings"
	"sync"
	"time"
	"unicode/utf8"

	"github.com/rs/zerolog"

	"github.com/Nick-Bae/deepgram/internal/clock"
	"github.com/Nick-Bae/deepgram/internal/models"
	"github.com/Nick-Bae/deepgram/internal/observability/logging"
	"github.com/Nick-Bae/deepgram/internal/observability/metrics"
	"github.com/Nick-Bae/deepgram/internal/service/clause"
	"github.com/Nick-Bae/deepgram/internal/translator"
)

// Broadcaster fans one outbound message out to every connected consumer.
type Broadcaster interface {
	Broadcast(v any)
}

// FinalArchiver records committed clauses for later replay. Satisfied by
// the Kafka publisher; nil disables archiving.
type FinalArchiver interface {
	PublishFinal(ctx context.Context, key string, event any) error
}

// cjkPrefixes are the primary language subtags written without spaces;
// the subset-commit guard only applies to them.
var cjkPrefixes = []string{"ko", "zh", "ja"}

// Config tunes the dispatch gate.
type Config struct {
	SessionID  string
	SourceLang string
	TargetLang string

	// PreviewThrottle is the minimum interval between preview sends.
	// Zero falls back to 400ms.
	PreviewThrottle time.Duration

	// PreviewMinRunes drops previews shorter than this. Zero falls back
	// to 6.
	PreviewMinRunes int

	// SubsetSuppressWindow and SubsetMinDelta tune the stale-subset
	// guard: a space-free CJK commit that is an edge subset of the
	// previous, longer commit within the window is dropped.
	SubsetSuppressWindow time.Duration
	SubsetMinDelta       int

	// TranslateTimeout bounds each translation call. Zero falls back to
	// 15s.
	TranslateTimeout time.Duration
}

func (c Config) withDefaults() Config {
	if c.PreviewThrottle <= 0 {
		c.PreviewThrottle = 400 * time.Millisecond
	}
	if c.PreviewMinRunes <= 0 {
		c.PreviewMinRunes = 6
	}
	if c.SubsetSuppressWindow <= 0 {
		c.SubsetSuppressWindow = 4 * time.Second
	}
	if c.SubsetMinDelta <= 0 {
		c.SubsetMinDelta = 6
	}
	if c.TranslateTimeout <= 0 {
		c.TranslateTimeout = 15 * time.Second
	}
	return c
}

// Gate serializes outbound finals and previews for one session. Finals
// are translated fail-open: a translation error broadcasts the source
// text rather than stalling the stream.
type Gate struct {
	mu sync.Mutex
	wg sync.WaitGroup

	cfg     Config
	clk     clock.Clock
	tr      translator.Translator
	sink    Broadcaster
	pulse   *clause.Pulse
	archive FinalArchiver
	log     zerolog.Logger
	m       *metrics.Metrics

	seq           int64
	lastNorm      string
	lastCommitAt  time.Time
	lastPreviewAt time.Time
	previewCancel context.CancelFunc
}

// NewGate builds a gate. pulse and archive may be nil.
func NewGate(cfg Config, clk clock.Clock, tr translator.Translator, sink Broadcaster, pulse *clause.Pulse, archive FinalArchiver) *Gate {
	cfg = cfg.withDefaults()
	if tr == nil {
		tr = translator.Noop{}
	}
	return &Gate{
		cfg:     cfg,
		clk:     clk,
		tr:      tr,
		sink:    sink,
		pulse:   pulse,
		archive: archive,
		log:     logging.WithComponent("dispatch").With().Str("sessionId", cfg.SessionID).Logger(),
		m:       metrics.DefaultMetrics,
	}
}

// Seq returns the sequence id of the last committed final.
func (g *Gate) Seq() int64 {
	g.mu.Lock()
	defer g.mu.Unlock()
	return g.seq
}

// SendFinal commits one finalized clause: it assigns the next sequence
// id, cancels any in-flight preview, and hands the text to translation
// and broadcast. Returns false when the clause was suppressed.
func (g *Gate) SendFinal(ctx context.Context, text, reason string) bool {
	norm := normWS(text)
	if norm == "" {
		return false
	}

	g.mu.Lock()
	if norm == g.lastNorm {
		g.mu.Unlock()
		g.m.FinalsSuppressed.WithLabelValues("duplicate").Inc()
		return false
	}
	if g.isStaleSubsetLocked(norm) {
		g.cancelPreviewLocked()
		g.mu.Unlock()
		g.m.FinalsSuppressed.WithLabelValues("subset").Inc()
		g.log.Debug().Str("text", norm).Msg("suppressed stale subset commit")
		return false
	}

	g.seq++
	seq := g.seq
	g.lastNorm = norm
	g.lastCommitAt = g.clk.Now()
	g.cancelPreviewLocked()
	g.mu.Unlock()

	g.m.FinalsSent.Inc()
	if g.pulse != nil {
		g.pulse.Trigger()
	}

	g.wg.Add(1)
	go g.translateAndBroadcast(ctx, seq, text, reason)
	return true
}

// SendPreview translates the in-progress clause and broadcasts it as a
// non-final frame carrying the upcoming sequence id. Throttled and
// fully best-effort: a failed or superseded preview simply disappears.
func (g *Gate) SendPreview(text string) bool {
	norm := normWS(text)
	if utf8.RuneCountInString(norm) < g.cfg.PreviewMinRunes {
		return false
	}

	g.mu.Lock()
	now := g.clk.Now()
	if !g.lastPreviewAt.IsZero() && now.Sub(g.lastPreviewAt) < g.cfg.PreviewThrottle {
		g.mu.Unlock()
		g.m.PreviewsThrottled.Inc()
		return false
	}
	g.lastPreviewAt = now
	g.cancelPreviewLocked()
	ctx, cancel := context.WithTimeout(context.Background(), g.cfg.TranslateTimeout)
	g.previewCancel = cancel
	upcoming := g.seq + 1
	g.mu.Unlock()

	g.wg.Add(1)
	go func() {
		defer g.wg.Done()
		defer cancel()
		translated, err := g.translate(ctx, norm)
		if err != nil {
			// Canceled by a newer preview or the final commit, or the
			// backend failed. Previews are disposable either way.
			return
		}
		g.sink.Broadcast(models.PreviewMessage(upcoming, translated, norm, g.cfg.SourceLang, g.cfg.TargetLang))
		g.m.PreviewsSent.Inc()
	}()
	return true
}

// Reset clears dedupe state for a new utterance stream. The sequence
// counter keeps counting so consumers never see it move backwards.
func (g *Gate) Reset() {
	g.mu.Lock()
	g.lastNorm = ""
	g.lastCommitAt = time.Time{}
	g.lastPreviewAt = time.Time{}
	g.cancelPreviewLocked()
	g.mu.Unlock()
}

// Flush waits for in-flight translation goroutines to settle. Called on
// shutdown and by tests.
func (g *Gate) Flush() {
	g.wg.Wait()
}

func (g *Gate) translateAndBroadcast(ctx context.Context, seq int64, srcText, reason string) {
	defer g.wg.Done()

	tctx, cancel := context.WithTimeout(ctx, g.cfg.TranslateTimeout)
	defer cancel()

	started := time.Now()
	translated, err := g.translate(tctx, srcText)
	g.m.TranslateLatency.Observe(time.Since(started).Seconds())
	if err != nil {
		// Fail open: a missed translation is better than a missing
		// caption.
		g.m.TranslateErrors.Inc()
		g.log.Warn().Err(err).Int64("seq", seq).Msg("translation failed, broadcasting source text")
		translated = srcText
	}

	live, legacy := models.LiveMessages(seq, translated, srcText, g.cfg.SourceLang, g.cfg.TargetLang)
	g.sink.Broadcast(live)
	g.sink.Broadcast(legacy)
	g.log.Info().Int64("seq", seq).Str("reason", reason).Str("src", srcText).Str("tgt", translated).Msg("final dispatched")

	if g.archive != nil {
		event := models.CaptionFinal{
			EventType:  "caption.final",
			SessionID:  g.cfg.SessionID,
			Seq:        seq,
			SourceLang: g.cfg.SourceLang,
			TargetLang: g.cfg.TargetLang,
			SourceText: srcText,
			Translated: translated,
			Reason:     reason,
			Timestamp:  time.Now().UnixMilli(),
		}
		if err := g.archive.PublishFinal(ctx, g.cfg.SessionID, event); err != nil {
			g.log.Warn().Err(err).Int64("seq", seq).Msg("caption archive publish failed")
		}
	}
}

func (g *Gate) translate(ctx context.Context, text string) (string, error) {
	if sameLanguage(g.cfg.SourceLang, g.cfg.TargetLang) {
		return text, nil
	}
	return g.tr.Translate(ctx, text, g.cfg.SourceLang, g.cfg.TargetLang)
}

// isStaleSubsetLocked reports whether norm would re-dispatch text the
// consumer already saw in the previous commit. A strict suffix of the
// previous clause is always stale: it is the tail of an utterance that
// went out in full. Space-free CJK text additionally suppresses shorter
// prefix fragments inside a short recency window, since those
// recognizers rewrite aggressively around the commit point.
func (g *Gate) isStaleSubsetLocked(norm string) bool {
	if g.lastNorm == "" || len(norm) >= len(g.lastNorm) {
		return false
	}
	if strings.HasSuffix(g.lastNorm, norm) {
		return true
	}
	if !isCJK(g.cfg.SourceLang) {
		return false
	}
	if strings.Contains(norm, " ") || strings.Contains(g.lastNorm, " ") {
		return false
	}
	delta := utf8.RuneCountInString(g.lastNorm) - utf8.RuneCountInString(norm)
	if delta < g.cfg.SubsetMinDelta {
		return false
	}
	if !strings.HasPrefix(g.lastNorm, norm) {
		return false
	}
	return g.clk.Now().Sub(g.lastCommitAt) < g.cfg.SubsetSuppressWindow
}

func (g *Gate) cancelPreviewLocked() {
	if g.previewCancel != nil {
		g.previewCancel()
		g.previewCancel = nil
	}
}

func normWS(s string) string {
	return strings.Join(strings.Fields(s), " ")
}

func isCJK(lang string) bool {
	base := strings.ToLower(lang)
	for _, p := range cjkPrefixes {
		if strings.HasPrefix(base, p) {
			return true
		}
	}
	return false
}

func sameLanguage(a, b string) bool {
	return strings.EqualFold(primary(a), primary(b))
}

func primary(tag string) string {
	if i := strings.IndexAny(tag, "-_"); i > 0 {
		return tag[:i]
	}
	return tag
}
