// Package stream coordinates one producer connection end to end: audio
// in, partial snapshots through the clause session, finalized clauses
// through the dispatch gate, and captions out to the broadcast hub.
package stream

import (
	"context"
	"time"

	"github.com/rs/zerolog"

	"github.com/Nick-Bae/deepgram/internal/clock"
	"github.com/Nick-Bae/deepgram/internal/config"
	"github.com/Nick-Bae/deepgram/internal/events"
	"github.com/Nick-Bae/deepgram/internal/models"
	"github.com/Nick-Bae/deepgram/internal/observability/logging"
	"github.com/Nick-Bae/deepgram/internal/service/boundary"
	"github.com/Nick-Bae/deepgram/internal/service/clause"
	"github.com/Nick-Bae/deepgram/internal/service/dispatch"
	"github.com/Nick-Bae/deepgram/internal/service/reconcile"
	"github.com/Nick-Bae/deepgram/internal/service/stt"
	"github.com/Nick-Bae/deepgram/internal/translator"
)

// Broadcaster is the consumer-facing fan-out the gate dispatches into.
type Broadcaster interface {
	Broadcast(v any)
}

// Deps are the collaborators one stream handler wires together.
type Deps struct {
	SessionID  string
	SourceLang string
	TargetLang string

	Adapter    stt.Adapter
	Hub        Broadcaster
	Translator translator.Translator
	Publisher  *events.Publisher      // nil disables caption archiving
	Reconciler *reconcile.Reconciler  // nil disables latency bookkeeping
	Boundary   *boundary.Detector
	Clock      clock.Clock
	Config     *config.Configuration

	// SendToProducer delivers frames back to the producer connection
	// (interim captions, finalized translations). May be nil.
	SendToProducer func(v any) error

	// CaptionFormatter post-processes interim captions, e.g. Korean
	// spacing recovery. May be nil.
	CaptionFormatter func(string) string
}

// Handler is the per-connection pipeline coordinator. It implements
// stt.Callback for the adapter and clause.Sink for the session.
type Handler struct {
	deps    Deps
	session *clause.Session
	gate    *dispatch.Gate
	log     zerolog.Logger
}

// fanout broadcasts to the hub and echoes the same frame back to the
// producer, matching the consumer contract both ends already speak.
type fanout struct {
	hub  Broadcaster
	send func(v any) error
}

func (f fanout) Broadcast(v any) {
	if f.hub != nil {
		f.hub.Broadcast(v)
	}
	if f.send != nil {
		_ = f.send(v)
	}
}

// NewHandler wires a session, gate, and pulse around the given adapter.
func NewHandler(deps Deps) *Handler {
	h := &Handler{
		deps: deps,
		log:  logging.WithComponent("stream").With().Str("sessionId", deps.SessionID).Logger(),
	}

	cfg := deps.Config
	pulse := clause.NewPulse(deps.Clock, clause.PulserFunc(func() {
		if err := deps.Adapter.Finalize(context.Background()); err != nil {
			h.log.Warn().Err(err).Msg("upstream finalize nudge failed")
		}
	}), cfg.Clause.PulseInterval, cfg.Clause.PulseThrottle)

	h.session = clause.NewSession(deps.SessionID, clause.Config{
		SourceLang:        deps.SourceLang,
		Linger:            cfg.Clause.Linger,
		MinClauseRunes:    cfg.Clause.MinClauseRunes,
		RebaseFlushMargin: cfg.Clause.RebaseFlushMargin,
		CJKPendingHold:    cfg.Clause.CJKPendingHold,
		IntroHoldPatterns: cfg.Clause.IntroHoldPatterns,
		PulseInterval:     cfg.Clause.PulseInterval,
		PulseThrottle:     cfg.Clause.PulseThrottle,
	}, deps.Boundary, deps.Clock, h, pulse)
	if deps.CaptionFormatter != nil {
		h.session.SetCaptionFormatter(deps.CaptionFormatter)
	}

	h.gate = dispatch.NewGate(dispatch.Config{
		SessionID:            deps.SessionID,
		SourceLang:           deps.SourceLang,
		TargetLang:           deps.TargetLang,
		PreviewThrottle:      cfg.Dispatch.PreviewThrottle,
		PreviewMinRunes:      cfg.Dispatch.PreviewMinRunes,
		SubsetSuppressWindow: cfg.Dispatch.SubsetSuppressWindow,
		SubsetMinDelta:       cfg.Dispatch.SubsetMinDelta,
		TranslateTimeout:     cfg.Translator.Timeout,
	}, deps.Clock, deps.Translator, fanout{hub: deps.Hub, send: deps.SendToProducer}, pulse, archiver(deps.Publisher))

	return h
}

func archiver(p *events.Publisher) dispatch.FinalArchiver {
	if p == nil {
		return nil
	}
	return p
}

// Start opens the upstream transcription stream.
func (h *Handler) Start(ctx context.Context) error {
	if err := h.session.Start(); err != nil {
		return err
	}
	if err := h.deps.Adapter.Start(ctx, h); err != nil {
		h.session.Fail(err)
		return err
	}
	return nil
}

// SendAudio forwards one raw audio chunk upstream.
func (h *Handler) SendAudio(ctx context.Context, audio []byte) error {
	return h.deps.Adapter.SendAudio(ctx, audio)
}

// ClientFinalize handles an explicit finalize request from the producer
// client: the local buffer flushes if viable and the upstream provider
// is asked to flush too.
func (h *Handler) ClientFinalize(ctx context.Context) {
	h.session.ForceFlush()
	if err := h.deps.Adapter.Finalize(ctx); err != nil {
		h.log.Warn().Err(err).Msg("upstream finalize failed")
	}
}

// Close tears the pipeline down: remaining buffered text is
// force-finalized, then in-flight dispatches drain.
func (h *Handler) Close() {
	_ = h.deps.Adapter.Close()
	h.session.Stop()
	h.gate.Flush()
}

// Session exposes the clause session for status inspection.
func (h *Handler) Session() *clause.Session { return h.session }

// OnPartial implements stt.Callback.
func (h *Handler) OnPartial(text string) {
	h.session.OnPartial(text)
}

// OnFinal implements stt.Callback. A provider final is consumed as one
// more snapshot; when the provider also saw the end of the utterance,
// the buffer flushes immediately instead of waiting out the linger.
func (h *Handler) OnFinal(text string, speechFinal bool) {
	h.session.OnPartial(text)
	if speechFinal {
		h.session.ForceFlush()
	}
}

// OnError implements stt.Callback.
func (h *Handler) OnError(err error) {
	h.log.Error().Err(err).Msg("transcription stream failed")
	h.session.Fail(err)
	if h.deps.SendToProducer != nil {
		_ = h.deps.SendToProducer(map[string]string{"type": "error", "message": err.Error()})
	}
}

// CaptionUpdate implements clause.Sink: the freshest source-language
// snapshot goes back to the producer display, into the caption archive,
// and through the preview path.
func (h *Handler) CaptionUpdate(text string) {
	if h.deps.SendToProducer != nil {
		_ = h.deps.SendToProducer(map[string]string{"type": "stt.partial", "text": text})
	}
	if h.deps.Reconciler != nil {
		h.deps.Reconciler.NoteSourceUpdate()
	}
	if h.deps.Publisher != nil {
		event := models.CaptionPartial{
			EventType:  "caption.partial",
			SessionID:  h.deps.SessionID,
			SourceLang: h.deps.SourceLang,
			Text:       text,
			Timestamp:  time.Now().UnixMilli(),
		}
		if err := h.deps.Publisher.PublishPartial(context.Background(), h.deps.SessionID, event); err != nil {
			h.log.Warn().Err(err).Msg("caption partial publish failed")
		}
	}
	h.gate.SendPreview(text)
}

// Finalize implements clause.Sink.
func (h *Handler) Finalize(ev clause.FinalizeEvent) {
	h.gate.SendFinal(context.Background(), ev.Text, string(ev.Reason))
}
