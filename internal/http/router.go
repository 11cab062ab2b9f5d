// Package http wires the service's HTTP and websocket surface.
package http

import (
	"encoding/json"
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/rs/zerolog"

	"github.com/Nick-Bae/deepgram/internal/clock"
	"github.com/Nick-Bae/deepgram/internal/config"
	"github.com/Nick-Bae/deepgram/internal/events"
	"github.com/Nick-Bae/deepgram/internal/hub"
	"github.com/Nick-Bae/deepgram/internal/models"
	"github.com/Nick-Bae/deepgram/internal/observability/logging"
	"github.com/Nick-Bae/deepgram/internal/service/boundary"
	"github.com/Nick-Bae/deepgram/internal/service/reconcile"
	"github.com/Nick-Bae/deepgram/internal/service/spacing"
	"github.com/Nick-Bae/deepgram/internal/translator"
)

// Server holds the shared collaborators behind the HTTP surface. Each
// producer connection gets its own stream handler; the hub, reconciler,
// and display state are process-wide.
type Server struct {
	cfg        *config.Configuration
	hub        *hub.Hub
	translator translator.Translator
	publisher  *events.Publisher
	boundary   *boundary.Detector
	clk        clock.Clock
	reconciler *reconcile.Reconciler
	display    *displayState
	spacer     *spacing.Segmenter
	log        zerolog.Logger
}

// NewServer builds the HTTP server state and taps the hub so every
// broadcast frame flows through the reconciler.
func NewServer(cfg *config.Configuration, h *hub.Hub, tr translator.Translator, pub *events.Publisher) *Server {
	det := boundary.New(boundary.Config{
		Rules: []boundary.LangRule{boundary.KoreanRule(cfg.Clause.KoreanEndings)},
	})
	clk := clock.New()
	display := newDisplayState()
	rec := reconcile.New(reconcile.Config{
		TargetLang:    cfg.Languages.Target,
		StableRepeats: cfg.Reconcile.StableRepeats,
		StableAge:     cfg.Reconcile.StableAge,
	}, det, clk, display)

	s := &Server{
		cfg:        cfg,
		hub:        h,
		translator: tr,
		publisher:  pub,
		boundary:   det,
		clk:        clk,
		reconciler: rec,
		display:    display,
		spacer:     spacing.New(cfg.Clause.SpacingWordList),
		log:        logging.WithComponent("http"),
	}
	h.Tap(rec.HandleRaw)
	return s
}

// Router constructs the HTTP router for the service.
func (s *Server) Router() http.Handler {
	r := chi.NewRouter()

	r.Use(middleware.RequestID)
	r.Use(middleware.RealIP)
	r.Use(middleware.Recoverer)

	r.Get("/v1/liveness", func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusOK)
		_, _ = w.Write([]byte("ok"))
	})
	r.Get("/v1/readiness", func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusOK)
		_, _ = w.Write([]byte("ready"))
	})

	r.Get("/v1/display", s.handleDisplay)
	r.Get("/debug/broadcast", s.handleDebugBroadcast)

	r.Get("/ws/stt", s.handleProducer)
	r.Get("/ws/translate", s.handleConsumer)

	return r
}

// Reconciler exposes the shared reconciler, mainly for tests.
func (s *Server) Reconciler() *reconcile.Reconciler { return s.reconciler }

func (s *Server) handleDisplay(w http.ResponseWriter, _ *http.Request) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(http.StatusOK)
	_ = json.NewEncoder(w).Encode(s.display.snapshot())
}

// handleDebugBroadcast pushes a recognizable test frame in both wire
// shapes so a consumer's plumbing can be proven end to end.
func (s *Server) handleDebugBroadcast(w http.ResponseWriter, _ *http.Request) {
	const testSeq = int64(999)
	live, legacy := models.LiveMessages(testSeq, "**TEST BROADCAST**", "", s.cfg.Languages.Source, s.cfg.Languages.Target)
	s.hub.Broadcast(live)
	s.hub.Broadcast(legacy)

	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(http.StatusOK)
	_, _ = w.Write([]byte(`{"ok": true}`))
}
