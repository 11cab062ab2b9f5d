package http

import (
	"encoding/json"
	"net/http"
	"strings"
	"sync"

	"github.com/google/uuid"
	"github.com/gorilla/websocket"

	"github.com/Nick-Bae/deepgram/internal/service/stream"
	"github.com/Nick-Bae/deepgram/internal/service/stt"
	"github.com/Nick-Bae/deepgram/internal/service/stt/deepgram"
	"github.com/Nick-Bae/deepgram/internal/service/stt/mock"
)

var upgrader = websocket.Upgrader{
	ReadBufferSize:  8192,
	WriteBufferSize: 8192,
	// Producers and consumers connect from the caption frontend, which may
	// be served from another origin during development.
	CheckOrigin: func(*http.Request) bool { return true },
}

// safeConn serializes writes to a websocket connection. The stream
// handler writes caption echoes and translated finals from separate
// goroutines, and gorilla permits only one concurrent writer.
type safeConn struct {
	mu   sync.Mutex
	conn *websocket.Conn
}

func (c *safeConn) WriteJSON(v any) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.conn.WriteJSON(v)
}

// clientCommand is a JSON control frame a producer can send alongside
// its binary audio frames.
type clientCommand struct {
	Type string `json:"type"`
}

// handleProducer serves the audio ingest socket. The client streams
// binary PCM frames; interim captions and finalized translations flow
// back on the same socket and out through the broadcast hub.
func (s *Server) handleProducer(w http.ResponseWriter, r *http.Request) {
	srcLang := cleanLang(r.URL.Query().Get("source"), s.cfg.Languages.Source)
	tgtLang := cleanLang(r.URL.Query().Get("target"), s.cfg.Languages.Target)

	conn, err := upgrader.Upgrade(w, r, nil)
	if err != nil {
		s.log.Error().Err(err).Msg("producer upgrade failed")
		return
	}
	sc := &safeConn{conn: conn}

	sessionID := uuid.NewString()
	log := s.log.With().Str("sessionId", sessionID).Str("src", srcLang).Str("tgt", tgtLang).Logger()
	log.Info().Msg("producer connected")

	// A new producer session restarts sequence ids at 1; the watermark
	// and dedupe state from the previous session would swallow every
	// final until the old high-water mark was passed.
	s.reconciler.Reset()
	s.display.ClearInterim()

	handler := stream.NewHandler(stream.Deps{
		SessionID:  sessionID,
		SourceLang: srcLang,
		TargetLang: tgtLang,
		Adapter:    s.newAdapter(srcLang),
		Hub:        s.hub,
		Translator: s.translator,
		Publisher:  s.publisher,
		Reconciler: s.reconciler,
		Boundary:   s.boundary,
		Clock:      s.clk,
		Config:     s.cfg,
		SendToProducer: func(v any) error {
			return sc.WriteJSON(v)
		},
		CaptionFormatter: s.spacer.Apply,
	})

	ctx := r.Context()
	if err := handler.Start(ctx); err != nil {
		log.Error().Err(err).Msg("stream start failed")
		_ = sc.WriteJSON(map[string]string{"type": "error", "error": err.Error()})
		_ = conn.Close()
		return
	}

	defer func() {
		handler.Close()
		_ = conn.Close()
		log.Info().Msg("producer disconnected")
	}()

	for {
		msgType, data, err := conn.ReadMessage()
		if err != nil {
			return
		}
		switch msgType {
		case websocket.BinaryMessage:
			if err := handler.SendAudio(ctx, data); err != nil {
				log.Warn().Err(err).Msg("audio forward failed")
				return
			}
		case websocket.TextMessage:
			var cmd clientCommand
			if err := json.Unmarshal(data, &cmd); err != nil {
				continue
			}
			if cmd.Type == "finalize" {
				handler.ClientFinalize(ctx)
			}
		}
	}
}

// handleConsumer serves the caption subscriber socket. Consumers only
// listen; the read loop exists to detect disconnects.
func (s *Server) handleConsumer(w http.ResponseWriter, r *http.Request) {
	conn, err := upgrader.Upgrade(w, r, nil)
	if err != nil {
		s.log.Error().Err(err).Msg("consumer upgrade failed")
		return
	}

	s.hub.Register(conn)
	defer func() {
		s.hub.Unregister(conn)
		_ = conn.Close()
	}()

	for {
		if _, _, err := conn.ReadMessage(); err != nil {
			return
		}
	}
}

// newAdapter picks the upstream recognizer. Without an API key the mock
// adapter drives the pipeline with canned utterances.
func (s *Server) newAdapter(srcLang string) stt.Adapter {
	if s.cfg.Deepgram.APIKey == "" {
		return mock.New()
	}
	return deepgram.New(deepgram.Config{
		Endpoint:       s.cfg.Deepgram.Endpoint,
		APIKey:         s.cfg.Deepgram.APIKey,
		Model:          s.cfg.Deepgram.Model,
		Language:       dgLanguage(srcLang, s.cfg.Deepgram.Language),
		SampleRateHz:   s.cfg.Deepgram.SampleRateHz,
		EndpointingMs:  s.cfg.Deepgram.EndpointingMs,
		UtteranceEndMs: s.cfg.Deepgram.UtteranceEndMs,
	})
}

// cleanLang sanitizes a language code from the query string.
func cleanLang(raw, def string) string {
	raw = strings.TrimSpace(strings.ToLower(raw))
	if raw == "" {
		return def
	}
	return raw
}

// dgLanguage maps UI language codes to the identifiers Deepgram
// expects, falling back to the configured default.
func dgLanguage(raw, def string) string {
	token := strings.TrimSpace(strings.ToLower(raw))
	if token == "" {
		return def
	}
	overrides := map[string]string{
		"en": "en", "en-us": "en", "en-gb": "en",
		"ko": "ko", "ko-kr": "ko",
		"es": "es", "es-es": "es",
		"zh": "zh", "zh-cn": "zh", "zh-hans": "zh", "zh-tw": "zh", "zh-hant": "zh",
	}
	if mapped, ok := overrides[token]; ok {
		return mapped
	}
	primary := strings.SplitN(token, "-", 2)[0]
	if mapped, ok := overrides[primary]; ok {
		return mapped
	}
	if primary != "" {
		return primary
	}
	return def
}
