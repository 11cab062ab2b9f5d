// Package deepgram implements stt.Adapter on Deepgram's raw streaming
// websocket API.
package deepgram

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/gorilla/websocket"
	"github.com/rs/zerolog"

	"github.com/Nick-Bae/deepgram/internal/observability/logging"
	"github.com/Nick-Bae/deepgram/internal/service/stt"
)

// Config holds Deepgram connection settings.
type Config struct {
	Endpoint string // wss://api.deepgram.com/v1/listen
	APIKey   string
	Model    string // e.g. "nova-3"
	Language string // e.g. "ko"

	SampleRateHz   int
	EndpointingMs  int
	UtteranceEndMs int

	// Keywords bias recognition toward domain vocabulary. Sent as
	// keyterm on nova-3 and keywords with a boost on older models.
	Keywords []string
}

// Adapter streams raw PCM audio to Deepgram and relays transcript
// results to the callback.
type Adapter struct {
	cfg Config
	log zerolog.Logger

	mu     sync.Mutex
	conn   *websocket.Conn
	cb     stt.Callback
	closed bool
}

// New creates a Deepgram adapter. Start must be called before audio is
// sent.
func New(cfg Config) *Adapter {
	if cfg.Endpoint == "" {
		cfg.Endpoint = "wss://api.deepgram.com/v1/listen"
	}
	if cfg.Model == "" {
		cfg.Model = "nova-3"
	}
	if cfg.Language == "" {
		cfg.Language = "ko"
	}
	if cfg.SampleRateHz <= 0 {
		cfg.SampleRateHz = 48000
	}
	return &Adapter{cfg: cfg, log: logging.WithComponent("deepgram")}
}

// Start dials the streaming endpoint and begins the read loop.
func (a *Adapter) Start(ctx context.Context, cb stt.Callback) error {
	if a.cfg.APIKey == "" {
		return fmt.Errorf("deepgram: API key not set")
	}

	dialer := websocket.Dialer{HandshakeTimeout: 20 * time.Second}
	header := http.Header{"Authorization": {"Token " + a.cfg.APIKey}}
	conn, resp, err := dialer.DialContext(ctx, a.streamURL(), header)
	if err != nil {
		if resp != nil {
			return fmt.Errorf("deepgram: dial failed with status %s: %w", resp.Status, err)
		}
		return fmt.Errorf("deepgram: dial failed: %w", err)
	}

	a.mu.Lock()
	a.conn = conn
	a.cb = cb
	a.mu.Unlock()

	go a.readLoop(conn, cb)
	a.log.Info().Str("model", a.cfg.Model).Str("language", a.cfg.Language).Msg("deepgram stream opened")
	return nil
}

// streamURL builds the listen URL with all recognition parameters.
func (a *Adapter) streamURL() string {
	q := url.Values{}
	q.Set("model", a.cfg.Model)
	q.Set("language", a.cfg.Language)
	q.Set("punctuate", "true")
	q.Set("smart_format", "true")
	q.Set("interim_results", "true")
	q.Set("encoding", "linear16")
	q.Set("sample_rate", strconv.Itoa(a.cfg.SampleRateHz))
	q.Set("vad_events", "true")
	if a.cfg.EndpointingMs > 0 {
		q.Set("endpointing", strconv.Itoa(a.cfg.EndpointingMs))
	}
	if a.cfg.UtteranceEndMs > 0 {
		q.Set("utterance_end_ms", strconv.Itoa(a.cfg.UtteranceEndMs))
	}
	for _, kw := range a.cfg.Keywords {
		kw = strings.TrimSpace(kw)
		if kw == "" {
			continue
		}
		if strings.HasPrefix(a.cfg.Model, "nova-3") {
			q.Add("keyterm", kw)
		} else {
			q.Add("keywords", kw+":3")
		}
	}
	return a.cfg.Endpoint + "?" + q.Encode()
}

// SendAudio forwards one raw PCM chunk.
func (a *Adapter) SendAudio(_ context.Context, audio []byte) error {
	a.mu.Lock()
	defer a.mu.Unlock()
	if a.closed || a.conn == nil {
		return nil
	}
	return a.conn.WriteMessage(websocket.BinaryMessage, audio)
}

// Finalize asks Deepgram to flush its current hypothesis now.
func (a *Adapter) Finalize(_ context.Context) error {
	a.mu.Lock()
	defer a.mu.Unlock()
	if a.closed || a.conn == nil {
		return nil
	}
	return a.conn.WriteJSON(map[string]string{"type": "Finalize"})
}

// Close shuts the stream down. Safe to call more than once.
func (a *Adapter) Close() error {
	a.mu.Lock()
	defer a.mu.Unlock()
	if a.closed {
		return nil
	}
	a.closed = true
	if a.conn == nil {
		return nil
	}
	_ = a.conn.WriteJSON(map[string]string{"type": "CloseStream"})
	return a.conn.Close()
}

// resultMessage is the subset of Deepgram's Results payload the adapter
// consumes.
type resultMessage struct {
	Type        string `json:"type"`
	IsFinal     bool   `json:"is_final"`
	SpeechFinal bool   `json:"speech_final"`
	Channel     struct {
		Alternatives []struct {
			Transcript string `json:"transcript"`
			Words      []struct {
				Word           string `json:"word"`
				PunctuatedWord string `json:"punctuated_word"`
			} `json:"words"`
		} `json:"alternatives"`
	} `json:"channel"`
}

func (a *Adapter) readLoop(conn *websocket.Conn, cb stt.Callback) {
	for {
		_, raw, err := conn.ReadMessage()
		if err != nil {
			a.mu.Lock()
			closed := a.closed
			a.mu.Unlock()
			if !closed {
				cb.OnError(fmt.Errorf("deepgram: read failed: %w", err))
			}
			return
		}

		var msg resultMessage
		if err := json.Unmarshal(raw, &msg); err != nil {
			continue
		}
		if msg.Type != "Results" || len(msg.Channel.Alternatives) == 0 {
			continue
		}

		best := msg.Channel.Alternatives[0]
		transcript := strings.TrimSpace(best.Transcript)

		// Deepgram often returns Korean transcripts with the spaces
		// collapsed; the word list keeps them. Rebuild from words when
		// that recovers spacing without losing content.
		if strings.HasPrefix(strings.ToLower(a.cfg.Language), "ko") && len(best.Words) > 0 {
			parts := make([]string, 0, len(best.Words))
			for _, w := range best.Words {
				word := strings.TrimSpace(w.PunctuatedWord)
				if word == "" {
					word = strings.TrimSpace(w.Word)
				}
				if word != "" {
					parts = append(parts, word)
				}
			}
			joined := strings.Join(parts, " ")
			if joined != "" && (!strings.Contains(transcript, " ") || len(joined) >= len(transcript)-2) {
				transcript = joined
			}
		}

		if transcript == "" {
			continue
		}
		if msg.IsFinal {
			cb.OnFinal(transcript, msg.SpeechFinal)
		} else {
			cb.OnPartial(transcript)
		}
	}
}
