// Package hub fans outbound caption messages out to every connected
// websocket consumer, plus any in-process taps.
package hub

import (
	"encoding/json"
	"sync"

	"github.com/gorilla/websocket"
	"github.com/rs/zerolog"

	"github.com/Nick-Bae/deepgram/internal/observability/logging"
	"github.com/Nick-Bae/deepgram/internal/observability/metrics"
)

// Hub manages websocket consumer connections. A consumer that fails a
// write is dropped; slow consumers never stall the pipeline beyond one
// write call.
type Hub struct {
	mu      sync.Mutex
	clients map[*websocket.Conn]bool
	taps    []func(raw []byte)
	log     zerolog.Logger
	m       *metrics.Metrics
}

// New creates an empty hub.
func New() *Hub {
	return &Hub{
		clients: make(map[*websocket.Conn]bool),
		log:     logging.WithComponent("hub"),
		m:       metrics.DefaultMetrics,
	}
}

// Register adds a consumer connection.
func (h *Hub) Register(conn *websocket.Conn) {
	h.mu.Lock()
	h.clients[conn] = true
	n := len(h.clients)
	h.mu.Unlock()
	h.m.ConsumersActive.Set(float64(n))
	h.log.Info().Int("consumers", n).Msg("consumer connected")
}

// Unregister removes and closes a consumer connection.
func (h *Hub) Unregister(conn *websocket.Conn) {
	h.mu.Lock()
	if _, ok := h.clients[conn]; ok {
		delete(h.clients, conn)
		conn.Close()
	}
	n := len(h.clients)
	h.mu.Unlock()
	h.m.ConsumersActive.Set(float64(n))
	h.log.Info().Int("consumers", n).Msg("consumer disconnected")
}

// Tap adds an in-process subscriber that receives every broadcast frame
// as marshaled JSON. Taps run synchronously on the broadcasting
// goroutine.
func (h *Hub) Tap(fn func(raw []byte)) {
	h.mu.Lock()
	h.taps = append(h.taps, fn)
	h.mu.Unlock()
}

// ConsumerCount returns the number of connected consumers.
func (h *Hub) ConsumerCount() int {
	h.mu.Lock()
	defer h.mu.Unlock()
	return len(h.clients)
}

// Broadcast marshals v once and writes it to every consumer and tap.
// Consumers whose write fails are dropped.
func (h *Hub) Broadcast(v any) {
	raw, err := json.Marshal(v)
	if err != nil {
		h.log.Error().Err(err).Msg("broadcast marshal failed")
		return
	}

	h.mu.Lock()
	taps := h.taps
	for conn := range h.clients {
		if err := conn.WriteMessage(websocket.TextMessage, raw); err != nil {
			h.m.BroadcastErrors.Inc()
			h.log.Warn().Err(err).Msg("consumer write failed, dropping")
			conn.Close()
			delete(h.clients, conn)
		}
	}
	n := len(h.clients)
	h.mu.Unlock()

	h.m.ConsumersActive.Set(float64(n))
	h.m.BroadcastsTotal.Inc()

	for _, fn := range taps {
		fn(raw)
	}
}

// Close drops every consumer.
func (h *Hub) Close() {
	h.mu.Lock()
	for conn := range h.clients {
		conn.Close()
		delete(h.clients, conn)
	}
	h.mu.Unlock()
	h.m.ConsumersActive.Set(0)
}
