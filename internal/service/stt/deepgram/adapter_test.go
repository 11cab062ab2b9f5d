package deepgram

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/gorilla/websocket"
)

type testCallback struct {
	mu       sync.Mutex
	partials []string
	finals   []finalResult
	errors   []error
}

type finalResult struct {
	text        string
	speechFinal bool
}

func (c *testCallback) OnPartial(text string) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.partials = append(c.partials, text)
}

func (c *testCallback) OnFinal(text string, speechFinal bool) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.finals = append(c.finals, finalResult{text, speechFinal})
}

func (c *testCallback) OnError(err error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.errors = append(c.errors, err)
}

func (c *testCallback) getPartials() []string {
	c.mu.Lock()
	defer c.mu.Unlock()
	return append([]string{}, c.partials...)
}

func (c *testCallback) getFinals() []finalResult {
	c.mu.Lock()
	defer c.mu.Unlock()
	return append([]finalResult{}, c.finals...)
}

// fakeDeepgram upgrades incoming connections and records what it saw.
type fakeDeepgram struct {
	t        *testing.T
	upgrader websocket.Upgrader

	mu    sync.Mutex
	query map[string][]string
	auth  string
	conn  *websocket.Conn

	binary chan []byte
	text   chan []byte
	ready  chan struct{}
}

func newFakeDeepgram(t *testing.T) (*fakeDeepgram, *httptest.Server) {
	f := &fakeDeepgram{
		t:      t,
		binary: make(chan []byte, 16),
		text:   make(chan []byte, 16),
		ready:  make(chan struct{}),
	}
	srv := httptest.NewServer(http.HandlerFunc(f.handle))
	t.Cleanup(srv.Close)
	return f, srv
}

func (f *fakeDeepgram) handle(w http.ResponseWriter, r *http.Request) {
	f.mu.Lock()
	f.query = r.URL.Query()
	f.auth = r.Header.Get("Authorization")
	f.mu.Unlock()

	conn, err := f.upgrader.Upgrade(w, r, nil)
	if err != nil {
		f.t.Errorf("upgrade: %v", err)
		return
	}
	f.mu.Lock()
	f.conn = conn
	f.mu.Unlock()
	close(f.ready)

	for {
		mt, data, err := conn.ReadMessage()
		if err != nil {
			return
		}
		switch mt {
		case websocket.BinaryMessage:
			f.binary <- data
		case websocket.TextMessage:
			f.text <- data
		}
	}
}

func (f *fakeDeepgram) send(t *testing.T, v any) {
	t.Helper()
	f.mu.Lock()
	conn := f.conn
	f.mu.Unlock()
	if err := conn.WriteJSON(v); err != nil {
		t.Fatalf("server write: %v", err)
	}
}

func wsURL(srv *httptest.Server) string {
	return "ws" + strings.TrimPrefix(srv.URL, "http")
}

func resultsFrame(transcript string, words []map[string]string, isFinal, speechFinal bool) map[string]any {
	return map[string]any{
		"type":         "Results",
		"is_final":     isFinal,
		"speech_final": speechFinal,
		"channel": map[string]any{
			"alternatives": []map[string]any{
				{"transcript": transcript, "words": words},
			},
		},
	}
}

func waitFor(t *testing.T, cond func() bool) {
	t.Helper()
	deadline := time.Now().Add(2 * time.Second)
	for time.Now().Before(deadline) {
		if cond() {
			return
		}
		time.Sleep(10 * time.Millisecond)
	}
	t.Fatal("condition not met in time")
}

func TestAdapter_StartSendsRecognitionParams(t *testing.T) {
	f, srv := newFakeDeepgram(t)
	a := New(Config{
		Endpoint:       wsURL(srv),
		APIKey:         "dg-key",
		Model:          "nova-3",
		Language:       "ko",
		SampleRateHz:   48000,
		EndpointingMs:  3500,
		UtteranceEndMs: 1800,
		Keywords:       []string{"하나님", "예수님"},
	})
	defer a.Close()

	if err := a.Start(context.Background(), &testCallback{}); err != nil {
		t.Fatalf("start: %v", err)
	}
	<-f.ready

	f.mu.Lock()
	defer f.mu.Unlock()
	if f.auth != "Token dg-key" {
		t.Errorf("unexpected auth header %q", f.auth)
	}
	want := map[string]string{
		"model":            "nova-3",
		"language":         "ko",
		"punctuate":        "true",
		"smart_format":     "true",
		"interim_results":  "true",
		"encoding":         "linear16",
		"sample_rate":      "48000",
		"vad_events":       "true",
		"endpointing":      "3500",
		"utterance_end_ms": "1800",
	}
	for k, v := range want {
		if got := f.query[k]; len(got) != 1 || got[0] != v {
			t.Errorf("query %s = %v, want %q", k, got, v)
		}
	}
	if got := f.query["keyterm"]; len(got) != 2 {
		t.Errorf("expected 2 keyterm entries on nova-3, got %v", got)
	}
}

func TestAdapter_KeywordsOnOlderModels(t *testing.T) {
	f, srv := newFakeDeepgram(t)
	a := New(Config{Endpoint: wsURL(srv), APIKey: "dg-key", Model: "nova-2", Keywords: []string{"하나님"}})
	defer a.Close()

	if err := a.Start(context.Background(), &testCallback{}); err != nil {
		t.Fatalf("start: %v", err)
	}
	<-f.ready

	f.mu.Lock()
	defer f.mu.Unlock()
	if got := f.query["keywords"]; len(got) != 1 || got[0] != "하나님:3" {
		t.Errorf("expected boosted keywords on nova-2, got %v", got)
	}
}

func TestAdapter_RelaysPartialsAndFinals(t *testing.T) {
	f, srv := newFakeDeepgram(t)
	a := New(Config{Endpoint: wsURL(srv), APIKey: "dg-key", Language: "en"})
	defer a.Close()

	cb := &testCallback{}
	if err := a.Start(context.Background(), cb); err != nil {
		t.Fatalf("start: %v", err)
	}
	<-f.ready

	f.send(t, resultsFrame("hello every", nil, false, false))
	f.send(t, resultsFrame("hello everyone", nil, true, true))
	f.send(t, map[string]any{"type": "UtteranceEnd"})

	waitFor(t, func() bool { return len(cb.getFinals()) == 1 })
	if got := cb.getPartials(); len(got) != 1 || got[0] != "hello every" {
		t.Errorf("unexpected partials %v", got)
	}
	finals := cb.getFinals()
	if finals[0].text != "hello everyone" || !finals[0].speechFinal {
		t.Errorf("unexpected final %+v", finals[0])
	}
}

func TestAdapter_KoreanWordJoinRecoversSpacing(t *testing.T) {
	f, srv := newFakeDeepgram(t)
	a := New(Config{Endpoint: wsURL(srv), APIKey: "dg-key", Language: "ko"})
	defer a.Close()

	cb := &testCallback{}
	if err := a.Start(context.Background(), cb); err != nil {
		t.Fatalf("start: %v", err)
	}
	<-f.ready

	// Transcript arrives with the spaces collapsed; the word list has
	// them.
	f.send(t, resultsFrame("하나님은사랑이십니다", []map[string]string{
		{"word": "하나님은", "punctuated_word": "하나님은"},
		{"word": "사랑이십니다", "punctuated_word": "사랑이십니다."},
	}, false, false))

	waitFor(t, func() bool { return len(cb.getPartials()) == 1 })
	if got := cb.getPartials()[0]; got != "하나님은 사랑이십니다." {
		t.Errorf("expected word-join reconstruction, got %q", got)
	}
}

func TestAdapter_SendAudioAndFinalize(t *testing.T) {
	f, srv := newFakeDeepgram(t)
	a := New(Config{Endpoint: wsURL(srv), APIKey: "dg-key"})
	defer a.Close()

	if err := a.Start(context.Background(), &testCallback{}); err != nil {
		t.Fatalf("start: %v", err)
	}
	<-f.ready

	if err := a.SendAudio(context.Background(), []byte{1, 2, 3, 4}); err != nil {
		t.Fatalf("send audio: %v", err)
	}
	select {
	case got := <-f.binary:
		if len(got) != 4 {
			t.Errorf("expected 4 audio bytes, got %d", len(got))
		}
	case <-time.After(2 * time.Second):
		t.Fatal("audio never reached the server")
	}

	if err := a.Finalize(context.Background()); err != nil {
		t.Fatalf("finalize: %v", err)
	}
	select {
	case got := <-f.text:
		var ctrl map[string]string
		if err := json.Unmarshal(got, &ctrl); err != nil || ctrl["type"] != "Finalize" {
			t.Errorf("expected Finalize control frame, got %s", got)
		}
	case <-time.After(2 * time.Second):
		t.Fatal("finalize frame never reached the server")
	}
}

func TestAdapter_CloseIdempotentAndQuiet(t *testing.T) {
	f, srv := newFakeDeepgram(t)
	a := New(Config{Endpoint: wsURL(srv), APIKey: "dg-key"})

	cb := &testCallback{}
	if err := a.Start(context.Background(), cb); err != nil {
		t.Fatalf("start: %v", err)
	}
	<-f.ready

	if err := a.Close(); err != nil {
		t.Fatalf("close: %v", err)
	}
	if err := a.Close(); err != nil {
		t.Fatalf("second close: %v", err)
	}
	// Sends after close are dropped, not errors.
	if err := a.SendAudio(context.Background(), []byte{1}); err != nil {
		t.Errorf("send after close: %v", err)
	}

	time.Sleep(50 * time.Millisecond)
	cb.mu.Lock()
	defer cb.mu.Unlock()
	if len(cb.errors) != 0 {
		t.Errorf("close must not surface read errors, got %v", cb.errors)
	}
}

func TestAdapter_StartRequiresAPIKey(t *testing.T) {
	a := New(Config{})
	if err := a.Start(context.Background(), &testCallback{}); err == nil {
		t.Error("expected error without API key")
	}
}
