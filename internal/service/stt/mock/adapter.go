// Package mock provides a mock STT adapter for running the pipeline
// without Deepgram credentials. It simulates realistic streaming
// behavior: progressive partial transcripts, exactly one final per
// utterance, and an early flush when Finalize is requested.
package mock

import (
	"context"
	"sync"
	"time"

	"github.com/Nick-Bae/deepgram/internal/service/stt"
)

// SimulatedUtterance represents a mock utterance with progressive
// transcripts.
type SimulatedUtterance struct {
	Partials    []string
	Final       string
	SpeechFinal bool
}

// DefaultUtterances provides sample Korean utterances for simulation.
var DefaultUtterances = []SimulatedUtterance{
	{
		Partials:    []string{"오늘", "오늘 하나님은", "오늘 하나님은 사랑이"},
		Final:       "오늘 하나님은 사랑이십니다.",
		SpeechFinal: true,
	},
	{
		Partials:    []string{"우리가 함께", "우리가 함께 찬양하는"},
		Final:       "우리가 함께 찬양하는 시간입니다.",
		SpeechFinal: true,
	},
	{
		Partials:    []string{"말씀을", "말씀을 전했어요"},
		Final:       "말씀을 전했어요.",
		SpeechFinal: false,
	},
	{
		Partials:    []string{"다 같이", "다 같이 기도"},
		Final:       "다 같이 기도합시다.",
		SpeechFinal: true,
	},
	{
		Partials:    []string{"아멘"},
		Final:       "아멘.",
		SpeechFinal: true,
	},
}

// Adapter implements stt.Adapter with mock responses. One partial is
// emitted per audio frame; once the partials are exhausted the final
// follows.
type Adapter struct {
	mu           sync.Mutex
	cb           stt.Callback
	utterance    SimulatedUtterance
	partialIndex int
	finalSent    bool
	closed       bool
}

var (
	utteranceCounter int
	counterMu        sync.Mutex
)

// New creates a new mock STT adapter, cycling through the default
// utterances.
func New() *Adapter {
	counterMu.Lock()
	idx := utteranceCounter % len(DefaultUtterances)
	utteranceCounter++
	counterMu.Unlock()

	return &Adapter{utterance: DefaultUtterances[idx]}
}

// Start begins a mock transcription session.
func (a *Adapter) Start(_ context.Context, cb stt.Callback) error {
	a.mu.Lock()
	a.cb = cb
	a.mu.Unlock()
	return nil
}

// SendAudio simulates receiving audio: each frame advances the
// progressive transcript by one step, then silence detection emits the
// final.
func (a *Adapter) SendAudio(_ context.Context, _ []byte) error {
	a.mu.Lock()
	defer a.mu.Unlock()
	if a.closed || a.cb == nil {
		return nil
	}

	if a.partialIndex < len(a.utterance.Partials) {
		partial := a.utterance.Partials[a.partialIndex]
		a.partialIndex++
		go func(cb stt.Callback, text string) {
			time.Sleep(20 * time.Millisecond)
			a.mu.Lock()
			closed := a.closed
			a.mu.Unlock()
			if !closed {
				cb.OnPartial(text)
			}
		}(a.cb, partial)
		return nil
	}

	a.emitFinalLocked(0)
	return nil
}

// Finalize flushes the final immediately, like Deepgram's Finalize
// control message.
func (a *Adapter) Finalize(_ context.Context) error {
	a.mu.Lock()
	defer a.mu.Unlock()
	if a.closed {
		return nil
	}
	a.emitFinalLocked(0)
	return nil
}

// Close ends the mock session. If the final was never emitted, it goes
// out now so the tail of the utterance is not lost.
func (a *Adapter) Close() error {
	a.mu.Lock()
	defer a.mu.Unlock()
	if a.closed {
		return nil
	}
	a.emitFinalLocked(50 * time.Millisecond)
	a.closed = true
	return nil
}

func (a *Adapter) emitFinalLocked(delay time.Duration) {
	if a.finalSent || a.cb == nil {
		return
	}
	a.finalSent = true
	cb := a.cb
	utt := a.utterance
	go func() {
		if delay > 0 {
			time.Sleep(delay)
		}
		cb.OnFinal(utt.Final, utt.SpeechFinal)
	}()
}
