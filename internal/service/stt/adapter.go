// Package stt defines the interface for streaming Speech-to-Text
// adapters.
package stt

import "context"

// Callback receives transcript results from the STT provider.
type Callback interface {
	// OnPartial is called when an interim/partial transcript is
	// received.
	OnPartial(text string)

	// OnFinal is called when a final transcript is received.
	// speechFinal is true when the provider also detected the end of
	// the utterance, not just the end of a recognition chunk.
	OnFinal(text string, speechFinal bool)

	// OnError is called when an error occurs during transcription.
	OnError(err error)
}

// Adapter defines the interface for STT providers.
type Adapter interface {
	// Start begins a streaming transcription session.
	Start(ctx context.Context, cb Callback) error

	// SendAudio sends raw audio bytes to the STT provider.
	SendAudio(ctx context.Context, audio []byte) error

	// Finalize asks the provider to flush its current hypothesis as a
	// final result now, without waiting for silence.
	Finalize(ctx context.Context) error

	// Close ends the session and releases resources.
	Close() error
}
