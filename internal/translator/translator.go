// Package translator converts finalized source-language clauses into the
// target language. Callers treat translation as best-effort: on failure
// the pipeline falls open and broadcasts the source text instead of
// stalling the caption stream.
package translator

import "context"

// Translator converts text between a language pair.
type Translator interface {
	Translate(ctx context.Context, text, sourceLang, targetLang string) (string, error)
}

// Noop echoes the input unchanged. Used when no backend is configured
// and in tests.
type Noop struct{}

func (Noop) Translate(_ context.Context, text, _, _ string) (string, error) {
	return text, nil
}
