// Package boundary decides whether a span of text ends at a sentence or
// clause boundary. The rules are pure data: terminal punctuation plus an
// ordered list of language-specific sentence-final patterns, so detection
// is side-effect-free and swappable without touching callers.
package boundary

import (
	"regexp"
	"strings"
)

// TerminalPunct is the default set of sentence-ending punctuation runes,
// including full-width forms and the ellipsis.
const TerminalPunct = ".?!。？！…"

// DefaultKoreanEndings is the closed list of Korean sentence-final verb
// endings used when no override is configured. Tuned empirically for
// spoken sermon transcripts; treat as configuration to refine, not as a
// grammatical contract.
var DefaultKoreanEndings = []string{
	"습니다", "입니다", "합니다", "했습니다", "할까요", "했어요", "했지요",
	"했네요", "예요", "이에요", "에요", "일까요", "였어요", "였습니까",
	"입니까", "됩니까", "나요", "군요", "지요", "래요", "랍니다", "라네요",
	"다", "아요", "어요",
}

// LangRule is an ordered set of sentence-final patterns for one language.
// Patterns are matched against the clause after terminal punctuation has
// been stripped.
type LangRule struct {
	Lang     string
	Patterns []*regexp.Regexp
}

// Detector reports clause boundaries per source language.
type Detector struct {
	terminal string
	rules    map[string][]*regexp.Regexp
}

// Config holds the data driving a Detector.
type Config struct {
	// TerminalPunct overrides the terminal punctuation set when non-empty.
	TerminalPunct string
	// Rules are language-specific sentence-final patterns. Languages are
	// matched on their primary subtag ("ko" matches "ko-KR").
	Rules []LangRule
}

// New builds a Detector from cfg. A zero Config yields punctuation-only
// detection for every language.
func New(cfg Config) *Detector {
	term := cfg.TerminalPunct
	if term == "" {
		term = TerminalPunct
	}
	rules := make(map[string][]*regexp.Regexp, len(cfg.Rules))
	for _, r := range cfg.Rules {
		rules[primaryLang(r.Lang)] = r.Patterns
	}
	return &Detector{terminal: term, rules: rules}
}

// Default returns a Detector with the built-in Korean ending list.
func Default() *Detector {
	return New(Config{Rules: []LangRule{KoreanRule(nil)}})
}

// KoreanRule builds the Korean sentence-final rule from an ending list.
// A nil or empty list falls back to DefaultKoreanEndings.
func KoreanRule(endings []string) LangRule {
	if len(endings) == 0 {
		endings = DefaultKoreanEndings
	}
	quoted := make([]string, len(endings))
	for i, e := range endings {
		quoted[i] = regexp.QuoteMeta(e)
	}
	re := regexp.MustCompile("(?:" + strings.Join(quoted, "|") + ")$")
	return LangRule{Lang: "ko", Patterns: []*regexp.Regexp{re}}
}

// IsBoundary reports whether text, taken as the whole clause so far, ends
// at a clause boundary under lang's rules. Idempotent and free of side
// effects; callers must pass the accumulated clause, not a delta.
func (d *Detector) IsBoundary(text, lang string) bool {
	t := strings.TrimSpace(text)
	if t == "" {
		return false
	}
	patterns, ok := d.rules[primaryLang(lang)]
	if !ok {
		return d.endsWithTerminal(t)
	}
	stripped := strings.TrimRight(t, d.terminal+" ")
	if stripped == "" {
		// Nothing but punctuation is not a clause.
		return false
	}
	for _, re := range patterns {
		if re.MatchString(stripped) {
			return true
		}
	}
	return false
}

func (d *Detector) endsWithTerminal(t string) bool {
	runes := []rune(t)
	last := runes[len(runes)-1]
	return strings.ContainsRune(d.terminal, last)
}

func primaryLang(lang string) string {
	lang = strings.ToLower(strings.TrimSpace(lang))
	if i := strings.IndexByte(lang, '-'); i > 0 {
		return lang[:i]
	}
	return lang
}
