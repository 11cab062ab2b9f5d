// Package config loads service configuration from the environment.
package config

import (
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
)

// Configuration is the full service configuration.
type Configuration struct {
	Service       ServiceConfig
	Languages     LanguageConfig
	Clause        ClauseConfig
	Dispatch      DispatchConfig
	Reconcile     ReconcileConfig
	Deepgram      DeepgramConfig
	Translator    TranslatorConfig
	Kafka         KafkaConfig
	Observability ObservabilityConfig
}

// ServiceConfig holds process-level settings.
type ServiceConfig struct {
	Name     string
	HTTPPort string
}

// LanguageConfig holds the default language pair.
type LanguageConfig struct {
	Source string
	Target string
}

// ClauseConfig tunes the clause accumulator and finalization scheduler.
type ClauseConfig struct {
	// Linger is the silence debounce before a non-boundary clause
	// finalizes.
	Linger time.Duration
	// MinClauseRunes is the minimum clause length for a silence
	// finalize.
	MinClauseRunes int
	// RebaseFlushMargin is added to MinClauseRunes when deciding whether
	// a rebase flushes the old buffer or drops it.
	RebaseFlushMargin int
	// CJKPendingHold replaces Linger for space-free CJK sources whose
	// buffer does not yet read as a complete sentence.
	CJKPendingHold time.Duration
	// IntroHoldPatterns are phrases that typically precede a pause
	// mid-thought; clauses matching one are withheld past the linger.
	IntroHoldPatterns []string
	// PulseInterval is the cadence of the upstream finalize-now nudge.
	PulseInterval time.Duration
	// PulseThrottle is the fraction of PulseInterval that must elapse
	// between pulses.
	PulseThrottle float64
	// KoreanEndings overrides the sentence-final morpheme list when set.
	KoreanEndings []string
	// SpacingWordList optionally points to a Korean word list file.
	SpacingWordList string
}

// DispatchConfig tunes the outbound dispatch gate.
type DispatchConfig struct {
	// PreviewThrottle is the minimum interval between preview sends.
	PreviewThrottle time.Duration
	// PreviewMinRunes gates previews on clause length.
	PreviewMinRunes int
	// SubsetSuppressWindow and SubsetMinDelta keep the CJK subset-commit
	// guard: a shorter suffix of a recent longer commit is dropped.
	SubsetSuppressWindow time.Duration
	SubsetMinDelta       int
}

// ReconcileConfig tunes soft-final promotion.
type ReconcileConfig struct {
	// StableRepeats promotes a non-final segment once its text has been
	// seen this many times unchanged.
	StableRepeats int
	// StableAge promotes a non-final segment once it has aged past this.
	StableAge time.Duration
}

// DeepgramConfig holds upstream STT settings.
type DeepgramConfig struct {
	Endpoint       string
	APIKey         string
	Model          string
	Language       string
	SampleRateHz   int
	EndpointingMs  int
	UtteranceEndMs int
}

// TranslatorConfig holds translation backend settings.
type TranslatorConfig struct {
	APIKey  string
	Model   string
	BaseURL string
	Timeout time.Duration
}

// KafkaConfig holds caption archive publisher settings.
type KafkaConfig struct {
	Enabled      bool
	Brokers      []string
	TopicPartial string
	TopicFinal   string
	Principal    string
}

// ObservabilityConfig holds logging and metrics settings.
type ObservabilityConfig struct {
	LogLevel    string
	LogFormat   string
	MetricsPort string
}

// Load reads configuration from the environment. A .env file in the
// working directory is applied first when present.
func Load() *Configuration {
	_ = godotenv.Load()

	principal := envOrDefault("SERVICE_PRINCIPAL", "svc-live-caption")

	return &Configuration{
		Service: ServiceConfig{
			Name:     principal,
			HTTPPort: envOrDefault("HTTP_PORT", "8000"),
		},
		Languages: LanguageConfig{
			Source: envOrDefault("SOURCE_LANG", "ko"),
			Target: envOrDefault("TARGET_LANG", "en"),
		},
		Clause: ClauseConfig{
			Linger:            envOrDefaultDuration("CLAUSE_LINGER", 300*time.Millisecond),
			MinClauseRunes:    envOrDefaultInt("CLAUSE_MIN_RUNES", 10),
			RebaseFlushMargin: envOrDefaultInt("CLAUSE_REBASE_MARGIN", 4),
			CJKPendingHold:    envOrDefaultDuration("CLAUSE_CJK_HOLD", 600*time.Millisecond),
			IntroHoldPatterns: envOrDefaultList("CLAUSE_INTRO_HOLD", defaultIntroHold),
			PulseInterval:     envOrDefaultDuration("CLAUSE_PULSE_INTERVAL", 2600*time.Millisecond),
			PulseThrottle:     envOrDefaultFloat("CLAUSE_PULSE_THROTTLE", 0.8),
			KoreanEndings:     envOrDefaultList("KOREAN_ENDINGS", nil),
			SpacingWordList:   os.Getenv("KO_SPACING_WORDLIST"),
		},
		Dispatch: DispatchConfig{
			PreviewThrottle:      envOrDefaultDuration("PREVIEW_THROTTLE", 400*time.Millisecond),
			PreviewMinRunes:      envOrDefaultInt("PREVIEW_MIN_RUNES", 6),
			SubsetSuppressWindow: envOrDefaultDuration("SUBSET_SUPPRESS_WINDOW", 4*time.Second),
			SubsetMinDelta:       envOrDefaultInt("SUBSET_MIN_DELTA", 6),
		},
		Reconcile: ReconcileConfig{
			StableRepeats: envOrDefaultInt("STABLE_REPEATS", 2),
			StableAge:     envOrDefaultDuration("STABLE_AGE", 900*time.Millisecond),
		},
		Deepgram: DeepgramConfig{
			Endpoint:       envOrDefault("DEEPGRAM_ENDPOINT", "wss://api.deepgram.com/v1/listen"),
			APIKey:         os.Getenv("DEEPGRAM_API_KEY"),
			Model:          envOrDefault("DEEPGRAM_MODEL", "nova-3"),
			Language:       envOrDefault("DEEPGRAM_LANGUAGE", "ko"),
			SampleRateHz:   envOrDefaultInt("DEEPGRAM_SAMPLE_RATE_HZ", 48000),
			EndpointingMs:  envOrDefaultBoundedInt("DG_ENDPOINTING_MS", 3500, 200, 6000),
			UtteranceEndMs: envOrDefaultBoundedInt("DG_UTTER_END_MS", 1800, 500, 6000),
		},
		Translator: TranslatorConfig{
			APIKey:  os.Getenv("OPENAI_API_KEY"),
			Model:   envOrDefault("OPENAI_MODEL", "gpt-4o-mini"),
			BaseURL: envOrDefault("OPENAI_BASE_URL", "https://api.openai.com/v1"),
			Timeout: envOrDefaultDuration("TRANSLATE_TIMEOUT", 15*time.Second),
		},
		Kafka: KafkaConfig{
			Enabled:      envOrDefaultBool("KAFKA_ENABLED", false),
			Brokers:      envOrDefaultList("KAFKA_BROKERS", nil),
			TopicPartial: envOrDefault("KAFKA_TOPIC_PARTIAL", "caption.partial"),
			TopicFinal:   envOrDefault("KAFKA_TOPIC_FINAL", "caption.final"),
			Principal:    envOrDefault("KAFKA_PRINCIPAL", principal),
		},
		Observability: ObservabilityConfig{
			LogLevel:    envOrDefault("LOG_LEVEL", "info"),
			LogFormat:   envOrDefault("LOG_FORMAT", "json"),
			MetricsPort: envOrDefault("METRICS_PORT", "9090"),
		},
	}
}

// defaultIntroHold lists phrases that typically precede a pause
// mid-thought and must not be committed as complete clauses.
var defaultIntroHold = []string{
	"요약하자면",
	"정리하자면",
	"결론적으로",
	"말씀드리자면",
	"그러니까",
	"in summary",
	"in conclusion",
	"to summarize",
}

func envOrDefault(key, def string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return def
}

func envOrDefaultInt(key string, def int) int {
	raw := os.Getenv(key)
	if raw == "" {
		return def
	}
	v, err := strconv.Atoi(strings.TrimSpace(raw))
	if err != nil {
		return def
	}
	return v
}

func envOrDefaultBoundedInt(key string, def, min, max int) int {
	v := envOrDefaultInt(key, def)
	if v < min || v > max {
		return def
	}
	return v
}

func envOrDefaultBool(key string, def bool) bool {
	raw := os.Getenv(key)
	if raw == "" {
		return def
	}
	v, err := strconv.ParseBool(strings.ToLower(strings.TrimSpace(raw)))
	if err != nil {
		return def
	}
	return v
}

func envOrDefaultFloat(key string, def float64) float64 {
	raw := os.Getenv(key)
	if raw == "" {
		return def
	}
	v, err := strconv.ParseFloat(strings.TrimSpace(raw), 64)
	if err != nil {
		return def
	}
	return v
}

func envOrDefaultDuration(key string, def time.Duration) time.Duration {
	raw := os.Getenv(key)
	if raw == "" {
		return def
	}
	v, err := time.ParseDuration(strings.TrimSpace(raw))
	if err != nil {
		return def
	}
	return v
}

func envOrDefaultList(key string, def []string) []string {
	raw := os.Getenv(key)
	if raw == "" {
		return def
	}
	var out []string
	for _, tok := range strings.Split(raw, ",") {
		if t := strings.TrimSpace(tok); t != "" {
			out = append(out, t)
		}
	}
	if len(out) == 0 {
		return def
	}
	return out
}
