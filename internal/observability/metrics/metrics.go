// Package metrics provides Prometheus metrics for observability.
package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

const namespace = "live_caption"

// Metrics holds all Prometheus metrics for the service.
type Metrics struct {
	// Session metrics
	SessionsTotal   prometheus.Counter
	SessionsActive  prometheus.Gauge
	SessionDuration prometheus.Histogram

	// Clause metrics
	PartialsReceived prometheus.Counter
	Rebases          prometheus.Counter
	Finalizes        *prometheus.CounterVec
	FinalizeWithheld *prometheus.CounterVec
	ClauseLength     prometheus.Histogram
	UpstreamPulses   prometheus.Counter

	// Dispatch metrics
	FinalsSent        prometheus.Counter
	FinalsSuppressed  *prometheus.CounterVec
	PreviewsSent      prometheus.Counter
	PreviewsThrottled prometheus.Counter
	TranslateErrors   prometheus.Counter
	TranslateLatency  prometheus.Histogram

	// Reconciler metrics
	SegmentsReceived    *prometheus.CounterVec
	SegmentsDropped     *prometheus.CounterVec
	SoftFinalPromotions prometheus.Counter
	DispatchSuppressed  *prometheus.CounterVec
	Dispatched          prometheus.Counter
	CommitLatency       prometheus.Histogram

	// Broadcast hub metrics
	ConsumersActive prometheus.Gauge
	BroadcastsTotal prometheus.Counter
	BroadcastErrors prometheus.Counter

	// Kafka publish metrics
	KafkaPublishTotal   *prometheus.CounterVec
	KafkaPublishErrors  *prometheus.CounterVec
	KafkaPublishLatency *prometheus.HistogramVec
}

// DefaultMetrics is the global metrics instance.
var DefaultMetrics = NewMetrics()

// NewMetrics creates and registers all Prometheus metrics.
func NewMetrics() *Metrics {
	return &Metrics{
		SessionsTotal: promauto.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "sessions_total",
			Help:      "Total number of transcription sessions started",
		}),
		SessionsActive: promauto.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "sessions_active",
			Help:      "Number of currently active transcription sessions",
		}),
		SessionDuration: promauto.NewHistogram(prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "session_duration_seconds",
			Help:      "Duration of transcription sessions in seconds",
			Buckets:   []float64{1, 5, 10, 30, 60, 300, 900, 1800, 3600},
		}),

		PartialsReceived: promauto.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "partials_received_total",
			Help:      "Total number of partial transcript snapshots consumed",
		}),
		Rebases: promauto.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "rebases_total",
			Help:      "Total number of non-prefix transcript rebases",
		}),
		Finalizes: promauto.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "finalizes_total",
			Help:      "Total number of clause finalize events",
		}, []string{"reason"}),
		FinalizeWithheld: promauto.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "finalize_withheld_total",
			Help:      "Linger timer expiries that did not finalize",
		}, []string{"cause"}),
		ClauseLength: promauto.NewHistogram(prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "clause_length_runes",
			Help:      "Length of finalized clauses in runes",
			Buckets:   []float64{5, 10, 20, 40, 80, 160},
		}),
		UpstreamPulses: promauto.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "upstream_pulses_total",
			Help:      "Finalize-now pulses sent to the upstream producer",
		}),

		FinalsSent: promauto.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "finals_sent_total",
			Help:      "Finalized clauses handed to the translation call",
		}),
		FinalsSuppressed: promauto.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "finals_suppressed_total",
			Help:      "Finalized clauses suppressed before the translation call",
		}, []string{"cause"}),
		PreviewsSent: promauto.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "previews_sent_total",
			Help:      "Preview (non-final) translation requests sent",
		}),
		PreviewsThrottled: promauto.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "previews_throttled_total",
			Help:      "Preview requests dropped by the throttle",
		}),
		TranslateErrors: promauto.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "translate_errors_total",
			Help:      "Translation call failures (fail-open)",
		}),
		TranslateLatency: promauto.NewHistogram(prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "translate_latency_seconds",
			Help:      "Translation call round-trip latency in seconds",
			Buckets:   []float64{0.1, 0.25, 0.5, 1, 2, 5, 10},
		}),

		SegmentsReceived: promauto.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "broadcast_segments_total",
			Help:      "Inbound broadcast segments by finality",
		}, []string{"final"}),
		SegmentsDropped: promauto.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "broadcast_segments_dropped_total",
			Help:      "Inbound broadcast segments dropped at the edge",
		}, []string{"reason"}),
		SoftFinalPromotions: promauto.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "soft_final_promotions_total",
			Help:      "Non-final segments promoted to final by stability",
		}),
		DispatchSuppressed: promauto.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "dispatch_suppressed_total",
			Help:      "Consumer dispatches suppressed by dedupe guards",
		}, []string{"cause"}),
		Dispatched: promauto.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "dispatched_total",
			Help:      "Finalized segments dispatched to the consumer sink",
		}),
		CommitLatency: promauto.NewHistogram(prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "commit_latency_seconds",
			Help:      "Time from last source update to final dispatch",
			Buckets:   []float64{0.25, 0.5, 1, 2, 3, 5, 10, 20},
		}),

		ConsumersActive: promauto.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "consumers_active",
			Help:      "WebSocket consumers currently connected",
		}),
		BroadcastsTotal: promauto.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "broadcasts_total",
			Help:      "Messages fanned out to consumers",
		}),
		BroadcastErrors: promauto.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "broadcast_errors_total",
			Help:      "Consumer write failures during fan-out",
		}),

		KafkaPublishTotal: promauto.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "kafka_publish_total",
			Help:      "Total number of Kafka messages published",
		}, []string{"topic", "event_type"}),
		KafkaPublishErrors: promauto.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "kafka_publish_errors_total",
			Help:      "Total number of Kafka publish errors",
		}, []string{"topic", "event_type"}),
		KafkaPublishLatency: promauto.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "kafka_publish_latency_seconds",
			Help:      "Kafka publish latency in seconds",
			Buckets:   []float64{0.001, 0.005, 0.01, 0.025, 0.05, 0.1, 0.25, 0.5, 1},
		}, []string{"topic"}),
	}
}

// RecordSessionStart records a new session starting.
func (m *Metrics) RecordSessionStart() {
	m.SessionsTotal.Inc()
	m.SessionsActive.Inc()
}

// RecordSessionEnd records a session ending.
func (m *Metrics) RecordSessionEnd(durationSeconds float64) {
	m.SessionsActive.Dec()
	m.SessionDuration.Observe(durationSeconds)
}

// RecordFinalize records a finalize event with its triggering reason.
func (m *Metrics) RecordFinalize(reason string, lengthRunes int) {
	m.Finalizes.WithLabelValues(reason).Inc()
	m.ClauseLength.Observe(float64(lengthRunes))
}

// RecordSegment records an inbound broadcast segment.
func (m *Metrics) RecordSegment(isFinal bool) {
	if isFinal {
		m.SegmentsReceived.WithLabelValues("true").Inc()
	} else {
		m.SegmentsReceived.WithLabelValues("false").Inc()
	}
}

// RecordKafkaPublish records a Kafka publish attempt.
func (m *Metrics) RecordKafkaPublish(topic, eventType string, err error, latencySeconds float64) {
	m.KafkaPublishTotal.WithLabelValues(topic, eventType).Inc()
	m.KafkaPublishLatency.WithLabelValues(topic).Observe(latencySeconds)
	if err != nil {
		m.KafkaPublishErrors.WithLabelValues(topic, eventType).Inc()
	}
}
