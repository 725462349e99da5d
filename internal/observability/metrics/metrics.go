// Package metrics provides Prometheus metrics for observability.
package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

const namespace = "encounter_scribe"

// Metrics holds all Prometheus metrics for the service.
type Metrics struct {
	// Capture metrics
	SegmentsEmitted    prometheus.Counter
	SegmentAudioBytes  prometheus.Counter
	AudioPersistErrors prometheus.Counter

	// Conversion metrics
	SegmentsConverted  prometheus.Counter
	SegmentsFailed     prometheus.Counter
	ConversionAttempts *prometheus.CounterVec
	ConversionLatency  *prometheus.HistogramVec
	QueuePending       prometheus.Gauge

	// Chunk metrics
	ChunksCompleted *prometheus.CounterVec
	ChunkDuration   prometheus.Histogram
	Combines        prometheus.Counter

	// Encounter metrics
	RecordingsSaved    *prometheus.CounterVec
	SaveLatency        prometheus.Histogram
	AutoCombineTotal   *prometheus.CounterVec
	CombineLatency     prometheus.Histogram
	EncounterTotalSecs prometheus.Histogram
	BreakerState       *prometheus.GaugeVec

	// API metrics
	HTTPRequests *prometheus.CounterVec
	GRPCCalls    *prometheus.CounterVec
	GRPCLatency  *prometheus.HistogramVec

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
		SegmentsEmitted: promauto.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "segments_emitted_total",
			Help:      "Total number of audio segments emitted by the capturer",
		}),
		SegmentAudioBytes: promauto.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "segment_audio_bytes_total",
			Help:      "Total PCM bytes emitted in segments",
		}),
		AudioPersistErrors: promauto.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "audio_persist_errors_total",
			Help:      "Total number of failed background segment audio writes",
		}),

		SegmentsConverted: promauto.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "segments_converted_total",
			Help:      "Total number of segments converted to text",
		}),
		SegmentsFailed: promauto.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "segments_failed_total",
			Help:      "Total number of segments that exhausted their conversion attempts",
		}),
		ConversionAttempts: promauto.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "conversion_attempts_total",
			Help:      "Total number of conversion calls by outcome",
		}, []string{"provider", "outcome"}),
		ConversionLatency: promauto.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "conversion_latency_seconds",
			Help:      "Speech-to-text latency per conversion call",
			Buckets:   []float64{0.25, 0.5, 1, 2, 5, 10, 20, 30, 60},
		}, []string{"provider"}),
		QueuePending: promauto.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "queue_pending_segments",
			Help:      "Segments queued or in flight in the transcription queue",
		}),

		ChunksCompleted: promauto.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "chunks_completed_total",
			Help:      "Total number of completed chunks",
		}, []string{"success"}),
		ChunkDuration: promauto.NewHistogram(prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "chunk_duration_seconds",
			Help:      "Wall-clock duration of chunk recordings",
			Buckets:   []float64{30, 60, 120, 300, 600, 900},
		}),
		Combines: promauto.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "chunk_combines_total",
			Help:      "Total number of combine-now actions",
		}),

		RecordingsSaved: promauto.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "recordings_saved_total",
			Help:      "Total number of recording save requests by outcome",
		}, []string{"outcome"}),
		SaveLatency: promauto.NewHistogram(prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "recording_save_latency_seconds",
			Help:      "Latency of the recording save operation",
			Buckets:   []float64{0.005, 0.01, 0.05, 0.1, 0.5, 1, 5, 30},
		}),
		AutoCombineTotal: promauto.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "auto_combine_total",
			Help:      "Auto-combine triggers by outcome",
		}, []string{"outcome"}),
		CombineLatency: promauto.NewHistogram(prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "combine_latency_seconds",
			Help:      "Latency of combine service calls",
			Buckets:   []float64{0.1, 0.5, 1, 2, 5, 10, 30, 60},
		}),
		EncounterTotalSecs: promauto.NewHistogram(prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "encounter_total_duration_seconds",
			Help:      "Cumulative encounter duration observed after each save",
			Buckets:   []float64{300, 900, 1800, 3600, 5400, 7200, 10800},
		}),

		BreakerState: promauto.NewGaugeVec(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "circuit_breaker_state",
			Help:      "Circuit breaker state (0=closed, 1=open, 2=half-open)",
		}, []string{"breaker"}),
		HTTPRequests: promauto.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "http_requests_total",
			Help:      "Total HTTP API requests by route and status",
		}, []string{"route", "status"}),
		GRPCCalls: promauto.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "grpc_calls_total",
			Help:      "Total gRPC calls by method and status code",
		}, []string{"method", "code"}),
		GRPCLatency: promauto.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "grpc_call_duration_seconds",
			Help:      "gRPC call duration in seconds",
			Buckets:   []float64{0.001, 0.01, 0.1, 1, 10, 60, 300},
		}, []string{"method"}),

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

// RecordSegmentEmitted records a segment leaving the capturer.
func (m *Metrics) RecordSegmentEmitted(bytes int) {
	m.SegmentsEmitted.Inc()
	m.SegmentAudioBytes.Add(float64(bytes))
}

// RecordAudioPersistError records a failed background audio write.
func (m *Metrics) RecordAudioPersistError() {
	m.AudioPersistErrors.Inc()
}

// RecordConversionAttempt records one call to the conversion service.
func (m *Metrics) RecordConversionAttempt(provider string, err error, latencySeconds float64) {
	outcome := "success"
	if err != nil {
		outcome = "error"
	}
	m.ConversionAttempts.WithLabelValues(provider, outcome).Inc()
	m.ConversionLatency.WithLabelValues(provider).Observe(latencySeconds)
}

// RecordSegmentResolved records a segment's final outcome.
func (m *Metrics) RecordSegmentResolved(succeeded bool) {
	if succeeded {
		m.SegmentsConverted.Inc()
	} else {
		m.SegmentsFailed.Inc()
	}
}

// SetQueuePending sets the pending segment gauge.
func (m *Metrics) SetQueuePending(n int) {
	m.QueuePending.Set(float64(n))
}

// RecordChunkCompleted records a chunk reaching ChunkComplete.
func (m *Metrics) RecordChunkCompleted(success bool, durationSeconds float64) {
	if success {
		m.ChunksCompleted.WithLabelValues("true").Inc()
	} else {
		m.ChunksCompleted.WithLabelValues("false").Inc()
	}
	m.ChunkDuration.Observe(durationSeconds)
}

// RecordCombine records a combine-now action.
func (m *Metrics) RecordCombine() {
	m.Combines.Inc()
}

// RecordRecordingSaved records a save outcome and the resulting total.
func (m *Metrics) RecordRecordingSaved(outcome string, latencySeconds, totalDuration float64) {
	m.RecordingsSaved.WithLabelValues(outcome).Inc()
	m.SaveLatency.Observe(latencySeconds)
	if outcome == "success" {
		m.EncounterTotalSecs.Observe(totalDuration)
	}
}

// RecordAutoCombine records an auto-combine outcome: triggered, succeeded, failed or skipped.
func (m *Metrics) RecordAutoCombine(outcome string) {
	m.AutoCombineTotal.WithLabelValues(outcome).Inc()
}

// RecordCombineLatency records the latency of one combine service call.
func (m *Metrics) RecordCombineLatency(latencySeconds float64) {
	m.CombineLatency.Observe(latencySeconds)
}

// SetBreakerState records the state of a named circuit breaker.
func (m *Metrics) SetBreakerState(name string, state float64) {
	m.BreakerState.WithLabelValues(name).Set(state)
}

// RecordHTTPRequest records an HTTP API request.
func (m *Metrics) RecordHTTPRequest(route, status string) {
	m.HTTPRequests.WithLabelValues(route, status).Inc()
}

// RecordGRPCCall records a completed gRPC call.
func (m *Metrics) RecordGRPCCall(method, code string, durationSeconds float64) {
	m.GRPCCalls.WithLabelValues(method, code).Inc()
	m.GRPCLatency.WithLabelValues(method).Observe(durationSeconds)
}

// RecordKafkaPublish records a Kafka publish attempt.
func (m *Metrics) RecordKafkaPublish(topic, eventType string, err error, latencySeconds float64) {
	m.KafkaPublishTotal.WithLabelValues(topic, eventType).Inc()
	m.KafkaPublishLatency.WithLabelValues(topic).Observe(latencySeconds)
	if err != nil {
		m.KafkaPublishErrors.WithLabelValues(topic, eventType).Inc()
	}
}
