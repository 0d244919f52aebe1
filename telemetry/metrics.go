// Package telemetry provides Prometheus metrics, OpenTelemetry tracing setup,
// and correlation-id aware logging helpers.
package telemetry

import (
	"context"
	"log/slog"
	"sync"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	once sync.Once

	// Counters
	CommentsReceived *prometheus.CounterVec
	CommentsSkipped  *prometheus.CounterVec
	EffectsTriggered *prometheus.CounterVec
	EffectsDeferred  prometheus.Counter
	EffectsSkipped   prometheus.Counter
	AIRepliesSent    prometheus.Counter
	TTSSent          *prometheus.CounterVec
	TTSFailed        prometheus.Counter
	SnapshotsWritten prometheus.Counter

	// Histograms (seconds)
	SnapshotWriteDuration prometheus.Observer
	AIReplyDuration       prometheus.Observer

	// Gauges
	ConnectedSourcesGauge prometheus.Gauge
	EffectQueueDepthGauge prometheus.Gauge
	TTSQueueDepthGauge    prometheus.Gauge
)

// Init registers metrics (idempotent).
func Init() {
	once.Do(func() {
		CommentsReceived = promauto.NewCounterVec(prometheus.CounterOpts{Name: "cohost_comments_received_total", Help: "Comments normalized and published, by source"}, []string{"source"})
		CommentsSkipped = promauto.NewCounterVec(prometheus.CounterOpts{Name: "cohost_comments_skipped_total", Help: "Received messages skipped (empty text), by source"}, []string{"source"})
		EffectsTriggered = promauto.NewCounterVec(prometheus.CounterOpts{Name: "cohost_effects_triggered_total", Help: "Effect triggers accepted, by trigger kind (chat/ai/manual)"}, []string{"trigger"})
		EffectsDeferred = promauto.NewCounter(prometheus.CounterOpts{Name: "cohost_effects_deferred_total", Help: "Effect triggers deferred by the concurrency cap"})
		EffectsSkipped = promauto.NewCounter(prometheus.CounterOpts{Name: "cohost_effects_skipped_total", Help: "Effect requests skipped (unknown preset, disabled, or cooldown)"})
		AIRepliesSent = promauto.NewCounter(prometheus.CounterOpts{Name: "cohost_ai_replies_total", Help: "AI replies generated"})
		TTSSent = promauto.NewCounterVec(prometheus.CounterOpts{Name: "cohost_tts_sent_total", Help: "TTS sends succeeded, by method (tcp/http)"}, []string{"method"})
		TTSFailed = promauto.NewCounter(prometheus.CounterOpts{Name: "cohost_tts_failed_total", Help: "TTS sends that failed on every method"})
		SnapshotsWritten = promauto.NewCounter(prometheus.CounterOpts{Name: "cohost_overlay_snapshots_total", Help: "Overlay snapshot documents written"})
		SnapshotWriteDuration = promauto.NewHistogram(prometheus.HistogramOpts{Name: "cohost_overlay_snapshot_duration_seconds", Help: "Overlay snapshot write duration seconds", Buckets: prometheus.DefBuckets})
		AIReplyDuration = promauto.NewHistogram(prometheus.HistogramOpts{Name: "cohost_ai_reply_duration_seconds", Help: "AI reply generation duration seconds", Buckets: prometheus.DefBuckets})
		ConnectedSourcesGauge = promauto.NewGauge(prometheus.GaugeOpts{Name: "cohost_connected_sources", Help: "Number of currently connected comment sources"})
		EffectQueueDepthGauge = promauto.NewGauge(prometheus.GaugeOpts{Name: "cohost_effect_queue_depth", Help: "Pending effect requests awaiting the next drain"})
		TTSQueueDepthGauge = promauto.NewGauge(prometheus.GaugeOpts{Name: "cohost_tts_queue_depth", Help: "Queued TTS requests"})
	})
}

// SetConnectedSources records the current number of connected sources.
func SetConnectedSources(n int) {
	if ConnectedSourcesGauge != nil {
		ConnectedSourcesGauge.Set(float64(n))
	}
}

// SetEffectQueueDepth records the pending effect request count.
func SetEffectQueueDepth(n int) {
	if EffectQueueDepthGauge != nil {
		EffectQueueDepthGauge.Set(float64(n))
	}
}

// SetTTSQueueDepth records the queued TTS request count.
func SetTTSQueueDepth(n int) {
	if TTSQueueDepthGauge != nil {
		TTSQueueDepthGauge.Set(float64(n))
	}
}

// CountCommentReceived increments the received counter for a source.
func CountCommentReceived(source string) {
	if CommentsReceived != nil {
		CommentsReceived.WithLabelValues(source).Inc()
	}
}

// CountCommentSkipped increments the skipped counter for a source.
func CountCommentSkipped(source string) {
	if CommentsSkipped != nil {
		CommentsSkipped.WithLabelValues(source).Inc()
	}
}

// CountEffectTriggered increments the trigger counter for a trigger kind.
func CountEffectTriggered(trigger string) {
	if EffectsTriggered != nil {
		EffectsTriggered.WithLabelValues(trigger).Inc()
	}
}

// CountEffectDeferred increments the concurrency-cap deferral counter.
func CountEffectDeferred() {
	if EffectsDeferred != nil {
		EffectsDeferred.Inc()
	}
}

// CountEffectSkipped increments the skipped-effect counter.
func CountEffectSkipped() {
	if EffectsSkipped != nil {
		EffectsSkipped.Inc()
	}
}

// CountTTSSent increments the TTS send counter for a method.
func CountTTSSent(method string) {
	if TTSSent != nil {
		TTSSent.WithLabelValues(method).Inc()
	}
}

// CountTTSFailed increments the counter for sends that failed on every method.
func CountTTSFailed() {
	if TTSFailed != nil {
		TTSFailed.Inc()
	}
}

// TimeFunc measures the duration of fn and records it in obs if non-nil.
func TimeFunc(obs prometheus.Observer, fn func()) time.Duration {
	start := time.Now()
	fn()
	d := time.Since(start)
	if obs != nil {
		obs.Observe(d.Seconds())
	}
	return d
}

// Correlation ID helpers ----------------------------------------------------

type corrKeyType struct{}

var corrKey corrKeyType

// WithCorrelation returns a new context embedding the correlation id.
func WithCorrelation(ctx context.Context, id string) context.Context {
	return context.WithValue(ctx, corrKey, id)
}

// GetCorrelation returns the correlation id or empty string.
func GetCorrelation(ctx context.Context) string {
	if s, ok := ctx.Value(corrKey).(string); ok {
		return s
	}
	return ""
}

// LoggerWithCorr returns a logger with the corr attribute if present.
func LoggerWithCorr(ctx context.Context) *slog.Logger {
	if id := GetCorrelation(ctx); id != "" {
		return slog.Default().With(slog.String("corr", id))
	}
	return slog.Default()
}
