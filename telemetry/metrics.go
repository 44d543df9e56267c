// Package telemetry provides Prometheus metrics and correlation-id aware logging helpers.
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
	PollCycles         *prometheus.CounterVec // by tournament
	GameDecisions      *prometheus.CounterVec // by decision
	FetchErrors        *prometheus.CounterVec // by error class
	CommentaryAttempts prometheus.Counter
	EnrichmentFailures *prometheus.CounterVec // by stage
	ImagesUploaded     prometheus.Counter
	PersistenceErrors  prometheus.Counter

	// Histograms (seconds)
	CycleDuration      prometheus.Observer
	EnrichmentDuration prometheus.Observer

	// Gauges
	CurrentRound        *prometheus.GaugeVec // by tournament
	EnrichmentsInFlight prometheus.Gauge
)

// Init registers metrics (idempotent).
func Init() {
	once.Do(func() {
		PollCycles = promauto.NewCounterVec(prometheus.CounterOpts{Name: "lcc_poll_cycles_total", Help: "Number of driver poll cycles"}, []string{"tournament"})
		GameDecisions = promauto.NewCounterVec(prometheus.CounterOpts{Name: "lcc_game_decisions_total", Help: "Reconciliation decisions by kind"}, []string{"decision"})
		FetchErrors = promauto.NewCounterVec(prometheus.CounterOpts{Name: "lcc_fetch_errors_total", Help: "Game fetch failures by error class"}, []string{"class"})
		CommentaryAttempts = promauto.NewCounter(prometheus.CounterOpts{Name: "lcc_commentary_attempts_total", Help: "Commentary service calls, including retries"})
		EnrichmentFailures = promauto.NewCounterVec(prometheus.CounterOpts{Name: "lcc_enrichment_failures_total", Help: "Enrichment failures by stage"}, []string{"stage"})
		ImagesUploaded = promauto.NewCounter(prometheus.CounterOpts{Name: "lcc_images_uploaded_total", Help: "Board images uploaded to the media host"})
		PersistenceErrors = promauto.NewCounter(prometheus.CounterOpts{Name: "lcc_persistence_errors_total", Help: "Failed game upserts"})
		CycleDuration = promauto.NewHistogram(prometheus.HistogramOpts{Name: "lcc_cycle_duration_seconds", Help: "Poll cycle duration seconds", Buckets: prometheus.DefBuckets})
		EnrichmentDuration = promauto.NewHistogram(prometheus.HistogramOpts{Name: "lcc_enrichment_duration_seconds", Help: "Enrichment duration seconds, retries included", Buckets: []float64{.1, .5, 1, 2.5, 5, 10, 20, 40, 80}})
		CurrentRound = promauto.NewGaugeVec(prometheus.GaugeOpts{Name: "lcc_current_round", Help: "Round cursor per tournament"}, []string{"tournament"})
		EnrichmentsInFlight = promauto.NewGauge(prometheus.GaugeOpts{Name: "lcc_enrichments_in_flight", Help: "Enrichments currently holding a limiter slot"})
	})
}

// The helpers below are no-ops until Init has run, so library code and tests
// can call them unconditionally.

func IncPollCycle(tournament string) {
	if PollCycles != nil {
		PollCycles.WithLabelValues(tournament).Inc()
	}
}

func IncDecision(decision string) {
	if GameDecisions != nil {
		GameDecisions.WithLabelValues(decision).Inc()
	}
}

func IncFetchError(class string) {
	if FetchErrors != nil {
		FetchErrors.WithLabelValues(class).Inc()
	}
}

func IncCommentaryAttempt() {
	if CommentaryAttempts != nil {
		CommentaryAttempts.Inc()
	}
}

func IncEnrichmentFailure(stage string) {
	if EnrichmentFailures != nil {
		EnrichmentFailures.WithLabelValues(stage).Inc()
	}
}

func IncImageUploaded() {
	if ImagesUploaded != nil {
		ImagesUploaded.Inc()
	}
}

func IncPersistenceError() {
	if PersistenceErrors != nil {
		PersistenceErrors.Inc()
	}
}

// SetCurrentRound records a tournament's round cursor.
func SetCurrentRound(tournament string, round int) {
	if CurrentRound != nil {
		CurrentRound.WithLabelValues(tournament).Set(float64(round))
	}
}

// SetEnrichmentsInFlight records limiter occupancy.
func SetEnrichmentsInFlight(n int) {
	if EnrichmentsInFlight != nil {
		EnrichmentsInFlight.Set(float64(n))
	}
}

// TimeFunc measures the duration of fn and records in observer if non-nil.
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

// WithCorrelation returns a new context carrying the correlation id.
func WithCorrelation(ctx context.Context, id string) context.Context {
	return context.WithValue(ctx, corrKey, id)
}

// GetCorrelation returns correlation id or empty string.
func GetCorrelation(ctx context.Context) string {
	v := ctx.Value(corrKey)
	if s, ok := v.(string); ok {
		return s
	}
	return ""
}

// LoggerWithCorr returns base (or the default logger) with a corr attribute if present.
func LoggerWithCorr(ctx context.Context, base *slog.Logger) *slog.Logger {
	if base == nil {
		base = slog.Default()
	}
	if id := GetCorrelation(ctx); id != "" {
		return base.With(slog.String("corr", id))
	}
	return base
}
