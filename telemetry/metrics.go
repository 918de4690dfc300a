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
	ClipsImported    prometheus.Counter
	ClipsSkipped     prometheus.Counter
	SyncCycles       prometheus.Counter
	NowPlayingWrites prometheus.Counter
	Heartbeats       prometheus.Counter
	CommandsExpired  prometheus.Counter

	// Per-kind mailbox counters
	CommandsIssued   *prometheus.CounterVec
	CommandsConsumed *prometheus.CounterVec

	// Histograms (seconds)
	CatalogQueryDuration prometheus.Observer

	// Gauges
	CatalogSizeGauge *prometheus.GaugeVec
)

// Init registers metrics (idempotent).
func Init() {
	once.Do(func() {
		ClipsImported = promauto.NewCounter(prometheus.CounterOpts{Name: "clip_imports_inserted_total", Help: "Number of new clips inserted by import batches"})
		ClipsSkipped = promauto.NewCounter(prometheus.CounterOpts{Name: "clip_imports_skipped_total", Help: "Number of already-seen clips skipped by import batches"})
		SyncCycles = promauto.NewCounter(prometheus.CounterOpts{Name: "catalog_sync_cycles_total", Help: "Number of catalog sync cycles"})
		NowPlayingWrites = promauto.NewCounter(prometheus.CounterOpts{Name: "now_playing_writes_total", Help: "Number of now-playing register writes"})
		Heartbeats = promauto.NewCounter(prometheus.CounterOpts{Name: "controller_heartbeats_total", Help: "Number of successful controller heartbeats"})
		CommandsExpired = promauto.NewCounter(prometheus.CounterOpts{Name: "mailbox_commands_expired_total", Help: "Number of mailbox commands expired unconsumed"})
		CommandsIssued = promauto.NewCounterVec(prometheus.CounterOpts{Name: "mailbox_commands_issued_total", Help: "Number of mailbox commands issued"}, []string{"kind"})
		CommandsConsumed = promauto.NewCounterVec(prometheus.CounterOpts{Name: "mailbox_commands_consumed_total", Help: "Number of mailbox commands consumed by pollers"}, []string{"kind"})
		CatalogQueryDuration = promauto.NewHistogram(prometheus.HistogramOpts{Name: "catalog_query_duration_seconds", Help: "Catalog listing query duration seconds", Buckets: prometheus.DefBuckets})
		CatalogSizeGauge = promauto.NewGaugeVec(prometheus.GaugeOpts{Name: "catalog_clips", Help: "Current clip count per channel"}, []string{"channel"})
	})
}

// SetCatalogSize records the current clip count for a channel.
func SetCatalogSize(channel string, n int64) {
	if CatalogSizeGauge != nil {
		CatalogSizeGauge.WithLabelValues(channel).Set(float64(n))
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

// WithCorrelation returns a new context embedding the correlation id.
func WithCorrelation(ctx context.Context, id string) context.Context {
	return context.WithValue(ctx, corrKey, id)
}

// GetCorrelation returns the correlation id or empty string.
func GetCorrelation(ctx context.Context) string {
	v := ctx.Value(corrKey)
	if s, ok := v.(string); ok {
		return s
	}
	return ""
}

// LoggerWithCorr returns a logger with a corr attribute if present.
func LoggerWithCorr(ctx context.Context) *slog.Logger {
	if id := GetCorrelation(ctx); id != "" {
		return slog.Default().With(slog.String("corr", id))
	}
	return slog.Default()
}
