package relay

import (
	"sync"

	"github.com/prometheus/client_golang/prometheus"
)

var registerOnce sync.Once

var (
	UploadsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "relay_uploads_total",
			Help: "Total upload attempts by outcome",
		},
		[]string{"outcome"},
	)

	DownloadsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "relay_downloads_total",
			Help: "Total download attempts by outcome",
		},
		[]string{"outcome"},
	)

	EvictionsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "relay_evictions_total",
			Help: "Total token evictions by reason",
		},
		[]string{"reason"},
	)

	HealthChecksTotal = prometheus.NewCounter(
		prometheus.CounterOpts{
			Name: "relay_health_checks_total",
			Help: "Total health check requests",
		},
	)

	PendingTokensGauge = prometheus.NewGauge(
		prometheus.GaugeOpts{
			Name: "relay_pending_tokens",
			Help: "Current number of non-claimed tokens",
		},
	)

	PendingBytesGauge = prometheus.NewGauge(
		prometheus.GaugeOpts{
			Name: "relay_pending_bytes",
			Help: "Total declared bytes of non-claimed tokens",
		},
	)
)

// RegisterMetrics registers all relay collectors with the default
// registry. Safe to call multiple times; subsequent calls are no-ops.
func RegisterMetrics() {
	registerOnce.Do(func() {
		prometheus.MustRegister(
			UploadsTotal,
			DownloadsTotal,
			EvictionsTotal,
			HealthChecksTotal,
			PendingTokensGauge,
			PendingBytesGauge,
		)
	})
}
