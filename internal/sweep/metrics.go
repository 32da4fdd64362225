package sweep

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	sweepRunsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "snapme_sweep_runs_total",
			Help: "Expiry sweep runs by result",
		},
		[]string{"result"},
	)

	foldersExpiredTotal = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "snapme_sweep_folders_expired_total",
			Help: "Folders expired by the sweep",
		},
	)

	sweepDuration = promauto.NewHistogram(
		prometheus.HistogramOpts{
			Name:    "snapme_sweep_duration_seconds",
			Help:    "Duration of an expiry sweep",
			Buckets: prometheus.DefBuckets,
		},
	)
)
