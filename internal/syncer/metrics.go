package syncer

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var syncRunsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
	Name: "tiksync_runs_total",
	Help: "Sync attempts by job name and terminal status.",
}, []string{"job", "status"})

var syncDuration = promauto.NewHistogramVec(prometheus.HistogramOpts{
	Name:    "tiksync_run_duration_seconds",
	Help:    "Wall-clock duration of per-store sync attempts.",
	Buckets: prometheus.ExponentialBuckets(0.1, 2, 12),
}, []string{"job"})
