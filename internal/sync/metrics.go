package sync

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Metrics holds the engine's collectors.
type Metrics struct {
	pushes        *prometheus.CounterVec
	deletes       *prometheus.CounterVec
	runs          *prometheus.CounterVec
	runDuration   prometheus.Histogram
	merges        *prometheus.CounterVec
	listenerState prometheus.Gauge
}

// NewMetrics registers collectors on reg. A nil reg leaves them unregistered.
func NewMetrics(reg prometheus.Registerer) *Metrics {
	factory := promauto.With(reg)
	return &Metrics{
		pushes: factory.NewCounterVec(
			prometheus.CounterOpts{
				Name: "canvass_sync_push_total",
				Help: "Documents pushed to the remote store",
			},
			[]string{"collection", "result"},
		),
		deletes: factory.NewCounterVec(
			prometheus.CounterOpts{
				Name: "canvass_sync_delete_total",
				Help: "Remote document deletions",
			},
			[]string{"collection", "result"},
		),
		runs: factory.NewCounterVec(
			prometheus.CounterOpts{
				Name: "canvass_sync_runs_total",
				Help: "Batched sync runs",
			},
			[]string{"result"},
		),
		runDuration: factory.NewHistogram(
			prometheus.HistogramOpts{
				Name:    "canvass_sync_run_duration_seconds",
				Help:    "Duration of batched sync runs in seconds",
				Buckets: prometheus.DefBuckets,
			},
		),
		merges: factory.NewCounterVec(
			prometheus.CounterOpts{
				Name: "canvass_sync_merges_total",
				Help: "Listener snapshots merged into the local store",
			},
			[]string{"collection", "outcome"},
		),
		listenerState: factory.NewGauge(
			prometheus.GaugeOpts{
				Name: "canvass_sync_listener_state",
				Help: "Listener state (0 detached, 1 listening, 2 suspended)",
			},
		),
	}
}

func resultLabel(err error) string {
	if err != nil {
		return "error"
	}
	return "ok"
}
