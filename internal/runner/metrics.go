package runner

import (
	"context"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/push"
)

// Metrics contains the prometheus metrics for runs.
type Metrics struct {
	Runs          *prometheus.CounterVec
	Posts         *prometheus.CounterVec
	Selections    *prometheus.CounterVec
	StateLoads    *prometheus.CounterVec
	StateSaves    *prometheus.CounterVec
	EnhancerFails *prometheus.CounterVec

	RunDuration prometheus.Histogram
	LastSuccess prometheus.Gauge
}

// NewMetrics creates and registers all run metrics.
func NewMetrics(reg prometheus.Registerer) *Metrics {
	m := &Metrics{
		Runs: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "poster_runs_total",
				Help: "Total number of runs by result",
			},
			[]string{"result"},
		),

		Posts: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "poster_platform_posts_total",
				Help: "Total number of platform posts by platform and result",
			},
			[]string{"platform", "result"},
		),

		// fallback is "true" when every enabled location was excluded.
		Selections: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "poster_selections_total",
				Help: "Total number of location selections",
			},
			[]string{"location", "fallback"},
		),

		StateLoads: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "poster_state_loads_total",
				Help: "Total number of state loads by result (ok, corrupt, error)",
			},
			[]string{"result"},
		),

		StateSaves: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "poster_state_saves_total",
				Help: "Total number of state saves by result",
			},
			[]string{"result"},
		),

		EnhancerFails: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "poster_enhancer_failures_total",
				Help: "Total number of failed best-effort enhancements",
			},
			[]string{"enhancer"},
		),

		RunDuration: prometheus.NewHistogram(
			prometheus.HistogramOpts{
				Name:    "poster_run_duration_seconds",
				Help:    "Wall time of a run in seconds",
				Buckets: []float64{1, 5, 15, 30, 60, 120, 300, 600},
			},
		),

		LastSuccess: prometheus.NewGauge(
			prometheus.GaugeOpts{
				Name: "poster_last_success_timestamp_seconds",
				Help: "Unix time of the last run with at least one successful post",
			},
		),
	}

	reg.MustRegister(
		m.Runs,
		m.Posts,
		m.Selections,
		m.StateLoads,
		m.StateSaves,
		m.EnhancerFails,
		m.RunDuration,
		m.LastSuccess,
	)

	return m
}

// Push sends everything gathered from g to a Pushgateway. One-shot runs use
// it since nothing scrapes a process that exits after one run.
func Push(ctx context.Context, url, job string, g prometheus.Gatherer) error {
	return push.New(url, job).Gatherer(g).PushContext(ctx)
}
