package runner

import (
	"time"

	"github.com/i474232898/city-weather-poster/internal/platforms"
	"github.com/i474232898/city-weather-poster/internal/selector"
)

// Option configures a Runner.
type Option func(*Runner)

// WithPosters sets the platforms posted to, in call order.
func WithPosters(posters ...platforms.Poster) Option {
	return func(r *Runner) {
		r.posters = posters
	}
}

// WithEnhancers sets the best-effort follow-ups run after posting.
func WithEnhancers(enhancers ...platforms.Enhancer) Option {
	return func(r *Runner) {
		r.enhancers = enhancers
	}
}

func WithMetrics(m *Metrics) Option {
	return func(r *Runner) {
		r.metrics = m
	}
}

// WithRand replaces the random source used for selection.
func WithRand(rng selector.Rand) Option {
	return func(r *Runner) {
		r.rng = rng
	}
}

func WithClock(now func() time.Time) Option {
	return func(r *Runner) {
		r.now = now
	}
}

// WithWindow sets how long a posted location stays excluded.
func WithWindow(d time.Duration) Option {
	return func(r *Runner) {
		if d > 0 {
			r.window = d
		}
	}
}

// WithOutputDir sets the default directory for generated images.
func WithOutputDir(dir string) Option {
	return func(r *Runner) {
		r.outputDir = dir
	}
}
