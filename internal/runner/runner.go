// Package runner executes one posting run: load the recently posted state,
// select a location, fetch its weather, render the image, post it and record
// the selection.
//
// The state store is reloaded on every run. Nothing about previous runs is
// kept in memory except the last Report, which is informational only.
package runner

import (
	"context"
	"errors"
	"fmt"
	"math/rand/v2"
	"strconv"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/i474232898/city-weather-poster/internal/catalog"
	"github.com/i474232898/city-weather-poster/internal/imagegen"
	"github.com/i474232898/city-weather-poster/internal/logger"
	"github.com/i474232898/city-weather-poster/internal/platforms"
	"github.com/i474232898/city-weather-poster/internal/selector"
	"github.com/i474232898/city-weather-poster/internal/store"
	"github.com/i474232898/city-weather-poster/internal/weather"
)

// Catalog is the location catalog a run selects from.
type Catalog interface {
	Locations() []weather.Location
	Get(id string) (weather.Location, error)
	Global() catalog.Global
}

// WeatherSource returns current conditions for a location.
type WeatherSource interface {
	Current(ctx context.Context, loc weather.Location) (weather.WeatherSnapshot, error)
}

// ImageGenerator renders and saves the image for a location.
type ImageGenerator interface {
	Generate(ctx context.Context, loc weather.Location, snap weather.WeatherSnapshot, outputDir string, settings imagegen.Settings) (imagegen.Image, error)
}

// Options are the per-run switches.
type Options struct {
	// LocationID bypasses selection and posts this location.
	LocationID string
	// DryRun renders the image but neither posts nor touches the state.
	DryRun bool
	// Force ignores the recently posted exclusions.
	Force bool
	// OutputDir overrides the runner's image directory.
	OutputDir string
}

// Report describes the outcome of a run.
type Report struct {
	RunID     string        `json:"run_id"`
	StartedAt time.Time     `json:"started_at"`
	Duration  time.Duration `json:"duration"`
	DryRun    bool          `json:"dry_run"`
	Force     bool          `json:"force"`

	Location     string `json:"location,omitempty"`
	LocationName string `json:"location_name,omitempty"`
	Override     bool   `json:"override"`
	Fallback     bool   `json:"fallback"`
	ImagePath    string `json:"image_path,omitempty"`

	Platforms []platforms.Result `json:"platforms"`

	StateSaved bool   `json:"state_saved"`
	StateError string `json:"state_error,omitempty"`

	Error string `json:"error,omitempty"`
	Err   error  `json:"-"`
}

// Success reports whether at least one platform accepted the post.
func (r Report) Success() bool {
	for _, p := range r.Platforms {
		if p.Success {
			return true
		}
	}
	return false
}

// Runner wires the collaborators of a run together.
type Runner struct {
	catalog Catalog
	store   store.Store
	weather WeatherSource
	images  ImageGenerator

	posters   []platforms.Poster
	enhancers []platforms.Enhancer
	metrics   *Metrics

	rng       selector.Rand
	now       func() time.Time
	window    time.Duration
	outputDir string

	mu sync.Mutex

	lastMu sync.RWMutex
	last   *Report
}

func New(cat Catalog, st store.Store, ws WeatherSource, images ImageGenerator, opts ...Option) *Runner {
	r := &Runner{
		catalog:   cat,
		store:     st,
		weather:   ws,
		images:    images,
		now:       time.Now,
		window:    store.DefaultWindow,
		outputDir: "output",
	}
	for _, o := range opts {
		o(r)
	}
	if r.rng == nil {
		seed := uint64(r.now().UnixNano())
		r.rng = rand.New(rand.NewPCG(seed, seed>>1|1))
	}
	return r
}

// Run performs one run, waiting for any run already in progress.
// The returned error is also stored in Report.Err.
func (r *Runner) Run(ctx context.Context, opts Options) (Report, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.run(ctx, opts)
}

// RunAsync starts a run in the background and returns at once. It fails
// with ErrRunInProgress instead of waiting for a run already going. done,
// if not nil, receives the outcome.
func (r *Runner) RunAsync(ctx context.Context, opts Options, done func(Report, error)) error {
	if !r.mu.TryLock() {
		return ErrRunInProgress
	}
	go func() {
		defer r.mu.Unlock()
		report, err := r.run(ctx, opts)
		if done != nil {
			done(report, err)
		}
	}()
	return nil
}

// LastReport returns the report of the most recent finished run.
func (r *Runner) LastReport() (Report, bool) {
	r.lastMu.RLock()
	defer r.lastMu.RUnlock()
	if r.last == nil {
		return Report{}, false
	}
	return *r.last, true
}

// State returns the persisted records that are still inside the exclusion
// window.
func (r *Runner) State(ctx context.Context) (store.RecentSelections, error) {
	records, err := r.store.Load(ctx)
	if err != nil {
		return nil, err
	}
	return store.CleanupOld(records, r.now(), r.window), nil
}

func (r *Runner) run(ctx context.Context, opts Options) (report Report, err error) {
	began := time.Now()
	start := r.now()
	report = Report{
		RunID:     uuid.NewString(),
		StartedAt: start.UTC(),
		DryRun:    opts.DryRun,
		Force:     opts.Force,
		Platforms: []platforms.Result{},
	}

	log := logger.FromContext(ctx).With("run_id", report.RunID)
	ctx = logger.NewContext(ctx, log)

	defer func() {
		report.Duration = time.Since(began)
		if err != nil {
			report.Err = err
			report.Error = err.Error()
		}
		r.observe(report)
		r.lastMu.Lock()
		r.last = &report
		r.lastMu.Unlock()

		log.InfoContext(ctx, "run finished",
			"success", report.Success(),
			"state_saved", report.StateSaved,
			"duration", report.Duration,
			"error", err,
		)
	}()

	log.InfoContext(ctx, "run started",
		"dry_run", opts.DryRun,
		"force", opts.Force,
		"location_override", opts.LocationID,
	)

	records, loaded := r.loadState(ctx)
	records = store.CleanupOld(records, start, r.window)

	excluded := store.ExcludedIDs(records)
	if opts.Force {
		excluded = map[string]struct{}{}
	}

	loc, err := r.choose(ctx, opts.LocationID, excluded, &report)
	if err != nil {
		return report, err
	}
	log = log.With("location", loc.ID)
	ctx = logger.NewContext(ctx, log)

	req, err := r.prepare(ctx, loc, opts)
	if err != nil {
		return report, err
	}
	report.ImagePath = req.ImagePath
	report.Platforms = r.post(ctx, req)

	if !opts.DryRun && report.Success() {
		if loaded {
			r.saveState(ctx, store.Add(records, loc.ID, r.now()), &report)
		} else {
			report.StateError = ErrStateNotLoaded.Error()
			log.ErrorContext(ctx, "state not saved, keeping persisted history", "error", ErrStateNotLoaded)
		}
	}

	r.enhance(ctx, req, report.Platforms)

	if !report.Success() {
		return report, ErrNoPlatformSucceeded
	}
	return report, nil
}

// loadState returns the persisted records. Any failure is logged and
// treated as no history so the run still posts. ok is false when the
// load failed for a reason other than corruption; the persisted history
// may still be intact then and must not be overwritten.
func (r *Runner) loadState(ctx context.Context) (store.RecentSelections, bool) {
	log := logger.FromContext(ctx)

	records, err := r.store.Load(ctx)
	switch {
	case err == nil:
		r.countLoad("ok")
		log.DebugContext(ctx, "state loaded", "records", len(records))
		return records, true
	case errors.Is(err, store.ErrStateCorruption):
		r.countLoad("corrupt")
		log.WarnContext(ctx, "state corrupted, starting with empty history", "error", err)
		return nil, true
	default:
		r.countLoad("error")
		log.ErrorContext(ctx, "state load failed, starting with empty history", "error", err)
		return nil, false
	}
}

func (r *Runner) saveState(ctx context.Context, records store.RecentSelections, report *Report) {
	log := logger.FromContext(ctx)

	if err := r.store.Save(ctx, records); err != nil {
		report.StateError = err.Error()
		if r.metrics != nil {
			r.metrics.StateSaves.WithLabelValues("error").Inc()
		}
		log.ErrorContext(ctx, "state not saved", "error", err)
		return
	}

	report.StateSaved = true
	if r.metrics != nil {
		r.metrics.StateSaves.WithLabelValues("ok").Inc()
	}
	log.DebugContext(ctx, "state saved", "records", len(records))
}

func (r *Runner) choose(ctx context.Context, id string, excluded map[string]struct{}, report *Report) (weather.Location, error) {
	log := logger.FromContext(ctx)

	if id != "" {
		loc, err := r.catalog.Get(id)
		if err != nil {
			return weather.Location{}, fmt.Errorf("%w: %q", ErrUnknownLocation, id)
		}
		if !loc.Enabled {
			log.WarnContext(ctx, "posting disabled location by request", "location", id)
		}
		report.Location = loc.ID
		report.LocationName = loc.Name
		report.Override = true
		return loc, nil
	}

	res, err := selector.Select(r.catalog.Locations(), excluded, r.rng)
	if err != nil {
		return weather.Location{}, fmt.Errorf("select location: %w", err)
	}
	if res.Fallback {
		log.WarnContext(ctx, "every enabled location was posted recently, ignoring exclusions for this run",
			"excluded", len(excluded))
	}
	log.InfoContext(ctx, "location selected",
		"location", res.Location.ID,
		"candidates", res.Candidates,
		"fallback", res.Fallback,
	)

	report.Location = res.Location.ID
	report.LocationName = res.Location.Name
	report.Fallback = res.Fallback
	if r.metrics != nil {
		r.metrics.Selections.WithLabelValues(res.Location.ID, strconv.FormatBool(res.Fallback)).Inc()
	}
	return res.Location, nil
}

// prepare fetches the weather and renders the image.
func (r *Runner) prepare(ctx context.Context, loc weather.Location, opts Options) (platforms.Request, error) {
	snap, err := r.weather.Current(ctx, loc)
	if err != nil {
		return platforms.Request{}, fmt.Errorf("fetch weather for %s: %w", loc.ID, err)
	}

	outputDir := opts.OutputDir
	if outputDir == "" {
		outputDir = r.outputDir
	}
	g := r.catalog.Global()
	img, err := r.images.Generate(ctx, loc, snap, outputDir, imagegen.Settings{Image: g.Image, Retry: g.Retry})
	if err != nil {
		return platforms.Request{}, err
	}

	return platforms.Request{
		Location:  loc,
		Snapshot:  snap,
		ImagePath: img.Path,
		DryRun:    opts.DryRun,
	}, nil
}

// post publishes to every platform enabled for the location.
func (r *Runner) post(ctx context.Context, req platforms.Request) []platforms.Result {
	log := logger.FromContext(ctx)

	results := make([]platforms.Result, 0, len(r.posters))
	for _, p := range r.posters {
		if !platforms.Enabled(req.Location, p.Name()) {
			continue
		}
		res := platforms.Publish(ctx, p, req)
		if r.metrics != nil {
			result := "success"
			if !res.Success {
				result = "failed"
			}
			r.metrics.Posts.WithLabelValues(res.Platform, result).Inc()
		}
		results = append(results, res)
	}

	if len(results) == 0 {
		log.WarnContext(ctx, "no configured platform is enabled for location")
	}
	return results
}

// enhance runs the enhancers whose platform succeeded. Their failures and
// panics are logged and never change the run outcome.
func (r *Runner) enhance(ctx context.Context, req platforms.Request, results []platforms.Result) {
	for _, e := range r.enhancers {
		for _, res := range results {
			if res.Platform != e.Platform() || !res.Success {
				continue
			}
			post := platforms.Published{ID: res.PostID, MediaURL: res.MediaURL}
			if err := r.safeEnhance(ctx, e, req, post); err != nil {
				if r.metrics != nil {
					r.metrics.EnhancerFails.WithLabelValues(e.Name()).Inc()
				}
				logger.FromContext(ctx).WarnContext(ctx, "enhancement failed",
					"enhancer", e.Name(),
					"error", err,
				)
			}
		}
	}
}

func (r *Runner) safeEnhance(ctx context.Context, e platforms.Enhancer, req platforms.Request, post platforms.Published) (err error) {
	defer func() {
		if p := recover(); p != nil {
			err = fmt.Errorf("panic in %s: %v", e.Name(), p)
		}
	}()
	return e.Enhance(ctx, req, post)
}

func (r *Runner) countLoad(result string) {
	if r.metrics != nil {
		r.metrics.StateLoads.WithLabelValues(result).Inc()
	}
}

func (r *Runner) observe(report Report) {
	if r.metrics == nil {
		return
	}
	result := "failed"
	if report.Err == nil {
		result = "success"
	}
	r.metrics.Runs.WithLabelValues(result).Inc()
	r.metrics.RunDuration.Observe(report.Duration.Seconds())
	if report.Success() && !report.DryRun {
		r.metrics.LastSuccess.Set(float64(report.StartedAt.Unix()))
	}
}
