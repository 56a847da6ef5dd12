package runner

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/i474232898/city-weather-poster/internal/catalog"
	"github.com/i474232898/city-weather-poster/internal/imagegen"
	"github.com/i474232898/city-weather-poster/internal/logger"
	"github.com/i474232898/city-weather-poster/internal/platforms"
	"github.com/i474232898/city-weather-poster/internal/selector"
	"github.com/i474232898/city-weather-poster/internal/store"
	"github.com/i474232898/city-weather-poster/internal/weather"
)

var now = time.Date(2025, 6, 1, 12, 0, 0, 0, time.UTC)

func location(id string, enabled bool) weather.Location {
	return weather.Location{
		ID:        id,
		Name:      id,
		Enabled:   enabled,
		Weight:    1,
		Platforms: weather.Platforms{Twitter: true, Instagram: true},
	}
}

type fakeCatalog struct {
	locations []weather.Location
}

func (c fakeCatalog) Locations() []weather.Location { return c.locations }
func (c fakeCatalog) Global() catalog.Global        { return catalog.DefaultGlobal }

func (c fakeCatalog) Get(id string) (weather.Location, error) {
	for _, l := range c.locations {
		if l.ID == id {
			return l, nil
		}
	}
	return weather.Location{}, catalog.ErrNotFound
}

type fakeWeather struct{ err error }

func (w fakeWeather) Current(_ context.Context, loc weather.Location) (weather.WeatherSnapshot, error) {
	if w.err != nil {
		return weather.WeatherSnapshot{}, w.err
	}
	return weather.WeatherSnapshot{Location: loc, Timestamp: now, Temperature: 21, Description: "clear sky"}, nil
}

type fakeImages struct{}

func (fakeImages) Generate(_ context.Context, loc weather.Location, _ weather.WeatherSnapshot, dir string, _ imagegen.Settings) (imagegen.Image, error) {
	return imagegen.Image{Path: dir + "/" + loc.ID + ".png", MIMEType: "image/png"}, nil
}

type fakePoster struct {
	name string
	err  error

	mu   sync.Mutex
	reqs []platforms.Request
}

func (p *fakePoster) Name() string { return p.name }

func (p *fakePoster) Post(_ context.Context, req platforms.Request) (platforms.Published, error) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.reqs = append(p.reqs, req)
	if p.err != nil {
		return platforms.Published{}, p.err
	}
	return platforms.Published{ID: p.name + "-1", MediaURL: "https://img.example/" + req.Location.ID}, nil
}

type fakeEnhancer struct {
	platform string
	panics   bool
	calls    []platforms.Published
}

func (e *fakeEnhancer) Name() string     { return e.platform + "_extra" }
func (e *fakeEnhancer) Platform() string { return e.platform }

func (e *fakeEnhancer) Enhance(_ context.Context, _ platforms.Request, post platforms.Published) error {
	e.calls = append(e.calls, post)
	if e.panics {
		panic("story api changed")
	}
	return errors.New("story rejected")
}

// countingStore counts saves on top of a MemoryStore. A non-nil loadErr
// makes Load fail the way an unreachable backend does.
type countingStore struct {
	*store.MemoryStore
	saves   int
	loadErr error
}

func (s *countingStore) Load(ctx context.Context) (store.RecentSelections, error) {
	if s.loadErr != nil {
		return nil, s.loadErr
	}
	return s.MemoryStore.Load(ctx)
}

func (s *countingStore) Save(ctx context.Context, records store.RecentSelections) error {
	s.saves++
	return s.MemoryStore.Save(ctx, records)
}

// firstRand always draws 0, so the first candidate in catalog order wins.
type firstRand struct{}

func (firstRand) IntN(int) int { return 0 }

type fixture struct {
	store     *countingStore
	twitter   *fakePoster
	instagram *fakePoster
	runner    *Runner
}

func newFixture(t *testing.T, locations []weather.Location, opts ...Option) *fixture {
	t.Helper()
	f := &fixture{
		store:     &countingStore{MemoryStore: store.NewMemoryStore()},
		twitter:   &fakePoster{name: platforms.Twitter},
		instagram: &fakePoster{name: platforms.Instagram},
	}
	opts = append([]Option{
		WithPosters(f.twitter, f.instagram),
		WithRand(firstRand{}),
		WithClock(func() time.Time { return now }),
		WithOutputDir(t.TempDir()),
	}, opts...)
	f.runner = New(fakeCatalog{locations: locations}, f.store, fakeWeather{}, fakeImages{}, opts...)
	return f
}

func (f *fixture) seed(t *testing.T, records store.RecentSelections) {
	t.Helper()
	require.NoError(t, f.store.MemoryStore.Save(context.Background(), records))
}

func (f *fixture) state(t *testing.T) store.RecentSelections {
	t.Helper()
	got, err := f.store.MemoryStore.Load(context.Background())
	require.NoError(t, err)
	return got
}

func ids(records store.RecentSelections) []string {
	out := make([]string, 0, len(records))
	for _, r := range records {
		out = append(out, r.LocationID)
	}
	return out
}

func TestRunSkipsRecentlyPosted(t *testing.T) {
	f := newFixture(t, []weather.Location{location("tokyo", true), location("paris", true)})
	f.seed(t, store.RecentSelections{{LocationID: "tokyo", Timestamp: now.Add(-time.Hour)}})

	report, err := f.runner.Run(context.Background(), Options{})
	require.NoError(t, err)

	assert.Equal(t, "paris", report.Location)
	assert.False(t, report.Fallback)
	assert.True(t, report.Success())
	assert.True(t, report.StateSaved)
	assert.NotEmpty(t, report.RunID)
	require.Len(t, report.Platforms, 2)
	assert.Equal(t, "twitter-1", report.Platforms[0].PostID)

	got := f.state(t)
	assert.Equal(t, []string{"tokyo", "paris"}, ids(got))
	assert.True(t, got[1].Timestamp.Equal(now))
}

func TestRunEvictsExpiredRecords(t *testing.T) {
	f := newFixture(t, []weather.Location{location("tokyo", true), location("paris", true)})
	f.seed(t, store.RecentSelections{
		{LocationID: "tokyo", Timestamp: now.Add(-25 * time.Hour)},
		{LocationID: "paris", Timestamp: now.Add(-2 * time.Hour)},
	})

	report, err := f.runner.Run(context.Background(), Options{})
	require.NoError(t, err)

	assert.Equal(t, "tokyo", report.Location)
	assert.Equal(t, []string{"paris", "tokyo"}, ids(f.state(t)))
}

func TestRunFallbackWhenAllExcluded(t *testing.T) {
	f := newFixture(t, []weather.Location{location("tokyo", true), location("paris", true)})
	before := store.RecentSelections{
		{LocationID: "tokyo", Timestamp: now.Add(-23 * time.Hour)},
		{LocationID: "paris", Timestamp: now.Add(-23 * time.Hour)},
	}
	f.seed(t, before)

	report, err := f.runner.Run(context.Background(), Options{})
	require.NoError(t, err)

	assert.True(t, report.Fallback)
	assert.Equal(t, "tokyo", report.Location)
	// Exhaustion keeps the existing records and appends the new one.
	assert.Equal(t, []string{"tokyo", "paris", "tokyo"}, ids(f.state(t)))
}

func TestRunForceIgnoresExclusions(t *testing.T) {
	f := newFixture(t, []weather.Location{location("tokyo", true), location("paris", true)})
	f.seed(t, store.RecentSelections{{LocationID: "tokyo", Timestamp: now.Add(-time.Hour)}})

	report, err := f.runner.Run(context.Background(), Options{Force: true})
	require.NoError(t, err)

	assert.Equal(t, "tokyo", report.Location)
	assert.False(t, report.Fallback)
	assert.True(t, report.Force)
}

func TestRunDryRunLeavesStateAlone(t *testing.T) {
	f := newFixture(t, []weather.Location{location("tokyo", true)})
	f.seed(t, store.RecentSelections{{LocationID: "lima", Timestamp: now.Add(-time.Hour)}})

	report, err := f.runner.Run(context.Background(), Options{DryRun: true})
	require.NoError(t, err)

	assert.Equal(t, "tokyo", report.Location)
	assert.False(t, report.StateSaved)
	assert.Zero(t, f.store.saves)
	assert.Equal(t, []string{"lima"}, ids(f.state(t)))

	require.Len(t, f.twitter.reqs, 1)
	assert.True(t, f.twitter.reqs[0].DryRun)
}

func TestRunOverride(t *testing.T) {
	f := newFixture(t, []weather.Location{location("tokyo", true), location("oslo", false)})
	f.seed(t, store.RecentSelections{{LocationID: "oslo", Timestamp: now.Add(-time.Hour)}})

	report, err := f.runner.Run(context.Background(), Options{LocationID: "oslo"})
	require.NoError(t, err)

	assert.Equal(t, "oslo", report.Location)
	assert.True(t, report.Override)
	assert.Equal(t, []string{"oslo", "oslo"}, ids(f.state(t)))
}

func TestRunUnknownOverrideHasNoSideEffects(t *testing.T) {
	f := newFixture(t, []weather.Location{location("tokyo", true)})

	report, err := f.runner.Run(context.Background(), Options{LocationID: "atlantis"})
	require.Error(t, err)
	assert.ErrorIs(t, err, ErrUnknownLocation)
	assert.Equal(t, err.Error(), report.Error)

	assert.Zero(t, f.store.saves)
	assert.Empty(t, f.twitter.reqs)
}

func TestRunNoEnabledLocations(t *testing.T) {
	f := newFixture(t, []weather.Location{location("tokyo", false)})

	_, err := f.runner.Run(context.Background(), Options{})
	assert.ErrorIs(t, err, selector.ErrNoEligibleLocations)
	assert.Zero(t, f.store.saves)
	assert.Empty(t, f.twitter.reqs)
}

func TestRunCorruptStateFailsOpen(t *testing.T) {
	f := newFixture(t, []weather.Location{location("tokyo", true)})
	f.store.SetRaw([]byte(`{"recently_posted": [{"location_id": "tok`))

	report, err := f.runner.Run(context.Background(), Options{})
	require.NoError(t, err)

	assert.Equal(t, "tokyo", report.Location)
	assert.Equal(t, []string{"tokyo"}, ids(f.state(t)))
}

func TestRunSaveFailureKeepsSuccess(t *testing.T) {
	f := newFixture(t, []weather.Location{location("tokyo", true)})
	f.store.FailSaves(errors.New("read-only file system"))

	report, err := f.runner.Run(context.Background(), Options{})
	require.NoError(t, err)

	assert.True(t, report.Success())
	assert.False(t, report.StateSaved)
	assert.Contains(t, report.StateError, "read-only file system")
}

func TestRunAllPlatformsFail(t *testing.T) {
	f := newFixture(t, []weather.Location{location("tokyo", true)})
	f.twitter.err = errors.New("403 forbidden")
	f.instagram.err = errors.New("token expired")
	f.seed(t, store.RecentSelections{{LocationID: "paris", Timestamp: now.Add(-time.Hour)}})

	report, err := f.runner.Run(context.Background(), Options{})
	assert.ErrorIs(t, err, ErrNoPlatformSucceeded)
	assert.False(t, report.Success())
	require.Len(t, report.Platforms, 2)
	assert.Equal(t, "403 forbidden", report.Platforms[0].Error)

	assert.False(t, report.StateSaved)
	assert.Zero(t, f.store.saves)
	assert.Equal(t, []string{"paris"}, ids(f.state(t)))
}

func TestRunLoadErrorKeepsHistory(t *testing.T) {
	history := store.RecentSelections{
		{LocationID: "paris", Timestamp: now.Add(-time.Hour)},
		{LocationID: "rome", Timestamp: now.Add(-2 * time.Hour)},
	}

	t.Run("failed run", func(t *testing.T) {
		f := newFixture(t, []weather.Location{location("tokyo", true)})
		f.seed(t, history)
		f.store.loadErr = errors.New("redis get: i/o timeout")
		f.twitter.err = errors.New("403 forbidden")
		f.instagram.err = errors.New("token expired")

		report, err := f.runner.Run(context.Background(), Options{})
		assert.ErrorIs(t, err, ErrNoPlatformSucceeded)
		assert.False(t, report.StateSaved)
		assert.Zero(t, f.store.saves)
		assert.Equal(t, []string{"paris", "rome"}, ids(f.state(t)))
	})

	t.Run("successful run", func(t *testing.T) {
		f := newFixture(t, []weather.Location{location("tokyo", true)})
		f.seed(t, history)
		f.store.loadErr = errors.New("read state.json: input/output error")

		report, err := f.runner.Run(context.Background(), Options{})
		require.NoError(t, err)
		assert.True(t, report.Success())
		assert.False(t, report.StateSaved)
		assert.Equal(t, ErrStateNotLoaded.Error(), report.StateError)
		assert.Zero(t, f.store.saves)
		assert.Equal(t, []string{"paris", "rome"}, ids(f.state(t)))
	})
}

func TestRunLogsLocationOnce(t *testing.T) {
	var buf bytes.Buffer
	ctx := logger.NewContext(context.Background(), slog.New(slog.NewTextHandler(&buf, nil)))

	f := newFixture(t, []weather.Location{location("tokyo", true)})
	f.twitter.err = errors.New("rate limited")

	_, err := f.runner.Run(ctx, Options{})
	require.NoError(t, err)

	lines := strings.Split(strings.TrimSpace(buf.String()), "\n")
	require.NotEmpty(t, lines)
	for _, line := range lines {
		assert.LessOrEqual(t, strings.Count(line, "location=tokyo"), 1, line)
	}
	assert.Contains(t, buf.String(), `msg="run finished" run_id=`)
	assert.Contains(t, buf.String(), `msg="post failed"`)
}

func TestRunPartialSuccessRecordsSelection(t *testing.T) {
	f := newFixture(t, []weather.Location{location("tokyo", true)})
	f.twitter.err = errors.New("rate limited")

	report, err := f.runner.Run(context.Background(), Options{})
	require.NoError(t, err)
	assert.False(t, report.Platforms[0].Success)
	assert.True(t, report.Platforms[1].Success)
	assert.Equal(t, []string{"tokyo"}, ids(f.state(t)))
}

func TestRunOnlyEnabledPlatforms(t *testing.T) {
	loc := location("tokyo", true)
	loc.Platforms = weather.Platforms{Instagram: true}
	f := newFixture(t, []weather.Location{loc})

	report, err := f.runner.Run(context.Background(), Options{})
	require.NoError(t, err)
	require.Len(t, report.Platforms, 1)
	assert.Equal(t, platforms.Instagram, report.Platforms[0].Platform)
	assert.Empty(t, f.twitter.reqs)
}

func TestRunWeatherFailure(t *testing.T) {
	f := newFixture(t, []weather.Location{location("tokyo", true)})
	f.runner.weather = fakeWeather{err: weather.ErrNoReadings}

	report, err := f.runner.Run(context.Background(), Options{})
	assert.ErrorIs(t, err, weather.ErrNoReadings)
	assert.Empty(t, report.Platforms)
	assert.Empty(t, f.twitter.reqs)
	assert.Zero(t, f.store.saves)
	assert.Empty(t, f.state(t))
}

func TestEnhancersAreBestEffort(t *testing.T) {
	failing := &fakeEnhancer{platform: platforms.Instagram}
	panicking := &fakeEnhancer{platform: platforms.Instagram, panics: true}
	unused := &fakeEnhancer{platform: platforms.TikTok}

	f := newFixture(t, []weather.Location{location("tokyo", true)},
		WithEnhancers(failing, panicking, unused))

	report, err := f.runner.Run(context.Background(), Options{})
	require.NoError(t, err)
	assert.True(t, report.Success())

	require.Len(t, failing.calls, 1)
	assert.Equal(t, "https://img.example/tokyo", failing.calls[0].MediaURL)
	assert.Len(t, panicking.calls, 1)
	assert.Empty(t, unused.calls)
}

func TestEnhancersSkipFailedPlatform(t *testing.T) {
	enh := &fakeEnhancer{platform: platforms.Instagram}
	f := newFixture(t, []weather.Location{location("tokyo", true)}, WithEnhancers(enh))
	f.instagram.err = errors.New("container failed")

	_, err := f.runner.Run(context.Background(), Options{})
	require.NoError(t, err)
	assert.Empty(t, enh.calls)
}

// blockingWeather holds a run until release is closed.
type blockingWeather struct {
	started chan struct{}
	release chan struct{}
}

func (w blockingWeather) Current(ctx context.Context, loc weather.Location) (weather.WeatherSnapshot, error) {
	close(w.started)
	<-w.release
	return fakeWeather{}.Current(ctx, loc)
}

func TestRunAsyncWhileRunning(t *testing.T) {
	f := newFixture(t, []weather.Location{location("tokyo", true)})
	bw := blockingWeather{started: make(chan struct{}), release: make(chan struct{})}
	f.runner.weather = bw

	done := make(chan error, 1)
	require.NoError(t, f.runner.RunAsync(context.Background(), Options{}, func(_ Report, err error) {
		done <- err
	}))
	<-bw.started

	err := f.runner.RunAsync(context.Background(), Options{}, nil)
	assert.ErrorIs(t, err, ErrRunInProgress)

	close(bw.release)
	require.NoError(t, <-done)

	last, ok := f.runner.LastReport()
	require.True(t, ok)
	assert.Equal(t, "tokyo", last.Location)
}

func TestState(t *testing.T) {
	f := newFixture(t, []weather.Location{location("tokyo", true)})
	f.seed(t, store.RecentSelections{
		{LocationID: "tokyo", Timestamp: now.Add(-24 * time.Hour)},
		{LocationID: "paris", Timestamp: now.Add(-time.Minute)},
	})

	got, err := f.runner.State(context.Background())
	require.NoError(t, err)
	assert.Equal(t, []string{"paris"}, ids(got))

	_, ok := f.runner.LastReport()
	assert.False(t, ok)
}

func TestMetrics(t *testing.T) {
	reg := prometheus.NewRegistry()
	m := NewMetrics(reg)
	f := newFixture(t, []weather.Location{location("tokyo", true)}, WithMetrics(m))
	f.twitter.err = errors.New("boom")

	for i := 0; i < 2; i++ {
		_, err := f.runner.Run(context.Background(), Options{Force: true})
		require.NoError(t, err, fmt.Sprintf("run %d", i))
	}
	_, err := f.runner.Run(context.Background(), Options{LocationID: "nowhere"})
	require.Error(t, err)

	assert.Equal(t, 2.0, testutil.ToFloat64(m.Runs.WithLabelValues("success")))
	assert.Equal(t, 1.0, testutil.ToFloat64(m.Runs.WithLabelValues("failed")))
	assert.Equal(t, 2.0, testutil.ToFloat64(m.Posts.WithLabelValues("twitter", "failed")))
	assert.Equal(t, 2.0, testutil.ToFloat64(m.Posts.WithLabelValues("instagram", "success")))
	assert.Equal(t, 2.0, testutil.ToFloat64(m.Selections.WithLabelValues("tokyo", "false")))
	assert.Equal(t, 2.0, testutil.ToFloat64(m.StateSaves.WithLabelValues("ok")))
	assert.Equal(t, float64(now.Unix()), testutil.ToFloat64(m.LastSuccess))
}
