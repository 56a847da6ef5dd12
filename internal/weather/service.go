package weather

import (
	"context"
	"errors"
	"sync"
	"time"

	"github.com/i474232898/city-weather-poster/internal/logger"
)

var (
	// ErrNoProviders is returned when the service was built without providers.
	ErrNoProviders = errors.New("no weather providers configured")

	// ErrNoReadings is returned when every provider failed for a location.
	ErrNoReadings = errors.New("no successful provider readings")
)

// Service fans out to every provider and aggregates the readings.
type Service struct {
	providers []Provider
}

// NewService creates a new Service.
func NewService(providers []Provider) *Service {
	return &Service{
		providers: providers,
	}
}

// Providers returns the names of the configured providers.
func (s *Service) Providers() []string {
	names := make([]string, 0, len(s.providers))
	for _, p := range s.providers {
		names = append(names, p.Name())
	}
	return names
}

// Current fetches data from all providers concurrently for the given location
// and aggregates the successful readings into one snapshot.
func (s *Service) Current(ctx context.Context, loc Location) (WeatherSnapshot, error) {
	log := logger.FromContext(ctx)

	if len(s.providers) == 0 {
		return WeatherSnapshot{}, ErrNoProviders
	}

	var (
		wg       sync.WaitGroup
		mu       sync.Mutex
		readings = make([]*ProviderReading, len(s.providers))
	)

	for i, p := range s.providers {
		wg.Add(1)
		go func() {
			defer wg.Done()

			r, err := p.Fetch(ctx, loc)
			if err != nil {
				// Log and continue; we want partial success when possible.
				log.WarnContext(ctx, "weather provider fetch failed",
					"provider", p.Name(),
					"location", loc.Key(),
					"error", err,
				)
				return
			}

			mu.Lock()
			readings[i] = &r
			mu.Unlock()
		}()
	}

	wg.Wait()

	// Keep provider order so aggregation is deterministic.
	ok := make([]ProviderReading, 0, len(readings))
	for _, r := range readings {
		if r != nil {
			ok = append(ok, *r)
		}
	}

	if len(ok) == 0 {
		return WeatherSnapshot{}, ErrNoReadings
	}

	snapshot := AggregateReadings(loc, ok)
	if snapshot.Timestamp.IsZero() {
		snapshot.Timestamp = time.Now().UTC()
	}

	log.DebugContext(ctx, "weather aggregated",
		"location", loc.Key(),
		"providers", len(ok),
		"condition", snapshot.Condition,
		"temperature_c", snapshot.Temperature,
	)
	return snapshot, nil
}
