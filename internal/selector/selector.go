// Package selector picks the location to post for a run.
//
// Select is a pure function of the catalog, the excluded ids and an injected
// random source. Tests pass a seeded source to get reproducible picks.
package selector

import (
	"errors"
	"fmt"

	"github.com/i474232898/city-weather-poster/internal/weather"
)

var (
	// ErrNoEligibleLocations means the catalog has no enabled location.
	ErrNoEligibleLocations = errors.New("no eligible locations")

	// ErrInvalidWeight means a candidate has a weight below 1.
	ErrInvalidWeight = errors.New("location weight must be at least 1")
)

// Rand is the random source used for the weighted draw.
// *math/rand/v2.Rand satisfies it.
type Rand interface {
	// IntN returns a value in [0, n).
	IntN(n int) int
}

// Result is the outcome of a selection.
type Result struct {
	Location weather.Location

	// Fallback is set when every enabled location was excluded and the
	// exclusions were ignored for this run.
	Fallback bool

	// Candidates is the size of the pool the draw was made from.
	Candidates int
}

// Select returns one enabled location not in excluded, drawn with probability
// proportional to its weight. Candidates keep the order of locations.
//
// If every enabled location is excluded, the exclusions are ignored and the
// draw is made over all enabled locations. Persisted state is not touched.
func Select(locations []weather.Location, excluded map[string]struct{}, rng Rand) (Result, error) {
	enabled := make([]weather.Location, 0, len(locations))
	for _, loc := range locations {
		if loc.Enabled {
			enabled = append(enabled, loc)
		}
	}
	if len(enabled) == 0 {
		return Result{}, ErrNoEligibleLocations
	}

	candidates := make([]weather.Location, 0, len(enabled))
	for _, loc := range enabled {
		if _, skip := excluded[loc.ID]; !skip {
			candidates = append(candidates, loc)
		}
	}

	fallback := false
	if len(candidates) == 0 {
		candidates = enabled
		fallback = true
	}

	loc, err := weightedPick(candidates, rng)
	if err != nil {
		return Result{}, err
	}
	return Result{
		Location:   loc,
		Fallback:   fallback,
		Candidates: len(candidates),
	}, nil
}

func weightedPick(candidates []weather.Location, rng Rand) (weather.Location, error) {
	cumulative := make([]int, len(candidates))
	total := 0
	for i, c := range candidates {
		if c.Weight < 1 {
			return weather.Location{}, fmt.Errorf("%w: %s has %d", ErrInvalidWeight, c.ID, c.Weight)
		}
		total += c.Weight
		cumulative[i] = total
	}

	draw := rng.IntN(total)
	for i, cw := range cumulative {
		if cw > draw {
			return candidates[i], nil
		}
	}
	// Unreachable for a draw in [0, total).
	return candidates[len(candidates)-1], nil
}
