package selector

import (
	"errors"
	"fmt"
	"math/rand/v2"
	"testing"

	"github.com/smartystreets/goconvey/convey"

	"github.com/i474232898/city-weather-poster/internal/weather"
)

func loc(id string, enabled bool, weight int) weather.Location {
	return weather.Location{ID: id, Name: id, Enabled: enabled, Weight: weight}
}

func set(ids ...string) map[string]struct{} {
	s := make(map[string]struct{}, len(ids))
	for _, id := range ids {
		s[id] = struct{}{}
	}
	return s
}

// fixedRand always draws the same value.
type fixedRand int

func (f fixedRand) IntN(n int) int {
	return int(f) % n
}

func TestSelect(t *testing.T) {
	convey.Convey("Given a catalog of tokyo and paris", t, func() {
		catalog := []weather.Location{loc("paris", true, 1), loc("tokyo", true, 1)}
		rng := rand.New(rand.NewPCG(1, 2))

		convey.Convey("When tokyo was posted an hour ago", func() {
			excluded := set("tokyo")

			convey.Convey("Then paris is always selected", func() {
				for i := 0; i < 100; i++ {
					res, err := Select(catalog, excluded, rng)
					convey.So(err, convey.ShouldBeNil)
					convey.So(res.Location.ID, convey.ShouldEqual, "paris")
					convey.So(res.Fallback, convey.ShouldBeFalse)
					convey.So(res.Candidates, convey.ShouldEqual, 1)
				}
			})
		})

		convey.Convey("When both were posted within the window", func() {
			excluded := set("tokyo", "paris")

			convey.Convey("Then the exclusions are ignored and either is returned", func() {
				seen := map[string]bool{}
				for i := 0; i < 200; i++ {
					res, err := Select(catalog, excluded, rng)
					convey.So(err, convey.ShouldBeNil)
					convey.So(res.Fallback, convey.ShouldBeTrue)
					convey.So(res.Candidates, convey.ShouldEqual, 2)
					seen[res.Location.ID] = true
				}
				convey.So(seen["tokyo"], convey.ShouldBeTrue)
				convey.So(seen["paris"], convey.ShouldBeTrue)
			})
		})

		convey.Convey("When nothing is excluded", func() {
			res, err := Select(catalog, nil, rng)

			convey.Convey("Then a location is picked without fallback", func() {
				convey.So(err, convey.ShouldBeNil)
				convey.So(res.Fallback, convey.ShouldBeFalse)
				convey.So(res.Candidates, convey.ShouldEqual, 2)
			})
		})
	})
}

func TestSelectFallbackIgnoresDisabled(t *testing.T) {
	convey.Convey("Given every enabled location is excluded", t, func() {
		catalog := []weather.Location{
			loc("berlin", false, 10),
			loc("oslo", true, 1),
			loc("rome", true, 2),
		}
		rng := rand.New(rand.NewPCG(7, 7))

		convey.Convey("Then the fallback draws only from enabled locations", func() {
			for i := 0; i < 500; i++ {
				res, err := Select(catalog, set("oslo", "rome", "unknown"), rng)
				convey.So(err, convey.ShouldBeNil)
				convey.So(res.Fallback, convey.ShouldBeTrue)
				convey.So(res.Location.ID, convey.ShouldNotEqual, "berlin")
				convey.So(res.Location.Enabled, convey.ShouldBeTrue)
			}
		})
	})
}

func TestSelectNoEnabledLocations(t *testing.T) {
	convey.Convey("Given a catalog without enabled locations", t, func() {
		rng := rand.New(rand.NewPCG(3, 4))
		cases := [][]weather.Location{
			nil,
			{},
			{loc("tokyo", false, 1), loc("paris", false, 5)},
		}

		convey.Convey("Then selection fails regardless of exclusions", func() {
			for _, catalog := range cases {
				for _, excluded := range []map[string]struct{}{nil, set("tokyo"), set("tokyo", "paris")} {
					_, err := Select(catalog, excluded, rng)
					convey.So(err, convey.ShouldEqual, ErrNoEligibleLocations)
				}
			}
		})
	})
}

func TestSelectEligibility(t *testing.T) {
	convey.Convey("Given random catalogs and partial exclusion sets", t, func() {
		gen := rand.New(rand.NewPCG(42, 1))
		rng := rand.New(rand.NewPCG(42, 2))

		convey.Convey("Then the pick is always enabled and not excluded", func() {
			for round := 0; round < 300; round++ {
				n := 1 + gen.IntN(12)
				catalog := make([]weather.Location, n)
				var enabledIDs []string
				for i := range catalog {
					id := fmt.Sprintf("loc-%02d", i)
					enabled := gen.IntN(4) != 0
					catalog[i] = loc(id, enabled, 1+gen.IntN(100))
					if enabled {
						enabledIDs = append(enabledIDs, id)
					}
				}
				if len(enabledIDs) < 2 {
					continue
				}

				// Exclude a strict subset of the enabled ids plus some disabled ones.
				excluded := set()
				keep := enabledIDs[gen.IntN(len(enabledIDs))]
				for _, id := range enabledIDs {
					if id != keep && gen.IntN(2) == 0 {
						excluded[id] = struct{}{}
					}
				}
				for _, l := range catalog {
					if !l.Enabled && gen.IntN(2) == 0 {
						excluded[l.ID] = struct{}{}
					}
				}

				res, err := Select(catalog, excluded, rng)
				convey.So(err, convey.ShouldBeNil)
				convey.So(res.Fallback, convey.ShouldBeFalse)
				convey.So(res.Location.Enabled, convey.ShouldBeTrue)
				_, isExcluded := excluded[res.Location.ID]
				convey.So(isExcluded, convey.ShouldBeFalse)
			}
		})
	})
}

func TestSelectWeightedDistribution(t *testing.T) {
	convey.Convey("Given candidates A with weight 1 and B with weight 3", t, func() {
		catalog := []weather.Location{loc("a", true, 1), loc("b", true, 3)}
		rng := rand.New(rand.NewPCG(2025, 12))

		convey.Convey("Then B is picked about three times as often as A", func() {
			const trials = 40000
			counts := map[string]int{}
			failures := 0
			for i := 0; i < trials; i++ {
				res, err := Select(catalog, nil, rng)
				if err != nil {
					failures++
					continue
				}
				counts[res.Location.ID]++
			}

			convey.So(failures, convey.ShouldEqual, 0)
			convey.So(counts["a"], convey.ShouldBeGreaterThan, 0)
			ratio := float64(counts["b"]) / float64(counts["a"])
			convey.So(ratio, convey.ShouldAlmostEqual, 3.0, 0.25)
		})
	})
}

func TestSelectCumulativeBoundaries(t *testing.T) {
	convey.Convey("Given weights 1, 3 and 2 in catalog order", t, func() {
		catalog := []weather.Location{loc("a", true, 1), loc("b", true, 3), loc("c", true, 2)}

		convey.Convey("Then each draw maps to the first cumulative weight above it", func() {
			want := map[int]string{0: "a", 1: "b", 2: "b", 3: "b", 4: "c", 5: "c"}
			for draw, id := range want {
				res, err := Select(catalog, nil, fixedRand(draw))
				convey.So(err, convey.ShouldBeNil)
				convey.So(res.Location.ID, convey.ShouldEqual, id)
			}
		})
	})

	convey.Convey("Given a candidate with weight 0", t, func() {
		catalog := []weather.Location{loc("a", true, 0)}

		convey.Convey("Then selection reports an invalid weight", func() {
			_, err := Select(catalog, nil, fixedRand(0))
			convey.So(errors.Is(err, ErrInvalidWeight), convey.ShouldBeTrue)
		})
	})
}

func TestSelectIsReproducible(t *testing.T) {
	convey.Convey("Given two sources with the same seed", t, func() {
		catalog := []weather.Location{
			loc("cairo", true, 5), loc("lima", true, 1), loc("seoul", true, 9), loc("quito", true, 2),
		}
		r1 := rand.New(rand.NewPCG(9, 9))
		r2 := rand.New(rand.NewPCG(9, 9))

		convey.Convey("Then they produce the same sequence of picks", func() {
			for i := 0; i < 50; i++ {
				a, err1 := Select(catalog, set("lima"), r1)
				b, err2 := Select(catalog, set("lima"), r2)
				convey.So(err1, convey.ShouldBeNil)
				convey.So(err2, convey.ShouldBeNil)
				convey.So(a.Location.ID, convey.ShouldEqual, b.Location.ID)
			}
		})
	})
}
