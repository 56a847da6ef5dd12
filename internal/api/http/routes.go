package httpapi

import (
	"context"
	"errors"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/gofiber/fiber/v2"
	"github.com/gofiber/fiber/v2/middleware/adaptor"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/i474232898/city-weather-poster/internal/logger"
	"github.com/i474232898/city-weather-poster/internal/runner"
	"github.com/i474232898/city-weather-poster/internal/store"
	"github.com/i474232898/city-weather-poster/internal/weather"
)

var validate = validator.New()

// Runner is the part of runner.Runner the API drives.
type Runner interface {
	RunAsync(ctx context.Context, opts runner.Options, done func(runner.Report, error)) error
	LastReport() (runner.Report, bool)
	State(ctx context.Context) (store.RecentSelections, error)
}

// Catalog lists the configured locations.
type Catalog interface {
	Locations() []weather.Location
	Enabled() []weather.Location
	LoadedAt() time.Time
}

// Deps are the collaborators behind the routes.
type Deps struct {
	Runner   Runner
	Catalog  Catalog
	Gatherer prometheus.Gatherer

	// BaseContext outlives requests; runs started over HTTP use it.
	BaseContext context.Context

	// NextRun reports the next scheduled run. Optional.
	NextRun func() time.Time
}

// RegisterRoutes wires the HTTP handlers into the Fiber app.
func RegisterRoutes(app *fiber.App, deps Deps) {
	app.Get("/health", func(c *fiber.Ctx) error {
		body := fiber.Map{
			"status":  "ok",
			"service": "city-weather-poster",
		}
		if deps.NextRun != nil {
			if next := deps.NextRun(); !next.IsZero() {
				body["next_run"] = next.UTC()
			}
		}
		return c.JSON(body)
	})

	if deps.Gatherer != nil {
		app.Get("/metrics", adaptor.HTTPHandler(promhttp.HandlerFor(deps.Gatherer, promhttp.HandlerOpts{})))
	}

	v1 := app.Group("/api/v1")

	v1.Get("/locations", func(c *fiber.Ctx) error {
		locs := deps.Catalog.Locations()
		if c.QueryBool("enabled") {
			locs = deps.Catalog.Enabled()
		}
		if locs == nil {
			locs = []weather.Location{}
		}
		return c.JSON(fiber.Map{
			"count":     len(locs),
			"locations": locs,
			"loaded_at": deps.Catalog.LoadedAt().UTC(),
		})
	})

	v1.Get("/state", func(c *fiber.Ctx) error {
		records, err := deps.Runner.State(c.UserContext())
		if err != nil {
			if errors.Is(err, store.ErrStateCorruption) {
				return fiber.NewError(fiber.StatusConflict, err.Error())
			}
			return fiber.NewError(fiber.StatusInternalServerError, "failed to load state")
		}
		return c.JSON(fiber.Map{"recently_posted": records})
	})

	v1.Get("/runs/last", func(c *fiber.Ctx) error {
		report, ok := deps.Runner.LastReport()
		if !ok {
			return fiber.NewError(fiber.StatusNotFound, "no run has finished yet")
		}
		return c.JSON(report)
	})

	v1.Post("/runs", func(c *fiber.Ctx) error {
		var req runRequest
		if len(c.Body()) > 0 {
			if err := c.BodyParser(&req); err != nil {
				return fiber.NewError(fiber.StatusBadRequest, err.Error())
			}
		}
		if err := validate.Struct(req); err != nil {
			return fiber.NewError(fiber.StatusBadRequest, err.Error())
		}

		base := deps.BaseContext
		if base == nil {
			base = context.Background()
		}
		log := logger.FromContext(base)

		err := deps.Runner.RunAsync(base, req.options(), func(report runner.Report, err error) {
			if err != nil {
				log.Warn("requested run failed", "run_id", report.RunID, "error", err)
			}
		})
		if errors.Is(err, runner.ErrRunInProgress) {
			return fiber.NewError(fiber.StatusConflict, err.Error())
		}
		if err != nil {
			return fiber.NewError(fiber.StatusInternalServerError, err.Error())
		}

		return c.Status(fiber.StatusAccepted).JSON(fiber.Map{
			"status":  "started",
			"request": req,
		})
	})
}

// runRequest is the body of POST /api/v1/runs.
type runRequest struct {
	LocationID string `json:"location_id" validate:"omitempty,max=64,printascii"`
	DryRun     bool   `json:"dry_run"`
	Force      bool   `json:"force"`
}

func (r runRequest) options() runner.Options {
	return runner.Options{
		LocationID: r.LocationID,
		DryRun:     r.DryRun,
		Force:      r.Force,
	}
}
