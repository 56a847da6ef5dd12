package main

import (
	"context"
	"errors"
	"time"

	"golang.org/x/sync/errgroup"

	httpapi "github.com/i474232898/city-weather-poster/internal/api/http"
	"github.com/i474232898/city-weather-poster/internal/logger"
	"github.com/i474232898/city-weather-poster/internal/runner"
	"github.com/i474232898/city-weather-poster/internal/scheduler"
)

type serveCmd struct {
	Cron     string        `help:"Cron expression for runs, UTC (defaults to RUN_CRON)."`
	Interval time.Duration `help:"Run interval when no cron expression is set (defaults to RUN_INTERVAL)."`
	Port     string        `help:"HTTP port (defaults to PORT)."`
	NoWatch  bool          `help:"Do not reload the catalog when its file changes."`
}

func (cmd *serveCmd) Run(ctx context.Context, cli *CLI) error {
	ctx, d, err := setup(ctx, cli)
	if err != nil {
		return err
	}
	log := logger.FromContext(ctx)

	st, err := d.openStore(ctx)
	if err != nil {
		return err
	}
	defer st.Close()

	r, reg := d.newRunner(st, "")

	expr, interval, port := d.cfg.RunCron, d.cfg.RunInterval, d.cfg.Port
	if cmd.Cron != "" {
		expr = cmd.Cron
	}
	if cmd.Interval > 0 {
		interval = cmd.Interval
	}
	if cmd.Port != "" {
		port = cmd.Port
	}

	sched, err := scheduler.New(expr, interval, func(ctx context.Context) {
		// Failures are in the report and the metrics; the next tick retries.
		_, _ = r.Run(ctx, runner.Options{})
	})
	if err != nil {
		return err
	}
	if err := sched.Start(ctx); err != nil {
		return err
	}
	defer sched.Stop()

	app := httpapi.NewApp(httpapi.Deps{
		Runner:      r,
		Catalog:     d.catalog,
		Gatherer:    reg,
		BaseContext: ctx,
		NextRun:     sched.NextRun,
	})

	g, ctx := errgroup.WithContext(ctx)

	g.Go(func() error {
		log.InfoContext(ctx, "http server listening", "port", port)
		return app.Listen(":" + port)
	})

	g.Go(func() error {
		<-ctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		return app.ShutdownWithContext(shutdownCtx)
	})

	if !cmd.NoWatch {
		g.Go(func() error {
			if err := d.catalog.Watch(ctx, nil); err != nil {
				log.WarnContext(ctx, "catalog watch stopped", "error", err)
			}
			return nil
		})
	}

	err = g.Wait()
	if errors.Is(err, context.Canceled) {
		return nil
	}
	return err
}
