package main

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"strconv"
	"strings"
	"text/tabwriter"
	"time"

	"github.com/i474232898/city-weather-poster/internal/logger"
	"github.com/i474232898/city-weather-poster/internal/runner"
	"github.com/i474232898/city-weather-poster/internal/store"
	"github.com/i474232898/city-weather-poster/internal/weather"
)

type runCmd struct {
	City      string `short:"c" help:"Post this location id instead of selecting one."`
	DryRun    bool   `short:"d" help:"Render the image but do not post or record anything."`
	Force     bool   `short:"f" help:"Ignore the recently posted exclusions."`
	OutputDir string `short:"o" help:"Directory for generated images (defaults to OUTPUT_DIR)." type:"path"`
	JSON      bool   `help:"Print the run report as JSON."`
}

func (cmd *runCmd) Run(ctx context.Context, cli *CLI) error {
	ctx, d, err := setup(ctx, cli)
	if err != nil {
		return err
	}
	st, err := d.openStore(ctx)
	if err != nil {
		return err
	}
	defer st.Close()

	r, reg := d.newRunner(st, cmd.OutputDir)
	report, runErr := r.Run(ctx, runner.Options{
		LocationID: cmd.City,
		DryRun:     cmd.DryRun,
		Force:      cmd.Force,
		OutputDir:  cmd.OutputDir,
	})

	if d.cfg.PushgatewayURL != "" {
		pushCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		if err := runner.Push(pushCtx, d.cfg.PushgatewayURL, "city_weather_poster", reg); err != nil {
			logger.FromContext(ctx).WarnContext(ctx, "metrics push failed", "error", err)
		}
	}

	if cmd.JSON {
		enc := json.NewEncoder(os.Stdout)
		enc.SetIndent("", "  ")
		if err := enc.Encode(report); err != nil {
			return err
		}
	} else {
		printReport(report)
	}
	if errors.Is(runErr, runner.ErrUnknownLocation) {
		return fmt.Errorf("%w (known: %s)", runErr, strings.Join(d.catalog.IDs(), ", "))
	}
	return runErr
}

func printReport(r runner.Report) {
	w := tabwriter.NewWriter(os.Stdout, 0, 4, 2, ' ', 0)
	defer w.Flush()

	fmt.Fprintf(w, "run\t%s\n", r.RunID)
	if r.Location != "" {
		loc := r.Location
		switch {
		case r.Override:
			loc += " (requested)"
		case r.Fallback:
			loc += " (fallback: every location posted recently)"
		}
		fmt.Fprintf(w, "location\t%s\n", loc)
	}
	if r.ImagePath != "" {
		fmt.Fprintf(w, "image\t%s\n", r.ImagePath)
	}
	for _, p := range r.Platforms {
		if p.Success {
			fmt.Fprintf(w, "%s\tposted %s\n", p.Platform, p.PostID)
		} else {
			fmt.Fprintf(w, "%s\tfailed: %s\n", p.Platform, p.Error)
		}
	}
	switch {
	case r.DryRun:
		fmt.Fprintf(w, "state\tnot changed (dry run)\n")
	case r.StateSaved:
		fmt.Fprintf(w, "state\tsaved\n")
	case r.StateError != "":
		fmt.Fprintf(w, "state\tNOT SAVED: %s\n", r.StateError)
	}
	if r.Error != "" {
		fmt.Fprintf(w, "error\t%s\n", r.Error)
	}
	fmt.Fprintf(w, "duration\t%s\n", r.Duration.Round(time.Millisecond))
}

type listCmd struct {
	Enabled bool `short:"e" help:"Only show enabled locations."`
}

func (cmd *listCmd) Run(ctx context.Context, cli *CLI) error {
	_, d, err := setup(ctx, cli)
	if err != nil {
		return err
	}

	w := tabwriter.NewWriter(os.Stdout, 0, 4, 2, ' ', 0)
	defer w.Flush()

	fmt.Fprintln(w, "ID\tNAME\tSTATUS\tTIMEZONE\tWEIGHT\tPLATFORMS")
	for _, loc := range d.catalog.Locations() {
		if cmd.Enabled && !loc.Enabled {
			continue
		}
		status := "enabled"
		if !loc.Enabled {
			status = "disabled"
		}
		fmt.Fprintf(w, "%s\t%s\t%s\t%s\t%s\t%s\n",
			loc.ID, loc.Name, status, loc.Timezone, strconv.Itoa(loc.Weight), platformList(loc.Platforms))
	}
	return nil
}

func platformList(p weather.Platforms) string {
	var names []string
	if p.Twitter {
		names = append(names, "twitter")
	}
	if p.Instagram {
		names = append(names, "instagram")
	}
	if p.TikTok {
		names = append(names, "tiktok")
	}
	if len(names) == 0 {
		return "-"
	}
	return strings.Join(names, ",")
}

type stateCmd struct{}

func (cmd *stateCmd) Run(ctx context.Context, cli *CLI) error {
	ctx, d, err := setup(ctx, cli)
	if err != nil {
		return err
	}
	st, err := d.openStore(ctx)
	if err != nil {
		return err
	}
	defer st.Close()

	records, err := st.Load(ctx)
	if err != nil {
		if errors.Is(err, store.ErrStateCorruption) {
			fmt.Fprintf(os.Stderr, "state is corrupted and will be reset by the next run: %v\n", err)
			return nil
		}
		return err
	}
	now := time.Now()
	records = store.CleanupOld(records, now, d.cfg.ExclusionWindow)

	w := tabwriter.NewWriter(os.Stdout, 0, 4, 2, ' ', 0)
	defer w.Flush()

	fmt.Fprintln(w, "LOCATION\tPOSTED\tEXCLUDED FOR")
	for _, r := range records {
		left := d.cfg.ExclusionWindow - now.Sub(r.Timestamp)
		fmt.Fprintf(w, "%s\t%s\t%s\n", r.LocationID, r.Timestamp.Format(time.RFC3339), left.Round(time.Minute))
	}
	return nil
}
