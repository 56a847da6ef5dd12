package main

import (
	"context"
	"log"
	"os"
	"os/signal"
	"syscall"

	"github.com/alecthomas/kong"
)

// CLI is the command tree. run is the default command.
type CLI struct {
	Config string `help:"Location catalog (defaults to CATALOG_PATH)." type:"path" placeholder:"cities.yaml"`

	Run   runCmd   `cmd:"" default:"withargs" help:"Select a location, render its weather image and post it."`
	List  listCmd  `cmd:"" aliases:"list-cities" help:"List the configured locations."`
	State stateCmd `cmd:"" help:"Show the recently posted locations."`
	Serve serveCmd `cmd:"" help:"Run on a schedule and serve the status API."`
}

func main() {
	ctx, cancel := signal.NotifyContext(context.Background(),
		os.Interrupt, syscall.SIGTERM,
	)
	defer cancel()

	cli := &CLI{}
	parser, err := kong.New(cli,
		kong.Name("city-weather-poster"),
		kong.Description("Posts AI-generated city weather images to social platforms."),
		kong.BindTo(ctx, (*context.Context)(nil)),
		kong.Bind(cli),
		kong.ConfigureHelp(kong.HelpOptions{
			Tree: true,
		}),
		kong.UsageOnError(),
	)
	if err != nil {
		log.Printf("error: %v", err)
		os.Exit(1)
	}

	kctx, err := parser.Parse(os.Args[1:])
	if err != nil {
		parser.FatalIfErrorf(err)
	}

	err = kctx.Run()
	parser.FatalIfErrorf(err)
}
