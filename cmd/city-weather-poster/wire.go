package main

import (
	"context"
	"fmt"
	"log/slog"
	"net/http"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"

	"github.com/i474232898/city-weather-poster/internal/catalog"
	"github.com/i474232898/city-weather-poster/internal/config"
	"github.com/i474232898/city-weather-poster/internal/imagegen"
	"github.com/i474232898/city-weather-poster/internal/logger"
	"github.com/i474232898/city-weather-poster/internal/platforms"
	"github.com/i474232898/city-weather-poster/internal/runner"
	"github.com/i474232898/city-weather-poster/internal/store"
	"github.com/i474232898/city-weather-poster/internal/weather"
	"github.com/i474232898/city-weather-poster/internal/weather/providers"
)

// deps is everything a command may need. Commands build only what they use.
type deps struct {
	cfg     *config.AppConfig
	log     *slog.Logger
	client  *http.Client
	catalog *catalog.Catalog
}

func setup(ctx context.Context, cli *CLI) (context.Context, *deps, error) {
	cfg, err := config.Load()
	if err != nil {
		return ctx, nil, fmt.Errorf("load config: %w", err)
	}
	if cli.Config != "" {
		cfg.CatalogPath = cli.Config
	}

	log := config.InitLogger(cfg)
	ctx = logger.NewContext(ctx, log)

	var opts []catalog.Option
	if cfg.GeocoderAPIKey != "" {
		opts = append(opts, catalog.WithGeocoder(catalog.NewGoogleGeocoder(cfg.GeocoderAPIKey)))
	}
	cat, err := catalog.Load(ctx, cfg.CatalogPath, opts...)
	if err != nil {
		return ctx, nil, err
	}

	return ctx, &deps{
		cfg:     cfg,
		log:     log,
		client:  &http.Client{Timeout: cfg.HTTPTimeout},
		catalog: cat,
	}, nil
}

func (d *deps) openStore(ctx context.Context) (store.Store, error) {
	return store.Open(ctx, store.Options{
		Backend:       d.cfg.StateBackend,
		Path:          d.cfg.StatePath,
		Key:           d.cfg.StateKey,
		RedisURL:      d.cfg.RedisURL,
		MongoURI:      d.cfg.MongoURI,
		MongoDatabase: d.cfg.MongoDatabase,
	})
}

func (d *deps) weatherService() *weather.Service {
	var provs []weather.Provider
	if d.cfg.OpenWeatherAPIKey != "" {
		provs = append(provs, providers.NewOpenWeatherProvider(d.client, d.cfg.OpenWeatherAPIKey))
	}
	if d.cfg.WeatherAPIKey != "" {
		provs = append(provs, providers.NewWeatherAPIProvider(d.client, d.cfg.WeatherAPIKey))
	}
	// Open-Meteo needs no key, only coordinates.
	provs = append(provs, providers.NewOpenMeteoProvider(d.client))
	return weather.NewService(provs)
}

func (d *deps) posters() ([]platforms.Poster, []platforms.Enhancer) {
	host := platforms.NewImageHost(d.client, d.cfg.ImageHostingEndpoint, d.cfg.ImgBBAPIKey)

	instagram := platforms.NewInstagram(d.cfg.Instagram, host, d.client)
	posters := []platforms.Poster{
		platforms.NewTwitter(d.cfg.Twitter, d.client),
		instagram,
		platforms.NewTikTok(d.cfg.TikTok, host, d.client),
	}
	return posters, []platforms.Enhancer{platforms.NewInstagramStory(instagram)}
}

// newRunner builds the runner and the registry its metrics live in.
func (d *deps) newRunner(st store.Store, outputDir string) (*runner.Runner, *prometheus.Registry) {
	reg := prometheus.NewRegistry()
	reg.MustRegister(
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
	)

	if outputDir == "" {
		outputDir = d.cfg.OutputDir
	}
	posters, enhancers := d.posters()

	r := runner.New(d.catalog, st, d.weatherService(),
		imagegen.NewGenerator(d.client, d.cfg.GoogleAIAPIKey, d.cfg.GeminiModel),
		runner.WithPosters(posters...),
		runner.WithEnhancers(enhancers...),
		runner.WithMetrics(runner.NewMetrics(reg)),
		runner.WithWindow(d.cfg.ExclusionWindow),
		runner.WithOutputDir(outputDir),
	)
	return r, reg
}
