// Package catalog loads the location catalog from YAML.
//
// The file has a "global" section with image and retry settings and a
// "cities" map keyed by location id. Environment variables prefixed with
// CWP_ override file values, with "__" separating nested keys, for example
// CWP_CITIES__TOKYO__ENABLED=false.
package catalog

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"strings"
	"sync"
	"time"
	"unicode"
	"unicode/utf8"

	"github.com/go-playground/validator/v10"
	"github.com/knadh/koanf/parsers/yaml"
	"github.com/knadh/koanf/providers/env"
	"github.com/knadh/koanf/providers/file"
	"github.com/knadh/koanf/v2"

	"github.com/i474232898/city-weather-poster/internal/logger"
	"github.com/i474232898/city-weather-poster/internal/weather"
)

// EnvPrefix marks environment variables that override catalog values.
const EnvPrefix = "CWP_"

var (
	ErrInvalidCatalog = errors.New("invalid catalog")
	ErrNotFound       = errors.New("location not found")
)

// ImageSettings are the output image parameters.
type ImageSettings struct {
	Width  int    `koanf:"width" validate:"min=64,max=4096"`
	Height int    `koanf:"height" validate:"min=64,max=4096"`
	Format string `koanf:"format" validate:"oneof=png jpeg jpg webp"`
}

// RetrySettings control image generation retries.
type RetrySettings struct {
	MaxAttempts  int `koanf:"max_attempts" validate:"min=1,max=10"`
	DelaySeconds int `koanf:"delay_seconds" validate:"min=0,max=3600"`
}

// Delay returns DelaySeconds as a duration.
func (r RetrySettings) Delay() time.Duration {
	return time.Duration(r.DelaySeconds) * time.Second
}

// Global holds catalog-wide settings.
type Global struct {
	Image ImageSettings `koanf:"image"`
	Retry RetrySettings `koanf:"retry"`
}

// DefaultGlobal is applied before the file is read.
var DefaultGlobal = Global{
	Image: ImageSettings{Width: 1080, Height: 1080, Format: "png"},
	Retry: RetrySettings{MaxAttempts: 3, DelaySeconds: 60},
}

type rawCoordinates struct {
	Lat float64 `koanf:"lat" validate:"min=-90,max=90"`
	Lon float64 `koanf:"lon" validate:"min=-180,max=180"`
}

type rawPlatforms struct {
	Twitter   bool `koanf:"twitter"`
	Instagram bool `koanf:"instagram"`
	TikTok    bool `koanf:"tiktok"`
}

type rawCity struct {
	Name        string          `koanf:"name"`
	NameLocal   string          `koanf:"name_local"`
	Country     string          `koanf:"country"`
	Timezone    string          `koanf:"timezone" validate:"omitempty,timezone"`
	Coordinates *rawCoordinates `koanf:"coordinates"`
	Landmarks   []string        `koanf:"landmarks"`
	Hashtags    []string        `koanf:"hashtags" validate:"dive,startswith=#"`
	Enabled     *bool           `koanf:"enabled"`
	Weight      *int            `koanf:"weight" validate:"omitempty,min=1,max=100"`
	Platforms   rawPlatforms    `koanf:"platforms"`
}

type rawCatalog struct {
	Global Global             `koanf:"global"`
	Cities map[string]rawCity `koanf:"cities" validate:"dive,keys,required,endkeys"`
}

// Catalog is the loaded set of locations. It is safe for concurrent use and
// can be reloaded in place.
type Catalog struct {
	path     string
	geocoder Geocoder
	validate *validator.Validate

	mu        sync.RWMutex
	global    Global
	locations []weather.Location
	byID      map[string]int
	loadedAt  time.Time
}

// Option configures a Catalog.
type Option func(*Catalog)

// WithGeocoder fills in coordinates for cities that have none.
func WithGeocoder(g Geocoder) Option {
	return func(c *Catalog) {
		c.geocoder = g
	}
}

// Load reads and validates the catalog at path.
func Load(ctx context.Context, path string, opts ...Option) (*Catalog, error) {
	c := &Catalog{
		path:     path,
		validate: validator.New(),
	}
	for _, o := range opts {
		o(c)
	}
	if err := c.Reload(ctx); err != nil {
		return nil, err
	}
	return c, nil
}

// Path returns the catalog file location.
func (c *Catalog) Path() string {
	return c.path
}

// Reload rereads the file. On error the previous contents are kept.
func (c *Catalog) Reload(ctx context.Context) error {
	log := logger.FromContext(ctx)

	raw, err := c.read()
	if err != nil {
		return err
	}

	locations := make([]weather.Location, 0, len(raw.Cities))
	for id, rc := range raw.Cities {
		loc := toLocation(id, rc)
		if !loc.HasCoordinates() && c.geocoder != nil {
			lat, lon, err := c.geocoder.Locate(ctx, loc.Name, loc.Country)
			if err != nil {
				log.WarnContext(ctx, "geocoding failed", "location", id, "error", err)
			} else {
				loc.Lat, loc.Lon = &lat, &lon
			}
		}
		locations = append(locations, loc)
	}

	// Stable order keeps weighted selection reproducible for a seed.
	sort.Slice(locations, func(i, j int) bool {
		return locations[i].ID < locations[j].ID
	})

	byID := make(map[string]int, len(locations))
	for i, loc := range locations {
		byID[loc.ID] = i
	}

	c.mu.Lock()
	c.global = raw.Global
	c.locations = locations
	c.byID = byID
	c.loadedAt = time.Now()
	c.mu.Unlock()

	log.InfoContext(ctx, "catalog loaded", "path", c.path, "locations", len(locations))
	return nil
}

func (c *Catalog) read() (*rawCatalog, error) {
	k := koanf.New(".")

	if err := k.Load(file.Provider(c.path), yaml.Parser()); err != nil {
		return nil, fmt.Errorf("load catalog %s: %w", c.path, err)
	}

	// CWP_CITIES__TOKYO__WEIGHT -> cities.tokyo.weight
	envProvider := env.Provider(EnvPrefix, ".", func(s string) string {
		s = strings.TrimPrefix(s, EnvPrefix)
		s = strings.ToLower(s)
		return strings.ReplaceAll(s, "__", ".")
	})
	if err := k.Load(envProvider, nil); err != nil {
		return nil, err
	}

	raw := rawCatalog{Global: DefaultGlobal}
	if err := k.UnmarshalWithConf("", &raw, koanf.UnmarshalConf{Tag: "koanf"}); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrInvalidCatalog, err)
	}
	if err := c.validate.Struct(raw); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrInvalidCatalog, err)
	}
	return &raw, nil
}

func toLocation(id string, rc rawCity) weather.Location {
	loc := weather.Location{
		ID:        id,
		Name:      rc.Name,
		NameLocal: rc.NameLocal,
		Country:   rc.Country,
		Timezone:  rc.Timezone,
		Landmarks: rc.Landmarks,
		Hashtags:  rc.Hashtags,
		Enabled:   true,
		Weight:    1,
		Platforms: weather.Platforms{
			Twitter:   rc.Platforms.Twitter,
			Instagram: rc.Platforms.Instagram,
			TikTok:    rc.Platforms.TikTok,
		},
	}
	if loc.Name == "" {
		loc.Name = titleID(id)
	}
	if loc.Timezone == "" {
		loc.Timezone = "UTC"
	}
	if rc.Enabled != nil {
		loc.Enabled = *rc.Enabled
	}
	if rc.Weight != nil {
		loc.Weight = *rc.Weight
	}
	if rc.Coordinates != nil {
		lat, lon := rc.Coordinates.Lat, rc.Coordinates.Lon
		loc.Lat, loc.Lon = &lat, &lon
	}
	return loc
}

// titleID turns "new_york" into "New York".
func titleID(id string) string {
	words := strings.FieldsFunc(id, func(r rune) bool {
		return r == '_' || r == '-'
	})
	for i, w := range words {
		r, size := utf8.DecodeRuneInString(w)
		words[i] = string(unicode.ToUpper(r)) + w[size:]
	}
	return strings.Join(words, " ")
}

// Locations returns every location ordered by id.
func (c *Catalog) Locations() []weather.Location {
	c.mu.RLock()
	defer c.mu.RUnlock()

	out := make([]weather.Location, len(c.locations))
	copy(out, c.locations)
	return out
}

// Enabled returns the enabled locations ordered by id.
func (c *Catalog) Enabled() []weather.Location {
	c.mu.RLock()
	defer c.mu.RUnlock()

	var out []weather.Location
	for _, loc := range c.locations {
		if loc.Enabled {
			out = append(out, loc)
		}
	}
	return out
}

// Get returns the location with the given id, enabled or not.
func (c *Catalog) Get(id string) (weather.Location, error) {
	c.mu.RLock()
	defer c.mu.RUnlock()

	i, ok := c.byID[id]
	if !ok {
		return weather.Location{}, fmt.Errorf("%w: %q", ErrNotFound, id)
	}
	return c.locations[i], nil
}

// IDs returns all location ids in order.
func (c *Catalog) IDs() []string {
	c.mu.RLock()
	defer c.mu.RUnlock()

	ids := make([]string, len(c.locations))
	for i, loc := range c.locations {
		ids[i] = loc.ID
	}
	return ids
}

func (c *Catalog) Global() Global {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.global
}

// LoadedAt is the time of the last successful (re)load.
func (c *Catalog) LoadedAt() time.Time {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.loadedAt
}
