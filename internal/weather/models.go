package weather

import (
	"time"
)

// Condition represents a normalized high-level weather condition.
type Condition string

const (
	ConditionUnknown Condition = "unknown"
	ConditionClear   Condition = "clear"
	ConditionCloudy  Condition = "cloudy"
	ConditionRain    Condition = "rain"
	ConditionSnow    Condition = "snow"
	ConditionStorm   Condition = "storm"
	ConditionMist    Condition = "mist"
)

// Platforms toggles which social platforms a location is posted to.
type Platforms struct {
	Twitter   bool `json:"twitter"`
	Instagram bool `json:"instagram"`
	TikTok    bool `json:"tiktok"`
}

// Any reports whether at least one platform is enabled.
func (p Platforms) Any() bool {
	return p.Twitter || p.Instagram || p.TikTok
}

// Location represents a configured place we post weather imagery for.
// ID is the stable catalog key; everything besides ID, Enabled and Weight
// is only used by the weather, image and posting collaborators.
type Location struct {
	ID        string   `json:"id"`
	Name      string   `json:"name"`
	NameLocal string   `json:"nameLocal,omitempty"`
	Country   string   `json:"country"`
	Timezone  string   `json:"timezone"`
	Lat       *float64 `json:"lat,omitempty"`
	Lon       *float64 `json:"lon,omitempty"`
	Landmarks []string `json:"landmarks,omitempty"`
	Hashtags  []string `json:"hashtags,omitempty"`

	Enabled   bool      `json:"enabled"`
	Weight    int       `json:"weight"`
	Platforms Platforms `json:"platforms"`
}

// Key returns a canonical string key for indexing this location in stores.
func (l Location) Key() string {
	return l.ID
}

// HasCoordinates reports whether both latitude and longitude are known.
func (l Location) HasCoordinates() bool {
	return l.Lat != nil && l.Lon != nil
}

// TZ returns the location's time zone, falling back to UTC when the
// configured zone is empty or unknown to the system tz database.
func (l Location) TZ() *time.Location {
	if l.Timezone == "" {
		return time.UTC
	}
	tz, err := time.LoadLocation(l.Timezone)
	if err != nil {
		return time.UTC
	}
	return tz
}

// WeatherSnapshot is the normalized, aggregated weather view at a point in time.
type WeatherSnapshot struct {
	Location    Location  `json:"location"`
	Timestamp   time.Time `json:"timestamp"` // always UTC
	Temperature float64   `json:"temperatureC"`
	FeelsLike   float64   `json:"feelsLikeC"`
	Humidity    float64   `json:"humidityPercent"`
	WindSpeed   float64   `json:"windSpeed"`
	Pressure    float64   `json:"pressureHpa"`
	PrecipMM    float64   `json:"precipMm"`
	CloudsPct   float64   `json:"cloudsPercent"`
	Condition   Condition `json:"condition"`
	Description string    `json:"description"`

	// Sunrise and Sunset are zero when no provider reported them.
	Sunrise time.Time `json:"sunrise,omitempty"`
	Sunset  time.Time `json:"sunset,omitempty"`

	// Providers contributing to this snapshot.
	Providers []ProviderContribution `json:"providers,omitempty"`
}

// ProviderContribution describes data coming from a single provider used in aggregation.
type ProviderContribution struct {
	ProviderName string    `json:"provider"`
	Timestamp    time.Time `json:"timestamp"`
}
