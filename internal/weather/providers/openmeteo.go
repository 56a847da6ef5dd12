package providers

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/url"
	"time"

	"github.com/sony/gobreaker"

	"github.com/i474232898/city-weather-poster/internal/resilience"
	"github.com/i474232898/city-weather-poster/internal/weather"
)

// OpenMeteoProvider implements the weather.Provider interface for Open-Meteo.
// It needs no API key but only works for locations with coordinates.
type OpenMeteoProvider struct {
	name    string
	baseURL string
	httpCfg resilience.HTTPClientConfig
	circuit *gobreaker.CircuitBreaker
}

func NewOpenMeteoProvider(client *http.Client) *OpenMeteoProvider {
	return &OpenMeteoProvider{
		name:    "openmeteo",
		baseURL: "https://api.open-meteo.com/v1/forecast",
		httpCfg: resilience.HTTPClientConfig{
			Client:  client,
			Backoff: resilience.DefaultBackoff,
		},
		circuit: resilience.NewBreaker("openmeteo"),
	}
}

func (p *OpenMeteoProvider) Name() string {
	return p.name
}

func (p *OpenMeteoProvider) Fetch(ctx context.Context, loc weather.Location) (weather.ProviderReading, error) {
	if !loc.HasCoordinates() {
		return weather.ProviderReading{}, fmt.Errorf("openmeteo requires latitude and longitude")
	}

	buildRequest := func() (*http.Request, error) {
		values := url.Values{}
		values.Set("latitude", fmt.Sprintf("%f", *loc.Lat))
		values.Set("longitude", fmt.Sprintf("%f", *loc.Lon))
		values.Set("current", "temperature_2m,apparent_temperature,relative_humidity_2m,cloud_cover,precipitation,surface_pressure,wind_speed_10m,weather_code")
		values.Set("daily", "sunrise,sunset")
		values.Set("forecast_days", "1")
		values.Set("wind_speed_unit", "ms")
		values.Set("timeformat", "unixtime")

		u := fmt.Sprintf("%s?%s", p.baseURL, values.Encode())
		return http.NewRequest(http.MethodGet, u, nil)
	}

	resp, err := resilience.Do(ctx, p.httpCfg, p.circuit, buildRequest)
	if err != nil {
		return weather.ProviderReading{}, err
	}
	defer resp.Body.Close()

	var payload struct {
		Current struct {
			Time        int64   `json:"time"`
			Temperature float64 `json:"temperature_2m"`
			Apparent    float64 `json:"apparent_temperature"`
			Humidity    float64 `json:"relative_humidity_2m"`
			CloudCover  float64 `json:"cloud_cover"`
			Precip      float64 `json:"precipitation"`
			Pressure    float64 `json:"surface_pressure"`
			WindSpeed   float64 `json:"wind_speed_10m"`
			WeatherCode int     `json:"weather_code"`
		} `json:"current"`
		Daily struct {
			Sunrise []int64 `json:"sunrise"`
			Sunset  []int64 `json:"sunset"`
		} `json:"daily"`
	}

	if err := json.NewDecoder(resp.Body).Decode(&payload); err != nil {
		return weather.ProviderReading{}, err
	}

	ts := time.Now().UTC()
	if payload.Current.Time > 0 {
		ts = time.Unix(payload.Current.Time, 0).UTC()
	}

	cond, desc := mapOpenMeteoCondition(payload.Current.WeatherCode)

	reading := weather.ProviderReading{
		ProviderName: p.name,
		Timestamp:    ts,
		TemperatureC: payload.Current.Temperature,
		FeelsLikeC:   payload.Current.Apparent,
		HumidityPct:  payload.Current.Humidity,
		WindSpeedMS:  payload.Current.WindSpeed,
		PressureHpa:  payload.Current.Pressure,
		PrecipMm:     payload.Current.Precip,
		CloudsPct:    payload.Current.CloudCover,
		Condition:    cond,
		Description:  desc,
	}
	if len(payload.Daily.Sunrise) > 0 && len(payload.Daily.Sunset) > 0 {
		reading.Sunrise = time.Unix(payload.Daily.Sunrise[0], 0).UTC()
		reading.Sunset = time.Unix(payload.Daily.Sunset[0], 0).UTC()
	}
	return reading, nil
}

// mapOpenMeteoCondition maps WMO weather codes (simplified).
func mapOpenMeteoCondition(code int) (weather.Condition, string) {
	switch {
	case code == 0:
		return weather.ConditionClear, "clear sky"
	case code >= 1 && code <= 2:
		return weather.ConditionCloudy, "few clouds"
	case code == 3:
		return weather.ConditionCloudy, "overcast clouds"
	case code == 45 || code == 48:
		return weather.ConditionMist, "fog"
	case code >= 51 && code <= 57:
		return weather.ConditionRain, "drizzle"
	case (code >= 61 && code <= 67) || (code >= 80 && code <= 82):
		return weather.ConditionRain, "rain"
	case code >= 71 && code <= 77, code == 85, code == 86:
		return weather.ConditionSnow, "snow"
	case code >= 95:
		return weather.ConditionStorm, "thunderstorm"
	default:
		return weather.ConditionUnknown, ""
	}
}
