package weather

import (
	"fmt"
	"strings"
	"time"

	"github.com/i474232898/city-weather-poster/internal/common"
)

type phrase struct {
	match string
	text  string
}

// Ordered so that more specific descriptions win ("light rain" before "rain").
var descriptionEmoji = []phrase{
	{"clear sky", "☀️"},
	{"few clouds", "🌤️"},
	{"scattered clouds", "⛅"},
	{"broken clouds", "🌥️"},
	{"overcast clouds", "☁️"},
	{"shower rain", "🌧️"},
	{"light rain", "🌦️"},
	{"moderate rain", "🌧️"},
	{"heavy rain", "⛈️"},
	{"rain", "🌧️"},
	{"thunderstorm", "⛈️"},
	{"light snow", "🌨️"},
	{"heavy snow", "❄️"},
	{"snow", "🌨️"},
	{"mist", "🌫️"},
	{"fog", "🌫️"},
	{"haze", "🌫️"},
	{"dust", "🌪️"},
	{"smoke", "🌫️"},
	{"drizzle", "🌧️"},
}

var atmospheres = []phrase{
	{"clear", "bright sunshine, crisp shadows, blue sky"},
	{"cloud", "soft diffused light, cloudy sky, gentle shadows"},
	{"drizzle", "light mist, wet surfaces, overcast atmosphere"},
	{"thunder", "dramatic dark clouds, lightning in the distance, stormy atmosphere"},
	{"rain", "wet streets, rain droplets, puddle reflections, grey sky"},
	{"snow", "snow-covered roofs and streets, soft white blanket, winter wonderland"},
	{"mist", "mysterious fog, soft diffused light, atmospheric haze"},
	{"fog", "thick fog partially obscuring buildings, moody atmosphere"},
	{"haze", "hazy atmosphere, soft sunlight filtering through"},
}

// Emoji returns a weather icon for the snapshot's description, falling back
// to the normalized condition.
func (s WeatherSnapshot) Emoji() string {
	desc := strings.ToLower(s.Description)
	for _, p := range descriptionEmoji {
		if strings.Contains(desc, p.match) {
			return p.text
		}
	}

	switch s.Condition {
	case ConditionClear:
		return "☀️"
	case ConditionCloudy:
		return "☁️"
	case ConditionRain, ConditionStorm:
		return "🌧️"
	case ConditionSnow:
		return "🌨️"
	case ConditionMist:
		return "🌫️"
	}
	return "🌡️"
}

// Atmosphere returns a prompt fragment describing the scene's weather.
func (s WeatherSnapshot) Atmosphere() string {
	text := strings.ToLower(s.Description + " " + string(s.Condition))
	for _, p := range atmospheres {
		if common.HasAny(text, p.match) {
			return p.text
		}
	}
	return "pleasant weather, natural lighting"
}

// IsDaytime reports whether the snapshot was taken between sunrise and sunset.
// Without sunrise/sunset data it assumes 06:00-20:00 local time.
func (s WeatherSnapshot) IsDaytime() bool {
	if !s.Sunrise.IsZero() && !s.Sunset.IsZero() {
		return !s.Timestamp.Before(s.Sunrise) && !s.Timestamp.After(s.Sunset)
	}
	hour := s.LocalTime().Hour()
	return hour >= 6 && hour < 20
}

// LocalTime returns the snapshot timestamp in the location's time zone.
func (s WeatherSnapshot) LocalTime() time.Time {
	return s.Timestamp.In(s.Location.TZ())
}

// TimeOfDay returns a prompt fragment describing the lighting for the
// location's local time.
func (s WeatherSnapshot) TimeOfDay() string {
	if !s.IsDaytime() {
		return "nighttime scene with city lights glowing, stars in the sky"
	}

	hour := s.LocalTime().Hour()
	switch {
	case hour >= 5 && hour < 8:
		return "early morning golden hour, warm sunrise light"
	case hour >= 8 && hour < 11:
		return "bright morning light, crisp atmosphere"
	case hour >= 11 && hour < 14:
		return "midday sun, strong overhead lighting"
	case hour >= 14 && hour < 17:
		return "afternoon light, warm tones"
	case hour >= 17 && hour < 20:
		return "golden hour sunset, warm orange and pink sky"
	default:
		return "twilight, city transitioning to night"
	}
}

// TemperatureFeel classifies the temperature as warm, cool or mild.
func (s WeatherSnapshot) TemperatureFeel() string {
	switch {
	case s.Temperature > 25:
		return "warm"
	case s.Temperature < 15:
		return "cool"
	default:
		return "mild"
	}
}

// FormatTemperature renders the temperature rounded to whole degrees in
// Celsius ("C") or Fahrenheit ("F").
func (s WeatherSnapshot) FormatTemperature(unit string) string {
	return formatDegrees(s.Temperature, unit)
}

// FormatFeelsLike renders the feels-like temperature like FormatTemperature.
func (s WeatherSnapshot) FormatFeelsLike(unit string) string {
	return formatDegrees(s.FeelsLike, unit)
}

// FormatDate renders the local date, e.g. "January 2, 2006".
func (s WeatherSnapshot) FormatDate() string {
	return s.LocalTime().Format("January 2, 2006")
}

func formatDegrees(celsius float64, unit string) string {
	if strings.EqualFold(unit, "F") {
		return fmt.Sprintf("%.0f°F", celsius*9/5+32)
	}
	return fmt.Sprintf("%.0f°C", celsius)
}
