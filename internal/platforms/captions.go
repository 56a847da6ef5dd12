package platforms

import (
	"fmt"
	"strings"
	"unicode/utf8"

	"github.com/i474232898/city-weather-poster/internal/common"
	"github.com/i474232898/city-weather-poster/internal/weather"
)

const (
	maxTwitterHashtags   = 6
	maxInstagramHashtags = 25
	maxTikTokHashtags    = 10
	maxTikTokTitle       = 150
)

// TwitterCaption builds the tweet text.
func TwitterCaption(loc weather.Location, snap weather.WeatherSnapshot) string {
	tags := loc.Hashtags
	if len(tags) == 0 {
		tags = []string{compactTag(loc.Name), "#Weather"}
	}
	tags = append(append([]string{}, tags...), "#AIArt", "#CityWeather")

	lines := []string{
		fmt.Sprintf("%s %s Weather", snap.Emoji(), loc.Name),
		fmt.Sprintf("🌡️ %s (%s)", snap.FormatTemperature("C"), snap.FormatTemperature("F")),
		"📅 " + snap.FormatDate(),
		"☁️ " + common.TitleWords(snap.Description),
		"",
		joinTags(common.Dedupe(tags, nil), maxTwitterHashtags),
	}
	return strings.Join(lines, "\n")
}

// InstagramCaption builds the feed caption. Instagram allows long captions,
// so it carries more detail and more hashtags than the other platforms.
func InstagramCaption(loc weather.Location, snap weather.WeatherSnapshot) string {
	standard := []string{
		compactTag(loc.Name),
		compactTag(loc.Country),
		"#Weather",
		"#CityWeather",
		"#AIArt",
		"#IsometricArt",
		"#3DArt",
		"#DailyWeather",
		"#TravelGram",
		"#CityLife",
		"#WeatherUpdate",
		"#AIGenerated",
	}
	tags := append(append([]string{}, loc.Hashtags...), standard...)

	lines := []string{
		fmt.Sprintf("%s %s Weather Update", snap.Emoji(), loc.Name),
		"",
		fmt.Sprintf("🌡️ Temperature: %s (%s)", snap.FormatTemperature("C"), snap.FormatTemperature("F")),
		"💨 Feels like: " + snap.FormatFeelsLike("C"),
		fmt.Sprintf("💧 Humidity: %.0f%%", snap.Humidity),
		"☁️ Conditions: " + common.TitleWords(snap.Description),
		"",
		"📅 " + snap.FormatDate(),
		"",
		strings.Repeat("—", 10),
		"",
		joinTags(common.Dedupe(tags, nil), maxInstagramHashtags),
	}
	return strings.Join(lines, "\n")
}

// TikTokCaption builds the photo post title. Standard hashtags are lower
// case and compared case-insensitively with the location's own.
func TikTokCaption(loc weather.Location, snap weather.WeatherSnapshot) string {
	standard := []string{
		strings.ToLower(compactTag(loc.Name)),
		"#weather",
		"#fyp",
		"#foryou",
		"#citylife",
		"#aiart",
		"#dailyweather",
		strings.ToLower(compactTag(loc.Country)),
	}
	tags := append(append([]string{}, loc.Hashtags...), standard...)

	lines := []string{
		fmt.Sprintf("%s %s Weather Today!", snap.Emoji(), loc.Name),
		fmt.Sprintf("🌡️ %s | %s", snap.FormatTemperature("C"), common.TitleWords(snap.Description)),
		"",
		joinTags(common.Dedupe(tags, strings.ToLower), maxTikTokHashtags),
	}
	return truncate(strings.Join(lines, "\n"), maxTikTokTitle)
}

func compactTag(s string) string {
	return "#" + strings.ReplaceAll(s, " ", "")
}

func joinTags(tags []string, limit int) string {
	if len(tags) > limit {
		tags = tags[:limit]
	}
	return strings.Join(tags, " ")
}

// truncate cuts s to at most n runes.
func truncate(s string, n int) string {
	if utf8.RuneCountInString(s) <= n {
		return s
	}
	return string([]rune(s)[:n])
}
