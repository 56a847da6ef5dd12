package config

import (
	"fmt"
	"log/slog"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
)

// TwitterCredentials are the OAuth 1.0a user-context keys for X.
type TwitterCredentials struct {
	APIKey            string
	APISecret         string
	AccessToken       string
	AccessTokenSecret string
}

// Complete reports whether every key is set.
func (c TwitterCredentials) Complete() bool {
	return c.APIKey != "" && c.APISecret != "" && c.AccessToken != "" && c.AccessTokenSecret != ""
}

// InstagramCredentials are the Graph API token and business account id.
type InstagramCredentials struct {
	AccessToken string
	AccountID   string
	// PostStory also publishes the image as a story after the feed post.
	PostStory bool
}

func (c InstagramCredentials) Complete() bool {
	return c.AccessToken != "" && c.AccountID != ""
}

// TikTokCredentials are the Content Posting API token and user open id.
type TikTokCredentials struct {
	AccessToken string
	OpenID      string
}

func (c TikTokCredentials) Complete() bool {
	return c.AccessToken != ""
}

// AppConfig is the process configuration read from the environment.
type AppConfig struct {
	// CatalogPath is the YAML location catalog.
	CatalogPath string
	// OutputDir receives generated images.
	OutputDir string

	// State persistence.
	StateBackend    string
	StatePath       string
	StateKey        string
	RedisURL        string
	MongoURI        string
	MongoDatabase   string
	ExclusionWindow time.Duration

	HTTPTimeout time.Duration

	// Serve mode.
	RunCron     string
	RunInterval time.Duration
	Port        string

	LogLevel  string
	LogFormat string
	LogFile   string

	PushgatewayURL string

	OpenWeatherAPIKey string
	WeatherAPIKey     string
	GoogleAIAPIKey    string
	GeminiModel       string
	GeocoderAPIKey    string

	Twitter   TwitterCredentials
	Instagram InstagramCredentials
	TikTok    TikTokCredentials

	ImageHostingEndpoint string
	ImgBBAPIKey          string
}

// Load reads configuration from environment with sensible defaults.
// A .env file in the working directory is applied first when present.
func Load() (*AppConfig, error) {
	if err := godotenv.Load(); err != nil {
		slog.Debug("no .env file loaded", "error", err)
	}
	cfg := &AppConfig{}

	cfg.CatalogPath = getenvDefault("CATALOG_PATH", "config/cities.yaml")
	cfg.OutputDir = getenvDefault("OUTPUT_DIR", "output")

	cfg.StateBackend = strings.ToLower(getenvDefault("STATE_BACKEND", "file"))
	cfg.StatePath = getenvDefault("STATE_PATH", "state/recent_selections.json")
	cfg.StateKey = os.Getenv("STATE_KEY")
	cfg.RedisURL = getenvDefault("REDIS_URL", "redis://localhost:6379/0")
	cfg.MongoURI = getenvDefault("MONGO_URI", "mongodb://localhost:27017")
	cfg.MongoDatabase = getenvDefault("MONGO_DATABASE", "city_weather_poster")

	var err error
	if cfg.ExclusionWindow, err = getenvDuration("EXCLUSION_WINDOW", 24*time.Hour); err != nil {
		return nil, err
	}
	if cfg.ExclusionWindow <= 0 {
		return nil, fmt.Errorf("invalid EXCLUSION_WINDOW: must be positive")
	}
	if cfg.HTTPTimeout, err = getenvDuration("HTTP_TIMEOUT", 60*time.Second); err != nil {
		return nil, err
	}

	cfg.RunCron = os.Getenv("RUN_CRON")
	if cfg.RunInterval, err = getenvDuration("RUN_INTERVAL", 4*time.Hour); err != nil {
		return nil, err
	}
	cfg.Port = getenvDefault("PORT", "8080")

	cfg.LogLevel = getenvDefault("LOG_LEVEL", "info")
	cfg.LogFormat = getenvDefault("LOG_FORMAT", "text")
	cfg.LogFile = os.Getenv("LOG_FILE")

	cfg.PushgatewayURL = os.Getenv("PUSHGATEWAY_URL")

	cfg.OpenWeatherAPIKey = os.Getenv("OPENWEATHER_API_KEY")
	cfg.WeatherAPIKey = os.Getenv("WEATHERAPI_API_KEY")
	cfg.GoogleAIAPIKey = os.Getenv("GOOGLE_AI_API_KEY")
	cfg.GeminiModel = getenvDefault("GEMINI_MODEL", "gemini-2.5-flash-image-preview")
	cfg.GeocoderAPIKey = os.Getenv("GEOCODER_API_KEY")

	cfg.Twitter = TwitterCredentials{
		APIKey:            os.Getenv("TWITTER_API_KEY"),
		APISecret:         os.Getenv("TWITTER_API_SECRET"),
		AccessToken:       os.Getenv("TWITTER_ACCESS_TOKEN"),
		AccessTokenSecret: os.Getenv("TWITTER_ACCESS_TOKEN_SECRET"),
	}
	cfg.Instagram = InstagramCredentials{
		AccessToken: os.Getenv("INSTAGRAM_ACCESS_TOKEN"),
		AccountID:   os.Getenv("INSTAGRAM_ACCOUNT_ID"),
		PostStory:   getenvBool("INSTAGRAM_POST_STORY", true),
	}
	cfg.TikTok = TikTokCredentials{
		AccessToken: os.Getenv("TIKTOK_ACCESS_TOKEN"),
		OpenID:      os.Getenv("TIKTOK_OPEN_ID"),
	}

	cfg.ImageHostingEndpoint = os.Getenv("IMAGE_HOSTING_ENDPOINT")
	cfg.ImgBBAPIKey = os.Getenv("IMGBB_API_KEY")

	return cfg, nil
}

func getenvDefault(key, def string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return def
}

func getenvDuration(key string, def time.Duration) (time.Duration, error) {
	v := os.Getenv(key)
	if v == "" {
		return def, nil
	}
	d, err := time.ParseDuration(v)
	if err != nil {
		return 0, fmt.Errorf("invalid %s: %w", key, err)
	}
	return d, nil
}

func getenvBool(key string, def bool) bool {
	if v := os.Getenv(key); v != "" {
		b, err := strconv.ParseBool(v)
		if err == nil {
			return b
		}
		slog.Warn("invalid boolean value, using default", "key", key, "default", def)
	}
	return def
}
