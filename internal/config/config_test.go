package config

import (
	"bytes"
	"log/slog"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLoadDefaults(t *testing.T) {
	t.Chdir(t.TempDir())
	for _, k := range []string{"CATALOG_PATH", "STATE_BACKEND", "EXCLUSION_WINDOW", "RUN_INTERVAL", "INSTAGRAM_POST_STORY", "PORT", "HTTP_TIMEOUT"} {
		t.Setenv(k, "")
	}

	cfg, err := Load()
	require.NoError(t, err)

	assert.Equal(t, "config/cities.yaml", cfg.CatalogPath)
	assert.Equal(t, "file", cfg.StateBackend)
	assert.Equal(t, 24*time.Hour, cfg.ExclusionWindow)
	assert.Equal(t, 4*time.Hour, cfg.RunInterval)
	assert.True(t, cfg.Instagram.PostStory)
	assert.Equal(t, "8080", cfg.Port)
}

func TestLoadFromEnvironment(t *testing.T) {
	t.Chdir(t.TempDir())
	t.Setenv("STATE_BACKEND", "Redis")
	t.Setenv("EXCLUSION_WINDOW", "12h")
	t.Setenv("TWITTER_API_KEY", "k")
	t.Setenv("TWITTER_API_SECRET", "s")
	t.Setenv("TWITTER_ACCESS_TOKEN", "t")
	t.Setenv("TWITTER_ACCESS_TOKEN_SECRET", "ts")
	t.Setenv("INSTAGRAM_ACCESS_TOKEN", "ig")
	t.Setenv("INSTAGRAM_ACCOUNT_ID", "")
	t.Setenv("INSTAGRAM_POST_STORY", "false")

	cfg, err := Load()
	require.NoError(t, err)

	assert.Equal(t, "redis", cfg.StateBackend)
	assert.Equal(t, 12*time.Hour, cfg.ExclusionWindow)
	assert.True(t, cfg.Twitter.Complete())
	assert.False(t, cfg.Instagram.Complete())
	assert.False(t, cfg.Instagram.PostStory)
}

func TestLoadRejectsBadDurations(t *testing.T) {
	t.Chdir(t.TempDir())

	t.Setenv("EXCLUSION_WINDOW", "one day")
	_, err := Load()
	assert.ErrorContains(t, err, "EXCLUSION_WINDOW")

	t.Setenv("EXCLUSION_WINDOW", "-1h")
	_, err = Load()
	assert.Error(t, err)

	t.Setenv("EXCLUSION_WINDOW", "")
	t.Setenv("HTTP_TIMEOUT", "soon")
	_, err = Load()
	assert.ErrorContains(t, err, "HTTP_TIMEOUT")
}

func TestParseLevel(t *testing.T) {
	assert.Equal(t, slog.LevelDebug, ParseLevel("DEBUG"))
	assert.Equal(t, slog.LevelWarn, ParseLevel("warning"))
	assert.Equal(t, slog.LevelError, ParseLevel("error"))
	assert.Equal(t, slog.LevelInfo, ParseLevel("verbose"))
}

func TestNewLoggerFormat(t *testing.T) {
	var buf bytes.Buffer
	l := newLogger(&buf, "info", "json")
	l.Debug("hidden")
	l.Info("shown", "city", "tokyo")

	out := buf.String()
	assert.NotContains(t, out, "hidden")
	assert.True(t, strings.HasPrefix(out, "{"))
	assert.Contains(t, out, `"city":"tokyo"`)
}
