// Package imagegen renders the weather image for a location with the Gemini
// image model and stores it on disk.
package imagegen

import (
	"bytes"
	"context"
	"encoding/base64"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"os"
	"path/filepath"
	"time"

	"github.com/cenkalti/backoff/v5"
	"github.com/sony/gobreaker"

	"github.com/i474232898/city-weather-poster/internal/catalog"
	"github.com/i474232898/city-weather-poster/internal/logger"
	"github.com/i474232898/city-weather-poster/internal/resilience"
	"github.com/i474232898/city-weather-poster/internal/weather"
)

const (
	DefaultModel   = "gemini-2.5-flash-image-preview"
	defaultBaseURL = "https://generativelanguage.googleapis.com/v1beta"
)

var (
	ErrNotConfigured = errors.New("image generation api key not configured")
	ErrNoImage       = errors.New("response contained no image")
)

// Image is a generated picture saved to disk.
type Image struct {
	Path     string
	MIMEType string
	Data     []byte
	Prompt   string
}

// Settings control output and retries. They come from the catalog's global
// section.
type Settings struct {
	Image catalog.ImageSettings
	Retry catalog.RetrySettings
}

// Generator calls the Gemini generateContent endpoint.
type Generator struct {
	apiKey  string
	model   string
	baseURL string
	httpCfg resilience.HTTPClientConfig
	circuit *gobreaker.CircuitBreaker

	now func() time.Time
}

func NewGenerator(client *http.Client, apiKey, model string) *Generator {
	if model == "" {
		model = DefaultModel
	}
	return &Generator{
		apiKey:  apiKey,
		model:   model,
		baseURL: defaultBaseURL,
		httpCfg: resilience.HTTPClientConfig{
			Client: client,
			// Attempts are retried by Generate with the catalog's retry settings.
			Backoff: resilience.BackoffConfig{MaxRetries: 0, InitialInterval: time.Second},
		},
		circuit: resilience.NewBreaker("gemini"),
		now:     time.Now,
	}
}

// Generate builds the prompt, renders the image and writes it to outputDir
// as <id>_<YYYYMMDD_HHMMSS>.<ext>. Failed attempts are retried
// settings.Retry.MaxAttempts times with a constant delay.
func (g *Generator) Generate(ctx context.Context, loc weather.Location, snap weather.WeatherSnapshot, outputDir string, settings Settings) (Image, error) {
	log := logger.FromContext(ctx)

	if g.apiKey == "" {
		return Image{}, ErrNotConfigured
	}

	prompt := BuildPrompt(loc, snap, settings.Image)
	log.InfoContext(ctx, "generating image",
		"description", snap.Description,
		"temperature_c", snap.Temperature,
	)

	attempts := settings.Retry.MaxAttempts
	if attempts < 1 {
		attempts = 1
	}

	attempt := 0
	img, err := backoff.Retry(ctx, func() (Image, error) {
		attempt++
		log.DebugContext(ctx, "image generation attempt", "attempt", attempt, "max_attempts", attempts)

		data, mimeType, err := g.render(ctx, prompt)
		if err != nil {
			var statusErr *resilience.StatusError
			if errors.As(err, &statusErr) && statusErr.StatusCode >= 400 && statusErr.StatusCode < 500 &&
				statusErr.StatusCode != http.StatusTooManyRequests {
				return Image{}, backoff.Permanent(err)
			}
			return Image{}, err
		}
		return Image{MIMEType: mimeType, Data: data, Prompt: prompt}, nil
	},
		backoff.WithBackOff(backoff.NewConstantBackOff(settings.Retry.Delay())),
		backoff.WithMaxTries(uint(attempts)),
		backoff.WithNotify(func(err error, next time.Duration) {
			log.WarnContext(ctx, "image generation failed, retrying", "error", err, "retry_in", next)
		}),
	)
	if err != nil {
		return Image{}, fmt.Errorf("generate image for %s after %d attempts: %w", loc.ID, attempt, err)
	}

	if err := os.MkdirAll(outputDir, 0o755); err != nil {
		return Image{}, fmt.Errorf("create output dir: %w", err)
	}
	name := fmt.Sprintf("%s_%s%s", loc.ID, g.now().Format("20060102_150405"), extension(img.MIMEType))
	img.Path = filepath.Join(outputDir, name)
	if err := os.WriteFile(img.Path, img.Data, 0o644); err != nil {
		return Image{}, fmt.Errorf("write image: %w", err)
	}

	log.InfoContext(ctx, "image saved", "path", img.Path, "bytes", len(img.Data))
	return img, nil
}

type generateRequest struct {
	Contents         []content        `json:"contents"`
	GenerationConfig generationConfig `json:"generationConfig"`
}

type generationConfig struct {
	ResponseModalities []string `json:"responseModalities"`
}

type content struct {
	Parts []part `json:"parts"`
}

type part struct {
	Text       string      `json:"text,omitempty"`
	InlineData *inlineData `json:"inlineData,omitempty"`
}

type inlineData struct {
	MimeType string `json:"mimeType"`
	Data     string `json:"data"`
}

type generateResponse struct {
	Candidates []struct {
		Content      content `json:"content"`
		FinishReason string  `json:"finishReason"`
	} `json:"candidates"`
}

// render performs one generateContent call and returns the first inline image.
func (g *Generator) render(ctx context.Context, prompt string) ([]byte, string, error) {
	body, err := json.Marshal(generateRequest{
		Contents:         []content{{Parts: []part{{Text: prompt}}}},
		GenerationConfig: generationConfig{ResponseModalities: []string{"IMAGE", "TEXT"}},
	})
	if err != nil {
		return nil, "", err
	}

	buildRequest := func() (*http.Request, error) {
		u := fmt.Sprintf("%s/models/%s:generateContent", g.baseURL, g.model)
		req, err := http.NewRequest(http.MethodPost, u, bytes.NewReader(body))
		if err != nil {
			return nil, err
		}
		req.Header.Set("Content-Type", "application/json")
		req.Header.Set("x-goog-api-key", g.apiKey)
		return req, nil
	}

	resp, err := resilience.Do(ctx, g.httpCfg, g.circuit, buildRequest)
	if err != nil {
		return nil, "", err
	}
	defer resp.Body.Close()

	var payload generateResponse
	if err := json.NewDecoder(resp.Body).Decode(&payload); err != nil {
		return nil, "", fmt.Errorf("decode response: %w", err)
	}

	for _, c := range payload.Candidates {
		for _, p := range c.Content.Parts {
			if p.InlineData == nil || p.InlineData.Data == "" {
				continue
			}
			data, err := base64.StdEncoding.DecodeString(p.InlineData.Data)
			if err != nil {
				return nil, "", fmt.Errorf("decode image data: %w", err)
			}
			return data, p.InlineData.MimeType, nil
		}
	}
	return nil, "", ErrNoImage
}

func extension(mimeType string) string {
	switch mimeType {
	case "image/jpeg":
		return ".jpg"
	case "image/webp":
		return ".webp"
	default:
		return ".png"
	}
}
