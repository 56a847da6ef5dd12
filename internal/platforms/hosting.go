package platforms

import (
	"bytes"
	"context"
	"encoding/base64"
	"encoding/json"
	"fmt"
	"io"
	"mime/multipart"
	"net/http"
	"net/url"
	"os"
	"path/filepath"
	"strconv"
	"strings"

	"github.com/oliveagle/jsonpath"
	"github.com/sony/gobreaker"

	"github.com/i474232898/city-weather-poster/internal/logger"
	"github.com/i474232898/city-weather-poster/internal/resilience"
)

const (
	defaultImgBBURL = "https://api.imgbb.com/1/upload"
	// Hosted images only need to outlive the platform's pull.
	imgBBExpiration = 86400
)

// Uploader makes a local image reachable by URL.
type Uploader interface {
	Upload(ctx context.Context, path string) (string, error)
}

// ImageHost uploads to a custom endpoint when one is configured and falls
// back to imgbb.
type ImageHost struct {
	endpoint string
	imgbbKey string
	imgbbURL string
	httpCfg  resilience.HTTPClientConfig
	circuit  *gobreaker.CircuitBreaker
}

// NewImageHost returns an ImageHost. Either endpoint or imgbbKey may be
// empty; with both empty every upload fails with ErrNoHosting.
func NewImageHost(client *http.Client, endpoint, imgbbKey string) *ImageHost {
	return &ImageHost{
		endpoint: endpoint,
		imgbbKey: imgbbKey,
		imgbbURL: defaultImgBBURL,
		httpCfg:  resilience.HTTPClientConfig{Client: client, Backoff: resilience.DefaultBackoff},
		circuit:  resilience.NewBreaker("image-host"),
	}
}

// Configured reports whether any hosting backend is available.
func (h *ImageHost) Configured() bool {
	return h.endpoint != "" || h.imgbbKey != ""
}

func (h *ImageHost) Upload(ctx context.Context, path string) (string, error) {
	log := logger.FromContext(ctx)

	if !h.Configured() {
		return "", ErrNoHosting
	}

	data, err := os.ReadFile(path)
	if err != nil {
		return "", fmt.Errorf("read image: %w", err)
	}

	if h.endpoint != "" {
		u, err := h.uploadCustom(ctx, filepath.Base(path), data)
		if err == nil {
			return u, nil
		}
		if h.imgbbKey == "" {
			return "", err
		}
		log.WarnContext(ctx, "custom image hosting failed, trying imgbb", "error", err)
	}
	return h.uploadImgBB(ctx, data)
}

func (h *ImageHost) uploadCustom(ctx context.Context, name string, data []byte) (string, error) {
	buildRequest := func() (*http.Request, error) {
		var body bytes.Buffer
		mw := multipart.NewWriter(&body)
		fw, err := mw.CreateFormFile("image", name)
		if err != nil {
			return nil, err
		}
		if _, err := fw.Write(data); err != nil {
			return nil, err
		}
		if err := mw.Close(); err != nil {
			return nil, err
		}

		req, err := http.NewRequest(http.MethodPost, h.endpoint, &body)
		if err != nil {
			return nil, err
		}
		req.Header.Set("Content-Type", mw.FormDataContentType())
		return req, nil
	}

	resp, err := resilience.Do(ctx, h.httpCfg, h.circuit, buildRequest)
	if err != nil {
		return "", fmt.Errorf("upload to hosting endpoint: %w", err)
	}
	defer resp.Body.Close()

	return lookupString(resp.Body, "$.url")
}

func (h *ImageHost) uploadImgBB(ctx context.Context, data []byte) (string, error) {
	form := url.Values{
		"key":        {h.imgbbKey},
		"image":      {base64.StdEncoding.EncodeToString(data)},
		"expiration": {strconv.Itoa(imgBBExpiration)},
	}.Encode()

	buildRequest := func() (*http.Request, error) {
		req, err := http.NewRequest(http.MethodPost, h.imgbbURL, strings.NewReader(form))
		if err != nil {
			return nil, err
		}
		req.Header.Set("Content-Type", "application/x-www-form-urlencoded")
		return req, nil
	}

	resp, err := resilience.Do(ctx, h.httpCfg, h.circuit, buildRequest)
	if err != nil {
		return "", fmt.Errorf("upload to imgbb: %w", err)
	}
	defer resp.Body.Close()

	return lookupString(resp.Body, "$.data.url")
}

// lookupString decodes a JSON body and returns the value at the JSONPath
// expression as a string. Numbers are formatted without exponent.
func lookupString(body io.Reader, expression string) (string, error) {
	var doc interface{}
	if err := json.NewDecoder(body).Decode(&doc); err != nil {
		return "", fmt.Errorf("decode response: %w", err)
	}

	pattern, err := jsonpath.Compile(expression)
	if err != nil {
		return "", fmt.Errorf("invalid JSONPath expression '%s': %w", expression, err)
	}
	v, err := pattern.Lookup(doc)
	if err != nil {
		return "", fmt.Errorf("%w: %s not found in response: %v", ErrRejected, expression, err)
	}

	switch val := v.(type) {
	case string:
		if val == "" {
			return "", fmt.Errorf("%w: %s is empty", ErrRejected, expression)
		}
		return val, nil
	case float64:
		return strconv.FormatFloat(val, 'f', -1, 64), nil
	case nil:
		return "", fmt.Errorf("%w: %s is null", ErrRejected, expression)
	default:
		return fmt.Sprint(val), nil
	}
}
