package platforms

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"mime/multipart"
	"net/http"
	"os"
	"path/filepath"

	"github.com/dghubble/oauth1"
	"github.com/sony/gobreaker"

	"github.com/i474232898/city-weather-poster/internal/config"
	"github.com/i474232898/city-weather-poster/internal/logger"
	"github.com/i474232898/city-weather-poster/internal/resilience"
)

const (
	defaultTwitterUploadURL = "https://upload.twitter.com/1.1/media/upload.json"
	defaultTwitterTweetURL  = "https://api.twitter.com/2/tweets"

	DryRunTweetID = "dry_run_tweet_id"
)

// TwitterPoster uploads the image through the v1.1 media endpoint and
// creates the tweet through v2. Both calls are OAuth 1.0a signed.
type TwitterPoster struct {
	configured bool
	uploadURL  string
	tweetURL   string
	httpCfg    resilience.HTTPClientConfig
	circuit    *gobreaker.CircuitBreaker
}

// NewTwitter returns a poster for X. base is the transport the signing
// client wraps; it carries the process HTTP timeout.
func NewTwitter(creds config.TwitterCredentials, base *http.Client) *TwitterPoster {
	if base == nil {
		base = http.DefaultClient
	}
	ctx := context.WithValue(context.Background(), oauth1.HTTPClient, base)
	client := oauth1.NewConfig(creds.APIKey, creds.APISecret).
		Client(ctx, oauth1.NewToken(creds.AccessToken, creds.AccessTokenSecret))

	return &TwitterPoster{
		configured: creds.Complete(),
		uploadURL:  defaultTwitterUploadURL,
		tweetURL:   defaultTwitterTweetURL,
		httpCfg:    resilience.HTTPClientConfig{Client: client, Backoff: resilience.DefaultBackoff},
		circuit:    resilience.NewBreaker(Twitter),
	}
}

func (t *TwitterPoster) Name() string { return Twitter }

func (t *TwitterPoster) Post(ctx context.Context, req Request) (Published, error) {
	log := logger.FromContext(ctx)
	text := TwitterCaption(req.Location, req.Snapshot)

	if req.DryRun {
		log.InfoContext(ctx, "dry run, not tweeting", "image", req.ImagePath, "text", text)
		return Published{ID: DryRunTweetID}, nil
	}
	if !t.configured {
		return Published{}, fmt.Errorf("%s: %w", Twitter, ErrNotConfigured)
	}

	mediaID, err := t.uploadMedia(ctx, req.ImagePath)
	if err != nil {
		return Published{}, err
	}
	log.DebugContext(ctx, "media uploaded", "media_id", mediaID)

	id, err := t.createTweet(ctx, text, mediaID)
	if err != nil {
		return Published{}, err
	}
	return Published{ID: id}, nil
}

func (t *TwitterPoster) uploadMedia(ctx context.Context, path string) (string, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return "", fmt.Errorf("read image: %w", err)
	}

	buildRequest := func() (*http.Request, error) {
		var body bytes.Buffer
		mw := multipart.NewWriter(&body)
		fw, err := mw.CreateFormFile("media", filepath.Base(path))
		if err != nil {
			return nil, err
		}
		if _, err := fw.Write(data); err != nil {
			return nil, err
		}
		if err := mw.Close(); err != nil {
			return nil, err
		}

		req, err := http.NewRequest(http.MethodPost, t.uploadURL, &body)
		if err != nil {
			return nil, err
		}
		req.Header.Set("Content-Type", mw.FormDataContentType())
		return req, nil
	}

	resp, err := resilience.Do(ctx, t.httpCfg, t.circuit, buildRequest)
	if err != nil {
		return "", fmt.Errorf("upload media: %w", err)
	}
	defer resp.Body.Close()

	return lookupString(resp.Body, "$.media_id_string")
}

type tweetRequest struct {
	Text  string     `json:"text"`
	Media tweetMedia `json:"media"`
}

type tweetMedia struct {
	MediaIDs []string `json:"media_ids"`
}

func (t *TwitterPoster) createTweet(ctx context.Context, text, mediaID string) (string, error) {
	body, err := json.Marshal(tweetRequest{Text: text, Media: tweetMedia{MediaIDs: []string{mediaID}}})
	if err != nil {
		return "", err
	}

	buildRequest := func() (*http.Request, error) {
		req, err := http.NewRequest(http.MethodPost, t.tweetURL, bytes.NewReader(body))
		if err != nil {
			return nil, err
		}
		req.Header.Set("Content-Type", "application/json")
		return req, nil
	}

	resp, err := resilience.Do(ctx, t.httpCfg, t.circuit, buildRequest)
	if err != nil {
		return "", fmt.Errorf("create tweet: %w", err)
	}
	defer resp.Body.Close()

	return lookupString(resp.Body, "$.data.id")
}
