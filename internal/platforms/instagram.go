package platforms

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/sony/gobreaker"

	"github.com/i474232898/city-weather-poster/internal/config"
	"github.com/i474232898/city-weather-poster/internal/logger"
	"github.com/i474232898/city-weather-poster/internal/resilience"
)

const (
	defaultGraphURL = "https://graph.facebook.com/v21.0"

	DryRunPostID = "dry_run_post_id"

	// Graph API error subcode for media that could not be fetched in time.
	graphMediaTimeout = "2207003"

	containerAttempts = 3
)

// instagramDelays are the pauses the Graph API needs between steps.
type instagramDelays struct {
	hosted    time.Duration // hosted image becomes downloadable
	processed time.Duration // feed container finishes processing
	story     time.Duration // story container finishes processing
	retryUnit time.Duration // container retry n waits (n+1)*retryUnit
}

var defaultInstagramDelays = instagramDelays{
	hosted:    5 * time.Second,
	processed: 10 * time.Second,
	story:     5 * time.Second,
	retryUnit: 10 * time.Second,
}

// InstagramPoster publishes a feed post through the Graph API content
// publishing flow: host the image, create a container, publish it.
type InstagramPoster struct {
	creds    config.InstagramCredentials
	host     Uploader
	graphURL string
	delays   instagramDelays
	httpCfg  resilience.HTTPClientConfig
	circuit  *gobreaker.CircuitBreaker
}

func NewInstagram(creds config.InstagramCredentials, host Uploader, client *http.Client) *InstagramPoster {
	return &InstagramPoster{
		creds:    creds,
		host:     host,
		graphURL: defaultGraphURL,
		delays:   defaultInstagramDelays,
		// Container creation has its own retry loop below.
		httpCfg: resilience.HTTPClientConfig{
			Client:  client,
			Backoff: resilience.BackoffConfig{MaxRetries: 1, InitialInterval: time.Second},
		},
		circuit: resilience.NewBreaker(Instagram),
	}
}

func (p *InstagramPoster) Name() string { return Instagram }

func (p *InstagramPoster) Post(ctx context.Context, req Request) (Published, error) {
	log := logger.FromContext(ctx)
	caption := InstagramCaption(req.Location, req.Snapshot)

	if req.DryRun {
		log.InfoContext(ctx, "dry run, not posting to instagram",
			"image", req.ImagePath,
			"caption", caption,
			"story", p.creds.PostStory,
		)
		return Published{ID: DryRunPostID}, nil
	}
	if !p.creds.Complete() {
		return Published{}, fmt.Errorf("%s: %w", Instagram, ErrNotConfigured)
	}

	imageURL, err := p.host.Upload(ctx, req.ImagePath)
	if err != nil {
		return Published{}, fmt.Errorf("host image: %w", err)
	}
	log.InfoContext(ctx, "image hosted", "url", imageURL)

	if err := sleep(ctx, p.delays.hosted); err != nil {
		return Published{}, err
	}

	creationID, err := p.createContainer(ctx, url.Values{
		"image_url": {imageURL},
		"caption":   {caption},
	})
	if err != nil {
		return Published{}, err
	}

	if err := sleep(ctx, p.delays.processed); err != nil {
		return Published{}, err
	}

	id, err := p.publish(ctx, creationID)
	if err != nil {
		return Published{}, err
	}
	return Published{ID: id, MediaURL: imageURL}, nil
}

// createContainer creates a media container and returns its creation id.
// Graph timeouts fetching the image are retried with a growing wait.
func (p *InstagramPoster) createContainer(ctx context.Context, params url.Values) (string, error) {
	log := logger.FromContext(ctx)

	var lastErr error
	for attempt := 0; attempt < containerAttempts; attempt++ {
		id, err := p.graphPost(ctx, "media", params)
		if err == nil {
			return id, nil
		}
		lastErr = err

		if !isGraphTimeout(err) || attempt == containerAttempts-1 {
			break
		}
		wait := time.Duration(attempt+1) * p.delays.retryUnit
		log.WarnContext(ctx, "instagram container timed out, retrying",
			"attempt", attempt+1,
			"retry_in", wait,
		)
		if err := sleep(ctx, wait); err != nil {
			return "", err
		}
	}
	return "", fmt.Errorf("create media container: %w", lastErr)
}

func (p *InstagramPoster) publish(ctx context.Context, creationID string) (string, error) {
	id, err := p.graphPost(ctx, "media_publish", url.Values{"creation_id": {creationID}})
	if err != nil {
		return "", fmt.Errorf("publish media: %w", err)
	}
	return id, nil
}

func (p *InstagramPoster) graphPost(ctx context.Context, edge string, params url.Values) (string, error) {
	form := url.Values{"access_token": {p.creds.AccessToken}}
	for k, v := range params {
		form[k] = v
	}
	encoded := form.Encode()
	endpoint := fmt.Sprintf("%s/%s/%s", p.graphURL, p.creds.AccountID, edge)

	buildRequest := func() (*http.Request, error) {
		req, err := http.NewRequest(http.MethodPost, endpoint, strings.NewReader(encoded))
		if err != nil {
			return nil, err
		}
		req.Header.Set("Content-Type", "application/x-www-form-urlencoded")
		return req, nil
	}

	resp, err := resilience.Do(ctx, p.httpCfg, p.circuit, buildRequest)
	if err != nil {
		return "", err
	}
	defer resp.Body.Close()

	return lookupString(resp.Body, "$.id")
}

func isGraphTimeout(err error) bool {
	var statusErr *resilience.StatusError
	if errors.As(err, &statusErr) {
		return strings.Contains(statusErr.Body, graphMediaTimeout) ||
			strings.Contains(strings.ToLower(statusErr.Body), "timeout")
	}
	return errors.Is(err, context.DeadlineExceeded)
}

// InstagramStory republishes a successful feed post's image as a story.
type InstagramStory struct {
	poster *InstagramPoster
}

func NewInstagramStory(p *InstagramPoster) *InstagramStory {
	return &InstagramStory{poster: p}
}

func (s *InstagramStory) Name() string     { return "instagram_story" }
func (s *InstagramStory) Platform() string { return Instagram }

// Enhance creates and publishes a STORIES container for the image the feed
// post already hosted.
func (s *InstagramStory) Enhance(ctx context.Context, req Request, post Published) error {
	log := logger.FromContext(ctx)

	if req.DryRun || !s.poster.creds.PostStory {
		return nil
	}
	if post.MediaURL == "" {
		return fmt.Errorf("story: %w", ErrNoHosting)
	}

	creationID, err := s.poster.createContainer(ctx, url.Values{
		"image_url":  {post.MediaURL},
		"media_type": {"STORIES"},
	})
	if err != nil {
		return fmt.Errorf("story: %w", err)
	}
	if err := sleep(ctx, s.poster.delays.story); err != nil {
		return err
	}

	id, err := s.poster.publish(ctx, creationID)
	if err != nil {
		return fmt.Errorf("story: %w", err)
	}
	log.InfoContext(ctx, "instagram story published", "story_id", id)
	return nil
}

func sleep(ctx context.Context, d time.Duration) error {
	if d <= 0 {
		return ctx.Err()
	}
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-t.C:
		return nil
	}
}
