// Package platforms publishes a generated weather image to social networks.
//
// Each network is a Poster. The runner calls every Poster enabled for the
// selected location and records one Result per platform. Enhancers are
// follow-up publications (an Instagram story) that only run after their
// platform succeeded and never change the outcome of a run.
package platforms

import (
	"context"
	"errors"

	"github.com/i474232898/city-weather-poster/internal/logger"
	"github.com/i474232898/city-weather-poster/internal/weather"
)

const (
	Twitter   = "twitter"
	Instagram = "instagram"
	TikTok    = "tiktok"
)

var (
	ErrNotConfigured = errors.New("platform credentials not configured")
	ErrNoHosting     = errors.New("no image hosting configured")
	ErrRejected      = errors.New("platform rejected the post")
)

// Request is everything a Poster needs to publish one image.
type Request struct {
	Location  weather.Location
	Snapshot  weather.WeatherSnapshot
	ImagePath string
	DryRun    bool
}

// Published identifies a post on the remote platform. MediaURL is the
// public image URL when the platform pulled the image from a host.
type Published struct {
	ID       string
	MediaURL string
}

// Poster publishes to a single platform.
type Poster interface {
	Name() string
	Post(ctx context.Context, req Request) (Published, error)
}

// Enhancer runs after the named platform published successfully.
type Enhancer interface {
	Name() string
	Platform() string
	Enhance(ctx context.Context, req Request, post Published) error
}

// Result is the outcome of posting to one platform.
type Result struct {
	Platform string `json:"platform"`
	Success  bool   `json:"success"`
	PostID   string `json:"post_id,omitempty"`
	MediaURL string `json:"media_url,omitempty"`
	Error    string `json:"error,omitempty"`

	Err error `json:"-"`
}

// Enabled reports whether loc has the named platform switched on.
func Enabled(loc weather.Location, platform string) bool {
	switch platform {
	case Twitter:
		return loc.Platforms.Twitter
	case Instagram:
		return loc.Platforms.Instagram
	case TikTok:
		return loc.Platforms.TikTok
	}
	return false
}

// Publish posts req with p and converts the outcome into a Result.
func Publish(ctx context.Context, p Poster, req Request) Result {
	log := logger.FromContext(ctx).With("platform", p.Name())

	res := Result{Platform: p.Name()}
	post, err := p.Post(ctx, req)
	if err != nil {
		log.ErrorContext(ctx, "post failed", "error", err)
		res.Err = err
		res.Error = err.Error()
		return res
	}

	log.InfoContext(ctx, "posted", "post_id", post.ID, "dry_run", req.DryRun)
	res.Success = true
	res.PostID = post.ID
	res.MediaURL = post.MediaURL
	return res
}
