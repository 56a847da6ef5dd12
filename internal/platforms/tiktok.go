package platforms

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"

	"github.com/oliveagle/jsonpath"
	"github.com/sony/gobreaker"

	"github.com/i474232898/city-weather-poster/internal/config"
	"github.com/i474232898/city-weather-poster/internal/logger"
	"github.com/i474232898/city-weather-poster/internal/resilience"
)

const (
	defaultTikTokURL = "https://open.tiktokapis.com/v2/post/publish/content/init/"

	DryRunPublishID = "dry_run_publish_id"
)

// TikTokPoster creates a photo post that TikTok pulls from a hosted URL.
type TikTokPoster struct {
	creds   config.TikTokCredentials
	host    Uploader
	initURL string
	httpCfg resilience.HTTPClientConfig
	circuit *gobreaker.CircuitBreaker
}

func NewTikTok(creds config.TikTokCredentials, host Uploader, client *http.Client) *TikTokPoster {
	return &TikTokPoster{
		creds:   creds,
		host:    host,
		initURL: defaultTikTokURL,
		httpCfg: resilience.HTTPClientConfig{Client: client, Backoff: resilience.DefaultBackoff},
		circuit: resilience.NewBreaker(TikTok),
	}
}

func (p *TikTokPoster) Name() string { return TikTok }

type tiktokPostInfo struct {
	Title          string `json:"title"`
	PrivacyLevel   string `json:"privacy_level"`
	DisableComment bool   `json:"disable_comment"`
	AutoAddMusic   bool   `json:"auto_add_music"`
}

type tiktokSourceInfo struct {
	Source          string   `json:"source"`
	PhotoCoverIndex int      `json:"photo_cover_index"`
	PhotoImages     []string `json:"photo_images"`
}

type tiktokInitRequest struct {
	PostInfo   tiktokPostInfo   `json:"post_info"`
	SourceInfo tiktokSourceInfo `json:"source_info"`
	PostMode   string           `json:"post_mode"`
	MediaType  string           `json:"media_type"`
}

func (p *TikTokPoster) Post(ctx context.Context, req Request) (Published, error) {
	log := logger.FromContext(ctx)
	title := TikTokCaption(req.Location, req.Snapshot)

	if req.DryRun {
		log.InfoContext(ctx, "dry run, not posting to tiktok", "image", req.ImagePath, "title", title)
		return Published{ID: DryRunPublishID}, nil
	}
	if !p.creds.Complete() {
		return Published{}, fmt.Errorf("%s: %w", TikTok, ErrNotConfigured)
	}

	imageURL, err := p.host.Upload(ctx, req.ImagePath)
	if err != nil {
		return Published{}, fmt.Errorf("host image: %w", err)
	}

	body, err := json.Marshal(tiktokInitRequest{
		PostInfo: tiktokPostInfo{
			Title:        title,
			PrivacyLevel: "PUBLIC_TO_EVERYONE",
			AutoAddMusic: true,
		},
		SourceInfo: tiktokSourceInfo{
			Source:      "PULL_FROM_URL",
			PhotoImages: []string{imageURL},
		},
		PostMode:  "DIRECT_POST",
		MediaType: "PHOTO",
	})
	if err != nil {
		return Published{}, err
	}

	buildRequest := func() (*http.Request, error) {
		r, err := http.NewRequest(http.MethodPost, p.initURL, bytes.NewReader(body))
		if err != nil {
			return nil, err
		}
		r.Header.Set("Authorization", "Bearer "+p.creds.AccessToken)
		r.Header.Set("Content-Type", "application/json")
		return r, nil
	}

	resp, err := resilience.Do(ctx, p.httpCfg, p.circuit, buildRequest)
	if err != nil {
		return Published{}, fmt.Errorf("init photo post: %w", err)
	}
	defer resp.Body.Close()

	var doc interface{}
	if err := json.NewDecoder(resp.Body).Decode(&doc); err != nil {
		return Published{}, fmt.Errorf("decode response: %w", err)
	}

	// TikTok answers 200 with error.code set to something other than "ok"
	// when it refuses a post.
	code, _ := jsonpath.JsonPathLookup(doc, "$.error.code")
	if code != "ok" {
		msg, _ := jsonpath.JsonPathLookup(doc, "$.error.message")
		return Published{}, fmt.Errorf("%w: tiktok error %v: %v", ErrRejected, code, msg)
	}
	id, err := jsonpath.JsonPathLookup(doc, "$.data.publish_id")
	if err != nil {
		return Published{}, fmt.Errorf("%w: no publish_id in response", ErrRejected)
	}
	publishID, ok := id.(string)
	if !ok || publishID == "" {
		return Published{}, fmt.Errorf("%w: no publish_id in response", ErrRejected)
	}
	return Published{ID: publishID, MediaURL: imageURL}, nil
}
