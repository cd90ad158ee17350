package acquire

import (
	"context"
	"errors"
	"fmt"
	"log"
	"net/http"
	"net/url"
	"strconv"
	"strings"

	"golang.org/x/time/rate"

	"github.com/you/social-pulse/internal/core"
)

const defaultTwitterBaseURL = "https://api.twitter.com/2/tweets/search/recent"

type TwitterConfig struct {
	BaseURL     string
	BearerToken string
	// TokenFile takes precedence over BearerToken and is re-read on every
	// fetch so rotated tokens are picked up.
	TokenFile  string
	Query      string
	MaxResults int
}

// Twitter queries the v2 recent search endpoint. Records are returned in the
// API's tweet shape with public_metrics.
type Twitter struct {
	cfg    TwitterConfig
	api    apiClient
	loader *FileTokenLoader
}

func NewTwitter(cfg TwitterConfig, limiter *rate.Limiter) *Twitter {
	if cfg.BaseURL == "" {
		cfg.BaseURL = defaultTwitterBaseURL
	}
	if cfg.Query == "" {
		cfg.Query = "#football"
	}
	// The endpoint accepts 10..100 results per page.
	switch {
	case cfg.MaxResults < 10:
		cfg.MaxResults = 10
	case cfg.MaxResults > 100:
		cfg.MaxResults = 100
	}
	t := &Twitter{cfg: cfg, api: newAPIClient("twitter", limiter)}
	if cfg.TokenFile != "" {
		t.loader = NewFileTokenLoader(cfg.TokenFile)
	}
	return t
}

func (t *Twitter) Platform() core.Platform { return core.PlatformTwitter }

func (t *Twitter) token() (string, error) {
	if t.loader != nil {
		token, changed, err := t.loader.Load()
		if err != nil {
			return "", fmt.Errorf("twitter: load token: %w", err)
		}
		if changed {
			log.Printf("twitter: bearer token loaded from %s", t.cfg.TokenFile)
		}
		return token, nil
	}
	token := NormalizeBearer(t.cfg.BearerToken)
	if token == "" {
		return "", errors.New("twitter: bearer token is required")
	}
	return token, nil
}

func (t *Twitter) Fetch(ctx context.Context) ([]any, error) {
	token, err := t.token()
	if err != nil {
		return nil, err
	}

	params := url.Values{}
	params.Set("query", t.cfg.Query)
	params.Set("tweet.fields", "author_id,created_at,public_metrics")
	params.Set("max_results", strconv.Itoa(t.cfg.MaxResults))

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, t.cfg.BaseURL+"?"+params.Encode(), nil)
	if err != nil {
		return nil, err
	}
	req.Header.Set("Authorization", "Bearer "+token)

	var payload struct {
		Data []any `json:"data"`
	}
	if err := t.api.getJSON(req, &payload); err != nil {
		return nil, err
	}
	log.Printf("twitter: fetched %d tweets for %q", len(payload.Data), t.cfg.Query)
	return payload.Data, nil
}

func (t *Twitter) String() string {
	return "twitter(" + strings.TrimSpace(t.cfg.Query) + ")"
}
