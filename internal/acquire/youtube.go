package acquire

import (
	"context"
	"encoding/json"
	"errors"
	"log"
	"net/http"
	"net/url"
	"strconv"
	"strings"

	"golang.org/x/time/rate"

	"github.com/you/social-pulse/internal/core"
)

const defaultYouTubeBaseURL = "https://www.googleapis.com/youtube/v3"

type YouTubeConfig struct {
	BaseURL    string
	APIKey     string
	Query      string
	MaxResults int
}

// YouTube searches videos and enriches them with statistics. Records are
// flattened to the unified field names; YouTube has no share counter so
// shares is always 0.
type YouTube struct {
	cfg YouTubeConfig
	api apiClient
}

func NewYouTube(cfg YouTubeConfig, limiter *rate.Limiter) *YouTube {
	if cfg.BaseURL == "" {
		cfg.BaseURL = defaultYouTubeBaseURL
	}
	cfg.BaseURL = strings.TrimRight(cfg.BaseURL, "/")
	if cfg.Query == "" {
		cfg.Query = "football highlights"
	}
	if cfg.MaxResults <= 0 {
		cfg.MaxResults = 20
	}
	if cfg.MaxResults > 50 {
		cfg.MaxResults = 50
	}
	return &YouTube{cfg: cfg, api: newAPIClient("youtube", limiter)}
}

func (y *YouTube) Platform() core.Platform { return core.PlatformYouTube }

type searchResponse struct {
	Items []struct {
		ID struct {
			VideoID string `json:"videoId"`
		} `json:"id"`
	} `json:"items"`
}

type videosResponse struct {
	Items []struct {
		ID      string `json:"id"`
		Snippet struct {
			Title       *string `json:"title"`
			ChannelID   *string `json:"channelId"`
			PublishedAt *string `json:"publishedAt"`
		} `json:"snippet"`
		Statistics map[string]any `json:"statistics"`
	} `json:"items"`
}

func (y *YouTube) Fetch(ctx context.Context) ([]any, error) {
	if strings.TrimSpace(y.cfg.APIKey) == "" {
		return nil, errors.New("youtube: api key is required")
	}

	params := url.Values{}
	params.Set("q", y.cfg.Query)
	params.Set("part", "snippet")
	params.Set("type", "video")
	params.Set("maxResults", strconv.Itoa(y.cfg.MaxResults))
	params.Set("key", y.cfg.APIKey)

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, y.cfg.BaseURL+"/search?"+params.Encode(), nil)
	if err != nil {
		return nil, err
	}
	var search searchResponse
	if err := y.api.getJSON(req, &search); err != nil {
		return nil, err
	}

	ids := make([]string, 0, len(search.Items))
	for _, item := range search.Items {
		if item.ID.VideoID != "" {
			ids = append(ids, item.ID.VideoID)
		}
	}
	if len(ids) == 0 {
		log.Printf("youtube: search %q returned no videos", y.cfg.Query)
		return nil, nil
	}

	params = url.Values{}
	params.Set("id", strings.Join(ids, ","))
	params.Set("part", "statistics,snippet")
	params.Set("key", y.cfg.APIKey)
	req, err = http.NewRequestWithContext(ctx, http.MethodGet, y.cfg.BaseURL+"/videos?"+params.Encode(), nil)
	if err != nil {
		return nil, err
	}
	var videos videosResponse
	if err := y.api.getJSON(req, &videos); err != nil {
		return nil, err
	}

	out := make([]any, 0, len(videos.Items))
	for _, v := range videos.Items {
		out = append(out, map[string]any{
			"post_id":   v.ID,
			"platform":  string(core.PlatformYouTube),
			"content":   derefOrNil(v.Snippet.Title),
			"author_id": derefOrNil(v.Snippet.ChannelID),
			"posted_at": derefOrNil(v.Snippet.PublishedAt),
			"likes":     statistic(v.Statistics, "likeCount"),
			"comments":  statistic(v.Statistics, "commentCount"),
			"shares":    json.Number("0"),
		})
	}
	log.Printf("youtube: fetched %d videos for %q", len(out), y.cfg.Query)
	return out, nil
}

func derefOrNil(s *string) any {
	if s == nil {
		return nil
	}
	return *s
}

// statistic returns the counter as a json.Number. The API reports counters
// as decimal strings and omits hidden ones.
func statistic(stats map[string]any, key string) json.Number {
	switch v := stats[key].(type) {
	case string:
		if _, err := strconv.ParseInt(v, 10, 64); err == nil {
			return json.Number(v)
		}
	case json.Number:
		return v
	}
	return json.Number("0")
}
