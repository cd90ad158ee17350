package core

import (
	"sort"
	"time"
)

// Platform tags the source a post came from. The set is open: any platform
// with a registered normalizer mapping is a known platform.
type Platform string

const (
	PlatformTwitter Platform = "twitter"
	PlatformYouTube Platform = "youtube"
)

// Post is the unified structure every source is normalized into.
type Post struct {
	PostID   string     `json:"post_id"`
	Platform Platform   `json:"platform"`
	Content  *string    `json:"content"`
	AuthorID *string    `json:"author_id"`
	PostedAt *time.Time `json:"posted_at"`
	Likes    int64      `json:"likes"`
	Comments int64      `json:"comments"`
	Shares   int64      `json:"shares"`
}

// EngagementScore is always recomputed from the three counters.
func (p Post) EngagementScore() int64 {
	return p.Likes + p.Comments + p.Shares
}

// DailyMetrics is one per (platform, run date).
type DailyMetrics struct {
	Date            RunDate  `json:"date"`
	Platform        Platform `json:"platform"`
	Likes           int64    `json:"likes"`
	Comments        int64    `json:"comments"`
	Shares          int64    `json:"shares"`
	EngagementScore int64    `json:"engagement_score"`
}

// DailySnapshot is the persisted daily output of one run date.
type DailySnapshot struct {
	Date RunDate
	Rows []DailyMetrics
}

// RollingAverage holds trailing means for one (platform, date) observation.
type RollingAverage struct {
	Platform        Platform `json:"platform"`
	Date            RunDate  `json:"date"`
	Likes           float64  `json:"likes"`
	Comments        float64  `json:"comments"`
	Shares          float64  `json:"shares"`
	EngagementScore float64  `json:"engagement_score"`
}

// RankedPost is a post with its position in a top list.
type RankedPost struct {
	Rank            int   `json:"rank"`
	Post            Post  `json:"post"`
	EngagementScore int64 `json:"engagement_score"`
}

// PlatformTop is the top list restricted to a single platform.
type PlatformTop struct {
	Platform Platform     `json:"platform"`
	Posts    []RankedPost `json:"posts"`
}

// Ranking is the ranker output for one run date.
type Ranking struct {
	RunDate    RunDate       `json:"run_date"`
	Overall    []RankedPost  `json:"overall"`
	ByPlatform []PlatformTop `json:"by_platform"`
}

// SortPlatforms returns the platforms sorted by name.
func SortPlatforms(in []Platform) []Platform {
	out := append([]Platform(nil), in...)
	sort.Slice(out, func(i, j int) bool { return out[i] < out[j] })
	return out
}
