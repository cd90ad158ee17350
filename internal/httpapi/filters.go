package httpapi

import (
	"errors"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"

	"github.com/you/social-pulse/internal/core"
)

const (
	defaultLimit = 100
	maxLimit     = 1000
)

// Order is the posted_at direction of a post listing.
type Order string

const (
	OrderDesc Order = "desc"
	OrderAsc  Order = "asc"
)

// Filters narrows post lookups. Empty fields match everything.
type Filters struct {
	RunDate   core.RunDate
	Platforms []string
	Authors   []string
	Since     *time.Time
	Limit     int
	Order     Order
}

var (
	errBadDate     = errors.New("date must be YYYY-MM-DD")
	errBadLimit    = errors.New("limit must be a positive integer")
	errBadOrder    = errors.New("order must be asc or desc")
	errBadSince    = errors.New("invalid since parameter")
	errBadPlatform = errors.New("invalid platform filter")
)

// ParseFilters reads date, platform, author, since, limit and order.
// platform and author may repeat and hold comma-separated lists.
func ParseFilters(values url.Values) (Filters, error) {
	f := Filters{Order: OrderDesc}

	if raw := values.Get("date"); raw != "" {
		d, err := core.ParseRunDate(raw)
		if err != nil {
			return Filters{}, errBadDate
		}
		f.RunDate = d
	}

	limit, err := parseLimit(values.Get("limit"))
	if err != nil {
		return Filters{}, err
	}
	f.Limit = limit

	switch strings.ToLower(values.Get("order")) {
	case "", "desc":
	case "asc":
		f.Order = OrderAsc
	default:
		return Filters{}, errBadOrder
	}

	if raw := values.Get("since"); raw != "" {
		since, err := parseSince(raw, time.Now())
		if err != nil {
			return Filters{}, err
		}
		f.Since = &since
	}

	for _, raw := range listValues(values, "platform") {
		platform, ok := normalizePlatform(raw)
		if !ok {
			return Filters{}, errBadPlatform
		}
		if platform == "" {
			// "all" wins over any explicit platform.
			f.Platforms = nil
			break
		}
		if !contains(f.Platforms, platform) {
			f.Platforms = append(f.Platforms, platform)
		}
	}

	for _, author := range listValues(values, "author") {
		if !contains(f.Authors, author) {
			f.Authors = append(f.Authors, author)
		}
	}

	return f, nil
}

// FiltersFromRequest parses filters from an HTTP request.
func FiltersFromRequest(r *http.Request) (Filters, error) {
	return ParseFilters(r.URL.Query())
}

func parseLimit(raw string) (int, error) {
	if raw == "" {
		return defaultLimit, nil
	}
	n, err := strconv.Atoi(raw)
	if err != nil || n <= 0 {
		return 0, errBadLimit
	}
	return min(n, maxLimit), nil
}

// listValues flattens repeated, comma-separated query values.
func listValues(values url.Values, key string) []string {
	var out []string
	for _, raw := range values[key] {
		for _, part := range strings.Split(raw, ",") {
			if part = strings.TrimSpace(part); part != "" {
				out = append(out, part)
			}
		}
	}
	return out
}

func contains(list []string, v string) bool {
	for _, s := range list {
		if s == v {
			return true
		}
	}
	return false
}

// normalizePlatform resolves aliases of the built-in platforms. Any other
// lowercase tag is accepted because mapping files can add platforms. An
// empty result means every platform.
func normalizePlatform(p string) (string, bool) {
	lowered := strings.ToLower(p)
	switch lowered {
	case "twitter", "tw", "x":
		return string(core.PlatformTwitter), true
	case "youtube", "yt", "y":
		return string(core.PlatformYouTube), true
	case "all", "*":
		return "", true
	}
	for _, r := range lowered {
		if (r < 'a' || r > 'z') && (r < '0' || r > '9') && r != '_' && r != '-' {
			return "", false
		}
	}
	return lowered, true
}

// parseSince accepts RFC3339 timestamps, unix seconds, or a duration
// counted back from now.
func parseSince(raw string, now time.Time) (time.Time, error) {
	if t, err := time.Parse(time.RFC3339Nano, raw); err == nil {
		return t.UTC(), nil
	}
	if secs, err := strconv.ParseInt(raw, 10, 64); err == nil {
		return time.Unix(secs, 0).UTC(), nil
	}
	if d, err := time.ParseDuration(raw); err == nil && d > 0 {
		return now.Add(-d).UTC(), nil
	}
	return time.Time{}, errBadSince
}

// Matches reports whether p passes the platform, author and since filters.
// RunDate is left to the store because posts do not carry it.
func (f Filters) Matches(p core.Post) bool {
	if len(f.Platforms) > 0 && !contains(f.Platforms, string(p.Platform)) {
		return false
	}
	if len(f.Authors) > 0 && (p.AuthorID == nil || !contains(f.Authors, *p.AuthorID)) {
		return false
	}
	if f.Since != nil && (p.PostedAt == nil || p.PostedAt.Before(*f.Since)) {
		return false
	}
	return true
}
