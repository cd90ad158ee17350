package config

import (
	"encoding/json"
	"os"
	"strconv"
	"strings"
	"time"
)

type Config struct {
	SQLite    SQLiteConfig
	RawDir    string
	ExportDir string
	Analytics AnalyticsConfig
	Sources   []string
	Mappings  string
	Schedule  ScheduleConfig
	Fetch     FetchConfig
	Twitter   TwitterConfig
	YouTube   YouTubeConfig
	HTTP      HTTPConfig
}

type SQLiteConfig struct {
	Path   string
	Tuning bool
}

type AnalyticsConfig struct {
	Window         int
	TopOverall     int
	TopPerPlatform int
}

type ScheduleConfig struct {
	Cron       string
	Timezone   string
	TimeoutSec int
}

type FetchConfig struct {
	Enabled bool
	RPS     int
}

type TwitterConfig struct {
	BaseURL     string
	BearerToken string
	TokenFile   string
	Query       string
	MaxResults  int
}

type YouTubeConfig struct {
	BaseURL    string
	APIKey     string
	Query      string
	MaxResults int
}

type HTTPConfig struct {
	Addr           string
	CORSOrigins    []string
	RateLimitRPS   int
	RateLimitBurst int
	Metrics        bool
	AccessLog      bool
	Pprof          bool
}

const (
	defaultSQLitePath     = "pulse.db"
	defaultRawDir         = "data/raw"
	defaultWindow         = 7
	defaultTopOverall     = 5
	defaultTopPerPlatform = 3
	defaultTimezone       = "UTC"
	defaultTimeoutSec     = 600
	defaultFetchRPS       = 1
	defaultTwitterQuery   = "#football"
	defaultTwitterMax     = 10
	defaultYouTubeQuery   = "football highlights"
	defaultYouTubeMax     = 20
)

var defaultSources = []string{"twitter", "youtube"}

func Load() Config {
	cfg := Config{}

	cfg.SQLite.Path = readString("PULSE_SQLITE_PATH", defaultSQLitePath)
	cfg.SQLite.Tuning = readBool("PULSE_SQLITE_TUNING", false)
	cfg.RawDir = readString("PULSE_RAW_DIR", defaultRawDir)
	cfg.ExportDir = strings.TrimSpace(os.Getenv("PULSE_EXPORT_DIR"))

	cfg.Analytics.Window = readInt("PULSE_WINDOW", defaultWindow)
	cfg.Analytics.TopOverall = readInt("PULSE_TOP_OVERALL", defaultTopOverall)
	cfg.Analytics.TopPerPlatform = readInt("PULSE_TOP_PER_PLATFORM", defaultTopPerPlatform)

	cfg.Sources = splitList(os.Getenv("PULSE_SOURCES"))
	if len(cfg.Sources) == 0 {
		cfg.Sources = append([]string(nil), defaultSources...)
	}
	cfg.Mappings = strings.TrimSpace(os.Getenv("PULSE_MAPPINGS_FILE"))

	cfg.Schedule.Cron = strings.TrimSpace(os.Getenv("PULSE_SCHEDULE"))
	cfg.Schedule.Timezone = readString("PULSE_TIMEZONE", defaultTimezone)
	cfg.Schedule.TimeoutSec = readInt("PULSE_RUN_TIMEOUT_SECS", defaultTimeoutSec)

	cfg.Fetch.Enabled = readBool("PULSE_FETCH", false)
	cfg.Fetch.RPS = readInt("PULSE_FETCH_RPS", defaultFetchRPS)

	cfg.Twitter.BaseURL = strings.TrimSpace(os.Getenv("PULSE_TWITTER_BASE_URL"))
	cfg.Twitter.BearerToken = strings.TrimSpace(os.Getenv("PULSE_TWITTER_BEARER_TOKEN"))
	if cfg.Twitter.BearerToken == "" {
		// The original collector read the token from this name.
		cfg.Twitter.BearerToken = strings.TrimSpace(os.Getenv("TWITTER_BEARER_TOKEN"))
	}
	cfg.Twitter.TokenFile = strings.TrimSpace(os.Getenv("PULSE_TWITTER_BEARER_TOKEN_FILE"))
	cfg.Twitter.Query = readString("PULSE_TWITTER_QUERY", defaultTwitterQuery)
	cfg.Twitter.MaxResults = readInt("PULSE_TWITTER_MAX_RESULTS", defaultTwitterMax)

	cfg.YouTube.BaseURL = strings.TrimSpace(os.Getenv("PULSE_YOUTUBE_BASE_URL"))
	cfg.YouTube.APIKey = strings.TrimSpace(os.Getenv("PULSE_YOUTUBE_API_KEY"))
	if cfg.YouTube.APIKey == "" {
		cfg.YouTube.APIKey = strings.TrimSpace(os.Getenv("YOUTUBE_API_KEY"))
	}
	cfg.YouTube.Query = readString("PULSE_YOUTUBE_QUERY", defaultYouTubeQuery)
	cfg.YouTube.MaxResults = readInt("PULSE_YOUTUBE_MAX_RESULTS", defaultYouTubeMax)

	cfg.HTTP.Addr = strings.TrimSpace(os.Getenv("PULSE_HTTP_ADDR"))
	cfg.HTTP.CORSOrigins = splitList(os.Getenv("PULSE_HTTP_CORS_ORIGINS"))
	cfg.HTTP.RateLimitRPS = readInt("PULSE_HTTP_RATE_RPS", 0)
	cfg.HTTP.RateLimitBurst = readInt("PULSE_HTTP_RATE_BURST", 0)
	cfg.HTTP.Metrics = readBool("PULSE_HTTP_METRICS", true)
	cfg.HTTP.AccessLog = readBool("PULSE_HTTP_ACCESS_LOG", false)
	cfg.HTTP.Pprof = readBool("PULSE_HTTP_PPROF", false)

	return cfg
}

func splitList(raw string) []string {
	raw = strings.TrimSpace(raw)
	if raw == "" {
		return nil
	}
	parts := strings.FieldsFunc(raw, func(r rune) bool {
		switch r {
		case ',', ';', ' ', '\t', '\n':
			return true
		}
		return false
	})
	out := make([]string, 0, len(parts))
	for _, p := range parts {
		p = strings.TrimSpace(p)
		if p == "" {
			continue
		}
		out = append(out, p)
	}
	return dedupe(out)
}

// dedupe drops repeats case-insensitively and keeps first-seen order.
func dedupe(values []string) []string {
	if len(values) == 0 {
		return nil
	}
	seen := make(map[string]struct{}, len(values))
	out := make([]string, 0, len(values))
	for _, v := range values {
		key := strings.ToLower(strings.TrimSpace(v))
		if key == "" {
			continue
		}
		if _, ok := seen[key]; ok {
			continue
		}
		seen[key] = struct{}{}
		out = append(out, strings.TrimSpace(v))
	}
	return out
}

func readString(name, def string) string {
	if v := strings.TrimSpace(os.Getenv(name)); v != "" {
		return v
	}
	return def
}

func readInt(name string, def int) int {
	raw := strings.TrimSpace(os.Getenv(name))
	if raw == "" {
		return def
	}
	n, err := strconv.Atoi(raw)
	if err != nil {
		return def
	}
	if n <= 0 {
		return def
	}
	return n
}

func readBool(name string, def bool) bool {
	raw := strings.TrimSpace(os.Getenv(name))
	if raw == "" {
		return def
	}
	v, err := strconv.ParseBool(raw)
	if err != nil {
		return def
	}
	return v
}

// RunTimeout bounds a single scheduled run.
func (c Config) RunTimeout() time.Duration {
	if c.Schedule.TimeoutSec <= 0 {
		return time.Duration(defaultTimeoutSec) * time.Second
	}
	return time.Duration(c.Schedule.TimeoutSec) * time.Second
}

func (c Config) HasSource(name string) bool {
	name = strings.ToLower(strings.TrimSpace(name))
	for _, s := range c.Sources {
		if strings.ToLower(strings.TrimSpace(s)) == name {
			return true
		}
	}
	return false
}

func (c Config) Summary() Summary {
	return Summary{
		Sources:        append([]string(nil), c.Sources...),
		SQLitePath:     c.SQLite.Path,
		RawDir:         c.RawDir,
		ExportDir:      c.ExportDir,
		Window:         c.Analytics.Window,
		TopOverall:     c.Analytics.TopOverall,
		TopPerPlatform: c.Analytics.TopPerPlatform,
		Schedule:       c.Schedule.Cron,
		Timezone:       c.Schedule.Timezone,
		Fetch:          c.Fetch.Enabled,
		HTTPAddr:       c.HTTP.Addr,
		Twitter: SourceSummary{
			Query:      c.Twitter.Query,
			MaxResults: c.Twitter.MaxResults,
			Credential: redactString(c.Twitter.BearerToken),
			TokenFile:  c.Twitter.TokenFile,
		},
		YouTube: SourceSummary{
			Query:      c.YouTube.Query,
			MaxResults: c.YouTube.MaxResults,
			Credential: redactString(c.YouTube.APIKey),
		},
	}
}

type Summary struct {
	Sources        []string      `json:"sources"`
	SQLitePath     string        `json:"sqlite_path"`
	RawDir         string        `json:"raw_dir"`
	ExportDir      string        `json:"export_dir,omitempty"`
	Window         int           `json:"window"`
	TopOverall     int           `json:"top_overall"`
	TopPerPlatform int           `json:"top_per_platform"`
	Schedule       string        `json:"schedule,omitempty"`
	Timezone       string        `json:"timezone"`
	Fetch          bool          `json:"fetch"`
	HTTPAddr       string        `json:"http_addr,omitempty"`
	Twitter        SourceSummary `json:"twitter"`
	YouTube        SourceSummary `json:"youtube"`
}

type SourceSummary struct {
	Query      string `json:"query"`
	MaxResults int    `json:"max_results"`
	Credential string `json:"credential,omitempty"`
	TokenFile  string `json:"token_file,omitempty"`
}

func (c Config) Redacted() map[string]any {
	return map[string]any{
		"sources":  append([]string(nil), c.Sources...),
		"mappings": c.Mappings,
		"sqlite": map[string]any{
			"path":   c.SQLite.Path,
			"tuning": c.SQLite.Tuning,
		},
		"raw_dir":    c.RawDir,
		"export_dir": c.ExportDir,
		"analytics": map[string]any{
			"window":           c.Analytics.Window,
			"top_overall":      c.Analytics.TopOverall,
			"top_per_platform": c.Analytics.TopPerPlatform,
		},
		"schedule": map[string]any{
			"cron":         c.Schedule.Cron,
			"timezone":     c.Schedule.Timezone,
			"timeout_secs": c.Schedule.TimeoutSec,
		},
		"fetch": map[string]any{
			"enabled": c.Fetch.Enabled,
			"rps":     c.Fetch.RPS,
		},
		"twitter": map[string]any{
			"base_url":     c.Twitter.BaseURL,
			"bearer_token": redactString(c.Twitter.BearerToken),
			"token_file":   c.Twitter.TokenFile,
			"query":        c.Twitter.Query,
			"max_results":  c.Twitter.MaxResults,
		},
		"youtube": map[string]any{
			"base_url":    c.YouTube.BaseURL,
			"api_key":     redactString(c.YouTube.APIKey),
			"query":       c.YouTube.Query,
			"max_results": c.YouTube.MaxResults,
		},
		"http": map[string]any{
			"addr":         c.HTTP.Addr,
			"cors_origins": append([]string(nil), c.HTTP.CORSOrigins...),
			"rate_rps":     c.HTTP.RateLimitRPS,
			"rate_burst":   c.HTTP.RateLimitBurst,
			"metrics":      c.HTTP.Metrics,
			"access_log":   c.HTTP.AccessLog,
			"pprof":        c.HTTP.Pprof,
		},
	}
}

func (c Config) RedactedJSON() []byte {
	data, _ := json.MarshalIndent(c.Redacted(), "", "  ")
	return data
}

func redactString(value string) string {
	if strings.TrimSpace(value) == "" {
		return ""
	}
	return "***REDACTED*** (len=" + strconv.Itoa(len(value)) + ")"
}

func (c Config) SummaryJSON() []byte {
	summary := struct {
		Config Summary `json:"config_summary"`
	}{Config: c.Summary()}
	data, _ := json.Marshal(summary)
	return data
}
