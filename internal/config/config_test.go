package config

import (
	"encoding/json"
	"testing"
	"time"
)

var pulseEnv = []string{
	"PULSE_SQLITE_PATH", "PULSE_SQLITE_TUNING", "PULSE_RAW_DIR", "PULSE_EXPORT_DIR",
	"PULSE_WINDOW", "PULSE_TOP_OVERALL", "PULSE_TOP_PER_PLATFORM", "PULSE_SOURCES",
	"PULSE_MAPPINGS_FILE", "PULSE_SCHEDULE", "PULSE_TIMEZONE", "PULSE_RUN_TIMEOUT_SECS",
	"PULSE_FETCH", "PULSE_FETCH_RPS", "PULSE_TWITTER_BEARER_TOKEN", "TWITTER_BEARER_TOKEN",
	"PULSE_TWITTER_BEARER_TOKEN_FILE", "PULSE_TWITTER_QUERY", "PULSE_TWITTER_MAX_RESULTS",
	"PULSE_YOUTUBE_API_KEY", "YOUTUBE_API_KEY", "PULSE_YOUTUBE_QUERY", "PULSE_YOUTUBE_MAX_RESULTS",
	"PULSE_HTTP_ADDR", "PULSE_HTTP_CORS_ORIGINS", "PULSE_HTTP_METRICS",
}

func clearEnv(t *testing.T) {
	t.Helper()
	for _, name := range pulseEnv {
		t.Setenv(name, "")
	}
}

func TestLoadDefaults(t *testing.T) {
	clearEnv(t)

	cfg := Load()
	if cfg.SQLite.Path != "pulse.db" {
		t.Fatalf("unexpected sqlite path: %q", cfg.SQLite.Path)
	}
	if cfg.RawDir != "data/raw" || cfg.ExportDir != "" {
		t.Fatalf("unexpected dirs: raw=%q export=%q", cfg.RawDir, cfg.ExportDir)
	}
	if cfg.Analytics.Window != 7 || cfg.Analytics.TopOverall != 5 || cfg.Analytics.TopPerPlatform != 3 {
		t.Fatalf("unexpected analytics defaults: %+v", cfg.Analytics)
	}
	if !cfg.HasSource("twitter") || !cfg.HasSource("youtube") || len(cfg.Sources) != 2 {
		t.Fatalf("expected default sources, got %v", cfg.Sources)
	}
	if cfg.Schedule.Cron != "" || cfg.Schedule.Timezone != "UTC" {
		t.Fatalf("unexpected schedule defaults: %+v", cfg.Schedule)
	}
	if cfg.RunTimeout() != 10*time.Minute {
		t.Fatalf("expected 10m timeout, got %s", cfg.RunTimeout())
	}
	if cfg.Fetch.Enabled || cfg.Fetch.RPS != 1 {
		t.Fatalf("unexpected fetch defaults: %+v", cfg.Fetch)
	}
	if cfg.Twitter.Query != "#football" || cfg.Twitter.MaxResults != 10 {
		t.Fatalf("unexpected twitter defaults: %+v", cfg.Twitter)
	}
	if cfg.YouTube.Query != "football highlights" || cfg.YouTube.MaxResults != 20 {
		t.Fatalf("unexpected youtube defaults: %+v", cfg.YouTube)
	}
	if !cfg.HTTP.Metrics || cfg.HTTP.Addr != "" {
		t.Fatalf("unexpected http defaults: %+v", cfg.HTTP)
	}
}

func TestLoadEnvOverrides(t *testing.T) {
	clearEnv(t)
	t.Setenv("PULSE_SQLITE_PATH", "/data/pulse.db")
	t.Setenv("PULSE_EXPORT_DIR", "/data/outputs")
	t.Setenv("PULSE_WINDOW", "3")
	t.Setenv("PULSE_TOP_OVERALL", "10")
	t.Setenv("PULSE_SOURCES", "youtube, reddit;youtube")
	t.Setenv("PULSE_SCHEDULE", "@daily")
	t.Setenv("PULSE_TIMEZONE", "Europe/London")
	t.Setenv("PULSE_RUN_TIMEOUT_SECS", "90")
	t.Setenv("PULSE_FETCH", "true")
	t.Setenv("TWITTER_BEARER_TOKEN", "legacy-token")
	t.Setenv("PULSE_YOUTUBE_API_KEY", "yt-key")
	t.Setenv("PULSE_HTTP_ADDR", ":8765")
	t.Setenv("PULSE_HTTP_CORS_ORIGINS", "https://a.example,https://b.example")

	cfg := Load()
	if cfg.SQLite.Path != "/data/pulse.db" || cfg.ExportDir != "/data/outputs" {
		t.Fatalf("unexpected paths: %+v", cfg)
	}
	if cfg.Analytics.Window != 3 || cfg.Analytics.TopOverall != 10 || cfg.Analytics.TopPerPlatform != 3 {
		t.Fatalf("unexpected analytics: %+v", cfg.Analytics)
	}
	if len(cfg.Sources) != 2 || cfg.Sources[0] != "youtube" || cfg.Sources[1] != "reddit" {
		t.Fatalf("unexpected sources: %v", cfg.Sources)
	}
	if cfg.Schedule.Cron != "@daily" || cfg.Schedule.Timezone != "Europe/London" {
		t.Fatalf("unexpected schedule: %+v", cfg.Schedule)
	}
	if cfg.RunTimeout() != 90*time.Second {
		t.Fatalf("unexpected timeout: %s", cfg.RunTimeout())
	}
	if !cfg.Fetch.Enabled {
		t.Fatalf("expected fetch enabled")
	}
	if cfg.Twitter.BearerToken != "legacy-token" {
		t.Fatalf("expected legacy bearer token fallback, got %q", cfg.Twitter.BearerToken)
	}
	if cfg.YouTube.APIKey != "yt-key" {
		t.Fatalf("unexpected api key: %q", cfg.YouTube.APIKey)
	}
	if cfg.HTTP.Addr != ":8765" || len(cfg.HTTP.CORSOrigins) != 2 {
		t.Fatalf("unexpected http config: %+v", cfg.HTTP)
	}
}

func TestInvalidNumbersFallBack(t *testing.T) {
	clearEnv(t)
	t.Setenv("PULSE_WINDOW", "zero")
	t.Setenv("PULSE_TOP_OVERALL", "-2")
	t.Setenv("PULSE_FETCH", "maybe")

	cfg := Load()
	if cfg.Analytics.Window != 7 || cfg.Analytics.TopOverall != 5 {
		t.Fatalf("expected defaults for invalid numbers, got %+v", cfg.Analytics)
	}
	if cfg.Fetch.Enabled {
		t.Fatalf("expected invalid bool to fall back to false")
	}
}

func TestRedactedSnapshot(t *testing.T) {
	cfg := Config{
		SQLite:  SQLiteConfig{Path: "/data/pulse.db"},
		Sources: []string{"twitter"},
		Twitter: TwitterConfig{BearerToken: "AAAA-secret", Query: "#football", MaxResults: 10},
		YouTube: YouTubeConfig{APIKey: "key", Query: "football highlights", MaxResults: 20},
	}

	summary := cfg.Summary()
	if summary.Twitter.Credential != "***REDACTED*** (len=11)" {
		t.Fatalf("expected redacted token, got %q", summary.Twitter.Credential)
	}
	if summary.YouTube.Credential != "***REDACTED*** (len=3)" {
		t.Fatalf("expected redacted api key, got %q", summary.YouTube.Credential)
	}

	redacted := cfg.Redacted()
	tw := redacted["twitter"].(map[string]any)
	if tw["bearer_token"].(string) != "***REDACTED*** (len=11)" {
		t.Fatalf("unexpected redacted bearer token: %v", tw["bearer_token"])
	}
	if redacted["sqlite"].(map[string]any)["path"].(string) != "/data/pulse.db" {
		t.Fatalf("expected sqlite path preserved in redacted snapshot")
	}

	var wrapped struct {
		Config Summary `json:"config_summary"`
	}
	if err := json.Unmarshal(cfg.SummaryJSON(), &wrapped); err != nil {
		t.Fatalf("decode summary json: %v", err)
	}
	if wrapped.Config.SQLitePath != "/data/pulse.db" || len(wrapped.Config.Sources) != 1 {
		t.Fatalf("unexpected summary json: %+v", wrapped.Config)
	}
}

func TestSplitList(t *testing.T) {
	cases := []struct {
		raw  string
		want []string
	}{
		{"", nil},
		{"twitter", []string{"twitter"}},
		{"Twitter,twitter youtube", []string{"Twitter", "youtube"}},
		{" a ;\tb\nc ", []string{"a", "b", "c"}},
	}
	for _, tc := range cases {
		t.Run(tc.raw, func(t *testing.T) {
			got := splitList(tc.raw)
			if len(got) != len(tc.want) {
				t.Fatalf("splitList(%q) = %v, want %v", tc.raw, got, tc.want)
			}
			for i := range got {
				if got[i] != tc.want[i] {
					t.Fatalf("splitList(%q) = %v, want %v", tc.raw, got, tc.want)
				}
			}
		})
	}
}
