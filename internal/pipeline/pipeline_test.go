package pipeline

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"sync"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus"

	"github.com/you/social-pulse/internal/analytics"
	"github.com/you/social-pulse/internal/core"
	"github.com/you/social-pulse/internal/export"
	"github.com/you/social-pulse/internal/rawdata"
	"github.com/you/social-pulse/internal/store"
)

type recordingBroadcaster struct {
	mu      sync.Mutex
	reports []core.RunReport
	ch      chan core.RunReport
}

func newRecordingBroadcaster() *recordingBroadcaster {
	return &recordingBroadcaster{ch: make(chan core.RunReport, 8)}
}

func (r *recordingBroadcaster) BroadcastRun(rep core.RunReport) {
	r.mu.Lock()
	r.reports = append(r.reports, rep)
	r.mu.Unlock()
	select {
	case r.ch <- rep:
	default:
	}
}

type stubSource struct {
	platform core.Platform
	records  []any
	err      error
}

func (s stubSource) Platform() core.Platform { return s.platform }

func (s stubSource) Fetch(context.Context) ([]any, error) { return s.records, s.err }

func writeRaw(t *testing.T, root string, platform core.Platform, date core.RunDate, name, body string) {
	t.Helper()
	dir := filepath.Join(root, string(platform), string(date))
	if err := os.MkdirAll(dir, 0o755); err != nil {
		t.Fatalf("mkdir: %v", err)
	}
	if err := os.WriteFile(filepath.Join(dir, name), []byte(body), 0o644); err != nil {
		t.Fatalf("write raw: %v", err)
	}
}

type fixture struct {
	pipe   *Pipeline
	store  *store.Store
	raw    string
	out    string
	events *recordingBroadcaster
}

func newFixture(t *testing.T, opts Options, sources ...stubSourceOpt) fixture {
	t.Helper()
	dir := t.TempDir()
	s, err := store.OpenSQLite(filepath.Join(dir, "pulse.db"))
	if err != nil {
		t.Fatalf("open store: %v", err)
	}
	t.Cleanup(func() { _ = s.Close() })

	deps := Deps{
		Store:    s,
		Raw:      rawdata.New(filepath.Join(dir, "raw")),
		Exporter: export.NewWriter(filepath.Join(dir, "outputs")),
		Metrics:  NewMetrics(prometheus.NewRegistry()),
	}
	for _, o := range sources {
		deps.Sources = append(deps.Sources, o())
	}
	if opts.Analytics == (analytics.Options{}) {
		opts.Analytics = analytics.DefaultOptions()
	}
	p, err := New(deps, opts)
	if err != nil {
		t.Fatalf("new pipeline: %v", err)
	}
	b := newRecordingBroadcaster()
	p.SetBroadcaster(b)
	return fixture{pipe: p, store: s, raw: filepath.Join(dir, "raw"), out: filepath.Join(dir, "outputs"), events: b}
}

type stubSourceOpt func() stubSource

const tweets = `[
  {"id":"t1","text":"goal","author_id":"a1","created_at":"2025-08-26T10:00:00Z","public_metrics":{"like_count":40,"reply_count":5,"retweet_count":5}},
  {"id":"t2","text":"miss","author_id":"a2","created_at":"2025-08-26T11:00:00Z","public_metrics":{"like_count":10}},
  {"text":"no id"},
  {"id":"t3","author_id":"a1","created_at":"2025-08-26T12:00:00Z","public_metrics":{"like_count":60,"reply_count":10,"retweet_count":10}}
]`

const videos = `[
  {"post_id":"y1","content":"Saves","author_id":"c1","posted_at":"2025-08-25T18:00:00Z","likes":3,"comments":2,"shares":0},
  {"post_id":"y2","content":"Top goals","author_id":"c2","posted_at":"2025-08-25T19:00:00Z","likes":150,"comments":50,"shares":0}
]`

func TestRunEndToEnd(t *testing.T) {
	f := newFixture(t, Options{Analytics: analytics.Options{Window: 7, TopOverall: 3, TopPerPlatform: 3}})
	writeRaw(t, f.raw, core.PlatformTwitter, "2025-08-26", "tweets_100000.json", tweets)
	writeRaw(t, f.raw, core.PlatformYouTube, "2025-08-26", "youtube_100000.json", videos)

	report, err := f.pipe.Run(context.Background(), "2025-08-26")
	if err != nil {
		t.Fatalf("run: %v", err)
	}
	if report.Status != core.RunStatusOK || report.Seen != 6 || report.Dropped != 1 || report.Written != 5 {
		t.Fatalf("unexpected report: %+v", report)
	}
	if report.DailyRows != 2 || report.RollingStatus != core.RollingInsufficientHistory {
		t.Fatalf("unexpected analytics summary: %+v", report)
	}
	if report.DropReasons["missing_id"] != 1 {
		t.Fatalf("unexpected drop reasons: %v", report.DropReasons)
	}

	ranking, err := f.store.LoadRanking(context.Background(), "2025-08-26")
	if err != nil {
		t.Fatalf("load ranking: %v", err)
	}
	var overall []string
	for _, rp := range ranking.Overall {
		overall = append(overall, rp.Post.PostID)
	}
	if len(overall) != 3 || overall[0] != "y2" || overall[1] != "t3" || overall[2] != "t1" {
		t.Fatalf("unexpected overall ranking: %v", overall)
	}

	daily, err := f.store.LoadDaily(context.Background(), "2025-08-26")
	if err != nil {
		t.Fatalf("load daily: %v", err)
	}
	if daily[0].Platform != core.PlatformTwitter || daily[0].EngagementScore != 140 {
		t.Fatalf("unexpected daily: %+v", daily)
	}

	for _, name := range []string{
		"daily_metrics_2025-08-26.csv",
		"top3_posts_overall_2025-08-26.csv",
		"top3_posts_by_platform_2025-08-26.csv",
	} {
		if _, err := os.Stat(filepath.Join(f.out, name)); err != nil {
			t.Fatalf("expected export %s: %v", name, err)
		}
	}
	if _, err := os.Stat(filepath.Join(f.out, "ma7_metrics_2025-08-26.csv")); !os.IsNotExist(err) {
		t.Fatalf("rolling export must be withheld, stat err=%v", err)
	}

	runs, err := f.store.ListRuns(context.Background(), "2025-08-26", 10)
	if err != nil || len(runs) != 1 || runs[0].ID != report.ID {
		t.Fatalf("expected recorded run, got %+v (%v)", runs, err)
	}
	if len(f.events.reports) != 1 || f.events.reports[0].ID != report.ID {
		t.Fatalf("expected broadcast of run report, got %+v", f.events.reports)
	}
}

func TestRunCountsFixedCounters(t *testing.T) {
	f := newFixture(t, Options{})
	writeRaw(t, f.raw, core.PlatformTwitter, "2025-08-26", "tweets_100000.json", `[
  {"id":"t1","public_metrics":{"like_count":-4,"reply_count":"n/a"}},
  {"id":"t2","public_metrics":{"like_count":-1}}
]`)

	report, err := f.pipe.Run(context.Background(), "2025-08-26")
	if err != nil {
		t.Fatalf("run: %v", err)
	}
	if report.Fixed["clamped_negative"] != 2 || report.Fixed["bad_counter"] != 1 {
		t.Fatalf("unexpected fixed counts: %v", report.Fixed)
	}
	if report.Written != 2 || report.Dropped != 0 {
		t.Fatalf("fixed records must be kept: %+v", report)
	}
}

func TestRunNoData(t *testing.T) {
	f := newFixture(t, Options{})
	report, err := f.pipe.Run(context.Background(), "2025-08-26")
	if err != nil {
		t.Fatalf("run: %v", err)
	}
	if report.Status != core.RunStatusNoData || report.Written != 0 {
		t.Fatalf("expected no_data report, got %+v", report)
	}
	if _, err := f.store.LoadUnified(context.Background(), "2025-08-26"); !errors.Is(err, core.ErrNoData) {
		t.Fatalf("expected no dataset, got %v", err)
	}
}

func TestRunRollingAfterEnoughHistory(t *testing.T) {
	f := newFixture(t, Options{Analytics: analytics.Options{Window: 2, TopOverall: 5, TopPerPlatform: 3}})
	writeRaw(t, f.raw, core.PlatformTwitter, "2025-08-25", "a.json", tweets)
	writeRaw(t, f.raw, core.PlatformTwitter, "2025-08-26", "a.json", tweets)

	first, err := f.pipe.Run(context.Background(), "2025-08-25")
	if err != nil || first.RollingStatus != core.RollingInsufficientHistory {
		t.Fatalf("first run: %+v (%v)", first, err)
	}
	second, err := f.pipe.Run(context.Background(), "2025-08-26")
	if err != nil || second.RollingStatus != core.RollingComputed {
		t.Fatalf("second run: %+v (%v)", second, err)
	}
	if _, err := os.Stat(filepath.Join(f.out, "ma2_metrics_2025-08-26.csv")); err != nil {
		t.Fatalf("expected rolling export: %v", err)
	}
}

func TestRunFetchesBeforeLoading(t *testing.T) {
	records := []any{map[string]any{"id": "fetched", "public_metrics": map[string]any{"like_count": float64(7)}}}
	f := newFixture(t, Options{Sources: []core.Platform{core.PlatformTwitter}, Fetch: true},
		func() stubSource { return stubSource{platform: core.PlatformTwitter, records: records} },
		func() stubSource { return stubSource{platform: core.PlatformYouTube, err: errors.New("quota exceeded")} },
	)

	report, err := f.pipe.Run(context.Background(), "2025-08-26")
	if err != nil {
		t.Fatalf("run: %v", err)
	}
	if report.Written != 1 || report.Status != core.RunStatusOK {
		t.Fatalf("expected fetched record to be written, got %+v", report)
	}
	matches, _ := filepath.Glob(filepath.Join(f.raw, "twitter", "2025-08-26", "tweets_*.json"))
	if len(matches) != 1 {
		t.Fatalf("expected saved raw file, got %v", matches)
	}
}

func TestNewRejectsUnknownSource(t *testing.T) {
	_, err := New(Deps{Store: &store.Store{}, Raw: rawdata.New(t.TempDir())},
		Options{Sources: []core.Platform{"myspace"}, Analytics: analytics.DefaultOptions()})
	if !errors.Is(err, core.ErrUnknownPlatform) {
		t.Fatalf("expected ErrUnknownPlatform, got %v", err)
	}
}

func TestWatchRawDirTriggersRun(t *testing.T) {
	f := newFixture(t, Options{})
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	if err := f.pipe.watchRawDir(ctx, f.raw, 50*time.Millisecond); err != nil {
		t.Fatalf("watch: %v", err)
	}
	dir := filepath.Join(f.raw, "twitter", "2025-08-26")
	if err := os.MkdirAll(dir, 0o755); err != nil {
		t.Fatalf("mkdir: %v", err)
	}
	// give the watcher time to pick up the new date directory
	time.Sleep(200 * time.Millisecond)
	if err := os.WriteFile(filepath.Join(dir, "tweets_120000.json"), []byte(tweets), 0o644); err != nil {
		t.Fatalf("write: %v", err)
	}

	select {
	case rep := <-f.events.ch:
		if rep.RunDate != "2025-08-26" || rep.Written != 3 {
			t.Fatalf("unexpected report: %+v", rep)
		}
	case <-time.After(5 * time.Second):
		t.Fatal("timed out waiting for watcher run")
	}
}

func TestRunDateOfRawFile(t *testing.T) {
	cases := []struct {
		path string
		want core.RunDate
		ok   bool
	}{
		{"/raw/twitter/2025-08-26/tweets_1.json", "2025-08-26", true},
		{"/raw/twitter/2025-08-26/tweets_1.json.tmp", "", false},
		{"/raw/twitter/latest/tweets_1.json", "", false},
	}
	for _, tc := range cases {
		got, ok := runDateOfRawFile(tc.path)
		if got != tc.want || ok != tc.ok {
			t.Fatalf("runDateOfRawFile(%q) = %q,%v want %q,%v", tc.path, got, ok, tc.want, tc.ok)
		}
	}
}
