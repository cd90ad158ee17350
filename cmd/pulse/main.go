package main

import (
	"context"
	"flag"
	"fmt"
	"log"
	"log/slog"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/prometheus/client_golang/prometheus"

	"github.com/you/social-pulse/internal/acquire"
	"github.com/you/social-pulse/internal/analytics"
	"github.com/you/social-pulse/internal/config"
	"github.com/you/social-pulse/internal/core"
	"github.com/you/social-pulse/internal/export"
	httpadmin "github.com/you/social-pulse/internal/http"
	"github.com/you/social-pulse/internal/httpapi"
	"github.com/you/social-pulse/internal/normalize"
	"github.com/you/social-pulse/internal/pipeline"
	"github.com/you/social-pulse/internal/rawdata"
	"github.com/you/social-pulse/internal/scheduler"
	"github.com/you/social-pulse/internal/store"
	"github.com/you/social-pulse/internal/version"
)

func main() {
	log.SetFlags(log.LstdFlags | log.Lmicroseconds)

	var (
		versionFlag     bool
		dbPath          string
		rawDir          string
		exportDir       string
		window          int
		topOverall      int
		topPerPlatform  int
		sources         string
		mappings        string
		schedule        string
		timezone        string
		fetch           bool
		runDate         string
		watch           bool
		httpAddr        string
		httpCorsOrigins string
		httpRateRPS     int
		httpRateBurst   int
		httpMetrics     bool
		httpAccessLog   bool
		httpPprof       bool
	)

	flag.BoolVar(&versionFlag, "version", false, "Print build version and exit")
	flag.StringVar(&dbPath, "sqlite", "pulse.db", "Path to SQLite database file")
	flag.StringVar(&rawDir, "raw-dir", "data/raw", "Root of the raw acquisition files (<root>/<platform>/<date>/*.json)")
	flag.StringVar(&exportDir, "export-dir", "", "Directory for CSV exports (empty disables exports)")
	flag.IntVar(&window, "window", 7, "Rolling average window in days")
	flag.IntVar(&topOverall, "top-overall", 5, "Number of posts in the overall ranking")
	flag.IntVar(&topPerPlatform, "top-per-platform", 3, "Number of posts per platform ranking")
	flag.StringVar(&sources, "sources", "twitter,youtube", "Comma-separated list of sources to process")
	flag.StringVar(&mappings, "mappings", "", "YAML file with additional source mapping tables")
	flag.StringVar(&schedule, "schedule", "", "Cron schedule for pipeline runs (e.g. @daily)")
	flag.StringVar(&timezone, "timezone", "UTC", "Timezone used for schedules and run dates")
	flag.BoolVar(&fetch, "fetch", false, "Call the platform APIs before reading raw files")
	flag.StringVar(&runDate, "date", "", "Run the pipeline once for this date (YYYY-MM-DD) and exit")
	flag.BoolVar(&watch, "watch", false, "Rerun the pipeline when raw files change")
	flag.StringVar(&httpAddr, "http-addr", "", "HTTP API address (e.g., :8765)")
	flag.StringVar(&httpCorsOrigins, "http-cors-origins", "", "Comma-separated list of allowed CORS origins")
	flag.IntVar(&httpRateRPS, "http-rate-rps", 20, "Maximum HTTP requests per second per client")
	flag.IntVar(&httpRateBurst, "http-rate-burst", 40, "Burst size for HTTP rate limiter")
	flag.BoolVar(&httpMetrics, "http-metrics", true, "Expose Prometheus metrics endpoint")
	flag.BoolVar(&httpAccessLog, "http-access-log", true, "Log HTTP access records")
	flag.BoolVar(&httpPprof, "http-pprof", false, "Expose pprof handlers under /debug/pprof")
	flag.Parse()

	if versionFlag {
		fmt.Printf(
			"pulse version: %s (commit %s, built %s)\n",
			version.Version,
			version.Commit,
			version.BuildTime,
		)
		os.Exit(0)
	}

	overrides := make(map[string]bool)
	flag.Visit(func(f *flag.Flag) {
		overrides[f.Name] = true
	})

	cfg := config.Load()
	applyOverrides(&cfg, overrides, flagValues{
		dbPath:          dbPath,
		rawDir:          rawDir,
		exportDir:       exportDir,
		window:          window,
		topOverall:      topOverall,
		topPerPlatform:  topPerPlatform,
		sources:         sources,
		mappings:        mappings,
		schedule:        schedule,
		timezone:        timezone,
		fetch:           fetch,
		httpAddr:        httpAddr,
		httpCorsOrigins: httpCorsOrigins,
		httpRateRPS:     httpRateRPS,
		httpRateBurst:   httpRateBurst,
		httpMetrics:     httpMetrics,
		httpAccessLog:   httpAccessLog,
		httpPprof:       httpPprof,
	})

	configSnapshot := cfg.Redacted()
	log.Printf("%s", cfg.SummaryJSON())

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)
	go func() {
		sig := <-sigCh
		log.Printf("pulse: received %s, shutting down", sig)
		cancel()
	}()

	db, err := store.OpenSQLite(cfg.SQLite.Path)
	if err != nil {
		log.Fatalf("pulse: open sqlite: %v", err)
	}
	defer func() {
		if err := db.Close(); err != nil {
			log.Printf("pulse: closing store: %v", err)
		}
	}()
	if err := db.Ping(); err != nil {
		log.Fatalf("pulse: ping sqlite: %v", err)
	}
	if err := migrateSQLite(ctx, db.RawDB()); err != nil {
		log.Fatalf("pulse: sqlite migrate: %v", err)
	}
	if cfg.SQLite.Tuning {
		db.Tune(ctx)
	}

	registry := normalize.DefaultRegistry()
	if cfg.Mappings != "" {
		if err := registry.LoadMappingsFile(cfg.Mappings); err != nil {
			log.Fatalf("pulse: %v", err)
		}
		log.Printf("pulse: loaded mappings from %s (platforms=%v)", cfg.Mappings, registry.Platforms())
	}
	logger := slog.Default()
	normalizer := normalize.New(registry, logger)

	platforms := make([]core.Platform, 0, len(cfg.Sources))
	for _, s := range cfg.Sources {
		platforms = append(platforms, core.Platform(strings.ToLower(s)))
	}

	var api *httpapi.Server
	if cfg.HTTP.Addr != "" {
		api = httpapi.New(db, httpapi.Options{
			Addr:            cfg.HTTP.Addr,
			CORSOrigins:     cfg.HTTP.CORSOrigins,
			RateLimitRPS:    cfg.HTTP.RateLimitRPS,
			RateLimitBurst:  cfg.HTTP.RateLimitBurst,
			EnableMetrics:   cfg.HTTP.Metrics,
			EnableAccessLog: cfg.HTTP.AccessLog,
			EnablePprof:     cfg.HTTP.Pprof,
			Build:           buildInfo(),
			ConfigSnapshot:  configSnapshot,
		})
	}

	var reg prometheus.Registerer = prometheus.NewRegistry()
	if api != nil {
		reg = api.Metrics().Registerer()
	}

	deps := pipeline.Deps{
		Store:      db,
		Raw:        rawdata.New(cfg.RawDir),
		Normalizer: normalizer,
		Sources:    buildSources(cfg, platforms),
		Metrics:    pipeline.NewMetrics(reg),
		Logger:     logger,
	}
	if cfg.ExportDir != "" {
		deps.Exporter = export.NewWriter(cfg.ExportDir)
	}
	pipe, err := pipeline.New(deps, pipeline.Options{
		Sources: platforms,
		Analytics: analytics.Options{
			Window:         cfg.Analytics.Window,
			TopOverall:     cfg.Analytics.TopOverall,
			TopPerPlatform: cfg.Analytics.TopPerPlatform,
		},
		Fetch: cfg.Fetch.Enabled,
	})
	if err != nil {
		log.Fatalf("pulse: %v", err)
	}

	sched, err := scheduler.New(cfg.Schedule.Timezone, cfg.RunTimeout())
	if err != nil {
		log.Fatalf("pulse: %v", err)
	}
	job := func(ctx context.Context, date core.RunDate) error {
		_, err := pipe.Run(ctx, date)
		return err
	}

	if overrides["date"] {
		date, err := core.ParseRunDate(strings.TrimSpace(runDate))
		if err != nil {
			log.Fatalf("pulse: -date: %v", err)
		}
		runCtx, cancelRun := context.WithTimeout(ctx, cfg.RunTimeout())
		report, err := pipe.Run(runCtx, date)
		cancelRun()
		if err != nil {
			log.Fatalf("pulse: run %s: %v", date, err)
		}
		log.Printf("pulse: run %s finished with status %s", date, report.Status)
		return
	}

	longRunning := api != nil || cfg.Schedule.Cron != "" || watch
	if !longRunning {
		if err := sched.RunNow(ctx, job); err != nil {
			log.Fatalf("pulse: %v", err)
		}
		return
	}

	if api != nil {
		pipe.SetBroadcaster(api)
		httpadmin.New(pipe, sched.Today).Register(api.Mux())
		go func() {
			if err := api.Start(); err != nil {
				log.Fatalf("pulse: http api: %v", err)
			}
		}()
		log.Printf("pulse: http api ready on %s", cfg.HTTP.Addr)
	}

	if cfg.Schedule.Cron != "" {
		if err := sched.Schedule(cfg.Schedule.Cron, job); err != nil {
			log.Fatalf("pulse: %v", err)
		}
		sched.Start()
		log.Printf("pulse: next run at %s", sched.Next().Format(time.RFC3339))
		defer func() {
			<-sched.Stop().Done()
		}()
	}

	if watch {
		if err := pipe.WatchRawDir(ctx, cfg.RawDir); err != nil {
			log.Fatalf("pulse: watch %s: %v", cfg.RawDir, err)
		}
		log.Printf("pulse: watching %s for raw files", cfg.RawDir)
	}

	<-ctx.Done()

	if api != nil {
		shutdownCtx, cancelShutdown := context.WithTimeout(context.Background(), 5*time.Second)
		if err := api.Shutdown(shutdownCtx); err != nil {
			log.Printf("pulse: http api shutdown: %v", err)
		}
		cancelShutdown()
	}
	log.Printf("pulse: shutdown complete")
}

type flagValues struct {
	dbPath          string
	rawDir          string
	exportDir       string
	window          int
	topOverall      int
	topPerPlatform  int
	sources         string
	mappings        string
	schedule        string
	timezone        string
	fetch           bool
	httpAddr        string
	httpCorsOrigins string
	httpRateRPS     int
	httpRateBurst   int
	httpMetrics     bool
	httpAccessLog   bool
	httpPprof       bool
}

// applyOverrides copies explicitly set flags over the environment config.
func applyOverrides(cfg *config.Config, set map[string]bool, v flagValues) {
	if set["sqlite"] {
		cfg.SQLite.Path = strings.TrimSpace(v.dbPath)
	}
	if set["raw-dir"] {
		cfg.RawDir = strings.TrimSpace(v.rawDir)
	}
	if set["export-dir"] {
		cfg.ExportDir = strings.TrimSpace(v.exportDir)
	}
	if set["window"] {
		cfg.Analytics.Window = v.window
	}
	if set["top-overall"] {
		cfg.Analytics.TopOverall = v.topOverall
	}
	if set["top-per-platform"] {
		cfg.Analytics.TopPerPlatform = v.topPerPlatform
	}
	if set["sources"] {
		cfg.Sources = splitCSV(v.sources)
	}
	if set["mappings"] {
		cfg.Mappings = strings.TrimSpace(v.mappings)
	}
	if set["schedule"] {
		cfg.Schedule.Cron = strings.TrimSpace(v.schedule)
	}
	if set["timezone"] {
		cfg.Schedule.Timezone = strings.TrimSpace(v.timezone)
	}
	if set["fetch"] {
		cfg.Fetch.Enabled = v.fetch
	}
	if set["http-addr"] {
		cfg.HTTP.Addr = strings.TrimSpace(v.httpAddr)
	}
	if set["http-cors-origins"] {
		cfg.HTTP.CORSOrigins = splitCSV(v.httpCorsOrigins)
	}
	if set["http-rate-rps"] || cfg.HTTP.RateLimitRPS == 0 {
		cfg.HTTP.RateLimitRPS = v.httpRateRPS
	}
	if set["http-rate-burst"] || cfg.HTTP.RateLimitBurst == 0 {
		cfg.HTTP.RateLimitBurst = v.httpRateBurst
	}
	if set["http-metrics"] {
		cfg.HTTP.Metrics = v.httpMetrics
	}
	if set["http-access-log"] {
		cfg.HTTP.AccessLog = v.httpAccessLog
	}
	if set["http-pprof"] {
		cfg.HTTP.Pprof = v.httpPprof
	}
}

func splitCSV(raw string) []string {
	var out []string
	for _, part := range strings.Split(raw, ",") {
		if p := strings.TrimSpace(part); p != "" {
			out = append(out, p)
		}
	}
	return out
}

// buildSources returns an API client for every configured platform that has
// one. Platforms added through mappings are read from raw files only.
func buildSources(cfg config.Config, platforms []core.Platform) []acquire.Source {
	limiter := acquire.NewLimiter(float64(cfg.Fetch.RPS))
	var out []acquire.Source
	for _, p := range platforms {
		switch p {
		case core.PlatformTwitter:
			out = append(out, acquire.NewTwitter(acquire.TwitterConfig{
				BaseURL:     cfg.Twitter.BaseURL,
				BearerToken: cfg.Twitter.BearerToken,
				TokenFile:   cfg.Twitter.TokenFile,
				Query:       cfg.Twitter.Query,
				MaxResults:  cfg.Twitter.MaxResults,
			}, limiter))
		case core.PlatformYouTube:
			out = append(out, acquire.NewYouTube(acquire.YouTubeConfig{
				BaseURL:    cfg.YouTube.BaseURL,
				APIKey:     cfg.YouTube.APIKey,
				Query:      cfg.YouTube.Query,
				MaxResults: cfg.YouTube.MaxResults,
			}, limiter))
		default:
			if cfg.Fetch.Enabled {
				log.Printf("pulse: no API client for %s; reading raw files only", p)
			}
		}
	}
	return out
}

func buildInfo() httpapi.BuildInfo {
	build := httpapi.BuildInfo{Version: version.Version, Revision: version.Commit}
	if version.BuildTime != "" && version.BuildTime != "unknown" {
		if t, err := time.Parse(time.RFC3339, version.BuildTime); err == nil {
			build.BuiltAt = t
		}
	}
	return build
}
