// Package pipeline runs the daily job for one run date: optional
// acquisition, normalization, the unified write, then aggregation and
// ranking.
package pipeline

import (
	"context"
	"log"
	"log/slog"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/pkg/errors"
	"golang.org/x/sync/errgroup"

	"github.com/you/social-pulse/internal/acquire"
	"github.com/you/social-pulse/internal/analytics"
	"github.com/you/social-pulse/internal/core"
	"github.com/you/social-pulse/internal/export"
	"github.com/you/social-pulse/internal/ingesttrace"
	"github.com/you/social-pulse/internal/normalize"
	"github.com/you/social-pulse/internal/rawdata"
	"github.com/you/social-pulse/internal/unify"
)

// Store is the persistence a pipeline needs.
type Store interface {
	unify.DatasetStore
	analytics.AggregateStore
	SaveRanking(ctx context.Context, r core.Ranking) error
	RecordRun(ctx context.Context, r core.RunReport) error
}

// Broadcaster receives every finished run report.
type Broadcaster interface {
	BroadcastRun(core.RunReport)
}

type Options struct {
	Sources   []core.Platform
	Analytics analytics.Options
	// Fetch calls the acquisition sources before reading raw files.
	Fetch bool
}

type Deps struct {
	Store      Store
	Raw        *rawdata.Dir
	Normalizer *normalize.Normalizer
	Sources    []acquire.Source
	Exporter   *export.Writer
	Metrics    *Metrics
	Logger     *slog.Logger
}

type Pipeline struct {
	deps       Deps
	opts       Options
	writer     *unify.Writer
	aggregator *analytics.Aggregator
	ranker     *analytics.Ranker

	mu          sync.Mutex
	broadcaster Broadcaster

	// runMu keeps at most one run in flight.
	runMu sync.Mutex
	now   func() time.Time
	newID func() string
}

func New(deps Deps, opts Options) (*Pipeline, error) {
	if deps.Store == nil {
		return nil, errors.New("pipeline: store is required")
	}
	if deps.Raw == nil {
		return nil, errors.New("pipeline: raw dir is required")
	}
	if err := opts.Analytics.Validate(); err != nil {
		return nil, errors.Wrap(err, "pipeline")
	}
	if deps.Normalizer == nil {
		deps.Normalizer = normalize.New(nil, deps.Logger)
	}
	if len(opts.Sources) == 0 {
		opts.Sources = deps.Normalizer.Platforms()
	}
	for _, src := range opts.Sources {
		if !deps.Normalizer.Known(src) {
			return nil, errors.Wrapf(core.ErrUnknownPlatform, "pipeline source %q", src)
		}
	}
	opts.Sources = core.SortPlatforms(opts.Sources)
	if deps.Logger == nil {
		deps.Logger = slog.Default()
	}
	return &Pipeline{
		deps:       deps,
		opts:       opts,
		writer:     unify.NewWriter(deps.Store),
		aggregator: analytics.NewAggregator(deps.Store),
		ranker:     analytics.NewRanker(deps.Store),
		now:        time.Now,
		newID:      uuid.NewString,
	}, nil
}

// SetBroadcaster installs the receiver of run reports.
func (p *Pipeline) SetBroadcaster(b Broadcaster) {
	p.mu.Lock()
	p.broadcaster = b
	p.mu.Unlock()
}

func (p *Pipeline) Sources() []core.Platform {
	return append([]core.Platform(nil), p.opts.Sources...)
}

// Run executes the job for date. Missing input is reported in the returned
// report's status, not as an error. Persistence failures are returned.
func (p *Pipeline) Run(ctx context.Context, date core.RunDate) (core.RunReport, error) {
	p.runMu.Lock()
	defer p.runMu.Unlock()

	report := core.RunReport{
		ID:            p.newID(),
		RunDate:       date,
		StartedAt:     p.now().UTC(),
		Status:        core.RunStatusOK,
		RollingStatus: core.RollingSkipped,
	}
	sources := make([]string, 0, len(p.opts.Sources))
	for _, s := range p.opts.Sources {
		sources = append(sources, string(s))
	}
	trace := ingesttrace.NewRunTrace(string(date), sources)
	log.Printf("pipeline: run %s for %s (sources=%s)", report.ID, date, strings.Join(sources, ","))

	err := p.run(ctx, date, trace, &report)

	report.FinishedAt = p.now().UTC()
	report.Seen = trace.Count(ingesttrace.StageSeenFromSource)
	report.Dropped = trace.Dropped()
	report.Written = trace.Count(ingesttrace.StageWrittenToDB)
	if err != nil {
		report.Status = core.RunStatusFailed
		report.Error = err.Error()
	}

	if recErr := p.deps.Store.RecordRun(context.WithoutCancel(ctx), report); recErr != nil {
		log.Printf("pipeline: record run %s: %v", report.ID, recErr)
	}
	trace.LogTrace(p.deps.Logger, "pipeline run trace")
	p.deps.Metrics.observeRun(report)
	log.Printf("pipeline: run %s finished status=%s seen=%d dropped=%d written=%d rolling=%s in %s",
		report.ID, report.Status, report.Seen, report.Dropped, report.Written, report.RollingStatus, report.Duration())

	p.mu.Lock()
	b := p.broadcaster
	p.mu.Unlock()
	if b != nil {
		b.BroadcastRun(report)
	}
	return report, err
}

func (p *Pipeline) run(ctx context.Context, date core.RunDate, trace *ingesttrace.RunTrace, report *core.RunReport) error {
	if p.opts.Fetch {
		p.fetch(ctx, date)
	}

	raw, err := p.deps.Raw.LoadAll(p.opts.Sources, date)
	if err != nil {
		return errors.Wrap(err, "load raw records")
	}
	for _, records := range raw {
		trace.Add(ingesttrace.StageSeenFromSource, int64(len(records)))
	}

	batch, err := p.deps.Normalizer.NormalizeAll(ctx, raw)
	if err != nil {
		return errors.Wrap(err, "normalize")
	}
	trace.Add(ingesttrace.StageNormalizedOK, int64(len(batch.Posts)))
	for reason, n := range batch.DropReasons {
		trace.Add(ingesttrace.StageDropped(reason), int64(n))
	}
	report.DropReasons = batch.DropReasons
	for note, n := range batch.Fixed {
		trace.Add(ingesttrace.StageFixed(note), int64(n))
	}
	report.Fixed = batch.Fixed

	handle, err := p.writer.Write(ctx, date, batch.Posts)
	switch {
	case err == nil:
		trace.Add(ingesttrace.StageWrittenToDB, int64(handle.Rows))
	case errors.Is(err, core.ErrNoData):
		p.deps.Metrics.incNoData("unify")
		log.Printf("pipeline: no records for %s; analytics will use any existing dataset", date)
	default:
		return err
	}

	var (
		agg     analytics.AggregateResult
		ranking core.Ranking
		noData  [2]bool
	)
	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		res, err := p.aggregator.Aggregate(gctx, date, p.opts.Analytics.Window)
		if errors.Is(err, core.ErrNoData) {
			noData[0] = true
			return nil
		}
		agg = res
		return err
	})
	g.Go(func() error {
		r, err := p.ranker.Rank(gctx, date, p.opts.Analytics.TopOverall, p.opts.Analytics.TopPerPlatform)
		if errors.Is(err, core.ErrNoData) {
			noData[1] = true
			return nil
		}
		ranking = r
		return err
	})
	if err := g.Wait(); err != nil {
		return err
	}

	if noData[0] || noData[1] {
		p.deps.Metrics.incNoData("analytics")
		report.Status = core.RunStatusNoData
		log.Printf("pipeline: no unified dataset for %s", date)
		return nil
	}
	report.DailyRows = len(agg.Daily)
	report.RollingStatus = agg.RollingStatus

	if p.deps.Exporter != nil {
		files, err := p.export(date, agg, ranking)
		if err != nil {
			return err
		}
		report.Exports = files
	}
	return nil
}

// fetch stores whatever each acquisition source returns. Failures are
// logged and counted; the run continues with the raw files already present.
func (p *Pipeline) fetch(ctx context.Context, date core.RunDate) {
	for _, src := range p.deps.Sources {
		records, err := src.Fetch(ctx)
		if err != nil {
			p.deps.Metrics.incFetchError(src.Platform())
			log.Printf("pipeline: fetch %s failed: %v", src.Platform(), err)
			continue
		}
		if len(records) == 0 {
			log.Printf("pipeline: no %s data fetched", src.Platform())
			continue
		}
		if _, err := p.deps.Raw.Save(src.Platform(), date, records); err != nil {
			p.deps.Metrics.incFetchError(src.Platform())
			log.Printf("pipeline: save %s records: %v", src.Platform(), err)
		}
	}
}

// export writes every CSV for the date or none of them.
func (p *Pipeline) export(date core.RunDate, agg analytics.AggregateResult, ranking core.Ranking) ([]string, error) {
	batch := p.deps.Exporter.Begin().Daily(date, agg.Daily)
	if agg.RollingStatus == core.RollingComputed {
		batch.Rolling(date, p.opts.Analytics.Window, agg.Rolling)
	}
	batch.Ranking(ranking, p.opts.Analytics.TopOverall, p.opts.Analytics.TopPerPlatform)
	files, err := batch.Commit()
	if err != nil {
		return nil, errors.Wrap(err, "export")
	}
	sort.Strings(files)
	return files, nil
}
