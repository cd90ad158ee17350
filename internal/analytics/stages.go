package analytics

import (
	"context"
	"fmt"
	"log"

	"github.com/pkg/errors"

	"github.com/you/social-pulse/internal/core"
)

// Options carries the per-run analytics parameters.
type Options struct {
	Window         int
	TopOverall     int
	TopPerPlatform int
}

// DefaultOptions mirrors the daily job: a 7 day window, top 5 overall and
// top 3 per platform.
func DefaultOptions() Options {
	return Options{Window: 7, TopOverall: 5, TopPerPlatform: 3}
}

func (o Options) Validate() error {
	if o.Window < 1 {
		return fmt.Errorf("window must be >= 1, got %d", o.Window)
	}
	if o.TopOverall < 0 || o.TopPerPlatform < 0 {
		return fmt.Errorf("top list sizes must be >= 0, got %d/%d", o.TopOverall, o.TopPerPlatform)
	}
	return nil
}

// DatasetReader loads the unified dataset of a run date.
type DatasetReader interface {
	LoadUnified(ctx context.Context, runDate core.RunDate) ([]core.Post, error)
}

// AggregateStore is the persistence the aggregator needs.
type AggregateStore interface {
	DatasetReader
	DailySnapshotsBefore(ctx context.Context, date core.RunDate, limit int) ([]core.DailySnapshot, error)
	SaveAggregate(ctx context.Context, date core.RunDate, daily []core.DailyMetrics, window int, rolling []core.RollingAverage) error
}

// RankStore is the persistence the ranker needs.
type RankStore interface {
	DatasetReader
	SaveRanking(ctx context.Context, r core.Ranking) error
}

// AggregateResult is the output of one aggregation.
type AggregateResult struct {
	Daily         []core.DailyMetrics
	Rolling       []core.RollingAverage
	RollingStatus string
	// History is the number of snapshots, including the current one, that
	// were available for the rolling window.
	History int
}

type Aggregator struct {
	store AggregateStore
}

func NewAggregator(s AggregateStore) *Aggregator {
	return &Aggregator{store: s}
}

// Aggregate computes and persists the daily totals of runDate and, when at
// least window snapshots exist up to runDate, the rolling averages.
func (a *Aggregator) Aggregate(ctx context.Context, runDate core.RunDate, window int) (AggregateResult, error) {
	if window < 1 {
		return AggregateResult{}, fmt.Errorf("window must be >= 1, got %d", window)
	}
	posts, err := a.store.LoadUnified(ctx, runDate)
	if err != nil {
		return AggregateResult{}, errors.Wrap(err, "aggregate")
	}

	daily := DailyTotals(runDate, posts)
	prior, err := a.store.DailySnapshotsBefore(ctx, runDate, window-1)
	if err != nil {
		return AggregateResult{}, errors.Wrap(err, "aggregate history")
	}
	snapshots := append(prior, core.DailySnapshot{Date: runDate, Rows: daily})

	res := AggregateResult{Daily: daily, History: len(snapshots)}
	rolling, err := RollingMeans(snapshots, window)
	switch {
	case err == nil:
		res.Rolling = rolling
		res.RollingStatus = core.RollingComputed
	case errors.Is(err, core.ErrInsufficientHistory):
		res.RollingStatus = core.RollingInsufficientHistory
		log.Printf("aggregate: %s has %d of %d snapshots; rolling average withheld", runDate, len(snapshots), window)
	default:
		return AggregateResult{}, err
	}

	if err := a.store.SaveAggregate(ctx, runDate, daily, window, res.Rolling); err != nil {
		return AggregateResult{}, errors.Wrap(err, "aggregate")
	}
	return res, nil
}

type Ranker struct {
	store RankStore
}

func NewRanker(s RankStore) *Ranker {
	return &Ranker{store: s}
}

// Rank computes and persists the top lists of runDate.
func (r *Ranker) Rank(ctx context.Context, runDate core.RunDate, topOverall, topPerPlatform int) (core.Ranking, error) {
	posts, err := r.store.LoadUnified(ctx, runDate)
	if err != nil {
		return core.Ranking{}, errors.Wrap(err, "rank")
	}
	ranking := RankPosts(runDate, posts, topOverall, topPerPlatform)
	if err := r.store.SaveRanking(ctx, ranking); err != nil {
		return core.Ranking{}, errors.Wrap(err, "rank")
	}
	return ranking, nil
}
