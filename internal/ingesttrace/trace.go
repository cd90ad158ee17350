// Package ingesttrace counts records as they move through one pipeline run.
package ingesttrace

import (
	"crypto/sha256"
	"encoding/hex"
	"log/slog"
	"slices"
	"strings"
	"sync"
)

type Stage string

const (
	StageSeenFromSource Stage = "seen_from_source"
	StageNormalizedOK   Stage = "normalized_ok"
	StageWrittenToDB    Stage = "written_to_db"

	droppedPrefix = "dropped_"
	fixedPrefix   = "fixed_"
)

// StageDropped names the counter for records dropped for reason.
func StageDropped(reason string) Stage { return Stage(droppedPrefix + reason) }

// StageFixed names the counter for kept records whose value was coerced.
func StageFixed(note string) Stage { return Stage(fixedPrefix + note) }

func (s Stage) IsDrop() bool { return strings.HasPrefix(string(s), droppedPrefix) }

// RunTrace is safe for concurrent use. TraceID depends only on the run
// date and the set of sources, so reruns of the same date share it.
type RunTrace struct {
	RunDate string
	Sources []string
	TraceID string

	mu     sync.Mutex
	counts map[Stage]int64
}

func NewRunTrace(runDate string, sources []string) *RunTrace {
	sorted := slices.Clone(sources)
	slices.Sort(sorted)
	sum := sha256.Sum256([]byte(runDate + "|" + strings.Join(sorted, ",")))
	return &RunTrace{
		RunDate: runDate,
		Sources: sorted,
		TraceID: hex.EncodeToString(sum[:12]),
		counts:  make(map[Stage]int64),
	}
}

// Add bumps stage by n and returns the new total.
func (t *RunTrace) Add(stage Stage, n int64) int64 {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.counts[stage] += n
	return t.counts[stage]
}

func (t *RunTrace) Count(stage Stage) int64 {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.counts[stage]
}

// Dropped totals every drop reason.
func (t *RunTrace) Dropped() int64 {
	var total int64
	for stage, n := range t.Snapshot() {
		if stage.IsDrop() {
			total += n
		}
	}
	return total
}

func (t *RunTrace) Snapshot() map[Stage]int64 {
	t.mu.Lock()
	defer t.mu.Unlock()
	out := make(map[Stage]int64, len(t.counts))
	for k, v := range t.counts {
		out[k] = v
	}
	return out
}

// LogTrace emits one record with the counters grouped in stage order.
func (t *RunTrace) LogTrace(logger *slog.Logger, msg string) {
	if logger == nil {
		logger = slog.Default()
	}
	snap := t.Snapshot()
	stages := make([]string, 0, len(snap))
	for s := range snap {
		stages = append(stages, string(s))
	}
	slices.Sort(stages)
	counters := make([]any, 0, len(stages))
	for _, s := range stages {
		counters = append(counters, slog.Int64(s, snap[Stage(s)]))
	}
	logger.Info(msg,
		"trace_id", t.TraceID,
		"run_date", t.RunDate,
		"sources", strings.Join(t.Sources, ","),
		slog.Group("counters", counters...),
	)
}
