package store

import (
	"context"
	"time"

	"github.com/pkg/errors"

	"github.com/you/social-pulse/internal/core"
)

// RecordRun stores the outcome of one pipeline run.
func (s *Store) RecordRun(ctx context.Context, r core.RunReport) error {
	_, err := s.db.ExecContext(ctx, `INSERT INTO pipeline_runs
  (id, run_date, started_at, finished_at, status, seen, dropped, written, daily_rows, rolling_status, error)
  VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
  ON CONFLICT(id) DO UPDATE SET finished_at = excluded.finished_at, status = excluded.status,
    seen = excluded.seen, dropped = excluded.dropped, written = excluded.written,
    daily_rows = excluded.daily_rows, rolling_status = excluded.rolling_status, error = excluded.error;`,
		r.ID, string(r.RunDate),
		r.StartedAt.UTC().Format(time.RFC3339Nano), r.FinishedAt.UTC().Format(time.RFC3339Nano),
		r.Status, r.Seen, r.Dropped, r.Written, r.DailyRows, r.RollingStatus, r.Error)
	return errors.Wrap(err, "record run")
}

// ListRuns returns the most recent runs, newest first. An empty date lists
// every run date.
func (s *Store) ListRuns(ctx context.Context, date core.RunDate, limit int) ([]core.RunReport, error) {
	if limit <= 0 {
		limit = defaultListLimit
	}
	query := `SELECT id, run_date, started_at, finished_at, status, seen, dropped, written, daily_rows, rolling_status, error FROM pipeline_runs`
	var args []any
	if date != "" {
		query += ` WHERE run_date = ?`
		args = append(args, string(date))
	}
	query += ` ORDER BY started_at DESC LIMIT ?;`
	args = append(args, limit)

	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, errors.Wrap(err, "list runs")
	}
	defer rows.Close()

	var out []core.RunReport
	for rows.Next() {
		var (
			r                 core.RunReport
			runDate           string
			started, finished string
		)
		if err := rows.Scan(&r.ID, &runDate, &started, &finished, &r.Status, &r.Seen, &r.Dropped, &r.Written,
			&r.DailyRows, &r.RollingStatus, &r.Error); err != nil {
			return nil, errors.Wrap(err, "scan run")
		}
		r.RunDate = core.RunDate(runDate)
		r.StartedAt, _ = time.Parse(time.RFC3339Nano, started)
		r.FinishedAt, _ = time.Parse(time.RFC3339Nano, finished)
		out = append(out, r)
	}
	if err := rows.Err(); err != nil {
		return nil, errors.Wrap(err, "iterate runs")
	}
	return out, nil
}
