package store

import (
	"context"
	"database/sql"

	"github.com/pkg/errors"

	"github.com/you/social-pulse/internal/core"
)

// SaveAggregate replaces the daily rows of date and the rolling rows computed
// on date in one transaction. A nil rolling slice clears previous rolling
// output for date.
func (s *Store) SaveAggregate(ctx context.Context, date core.RunDate, daily []core.DailyMetrics, window int, rolling []core.RollingAverage) error {
	stamp := s.stamp()
	return s.inTx(ctx, "save aggregate", func(tx *sql.Tx) error {
		if _, err := tx.ExecContext(ctx, `DELETE FROM daily_metrics WHERE date = ?;`, string(date)); err != nil {
			return errors.Wrap(err, "clear daily")
		}
		for _, row := range daily {
			if _, err := tx.ExecContext(ctx, `INSERT INTO daily_metrics (date, platform, likes, comments, shares, engagement_score)
  VALUES (?, ?, ?, ?, ?, ?);`,
				string(date), string(row.Platform), row.Likes, row.Comments, row.Shares, row.EngagementScore); err != nil {
				return errors.Wrapf(err, "insert daily %s", row.Platform)
			}
		}
		if _, err := tx.ExecContext(ctx, `INSERT INTO daily_snapshots (date, platforms, written_at) VALUES (?, ?, ?)
  ON CONFLICT(date) DO UPDATE SET platforms = excluded.platforms, written_at = excluded.written_at;`,
			string(date), len(daily), stamp); err != nil {
			return errors.Wrap(err, "upsert snapshot")
		}

		if _, err := tx.ExecContext(ctx, `DELETE FROM rolling_averages WHERE run_date = ?;`, string(date)); err != nil {
			return errors.Wrap(err, "clear rolling")
		}
		for i, row := range rolling {
			if _, err := tx.ExecContext(ctx, `INSERT INTO rolling_averages
  (run_date, window_size, seq, platform, date, likes, comments, shares, engagement_score)
  VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?);`,
				string(date), window, i, string(row.Platform), string(row.Date),
				row.Likes, row.Comments, row.Shares, row.EngagementScore); err != nil {
				return errors.Wrapf(err, "insert rolling %d", i)
			}
		}
		return nil
	})
}

// LoadDaily returns the daily rows of date ordered by platform.
func (s *Store) LoadDaily(ctx context.Context, date core.RunDate) ([]core.DailyMetrics, error) {
	var platforms int
	err := s.db.QueryRowContext(ctx, `SELECT platforms FROM daily_snapshots WHERE date = ?;`, string(date)).Scan(&platforms)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, errors.Wrapf(core.ErrNoData, "daily snapshot %s", date)
	}
	if err != nil {
		return nil, errors.Wrap(err, "load snapshot")
	}
	return s.dailyRows(ctx, date)
}

func (s *Store) dailyRows(ctx context.Context, date core.RunDate) ([]core.DailyMetrics, error) {
	rows, err := s.db.QueryContext(ctx, `SELECT platform, likes, comments, shares, engagement_score
  FROM daily_metrics WHERE date = ? ORDER BY platform ASC;`, string(date))
	if err != nil {
		return nil, errors.Wrap(err, "load daily")
	}
	defer rows.Close()

	out := []core.DailyMetrics{}
	for rows.Next() {
		m := core.DailyMetrics{Date: date}
		var platform string
		if err := rows.Scan(&platform, &m.Likes, &m.Comments, &m.Shares, &m.EngagementScore); err != nil {
			return nil, errors.Wrap(err, "scan daily")
		}
		m.Platform = core.Platform(platform)
		out = append(out, m)
	}
	if err := rows.Err(); err != nil {
		return nil, errors.Wrap(err, "iterate daily")
	}
	return out, nil
}

// DailySnapshotsBefore returns up to limit snapshots dated strictly before
// date, oldest first. Missing days are simply absent.
func (s *Store) DailySnapshotsBefore(ctx context.Context, date core.RunDate, limit int) ([]core.DailySnapshot, error) {
	if limit <= 0 {
		return nil, nil
	}
	rows, err := s.db.QueryContext(ctx, `SELECT date FROM daily_snapshots WHERE date < ? ORDER BY date DESC LIMIT ?;`, string(date), limit)
	if err != nil {
		return nil, errors.Wrap(err, "list snapshots")
	}
	var dates []core.RunDate
	for rows.Next() {
		var d string
		if err := rows.Scan(&d); err != nil {
			rows.Close()
			return nil, errors.Wrap(err, "scan snapshot")
		}
		dates = append(dates, core.RunDate(d))
	}
	if err := rows.Err(); err != nil {
		rows.Close()
		return nil, errors.Wrap(err, "iterate snapshots")
	}
	rows.Close()

	out := make([]core.DailySnapshot, 0, len(dates))
	for i := len(dates) - 1; i >= 0; i-- {
		daily, err := s.dailyRows(ctx, dates[i])
		if err != nil {
			return nil, err
		}
		out = append(out, core.DailySnapshot{Date: dates[i], Rows: daily})
	}
	return out, nil
}

// LoadRolling returns the rolling rows computed on runDate and the window
// used. core.ErrNoData is returned when none were stored.
func (s *Store) LoadRolling(ctx context.Context, runDate core.RunDate) (int, []core.RollingAverage, error) {
	rows, err := s.db.QueryContext(ctx, `SELECT window_size, platform, date, likes, comments, shares, engagement_score
  FROM rolling_averages WHERE run_date = ? ORDER BY seq ASC;`, string(runDate))
	if err != nil {
		return 0, nil, errors.Wrap(err, "load rolling")
	}
	defer rows.Close()

	var (
		window int
		out    []core.RollingAverage
	)
	for rows.Next() {
		var (
			r              core.RollingAverage
			platform, date string
		)
		if err := rows.Scan(&window, &platform, &date, &r.Likes, &r.Comments, &r.Shares, &r.EngagementScore); err != nil {
			return 0, nil, errors.Wrap(err, "scan rolling")
		}
		r.Platform = core.Platform(platform)
		r.Date = core.RunDate(date)
		out = append(out, r)
	}
	if err := rows.Err(); err != nil {
		return 0, nil, errors.Wrap(err, "iterate rolling")
	}
	if len(out) == 0 {
		return 0, nil, errors.Wrapf(core.ErrNoData, "rolling averages %s", runDate)
	}
	return window, out, nil
}
