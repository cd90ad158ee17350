package store

import (
	"context"
	"database/sql"
	"fmt"
	"strings"
	"time"

	"github.com/pkg/errors"

	"github.com/you/social-pulse/internal/core"
	"github.com/you/social-pulse/internal/httpapi"
)

// DatasetInfo describes a persisted unified dataset.
type DatasetInfo struct {
	RunDate   core.RunDate
	Rows      int
	WrittenAt time.Time
}

// WriteUnified replaces the dataset of runDate with posts in a single
// transaction. Readers see either the previous dataset or the new one.
func (s *Store) WriteUnified(ctx context.Context, runDate core.RunDate, posts []core.Post) (DatasetInfo, error) {
	stamp := s.stamp()
	err := s.inTx(ctx, "write unified", func(tx *sql.Tx) error {
		if _, err := tx.ExecContext(ctx, `DELETE FROM unified_posts WHERE run_date = ?;`, string(runDate)); err != nil {
			return errors.Wrap(err, "clear dataset")
		}
		stmt, err := tx.PrepareContext(ctx, `INSERT INTO unified_posts
  (run_date, seq, post_id, platform, content, author_id, posted_at, likes, comments, shares)
  VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?);`)
		if err != nil {
			return errors.Wrap(err, "prepare insert")
		}
		defer stmt.Close()

		for i, p := range posts {
			if _, err := stmt.ExecContext(ctx,
				string(runDate), i, p.PostID, string(p.Platform),
				nullString(p.Content), nullString(p.AuthorID), nullTime(p.PostedAt),
				p.Likes, p.Comments, p.Shares,
			); err != nil {
				return errors.Wrapf(err, "insert post %d", i)
			}
		}

		if _, err := tx.ExecContext(ctx, `INSERT INTO unified_datasets (run_date, rows, written_at) VALUES (?, ?, ?)
  ON CONFLICT(run_date) DO UPDATE SET rows = excluded.rows, written_at = excluded.written_at;`,
			string(runDate), len(posts), stamp); err != nil {
			return errors.Wrap(err, "upsert manifest")
		}
		return nil
	})
	if err != nil {
		return DatasetInfo{}, err
	}
	written, _ := time.Parse(time.RFC3339Nano, stamp)
	return DatasetInfo{RunDate: runDate, Rows: len(posts), WrittenAt: written}, nil
}

// Dataset returns the manifest entry of runDate, or core.ErrNoData.
func (s *Store) Dataset(ctx context.Context, runDate core.RunDate) (DatasetInfo, error) {
	var (
		info  = DatasetInfo{RunDate: runDate}
		stamp string
	)
	err := s.db.QueryRowContext(ctx, `SELECT rows, written_at FROM unified_datasets WHERE run_date = ?;`, string(runDate)).
		Scan(&info.Rows, &stamp)
	if errors.Is(err, sql.ErrNoRows) {
		return DatasetInfo{}, errors.Wrapf(core.ErrNoData, "unified dataset %s", runDate)
	}
	if err != nil {
		return DatasetInfo{}, errors.Wrap(err, "load manifest")
	}
	info.WrittenAt, _ = time.Parse(time.RFC3339Nano, stamp)
	return info, nil
}

// LoadUnified returns the dataset of runDate in write order.
func (s *Store) LoadUnified(ctx context.Context, runDate core.RunDate) ([]core.Post, error) {
	if _, err := s.Dataset(ctx, runDate); err != nil {
		return nil, err
	}
	rows, err := s.db.QueryContext(ctx, `SELECT post_id, platform, content, author_id, posted_at, likes, comments, shares
  FROM unified_posts WHERE run_date = ? ORDER BY seq ASC;`, string(runDate))
	if err != nil {
		return nil, errors.Wrap(err, "load unified")
	}
	defer rows.Close()

	out := []core.Post{}
	for rows.Next() {
		p, err := scanPost(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, p)
	}
	if err := rows.Err(); err != nil {
		return nil, errors.Wrap(err, "iterate unified")
	}
	return out, nil
}

type scanner interface {
	Scan(dest ...any) error
}

func scanPost(row scanner) (core.Post, error) {
	var (
		p                         core.Post
		platform                  string
		content, author, postedAt sql.NullString
	)
	if err := row.Scan(&p.PostID, &platform, &content, &author, &postedAt, &p.Likes, &p.Comments, &p.Shares); err != nil {
		return core.Post{}, errors.Wrap(err, "scan post")
	}
	p.Platform = core.Platform(platform)
	p.Content = stringPtr(content)
	p.AuthorID = stringPtr(author)
	p.PostedAt = timePtr(postedAt)
	return p, nil
}

func (s *Store) CountPosts(ctx context.Context, filters httpapi.Filters) (int64, error) {
	query, args := buildPostQuery(filters, true)
	var n int64
	if err := s.db.QueryRowContext(ctx, query, args...).Scan(&n); err != nil {
		return 0, errors.Wrap(err, "count")
	}
	return n, nil
}

func (s *Store) ListPosts(ctx context.Context, filters httpapi.Filters) ([]core.Post, error) {
	query, args := buildPostQuery(filters, false)
	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, errors.Wrap(err, "list posts")
	}
	defer rows.Close()

	var out []core.Post
	for rows.Next() {
		p, err := scanPost(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, p)
	}
	if err := rows.Err(); err != nil {
		return nil, errors.Wrap(err, "iterate posts")
	}
	return out, nil
}

func buildPostQuery(filters httpapi.Filters, count bool) (string, []any) {
	var builder strings.Builder
	if count {
		builder.WriteString("SELECT COUNT(*) FROM unified_posts")
	} else {
		builder.WriteString("SELECT post_id, platform, content, author_id, posted_at, likes, comments, shares FROM unified_posts")
	}

	var (
		conditions []string
		args       []any
	)

	if filters.RunDate != "" {
		conditions = append(conditions, "run_date = ?")
		args = append(args, string(filters.RunDate))
	}

	if len(filters.Platforms) > 0 {
		placeholders := make([]string, 0, len(filters.Platforms))
		for _, p := range filters.Platforms {
			placeholders = append(placeholders, "?")
			args = append(args, p)
		}
		conditions = append(conditions, fmt.Sprintf("platform IN (%s)", strings.Join(placeholders, ",")))
	}

	if len(filters.Authors) > 0 {
		placeholders := make([]string, 0, len(filters.Authors))
		for _, a := range filters.Authors {
			placeholders = append(placeholders, "?")
			args = append(args, a)
		}
		conditions = append(conditions, fmt.Sprintf("author_id IN (%s)", strings.Join(placeholders, ",")))
	}

	if filters.Since != nil {
		conditions = append(conditions, "posted_at >= ?")
		args = append(args, filters.Since.UTC().Format(time.RFC3339Nano))
	}

	if len(conditions) > 0 {
		builder.WriteString(" WHERE ")
		builder.WriteString(strings.Join(conditions, " AND "))
	}

	if !count {
		order := "DESC"
		if filters.Order == httpapi.OrderAsc {
			order = "ASC"
		}
		builder.WriteString(" ORDER BY run_date ")
		builder.WriteString(order)
		builder.WriteString(", posted_at ")
		builder.WriteString(order)
		builder.WriteString(", seq ASC")
		limit := filters.Limit
		if limit <= 0 {
			limit = defaultListLimit
		}
		builder.WriteString(" LIMIT ?")
		args = append(args, limit)
	}

	builder.WriteString(";")
	return builder.String(), args
}
