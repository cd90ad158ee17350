package store

import (
	"context"
	"database/sql"
	"sort"

	"github.com/pkg/errors"

	"github.com/you/social-pulse/internal/core"
)

const (
	listOverall  = "overall"
	listPlatform = "platform"
)

// SaveRanking replaces the stored top lists of r.RunDate.
func (s *Store) SaveRanking(ctx context.Context, r core.Ranking) error {
	return s.inTx(ctx, "save ranking", func(tx *sql.Tx) error {
		if _, err := tx.ExecContext(ctx, `DELETE FROM top_posts WHERE run_date = ?;`, string(r.RunDate)); err != nil {
			return errors.Wrap(err, "clear ranking")
		}
		for _, rp := range r.Overall {
			if err := insertRanked(ctx, tx, r.RunDate, listOverall, "", rp); err != nil {
				return err
			}
		}
		for _, top := range r.ByPlatform {
			for _, rp := range top.Posts {
				if err := insertRanked(ctx, tx, r.RunDate, listPlatform, string(top.Platform), rp); err != nil {
					return err
				}
			}
		}
		return nil
	})
}

func insertRanked(ctx context.Context, tx *sql.Tx, date core.RunDate, list, platform string, rp core.RankedPost) error {
	p := rp.Post
	_, err := tx.ExecContext(ctx, `INSERT INTO top_posts
  (run_date, list, platform, rank, post_id, content, author_id, posted_at, likes, comments, shares, engagement_score)
  VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?);`,
		string(date), list, platformKey(list, platform, p), rp.Rank, p.PostID,
		nullString(p.Content), nullString(p.AuthorID), nullTime(p.PostedAt),
		p.Likes, p.Comments, p.Shares, rp.EngagementScore)
	return errors.Wrapf(err, "insert %s rank %d", list, rp.Rank)
}

// The overall list keys rows by the post's own platform column too, so the
// primary key stays unique through the rank.
func platformKey(list, platform string, p core.Post) string {
	if list == listOverall {
		return string(p.Platform)
	}
	return platform
}

// LoadRanking returns the stored top lists of runDate.
func (s *Store) LoadRanking(ctx context.Context, runDate core.RunDate) (core.Ranking, error) {
	rows, err := s.db.QueryContext(ctx, `SELECT list, platform, rank, post_id, content, author_id, posted_at, likes, comments, shares, engagement_score
  FROM top_posts WHERE run_date = ? ORDER BY list ASC, platform ASC, rank ASC;`, string(runDate))
	if err != nil {
		return core.Ranking{}, errors.Wrap(err, "load ranking")
	}
	defer rows.Close()

	out := core.Ranking{RunDate: runDate}
	var overall []core.RankedPost
	index := map[core.Platform]int{}
	found := false
	for rows.Next() {
		found = true
		var (
			list, platform            string
			rp                        core.RankedPost
			content, author, postedAt sql.NullString
		)
		if err := rows.Scan(&list, &platform, &rp.Rank, &rp.Post.PostID, &content, &author, &postedAt,
			&rp.Post.Likes, &rp.Post.Comments, &rp.Post.Shares, &rp.EngagementScore); err != nil {
			return core.Ranking{}, errors.Wrap(err, "scan ranked")
		}
		rp.Post.Platform = core.Platform(platform)
		rp.Post.Content = stringPtr(content)
		rp.Post.AuthorID = stringPtr(author)
		rp.Post.PostedAt = timePtr(postedAt)

		if list == listOverall {
			overall = append(overall, rp)
			continue
		}
		pl := core.Platform(platform)
		i, ok := index[pl]
		if !ok {
			i = len(out.ByPlatform)
			index[pl] = i
			out.ByPlatform = append(out.ByPlatform, core.PlatformTop{Platform: pl})
		}
		out.ByPlatform[i].Posts = append(out.ByPlatform[i].Posts, rp)
	}
	if err := rows.Err(); err != nil {
		return core.Ranking{}, errors.Wrap(err, "iterate ranking")
	}
	if !found {
		return core.Ranking{}, errors.Wrapf(core.ErrNoData, "ranking %s", runDate)
	}
	sortByRank(overall)
	out.Overall = overall
	return out, nil
}

func sortByRank(list []core.RankedPost) {
	sort.Slice(list, func(i, j int) bool { return list[i].Rank < list[j].Rank })
}
