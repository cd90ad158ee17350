// Package analytics reduces unified datasets into daily totals, rolling
// averages and top-post rankings.
package analytics

import (
	"sort"

	"github.com/you/social-pulse/internal/core"
)

// DailyTotals sums the counters of posts per platform. Rows are ordered by
// platform name so repeated runs produce identical output.
func DailyTotals(date core.RunDate, posts []core.Post) []core.DailyMetrics {
	byPlatform := make(map[core.Platform]*core.DailyMetrics)
	var platforms []core.Platform
	for _, p := range posts {
		row, ok := byPlatform[p.Platform]
		if !ok {
			row = &core.DailyMetrics{Date: date, Platform: p.Platform}
			byPlatform[p.Platform] = row
			platforms = append(platforms, p.Platform)
		}
		row.Likes += p.Likes
		row.Comments += p.Comments
		row.Shares += p.Shares
		row.EngagementScore += p.EngagementScore()
	}

	out := make([]core.DailyMetrics, 0, len(platforms))
	for _, pl := range core.SortPlatforms(platforms) {
		out = append(out, *byPlatform[pl])
	}
	return out
}

// RollingMeans computes per-platform trailing means over the given snapshots.
// Each output row averages the current observation and up to window-1
// earlier observations of the same platform, so early rows use a partial
// average. Fewer than window snapshots yields core.ErrInsufficientHistory.
func RollingMeans(snapshots []core.DailySnapshot, window int) ([]core.RollingAverage, error) {
	if window < 1 || len(snapshots) < window {
		return nil, core.ErrInsufficientHistory
	}

	var rows []core.DailyMetrics
	for _, snap := range snapshots {
		for _, row := range snap.Rows {
			if row.Date == "" {
				row.Date = snap.Date
			}
			rows = append(rows, row)
		}
	}
	sort.SliceStable(rows, func(i, j int) bool {
		if rows[i].Platform != rows[j].Platform {
			return rows[i].Platform < rows[j].Platform
		}
		return rows[i].Date < rows[j].Date
	})

	out := make([]core.RollingAverage, 0, len(rows))
	start := 0
	for i, row := range rows {
		if i > 0 && row.Platform != rows[i-1].Platform {
			start = i
		}
		lo := i - window + 1
		if lo < start {
			lo = start
		}
		var likes, comments, shares, score int64
		for _, r := range rows[lo : i+1] {
			likes += r.Likes
			comments += r.Comments
			shares += r.Shares
			score += r.EngagementScore
		}
		n := float64(i + 1 - lo)
		out = append(out, core.RollingAverage{
			Platform:        row.Platform,
			Date:            row.Date,
			Likes:           float64(likes) / n,
			Comments:        float64(comments) / n,
			Shares:          float64(shares) / n,
			EngagementScore: float64(score) / n,
		})
	}
	return out, nil
}
