package analytics

import (
	"sort"

	"github.com/you/social-pulse/internal/core"
)

// rankedBefore orders by engagement, then likes, then posted_at, all
// descending. A missing posted_at sorts after any timestamp.
func rankedBefore(a, b core.Post) bool {
	if ea, eb := a.EngagementScore(), b.EngagementScore(); ea != eb {
		return ea > eb
	}
	if a.Likes != b.Likes {
		return a.Likes > b.Likes
	}
	switch {
	case a.PostedAt == nil:
		return false
	case b.PostedAt == nil:
		return true
	default:
		return a.PostedAt.After(*b.PostedAt)
	}
}

// SortForRanking returns a copy of posts in ranking order. Exact ties keep
// their input order.
func SortForRanking(posts []core.Post) []core.Post {
	sorted := append([]core.Post(nil), posts...)
	sort.SliceStable(sorted, func(i, j int) bool { return rankedBefore(sorted[i], sorted[j]) })
	return sorted
}

// RankPosts sorts posts once and takes the overall top list and per-platform
// top lists as prefixes of that single order.
func RankPosts(date core.RunDate, posts []core.Post, topOverall, topPerPlatform int) core.Ranking {
	sorted := SortForRanking(posts)
	out := core.Ranking{RunDate: date, Overall: []core.RankedPost{}, ByPlatform: []core.PlatformTop{}}

	for i := 0; i < len(sorted) && i < topOverall; i++ {
		out.Overall = append(out.Overall, ranked(i+1, sorted[i]))
	}

	lists := make(map[core.Platform][]core.RankedPost)
	var platforms []core.Platform
	for _, p := range sorted {
		list, seen := lists[p.Platform]
		if !seen {
			platforms = append(platforms, p.Platform)
			list = []core.RankedPost{}
		}
		if len(list) < topPerPlatform {
			list = append(list, ranked(len(list)+1, p))
		}
		lists[p.Platform] = list
	}
	for _, pl := range core.SortPlatforms(platforms) {
		out.ByPlatform = append(out.ByPlatform, core.PlatformTop{Platform: pl, Posts: lists[pl]})
	}
	return out
}

func ranked(rank int, p core.Post) core.RankedPost {
	return core.RankedPost{Rank: rank, Post: p, EngagementScore: p.EngagementScore()}
}
