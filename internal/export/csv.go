// Package export writes analytics outputs as CSV files named after the run
// date, one file per output object.
package export

import (
	"encoding/csv"
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"time"

	"github.com/pkg/errors"

	"github.com/you/social-pulse/internal/core"
)

var (
	dailyHeader   = []string{"date", "platform", "likes", "comments", "shares", "engagement_score"}
	rollingHeader = []string{"platform", "date", "likes", "comments", "shares", "engagement_score"}
	rankedHeader  = []string{"rank", "post_id", "platform", "content", "author_id", "posted_at", "likes", "comments", "shares", "engagement_score"}
)

type Writer struct {
	Dir string
}

func NewWriter(dir string) *Writer {
	return &Writer{Dir: dir}
}

func DailyFileName(date core.RunDate) string {
	return fmt.Sprintf("daily_metrics_%s.csv", date)
}

func RollingFileName(date core.RunDate, window int) string {
	return fmt.Sprintf("ma%d_metrics_%s.csv", window, date)
}

func OverallFileName(date core.RunDate, top int) string {
	return fmt.Sprintf("top%d_posts_overall_%s.csv", top, date)
}

func ByPlatformFileName(date core.RunDate, top int) string {
	return fmt.Sprintf("top%d_posts_by_platform_%s.csv", top, date)
}

// WriteDaily writes daily_metrics_<date>.csv.
func (w *Writer) WriteDaily(date core.RunDate, rows []core.DailyMetrics) (string, error) {
	paths, err := w.Begin().Daily(date, rows).Commit()
	if err != nil {
		return "", err
	}
	return paths[0], nil
}

// WriteRolling writes ma<window>_metrics_<date>.csv.
func (w *Writer) WriteRolling(date core.RunDate, window int, rows []core.RollingAverage) (string, error) {
	paths, err := w.Begin().Rolling(date, window, rows).Commit()
	if err != nil {
		return "", err
	}
	return paths[0], nil
}

// WriteRanking writes the overall and per-platform top lists.
func (w *Writer) WriteRanking(r core.Ranking, topOverall, topPerPlatform int) ([]string, error) {
	return w.Begin().Ranking(r, topOverall, topPerPlatform).Commit()
}

// Begin starts a set of files that become visible together on Commit.
func (w *Writer) Begin() *Batch {
	return &Batch{dir: w.Dir}
}

type staged struct {
	tmp  string
	path string
}

// Batch renders files to temporaries as they are added. The first error
// sticks: later adds are ignored and Commit returns it after cleaning up.
type Batch struct {
	dir   string
	files []staged
	err   error
}

func (b *Batch) Daily(date core.RunDate, rows []core.DailyMetrics) *Batch {
	records := [][]string{dailyHeader}
	for _, r := range rows {
		records = append(records, []string{
			string(r.Date), string(r.Platform),
			itoa(r.Likes), itoa(r.Comments), itoa(r.Shares), itoa(r.EngagementScore),
		})
	}
	return b.add(DailyFileName(date), records)
}

func (b *Batch) Rolling(date core.RunDate, window int, rows []core.RollingAverage) *Batch {
	records := [][]string{rollingHeader}
	for _, r := range rows {
		records = append(records, []string{
			string(r.Platform), string(r.Date),
			ftoa(r.Likes), ftoa(r.Comments), ftoa(r.Shares), ftoa(r.EngagementScore),
		})
	}
	return b.add(RollingFileName(date, window), records)
}

// Ranking adds the overall list and the per-platform list. The per-platform
// file lists platforms in name order, each in rank order.
func (b *Batch) Ranking(r core.Ranking, topOverall, topPerPlatform int) *Batch {
	overall := [][]string{rankedHeader}
	for _, rp := range r.Overall {
		overall = append(overall, rankedRecord(rp))
	}
	byPlatform := [][]string{rankedHeader}
	for _, top := range r.ByPlatform {
		for _, rp := range top.Posts {
			byPlatform = append(byPlatform, rankedRecord(rp))
		}
	}
	return b.add(OverallFileName(r.RunDate, topOverall), overall).
		add(ByPlatformFileName(r.RunDate, topPerPlatform), byPlatform)
}

func rankedRecord(rp core.RankedPost) []string {
	p := rp.Post
	return []string{
		strconv.Itoa(rp.Rank), p.PostID, string(p.Platform),
		deref(p.Content), deref(p.AuthorID), formatTime(p.PostedAt),
		itoa(p.Likes), itoa(p.Comments), itoa(p.Shares), itoa(rp.EngagementScore),
	}
}

func (b *Batch) add(name string, records [][]string) *Batch {
	if b.err != nil {
		return b
	}
	if err := os.MkdirAll(b.dir, 0o755); err != nil {
		b.err = errors.Wrap(err, "create export dir")
		return b
	}
	tmp, err := os.CreateTemp(b.dir, "."+name+".*")
	if err != nil {
		b.err = errors.Wrap(err, "create temp file")
		return b
	}
	b.files = append(b.files, staged{tmp: tmp.Name(), path: filepath.Join(b.dir, name)})

	cw := csv.NewWriter(tmp)
	if err := cw.WriteAll(records); err != nil {
		_ = tmp.Close()
		b.err = errors.Wrapf(err, "write %s", name)
		return b
	}
	if err := tmp.Close(); err != nil {
		b.err = errors.Wrapf(err, "close %s", name)
	}
	return b
}

// Abort drops every staged file.
func (b *Batch) Abort() {
	for _, f := range b.files {
		_ = os.Remove(f.tmp)
	}
	b.files = nil
}

// Commit moves every staged file into place and returns the final paths.
// Files replaced by the batch are kept aside until all renames succeed; on
// failure the new files are removed and the previous ones restored.
func (b *Batch) Commit() ([]string, error) {
	defer b.Abort()
	if b.err != nil {
		return nil, b.err
	}

	var (
		done    []staged
		backups = make(map[string]string)
	)
	rollback := func() {
		for _, f := range done {
			_ = os.Remove(f.path)
			if prev, ok := backups[f.path]; ok {
				_ = os.Rename(prev, f.path)
			}
		}
	}
	for _, f := range b.files {
		if _, err := os.Lstat(f.path); err == nil {
			prev := filepath.Join(b.dir, "."+filepath.Base(f.path)+".prev")
			if err := os.Rename(f.path, prev); err != nil {
				rollback()
				return nil, errors.Wrapf(err, "set aside %s", filepath.Base(f.path))
			}
			backups[f.path] = prev
		}
		if err := os.Rename(f.tmp, f.path); err != nil {
			if prev, ok := backups[f.path]; ok {
				_ = os.Rename(prev, f.path)
			}
			rollback()
			return nil, errors.Wrapf(err, "rename %s", filepath.Base(f.path))
		}
		done = append(done, f)
	}
	for _, prev := range backups {
		_ = os.RemoveAll(prev)
	}

	paths := make([]string, len(done))
	for i, f := range done {
		paths[i] = f.path
	}
	return paths, nil
}

func itoa(n int64) string { return strconv.FormatInt(n, 10) }

func ftoa(f float64) string { return strconv.FormatFloat(f, 'f', -1, 64) }

func deref(s *string) string {
	if s == nil {
		return ""
	}
	return *s
}

func formatTime(t *time.Time) string {
	if t == nil {
		return ""
	}
	return t.UTC().Format(time.RFC3339)
}
