// Package normalize maps raw, source-specific records into core.Post values.
package normalize

import (
	"context"
	"fmt"
	"log/slog"

	"golang.org/x/sync/errgroup"

	"github.com/you/social-pulse/internal/core"
)

const (
	ReasonMissingID  = "missing_id"
	ReasonNotObject  = "not_object"
	noteBadCounter   = "bad_counter"
	noteClampedCount = "clamped_negative"
)

// Batch is the result of normalizing one or more sources.
type Batch struct {
	Posts       []core.Post
	Seen        int
	Dropped     int
	DropReasons map[string]int
	// Fixed counts counters that were coerced to 0 on kept records.
	Fixed map[string]int
}

func (b *Batch) drop(reason string) {
	b.Dropped++
	if b.DropReasons == nil {
		b.DropReasons = make(map[string]int)
	}
	b.DropReasons[reason]++
}

func (b *Batch) fix(note string) {
	if b.Fixed == nil {
		b.Fixed = make(map[string]int)
	}
	b.Fixed[note]++
}

func (b *Batch) merge(other Batch) {
	b.Posts = append(b.Posts, other.Posts...)
	b.Seen += other.Seen
	b.Dropped += other.Dropped
	for k, v := range other.DropReasons {
		if b.DropReasons == nil {
			b.DropReasons = make(map[string]int)
		}
		b.DropReasons[k] += v
	}
	for k, v := range other.Fixed {
		if b.Fixed == nil {
			b.Fixed = make(map[string]int)
		}
		b.Fixed[k] += v
	}
}

// Normalizer dispatches raw records to the mapping of their source.
type Normalizer struct {
	registry Registry
	logger   *slog.Logger
}

// New returns a Normalizer over registry. A nil logger disables drop
// summaries.
func New(registry Registry, logger *slog.Logger) *Normalizer {
	if registry == nil {
		registry = DefaultRegistry()
	}
	return &Normalizer{registry: registry, logger: logger}
}

// Known reports whether platform has a mapping.
func (n *Normalizer) Known(platform core.Platform) bool {
	_, ok := n.registry[platform]
	return ok
}

// Platforms lists the registered sources.
func (n *Normalizer) Platforms() []core.Platform {
	return n.registry.Platforms()
}

// Normalize maps raw records of one source. Records without an identifier
// are dropped and counted; the batch never fails on a single record.
func (n *Normalizer) Normalize(source core.Platform, raw []any) (Batch, error) {
	mapping, ok := n.registry[source]
	if !ok {
		return Batch{}, fmt.Errorf("normalize %q: %w", source, core.ErrUnknownPlatform)
	}

	drops := newDropLogger(source)
	batch := Batch{Posts: make([]core.Post, 0, len(raw))}
	for _, item := range raw {
		batch.Seen++
		rec, ok := item.(map[string]any)
		if !ok {
			batch.drop(ReasonNotObject)
			drops.note(ReasonNotObject, item)
			continue
		}
		post, notes, ok := mapRecord(mapping, rec)
		if !ok {
			batch.drop(ReasonMissingID)
			drops.note(ReasonMissingID, rec)
			continue
		}
		for _, note := range notes {
			batch.fix(note)
		}
		batch.Posts = append(batch.Posts, post)
	}
	drops.flush(n.logger)
	return batch, nil
}

// NormalizeAll normalizes every source in parallel and concatenates the
// results in platform-name order once all have completed.
func (n *Normalizer) NormalizeAll(ctx context.Context, sources map[core.Platform][]any) (Batch, error) {
	platforms := make([]core.Platform, 0, len(sources))
	for p := range sources {
		platforms = append(platforms, p)
	}
	platforms = core.SortPlatforms(platforms)

	results := make([]Batch, len(platforms))
	g, _ := errgroup.WithContext(ctx)
	for i, platform := range platforms {
		i, platform := i, platform
		g.Go(func() error {
			b, err := n.Normalize(platform, sources[platform])
			if err != nil {
				return err
			}
			results[i] = b
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return Batch{}, err
	}

	var out Batch
	for _, b := range results {
		out.merge(b)
	}
	return out, nil
}

func mapRecord(m Mapping, rec map[string]any) (core.Post, []string, bool) {
	rawID, _ := lookup(rec, m.PostID)
	id := identifier(rawID)
	if id == "" {
		return core.Post{}, nil, false
	}

	post := core.Post{PostID: id, Platform: m.Platform}
	if v, ok := lookup(rec, m.Content); ok {
		post.Content = text(v)
	}
	if v, ok := lookup(rec, m.AuthorID); ok {
		post.AuthorID = text(v)
		if post.AuthorID == nil {
			if s := identifier(v); s != "" {
				post.AuthorID = &s
			}
		}
	}
	if v, ok := lookup(rec, m.PostedAt); ok {
		post.PostedAt = timestamp(v)
	}

	var notes []string
	count := func(paths []string) int64 {
		v, _ := lookup(rec, paths)
		n, ok := counter(v)
		if !ok {
			notes = append(notes, noteBadCounter)
			return 0
		}
		if n < 0 {
			notes = append(notes, noteClampedCount)
			return 0
		}
		return n
	}
	post.Likes = count(m.Likes)
	post.Comments = count(m.Comments)
	post.Shares = count(m.Shares)
	return post, notes, true
}
