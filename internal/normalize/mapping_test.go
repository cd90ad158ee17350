package normalize

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/you/social-pulse/internal/core"
)

const redditMappings = `
sources:
  Reddit:
    post_id: [name, id]
    content: [title]
    author_id: [author_fullname]
    posted_at: [created_utc]
    likes: [ups]
    comments: [num_comments]
    shares: [num_crossposts]
`

func TestLoadMappingsAddsSource(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "mappings.yaml")
	if err := os.WriteFile(path, []byte(redditMappings), 0o600); err != nil {
		t.Fatalf("write mappings: %v", err)
	}

	reg := DefaultRegistry()
	if err := reg.LoadMappingsFile(path); err != nil {
		t.Fatalf("load mappings: %v", err)
	}
	platforms := reg.Platforms()
	if len(platforms) != 3 || platforms[0] != "reddit" {
		t.Fatalf("unexpected platforms: %v", platforms)
	}

	raw := []any{map[string]any{
		"name":           "t3_abc",
		"title":          "derby day",
		"created_utc":    float64(1756200000),
		"ups":            float64(55),
		"num_comments":   float64(8),
		"num_crossposts": float64(1),
	}}
	batch, err := New(reg, nil).Normalize("reddit", raw)
	if err != nil {
		t.Fatalf("normalize: %v", err)
	}
	p := batch.Posts[0]
	if p.Platform != "reddit" || p.PostID != "t3_abc" || p.EngagementScore() != 64 {
		t.Fatalf("unexpected post: %+v", p)
	}
	if p.PostedAt == nil || p.PostedAt.Unix() != 1756200000 {
		t.Fatalf("unexpected posted_at: %v", p.PostedAt)
	}
}

func TestLoadMappingsReplacesBuiltin(t *testing.T) {
	reg := DefaultRegistry()
	err := reg.LoadMappings([]byte(`
sources:
  twitter:
    post_id: [tweet_id]
    likes: [favs]
`))
	if err != nil {
		t.Fatalf("load mappings: %v", err)
	}
	batch, err := New(reg, nil).Normalize(core.PlatformTwitter, []any{map[string]any{"tweet_id": "9", "favs": float64(2)}})
	if err != nil {
		t.Fatalf("normalize: %v", err)
	}
	if batch.Posts[0].PostID != "9" || batch.Posts[0].Likes != 2 {
		t.Fatalf("unexpected post: %+v", batch.Posts[0])
	}
}

func TestLoadMappingsRejectsMissingID(t *testing.T) {
	reg := DefaultRegistry()
	if err := reg.LoadMappings([]byte("sources:\n  mastodon:\n    content: [content]\n")); err == nil {
		t.Fatalf("expected error for mapping without post_id")
	}
}
