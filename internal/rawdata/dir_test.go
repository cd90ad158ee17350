package rawdata

import (
	"encoding/json"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/you/social-pulse/internal/core"
)

func TestLoadMergesFilesInNameOrder(t *testing.T) {
	root := t.TempDir()
	dir := filepath.Join(root, "twitter", "2025-08-26")
	if err := os.MkdirAll(dir, 0o755); err != nil {
		t.Fatalf("mkdir: %v", err)
	}
	files := map[string]string{
		"b.json": `[{"id":"2"},{"id":"3"}]`,
		"a.json": `{"id":"1","public_metrics":{"like_count":12345678901}}`,
		"c.json": `{not json`,
		"d.txt":  `[{"id":"ignored"}]`,
		"e.json": ``,
		"f.json": `"just a string"`,
	}
	for name, body := range files {
		if err := os.WriteFile(filepath.Join(dir, name), []byte(body), 0o644); err != nil {
			t.Fatalf("write %s: %v", name, err)
		}
	}

	records, err := New(root).Load(core.PlatformTwitter, "2025-08-26")
	if err != nil {
		t.Fatalf("load: %v", err)
	}
	if len(records) != 3 {
		t.Fatalf("expected 3 records, got %d: %v", len(records), records)
	}
	first := records[0].(map[string]any)
	if first["id"] != "1" {
		t.Fatalf("expected a.json first, got %v", first)
	}
	likes := first["public_metrics"].(map[string]any)["like_count"]
	if n, ok := likes.(json.Number); !ok || n.String() != "12345678901" {
		t.Fatalf("expected json.Number, got %T %v", likes, likes)
	}
}

func TestLoadMissingDirectory(t *testing.T) {
	records, err := New(t.TempDir()).Load(core.PlatformYouTube, "2025-08-26")
	if err != nil {
		t.Fatalf("load: %v", err)
	}
	if len(records) != 0 {
		t.Fatalf("expected no records, got %v", records)
	}
}

func TestLoadFailsOnUnreadableFile(t *testing.T) {
	root := t.TempDir()
	dir := filepath.Join(root, "twitter", "2025-08-26")
	// a directory matching *.json cannot be read as a file
	if err := os.MkdirAll(filepath.Join(dir, "broken.json"), 0o755); err != nil {
		t.Fatalf("mkdir: %v", err)
	}
	if err := os.WriteFile(filepath.Join(dir, "a.json"), []byte(`[{"id":"1"}]`), 0o644); err != nil {
		t.Fatalf("write: %v", err)
	}

	d := New(root)
	if _, err := d.Load(core.PlatformTwitter, "2025-08-26"); err == nil || !strings.Contains(err.Error(), "broken.json") {
		t.Fatalf("expected read error naming broken.json, got %v", err)
	}
	if _, err := d.LoadAll([]core.Platform{core.PlatformTwitter}, "2025-08-26"); err == nil {
		t.Fatalf("expected LoadAll to propagate the read error")
	}
}

func TestSaveThenLoad(t *testing.T) {
	d := New(t.TempDir())
	d.now = func() time.Time { return time.Date(2025, 8, 26, 14, 3, 9, 0, time.UTC) }

	path, err := d.Save(core.PlatformTwitter, "2025-08-26", []any{map[string]any{"id": "42"}})
	if err != nil {
		t.Fatalf("save: %v", err)
	}
	if !strings.HasSuffix(path, filepath.Join("twitter", "2025-08-26", "tweets_140309.json")) {
		t.Fatalf("unexpected path %s", path)
	}

	all, err := d.LoadAll([]core.Platform{core.PlatformTwitter, core.PlatformYouTube}, "2025-08-26")
	if err != nil {
		t.Fatalf("load all: %v", err)
	}
	if len(all[core.PlatformTwitter]) != 1 || len(all[core.PlatformYouTube]) != 0 {
		t.Fatalf("unexpected records: %v", all)
	}
}
