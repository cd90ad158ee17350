package normalize

import (
	"fmt"
	"os"
	"strings"

	"gopkg.in/yaml.v3"

	"github.com/you/social-pulse/internal/core"
)

// Mapping is the declarative field table for one source. Each unified field
// lists candidate dot-notation paths into the raw record; the first present
// path wins.
type Mapping struct {
	Platform core.Platform `yaml:"-"`
	PostID   []string      `yaml:"post_id"`
	Content  []string      `yaml:"content"`
	AuthorID []string      `yaml:"author_id"`
	PostedAt []string      `yaml:"posted_at"`
	Likes    []string      `yaml:"likes"`
	Comments []string      `yaml:"comments"`
	Shares   []string      `yaml:"shares"`
}

// TwitterMapping maps the v2 recent-search tweet object.
var TwitterMapping = Mapping{
	Platform: core.PlatformTwitter,
	PostID:   []string{"id"},
	Content:  []string{"text"},
	AuthorID: []string{"author_id"},
	PostedAt: []string{"created_at"},
	Likes:    []string{"public_metrics.like_count"},
	Comments: []string{"public_metrics.reply_count"},
	Shares:   []string{"public_metrics.retweet_count"},
}

// YouTubeMapping accepts both the flattened acquisition shape and a raw Data
// API video resource.
var YouTubeMapping = Mapping{
	Platform: core.PlatformYouTube,
	PostID:   []string{"post_id", "id"},
	Content:  []string{"content", "snippet.title"},
	AuthorID: []string{"author_id", "snippet.channelId"},
	PostedAt: []string{"posted_at", "snippet.publishedAt"},
	Likes:    []string{"likes", "statistics.likeCount"},
	Comments: []string{"comments", "statistics.commentCount"},
	Shares:   []string{"shares"},
}

// Registry selects a mapping by platform tag.
type Registry map[core.Platform]Mapping

// DefaultRegistry returns the built-in mappings.
func DefaultRegistry() Registry {
	return Registry{
		core.PlatformTwitter: TwitterMapping,
		core.PlatformYouTube: YouTubeMapping,
	}
}

// Platforms lists the registered platforms sorted by name.
func (r Registry) Platforms() []core.Platform {
	out := make([]core.Platform, 0, len(r))
	for p := range r {
		out = append(out, p)
	}
	return core.SortPlatforms(out)
}

type mappingFile struct {
	Sources map[string]Mapping `yaml:"sources"`
}

// LoadMappingsFile merges source tables declared in a YAML file into r. A
// table for an already registered platform replaces it.
func (r Registry) LoadMappingsFile(path string) error {
	data, err := os.ReadFile(path)
	if err != nil {
		return fmt.Errorf("normalize: read mappings: %w", err)
	}
	return r.LoadMappings(data)
}

// LoadMappings merges YAML source tables into r.
func (r Registry) LoadMappings(data []byte) error {
	var file mappingFile
	if err := yaml.Unmarshal(data, &file); err != nil {
		return fmt.Errorf("normalize: parse mappings: %w", err)
	}
	for name, m := range file.Sources {
		platform := core.Platform(strings.ToLower(strings.TrimSpace(name)))
		if platform == "" {
			return fmt.Errorf("normalize: mapping with empty source name")
		}
		if len(m.PostID) == 0 {
			return fmt.Errorf("normalize: mapping %q has no post_id path", platform)
		}
		m.Platform = platform
		r[platform] = m
	}
	return nil
}
