package normalize

import (
	"encoding/json"
	"fmt"
	"log/slog"
	"regexp"
	"slices"
	"strings"
	"unicode/utf8"

	"github.com/you/social-pulse/internal/core"
)

const dropSampleMaxLen = 96

var secretPatterns = []struct {
	re   *regexp.Regexp
	repl string
}{
	{regexp.MustCompile(`(?i)bearer\s+[^\s"]+`), "Bearer [REDACTED]"},
	{regexp.MustCompile(`[A-Za-z0-9+/_=\-]{32,}`), "[REDACTED]"},
}

// dropLogger keeps a count and the first offending record per reason so a
// bad feed produces one log line per reason instead of one per record.
type dropLogger struct {
	source  core.Platform
	counts  map[string]int
	samples map[string]string
}

func newDropLogger(source core.Platform) *dropLogger {
	return &dropLogger{
		source:  source,
		counts:  make(map[string]int),
		samples: make(map[string]string),
	}
}

func (d *dropLogger) note(reason string, raw any) {
	if _, seen := d.samples[reason]; !seen {
		d.samples[reason] = summarizeRecord(raw)
	}
	d.counts[reason]++
}

func (d *dropLogger) flush(logger *slog.Logger) {
	if logger != nil {
		reasons := make([]string, 0, len(d.counts))
		for r := range d.counts {
			reasons = append(reasons, r)
		}
		slices.Sort(reasons)
		for _, r := range reasons {
			logger.Info("normalize: dropped_"+r,
				"source", string(d.source),
				"total", d.counts[r],
				"sample", d.samples[r],
			)
		}
	}
	clear(d.counts)
	clear(d.samples)
}

func summarizeRecord(raw any) string {
	s := fmt.Sprintf("%v", raw)
	if data, err := json.Marshal(raw); err == nil {
		s = string(data)
	}
	return sanitizeAndTruncate(s, dropSampleMaxLen)
}

// sanitizeAndTruncate collapses whitespace, masks anything that looks like a
// credential and cuts s to at most limit bytes with a trailing "...". Cuts
// land on a rune boundary.
func sanitizeAndTruncate(s string, limit int) string {
	s = strings.Join(strings.Fields(s), " ")
	for _, p := range secretPatterns {
		s = p.re.ReplaceAllString(s, p.repl)
	}
	if limit <= 0 || len(s) <= limit {
		return s
	}
	if limit <= 3 {
		return s[:runeFloor(s, limit)]
	}
	return s[:runeFloor(s, limit-3)] + "..."
}

// runeFloor moves i back to the start of the rune containing s[i].
func runeFloor(s string, i int) int {
	for i > 0 && !utf8.RuneStart(s[i]) {
		i--
	}
	return i
}
