package core

import (
	"fmt"
	"strings"
	"time"
)

const runDateLayout = "2006-01-02"

// RunDate is the logical date a batch represents, formatted YYYY-MM-DD so
// that lexical and chronological order agree.
type RunDate string

// ParseRunDate validates and canonicalizes a YYYY-MM-DD string.
func ParseRunDate(raw string) (RunDate, error) {
	raw = strings.TrimSpace(raw)
	t, err := time.Parse(runDateLayout, raw)
	if err != nil {
		return "", fmt.Errorf("invalid run date %q: %w", raw, err)
	}
	return RunDate(t.Format(runDateLayout)), nil
}

// RunDateOf returns the UTC run date of t.
func RunDateOf(t time.Time) RunDate {
	return RunDate(t.UTC().Format(runDateLayout))
}

func (d RunDate) String() string { return string(d) }

// Time returns midnight UTC of the run date.
func (d RunDate) Time() time.Time {
	t, _ := time.Parse(runDateLayout, string(d))
	return t
}
