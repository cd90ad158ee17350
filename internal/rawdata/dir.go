// Package rawdata reads and writes acquisition output laid out as
// <root>/<platform>/<date>/*.json.
package rawdata

import (
	"bytes"
	"encoding/json"
	"fmt"
	"io"
	"log"
	"os"
	"path/filepath"
	"sort"
	"time"

	"github.com/pkg/errors"

	"github.com/you/social-pulse/internal/core"
)

type Dir struct {
	Root string
	now  func() time.Time
}

func New(root string) *Dir {
	return &Dir{Root: root, now: time.Now}
}

// Path returns the directory holding the files of platform on date.
func (d *Dir) Path(platform core.Platform, date core.RunDate) string {
	return filepath.Join(d.Root, string(platform), string(date))
}

// Load returns every record stored for platform on date. Files are read in
// name order; each holds either an array of records or a single object. A
// file that does not decode is logged and skipped, but a file that cannot be
// read fails the load. A missing directory yields no records.
func (d *Dir) Load(platform core.Platform, date core.RunDate) ([]any, error) {
	dir := d.Path(platform, date)
	matches, err := filepath.Glob(filepath.Join(dir, "*.json"))
	if err != nil {
		return nil, errors.Wrap(err, "list raw files")
	}
	sort.Strings(matches)

	var records []any
	for _, path := range matches {
		data, err := os.ReadFile(path)
		if err != nil {
			return nil, errors.Wrapf(err, "read %s", path)
		}
		got, err := decodeRecords(data)
		if err != nil {
			log.Printf("rawdata: skip %s: %v", path, err)
			continue
		}
		records = append(records, got...)
	}
	return records, nil
}

// LoadAll loads every platform in platforms for date.
func (d *Dir) LoadAll(platforms []core.Platform, date core.RunDate) (map[core.Platform][]any, error) {
	out := make(map[core.Platform][]any, len(platforms))
	for _, p := range platforms {
		records, err := d.Load(p, date)
		if err != nil {
			return nil, errors.Wrapf(err, "load %s", p)
		}
		out[p] = records
	}
	return out, nil
}

func decodeRecords(data []byte) ([]any, error) {
	data = bytes.TrimSpace(data)
	if len(data) == 0 {
		return nil, nil
	}
	dec := json.NewDecoder(bytes.NewReader(data))
	dec.UseNumber()
	var v any
	if err := dec.Decode(&v); err != nil {
		return nil, fmt.Errorf("decode: %w", err)
	}
	if _, err := dec.Token(); err != io.EOF {
		return nil, errors.New("trailing data after JSON value")
	}
	switch typed := v.(type) {
	case []any:
		return typed, nil
	case map[string]any:
		return []any{typed}, nil
	default:
		return nil, fmt.Errorf("unexpected top-level %T", v)
	}
}

// Save writes records as one new file for platform on date and returns its
// path. Files are named <prefix>_<HHMMSS>.json after the UTC save time.
func (d *Dir) Save(platform core.Platform, date core.RunDate, records []any) (string, error) {
	dir := d.Path(platform, date)
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return "", errors.Wrap(err, "create raw dir")
	}
	data, err := json.MarshalIndent(records, "", "  ")
	if err != nil {
		return "", errors.Wrap(err, "encode records")
	}
	name := fmt.Sprintf("%s_%s.json", filePrefix(platform), d.now().UTC().Format("150405"))
	path := filepath.Join(dir, name)
	tmp := path + ".tmp"
	if err := os.WriteFile(tmp, data, 0o644); err != nil {
		return "", errors.Wrap(err, "write raw file")
	}
	if err := os.Rename(tmp, path); err != nil {
		_ = os.Remove(tmp)
		return "", errors.Wrap(err, "rename raw file")
	}
	log.Printf("rawdata: saved %d %s records to %s", len(records), platform, path)
	return path, nil
}

func filePrefix(p core.Platform) string {
	if p == core.PlatformTwitter {
		return "tweets"
	}
	return string(p)
}
