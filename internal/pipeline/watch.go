package pipeline

import (
	"context"
	"os"
	"path/filepath"
	"slices"
	"strings"
	"time"

	"github.com/fsnotify/fsnotify"

	"github.com/you/social-pulse/internal/core"
)

const watchDebounce = 2 * time.Second

// WatchRawDir reruns the pipeline for a run date whenever JSON files under
// <root>/<platform>/<date>/ change. A burst of writes for the same date
// yields one run. The watcher stops when ctx is done.
func (p *Pipeline) WatchRawDir(ctx context.Context, root string) error {
	return p.watchRawDir(ctx, root, watchDebounce)
}

func (p *Pipeline) watchRawDir(ctx context.Context, root string, quiet time.Duration) error {
	w, err := fsnotify.NewWatcher()
	if err != nil {
		return err
	}
	for _, src := range p.opts.Sources {
		if err := p.watchPlatformDir(w, filepath.Join(root, string(src))); err != nil {
			w.Close()
			return err
		}
	}
	go p.watchLoop(ctx, w, quiet)
	return nil
}

// watchPlatformDir watches dir and every date directory already inside it.
// fsnotify is not recursive, so new date directories are added as they
// appear.
func (p *Pipeline) watchPlatformDir(w *fsnotify.Watcher, dir string) error {
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return err
	}
	if err := w.Add(dir); err != nil {
		return err
	}
	entries, _ := os.ReadDir(dir)
	for _, e := range entries {
		if e.IsDir() && isRunDate(e.Name()) {
			p.addWatch(w, filepath.Join(dir, e.Name()))
		}
	}
	return nil
}

func (p *Pipeline) addWatch(w *fsnotify.Watcher, path string) {
	if err := w.Add(path); err != nil {
		p.deps.Logger.Error("watch: add failed", "path", path, "err", err)
	}
}

func (p *Pipeline) watchLoop(ctx context.Context, w *fsnotify.Watcher, quiet time.Duration) {
	defer w.Close()

	pending := make(map[core.RunDate]bool)
	timer := time.NewTimer(quiet)
	timer.Stop()
	defer timer.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case err, ok := <-w.Errors:
			if !ok {
				return
			}
			p.deps.Logger.Error("watch: fsnotify", "err", err)
		case ev, ok := <-w.Events:
			if !ok {
				return
			}
			if ev.Has(fsnotify.Create) && isDateDir(ev.Name) {
				p.addWatch(w, ev.Name)
				continue
			}
			if !ev.Has(fsnotify.Write) && !ev.Has(fsnotify.Create) && !ev.Has(fsnotify.Rename) {
				continue
			}
			if date, ok := runDateOfRawFile(ev.Name); ok {
				pending[date] = true
				timer.Reset(quiet)
			}
		case <-timer.C:
			dates := make([]core.RunDate, 0, len(pending))
			for d := range pending {
				dates = append(dates, d)
			}
			clear(pending)
			slices.Sort(dates)
			for _, d := range dates {
				if _, err := p.Run(ctx, d); err != nil {
					p.deps.Logger.Error("watch: run failed", "run_date", d, "err", err)
				}
			}
		}
	}
}

func isRunDate(name string) bool {
	_, err := core.ParseRunDate(name)
	return err == nil
}

func isDateDir(path string) bool {
	info, err := os.Stat(path)
	return err == nil && info.IsDir() && isRunDate(filepath.Base(path))
}

// runDateOfRawFile extracts the date directory of a raw JSON file path.
func runDateOfRawFile(path string) (core.RunDate, bool) {
	if !strings.HasSuffix(path, ".json") {
		return "", false
	}
	d, err := core.ParseRunDate(filepath.Base(filepath.Dir(path)))
	if err != nil {
		return "", false
	}
	return d, true
}
