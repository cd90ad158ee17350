// Package unify persists the normalized posts of one run date as a single
// unified dataset.
package unify

import (
	"context"
	"log"
	"time"

	"github.com/pkg/errors"

	"github.com/you/social-pulse/internal/core"
	"github.com/you/social-pulse/internal/store"
)

// DatasetStore is the persistence the writer needs.
type DatasetStore interface {
	WriteUnified(ctx context.Context, runDate core.RunDate, posts []core.Post) (store.DatasetInfo, error)
}

// Handle identifies a written dataset.
type Handle struct {
	RunDate   core.RunDate
	Rows      int
	WrittenAt time.Time
}

type Writer struct {
	store DatasetStore
}

func NewWriter(s DatasetStore) *Writer {
	return &Writer{store: s}
}

// Write replaces the dataset of runDate with posts. An empty batch returns
// core.ErrNoData and leaves any existing dataset in place.
func (w *Writer) Write(ctx context.Context, runDate core.RunDate, posts []core.Post) (Handle, error) {
	if len(posts) == 0 {
		log.Printf("unify: no posts for %s; keeping existing dataset", runDate)
		return Handle{}, errors.Wrapf(core.ErrNoData, "unify %s", runDate)
	}
	info, err := w.store.WriteUnified(ctx, runDate, posts)
	if err != nil {
		return Handle{}, errors.Wrapf(err, "unify %s", runDate)
	}
	log.Printf("unify: wrote %d posts for %s", info.Rows, runDate)
	return Handle{RunDate: info.RunDate, Rows: info.Rows, WrittenAt: info.WrittenAt}, nil
}
