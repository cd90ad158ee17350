package core

import "errors"

var (
	// ErrNoData reports a missing input for a run date. It is an expected
	// outcome, not a failure.
	ErrNoData = errors.New("no data for date")
	// ErrInsufficientHistory reports that fewer daily snapshots exist than the
	// rolling window needs.
	ErrInsufficientHistory = errors.New("insufficient history")
	// ErrUnknownPlatform is returned for a source tag without a mapping.
	ErrUnknownPlatform = errors.New("unknown platform")
)
