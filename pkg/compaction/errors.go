package compaction

import "errors"

var (
	// ErrNoUsableModel means no candidate nor the session default had a credential
	ErrNoUsableModel = errors.New("no usable model for compaction")

	// ErrSummaryTooShort means the produced summary was rejected by policy
	ErrSummaryTooShort = errors.New("summary shorter than the configured minimum")

	// ErrCancelled means the run was cancelled before producing a summary
	ErrCancelled = errors.New("compaction cancelled")

	// ErrNothingToCompact means the session has no messages before the cut point
	ErrNothingToCompact = errors.New("nothing to compact")
)
