package agent

import "errors"

var (
	// ErrCompletionFailed wraps any error returned by the completion provider
	ErrCompletionFailed = errors.New("completion request failed")

	// ErrMaxTurnsExceeded is returned when the model keeps calling tools past the turn limit
	ErrMaxTurnsExceeded = errors.New("maximum agent turns exceeded")

	// ErrUnsupportedProvider is returned for a provider with no client implementation
	ErrUnsupportedProvider = errors.New("unsupported provider")
)
