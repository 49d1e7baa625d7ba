package conversation

import "errors"

var (
	// ErrUnknownBlockType is returned when a content block carries an unrecognized type tag
	ErrUnknownBlockType = errors.New("unknown content block type")

	// ErrUnknownRole is returned when a message carries an unrecognized role
	ErrUnknownRole = errors.New("unknown message role")
)
