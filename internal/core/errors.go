package core

import (
	"errors"
	"fmt"
)

// Error kinds surfaced by the core. Callers distinguish bad input, remote
// failure and local encoding failure with errors.Is.
var (
	// ErrInvalidReference indicates a malformed URI/URL or an unrecognized
	// host or path shape.
	ErrInvalidReference = errors.New("invalid spotify reference")
	// ErrRemoteService indicates a transport, authentication or response
	// failure from the metadata service. Not retried here.
	ErrRemoteService = errors.New("spotify service error")
	// ErrUnsupportedFormat indicates an audio container the tag writer does
	// not support.
	ErrUnsupportedFormat = errors.New("unsupported audio format")
	// ErrTagEncoding indicates a malformed tag value or an I/O failure while
	// committing tags.
	ErrTagEncoding = errors.New("tag encoding error")
)

// RemoteError wraps an underlying client error so both ErrRemoteService and
// the original error remain matchable.
func RemoteError(op string, err error) error {
	return fmt.Errorf("%w: %s: %w", ErrRemoteService, op, err)
}

// TagError wraps an underlying encoder error under ErrTagEncoding.
func TagError(op string, err error) error {
	return fmt.Errorf("%w: %s: %w", ErrTagEncoding, op, err)
}
