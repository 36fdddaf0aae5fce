package types

import "errors"

// Failure classes. Callers wrap them with fmt.Errorf("%w: ...") and match
// with errors.Is.
var (
	// ErrConfiguration means a required tool or capability is missing.
	ErrConfiguration = errors.New("configuration error")
	// ErrInputNotFound means the source path does not exist.
	ErrInputNotFound = errors.New("input not found")
	// ErrProbeFailure means the stream probe failed or found no video stream.
	ErrProbeFailure = errors.New("probe failure")
	// ErrDecodeFailure means frame extraction or frame decoding failed.
	ErrDecodeFailure = errors.New("decode failure")
	// ErrEmptyInput means there were no frames to compose.
	ErrEmptyInput = errors.New("empty input")
	// ErrInvalidInput means the layout parameters are degenerate.
	ErrInvalidInput = errors.New("invalid input")
)
