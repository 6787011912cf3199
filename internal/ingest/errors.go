package ingest

import (
	"errors"
	"fmt"
)

var (
	ErrMalformedEnvelope = errors.New("ingest: malformed envelope")
	ErrMissingPayload    = errors.New("ingest: missing payload")
	ErrDecode            = errors.New("ingest: decode failed")
	ErrForward           = errors.New("ingest: forward failed")
)

// DecodeError wraps a frame decoding failure. It matches both ErrDecode and the
// underlying frame error.
type DecodeError struct {
	Err error
}

func (e *DecodeError) Error() string {
	return fmt.Sprintf("decode payload: %v", e.Err)
}

func (e *DecodeError) Unwrap() []error {
	return []error{ErrDecode, e.Err}
}

// ForwardError reports the first sink update that failed. Updates before Field were
// already delivered.
type ForwardError struct {
	Field string
	Err   error
}

func (e *ForwardError) Error() string {
	return fmt.Sprintf("forward %s: %v", e.Field, e.Err)
}

func (e *ForwardError) Unwrap() []error {
	return []error{ErrForward, e.Err}
}
