package llm

import (
	"errors"
	"fmt"
)

// ErrorKind classifies an adapter failure for the loop's retry/fatal split
// (spec §7).
type ErrorKind string

const (
	KindRetryable ErrorKind = "retryable"
	KindFatal     ErrorKind = "fatal"
	KindSchema    ErrorKind = "schema"
	KindCancelled ErrorKind = "cancelled"
)

// AdapterError wraps a vendor failure with its classification.
type AdapterError struct {
	Kind   ErrorKind
	Vendor string
	Cause  error
}

func (e *AdapterError) Error() string {
	return fmt.Sprintf("llm[%s/%s]: %v", e.Vendor, e.Kind, e.Cause)
}

func (e *AdapterError) Unwrap() error { return e.Cause }

// IsRetryable reports whether the loop should retry the chat call.
func (e *AdapterError) IsRetryable() bool { return e.Kind == KindRetryable }

// AsAdapterError extracts an *AdapterError from err, if present.
func AsAdapterError(err error) (*AdapterError, bool) {
	var ae *AdapterError
	ok := errors.As(err, &ae)
	return ae, ok
}
