package toolkit

import (
	"errors"
	"fmt"
)

// ErrorKind categorizes a dispatch failure for retry/termination handling
// (spec §7). It is a kind, not a Go type hierarchy: every ToolError carries
// exactly one.
type ErrorKind string

const (
	KindInvalidArguments ErrorKind = "invalid_arguments"
	KindUnknownTool      ErrorKind = "unknown_tool"
	KindQuotaExceeded    ErrorKind = "quota_exceeded"
	KindRetryable        ErrorKind = "retryable"
	KindFatal            ErrorKind = "fatal"
	KindCancelled        ErrorKind = "cancelled"
)

// IsRetryable reports whether dispatch should retry with backoff rather
// than surface the error immediately.
func (k ErrorKind) IsRetryable() bool {
	return k == KindRetryable
}

// ToolError is the structured error dispatch returns; UnknownTool is
// always treated as a subtype of InvalidArguments per spec §7.
type ToolError struct {
	Kind     ErrorKind
	ToolName string
	Field    string
	Reason   string
	Cause    error
}

func (e *ToolError) Error() string {
	if e.Field != "" {
		return fmt.Sprintf("[%s] %s: field %q: %s", e.Kind, e.ToolName, e.Field, e.Reason)
	}
	if e.Reason != "" {
		return fmt.Sprintf("[%s] %s: %s", e.Kind, e.ToolName, e.Reason)
	}
	if e.Cause != nil {
		return fmt.Sprintf("[%s] %s: %v", e.Kind, e.ToolName, e.Cause)
	}
	return fmt.Sprintf("[%s] %s", e.Kind, e.ToolName)
}

func (e *ToolError) Unwrap() error { return e.Cause }

// ErrUnknownTool reports that name is not present in the registry.
func ErrUnknownTool(name string) *ToolError {
	return &ToolError{Kind: KindUnknownTool, ToolName: name, Reason: "tool not found"}
}

// ErrInvalidArguments reports a missing/malformed required field.
func ErrInvalidArguments(toolName, field, reason string) *ToolError {
	return &ToolError{Kind: KindInvalidArguments, ToolName: toolName, Field: field, Reason: reason}
}

// ErrQuotaExceeded reports an admission-gate or debit failure.
func ErrQuotaExceeded(toolName string, cause error) *ToolError {
	return &ToolError{Kind: KindQuotaExceeded, ToolName: toolName, Cause: cause}
}

// classifyHandlerError maps a raw handler error to a retry classification.
// Handlers are expected to return errors unchanged (spec §7: "handlers
// bubble errors unchanged; the loop classifies at the boundary"); dispatch
// does the classification here rather than trusting the handler.
func classifyHandlerError(toolName string, err error) *ToolError {
	var te *ToolError
	if errors.As(err, &te) {
		return te
	}
	kind := KindFatal
	if isTransient(err) {
		kind = KindRetryable
	}
	return &ToolError{Kind: kind, ToolName: toolName, Cause: err}
}

func isTransient(err error) bool {
	msg := err.Error()
	for _, needle := range []string{
		"timeout", "deadline exceeded", "connection", "network",
		"dns", "refused", "unreachable", "temporarily unavailable",
		"503", "502", "429",
	} {
		if containsFold(msg, needle) {
			return true
		}
	}
	return false
}

func containsFold(haystack, needle string) bool {
	hl, nl := len(haystack), len(needle)
	if nl == 0 || nl > hl {
		return nl == 0
	}
	lower := func(b byte) byte {
		if b >= 'A' && b <= 'Z' {
			return b + 32
		}
		return b
	}
	for i := 0; i+nl <= hl; i++ {
		match := true
		for j := 0; j < nl; j++ {
			if lower(haystack[i+j]) != lower(needle[j]) {
				match = false
				break
			}
		}
		if match {
			return true
		}
	}
	return false
}
