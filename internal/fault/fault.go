// Package fault defines the coded error taxonomy for a pipeline run.
package fault

import (
	"errors"
	"fmt"
)

// Code classifies a pipeline failure.
type Code string

const (
	CodeConfig      Code = "E_CONFIG"      // invalid or missing configuration
	CodeSource      Code = "E_SOURCE"      // source file missing or unreadable
	CodeSchema      Code = "E_SCHEMA"      // source shape does not match the contract
	CodeRow         Code = "E_ROW"         // single-row malformation (quarantined, non-fatal)
	CodeEmbedding   Code = "E_EMBEDDING"   // provider unreachable or failing after retries
	CodeDestination Code = "E_DESTINATION" // bulk write not acknowledged or constraint violation
	CodeCancelled   Code = "E_CANCELLED"   // run cancelled externally
	CodeInternal    Code = "E_INTERNAL"    // engine or programming error
)

// Error carries a failure code and retryability hint through the run.
type Error struct {
	Code      Code
	Retryable bool
	Err       error
}

func (e *Error) Error() string {
	if e == nil {
		return ""
	}
	if e.Err != nil {
		return fmt.Sprintf("%s: %v", e.Code, e.Err)
	}
	return string(e.Code)
}

func (e *Error) Unwrap() error { return e.Err }

// CodeValue returns the string error code for the run report.
func (e *Error) CodeValue() string { return string(e.Code) }

// RetryableStatus indicates if the failed operation can be retried.
func (e *Error) RetryableStatus() bool { return e.Retryable }

// New wraps err with a code. A nil err produces a bare coded error.
func New(code Code, err error) *Error {
	return &Error{Code: code, Err: err}
}

// Newf builds a coded error from a format string.
func Newf(code Code, format string, args ...any) *Error {
	return &Error{Code: code, Err: fmt.Errorf(format, args...)}
}

// Transient wraps err with a code and marks it retryable.
func Transient(code Code, err error) *Error {
	return &Error{Code: code, Retryable: true, Err: err}
}

// CodeOf extracts the fault code from an error chain.
// Unclassified errors report CodeInternal.
func CodeOf(err error) Code {
	var fe *Error
	if errors.As(err, &fe) {
		return fe.Code
	}
	return CodeInternal
}

// IsRetryable reports whether the error chain carries a retryable fault.
func IsRetryable(err error) bool {
	var fe *Error
	if errors.As(err, &fe) {
		return fe.Retryable
	}
	return false
}

// Fatal reports whether the error should abort the run. Row-level
// malformations are the only non-fatal class.
func Fatal(err error) bool {
	if err == nil {
		return false
	}
	return CodeOf(err) != CodeRow
}
