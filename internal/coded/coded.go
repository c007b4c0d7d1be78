// Package coded provides structured error codes with retryability hints.
// Connectors and engines classify vendor failures into these codes so that
// retry loops only retry what is actually worth retrying.
package coded

import (
	"errors"
	"fmt"
)

const (
	CodeEndpointUnreachable = "E_ENDPOINT_UNREACHABLE"
	CodeAuthInvalid         = "E_AUTH_INVALID"
	CodeRateLimited         = "E_RATE_LIMITED"
	CodeNotFound            = "E_NOT_FOUND"
	CodePermissionDenied    = "E_PERMISSION_DENIED"
	CodeTimeout             = "E_TIMEOUT"
	CodeConflict            = "E_CONFLICT"
	CodeResyncRequired      = "E_RESYNC_REQUIRED"
	CodeBadPayload          = "E_BAD_PAYLOAD"
	CodeSinkWriteFailed     = "E_SINK_WRITE_FAILED"
	CodeQuotaExceeded       = "E_QUOTA_EXCEEDED"
	CodeStateStoreFailed    = "E_STATE_STORE_FAILED"
)

// Error carries an error code and a retryability hint alongside the cause.
type Error struct {
	Code      string
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
	return e.Code
}

func (e *Error) Unwrap() error         { return e.Err }
func (e *Error) CodeValue() string     { return e.Code }
func (e *Error) RetryableStatus() bool { return e.Retryable }

// Wrap builds a coded error around err.
func Wrap(code string, retryable bool, err error) *Error {
	return &Error{Code: code, Retryable: retryable, Err: err}
}

// Errorf builds a coded error from a format string.
func Errorf(code string, retryable bool, format string, args ...any) *Error {
	return &Error{Code: code, Retryable: retryable, Err: fmt.Errorf(format, args...)}
}

// CodeOf extracts the error code, or "" when err carries none.
func CodeOf(err error) string {
	var ce *Error
	if errors.As(err, &ce) {
		return ce.Code
	}
	return ""
}

// IsRetryable reports whether err is worth retrying. Errors without a code
// are treated as non-retryable: unknown failures should surface, not loop.
func IsRetryable(err error) bool {
	var ce *Error
	if errors.As(err, &ce) {
		return ce.Retryable
	}
	return false
}
