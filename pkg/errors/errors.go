package errors

import (
	"fmt"
	"net/http"
)

// ErrorCode represents application error codes
type ErrorCode string

const (
	ErrCodeInvalidInput      ErrorCode = "INVALID_INPUT"
	ErrCodeNotFound          ErrorCode = "NOT_FOUND"
	ErrCodeUnauthorized      ErrorCode = "UNAUTHORIZED"
	ErrCodeConflict          ErrorCode = "CONFLICT"
	ErrCodeRateLimit         ErrorCode = "RATE_LIMIT_EXCEEDED"
	ErrCodeInternal          ErrorCode = "INTERNAL_ERROR"
	ErrCodeToolNotFound      ErrorCode = "TOOL_NOT_FOUND"
	ErrCodeSpawnFailed       ErrorCode = "SPAWN_FAILED"
	ErrCodeSubprocessCrashed ErrorCode = "SUBPROCESS_CRASHED"
	ErrCodeSubprocessStalled ErrorCode = "SUBPROCESS_STALLED"
	ErrCodeRotationIO        ErrorCode = "ROTATION_IO_ERROR"
	ErrCodeTeardownTimeout   ErrorCode = "TEARDOWN_TIMEOUT"
)

// AppError represents an application error with code and context
type AppError struct {
	Code       ErrorCode
	Message    string
	HTTPStatus int
	Cause      error
	Context    map[string]interface{}
}

// Error implements error interface
func (e *AppError) Error() string {
	if e.Cause != nil {
		return fmt.Sprintf("%s: %s (caused by: %v)", e.Code, e.Message, e.Cause)
	}
	return fmt.Sprintf("%s: %s", e.Code, e.Message)
}

// Unwrap returns the underlying error
func (e *AppError) Unwrap() error {
	return e.Cause
}

// WithContext adds context to the error
func (e *AppError) WithContext(key string, value interface{}) *AppError {
	if e.Context == nil {
		e.Context = make(map[string]interface{})
	}
	e.Context[key] = value
	return e
}

// NewAppError creates a new application error
func NewAppError(code ErrorCode, message string, httpStatus int) *AppError {
	return &AppError{
		Code:       code,
		Message:    message,
		HTTPStatus: httpStatus,
		Context:    make(map[string]interface{}),
	}
}

// WrapError wraps an existing error with application error
func WrapError(err error, code ErrorCode, message string, httpStatus int) *AppError {
	return &AppError{
		Code:       code,
		Message:    message,
		HTTPStatus: httpStatus,
		Cause:      err,
		Context:    make(map[string]interface{}),
	}
}

// Common error constructors
func NewInvalidInputError(message string) *AppError {
	return NewAppError(ErrCodeInvalidInput, message, http.StatusBadRequest)
}

func NewNotFoundError(resource string) *AppError {
	return NewAppError(ErrCodeNotFound, fmt.Sprintf("%s not found", resource), http.StatusNotFound)
}

func NewUnauthorizedError(message string) *AppError {
	return NewAppError(ErrCodeUnauthorized, message, http.StatusUnauthorized)
}

func NewConflictError(message string) *AppError {
	return NewAppError(ErrCodeConflict, message, http.StatusConflict)
}

func NewRateLimitError() *AppError {
	return NewAppError(ErrCodeRateLimit, "rate limit exceeded", http.StatusTooManyRequests)
}

func NewInternalError(message string) *AppError {
	return NewAppError(ErrCodeInternal, message, http.StatusInternalServerError)
}

// NewToolNotFoundError reports a missing external transcoding binary.
// Fatal to start, never retried.
func NewToolNotFoundError(tool string) *AppError {
	return NewAppError(ErrCodeToolNotFound,
		fmt.Sprintf("transcoding tool %q not found in PATH", tool), http.StatusBadGateway)
}

// NewSpawnError reports a failed subprocess launch. Fatal to the current
// start attempt; the caller may retry later.
func NewSpawnError(err error) *AppError {
	return WrapError(err, ErrCodeSpawnFailed, "failed to spawn subprocess", http.StatusBadGateway)
}

// NewRotationIOError reports a failed size probe or artifact delete. Logged
// and skipped by the caller, never aborts a loop.
func NewRotationIOError(err error, path string) *AppError {
	return WrapError(err, ErrCodeRotationIO, "recording file probe failed", http.StatusInternalServerError).
		WithContext("path", path)
}

// NewSubprocessCrashedError reports an unexpected subprocess exit.
func NewSubprocessCrashedError(exitCode int) *AppError {
	return NewAppError(ErrCodeSubprocessCrashed,
		fmt.Sprintf("subprocess exited unexpectedly with code %d", exitCode), http.StatusInternalServerError).
		WithContext("exit_code", exitCode)
}

// NewSubprocessStalledError reports a subprocess that is alive but has
// produced no output for longer than the restart threshold.
func NewSubprocessStalledError(sinceLastFrame string) *AppError {
	return NewAppError(ErrCodeSubprocessStalled,
		fmt.Sprintf("no frames received for %s", sinceLastFrame), http.StatusInternalServerError)
}

// NewTeardownTimeoutError reports a subprocess that survived the full
// quit, terminate, kill ladder.
func NewTeardownTimeoutError(pid int) *AppError {
	return NewAppError(ErrCodeTeardownTimeout,
		fmt.Sprintf("subprocess %d did not exit after kill", pid), http.StatusInternalServerError).
		WithContext("pid", pid)
}

// IsAppError checks if error is an AppError
func IsAppError(err error) bool {
	_, ok := err.(*AppError)
	return ok
}

// GetAppError extracts AppError from error chain
func GetAppError(err error) *AppError {
	if err == nil {
		return nil
	}

	if appErr, ok := err.(*AppError); ok {
		return appErr
	}

	// Try to unwrap
	type unwrapper interface {
		Unwrap() error
	}

	if u, ok := err.(unwrapper); ok {
		return GetAppError(u.Unwrap())
	}

	return nil
}
