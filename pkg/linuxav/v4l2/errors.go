//go:build linux

package v4l2

import (
	"errors"
	"fmt"
)

// SessionError is returned by every CaptureSession operation.
// Code identifies the step that failed; Cause is usually a syscall.Errno.
type SessionError struct {
	Code    string
	Message string
	Cause   error
}

func (e *SessionError) Error() string {
	if e.Cause != nil {
		return fmt.Sprintf("%s: %s: %v", e.Code, e.Message, e.Cause)
	}
	return fmt.Sprintf("%s: %s", e.Code, e.Message)
}

func (e *SessionError) Unwrap() error {
	return e.Cause
}

// Is matches any SessionError carrying the same code, so callers can write
// errors.Is(err, v4l2.ErrBufferMapFailed).
func (e *SessionError) Is(target error) bool {
	t, ok := target.(*SessionError)
	return ok && t.Code == e.Code
}

// Error codes
const (
	ErrCodeNullSession                = "NULL_SESSION"
	ErrCodeInvalidConfig              = "INVALID_CONFIG"
	ErrCodeSessionAlreadyOpen         = "SESSION_ALREADY_OPEN"
	ErrCodeSessionNotOpen             = "SESSION_NOT_OPEN"
	ErrCodeNotStreaming               = "NOT_STREAMING"
	ErrCodeDeviceUnavailable          = "DEVICE_UNAVAILABLE"
	ErrCodeCapabilityQueryFailed      = "CAPABILITY_QUERY_FAILED"
	ErrCodeFormatNegotiationFailed    = "FORMAT_NEGOTIATION_FAILED"
	ErrCodeFrameRateNegotiationFailed = "FRAME_RATE_NEGOTIATION_FAILED"
	ErrCodeBufferRequestFailed        = "BUFFER_REQUEST_FAILED"
	ErrCodeBufferQueryFailed          = "BUFFER_QUERY_FAILED"
	ErrCodeBufferMapFailed            = "BUFFER_MAP_FAILED"
	ErrCodeBufferEnqueueFailed        = "BUFFER_ENQUEUE_FAILED"
	ErrCodeStreamStartFailed          = "STREAM_START_FAILED"
	ErrCodeDequeueFailed              = "DEQUEUE_FAILED"
	ErrCodeEnqueueFailed              = "ENQUEUE_FAILED"
	ErrCodeStreamStopFailed           = "STREAM_STOP_FAILED"
	ErrCodeBufferUnmapFailed          = "BUFFER_UNMAP_FAILED"
	ErrCodeDeviceCloseFailed          = "DEVICE_CLOSE_FAILED"
)

// Sentinels for errors.Is.
var (
	ErrNullSession                = &SessionError{Code: ErrCodeNullSession}
	ErrInvalidConfig              = &SessionError{Code: ErrCodeInvalidConfig}
	ErrSessionAlreadyOpen         = &SessionError{Code: ErrCodeSessionAlreadyOpen}
	ErrSessionNotOpen             = &SessionError{Code: ErrCodeSessionNotOpen}
	ErrNotStreaming               = &SessionError{Code: ErrCodeNotStreaming}
	ErrDeviceUnavailable          = &SessionError{Code: ErrCodeDeviceUnavailable}
	ErrCapabilityQueryFailed      = &SessionError{Code: ErrCodeCapabilityQueryFailed}
	ErrFormatNegotiationFailed    = &SessionError{Code: ErrCodeFormatNegotiationFailed}
	ErrFrameRateNegotiationFailed = &SessionError{Code: ErrCodeFrameRateNegotiationFailed}
	ErrBufferRequestFailed        = &SessionError{Code: ErrCodeBufferRequestFailed}
	ErrBufferQueryFailed          = &SessionError{Code: ErrCodeBufferQueryFailed}
	ErrBufferMapFailed            = &SessionError{Code: ErrCodeBufferMapFailed}
	ErrBufferEnqueueFailed        = &SessionError{Code: ErrCodeBufferEnqueueFailed}
	ErrStreamStartFailed          = &SessionError{Code: ErrCodeStreamStartFailed}
	ErrDequeueFailed              = &SessionError{Code: ErrCodeDequeueFailed}
	ErrEnqueueFailed              = &SessionError{Code: ErrCodeEnqueueFailed}
	ErrStreamStopFailed           = &SessionError{Code: ErrCodeStreamStopFailed}
	ErrBufferUnmapFailed          = &SessionError{Code: ErrCodeBufferUnmapFailed}
	ErrDeviceCloseFailed          = &SessionError{Code: ErrCodeDeviceCloseFailed}
)

// newSessionError creates a new session error
func newSessionError(code, message string, cause error) *SessionError {
	return &SessionError{
		Code:    code,
		Message: message,
		Cause:   cause,
	}
}

// ErrorCode extracts the SessionError code from err, or "" if there is none.
func ErrorCode(err error) string {
	var se *SessionError
	if errors.As(err, &se) {
		return se.Code
	}
	return ""
}
