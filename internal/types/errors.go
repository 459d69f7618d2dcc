// Package types provides shared type definitions used across the service.
package types

import "errors"

// Error taxonomy for the recording pipeline. Each terminal session failure
// wraps one of these so callers can classify without string matching.
var (
	// ErrCaptureUnavailable indicates no capturable device exists or the OS
	// denied the capture request.
	ErrCaptureUnavailable = errors.New("audio capture unavailable")

	// ErrCaptureInterrupted indicates capture failed after a successful start
	// (device disconnect, permission revoked mid-session).
	ErrCaptureInterrupted = errors.New("audio capture interrupted")

	// ErrEncodeSetupFailed indicates the encoder output could not be created.
	ErrEncodeSetupFailed = errors.New("encoder setup failed")

	// ErrEncodeFailed indicates the encoder writer entered a failed state.
	ErrEncodeFailed = errors.New("encoding failed")

	// ErrFinalizationFailed indicates the flush or duration probe failed.
	ErrFinalizationFailed = errors.New("finalization failed")

	// ErrSessionActive is returned when starting a session while another is active.
	ErrSessionActive = errors.New("a recording session is already active")

	// ErrNotRecording is returned for pause/stop requests outside an active recording.
	ErrNotRecording = errors.New("no recording in progress")

	// ErrNotPaused is returned for resume requests while not paused.
	ErrNotPaused = errors.New("recording is not paused")
)

// FieldError represents a validation error for a specific field.
type FieldError struct {
	Field   string `json:"field"`   // JSON path to the field (e.g., "cloud.stub_threshold_bytes")
	Message string `json:"message"` // Human-readable error message
	Value   any    `json:"value"`   // The invalid value that was provided
}

// ValidationError collects multiple field validation errors.
type ValidationError struct {
	Errors []FieldError `json:"errors"`
}

// NewValidationError creates a new empty ValidationError.
func NewValidationError() *ValidationError {
	return &ValidationError{Errors: make([]FieldError, 0)}
}

// Add adds a field error to the collection.
func (v *ValidationError) Add(field, message string, value any) {
	v.Errors = append(v.Errors, FieldError{Field: field, Message: message, Value: value})
}

// Error implements the error interface.
func (v *ValidationError) Error() string {
	if len(v.Errors) == 0 {
		return "validation failed"
	}
	return "validation failed: " + v.Errors[0].Field + " " + v.Errors[0].Message
}
