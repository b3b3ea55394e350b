package core

import (
	"errors"
	"fmt"
)

// Kind is the error taxonomy from spec §7. It does not carry recovery
// policy itself — callers switch on it to decide backoff/health/visibility.
type Kind string

const (
	KindCameraNotAvailable        Kind = "camera_not_available"
	KindCameraOpenTimeout         Kind = "camera_open_timeout"
	KindCameraDisconnected        Kind = "camera_disconnected"
	KindProviderError             Kind = "provider_error"
	KindProviderBadJSON           Kind = "provider_bad_json"
	KindBudgetExceeded            Kind = "budget_exceeded"
	KindRuleNotFound              Kind = "rule_not_found"
	KindCameraNotFound            Kind = "camera_not_found"
	KindUnauthorized              Kind = "unauthorized"
	KindNotificationDeliveryFailed Kind = "notification_delivery_failed"
	KindConfigInvalid             Kind = "config_invalid"
	KindInvalidRequest            Kind = "invalid_request"
	KindRateLimited               Kind = "rate_limited"
)

// Error is a structured error carrying a taxonomy Kind, a human message, an
// optional camera id, and an optional cause. Generalizes the teacher's
// SystemError (core/errors.go) beyond camera/stream/validation to the full
// taxonomy this system needs.
type Error struct {
	Kind     Kind
	Message  string
	CameraID string
	Cause    error
}

func (e *Error) Error() string {
	if e.Cause != nil {
		return fmt.Sprintf("%s: %s: %v", e.Kind, e.Message, e.Cause)
	}
	return fmt.Sprintf("%s: %s", e.Kind, e.Message)
}

func (e *Error) Unwrap() error { return e.Cause }

// New builds a Kind-tagged error with no camera context.
func New(kind Kind, message string) *Error {
	return &Error{Kind: kind, Message: message}
}

// Wrap builds a Kind-tagged error around a cause.
func Wrap(kind Kind, message string, cause error) *Error {
	return &Error{Kind: kind, Message: message, Cause: cause}
}

// WithCamera attaches a camera id for JSON error responses.
func (e *Error) WithCamera(cameraID string) *Error {
	e.CameraID = cameraID
	return e
}

// KindOf extracts the Kind of err if it (or something it wraps) is an
// *Error; ok is false otherwise.
func KindOf(err error) (Kind, bool) {
	var e *Error
	if errors.As(err, &e) {
		return e.Kind, true
	}
	return "", false
}

var (
	ErrRuleNotFound   = New(KindRuleNotFound, "rule not found")
	ErrCameraNotFound = New(KindCameraNotFound, "camera not found")
)
