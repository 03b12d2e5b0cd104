package errors

import (
	"errors"
	"fmt"
)

// AppError is a domain error carrying a transport-independent Code.
type AppError struct {
	Code    Code
	Message string
	Cause   error
}

func (e *AppError) Error() string {
	if e.Cause != nil {
		return fmt.Sprintf("%s: %v", e.Message, e.Cause)
	}
	return e.Message
}

func (e *AppError) Unwrap() error { return e.Cause }

// Is matches any AppError with the same Code, so sentinel comparisons survive
// re-wrapping with a different message.
func (e *AppError) Is(target error) bool {
	var t *AppError
	if !errors.As(target, &t) {
		return false
	}
	return t.Code == e.Code
}

func New(code Code, message string) error {
	return &AppError{Code: code, Message: message}
}

func Wrap(code Code, message string, cause error) error {
	return &AppError{Code: code, Message: message, Cause: cause}
}

// CodeOf extracts the Code of err, CodeInternal when err is not an AppError.
func CodeOf(err error) Code {
	var appErr *AppError
	if errors.As(err, &appErr) {
		return appErr.Code
	}
	return CodeInternal
}

var (
	ErrUserNotFound       = New(CodeUserNotFound, "user does not exist")
	ErrNotFriends         = New(CodeNotFriends, "could not delete friend as you were not friends")
	ErrPermissionDenied   = New(CodePermissionDenied, "recipient does not have you as a friend")
	ErrNoDevices          = New(CodeNoDevices, "recipient has no registered devices")
	ErrNoRecipientDevices = New(CodeNoRecipientDevices, "no devices to notify")
	ErrDeliveryFailed     = New(CodeDeliveryFailed, "unable to deliver to any device")
	ErrUsernameTaken      = New(CodeAlreadyExists, "username taken")
	ErrTokenRegistered    = New(CodeAlreadyExists, "that token is already registered")
	ErrForbidden          = New(CodePermissionDenied, "forbidden")
	ErrUnauthenticated    = New(CodeUnauthenticated, "missing caller identity")
)

func InvalidArg(msg string) error {
	return New(CodeInvalidArgument, msg)
}

func PermissionDenied(msg string) error {
	return New(CodePermissionDenied, msg)
}

func Internal(msg string, cause error) error {
	return Wrap(CodeInternal, msg, cause)
}
