package service

import (
	"errors"
	"fmt"
)

// ErrorKind classifies an AppError for HTTP mapping
type ErrorKind string

const (
	KindValidation   ErrorKind = "validation"   // 400
	KindAuthState    ErrorKind = "auth_state"   // 400
	KindUnauthorized ErrorKind = "unauthorized" // 401
	KindNotFound     ErrorKind = "not_found"    // 404
	KindConflict     ErrorKind = "conflict"     // 409
	KindInternal     ErrorKind = "internal"     // 500
)

// AppError is a domain error with a client-safe message. Cause is kept for
// logs only.
type AppError struct {
	Kind    ErrorKind
	Message string
	Cause   error
}

func (e *AppError) Error() string {
	if e.Cause != nil {
		return fmt.Sprintf("%s: %s: %v", e.Kind, e.Message, e.Cause)
	}
	return fmt.Sprintf("%s: %s", e.Kind, e.Message)
}

func (e *AppError) Unwrap() error { return e.Cause }

// Is matches another *AppError of the same kind and message
func (e *AppError) Is(target error) bool {
	var t *AppError
	if !errors.As(target, &t) {
		return false
	}
	return t.Kind == e.Kind && t.Message == e.Message
}

func NewValidationError(msg string) *AppError { return &AppError{Kind: KindValidation, Message: msg} }
func NewAuthStateError(msg string) *AppError { return &AppError{Kind: KindAuthState, Message: msg} }
func NewNotFoundError(msg string) *AppError { return &AppError{Kind: KindNotFound, Message: msg} }
func NewConflictError(msg string) *AppError { return &AppError{Kind: KindConflict, Message: msg} }

// NewInternalError wraps an unexpected failure
func NewInternalError(cause error) *AppError {
	return &AppError{Kind: KindInternal, Message: "Something went wrong", Cause: cause}
}

// KindOf returns the kind of err, or KindInternal for non-domain errors
func KindOf(err error) ErrorKind {
	var ae *AppError
	if errors.As(err, &ae) {
		return ae.Kind
	}
	return KindInternal
}

var (
	ErrPhoneRequired      = NewValidationError("phone is required")
	ErrNameRequired       = NewValidationError("name is required")
	ErrUserAlreadyExists  = NewConflictError("User with this email or phone already exists")
	ErrUserNotFound       = NewNotFoundError("User not found")
	ErrAlreadyVerified    = NewAuthStateError("Phone already verified")
	ErrOTPExpired         = NewAuthStateError("OTP expired or not found. Request a new one.")
	ErrInvalidOTP         = NewAuthStateError("Invalid OTP")
	ErrOTPLocked          = NewAuthStateError("Too many invalid attempts. Request a new one.")
	ErrInvalidCredentials = &AppError{Kind: KindUnauthorized, Message: "Invalid email or password"}
)
