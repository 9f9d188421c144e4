package services

import (
	"errors"
	"fmt"
)

// Registration errors.
var (
	ErrUsernameTaken    = errors.New("that username is already taken")
	ErrPasswordMismatch = errors.New("passwords do not match")
	ErrInvalidEmail     = errors.New("please enter a valid email address")
	ErrPasswordTooLong  = errors.New("password must be at most 72 bytes")

	// ErrNotificationFailed is returned alongside a persisted registration
	// when the confirmation message could not be handed off.
	ErrNotificationFailed = errors.New("registration saved but the confirmation email could not be sent")
)

// ErrUnknownToken is returned when a confirmation token matches no pending
// registration.
var ErrUnknownToken = errors.New("we don't recognize this confirmation link")

// Login errors. Unknown usernames and wrong passwords share
// ErrInvalidCredentials.
var (
	ErrInvalidCredentials = errors.New("invalid username/password")
	ErrNotLoggedIn        = errors.New("you must be logged in")
)

// MissingFieldError reports a required registration field left empty.
type MissingFieldError struct {
	Field string
}

func (e *MissingFieldError) Error() string {
	return fmt.Sprintf("%s is required", e.Field)
}

// StorageError wraps an unexpected persistence failure. The operation that
// produced it had no partial effect.
type StorageError struct {
	Op  string
	Err error
}

func (e *StorageError) Error() string {
	return fmt.Sprintf("storage error: %s: %v", e.Op, e.Err)
}

func (e *StorageError) Unwrap() error {
	return e.Err
}
