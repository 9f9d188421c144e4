package store

import (
	"errors"

	"github.com/lib/pq"
)

var (
	// ErrNotFound is returned when a record does not exist.
	ErrNotFound = errors.New("not found")

	// ErrUsernameTaken is returned when a username is already claimed by an
	// author or a pending registration.
	ErrUsernameTaken = errors.New("username already claimed")

	// ErrDuplicateToken is returned when a confirmation token collides with
	// one already issued.
	ErrDuplicateToken = errors.New("confirmation token already issued")
)

const uniqueViolation = "23505"

// translateError maps unique constraint violations onto store errors.
func translateError(err error) error {
	var pqErr *pq.Error
	if !errors.As(err, &pqErr) || pqErr.Code != uniqueViolation {
		return err
	}
	switch pqErr.Constraint {
	case "username_claims_pkey", "pending_registrations_username_key", "authors_username_key":
		return ErrUsernameTaken
	case "pending_registrations_token_key":
		return ErrDuplicateToken
	}
	return err
}
