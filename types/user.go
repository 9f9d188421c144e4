package types

import "time"

// Author is a confirmed, credentialed user able to write posts.
type Author struct {
	// ID is the unique identifier assigned when the author is created.
	ID int `json:"id" db:"id"`

	// Username is unique across authors and pending registrations.
	Username string `json:"username" db:"username"`

	// Email is the address the registration was confirmed through.
	Email string `json:"email" db:"email"`

	// PasswordHash stores the bcrypt hash of the author's password.
	// This field is never exposed in API responses.
	PasswordHash string `json:"-" db:"password_hash"`

	// CreatedAt is the timestamp when the registration was confirmed.
	CreatedAt time.Time `json:"created_at" db:"created_at"`
}

// PendingRegistration is a signup awaiting email confirmation.
type PendingRegistration struct {
	ID           int       `json:"-" db:"id"`
	Username     string    `json:"username" db:"username"`
	Email        string    `json:"email" db:"email"`
	PasswordHash string    `json:"-" db:"password_hash"`
	Token        string    `json:"-" db:"token"`
	CreatedAt    time.Time `json:"created_at" db:"created_at"`
}
