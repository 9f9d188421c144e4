package services

import (
	"regexp"
	"strings"
)

const maxPasswordBytes = 72

// Form field names, also reported by MissingFieldError.
const (
	FieldUsername             = "username"
	FieldPassword             = "password"
	FieldPasswordConfirmation = "password_2"
	FieldEmail                = "email"
)

// One "@", at least one "." after it, no whitespace.
var emailPattern = regexp.MustCompile(`^[^@\s]+@[^@\s]+\.[^@\s]+$`)

// RegistrationInput carries signup form values.
type RegistrationInput struct {
	Username             string
	Password             string
	PasswordConfirmation string
	Email                string
}

func (in RegistrationInput) normalized() RegistrationInput {
	in.Username = strings.TrimSpace(in.Username)
	in.Email = strings.TrimSpace(in.Email)
	return in
}

// ValidEmail reports whether address has a local@domain.tld shape.
func ValidEmail(address string) bool {
	return emailPattern.MatchString(address)
}

// ValidateRegistration runs the checks that need no storage, in the order
// Register applies them. Username availability is checked by Register.
func ValidateRegistration(in RegistrationInput) error {
	in = in.normalized()
	if err := checkRequired(in); err != nil {
		return err
	}
	return checkCredentials(in)
}

func checkRequired(in RegistrationInput) error {
	switch {
	case in.Username == "":
		return &MissingFieldError{Field: FieldUsername}
	case in.Password == "":
		return &MissingFieldError{Field: FieldPassword}
	case in.PasswordConfirmation == "":
		return &MissingFieldError{Field: FieldPasswordConfirmation}
	case in.Email == "":
		return &MissingFieldError{Field: FieldEmail}
	}
	return nil
}

func checkCredentials(in RegistrationInput) error {
	if in.Password != in.PasswordConfirmation {
		return ErrPasswordMismatch
	}
	if !ValidEmail(in.Email) {
		return ErrInvalidEmail
	}
	if len(in.Password) > maxPasswordBytes {
		return ErrPasswordTooLong
	}
	return nil
}
