package identity

import (
	"errors"
	"fmt"

	"golang.org/x/crypto/bcrypt"
)

var (
	// ErrEmptyPassword is returned when hashing an empty password.
	ErrEmptyPassword = errors.New("identity.password.empty")
	// ErrPasswordMismatch is returned when a password does not match the stored hash.
	ErrPasswordMismatch = errors.New("identity.password.mismatch")
)

// HashPassword generates a bcrypt hash for the password.
func HashPassword(password string) (string, error) {
	if password == "" {
		return "", ErrEmptyPassword
	}
	hashed, err := bcrypt.GenerateFromPassword([]byte(password), bcrypt.DefaultCost)
	if err != nil {
		return "", fmt.Errorf("identity.password.hash: %w", err)
	}
	return string(hashed), nil
}

// ComparePassword validates the cleartext password against the stored hash.
func ComparePassword(passwordHash string, password string) error {
	if err := bcrypt.CompareHashAndPassword([]byte(passwordHash), []byte(password)); err != nil {
		if errors.Is(err, bcrypt.ErrMismatchedHashAndPassword) {
			return ErrPasswordMismatch
		}
		return fmt.Errorf("identity.password.compare: %w", err)
	}
	return nil
}
