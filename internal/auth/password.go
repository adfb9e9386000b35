package auth

import (
	"errors"
	"fmt"

	"golang.org/x/crypto/bcrypt"
)

// bcrypt input limits. Anything past MaxPasswordBytes would be silently
// truncated by bcrypt, so it is rejected instead.
const (
	MinPasswordBytes = 8
	MaxPasswordBytes = 72
)

// defaultCost is the bcrypt work factor, about 250ms per hash on current
// server hardware.
const defaultCost = 12

var (
	ErrPasswordTooShort = fmt.Errorf("auth: password must be at least %d bytes", MinPasswordBytes)
	ErrPasswordTooLong  = fmt.Errorf("auth: password must be %d bytes or fewer", MaxPasswordBytes)
	ErrPasswordMismatch = errors.New("auth: invalid password")
)

// PasswordService hashes and verifies passwords. The cost is a field so
// tests can run at bcrypt.MinCost.
type PasswordService struct {
	cost int
}

func NewPasswordService() *PasswordService {
	return &PasswordService{cost: defaultCost}
}

// NewPasswordServiceWithCost is for tests in other packages. Never use a
// cost below defaultCost in production.
func NewPasswordServiceWithCost(cost int) *PasswordService {
	return &PasswordService{cost: cost}
}

// ValidatePassword checks the length bounds without hashing.
func ValidatePassword(plaintext string) error {
	switch {
	case len(plaintext) < MinPasswordBytes:
		return ErrPasswordTooShort
	case len(plaintext) > MaxPasswordBytes:
		return ErrPasswordTooLong
	}
	return nil
}

// Hash returns the self-describing bcrypt string ($2a$<cost>$<salt><hash>),
// which is stored as-is.
func (p *PasswordService) Hash(plaintext string) (string, error) {
	if err := ValidatePassword(plaintext); err != nil {
		return "", err
	}

	hashed, err := bcrypt.GenerateFromPassword([]byte(plaintext), p.cost)
	if err != nil {
		return "", fmt.Errorf("auth: hashing password: %w", err)
	}
	return string(hashed), nil
}

// Verify returns ErrPasswordMismatch when plaintext does not match hash.
// The comparison is constant time.
func (p *PasswordService) Verify(hash, plaintext string) error {
	err := bcrypt.CompareHashAndPassword([]byte(hash), []byte(plaintext))
	if err != nil {
		if errors.Is(err, bcrypt.ErrMismatchedHashAndPassword) {
			return ErrPasswordMismatch
		}
		return fmt.Errorf("auth: comparing password hash: %w", err)
	}
	return nil
}
