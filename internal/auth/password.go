package auth

import (
	"errors"
	"fmt"

	passwordvalidator "github.com/wagslane/go-password-validator"
	"golang.org/x/crypto/bcrypt"
)

// ErrWeakPassword wraps the validator's explanation of what is missing.
var ErrWeakPassword = errors.New("password is not strong enough")

// Passwords hashes and checks user passwords.
type Passwords struct {
	// MinEntropy is the minimum estimated entropy in bits; 0 disables the check.
	MinEntropy float64
	// Cost is the bcrypt work factor (bcrypt.DefaultCost when zero).
	Cost int
}

// Validate reports whether pw satisfies the entropy threshold.
func (p Passwords) Validate(pw string) error {
	if p.MinEntropy <= 0 {
		return nil
	}
	if err := passwordvalidator.Validate(pw, p.MinEntropy); err != nil {
		return fmt.Errorf("%w: %v", ErrWeakPassword, err)
	}
	return nil
}

// Hash returns the bcrypt hash of pw.
func (p Passwords) Hash(pw string) (string, error) {
	cost := p.Cost
	if cost == 0 {
		cost = bcrypt.DefaultCost
	}
	b, err := bcrypt.GenerateFromPassword([]byte(pw), cost)
	if err != nil {
		return "", fmt.Errorf("hash password: %w", err)
	}
	return string(b), nil
}

// Matches reports whether pw corresponds to hash.
func (p Passwords) Matches(hash, pw string) bool {
	return bcrypt.CompareHashAndPassword([]byte(hash), []byte(pw)) == nil
}
