package api

import (
	"fmt"

	"golang.org/x/crypto/bcrypt"
)

// passwordManager hashes and verifies the single operator's admin
// password, trimmed from the teacher's internal/auth.PasswordManager
// (bcrypt cost/history/strength-scoring for a user table) down to the
// one check this system needs: does this request know the configured
// password. There is no history, no rotation, no per-user record.
type passwordManager struct {
	cost int
}

const (
	defaultBcryptCost = 12
	maxPasswordLength = 128
)

func newPasswordManager() *passwordManager {
	return &passwordManager{cost: defaultBcryptCost}
}

func (p *passwordManager) hash(password string) (string, error) {
	if len(password) > maxPasswordLength {
		return "", fmt.Errorf("password too long")
	}
	bytes, err := bcrypt.GenerateFromPassword([]byte(password), p.cost)
	if err != nil {
		return "", fmt.Errorf("hash password: %w", err)
	}
	return string(bytes), nil
}

func (p *passwordManager) verify(password, hash string) bool {
	if hash == "" {
		return false
	}
	return bcrypt.CompareHashAndPassword([]byte(hash), []byte(password)) == nil
}
