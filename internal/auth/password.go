// Package auth содержит хеширование паролей и выпуск токенов доступа.
package auth

import (
	"errors"
	"fmt"

	"golang.org/x/crypto/bcrypt"
)

// maxPasswordBytes — предел bcrypt: всё, что длиннее, отбрасывается молча.
const maxPasswordBytes = 72

// ErrPasswordTooLong возвращается для паролей длиннее предела bcrypt.
var ErrPasswordTooLong = errors.New("password exceeds 72 bytes")

// PasswordHasher хеширует и сверяет пароли через bcrypt.
type PasswordHasher struct {
	cost int
}

// NewPasswordHasher создаёт hasher. cost <= 0 означает bcrypt.DefaultCost.
func NewPasswordHasher(cost int) *PasswordHasher {
	if cost <= 0 {
		cost = bcrypt.DefaultCost
	}
	return &PasswordHasher{cost: cost}
}

// Hash возвращает bcrypt-хеш пароля.
func (h *PasswordHasher) Hash(password string) (string, error) {
	if len(password) > maxPasswordBytes {
		return "", ErrPasswordTooLong
	}
	hash, err := bcrypt.GenerateFromPassword([]byte(password), h.cost)
	if err != nil {
		return "", fmt.Errorf("hash password: %w", err)
	}
	return string(hash), nil
}

// Compare возвращает nil, если пароль соответствует хешу.
func (h *PasswordHasher) Compare(hash, password string) error {
	return bcrypt.CompareHashAndPassword([]byte(hash), []byte(password))
}
