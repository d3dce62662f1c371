package api

import (
	"time"

	"github.com/golang-jwt/jwt/v5"
)

// operatorClaims is the JWT payload for the single-operator bearer
// token, grounded on the teacher's auth.Claims embedding
// jwt.RegisteredClaims.
type operatorClaims struct {
	jwt.RegisteredClaims
}

// TokenManager issues and validates the operator's bearer token,
// trimmed from the teacher's JWTManager (internal/auth/jwt.go) down to
// one role and no refresh-token flow — there is exactly one operator
// and no session to refresh.
type TokenManager struct {
	secret []byte
}

// NewTokenManager builds a TokenManager signing with secret.
func NewTokenManager(secret string) *TokenManager {
	return &TokenManager{secret: []byte(secret)}
}

// Issue mints a new bearer token valid for ttl.
func (m *TokenManager) Issue(ttl time.Duration) (string, error) {
	now := time.Now()
	token := jwt.NewWithClaims(jwt.SigningMethodHS256, operatorClaims{
		RegisteredClaims: jwt.RegisteredClaims{
			Subject:   "operator",
			Issuer:    "btc-advisor-bot",
			Audience:  []string{"btc-advisor-bot-api"},
			IssuedAt:  jwt.NewNumericDate(now),
			NotBefore: jwt.NewNumericDate(now),
			ExpiresAt: jwt.NewNumericDate(now.Add(ttl)),
		},
	})
	return token.SignedString(m.secret)
}

// Validate reports whether tokenString is a well-formed, unexpired,
// correctly-signed operator token.
func (m *TokenManager) Validate(tokenString string) bool {
	token, err := jwt.ParseWithClaims(tokenString, &operatorClaims{}, func(t *jwt.Token) (interface{}, error) {
		if _, ok := t.Method.(*jwt.SigningMethodHMAC); !ok {
			return nil, jwt.ErrSignatureInvalid
		}
		return m.secret, nil
	})
	return err == nil && token.Valid
}
