// Package auth verifies bearer tokens. Issuance is out of scope here: the
// chat core and its sibling edge services only check a shared-secret HS256
// token minted elsewhere.
package auth

import (
	"errors"
	"fmt"

	"github.com/golang-jwt/jwt/v5"
)

// CustomClaims is the JWT claim set chat expects: sub holds the user's
// email, user_id their stable numeric id as a string.
type CustomClaims struct {
	UserID string `json:"user_id"`
	jwt.RegisteredClaims
}

// Validator checks HS256 tokens against a single shared secret.
type Validator struct {
	secret []byte
}

// NewValidator builds a Validator from the configured JWT secret. A short
// or empty secret is a boot-time configuration error (internal/config
// enforces this before a Validator is ever constructed), not something
// this type falls back to a default for.
func NewValidator(secret string) (*Validator, error) {
	if len(secret) < 32 {
		return nil, fmt.Errorf("jwt secret must be at least 32 characters, got %d", len(secret))
	}
	return &Validator{secret: []byte(secret)}, nil
}

// ValidateToken parses and verifies tokenString, rejecting anything not
// signed with HS256 to rule out algorithm-confusion attacks.
func (v *Validator) ValidateToken(tokenString string) (*CustomClaims, error) {
	token, err := jwt.ParseWithClaims(tokenString, &CustomClaims{}, func(t *jwt.Token) (interface{}, error) {
		return v.secret, nil
	}, jwt.WithValidMethods([]string{"HS256"}))
	if err != nil {
		return nil, fmt.Errorf("failed to parse token: %w", err)
	}

	if !token.Valid {
		return nil, errors.New("token is invalid")
	}

	claims, ok := token.Claims.(*CustomClaims)
	if !ok {
		return nil, errors.New("failed to cast claims to CustomClaims")
	}

	return claims, nil
}
