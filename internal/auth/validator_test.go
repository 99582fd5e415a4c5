package auth

import (
	"testing"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const testSecret = "this-is-a-very-long-secret-key-for-testing-purposes"

func signToken(t *testing.T, secret string, claims *CustomClaims) string {
	t.Helper()
	token := jwt.NewWithClaims(jwt.SigningMethodHS256, claims)
	s, err := token.SignedString([]byte(secret))
	require.NoError(t, err)
	return s
}

func TestNewValidator_RejectsShortSecret(t *testing.T) {
	_, err := NewValidator("too-short")
	assert.Error(t, err)
}

func TestValidateToken_Valid(t *testing.T) {
	v, err := NewValidator(testSecret)
	require.NoError(t, err)

	claims := &CustomClaims{
		UserID: "42",
		RegisteredClaims: jwt.RegisteredClaims{
			Subject:   "user@example.com",
			ExpiresAt: jwt.NewNumericDate(time.Now().Add(time.Hour)),
		},
	}
	tok := signToken(t, testSecret, claims)

	got, err := v.ValidateToken(tok)
	require.NoError(t, err)
	assert.Equal(t, "42", got.UserID)
	assert.Equal(t, "user@example.com", got.Subject)
}

func TestValidateToken_Expired(t *testing.T) {
	v, err := NewValidator(testSecret)
	require.NoError(t, err)

	claims := &CustomClaims{
		UserID: "42",
		RegisteredClaims: jwt.RegisteredClaims{
			ExpiresAt: jwt.NewNumericDate(time.Now().Add(-time.Hour)),
		},
	}
	tok := signToken(t, testSecret, claims)

	_, err = v.ValidateToken(tok)
	assert.Error(t, err)
}

func TestValidateToken_WrongSecret(t *testing.T) {
	v, err := NewValidator(testSecret)
	require.NoError(t, err)

	claims := &CustomClaims{UserID: "42"}
	tok := signToken(t, "a-completely-different-secret-value", claims)

	_, err = v.ValidateToken(tok)
	assert.Error(t, err)
}

func TestValidateToken_RejectsAlgNone(t *testing.T) {
	v, err := NewValidator(testSecret)
	require.NoError(t, err)

	token := jwt.NewWithClaims(jwt.SigningMethodNone, &CustomClaims{UserID: "attacker"})
	tok, err := token.SignedString(jwt.UnsafeAllowNoneSignatureType)
	require.NoError(t, err)

	_, err = v.ValidateToken(tok)
	assert.Error(t, err)
}
