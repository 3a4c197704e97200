package service

import (
	"testing"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const testSecret = "test-secret-key-that-is-at-least-32-chars"

func TestTokenService_SignAndValidate(t *testing.T) {
	svc := NewTokenService(testSecret)

	token, err := svc.Sign("dockmgr", RoleWrite, time.Hour)
	require.NoError(t, err)

	claims, err := svc.ValidateToken(token)
	require.NoError(t, err)
	assert.Equal(t, "dockmgr", claims.Username)
	assert.Equal(t, RoleWrite, claims.Role)
}

func TestTokenService_Expired(t *testing.T) {
	svc := NewTokenService(testSecret)

	token, err := svc.Sign("dockmgr", RoleRead, -time.Minute)
	require.NoError(t, err)

	_, err = svc.ValidateToken(token)
	assert.ErrorIs(t, err, ErrExpiredToken)
}

func TestTokenService_WrongSecret(t *testing.T) {
	token, err := NewTokenService("another-secret-key-with-32-characters!").Sign("x", RoleAdmin, time.Hour)
	require.NoError(t, err)

	_, err = NewTokenService(testSecret).ValidateToken(token)
	assert.ErrorIs(t, err, ErrInvalidToken)
}

func TestTokenService_RejectsNonHMAC(t *testing.T) {
	claims := Claims{
		Username: "x",
		Role:     RoleAdmin,
		RegisteredClaims: jwt.RegisteredClaims{
			ExpiresAt: jwt.NewNumericDate(time.Now().Add(time.Hour)),
		},
	}
	unsigned, err := jwt.NewWithClaims(jwt.SigningMethodNone, claims).SignedString(jwt.UnsafeAllowNoneSignatureType)
	require.NoError(t, err)

	_, err = NewTokenService(testSecret).ValidateToken(unsigned)
	assert.ErrorIs(t, err, ErrInvalidToken)
}

func TestTokenService_MissingExpiry(t *testing.T) {
	token, err := jwt.NewWithClaims(jwt.SigningMethodHS256, Claims{Username: "x", Role: RoleRead}).
		SignedString([]byte(testSecret))
	require.NoError(t, err)

	_, err = NewTokenService(testSecret).ValidateToken(token)
	assert.ErrorIs(t, err, ErrInvalidToken)
}

func TestTokenService_Garbage(t *testing.T) {
	_, err := NewTokenService(testSecret).ValidateToken("not-a-token")
	assert.ErrorIs(t, err, ErrInvalidToken)
}
