package auth

import (
	"testing"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestJWTService_RoundTrip(t *testing.T) {
	svc := NewJWTService("test-secret", "task-notifier")

	token, err := svc.GenerateToken(Claims{UserID: "u1", Email: "ana@example.com", Role: "admin"}, time.Hour)
	require.NoError(t, err)

	claims, err := svc.ValidateToken(token)
	require.NoError(t, err)
	assert.Equal(t, "u1", claims.UserID)
	assert.Equal(t, "ana@example.com", claims.Email)
	assert.Equal(t, "admin", claims.Role)
	assert.Equal(t, "u1", claims.Subject)
}

func TestJWTService_Rejects(t *testing.T) {
	svc := NewJWTService("test-secret", "task-notifier")

	expired, err := svc.GenerateToken(Claims{UserID: "u1"}, -time.Minute)
	require.NoError(t, err)

	foreign, err := NewJWTService("other-secret", "task-notifier").GenerateToken(Claims{UserID: "u1"}, time.Hour)
	require.NoError(t, err)

	wrongIssuer, err := NewJWTService("test-secret", "someone-else").GenerateToken(Claims{UserID: "u1"}, time.Hour)
	require.NoError(t, err)

	noneAlg, err := jwt.NewWithClaims(jwt.SigningMethodNone, Claims{UserID: "u1"}).
		SignedString(jwt.UnsafeAllowNoneSignatureType)
	require.NoError(t, err)

	tests := map[string]string{
		"expired":      expired,
		"wrong secret": foreign,
		"wrong issuer": wrongIssuer,
		"alg none":     noneAlg,
		"garbage":      "not.a.token",
	}
	for name, token := range tests {
		t.Run(name, func(t *testing.T) {
			_, err := svc.ValidateToken(token)
			assert.ErrorIs(t, err, ErrInvalidToken)
		})
	}

	_, err = svc.ValidateToken("")
	assert.ErrorIs(t, err, ErrMissingToken)
}
