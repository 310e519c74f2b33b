package jwttoken

import (
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	dErrors "secretsportal/pkg/domain-errors"
)

func TestTokenRoundTrip(t *testing.T) {
	svc := NewJWTService("test-signing-key", "secrets-portal")

	token, err := svc.GenerateAccessToken("user-1", "alice@example.com",
		[]string{"payments-developer", "billing-prod-viewer"}, time.Hour)
	require.NoError(t, err)

	claims, err := svc.ValidateToken(token)
	require.NoError(t, err)
	require.Equal(t, "user-1", claims.Subject)
	require.Equal(t, "alice@example.com", claims.Email)
	require.Equal(t, []string{"payments-developer", "billing-prod-viewer"}, claims.Groups)
}

func TestExpiredTokenRejected(t *testing.T) {
	svc := NewJWTService("test-signing-key", "secrets-portal")

	token, err := svc.GenerateAccessToken("user-1", "alice@example.com", nil, -time.Minute)
	require.NoError(t, err)

	_, err = svc.ValidateToken(token)
	require.Error(t, err)
	require.True(t, dErrors.HasCode(err, dErrors.CodeUnauthorized))
	require.Contains(t, err.Error(), "expired")
}

func TestWrongKeyRejected(t *testing.T) {
	minter := NewJWTService("key-one", "secrets-portal")
	verifier := NewJWTService("key-two", "secrets-portal")

	token, err := minter.GenerateAccessToken("user-1", "alice@example.com", nil, time.Hour)
	require.NoError(t, err)

	_, err = verifier.ValidateToken(token)
	require.True(t, dErrors.HasCode(err, dErrors.CodeUnauthorized))
}

func TestWrongIssuerRejected(t *testing.T) {
	minter := NewJWTService("test-signing-key", "someone-else")
	verifier := NewJWTService("test-signing-key", "secrets-portal")

	token, err := minter.GenerateAccessToken("user-1", "alice@example.com", nil, time.Hour)
	require.NoError(t, err)

	_, err = verifier.ValidateToken(token)
	require.True(t, dErrors.HasCode(err, dErrors.CodeUnauthorized))
}

func TestGarbageTokenRejected(t *testing.T) {
	svc := NewJWTService("test-signing-key", "secrets-portal")
	_, err := svc.ValidateToken("not-a-token")
	require.True(t, dErrors.HasCode(err, dErrors.CodeUnauthorized))
}
