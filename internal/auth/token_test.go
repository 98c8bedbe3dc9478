// ABOUTME: Tests for JWT agent token generation and verification
// ABOUTME: Covers round-trip, wrong secret, expiry, and malformed tokens

package auth

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestJWTVerifier_RoundTrip(t *testing.T) {
	v := NewJWTVerifier([]byte("test-secret"))

	token, err := v.Generate("csr1", time.Hour)
	require.NoError(t, err)
	require.NotEmpty(t, token)

	agentID, err := v.Verify(token)
	require.NoError(t, err)
	assert.Equal(t, "csr1", agentID)
}

func TestJWTVerifier_WrongSecretRejected(t *testing.T) {
	v1 := NewJWTVerifier([]byte("secret-one"))
	v2 := NewJWTVerifier([]byte("secret-two"))

	token, err := v1.Generate("csr1", time.Hour)
	require.NoError(t, err)

	_, err = v2.Verify(token)
	assert.ErrorIs(t, err, ErrInvalidToken)
}

func TestJWTVerifier_ExpiredTokenRejected(t *testing.T) {
	v := NewJWTVerifier([]byte("test-secret"))

	token, err := v.Generate("csr1", -time.Minute)
	require.NoError(t, err)

	_, err = v.Verify(token)
	assert.ErrorIs(t, err, ErrExpiredToken)
}

func TestJWTVerifier_GarbageRejected(t *testing.T) {
	v := NewJWTVerifier([]byte("test-secret"))

	_, err := v.Verify("not-a-jwt")
	assert.ErrorIs(t, err, ErrInvalidToken)
}
