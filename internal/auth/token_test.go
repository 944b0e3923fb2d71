// ABOUTME: Unit tests for JWT token verification and generation
// ABOUTME: Tests valid tokens, invalid tokens, and expired tokens

package auth

import (
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newTestVerifier(t *testing.T) *JWTVerifier {
	t.Helper()
	v, err := NewJWTVerifier([]byte("test-secret-key-for-jwt-signing"))
	require.NoError(t, err)
	return v
}

func TestNewJWTVerifier_RejectsEmptySecret(t *testing.T) {
	_, err := NewJWTVerifier(nil)
	assert.Error(t, err)
}

func TestJWTVerifier_ValidToken(t *testing.T) {
	v := newTestVerifier(t)

	token, err := v.Generate("user-123", time.Hour)
	require.NoError(t, err)

	gotID, err := v.Verify(token)
	require.NoError(t, err)
	assert.Equal(t, "user-123", gotID)
}

func TestJWTVerifier_InvalidToken(t *testing.T) {
	v := newTestVerifier(t)

	tests := []struct {
		name  string
		token string
	}{
		{name: "empty token", token: ""},
		{name: "garbage token", token: "not-a-jwt-token"},
		{name: "malformed JWT", token: "header.payload.signature"},
		{
			name: "wrong secret",
			token: func() string {
				other, _ := NewJWTVerifier([]byte("different-secret"))
				token, _ := other.Generate("user-123", time.Hour)
				return token
			}(),
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := v.Verify(tt.token)
			assert.Error(t, err)
		})
	}
}

func TestJWTVerifier_ExpiredToken(t *testing.T) {
	v := newTestVerifier(t)

	token, err := v.Generate("user-123", -time.Hour)
	require.NoError(t, err)

	_, err = v.Verify(token)
	assert.True(t, errors.Is(err, ErrExpiredToken))
}
