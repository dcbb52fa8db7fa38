package auth

import (
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func testKey(b byte) []byte {
	key := make([]byte, 32)
	for i := range key {
		key[i] = b
	}
	return key
}

func TestNewPasetoServiceKeyLength(t *testing.T) {
	_, err := NewPasetoService([]byte("too-short"))
	assert.Error(t, err)

	_, err = NewPasetoService(testKey('k'))
	assert.NoError(t, err)
}

func TestPasetoRoundTrip(t *testing.T) {
	svc, err := NewPasetoService(testKey('k'))
	require.NoError(t, err)

	token, err := svc.CreateToken(42, "ada@example.com", time.Hour)
	require.NoError(t, err)
	assert.True(t, strings.HasPrefix(token, "v4.local."))

	claims, err := svc.VerifyToken(token)
	require.NoError(t, err)
	assert.Equal(t, int64(42), claims.UserID)
	assert.Equal(t, "ada@example.com", claims.Email)
	assert.WithinDuration(t, time.Now().Add(time.Hour), claims.ExpiresAt, time.Minute)
}

func TestPasetoExpiredToken(t *testing.T) {
	svc, err := NewPasetoService(testKey('k'))
	require.NoError(t, err)

	token, err := svc.CreateToken(42, "ada@example.com", -time.Minute)
	require.NoError(t, err)

	claims, err := svc.VerifyToken(token)
	assert.Nil(t, claims)
	assert.ErrorIs(t, err, ErrExpiredToken)
}

func TestPasetoWrongKey(t *testing.T) {
	issuer, err := NewPasetoService(testKey('a'))
	require.NoError(t, err)
	verifier, err := NewPasetoService(testKey('b'))
	require.NoError(t, err)

	token, err := issuer.CreateToken(42, "ada@example.com", time.Hour)
	require.NoError(t, err)

	claims, err := verifier.VerifyToken(token)
	assert.Nil(t, claims)
	assert.ErrorIs(t, err, ErrInvalidToken)
}

func TestPasetoTamperedToken(t *testing.T) {
	svc, err := NewPasetoService(testKey('k'))
	require.NoError(t, err)

	token, err := svc.CreateToken(42, "ada@example.com", time.Hour)
	require.NoError(t, err)

	tampered := token[:len(token)-4] + "AAAA"
	claims, err := svc.VerifyToken(tampered)
	assert.Nil(t, claims)
	assert.ErrorIs(t, err, ErrInvalidToken)

	claims, err = svc.VerifyToken("not-a-token")
	assert.Nil(t, claims)
	assert.ErrorIs(t, err, ErrInvalidToken)
}
