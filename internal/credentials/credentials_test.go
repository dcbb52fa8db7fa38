package credentials

import (
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestHashPassword_ProducesVerifiableHash(t *testing.T) {
	hash, err := HashPassword("Pw12345678")
	require.NoError(t, err)

	assert.True(t, strings.HasPrefix(hash, "$argon2id$"))
	assert.NotContains(t, hash, "Pw12345678")
	assert.True(t, VerifyPassword(hash, "Pw12345678"))
}

func TestHashPassword_SaltsDiffer(t *testing.T) {
	first, err := HashPassword("samepassword")
	require.NoError(t, err)
	second, err := HashPassword("samepassword")
	require.NoError(t, err)

	assert.NotEqual(t, first, second, "two hashes of the same password must use different salts")
	assert.True(t, VerifyPassword(first, "samepassword"))
	assert.True(t, VerifyPassword(second, "samepassword"))
}

func TestVerifyPassword_RejectsWrongPassword(t *testing.T) {
	hash, err := HashPassword("correct-horse")
	require.NoError(t, err)

	assert.False(t, VerifyPassword(hash, "battery-staple"))
	assert.False(t, VerifyPassword(hash, ""))
}

func TestVerifyPassword_RejectsMalformedHash(t *testing.T) {
	tests := []struct {
		name string
		hash string
	}{
		{"empty", ""},
		{"plain text", "not-a-hash"},
		{"wrong part count", "$argon2id$v=19$m=65536,t=3,p=4$onlysalt"},
		{"bad salt encoding", "$argon2id$v=19$m=65536,t=3,p=4$!!!$aGFzaA"},
		{"bad hash encoding", "$argon2id$v=19$m=65536,t=3,p=4$c2FsdA$!!!"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.False(t, VerifyPassword(tt.hash, "whatever"))
		})
	}
}

func TestGenerateToken_Entropy(t *testing.T) {
	seen := make(map[string]bool)
	for i := 0; i < 100; i++ {
		token, err := GenerateToken()
		require.NoError(t, err)

		// 32 bytes base64 encoded with padding
		assert.Len(t, token, 44)
		assert.False(t, seen[token], "tokens must not repeat")
		seen[token] = true
	}
}
