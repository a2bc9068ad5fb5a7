package accounts_test

import (
	"testing"

	"github.com/goliatone/go-accounts"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestHashPassword(t *testing.T) {
	hash, err := accounts.HashPassword("correct horse battery staple")
	require.NoError(t, err)

	assert.NotEqual(t, "correct horse battery staple", hash)
	assert.True(t, len(hash) > 0)

	// same input hashes to a different digest each time
	hash2, err := accounts.HashPassword("correct horse battery staple")
	require.NoError(t, err)
	assert.NotEqual(t, hash, hash2)
}

func TestHashPasswordRejectsEmpty(t *testing.T) {
	_, err := accounts.HashPassword("")
	assert.Error(t, err)
}

func TestComparePasswordAndHash(t *testing.T) {
	hash, err := accounts.HashPassword("sup3r-secret")
	require.NoError(t, err)

	tests := []struct {
		name     string
		password string
		hash     string
		wantErr  bool
	}{
		{"matching password", "sup3r-secret", hash, false},
		{"wrong password", "not-the-secret", hash, true},
		{"malformed digest", "sup3r-secret", "not-a-bcrypt-digest", true},
		{"empty password", "", hash, true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := accounts.ComparePasswordAndHash(tt.password, tt.hash)
			if tt.wantErr {
				assert.Error(t, err)
			} else {
				assert.NoError(t, err)
			}
		})
	}
}
