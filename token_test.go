package accounts_test

import (
	"encoding/hex"
	"testing"

	"github.com/goliatone/go-accounts"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNewSessionToken(t *testing.T) {
	token, err := accounts.NewSessionToken()
	require.NoError(t, err)

	assert.Len(t, token, 96)

	_, err = hex.DecodeString(token)
	assert.NoError(t, err)
}

func TestNewSessionTokenUnique(t *testing.T) {
	seen := map[string]bool{}
	for i := 0; i < 50; i++ {
		token, err := accounts.NewSessionToken()
		require.NoError(t, err)
		assert.False(t, seen[token])
		seen[token] = true
	}
}
