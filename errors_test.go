package accounts_test

import (
	"errors"
	"testing"

	"github.com/goliatone/go-accounts"
	goerrors "github.com/goliatone/go-errors"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestSentinelErrorCodes(t *testing.T) {
	tests := []struct {
		name string
		err  *goerrors.Error
		code int
	}{
		{"invalid credentials", accounts.ErrInvalidCredentials, goerrors.CodeUnauthorized},
		{"no active session", accounts.ErrNoActiveSession, goerrors.CodeUnauthorized},
		{"username taken", accounts.ErrUsernameTaken, goerrors.CodeBadRequest},
		{"email taken", accounts.ErrEmailTaken, goerrors.CodeBadRequest},
		{"user not found", accounts.ErrUserNotFound, goerrors.CodeNotFound},
		{"token not found", accounts.ErrActivationTokenNotFound, goerrors.CodeNotFound},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.code, tt.err.Code)
			// every client facing error carries a remediation hint
			action, ok := tt.err.Metadata["action"].(string)
			assert.True(t, ok)
			assert.NotEmpty(t, action)
		})
	}
}

func TestNewMissingFeatureError(t *testing.T) {
	err := accounts.NewMissingFeatureError(accounts.FeatureReadSession)

	assert.Equal(t, goerrors.CodeForbidden, err.Code)
	assert.Equal(t, accounts.FeatureReadSession, err.Metadata["required_feature"])

	action, _ := err.Metadata["action"].(string)
	assert.Contains(t, action, accounts.FeatureReadSession)
}

func TestIsUnauthorized(t *testing.T) {
	assert.True(t, accounts.IsUnauthorized(accounts.ErrNoActiveSession))
	assert.True(t, accounts.IsUnauthorized(accounts.ErrInvalidCredentials))
	assert.False(t, accounts.IsUnauthorized(accounts.ErrUserNotFound))
	assert.False(t, accounts.IsUnauthorized(errors.New("plain error")))
	assert.False(t, accounts.IsUnauthorized(nil))
}

func TestCloneWithMetadataDoesNotMutateSentinel(t *testing.T) {
	err := accounts.ErrUserNotFound.Clone().WithMetadata(map[string]any{"username": "peperone"})
	require.NotNil(t, err)

	assert.Equal(t, "peperone", err.Metadata["username"])
	assert.NotContains(t, accounts.ErrUserNotFound.Metadata, "username")
}
