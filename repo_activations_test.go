package accounts_test

import (
	"context"
	"testing"
	"time"

	"github.com/goliatone/go-accounts"
	goerrors "github.com/goliatone/go-errors"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestActivationTokensIssueAndFind(t *testing.T) {
	db := setupDB(t)
	user := createTestUser(t, accounts.NewUsersRepository(db), "peperone")
	repo := accounts.NewActivationTokensRepository(db)
	ctx := context.Background()

	token, err := repo.Issue(ctx, user.ID)
	require.NoError(t, err)

	assert.Equal(t, user.ID, token.UserID)
	assert.False(t, token.Used())
	assert.WithinDuration(t,
		time.Now().Add(accounts.DefaultActivationTokenTTL),
		token.ExpiresAt,
		time.Minute,
	)

	found, err := repo.FindOneValidByID(ctx, token.ID)
	require.NoError(t, err)
	assert.Equal(t, token.ID, found.ID)
}

func TestActivationTokensSingleUse(t *testing.T) {
	db := setupDB(t)
	user := createTestUser(t, accounts.NewUsersRepository(db), "peperone")
	repo := accounts.NewActivationTokensRepository(db)
	ctx := context.Background()

	token, err := repo.Issue(ctx, user.ID)
	require.NoError(t, err)

	used, err := repo.MarkUsed(ctx, token.ID)
	require.NoError(t, err)
	assert.True(t, used.Used())

	// second consumption fails, as does any further lookup
	_, err = repo.MarkUsed(ctx, token.ID)
	require.Error(t, err)
	assert.True(t, goerrors.IsNotFound(err))
	assert.ErrorIs(t, err, accounts.ErrActivationTokenNotFound)

	_, err = repo.FindOneValidByID(ctx, token.ID)
	require.Error(t, err)
	assert.True(t, goerrors.IsNotFound(err))
}

func TestActivationTokensExpire(t *testing.T) {
	db := setupDB(t)
	user := createTestUser(t, accounts.NewUsersRepository(db), "peperone")
	repo := accounts.NewActivationTokensRepository(db, accounts.WithActivationTokenTTL(time.Millisecond))
	ctx := context.Background()

	token, err := repo.Issue(ctx, user.ID)
	require.NoError(t, err)

	time.Sleep(10 * time.Millisecond)

	_, err = repo.FindOneValidByID(ctx, token.ID)
	require.Error(t, err)
	assert.True(t, goerrors.IsNotFound(err))

	_, err = repo.MarkUsed(ctx, token.ID)
	require.Error(t, err)
	assert.True(t, goerrors.IsNotFound(err))
}

func TestActivationTokensUnknownID(t *testing.T) {
	db := setupDB(t)
	user := createTestUser(t, accounts.NewUsersRepository(db), "peperone")
	repo := accounts.NewActivationTokensRepository(db)

	_, err := repo.FindOneValidByID(context.Background(), user.ID)
	require.Error(t, err)
	assert.True(t, goerrors.IsNotFound(err))
}
