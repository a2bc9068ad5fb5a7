package accounts

import (
	"context"
	"database/sql"
	"time"

	goerrors "github.com/goliatone/go-errors"
	"github.com/goliatone/go-repository-bun"
	"github.com/google/uuid"
	"github.com/uptrace/bun"
)

// DefaultActivationTokenTTL is how long a freshly issued activation token
// stays consumable.
const DefaultActivationTokenTTL = 15 * time.Minute

// ActivationTokens issues time limited, single use tokens gating account
// activation. Validity is a predicate (unused AND unexpired), not a stored
// status flag, so a consumed or stale token simply stops matching.
type ActivationTokens interface {
	repository.Repository[*ActivationToken]

	Issue(ctx context.Context, userID uuid.UUID) (*ActivationToken, error)
	IssueTx(ctx context.Context, tx bun.IDB, userID uuid.UUID) (*ActivationToken, error)
	FindOneValidByID(ctx context.Context, id uuid.UUID) (*ActivationToken, error)
	FindOneValidByIDTx(ctx context.Context, tx bun.IDB, id uuid.UUID) (*ActivationToken, error)
	MarkUsed(ctx context.Context, id uuid.UUID) (*ActivationToken, error)
	MarkUsedTx(ctx context.Context, tx bun.IDB, id uuid.UUID) (*ActivationToken, error)
	TTL() time.Duration
}

type activationTokens struct {
	repository.Repository[*ActivationToken]
	db  *bun.DB
	ttl time.Duration
}

var (
	_ ActivationTokens                        = (*activationTokens)(nil)
	_ repository.Repository[*ActivationToken] = (*activationTokens)(nil)
)

type ActivationTokensOption func(*activationTokens)

// WithActivationTokenTTL overrides the token lifetime.
func WithActivationTokenTTL(ttl time.Duration) ActivationTokensOption {
	return func(a *activationTokens) {
		if ttl > 0 {
			a.ttl = ttl
		}
	}
}

func NewActivationTokensRepository(db *bun.DB, opts ...ActivationTokensOption) ActivationTokens {
	repo := repository.NewRepository[*ActivationToken](db, repository.ModelHandlers[*ActivationToken]{
		NewRecord: func() *ActivationToken { return &ActivationToken{} },
		GetID: func(t *ActivationToken) uuid.UUID {
			if t == nil {
				return uuid.Nil
			}
			return t.ID
		},
		SetID: func(t *ActivationToken, id uuid.UUID) {
			if t != nil {
				t.ID = id
			}
		},
	})

	repoTokens := &activationTokens{
		Repository: repo,
		db:         db,
		ttl:        DefaultActivationTokenTTL,
	}
	for _, opt := range opts {
		if opt != nil {
			opt(repoTokens)
		}
	}

	return repoTokens
}

func (a *activationTokens) TTL() time.Duration {
	return a.ttl
}

func (a *activationTokens) Issue(ctx context.Context, userID uuid.UUID) (*ActivationToken, error) {
	return a.IssueTx(ctx, a.db, userID)
}

func (a *activationTokens) IssueTx(ctx context.Context, tx bun.IDB, userID uuid.UUID) (*ActivationToken, error) {
	now := time.Now()
	record := &ActivationToken{
		ID:        uuid.New(),
		UserID:    userID,
		ExpiresAt: now.Add(a.ttl),
		CreatedAt: &now,
		UpdatedAt: &now,
	}

	if _, err := tx.NewInsert().Model(record).Returning("*").Exec(ctx); err != nil {
		return nil, goerrors.Wrap(err, goerrors.CategoryInternal, "failed to insert activation token")
	}

	return record, nil
}

func (a *activationTokens) FindOneValidByID(ctx context.Context, id uuid.UUID) (*ActivationToken, error) {
	return a.FindOneValidByIDTx(ctx, a.db, id)
}

func (a *activationTokens) FindOneValidByIDTx(ctx context.Context, tx bun.IDB, id uuid.UUID) (*ActivationToken, error) {
	record := &ActivationToken{}
	err := tx.NewSelect().Model(record).
		Where("?TableAlias.id = ?", id).
		Where("?TableAlias.used_at IS NULL").
		Where("?TableAlias.expires_at > ?", time.Now()).
		Limit(1).
		Scan(ctx)
	if err != nil {
		if err == sql.ErrNoRows {
			return nil, sentinelWithMeta(ErrActivationTokenNotFound, map[string]any{
				"token_id": id.String(),
			})
		}
		return nil, goerrors.Wrap(err, goerrors.CategoryInternal, "activation token lookup failed")
	}

	return record, nil
}

func (a *activationTokens) MarkUsed(ctx context.Context, id uuid.UUID) (*ActivationToken, error) {
	return a.MarkUsedTx(ctx, a.db, id)
}

// MarkUsedTx consumes the token. The conditional UPDATE re-states the
// validity predicate, so two concurrent consumers resolve to one success and
// one not-found at the storage layer.
func (a *activationTokens) MarkUsedTx(ctx context.Context, tx bun.IDB, id uuid.UUID) (*ActivationToken, error) {
	now := time.Now()
	record := &ActivationToken{}

	res, err := tx.NewUpdate().Model(record).
		Set("used_at = ?", now).
		Set("updated_at = ?", now).
		Where("?TableAlias.id = ?", id).
		Where("?TableAlias.used_at IS NULL").
		Where("?TableAlias.expires_at > ?", now).
		Returning("*").
		Exec(ctx)
	if err != nil {
		return nil, goerrors.Wrap(err, goerrors.CategoryInternal, "failed to consume activation token")
	}

	if n, err := res.RowsAffected(); err != nil || n == 0 {
		return nil, sentinelWithMeta(ErrActivationTokenNotFound, map[string]any{
			"token_id": id.String(),
		})
	}

	return record, nil
}
