package accounts

import (
	"context"
	"time"

	goerrors "github.com/goliatone/go-errors"
	"github.com/goliatone/go-repository-bun"
	"github.com/google/uuid"
	"github.com/uptrace/bun"
)

// DefaultSessionTTL is the sliding expiration window for login sessions.
const DefaultSessionTTL = 30 * 24 * time.Hour

// Sessions stores opaque login tokens server side. Keeping the token in a
// row (instead of a signed self-verifying token) costs a lookup per request
// but makes logout revoke immediately.
type Sessions interface {
	repository.Repository[*Session]

	Issue(ctx context.Context, userID uuid.UUID) (*Session, error)
	IssueTx(ctx context.Context, tx bun.IDB, userID uuid.UUID) (*Session, error)
	FindOneValidByToken(ctx context.Context, token string) (*Session, error)
	FindOneValidByTokenTx(ctx context.Context, tx bun.IDB, token string) (*Session, error)
	ExpireByID(ctx context.Context, id uuid.UUID) (*Session, error)
	ExpireByIDTx(ctx context.Context, tx bun.IDB, id uuid.UUID) (*Session, error)
	TTL() time.Duration
}

type sessions struct {
	repository.Repository[*Session]
	db  *bun.DB
	ttl time.Duration
}

var (
	_ Sessions                        = (*sessions)(nil)
	_ repository.Repository[*Session] = (*sessions)(nil)
)

type SessionsOption func(*sessions)

// WithSessionTTL overrides the sliding expiration window.
func WithSessionTTL(ttl time.Duration) SessionsOption {
	return func(s *sessions) {
		if ttl > 0 {
			s.ttl = ttl
		}
	}
}

func NewSessionsRepository(db *bun.DB, opts ...SessionsOption) Sessions {
	repo := repository.NewRepository[*Session](db, repository.ModelHandlers[*Session]{
		NewRecord: func() *Session { return &Session{} },
		GetID: func(s *Session) uuid.UUID {
			if s == nil {
				return uuid.Nil
			}
			return s.ID
		},
		SetID: func(s *Session, id uuid.UUID) {
			if s != nil {
				s.ID = id
			}
		},
		GetIdentifier: func() string {
			return "token"
		},
	})

	repoSessions := &sessions{
		Repository: repo,
		db:         db,
		ttl:        DefaultSessionTTL,
	}
	for _, opt := range opts {
		if opt != nil {
			opt(repoSessions)
		}
	}

	return repoSessions
}

func (a *sessions) TTL() time.Duration {
	return a.ttl
}

func (a *sessions) Issue(ctx context.Context, userID uuid.UUID) (*Session, error) {
	return a.IssueTx(ctx, a.db, userID)
}

// IssueTx mints a fresh opaque token and inserts the session with a full
// TTL window. The returned record is the only place the token is surfaced.
func (a *sessions) IssueTx(ctx context.Context, tx bun.IDB, userID uuid.UUID) (*Session, error) {
	token, err := NewSessionToken()
	if err != nil {
		return nil, err
	}

	now := time.Now()
	record := &Session{
		ID:        uuid.New(),
		Token:     token,
		UserID:    userID,
		ExpiresAt: now.Add(a.ttl),
		CreatedAt: &now,
		UpdatedAt: &now,
	}

	if _, err := tx.NewInsert().Model(record).Returning("*").Exec(ctx); err != nil {
		return nil, goerrors.Wrap(err, goerrors.CategoryInternal, "failed to insert session")
	}

	return record, nil
}

func (a *sessions) FindOneValidByToken(ctx context.Context, token string) (*Session, error) {
	return a.FindOneValidByTokenTx(ctx, a.db, token)
}

// FindOneValidByTokenTx resolves a live session and, in the same statement,
// slides expires_at forward to now+TTL and bumps updated_at. The conditional
// UPDATE keeps renewal atomic: an expired or revoked row matches nothing and
// the lookup fails as no-active-session.
func (a *sessions) FindOneValidByTokenTx(ctx context.Context, tx bun.IDB, token string) (*Session, error) {
	now := time.Now()
	record := &Session{}

	res, err := tx.NewUpdate().Model(record).
		Set("expires_at = ?", now.Add(a.ttl)).
		Set("updated_at = ?", now).
		Where("?TableAlias.token = ?", token).
		Where("?TableAlias.expires_at > ?", now).
		Returning("*").
		Exec(ctx)
	if err != nil {
		return nil, goerrors.Wrap(err, goerrors.CategoryInternal, "failed to renew session")
	}

	if n, err := res.RowsAffected(); err != nil || n == 0 {
		return nil, ErrNoActiveSession
	}

	return record, nil
}

func (a *sessions) ExpireByID(ctx context.Context, id uuid.UUID) (*Session, error) {
	return a.ExpireByIDTx(ctx, a.db, id)
}

// ExpireByIDTx revokes a session by moving expires_at into the past; the
// row stays around so the response can echo the expired record. Re-expiring
// an already expired session is allowed.
func (a *sessions) ExpireByIDTx(ctx context.Context, tx bun.IDB, id uuid.UUID) (*Session, error) {
	now := time.Now()
	record := &Session{}

	res, err := tx.NewUpdate().Model(record).
		Set("expires_at = ?", now.Add(-a.ttl)).
		Set("updated_at = ?", now).
		Where("?TableAlias.id = ?", id).
		Returning("*").
		Exec(ctx)
	if err != nil {
		return nil, goerrors.Wrap(err, goerrors.CategoryInternal, "failed to expire session")
	}

	if n, err := res.RowsAffected(); err != nil || n == 0 {
		return nil, sentinelWithMeta(ErrNoActiveSession, map[string]any{
			"session_id": id.String(),
		})
	}

	return record, nil
}
