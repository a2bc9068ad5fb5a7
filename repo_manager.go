package accounts

import (
	"context"
	"database/sql"
	"errors"
	"log"

	"github.com/uptrace/bun"
)

// RepositoryManager exposes all repositories
type RepositoryManager interface {
	Validate() error
	MustValidate()
	RunInTx(ctx context.Context, opts *sql.TxOptions, f func(ctx context.Context, tx bun.Tx) error) error
	Users() Users
	Sessions() Sessions
	ActivationTokens() ActivationTokens
}

type mngr struct {
	db               *bun.DB
	users            Users
	sessions         Sessions
	activationTokens ActivationTokens
}

type ManagerOption func(*mngr)

// WithSessionsRepository swaps the sessions repository, mainly so tests can
// shrink the TTL.
func WithSessionsRepository(sessions Sessions) ManagerOption {
	return func(m *mngr) {
		m.sessions = sessions
	}
}

// WithActivationTokensRepository swaps the activation token repository.
func WithActivationTokensRepository(tokens ActivationTokens) ManagerOption {
	return func(m *mngr) {
		m.activationTokens = tokens
	}
}

func NewRepositoryManager(db *bun.DB, opts ...ManagerOption) RepositoryManager {
	m := &mngr{
		db:               db,
		users:            NewUsersRepository(db),
		sessions:         NewSessionsRepository(db),
		activationTokens: NewActivationTokensRepository(db),
	}

	for _, opt := range opts {
		if opt != nil {
			opt(m)
		}
	}

	return m
}

func (m mngr) Validate() error {
	if m.users == nil {
		return errors.New("repository users should be initialized")
	}

	if m.sessions == nil {
		return errors.New("repository sessions should be initialized")
	}

	if m.activationTokens == nil {
		return errors.New("repository activationTokens should be initialized")
	}

	return nil
}

func (m mngr) MustValidate() {
	if err := m.Validate(); err != nil {
		log.Panic(err)
	}
}

func (m mngr) RunInTx(ctx context.Context, opts *sql.TxOptions, f func(ctx context.Context, tx bun.Tx) error) error {
	select {
	case <-ctx.Done():
		return ctx.Err()
	default:
		return m.db.RunInTx(ctx, opts, f)
	}
}

func (m mngr) Users() Users {
	return m.users
}

func (m mngr) Sessions() Sessions {
	return m.sessions
}

func (m mngr) ActivationTokens() ActivationTokens {
	return m.activationTokens
}
