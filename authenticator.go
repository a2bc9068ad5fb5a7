package accounts

import (
	"context"

	goerrors "github.com/goliatone/go-errors"
)

// dummyPasswordHash is a throwaway digest compared against when the email
// lookup misses, so unknown-email and wrong-password take the same time.
const dummyPasswordHash = "$2a$14$8bF3mXoyUOpZNbYHWIh1F.9mYvvsFqgPXCaspnlSD9RGNQtrQN7gm"

// Authenticator verifies credentials and manages the session lifecycle
// around them.
type Authenticator struct {
	repo   RepositoryManager
	logger Logger
}

// NewAuthenticator returns a new Authenticator
func NewAuthenticator(repo RepositoryManager) *Authenticator {
	return &Authenticator{
		repo:   repo,
		logger: defLogger{},
	}
}

func (a *Authenticator) WithLogger(logger Logger) *Authenticator {
	if logger != nil {
		a.logger = logger
	}
	return a
}

// Authenticate resolves the email to a user and verifies the password.
// Unknown email and wrong password both come back as ErrInvalidCredentials;
// the response body never distinguishes the two. A user whose feature set
// does not include create:session (not yet activated) is rejected with a
// Forbidden naming the feature.
func (a *Authenticator) Authenticate(ctx context.Context, email, password string) (*User, error) {
	user, err := a.repo.Users().FindOneByEmail(ctx, email)
	if err != nil {
		if goerrors.IsNotFound(err) {
			// burn a comparison anyway to equalize timing
			_ = ComparePasswordAndHash(password, dummyPasswordHash)
			return nil, ErrInvalidCredentials
		}
		return nil, goerrors.Wrap(err, goerrors.CategoryInternal, "failed to retrieve user during authentication")
	}

	if err := ComparePasswordAndHash(password, user.Password); err != nil {
		return nil, ErrInvalidCredentials
	}

	if !user.HasFeature(FeatureCreateSession) {
		a.logger.Info("login blocked, account not activated", "user_id", user.ID.String())
		return nil, NewMissingFeatureError(FeatureCreateSession)
	}

	return user, nil
}

// Login authenticates the credentials and opens a fresh session. The
// returned record carries the opaque token the cookie will hold.
func (a *Authenticator) Login(ctx context.Context, email, password string) (*Session, error) {
	user, err := a.Authenticate(ctx, email, password)
	if err != nil {
		return nil, err
	}

	session, err := a.repo.Sessions().Issue(ctx, user.ID)
	if err != nil {
		return nil, err
	}

	a.logger.Debug("session created", "user_id", user.ID.String(), "session_id", session.ID.String())
	return session, nil
}

// Logout revokes the session immediately; the expired record is returned so
// the boundary can echo it.
func (a *Authenticator) Logout(ctx context.Context, session *Session) (*Session, error) {
	if session == nil {
		return nil, ErrNoActiveSession
	}
	return a.repo.Sessions().ExpireByID(ctx, session.ID)
}

// ResolveToken maps a session cookie to its owning user, renewing the
// session as a side effect. Dead tokens surface as no-active-session.
func (a *Authenticator) ResolveToken(ctx context.Context, token string) (*Session, *User, error) {
	session, err := a.repo.Sessions().FindOneValidByToken(ctx, token)
	if err != nil {
		return nil, nil, err
	}

	user, err := a.repo.Users().FindOneByID(ctx, session.UserID)
	if err != nil {
		if goerrors.IsNotFound(err) {
			// orphaned session; treat as unauthenticated
			return nil, nil, ErrNoActiveSession
		}
		return nil, nil, err
	}

	return session, user, nil
}
