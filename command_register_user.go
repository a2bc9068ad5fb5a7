package accounts

import (
	"context"
	"time"

	goerrors "github.com/goliatone/go-errors"
	"github.com/uptrace/bun"
)

type RegisterUserMessage struct {
	Username   string `json:"username"`
	Email      string `json:"email"`
	Password   string `json:"password"`
	OnResponse func(resp *RegisterUserResponse)
}

func (e RegisterUserMessage) Type() string { return "user.register" }

type RegisterUserResponse struct {
	User  *User
	Token *ActivationToken
}

// RegisterUserHandler creates the account and its activation token in one
// transaction, then sends the activation email. The email is best effort:
// a delivery failure is logged, never surfaced to the caller.
type RegisterUserHandler struct {
	repo     RepositoryManager
	notifier *ActivationNotifier
	logger   Logger
}

func NewRegisterUserHandler(repo RepositoryManager, notifier *ActivationNotifier) *RegisterUserHandler {
	return &RegisterUserHandler{
		repo:     repo,
		notifier: notifier,
		logger:   defLogger{},
	}
}

func (h *RegisterUserHandler) WithLogger(logger Logger) *RegisterUserHandler {
	if logger != nil {
		h.logger = logger
	}
	return h
}

func (h *RegisterUserHandler) Execute(ctx context.Context, event RegisterUserMessage) error {
	select {
	case <-ctx.Done():
		return goerrors.Wrap(
			ctx.Err(),
			goerrors.CategoryOperation,
			"context cancelled during user registration",
		)
	default:
		return h.execute(ctx, event)
	}
}

func (h *RegisterUserHandler) execute(ctx context.Context, event RegisterUserMessage) error {
	resp := &RegisterUserResponse{}

	ctx, cancel := context.WithTimeout(ctx, time.Second*10)
	defer cancel()

	err := h.repo.RunInTx(ctx, nil, func(ctx context.Context, tx bun.Tx) error {
		user := &User{
			Username: event.Username,
			Email:    event.Email,
			Password: event.Password,
		}

		var err error
		if resp.User, err = h.repo.Users().CreateTx(ctx, tx, user); err != nil {
			return err
		}

		if resp.Token, err = h.repo.ActivationTokens().IssueTx(ctx, tx, resp.User.ID); err != nil {
			return err
		}

		return nil
	})

	if err != nil {
		var richErr *goerrors.Error
		if goerrors.As(err, &richErr) {
			return richErr
		}
		return goerrors.Wrap(err, goerrors.CategoryInternal, "user registration transaction failed")
	}

	if h.notifier != nil {
		go func(user *User, token *ActivationToken) {
			if err := h.notifier.Notify(context.Background(), user, token); err != nil {
				h.logger.Warn("failed to send activation email",
					"user_id", user.ID.String(),
					"error", err.Error(),
				)
			}
		}(resp.User, resp.Token)
	}

	if event.OnResponse != nil {
		event.OnResponse(resp)
	}

	return nil
}
