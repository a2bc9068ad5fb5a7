package accounts

import (
	"context"
	"time"

	goerrors "github.com/goliatone/go-errors"
	"github.com/google/uuid"
	"github.com/uptrace/bun"
)

type ActivateUserMessage struct {
	TokenID    uuid.UUID `json:"token_id"`
	OnResponse func(resp *ActivateUserResponse)
}

func (e ActivateUserMessage) Type() string { return "user.activate" }

type ActivateUserResponse struct {
	Token *ActivationToken
	User  *User
}

// ActivateUserHandler consumes an activation token and promotes the owning
// account to the activated feature set. Consumption and promotion run in one
// transaction so a token is never burned without the promotion landing.
type ActivateUserHandler struct {
	repo RepositoryManager
}

func NewActivateUserHandler(repo RepositoryManager) *ActivateUserHandler {
	return &ActivateUserHandler{repo: repo}
}

func (h *ActivateUserHandler) Execute(ctx context.Context, event ActivateUserMessage) error {
	select {
	case <-ctx.Done():
		return goerrors.Wrap(
			ctx.Err(),
			goerrors.CategoryOperation,
			"context cancelled during account activation",
		)
	default:
		return h.execute(ctx, event)
	}
}

func (h *ActivateUserHandler) execute(ctx context.Context, event ActivateUserMessage) error {
	resp := &ActivateUserResponse{}

	ctx, cancel := context.WithTimeout(ctx, time.Second*10)
	defer cancel()

	err := h.repo.RunInTx(ctx, nil, func(ctx context.Context, tx bun.Tx) error {
		token, err := h.repo.ActivationTokens().FindOneValidByIDTx(ctx, tx, event.TokenID)
		if err != nil {
			return err
		}

		user, err := h.repo.Users().FindOneByIDTx(ctx, tx, token.UserID)
		if err != nil {
			if goerrors.IsNotFound(err) {
				// owning account is gone; the token is unusable
				return sentinelWithMeta(ErrActivationTokenNotFound, map[string]any{
					"token_id": event.TokenID.String(),
				})
			}
			return err
		}

		// an already activated account no longer holds the consuming feature
		if !user.HasFeature(FeatureReadActivationToken) {
			return NewMissingFeatureError(FeatureReadActivationToken)
		}

		if resp.Token, err = h.repo.ActivationTokens().MarkUsedTx(ctx, tx, event.TokenID); err != nil {
			return err
		}

		if resp.User, err = h.repo.Users().SetFeaturesTx(ctx, tx, user.ID, ActivatedUserFeatures()); err != nil {
			return err
		}

		return nil
	})

	if err != nil {
		var richErr *goerrors.Error
		if goerrors.As(err, &richErr) {
			return richErr
		}
		return goerrors.Wrap(err, goerrors.CategoryInternal, "account activation transaction failed")
	}

	if event.OnResponse != nil {
		event.OnResponse(resp)
	}

	return nil
}
