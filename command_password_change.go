package account

import (
	"context"
	"time"

	validation "github.com/go-ozzo/ozzo-validation"
	goerrors "github.com/goliatone/go-errors"
	"github.com/uptrace/bun"
)

type PasswordChangeMessage struct {
	OldPassword  string `json:"old_password"`
	NewPassword1 string `json:"new_password1"`
	NewPassword2 string `json:"new_password2"`
}

func (e PasswordChangeMessage) Type() string { return "account.password.change" }

func (e PasswordChangeMessage) Validate() error {
	return validation.ValidateStruct(&e,
		validation.Field(&e.OldPassword, validation.Required),
		validation.Field(&e.NewPassword1, validation.Required, validation.Length(8, 100)),
		validation.Field(&e.NewPassword2,
			validation.Required,
			validation.By(ValidateStringEquals(e.NewPassword1)),
		),
	)
}

// PasswordChangeResult carries a fresh session: changing the password revokes
// every refresh token, so the caller gets new credentials right away.
type PasswordChangeResult struct {
	Output
	Token        string `json:"token,omitempty"`
	RefreshToken string `json:"refresh_token,omitempty"`
}

// PasswordChangeHandler rotates the password of the authenticated user. The
// user must be verified and confirm the old password.
type PasswordChangeHandler struct {
	repo     RepositoryManager
	tokens   TokenService
	activity ActivitySink
	logger   Logger
}

// NewPasswordChangeHandler creates a handler with sane defaults.
func NewPasswordChangeHandler(repo RepositoryManager, tokens TokenService) *PasswordChangeHandler {
	return &PasswordChangeHandler{
		repo:     repo,
		tokens:   tokens,
		activity: noopActivitySink{},
		logger:   defLogger{},
	}
}

// WithActivitySink sets the sink used to emit password events.
func (h *PasswordChangeHandler) WithActivitySink(sink ActivitySink) *PasswordChangeHandler {
	h.activity = normalizeActivitySink(sink)
	return h
}

// WithLogger overrides the logger used by the handler.
func (h *PasswordChangeHandler) WithLogger(logger Logger) *PasswordChangeHandler {
	if logger != nil {
		h.logger = logger
	}
	return h
}

func (h *PasswordChangeHandler) Execute(ctx context.Context, event PasswordChangeMessage) (*PasswordChangeResult, error) {
	select {
	case <-ctx.Done():
		return nil, goerrors.Wrap(
			ctx.Err(),
			goerrors.CategoryOperation,
			"context cancelled during password change",
		)
	default:
		return h.execute(ctx, event)
	}
}

func (h *PasswordChangeHandler) execute(ctx context.Context, event PasswordChangeMessage) (*PasswordChangeResult, error) {
	user, failed := RequireAuthenticated(ctx)
	if failed != nil {
		return &PasswordChangeResult{Output: *failed}, nil
	}

	if err := ensureStatus(ctx, h.repo, user); err != nil {
		return nil, err
	}

	if failed := RequireVerified(user); failed != nil {
		return &PasswordChangeResult{Output: *failed}, nil
	}

	if failed := RequirePasswordConfirmation(user, event.OldPassword); failed != nil {
		return &PasswordChangeResult{Output: *failed}, nil
	}

	if user.Status.Blocked {
		return &PasswordChangeResult{Output: Failed(MsgBlocked)}, nil
	}

	if err := event.Validate(); err != nil {
		return &PasswordChangeResult{Output: FailedValidation(err)}, nil
	}

	if err := ComparePasswordAndHash(event.NewPassword1, user.PasswordHash); err == nil {
		return &PasswordChangeResult{Output: Failed(MsgPasswordAlreadySet)}, nil
	}

	ctx, cancel := context.WithTimeout(ctx, time.Second*10)
	defer cancel()

	err := h.repo.RunInTx(ctx, nil, func(ctx context.Context, tx bun.Tx) error {
		hash, err := HashPassword(event.NewPassword1)
		if err != nil {
			return goerrors.Wrap(err, goerrors.CategoryValidation, "invalid new password provided")
		}

		if err := h.repo.RefreshTokens().RevokeAllForUserTx(ctx, tx, user.ID); err != nil {
			return err
		}

		if err := h.repo.Users().SetPasswordTx(ctx, tx, user.ID, hash); err != nil {
			return goerrors.Wrap(err, goerrors.CategoryInternal, "failed to update user password")
		}

		user.PasswordHash = hash
		return nil
	})

	if err != nil {
		var richErr *goerrors.Error
		if goerrors.As(err, &richErr) {
			return nil, richErr
		}
		return nil, goerrors.Wrap(err, goerrors.CategoryInternal, "password change transaction failed")
	}

	token, refresh, err := issueSession(ctx, h.repo, h.tokens, user)
	if err != nil {
		return nil, err
	}

	recordActivity(ctx, h.activity, h.logger, ActivityEvent{
		EventType: ActivityEventPasswordChanged,
		Actor:     ActorRef{ID: user.ID.String(), Type: "user"},
		UserID:    user.ID.String(),
	})

	return &PasswordChangeResult{
		Output:       OK(),
		Token:        token,
		RefreshToken: refresh,
	}, nil
}
