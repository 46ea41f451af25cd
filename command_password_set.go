package account

import (
	"context"
	"time"

	validation "github.com/go-ozzo/ozzo-validation"
	goerrors "github.com/goliatone/go-errors"
	"github.com/goliatone/go-repository-bun"
	"github.com/google/uuid"
	"github.com/uptrace/bun"
)

type PasswordSetMessage struct {
	Token        string `json:"token" doc:"Password set token from the passwordless registration email"`
	NewPassword1 string `json:"new_password1"`
	NewPassword2 string `json:"new_password2"`
}

func (e PasswordSetMessage) Type() string { return "account.password.set" }

func (e PasswordSetMessage) Validate() error {
	return validation.ValidateStruct(&e,
		validation.Field(&e.Token, validation.Required),
		validation.Field(&e.NewPassword1, validation.Required, validation.Length(8, 100)),
		validation.Field(&e.NewPassword2,
			validation.Required,
			validation.By(ValidateStringEquals(e.NewPassword1)),
		),
	)
}

type PasswordSetResult struct {
	Output
}

// PasswordSetHandler completes a passwordless registration. It only works for
// accounts that never had a password; once one exists the token is useless.
type PasswordSetHandler struct {
	repo     RepositoryManager
	machine  *StatusMachine
	codec    ScopedTokenCodec
	cfg      Config
	activity ActivitySink
	logger   Logger
}

// NewPasswordSetHandler creates a handler with sane defaults.
func NewPasswordSetHandler(repo RepositoryManager, machine *StatusMachine, codec ScopedTokenCodec, cfg Config) *PasswordSetHandler {
	return &PasswordSetHandler{
		repo:     repo,
		machine:  machine,
		codec:    codec,
		cfg:      cfg,
		activity: noopActivitySink{},
		logger:   defLogger{},
	}
}

// WithActivitySink sets the sink used to emit password events.
func (h *PasswordSetHandler) WithActivitySink(sink ActivitySink) *PasswordSetHandler {
	h.activity = normalizeActivitySink(sink)
	return h
}

// WithLogger overrides the logger used by the handler.
func (h *PasswordSetHandler) WithLogger(logger Logger) *PasswordSetHandler {
	if logger != nil {
		h.logger = logger
	}
	return h
}

func (h *PasswordSetHandler) Execute(ctx context.Context, event PasswordSetMessage) (*PasswordSetResult, error) {
	select {
	case <-ctx.Done():
		return nil, goerrors.Wrap(
			ctx.Err(),
			goerrors.CategoryOperation,
			"context cancelled during password set",
		)
	default:
		return h.execute(ctx, event)
	}
}

func (h *PasswordSetHandler) execute(ctx context.Context, event PasswordSetMessage) (*PasswordSetResult, error) {
	if err := event.Validate(); err != nil {
		return &PasswordSetResult{Output: FailedValidation(err)}, nil
	}

	claims, err := h.codec.Verify(event.Token, ScopePasswordSet, h.cfg.GetScopedTokenMaxAge(ScopePasswordSet))
	if err != nil {
		if out, ok := tokenFailure(err); ok {
			return &PasswordSetResult{Output: out}, nil
		}
		return nil, err
	}

	userID, err := uuid.Parse(claims.UserID())
	if err != nil {
		return &PasswordSetResult{Output: Failed(MsgInvalidToken)}, nil
	}

	ctx, cancel := context.WithTimeout(ctx, time.Second*10)
	defer cancel()

	var user *User

	err = h.repo.RunInTx(ctx, nil, func(ctx context.Context, tx bun.Tx) error {
		user, err = h.repo.Users().GetByID(ctx, userID.String())
		if err != nil {
			if repository.IsRecordNotFound(err) {
				return ErrInvalidToken
			}
			return goerrors.Wrap(err, goerrors.CategoryInternal, "could not retrieve user for password set")
		}

		if user.HasUsablePassword() {
			return ErrPasswordAlreadySet
		}

		status, err := h.repo.Statuses().GetByUserIDTx(ctx, tx, user.ID)
		if err != nil {
			return goerrors.Wrap(err, goerrors.CategoryInternal, "could not retrieve account status")
		}
		user.Status = status

		hash, err := HashPassword(event.NewPassword1)
		if err != nil {
			return goerrors.Wrap(err, goerrors.CategoryValidation, "invalid new password provided")
		}

		if err := h.repo.RefreshTokens().RevokeAllForUserTx(ctx, tx, user.ID); err != nil {
			return err
		}

		if err := h.repo.Users().SetPasswordTx(ctx, tx, user.ID, hash); err != nil {
			return goerrors.Wrap(err, goerrors.CategoryInternal, "failed to set user password")
		}

		if !status.Verified {
			if err := h.machine.MarkVerifiedTx(ctx, tx, user.ID); err != nil {
				return err
			}
		}

		return nil
	})

	if err != nil {
		switch errorTextCode(err) {
		case TextCodeTokenInvalid:
			return &PasswordSetResult{Output: Failed(MsgInvalidToken)}, nil
		case TextCodePasswordAlreadySet:
			return &PasswordSetResult{Output: Failed(MsgPasswordAlreadySet)}, nil
		}

		var richErr *goerrors.Error
		if goerrors.As(err, &richErr) {
			return nil, richErr
		}
		return nil, goerrors.Wrap(err, goerrors.CategoryInternal, "password set transaction failed")
	}

	recordActivity(ctx, h.activity, h.logger, ActivityEvent{
		EventType: ActivityEventPasswordChanged,
		Actor:     ActorRef{ID: user.ID.String(), Type: "user"},
		UserID:    user.ID.String(),
	})

	return &PasswordSetResult{Output: OK()}, nil
}
