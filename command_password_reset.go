package account

import (
	"context"
	"time"

	validation "github.com/go-ozzo/ozzo-validation"
	"github.com/go-ozzo/ozzo-validation/is"
	goerrors "github.com/goliatone/go-errors"
	"github.com/goliatone/go-repository-bun"
	"github.com/google/uuid"
	"github.com/uptrace/bun"
)

type SendPasswordResetEmailMessage struct {
	Email string `json:"email" doc:"Primary or secondary email of the account"`
}

func (e SendPasswordResetEmailMessage) Type() string { return "account.password.reset.request" }

func (e SendPasswordResetEmailMessage) Validate() error {
	return validation.ValidateStruct(&e,
		validation.Field(&e.Email, validation.Required, is.Email),
	)
}

type SendPasswordResetEmailResult struct {
	Output
}

// SendPasswordResetEmailHandler mails a password reset token. Unknown emails
// report success. Unverified users get the activation email again instead,
// with a field keyed error telling them to verify first.
type SendPasswordResetEmailHandler struct {
	repo   RepositoryManager
	codec  ScopedTokenCodec
	mailer *EmailDispatcher
	logger Logger
}

// NewSendPasswordResetEmailHandler creates a handler with sane defaults.
func NewSendPasswordResetEmailHandler(repo RepositoryManager, codec ScopedTokenCodec, mailer *EmailDispatcher) *SendPasswordResetEmailHandler {
	return &SendPasswordResetEmailHandler{
		repo:   repo,
		codec:  codec,
		mailer: mailer,
		logger: defLogger{},
	}
}

// WithLogger overrides the logger used by the handler.
func (h *SendPasswordResetEmailHandler) WithLogger(logger Logger) *SendPasswordResetEmailHandler {
	if logger != nil {
		h.logger = logger
	}
	return h
}

func (h *SendPasswordResetEmailHandler) Execute(ctx context.Context, event SendPasswordResetEmailMessage) (*SendPasswordResetEmailResult, error) {
	select {
	case <-ctx.Done():
		return nil, goerrors.Wrap(
			ctx.Err(),
			goerrors.CategoryOperation,
			"context cancelled while requesting password reset",
		)
	default:
		return h.execute(ctx, event)
	}
}

func (h *SendPasswordResetEmailHandler) execute(ctx context.Context, event SendPasswordResetEmailMessage) (*SendPasswordResetEmailResult, error) {
	if err := event.Validate(); err != nil {
		return &SendPasswordResetEmailResult{Output: FailedValidation(err)}, nil
	}

	user, err := h.repo.Users().GetByAnyEmail(ctx, event.Email)
	if err != nil {
		if repository.IsRecordNotFound(err) {
			// report success for unknown emails
			return &SendPasswordResetEmailResult{Output: OK()}, nil
		}
		return nil, err
	}

	if err := ensureStatus(ctx, h.repo, user); err != nil {
		return nil, err
	}

	if !user.Status.Verified {
		token, err := h.codec.Issue(NewIdentityFromUser(user), ScopeActivation)
		if err != nil {
			return nil, err
		}
		if err := h.mailer.SendActivation(ctx, user, token); err != nil {
			h.logger.Error("activation email delivery failed: %v", err)
			return &SendPasswordResetEmailResult{Output: Failed(MsgEmailFail)}, nil
		}
		return &SendPasswordResetEmailResult{Output: FailedField("email", MsgNotVerifiedReset)}, nil
	}

	token, err := h.codec.Issue(NewIdentityFromUser(user), ScopePasswordReset)
	if err != nil {
		return nil, err
	}

	// reset instructions go to the address the caller asked with, which may
	// be the secondary email
	if err := h.mailer.SendPasswordReset(ctx, user, event.Email, token); err != nil {
		h.logger.Error("password reset email delivery failed: %v", err)
		return &SendPasswordResetEmailResult{Output: Failed(MsgEmailFail)}, nil
	}

	return &SendPasswordResetEmailResult{Output: OK()}, nil
}

type PasswordResetMessage struct {
	Token        string `json:"token"`
	NewPassword1 string `json:"new_password1"`
	NewPassword2 string `json:"new_password2"`
}

func (e PasswordResetMessage) Type() string { return "account.password.reset" }

func (e PasswordResetMessage) Validate() error {
	return validation.ValidateStruct(&e,
		validation.Field(&e.Token, validation.Required),
		validation.Field(&e.NewPassword1, validation.Required, validation.Length(8, 100)),
		validation.Field(&e.NewPassword2,
			validation.Required,
			validation.By(ValidateStringEquals(e.NewPassword1)),
		),
	)
}

type PasswordResetResult struct {
	Output
}

// PasswordResetHandler sets a new password from a reset token. All refresh
// tokens are revoked and an unverified account becomes verified, since
// completing the flow proves control of the email address.
type PasswordResetHandler struct {
	repo     RepositoryManager
	machine  *StatusMachine
	codec    ScopedTokenCodec
	cfg      Config
	activity ActivitySink
	logger   Logger
}

// NewPasswordResetHandler creates a handler with sane defaults.
func NewPasswordResetHandler(repo RepositoryManager, machine *StatusMachine, codec ScopedTokenCodec, cfg Config) *PasswordResetHandler {
	return &PasswordResetHandler{
		repo:     repo,
		machine:  machine,
		codec:    codec,
		cfg:      cfg,
		activity: noopActivitySink{},
		logger:   defLogger{},
	}
}

// WithActivitySink sets the sink used to emit password reset events.
func (h *PasswordResetHandler) WithActivitySink(sink ActivitySink) *PasswordResetHandler {
	h.activity = normalizeActivitySink(sink)
	return h
}

// WithLogger overrides the logger used by the handler.
func (h *PasswordResetHandler) WithLogger(logger Logger) *PasswordResetHandler {
	if logger != nil {
		h.logger = logger
	}
	return h
}

func (h *PasswordResetHandler) Execute(ctx context.Context, event PasswordResetMessage) (*PasswordResetResult, error) {
	select {
	case <-ctx.Done():
		return nil, goerrors.Wrap(
			ctx.Err(),
			goerrors.CategoryOperation,
			"context cancelled during password reset",
		)
	default:
		return h.execute(ctx, event)
	}
}

func (h *PasswordResetHandler) execute(ctx context.Context, event PasswordResetMessage) (*PasswordResetResult, error) {
	if err := event.Validate(); err != nil {
		return &PasswordResetResult{Output: FailedValidation(err)}, nil
	}

	claims, err := h.codec.Verify(event.Token, ScopePasswordReset, h.cfg.GetScopedTokenMaxAge(ScopePasswordReset))
	if err != nil {
		if out, ok := tokenFailure(err); ok {
			return &PasswordResetResult{Output: out}, nil
		}
		return nil, err
	}

	userID, err := uuid.Parse(claims.UserID())
	if err != nil {
		return &PasswordResetResult{Output: Failed(MsgInvalidToken)}, nil
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
			return goerrors.Wrap(err, goerrors.CategoryInternal, "could not retrieve user for password reset")
		}

		status, err := h.repo.Statuses().GetByUserIDTx(ctx, tx, user.ID)
		if err != nil {
			return goerrors.Wrap(err, goerrors.CategoryInternal, "could not retrieve account status")
		}
		user.Status = status

		if status.Blocked {
			return ErrUserBlocked
		}

		// the same password again is a no-op we refuse
		if err := ComparePasswordAndHash(event.NewPassword1, user.PasswordHash); err == nil {
			return ErrPasswordAlreadySet
		}

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
			return &PasswordResetResult{Output: Failed(MsgInvalidToken)}, nil
		case TextCodeUserBlocked:
			return &PasswordResetResult{Output: Failed(MsgBlocked)}, nil
		case TextCodePasswordAlreadySet:
			return &PasswordResetResult{Output: Failed(MsgPasswordAlreadySet)}, nil
		}

		var richErr *goerrors.Error
		if goerrors.As(err, &richErr) {
			return nil, richErr
		}
		return nil, goerrors.Wrap(err, goerrors.CategoryInternal, "password reset transaction failed")
	}

	recordActivity(ctx, h.activity, h.logger, ActivityEvent{
		EventType: ActivityEventPasswordResetSuccess,
		Actor:     ActorRef{ID: user.ID.String(), Type: "user"},
		UserID:    user.ID.String(),
	})

	return &PasswordResetResult{Output: OK()}, nil
}
