package account

import (
	"context"

	validation "github.com/go-ozzo/ozzo-validation"
	"github.com/go-ozzo/ozzo-validation/is"
	goerrors "github.com/goliatone/go-errors"
	"github.com/goliatone/go-repository-bun"
)

type VerifyAccountMessage struct {
	Token string `json:"token" doc:"Activation token received by email"`
}

func (e VerifyAccountMessage) Type() string { return "account.verify" }

func (e VerifyAccountMessage) Validate() error {
	return validation.ValidateStruct(&e,
		validation.Field(&e.Token, validation.Required),
	)
}

type VerifyAccountResult struct {
	Output
}

// VerifyAccountHandler consumes an activation token and marks the account
// verified.
type VerifyAccountHandler struct {
	machine *StatusMachine
	logger  Logger
}

// NewVerifyAccountHandler creates a handler with sane defaults.
func NewVerifyAccountHandler(machine *StatusMachine) *VerifyAccountHandler {
	return &VerifyAccountHandler{
		machine: machine,
		logger:  defLogger{},
	}
}

// WithLogger overrides the logger used by the handler.
func (h *VerifyAccountHandler) WithLogger(logger Logger) *VerifyAccountHandler {
	if logger != nil {
		h.logger = logger
	}
	return h
}

func (h *VerifyAccountHandler) Execute(ctx context.Context, event VerifyAccountMessage) (*VerifyAccountResult, error) {
	select {
	case <-ctx.Done():
		return nil, goerrors.Wrap(
			ctx.Err(),
			goerrors.CategoryOperation,
			"context cancelled during account verification",
		)
	default:
		return h.execute(ctx, event)
	}
}

func (h *VerifyAccountHandler) execute(ctx context.Context, event VerifyAccountMessage) (*VerifyAccountResult, error) {
	if err := event.Validate(); err != nil {
		return &VerifyAccountResult{Output: FailedValidation(err)}, nil
	}

	if err := h.machine.Verify(ctx, event.Token); err != nil {
		if out, ok := tokenFailure(err); ok {
			return &VerifyAccountResult{Output: out}, nil
		}
		if errorTextCode(err) == TextCodeAlreadyVerified {
			return &VerifyAccountResult{Output: Failed(MsgAlreadyVerified)}, nil
		}
		return nil, err
	}

	return &VerifyAccountResult{Output: OK()}, nil
}

type ResendActivationEmailMessage struct {
	Email string `json:"email"`
}

func (e ResendActivationEmailMessage) Type() string { return "account.activation.resend" }

func (e ResendActivationEmailMessage) Validate() error {
	return validation.ValidateStruct(&e,
		validation.Field(&e.Email, validation.Required, is.Email),
	)
}

type ResendActivationEmailResult struct {
	Output
}

// ResendActivationEmailHandler re-sends the activation email. Unknown emails
// report success so the mutation cannot be used to probe registered accounts.
type ResendActivationEmailHandler struct {
	repo   RepositoryManager
	codec  ScopedTokenCodec
	mailer *EmailDispatcher
	logger Logger
}

// NewResendActivationEmailHandler creates a handler with sane defaults.
func NewResendActivationEmailHandler(repo RepositoryManager, codec ScopedTokenCodec, mailer *EmailDispatcher) *ResendActivationEmailHandler {
	return &ResendActivationEmailHandler{
		repo:   repo,
		codec:  codec,
		mailer: mailer,
		logger: defLogger{},
	}
}

// WithLogger overrides the logger used by the handler.
func (h *ResendActivationEmailHandler) WithLogger(logger Logger) *ResendActivationEmailHandler {
	if logger != nil {
		h.logger = logger
	}
	return h
}

func (h *ResendActivationEmailHandler) Execute(ctx context.Context, event ResendActivationEmailMessage) (*ResendActivationEmailResult, error) {
	select {
	case <-ctx.Done():
		return nil, goerrors.Wrap(
			ctx.Err(),
			goerrors.CategoryOperation,
			"context cancelled while resending activation email",
		)
	default:
		return h.execute(ctx, event)
	}
}

func (h *ResendActivationEmailHandler) execute(ctx context.Context, event ResendActivationEmailMessage) (*ResendActivationEmailResult, error) {
	if err := event.Validate(); err != nil {
		return &ResendActivationEmailResult{Output: FailedValidation(err)}, nil
	}

	user, err := h.repo.Users().GetByAnyEmail(ctx, event.Email)
	if err != nil {
		if repository.IsRecordNotFound(err) {
			// report success for unknown emails
			return &ResendActivationEmailResult{Output: OK()}, nil
		}
		return nil, err
	}

	if err := ensureStatus(ctx, h.repo, user); err != nil {
		return nil, err
	}

	if user.Status.Verified {
		return &ResendActivationEmailResult{Output: FailedField("email", MsgAlreadyVerified)}, nil
	}

	token, err := h.codec.Issue(NewIdentityFromUser(user), ScopeActivation)
	if err != nil {
		return nil, err
	}

	if err := h.mailer.SendActivation(ctx, user, token); err != nil {
		h.logger.Error("activation email delivery failed: %v", err)
		return &ResendActivationEmailResult{Output: Failed(MsgEmailFail)}, nil
	}

	return &ResendActivationEmailResult{Output: OK()}, nil
}
