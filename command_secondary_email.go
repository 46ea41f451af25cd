package account

import (
	"context"

	validation "github.com/go-ozzo/ozzo-validation"
	"github.com/go-ozzo/ozzo-validation/is"
	goerrors "github.com/goliatone/go-errors"
)

type SendSecondaryEmailActivationMessage struct {
	Email    string `json:"email" doc:"Address to attach as secondary email"`
	Password string `json:"password" doc:"Password confirmation"`
}

func (e SendSecondaryEmailActivationMessage) Type() string { return "account.email.secondary.send" }

func (e SendSecondaryEmailActivationMessage) Validate() error {
	return validation.ValidateStruct(&e,
		validation.Field(&e.Email, validation.Required, is.Email),
		validation.Field(&e.Password, validation.Required),
	)
}

type SendSecondaryEmailActivationResult struct {
	Output
}

// SendSecondaryEmailActivationHandler mails a verification token to the
// candidate secondary address. Until that token is verified the address is
// stored nowhere, only inside the token itself.
type SendSecondaryEmailActivationHandler struct {
	repo    RepositoryManager
	machine *StatusMachine
	codec   ScopedTokenCodec
	mailer  *EmailDispatcher
	logger  Logger
}

// NewSendSecondaryEmailActivationHandler creates a handler with sane defaults.
func NewSendSecondaryEmailActivationHandler(repo RepositoryManager, machine *StatusMachine, codec ScopedTokenCodec, mailer *EmailDispatcher) *SendSecondaryEmailActivationHandler {
	return &SendSecondaryEmailActivationHandler{
		repo:    repo,
		machine: machine,
		codec:   codec,
		mailer:  mailer,
		logger:  defLogger{},
	}
}

// WithLogger overrides the logger used by the handler.
func (h *SendSecondaryEmailActivationHandler) WithLogger(logger Logger) *SendSecondaryEmailActivationHandler {
	if logger != nil {
		h.logger = logger
	}
	return h
}

func (h *SendSecondaryEmailActivationHandler) Execute(ctx context.Context, event SendSecondaryEmailActivationMessage) (*SendSecondaryEmailActivationResult, error) {
	select {
	case <-ctx.Done():
		return nil, goerrors.Wrap(
			ctx.Err(),
			goerrors.CategoryOperation,
			"context cancelled while sending secondary email activation",
		)
	default:
		return h.execute(ctx, event)
	}
}

func (h *SendSecondaryEmailActivationHandler) execute(ctx context.Context, event SendSecondaryEmailActivationMessage) (*SendSecondaryEmailActivationResult, error) {
	user, failed := RequireAuthenticated(ctx)
	if failed != nil {
		return &SendSecondaryEmailActivationResult{Output: *failed}, nil
	}

	if err := ensureStatus(ctx, h.repo, user); err != nil {
		return nil, err
	}

	if failed := RequireVerified(user); failed != nil {
		return &SendSecondaryEmailActivationResult{Output: *failed}, nil
	}

	if failed := RequirePasswordConfirmation(user, event.Password); failed != nil {
		return &SendSecondaryEmailActivationResult{Output: *failed}, nil
	}

	if err := event.Validate(); err != nil {
		return &SendSecondaryEmailActivationResult{Output: FailedValidation(err)}, nil
	}

	if err := h.machine.CleanEmail(ctx, event.Email); err != nil {
		if errorTextCode(err) == TextCodeEmailInUse {
			return &SendSecondaryEmailActivationResult{Output: FailedField("email", MsgEmailInUse)}, nil
		}
		return nil, err
	}

	token, err := h.codec.Issue(NewIdentityFromUser(user), ScopeSecondaryEmail, WithClaimEmail(event.Email))
	if err != nil {
		return nil, err
	}

	if err := h.mailer.SendSecondaryEmailActivation(ctx, user, event.Email, token); err != nil {
		h.logger.Error("secondary email activation delivery failed: %v", err)
		return &SendSecondaryEmailActivationResult{Output: Failed(MsgEmailFail)}, nil
	}

	return &SendSecondaryEmailActivationResult{Output: OK()}, nil
}

type VerifySecondaryEmailMessage struct {
	Token string `json:"token" doc:"Secondary email verification token"`
}

func (e VerifySecondaryEmailMessage) Type() string { return "account.email.secondary.verify" }

func (e VerifySecondaryEmailMessage) Validate() error {
	return validation.ValidateStruct(&e,
		validation.Field(&e.Token, validation.Required),
	)
}

type VerifySecondaryEmailResult struct {
	Output
}

// VerifySecondaryEmailHandler consumes the token and stores the secondary
// email. The address was free when the token was sent; another account may
// have claimed it since, which surfaces as an email-in-use failure.
type VerifySecondaryEmailHandler struct {
	machine *StatusMachine
	logger  Logger
}

// NewVerifySecondaryEmailHandler creates a handler with sane defaults.
func NewVerifySecondaryEmailHandler(machine *StatusMachine) *VerifySecondaryEmailHandler {
	return &VerifySecondaryEmailHandler{
		machine: machine,
		logger:  defLogger{},
	}
}

// WithLogger overrides the logger used by the handler.
func (h *VerifySecondaryEmailHandler) WithLogger(logger Logger) *VerifySecondaryEmailHandler {
	if logger != nil {
		h.logger = logger
	}
	return h
}

func (h *VerifySecondaryEmailHandler) Execute(ctx context.Context, event VerifySecondaryEmailMessage) (*VerifySecondaryEmailResult, error) {
	select {
	case <-ctx.Done():
		return nil, goerrors.Wrap(
			ctx.Err(),
			goerrors.CategoryOperation,
			"context cancelled during secondary email verification",
		)
	default:
		return h.execute(ctx, event)
	}
}

func (h *VerifySecondaryEmailHandler) execute(ctx context.Context, event VerifySecondaryEmailMessage) (*VerifySecondaryEmailResult, error) {
	if err := event.Validate(); err != nil {
		return &VerifySecondaryEmailResult{Output: FailedValidation(err)}, nil
	}

	if err := h.machine.VerifySecondaryEmail(ctx, event.Token); err != nil {
		if out, ok := tokenFailure(err); ok {
			return &VerifySecondaryEmailResult{Output: out}, nil
		}
		if errorTextCode(err) == TextCodeEmailInUse {
			return &VerifySecondaryEmailResult{Output: Failed(MsgEmailInUse)}, nil
		}
		return nil, err
	}

	return &VerifySecondaryEmailResult{Output: OK()}, nil
}

type SwapEmailsMessage struct {
	Password string `json:"password" doc:"Password confirmation"`
}

func (e SwapEmailsMessage) Type() string { return "account.email.swap" }

func (e SwapEmailsMessage) Validate() error {
	return validation.ValidateStruct(&e,
		validation.Field(&e.Password, validation.Required),
	)
}

type SwapEmailsResult struct {
	Output
}

// SwapEmailsHandler exchanges primary and secondary emails. Requires a
// secondary email and password confirmation.
type SwapEmailsHandler struct {
	repo    RepositoryManager
	machine *StatusMachine
	logger  Logger
}

// NewSwapEmailsHandler creates a handler with sane defaults.
func NewSwapEmailsHandler(repo RepositoryManager, machine *StatusMachine) *SwapEmailsHandler {
	return &SwapEmailsHandler{
		repo:    repo,
		machine: machine,
		logger:  defLogger{},
	}
}

// WithLogger overrides the logger used by the handler.
func (h *SwapEmailsHandler) WithLogger(logger Logger) *SwapEmailsHandler {
	if logger != nil {
		h.logger = logger
	}
	return h
}

func (h *SwapEmailsHandler) Execute(ctx context.Context, event SwapEmailsMessage) (*SwapEmailsResult, error) {
	select {
	case <-ctx.Done():
		return nil, goerrors.Wrap(
			ctx.Err(),
			goerrors.CategoryOperation,
			"context cancelled during email swap",
		)
	default:
		return h.execute(ctx, event)
	}
}

func (h *SwapEmailsHandler) execute(ctx context.Context, event SwapEmailsMessage) (*SwapEmailsResult, error) {
	user, failed := RequireAuthenticated(ctx)
	if failed != nil {
		return &SwapEmailsResult{Output: *failed}, nil
	}

	if err := ensureStatus(ctx, h.repo, user); err != nil {
		return nil, err
	}

	if failed := RequireSecondaryEmail(user); failed != nil {
		return &SwapEmailsResult{Output: *failed}, nil
	}

	if failed := RequirePasswordConfirmation(user, event.Password); failed != nil {
		return &SwapEmailsResult{Output: *failed}, nil
	}

	if err := h.machine.SwapEmails(ctx, user); err != nil {
		return nil, err
	}

	return &SwapEmailsResult{Output: OK()}, nil
}

type RemoveSecondaryEmailMessage struct {
	Password string `json:"password" doc:"Password confirmation"`
}

func (e RemoveSecondaryEmailMessage) Type() string { return "account.email.secondary.remove" }

func (e RemoveSecondaryEmailMessage) Validate() error {
	return validation.ValidateStruct(&e,
		validation.Field(&e.Password, validation.Required),
	)
}

type RemoveSecondaryEmailResult struct {
	Output
}

// RemoveSecondaryEmailHandler clears the secondary email slot. Requires a
// secondary email and password confirmation.
type RemoveSecondaryEmailHandler struct {
	repo    RepositoryManager
	machine *StatusMachine
	logger  Logger
}

// NewRemoveSecondaryEmailHandler creates a handler with sane defaults.
func NewRemoveSecondaryEmailHandler(repo RepositoryManager, machine *StatusMachine) *RemoveSecondaryEmailHandler {
	return &RemoveSecondaryEmailHandler{
		repo:    repo,
		machine: machine,
		logger:  defLogger{},
	}
}

// WithLogger overrides the logger used by the handler.
func (h *RemoveSecondaryEmailHandler) WithLogger(logger Logger) *RemoveSecondaryEmailHandler {
	if logger != nil {
		h.logger = logger
	}
	return h
}

func (h *RemoveSecondaryEmailHandler) Execute(ctx context.Context, event RemoveSecondaryEmailMessage) (*RemoveSecondaryEmailResult, error) {
	select {
	case <-ctx.Done():
		return nil, goerrors.Wrap(
			ctx.Err(),
			goerrors.CategoryOperation,
			"context cancelled while removing secondary email",
		)
	default:
		return h.execute(ctx, event)
	}
}

func (h *RemoveSecondaryEmailHandler) execute(ctx context.Context, event RemoveSecondaryEmailMessage) (*RemoveSecondaryEmailResult, error) {
	user, failed := RequireAuthenticated(ctx)
	if failed != nil {
		return &RemoveSecondaryEmailResult{Output: *failed}, nil
	}

	if err := ensureStatus(ctx, h.repo, user); err != nil {
		return nil, err
	}

	if failed := RequireSecondaryEmail(user); failed != nil {
		return &RemoveSecondaryEmailResult{Output: *failed}, nil
	}

	if failed := RequirePasswordConfirmation(user, event.Password); failed != nil {
		return &RemoveSecondaryEmailResult{Output: *failed}, nil
	}

	if err := h.machine.RemoveSecondaryEmail(ctx, user); err != nil {
		return nil, err
	}

	return &RemoveSecondaryEmailResult{Output: OK()}, nil
}
