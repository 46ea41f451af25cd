package account

import (
	"encoding/json"

	goerrors "github.com/goliatone/go-errors"
	"github.com/goliatone/go-router"
)

// RouteRegistrar captures the router methods used by the controller.
type RouteRegistrar interface {
	Post(path string, handler router.HandlerFunc, mw ...router.MiddlewareFunc) router.RouteInfo
}

// PayloadBinder decodes the request body into a mutation message. Two
// conventions are supported: flat JSON bodies and an `{"input": {...}}`
// envelope, so relay style clients can reuse the same routes.
type PayloadBinder func(ctx router.Context, out any) error

// FlatBinder decodes the body directly into the message.
func FlatBinder(ctx router.Context, out any) error {
	return ctx.Bind(out)
}

// EnvelopeBinder decodes messages wrapped in an `input` object.
func EnvelopeBinder(ctx router.Context, out any) error {
	env := map[string]json.RawMessage{}
	if err := ctx.Bind(&env); err != nil {
		return err
	}

	raw, ok := env["input"]
	if !ok {
		return goerrors.New("request body is missing the input envelope", goerrors.CategoryBadInput).
			WithCode(goerrors.CodeBadRequest)
	}

	if err := json.Unmarshal(raw, out); err != nil {
		return goerrors.Wrap(err, goerrors.CategoryBadInput, "could not decode input envelope").
			WithCode(goerrors.CodeBadRequest)
	}

	return nil
}

// AccountControllerRoutes holds the mutation paths.
type AccountControllerRoutes struct {
	Register                     string
	VerifyAccount                string
	ResendActivationEmail        string
	SendPasswordResetEmail       string
	PasswordReset                string
	PasswordSet                  string
	TokenAuth                    string
	RefreshToken                 string
	RevokeToken                  string
	VerifyToken                  string
	ArchiveAccount               string
	DeleteAccount                string
	PasswordChange               string
	UpdateAccount                string
	SendSecondaryEmailActivation string
	VerifySecondaryEmail         string
	SwapEmails                   string
	RemoveSecondaryEmail         string
	BlockUser                    string
}

// AccountController exposes every mutation as a POST route with the uniform
// `{success, errors, ...}` response shape.
type AccountController struct {
	Logger       Logger
	Routes       *AccountControllerRoutes
	Binder       PayloadBinder
	ErrorHandler router.ErrorHandler

	register              *RegisterHandler
	verifyAccount         *VerifyAccountHandler
	resendActivation      *ResendActivationEmailHandler
	sendPasswordReset     *SendPasswordResetEmailHandler
	passwordReset         *PasswordResetHandler
	passwordSet           *PasswordSetHandler
	tokenAuth             *TokenAuthHandler
	refreshToken          *RefreshTokenHandler
	revokeToken           *RevokeTokenHandler
	verifyToken           *VerifyTokenHandler
	archiveAccount        *ArchiveAccountHandler
	deleteAccount         *DeleteAccountHandler
	passwordChange        *PasswordChangeHandler
	updateAccount         *UpdateAccountHandler
	sendSecondaryEmail    *SendSecondaryEmailActivationHandler
	verifySecondaryEmail  *VerifySecondaryEmailHandler
	swapEmails            *SwapEmailsHandler
	removeSecondaryEmail  *RemoveSecondaryEmailHandler
	blockUser             *BlockUserHandler
}

// AccountControllerOption configures the controller.
type AccountControllerOption func(*AccountController) *AccountController

// WithControllerLogger overrides the controller logger.
func WithControllerLogger(logger Logger) AccountControllerOption {
	return func(c *AccountController) *AccountController {
		if logger != nil {
			c.Logger = logger
		}
		return c
	}
}

// WithPayloadBinder selects the request binding convention.
func WithPayloadBinder(binder PayloadBinder) AccountControllerOption {
	return func(c *AccountController) *AccountController {
		if binder != nil {
			c.Binder = binder
		}
		return c
	}
}

// WithControllerErrorHandler overrides the error handler.
func WithControllerErrorHandler(handler router.ErrorHandler) AccountControllerOption {
	return func(c *AccountController) *AccountController {
		if handler != nil {
			c.ErrorHandler = handler
		}
		return c
	}
}

// WithRecaptchaVerifier wires a recaptcha verifier into the login handler.
func WithRecaptchaVerifier(v RecaptchaVerifier) AccountControllerOption {
	return func(c *AccountController) *AccountController {
		c.tokenAuth.WithRecaptchaVerifier(v)
		return c
	}
}

// WithActivitySink wires a shared sink into every handler that emits events.
func WithActivitySink(sink ActivitySink) AccountControllerOption {
	return func(c *AccountController) *AccountController {
		c.register.WithActivitySink(sink)
		c.passwordReset.WithActivitySink(sink)
		c.passwordSet.WithActivitySink(sink)
		c.passwordChange.WithActivitySink(sink)
		c.tokenAuth.WithActivitySink(sink)
		c.archiveAccount.WithActivitySink(sink)
		c.deleteAccount.WithActivitySink(sink)
		c.blockUser.WithActivitySink(sink)
		return c
	}
}

// NewAccountController builds a controller plus all mutation handlers from
// the core services.
func NewAccountController(repo RepositoryManager, machine *StatusMachine, codec ScopedTokenCodec, tokens TokenService, mailer *EmailDispatcher, cfg Config, opts ...AccountControllerOption) *AccountController {
	if repo == nil {
		panic("Missing RepositoryManager in account controller...")
	}
	if machine == nil {
		panic("Missing StatusMachine in account controller...")
	}

	c := &AccountController{
		Logger:       defLogger{},
		Binder:       FlatBinder,
		ErrorHandler: defaultMutationErrHandler,
		Routes: &AccountControllerRoutes{
			Register:                     "/register",
			VerifyAccount:                "/verify-account",
			ResendActivationEmail:        "/resend-activation-email",
			SendPasswordResetEmail:       "/send-password-reset-email",
			PasswordReset:                "/password-reset",
			PasswordSet:                  "/password-set",
			TokenAuth:                    "/token-auth",
			RefreshToken:                 "/refresh-token",
			RevokeToken:                  "/revoke-token",
			VerifyToken:                  "/verify-token",
			ArchiveAccount:               "/archive-account",
			DeleteAccount:                "/delete-account",
			PasswordChange:               "/password-change",
			UpdateAccount:                "/update-account",
			SendSecondaryEmailActivation: "/send-secondary-email-activation",
			VerifySecondaryEmail:         "/verify-secondary-email",
			SwapEmails:                   "/swap-emails",
			RemoveSecondaryEmail:         "/remove-secondary-email",
			BlockUser:                    "/block-user",
		},
		register:             NewRegisterHandler(repo, machine, codec, tokens, mailer, cfg),
		verifyAccount:        NewVerifyAccountHandler(machine),
		resendActivation:     NewResendActivationEmailHandler(repo, codec, mailer),
		sendPasswordReset:    NewSendPasswordResetEmailHandler(repo, codec, mailer),
		passwordReset:        NewPasswordResetHandler(repo, machine, codec, cfg),
		passwordSet:          NewPasswordSetHandler(repo, machine, codec, cfg),
		tokenAuth:            NewTokenAuthHandler(repo, machine, tokens, cfg),
		refreshToken:         NewRefreshTokenHandler(repo, tokens, cfg),
		revokeToken:          NewRevokeTokenHandler(repo),
		verifyToken:          NewVerifyTokenHandler(tokens),
		archiveAccount:       NewArchiveAccountHandler(repo, machine),
		deleteAccount:        NewDeleteAccountHandler(repo, cfg),
		passwordChange:       NewPasswordChangeHandler(repo, tokens),
		updateAccount:        NewUpdateAccountHandler(repo, cfg),
		sendSecondaryEmail:   NewSendSecondaryEmailActivationHandler(repo, machine, codec, mailer),
		verifySecondaryEmail: NewVerifySecondaryEmailHandler(machine),
		swapEmails:           NewSwapEmailsHandler(repo, machine),
		removeSecondaryEmail: NewRemoveSecondaryEmailHandler(repo, machine),
		blockUser:            NewBlockUserHandler(repo, machine),
	}

	for _, opt := range opts {
		c = opt(c)
	}

	return c
}

// RegisterMutationRoutes binds all mutation endpoints. Endpoints that act on
// the authenticated user expect the auth middleware to have populated the
// request context; without it they fail with an unauthenticated output.
func RegisterMutationRoutes(group RouteRegistrar, c *AccountController, mw ...router.MiddlewareFunc) {
	group.Post(c.Routes.Register, c.Register, mw...)
	group.Post(c.Routes.VerifyAccount, c.VerifyAccount, mw...)
	group.Post(c.Routes.ResendActivationEmail, c.ResendActivationEmail, mw...)
	group.Post(c.Routes.SendPasswordResetEmail, c.SendPasswordResetEmail, mw...)
	group.Post(c.Routes.PasswordReset, c.PasswordReset, mw...)
	group.Post(c.Routes.PasswordSet, c.PasswordSet, mw...)
	group.Post(c.Routes.TokenAuth, c.TokenAuth, mw...)
	group.Post(c.Routes.RefreshToken, c.RefreshToken, mw...)
	group.Post(c.Routes.RevokeToken, c.RevokeToken, mw...)
	group.Post(c.Routes.VerifyToken, c.VerifyToken, mw...)
	group.Post(c.Routes.ArchiveAccount, c.ArchiveAccount, mw...)
	group.Post(c.Routes.DeleteAccount, c.DeleteAccount, mw...)
	group.Post(c.Routes.PasswordChange, c.PasswordChange, mw...)
	group.Post(c.Routes.UpdateAccount, c.UpdateAccount, mw...)
	group.Post(c.Routes.SendSecondaryEmailActivation, c.SendSecondaryEmailActivation, mw...)
	group.Post(c.Routes.VerifySecondaryEmail, c.VerifySecondaryEmail, mw...)
	group.Post(c.Routes.SwapEmails, c.SwapEmails, mw...)
	group.Post(c.Routes.RemoveSecondaryEmail, c.RemoveSecondaryEmail, mw...)
	group.Post(c.Routes.BlockUser, c.BlockUser, mw...)
}

func (a *AccountController) Register(ctx router.Context) error {
	payload := new(RegisterMessage)
	if err := a.Binder(ctx, payload); err != nil {
		return a.ErrorHandler(ctx, err)
	}

	result, err := a.register.Execute(ctx.Context(), *payload)
	if err != nil {
		return a.ErrorHandler(ctx, err)
	}

	return ctx.JSON(router.StatusOK, result)
}

func (a *AccountController) VerifyAccount(ctx router.Context) error {
	payload := new(VerifyAccountMessage)
	if err := a.Binder(ctx, payload); err != nil {
		return a.ErrorHandler(ctx, err)
	}

	result, err := a.verifyAccount.Execute(ctx.Context(), *payload)
	if err != nil {
		return a.ErrorHandler(ctx, err)
	}

	return ctx.JSON(router.StatusOK, result)
}

func (a *AccountController) ResendActivationEmail(ctx router.Context) error {
	payload := new(ResendActivationEmailMessage)
	if err := a.Binder(ctx, payload); err != nil {
		return a.ErrorHandler(ctx, err)
	}

	result, err := a.resendActivation.Execute(ctx.Context(), *payload)
	if err != nil {
		return a.ErrorHandler(ctx, err)
	}

	return ctx.JSON(router.StatusOK, result)
}

func (a *AccountController) SendPasswordResetEmail(ctx router.Context) error {
	payload := new(SendPasswordResetEmailMessage)
	if err := a.Binder(ctx, payload); err != nil {
		return a.ErrorHandler(ctx, err)
	}

	result, err := a.sendPasswordReset.Execute(ctx.Context(), *payload)
	if err != nil {
		return a.ErrorHandler(ctx, err)
	}

	return ctx.JSON(router.StatusOK, result)
}

func (a *AccountController) PasswordReset(ctx router.Context) error {
	payload := new(PasswordResetMessage)
	if err := a.Binder(ctx, payload); err != nil {
		return a.ErrorHandler(ctx, err)
	}

	result, err := a.passwordReset.Execute(ctx.Context(), *payload)
	if err != nil {
		return a.ErrorHandler(ctx, err)
	}

	return ctx.JSON(router.StatusOK, result)
}

func (a *AccountController) PasswordSet(ctx router.Context) error {
	payload := new(PasswordSetMessage)
	if err := a.Binder(ctx, payload); err != nil {
		return a.ErrorHandler(ctx, err)
	}

	result, err := a.passwordSet.Execute(ctx.Context(), *payload)
	if err != nil {
		return a.ErrorHandler(ctx, err)
	}

	return ctx.JSON(router.StatusOK, result)
}

func (a *AccountController) TokenAuth(ctx router.Context) error {
	payload := new(TokenAuthMessage)
	if err := a.Binder(ctx, payload); err != nil {
		return a.ErrorHandler(ctx, err)
	}

	result, err := a.tokenAuth.Execute(ctx.Context(), *payload)
	if err != nil {
		return a.ErrorHandler(ctx, err)
	}

	return ctx.JSON(router.StatusOK, result)
}

func (a *AccountController) RefreshToken(ctx router.Context) error {
	payload := new(RefreshTokenMessage)
	if err := a.Binder(ctx, payload); err != nil {
		return a.ErrorHandler(ctx, err)
	}

	result, err := a.refreshToken.Execute(ctx.Context(), *payload)
	if err != nil {
		return a.ErrorHandler(ctx, err)
	}

	return ctx.JSON(router.StatusOK, result)
}

func (a *AccountController) RevokeToken(ctx router.Context) error {
	payload := new(RevokeTokenMessage)
	if err := a.Binder(ctx, payload); err != nil {
		return a.ErrorHandler(ctx, err)
	}

	result, err := a.revokeToken.Execute(ctx.Context(), *payload)
	if err != nil {
		return a.ErrorHandler(ctx, err)
	}

	return ctx.JSON(router.StatusOK, result)
}

func (a *AccountController) VerifyToken(ctx router.Context) error {
	payload := new(VerifyTokenMessage)
	if err := a.Binder(ctx, payload); err != nil {
		return a.ErrorHandler(ctx, err)
	}

	result, err := a.verifyToken.Execute(ctx.Context(), *payload)
	if err != nil {
		return a.ErrorHandler(ctx, err)
	}

	return ctx.JSON(router.StatusOK, result)
}

func (a *AccountController) ArchiveAccount(ctx router.Context) error {
	payload := new(ArchiveAccountMessage)
	if err := a.Binder(ctx, payload); err != nil {
		return a.ErrorHandler(ctx, err)
	}

	result, err := a.archiveAccount.Execute(ctx.Context(), *payload)
	if err != nil {
		return a.ErrorHandler(ctx, err)
	}

	return ctx.JSON(router.StatusOK, result)
}

func (a *AccountController) DeleteAccount(ctx router.Context) error {
	payload := new(DeleteAccountMessage)
	if err := a.Binder(ctx, payload); err != nil {
		return a.ErrorHandler(ctx, err)
	}

	result, err := a.deleteAccount.Execute(ctx.Context(), *payload)
	if err != nil {
		return a.ErrorHandler(ctx, err)
	}

	return ctx.JSON(router.StatusOK, result)
}

func (a *AccountController) PasswordChange(ctx router.Context) error {
	payload := new(PasswordChangeMessage)
	if err := a.Binder(ctx, payload); err != nil {
		return a.ErrorHandler(ctx, err)
	}

	result, err := a.passwordChange.Execute(ctx.Context(), *payload)
	if err != nil {
		return a.ErrorHandler(ctx, err)
	}

	return ctx.JSON(router.StatusOK, result)
}

func (a *AccountController) UpdateAccount(ctx router.Context) error {
	payload := new(UpdateAccountMessage)
	if err := a.Binder(ctx, payload); err != nil {
		return a.ErrorHandler(ctx, err)
	}

	result, err := a.updateAccount.Execute(ctx.Context(), *payload)
	if err != nil {
		return a.ErrorHandler(ctx, err)
	}

	return ctx.JSON(router.StatusOK, result)
}

func (a *AccountController) SendSecondaryEmailActivation(ctx router.Context) error {
	payload := new(SendSecondaryEmailActivationMessage)
	if err := a.Binder(ctx, payload); err != nil {
		return a.ErrorHandler(ctx, err)
	}

	result, err := a.sendSecondaryEmail.Execute(ctx.Context(), *payload)
	if err != nil {
		return a.ErrorHandler(ctx, err)
	}

	return ctx.JSON(router.StatusOK, result)
}

func (a *AccountController) VerifySecondaryEmail(ctx router.Context) error {
	payload := new(VerifySecondaryEmailMessage)
	if err := a.Binder(ctx, payload); err != nil {
		return a.ErrorHandler(ctx, err)
	}

	result, err := a.verifySecondaryEmail.Execute(ctx.Context(), *payload)
	if err != nil {
		return a.ErrorHandler(ctx, err)
	}

	return ctx.JSON(router.StatusOK, result)
}

func (a *AccountController) SwapEmails(ctx router.Context) error {
	payload := new(SwapEmailsMessage)
	if err := a.Binder(ctx, payload); err != nil {
		return a.ErrorHandler(ctx, err)
	}

	result, err := a.swapEmails.Execute(ctx.Context(), *payload)
	if err != nil {
		return a.ErrorHandler(ctx, err)
	}

	return ctx.JSON(router.StatusOK, result)
}

func (a *AccountController) RemoveSecondaryEmail(ctx router.Context) error {
	payload := new(RemoveSecondaryEmailMessage)
	if err := a.Binder(ctx, payload); err != nil {
		return a.ErrorHandler(ctx, err)
	}

	result, err := a.removeSecondaryEmail.Execute(ctx.Context(), *payload)
	if err != nil {
		return a.ErrorHandler(ctx, err)
	}

	return ctx.JSON(router.StatusOK, result)
}

func (a *AccountController) BlockUser(ctx router.Context) error {
	payload := new(BlockUserMessage)
	if err := a.Binder(ctx, payload); err != nil {
		return a.ErrorHandler(ctx, err)
	}

	result, err := a.blockUser.Execute(ctx.Context(), *payload)
	if err != nil {
		return a.ErrorHandler(ctx, err)
	}

	return ctx.JSON(router.StatusOK, result)
}

func defaultMutationErrHandler(c router.Context, err error) error {
	var richErr *goerrors.Error
	if !goerrors.As(err, &richErr) {
		richErr = goerrors.Wrap(err, goerrors.CategoryInternal, "An unexpected server error occurred").
			WithCode(goerrors.CodeInternal)
	}

	status := richErr.Code
	if status == 0 {
		status = goerrors.CodeInternal
	}

	return c.JSON(status, map[string]any{
		"success": false,
		"errors": ErrorMap{
			NonFieldErrors: {{
				Message: richErr.Message,
				Code:    string(richErr.TextCode),
			}},
		},
	})
}
