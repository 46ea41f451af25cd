package account

import (
	"context"
	"time"

	validation "github.com/go-ozzo/ozzo-validation"
	goerrors "github.com/goliatone/go-errors"
	"github.com/goliatone/go-repository-bun"
)

type TokenAuthMessage struct {
	Email          string `json:"email,omitempty"`
	Username       string `json:"username,omitempty"`
	SecondaryEmail string `json:"secondary_email,omitempty"`
	Password       string `json:"password"`
	RecaptchaToken string `json:"recaptcha_token,omitempty"`
}

func (e TokenAuthMessage) Type() string { return "account.token.auth" }

func (e TokenAuthMessage) Validate() error {
	return validation.ValidateStruct(&e,
		validation.Field(&e.Password, validation.Required),
	)
}

// loginField returns the identity column/value pair the caller provided,
// restricted to the configured allowed fields.
func (e TokenAuthMessage) loginField(allowed []string) (string, string) {
	for _, field := range allowed {
		switch field {
		case LoginFieldEmail:
			if e.Email != "" {
				return LoginFieldEmail, e.Email
			}
		case LoginFieldUsername:
			if e.Username != "" {
				return LoginFieldUsername, e.Username
			}
		case LoginFieldSecondaryEmail:
			if e.SecondaryEmail != "" {
				return LoginFieldSecondaryEmail, e.SecondaryEmail
			}
		}
	}
	return "", ""
}

// TokenAuthResult reports the session credentials on success. On any failure
// Token and RefreshToken are blank strings, never omitted.
type TokenAuthResult struct {
	Output
	Token        string `json:"token"`
	RefreshToken string `json:"refresh_token"`
	Unarchiving  bool   `json:"unarchiving"`
	User         *User  `json:"user,omitempty"`
}

// TokenAuthHandler performs the login flow. The ordering of checks is part of
// the contract: an attacker probing with wrong passwords always gets the same
// undifferentiated credentials failure, while a user presenting the correct
// password learns whether the account is unverified or blocked. Archived
// accounts are unarchived as a login side effect before credentials are
// checked.
type TokenAuthHandler struct {
	repo      RepositoryManager
	machine   *StatusMachine
	tokens    TokenService
	cfg       Config
	recaptcha RecaptchaVerifier
	activity  ActivitySink
	logger    Logger
}

// NewTokenAuthHandler creates a handler with sane defaults.
func NewTokenAuthHandler(repo RepositoryManager, machine *StatusMachine, tokens TokenService, cfg Config) *TokenAuthHandler {
	return &TokenAuthHandler{
		repo:     repo,
		machine:  machine,
		tokens:   tokens,
		cfg:      cfg,
		activity: noopActivitySink{},
		logger:   defLogger{},
	}
}

// WithRecaptchaVerifier sets the verifier used when recaptcha is required.
func (h *TokenAuthHandler) WithRecaptchaVerifier(v RecaptchaVerifier) *TokenAuthHandler {
	h.recaptcha = v
	return h
}

// WithActivitySink sets the sink used to emit login events.
func (h *TokenAuthHandler) WithActivitySink(sink ActivitySink) *TokenAuthHandler {
	h.activity = normalizeActivitySink(sink)
	return h
}

// WithLogger overrides the logger used by the handler.
func (h *TokenAuthHandler) WithLogger(logger Logger) *TokenAuthHandler {
	if logger != nil {
		h.logger = logger
	}
	return h
}

func (h *TokenAuthHandler) Execute(ctx context.Context, event TokenAuthMessage) (*TokenAuthResult, error) {
	select {
	case <-ctx.Done():
		return nil, goerrors.Wrap(
			ctx.Err(),
			goerrors.CategoryOperation,
			"context cancelled during authentication",
		)
	default:
		return h.execute(ctx, event)
	}
}

func (h *TokenAuthHandler) execute(ctx context.Context, event TokenAuthMessage) (*TokenAuthResult, error) {
	if err := event.Validate(); err != nil {
		return failedLogin(FailedValidation(err)), nil
	}

	field, value := event.loginField(h.cfg.GetLoginAllowedFields())
	if field == "" {
		return nil, ErrWrongUsage.Clone().WithMetadata(map[string]any{
			"reason":         "login requires a password and one of the allowed identity fields",
			"allowed_fields": h.cfg.GetLoginAllowedFields(),
		})
	}

	user, err := h.repo.Users().GetByLoginField(ctx, field, value)
	if err != nil {
		if repository.IsRecordNotFound(err) {
			h.recordFailure(ctx, nil, "invalid_credentials")
			return failedLogin(Failed(MsgInvalidCredentials)), nil
		}
		return nil, err
	}

	if err := ensureStatus(ctx, h.repo, user); err != nil {
		return nil, err
	}

	if h.cfg.GetRequireRecaptcha() {
		if out, err := h.checkRecaptcha(ctx, event.RecaptchaToken); err != nil {
			return nil, err
		} else if out != nil {
			return failedLogin(*out), nil
		}
	}

	unarchiving := false
	if user.Status.Archived {
		if err := h.machine.Unarchive(ctx, user); err != nil {
			return nil, err
		}
		unarchiving = true
	}

	passwordOK := ComparePasswordAndHash(event.Password, user.PasswordHash) == nil

	if (user.Status.Verified || h.cfg.GetAllowUnverifiedLogin()) && !user.Status.Blocked {
		if !passwordOK {
			h.recordFailure(ctx, user, "invalid_credentials")
			return failedLogin(Failed(MsgInvalidCredentials)), nil
		}
		return h.succeed(ctx, user, unarchiving)
	}

	// the account cannot log in; only disclose the reason to callers that
	// proved they hold the password
	if passwordOK {
		if !user.Status.Verified && !h.cfg.GetAllowUnverifiedLogin() {
			h.recordFailure(ctx, user, "not_verified")
			return failedLogin(Failed(MsgNotVerified)), nil
		}
		if user.Status.Blocked {
			h.recordFailure(ctx, user, "blocked")
			return failedLogin(Failed(MsgBlocked)), nil
		}
	}

	h.recordFailure(ctx, user, "invalid_credentials")
	return failedLogin(Failed(MsgInvalidCredentials)), nil
}

func (h *TokenAuthHandler) succeed(ctx context.Context, user *User, unarchiving bool) (*TokenAuthResult, error) {
	token, refresh, err := issueSession(ctx, h.repo, h.tokens, user)
	if err != nil {
		return nil, err
	}

	if err := h.repo.Users().TrackSuccessfulLogin(ctx, user); err != nil {
		h.logger.Warn("failed to track successful login: %v", err)
	}

	recordActivity(ctx, h.activity, h.logger, ActivityEvent{
		EventType: ActivityEventLoginSuccess,
		Actor:     ActorRef{ID: user.ID.String(), Type: "user"},
		UserID:    user.ID.String(),
	})

	return &TokenAuthResult{
		Output:       OK(),
		Token:        token,
		RefreshToken: refresh,
		Unarchiving:  unarchiving,
		User:         user,
	}, nil
}

// checkRecaptcha returns a failed output for provider rejections and a Go
// error for wiring mistakes.
func (h *TokenAuthHandler) checkRecaptcha(ctx context.Context, token string) (*Output, error) {
	if h.recaptcha == nil {
		return nil, ErrWrongUsage.Clone().WithMetadata(map[string]any{
			"reason": "recaptcha is required but no verifier is configured",
		})
	}

	result, err := h.recaptcha.Verify(ctx, token)
	if err != nil {
		return nil, err
	}

	if !result.Success {
		out := Failed(MsgRecaptchaFailed)
		return &out, nil
	}

	minScore := h.cfg.GetRecaptchaMinScore()
	if minScore <= 0 {
		return nil, ErrWrongUsage.Clone().WithMetadata(map[string]any{
			"reason": "a recaptcha minimum score must be configured when recaptcha is required",
		})
	}

	if result.Score < minScore {
		out := Failed(MsgRecaptchaFailed)
		return &out, nil
	}

	return nil, nil
}

func (h *TokenAuthHandler) recordFailure(ctx context.Context, user *User, reason string) {
	event := ActivityEvent{
		EventType: ActivityEventLoginFailure,
		Metadata:  map[string]any{"reason": reason},
	}
	if user != nil {
		event.UserID = user.ID.String()
	}
	recordActivity(ctx, h.activity, h.logger, event)
}

func failedLogin(out Output) *TokenAuthResult {
	return &TokenAuthResult{Output: out, Token: "", RefreshToken: ""}
}

type RefreshTokenMessage struct {
	RefreshToken string `json:"refresh_token"`
}

func (e RefreshTokenMessage) Type() string { return "account.token.refresh" }

func (e RefreshTokenMessage) Validate() error {
	return validation.ValidateStruct(&e,
		validation.Field(&e.RefreshToken, validation.Required),
	)
}

// RefreshTokenResult carries the rotated credentials and the decoded auth
// claims. Payload is nil on failure.
type RefreshTokenResult struct {
	Output
	Token        string      `json:"token"`
	RefreshToken string      `json:"refresh_token"`
	Payload      *AuthClaims `json:"payload,omitempty"`
}

// RefreshTokenHandler rotates a persisted refresh token: the presented token
// is revoked and a fresh pair is issued.
type RefreshTokenHandler struct {
	repo   RepositoryManager
	tokens TokenService
	cfg    Config
	logger Logger
}

// NewRefreshTokenHandler creates a handler with sane defaults.
func NewRefreshTokenHandler(repo RepositoryManager, tokens TokenService, cfg Config) *RefreshTokenHandler {
	return &RefreshTokenHandler{
		repo:   repo,
		tokens: tokens,
		cfg:    cfg,
		logger: defLogger{},
	}
}

// WithLogger overrides the logger used by the handler.
func (h *RefreshTokenHandler) WithLogger(logger Logger) *RefreshTokenHandler {
	if logger != nil {
		h.logger = logger
	}
	return h
}

func (h *RefreshTokenHandler) Execute(ctx context.Context, event RefreshTokenMessage) (*RefreshTokenResult, error) {
	select {
	case <-ctx.Done():
		return nil, goerrors.Wrap(
			ctx.Err(),
			goerrors.CategoryOperation,
			"context cancelled during token refresh",
		)
	default:
		return h.execute(ctx, event)
	}
}

func (h *RefreshTokenHandler) execute(ctx context.Context, event RefreshTokenMessage) (*RefreshTokenResult, error) {
	if err := event.Validate(); err != nil {
		return &RefreshTokenResult{Output: FailedValidation(err)}, nil
	}

	record, err := h.repo.RefreshTokens().GetByToken(ctx, event.RefreshToken)
	if err != nil {
		if repository.IsRecordNotFound(err) {
			return &RefreshTokenResult{Output: Failed(MsgInvalidToken)}, nil
		}
		return nil, err
	}

	if record.Revoked {
		return &RefreshTokenResult{Output: Failed(MsgInvalidToken)}, nil
	}

	ttl := time.Duration(h.cfg.GetRefreshTokenExpiration()) * time.Hour
	if record.IsExpired(ttl, time.Now()) {
		return &RefreshTokenResult{Output: Failed(MsgExpiredToken)}, nil
	}

	user, err := h.repo.Users().GetByID(ctx, record.UserID.String())
	if err != nil {
		if repository.IsRecordNotFound(err) {
			return &RefreshTokenResult{Output: Failed(MsgInvalidToken)}, nil
		}
		return nil, err
	}

	if _, err := h.repo.RefreshTokens().Update(ctx, MarkRevoked(record.ID)); err != nil {
		return nil, goerrors.Wrap(err, goerrors.CategoryInternal, "failed to revoke refresh token")
	}

	token, refresh, err := issueSession(ctx, h.repo, h.tokens, user)
	if err != nil {
		return nil, err
	}

	claims, err := h.tokens.Validate(token)
	if err != nil {
		return nil, err
	}

	return &RefreshTokenResult{
		Output:       OK(),
		Token:        token,
		RefreshToken: refresh,
		Payload:      claims,
	}, nil
}

type RevokeTokenMessage struct {
	RefreshToken string `json:"refresh_token"`
}

func (e RevokeTokenMessage) Type() string { return "account.token.revoke" }

func (e RevokeTokenMessage) Validate() error {
	return validation.ValidateStruct(&e,
		validation.Field(&e.RefreshToken, validation.Required),
	)
}

type RevokeTokenResult struct {
	Output
	Revoked bool `json:"revoked"`
}

// RevokeTokenHandler invalidates a single refresh token.
type RevokeTokenHandler struct {
	repo   RepositoryManager
	logger Logger
}

// NewRevokeTokenHandler creates a handler with sane defaults.
func NewRevokeTokenHandler(repo RepositoryManager) *RevokeTokenHandler {
	return &RevokeTokenHandler{
		repo:   repo,
		logger: defLogger{},
	}
}

// WithLogger overrides the logger used by the handler.
func (h *RevokeTokenHandler) WithLogger(logger Logger) *RevokeTokenHandler {
	if logger != nil {
		h.logger = logger
	}
	return h
}

func (h *RevokeTokenHandler) Execute(ctx context.Context, event RevokeTokenMessage) (*RevokeTokenResult, error) {
	select {
	case <-ctx.Done():
		return nil, goerrors.Wrap(
			ctx.Err(),
			goerrors.CategoryOperation,
			"context cancelled during token revocation",
		)
	default:
		return h.execute(ctx, event)
	}
}

func (h *RevokeTokenHandler) execute(ctx context.Context, event RevokeTokenMessage) (*RevokeTokenResult, error) {
	if err := event.Validate(); err != nil {
		return &RevokeTokenResult{Output: FailedValidation(err)}, nil
	}

	record, err := h.repo.RefreshTokens().GetByToken(ctx, event.RefreshToken)
	if err != nil {
		if repository.IsRecordNotFound(err) {
			return &RevokeTokenResult{Output: Failed(MsgInvalidToken)}, nil
		}
		return nil, err
	}

	if record.Revoked {
		return &RevokeTokenResult{Output: Failed(MsgInvalidToken)}, nil
	}

	if _, err := h.repo.RefreshTokens().Update(ctx, MarkRevoked(record.ID)); err != nil {
		return nil, goerrors.Wrap(err, goerrors.CategoryInternal, "failed to revoke refresh token")
	}

	return &RevokeTokenResult{Output: OK(), Revoked: true}, nil
}

type VerifyTokenMessage struct {
	Token string `json:"token" doc:"Auth JWT to inspect"`
}

func (e VerifyTokenMessage) Type() string { return "account.token.verify" }

func (e VerifyTokenMessage) Validate() error {
	return validation.ValidateStruct(&e,
		validation.Field(&e.Token, validation.Required),
	)
}

type VerifyTokenResult struct {
	Output
	Payload *AuthClaims `json:"payload,omitempty"`
}

// VerifyTokenHandler checks an auth JWT and returns its claims.
type VerifyTokenHandler struct {
	tokens TokenService
	logger Logger
}

// NewVerifyTokenHandler creates a handler with sane defaults.
func NewVerifyTokenHandler(tokens TokenService) *VerifyTokenHandler {
	return &VerifyTokenHandler{
		tokens: tokens,
		logger: defLogger{},
	}
}

// WithLogger overrides the logger used by the handler.
func (h *VerifyTokenHandler) WithLogger(logger Logger) *VerifyTokenHandler {
	if logger != nil {
		h.logger = logger
	}
	return h
}

func (h *VerifyTokenHandler) Execute(ctx context.Context, event VerifyTokenMessage) (*VerifyTokenResult, error) {
	select {
	case <-ctx.Done():
		return nil, goerrors.Wrap(
			ctx.Err(),
			goerrors.CategoryOperation,
			"context cancelled during token verification",
		)
	default:
		return h.execute(event)
	}
}

func (h *VerifyTokenHandler) execute(event VerifyTokenMessage) (*VerifyTokenResult, error) {
	if err := event.Validate(); err != nil {
		return &VerifyTokenResult{Output: FailedValidation(err)}, nil
	}

	claims, err := h.tokens.Validate(event.Token)
	if err != nil {
		if out, ok := tokenFailure(err); ok {
			return &VerifyTokenResult{Output: out}, nil
		}
		return nil, err
	}

	return &VerifyTokenResult{Output: OK(), Payload: claims}, nil
}
