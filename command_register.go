package account

import (
	"context"
	"time"

	validation "github.com/go-ozzo/ozzo-validation"
	"github.com/go-ozzo/ozzo-validation/is"
	goerrors "github.com/goliatone/go-errors"
	"github.com/goliatone/hashid/pkg/hashid"
	"github.com/uptrace/bun"
)

type RegisterMessage struct {
	Email     string `json:"email" example:"peyton@example.com" doc:"Primary email, checked against primary and secondary emails"`
	Username  string `json:"username" example:"peyton" doc:"Optional, derived from email when empty"`
	FirstName string `json:"first_name"`
	LastName  string `json:"last_name"`
	Password1 string `json:"password1"`
	Password2 string `json:"password2"`
	UseHashid bool   `json:"-"`
}

func (e RegisterMessage) Type() string { return "account.register" }

// Validate checks the message shape. Password rules depend on whether the
// deployment allows passwordless registration, so they are applied here by
// the handler rather than at the transport boundary.
func (e RegisterMessage) Validate(passwordless bool) error {
	fields := []*validation.FieldRules{
		validation.Field(&e.Email, validation.Required, is.Email),
		validation.Field(&e.Username, validation.Length(0, 150)),
		validation.Field(&e.FirstName, validation.Length(0, 200)),
		validation.Field(&e.LastName, validation.Length(0, 200)),
	}

	if !passwordless {
		fields = append(fields,
			validation.Field(&e.Password1, validation.Required, validation.Length(8, 100)),
			validation.Field(&e.Password2,
				validation.Required,
				validation.By(ValidateStringEquals(e.Password1)),
			),
		)
	}

	return validation.ValidateStruct(&e, fields...)
}

// RegisterResult reports the outcome. Token and RefreshToken are populated
// only when unverified login is allowed.
type RegisterResult struct {
	Output
	Token        string `json:"token,omitempty"`
	RefreshToken string `json:"refresh_token,omitempty"`
}

// RegisterHandler creates the user plus its status row, sends the activation
// or password set email, and optionally logs the new user in.
type RegisterHandler struct {
	repo     RepositoryManager
	machine  *StatusMachine
	codec    ScopedTokenCodec
	tokens   TokenService
	mailer   *EmailDispatcher
	cfg      Config
	activity ActivitySink
	logger   Logger
}

// NewRegisterHandler creates a handler with sane defaults.
func NewRegisterHandler(repo RepositoryManager, machine *StatusMachine, codec ScopedTokenCodec, tokens TokenService, mailer *EmailDispatcher, cfg Config) *RegisterHandler {
	return &RegisterHandler{
		repo:     repo,
		machine:  machine,
		codec:    codec,
		tokens:   tokens,
		mailer:   mailer,
		cfg:      cfg,
		activity: noopActivitySink{},
		logger:   defLogger{},
	}
}

// WithActivitySink sets the sink used to emit registration events.
func (h *RegisterHandler) WithActivitySink(sink ActivitySink) *RegisterHandler {
	h.activity = normalizeActivitySink(sink)
	return h
}

// WithLogger overrides the logger used by the handler.
func (h *RegisterHandler) WithLogger(logger Logger) *RegisterHandler {
	if logger != nil {
		h.logger = logger
	}
	return h
}

func (h *RegisterHandler) Execute(ctx context.Context, event RegisterMessage) (*RegisterResult, error) {
	select {
	case <-ctx.Done():
		return nil, goerrors.Wrap(
			ctx.Err(),
			goerrors.CategoryOperation,
			"context cancelled during registration",
		)
	default:
		return h.execute(ctx, event)
	}
}

func (h *RegisterHandler) execute(ctx context.Context, event RegisterMessage) (*RegisterResult, error) {
	passwordless := h.cfg.GetAllowPasswordlessRegistration()

	if err := event.Validate(passwordless); err != nil {
		return &RegisterResult{Output: FailedValidation(err)}, nil
	}

	ctx, cancel := context.WithTimeout(ctx, time.Second*10)
	defer cancel()

	user := &User{}

	err := h.repo.RunInTx(ctx, nil, func(ctx context.Context, tx bun.Tx) error {
		if err := h.machine.CleanEmailTx(ctx, tx, event.Email); err != nil {
			return err
		}

		if event.Username != "" {
			if _, err := h.repo.Users().GetByLoginFieldTx(ctx, tx, LoginFieldUsername, event.Username); err == nil {
				return ErrUsernameTaken
			}
		}

		if !passwordless {
			hash, err := HashPassword(event.Password1)
			if err != nil {
				var richErr *goerrors.Error
				if goerrors.As(err, &richErr) {
					return goerrors.Wrap(richErr, goerrors.CategoryValidation, "invalid password provided")
				}
				return goerrors.Wrap(err, goerrors.CategoryInternal, "failed to hash password")
			}
			user.PasswordHash = hash
		}

		user.Email = event.Email
		user.Username = event.Username
		user.FirstName = event.FirstName
		user.LastName = event.LastName
		if event.UseHashid {
			if id, err := hashid.NewUUID(event.Email); err == nil {
				user.ID = id
			}
		}

		var err error
		if user, err = h.repo.Users().RegisterTx(ctx, tx, user); err != nil {
			return goerrors.Wrap(err, goerrors.CategoryConflict, "could not create user")
		}

		status := &AccountStatus{UserID: user.ID}
		if status, err = h.repo.Statuses().CreateTx(ctx, tx, status); err != nil {
			return goerrors.Wrap(err, goerrors.CategoryInternal, "could not create account status")
		}
		user.Status = status

		// email delivery participates in the transaction: a synchronous
		// failure rolls the whole registration back
		if h.cfg.GetSendActivationEmail() {
			token, err := h.codec.Issue(NewIdentityFromUser(user), ScopeActivation)
			if err != nil {
				return err
			}
			if err := h.mailer.SendActivation(ctx, user, token); err != nil {
				h.logger.Error("activation email delivery failed: %v", err)
				return ErrEmailDeliveryFailed
			}
		}

		if passwordless && h.cfg.GetSendPasswordSetEmail() {
			token, err := h.codec.Issue(NewIdentityFromUser(user), ScopePasswordSet)
			if err != nil {
				return err
			}
			if err := h.mailer.SendPasswordSet(ctx, user, token); err != nil {
				h.logger.Error("password set email delivery failed: %v", err)
				return ErrEmailDeliveryFailed
			}
		}

		return nil
	})

	if err != nil {
		switch errorTextCode(err) {
		case TextCodeEmailInUse:
			return &RegisterResult{Output: FailedField("email", MsgEmailInUse)}, nil
		case TextCodeUsernameTaken:
			return &RegisterResult{Output: FailedField("username", MsgUsernameInUse)}, nil
		case TextCodeEmailFail:
			return &RegisterResult{Output: Failed(MsgEmailFail)}, nil
		}

		var richErr *goerrors.Error
		if goerrors.As(err, &richErr) {
			return nil, richErr
		}
		return nil, goerrors.Wrap(err, goerrors.CategoryInternal, "registration transaction failed")
	}

	recordActivity(ctx, h.activity, h.logger, ActivityEvent{
		EventType: ActivityEventUserRegistered,
		Actor:     ActorRef{ID: user.ID.String(), Type: "user"},
		UserID:    user.ID.String(),
	})

	result := &RegisterResult{Output: OK()}

	if h.cfg.GetAllowUnverifiedLogin() {
		token, refresh, err := issueSession(ctx, h.repo, h.tokens, user)
		if err != nil {
			return nil, err
		}
		result.Token = token
		result.RefreshToken = refresh
	}

	return result, nil
}

// issueSession mints an auth token and persists a fresh refresh token.
func issueSession(ctx context.Context, repo RepositoryManager, tokens TokenService, user *User) (string, string, error) {
	token, err := tokens.Generate(NewIdentityFromUser(user))
	if err != nil {
		return "", "", err
	}

	value, err := NewRefreshTokenValue()
	if err != nil {
		return "", "", err
	}

	if _, err := repo.RefreshTokens().Create(ctx, &RefreshToken{
		UserID: user.ID,
		Token:  value,
	}); err != nil {
		return "", "", goerrors.Wrap(err, goerrors.CategoryInternal, "failed to persist refresh token")
	}

	return token, value, nil
}
