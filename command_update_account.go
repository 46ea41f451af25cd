package account

import (
	"context"

	validation "github.com/go-ozzo/ozzo-validation"
	goerrors "github.com/goliatone/go-errors"
	"github.com/uptrace/bun"
)

type UpdateAccountMessage struct {
	FirstName *string `json:"first_name,omitempty"`
	LastName  *string `json:"last_name,omitempty"`
}

func (e UpdateAccountMessage) Type() string { return "account.update" }

func (e UpdateAccountMessage) Validate() error {
	return validation.ValidateStruct(&e,
		validation.Field(&e.FirstName, validation.Length(0, 200)),
		validation.Field(&e.LastName, validation.Length(0, 200)),
	)
}

type UpdateAccountResult struct {
	Output
	User *User `json:"user,omitempty"`
}

// UpdateAccountHandler updates the profile fields the deployment allows.
// Fields outside the configured list are silently ignored. The user must be
// verified.
type UpdateAccountHandler struct {
	repo   RepositoryManager
	cfg    Config
	logger Logger
}

// NewUpdateAccountHandler creates a handler with sane defaults.
func NewUpdateAccountHandler(repo RepositoryManager, cfg Config) *UpdateAccountHandler {
	return &UpdateAccountHandler{
		repo:   repo,
		cfg:    cfg,
		logger: defLogger{},
	}
}

// WithLogger overrides the logger used by the handler.
func (h *UpdateAccountHandler) WithLogger(logger Logger) *UpdateAccountHandler {
	if logger != nil {
		h.logger = logger
	}
	return h
}

func (h *UpdateAccountHandler) Execute(ctx context.Context, event UpdateAccountMessage) (*UpdateAccountResult, error) {
	select {
	case <-ctx.Done():
		return nil, goerrors.Wrap(
			ctx.Err(),
			goerrors.CategoryOperation,
			"context cancelled during account update",
		)
	default:
		return h.execute(ctx, event)
	}
}

func (h *UpdateAccountHandler) execute(ctx context.Context, event UpdateAccountMessage) (*UpdateAccountResult, error) {
	user, failed := RequireAuthenticated(ctx)
	if failed != nil {
		return &UpdateAccountResult{Output: *failed}, nil
	}

	if err := ensureStatus(ctx, h.repo, user); err != nil {
		return nil, err
	}

	if failed := RequireVerified(user); failed != nil {
		return &UpdateAccountResult{Output: *failed}, nil
	}

	if err := event.Validate(); err != nil {
		return &UpdateAccountResult{Output: FailedValidation(err)}, nil
	}

	columns := make([]string, 0, 2)
	for _, field := range h.cfg.GetUpdateAccountFields() {
		switch field {
		case "first_name":
			if event.FirstName != nil {
				user.FirstName = *event.FirstName
				columns = append(columns, "first_name")
			}
		case "last_name":
			if event.LastName != nil {
				user.LastName = *event.LastName
				columns = append(columns, "last_name")
			}
		}
	}

	if len(columns) == 0 {
		return &UpdateAccountResult{Output: OK(), User: user}, nil
	}

	err := h.repo.RunInTx(ctx, nil, func(ctx context.Context, tx bun.Tx) error {
		_, err := tx.NewUpdate().
			Model(user).
			Column(columns...).
			WherePK().
			Exec(ctx)
		return err
	})

	if err != nil {
		return nil, goerrors.Wrap(err, goerrors.CategoryInternal, "failed to update account fields")
	}

	return &UpdateAccountResult{Output: OK(), User: user}, nil
}
