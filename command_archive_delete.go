package account

import (
	"context"
	"time"

	validation "github.com/go-ozzo/ozzo-validation"
	goerrors "github.com/goliatone/go-errors"
	"github.com/uptrace/bun"
)

type ArchiveAccountMessage struct {
	Password string `json:"password" doc:"Password confirmation"`
}

func (e ArchiveAccountMessage) Type() string { return "account.archive" }

func (e ArchiveAccountMessage) Validate() error {
	return validation.ValidateStruct(&e,
		validation.Field(&e.Password, validation.Required),
	)
}

type ArchiveAccountResult struct {
	Output
}

// ArchiveAccountHandler archives the authenticated account and revokes its
// refresh tokens. The user must be verified and confirm the password.
type ArchiveAccountHandler struct {
	repo     RepositoryManager
	machine  *StatusMachine
	activity ActivitySink
	logger   Logger
}

// NewArchiveAccountHandler creates a handler with sane defaults.
func NewArchiveAccountHandler(repo RepositoryManager, machine *StatusMachine) *ArchiveAccountHandler {
	return &ArchiveAccountHandler{
		repo:     repo,
		machine:  machine,
		activity: noopActivitySink{},
		logger:   defLogger{},
	}
}

// WithActivitySink sets the sink used to emit archive events.
func (h *ArchiveAccountHandler) WithActivitySink(sink ActivitySink) *ArchiveAccountHandler {
	h.activity = normalizeActivitySink(sink)
	return h
}

// WithLogger overrides the logger used by the handler.
func (h *ArchiveAccountHandler) WithLogger(logger Logger) *ArchiveAccountHandler {
	if logger != nil {
		h.logger = logger
	}
	return h
}

func (h *ArchiveAccountHandler) Execute(ctx context.Context, event ArchiveAccountMessage) (*ArchiveAccountResult, error) {
	select {
	case <-ctx.Done():
		return nil, goerrors.Wrap(
			ctx.Err(),
			goerrors.CategoryOperation,
			"context cancelled during account archival",
		)
	default:
		return h.execute(ctx, event)
	}
}

func (h *ArchiveAccountHandler) execute(ctx context.Context, event ArchiveAccountMessage) (*ArchiveAccountResult, error) {
	user, failed := RequireAuthenticated(ctx)
	if failed != nil {
		return &ArchiveAccountResult{Output: *failed}, nil
	}

	if err := ensureStatus(ctx, h.repo, user); err != nil {
		return nil, err
	}

	if failed := RequireVerified(user); failed != nil {
		return &ArchiveAccountResult{Output: *failed}, nil
	}

	if failed := RequirePasswordConfirmation(user, event.Password); failed != nil {
		return &ArchiveAccountResult{Output: *failed}, nil
	}

	// idempotent from the caller's point of view
	if user.Status.Archived {
		return &ArchiveAccountResult{Output: OK()}, nil
	}

	if err := h.machine.Archive(ctx, user); err != nil {
		return nil, err
	}

	return &ArchiveAccountResult{Output: OK()}, nil
}

type DeleteAccountMessage struct {
	Password string `json:"password" doc:"Password confirmation"`
}

func (e DeleteAccountMessage) Type() string { return "account.delete" }

func (e DeleteAccountMessage) Validate() error {
	return validation.ValidateStruct(&e,
		validation.Field(&e.Password, validation.Required),
	)
}

type DeleteAccountResult struct {
	Output
}

// DeleteAccountHandler removes the authenticated account. Depending on
// configuration the row is hard deleted or soft disabled; refresh tokens are
// revoked either way. The user must be verified and confirm the password.
type DeleteAccountHandler struct {
	repo     RepositoryManager
	cfg      Config
	activity ActivitySink
	logger   Logger
}

// NewDeleteAccountHandler creates a handler with sane defaults.
func NewDeleteAccountHandler(repo RepositoryManager, cfg Config) *DeleteAccountHandler {
	return &DeleteAccountHandler{
		repo:     repo,
		cfg:      cfg,
		activity: noopActivitySink{},
		logger:   defLogger{},
	}
}

// WithActivitySink sets the sink used to emit deletion events.
func (h *DeleteAccountHandler) WithActivitySink(sink ActivitySink) *DeleteAccountHandler {
	h.activity = normalizeActivitySink(sink)
	return h
}

// WithLogger overrides the logger used by the handler.
func (h *DeleteAccountHandler) WithLogger(logger Logger) *DeleteAccountHandler {
	if logger != nil {
		h.logger = logger
	}
	return h
}

func (h *DeleteAccountHandler) Execute(ctx context.Context, event DeleteAccountMessage) (*DeleteAccountResult, error) {
	select {
	case <-ctx.Done():
		return nil, goerrors.Wrap(
			ctx.Err(),
			goerrors.CategoryOperation,
			"context cancelled during account deletion",
		)
	default:
		return h.execute(ctx, event)
	}
}

func (h *DeleteAccountHandler) execute(ctx context.Context, event DeleteAccountMessage) (*DeleteAccountResult, error) {
	user, failed := RequireAuthenticated(ctx)
	if failed != nil {
		return &DeleteAccountResult{Output: *failed}, nil
	}

	if err := ensureStatus(ctx, h.repo, user); err != nil {
		return nil, err
	}

	if failed := RequireVerified(user); failed != nil {
		return &DeleteAccountResult{Output: *failed}, nil
	}

	if failed := RequirePasswordConfirmation(user, event.Password); failed != nil {
		return &DeleteAccountResult{Output: *failed}, nil
	}

	ctx, cancel := context.WithTimeout(ctx, time.Second*10)
	defer cancel()

	err := h.repo.RunInTx(ctx, nil, func(ctx context.Context, tx bun.Tx) error {
		if err := h.repo.RefreshTokens().RevokeAllForUserTx(ctx, tx, user.ID); err != nil {
			return err
		}

		if h.cfg.GetAllowDeleteAccount() {
			return h.repo.Users().HardDeleteTx(ctx, tx, user.ID)
		}
		return h.repo.Users().SoftDisableTx(ctx, tx, user.ID)
	})

	if err != nil {
		var richErr *goerrors.Error
		if goerrors.As(err, &richErr) {
			return nil, richErr
		}
		return nil, goerrors.Wrap(err, goerrors.CategoryInternal, "account deletion transaction failed")
	}

	recordActivity(ctx, h.activity, h.logger, ActivityEvent{
		EventType: ActivityEventUserDeleted,
		Actor:     ActorRef{ID: user.ID.String(), Type: "user"},
		UserID:    user.ID.String(),
		Metadata:  map[string]any{"hard_delete": h.cfg.GetAllowDeleteAccount()},
	})

	return &DeleteAccountResult{Output: OK()}, nil
}
