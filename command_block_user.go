package account

import (
	"context"

	validation "github.com/go-ozzo/ozzo-validation"
	"github.com/go-ozzo/ozzo-validation/is"
	goerrors "github.com/goliatone/go-errors"
	"github.com/goliatone/go-repository-bun"
)

type BlockUserMessage struct {
	UserID     string `json:"user_id" doc:"ID of the account to block"`
	Unblocking bool   `json:"unblocking" doc:"Lift the block if the account is already blocked"`
}

func (e BlockUserMessage) Type() string { return "account.block" }

func (e BlockUserMessage) Validate() error {
	return validation.ValidateStruct(&e,
		validation.Field(&e.UserID, validation.Required, is.UUID),
	)
}

// BlockUserResult reports the toggle outcome. Unblocked is true only when an
// already blocked account was unblocked.
type BlockUserResult struct {
	Output
	Unblocked bool `json:"unblocked"`
}

// BlockUserHandler toggles the blocked flag on a target account. The acting
// user must be a superuser. With Unblocking set, a blocked account is
// unblocked; in every other case the account ends up blocked.
type BlockUserHandler struct {
	repo     RepositoryManager
	machine  *StatusMachine
	activity ActivitySink
	logger   Logger
}

// NewBlockUserHandler creates a handler with sane defaults.
func NewBlockUserHandler(repo RepositoryManager, machine *StatusMachine) *BlockUserHandler {
	return &BlockUserHandler{
		repo:     repo,
		machine:  machine,
		activity: noopActivitySink{},
		logger:   defLogger{},
	}
}

// WithActivitySink sets the sink used to emit block events.
func (h *BlockUserHandler) WithActivitySink(sink ActivitySink) *BlockUserHandler {
	h.activity = normalizeActivitySink(sink)
	return h
}

// WithLogger overrides the logger used by the handler.
func (h *BlockUserHandler) WithLogger(logger Logger) *BlockUserHandler {
	if logger != nil {
		h.logger = logger
	}
	return h
}

func (h *BlockUserHandler) Execute(ctx context.Context, event BlockUserMessage) (*BlockUserResult, error) {
	select {
	case <-ctx.Done():
		return nil, goerrors.Wrap(
			ctx.Err(),
			goerrors.CategoryOperation,
			"context cancelled during user block",
		)
	default:
		return h.execute(ctx, event)
	}
}

func (h *BlockUserHandler) execute(ctx context.Context, event BlockUserMessage) (*BlockUserResult, error) {
	actor, failed := RequireAuthenticated(ctx)
	if failed != nil {
		return &BlockUserResult{Output: *failed}, nil
	}

	if failed := RequireSuperuser(actor); failed != nil {
		return &BlockUserResult{Output: *failed}, nil
	}

	if err := event.Validate(); err != nil {
		return &BlockUserResult{Output: FailedValidation(err)}, nil
	}

	target, err := h.repo.Users().GetByID(ctx, event.UserID)
	if err != nil {
		if repository.IsRecordNotFound(err) {
			return &BlockUserResult{Output: FailedField("user_id", FieldError{
				Message: "User does not exist.",
				Code:    "not_found",
			})}, nil
		}
		return nil, err
	}

	if err := ensureStatus(ctx, h.repo, target); err != nil {
		return nil, err
	}

	actorRef := ActorRef{ID: actor.ID.String(), Type: "superuser"}

	if event.Unblocking && target.Status.Blocked {
		if err := h.machine.Unblock(ctx, actorRef, target); err != nil {
			return nil, err
		}
		return &BlockUserResult{Output: OK(), Unblocked: true}, nil
	}

	if !target.Status.Blocked {
		if err := h.machine.Block(ctx, actorRef, target); err != nil {
			return nil, err
		}
	}

	return &BlockUserResult{Output: OK(), Unblocked: false}, nil
}
