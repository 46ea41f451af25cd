package account

import (
	"context"

	goerrors "github.com/goliatone/go-errors"
	"github.com/goliatone/go-repository-bun"
	"github.com/google/uuid"
	"github.com/uptrace/bun"
)

var SetStatusVerifiedSQL = `UPDATE "account_status" AS "ast"
SET
	"verified" = TRUE
WHERE
	"ast"."user_id" = ?
RETURNING *;`

var SetStatusArchivedSQL = `UPDATE "account_status" AS "ast"
SET
	"archived" = ?
WHERE
	"ast"."user_id" = ?
RETURNING *;`

var SetStatusBlockedSQL = `UPDATE "account_status" AS "ast"
SET
	"blocked" = ?
WHERE
	"ast"."user_id" = ?
RETURNING *;`

var SetSecondaryEmailSQL = `UPDATE "account_status" AS "ast"
SET
	"secondary_email" = ?
WHERE
	"ast"."user_id" = ?
RETURNING *;`

var SetPrimaryEmailSQL = `UPDATE "users" AS "usr"
SET
	"email" = ?
WHERE
	"usr"."deleted_at" IS NULL
AND
	"usr"."id" = ?
RETURNING *;`

// StatusMachine owns the account lifecycle flag transitions and their side
// effects. It does not re-validate caller authorization: callers are expected
// to check their preconditions first, and transitions invoked out of order
// fail with ErrWrongUsage.
type StatusMachine struct {
	repo     RepositoryManager
	codec    ScopedTokenCodec
	cfg      Config
	logger   Logger
	activity ActivitySink
}

// NewStatusMachine creates a machine with sane defaults.
func NewStatusMachine(repo RepositoryManager, codec ScopedTokenCodec, cfg Config) *StatusMachine {
	return &StatusMachine{
		repo:     repo,
		codec:    codec,
		cfg:      cfg,
		logger:   defLogger{},
		activity: noopActivitySink{},
	}
}

// WithLogger overrides the logger used by the machine.
func (m *StatusMachine) WithLogger(logger Logger) *StatusMachine {
	if logger != nil {
		m.logger = logger
	}
	return m
}

// WithActivitySink sets the sink used to emit lifecycle events.
func (m *StatusMachine) WithActivitySink(sink ActivitySink) *StatusMachine {
	m.activity = normalizeActivitySink(sink)
	return m
}

// Verify consumes an activation scoped token and flips the verified flag.
// An already verified user fails with ErrUserAlreadyVerified so the caller
// can report idempotence instead of crashing.
func (m *StatusMachine) Verify(ctx context.Context, token string) error {
	claims, err := m.codec.Verify(token, ScopeActivation, m.cfg.GetScopedTokenMaxAge(ScopeActivation))
	if err != nil {
		return err
	}

	userID, err := uuid.Parse(claims.UserID())
	if err != nil {
		return ErrInvalidToken
	}

	return m.repo.RunInTx(ctx, nil, func(ctx context.Context, tx bun.Tx) error {
		status, err := m.repo.Statuses().GetByUserIDTx(ctx, tx, userID)
		if err != nil {
			if repository.IsRecordNotFound(err) {
				return ErrInvalidToken
			}
			return err
		}

		if status.Verified {
			return ErrUserAlreadyVerified
		}

		if _, err := m.repo.Statuses().RawTx(ctx, tx, SetStatusVerifiedSQL, userID.String()); err != nil {
			return goerrors.Wrap(err, goerrors.CategoryInternal, "failed to mark account verified")
		}

		recordActivity(ctx, m.activity, m.logger, ActivityEvent{
			EventType: ActivityEventUserVerified,
			Actor:     ActorRef{ID: userID.String(), Type: "user"},
			UserID:    userID.String(),
		})

		return nil
	})
}

// VerifySecondaryEmail consumes a secondary email scoped token and stores the
// pending address. Until verification the address only lives inside the
// token, so another account may have claimed it in the meantime.
func (m *StatusMachine) VerifySecondaryEmail(ctx context.Context, token string) error {
	claims, err := m.codec.Verify(token, ScopeSecondaryEmail, m.cfg.GetScopedTokenMaxAge(ScopeSecondaryEmail))
	if err != nil {
		return err
	}

	if claims.Email == "" {
		return ErrInvalidToken
	}

	userID, err := uuid.Parse(claims.UserID())
	if err != nil {
		return ErrInvalidToken
	}

	return m.repo.RunInTx(ctx, nil, func(ctx context.Context, tx bun.Tx) error {
		if err := m.CleanEmailTx(ctx, tx, claims.Email); err != nil {
			return err
		}

		if _, err := m.repo.Statuses().RawTx(ctx, tx, SetSecondaryEmailSQL, claims.Email, userID.String()); err != nil {
			return goerrors.Wrap(err, goerrors.CategoryInternal, "failed to store secondary email")
		}

		return nil
	})
}

// CleanEmail checks the address is not a primary or secondary email already.
func (m *StatusMachine) CleanEmail(ctx context.Context, email string) error {
	used, err := m.repo.Users().EmailInUse(ctx, email)
	if err != nil {
		return err
	}
	if used {
		return ErrEmailAlreadyInUse
	}
	return nil
}

// CleanEmailTx is CleanEmail within a caller owned transaction.
func (m *StatusMachine) CleanEmailTx(ctx context.Context, tx bun.IDB, email string) error {
	used, err := m.repo.Users().EmailInUseTx(ctx, tx, email)
	if err != nil {
		return err
	}
	if used {
		return ErrEmailAlreadyInUse
	}
	return nil
}

// Archive soft disables the account and revokes every refresh token.
func (m *StatusMachine) Archive(ctx context.Context, user *User) error {
	return m.repo.RunInTx(ctx, nil, func(ctx context.Context, tx bun.Tx) error {
		return m.ArchiveTx(ctx, tx, user)
	})
}

// ArchiveTx archives within a caller owned transaction.
func (m *StatusMachine) ArchiveTx(ctx context.Context, tx bun.IDB, user *User) error {
	status, err := m.statusFor(ctx, tx, user)
	if err != nil {
		return err
	}

	if status.Archived {
		return m.wrongUsage(user, "archive called on an archived account")
	}

	if _, err := m.repo.Statuses().RawTx(ctx, tx, SetStatusArchivedSQL, true, user.ID.String()); err != nil {
		return goerrors.Wrap(err, goerrors.CategoryInternal, "failed to archive account")
	}

	if err := m.repo.RefreshTokens().RevokeAllForUserTx(ctx, tx, user.ID); err != nil {
		return err
	}

	recordActivity(ctx, m.activity, m.logger, ActivityEvent{
		EventType: ActivityEventUserArchived,
		Actor:     ActorRef{ID: user.ID.String(), Type: "user"},
		UserID:    user.ID.String(),
	})

	return nil
}

// Unarchive clears the archived flag. Login triggers this implicitly for
// archived users; blocking does not interfere with it.
func (m *StatusMachine) Unarchive(ctx context.Context, user *User) error {
	return m.repo.RunInTx(ctx, nil, func(ctx context.Context, tx bun.Tx) error {
		return m.UnarchiveTx(ctx, tx, user)
	})
}

// UnarchiveTx unarchives within a caller owned transaction.
func (m *StatusMachine) UnarchiveTx(ctx context.Context, tx bun.IDB, user *User) error {
	status, err := m.statusFor(ctx, tx, user)
	if err != nil {
		return err
	}

	if !status.Archived {
		return m.wrongUsage(user, "unarchive called on an account that is not archived")
	}

	if _, err := m.repo.Statuses().RawTx(ctx, tx, SetStatusArchivedSQL, false, user.ID.String()); err != nil {
		return goerrors.Wrap(err, goerrors.CategoryInternal, "failed to unarchive account")
	}

	recordActivity(ctx, m.activity, m.logger, ActivityEvent{
		EventType: ActivityEventUserUnarchived,
		Actor:     ActorRef{ID: user.ID.String(), Type: "user"},
		UserID:    user.ID.String(),
	})

	return nil
}

// Block imposes the blocked flag. Blocking does not revoke refresh tokens by
// itself; authentication checks reject blocked users unconditionally.
func (m *StatusMachine) Block(ctx context.Context, actor ActorRef, user *User) error {
	return m.setBlocked(ctx, actor, user, true)
}

// Unblock lifts the blocked flag.
func (m *StatusMachine) Unblock(ctx context.Context, actor ActorRef, user *User) error {
	return m.setBlocked(ctx, actor, user, false)
}

func (m *StatusMachine) setBlocked(ctx context.Context, actor ActorRef, user *User, blocked bool) error {
	return m.repo.RunInTx(ctx, nil, func(ctx context.Context, tx bun.Tx) error {
		status, err := m.statusFor(ctx, tx, user)
		if err != nil {
			return err
		}

		if status.Blocked == blocked {
			return m.wrongUsage(user, "blocked flag already in the requested state")
		}

		if _, err := m.repo.Statuses().RawTx(ctx, tx, SetStatusBlockedSQL, blocked, user.ID.String()); err != nil {
			return goerrors.Wrap(err, goerrors.CategoryInternal, "failed to update blocked flag")
		}

		eventType := ActivityEventUserBlocked
		if !blocked {
			eventType = ActivityEventUserUnblocked
		}

		recordActivity(ctx, m.activity, m.logger, ActivityEvent{
			EventType: eventType,
			Actor:     actor,
			UserID:    user.ID.String(),
		})

		return nil
	})
}

// SwapEmails exchanges the primary and secondary email addresses. The caller
// is responsible for making sure a secondary email exists.
func (m *StatusMachine) SwapEmails(ctx context.Context, user *User) error {
	return m.repo.RunInTx(ctx, nil, func(ctx context.Context, tx bun.Tx) error {
		status, err := m.statusFor(ctx, tx, user)
		if err != nil {
			return err
		}

		if !status.HasSecondaryEmail() {
			return m.wrongUsage(user, "swap emails requires a secondary email")
		}

		primary := user.Email
		secondary := *status.SecondaryEmail

		if _, err := m.repo.Users().RawTx(ctx, tx, SetPrimaryEmailSQL, secondary, user.ID.String()); err != nil {
			return goerrors.Wrap(err, goerrors.CategoryInternal, "failed to update primary email")
		}

		if _, err := m.repo.Statuses().RawTx(ctx, tx, SetSecondaryEmailSQL, primary, user.ID.String()); err != nil {
			return goerrors.Wrap(err, goerrors.CategoryInternal, "failed to update secondary email")
		}

		user.Email = secondary
		status.SecondaryEmail = &primary

		recordActivity(ctx, m.activity, m.logger, ActivityEvent{
			EventType: ActivityEventEmailsSwapped,
			Actor:     ActorRef{ID: user.ID.String(), Type: "user"},
			UserID:    user.ID.String(),
		})

		return nil
	})
}

// RemoveSecondaryEmail clears the secondary email slot. The caller is
// responsible for making sure one exists.
func (m *StatusMachine) RemoveSecondaryEmail(ctx context.Context, user *User) error {
	return m.repo.RunInTx(ctx, nil, func(ctx context.Context, tx bun.Tx) error {
		status, err := m.statusFor(ctx, tx, user)
		if err != nil {
			return err
		}

		if !status.HasSecondaryEmail() {
			return m.wrongUsage(user, "remove secondary email requires a secondary email")
		}

		if _, err := m.repo.Statuses().RawTx(ctx, tx, SetSecondaryEmailSQL, nil, user.ID.String()); err != nil {
			return goerrors.Wrap(err, goerrors.CategoryInternal, "failed to remove secondary email")
		}

		status.SecondaryEmail = nil
		return nil
	})
}

// MarkVerifiedTx flips the verified flag inside a caller owned transaction.
// Password reset and password set use it as a side effect.
func (m *StatusMachine) MarkVerifiedTx(ctx context.Context, tx bun.IDB, userID uuid.UUID) error {
	if _, err := m.repo.Statuses().RawTx(ctx, tx, SetStatusVerifiedSQL, userID.String()); err != nil {
		return goerrors.Wrap(err, goerrors.CategoryInternal, "failed to mark account verified")
	}
	return nil
}

func (m *StatusMachine) statusFor(ctx context.Context, tx bun.IDB, user *User) (*AccountStatus, error) {
	if user == nil || user.ID == uuid.Nil {
		return nil, ErrWrongUsage.Clone().WithMetadata(map[string]any{
			"reason": "status transition requires a persisted user",
		})
	}

	status, err := m.repo.Statuses().GetByUserIDTx(ctx, tx, user.ID)
	if err != nil {
		if repository.IsRecordNotFound(err) {
			return nil, m.wrongUsage(user, "user has no account status row")
		}
		return nil, err
	}

	user.Status = status
	return status, nil
}

func (m *StatusMachine) wrongUsage(user *User, reason string) error {
	md := map[string]any{"reason": reason}
	if user != nil {
		md["user_id"] = user.ID.String()
	}
	return ErrWrongUsage.Clone().WithMetadata(md)
}
