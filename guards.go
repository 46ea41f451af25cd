package account

import (
	"context"

	"github.com/goliatone/go-repository-bun"
)

// Guards are the explicit precondition checks mutation handlers run before
// touching state. Each returns nil when the check passes, or a failed Output
// ready to hand back to the caller. Keeping them as plain functions lets
// handlers compose exactly the checks they need, in the order the account
// flow requires.

// RequireAuthenticated resolves the acting user from the request context.
func RequireAuthenticated(ctx context.Context) (*User, *Output) {
	user, ok := FromContext(ctx)
	if !ok || user == nil {
		out := Failed(MsgUnauthenticated)
		return nil, &out
	}
	return user, nil
}

// RequireVerified fails for users that have not verified their account.
func RequireVerified(user *User) *Output {
	if user.Status == nil || !user.Status.Verified {
		out := Failed(MsgNotVerified)
		return &out
	}
	return nil
}

// RequireNotBlocked fails for blocked users.
func RequireNotBlocked(user *User) *Output {
	if user.Status != nil && user.Status.Blocked {
		out := Failed(MsgBlocked)
		return &out
	}
	return nil
}

// RequireSecondaryEmail fails when the account has no secondary email.
func RequireSecondaryEmail(user *User) *Output {
	if user.Status == nil || !user.Status.HasSecondaryEmail() {
		out := Failed(MsgSecondaryEmail)
		return &out
	}
	return nil
}

// RequireSuperuser fails for non staff users.
func RequireSuperuser(user *User) *Output {
	if !user.IsSuperuser {
		out := Failed(MsgUnauthenticated)
		return &out
	}
	return nil
}

// RequirePasswordConfirmation re-checks the acting user's password. Mutations
// that destroy or change credentials demand it.
func RequirePasswordConfirmation(user *User, password string) *Output {
	if err := ComparePasswordAndHash(password, user.PasswordHash); err != nil {
		out := FailedField("password", MsgInvalidPassword)
		return &out
	}
	return nil
}

// ensureStatus makes sure user.Status is populated before guards run on it.
// Context users set by lightweight middleware may carry only identity fields.
func ensureStatus(ctx context.Context, repo RepositoryManager, user *User) error {
	if user.Status != nil {
		return nil
	}

	status, err := repo.Statuses().GetByUserID(ctx, user.ID)
	if err != nil {
		if repository.IsRecordNotFound(err) {
			return ErrWrongUsage.Clone().WithMetadata(map[string]any{
				"reason":  "user has no account status row",
				"user_id": user.ID.String(),
			})
		}
		return err
	}

	user.Status = status
	return nil
}
