package account_test

import (
	"context"
	"testing"

	account "github.com/goliatone/go-account"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestRequireAuthenticated(t *testing.T) {
	user, failed := account.RequireAuthenticated(context.Background())
	assert.Nil(t, user)
	require.NotNil(t, failed)
	assert.Equal(t, []account.FieldError{account.MsgUnauthenticated}, failed.Errors[account.NonFieldErrors])

	want := newTestUser()
	user, failed = account.RequireAuthenticated(account.WithContext(context.Background(), want))
	assert.Nil(t, failed)
	assert.Same(t, want, user)
}

func TestRequireVerified(t *testing.T) {
	user := newTestUser()
	require.NotNil(t, account.RequireVerified(user)) // no status row at all

	user.Status = &account.AccountStatus{}
	failed := account.RequireVerified(user)
	require.NotNil(t, failed)
	assert.Equal(t, []account.FieldError{account.MsgNotVerified}, failed.Errors[account.NonFieldErrors])

	user.Status.Verified = true
	assert.Nil(t, account.RequireVerified(user))
}

func TestRequireNotBlocked(t *testing.T) {
	user := newTestUser()
	assert.Nil(t, account.RequireNotBlocked(user))

	user.Status = &account.AccountStatus{Blocked: true}
	failed := account.RequireNotBlocked(user)
	require.NotNil(t, failed)
	assert.Equal(t, []account.FieldError{account.MsgBlocked}, failed.Errors[account.NonFieldErrors])
}

func TestRequireSecondaryEmail(t *testing.T) {
	user := newTestUser()
	require.NotNil(t, account.RequireSecondaryEmail(user))

	empty := ""
	user.Status = &account.AccountStatus{SecondaryEmail: &empty}
	require.NotNil(t, account.RequireSecondaryEmail(user))

	secondary := "backup@example.com"
	user.Status.SecondaryEmail = &secondary
	assert.Nil(t, account.RequireSecondaryEmail(user))
}

func TestRequireSuperuser(t *testing.T) {
	user := newTestUser()
	failed := account.RequireSuperuser(user)
	require.NotNil(t, failed)
	assert.Equal(t, []account.FieldError{account.MsgUnauthenticated}, failed.Errors[account.NonFieldErrors])

	user.IsSuperuser = true
	assert.Nil(t, account.RequireSuperuser(user))
}

func TestRequirePasswordConfirmation(t *testing.T) {
	user := newCredentialedUser(t, nil)

	assert.Nil(t, account.RequirePasswordConfirmation(user, testPassword))

	failed := account.RequirePasswordConfirmation(user, "wrong-password")
	require.NotNil(t, failed)
	assert.Equal(t, []account.FieldError{account.MsgInvalidPassword}, failed.Errors["password"])
}
