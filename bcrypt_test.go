package account_test

import (
	"testing"

	account "github.com/goliatone/go-account"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestHashPassword(t *testing.T) {
	user := newCredentialedUser(t, nil)

	assert.NotEqual(t, testPassword, user.PasswordHash)
	assert.NoError(t, account.ComparePasswordAndHash(testPassword, user.PasswordHash))
}

func TestHashPasswordRejectsEmpty(t *testing.T) {
	_, err := account.HashPassword("")
	require.Error(t, err)
}

func TestComparePasswordAndHashMismatch(t *testing.T) {
	user := newCredentialedUser(t, nil)

	err := account.ComparePasswordAndHash("wrong-password", user.PasswordHash)
	assert.ErrorIs(t, err, account.ErrInvalidCredentials)
}

func TestComparePasswordAndHashGarbageHash(t *testing.T) {
	err := account.ComparePasswordAndHash(testPassword, "not-a-bcrypt-hash")
	require.Error(t, err)
	assert.NotErrorIs(t, err, account.ErrInvalidCredentials)
}

func TestValidateStringEquals(t *testing.T) {
	rule := account.ValidateStringEquals("expected")

	assert.NoError(t, rule("expected"))
	assert.Error(t, rule("different"))
	assert.Error(t, rule(42)) // not a string at all
}
