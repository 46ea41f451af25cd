package account_test

import (
	"context"
	"database/sql"
	"testing"

	account "github.com/goliatone/go-account"
	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"
)

const testSigningKey = "test-signing-key"

func newTestCodec() *account.ScopedTokenCodecImpl {
	return account.NewScopedTokenCodec([]byte(testSigningKey), "test-issuer")
}

func expectTx(repo *MockRepositoryManager) {
	repo.On("RunInTx", mock.Anything, (*sql.TxOptions)(nil), mock.Anything).Return(nil)
}

func TestStatusMachineVerify(t *testing.T) {
	repo := &MockRepositoryManager{}
	statuses := &MockStatuses{}
	sink := &MockActivitySink{}
	codec := newTestCodec()
	cfg := account.NewDefaultConfig(testSigningKey)

	user := newTestUser()
	token, err := codec.Issue(account.NewIdentityFromUser(user), account.ScopeActivation)
	require.NoError(t, err)

	repo.On("Statuses").Return(statuses)
	expectTx(repo)

	statuses.On("GetByUserIDTx", mock.Anything, mock.Anything, user.ID).
		Return(&account.AccountStatus{UserID: user.ID}, nil).Once()
	statuses.On("RawTx", mock.Anything, mock.Anything, account.SetStatusVerifiedSQL, mock.Anything).
		Return([]*account.AccountStatus{{}}, nil).Once()

	sink.On("Record", mock.Anything, mock.MatchedBy(func(evt account.ActivityEvent) bool {
		return evt.EventType == account.ActivityEventUserVerified &&
			evt.UserID == user.ID.String()
	})).Return(nil).Once()

	machine := account.NewStatusMachine(repo, codec, cfg).
		WithActivitySink(sink).
		WithLogger(testLogger{})

	require.NoError(t, machine.Verify(context.Background(), token))

	repo.AssertExpectations(t)
	statuses.AssertExpectations(t)
	sink.AssertExpectations(t)
}

func TestStatusMachineVerifyAlreadyVerified(t *testing.T) {
	repo := &MockRepositoryManager{}
	statuses := &MockStatuses{}
	codec := newTestCodec()
	cfg := account.NewDefaultConfig(testSigningKey)

	user := newTestUser()
	token, err := codec.Issue(account.NewIdentityFromUser(user), account.ScopeActivation)
	require.NoError(t, err)

	repo.On("Statuses").Return(statuses)
	expectTx(repo)

	statuses.On("GetByUserIDTx", mock.Anything, mock.Anything, user.ID).
		Return(&account.AccountStatus{UserID: user.ID, Verified: true}, nil).Once()

	machine := account.NewStatusMachine(repo, codec, cfg)

	err = machine.Verify(context.Background(), token)
	require.ErrorIs(t, err, account.ErrUserAlreadyVerified)
}

func TestStatusMachineVerifyRejectsWrongScope(t *testing.T) {
	repo := &MockRepositoryManager{}
	codec := newTestCodec()
	cfg := account.NewDefaultConfig(testSigningKey)

	token, err := codec.Issue(account.NewIdentityFromUser(newTestUser()), account.ScopePasswordReset)
	require.NoError(t, err)

	machine := account.NewStatusMachine(repo, codec, cfg)

	err = machine.Verify(context.Background(), token)
	assert.True(t, account.IsTokenInvalidError(err))
	repo.AssertNotCalled(t, "RunInTx", mock.Anything, mock.Anything, mock.Anything)
}

func TestStatusMachineArchiveRevokesTokens(t *testing.T) {
	repo := &MockRepositoryManager{}
	statuses := &MockStatuses{}
	refresh := &MockRefreshTokens{}
	sink := &MockActivitySink{}
	cfg := account.NewDefaultConfig(testSigningKey)

	user := newTestUser()

	repo.On("Statuses").Return(statuses)
	repo.On("RefreshTokens").Return(refresh)
	expectTx(repo)

	statuses.On("GetByUserIDTx", mock.Anything, mock.Anything, user.ID).
		Return(&account.AccountStatus{UserID: user.ID, Verified: true}, nil).Once()
	statuses.On("RawTx", mock.Anything, mock.Anything, account.SetStatusArchivedSQL, mock.Anything).
		Return([]*account.AccountStatus{{}}, nil).Once()
	refresh.On("RevokeAllForUserTx", mock.Anything, mock.Anything, user.ID).
		Return(nil).Once()

	sink.On("Record", mock.Anything, mock.MatchedBy(func(evt account.ActivityEvent) bool {
		return evt.EventType == account.ActivityEventUserArchived
	})).Return(nil).Once()

	machine := account.NewStatusMachine(repo, newTestCodec(), cfg).WithActivitySink(sink)

	require.NoError(t, machine.Archive(context.Background(), user))

	statuses.AssertExpectations(t)
	refresh.AssertExpectations(t)
	sink.AssertExpectations(t)
}

func TestStatusMachineArchiveTwiceIsWrongUsage(t *testing.T) {
	repo := &MockRepositoryManager{}
	statuses := &MockStatuses{}
	cfg := account.NewDefaultConfig(testSigningKey)

	user := newTestUser()

	repo.On("Statuses").Return(statuses)
	expectTx(repo)

	statuses.On("GetByUserIDTx", mock.Anything, mock.Anything, user.ID).
		Return(&account.AccountStatus{UserID: user.ID, Archived: true}, nil).Once()

	machine := account.NewStatusMachine(repo, newTestCodec(), cfg)

	err := machine.Archive(context.Background(), user)
	assert.True(t, account.IsWrongUsage(err))
}

func TestStatusMachineBlockToggle(t *testing.T) {
	repo := &MockRepositoryManager{}
	statuses := &MockStatuses{}
	sink := &MockActivitySink{}
	cfg := account.NewDefaultConfig(testSigningKey)

	user := newTestUser()
	actor := account.ActorRef{ID: uuid.NewString(), Type: "superuser"}

	repo.On("Statuses").Return(statuses)
	expectTx(repo)

	statuses.On("GetByUserIDTx", mock.Anything, mock.Anything, user.ID).
		Return(&account.AccountStatus{UserID: user.ID}, nil).Once()
	statuses.On("RawTx", mock.Anything, mock.Anything, account.SetStatusBlockedSQL, mock.Anything).
		Return([]*account.AccountStatus{{}}, nil).Once()

	sink.On("Record", mock.Anything, mock.MatchedBy(func(evt account.ActivityEvent) bool {
		return evt.EventType == account.ActivityEventUserBlocked && evt.Actor == actor
	})).Return(nil).Once()

	machine := account.NewStatusMachine(repo, newTestCodec(), cfg).WithActivitySink(sink)

	require.NoError(t, machine.Block(context.Background(), actor, user))
	sink.AssertExpectations(t)

	// blocking a blocked account is a programming error, not a transition
	statuses.On("GetByUserIDTx", mock.Anything, mock.Anything, user.ID).
		Return(&account.AccountStatus{UserID: user.ID, Blocked: true}, nil).Once()

	err := machine.Block(context.Background(), actor, user)
	assert.True(t, account.IsWrongUsage(err))
}

func TestStatusMachineSwapEmails(t *testing.T) {
	repo := &MockRepositoryManager{}
	statuses := &MockStatuses{}
	users := &MockUsers{}
	sink := &MockActivitySink{}
	cfg := account.NewDefaultConfig(testSigningKey)

	user := newTestUser()
	secondary := "backup@example.com"
	primary := user.Email

	repo.On("Statuses").Return(statuses)
	repo.On("Users").Return(users)
	expectTx(repo)

	statuses.On("GetByUserIDTx", mock.Anything, mock.Anything, user.ID).
		Return(&account.AccountStatus{UserID: user.ID, Verified: true, SecondaryEmail: &secondary}, nil).Once()
	users.On("RawTx", mock.Anything, mock.Anything, account.SetPrimaryEmailSQL, []any{secondary, user.ID.String()}).
		Return([]*account.User{{}}, nil).Once()
	statuses.On("RawTx", mock.Anything, mock.Anything, account.SetSecondaryEmailSQL, []any{primary, user.ID.String()}).
		Return([]*account.AccountStatus{{}}, nil).Once()

	sink.On("Record", mock.Anything, mock.MatchedBy(func(evt account.ActivityEvent) bool {
		return evt.EventType == account.ActivityEventEmailsSwapped
	})).Return(nil).Once()

	machine := account.NewStatusMachine(repo, newTestCodec(), cfg).WithActivitySink(sink)

	require.NoError(t, machine.SwapEmails(context.Background(), user))
	assert.Equal(t, secondary, user.Email)
	require.NotNil(t, user.Status.SecondaryEmail)
	assert.Equal(t, primary, *user.Status.SecondaryEmail)

	users.AssertExpectations(t)
	statuses.AssertExpectations(t)
}

func TestStatusMachineSwapEmailsRequiresSecondary(t *testing.T) {
	repo := &MockRepositoryManager{}
	statuses := &MockStatuses{}
	cfg := account.NewDefaultConfig(testSigningKey)

	user := newTestUser()

	repo.On("Statuses").Return(statuses)
	expectTx(repo)

	statuses.On("GetByUserIDTx", mock.Anything, mock.Anything, user.ID).
		Return(&account.AccountStatus{UserID: user.ID, Verified: true}, nil).Once()

	machine := account.NewStatusMachine(repo, newTestCodec(), cfg)

	err := machine.SwapEmails(context.Background(), user)
	assert.True(t, account.IsWrongUsage(err))
}

func TestStatusMachineRemoveSecondaryEmail(t *testing.T) {
	repo := &MockRepositoryManager{}
	statuses := &MockStatuses{}
	cfg := account.NewDefaultConfig(testSigningKey)

	user := newTestUser()
	secondary := "backup@example.com"

	repo.On("Statuses").Return(statuses)
	expectTx(repo)

	statuses.On("GetByUserIDTx", mock.Anything, mock.Anything, user.ID).
		Return(&account.AccountStatus{UserID: user.ID, Verified: true, SecondaryEmail: &secondary}, nil).Once()
	statuses.On("RawTx", mock.Anything, mock.Anything, account.SetSecondaryEmailSQL, []any{nil, user.ID.String()}).
		Return([]*account.AccountStatus{{}}, nil).Once()

	machine := account.NewStatusMachine(repo, newTestCodec(), cfg)

	require.NoError(t, machine.RemoveSecondaryEmail(context.Background(), user))
	assert.Nil(t, user.Status.SecondaryEmail)
}

func TestStatusMachineVerifySecondaryEmailChecksEmailStillFree(t *testing.T) {
	repo := &MockRepositoryManager{}
	users := &MockUsers{}
	codec := newTestCodec()
	cfg := account.NewDefaultConfig(testSigningKey)

	user := newTestUser()
	token, err := codec.Issue(
		account.NewIdentityFromUser(user),
		account.ScopeSecondaryEmail,
		account.WithClaimEmail("backup@example.com"),
	)
	require.NoError(t, err)

	repo.On("Users").Return(users)
	expectTx(repo)

	// someone else claimed the address while the token was in flight
	users.On("EmailInUseTx", mock.Anything, mock.Anything, "backup@example.com").
		Return(true, nil).Once()

	machine := account.NewStatusMachine(repo, codec, cfg)

	err = machine.VerifySecondaryEmail(context.Background(), token)
	require.ErrorIs(t, err, account.ErrEmailAlreadyInUse)
}

func TestStatusMachineVerifySecondaryEmailRequiresEmailClaim(t *testing.T) {
	repo := &MockRepositoryManager{}
	codec := newTestCodec()
	cfg := account.NewDefaultConfig(testSigningKey)

	// a secondary email token without the pending address is useless
	token, err := codec.Issue(account.NewIdentityFromUser(newTestUser()), account.ScopeSecondaryEmail)
	require.NoError(t, err)

	machine := account.NewStatusMachine(repo, codec, cfg)

	err = machine.VerifySecondaryEmail(context.Background(), token)
	assert.True(t, account.IsTokenInvalidError(err))
}
