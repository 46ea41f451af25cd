package account_test

import (
	"context"
	"errors"
	"testing"

	account "github.com/goliatone/go-account"
	"github.com/goliatone/go-repository-bun"
	"github.com/goliatone/hashid/pkg/hashid"
	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"
)

type registerFixture struct {
	repo     *MockRepositoryManager
	users    *MockUsers
	statuses *MockStatuses
	refresh  *MockRefreshTokens
	mailer   *MockMailer
	cfg      *account.SimpleConfig
	handler  *account.RegisterHandler
}

func newRegisterFixture(cfg *account.SimpleConfig) *registerFixture {
	f := &registerFixture{
		repo:     &MockRepositoryManager{},
		users:    &MockUsers{},
		statuses: &MockStatuses{},
		refresh:  &MockRefreshTokens{},
		mailer:   &MockMailer{},
		cfg:      cfg,
	}

	f.repo.On("Users").Return(f.users)
	f.repo.On("Statuses").Return(f.statuses)
	f.repo.On("RefreshTokens").Return(f.refresh)

	codec := newTestCodec()
	machine := account.NewStatusMachine(f.repo, codec, cfg)
	dispatcher := account.NewEmailDispatcher(f.mailer, cfg).WithLogger(testLogger{})

	f.handler = account.NewRegisterHandler(f.repo, machine, codec, newTestTokenService(), dispatcher, cfg).
		WithLogger(testLogger{})

	return f
}

func validRegisterMessage() account.RegisterMessage {
	return account.RegisterMessage{
		Email:     "peyton@example.com",
		Username:  "peyton",
		Password1: testPassword,
		Password2: testPassword,
	}
}

func TestRegisterSuccessSendsActivationEmail(t *testing.T) {
	f := newRegisterFixture(account.NewDefaultConfig(testSigningKey))
	sink := &MockActivitySink{}
	f.handler.WithActivitySink(sink)

	expectTx(f.repo)
	f.users.On("EmailInUseTx", mock.Anything, mock.Anything, "peyton@example.com").
		Return(false, nil).Once()
	f.users.On("GetByLoginFieldTx", mock.Anything, mock.Anything, account.LoginFieldUsername, "peyton").
		Return(nil, repository.NewRecordNotFound()).Once()
	f.users.On("RegisterTx", mock.Anything, mock.Anything, mock.MatchedBy(func(u *account.User) bool {
		return u.Email == "peyton@example.com" && u.PasswordHash != ""
	})).Return(&account.User{ID: uuid.New(), Email: "peyton@example.com", Username: "peyton"}, nil).Once()
	f.statuses.On("CreateTx", mock.Anything, mock.Anything, mock.Anything, mock.Anything).
		Return(&account.AccountStatus{}, nil).Once()
	f.mailer.On("SendActivation", mock.Anything, mock.Anything, mock.AnythingOfType("string")).
		Return(nil).Once()
	sink.On("Record", mock.Anything, mock.MatchedBy(func(evt account.ActivityEvent) bool {
		return evt.EventType == account.ActivityEventUserRegistered
	})).Return(nil).Once()

	result, err := f.handler.Execute(context.Background(), validRegisterMessage())
	require.NoError(t, err)

	assert.True(t, result.Success)
	assert.Empty(t, result.Token)
	assert.Empty(t, result.RefreshToken)

	f.users.AssertExpectations(t)
	f.statuses.AssertExpectations(t)
	f.mailer.AssertExpectations(t)
	sink.AssertExpectations(t)
}

func TestRegisterHashidDerivesDeterministicID(t *testing.T) {
	f := newRegisterFixture(account.NewDefaultConfig(testSigningKey))

	wantID, err := hashid.NewUUID("peyton@example.com")
	require.NoError(t, err)

	expectTx(f.repo)
	f.users.On("EmailInUseTx", mock.Anything, mock.Anything, "peyton@example.com").
		Return(false, nil).Once()
	f.users.On("GetByLoginFieldTx", mock.Anything, mock.Anything, account.LoginFieldUsername, "peyton").
		Return(nil, repository.NewRecordNotFound()).Once()
	f.users.On("RegisterTx", mock.Anything, mock.Anything, mock.MatchedBy(func(u *account.User) bool {
		return u.ID == wantID
	})).Return(&account.User{ID: wantID, Email: "peyton@example.com", Username: "peyton"}, nil).Once()
	f.statuses.On("CreateTx", mock.Anything, mock.Anything, mock.Anything, mock.Anything).
		Return(&account.AccountStatus{}, nil).Once()
	f.mailer.On("SendActivation", mock.Anything, mock.Anything, mock.AnythingOfType("string")).
		Return(nil).Once()

	msg := validRegisterMessage()
	msg.UseHashid = true

	result, err := f.handler.Execute(context.Background(), msg)
	require.NoError(t, err)
	assert.True(t, result.Success)
	f.users.AssertExpectations(t)
}

func TestRegisterEmailInUse(t *testing.T) {
	f := newRegisterFixture(account.NewDefaultConfig(testSigningKey))

	expectTx(f.repo)
	f.users.On("EmailInUseTx", mock.Anything, mock.Anything, "peyton@example.com").
		Return(true, nil).Once()

	result, err := f.handler.Execute(context.Background(), validRegisterMessage())
	require.NoError(t, err)

	assert.False(t, result.Success)
	assert.Equal(t, []account.FieldError{account.MsgEmailInUse}, result.Errors["email"])
	f.users.AssertNotCalled(t, "RegisterTx", mock.Anything, mock.Anything, mock.Anything)
}

func TestRegisterUsernameTaken(t *testing.T) {
	f := newRegisterFixture(account.NewDefaultConfig(testSigningKey))

	expectTx(f.repo)
	f.users.On("EmailInUseTx", mock.Anything, mock.Anything, "peyton@example.com").
		Return(false, nil).Once()
	f.users.On("GetByLoginFieldTx", mock.Anything, mock.Anything, account.LoginFieldUsername, "peyton").
		Return(&account.User{ID: uuid.New(), Username: "peyton"}, nil).Once()

	result, err := f.handler.Execute(context.Background(), validRegisterMessage())
	require.NoError(t, err)

	assert.False(t, result.Success)
	assert.Equal(t, []account.FieldError{account.MsgUsernameInUse}, result.Errors["username"])
}

// a synchronous email failure rolls the registration back
func TestRegisterEmailDeliveryFailureFailsRegistration(t *testing.T) {
	f := newRegisterFixture(account.NewDefaultConfig(testSigningKey))

	expectTx(f.repo)
	f.users.On("EmailInUseTx", mock.Anything, mock.Anything, "peyton@example.com").
		Return(false, nil).Once()
	f.users.On("GetByLoginFieldTx", mock.Anything, mock.Anything, account.LoginFieldUsername, "peyton").
		Return(nil, repository.NewRecordNotFound()).Once()
	f.users.On("RegisterTx", mock.Anything, mock.Anything, mock.Anything).
		Return(&account.User{ID: uuid.New(), Email: "peyton@example.com"}, nil).Once()
	f.statuses.On("CreateTx", mock.Anything, mock.Anything, mock.Anything, mock.Anything).
		Return(&account.AccountStatus{}, nil).Once()
	f.mailer.On("SendActivation", mock.Anything, mock.Anything, mock.Anything).
		Return(errors.New("smtp connection refused")).Once()

	result, err := f.handler.Execute(context.Background(), validRegisterMessage())
	require.NoError(t, err)

	assert.False(t, result.Success)
	assert.Equal(t, []account.FieldError{account.MsgEmailFail}, result.Errors[account.NonFieldErrors])
}

func TestRegisterValidation(t *testing.T) {
	f := newRegisterFixture(account.NewDefaultConfig(testSigningKey))

	msg := validRegisterMessage()
	msg.Password2 = "does-not-match"

	result, err := f.handler.Execute(context.Background(), msg)
	require.NoError(t, err)

	assert.False(t, result.Success)
	assert.NotEmpty(t, result.Errors["password2"])

	msg = validRegisterMessage()
	msg.Email = "not-an-email"

	result, err = f.handler.Execute(context.Background(), msg)
	require.NoError(t, err)
	assert.False(t, result.Success)
	assert.NotEmpty(t, result.Errors["email"])
}

func TestRegisterPasswordless(t *testing.T) {
	cfg := account.NewDefaultConfig(testSigningKey)
	cfg.AllowPasswordlessRegistration = true
	cfg.SendPasswordSetEmail = true
	f := newRegisterFixture(cfg)

	expectTx(f.repo)
	f.users.On("EmailInUseTx", mock.Anything, mock.Anything, "peyton@example.com").
		Return(false, nil).Once()
	f.users.On("RegisterTx", mock.Anything, mock.Anything, mock.MatchedBy(func(u *account.User) bool {
		return u.PasswordHash == ""
	})).Return(&account.User{ID: uuid.New(), Email: "peyton@example.com"}, nil).Once()
	f.statuses.On("CreateTx", mock.Anything, mock.Anything, mock.Anything, mock.Anything).
		Return(&account.AccountStatus{}, nil).Once()
	f.mailer.On("SendActivation", mock.Anything, mock.Anything, mock.Anything).Return(nil).Once()
	f.mailer.On("SendPasswordSet", mock.Anything, mock.Anything, mock.Anything).Return(nil).Once()

	result, err := f.handler.Execute(context.Background(), account.RegisterMessage{
		Email: "peyton@example.com",
	})
	require.NoError(t, err)

	assert.True(t, result.Success)
	f.mailer.AssertExpectations(t)
}

func TestRegisterLogsInWhenUnverifiedLoginAllowed(t *testing.T) {
	cfg := account.NewDefaultConfig(testSigningKey)
	cfg.AllowUnverifiedLogin = true
	f := newRegisterFixture(cfg)

	expectTx(f.repo)
	f.users.On("EmailInUseTx", mock.Anything, mock.Anything, "peyton@example.com").
		Return(false, nil).Once()
	f.users.On("GetByLoginFieldTx", mock.Anything, mock.Anything, account.LoginFieldUsername, "peyton").
		Return(nil, repository.NewRecordNotFound()).Once()
	f.users.On("RegisterTx", mock.Anything, mock.Anything, mock.Anything).
		Return(&account.User{ID: uuid.New(), Email: "peyton@example.com", Username: "peyton"}, nil).Once()
	f.statuses.On("CreateTx", mock.Anything, mock.Anything, mock.Anything, mock.Anything).
		Return(&account.AccountStatus{}, nil).Once()
	f.mailer.On("SendActivation", mock.Anything, mock.Anything, mock.Anything).Return(nil).Once()
	f.refresh.On("Create", mock.Anything, mock.Anything, mock.Anything).
		Return(&account.RefreshToken{}, nil).Once()

	result, err := f.handler.Execute(context.Background(), validRegisterMessage())
	require.NoError(t, err)

	assert.True(t, result.Success)
	assert.NotEmpty(t, result.Token)
	assert.NotEmpty(t, result.RefreshToken)
	f.refresh.AssertExpectations(t)
}
