package account_test

import (
	"context"
	"database/sql"

	account "github.com/goliatone/go-account"
	"github.com/goliatone/go-repository-bun"
	"github.com/google/uuid"
	"github.com/stretchr/testify/mock"
	"github.com/uptrace/bun"
)

type testLogger struct{}

func (testLogger) Debug(string, ...any) {}
func (testLogger) Info(string, ...any)  {}
func (testLogger) Warn(string, ...any)  {}
func (testLogger) Error(string, ...any) {}

// MockRepositoryManager implements account.RepositoryManager
type MockRepositoryManager struct {
	mock.Mock
}

func (m *MockRepositoryManager) Validate() error {
	args := m.Called()
	return args.Error(0)
}

func (m *MockRepositoryManager) MustValidate() {
	m.Called()
}

// RunInTx invokes the closure with a zero transaction and surfaces its error,
// unless the expectation was configured with a non-nil return to short
// circuit the transaction itself.
func (m *MockRepositoryManager) RunInTx(ctx context.Context, opts *sql.TxOptions, f func(ctx context.Context, tx bun.Tx) error) error {
	args := m.Called(ctx, opts, f)
	if err := args.Error(0); err != nil {
		return err
	}
	var tx bun.Tx
	return f(ctx, tx)
}

func (m *MockRepositoryManager) Users() account.Users {
	args := m.Called()
	return args.Get(0).(account.Users)
}

func (m *MockRepositoryManager) Statuses() account.Statuses {
	args := m.Called()
	return args.Get(0).(account.Statuses)
}

func (m *MockRepositoryManager) RefreshTokens() account.RefreshTokens {
	args := m.Called()
	return args.Get(0).(account.RefreshTokens)
}

// MockUsers implements account.Users. The embedded repository interface
// satisfies the methods this package never exercises.
type MockUsers struct {
	mock.Mock
	repository.Repository[*account.User]
}

func (m *MockUsers) GetByID(ctx context.Context, id string, criteria ...repository.SelectCriteria) (*account.User, error) {
	args := m.Called(ctx, id, criteria)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*account.User), args.Error(1)
}

func (m *MockUsers) Register(ctx context.Context, user *account.User) (*account.User, error) {
	args := m.Called(ctx, user)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*account.User), args.Error(1)
}

func (m *MockUsers) RegisterTx(ctx context.Context, tx bun.IDB, user *account.User) (*account.User, error) {
	args := m.Called(ctx, tx, user)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*account.User), args.Error(1)
}

func (m *MockUsers) Create(ctx context.Context, record *account.User, criteria ...repository.InsertCriteria) (*account.User, error) {
	args := m.Called(ctx, record, criteria)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*account.User), args.Error(1)
}

func (m *MockUsers) CreateTx(ctx context.Context, tx bun.IDB, record *account.User, criteria ...repository.InsertCriteria) (*account.User, error) {
	args := m.Called(ctx, tx, record, criteria)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*account.User), args.Error(1)
}

func (m *MockUsers) GetByLoginField(ctx context.Context, field, value string) (*account.User, error) {
	args := m.Called(ctx, field, value)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*account.User), args.Error(1)
}

func (m *MockUsers) GetByLoginFieldTx(ctx context.Context, tx bun.IDB, field, value string) (*account.User, error) {
	args := m.Called(ctx, tx, field, value)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*account.User), args.Error(1)
}

func (m *MockUsers) GetByAnyEmail(ctx context.Context, email string) (*account.User, error) {
	args := m.Called(ctx, email)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*account.User), args.Error(1)
}

func (m *MockUsers) GetByAnyEmailTx(ctx context.Context, tx bun.IDB, email string) (*account.User, error) {
	args := m.Called(ctx, tx, email)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*account.User), args.Error(1)
}

func (m *MockUsers) EmailInUse(ctx context.Context, email string) (bool, error) {
	args := m.Called(ctx, email)
	return args.Bool(0), args.Error(1)
}

func (m *MockUsers) EmailInUseTx(ctx context.Context, tx bun.IDB, email string) (bool, error) {
	args := m.Called(ctx, tx, email)
	return args.Bool(0), args.Error(1)
}

func (m *MockUsers) SetPassword(ctx context.Context, id uuid.UUID, passwordHash string) error {
	args := m.Called(ctx, id, passwordHash)
	return args.Error(0)
}

func (m *MockUsers) SetPasswordTx(ctx context.Context, tx bun.IDB, id uuid.UUID, passwordHash string) error {
	args := m.Called(ctx, tx, id, passwordHash)
	return args.Error(0)
}

func (m *MockUsers) SoftDisableTx(ctx context.Context, tx bun.IDB, id uuid.UUID) error {
	args := m.Called(ctx, tx, id)
	return args.Error(0)
}

func (m *MockUsers) HardDeleteTx(ctx context.Context, tx bun.IDB, id uuid.UUID) error {
	args := m.Called(ctx, tx, id)
	return args.Error(0)
}

func (m *MockUsers) TrackSuccessfulLogin(ctx context.Context, user *account.User) error {
	args := m.Called(ctx, user)
	return args.Error(0)
}

func (m *MockUsers) TrackSuccessfulLoginTx(ctx context.Context, tx bun.IDB, user *account.User) error {
	args := m.Called(ctx, tx, user)
	return args.Error(0)
}

func (m *MockUsers) RawTx(ctx context.Context, tx bun.IDB, sql string, args ...any) ([]*account.User, error) {
	called := m.Called(ctx, tx, sql, args)
	if called.Get(0) == nil {
		return nil, called.Error(1)
	}
	return called.Get(0).([]*account.User), called.Error(1)
}

// MockStatuses implements account.Statuses
type MockStatuses struct {
	mock.Mock
	repository.Repository[*account.AccountStatus]
}

func (m *MockStatuses) GetByUserID(ctx context.Context, userID uuid.UUID) (*account.AccountStatus, error) {
	args := m.Called(ctx, userID)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*account.AccountStatus), args.Error(1)
}

func (m *MockStatuses) GetByUserIDTx(ctx context.Context, tx bun.IDB, userID uuid.UUID) (*account.AccountStatus, error) {
	args := m.Called(ctx, tx, userID)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*account.AccountStatus), args.Error(1)
}

func (m *MockStatuses) CreateTx(ctx context.Context, tx bun.IDB, record *account.AccountStatus, criteria ...repository.InsertCriteria) (*account.AccountStatus, error) {
	args := m.Called(ctx, tx, record, criteria)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*account.AccountStatus), args.Error(1)
}

func (m *MockStatuses) RawTx(ctx context.Context, tx bun.IDB, sql string, args ...any) ([]*account.AccountStatus, error) {
	called := m.Called(ctx, tx, sql, args)
	if called.Get(0) == nil {
		return nil, called.Error(1)
	}
	return called.Get(0).([]*account.AccountStatus), called.Error(1)
}

// MockRefreshTokens implements account.RefreshTokens
type MockRefreshTokens struct {
	mock.Mock
	repository.Repository[*account.RefreshToken]
}

func (m *MockRefreshTokens) Create(ctx context.Context, record *account.RefreshToken, criteria ...repository.InsertCriteria) (*account.RefreshToken, error) {
	args := m.Called(ctx, record, criteria)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*account.RefreshToken), args.Error(1)
}

func (m *MockRefreshTokens) Update(ctx context.Context, record *account.RefreshToken, criteria ...repository.UpdateCriteria) (*account.RefreshToken, error) {
	args := m.Called(ctx, record, criteria)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*account.RefreshToken), args.Error(1)
}

func (m *MockRefreshTokens) GetByToken(ctx context.Context, token string) (*account.RefreshToken, error) {
	args := m.Called(ctx, token)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*account.RefreshToken), args.Error(1)
}

func (m *MockRefreshTokens) GetByTokenTx(ctx context.Context, tx bun.IDB, token string) (*account.RefreshToken, error) {
	args := m.Called(ctx, tx, token)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*account.RefreshToken), args.Error(1)
}

func (m *MockRefreshTokens) RevokeAllForUser(ctx context.Context, userID uuid.UUID) error {
	args := m.Called(ctx, userID)
	return args.Error(0)
}

func (m *MockRefreshTokens) RevokeAllForUserTx(ctx context.Context, tx bun.IDB, userID uuid.UUID) error {
	args := m.Called(ctx, tx, userID)
	return args.Error(0)
}

// MockMailer implements account.Mailer
type MockMailer struct {
	mock.Mock
}

func (m *MockMailer) SendActivation(ctx context.Context, user *account.User, token string) error {
	args := m.Called(ctx, user, token)
	return args.Error(0)
}

func (m *MockMailer) SendPasswordReset(ctx context.Context, user *account.User, email, token string) error {
	args := m.Called(ctx, user, email, token)
	return args.Error(0)
}

func (m *MockMailer) SendPasswordSet(ctx context.Context, user *account.User, token string) error {
	args := m.Called(ctx, user, token)
	return args.Error(0)
}

func (m *MockMailer) SendSecondaryEmailActivation(ctx context.Context, user *account.User, email, token string) error {
	args := m.Called(ctx, user, email, token)
	return args.Error(0)
}

// MockActivitySink implements account.ActivitySink
type MockActivitySink struct {
	mock.Mock
}

func (m *MockActivitySink) Record(ctx context.Context, event account.ActivityEvent) error {
	args := m.Called(ctx, event)
	return args.Error(0)
}

// MockRecaptcha implements account.RecaptchaVerifier
type MockRecaptcha struct {
	mock.Mock
}

func (m *MockRecaptcha) Verify(ctx context.Context, token string) (*account.RecaptchaResult, error) {
	args := m.Called(ctx, token)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*account.RecaptchaResult), args.Error(1)
}
