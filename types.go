package account

import (
	"context"
	"fmt"
	"time"
)

type Logger interface {
	Debug(format string, args ...any)
	Info(format string, args ...any)
	Warn(format string, args ...any)
	Error(format string, args ...any)
}

// Identity holds the attributes of an identity used for token issuance
type Identity interface {
	ID() string
	Username() string
	Email() string
}

// Config holds account options
type Config interface {
	GetSigningKey() string
	GetIssuer() string
	GetAudience() []string
	GetTokenExpiration() int
	GetRefreshTokenExpiration() int
	GetLoginAllowedFields() []string
	GetAllowUnverifiedLogin() bool
	GetAllowPasswordlessRegistration() bool
	GetSendActivationEmail() bool
	GetSendPasswordSetEmail() bool
	GetAllowDeleteAccount() bool
	GetScopedTokenMaxAge(scope TokenScope) time.Duration
	GetRequireRecaptcha() bool
	GetRecaptchaMinScore() float64
	GetAsyncEmail() bool
	GetUpdateAccountFields() []string
}

// Mailer delivers account lifecycle emails. Implementations may fail
// independently of any transaction the caller committed.
type Mailer interface {
	SendActivation(ctx context.Context, user *User, token string) error
	SendPasswordReset(ctx context.Context, user *User, email, token string) error
	SendPasswordSet(ctx context.Context, user *User, token string) error
	SendSecondaryEmailActivation(ctx context.Context, user *User, email, token string) error
}

// RecaptchaVerifier validates a recaptcha response token with the provider.
type RecaptchaVerifier interface {
	Verify(ctx context.Context, token string) (*RecaptchaResult, error)
}

// RecaptchaResult is the provider's verdict for a recaptcha response.
type RecaptchaResult struct {
	Success bool    `json:"success"`
	Score   float64 `json:"score"`
}

type defLogger struct{}

func (d defLogger) Error(format string, args ...any) {
	fmt.Printf("[ERR] ACCOUNT "+newline(format), args...)
}

func (d defLogger) Warn(format string, args ...any) {
	fmt.Printf("[WRN] ACCOUNT "+newline(format), args...)
}

func (d defLogger) Info(format string, args ...any) {
	fmt.Printf("[INF] ACCOUNT "+newline(format), args...)
}

func (d defLogger) Debug(format string, args ...any) {
	fmt.Printf("[DBG] ACCOUNT "+newline(format), args...)
}

func newline(s string) string {
	if len(s) > 0 && s[len(s)-1] != '\n' {
		s += "\n"
	}
	return s
}
