package account

import (
	goerrors "github.com/goliatone/go-errors"
)

const (
	TextCodeTokenExpired       = "TOKEN_EXPIRED"
	TextCodeTokenInvalid       = "TOKEN_INVALID"
	TextCodeAlreadyVerified    = "USER_ALREADY_VERIFIED"
	TextCodeNotVerified        = "USER_NOT_VERIFIED"
	TextCodeUserBlocked        = "USER_BLOCKED"
	TextCodeEmailInUse         = "EMAIL_ALREADY_IN_USE"
	TextCodeUsernameTaken      = "USERNAME_ALREADY_IN_USE"
	TextCodeEmailFail          = "EMAIL_DELIVERY_FAILED"
	TextCodePasswordAlreadySet = "PASSWORD_ALREADY_SET"
	TextCodeInvalidCredentials = "INVALID_CREDENTIALS"
	TextCodeRecaptchaFailed    = "RECAPTCHA_FAILED"
	TextCodeWrongUsage         = "WRONG_USAGE"
)

// ErrExpiredToken is returned when a scoped token is older than the max age
// configured for its scope.
var ErrExpiredToken = goerrors.New("token has expired", goerrors.CategoryAuth).
	WithTextCode(TextCodeTokenExpired).
	WithCode(goerrors.CodeUnauthorized)

// ErrInvalidToken covers bad signatures and scope mismatches. Both collapse
// into one kind so callers cannot tell which check failed.
var ErrInvalidToken = goerrors.New("token is invalid", goerrors.CategoryAuth).
	WithTextCode(TextCodeTokenInvalid).
	WithCode(goerrors.CodeUnauthorized)

// ErrUserAlreadyVerified guards verification idempotence.
var ErrUserAlreadyVerified = goerrors.New("user already verified", goerrors.CategoryConflict).
	WithTextCode(TextCodeAlreadyVerified).
	WithCode(goerrors.CodeConflict)

// ErrUserNotVerified is returned when an operation requires a verified account.
var ErrUserNotVerified = goerrors.New("user is not verified", goerrors.CategoryAuth).
	WithTextCode(TextCodeNotVerified).
	WithCode(goerrors.CodeUnauthorized)

// ErrUserBlocked unconditionally prevents authentication until lifted.
var ErrUserBlocked = goerrors.New("user is blocked", goerrors.CategoryAuth).
	WithTextCode(TextCodeUserBlocked).
	WithCode(goerrors.CodeUnauthorized)

// ErrEmailAlreadyInUse is returned when an email is already a primary or
// secondary email of another account.
var ErrEmailAlreadyInUse = goerrors.New("email is already in use", goerrors.CategoryConflict).
	WithTextCode(TextCodeEmailInUse).
	WithCode(goerrors.CodeConflict)

// ErrUsernameTaken is returned when a username is already claimed.
var ErrUsernameTaken = goerrors.New("username is already in use", goerrors.CategoryConflict).
	WithTextCode(TextCodeUsernameTaken).
	WithCode(goerrors.CodeConflict)

// ErrEmailDeliveryFailed marks a synchronous email send failure. Handlers map
// it to a generic output message, the underlying SMTP error stays in the logs.
var ErrEmailDeliveryFailed = goerrors.New("email delivery failed", goerrors.CategoryOperation).
	WithTextCode(TextCodeEmailFail)

// ErrPasswordAlreadySet rejects a password write that would be a no-op.
var ErrPasswordAlreadySet = goerrors.New("password already set for account", goerrors.CategoryConflict).
	WithTextCode(TextCodePasswordAlreadySet).
	WithCode(goerrors.CodeConflict)

// ErrInvalidCredentials is the undifferentiated login failure. Unknown
// identities and wrong passwords both map here.
var ErrInvalidCredentials = goerrors.New("invalid credentials", goerrors.CategoryAuth).
	WithTextCode(TextCodeInvalidCredentials).
	WithCode(goerrors.CodeUnauthorized)

// ErrRecaptchaFailed is returned on an explicit provider failure or a score
// below the configured minimum.
var ErrRecaptchaFailed = goerrors.New("recaptcha validation failed", goerrors.CategoryAuth).
	WithTextCode(TextCodeRecaptchaFailed).
	WithCode(goerrors.CodeUnauthorized)

// ErrWrongUsage flags programmer misuse (missing preconditions, bad wiring).
// It is never mapped into a mutation Output; it surfaces as a hard failure.
var ErrWrongUsage = goerrors.New("wrong usage, check your code", goerrors.CategoryInternal).
	WithTextCode(TextCodeWrongUsage).
	WithCode(goerrors.CodeInternal)

// errorTextCode extracts the text code from a rich error, or "" for plain ones.
func errorTextCode(err error) string {
	var richErr *goerrors.Error
	if goerrors.As(err, &richErr) {
		return richErr.TextCode
	}
	return ""
}

// IsWrongUsage reports whether err is a programmer misuse error that should
// surface past the resolver boundary.
func IsWrongUsage(err error) bool {
	return errorTextCode(err) == TextCodeWrongUsage
}

// IsTokenExpiredError reports whether err is an expired scoped or auth token.
func IsTokenExpiredError(err error) bool {
	return errorTextCode(err) == TextCodeTokenExpired
}

// IsTokenInvalidError reports whether err is a malformed or wrong-scope token.
func IsTokenInvalidError(err error) bool {
	return errorTextCode(err) == TextCodeTokenInvalid
}
