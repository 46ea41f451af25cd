package account

import (
	validation "github.com/go-ozzo/ozzo-validation"
)

// NonFieldErrors is the key used for failures not attached to a single input.
const NonFieldErrors = "nonFieldErrors"

// FieldError is a single user-facing failure message with a machine code.
type FieldError struct {
	Message string `json:"message"`
	Code    string `json:"code"`
}

// ErrorMap keys lists of failures by input field name.
type ErrorMap map[string][]FieldError

// Output is the uniform mutation result shape. Operation specific fields are
// added by embedding Output in a result struct.
type Output struct {
	Success bool     `json:"success"`
	Errors  ErrorMap `json:"errors,omitempty"`
}

// OK returns a successful Output.
func OK() Output {
	return Output{Success: true}
}

// Failed returns an Output carrying a non-field failure.
func Failed(fe FieldError) Output {
	return FailedField(NonFieldErrors, fe)
}

// FailedField returns an Output carrying a failure keyed by field.
func FailedField(field string, fe FieldError) Output {
	return Output{
		Success: false,
		Errors:  ErrorMap{field: {fe}},
	}
}

// FailedValidation maps ozzo validation errors into a field-keyed Output.
func FailedValidation(err error) Output {
	return Output{
		Success: false,
		Errors:  ValidationErrorMap(err),
	}
}

// Canned messages for mutation outputs.
var (
	MsgInvalidCredentials = FieldError{Message: "Please, enter valid credentials.", Code: "invalid_credentials"}
	MsgNotVerified        = FieldError{Message: "Please verify your account.", Code: "not_verified"}
	MsgBlocked            = FieldError{Message: "Your account has been blocked.", Code: "blocked"}
	MsgExpiredToken       = FieldError{Message: "Token is expired.", Code: "expired_token"}
	MsgInvalidToken       = FieldError{Message: "Invalid token.", Code: "invalid_token"}
	MsgAlreadyVerified    = FieldError{Message: "Account already verified.", Code: "already_verified"}
	MsgEmailInUse         = FieldError{Message: "A user with that email already exists.", Code: "unique"}
	MsgUsernameInUse      = FieldError{Message: "A user with that username already exists.", Code: "unique"}
	MsgEmailFail          = FieldError{Message: "Failed to send email.", Code: "email_fail"}
	MsgPasswordAlreadySet = FieldError{Message: "Password already set for account.", Code: "password_already_set"}
	MsgRecaptchaFailed    = FieldError{Message: "Failed validation of recaptcha token.", Code: "recaptcha_failed"}
	MsgInvalidPassword    = FieldError{Message: "Invalid password.", Code: "invalid_password"}
	MsgUnauthenticated    = FieldError{Message: "Unauthenticated.", Code: "unauthenticated"}
	MsgSecondaryEmail     = FieldError{Message: "You need to set up a secondary email first.", Code: "secondary_email_required"}
	MsgNotVerifiedReset   = FieldError{Message: "Verify your account first. A new verification email was sent.", Code: "not_verified"}
)

// tokenFailure maps scoped token verification errors to an Output, keeping
// signature and scope failures indistinguishable.
func tokenFailure(err error) (Output, bool) {
	switch {
	case IsTokenExpiredError(err):
		return Failed(MsgExpiredToken), true
	case IsTokenInvalidError(err):
		return Failed(MsgInvalidToken), true
	default:
		return Output{}, false
	}
}

// ValidationErrorMap flattens ozzo validation errors into ErrorMap entries.
// Non-validation errors land under nonFieldErrors.
func ValidationErrorMap(err error) ErrorMap {
	if err == nil {
		return nil
	}

	out := ErrorMap{}
	verrs, ok := err.(validation.Errors)
	if !ok {
		out[NonFieldErrors] = []FieldError{{Message: err.Error(), Code: "invalid"}}
		return out
	}

	for field, ferr := range verrs {
		out[field] = append(out[field], FieldError{
			Message: ferr.Error(),
			Code:    "invalid",
		})
	}
	return out
}
