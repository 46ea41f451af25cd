package account

import "time"

// SimpleConfig is a struct based Config implementation with usable defaults.
type SimpleConfig struct {
	SigningKey                    string
	Issuer                        string
	Audience                      []string
	TokenExpiration               int
	RefreshTokenExpiration        int
	LoginAllowedFields            []string
	AllowUnverifiedLogin          bool
	AllowPasswordlessRegistration bool
	SendActivationEmail           bool
	SendPasswordSetEmail          bool
	AllowDeleteAccount            bool
	ScopedTokenMaxAge             map[TokenScope]time.Duration
	RequireRecaptcha              bool
	RecaptchaMinScore             float64
	AsyncEmail                    bool
	UpdateAccountFields           []string
}

var _ Config = (*SimpleConfig)(nil)

// NewDefaultConfig returns a SimpleConfig mirroring the library defaults:
// login by email or username, activation emails on, unverified login off,
// hard account deletion off, seven day scoped token windows.
func NewDefaultConfig(signingKey string) *SimpleConfig {
	return &SimpleConfig{
		SigningKey:             signingKey,
		TokenExpiration:        24,
		RefreshTokenExpiration: 24 * 7,
		LoginAllowedFields:     []string{"email", "username"},
		SendActivationEmail:    true,
		ScopedTokenMaxAge: map[TokenScope]time.Duration{
			ScopeActivation:     time.Hour * 24 * 7,
			ScopePasswordReset:  time.Hour,
			ScopePasswordSet:    time.Hour * 24 * 7,
			ScopeSecondaryEmail: time.Hour * 24 * 7,
		},
		UpdateAccountFields: []string{"first_name", "last_name"},
	}
}

func (c *SimpleConfig) GetSigningKey() string { return c.SigningKey }

func (c *SimpleConfig) GetIssuer() string { return c.Issuer }

func (c *SimpleConfig) GetAudience() []string { return c.Audience }

// GetTokenExpiration is the auth token lifetime in hours.
func (c *SimpleConfig) GetTokenExpiration() int {
	if c.TokenExpiration <= 0 {
		return 24
	}
	return c.TokenExpiration
}

// GetRefreshTokenExpiration is the refresh token lifetime in hours.
func (c *SimpleConfig) GetRefreshTokenExpiration() int {
	if c.RefreshTokenExpiration <= 0 {
		return 24 * 7
	}
	return c.RefreshTokenExpiration
}

func (c *SimpleConfig) GetLoginAllowedFields() []string {
	if len(c.LoginAllowedFields) == 0 {
		return []string{"email", "username"}
	}
	return c.LoginAllowedFields
}

func (c *SimpleConfig) GetAllowUnverifiedLogin() bool { return c.AllowUnverifiedLogin }

func (c *SimpleConfig) GetAllowPasswordlessRegistration() bool {
	return c.AllowPasswordlessRegistration
}

func (c *SimpleConfig) GetSendActivationEmail() bool { return c.SendActivationEmail }

func (c *SimpleConfig) GetSendPasswordSetEmail() bool { return c.SendPasswordSetEmail }

// GetAllowDeleteAccount selects hard deletion; the default is a soft disable.
func (c *SimpleConfig) GetAllowDeleteAccount() bool { return c.AllowDeleteAccount }

func (c *SimpleConfig) GetScopedTokenMaxAge(scope TokenScope) time.Duration {
	if c.ScopedTokenMaxAge != nil {
		if age, ok := c.ScopedTokenMaxAge[scope]; ok && age > 0 {
			return age
		}
	}
	return time.Hour * 24 * 7
}

func (c *SimpleConfig) GetRequireRecaptcha() bool { return c.RequireRecaptcha }

func (c *SimpleConfig) GetRecaptchaMinScore() float64 { return c.RecaptchaMinScore }

func (c *SimpleConfig) GetAsyncEmail() bool { return c.AsyncEmail }

func (c *SimpleConfig) GetUpdateAccountFields() []string {
	if len(c.UpdateAccountFields) == 0 {
		return []string{"first_name", "last_name"}
	}
	return c.UpdateAccountFields
}
