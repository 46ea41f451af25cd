package account

import (
	"fmt"
	"time"

	"github.com/golang-jwt/jwt/v5"
	goerrors "github.com/goliatone/go-errors"
)

// TokenScope is the declared purpose of a scoped token. A token is valid only
// for the scope it was issued under.
type TokenScope string

const (
	ScopeActivation     TokenScope = "activation"
	ScopePasswordReset  TokenScope = "password_reset"
	ScopePasswordSet    TokenScope = "password_set"
	ScopeSecondaryEmail TokenScope = "secondary_email"
)

// ScopedClaims is the payload carried by a scoped token: identity lookup
// claims, the scope tag, and the issue timestamp. Expiry is not embedded;
// it is enforced at verification time against a per-scope max age.
type ScopedClaims struct {
	jwt.RegisteredClaims
	UID   string     `json:"uid,omitempty"`
	Scope TokenScope `json:"scope,omitempty"`
	// Email carries the pending secondary email. Until that token is
	// verified the address exists nowhere else.
	Email string `json:"email,omitempty"`
}

// UserID returns the identity lookup claim.
func (c *ScopedClaims) UserID() string {
	if c.UID != "" {
		return c.UID
	}
	return c.RegisteredClaims.Subject
}

// ScopedTokenOption customizes a single issued token.
type ScopedTokenOption func(*ScopedClaims)

// WithClaimEmail attaches a pending email claim to the token.
func WithClaimEmail(email string) ScopedTokenOption {
	return func(c *ScopedClaims) {
		c.Email = email
	}
}

// ScopedTokenCodec produces and verifies signed, purpose scoped tokens.
type ScopedTokenCodec interface {
	Issue(identity Identity, scope TokenScope, opts ...ScopedTokenOption) (string, error)
	Verify(token string, scope TokenScope, maxAge time.Duration) (*ScopedClaims, error)
}

// ScopedTokenCodecImpl implements ScopedTokenCodec over HMAC signed JWTs.
type ScopedTokenCodecImpl struct {
	signingKey []byte
	issuer     string
	now        func() time.Time
	logger     Logger
}

// CodecOption customizes codec construction.
type CodecOption func(*ScopedTokenCodecImpl)

// WithCodecClock injects a custom clock (useful for tests).
func WithCodecClock(clock func() time.Time) CodecOption {
	return func(c *ScopedTokenCodecImpl) {
		if clock != nil {
			c.now = clock
		}
	}
}

// WithCodecLogger overrides the logger used for verification failures.
func WithCodecLogger(logger Logger) CodecOption {
	return func(c *ScopedTokenCodecImpl) {
		if logger != nil {
			c.logger = logger
		}
	}
}

// NewScopedTokenCodec creates a codec signing with the given key.
func NewScopedTokenCodec(signingKey []byte, issuer string, opts ...CodecOption) *ScopedTokenCodecImpl {
	codec := &ScopedTokenCodecImpl{
		signingKey: signingKey,
		issuer:     issuer,
		now:        time.Now,
		logger:     defLogger{},
	}

	for _, opt := range opts {
		if opt != nil {
			opt(codec)
		}
	}

	return codec
}

// Issue creates a signed token binding the identity claims to scope.
func (c *ScopedTokenCodecImpl) Issue(identity Identity, scope TokenScope, opts ...ScopedTokenOption) (string, error) {
	if identity == nil {
		return "", goerrors.New("identity is required", goerrors.CategoryBadInput)
	}
	if scope == "" {
		return "", goerrors.New("token scope is required", goerrors.CategoryBadInput)
	}

	now := c.now()
	claims := &ScopedClaims{
		RegisteredClaims: jwt.RegisteredClaims{
			Issuer:   c.issuer,
			Subject:  identity.ID(),
			IssuedAt: jwt.NewNumericDate(now),
		},
		UID:   identity.ID(),
		Scope: scope,
	}

	for _, opt := range opts {
		if opt != nil {
			opt(claims)
		}
	}

	token := jwt.NewWithClaims(jwt.SigningMethodHS256, claims)

	signed, err := token.SignedString(c.signingKey)
	if err != nil {
		return "", goerrors.Wrap(err, goerrors.CategoryInternal, "failed to sign scoped token")
	}

	return signed, nil
}

// Verify parses the token and checks the signature, the requested scope, and
// the issue age against maxAge. It fails closed: signature and scope failures
// both return ErrInvalidToken, an over-age token returns ErrExpiredToken.
func (c *ScopedTokenCodecImpl) Verify(tokenString string, scope TokenScope, maxAge time.Duration) (*ScopedClaims, error) {
	parserOptions := make([]jwt.ParserOption, 0, 1)
	if c.issuer != "" {
		parserOptions = append(parserOptions, jwt.WithIssuer(c.issuer))
	}

	token, err := jwt.ParseWithClaims(tokenString, &ScopedClaims{}, func(t *jwt.Token) (any, error) {
		if _, ok := t.Method.(*jwt.SigningMethodHMAC); !ok {
			c.logger.Error("scoped token codec encountered unexpected signing method: %v", t.Header["alg"])
			return nil, fmt.Errorf("unexpected signing method: %v", t.Header["alg"])
		}
		return c.signingKey, nil
	}, parserOptions...)

	if err != nil {
		if goerrors.Is(err, jwt.ErrTokenExpired) {
			return nil, ErrExpiredToken
		}
		return nil, ErrInvalidToken
	}

	claims, ok := token.Claims.(*ScopedClaims)
	if !ok || !token.Valid {
		return nil, ErrInvalidToken
	}

	if claims.Scope != scope {
		return nil, ErrInvalidToken
	}

	if claims.RegisteredClaims.IssuedAt == nil {
		return nil, ErrInvalidToken
	}

	if maxAge > 0 && IsOutsideMaxAge(claims.RegisteredClaims.IssuedAt.Time, maxAge, c.now()) {
		return nil, ErrExpiredToken
	}

	return claims, nil
}

var _ ScopedTokenCodec = (*ScopedTokenCodecImpl)(nil)
