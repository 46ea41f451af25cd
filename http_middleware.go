package account

import (
	"strings"

	"github.com/goliatone/go-router"
)

// AuthMiddlewareConfig configures the bearer token middleware.
type AuthMiddlewareConfig struct {
	// Filter defines a function to skip the middleware
	Filter func(router.Context) bool
	// Tokens validates the bearer token. Required.
	Tokens TokenService
	// Repo loads the authenticated user and their status record. Required.
	Repo RepositoryManager
	// ContextKey is the locals key the user is stored under. Defaults to "user".
	ContextKey string
	// AuthScheme expected in the Authorization header. Defaults to "Bearer".
	AuthScheme string
	// Optional makes a missing or invalid token pass through without a user
	// in context, instead of failing the request. Mutations that require an
	// authenticated account then report their own unauthenticated output.
	Optional bool
	// ErrorHandler handles extraction and validation failures.
	ErrorHandler router.ErrorHandler
}

// NewAuthMiddleware authenticates requests with a bearer access token, loads
// the matching user and account status, and propagates the user through both
// the router locals and the standard context.
func NewAuthMiddleware(config ...AuthMiddlewareConfig) router.MiddlewareFunc {
	cfg := getAuthMiddlewareConfig(config...)

	return func(hf router.HandlerFunc) router.HandlerFunc {
		return func(ctx router.Context) error {
			if cfg.Filter != nil && cfg.Filter(ctx) {
				return ctx.Next()
			}

			raw, err := bearerFromHeader(ctx, cfg.AuthScheme)
			if err != nil {
				if cfg.Optional {
					return ctx.Next()
				}
				return cfg.ErrorHandler(ctx, err)
			}

			claims, err := cfg.Tokens.Validate(raw)
			if err != nil {
				if cfg.Optional {
					return ctx.Next()
				}
				return cfg.ErrorHandler(ctx, err)
			}

			user, err := cfg.Repo.Users().GetByID(ctx.Context(), claims.UserID())
			if err != nil {
				if cfg.Optional {
					return ctx.Next()
				}
				return cfg.ErrorHandler(ctx, ErrInvalidToken)
			}

			if user.Status == nil {
				status, err := cfg.Repo.Statuses().GetByUserID(ctx.Context(), user.ID)
				if err == nil {
					user.Status = status
				}
			}

			ctx.Locals(cfg.ContextKey, user)
			ctx.SetContext(WithContext(ctx.Context(), user))

			return ctx.Next()
		}
	}
}

func bearerFromHeader(c router.Context, authScheme string) (string, error) {
	auth := c.GetString(router.HeaderAuthorization, "")
	if auth == "" {
		return "", ErrInvalidToken
	}

	l := len(authScheme)
	if l == 0 {
		return auth, nil
	}

	if len(auth) > l+1 && strings.EqualFold(auth[:l], authScheme) {
		return strings.TrimSpace(auth[l+1:]), nil
	}

	return "", ErrInvalidToken
}

func getAuthMiddlewareConfig(config ...AuthMiddlewareConfig) (cfg AuthMiddlewareConfig) {
	if len(config) > 0 {
		cfg = config[0]
	}

	if cfg.Tokens == nil {
		panic("ACCOUNT: auth middleware configuration: Tokens is required.")
	}

	if cfg.Repo == nil {
		panic("ACCOUNT: auth middleware configuration: Repo is required.")
	}

	if cfg.ContextKey == "" {
		cfg.ContextKey = "user"
	}

	if cfg.AuthScheme == "" {
		cfg.AuthScheme = "Bearer"
	}

	if cfg.ErrorHandler == nil {
		cfg.ErrorHandler = func(c router.Context, err error) error {
			return c.JSON(router.StatusUnauthorized, Failed(MsgUnauthenticated))
		}
	}

	return cfg
}
