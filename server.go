package account

import (
	"github.com/gofiber/fiber/v2"
	"github.com/goliatone/go-router"
)

// HTTPServerConfig configures the bundled fiber server.
type HTTPServerConfig struct {
	// BasePath prefixes every mutation route, "/account" by default.
	BasePath string
	AppName  string
}

// HTTPServer mounts the mutation controller on a fiber backed router. The
// auth middleware runs in optional mode: a valid bearer token populates the
// request context, anonymous requests pass through and the mutation guards
// decide what needs a session.
type HTTPServer struct {
	Controller *AccountController
	srv        router.Server[*fiber.App]
}

// NewHTTPServer builds the server and registers every mutation route.
func NewHTTPServer(repo RepositoryManager, tokens TokenService, controller *AccountController, cfg HTTPServerConfig) *HTTPServer {
	srv := router.NewFiberAdapter(func(a *fiber.App) *fiber.App {
		return router.DefaultFiberOptions(fiber.New(fiber.Config{
			AppName:       cfg.AppName,
			UnescapePath:  true,
			StrictRouting: false,
		}))
	})

	base := cfg.BasePath
	if base == "" {
		base = "/account"
	}

	group := srv.Router().Group(base)
	group.Use(NewAuthMiddleware(AuthMiddlewareConfig{
		Tokens:   tokens,
		Repo:     repo,
		Optional: true,
	}))

	RegisterMutationRoutes(group, controller)

	return &HTTPServer{
		Controller: controller,
		srv:        srv,
	}
}

// Router exposes the underlying router for extra routes or middleware.
func (s *HTTPServer) Router() router.Router[*fiber.App] {
	return s.srv.Router()
}

// Serve blocks serving HTTP on addr.
func (s *HTTPServer) Serve(addr string) error {
	return s.srv.Serve(addr)
}
