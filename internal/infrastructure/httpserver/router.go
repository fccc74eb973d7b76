package httpserver

import (
	"log/slog"

	"github.com/labstack/echo/v4"

	"github.com/lllypuk/eventra/internal/middleware"
)

// DefaultAPIPrefix is the prefix for all API routes.
const DefaultAPIPrefix = "/api/v1"

// RouterConfig holds configuration for the router.
type RouterConfig struct {
	// Logger is the structured logger for router events.
	Logger *slog.Logger

	// AuthMiddleware is the authentication middleware for protected routes,
	// nil when authentication is disabled.
	AuthMiddleware echo.MiddlewareFunc

	// APIPrefix is the prefix for all API routes. Default is "/api/v1".
	APIPrefix string
}

// Router manages HTTP route groups and middleware chains.
type Router struct {
	echo   *echo.Echo
	logger *slog.Logger

	public *echo.Group
	auth   *echo.Group
}

// NewRouter creates a new router with the given configuration.
func NewRouter(e *echo.Echo, config RouterConfig) *Router {
	if config.Logger == nil {
		config.Logger = slog.Default()
	}
	if config.APIPrefix == "" {
		config.APIPrefix = DefaultAPIPrefix
	}

	r := &Router{
		echo:   e,
		logger: config.Logger,
	}

	e.Use(middleware.Recovery(config.Logger))
	e.Use(middleware.Logging(config.Logger))

	r.public = e.Group(config.APIPrefix)
	if config.AuthMiddleware != nil {
		r.auth = r.public.Group("", config.AuthMiddleware)
	} else {
		r.auth = r.public
		r.logger.Warn("no auth middleware configured, authenticated routes are public")
	}

	return r
}

// Public returns the route group with no authentication.
func (r *Router) Public() *echo.Group {
	return r.public
}

// Auth returns the authenticated route group.
func (r *Router) Auth() *echo.Group {
	return r.auth
}

// Echo returns the underlying Echo instance.
func (r *Router) Echo() *echo.Echo {
	return r.echo
}
