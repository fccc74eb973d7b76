package main

import (
	"fmt"

	"github.com/labstack/echo/v4"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	httphandler "github.com/lllypuk/eventra/internal/handler/http"
	"github.com/lllypuk/eventra/internal/infrastructure/httpserver"
	"github.com/lllypuk/eventra/internal/middleware"
)

// SetupServer builds the HTTP server and configures all API routes and
// middleware chains.
func SetupServer(c *Container) (*httpserver.Server, error) {
	srv := httpserver.NewServer(httpserver.ServerConfig{
		Host:            c.Config.Server.Host,
		Port:            c.Config.Server.Port,
		ReadTimeout:     c.Config.Server.ReadTimeout,
		WriteTimeout:    c.Config.Server.WriteTimeout,
		ShutdownTimeout: c.Config.Server.ShutdownTimeout,
	}, c.Logger)

	routerConfig := httpserver.RouterConfig{
		Logger:    c.Logger,
		APIPrefix: httpserver.DefaultAPIPrefix,
	}

	if c.Config.Auth.Enabled {
		authMW, err := middleware.Auth(middleware.AuthConfig{
			JWKSURL: c.Config.Auth.JWKSURL,
			Secret:  c.Config.Auth.Secret,
			Logger:  c.Logger,
		})
		if err != nil {
			return nil, fmt.Errorf("auth middleware: %w", err)
		}
		routerConfig.AuthMiddleware = authMW
	}

	router := httpserver.NewRouter(srv.Echo(), routerConfig)

	srv.HealthCheck("/health")
	srv.Ready("/ready", c.IsReady)

	registerMetricsRoutes(srv.Echo(), c)
	registerOrderRoutes(router, c)
	registerWebSocketRoutes(router, c)

	return srv, nil
}

func registerMetricsRoutes(e *echo.Echo, c *Container) {
	e.GET("/metrics", echo.WrapHandler(
		promhttp.HandlerFor(c.PromReg, promhttp.HandlerOpts{}),
	))
}

func registerOrderRoutes(router *httpserver.Router, c *Container) {
	handler := httphandler.NewOrderHandler(c.Module.Commands, c.Module.Queries)
	handler.RegisterRoutes(router)
}

func registerWebSocketRoutes(router *httpserver.Router, c *Container) {
	router.Auth().GET("/events/stream", c.Stream.Handle)
}
