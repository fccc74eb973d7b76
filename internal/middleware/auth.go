// Package middleware provides Echo HTTP middleware: JWT authentication,
// request logging and panic recovery.
package middleware

import (
	"context"
	"errors"
	"log/slog"
	"net/http"
	"strings"

	"github.com/MicahParks/keyfunc/v3"
	"github.com/golang-jwt/jwt/v5"
	"github.com/labstack/echo/v4"
)

// Context keys for authentication data.
type contextKey string

const (
	// ContextKeyUserID is the context key for the authenticated user ID.
	ContextKeyUserID contextKey = "user_id"
)

// Auth errors.
var (
	ErrMissingAuthHeader = errors.New("missing authorization header")
	ErrInvalidAuthHeader = errors.New("invalid authorization header format")
	ErrInvalidToken      = errors.New("invalid token")
)

// AuthConfig holds configuration for the auth middleware. Exactly one of
// JWKSURL or Secret must be set.
type AuthConfig struct {
	// JWKSURL points at a JWKS endpoint used to verify token signatures.
	JWKSURL string

	// Secret is the HMAC key used when no JWKS endpoint is configured.
	Secret string

	Logger *slog.Logger
}

// Auth returns a middleware verifying bearer JWTs and storing the token
// subject in the request context under ContextKeyUserID.
func Auth(cfg AuthConfig) (echo.MiddlewareFunc, error) {
	if cfg.Logger == nil {
		cfg.Logger = slog.Default()
	}

	keyFn, err := buildKeyfunc(cfg)
	if err != nil {
		return nil, err
	}

	return func(next echo.HandlerFunc) echo.HandlerFunc {
		return func(c echo.Context) error {
			token, err := bearerToken(c.Request().Header.Get("Authorization"))
			if err != nil {
				return echo.NewHTTPError(http.StatusUnauthorized, err.Error())
			}

			parsed, err := jwt.Parse(token, keyFn)
			if err != nil || !parsed.Valid {
				cfg.Logger.DebugContext(c.Request().Context(), "token verification failed",
					slog.String("error", errString(err)),
				)
				return echo.NewHTTPError(http.StatusUnauthorized, ErrInvalidToken.Error())
			}

			subject, err := parsed.Claims.GetSubject()
			if err != nil || subject == "" {
				return echo.NewHTTPError(http.StatusUnauthorized, ErrInvalidToken.Error())
			}

			ctx := context.WithValue(c.Request().Context(), ContextKeyUserID, subject)
			c.SetRequest(c.Request().WithContext(ctx))

			return next(c)
		}
	}, nil
}

// UserID extracts the authenticated user ID from a request context,
// empty when the request was not authenticated.
func UserID(ctx context.Context) string {
	userID, _ := ctx.Value(ContextKeyUserID).(string)
	return userID
}

func buildKeyfunc(cfg AuthConfig) (jwt.Keyfunc, error) {
	if cfg.JWKSURL != "" {
		jwks, err := keyfunc.NewDefault([]string{cfg.JWKSURL})
		if err != nil {
			return nil, err
		}
		return jwks.Keyfunc, nil
	}

	if cfg.Secret == "" {
		return nil, errors.New("auth middleware requires a JWKS URL or an HMAC secret")
	}

	secret := []byte(cfg.Secret)
	return func(token *jwt.Token) (any, error) {
		if _, ok := token.Method.(*jwt.SigningMethodHMAC); !ok {
			return nil, ErrInvalidToken
		}
		return secret, nil
	}, nil
}

func bearerToken(header string) (string, error) {
	if header == "" {
		return "", ErrMissingAuthHeader
	}

	parts := strings.SplitN(header, " ", 2)
	if len(parts) != 2 || !strings.EqualFold(parts[0], "Bearer") || parts[1] == "" {
		return "", ErrInvalidAuthHeader
	}

	return parts[1], nil
}

func errString(err error) string {
	if err == nil {
		return "token invalid"
	}
	return err.Error()
}
