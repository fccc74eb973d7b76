package middleware

import (
	"fmt"
	"log/slog"
	"net/http"
	"runtime"

	"github.com/labstack/echo/v4"
)

// DefaultStackSize is the maximum captured stack trace size (4KB).
const DefaultStackSize = 4 << 10

// Recovery returns a middleware that converts handler panics into 500
// responses and logs the stack trace.
func Recovery(logger *slog.Logger) echo.MiddlewareFunc {
	if logger == nil {
		logger = slog.Default()
	}

	return func(next echo.HandlerFunc) echo.HandlerFunc {
		return func(c echo.Context) (err error) {
			defer func() {
				if r := recover(); r != nil {
					stack := make([]byte, DefaultStackSize)
					stack = stack[:runtime.Stack(stack, false)]

					logger.ErrorContext(c.Request().Context(), "handler panicked",
						slog.String("path", c.Request().URL.Path),
						slog.Any("panic", r),
						slog.String("stack", string(stack)),
					)

					err = echo.NewHTTPError(http.StatusInternalServerError,
						fmt.Sprintf("internal error: %v", r))
				}
			}()

			return next(c)
		}
	}
}
