package echoapi

import (
	"github.com/labstack/echo/v4"
	"github.com/pkg/errors"
)

// identityMiddleware rejects tokens that do not identify anybody.
func identityMiddleware() echo.MiddlewareFunc {
	return func(next echo.HandlerFunc) echo.HandlerFunc {
		return func(ctx echo.Context) error {
			if _, err := getContextClaims(ctx); err != nil {
				return errors.Wrap(err, "getting context claims")
			}
			return next(ctx)
		}
	}
}

// levelMiddleware restricts a route to identities of at least the given level.
func levelMiddleware(level int) echo.MiddlewareFunc {
	return func(next echo.HandlerFunc) echo.HandlerFunc {
		return func(ctx echo.Context) error {
			claims, err := getContextClaims(ctx)
			if err != nil {
				return errors.Wrap(err, "getting context claims")
			}
			if claims.Level >= level {
				return next(ctx)
			}
			return errHttpForbidden
		}
	}
}
