package middleware

import (
	"log/slog"
	"net/http"
	"strings"

	"github.com/gofiber/fiber/v2"

	"github.com/medtreasury/medtreasury/internal/auth"
	"github.com/medtreasury/medtreasury/internal/httpx"
)

// Auth validates the bearer token and stores the caller account in the request locals.
func Auth(signer *auth.Signer, logger *slog.Logger) fiber.Handler {
	return func(c *fiber.Ctx) error {
		authz := c.Get(fiber.HeaderAuthorization)
		if len(authz) < len("bearer ") || !strings.EqualFold(authz[:len("bearer ")], "bearer ") {
			return fiber.NewError(http.StatusUnauthorized, "missing bearer token")
		}
		caller, err := signer.Parse(strings.TrimSpace(authz[len("bearer "):]))
		if err != nil {
			logger.Debug("rejected bearer token", slog.String("path", c.Path()), slog.Any("error", err))
			return fiber.NewError(http.StatusUnauthorized, "invalid token")
		}
		c.Locals(httpx.CallerKey, caller)
		return c.Next()
	}
}
