package routes

import (
	"github.com/gofiber/fiber/v2"

	"github.com/medtreasury/medtreasury/internal/credential"
)

// RegisterCredentialRoutes wires the credential registry endpoints.
func RegisterCredentialRoutes(r fiber.Router, h *credential.Handler) {
	group := r.Group("/credentials")
	group.Post("/issuers", h.AddIssuer)
	group.Post("/", h.Issue)
	group.Get("/:holder/:role", h.Get)
	group.Delete("/:holder/:role", h.Revoke)
	group.Post("/:holder/:role/verify", h.Verify)
}
