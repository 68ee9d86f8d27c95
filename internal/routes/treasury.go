package routes

import (
	"github.com/gofiber/fiber/v2"

	"github.com/medtreasury/medtreasury/internal/treasury"
)

// RegisterTreasuryRoutes wires the expense request workflow.
func RegisterTreasuryRoutes(r fiber.Router, h *treasury.Handler) {
	group := r.Group("/treasury")
	group.Get("/", h.Summary)
	group.Post("/fund", h.Fund)
	group.Post("/requests", h.Create)
	group.Get("/requests/:id", h.Get)
	group.Get("/requests/:id/approvals", h.Approvals)
	group.Post("/requests/:id/doctor-approval", h.DoctorApprove)
	group.Post("/requests/:id/nurse-verification", h.NurseVerify)
	group.Post("/requests/:id/finance-approval", h.FinanceApprove)
	group.Post("/requests/:id/release", h.Release)
}
