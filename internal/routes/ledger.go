package routes

import (
	"github.com/gofiber/fiber/v2"

	"github.com/medtreasury/medtreasury/internal/ledger"
)

// RegisterLedgerRoutes wires balance, allowance and transfer endpoints.
func RegisterLedgerRoutes(r fiber.Router, h *ledger.Handler) {
	group := r.Group("/ledger")
	group.Get("/supply", h.Supply)
	group.Get("/balances/:account", h.Balance)
	group.Get("/allowances/:owner/:spender", h.Allowance)
	group.Post("/transfers", h.Transfer)
	group.Post("/transfers/delegated", h.TransferFrom)
	group.Post("/approvals", h.Approve)
}
