package ledger

import (
	"net/http"

	"github.com/gofiber/fiber/v2"
	"github.com/holiman/uint256"

	"github.com/medtreasury/medtreasury/internal/httpx"
)

// Handler exposes ledger HTTP endpoints.
type Handler struct {
	ledger   Ledger
	decimals int32
}

// NewHandler constructs a ledger HTTP handler.
func NewHandler(l Ledger, decimals int32) *Handler {
	return &Handler{ledger: l, decimals: decimals}
}

type transferRequest struct {
	To     string `json:"to" validate:"required"`
	Amount string `json:"amount" validate:"required,number"`
}

type approveRequest struct {
	Spender string `json:"spender" validate:"required"`
	Amount  string `json:"amount" validate:"required,number"`
}

type transferFromRequest struct {
	From   string `json:"from" validate:"required"`
	To     string `json:"to" validate:"required"`
	Amount string `json:"amount" validate:"required,number"`
}

type transferResponse struct {
	TransactionID string `json:"transaction_id"`
	FromBalance   string `json:"from_balance"`
	ToBalance     string `json:"to_balance"`
}

func (h *Handler) amountJSON(v *uint256.Int) fiber.Map {
	return fiber.Map{"base_units": v.Dec(), "tokens": FormatUnits(v, h.decimals)}
}

// Supply returns the minted supply.
func (h *Handler) Supply(c *fiber.Ctx) error {
	supply, err := h.ledger.TotalSupply(c.UserContext())
	if err != nil {
		return httpx.Error(err)
	}
	return c.JSON(fiber.Map{"total_supply": h.amountJSON(supply)})
}

// Balance returns the balance of the account in the path.
func (h *Handler) Balance(c *fiber.Ctx) error {
	owner, err := httpx.Address(c.Params("account"))
	if err != nil {
		return err
	}
	bal, err := h.ledger.BalanceOf(c.UserContext(), owner)
	if err != nil {
		return httpx.Error(err)
	}
	return c.JSON(fiber.Map{"account": owner, "balance": h.amountJSON(bal)})
}

// Allowance returns the remaining allowance of spender over owner.
func (h *Handler) Allowance(c *fiber.Ctx) error {
	owner, err := httpx.Address(c.Params("owner"))
	if err != nil {
		return err
	}
	spender, err := httpx.Address(c.Params("spender"))
	if err != nil {
		return err
	}
	amount, err := h.ledger.Allowance(c.UserContext(), owner, spender)
	if err != nil {
		return httpx.Error(err)
	}
	return c.JSON(fiber.Map{"owner": owner, "spender": spender, "allowance": h.amountJSON(amount)})
}

// Transfer moves funds out of the caller's account.
func (h *Handler) Transfer(c *fiber.Ctx) error {
	caller, err := httpx.Caller(c)
	if err != nil {
		return err
	}
	var req transferRequest
	if err := httpx.Bind(c, &req); err != nil {
		return err
	}
	to, err := httpx.Address(req.To)
	if err != nil {
		return err
	}
	amount, err := ParseAmount(req.Amount)
	if err != nil {
		return httpx.Error(err)
	}

	res, err := h.ledger.Transfer(c.UserContext(), caller, to, amount)
	if err != nil {
		return httpx.Error(err)
	}
	return c.Status(http.StatusCreated).JSON(toTransferResponse(res))
}

// Approve sets the allowance a spender may draw from the caller.
func (h *Handler) Approve(c *fiber.Ctx) error {
	caller, err := httpx.Caller(c)
	if err != nil {
		return err
	}
	var req approveRequest
	if err := httpx.Bind(c, &req); err != nil {
		return err
	}
	spender, err := httpx.Address(req.Spender)
	if err != nil {
		return err
	}
	amount, err := ParseAmount(req.Amount)
	if err != nil {
		return httpx.Error(err)
	}

	if err := h.ledger.Approve(c.UserContext(), caller, spender, amount); err != nil {
		return httpx.Error(err)
	}
	return c.Status(http.StatusOK).JSON(fiber.Map{"owner": caller, "spender": spender, "allowance": h.amountJSON(amount)})
}

// TransferFrom spends the caller's allowance over another account.
func (h *Handler) TransferFrom(c *fiber.Ctx) error {
	caller, err := httpx.Caller(c)
	if err != nil {
		return err
	}
	var req transferFromRequest
	if err := httpx.Bind(c, &req); err != nil {
		return err
	}
	from, err := httpx.Address(req.From)
	if err != nil {
		return err
	}
	to, err := httpx.Address(req.To)
	if err != nil {
		return err
	}
	amount, err := ParseAmount(req.Amount)
	if err != nil {
		return httpx.Error(err)
	}

	res, err := h.ledger.TransferFrom(c.UserContext(), caller, from, to, amount)
	if err != nil {
		return httpx.Error(err)
	}
	return c.Status(http.StatusCreated).JSON(toTransferResponse(res))
}

func toTransferResponse(res TransferResult) transferResponse {
	return transferResponse{
		TransactionID: res.TransactionID,
		FromBalance:   res.FromBalance.Dec(),
		ToBalance:     res.ToBalance.Dec(),
	}
}
