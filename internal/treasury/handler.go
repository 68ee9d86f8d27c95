package treasury

import (
	"context"
	"fmt"
	"net/http"
	"strconv"
	"time"

	"github.com/gofiber/fiber/v2"

	"github.com/medtreasury/medtreasury/internal/account"
	"github.com/medtreasury/medtreasury/internal/apperrors"
	"github.com/medtreasury/medtreasury/internal/httpx"
	"github.com/medtreasury/medtreasury/internal/ledger"
)

// Handler exposes the treasury workflow over HTTP.
type Handler struct {
	service *Service
}

// NewHandler constructs a treasury HTTP handler.
func NewHandler(service *Service) *Handler {
	return &Handler{service: service}
}

type fundRequest struct {
	Amount string `json:"amount" validate:"required,number"`
}

// createRequest fields are checked by CreateRequest after the caller's role, so an
// unauthorised caller gets 403 whatever the payload holds.
type createRequest struct {
	Amount      string `json:"amount"`
	Description string `json:"description" validate:"max=1024"`
	Type        string `json:"type"`
	Vendor      string `json:"vendor"`
}

// unknownRequestType stands in for an unparsable type and fails RequestType.Valid.
const unknownRequestType = RequestType(len(requestTypeNames))

type requestResponse struct {
	ID          uint64          `json:"id"`
	Requester   account.Address `json:"requester"`
	Amount      string          `json:"amount"`
	Description string          `json:"description"`
	Type        RequestType     `json:"type"`
	Vendor      account.Address `json:"vendor"`
	Status      Status          `json:"status"`
	Approvals   Approvals       `json:"approvals"`
	CreatedAt   time.Time       `json:"created_at"`
	UpdatedAt   time.Time       `json:"updated_at"`
}

func toResponse(r ExpenseRequest) requestResponse {
	return requestResponse{
		ID:          r.ID,
		Requester:   r.Requester,
		Amount:      r.Amount.Dec(),
		Description: r.Description,
		Type:        r.Type,
		Vendor:      r.Vendor,
		Status:      r.Status,
		Approvals:   r.Approvals,
		CreatedAt:   r.CreatedAt,
		UpdatedAt:   r.UpdatedAt,
	}
}

// Fund pulls an approved amount from the caller into the pool.
func (h *Handler) Fund(c *fiber.Ctx) error {
	caller, err := httpx.Caller(c)
	if err != nil {
		return err
	}
	var req fundRequest
	if err := httpx.Bind(c, &req); err != nil {
		return err
	}
	amount, err := ledger.ParseAmount(req.Amount)
	if err != nil {
		return httpx.Error(err)
	}
	res, err := h.service.FundTreasury(c.UserContext(), caller, amount)
	if err != nil {
		return httpx.Error(err)
	}
	return c.Status(http.StatusCreated).JSON(fiber.Map{
		"transaction_id": res.TransactionID,
		"treasury":       h.service.Account(),
		"balance":        res.ToBalance.Dec(),
	})
}

// Summary returns the pool balance and request counter.
func (h *Handler) Summary(c *fiber.Ctx) error {
	ctx := c.UserContext()
	balance, err := h.service.Balance(ctx)
	if err != nil {
		return httpx.Error(err)
	}
	counter, err := h.service.RequestCounter(ctx)
	if err != nil {
		return httpx.Error(err)
	}
	return c.JSON(fiber.Map{
		"account":         h.service.Account(),
		"balance":         balance.Dec(),
		"request_counter": counter,
	})
}

// Create files a new expense request.
func (h *Handler) Create(c *fiber.Ctx) error {
	caller, err := httpx.Caller(c)
	if err != nil {
		return err
	}
	var req createRequest
	if err := httpx.Bind(c, &req); err != nil {
		return err
	}
	// Malformed fields fall back to values CreateRequest rejects with the matching error.
	amount, err := ledger.ParseAmount(req.Amount)
	if err != nil {
		amount = nil
	}
	reqType, err := ParseRequestType(req.Type)
	if err != nil {
		reqType = unknownRequestType
	}
	vendor, err := account.Parse(req.Vendor)
	if err != nil {
		vendor = account.Null
	}

	created, err := h.service.CreateRequest(c.UserContext(), caller, CreateInput{
		Amount:      amount,
		Description: req.Description,
		Type:        reqType,
		Vendor:      vendor,
	})
	if err != nil {
		return httpx.Error(err)
	}
	return c.Status(http.StatusCreated).JSON(toResponse(created))
}

// Get returns a request.
func (h *Handler) Get(c *fiber.Ctx) error {
	id, err := requestID(c)
	if err != nil {
		return err
	}
	req, err := h.service.GetRequest(c.UserContext(), id)
	if err != nil {
		return httpx.Error(err)
	}
	return c.JSON(toResponse(req))
}

// Approvals returns the sign-off flags of a request.
func (h *Handler) Approvals(c *fiber.Ctx) error {
	id, err := requestID(c)
	if err != nil {
		return err
	}
	approvals, err := h.service.ApprovalStatus(c.UserContext(), id)
	if err != nil {
		return httpx.Error(err)
	}
	return c.JSON(approvals)
}

type transitionFunc func(ctx context.Context, caller account.Address, id uint64) (ExpenseRequest, error)

func (h *Handler) transition(fn transitionFunc) fiber.Handler {
	return func(c *fiber.Ctx) error {
		caller, err := httpx.Caller(c)
		if err != nil {
			return err
		}
		id, err := requestID(c)
		if err != nil {
			return err
		}
		req, err := fn(c.UserContext(), caller, id)
		if err != nil {
			return httpx.Error(err)
		}
		return c.JSON(toResponse(req))
	}
}

// DoctorApprove records the doctor sign-off.
func (h *Handler) DoctorApprove(c *fiber.Ctx) error {
	return h.transition(h.service.DoctorApprove)(c)
}

// NurseVerify records the nurse sign-off.
func (h *Handler) NurseVerify(c *fiber.Ctx) error {
	return h.transition(h.service.NurseVerify)(c)
}

// FinanceApprove records the finance sign-off.
func (h *Handler) FinanceApprove(c *fiber.Ctx) error {
	return h.transition(h.service.FinanceApprove)(c)
}

// Release pays an approved request to its vendor.
func (h *Handler) Release(c *fiber.Ctx) error {
	return h.transition(h.service.ReleaseFunds)(c)
}

func requestID(c *fiber.Ctx) (uint64, error) {
	id, err := strconv.ParseUint(c.Params("id"), 10, 64)
	if err != nil || id == 0 {
		return 0, httpx.Error(fmt.Errorf("%w: request id must be a positive integer", apperrors.ErrInvalidInput))
	}
	return id, nil
}
