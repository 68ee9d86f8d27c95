package credential

import (
	"net/http"
	"time"

	"github.com/gofiber/fiber/v2"

	"github.com/medtreasury/medtreasury/internal/account"
	"github.com/medtreasury/medtreasury/internal/httpx"
)

// Handler exposes credential registry endpoints.
type Handler struct {
	registry *Registry
}

// NewHandler constructs a credential HTTP handler.
func NewHandler(registry *Registry) *Handler {
	return &Handler{registry: registry}
}

type addIssuerRequest struct {
	Account string `json:"account" validate:"required"`
}

type issueRequest struct {
	Holder string `json:"holder" validate:"required"`
	Role   string `json:"role" validate:"required"`
	// Either ProofToken (hex) or ProofSecret must be set.
	ProofToken      string `json:"proof_token" validate:"required_without=ProofSecret"`
	ProofSecret     string `json:"proof_secret" validate:"required_without=ProofToken"`
	ValiditySeconds int64  `json:"validity_seconds"`
}

type verifyRequest struct {
	ProofToken string `json:"proof_token" validate:"required"`
}

type credentialResponse struct {
	Holder    account.Address `json:"holder"`
	Role      Role            `json:"role"`
	IssuedAt  time.Time       `json:"issued_at"`
	ExpiresAt time.Time       `json:"expires_at"`
	Revoked   bool            `json:"revoked"`
	Active    bool            `json:"active"`
}

func toResponse(c Credential, active bool) credentialResponse {
	return credentialResponse{
		Holder:    c.Holder,
		Role:      c.Role,
		IssuedAt:  c.IssuedAt,
		ExpiresAt: c.ExpiresAt,
		Revoked:   c.Revoked,
		Active:    active,
	}
}

// AddIssuer lets the admin grant issuing rights.
func (h *Handler) AddIssuer(c *fiber.Ctx) error {
	caller, err := httpx.Caller(c)
	if err != nil {
		return err
	}
	var req addIssuerRequest
	if err := httpx.Bind(c, &req); err != nil {
		return err
	}
	acct, err := httpx.Address(req.Account)
	if err != nil {
		return err
	}
	if err := h.registry.AddIssuer(c.UserContext(), caller, acct); err != nil {
		return httpx.Error(err)
	}
	return c.Status(http.StatusCreated).JSON(fiber.Map{"issuer": acct})
}

// Issue grants a role credential.
func (h *Handler) Issue(c *fiber.Ctx) error {
	caller, err := httpx.Caller(c)
	if err != nil {
		return err
	}
	var req issueRequest
	if err := httpx.Bind(c, &req); err != nil {
		return err
	}
	holder, err := httpx.Address(req.Holder)
	if err != nil {
		return err
	}
	role, err := ParseRole(req.Role)
	if err != nil {
		return httpx.Error(err)
	}
	token := DeriveProofToken(req.ProofSecret)
	if req.ProofToken != "" {
		if token, err = ParseProofToken(req.ProofToken); err != nil {
			return httpx.Error(err)
		}
	}

	cred, err := h.registry.IssueCredential(c.UserContext(), caller, IssueInput{
		Holder:          holder,
		Role:            role,
		ProofToken:      token,
		ValiditySeconds: req.ValiditySeconds,
	})
	if err != nil {
		return httpx.Error(err)
	}
	return c.Status(http.StatusCreated).JSON(toResponse(cred, true))
}

// Revoke revokes the credential named in the path.
func (h *Handler) Revoke(c *fiber.Ctx) error {
	caller, err := httpx.Caller(c)
	if err != nil {
		return err
	}
	holder, role, err := pathKey(c)
	if err != nil {
		return err
	}
	if err := h.registry.RevokeCredential(c.UserContext(), caller, holder, role); err != nil {
		return httpx.Error(err)
	}
	return c.SendStatus(http.StatusNoContent)
}

// Get returns the stored credential and whether it is live.
func (h *Handler) Get(c *fiber.Ctx) error {
	holder, role, err := pathKey(c)
	if err != nil {
		return err
	}
	cred, err := h.registry.Credential(c.UserContext(), holder, role)
	if err != nil {
		return httpx.Error(err)
	}
	active, err := h.registry.HasRole(c.UserContext(), holder, role)
	if err != nil {
		return httpx.Error(err)
	}
	return c.JSON(toResponse(cred, active))
}

// Verify checks a presented proof token.
func (h *Handler) Verify(c *fiber.Ctx) error {
	holder, role, err := pathKey(c)
	if err != nil {
		return err
	}
	var req verifyRequest
	if err := httpx.Bind(c, &req); err != nil {
		return err
	}
	token, err := ParseProofToken(req.ProofToken)
	if err != nil {
		return httpx.Error(err)
	}
	valid, err := h.registry.VerifyProof(c.UserContext(), holder, role, token)
	if err != nil {
		return httpx.Error(err)
	}
	return c.JSON(fiber.Map{"holder": holder, "role": role, "valid": valid})
}

func pathKey(c *fiber.Ctx) (account.Address, Role, error) {
	holder, err := httpx.Address(c.Params("holder"))
	if err != nil {
		return account.Null, "", err
	}
	role, err := ParseRole(c.Params("role"))
	if err != nil {
		return account.Null, "", httpx.Error(err)
	}
	return holder, role, nil
}
