package credential

import (
	"encoding/hex"
	"fmt"
	"strings"
	"time"

	"golang.org/x/crypto/sha3"

	"github.com/medtreasury/medtreasury/internal/account"
	"github.com/medtreasury/medtreasury/internal/apperrors"
)

// Role is a staff role a credential can grant.
type Role string

const (
	RoleDoctor  Role = "DOCTOR"
	RoleNurse   Role = "NURSE"
	RoleFinance Role = "FINANCE"
)

// Roles lists every known role.
var Roles = []Role{RoleDoctor, RoleNurse, RoleFinance}

// ParseRole accepts a role name in any case.
func ParseRole(raw string) (Role, error) {
	r := Role(strings.ToUpper(strings.TrimSpace(raw)))
	if !r.Valid() {
		return "", fmt.Errorf("%w: %q", apperrors.ErrInvalidRole, raw)
	}
	return r, nil
}

// Valid reports whether r is one of the known roles.
func (r Role) Valid() bool {
	switch r {
	case RoleDoctor, RoleNurse, RoleFinance:
		return true
	}
	return false
}

func (r Role) String() string { return string(r) }

// ProofTokenSize is the length in bytes of a proof token.
const ProofTokenSize = 32

// ProofToken is the opaque value a holder presents alongside a role check.
type ProofToken [ProofTokenSize]byte

// ParseProofToken decodes a 64 character hex token, with or without 0x prefix.
func ParseProofToken(raw string) (ProofToken, error) {
	var tok ProofToken
	s := strings.TrimSpace(raw)
	s = strings.TrimPrefix(strings.TrimPrefix(s, "0x"), "0X")
	if len(s) != hex.EncodedLen(ProofTokenSize) {
		return tok, fmt.Errorf("%w: proof token must be %d hex characters", apperrors.ErrInvalidInput, hex.EncodedLen(ProofTokenSize))
	}
	if _, err := hex.Decode(tok[:], []byte(s)); err != nil {
		return tok, fmt.Errorf("%w: proof token: %v", apperrors.ErrInvalidInput, err)
	}
	return tok, nil
}

// DeriveProofToken hashes secret with legacy Keccak-256, the same digest wallet
// tooling produces for keccak256(utf8(secret)).
func DeriveProofToken(secret string) ProofToken {
	var tok ProofToken
	h := sha3.NewLegacyKeccak256()
	h.Write([]byte(secret))
	h.Sum(tok[:0])
	return tok
}

func (t ProofToken) String() string {
	return "0x" + hex.EncodeToString(t[:])
}

// MarshalText renders the token as 0x-prefixed hex.
func (t ProofToken) MarshalText() ([]byte, error) {
	return []byte(t.String()), nil
}

// UnmarshalText parses a hex token.
func (t *ProofToken) UnmarshalText(b []byte) error {
	tok, err := ParseProofToken(string(b))
	if err != nil {
		return err
	}
	*t = tok
	return nil
}

// Credential is a time-bound role grant. One credential exists per (holder, role).
type Credential struct {
	Holder     account.Address
	Role       Role
	ProofToken ProofToken
	IssuedAt   time.Time
	ExpiresAt  time.Time
	Revoked    bool
}

// ActiveAt reports whether the credential grants its role at now.
func (c Credential) ActiveAt(now time.Time) bool {
	return !c.Revoked && now.Before(c.ExpiresAt)
}

// IssueInput carries the fields of a credential issuance.
type IssueInput struct {
	Holder          account.Address
	Role            Role
	ProofToken      ProofToken
	ValiditySeconds int64
}
