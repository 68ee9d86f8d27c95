package treasury

import (
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/holiman/uint256"

	"github.com/medtreasury/medtreasury/internal/account"
	"github.com/medtreasury/medtreasury/internal/apperrors"
)

// RequestType classifies what an expense request pays for.
type RequestType uint8

const (
	TypeMedicalSupplies RequestType = iota
	TypeMedication
	TypeEquipment
	TypeOther
)

var requestTypeNames = [...]string{"MEDICAL_SUPPLIES", "MEDICATION", "EQUIPMENT", "OTHER"}

// Valid reports whether t is a known request type.
func (t RequestType) Valid() bool { return int(t) < len(requestTypeNames) }

func (t RequestType) String() string {
	if !t.Valid() {
		return "RequestType(" + strconv.Itoa(int(t)) + ")"
	}
	return requestTypeNames[t]
}

// MarshalText renders the type name.
func (t RequestType) MarshalText() ([]byte, error) {
	if !t.Valid() {
		return nil, apperrors.ErrInvalidRequestType
	}
	return []byte(t.String()), nil
}

// ParseRequestType accepts a type name in any case or its numeric code.
func ParseRequestType(raw string) (RequestType, error) {
	s := strings.ToUpper(strings.TrimSpace(raw))
	for i, name := range requestTypeNames {
		if s == name {
			return RequestType(i), nil
		}
	}
	if n, err := strconv.Atoi(s); err == nil && n >= 0 && n < len(requestTypeNames) {
		return RequestType(n), nil
	}
	return 0, fmt.Errorf("%w: %q", apperrors.ErrInvalidRequestType, raw)
}

// Status is the lifecycle state of an expense request.
type Status uint8

const (
	StatusPending Status = iota
	StatusApproved
	// StatusRejected is part of the status set but no operation produces it.
	StatusRejected
	StatusCompleted
)

var statusNames = [...]string{"PENDING", "APPROVED", "REJECTED", "COMPLETED"}

func (s Status) String() string {
	if int(s) >= len(statusNames) {
		return "Status(" + strconv.Itoa(int(s)) + ")"
	}
	return statusNames[s]
}

// MarshalText renders the status name.
func (s Status) MarshalText() ([]byte, error) {
	return []byte(s.String()), nil
}

// Approvals records which of the three sign-offs a request has collected.
type Approvals struct {
	Doctor  bool `json:"doctor_approved"`
	Nurse   bool `json:"nurse_verified"`
	Finance bool `json:"finance_approved"`
}

// Complete reports whether every sign-off is present.
func (a Approvals) Complete() bool {
	return a.Doctor && a.Nurse && a.Finance
}

// ExpenseRequest is a request to pay a vendor out of the treasury pool.
type ExpenseRequest struct {
	ID          uint64
	Requester   account.Address
	Amount      *uint256.Int
	Description string
	Type        RequestType
	Vendor      account.Address
	Status      Status
	Approvals   Approvals
	CreatedAt   time.Time
	UpdatedAt   time.Time
}

// clone returns a copy that shares no mutable state with r.
func (r ExpenseRequest) clone() ExpenseRequest {
	if r.Amount != nil {
		r.Amount = r.Amount.Clone()
	}
	return r
}

// CreateInput carries the fields of a new expense request.
type CreateInput struct {
	Amount      *uint256.Int
	Description string
	Type        RequestType
	Vendor      account.Address
}
