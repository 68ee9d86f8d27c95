package events

import (
	"context"
	"time"
)

// Names of the emitted notifications.
const (
	NameCredentialIssued     = "CredentialIssued"
	NameCredentialRevoked    = "CredentialRevoked"
	NameIssuerAdded          = "IssuerAdded"
	NameTreasuryFunded       = "TreasuryFunded"
	NameRequestCreated       = "RequestCreated"
	NameRequestApproved      = "RequestApproved"
	NameRequestFullyApproved = "RequestFullyApproved"
	NameFundsReleased        = "FundsReleased"
)

// Event is an observable notification emitted once an operation has applied.
type Event interface {
	Name() string
}

// Publisher delivers events to downstream systems.
type Publisher interface {
	Publish(ctx context.Context, event Event) error
}

type CredentialIssued struct {
	Holder    string    `json:"holder"`
	Role      string    `json:"role"`
	ExpiresAt time.Time `json:"expires_at"`
}

type CredentialRevoked struct {
	Holder string `json:"holder"`
	Role   string `json:"role"`
}

type IssuerAdded struct {
	Account string `json:"account"`
}

type TreasuryFunded struct {
	Funder string `json:"funder"`
	Amount string `json:"amount"`
}

type RequestCreated struct {
	ID        uint64 `json:"id"`
	Requester string `json:"requester"`
	Amount    string `json:"amount"`
	Vendor    string `json:"vendor"`
}

type RequestApproved struct {
	ID   uint64 `json:"id"`
	Role string `json:"role"`
}

// RequestFullyApproved is emitted once, by the approval that sets the last flag.
type RequestFullyApproved struct {
	ID uint64 `json:"id"`
}

type FundsReleased struct {
	ID     uint64 `json:"id"`
	Vendor string `json:"vendor"`
	Amount string `json:"amount"`
}

func (CredentialIssued) Name() string     { return NameCredentialIssued }
func (CredentialRevoked) Name() string    { return NameCredentialRevoked }
func (IssuerAdded) Name() string          { return NameIssuerAdded }
func (TreasuryFunded) Name() string       { return NameTreasuryFunded }
func (RequestCreated) Name() string       { return NameRequestCreated }
func (RequestApproved) Name() string      { return NameRequestApproved }
func (RequestFullyApproved) Name() string { return NameRequestFullyApproved }
func (FundsReleased) Name() string        { return NameFundsReleased }
