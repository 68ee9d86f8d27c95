package ledger

import (
	"context"

	"github.com/holiman/uint256"

	"github.com/medtreasury/medtreasury/internal/account"
)

// Transfer kinds recorded in the journal.
const (
	KindTransfer     = "transfer"
	KindTransferFrom = "transfer_from"
	KindMint         = "mint"
)

// TransferResult captures the outcome of a posting.
type TransferResult struct {
	TransactionID string
	FromBalance   *uint256.Int
	ToBalance     *uint256.Int
}

// Ledger tracks balances and allowances of a single fungible asset. The whole
// supply is minted to the deployer when the ledger is built; there is no other
// mint or burn path.
type Ledger interface {
	TotalSupply(ctx context.Context) (*uint256.Int, error)
	BalanceOf(ctx context.Context, owner account.Address) (*uint256.Int, error)
	Allowance(ctx context.Context, owner, spender account.Address) (*uint256.Int, error)
	Transfer(ctx context.Context, from, to account.Address, amount *uint256.Int) (TransferResult, error)
	Approve(ctx context.Context, owner, spender account.Address, amount *uint256.Int) error
	TransferFrom(ctx context.Context, spender, from, to account.Address, amount *uint256.Int) (TransferResult, error)
}
