package ledger

import (
	"context"
	"sync"

	"github.com/google/uuid"
	"github.com/holiman/uint256"

	"github.com/medtreasury/medtreasury/internal/account"
	"github.com/medtreasury/medtreasury/internal/apperrors"
)

type allowanceKey struct {
	owner   account.Address
	spender account.Address
}

type inMemoryLedger struct {
	mu          sync.RWMutex
	totalSupply *uint256.Int
	balances    map[account.Address]*uint256.Int
	allowances  map[allowanceKey]*uint256.Int
}

// NewInMemory creates a concurrency-safe in-memory ledger and mints supply to
// deployer.
func NewInMemory(deployer account.Address, supply *uint256.Int) Ledger {
	l := &inMemoryLedger{
		totalSupply: new(uint256.Int),
		balances:    make(map[account.Address]*uint256.Int),
		allowances:  make(map[allowanceKey]*uint256.Int),
	}
	if supply != nil && !deployer.IsNull() {
		l.totalSupply.Set(supply)
		l.balances[deployer] = supply.Clone()
	}
	return l
}

func (l *inMemoryLedger) TotalSupply(_ context.Context) (*uint256.Int, error) {
	l.mu.RLock()
	defer l.mu.RUnlock()
	return l.totalSupply.Clone(), nil
}

func (l *inMemoryLedger) BalanceOf(_ context.Context, owner account.Address) (*uint256.Int, error) {
	l.mu.RLock()
	defer l.mu.RUnlock()
	return l.balanceLocked(owner), nil
}

func (l *inMemoryLedger) Allowance(_ context.Context, owner, spender account.Address) (*uint256.Int, error) {
	l.mu.RLock()
	defer l.mu.RUnlock()
	return l.allowanceLocked(owner, spender), nil
}

func (l *inMemoryLedger) Transfer(_ context.Context, from, to account.Address, amount *uint256.Int) (TransferResult, error) {
	if amount == nil {
		return TransferResult{}, apperrors.ErrInvalidAmount
	}

	l.mu.Lock()
	defer l.mu.Unlock()
	return l.moveLocked(from, to, amount)
}

func (l *inMemoryLedger) Approve(_ context.Context, owner, spender account.Address, amount *uint256.Int) error {
	if amount == nil {
		return apperrors.ErrInvalidAmount
	}
	if owner.IsNull() || spender.IsNull() {
		return apperrors.ErrInvalidRecipient
	}

	l.mu.Lock()
	defer l.mu.Unlock()
	l.allowances[allowanceKey{owner: owner, spender: spender}] = amount.Clone()
	return nil
}

func (l *inMemoryLedger) TransferFrom(_ context.Context, spender, from, to account.Address, amount *uint256.Int) (TransferResult, error) {
	if amount == nil {
		return TransferResult{}, apperrors.ErrInvalidAmount
	}

	l.mu.Lock()
	defer l.mu.Unlock()

	allowance := l.allowanceLocked(from, spender)
	if allowance.Lt(amount) {
		return TransferResult{}, apperrors.ErrInsufficientAllowance
	}

	res, err := l.moveLocked(from, to, amount)
	if err != nil {
		return TransferResult{}, err
	}
	l.allowances[allowanceKey{owner: from, spender: spender}] = new(uint256.Int).Sub(allowance, amount)
	return res, nil
}

// moveLocked validates everything before the first write so a failed posting
// leaves no trace.
func (l *inMemoryLedger) moveLocked(from, to account.Address, amount *uint256.Int) (TransferResult, error) {
	if to.IsNull() {
		return TransferResult{}, apperrors.ErrInvalidRecipient
	}

	fromBalance := l.balanceLocked(from)
	if fromBalance.Lt(amount) {
		return TransferResult{}, apperrors.ErrInsufficientBalance
	}

	res := TransferResult{TransactionID: uuid.NewString()}
	if from == to {
		res.FromBalance = fromBalance
		res.ToBalance = fromBalance.Clone()
		return res, nil
	}

	toBalance, overflow := new(uint256.Int).AddOverflow(l.balanceLocked(to), amount)
	if overflow {
		return TransferResult{}, apperrors.ErrOverflow
	}
	fromBalance.Sub(fromBalance, amount)

	l.balances[from] = fromBalance
	l.balances[to] = toBalance

	res.FromBalance = fromBalance.Clone()
	res.ToBalance = toBalance.Clone()
	return res, nil
}

func (l *inMemoryLedger) balanceLocked(owner account.Address) *uint256.Int {
	if b, ok := l.balances[owner]; ok {
		return b.Clone()
	}
	return new(uint256.Int)
}

func (l *inMemoryLedger) allowanceLocked(owner, spender account.Address) *uint256.Int {
	if a, ok := l.allowances[allowanceKey{owner: owner, spender: spender}]; ok {
		return a.Clone()
	}
	return new(uint256.Int)
}
