package ledger

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"testing"

	"github.com/holiman/uint256"

	"github.com/medtreasury/medtreasury/internal/account"
	"github.com/medtreasury/medtreasury/internal/apperrors"
)

const (
	deployer = account.Address("deployer")
	alice    = account.Address("alice")
	bob      = account.Address("bob")
	spender  = account.Address("treasury")
)

func sumBalances(l *inMemoryLedger) *uint256.Int {
	total := new(uint256.Int)
	for _, b := range l.balances {
		total.Add(total, b)
	}
	return total
}

func TestInMemoryLedger_MintsSupplyToDeployer(t *testing.T) {
	l := NewInMemory(deployer, Units(1_000_000))
	ctx := context.Background()

	bal, err := l.BalanceOf(ctx, deployer)
	if err != nil {
		t.Fatalf("balance: %v", err)
	}
	if !bal.Eq(Units(1_000_000)) {
		t.Fatalf("expected full supply on deployer, got %s", bal.Dec())
	}
	supply, _ := l.TotalSupply(ctx)
	if !supply.Eq(bal) {
		t.Fatalf("supply %s does not match deployer balance", supply.Dec())
	}
	if other, _ := l.BalanceOf(ctx, alice); !other.IsZero() {
		t.Fatalf("unknown account should read zero, got %s", other.Dec())
	}
}

func TestInMemoryLedger_TransferMaintainsBalance(t *testing.T) {
	l := NewInMemory(deployer, uint256.NewInt(10_000))
	ctx := context.Background()

	res, err := l.Transfer(ctx, deployer, alice, uint256.NewInt(1_500))
	if err != nil {
		t.Fatalf("transfer failed: %v", err)
	}
	if res.FromBalance.Uint64() != 8_500 {
		t.Fatalf("expected from balance 8500, got %s", res.FromBalance.Dec())
	}
	if res.ToBalance.Uint64() != 1_500 {
		t.Fatalf("expected to balance 1500, got %s", res.ToBalance.Dec())
	}
	if res.TransactionID == "" {
		t.Fatal("expected a transaction id")
	}

	total := sumBalances(l.(*inMemoryLedger))
	if total.Uint64() != 10_000 {
		t.Fatalf("ledger not balanced, total=%s", total.Dec())
	}
}

func TestInMemoryLedger_TransferRejections(t *testing.T) {
	l := NewInMemory(deployer, uint256.NewInt(100))
	ctx := context.Background()

	if _, err := l.Transfer(ctx, deployer, account.Null, uint256.NewInt(1)); !errors.Is(err, apperrors.ErrInvalidRecipient) {
		t.Fatalf("expected invalid recipient, got %v", err)
	}
	if _, err := l.Transfer(ctx, deployer, account.ZeroHex, uint256.NewInt(1)); !errors.Is(err, apperrors.ErrInvalidRecipient) {
		t.Fatalf("expected invalid recipient for zero address, got %v", err)
	}
	if _, err := l.Transfer(ctx, alice, bob, uint256.NewInt(1)); !errors.Is(err, apperrors.ErrInsufficientBalance) {
		t.Fatalf("expected insufficient balance, got %v", err)
	}
	if _, err := l.Transfer(ctx, deployer, alice, uint256.NewInt(101)); !errors.Is(err, apperrors.ErrInsufficientBalance) {
		t.Fatalf("expected insufficient balance, got %v", err)
	}

	bal, _ := l.BalanceOf(ctx, deployer)
	if bal.Uint64() != 100 {
		t.Fatalf("failed transfers must not change state, balance=%s", bal.Dec())
	}
}

func TestInMemoryLedger_OverflowFailsClosed(t *testing.T) {
	max := new(uint256.Int).SetAllOne()
	l := NewInMemory(deployer, max)
	SeedBalance(l, alice, uint256.NewInt(1))
	ctx := context.Background()

	if _, err := l.Transfer(ctx, alice, deployer, uint256.NewInt(1)); !errors.Is(err, apperrors.ErrOverflow) {
		t.Fatalf("expected overflow, got %v", err)
	}
	bal, _ := l.BalanceOf(ctx, alice)
	if bal.Uint64() != 1 {
		t.Fatalf("overflowing transfer must not debit, got %s", bal.Dec())
	}
}

func TestInMemoryLedger_ApproveAndTransferFrom(t *testing.T) {
	l := NewInMemory(deployer, uint256.NewInt(1_000))
	ctx := context.Background()

	if err := l.Approve(ctx, deployer, spender, uint256.NewInt(300)); err != nil {
		t.Fatalf("approve: %v", err)
	}
	// Approve sets, it does not add.
	if err := l.Approve(ctx, deployer, spender, uint256.NewInt(250)); err != nil {
		t.Fatalf("re-approve: %v", err)
	}
	if a, _ := l.Allowance(ctx, deployer, spender); a.Uint64() != 250 {
		t.Fatalf("expected allowance 250, got %s", a.Dec())
	}

	if _, err := l.TransferFrom(ctx, spender, deployer, spender, uint256.NewInt(251)); !errors.Is(err, apperrors.ErrInsufficientAllowance) {
		t.Fatalf("expected insufficient allowance, got %v", err)
	}

	res, err := l.TransferFrom(ctx, spender, deployer, spender, uint256.NewInt(200))
	if err != nil {
		t.Fatalf("transfer from: %v", err)
	}
	if res.ToBalance.Uint64() != 200 || res.FromBalance.Uint64() != 800 {
		t.Fatalf("unexpected balances %s/%s", res.FromBalance.Dec(), res.ToBalance.Dec())
	}
	if a, _ := l.Allowance(ctx, deployer, spender); a.Uint64() != 50 {
		t.Fatalf("expected remaining allowance 50, got %s", a.Dec())
	}
}

func TestInMemoryLedger_TransferFromBalanceShortfallKeepsAllowance(t *testing.T) {
	l := NewInMemory(deployer, uint256.NewInt(10))
	ctx := context.Background()
	if err := l.Approve(ctx, alice, spender, uint256.NewInt(500)); err != nil {
		t.Fatalf("approve: %v", err)
	}

	if _, err := l.TransferFrom(ctx, spender, alice, bob, uint256.NewInt(100)); !errors.Is(err, apperrors.ErrInsufficientBalance) {
		t.Fatalf("expected insufficient balance, got %v", err)
	}
	if a, _ := l.Allowance(ctx, alice, spender); a.Uint64() != 500 {
		t.Fatalf("allowance must be untouched after failure, got %s", a.Dec())
	}
}

func TestInMemoryLedger_ConcurrentTransfers(t *testing.T) {
	l := NewInMemory(deployer, uint256.NewInt(100_000))
	ctx := context.Background()
	ledgerImpl := l.(*inMemoryLedger)

	const workers = 10
	amount := uint256.NewInt(500)

	var wg sync.WaitGroup
	for i := 0; i < workers; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			to := account.Address(fmt.Sprintf("wallet-%d", i%3))
			if _, err := l.Transfer(ctx, deployer, to, amount); err != nil {
				t.Errorf("transfer %d failed: %v", i, err)
			}
		}(i)
	}
	wg.Wait()

	total := sumBalances(ledgerImpl)
	if total.Uint64() != 100_000 {
		t.Fatalf("ledger not balanced after concurrency, total=%s", total.Dec())
	}
	bal, _ := l.BalanceOf(ctx, deployer)
	if bal.Uint64() != 95_000 {
		t.Fatalf("expected deployer balance 95000, got %s", bal.Dec())
	}
}
