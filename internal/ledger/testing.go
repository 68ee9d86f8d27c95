package ledger

import (
	"github.com/holiman/uint256"

	"github.com/medtreasury/medtreasury/internal/account"
)

// Units is a test helper returning n whole tokens in base units.
func Units(n uint64) *uint256.Int {
	scale := new(uint256.Int).Exp(uint256.NewInt(10), uint256.NewInt(DefaultDecimals))
	return new(uint256.Int).Mul(uint256.NewInt(n), scale)
}

// SeedBalance overwrites a balance on the in-memory ledger, adjusting total
// supply so conservation still holds. It is a no-op on other backends.
func SeedBalance(l Ledger, owner account.Address, amount *uint256.Int) {
	if mem, ok := l.(*inMemoryLedger); ok {
		mem.mu.Lock()
		defer mem.mu.Unlock()
		if prev, exists := mem.balances[owner]; exists {
			mem.totalSupply.Sub(mem.totalSupply, prev)
		}
		mem.balances[owner] = amount.Clone()
		mem.totalSupply.Add(mem.totalSupply, amount)
	}
}
