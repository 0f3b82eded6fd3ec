package token

import (
	"fmt"
	"sync"

	"github.com/ethereum/go-ethereum/common"
	"github.com/holiman/uint256"
)

// NativeBank tracks native value held by every address outside the exchange
// ledger (wallets, the custody account and the swap reserve).
type NativeBank struct {
	mu       sync.RWMutex
	balances map[common.Address]*uint256.Int
}

func NewNativeBank() *NativeBank {
	return &NativeBank{balances: make(map[common.Address]*uint256.Int)}
}

// Mint creates value out of thin air; only genesis and tests call it
func (b *NativeBank) Mint(to common.Address, amount *uint256.Int) error {
	b.mu.Lock()
	defer b.mu.Unlock()
	cur := balanceIn(b.balances, to)
	sum, overflow := new(uint256.Int).AddOverflow(cur, amount)
	if overflow {
		return fmt.Errorf("native balance overflow for %s", to.Hex())
	}
	b.balances[to] = sum
	return nil
}

func (b *NativeBank) BalanceOf(addr common.Address) *uint256.Int {
	b.mu.RLock()
	defer b.mu.RUnlock()
	return balanceIn(b.balances, addr)
}

func (b *NativeBank) Transfer(from, to common.Address, amount *uint256.Int) error {
	if to == (common.Address{}) {
		return fmt.Errorf("%w: zero address", ErrInvalidRecipient)
	}
	b.mu.Lock()
	defer b.mu.Unlock()
	bal := balanceIn(b.balances, from)
	if bal.Lt(amount) {
		return fmt.Errorf("%w: %s has %s native, need %s", ErrInsufficientBalance, from.Hex(), bal.Dec(), amount.Dec())
	}
	b.balances[from] = bal.Sub(bal, amount)
	dst := balanceIn(b.balances, to)
	b.balances[to] = dst.Add(dst, amount)
	return nil
}
