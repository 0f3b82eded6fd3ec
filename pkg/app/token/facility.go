package token

import (
	"context"

	"github.com/ethereum/go-ethereum/common"
	"github.com/holiman/uint256"
)

// Facility lets the exchange move tokens as the custody address.
type Facility struct {
	Registry *Registry
	Custody  common.Address
}

// TransferFrom pulls tokens the user approved to the custody address
func (f *Facility) TransferFrom(_ context.Context, token, from, to common.Address, amount *uint256.Int) error {
	t, err := f.Registry.Get(token)
	if err != nil {
		return err
	}
	return t.TransferFrom(f.Custody, from, to, amount)
}

// Transfer sends custody-held tokens out
func (f *Facility) Transfer(_ context.Context, token, to common.Address, amount *uint256.Int) error {
	t, err := f.Registry.Get(token)
	if err != nil {
		return err
	}
	return t.Transfer(f.Custody, to, amount)
}

// Vault moves native value in and out of the custody address.
type Vault struct {
	Bank    *NativeBank
	Custody common.Address
}

// Collect moves value attached to a deposit into custody
func (v *Vault) Collect(_ context.Context, from common.Address, amount *uint256.Int) error {
	return v.Bank.Transfer(from, v.Custody, amount)
}

// Release pays native value out of custody
func (v *Vault) Release(_ context.Context, to common.Address, amount *uint256.Int) error {
	return v.Bank.Transfer(v.Custody, to, amount)
}

// Wallets performs user-signed collaborator actions: token approve and
// transfer on the user's behalf, and moving attached native value into
// custody.
type Wallets struct {
	Registry *Registry
	Vault    *Vault
}

func (w *Wallets) Approve(_ context.Context, token, owner, spender common.Address, amount *uint256.Int) error {
	t, err := w.Registry.Get(token)
	if err != nil {
		return err
	}
	return t.Approve(owner, spender, amount)
}

func (w *Wallets) Send(_ context.Context, token, from, to common.Address, amount *uint256.Int) error {
	t, err := w.Registry.Get(token)
	if err != nil {
		return err
	}
	return t.Transfer(from, to, amount)
}

func (w *Wallets) Collect(ctx context.Context, from common.Address, amount *uint256.Int) error {
	return w.Vault.Collect(ctx, from, amount)
}
