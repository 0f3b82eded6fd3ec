// Package asset defines asset identifiers and fixed-point amounts used by the ledger.
package asset

import (
	"errors"
	"fmt"
	"strings"

	"github.com/ethereum/go-ethereum/common"
)

var ErrBadAsset = errors.New("invalid asset identifier")

// Asset identifies either the native base asset or a fungible-token contract.
// The zero value is the native asset (the zero address, as in the original
// ETHER_ADDRESS convention). Asset is comparable and usable as a map key.
type Asset struct {
	addr common.Address
}

// Native is the distinguished native base asset.
var Native = Asset{}

// Token returns the asset for a token contract address.
func Token(addr common.Address) Asset { return Asset{addr: addr} }

func (a Asset) IsNative() bool           { return a.addr == (common.Address{}) }
func (a Asset) Address() common.Address { return a.addr }

// Hex always renders the address form, native included.
func (a Asset) Hex() string { return a.addr.Hex() }

func (a Asset) String() string {
	if a.IsNative() {
		return "native"
	}
	return a.addr.Hex()
}

// Parse accepts a hex address or the aliases "native" / "eth".
func Parse(s string) (Asset, error) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "native", "eth", "ether":
		return Native, nil
	}
	if !common.IsHexAddress(s) {
		return Asset{}, fmt.Errorf("%w: %q", ErrBadAsset, s)
	}
	return Token(common.HexToAddress(s)), nil
}

func (a Asset) MarshalText() ([]byte, error) { return []byte(a.addr.Hex()), nil }

func (a *Asset) UnmarshalText(b []byte) error {
	parsed, err := Parse(string(b))
	if err != nil {
		return err
	}
	*a = parsed
	return nil
}
