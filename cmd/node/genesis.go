package main

import (
	"fmt"

	"github.com/uhyunpark/tokenex/params"
	"github.com/uhyunpark/tokenex/pkg/app/core/asset"
	"github.com/uhyunpark/tokenex/pkg/app/token"
)

// genesis deploys the devnet token, funds the genesis accounts and stocks the
// swap reserve. On a restart the persisted collaborator state overwrites it.
func genesis(cfg params.Config) (*token.State, *token.Token, error) {
	supply, err := asset.ParseUnits(cfg.Token.Supply, asset.Decimals)
	if err != nil {
		return nil, nil, fmt.Errorf("token supply: %w", err)
	}
	native, err := asset.ParseUnits(cfg.Genesis.Native, asset.Decimals)
	if err != nil {
		return nil, nil, fmt.Errorf("genesis native: %w", err)
	}
	reserve, err := asset.ParseUnits(cfg.Swap.Reserve, asset.Decimals)
	if err != nil {
		return nil, nil, fmt.Errorf("swap reserve: %w", err)
	}

	owner := cfg.Genesis.Accounts[0]
	tok := token.New(cfg.Token.Address, cfg.Token.Name, cfg.Token.Symbol, uint8(asset.Decimals), supply, owner)
	if !reserve.IsZero() {
		if err := tok.Transfer(owner, cfg.Swap.Address, reserve); err != nil {
			return nil, nil, fmt.Errorf("swap reserve: %w", err)
		}
	}

	bank := token.NewNativeBank()
	for _, a := range cfg.Genesis.Accounts {
		if err := bank.Mint(a, native); err != nil {
			return nil, nil, fmt.Errorf("mint %s: %w", a.Hex(), err)
		}
	}

	reg := token.NewRegistry()
	reg.Register(tok)
	return &token.State{Tokens: reg, Native: bank}, tok, nil
}
