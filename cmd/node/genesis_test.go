package main

import (
	"testing"

	"github.com/uhyunpark/tokenex/params"
	"github.com/uhyunpark/tokenex/pkg/app/core/asset"
)

func TestGenesis(t *testing.T) {
	cfg := params.Default()
	state, tok, err := genesis(cfg)
	if err != nil {
		t.Fatal(err)
	}

	owner := cfg.Genesis.Accounts[0]
	if !tok.BalanceOf(owner).Eq(asset.Units("500000")) {
		t.Errorf("owner tokens = %s", tok.BalanceOf(owner).Dec())
	}
	if !tok.BalanceOf(cfg.Swap.Address).Eq(asset.Units("500000")) {
		t.Errorf("swap reserve = %s", tok.BalanceOf(cfg.Swap.Address).Dec())
	}
	for _, a := range cfg.Genesis.Accounts {
		if !state.Native.BalanceOf(a).Eq(asset.Units("100")) {
			t.Errorf("native of %s = %s", a.Hex(), state.Native.BalanceOf(a).Dec())
		}
	}
	if got, err := state.Tokens.Get(cfg.Token.Address); err != nil || got != tok {
		t.Errorf("token not registered: %v", err)
	}
}

func TestGenesisRejectsBadAmounts(t *testing.T) {
	cfg := params.Default()
	cfg.Swap.Reserve = "2000000"
	if _, _, err := genesis(cfg); err == nil {
		t.Error("reserve larger than supply accepted")
	}

	cfg = params.Default()
	cfg.Token.Supply = "lots"
	if _, _, err := genesis(cfg); err == nil {
		t.Error("bad supply accepted")
	}
}
