package token

import (
	"encoding/json"
	"fmt"

	"github.com/ethereum/go-ethereum/common"
	"github.com/holiman/uint256"
)

const (
	BlobTokens = "tokens"
	BlobNative = "native"
)

type tokenState struct {
	Address     common.Address                                     `json:"address"`
	Name        string                                             `json:"name"`
	Symbol      string                                             `json:"symbol"`
	Decimals    uint8                                              `json:"decimals"`
	TotalSupply *uint256.Int                                       `json:"totalSupply"`
	Balances    map[common.Address]*uint256.Int                    `json:"balances"`
	Allowances  map[common.Address]map[common.Address]*uint256.Int `json:"allowances"`
}

// State bundles the collaborator contracts so the node can persist them
// alongside the exchange.
type State struct {
	Tokens *Registry
	Native *NativeBank
}

// ExportBlobs serializes every token and the native bank
func (s *State) ExportBlobs() (map[string][]byte, error) {
	tokens := make([]tokenState, 0)
	for _, t := range s.Tokens.Tokens() {
		t.mu.RLock()
		ts := tokenState{
			Address:     t.Address,
			Name:        t.Name,
			Symbol:      t.Symbol,
			Decimals:    t.Decimals,
			TotalSupply: t.totalSupply.Clone(),
			Balances:    cloneBalances(t.balances),
			Allowances:  make(map[common.Address]map[common.Address]*uint256.Int, len(t.allowances)),
		}
		for owner, m := range t.allowances {
			ts.Allowances[owner] = cloneBalances(m)
		}
		t.mu.RUnlock()
		tokens = append(tokens, ts)
	}
	tokensRaw, err := json.Marshal(tokens)
	if err != nil {
		return nil, fmt.Errorf("encode tokens: %w", err)
	}

	s.Native.mu.RLock()
	native := cloneBalances(s.Native.balances)
	s.Native.mu.RUnlock()
	nativeRaw, err := json.Marshal(native)
	if err != nil {
		return nil, fmt.Errorf("encode native bank: %w", err)
	}
	return map[string][]byte{BlobTokens: tokensRaw, BlobNative: nativeRaw}, nil
}

// ImportBlobs replaces state with previously exported blobs. Tokens already
// registered are restored in place so existing references stay valid.
// Missing blobs leave the corresponding state untouched.
func (s *State) ImportBlobs(blobs map[string][]byte) error {
	if raw, ok := blobs[BlobTokens]; ok {
		var tokens []tokenState
		if err := json.Unmarshal(raw, &tokens); err != nil {
			return fmt.Errorf("decode tokens: %w", err)
		}
		for _, ts := range tokens {
			if t, err := s.Tokens.Get(ts.Address); err == nil {
				t.restore(ts)
				continue
			}
			t := &Token{Address: ts.Address}
			t.restore(ts)
			s.Tokens.Register(t)
		}
	}
	if raw, ok := blobs[BlobNative]; ok {
		balances := make(map[common.Address]*uint256.Int)
		if err := json.Unmarshal(raw, &balances); err != nil {
			return fmt.Errorf("decode native bank: %w", err)
		}
		s.Native.mu.Lock()
		s.Native.balances = balances
		s.Native.mu.Unlock()
	}
	return nil
}

func (t *Token) restore(ts tokenState) {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.Name, t.Symbol, t.Decimals = ts.Name, ts.Symbol, ts.Decimals
	t.totalSupply = ts.TotalSupply
	t.balances = ts.Balances
	t.allowances = ts.Allowances
	if t.totalSupply == nil {
		t.totalSupply = new(uint256.Int)
	}
	if t.balances == nil {
		t.balances = make(map[common.Address]*uint256.Int)
	}
	if t.allowances == nil {
		t.allowances = make(map[common.Address]map[common.Address]*uint256.Int)
	}
}

func cloneBalances(m map[common.Address]*uint256.Int) map[common.Address]*uint256.Int {
	out := make(map[common.Address]*uint256.Int, len(m))
	for k, v := range m {
		out[k] = v.Clone()
	}
	return out
}
