package api

import (
	"github.com/holiman/uint256"

	"github.com/uhyunpark/tokenex/pkg/app/core/asset"
	"github.com/uhyunpark/tokenex/pkg/app/core/events"
	"github.com/uhyunpark/tokenex/pkg/app/core/orderbook"
)

// API response types for REST endpoints and WebSocket messages.
// Amounts are base-unit decimal strings; Formatted fields carry the 18-decimal rendering.

// ExchangeInfo is the fixed configuration plus a few live counters
type ExchangeInfo struct {
	FeeAccount string `json:"feeAccount"`
	FeePercent uint64 `json:"feePercent"`
	Custody    string `json:"custody"`
	OrderCount uint64 `json:"orderCount"`
	Seq        uint64 `json:"seq"`
	StateHash  string `json:"stateHash"`
}

// BalanceInfo is an exchange-ledger balance
type BalanceInfo struct {
	Asset     string `json:"asset"`
	Address   string `json:"address"`
	Balance   string `json:"balance"`
	Formatted string `json:"formatted"`
}

// TokenInfo describes a deployed token
type TokenInfo struct {
	Address     string `json:"address"`
	Name        string `json:"name"`
	Symbol      string `json:"symbol"`
	Decimals    uint8  `json:"decimals"`
	TotalSupply string `json:"totalSupply"`
}

// WalletBalance is a balance held outside the exchange (token or native wallet)
type WalletBalance struct {
	Token     string `json:"token,omitempty"`
	Symbol    string `json:"symbol,omitempty"`
	Address   string `json:"address"`
	Balance   string `json:"balance"`
	Formatted string `json:"formatted"`
}

// NonceInfo is the last accepted signed-action nonce of an account
type NonceInfo struct {
	Address string `json:"address"`
	Nonce   uint64 `json:"nonce"`
	Next    uint64 `json:"next"`
}

// OrderInfo is a registry entry
type OrderInfo struct {
	ID         uint64 `json:"id"`
	Maker      string `json:"maker"`
	TokenGet   string `json:"tokenGet"`
	AmountGet  string `json:"amountGet"`
	TokenGive  string `json:"tokenGive"`
	AmountGive string `json:"amountGive"`
	Timestamp  int64  `json:"timestamp"`
	Status     string `json:"status"`
}

// ErrorResponse carries a stable error code and a human message
type ErrorResponse struct {
	Error   string `json:"error"`
	Message string `json:"message,omitempty"`
}

// ==============================
// WebSocket Message Types
// ==============================

// WSSubscribeRequest is sent by clients: {"op":"subscribe","channels":["orders","account:0x..."]}
type WSSubscribeRequest struct {
	Op       string   `json:"op"`
	Channels []string `json:"channels"`
}

// WSMessage wraps an event pushed to subscribers
type WSMessage struct {
	Channel string       `json:"channel"`
	Event   events.Event `json:"event"`
}

func orderInfo(o orderbook.Order) OrderInfo {
	return OrderInfo{
		ID:         o.ID,
		Maker:      o.Maker.Hex(),
		TokenGet:   o.TokenGet.Hex(),
		AmountGet:  o.AmountGet.Dec(),
		TokenGive:  o.TokenGive.Hex(),
		AmountGive: o.AmountGive.Dec(),
		Timestamp:  o.Timestamp,
		Status:     o.Status().String(),
	}
}

func formatted(v *uint256.Int) string {
	return asset.FormatUnits(v, asset.Decimals)
}
