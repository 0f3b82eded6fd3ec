// Package events defines the exchange notifications, their sequence numbering
// and the bus that fans them out to transports.
package events

import (
	"github.com/ethereum/go-ethereum/common"
	"github.com/holiman/uint256"

	"github.com/uhyunpark/tokenex/pkg/app/core/asset"
	"github.com/uhyunpark/tokenex/pkg/app/core/orderbook"
)

type Kind string

const (
	KindDeposited       Kind = "Deposited"
	KindWithdrawn       Kind = "Withdrawn"
	KindOrderCreated    Kind = "OrderCreated"
	KindOrderCancelled  Kind = "OrderCancelled"
	KindOrderFilled     Kind = "OrderFilled"
	KindTokensPurchased Kind = "TokensPurchased"
	KindTokensSold      Kind = "TokensSold"
)

// Event is one notification. Exactly one payload is set, matching Kind.
type Event struct {
	Seq       uint64 `json:"seq"`
	Kind      Kind   `json:"kind"`
	Timestamp int64  `json:"timestamp"`

	Balance *BalanceChange `json:"balance,omitempty"`
	Order   *OrderInfo     `json:"order,omitempty"`
	Swap    *SwapInfo      `json:"swap,omitempty"`
}

// BalanceChange is the payload of Deposited and Withdrawn.
type BalanceChange struct {
	Asset   asset.Asset    `json:"asset"`
	User    common.Address `json:"user"`
	Amount  *uint256.Int   `json:"amount"`
	Balance *uint256.Int   `json:"balance"` // ledger balance after the change
}

// OrderInfo is the payload of the order kinds. Taker is only set on fills.
type OrderInfo struct {
	ID         uint64         `json:"id"`
	Maker      common.Address `json:"maker"`
	TokenGet   asset.Asset    `json:"tokenGet"`
	AmountGet  *uint256.Int   `json:"amountGet"`
	TokenGive  asset.Asset    `json:"tokenGive"`
	AmountGive *uint256.Int   `json:"amountGive"`
	Taker      common.Address `json:"taker,omitzero"`
	Timestamp  int64          `json:"timestamp"`
}

// SwapInfo is the payload of TokensPurchased and TokensSold.
type SwapInfo struct {
	Account common.Address `json:"account"`
	Token   common.Address `json:"token"`
	Amount  *uint256.Int   `json:"amount"`
	Rate    uint64         `json:"rate"`
}

// Deposited and the other constructors clone their amounts, which must be
// non-nil.
func Deposited(a asset.Asset, user common.Address, amount, balance *uint256.Int, ts int64) Event {
	return Event{Kind: KindDeposited, Timestamp: ts, Balance: &BalanceChange{
		Asset: a, User: user, Amount: amount.Clone(), Balance: balance.Clone(),
	}}
}

func Withdrawn(a asset.Asset, user common.Address, amount, balance *uint256.Int, ts int64) Event {
	return Event{Kind: KindWithdrawn, Timestamp: ts, Balance: &BalanceChange{
		Asset: a, User: user, Amount: amount.Clone(), Balance: balance.Clone(),
	}}
}

func orderInfo(o orderbook.Order, ts int64) *OrderInfo {
	return &OrderInfo{
		ID:         o.ID,
		Maker:      o.Maker,
		TokenGet:   o.TokenGet,
		AmountGet:  o.AmountGet.Clone(),
		TokenGive:  o.TokenGive,
		AmountGive: o.AmountGive.Clone(),
		Timestamp:  ts,
	}
}

// OrderCreated carries the order's own creation timestamp.
func OrderCreated(o orderbook.Order) Event {
	return Event{Kind: KindOrderCreated, Timestamp: o.Timestamp, Order: orderInfo(o, o.Timestamp)}
}

func OrderCancelled(o orderbook.Order, ts int64) Event {
	return Event{Kind: KindOrderCancelled, Timestamp: ts, Order: orderInfo(o, ts)}
}

func OrderFilled(o orderbook.Order, taker common.Address, ts int64) Event {
	info := orderInfo(o, ts)
	info.Taker = taker
	return Event{Kind: KindOrderFilled, Timestamp: ts, Order: info}
}

func TokensPurchased(account, token common.Address, amount *uint256.Int, rate uint64, ts int64) Event {
	return Event{Kind: KindTokensPurchased, Timestamp: ts, Swap: &SwapInfo{
		Account: account, Token: token, Amount: amount.Clone(), Rate: rate,
	}}
}

func TokensSold(account, token common.Address, amount *uint256.Int, rate uint64, ts int64) Event {
	return Event{Kind: KindTokensSold, Timestamp: ts, Swap: &SwapInfo{
		Account: account, Token: token, Amount: amount.Clone(), Rate: rate,
	}}
}

// Accounts lists the users an event concerns, used for per-account routing.
func (e Event) Accounts() []common.Address {
	switch {
	case e.Balance != nil:
		return []common.Address{e.Balance.User}
	case e.Order != nil:
		if e.Order.Taker != (common.Address{}) && e.Order.Taker != e.Order.Maker {
			return []common.Address{e.Order.Maker, e.Order.Taker}
		}
		return []common.Address{e.Order.Maker}
	case e.Swap != nil:
		return []common.Address{e.Swap.Account}
	}
	return nil
}

// IsOrder returns true for the three order lifecycle kinds.
func (e Event) IsOrder() bool {
	return e.Kind == KindOrderCreated || e.Kind == KindOrderCancelled || e.Kind == KindOrderFilled
}
