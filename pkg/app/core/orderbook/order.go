// Package orderbook is the flat order registry: append-only, exact-id addressed,
// with no matching between resting orders.
package orderbook

import (
	"github.com/ethereum/go-ethereum/common"
	"github.com/holiman/uint256"

	"github.com/uhyunpark/tokenex/pkg/app/core/asset"
)

// Status represents the lifecycle state of an order
type Status int8

const (
	StatusAny Status = iota - 1
	StatusOpen
	StatusFilled
	StatusCancelled
)

func (s Status) String() string {
	switch s {
	case StatusAny:
		return "any"
	case StatusOpen:
		return "open"
	case StatusFilled:
		return "filled"
	case StatusCancelled:
		return "cancelled"
	default:
		return "unknown"
	}
}

// ParseStatus maps "open", "filled", "cancelled" and "" (any).
func ParseStatus(s string) (Status, bool) {
	switch s {
	case "", "any", "all":
		return StatusAny, true
	case "open":
		return StatusOpen, true
	case "filled":
		return StatusFilled, true
	case "cancelled", "canceled":
		return StatusCancelled, true
	}
	return StatusAny, false
}

// Order is a maker's standing offer: give AmountGive of TokenGive in exchange
// for AmountGet of TokenGet. Trade terms never change after creation; only one
// of Filled / Cancelled is ever set, and only once.
type Order struct {
	ID         uint64
	Maker      common.Address
	TokenGet   asset.Asset
	AmountGet  *uint256.Int
	TokenGive  asset.Asset
	AmountGive *uint256.Int
	Timestamp  int64 // Unix seconds

	Filled    bool
	Cancelled bool
}

func (o *Order) Status() Status {
	switch {
	case o.Filled:
		return StatusFilled
	case o.Cancelled:
		return StatusCancelled
	default:
		return StatusOpen
	}
}

// IsClosed returns true if order is no longer active
func (o *Order) IsClosed() bool { return o.Filled || o.Cancelled }

// Clone copies the order including its amounts.
func (o Order) Clone() Order {
	o.AmountGet = o.AmountGet.Clone()
	o.AmountGive = o.AmountGive.Clone()
	return o
}
