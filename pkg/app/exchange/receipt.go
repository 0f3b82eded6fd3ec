package exchange

import (
	"github.com/google/uuid"

	"github.com/uhyunpark/tokenex/pkg/app/core/events"
)

// Receipt reports a successful operation. OrderID is set by MakeOrder and by
// order-targeting operations.
type Receipt struct {
	ID      uuid.UUID      `json:"id"`
	OrderID uint64         `json:"orderId,omitempty"`
	Events  []events.Event `json:"events"`
}

func newReceipt(orderID uint64, evs []events.Event) *Receipt {
	if evs == nil {
		evs = []events.Event{}
	}
	return &Receipt{ID: uuid.New(), OrderID: orderID, Events: evs}
}
