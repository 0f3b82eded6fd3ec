package exchange

import (
	"context"
	"errors"
	"fmt"

	"github.com/ethereum/go-ethereum/common"

	"github.com/uhyunpark/tokenex/pkg/app/core/events"
	"github.com/uhyunpark/tokenex/pkg/app/core/ledger"
	"github.com/uhyunpark/tokenex/pkg/app/core/orderbook"
	"github.com/uhyunpark/tokenex/pkg/storage"
)

// txn collects the effects of one operation until commit.
type txn struct {
	now        int64
	batch      *ledger.Batch
	created    *orderbook.Order
	transition *orderbook.Order // order with its new terminal flag set
	orderID    uint64
	events     []events.Event
	nonce      *nonceBump

	// external is set once value has moved outside the ledger; from then on
	// the operation cannot be abandoned.
	external bool
}

type nonceBump struct {
	user  common.Address
	nonce uint64
}

func (t *txn) emit(evs ...events.Event) {
	t.events = append(t.events, evs...)
}

// run executes fn under the apply lock and commits its effects in the order
// persist, apply in memory, publish.
func (e *Exchange) run(ctx context.Context, fn func(*txn) error) (*Receipt, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	e.mu.Lock()
	defer e.mu.Unlock()

	t := &txn{now: e.clock.Now().Unix(), batch: ledger.NewBatch()}
	if err := fn(t); err != nil {
		return nil, err
	}

	var rows []ledger.Row
	var err error
	if !t.batch.Empty() {
		// fn validated the batch already; nothing else writes the ledger
		if rows, err = e.ledger.Preview(t.batch); err != nil {
			return nil, err
		}
	}

	last := e.seq.Stamp(t.events)
	count := e.orders.Count()
	if t.created != nil {
		count = t.created.ID
	}

	var storeErr error
	if e.store != nil {
		cs := storage.ChangeSet{
			Rows:       rows,
			Events:     t.events,
			OrderCount: count,
			Seq:        last,
		}
		if t.created != nil {
			cs.Orders = append(cs.Orders, *t.created)
		}
		if t.transition != nil {
			cs.Orders = append(cs.Orders, *t.transition)
		}
		if t.nonce != nil {
			cs.Nonces = map[common.Address]uint64{t.nonce.user: t.nonce.nonce}
		}
		if e.blobs != nil {
			if cs.Blobs, err = e.blobs.ExportBlobs(); err != nil {
				storeErr = err
			}
		}
		if storeErr == nil {
			storeErr = e.store.Commit(cs)
		}
		if storeErr != nil {
			if !t.external {
				return nil, fmt.Errorf("%w: %v", ErrStorage, storeErr)
			}
			e.log.Errorw("commit_failed_after_transfer",
				"order_id", t.orderID,
				"events", len(t.events),
				"err", storeErr,
			)
		}
	}

	if err := e.applyMemory(t, rows); err != nil {
		// the registry checks ran under the same lock, so this is a bug
		e.log.Errorw("apply_failed", "order_id", t.orderID, "err", err)
		return nil, err
	}
	e.seq.Advance(last)

	for _, ev := range t.events {
		e.logEvent(ev)
	}
	if e.bus != nil && len(t.events) > 0 {
		e.bus.Publish(t.events...)
	}

	r := newReceipt(t.orderID, t.events)
	if storeErr != nil {
		return r, fmt.Errorf("%w: %v", ErrStorage, storeErr)
	}
	return r, nil
}

func (e *Exchange) applyMemory(t *txn, rows []ledger.Row) error {
	e.ledger.Apply(rows)
	if t.created != nil {
		if err := e.orders.Insert(*t.created); err != nil {
			return err
		}
	}
	if o := t.transition; o != nil {
		var err error
		switch {
		case o.Filled:
			_, err = e.orders.MarkFilled(o.ID)
		case o.Cancelled:
			_, err = e.orders.MarkCancelled(o.ID)
		default:
			err = errors.New("order transition without terminal flag")
		}
		if err != nil {
			return err
		}
	}
	if t.nonce != nil {
		e.nonces[t.nonce.user] = t.nonce.nonce
	}
	return nil
}

func (e *Exchange) logEvent(ev events.Event) {
	switch {
	case ev.Balance != nil:
		e.log.Infow(snake(ev.Kind),
			"seq", ev.Seq,
			"asset", ev.Balance.Asset.String(),
			"user", ev.Balance.User.Hex(),
			"amount", ev.Balance.Amount.Dec(),
			"balance", ev.Balance.Balance.Dec(),
		)
	case ev.Order != nil:
		e.log.Infow(snake(ev.Kind),
			"seq", ev.Seq,
			"id", ev.Order.ID,
			"maker", ev.Order.Maker.Hex(),
			"taker", ev.Order.Taker.Hex(),
		)
	default:
		e.log.Infow(snake(ev.Kind), "seq", ev.Seq)
	}
}

func snake(k events.Kind) string {
	switch k {
	case events.KindDeposited:
		return "deposited"
	case events.KindWithdrawn:
		return "withdrawn"
	case events.KindOrderCreated:
		return "order_created"
	case events.KindOrderCancelled:
		return "order_cancelled"
	case events.KindOrderFilled:
		return "order_filled"
	case events.KindTokensPurchased:
		return "tokens_purchased"
	case events.KindTokensSold:
		return "tokens_sold"
	}
	return string(k)
}
