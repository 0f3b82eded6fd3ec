package p2p

import (
	"context"
	"sort"
	"sync"

	"github.com/uhyunpark/tokenex/pkg/app/core/events"
)

// OrderWatcher tracks open orders seen in creation notifications from
// other nodes, dropping them when a cancel or fill notification arrives.
type OrderWatcher struct {
	mu     sync.RWMutex
	open   map[uint64]events.OrderInfo
	closed map[uint64]bool
	seen   uint64
}

func NewOrderWatcher() *OrderWatcher {
	return &OrderWatcher{
		open:   make(map[uint64]events.OrderInfo),
		closed: make(map[uint64]bool),
	}
}

// Handle is a gossip Handler
func (w *OrderWatcher) Handle(_ context.Context, ev events.Event) {
	if !ev.IsOrder() || ev.Order == nil {
		return
	}
	w.mu.Lock()
	defer w.mu.Unlock()
	w.seen = max(w.seen, ev.Seq)

	id := ev.Order.ID
	switch ev.Kind {
	case events.KindOrderCreated:
		// a late creation notice must not reopen a closed order
		if !w.closed[id] {
			w.open[id] = *ev.Order
		}
	case events.KindOrderCancelled, events.KindOrderFilled:
		delete(w.open, id)
		w.closed[id] = true
	}
}

// Open returns the known open orders by ascending id
func (w *OrderWatcher) Open() []events.OrderInfo {
	w.mu.RLock()
	defer w.mu.RUnlock()
	out := make([]events.OrderInfo, 0, len(w.open))
	for _, o := range w.open {
		out = append(out, o)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out
}

// LastSeq is the highest sequence number observed
func (w *OrderWatcher) LastSeq() uint64 {
	w.mu.RLock()
	defer w.mu.RUnlock()
	return w.seen
}
