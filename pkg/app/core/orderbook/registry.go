package orderbook

import (
	"errors"
	"fmt"
	"sort"
	"sync"

	"github.com/ethereum/go-ethereum/common"
	"github.com/holiman/uint256"

	"github.com/uhyunpark/tokenex/pkg/app/core/asset"
)

var (
	ErrOrderNotFound    = errors.New("order not found")
	ErrUnauthorized     = errors.New("caller is not the order maker")
	ErrAlreadyFilled    = errors.New("order already filled")
	ErrAlreadyCancelled = errors.New("order already cancelled")
	ErrOutOfSequence    = errors.New("order id out of sequence")
)

// Registry stores every order ever made. Ids start at 1 and are never reused.
type Registry struct {
	mu     sync.RWMutex
	orders map[uint64]*Order
	count  uint64
}

func NewRegistry() *Registry {
	return &Registry{orders: make(map[uint64]*Order)}
}

// Restore loads orders read back from storage. The counter resumes after the
// highest id seen.
func (r *Registry) Restore(orders []Order) {
	r.mu.Lock()
	defer r.mu.Unlock()
	for i := range orders {
		o := orders[i].Clone()
		r.orders[o.ID] = &o
		if o.ID > r.count {
			r.count = o.ID
		}
	}
}

// Next builds the order that the following Insert will accept. It does not
// reserve the id. Both amounts must be non-nil.
func (r *Registry) Next(maker common.Address, tokenGet asset.Asset, amountGet *uint256.Int,
	tokenGive asset.Asset, amountGive *uint256.Int, ts int64) Order {
	r.mu.RLock()
	id := r.count + 1
	r.mu.RUnlock()
	return Order{
		ID:         id,
		Maker:      maker,
		TokenGet:   tokenGet,
		AmountGet:  amountGet.Clone(),
		TokenGive:  tokenGive,
		AmountGive: amountGive.Clone(),
		Timestamp:  ts,
	}
}

// Insert appends an order built by Next.
func (r *Registry) Insert(o Order) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if o.ID != r.count+1 {
		return fmt.Errorf("%w: got %d, next is %d", ErrOutOfSequence, o.ID, r.count+1)
	}
	c := o.Clone()
	r.orders[c.ID] = &c
	r.count = c.ID
	return nil
}

func (r *Registry) Count() uint64 {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return r.count
}

func (r *Registry) Get(id uint64) (Order, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	o, ok := r.orders[id]
	if !ok {
		return Order{}, false
	}
	return o.Clone(), true
}

// CheckFillable returns the order if it exists and is still open.
func (r *Registry) CheckFillable(id uint64) (Order, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	o, err := r.lookupOpen(id)
	if err != nil {
		return Order{}, err
	}
	return o.Clone(), nil
}

// CheckCancellable additionally requires caller to be the maker.
func (r *Registry) CheckCancellable(id uint64, caller common.Address) (Order, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	o, ok := r.orders[id]
	if !ok {
		return Order{}, fmt.Errorf("%w: %d", ErrOrderNotFound, id)
	}
	if o.Maker != caller {
		return Order{}, fmt.Errorf("%w: order %d belongs to %s", ErrUnauthorized, id, o.Maker.Hex())
	}
	if _, err := r.lookupOpen(id); err != nil {
		return Order{}, err
	}
	return o.Clone(), nil
}

func (r *Registry) lookupOpen(id uint64) (*Order, error) {
	o, ok := r.orders[id]
	if !ok {
		return nil, fmt.Errorf("%w: %d", ErrOrderNotFound, id)
	}
	if !o.IsClosed() {
		return o, nil
	}
	if o.Filled {
		return nil, fmt.Errorf("%w: %d", ErrAlreadyFilled, id)
	}
	return nil, fmt.Errorf("%w: %d", ErrAlreadyCancelled, id)
}

// MarkFilled moves an open order to filled.
func (r *Registry) MarkFilled(id uint64) (Order, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	o, err := r.lookupOpen(id)
	if err != nil {
		return Order{}, err
	}
	o.Filled = true
	return o.Clone(), nil
}

// MarkCancelled moves an open order to cancelled.
func (r *Registry) MarkCancelled(id uint64) (Order, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	o, err := r.lookupOpen(id)
	if err != nil {
		return Order{}, err
	}
	o.Cancelled = true
	return o.Clone(), nil
}

// Filter narrows List. Zero Maker matches every maker.
type Filter struct {
	Status Status
	Maker  common.Address
	Limit  int
}

// List returns matching orders in ascending id order.
func (r *Registry) List(f Filter) []Order {
	r.mu.RLock()
	out := make([]Order, 0)
	for _, o := range r.orders {
		if f.Status != StatusAny && o.Status() != f.Status {
			continue
		}
		if f.Maker != (common.Address{}) && o.Maker != f.Maker {
			continue
		}
		out = append(out, o.Clone())
	}
	r.mu.RUnlock()

	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	if f.Limit > 0 && len(out) > f.Limit {
		out = out[:f.Limit]
	}
	return out
}
