// Package storage persists exchange state in Pebble.
package storage

import (
	"errors"
	"sort"
	"sync"

	"github.com/ethereum/go-ethereum/common"

	"github.com/uhyunpark/tokenex/pkg/app/core/events"
	"github.com/uhyunpark/tokenex/pkg/app/core/ledger"
	"github.com/uhyunpark/tokenex/pkg/app/core/orderbook"
)

var ErrClosed = errors.New("store closed")

// ChangeSet is everything one exchange operation changes. It is written
// atomically.
type ChangeSet struct {
	Rows       []ledger.Row      // ledger rows with their new values
	Orders     []orderbook.Order // created or transitioned orders
	Events     []events.Event
	OrderCount uint64
	Seq        uint64
	Nonces     map[common.Address]uint64
	Blobs      map[string][]byte
}

// Snapshot is the full state read back at startup.
type Snapshot struct {
	Rows       []ledger.Row
	Orders     []orderbook.Order
	OrderCount uint64
	Seq        uint64
	Nonces     map[common.Address]uint64
	Blobs      map[string][]byte
}

// MemStore keeps committed state in memory. Used when no data dir is set
// and in tests.
type MemStore struct {
	mu     sync.Mutex
	rows   map[ledger.Key]ledger.Row
	orders map[uint64]orderbook.Order
	events []events.Event
	snap   Snapshot
}

func NewMemStore() *MemStore {
	return &MemStore{
		rows:   make(map[ledger.Key]ledger.Row),
		orders: make(map[uint64]orderbook.Order),
		snap: Snapshot{
			Nonces: make(map[common.Address]uint64),
			Blobs:  make(map[string][]byte),
		},
	}
}

func (s *MemStore) Commit(cs ChangeSet) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, r := range cs.Rows {
		s.rows[r.Key] = ledger.Row{Key: r.Key, Amount: r.Amount.Clone()}
	}
	for _, o := range cs.Orders {
		s.orders[o.ID] = o.Clone()
	}
	s.events = append(s.events, cs.Events...)
	if cs.OrderCount > s.snap.OrderCount {
		s.snap.OrderCount = cs.OrderCount
	}
	if cs.Seq > s.snap.Seq {
		s.snap.Seq = cs.Seq
	}
	for addr, n := range cs.Nonces {
		s.snap.Nonces[addr] = n
	}
	for name, b := range cs.Blobs {
		s.snap.Blobs[name] = append([]byte(nil), b...)
	}
	return nil
}

func (s *MemStore) Load() (*Snapshot, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := &Snapshot{
		OrderCount: s.snap.OrderCount,
		Seq:        s.snap.Seq,
		Nonces:     make(map[common.Address]uint64, len(s.snap.Nonces)),
		Blobs:      make(map[string][]byte, len(s.snap.Blobs)),
	}
	for _, r := range s.rows {
		out.Rows = append(out.Rows, ledger.Row{Key: r.Key, Amount: r.Amount.Clone()})
	}
	for _, o := range s.orders {
		out.Orders = append(out.Orders, o.Clone())
	}
	sort.Slice(out.Orders, func(i, j int) bool { return out.Orders[i].ID < out.Orders[j].ID })
	for k, v := range s.snap.Nonces {
		out.Nonces[k] = v
	}
	for k, v := range s.snap.Blobs {
		out.Blobs[k] = append([]byte(nil), v...)
	}
	return out, nil
}

// Events returns up to limit events with Seq >= from
func (s *MemStore) Events(from uint64, limit int) ([]events.Event, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]events.Event, 0)
	for _, ev := range s.events {
		if ev.Seq < from {
			continue
		}
		if limit > 0 && len(out) >= limit {
			break
		}
		out = append(out, ev)
	}
	return out, nil
}

func (s *MemStore) Close() error { return nil }
