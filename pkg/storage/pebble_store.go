package storage

import (
	"encoding/json"
	"errors"
	"fmt"

	"github.com/cockroachdb/pebble"
	"github.com/ethereum/go-ethereum/common"

	"github.com/uhyunpark/tokenex/pkg/app/core/events"
	"github.com/uhyunpark/tokenex/pkg/app/core/ledger"
)

type PebbleStore struct {
	db *pebble.DB
}

func NewPebbleStore(path string) (*PebbleStore, error) {
	db, err := pebble.Open(path, &pebble.Options{})
	if err != nil {
		return nil, err
	}
	return &PebbleStore{db: db}, nil
}

func (s *PebbleStore) Close() error { return s.db.Close() }

// Commit writes a change set in a single synced batch
func (s *PebbleStore) Commit(cs ChangeSet) error {
	b := s.db.NewBatch()
	defer b.Close()

	for _, r := range cs.Rows {
		if err := b.Set(balanceKey(r.Asset, r.User), encodeAmount(r.Amount), nil); err != nil {
			return fmt.Errorf("stage balance: %w", err)
		}
	}
	for _, o := range cs.Orders {
		val, err := encodeOrder(o)
		if err != nil {
			return fmt.Errorf("encode order %d: %w", o.ID, err)
		}
		if err := b.Set(orderKey(o.ID), val, nil); err != nil {
			return fmt.Errorf("stage order: %w", err)
		}
	}
	for _, ev := range cs.Events {
		val, err := json.Marshal(ev)
		if err != nil {
			return fmt.Errorf("encode event %d: %w", ev.Seq, err)
		}
		if err := b.Set(eventKey(ev.Seq), val, nil); err != nil {
			return fmt.Errorf("stage event: %w", err)
		}
	}
	for addr, n := range cs.Nonces {
		if err := b.Set(nonceKey(addr), encodeUint64(n), nil); err != nil {
			return fmt.Errorf("stage nonce: %w", err)
		}
	}
	for name, blob := range cs.Blobs {
		if err := b.Set(blobKey(name), blob, nil); err != nil {
			return fmt.Errorf("stage blob: %w", err)
		}
	}
	if err := b.Set(keyOrderCount, encodeUint64(cs.OrderCount), nil); err != nil {
		return fmt.Errorf("stage order count: %w", err)
	}
	if err := b.Set(keySeq, encodeUint64(cs.Seq), nil); err != nil {
		return fmt.Errorf("stage seq: %w", err)
	}

	if err := b.Commit(pebble.Sync); err != nil {
		return fmt.Errorf("commit batch: %w", err)
	}
	return nil
}

// Load reads back the whole exchange state
func (s *PebbleStore) Load() (*Snapshot, error) {
	snap := &Snapshot{
		Nonces: make(map[common.Address]uint64),
		Blobs:  make(map[string][]byte),
	}

	var err error
	if snap.OrderCount, err = s.counter(keyOrderCount); err != nil {
		return nil, err
	}
	if snap.Seq, err = s.counter(keySeq); err != nil {
		return nil, err
	}

	err = s.scan([]byte(prefixBalance), func(k, v []byte) error {
		a, user, err := parseBalanceKey(k)
		if err != nil {
			return err
		}
		amount, err := decodeAmount(v)
		if err != nil {
			return fmt.Errorf("balance %s: %w", k, err)
		}
		snap.Rows = append(snap.Rows, ledger.Row{Key: ledger.Key{Asset: a, User: user}, Amount: amount})
		return nil
	})
	if err != nil {
		return nil, err
	}

	err = s.scan([]byte(prefixOrder), func(k, v []byte) error {
		o, err := decodeOrder(v)
		if err != nil {
			return fmt.Errorf("order %s: %w", k, err)
		}
		snap.Orders = append(snap.Orders, o)
		return nil
	})
	if err != nil {
		return nil, err
	}

	err = s.scan([]byte(prefixNonce), func(k, v []byte) error {
		n, err := decodeUint64(v)
		if err != nil {
			return fmt.Errorf("nonce %s: %w", k, err)
		}
		snap.Nonces[common.HexToAddress(string(k[len(prefixNonce):]))] = n
		return nil
	})
	if err != nil {
		return nil, err
	}

	err = s.scan([]byte(prefixBlob), func(k, v []byte) error {
		snap.Blobs[string(k[len(prefixBlob):])] = append([]byte(nil), v...)
		return nil
	})
	if err != nil {
		return nil, err
	}
	return snap, nil
}

// Events returns up to limit persisted events with Seq >= from, in order
func (s *PebbleStore) Events(from uint64, limit int) ([]events.Event, error) {
	iter, err := s.db.NewIter(&pebble.IterOptions{
		LowerBound: eventKey(from),
		UpperBound: keyUpperBound([]byte(prefixEvent)),
	})
	if err != nil {
		return nil, err
	}
	defer iter.Close()

	out := make([]events.Event, 0)
	for iter.First(); iter.Valid(); iter.Next() {
		if limit > 0 && len(out) >= limit {
			break
		}
		var ev events.Event
		if err := json.Unmarshal(iter.Value(), &ev); err != nil {
			return nil, fmt.Errorf("decode event %s: %w", iter.Key(), err)
		}
		out = append(out, ev)
	}
	return out, iter.Error()
}

func (s *PebbleStore) counter(key []byte) (uint64, error) {
	val, closer, err := s.db.Get(key)
	if errors.Is(err, pebble.ErrNotFound) {
		return 0, nil
	}
	if err != nil {
		return 0, fmt.Errorf("failed to get %s: %w", key, err)
	}
	defer closer.Close()
	return decodeUint64(val)
}

func (s *PebbleStore) scan(prefix []byte, fn func(k, v []byte) error) error {
	iter, err := s.db.NewIter(&pebble.IterOptions{
		LowerBound: prefix,
		UpperBound: keyUpperBound(prefix),
	})
	if err != nil {
		return err
	}
	defer iter.Close()

	for iter.First(); iter.Valid(); iter.Next() {
		if err := fn(iter.Key(), iter.Value()); err != nil {
			return err
		}
	}
	return iter.Error()
}
