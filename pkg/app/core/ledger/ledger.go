// Package ledger is the custody balance ledger: per-(asset, user) credit rows that
// only ever change through validated batches.
package ledger

import (
	"bytes"
	"errors"
	"fmt"
	"sort"
	"sync"

	"github.com/ethereum/go-ethereum/common"
	"github.com/holiman/uint256"

	"github.com/uhyunpark/tokenex/pkg/app/core/asset"
)

var (
	ErrInsufficientBalance = errors.New("insufficient balance")
	ErrOverflow            = errors.New("balance overflow")
)

// Key addresses one ledger row.
type Key struct {
	Asset asset.Asset
	User  common.Address
}

// Row is a ledger row and its amount in base units.
type Row struct {
	Key
	Amount *uint256.Int
}

// Ledger holds every balance row. Rows are created on first credit and never
// deleted; a drained row stays at zero.
type Ledger struct {
	mu   sync.RWMutex
	rows map[Key]*uint256.Int
}

func New() *Ledger {
	return &Ledger{rows: make(map[Key]*uint256.Int)}
}

// Restore loads rows read back from storage. Intended for startup only.
func (l *Ledger) Restore(rows []Row) {
	l.mu.Lock()
	defer l.mu.Unlock()
	for _, r := range rows {
		l.rows[r.Key] = r.Amount.Clone()
	}
}

// BalanceOf returns a copy of the row amount, zero for rows never credited.
func (l *Ledger) BalanceOf(a asset.Asset, user common.Address) *uint256.Int {
	l.mu.RLock()
	defer l.mu.RUnlock()
	if v, ok := l.rows[Key{Asset: a, User: user}]; ok {
		return v.Clone()
	}
	return new(uint256.Int)
}

// Totals sums every row of an asset.
func (l *Ledger) Totals(a asset.Asset) *uint256.Int {
	l.mu.RLock()
	defer l.mu.RUnlock()
	total := new(uint256.Int)
	for k, v := range l.rows {
		if k.Asset == a {
			total.Add(total, v)
		}
	}
	return total
}

// Snapshot returns all rows sorted by asset then user.
func (l *Ledger) Snapshot() []Row {
	l.mu.RLock()
	out := make([]Row, 0, len(l.rows))
	for k, v := range l.rows {
		out = append(out, Row{Key: k, Amount: v.Clone()})
	}
	l.mu.RUnlock()
	sortRows(out)
	return out
}

// Preview computes the rows a batch would produce without touching the ledger.
// It fails if any touched row would go negative or overflow.
func (l *Ledger) Preview(b *Batch) ([]Row, error) {
	if b.overflow {
		return nil, ErrOverflow
	}

	l.mu.RLock()
	defer l.mu.RUnlock()

	out := make([]Row, 0, len(b.touched))
	for _, k := range b.touched {
		cur := new(uint256.Int)
		if v, ok := l.rows[k]; ok {
			cur.Set(v)
		}
		sum := cur
		if c, ok := b.credits[k]; ok {
			var over bool
			sum, over = new(uint256.Int).AddOverflow(cur, c)
			if over {
				return nil, fmt.Errorf("%w: %s of %s", ErrOverflow, k.User.Hex(), k.Asset)
			}
		}
		if d, ok := b.debits[k]; ok {
			if sum.Lt(d) {
				return nil, fmt.Errorf("%w: %s holds %s of %s, needs %s",
					ErrInsufficientBalance, k.User.Hex(), cur.Dec(), k.Asset, d.Dec())
			}
			sum = new(uint256.Int).Sub(sum, d)
		}
		out = append(out, Row{Key: k, Amount: sum})
	}
	return out, nil
}

// Apply writes rows produced by Preview. The caller must serialize
// Preview and Apply so nothing changes in between.
func (l *Ledger) Apply(rows []Row) {
	l.mu.Lock()
	defer l.mu.Unlock()
	for _, r := range rows {
		l.rows[r.Key] = r.Amount.Clone()
	}
}

// ApplyBatch is Preview followed by Apply.
func (l *Ledger) ApplyBatch(b *Batch) ([]Row, error) {
	rows, err := l.Preview(b)
	if err != nil {
		return nil, err
	}
	l.Apply(rows)
	return rows, nil
}

func sortRows(rows []Row) {
	sort.Slice(rows, func(i, j int) bool {
		ai, aj := rows[i].Asset.Address(), rows[j].Asset.Address()
		if c := bytes.Compare(ai[:], aj[:]); c != 0 {
			return c < 0
		}
		return bytes.Compare(rows[i].User[:], rows[j].User[:]) < 0
	})
}
