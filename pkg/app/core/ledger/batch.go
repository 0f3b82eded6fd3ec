package ledger

import (
	"github.com/ethereum/go-ethereum/common"
	"github.com/holiman/uint256"

	"github.com/uhyunpark/tokenex/pkg/app/core/asset"
)

// Batch stages credits and debits that must land together. The net effect
// on each row is validated, so a row may be debited and credited in one batch.
type Batch struct {
	credits  map[Key]*uint256.Int
	debits   map[Key]*uint256.Int
	touched  []Key // first-touch order
	overflow bool
}

func NewBatch() *Batch {
	return &Batch{
		credits: make(map[Key]*uint256.Int),
		debits:  make(map[Key]*uint256.Int),
	}
}

func (b *Batch) Credit(a asset.Asset, user common.Address, amount *uint256.Int) {
	b.add(b.credits, Key{Asset: a, User: user}, amount)
}

func (b *Batch) Debit(a asset.Asset, user common.Address, amount *uint256.Int) {
	b.add(b.debits, Key{Asset: a, User: user}, amount)
}

// Empty reports whether nothing has been staged.
func (b *Batch) Empty() bool { return len(b.touched) == 0 }

func (b *Batch) add(m map[Key]*uint256.Int, k Key, amount *uint256.Int) {
	if _, seen := b.credits[k]; !seen {
		if _, seen := b.debits[k]; !seen {
			b.touched = append(b.touched, k)
		}
	}
	cur, ok := m[k]
	if !ok {
		m[k] = amount.Clone()
		return
	}
	if _, over := cur.AddOverflow(cur, amount); over {
		b.overflow = true
	}
}
