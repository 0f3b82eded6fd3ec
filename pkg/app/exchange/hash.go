package exchange

import (
	"encoding/binary"

	"github.com/ethereum/go-ethereum/common"
	"golang.org/x/crypto/sha3"

	"github.com/uhyunpark/tokenex/pkg/app/core/orderbook"
)

var allOrders = orderbook.Filter{Status: orderbook.StatusAny}

// StateHash is keccak256 over every ledger row and every order, in
// canonical order. Two exchanges that applied the same operations agree on
// it.
func (e *Exchange) StateHash() common.Hash {
	e.mu.Lock()
	defer e.mu.Unlock()

	h := sha3.NewLegacyKeccak256()
	var u64 [8]byte

	for _, r := range e.ledger.Snapshot() {
		a := r.Asset.Address()
		h.Write(a[:])
		h.Write(r.User[:])
		amt := r.Amount.Bytes32()
		h.Write(amt[:])
	}

	binary.BigEndian.PutUint64(u64[:], e.orders.Count())
	h.Write(u64[:])
	for _, o := range e.Orders(allOrders) {
		binary.BigEndian.PutUint64(u64[:], o.ID)
		h.Write(u64[:])
		h.Write(o.Maker[:])
		get, give := o.TokenGet.Address(), o.TokenGive.Address()
		h.Write(get[:])
		ag := o.AmountGet.Bytes32()
		h.Write(ag[:])
		h.Write(give[:])
		av := o.AmountGive.Bytes32()
		h.Write(av[:])
		binary.BigEndian.PutUint64(u64[:], uint64(o.Timestamp))
		h.Write(u64[:])
		h.Write([]byte{byte(o.Status())})
	}

	return common.BytesToHash(h.Sum(nil))
}
