package storage

import (
	"encoding/binary"
	"encoding/json"
	"fmt"

	"github.com/ethereum/go-ethereum/common"
	"github.com/holiman/uint256"

	"github.com/uhyunpark/tokenex/pkg/app/core/asset"
	"github.com/uhyunpark/tokenex/pkg/app/core/orderbook"
)

func encodeUint64(v uint64) []byte {
	var k [8]byte
	binary.BigEndian.PutUint64(k[:], v)
	return k[:]
}

func decodeUint64(b []byte) (uint64, error) {
	if len(b) != 8 {
		return 0, fmt.Errorf("counter has %d bytes, want 8", len(b))
	}
	return binary.BigEndian.Uint64(b), nil
}

func encodeAmount(v *uint256.Int) []byte {
	b := v.Bytes32()
	return b[:]
}

func decodeAmount(b []byte) (*uint256.Int, error) {
	if len(b) != 32 {
		return nil, fmt.Errorf("amount has %d bytes, want 32", len(b))
	}
	return new(uint256.Int).SetBytes32(b), nil
}

// orderRecord is the stored form of an order; amounts are decimal strings
type orderRecord struct {
	ID         uint64         `json:"id"`
	Maker      common.Address `json:"maker"`
	TokenGet   asset.Asset    `json:"tokenGet"`
	AmountGet  string         `json:"amountGet"`
	TokenGive  asset.Asset    `json:"tokenGive"`
	AmountGive string         `json:"amountGive"`
	Timestamp  int64          `json:"timestamp"`
	Filled     bool           `json:"filled"`
	Cancelled  bool           `json:"cancelled"`
}

func encodeOrder(o orderbook.Order) ([]byte, error) {
	return json.Marshal(orderRecord{
		ID:         o.ID,
		Maker:      o.Maker,
		TokenGet:   o.TokenGet,
		AmountGet:  o.AmountGet.Dec(),
		TokenGive:  o.TokenGive,
		AmountGive: o.AmountGive.Dec(),
		Timestamp:  o.Timestamp,
		Filled:     o.Filled,
		Cancelled:  o.Cancelled,
	})
}

func decodeOrder(b []byte) (orderbook.Order, error) {
	var r orderRecord
	if err := json.Unmarshal(b, &r); err != nil {
		return orderbook.Order{}, err
	}
	get, err := uint256.FromDecimal(r.AmountGet)
	if err != nil {
		return orderbook.Order{}, fmt.Errorf("order %d amountGet: %w", r.ID, err)
	}
	give, err := uint256.FromDecimal(r.AmountGive)
	if err != nil {
		return orderbook.Order{}, fmt.Errorf("order %d amountGive: %w", r.ID, err)
	}
	return orderbook.Order{
		ID:         r.ID,
		Maker:      r.Maker,
		TokenGet:   r.TokenGet,
		AmountGet:  get,
		TokenGive:  r.TokenGive,
		AmountGive: give,
		Timestamp:  r.Timestamp,
		Filled:     r.Filled,
		Cancelled:  r.Cancelled,
	}, nil
}
