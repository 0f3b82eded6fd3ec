package storage

import (
	"fmt"

	"github.com/ethereum/go-ethereum/common"

	"github.com/uhyunpark/tokenex/pkg/app/core/asset"
)

// Key schema:
//
//   bal:<asset hex>:<user hex>  → 32-byte big-endian amount
//   ord:<%020d id>              → order JSON
//   evt:<%020d seq>             → event JSON
//   nonce:<user hex>            → 8-byte last accepted nonce
//   blob:<name>                 → opaque collaborator state
//   meta:orders, meta:seq       → 8-byte counters
//
// Zero-padded ids keep lexical order equal to numeric order.
const (
	prefixBalance = "bal:"
	prefixOrder   = "ord:"
	prefixEvent   = "evt:"
	prefixNonce   = "nonce:"
	prefixBlob    = "blob:"
)

var (
	keyOrderCount = []byte("meta:orders")
	keySeq        = []byte("meta:seq")
)

func balanceKey(a asset.Asset, user common.Address) []byte {
	return []byte(fmt.Sprintf("%s%s:%s", prefixBalance, a.Hex(), user.Hex()))
}

func orderKey(id uint64) []byte {
	return []byte(fmt.Sprintf("%s%020d", prefixOrder, id))
}

func eventKey(seq uint64) []byte {
	return []byte(fmt.Sprintf("%s%020d", prefixEvent, seq))
}

func nonceKey(user common.Address) []byte {
	return []byte(prefixNonce + user.Hex())
}

func blobKey(name string) []byte {
	return []byte(prefixBlob + name)
}

// keyUpperBound returns the smallest key greater than every key with prefix b
func keyUpperBound(b []byte) []byte {
	end := make([]byte, len(b))
	copy(end, b)
	for i := len(end) - 1; i >= 0; i-- {
		end[i] = end[i] + 1
		if end[i] != 0 {
			return end[:i+1]
		}
	}
	return nil // no upper-bound
}

// parseBalanceKey splits "bal:<asset>:<user>"
func parseBalanceKey(k []byte) (asset.Asset, common.Address, error) {
	rest := string(k[len(prefixBalance):])
	// both parts are 42-char hex addresses
	if len(rest) != 42+1+42 || rest[42] != ':' {
		return asset.Native, common.Address{}, fmt.Errorf("malformed balance key %q", k)
	}
	a := asset.Token(common.HexToAddress(rest[:42]))
	return a, common.HexToAddress(rest[43:]), nil
}
