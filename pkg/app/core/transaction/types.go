package transaction

import (
	"encoding/json"
	"errors"
	"fmt"
	"strconv"

	"github.com/ethereum/go-ethereum/common"
	"github.com/holiman/uint256"

	"github.com/uhyunpark/tokenex/pkg/app/core/asset"
)

// Kind names the operation a signed transaction requests
type Kind string

const (
	KindDepositNative Kind = "deposit_native" // credit attached native value
	KindDepositToken  Kind = "deposit_token"  // pull approved tokens into custody
	KindWithdraw      Kind = "withdraw"
	KindMake          Kind = "make"
	KindCancel        Kind = "cancel"
	KindFill          Kind = "fill"
	KindTokenApprove  Kind = "token_approve"  // token facility, not the ledger
	KindTokenTransfer Kind = "token_transfer" // token facility, not the ledger
	KindSwapBuy       Kind = "swap_buy"
	KindSwapSell      Kind = "swap_sell"
)

var ErrMalformed = errors.New("malformed transaction")

// SignedTransaction is the wire envelope accepted by POST /api/v1/tx
type SignedTransaction struct {
	Type      Kind          `json:"type"`
	Action    ActionPayload `json:"action"`
	Signature string        `json:"signature"` // 0x-prefixed, 65 bytes
}

// ActionPayload is the JSON form of an action. Integers are decimal strings;
// assets are "native" or a token contract address.
type ActionPayload struct {
	Asset         string `json:"asset,omitempty"`
	CounterAsset  string `json:"counterAsset,omitempty"`
	Amount        string `json:"amount,omitempty"`
	CounterAmount string `json:"counterAmount,omitempty"`
	OrderID       string `json:"orderId,omitempty"`
	Target        string `json:"target,omitempty"`
	Value         string `json:"value,omitempty"`
	Nonce         string `json:"nonce"`
	Owner         string `json:"owner"`
}

// Action is the decoded, typed form of a transaction
type Action struct {
	Kind          Kind
	Asset         asset.Asset
	CounterAsset  asset.Asset
	Amount        *uint256.Int
	CounterAmount *uint256.Int
	OrderID       uint64
	Target        common.Address
	Value         *uint256.Int
	Nonce         uint64
	Owner         common.Address
}

func (tx *SignedTransaction) Serialize() ([]byte, error) {
	return json.Marshal(tx)
}

// Deserialize parses and validates a JSON envelope
func Deserialize(data []byte) (*SignedTransaction, error) {
	var tx SignedTransaction
	if err := json.Unmarshal(data, &tx); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrMalformed, err)
	}
	if err := tx.Validate(); err != nil {
		return nil, err
	}
	return &tx, nil
}

// Validate checks the fields each kind requires
func (tx *SignedTransaction) Validate() error {
	if tx.Signature == "" {
		return fmt.Errorf("%w: missing signature", ErrMalformed)
	}
	_, err := tx.Decode()
	return err
}

// Decode converts the payload into typed values
func (tx *SignedTransaction) Decode() (Action, error) {
	p := tx.Action
	a := Action{Kind: tx.Type}

	if !common.IsHexAddress(p.Owner) {
		return Action{}, fmt.Errorf("%w: owner %q", ErrMalformed, p.Owner)
	}
	a.Owner = common.HexToAddress(p.Owner)

	nonce, err := strconv.ParseUint(p.Nonce, 10, 64)
	if err != nil {
		return Action{}, fmt.Errorf("%w: nonce %q", ErrMalformed, p.Nonce)
	}
	a.Nonce = nonce

	need := requiredFields(tx.Type)
	if need == nil {
		return Action{}, fmt.Errorf("%w: unknown type %q", ErrMalformed, tx.Type)
	}

	if a.Asset, err = optAsset(p.Asset, need.asset); err != nil {
		return Action{}, err
	}
	if a.CounterAsset, err = optAsset(p.CounterAsset, need.counterAsset); err != nil {
		return Action{}, err
	}
	if a.Amount, err = optAmount("amount", p.Amount, need.amount); err != nil {
		return Action{}, err
	}
	if a.CounterAmount, err = optAmount("counterAmount", p.CounterAmount, need.counterAmount); err != nil {
		return Action{}, err
	}
	if a.Value, err = optAmount("value", p.Value, need.value); err != nil {
		return Action{}, err
	}
	if need.orderID {
		if a.OrderID, err = strconv.ParseUint(p.OrderID, 10, 64); err != nil {
			return Action{}, fmt.Errorf("%w: orderId %q", ErrMalformed, p.OrderID)
		}
	}
	if need.target {
		if !common.IsHexAddress(p.Target) {
			return Action{}, fmt.Errorf("%w: target %q", ErrMalformed, p.Target)
		}
		a.Target = common.HexToAddress(p.Target)
	}
	return a, nil
}

type fields struct {
	asset, counterAsset, amount, counterAmount, orderID, target, value bool
}

func requiredFields(k Kind) *fields {
	switch k {
	case KindDepositNative:
		return &fields{amount: true, value: true}
	case KindDepositToken, KindWithdraw:
		return &fields{asset: true, amount: true}
	case KindMake:
		return &fields{asset: true, counterAsset: true, amount: true, counterAmount: true}
	case KindCancel, KindFill:
		return &fields{orderID: true}
	case KindTokenApprove, KindTokenTransfer:
		return &fields{asset: true, amount: true, target: true}
	case KindSwapBuy:
		return &fields{value: true}
	case KindSwapSell:
		return &fields{amount: true}
	}
	return nil
}

func optAsset(s string, required bool) (asset.Asset, error) {
	if s == "" {
		if required {
			return asset.Native, fmt.Errorf("%w: missing asset", ErrMalformed)
		}
		return asset.Native, nil
	}
	a, err := asset.Parse(s)
	if err != nil {
		return asset.Native, fmt.Errorf("%w: %v", ErrMalformed, err)
	}
	return a, nil
}

func optAmount(name, s string, required bool) (*uint256.Int, error) {
	if s == "" {
		if required {
			return nil, fmt.Errorf("%w: missing %s", ErrMalformed, name)
		}
		return new(uint256.Int), nil
	}
	v, err := asset.ParseAmount(s)
	if err != nil {
		return nil, fmt.Errorf("%w: %s: %v", ErrMalformed, name, err)
	}
	return v, nil
}

// Encode is the inverse of Decode
func Encode(a Action) ActionPayload {
	p := ActionPayload{
		Nonce: strconv.FormatUint(a.Nonce, 10),
		Owner: a.Owner.Hex(),
	}
	need := requiredFields(a.Kind)
	if need == nil {
		return p
	}
	if need.asset {
		p.Asset = a.Asset.String()
	}
	if need.counterAsset {
		p.CounterAsset = a.CounterAsset.String()
	}
	if need.amount {
		p.Amount = decOrZero(a.Amount)
	}
	if need.counterAmount {
		p.CounterAmount = decOrZero(a.CounterAmount)
	}
	if need.value {
		p.Value = decOrZero(a.Value)
	}
	if need.orderID {
		p.OrderID = strconv.FormatUint(a.OrderID, 10)
	}
	if need.target {
		p.Target = a.Target.Hex()
	}
	return p
}

func decOrZero(v *uint256.Int) string {
	if v == nil {
		return "0"
	}
	return v.Dec()
}
