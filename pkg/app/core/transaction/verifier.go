package transaction

import (
	"encoding/hex"
	"errors"
	"fmt"
	"math/big"
	"strings"

	"github.com/holiman/uint256"

	"github.com/uhyunpark/tokenex/pkg/crypto"
)

var ErrBadSignature = errors.New("bad signature")

// Verifier checks that a transaction was signed by its owner
type Verifier struct {
	eip712Signer *crypto.EIP712Signer
}

func NewVerifier(domain crypto.EIP712Domain) *Verifier {
	return &Verifier{eip712Signer: crypto.NewEIP712Signer(domain)}
}

// Verify decodes the transaction and checks the signature against the
// claimed owner
func (v *Verifier) Verify(tx *SignedTransaction) (Action, error) {
	action, err := tx.Decode()
	if err != nil {
		return Action{}, err
	}

	sigBytes, err := decodeSignature(tx.Signature)
	if err != nil {
		return Action{}, fmt.Errorf("%w: %v", ErrBadSignature, err)
	}

	signer, err := v.eip712Signer.RecoverActionSigner(ToEIP712(action), sigBytes)
	if err != nil {
		return Action{}, fmt.Errorf("%w: %v", ErrBadSignature, err)
	}
	if signer != action.Owner {
		return Action{}, fmt.Errorf("%w: signed by %s, owner is %s", ErrBadSignature, signer.Hex(), action.Owner.Hex())
	}
	return action, nil
}

// Sign builds a signed envelope for a; used by exchangectl and tests
func Sign(e *crypto.EIP712Signer, s *crypto.Signer, a Action) (*SignedTransaction, error) {
	a.Owner = s.Address()
	sig, err := e.SignAction(s, ToEIP712(a))
	if err != nil {
		return nil, err
	}
	return &SignedTransaction{
		Type:      a.Kind,
		Action:    Encode(a),
		Signature: "0x" + hex.EncodeToString(sig),
	}, nil
}

// ToEIP712 maps an action onto the signed typed structure
func ToEIP712(a Action) *crypto.ActionEIP712 {
	return &crypto.ActionEIP712{
		Kind:          string(a.Kind),
		Asset:         a.Asset.Address(),
		CounterAsset:  a.CounterAsset.Address(),
		Amount:        toBig(a.Amount),
		CounterAmount: toBig(a.CounterAmount),
		OrderID:       new(big.Int).SetUint64(a.OrderID),
		Target:        a.Target,
		Value:         toBig(a.Value),
		Nonce:         new(big.Int).SetUint64(a.Nonce),
		Owner:         a.Owner,
	}
}

func toBig(v *uint256.Int) *big.Int {
	if v == nil {
		return new(big.Int)
	}
	return v.ToBig()
}

func decodeSignature(sig string) ([]byte, error) {
	sig = strings.TrimPrefix(sig, "0x")
	b, err := hex.DecodeString(sig)
	if err != nil {
		return nil, fmt.Errorf("invalid hex: %w", err)
	}
	if len(b) != 65 {
		return nil, fmt.Errorf("invalid signature length: %d", len(b))
	}
	return b, nil
}
