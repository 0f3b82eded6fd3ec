package crypto

import (
	"encoding/json"
	"fmt"
	"math/big"

	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/common/math"
	"github.com/ethereum/go-ethereum/crypto"
	"github.com/ethereum/go-ethereum/signer/core/apitypes"
)

// EIP712Domain represents the domain separator for EIP-712 typed data
type EIP712Domain struct {
	Name              string
	Version           string
	ChainID           *big.Int
	VerifyingContract common.Address // exchange custody address, or zero
}

// DefaultDomain returns the local devnet domain
func DefaultDomain() EIP712Domain {
	return DomainFor(1337)
}

// DomainFor is the exchange domain on the given chain
func DomainFor(chainID int64) EIP712Domain {
	return EIP712Domain{
		Name:              "TokenEx",
		Version:           "1",
		ChainID:           big.NewInt(chainID),
		VerifyingContract: common.Address{},
	}
}

// ActionEIP712 is the single typed structure users sign for every exchange
// request. Fields that an action kind does not use are left zero.
type ActionEIP712 struct {
	Kind          string         // "deposit_token", "make", "fill", ...
	Asset         common.Address // asset moved or tokenGet
	CounterAsset  common.Address // tokenGive for make
	Amount        *big.Int       // amount or amountGet
	CounterAmount *big.Int       // amountGive for make
	OrderID       *big.Int       // cancel / fill target
	Target        common.Address // recipient or spender for token actions
	Value         *big.Int       // native value attached to the request
	Nonce         *big.Int       // strictly increasing per owner
	Owner         common.Address
}

var actionTypes = apitypes.Types{
	"EIP712Domain": []apitypes.Type{
		{Name: "name", Type: "string"},
		{Name: "version", Type: "string"},
		{Name: "chainId", Type: "uint256"},
		{Name: "verifyingContract", Type: "address"},
	},
	"Action": []apitypes.Type{
		{Name: "kind", Type: "string"},
		{Name: "asset", Type: "address"},
		{Name: "counterAsset", Type: "address"},
		{Name: "amount", Type: "uint256"},
		{Name: "counterAmount", Type: "uint256"},
		{Name: "orderId", Type: "uint256"},
		{Name: "target", Type: "address"},
		{Name: "value", Type: "uint256"},
		{Name: "nonce", Type: "uint256"},
		{Name: "owner", Type: "address"},
	},
}

// EIP712Signer hashes, signs and verifies actions under one domain
type EIP712Signer struct {
	domain EIP712Domain
}

func NewEIP712Signer(domain EIP712Domain) *EIP712Signer {
	return &EIP712Signer{domain: domain}
}

func (e *EIP712Signer) Domain() EIP712Domain { return e.domain }

func bigOrZero(v *big.Int) *big.Int {
	if v == nil {
		return new(big.Int)
	}
	return v
}

func (a *ActionEIP712) message() apitypes.TypedDataMessage {
	return apitypes.TypedDataMessage{
		"kind":          a.Kind,
		"asset":         a.Asset.Hex(),
		"counterAsset":  a.CounterAsset.Hex(),
		"amount":        bigOrZero(a.Amount).String(),
		"counterAmount": bigOrZero(a.CounterAmount).String(),
		"orderId":       bigOrZero(a.OrderID).String(),
		"target":        a.Target.Hex(),
		"value":         bigOrZero(a.Value).String(),
		"nonce":         bigOrZero(a.Nonce).String(),
		"owner":         a.Owner.Hex(),
	}
}

func (e *EIP712Signer) typedData(action *ActionEIP712) apitypes.TypedData {
	return apitypes.TypedData{
		Types:       actionTypes,
		PrimaryType: "Action",
		Domain: apitypes.TypedDataDomain{
			Name:              e.domain.Name,
			Version:           e.domain.Version,
			ChainId:           (*math.HexOrDecimal256)(e.domain.ChainID),
			VerifyingContract: e.domain.VerifyingContract.Hex(),
		},
		Message: action.message(),
	}
}

// HashAction returns the EIP-712 digest of an action
func (e *EIP712Signer) HashAction(action *ActionEIP712) ([]byte, error) {
	typedData := e.typedData(action)

	domainSeparator, err := typedData.HashStruct("EIP712Domain", typedData.Domain.Map())
	if err != nil {
		return nil, fmt.Errorf("failed to hash domain: %w", err)
	}
	typedDataHash, err := typedData.HashStruct(typedData.PrimaryType, typedData.Message)
	if err != nil {
		return nil, fmt.Errorf("failed to hash message: %w", err)
	}

	// keccak256("\x19\x01" || domainSeparator || typedDataHash)
	rawData := []byte(fmt.Sprintf("\x19\x01%s%s", string(domainSeparator), string(typedDataHash)))
	return crypto.Keccak256Hash(rawData).Bytes(), nil
}

func (e *EIP712Signer) SignAction(signer *Signer, action *ActionEIP712) ([]byte, error) {
	hash, err := e.HashAction(action)
	if err != nil {
		return nil, fmt.Errorf("failed to hash action: %w", err)
	}
	signature, err := signer.Sign(hash)
	if err != nil {
		return nil, fmt.Errorf("failed to sign action: %w", err)
	}
	return signature, nil
}

// RecoverActionSigner recovers the address that signed an action
func (e *EIP712Signer) RecoverActionSigner(action *ActionEIP712, signature []byte) (common.Address, error) {
	hash, err := e.HashAction(action)
	if err != nil {
		return common.Address{}, fmt.Errorf("failed to hash action: %w", err)
	}
	return RecoverAddress(hash, signature)
}

// VerifyActionSignature returns true if the signature matches action.Owner
func (e *EIP712Signer) VerifyActionSignature(action *ActionEIP712, signature []byte) (bool, error) {
	recovered, err := e.RecoverActionSigner(action, signature)
	if err != nil {
		return false, err
	}
	return recovered == action.Owner, nil
}

// ActionToJSON renders the typed data in the eth_signTypedData_v4 layout
// so browser wallets can sign the same payload
func (e *EIP712Signer) ActionToJSON(action *ActionEIP712) (string, error) {
	jsonBytes, err := json.MarshalIndent(e.typedData(action), "", "  ")
	if err != nil {
		return "", fmt.Errorf("failed to marshal JSON: %w", err)
	}
	return string(jsonBytes), nil
}
