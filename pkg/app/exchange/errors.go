package exchange

import (
	"errors"

	"github.com/uhyunpark/tokenex/pkg/app/core/ledger"
	"github.com/uhyunpark/tokenex/pkg/app/core/orderbook"
	"github.com/uhyunpark/tokenex/pkg/app/core/transaction"
)

var (
	ErrInvalidAsset   = errors.New("invalid asset")
	ErrTransferFailed = errors.New("transfer failed")
	ErrValueMismatch  = errors.New("attached value does not match amount")
	ErrStorage        = errors.New("storage failure")
	ErrNonceTooLow    = errors.New("nonce too low")
	ErrUnknownAction  = errors.New("unknown action")
	ErrSignedDisabled = errors.New("signed transactions not enabled")

	// Re-exported so callers only need this package to classify failures.
	ErrInsufficientBalance = ledger.ErrInsufficientBalance
	ErrOverflow            = ledger.ErrOverflow
	ErrOrderNotFound       = orderbook.ErrOrderNotFound
	ErrUnauthorized        = orderbook.ErrUnauthorized
	ErrAlreadyFilled       = orderbook.ErrAlreadyFilled
	ErrAlreadyCancelled    = orderbook.ErrAlreadyCancelled
	ErrBadSignature        = transaction.ErrBadSignature
	ErrMalformed           = transaction.ErrMalformed
)
