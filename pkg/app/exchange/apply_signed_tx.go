package exchange

import (
	"context"
	"fmt"

	"github.com/ethereum/go-ethereum/common"
	"github.com/holiman/uint256"

	"github.com/uhyunpark/tokenex/pkg/app/core/events"
	"github.com/uhyunpark/tokenex/pkg/app/core/transaction"
)

// Wallets performs collaborator actions a user signs directly.
type Wallets interface {
	Approve(ctx context.Context, token, owner, spender common.Address, amount *uint256.Int) error
	Send(ctx context.Context, token, from, to common.Address, amount *uint256.Int) error
	// Collect moves native value attached to a deposit into custody.
	Collect(ctx context.Context, from common.Address, amount *uint256.Int) error
}

// Swapper is the fixed-rate swap facility.
type Swapper interface {
	Buy(ctx context.Context, buyer common.Address, nativeIn *uint256.Int) (*uint256.Int, events.Event, error)
	Sell(ctx context.Context, seller common.Address, tokenIn *uint256.Int) (*uint256.Int, events.Event, error)
}

type SignedDeps struct {
	Verifier *transaction.Verifier
	Wallets  Wallets
	Swap     Swapper // optional
}

// ApplySigned verifies a signed envelope and runs the action it names. The
// owner's nonce must exceed the last accepted one and is consumed only when
// the action succeeds.
func (e *Exchange) ApplySigned(ctx context.Context, stx *transaction.SignedTransaction) (*Receipt, error) {
	if e.signed == nil || e.signed.Verifier == nil {
		return nil, ErrSignedDisabled
	}
	a, err := e.signed.Verifier.Verify(stx)
	if err != nil {
		return nil, err
	}

	return e.run(ctx, func(t *txn) error {
		if last := e.nonces[a.Owner]; a.Nonce <= last {
			return fmt.Errorf("%w: got %d, last accepted %d", ErrNonceTooLow, a.Nonce, last)
		}
		if err := e.dispatch(ctx, t, a); err != nil {
			return err
		}
		t.nonce = &nonceBump{user: a.Owner, nonce: a.Nonce}
		return nil
	})
}

func (e *Exchange) dispatch(ctx context.Context, t *txn, a transaction.Action) error {
	switch a.Kind {
	case transaction.KindDepositNative:
		if err := e.depositNative(t, a.Owner, a.Amount, a.Value); err != nil {
			return err
		}
		if err := e.signed.Wallets.Collect(ctx, a.Owner, a.Value); err != nil {
			return fmt.Errorf("%w: %v", ErrTransferFailed, err)
		}
		t.external = true
		return nil

	case transaction.KindDepositToken:
		return e.depositToken(ctx, t, a.Asset, a.Owner, a.Amount)

	case transaction.KindWithdraw:
		return e.withdraw(ctx, t, a.Asset, a.Owner, a.Amount)

	case transaction.KindMake:
		return e.makeOrder(t, a.Owner, a.Asset, a.Amount, a.CounterAsset, a.CounterAmount)

	case transaction.KindCancel:
		return e.cancelOrder(t, a.OrderID, a.Owner)

	case transaction.KindFill:
		return e.fillOrder(t, a.OrderID, a.Owner)

	case transaction.KindTokenApprove:
		if a.Asset.IsNative() {
			return fmt.Errorf("%w: approve needs a token", ErrInvalidAsset)
		}
		if err := e.signed.Wallets.Approve(ctx, a.Asset.Address(), a.Owner, a.Target, a.Amount); err != nil {
			return fmt.Errorf("%w: %v", ErrTransferFailed, err)
		}
		t.external = true
		return nil

	case transaction.KindTokenTransfer:
		if a.Asset.IsNative() {
			return fmt.Errorf("%w: transfer needs a token", ErrInvalidAsset)
		}
		if err := e.signed.Wallets.Send(ctx, a.Asset.Address(), a.Owner, a.Target, a.Amount); err != nil {
			return fmt.Errorf("%w: %v", ErrTransferFailed, err)
		}
		t.external = true
		return nil

	case transaction.KindSwapBuy, transaction.KindSwapSell:
		if e.signed.Swap == nil {
			return fmt.Errorf("%w: no swap configured", ErrUnknownAction)
		}
		var ev events.Event
		var err error
		if a.Kind == transaction.KindSwapBuy {
			_, ev, err = e.signed.Swap.Buy(ctx, a.Owner, a.Value)
		} else {
			_, ev, err = e.signed.Swap.Sell(ctx, a.Owner, a.Amount)
		}
		if err != nil {
			return err
		}
		t.external = true
		t.emit(ev)
		return nil
	}
	return fmt.Errorf("%w: %q", ErrUnknownAction, a.Kind)
}
