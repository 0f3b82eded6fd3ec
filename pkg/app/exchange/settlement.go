package exchange

import (
	"fmt"

	"github.com/ethereum/go-ethereum/common"
	"github.com/holiman/uint256"

	"github.com/uhyunpark/tokenex/pkg/app/core/orderbook"
)

// Fee is amountGet * feePercent / 100, truncated.
func Fee(amountGet *uint256.Int, feePercent uint64) (*uint256.Int, error) {
	scaled, overflow := new(uint256.Int).MulOverflow(amountGet, uint256.NewInt(feePercent))
	if overflow {
		return nil, fmt.Errorf("%w: fee on %s at %d%%", ErrOverflow, amountGet.Dec(), feePercent)
	}
	return scaled.Div(scaled, uint256.NewInt(100)), nil
}

// settle stages the fill of o by taker. The taker pays amountGet plus the fee
// in tokenGet; the maker pays amountGive in tokenGive.
func (e *Exchange) settle(t *txn, o orderbook.Order, taker common.Address) error {
	fee, err := Fee(o.AmountGet, e.cfg.FeePercent)
	if err != nil {
		return err
	}
	total, overflow := new(uint256.Int).AddOverflow(o.AmountGet, fee)
	if overflow {
		return fmt.Errorf("%w: %s + fee %s", ErrOverflow, o.AmountGet.Dec(), fee.Dec())
	}

	if bal := e.ledger.BalanceOf(o.TokenGet, taker); bal.Lt(total) {
		return fmt.Errorf("%w: taker %s holds %s of %s, needs %s",
			ErrInsufficientBalance, taker.Hex(), bal.Dec(), o.TokenGet, total.Dec())
	}
	if bal := e.ledger.BalanceOf(o.TokenGive, o.Maker); bal.Lt(o.AmountGive) {
		return fmt.Errorf("%w: maker %s holds %s of %s, needs %s",
			ErrInsufficientBalance, o.Maker.Hex(), bal.Dec(), o.TokenGive, o.AmountGive.Dec())
	}

	t.batch.Debit(o.TokenGet, taker, total)
	t.batch.Credit(o.TokenGet, o.Maker, o.AmountGet)
	t.batch.Credit(o.TokenGet, e.cfg.FeeAccount, fee)
	t.batch.Debit(o.TokenGive, o.Maker, o.AmountGive)
	t.batch.Credit(o.TokenGive, taker, o.AmountGive)

	// rows shared between legs (self-fill, fee account trading) are
	// validated on their net effect, credits included
	if _, err := e.ledger.Preview(t.batch); err != nil {
		return err
	}
	return nil
}
