// Package swap is a fixed-rate instant swap between native value and one
// token. It keeps no ledger and takes no fee.
package swap

import (
	"context"
	"errors"
	"fmt"
	"sync"

	"github.com/ethereum/go-ethereum/common"
	"github.com/holiman/uint256"
	"go.uber.org/zap"

	"github.com/uhyunpark/tokenex/pkg/app/core/events"
	"github.com/uhyunpark/tokenex/pkg/app/token"
	"github.com/uhyunpark/tokenex/pkg/util"
)

const Name = "EthSwap Instant Exchange"

var (
	ErrInsufficientSupply = errors.New("insufficient swap supply")
	ErrInvalidRate        = errors.New("swap rate must be positive")
	ErrOverflow           = errors.New("swap amount overflow")
)

// Swap trades at Rate token units per native unit. Its reserves are the
// token and native balances held at Address.
type Swap struct {
	Address common.Address
	Rate    uint64

	token *token.Token
	bank  *token.NativeBank
	clock util.Clock
	log   *zap.SugaredLogger

	mu sync.Mutex
}

func New(addr common.Address, rate uint64, tok *token.Token, bank *token.NativeBank, clock util.Clock, log *zap.SugaredLogger) (*Swap, error) {
	if rate == 0 {
		return nil, ErrInvalidRate
	}
	if clock == nil {
		clock = util.RealClock{}
	}
	if log == nil {
		log = zap.NewNop().Sugar()
	}
	return &Swap{Address: addr, Rate: rate, token: tok, bank: bank, clock: clock, log: log}, nil
}

func (s *Swap) Token() common.Address { return s.token.Address }

// Quote returns the tokens nativeIn buys
func (s *Swap) Quote(nativeIn *uint256.Int) (*uint256.Int, error) {
	out, overflow := new(uint256.Int).MulOverflow(nativeIn, uint256.NewInt(s.Rate))
	if overflow {
		return nil, fmt.Errorf("%w: %s * %d", ErrOverflow, nativeIn.Dec(), s.Rate)
	}
	return out, nil
}

// Buy sells tokens for the buyer's native value
func (s *Swap) Buy(_ context.Context, buyer common.Address, nativeIn *uint256.Int) (*uint256.Int, events.Event, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	tokenOut, err := s.Quote(nativeIn)
	if err != nil {
		return nil, events.Event{}, err
	}
	if reserve := s.token.BalanceOf(s.Address); reserve.Lt(tokenOut) {
		return nil, events.Event{}, fmt.Errorf("%w: %s tokens left, need %s", ErrInsufficientSupply, reserve.Dec(), tokenOut.Dec())
	}
	if bal := s.bank.BalanceOf(buyer); bal.Lt(nativeIn) {
		return nil, events.Event{}, fmt.Errorf("%w: %s has %s native", token.ErrInsufficientBalance, buyer.Hex(), bal.Dec())
	}

	if err := s.bank.Transfer(buyer, s.Address, nativeIn); err != nil {
		return nil, events.Event{}, err
	}
	if err := s.token.Transfer(s.Address, buyer, tokenOut); err != nil {
		// reserve moved under us; return the payment
		if rbErr := s.bank.Transfer(s.Address, buyer, nativeIn); rbErr != nil {
			s.log.Errorw("swap_refund_failed", "buyer", buyer.Hex(), "amount", nativeIn.Dec(), "err", rbErr)
		}
		return nil, events.Event{}, err
	}

	s.log.Infow("tokens_purchased", "account", buyer.Hex(), "native_in", nativeIn.Dec(), "tokens_out", tokenOut.Dec())
	return tokenOut, events.TokensPurchased(buyer, s.token.Address, tokenOut, s.Rate, s.clock.Now().Unix()), nil
}

// Sell buys back tokens the seller approved to the swap address
func (s *Swap) Sell(_ context.Context, seller common.Address, tokenIn *uint256.Int) (*uint256.Int, events.Event, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if bal := s.token.BalanceOf(seller); bal.Lt(tokenIn) {
		return nil, events.Event{}, fmt.Errorf("%w: %s has %s tokens", token.ErrInsufficientBalance, seller.Hex(), bal.Dec())
	}
	nativeOut := new(uint256.Int).Div(tokenIn, uint256.NewInt(s.Rate))
	if reserve := s.bank.BalanceOf(s.Address); reserve.Lt(nativeOut) {
		return nil, events.Event{}, fmt.Errorf("%w: %s native left, need %s", ErrInsufficientSupply, reserve.Dec(), nativeOut.Dec())
	}
	if allowed := s.token.Allowance(seller, s.Address); allowed.Lt(tokenIn) {
		return nil, events.Event{}, fmt.Errorf("%w: swap allowed %s, need %s", token.ErrInsufficientAllowance, allowed.Dec(), tokenIn.Dec())
	}

	if err := s.token.TransferFrom(s.Address, seller, s.Address, tokenIn); err != nil {
		return nil, events.Event{}, err
	}
	if err := s.bank.Transfer(s.Address, seller, nativeOut); err != nil {
		if rbErr := s.token.Transfer(s.Address, seller, tokenIn); rbErr != nil {
			s.log.Errorw("swap_refund_failed", "seller", seller.Hex(), "amount", tokenIn.Dec(), "err", rbErr)
		}
		return nil, events.Event{}, err
	}

	s.log.Infow("tokens_sold", "account", seller.Hex(), "tokens_in", tokenIn.Dec(), "native_out", nativeOut.Dec())
	return nativeOut, events.TokensSold(seller, s.token.Address, tokenIn, s.Rate, s.clock.Now().Unix()), nil
}
