package main

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/ethereum/go-ethereum/common"
	"github.com/holiman/uint256"
	"github.com/urfave/cli/v2"

	"github.com/uhyunpark/tokenex/pkg/api"
	"github.com/uhyunpark/tokenex/pkg/app/core/asset"
	"github.com/uhyunpark/tokenex/pkg/app/core/transaction"
	"github.com/uhyunpark/tokenex/pkg/app/exchange"
	"github.com/uhyunpark/tokenex/pkg/crypto"
)

var seedCommand = &cli.Command{
	Name:  "seed",
	Usage: "populate a devnet with deposits, a cancelled order, filled orders and open orders",
	Flags: []cli.Flag{
		&cli.StringSliceFlag{Name: "key", Usage: "two hex private keys: the token holder and the counterparty"},
		&cli.StringFlag{Name: "token", Usage: "token address (default: first token the node reports)"},
		&cli.DurationFlag{Name: "delay", Value: time.Second, Usage: "pause between orders so timestamps differ"},
	},
	Action: func(c *cli.Context) error {
		keys := c.StringSlice("key")
		if len(keys) == 0 {
			keys = devKeys
		}
		if len(keys) != 2 {
			return errors.New("seed needs exactly two keys")
		}
		var signers [2]*crypto.Signer
		for i, k := range keys {
			s, err := crypto.FromPrivateKeyHex(k)
			if err != nil {
				return fmt.Errorf("key %d: %w", i, err)
			}
			signers[i] = s
		}

		cl := newClient(c.String("api"))
		info, err := cl.exchangeInfo(c.Context)
		if err != nil {
			return err
		}
		tokenAddr, err := seedToken(c, cl)
		if err != nil {
			return err
		}

		sd := &seeder{
			cl:      cl,
			signer:  crypto.NewEIP712Signer(crypto.DomainFor(c.Int64("chain-id"))),
			nonces:  make(map[common.Address]uint64),
			delay:   c.Duration("delay"),
			token:   asset.Token(tokenAddr),
			custody: common.HexToAddress(info.Custody),
		}
		return sd.run(c.Context, signers[0], signers[1])
	},
}

func seedToken(c *cli.Context, cl *client) (common.Address, error) {
	if t := c.String("token"); t != "" {
		if !common.IsHexAddress(t) {
			return common.Address{}, fmt.Errorf("token: not an address: %q", t)
		}
		return common.HexToAddress(t), nil
	}
	var toks []api.TokenInfo
	if err := cl.get(c.Context, "/api/v1/tokens", &toks); err != nil {
		return common.Address{}, err
	}
	if len(toks) == 0 {
		return common.Address{}, errors.New("node reports no tokens")
	}
	return common.HexToAddress(toks[0].Address), nil
}

type seeder struct {
	cl      *client
	signer  *crypto.EIP712Signer
	nonces  map[common.Address]uint64
	delay   time.Duration
	token   asset.Asset
	custody common.Address
}

func (s *seeder) apply(ctx context.Context, who *crypto.Signer, a transaction.Action) (*exchange.Receipt, error) {
	addr := who.Address()
	if _, ok := s.nonces[addr]; !ok {
		next, err := s.cl.nextNonce(ctx, addr)
		if err != nil {
			return nil, err
		}
		s.nonces[addr] = next - 1
	}
	s.nonces[addr]++
	a.Nonce = s.nonces[addr]
	stx, err := transaction.Sign(s.signer, who, a)
	if err != nil {
		return nil, err
	}
	r, err := s.cl.submit(ctx, stx)
	if err != nil {
		return nil, fmt.Errorf("%s from %s: %w", a.Kind, addr.Hex(), err)
	}
	return r, nil
}

func (s *seeder) pause(ctx context.Context) error {
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-time.After(s.delay):
		return nil
	}
}

func units(v string) *uint256.Int { return asset.Units(v) }

// makeOrder places an order and returns its id
func (s *seeder) makeOrder(ctx context.Context, who *crypto.Signer, get asset.Asset, amountGet string, give asset.Asset, amountGive string) (uint64, error) {
	r, err := s.apply(ctx, who, transaction.Action{
		Kind:          transaction.KindMake,
		Asset:         get,
		Amount:        units(amountGet),
		CounterAsset:  give,
		CounterAmount: units(amountGive),
	})
	if err != nil {
		return 0, err
	}
	return r.OrderID, nil
}

func (s *seeder) run(ctx context.Context, user1, user2 *crypto.Signer) error {
	u1, u2 := user1.Address(), user2.Address()

	if _, err := s.apply(ctx, user1, transaction.Action{Kind: transaction.KindTokenTransfer, Asset: s.token, Amount: units("10000"), Target: u2}); err != nil {
		return err
	}
	fmt.Printf("sent 10000 tokens from %s to %s\n", u1.Hex(), u2.Hex())

	if _, err := s.apply(ctx, user1, transaction.Action{Kind: transaction.KindDepositNative, Amount: units("1"), Value: units("1")}); err != nil {
		return err
	}
	fmt.Printf("deposited 1 native from %s\n", u1.Hex())

	if _, err := s.apply(ctx, user2, transaction.Action{Kind: transaction.KindTokenApprove, Asset: s.token, Amount: units("10000"), Target: s.custody}); err != nil {
		return err
	}
	if _, err := s.apply(ctx, user2, transaction.Action{Kind: transaction.KindDepositToken, Asset: s.token, Amount: units("10000")}); err != nil {
		return err
	}
	fmt.Printf("approved and deposited 10000 tokens from %s\n", u2.Hex())

	// cancelled order
	id, err := s.makeOrder(ctx, user1, s.token, "100", asset.Native, "0.1")
	if err != nil {
		return err
	}
	if _, err := s.apply(ctx, user1, transaction.Action{Kind: transaction.KindCancel, OrderID: id}); err != nil {
		return err
	}
	fmt.Printf("order %d made and cancelled by %s\n", id, u1.Hex())

	// filled orders
	for _, o := range []struct{ get, give string }{{"100", "0.1"}, {"50", "0.01"}, {"200", "0.15"}} {
		id, err := s.makeOrder(ctx, user1, s.token, o.get, asset.Native, o.give)
		if err != nil {
			return err
		}
		if _, err := s.apply(ctx, user2, transaction.Action{Kind: transaction.KindFill, OrderID: id}); err != nil {
			return err
		}
		fmt.Printf("order %d made by %s, filled by %s\n", id, u1.Hex(), u2.Hex())
		if err := s.pause(ctx); err != nil {
			return err
		}
	}

	// open orders from both sides
	for i := 1; i <= 10; i++ {
		id, err := s.makeOrder(ctx, user1, s.token, "10", asset.Native, "0.01")
		if err != nil {
			return err
		}
		fmt.Printf("open order %d from %s\n", id, u1.Hex())
		if err := s.pause(ctx); err != nil {
			return err
		}
	}
	for i := 1; i <= 10; i++ {
		id, err := s.makeOrder(ctx, user2, asset.Native, "0.01", s.token, fmt.Sprint(10*i))
		if err != nil {
			return err
		}
		fmt.Printf("open order %d from %s\n", id, u2.Hex())
		if err := s.pause(ctx); err != nil {
			return err
		}
	}
	return nil
}
