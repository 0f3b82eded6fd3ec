package main

import (
	"context"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/ethereum/go-ethereum/common"

	"github.com/uhyunpark/tokenex/pkg/api"
	"github.com/uhyunpark/tokenex/pkg/app/core/asset"
	"github.com/uhyunpark/tokenex/pkg/app/core/orderbook"
	"github.com/uhyunpark/tokenex/pkg/app/core/transaction"
	"github.com/uhyunpark/tokenex/pkg/app/exchange"
	"github.com/uhyunpark/tokenex/pkg/app/token"
	"github.com/uhyunpark/tokenex/pkg/crypto"
	"github.com/uhyunpark/tokenex/pkg/storage"
	"github.com/uhyunpark/tokenex/pkg/util"
)

var (
	tokenAt = common.HexToAddress("0x5FbDB2315678afecb367f032d93F642f64180aa3")
	custody = common.HexToAddress("0xc057000000000000000000000000000000000003")
)

func TestSeedAgainstNode(t *testing.T) {
	user1, _ := crypto.GenerateKey()
	user2, _ := crypto.GenerateKey()

	tok := token.New(tokenAt, "DApp Token", "DAPP", 18, asset.Units("1000000"), user1.Address())
	bank := token.NewNativeBank()
	for _, s := range []*crypto.Signer{user1, user2} {
		if err := bank.Mint(s.Address(), asset.Units("100")); err != nil {
			t.Fatal(err)
		}
	}
	reg := token.NewRegistry()
	reg.Register(tok)
	vault := &token.Vault{Bank: bank, Custody: custody}
	store := storage.NewMemStore()

	ex, err := exchange.New(
		exchange.Config{FeeAccount: user1.Address(), FeePercent: 10, Custody: custody},
		exchange.Deps{
			Tokens: &token.Facility{Registry: reg, Custody: custody},
			Native: vault,
			Store:  store,
			Clock:  util.NewManualClock(time.Unix(1700000000, 0)),
			Signed: &exchange.SignedDeps{
				Verifier: transaction.NewVerifier(crypto.DefaultDomain()),
				Wallets:  &token.Wallets{Registry: reg, Vault: vault},
			},
		})
	if err != nil {
		t.Fatal(err)
	}
	srv := httptest.NewServer(api.NewServer(api.Options{Exchange: ex, Events: store, Tokens: reg, Native: bank}).Handler())
	defer srv.Close()

	cl := newClient(srv.URL)
	sd := &seeder{
		cl:      cl,
		signer:  crypto.NewEIP712Signer(crypto.DefaultDomain()),
		nonces:  make(map[common.Address]uint64),
		token:   asset.Token(tokenAt),
		custody: custody,
	}
	if err := sd.run(context.Background(), user1, user2); err != nil {
		t.Fatalf("seed: %v", err)
	}

	// 1 cancelled + 3 filled + 20 open
	if ex.OrderCount() != 24 {
		t.Errorf("order count = %d", ex.OrderCount())
	}
	if n := len(ex.Orders(orderbook.Filter{Status: orderbook.StatusOpen})); n != 20 {
		t.Errorf("open orders = %d", n)
	}
	if n := len(ex.Orders(orderbook.Filter{Status: orderbook.StatusFilled})); n != 3 {
		t.Errorf("filled orders = %d", n)
	}
	if n := len(ex.Orders(orderbook.Filter{Status: orderbook.StatusCancelled})); n != 1 {
		t.Errorf("cancelled orders = %d", n)
	}

	// user2 paid 350 tokens plus a 10% fee out of a 10000 deposit
	if got := ex.BalanceOf(asset.Token(tokenAt), user2.Address()); !got.Eq(asset.Units("9615")) {
		t.Errorf("user2 tokens = %s", asset.FormatUnits(got, asset.Decimals))
	}
	// user1 gave 0.26 native; it is also the fee account
	if got := ex.BalanceOf(asset.Native, user1.Address()); !got.Eq(asset.Units("0.74")) {
		t.Errorf("user1 native = %s", asset.FormatUnits(got, asset.Decimals))
	}
	if got := ex.BalanceOf(asset.Token(tokenAt), user1.Address()); !got.Eq(asset.Units("385")) {
		t.Errorf("user1 tokens = %s", asset.FormatUnits(got, asset.Decimals))
	}

	// the nonce cache matches the node
	next, err := cl.nextNonce(context.Background(), user1.Address())
	if err != nil {
		t.Fatal(err)
	}
	if next != sd.nonces[user1.Address()]+1 {
		t.Errorf("node next nonce %d, seeder at %d", next, sd.nonces[user1.Address()])
	}
}

func TestClientReportsAPIError(t *testing.T) {
	srv := httptest.NewServer(api.NewServer(api.Options{}).Handler())
	defer srv.Close()

	err := newClient(srv.URL).get(context.Background(), "/api/v1/events", nil)
	apiErr, ok := err.(*apiError)
	if !ok || apiErr.Status != 503 || apiErr.Code != "events_unavailable" {
		t.Errorf("err = %v", err)
	}
}
