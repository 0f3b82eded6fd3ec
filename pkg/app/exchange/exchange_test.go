package exchange

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/ethereum/go-ethereum/common"
	"github.com/holiman/uint256"

	"github.com/uhyunpark/tokenex/pkg/app/core/asset"
	"github.com/uhyunpark/tokenex/pkg/app/core/events"
	"github.com/uhyunpark/tokenex/pkg/app/core/orderbook"
	"github.com/uhyunpark/tokenex/pkg/app/token"
	"github.com/uhyunpark/tokenex/pkg/storage"
	"github.com/uhyunpark/tokenex/pkg/util"
)

var (
	deployer   = common.HexToAddress("0xde00000000000000000000000000000000000001")
	feeAccount = common.HexToAddress("0xfee0000000000000000000000000000000000002")
	user1      = common.HexToAddress("0x1111111111111111111111111111111111111111")
	user2      = common.HexToAddress("0x2222222222222222222222222222222222222222")
	custody    = common.HexToAddress("0xc057000000000000000000000000000000000003")
	tokenAt    = common.HexToAddress("0x5FbDB2315678afecb367f032d93F642f64180aa3")
	tkn        = asset.Token(tokenAt)
	native     = asset.Native
)

type fixture struct {
	ex    *Exchange
	tok   *token.Token
	bank  *token.NativeBank
	vault *token.Vault
	state *token.State
	clock *util.ManualClock
}

type fixtureOpt func(*Deps)

func newFixture(t *testing.T, store Store, opts ...fixtureOpt) *fixture {
	t.Helper()
	f := &fixture{
		tok:   token.New(tokenAt, "DApp Token", "DAPP", 18, asset.Units("1000000"), deployer),
		bank:  token.NewNativeBank(),
		clock: util.NewManualClock(time.Unix(1700000000, 0)),
	}
	for _, u := range []common.Address{user1, user2} {
		if err := f.tok.Transfer(deployer, u, asset.Units("100")); err != nil {
			t.Fatal(err)
		}
		if err := f.bank.Mint(u, asset.Units("100")); err != nil {
			t.Fatal(err)
		}
	}
	reg := token.NewRegistry()
	reg.Register(f.tok)
	f.vault = &token.Vault{Bank: f.bank, Custody: custody}
	f.state = &token.State{Tokens: reg, Native: f.bank}

	deps := Deps{
		Tokens: &token.Facility{Registry: reg, Custody: custody},
		Native: f.vault,
		Store:  store,
		Clock:  f.clock,
	}
	if store != nil {
		deps.Blobs = f.state
	}
	for _, o := range opts {
		o(&deps)
	}
	ex, err := New(Config{FeeAccount: feeAccount, FeePercent: 1, Custody: custody}, deps)
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	f.ex = ex
	return f
}

func (f *fixture) depositNative(t *testing.T, user common.Address, amount string) *Receipt {
	t.Helper()
	amt := asset.Units(amount)
	if err := f.vault.Collect(context.Background(), user, amt); err != nil {
		t.Fatalf("collect: %v", err)
	}
	r, err := f.ex.DepositNative(context.Background(), user, amt, amt)
	if err != nil {
		t.Fatalf("DepositNative: %v", err)
	}
	return r
}

func (f *fixture) depositToken(t *testing.T, user common.Address, amount string) *Receipt {
	t.Helper()
	amt := asset.Units(amount)
	if err := f.tok.Approve(user, custody, amt); err != nil {
		t.Fatal(err)
	}
	r, err := f.ex.DepositToken(context.Background(), tkn, user, amt)
	if err != nil {
		t.Fatalf("DepositToken: %v", err)
	}
	return r
}

func (f *fixture) makeOrder(t *testing.T, maker common.Address, getAsset asset.Asset, get string, giveAsset asset.Asset, give string) uint64 {
	t.Helper()
	r, err := f.ex.MakeOrder(context.Background(), maker, getAsset, asset.Units(get), giveAsset, asset.Units(give))
	if err != nil {
		t.Fatalf("MakeOrder: %v", err)
	}
	return r.OrderID
}

func wantBalance(t *testing.T, ex *Exchange, a asset.Asset, user common.Address, want string) {
	t.Helper()
	if got := ex.BalanceOf(a, user); !got.Eq(asset.Units(want)) {
		t.Errorf("balance of %s in %s = %s, want %s", user.Hex(), a, asset.FormatUnits(got, asset.Decimals), want)
	}
}

func TestConfigIsFixed(t *testing.T) {
	f := newFixture(t, nil)
	if f.ex.FeeAccount() != feeAccount {
		t.Errorf("fee account = %s", f.ex.FeeAccount().Hex())
	}
	if f.ex.FeePercent() != 1 {
		t.Errorf("fee percent = %d", f.ex.FeePercent())
	}
	if f.ex.Custody() != custody {
		t.Errorf("custody = %s", f.ex.Custody().Hex())
	}
}

func TestDepositNative(t *testing.T) {
	f := newFixture(t, nil)
	r := f.depositNative(t, user1, "1")

	wantBalance(t, f.ex, native, user1, "1")
	if len(r.Events) != 1 {
		t.Fatalf("events = %d, want 1", len(r.Events))
	}
	ev := r.Events[0]
	if ev.Kind != events.KindDeposited || ev.Seq != 1 || ev.Balance.User != user1 ||
		!ev.Balance.Asset.IsNative() || !ev.Balance.Balance.Eq(asset.Units("1")) {
		t.Errorf("deposit event = %+v / %+v", ev, ev.Balance)
	}

	// claimed amount must equal what arrived
	_, err := f.ex.DepositNative(context.Background(), user1, asset.Units("5"), asset.Units("1"))
	if !errors.Is(err, ErrValueMismatch) {
		t.Errorf("mismatched deposit = %v, want ErrValueMismatch", err)
	}
	wantBalance(t, f.ex, native, user1, "1")

	// zero is a valid deposit
	if _, err := f.ex.DepositNative(context.Background(), user1, new(uint256.Int), new(uint256.Int)); err != nil {
		t.Errorf("zero deposit: %v", err)
	}
}

func TestDepositToken(t *testing.T) {
	f := newFixture(t, nil)
	ctx := context.Background()

	f.depositToken(t, user1, "10")
	wantBalance(t, f.ex, tkn, user1, "10")
	if !f.tok.BalanceOf(custody).Eq(asset.Units("10")) {
		t.Errorf("custody holds %s tokens", f.tok.BalanceOf(custody).Dec())
	}

	if _, err := f.ex.DepositToken(ctx, native, user1, asset.Units("1")); !errors.Is(err, ErrInvalidAsset) {
		t.Errorf("native via DepositToken = %v, want ErrInvalidAsset", err)
	}

	// no allowance left
	_, err := f.ex.DepositToken(ctx, tkn, user1, asset.Units("10"))
	if !errors.Is(err, ErrTransferFailed) {
		t.Errorf("unapproved deposit = %v, want ErrTransferFailed", err)
	}
	wantBalance(t, f.ex, tkn, user1, "10")
	if f.ex.Seq() != 1 {
		t.Errorf("failed deposits consumed sequence numbers: %d", f.ex.Seq())
	}
}

type brokenReleaser struct{}

func (brokenReleaser) Release(context.Context, common.Address, *uint256.Int) error {
	return errors.New("value transfer reverted")
}

func TestWithdraw(t *testing.T) {
	f := newFixture(t, nil)
	ctx := context.Background()
	f.depositNative(t, user1, "1")
	f.depositToken(t, user1, "10")

	r, err := f.ex.Withdraw(ctx, native, user1, asset.Units("0.4"))
	if err != nil {
		t.Fatalf("Withdraw native: %v", err)
	}
	wantBalance(t, f.ex, native, user1, "0.6")
	if !f.bank.BalanceOf(user1).Eq(asset.Units("99.4")) {
		t.Errorf("wallet native = %s", f.bank.BalanceOf(user1).Dec())
	}
	if ev := r.Events[0]; ev.Kind != events.KindWithdrawn || !ev.Balance.Balance.Eq(asset.Units("0.6")) {
		t.Errorf("withdraw event = %+v", ev.Balance)
	}

	if _, err := f.ex.Withdraw(ctx, tkn, user1, asset.Units("10")); err != nil {
		t.Fatalf("Withdraw token: %v", err)
	}
	wantBalance(t, f.ex, tkn, user1, "0")
	if !f.tok.BalanceOf(user1).Eq(asset.Units("100")) {
		t.Errorf("wallet tokens = %s", f.tok.BalanceOf(user1).Dec())
	}

	// more than held
	if _, err := f.ex.Withdraw(ctx, native, user1, asset.Units("100")); !errors.Is(err, ErrInsufficientBalance) {
		t.Errorf("overdraw = %v, want ErrInsufficientBalance", err)
	}
	wantBalance(t, f.ex, native, user1, "0.6")
}

func TestWithdrawReleaseFailureRollsBack(t *testing.T) {
	f := newFixture(t, nil, func(d *Deps) { d.Native = brokenReleaser{} })
	f.depositNative(t, user1, "1")

	_, err := f.ex.Withdraw(context.Background(), native, user1, asset.Units("1"))
	if !errors.Is(err, ErrTransferFailed) {
		t.Fatalf("Withdraw = %v, want ErrTransferFailed", err)
	}
	wantBalance(t, f.ex, native, user1, "1")
}

func TestNilAmountsRejected(t *testing.T) {
	f := newFixture(t, nil)
	ctx := context.Background()
	one := asset.Units("1")

	tests := []struct {
		name string
		call func() (*Receipt, error)
	}{
		{"deposit native amount", func() (*Receipt, error) { return f.ex.DepositNative(ctx, user1, nil, one) }},
		{"deposit native received", func() (*Receipt, error) { return f.ex.DepositNative(ctx, user1, one, nil) }},
		{"deposit token", func() (*Receipt, error) { return f.ex.DepositToken(ctx, tkn, user1, nil) }},
		{"withdraw", func() (*Receipt, error) { return f.ex.Withdraw(ctx, native, user1, nil) }},
		{"make get", func() (*Receipt, error) { return f.ex.MakeOrder(ctx, user1, tkn, nil, native, one) }},
		{"make give", func() (*Receipt, error) { return f.ex.MakeOrder(ctx, user1, tkn, one, native, nil) }},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			r, err := tt.call()
			if !errors.Is(err, asset.ErrBadAmount) || r != nil {
				t.Errorf("got %v, %v; want ErrBadAmount", r, err)
			}
		})
	}
	if f.ex.OrderCount() != 0 || f.ex.Seq() != 0 {
		t.Errorf("rejected calls changed state: orders %d seq %d", f.ex.OrderCount(), f.ex.Seq())
	}
}

func TestMakeOrder(t *testing.T) {
	f := newFixture(t, nil)

	// no balance needed to post
	id := f.makeOrder(t, user1, tkn, "1", native, "1")
	if id != 1 {
		t.Fatalf("first order id = %d, want 1", id)
	}
	if id2 := f.makeOrder(t, user2, native, "1", tkn, "1"); id2 != 2 {
		t.Errorf("second order id = %d, want 2", id2)
	}
	if f.ex.OrderCount() != 2 {
		t.Errorf("OrderCount = %d", f.ex.OrderCount())
	}

	o, err := f.ex.GetOrder(1)
	if err != nil {
		t.Fatal(err)
	}
	if o.Maker != user1 || o.TokenGet != tkn || !o.AmountGet.Eq(asset.Units("1")) ||
		!o.TokenGive.IsNative() || o.Timestamp != 1700000000 || o.Status() != orderbook.StatusOpen {
		t.Errorf("order = %+v", o)
	}
	if _, err := f.ex.GetOrder(9999); !errors.Is(err, ErrOrderNotFound) {
		t.Errorf("GetOrder(9999) = %v", err)
	}
}

func TestCancelOrder(t *testing.T) {
	f := newFixture(t, nil)
	ctx := context.Background()
	id := f.makeOrder(t, user1, tkn, "1", native, "1")
	f.clock.Advance(time.Minute)

	if _, err := f.ex.CancelOrder(ctx, 9999, user1); !errors.Is(err, ErrOrderNotFound) {
		t.Errorf("cancel 9999 = %v", err)
	}
	if _, err := f.ex.CancelOrder(ctx, id, user2); !errors.Is(err, ErrUnauthorized) {
		t.Errorf("foreign cancel = %v", err)
	}
	if o, _ := f.ex.GetOrder(id); o.Cancelled {
		t.Fatal("unauthorized cancel changed the order")
	}

	r, err := f.ex.CancelOrder(ctx, id, user1)
	if err != nil {
		t.Fatalf("CancelOrder: %v", err)
	}
	ev := r.Events[0]
	if ev.Kind != events.KindOrderCancelled || ev.Order.ID != id || ev.Order.Timestamp != 1700000060 {
		t.Errorf("cancel event = %+v", ev.Order)
	}

	if _, err := f.ex.CancelOrder(ctx, id, user1); !errors.Is(err, ErrAlreadyCancelled) {
		t.Errorf("second cancel = %v", err)
	}
	if _, err := f.ex.FillOrder(ctx, id, user2); !errors.Is(err, ErrAlreadyCancelled) {
		t.Errorf("fill after cancel = %v", err)
	}
}

// deposit 1 native for A, 2 tokens for B; A asks 1 token for 1 native; B fills
func TestFillScenario(t *testing.T) {
	f := newFixture(t, nil)
	ctx := context.Background()

	f.depositNative(t, user1, "1")
	f.depositToken(t, user2, "2")
	id := f.makeOrder(t, user1, tkn, "1", native, "1")

	r, err := f.ex.FillOrder(ctx, id, user2)
	if err != nil {
		t.Fatalf("FillOrder: %v", err)
	}

	wantBalance(t, f.ex, tkn, user1, "1")
	wantBalance(t, f.ex, native, user2, "1")
	wantBalance(t, f.ex, native, user1, "0")
	wantBalance(t, f.ex, tkn, user2, "0.99")
	wantBalance(t, f.ex, tkn, feeAccount, "0.01")

	ev := r.Events[0]
	if ev.Kind != events.KindOrderFilled || ev.Order.Taker != user2 || ev.Order.Maker != user1 || r.OrderID != id {
		t.Errorf("fill event = %+v", ev.Order)
	}
	if o, _ := f.ex.GetOrder(id); !o.Filled || o.Cancelled {
		t.Errorf("order flags after fill = %+v", o)
	}

	before := f.ex.StateHash()
	if _, err := f.ex.FillOrder(ctx, id, user2); !errors.Is(err, ErrAlreadyFilled) {
		t.Errorf("second fill = %v, want ErrAlreadyFilled", err)
	}
	if _, err := f.ex.CancelOrder(ctx, id, user1); !errors.Is(err, ErrAlreadyFilled) {
		t.Errorf("cancel after fill = %v, want ErrAlreadyFilled", err)
	}
	if f.ex.StateHash() != before {
		t.Error("failed second fill changed state")
	}
	if _, err := f.ex.FillOrder(ctx, 9999, user2); !errors.Is(err, ErrOrderNotFound) {
		t.Errorf("fill 9999 = %v", err)
	}
}

func TestFillInsufficientBalances(t *testing.T) {
	f := newFixture(t, nil)
	ctx := context.Background()

	f.depositNative(t, user1, "1")
	f.depositToken(t, user2, "1") // needs 1.01 with the fee
	id := f.makeOrder(t, user1, tkn, "1", native, "1")

	before := f.ex.StateHash()
	if _, err := f.ex.FillOrder(ctx, id, user2); !errors.Is(err, ErrInsufficientBalance) {
		t.Fatalf("underfunded taker = %v", err)
	}
	if f.ex.StateHash() != before {
		t.Error("failed fill changed state")
	}

	// the order stays fillable
	f.depositToken(t, user2, "0.01")
	if _, err := f.ex.FillOrder(ctx, id, user2); err != nil {
		t.Fatalf("retry fill: %v", err)
	}
	wantBalance(t, f.ex, tkn, user2, "0")

	// maker drained their side after posting
	id2 := f.makeOrder(t, user2, native, "0.5", tkn, "1")
	f.depositNative(t, user1, "1")
	if _, err := f.ex.FillOrder(ctx, id2, user1); !errors.Is(err, ErrInsufficientBalance) {
		t.Errorf("underfunded maker = %v", err)
	}
	if o, _ := f.ex.GetOrder(id2); o.Filled {
		t.Error("order marked filled after failed settlement")
	}
}

func TestFee(t *testing.T) {
	tests := []struct {
		amount  *uint256.Int
		percent uint64
		want    *uint256.Int
	}{
		{uint256.NewInt(100), 1, uint256.NewInt(1)},
		{uint256.NewInt(100), 0, uint256.NewInt(0)},
		{uint256.NewInt(99), 1, uint256.NewInt(0)}, // truncates
		{uint256.NewInt(250), 10, uint256.NewInt(25)},
		{asset.Units("1"), 1, asset.Units("0.01")},
	}
	for _, tt := range tests {
		got, err := Fee(tt.amount, tt.percent)
		if err != nil {
			t.Fatal(err)
		}
		if !got.Eq(tt.want) {
			t.Errorf("Fee(%s, %d) = %s, want %s", tt.amount.Dec(), tt.percent, got.Dec(), tt.want.Dec())
		}
	}

	top := new(uint256.Int).SetAllOne()
	if _, err := Fee(top, 2); !errors.Is(err, ErrOverflow) {
		t.Errorf("Fee overflow = %v", err)
	}
}

func TestFeeConservation(t *testing.T) {
	f := newFixture(t, nil)
	ctx := context.Background()

	f.depositToken(t, user2, "100")
	f.depositNative(t, user1, "1")
	id := f.makeOrder(t, user1, tkn, "50", native, "1")
	if _, err := f.ex.FillOrder(ctx, id, user2); err != nil {
		t.Fatal(err)
	}

	// taker paid 50.5 = 50 to maker + 0.5 fee
	wantBalance(t, f.ex, tkn, user2, "49.5")
	wantBalance(t, f.ex, tkn, user1, "50")
	wantBalance(t, f.ex, tkn, feeAccount, "0.5")
	if !f.ex.Totals(tkn).Eq(asset.Units("100")) {
		t.Errorf("token total = %s, want 100", f.ex.Totals(tkn).Dec())
	}
}

// A maker may fill their own order; the trade legs cancel and only the fee moves.
func TestSelfFill(t *testing.T) {
	f := newFixture(t, nil)
	ctx := context.Background()

	f.depositToken(t, user1, "2")
	f.depositNative(t, user1, "1")
	id := f.makeOrder(t, user1, tkn, "1", native, "1")

	if _, err := f.ex.FillOrder(ctx, id, user1); err != nil {
		t.Fatalf("self fill: %v", err)
	}
	wantBalance(t, f.ex, tkn, user1, "1.99")
	wantBalance(t, f.ex, native, user1, "1")
	wantBalance(t, f.ex, tkn, feeAccount, "0.01")

	// same-asset self order the maker cannot cover with the fee
	id = f.makeOrder(t, user1, tkn, "1.99", tkn, "1.99")
	if _, err := f.ex.FillOrder(ctx, id, user1); !errors.Is(err, ErrInsufficientBalance) {
		t.Errorf("underfunded same-asset self fill = %v", err)
	}
}

func TestCustodyInvariant(t *testing.T) {
	f := newFixture(t, nil)
	ctx := context.Background()

	check := func(step string) {
		t.Helper()
		if f.ex.Totals(native).Gt(f.bank.BalanceOf(custody)) {
			t.Errorf("%s: native ledger %s exceeds custody %s", step, f.ex.Totals(native).Dec(), f.bank.BalanceOf(custody).Dec())
		}
		if f.ex.Totals(tkn).Gt(f.tok.BalanceOf(custody)) {
			t.Errorf("%s: token ledger %s exceeds custody %s", step, f.ex.Totals(tkn).Dec(), f.tok.BalanceOf(custody).Dec())
		}
	}

	f.depositNative(t, user1, "3")
	f.depositToken(t, user2, "20")
	check("deposits")
	id := f.makeOrder(t, user1, tkn, "10", native, "2")
	if _, err := f.ex.FillOrder(ctx, id, user2); err != nil {
		t.Fatal(err)
	}
	check("fill")
	for _, w := range []struct {
		a    asset.Asset
		user common.Address
		amt  string
	}{
		{native, user2, "2"}, {tkn, user1, "10"}, {tkn, feeAccount, "0.1"}, {native, user1, "1"},
	} {
		if _, err := f.ex.Withdraw(ctx, w.a, w.user, asset.Units(w.amt)); err != nil {
			t.Fatalf("withdraw %s %s: %v", w.amt, w.a, err)
		}
		check("withdraw")
	}
	if !f.ex.Totals(native).IsZero() {
		t.Errorf("native left in ledger: %s", f.ex.Totals(native).Dec())
	}
}

func TestEventSequenceAndBus(t *testing.T) {
	bus := events.NewBus(64, nil)
	rec := &events.Recorder{}
	bus.Attach(rec)
	done := make(chan struct{})
	go func() {
		bus.Run(context.Background())
		close(done)
	}()

	f := newFixture(t, nil, func(d *Deps) { d.Bus = bus })
	ctx := context.Background()
	f.depositNative(t, user1, "1")
	f.depositToken(t, user2, "2")
	id := f.makeOrder(t, user1, tkn, "1", native, "1")
	_, _ = f.ex.CancelOrder(ctx, id, user2) // rejected, emits nothing
	if _, err := f.ex.FillOrder(ctx, id, user2); err != nil {
		t.Fatal(err)
	}
	bus.Close()
	<-done

	got := rec.Events()
	wantKinds := []events.Kind{events.KindDeposited, events.KindDeposited, events.KindOrderCreated, events.KindOrderFilled}
	if len(got) != len(wantKinds) {
		t.Fatalf("published %d events, want %d", len(got), len(wantKinds))
	}
	for i, ev := range got {
		if ev.Seq != uint64(i+1) || ev.Kind != wantKinds[i] {
			t.Errorf("event %d = seq %d kind %s", i, ev.Seq, ev.Kind)
		}
	}
}

type flakyStore struct {
	*storage.MemStore
	fail error
}

func (s *flakyStore) Commit(cs storage.ChangeSet) error {
	if s.fail != nil {
		return s.fail
	}
	return s.MemStore.Commit(cs)
}

func TestRestoreFromStore(t *testing.T) {
	store := storage.NewMemStore()
	f := newFixture(t, store)
	ctx := context.Background()

	f.depositNative(t, user1, "1")
	f.depositToken(t, user2, "2")
	id := f.makeOrder(t, user1, tkn, "1", native, "1")
	if _, err := f.ex.FillOrder(ctx, id, user2); err != nil {
		t.Fatal(err)
	}
	f.makeOrder(t, user2, native, "1", tkn, "1")
	hash := f.ex.StateHash()

	// a fresh process over the same store; collaborator state comes back too
	g := newFixture(t, store)
	if g.ex.StateHash() != hash {
		t.Error("restored state hash differs")
	}
	wantBalance(t, g.ex, tkn, user2, "0.99")
	if g.ex.OrderCount() != 2 || g.ex.Seq() != f.ex.Seq() {
		t.Errorf("restored count/seq = %d/%d", g.ex.OrderCount(), g.ex.Seq())
	}
	if o, _ := g.ex.GetOrder(id); !o.Filled {
		t.Error("restored order lost filled flag")
	}
	if !g.tok.BalanceOf(custody).Eq(f.tok.BalanceOf(custody)) {
		t.Errorf("restored custody tokens = %s", g.tok.BalanceOf(custody).Dec())
	}
	if next := g.makeOrder(t, user1, tkn, "1", native, "1"); next != 3 {
		t.Errorf("next id after restore = %d, want 3", next)
	}
	evs, _ := store.Events(0, 0)
	if len(evs) != int(g.ex.Seq()) {
		t.Errorf("stored %d events, seq is %d", len(evs), g.ex.Seq())
	}
}

func TestStorageFailure(t *testing.T) {
	store := &flakyStore{MemStore: storage.NewMemStore()}
	f := newFixture(t, store)
	ctx := context.Background()
	f.depositToken(t, user1, "1")

	store.fail = errors.New("disk full")

	// nothing left the ledger yet: the operation fails cleanly
	if _, err := f.ex.MakeOrder(ctx, user1, tkn, asset.Units("1"), native, asset.Units("1")); !errors.Is(err, ErrStorage) {
		t.Fatalf("MakeOrder = %v, want ErrStorage", err)
	}
	if f.ex.OrderCount() != 0 {
		t.Errorf("order created despite storage failure")
	}

	// tokens already moved: memory follows custody and the error is reported
	_ = f.tok.Approve(user1, custody, asset.Units("1"))
	r, err := f.ex.DepositToken(ctx, tkn, user1, asset.Units("1"))
	if !errors.Is(err, ErrStorage) {
		t.Fatalf("DepositToken = %v, want ErrStorage", err)
	}
	if r == nil {
		t.Fatal("no receipt for applied deposit")
	}
	wantBalance(t, f.ex, tkn, user1, "2")
}
