// Package exchange is the custodial token exchange: the balance ledger, the
// flat order registry and fill settlement behind one serialized apply path.
package exchange

import (
	"context"
	"fmt"
	"sync"

	"github.com/ethereum/go-ethereum/common"
	"github.com/holiman/uint256"
	"go.uber.org/zap"

	"github.com/uhyunpark/tokenex/pkg/app/core/asset"
	"github.com/uhyunpark/tokenex/pkg/app/core/events"
	"github.com/uhyunpark/tokenex/pkg/app/core/ledger"
	"github.com/uhyunpark/tokenex/pkg/app/core/orderbook"
	"github.com/uhyunpark/tokenex/pkg/storage"
	"github.com/uhyunpark/tokenex/pkg/util"
)

// TokenFacility moves fungible tokens in and out of custody.
type TokenFacility interface {
	// TransferFrom pulls tokens the user approved to the custody address.
	TransferFrom(ctx context.Context, token, from, to common.Address, amount *uint256.Int) error
	// Transfer sends tokens held by the custody address.
	Transfer(ctx context.Context, token, to common.Address, amount *uint256.Int) error
}

// ValueReleaser pays native value out of custody.
type ValueReleaser interface {
	Release(ctx context.Context, to common.Address, amount *uint256.Int) error
}

// Store persists committed operations. See storage.PebbleStore.
type Store interface {
	Commit(cs storage.ChangeSet) error
	Load() (*storage.Snapshot, error)
}

// BlobState is collaborator state saved with every commit and restored at
// startup.
type BlobState interface {
	ExportBlobs() (map[string][]byte, error)
	ImportBlobs(map[string][]byte) error
}

// Config is fixed for the life of an exchange.
type Config struct {
	FeeAccount common.Address
	FeePercent uint64
	Custody    common.Address
}

type Deps struct {
	Tokens TokenFacility
	Native ValueReleaser
	Store  Store     // nil keeps everything in memory
	Blobs  BlobState // optional
	Bus    *events.Bus
	Clock  util.Clock
	Logger *zap.SugaredLogger
	Signed *SignedDeps // optional; enables ApplySigned
}

type Exchange struct {
	cfg    Config
	tokens TokenFacility
	native ValueReleaser
	store  Store
	blobs  BlobState
	bus    *events.Bus
	clock  util.Clock
	log    *zap.SugaredLogger
	signed *SignedDeps

	// mu serializes every state-changing operation
	mu     sync.Mutex
	ledger *ledger.Ledger
	orders *orderbook.Registry
	seq    *events.Sequencer
	nonces map[common.Address]uint64
}

// New builds an exchange and restores any state found in deps.Store.
func New(cfg Config, deps Deps) (*Exchange, error) {
	if deps.Tokens == nil || deps.Native == nil {
		return nil, fmt.Errorf("exchange needs a token facility and a native releaser")
	}
	if deps.Clock == nil {
		deps.Clock = util.RealClock{}
	}
	if deps.Logger == nil {
		deps.Logger = zap.NewNop().Sugar()
	}

	e := &Exchange{
		cfg:    cfg,
		tokens: deps.Tokens,
		native: deps.Native,
		store:  deps.Store,
		blobs:  deps.Blobs,
		bus:    deps.Bus,
		clock:  deps.Clock,
		log:    deps.Logger,
		signed: deps.Signed,
		ledger: ledger.New(),
		orders: orderbook.NewRegistry(),
		seq:    events.NewSequencer(0),
		nonces: make(map[common.Address]uint64),
	}

	if e.store != nil {
		snap, err := e.store.Load()
		if err != nil {
			return nil, fmt.Errorf("%w: load: %v", ErrStorage, err)
		}
		e.restore(snap)
		if e.blobs != nil && len(snap.Blobs) > 0 {
			if err := e.blobs.ImportBlobs(snap.Blobs); err != nil {
				return nil, fmt.Errorf("%w: import collaborator state: %v", ErrStorage, err)
			}
		}
		e.log.Infow("exchange_restored",
			"rows", len(snap.Rows),
			"orders", snap.OrderCount,
			"seq", snap.Seq,
		)
	}
	return e, nil
}

func (e *Exchange) restore(snap *storage.Snapshot) {
	e.ledger.Restore(snap.Rows)
	e.orders.Restore(snap.Orders)
	e.seq.Advance(snap.Seq)
	for addr, n := range snap.Nonces {
		e.nonces[addr] = n
	}
}

func (e *Exchange) FeeAccount() common.Address { return e.cfg.FeeAccount }
func (e *Exchange) FeePercent() uint64         { return e.cfg.FeePercent }
func (e *Exchange) Custody() common.Address    { return e.cfg.Custody }

// BalanceOf is a pure read and never fails; unknown rows are zero.
func (e *Exchange) BalanceOf(a asset.Asset, user common.Address) *uint256.Int {
	return e.ledger.BalanceOf(a, user)
}

// Totals sums every ledger balance of an asset.
func (e *Exchange) Totals(a asset.Asset) *uint256.Int {
	return e.ledger.Totals(a)
}

// Balances returns every ledger row.
func (e *Exchange) Balances() []ledger.Row {
	return e.ledger.Snapshot()
}

func (e *Exchange) OrderCount() uint64 { return e.orders.Count() }

func (e *Exchange) GetOrder(id uint64) (orderbook.Order, error) {
	o, ok := e.orders.Get(id)
	if !ok {
		return orderbook.Order{}, fmt.Errorf("%w: %d", ErrOrderNotFound, id)
	}
	return o, nil
}

func (e *Exchange) Orders(f orderbook.Filter) []orderbook.Order {
	return e.orders.List(f)
}

// Seq returns the sequence number of the last committed event.
func (e *Exchange) Seq() uint64 { return e.seq.Current() }

// Nonce returns the last nonce accepted from user, 0 if none.
func (e *Exchange) Nonce(user common.Address) uint64 {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.nonces[user]
}

// DepositNative credits native value that arrived with the request. amount
// is what the user claims; received is what custody actually got.
func (e *Exchange) DepositNative(ctx context.Context, user common.Address, amount, received *uint256.Int) (*Receipt, error) {
	return e.run(ctx, func(t *txn) error {
		return e.depositNative(t, user, amount, received)
	})
}

func (e *Exchange) depositNative(t *txn, user common.Address, amount, received *uint256.Int) error {
	if err := checkAmounts(amount, received); err != nil {
		return err
	}
	if !amount.Eq(received) {
		return fmt.Errorf("%w: claimed %s, received %s", ErrValueMismatch, amount.Dec(), received.Dec())
	}
	t.batch.Credit(asset.Native, user, amount)
	bal, err := e.projected(t, asset.Native, user)
	if err != nil {
		return err
	}
	t.emit(events.Deposited(asset.Native, user, amount, bal, t.now))
	return nil
}

// DepositToken pulls approved tokens into custody and credits them.
func (e *Exchange) DepositToken(ctx context.Context, token asset.Asset, user common.Address, amount *uint256.Int) (*Receipt, error) {
	return e.run(ctx, func(t *txn) error {
		return e.depositToken(ctx, t, token, user, amount)
	})
}

func (e *Exchange) depositToken(ctx context.Context, t *txn, token asset.Asset, user common.Address, amount *uint256.Int) error {
	if token.IsNative() {
		return fmt.Errorf("%w: native asset passed to token deposit", ErrInvalidAsset)
	}
	if err := checkAmounts(amount); err != nil {
		return err
	}
	t.batch.Credit(token, user, amount)
	bal, err := e.projected(t, token, user)
	if err != nil {
		return err
	}
	if err := e.tokens.TransferFrom(ctx, token.Address(), user, e.cfg.Custody, amount); err != nil {
		return fmt.Errorf("%w: %v", ErrTransferFailed, err)
	}
	t.external = true
	t.emit(events.Deposited(token, user, amount, bal, t.now))
	return nil
}

// Withdraw debits the ledger and releases the asset out of custody. A failed
// release leaves the ledger untouched.
func (e *Exchange) Withdraw(ctx context.Context, a asset.Asset, user common.Address, amount *uint256.Int) (*Receipt, error) {
	return e.run(ctx, func(t *txn) error {
		return e.withdraw(ctx, t, a, user, amount)
	})
}

func (e *Exchange) withdraw(ctx context.Context, t *txn, a asset.Asset, user common.Address, amount *uint256.Int) error {
	if err := checkAmounts(amount); err != nil {
		return err
	}
	t.batch.Debit(a, user, amount)
	bal, err := e.projected(t, a, user)
	if err != nil {
		return err
	}

	var release error
	if a.IsNative() {
		release = e.native.Release(ctx, user, amount)
	} else {
		release = e.tokens.Transfer(ctx, a.Address(), user, amount)
	}
	if release != nil {
		return fmt.Errorf("%w: %v", ErrTransferFailed, release)
	}
	t.external = true
	t.emit(events.Withdrawn(a, user, amount, bal, t.now))
	return nil
}

// MakeOrder records a standing offer. Balances are not checked here; the
// maker's side is checked when the order is filled.
func (e *Exchange) MakeOrder(ctx context.Context, maker common.Address, tokenGet asset.Asset, amountGet *uint256.Int,
	tokenGive asset.Asset, amountGive *uint256.Int) (*Receipt, error) {
	return e.run(ctx, func(t *txn) error {
		return e.makeOrder(t, maker, tokenGet, amountGet, tokenGive, amountGive)
	})
}

func (e *Exchange) makeOrder(t *txn, maker common.Address, tokenGet asset.Asset, amountGet *uint256.Int,
	tokenGive asset.Asset, amountGive *uint256.Int) error {
	if err := checkAmounts(amountGet, amountGive); err != nil {
		return err
	}
	o := e.orders.Next(maker, tokenGet, amountGet, tokenGive, amountGive, t.now)
	t.created = &o
	t.orderID = o.ID
	t.emit(events.OrderCreated(o))
	return nil
}

// CancelOrder closes an open order. Only its maker may cancel it.
func (e *Exchange) CancelOrder(ctx context.Context, id uint64, caller common.Address) (*Receipt, error) {
	return e.run(ctx, func(t *txn) error {
		return e.cancelOrder(t, id, caller)
	})
}

func (e *Exchange) cancelOrder(t *txn, id uint64, caller common.Address) error {
	o, err := e.orders.CheckCancellable(id, caller)
	if err != nil {
		return err
	}
	o.Cancelled = true
	t.transition = &o
	t.orderID = id
	t.emit(events.OrderCancelled(o, t.now))
	return nil
}

// FillOrder settles an open order against taker. On any failure the order
// stays open.
func (e *Exchange) FillOrder(ctx context.Context, id uint64, taker common.Address) (*Receipt, error) {
	return e.run(ctx, func(t *txn) error {
		return e.fillOrder(t, id, taker)
	})
}

func (e *Exchange) fillOrder(t *txn, id uint64, taker common.Address) error {
	o, err := e.orders.CheckFillable(id)
	if err != nil {
		return err
	}
	if err := e.settle(t, o, taker); err != nil {
		return err
	}
	o.Filled = true
	t.transition = &o
	t.orderID = id
	t.emit(events.OrderFilled(o, taker, t.now))
	return nil
}

// checkAmounts rejects nil amounts passed through the Go API.
func checkAmounts(amounts ...*uint256.Int) error {
	for _, a := range amounts {
		if a == nil {
			return fmt.Errorf("%w: nil amount", asset.ErrBadAmount)
		}
	}
	return nil
}

// projected returns what (a, user) will hold once the staged batch applies,
// validating the whole batch on the way.
func (e *Exchange) projected(t *txn, a asset.Asset, user common.Address) (*uint256.Int, error) {
	rows, err := e.ledger.Preview(t.batch)
	if err != nil {
		return nil, err
	}
	k := ledger.Key{Asset: a, User: user}
	for _, r := range rows {
		if r.Key == k {
			return r.Amount, nil
		}
	}
	return e.ledger.BalanceOf(a, user), nil
}
