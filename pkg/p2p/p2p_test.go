package p2p

import (
	"context"
	"testing"
	"time"

	"github.com/ethereum/go-ethereum/common"

	"github.com/uhyunpark/tokenex/pkg/app/core/asset"
	"github.com/uhyunpark/tokenex/pkg/app/core/events"
	"github.com/uhyunpark/tokenex/pkg/app/core/orderbook"
)

var maker = common.HexToAddress("0x1111111111111111111111111111111111111111")

func created(id, seq uint64) events.Event {
	ev := events.OrderCreated(orderbook.Order{
		ID:         id,
		Maker:      maker,
		TokenGet:   asset.Token(common.HexToAddress("0x5FbDB2315678afecb367f032d93F642f64180aa3")),
		AmountGet:  asset.Units("1"),
		TokenGive:  asset.Native,
		AmountGive: asset.Units("1"),
		Timestamp:  1700000000,
	})
	ev.Seq = seq
	return ev
}

func TestEventWire(t *testing.T) {
	in := created(4, 11)
	data, err := encodeEvent(in)
	if err != nil {
		t.Fatal(err)
	}
	out, err := decodeEvent(data)
	if err != nil {
		t.Fatal(err)
	}
	if out.Seq != 11 || out.Kind != events.KindOrderCreated || out.Order.ID != 4 || !out.Order.AmountGet.Eq(asset.Units("1")) {
		t.Errorf("decoded = %+v", out)
	}

	if _, err := decodeEvent([]byte("junk")); err == nil {
		t.Error("junk decoded")
	}
}

func TestOrderWatcher(t *testing.T) {
	w := NewOrderWatcher()
	ctx := context.Background()

	w.Handle(ctx, created(1, 1))
	w.Handle(ctx, created(2, 2))
	w.Handle(ctx, events.Deposited(asset.Native, maker, asset.Units("1"), asset.Units("1"), 0))

	if open := w.Open(); len(open) != 2 || open[0].ID != 1 || open[1].ID != 2 {
		t.Fatalf("open = %+v", open)
	}

	cancel := events.OrderCancelled(orderbook.Order{ID: 1, Maker: maker, AmountGet: asset.Units("1"), AmountGive: asset.Units("1")}, 5)
	cancel.Seq = 3
	w.Handle(ctx, cancel)
	// a duplicate creation notice arriving late
	w.Handle(ctx, created(1, 1))

	if open := w.Open(); len(open) != 1 || open[0].ID != 2 {
		t.Errorf("open after cancel = %+v", open)
	}
	if w.LastSeq() != 3 {
		t.Errorf("last seq = %d", w.LastSeq())
	}
}

func TestGossipBetweenPeers(t *testing.T) {
	if testing.Short() {
		t.Skip("starts two libp2p hosts")
	}
	ctx, cancel := context.WithTimeout(context.Background(), 20*time.Second)
	defer cancel()

	a, err := New(ctx, Config{ListenAddr: "/ip4/127.0.0.1/tcp/0", Topic: "tokenex-test"})
	if err != nil {
		t.Fatal(err)
	}
	defer a.Close()
	b, err := New(ctx, Config{ListenAddr: "/ip4/127.0.0.1/tcp/0", Topic: "tokenex-test", Bootstrap: a.Addrs()})
	if err != nil {
		t.Fatal(err)
	}
	defer b.Close()

	watcher := NewOrderWatcher()
	got := make(chan struct{}, 1)
	go b.Run(ctx, func(ctx context.Context, ev events.Event) {
		watcher.Handle(ctx, ev)
		select {
		case got <- struct{}{}:
		default:
		}
	})

	// the mesh forms on the first heartbeat; publish until b hears it
	ticker := time.NewTicker(200 * time.Millisecond)
	defer ticker.Stop()
	for {
		if err := a.Publish(ctx, created(9, 1)); err != nil {
			t.Fatal(err)
		}
		select {
		case <-got:
			if open := watcher.Open(); len(open) != 1 || open[0].ID != 9 {
				t.Errorf("watcher = %+v", open)
			}
			return
		case <-ctx.Done():
			t.Fatal("no gossip received")
		case <-ticker.C:
		}
	}
}
