package main

import (
	"context"
	"io"
	"log"
	"os"
	"os/signal"
	"path/filepath"
	"syscall"

	"go.uber.org/zap"

	"github.com/uhyunpark/tokenex/params"
	"github.com/uhyunpark/tokenex/pkg/api"
	"github.com/uhyunpark/tokenex/pkg/app/core/events"
	"github.com/uhyunpark/tokenex/pkg/app/core/transaction"
	"github.com/uhyunpark/tokenex/pkg/app/exchange"
	"github.com/uhyunpark/tokenex/pkg/app/swap"
	"github.com/uhyunpark/tokenex/pkg/app/token"
	"github.com/uhyunpark/tokenex/pkg/broker"
	"github.com/uhyunpark/tokenex/pkg/crypto"
	"github.com/uhyunpark/tokenex/pkg/p2p"
	"github.com/uhyunpark/tokenex/pkg/storage"
	"github.com/uhyunpark/tokenex/pkg/util"
)

type nodeStore interface {
	exchange.Store
	api.EventSource
	io.Closer
}

func main() {
	cfg, err := params.LoadFromEnv("") // "" means load from .env in current directory
	if err != nil {
		log.Fatalf("config: %v", err)
	}

	var logger *zap.Logger
	if cfg.Node.LogFile != "" {
		logger, err = util.NewLoggerWithFile(cfg.Node.LogFile, cfg.Node.Verbose)
	} else {
		logger, err = util.NewLogger(cfg.Node.Verbose)
	}
	if err != nil {
		log.Fatalf("logger: %v", err)
	}
	defer logger.Sync()
	sugar := logger.Sugar()

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if err := run(ctx, cfg, sugar); err != nil {
		sugar.Fatalw("node_failed", "err", err)
	}
}

func run(ctx context.Context, cfg params.Config, sugar *zap.SugaredLogger) error {
	// ---- Store ----
	var store nodeStore
	if cfg.Node.DataDir != "" {
		ps, err := storage.NewPebbleStore(filepath.Join(cfg.Node.DataDir, "exchange"))
		if err != nil {
			return err
		}
		store = ps
		sugar.Infow("store_opened", "dir", cfg.Node.DataDir)
	} else {
		store = storage.NewMemStore()
		sugar.Warn("DATA_DIR empty: state is kept in memory only")
	}
	defer store.Close()

	// ---- Collaborators ----
	state, tok, err := genesis(cfg)
	if err != nil {
		return err
	}
	vault := &token.Vault{Bank: state.Native, Custody: cfg.Exchange.Custody}
	sw, err := swap.New(cfg.Swap.Address, cfg.Swap.Rate, tok, state.Native, util.RealClock{}, sugar.Named("swap"))
	if err != nil {
		return err
	}

	// ---- Event bus ----
	bus := events.NewBus(1024, sugar.Named("bus"))
	var closers []io.Closer

	if cfg.Node.EventsJournal != "" {
		j, err := storage.NewFileJournal(cfg.Node.EventsJournal)
		if err != nil {
			return err
		}
		bus.Attach(j)
		closers = append(closers, j)
	}
	if len(cfg.Kafka.Brokers) > 0 {
		k, err := broker.New(cfg.Kafka.Driver, cfg.Kafka.Brokers, cfg.Kafka.Topic)
		if err != nil {
			return err
		}
		bus.Attach(k)
		closers = append(closers, k)
		sugar.Infow("kafka_enabled", "driver", cfg.Kafka.Driver, "topic", cfg.Kafka.Topic)
	}
	if cfg.Gossip.Listen != "" {
		g, err := p2p.New(ctx, p2p.Config{
			ListenAddr: cfg.Gossip.Listen,
			Bootstrap:  cfg.Gossip.Bootstrap,
			Topic:      cfg.Gossip.Topic,
			Logger:     sugar.Named("gossip"),
		})
		if err != nil {
			return err
		}
		bus.Attach(g)
		closers = append(closers, g)

		watcher := p2p.NewOrderWatcher()
		go g.Run(ctx, func(ctx context.Context, ev events.Event) {
			watcher.Handle(ctx, ev)
			if ev.Kind == events.KindOrderCreated {
				sugar.Debugw("remote_order_seen", "id", ev.Order.ID, "open", len(watcher.Open()))
			}
		})
	}
	defer func() {
		for _, c := range closers {
			if err := c.Close(); err != nil {
				sugar.Warnw("sink_close_failed", "err", err)
			}
		}
	}()

	// ---- Exchange ----
	ex, err := exchange.New(
		exchange.Config{
			FeeAccount: cfg.Exchange.FeeAccount,
			FeePercent: cfg.Exchange.FeePercent,
			Custody:    cfg.Exchange.Custody,
		},
		exchange.Deps{
			Tokens: &token.Facility{Registry: state.Tokens, Custody: cfg.Exchange.Custody},
			Native: vault,
			Store:  store,
			Blobs:  state,
			Bus:    bus,
			Clock:  util.RealClock{},
			Logger: sugar.Named("exchange"),
			Signed: &exchange.SignedDeps{
				Verifier: transaction.NewVerifier(crypto.DomainFor(cfg.Node.ChainID)),
				Wallets:  &token.Wallets{Registry: state.Tokens, Vault: vault},
				Swap:     sw,
			},
		})
	if err != nil {
		return err
	}

	// ---- API ----
	server := api.NewServer(api.Options{
		Exchange: ex,
		Events:   store,
		Tokens:   state.Tokens,
		Native:   state.Native,
		Logger:   sugar.Named("api"),
	})
	bus.Attach(server.Hub())

	// the bus outlives ctx; Close below ends it once the API has stopped
	busDone := make(chan struct{})
	go func() {
		bus.Run(context.WithoutCancel(ctx))
		close(busDone)
	}()

	sugar.Infow("node_starting",
		"fee_account", cfg.Exchange.FeeAccount.Hex(),
		"fee_percent", cfg.Exchange.FeePercent,
		"custody", cfg.Exchange.Custody.Hex(),
		"token", tok.Address.Hex(),
		"swap", cfg.Swap.Address.Hex(),
		"chain_id", cfg.Node.ChainID,
		"orders", ex.OrderCount(),
		"seq", ex.Seq())

	err = server.Start(ctx, cfg.Node.APIAddr)
	bus.Close()
	<-busDone
	sugar.Infow("node_stopped", "seq", ex.Seq(), "state_hash", ex.StateHash().Hex())
	return err
}
