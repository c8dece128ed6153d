// Package app assembles the tracker components from a Config.
package app

import (
	"context"
	"fmt"
	"time"

	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"

	"github.com/Ticoworld/savercoin/internal/aggregator"
	"github.com/Ticoworld/savercoin/internal/buyday"
	"github.com/Ticoworld/savercoin/internal/cache"
	"github.com/Ticoworld/savercoin/internal/classifier"
	"github.com/Ticoworld/savercoin/internal/config"
	"github.com/Ticoworld/savercoin/internal/evm"
	"github.com/Ticoworld/savercoin/internal/explorer"
	"github.com/Ticoworld/savercoin/internal/ingestion"
	"github.com/Ticoworld/savercoin/internal/leaderboard"
	"github.com/Ticoworld/savercoin/internal/pricing"
	"github.com/Ticoworld/savercoin/internal/snapshot"
	"github.com/Ticoworld/savercoin/internal/storage"
	chstore "github.com/Ticoworld/savercoin/internal/storage/clickhouse"
	"github.com/Ticoworld/savercoin/internal/storage/memory"
	"github.com/Ticoworld/savercoin/internal/storage/migrations"
	pgstore "github.com/Ticoworld/savercoin/internal/storage/postgres"
)

// Stores groups the persistence layer. Archive is nil when not configured.
type Stores struct {
	Ledger      storage.LedgerStore
	Wallets     storage.WalletStore
	Checkpoints storage.CheckpointStore
	Winners     storage.WinnerStore
	Archive     storage.TransactionArchive
}

// App holds the wired components. Cache is nil when Redis is not configured.
type App struct {
	Config    *config.Config
	Stores    *Stores
	Bucketer  buyday.Bucketer
	Driver    *ingestion.Driver
	Finalizer *snapshot.Finalizer
	View      *leaderboard.View
	Cache     *cache.Redis

	closers []func()
	logger  zerolog.Logger
}

// Options adjusts how New builds the app.
type Options struct {
	// UseMemory forces in-memory stores and disables the archive and cache.
	UseMemory bool
	// Source replaces the configured transfer sources.
	Source ingestion.TransferSource
	// Now replaces the wall clock.
	Now    func() time.Time
	Logger *zerolog.Logger
}

// New connects stores and builds every component. Close must be called
// on the returned App even if later steps of the caller fail.
func New(ctx context.Context, cfg *config.Config, opts Options) (_ *App, err error) {
	a := &App{
		Config:   cfg,
		Bucketer: buyday.New(cfg.BuyDayInterval),
		logger:   log.Logger.With().Str("component", "app").Logger(),
	}
	if opts.Logger != nil {
		a.logger = *opts.Logger
	}
	defer func() {
		if err != nil {
			a.Close()
		}
	}()

	if a.Stores, err = a.openStores(ctx, opts.UseMemory); err != nil {
		return nil, err
	}

	if cfg.RedisAddr != "" && !opts.UseMemory {
		c, err := cache.NewRedis(ctx, cfg.RedisAddr, cfg.RedisPassword, cfg.RedisDB, cfg.CacheTTL)
		if err != nil {
			return nil, err
		}
		a.Cache = c
		a.closers = append(a.closers, func() { c.Close() })
	}

	source := opts.Source
	if source == nil {
		if source, err = a.transferSource(ctx); err != nil {
			return nil, err
		}
	}

	routers, err := classifier.NewRouterSet(cfg.Routers)
	if err != nil {
		return nil, fmt.Errorf("router set: %w", err)
	}
	cls, err := classifier.New(cfg.TokenContract, routers)
	if err != nil {
		return nil, fmt.Errorf("classifier: %w", err)
	}

	var fetcher pricing.Fetcher
	if cfg.MoralisAPIKey != "" {
		fetcher = pricing.NewMoralisClient(cfg.MoralisURL, cfg.MoralisAPIKey, cfg.MoralisChain, cfg.TokenContract)
	} else {
		a.logger.Warn().Msg("MORALIS_API_KEY not set, valuing buys at the fallback price")
	}
	oracle := pricing.NewCachedOracle(pricing.Options{
		Source:   fetcher,
		TTL:      cfg.PriceTTL,
		Fallback: cfg.FallbackPriceUSD,
		Now:      opts.Now,
	})

	agg, err := aggregator.New(aggregator.Options{
		Wallets:   a.Stores.Wallets,
		Prices:    oracle,
		Bucketer:  a.Bucketer,
		MinBuyUSD: cfg.MinBuyUSD,
		Window:    cfg.ContestWindow(),
	})
	if err != nil {
		return nil, err
	}

	a.Driver, err = ingestion.NewDriver(ingestion.DriverOptions{
		Source:        source,
		Classifier:    cls,
		Ledger:        a.Stores.Ledger,
		Checkpoints:   a.Stores.Checkpoints,
		Aggregator:    agg,
		Archive:       a.Stores.Archive,
		TokenContract: cfg.TokenContract,
		GenesisBlock:  cfg.StartBlock,
		Window:        cfg.ContestWindow(),
		Now:           opts.Now,
	})
	if err != nil {
		return nil, err
	}

	a.Finalizer = snapshot.NewFinalizer(snapshot.Options{
		Wallets:    a.Stores.Wallets,
		Winners:    a.Stores.Winners,
		ContestEnd: cfg.ContestEnd.Unix(),
		Now:        opts.Now,
	})

	a.View = leaderboard.NewView(leaderboard.Options{
		Wallets:  a.Stores.Wallets,
		Bucketer: a.Bucketer,
		Now:      opts.Now,
	})

	return a, nil
}

// Close releases connections in reverse order of opening.
func (a *App) Close() {
	for i := len(a.closers) - 1; i >= 0; i-- {
		a.closers[i]()
	}
	a.closers = nil
}

func (a *App) openStores(ctx context.Context, useMemory bool) (*Stores, error) {
	if useMemory || a.Config.PostgresDSN == "" {
		a.logger.Warn().Msg("using in-memory stores, state is lost on exit")
		return &Stores{
			Ledger:      memory.NewLedgerStore(),
			Wallets:     memory.NewWalletStore(),
			Checkpoints: memory.NewCheckpointStore(),
			Winners:     memory.NewWinnerStore(),
			Archive:     memory.NewTransactionArchive(),
		}, nil
	}

	pool, err := pgstore.NewPool(ctx, a.Config.PostgresDSN)
	if err != nil {
		return nil, err
	}
	a.closers = append(a.closers, pool.Close)

	if err := migrations.RunPostgresMigrations(ctx, pool); err != nil {
		return nil, fmt.Errorf("postgres migrations: %w", err)
	}

	stores := &Stores{
		Ledger:      pgstore.NewLedgerStore(pool),
		Wallets:     pgstore.NewWalletStore(pool),
		Checkpoints: pgstore.NewCheckpointStore(pool),
		Winners:     pgstore.NewWinnerStore(pool),
	}

	if a.Config.ClickhouseDSN != "" {
		conn, err := migrations.RunClickhouseMigrations(ctx, a.Config.ClickhouseDSN)
		if err != nil {
			return nil, fmt.Errorf("clickhouse: %w", err)
		}
		a.closers = append(a.closers, func() { conn.Close() })
		stores.Archive = chstore.NewTransactionArchive(conn)
	}

	return stores, nil
}

// transferSource builds the explorer source with the RPC source behind it.
func (a *App) transferSource(ctx context.Context) (ingestion.TransferSource, error) {
	cfg := a.Config
	sources := []ingestion.NamedSource{{
		Name: "explorer",
		Source: explorer.NewClient(cfg.ExplorerAPIKey,
			explorer.WithBaseURL(cfg.ExplorerURL),
			explorer.WithChainID(cfg.ChainID),
		),
	}}

	if cfg.RPCURL != "" {
		client, err := evm.Dial(ctx, cfg.RPCURL)
		if err != nil {
			return nil, err
		}
		a.closers = append(a.closers, client.Close)
		sources = append(sources, ingestion.NamedSource{
			Name:   "rpc",
			Source: evm.NewSource(client, cfg.TokenDecimals, cfg.RPCLogChunk),
		})
	}

	return ingestion.NewFallbackSource(nil, sources...), nil
}
