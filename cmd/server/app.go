package main

import (
	"context"
	"fmt"

	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/ethclient"
	"github.com/olyamironova/escrow-book/internal/adapter/cache"
	"github.com/olyamironova/escrow-book/internal/adapter/chainlink"
	"github.com/olyamironova/escrow-book/internal/adapter/in_memory"
	"github.com/olyamironova/escrow-book/internal/adapter/kafka"
	"github.com/olyamironova/escrow-book/internal/adapter/pg"
	grpcapi "github.com/olyamironova/escrow-book/internal/api/grpc"
	httpapi "github.com/olyamironova/escrow-book/internal/api/http"
	"github.com/olyamironova/escrow-book/internal/config"
	"github.com/olyamironova/escrow-book/internal/core"
	"github.com/olyamironova/escrow-book/internal/port"
	"github.com/prometheus/client_golang/prometheus"
	"go.uber.org/zap"
	"google.golang.org/grpc"
)

// app is the wired server: engine, token ledger and both transports.
type app struct {
	eng     *core.Engine
	ledger  *in_memory.TokenLedger
	http    *httpapi.HTTPServer
	grpc    *grpc.Server
	closers []func()
}

func (a *app) Close() {
	for i := len(a.closers) - 1; i >= 0; i-- {
		a.closers[i]()
	}
}

func newApp(ctx context.Context, cfg *config.Config, log *zap.Logger) (*app, error) {
	a := &app{}
	reg := prometheus.NewRegistry()
	opts := []core.Option{
		core.WithLogger(log.Named("engine")),
		core.WithMetrics(core.NewMetrics(reg)),
	}

	if cfg.Postgres.DSN != "" {
		repo, err := pg.NewPgRepo(ctx, cfg.Postgres.DSN)
		if err != nil {
			return nil, fmt.Errorf("connect to postgres: %w", err)
		}
		a.closers = append(a.closers, func() { repo.Close(context.Background()) })
		if err := repo.Migrate(ctx); err != nil {
			a.Close()
			return nil, fmt.Errorf("migrate postgres schema: %w", err)
		}
		opts = append(opts, core.WithRepository(repo))
	} else {
		log.Warn("postgres.dsn not set, ledger is kept in memory only")
		opts = append(opts, core.WithRepository(in_memory.NewMemoryRepo()))
	}

	if cfg.Redis.Addr != "" {
		redisCache := cache.NewRedisCache(cfg.Redis.Addr, cfg.Redis.Password, cfg.Redis.DB, cfg.Redis.TTL)
		a.closers = append(a.closers, func() { _ = redisCache.Close() })
		if err := redisCache.Ping(ctx); err != nil {
			a.Close()
			return nil, fmt.Errorf("connect to redis: %w", err)
		}
		opts = append(opts, core.WithCache(redisCache))
	} else {
		opts = append(opts, core.WithCache(in_memory.NewCache()))
	}

	if len(cfg.Kafka.Brokers) > 0 {
		pub := kafka.NewPublisher(cfg.Kafka.Brokers, cfg.Kafka.Topic)
		a.closers = append(a.closers, func() { _ = pub.Close() })
		opts = append(opts, core.WithPublisher(pub))
	}

	oracle, err := newOracle(ctx, cfg.Oracle)
	if err != nil {
		a.Close()
		return nil, fmt.Errorf("set up price oracle: %w", err)
	}
	opts = append(opts, core.WithOracle(oracle))

	a.ledger = in_memory.NewTokenLedger(common.HexToAddress(cfg.Engine.EscrowAddress))
	seeds, err := cfg.Ledger.Seeds()
	if err != nil {
		a.Close()
		return nil, err
	}
	for _, s := range seeds {
		a.ledger.Mint(s.Asset, s.Holder, s.Amount)
		a.ledger.Approve(s.Asset, s.Holder, s.Amount)
	}

	a.eng = core.NewEngine(a.ledger, core.Config{
		Variant:           core.Variant(cfg.Engine.Variant),
		MaxMatchesPerCall: cfg.Engine.MaxMatchesPerCall,
		MaxPriceAge:       cfg.Engine.MaxPriceAge,
	}, opts...)
	if err := a.eng.Restore(ctx); err != nil {
		a.Close()
		return nil, fmt.Errorf("restore ledger: %w", err)
	}
	backEscrow(ctx, a.eng, a.ledger, log)

	a.http = httpapi.NewHTTPServer(a.eng, log.Named("http"), cfg.RateLimit.Interval, reg).
		WithLedger(a.ledger, cfg.Ledger.Faucet)
	a.grpc = grpcapi.NewServer(a.eng, log.Named("grpc"))
	return a, nil
}

// backEscrow credits the escrow account with the remaining balance of every
// restored active order, so their refunds and fills settle.
func backEscrow(ctx context.Context, eng *core.Engine, ledger *in_memory.TokenLedger, log *zap.Logger) {
	for asset, amount := range eng.Escrowed(ctx) {
		if !amount.IsPositive() {
			continue
		}
		ledger.Mint(asset, ledger.EscrowAccount(), amount)
		log.Info("escrow restored", zap.Stringer("asset", asset), zap.Stringer("amount", amount))
	}
}

func newOracle(ctx context.Context, cfg config.OracleConfig) (port.PriceOracle, error) {
	if cfg.Mode == "chainlink" {
		client, err := ethclient.DialContext(ctx, cfg.RPCURL)
		if err != nil {
			return nil, err
		}
		return chainlink.NewOracle(client), nil
	}
	prices, err := cfg.Prices()
	if err != nil {
		return nil, err
	}
	oracle := in_memory.NewStaticOracle()
	for feed, price := range prices {
		oracle.SetPrice(feed, price, cfg.StaticDecimals)
	}
	return oracle, nil
}
