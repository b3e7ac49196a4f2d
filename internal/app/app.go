// Package app wires configuration into a running swap engine: ledger client,
// pricing, execution paths, monitor, journal stores and the orchestrator.
package app

import (
	"context"
	"errors"
	"fmt"
	"log/slog"

	"github.com/shopspring/decimal"

	"aptos-vault-swap/internal/clock"
	"aptos-vault-swap/internal/config"
	"aptos-vault-swap/internal/events"
	"aptos-vault-swap/internal/execution"
	"aptos-vault-swap/internal/ledger"
	"aptos-vault-swap/internal/monitor"
	"aptos-vault-swap/internal/orchestrator"
	"aptos-vault-swap/internal/pricing"
	"aptos-vault-swap/internal/quote"
	"aptos-vault-swap/internal/security"
	"aptos-vault-swap/internal/storage"
	chstore "aptos-vault-swap/internal/storage/clickhouse"
	"aptos-vault-swap/internal/storage/memory"
	"aptos-vault-swap/internal/storage/migrations"
	pgstore "aptos-vault-swap/internal/storage/postgres"
	"aptos-vault-swap/internal/validation"
)

// App is a wired swap engine.
type App struct {
	Config       config.Config
	Account      string
	Ledger       ledger.Client
	State        *security.State
	Events       *events.Broadcaster
	Orchestrator *orchestrator.Orchestrator

	closers []func()
}

// Stores holds the journal backends.
type Stores struct {
	Attempts storage.AttemptStore
	Outcomes storage.OutcomeStore
}

// New builds an App against the ledger node named in cfg.
func New(ctx context.Context, cfg config.Config, logger *slog.Logger) (*App, error) {
	if logger == nil {
		logger = slog.Default()
	}

	opts := []ledger.ClientOption{
		ledger.WithTimeout(cfg.Ledger.RequestTimeout.Duration),
		ledger.WithMaxRetries(cfg.Ledger.MaxRetries),
		ledger.WithMaxLag(cfg.Ledger.MaxLag.Duration),
		ledger.WithGas(cfg.Gas.UnitPrice, cfg.Gas.MaxAmount, cfg.Gas.Expiration.Duration),
	}
	account := cfg.Account
	if cfg.PrivateKey != "" {
		signer, err := ledger.NewSigner(cfg.PrivateKey)
		if err != nil {
			return nil, fmt.Errorf("load private key: %w", err)
		}
		opts = append(opts, ledger.WithSigner(signer))
		if account == "" {
			account = signer.Address()
		} else if ledger.NormalizeAddress(account) != ledger.NormalizeAddress(signer.Address()) {
			return nil, fmt.Errorf("account %s does not match private key address %s", account, signer.Address())
		}
	}
	if account == "" {
		return nil, errors.New("account or private key required")
	}
	if cfg.PrivateKey == "" {
		logger.Warn("no private key configured, submissions will fail", "account", account)
	}

	client := ledger.NewHTTPClient(cfg.NodeURL, opts...)

	return Assemble(ctx, cfg, client, account, clock.Real{}, logger)
}

// Assemble wires an App around an existing ledger client.
func Assemble(ctx context.Context, cfg config.Config, client ledger.Client, account string, clk clock.Clock, logger *slog.Logger) (*App, error) {
	if logger == nil {
		logger = slog.Default()
	}
	stores, closeStores, err := OpenStores(ctx, cfg.Storage, logger)
	if err != nil {
		return nil, err
	}

	state := security.NewState(cfg.Swap.Cooldown.Duration)
	broadcaster := events.NewBroadcaster(logger)

	var quoter pricing.Quoter
	if cfg.Pricing.FixedRate > 0 {
		quoter = pricing.NewFixedRate(decimal.NewFromFloat(cfg.Pricing.FixedRate), cfg.Pricing.FixedImpact)
		logger.Info("using fixed-rate pricing", "rate", cfg.Pricing.FixedRate, "impact", cfg.Pricing.FixedImpact)
	} else {
		quoter = pricing.NewReserveQuoter(client, cfg.RouterAddress).WithFeeBps(cfg.Pricing.FeeBps)
	}

	settle := cfg.Swap.SettleTimeout.Duration
	poll := cfg.Monitor.PollInterval.Duration
	primary := execution.Settled(execution.NewVaultPath(client, cfg.VaultAddress), client, clk, settle, poll, logger)
	secondary := execution.Settled(
		execution.NewRouterPath(client, cfg.RouterAddress, cfg.SourceAsset, cfg.TargetAsset, account),
		client, clk, settle, poll, logger)

	var watcher orchestrator.Watcher
	if cfg.Monitor.Enabled {
		watcher = monitor.New(client, clk, cfg.Monitor.Timeout.Duration, poll, logger)
	}

	orch := orchestrator.New(orchestrator.Options{
		Validator: validation.NewValidator(
			validation.Limits{MinAmount: cfg.Swap.MinAmount, MaxAmount: cfg.Swap.MaxAmount},
			state, client, account, cfg.SourceAsset, logger),
		Quotes: quote.NewEngine(quoter, cfg.Swap.MaxSlippage, cfg.SourceAsset, cfg.TargetAsset, logger),
		Executor: execution.NewExecutor(execution.Config{
			Primary:   primary,
			Secondary: secondary,
			Client:    client,
			Account:   account,
			State:     state,
			Clock:     clk,
			Deadline:  cfg.Swap.ExecutionDeadline.Duration,
			Logger:    logger,
		}),
		Watcher:     watcher,
		Client:      client,
		State:       state,
		Clock:       clk,
		Attempts:    stores.Attempts,
		Outcomes:    stores.Outcomes,
		Events:      broadcaster,
		Account:     account,
		SourceAsset: cfg.SourceAsset,
		TargetAsset: cfg.TargetAsset,
		Vault:       cfg.VaultAddress,
		MaxRetries:  cfg.Swap.MaxRetries,
		RetryDelay:  cfg.Swap.RetryDelay.Duration,
		Logger:      logger,
	})

	return &App{
		Config:       cfg,
		Account:      account,
		Ledger:       client,
		State:        state,
		Events:       broadcaster,
		Orchestrator: orch,
		closers:      []func(){broadcaster.Close, closeStores},
	}, nil
}

// Close releases stores and disconnects event subscribers.
func (a *App) Close() {
	for _, c := range a.closers {
		c()
	}
}

// OpenStores returns in-memory stores, or PostgreSQL and ClickHouse stores
// with migrations applied.
func OpenStores(ctx context.Context, cfg config.StorageConfig, logger *slog.Logger) (Stores, func(), error) {
	if cfg.UseMemory {
		logger.Info("using in-memory journal")
		return Stores{
			Attempts: memory.NewAttemptStore(),
			Outcomes: memory.NewOutcomeStore(),
		}, func() {}, nil
	}

	pool, err := pgstore.NewPool(ctx, cfg.PostgresDSN)
	if err != nil {
		return Stores{}, nil, fmt.Errorf("connect to postgres: %w", err)
	}
	if err := migrations.RunPostgresMigrations(ctx, pool); err != nil {
		pool.Close()
		return Stores{}, nil, fmt.Errorf("postgres migrations: %w", err)
	}

	chConn, err := migrations.RunClickhouseMigrations(ctx, cfg.ClickHouseDSN)
	if err != nil {
		pool.Close()
		return Stores{}, nil, fmt.Errorf("clickhouse migrations: %w", err)
	}

	cleanup := func() {
		if err := chConn.Close(); err != nil {
			logger.Warn("close clickhouse", "error", err)
		}
		pool.Close()
	}
	return Stores{
		Attempts: pgstore.NewAttemptStore(pool),
		Outcomes: chstore.NewOutcomeStore(chConn),
	}, cleanup, nil
}
