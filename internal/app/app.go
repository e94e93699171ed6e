// Package app assembles the deposit pipeline from configuration. Both the
// API server and the operator CLI start from Build.
package app

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"
	"github.com/sirupsen/logrus"
	"gorm.io/gorm"

	"github.com/gbsoe/FiLotV2-sub001/internal/balance"
	"github.com/gbsoe/FiLotV2-sub001/internal/cache"
	"github.com/gbsoe/FiLotV2-sub001/internal/config"
	"github.com/gbsoe/FiLotV2-sub001/internal/constants"
	"github.com/gbsoe/FiLotV2-sub001/internal/database"
	"github.com/gbsoe/FiLotV2-sub001/internal/deposit"
	"github.com/gbsoe/FiLotV2-sub001/internal/flags"
	"github.com/gbsoe/FiLotV2-sub001/internal/investment"
	"github.com/gbsoe/FiLotV2-sub001/internal/jupiter"
	"github.com/gbsoe/FiLotV2-sub001/internal/ledger"
	"github.com/gbsoe/FiLotV2-sub001/internal/lock"
	"github.com/gbsoe/FiLotV2-sub001/internal/metrics"
	"github.com/gbsoe/FiLotV2-sub001/internal/orca"
	"github.com/gbsoe/FiLotV2-sub001/internal/pairing"
	"github.com/gbsoe/FiLotV2-sub001/internal/rpc"
	"github.com/gbsoe/FiLotV2-sub001/internal/session"
	"github.com/gbsoe/FiLotV2-sub001/internal/signing"
	"github.com/gbsoe/FiLotV2-sub001/internal/storage"
	"github.com/gbsoe/FiLotV2-sub001/internal/submit"
)

// App holds every long-lived component of one process.
type App struct {
	Config    *config.Config
	Logger    *logrus.Logger
	DB        *gorm.DB
	RPC       *rpc.Client
	Redis     *redis.Client // nil when every backend is in memory and Redis is down
	Relay     pairing.Relay
	Sessions  *session.Manager
	Ledger    *ledger.Ledger
	Pools     *orca.Gateway
	Builder   *deposit.Builder
	Flags     *flags.Store         // nil without Redis
	Cache     storage.AttemptCache // nil without Redis
	Store     storage.AttemptStore // nil unless CLICKHOUSE_ADDR is set
	Metrics   *metrics.Metrics
	Executor  *investment.Executor
	closers   []func() error
}

// Build connects every backend named in cfg. On error, whatever was opened
// is closed again.
func Build(ctx context.Context, cfg *config.Config, logger *logrus.Logger) (_ *App, err error) {
	if logger == nil {
		logger = logrus.New()
	}
	a := &App{Config: cfg, Logger: logger, Metrics: metrics.New()}
	defer func() {
		if err != nil {
			_ = a.Close()
		}
	}()

	a.RPC = rpc.NewClient(rpc.ClientConfig{
		BaseURL:      cfg.RPCUrl,
		Timeout:      cfg.RPCTimeout,
		MaxRetries:   cfg.MaxRetries,
		RetryBackoff: cfg.RetryBackoff,
		Commitment:   cfg.Commitment,
		Logger:       logger,
	})
	a.onClose(a.RPC.Close)

	if err = a.connectRedis(ctx); err != nil {
		return nil, err
	}

	a.DB, err = database.Open(cfg.DatabaseDSN, logger)
	if err != nil {
		return nil, fmt.Errorf("open ledger database: %w", err)
	}
	db := a.DB
	a.onClose(func() error { return database.Close(db) })

	if a.Relay, err = a.buildRelay(); err != nil {
		return nil, err
	}
	relay := a.Relay
	a.onClose(relay.Close)

	locker, err := a.buildLocker()
	if err != nil {
		return nil, err
	}

	registry, err := orca.NewPoolRegistry(cfg.PoolConfigPath)
	if err != nil {
		return nil, fmt.Errorf("load pools: %w", err)
	}

	var pauses orca.PauseChecker
	if a.Flags != nil {
		pauses = a.Flags
	}
	a.Pools = orca.NewGateway(registry, orca.NewClient(a.RPC), pauses, logger)

	a.Sessions = session.NewManager(a.DB, a.Relay, session.Config{
		TTL:    cfg.SessionTTL,
		Logger: logger,
	})
	signer := signing.NewCoordinator(a.Relay, locker, signing.Config{
		Timeout: cfg.SigningTimeout,
		Logger:  logger,
	})
	a.Sessions.AttachSigning(signer)
	a.Ledger = ledger.New(a.DB, logger)
	a.Builder = deposit.NewBuilder(a.RPC, deposit.Policy{
		DefaultSlippageBps: deposit.Bps(uint16(cfg.DefaultSlippageBps)),
		MaxSlippageBps:     deposit.Bps(uint16(cfg.MaxSlippageBps)),
		StalenessWindow:    cfg.StalenessWindow,
	}, logger)

	if cfg.ClickHouseAddr != "" {
		ch, cherr := cache.NewClickHouseStore(ctx, cache.ClickHouseConfig{
			Addr:     cfg.ClickHouseAddr,
			Database: cfg.ClickHouseDatabase,
			Username: cfg.ClickHouseUsername,
			Password: cfg.ClickHousePassword,
			Logger:   logger,
		})
		if cherr != nil {
			// analytics is best effort; the ledger is the record
			logger.WithError(cherr).Warn("ClickHouse unavailable, attempt analytics disabled")
		} else {
			a.Store = ch
			a.onClose(ch.Close)
		}
	}

	deps := investment.Deps{
		Ledger:    a.Ledger,
		Sessions:  a.Sessions,
		Pools:     a.Pools,
		Balances:  balance.NewValidator(a.RPC, cfg.StalenessWindow, logger),
		Builder:   a.Builder,
		Converter: a.converter(),
		Signer:    signer,
		Submitter: submit.NewSubmitter(a.RPC, submit.Config{
			Commitment:     cfg.Commitment,
			InitialBackoff: cfg.ConfirmInitialBackoff,
			MaxBackoff:     cfg.ConfirmMaxBackoff,
			MaxWait:        cfg.ConfirmMaxWait,
			Logger:         logger,
		}),
		Cache:   a.Cache,
		Store:   a.Store,
		Metrics: a.Metrics,
		Logger:  logger,
	}
	a.Executor = investment.NewExecutor(deps)

	logger.WithFields(logrus.Fields{
		"pools":   registry.PoolCount(),
		"relay":   cfg.RelayBackend,
		"locks":   cfg.LockBackend,
		"redis":   a.Redis != nil,
		"archive": a.Store != nil,
	}).Info("Deposit pipeline ready")
	return a, nil
}

func (a *App) onClose(fn func() error) {
	a.closers = append(a.closers, fn)
}

// connectRedis is fatal only when a backend needs Redis. Flags and the live
// attempt feed degrade to disabled otherwise.
func (a *App) connectRedis(ctx context.Context) error {
	cfg := a.Config
	required := cfg.RelayBackend == "redis" || cfg.LockBackend == "redis"

	client := redis.NewClient(&redis.Options{Addr: cfg.RedisAddr})
	pctx, cancel := context.WithTimeout(ctx, 3*time.Second)
	defer cancel()
	if err := client.Ping(pctx).Err(); err != nil {
		_ = client.Close()
		if required {
			return fmt.Errorf("connect redis: %w", err)
		}
		a.Logger.WithError(err).Warn("Redis unavailable, flags and live attempt feed disabled")
		return nil
	}

	a.Redis = client
	a.onClose(client.Close)
	a.Cache = cache.NewRedisCache(client, a.Logger)

	fs, err := flags.NewStore(client)
	if err != nil {
		return err
	}
	a.Flags = fs
	return nil
}

func (a *App) buildRelay() (pairing.Relay, error) {
	if a.Config.RelayBackend == "memory" {
		return pairing.NewMemoryRelay(a.Config.RelayURL), nil
	}
	r, err := pairing.NewRedisRelay(a.Redis, pairing.RedisRelayConfig{
		RelayURL:   a.Config.RelayURL,
		PairingTTL: a.Config.SessionTTL,
		Logger:     a.Logger,
	})
	if err != nil {
		return nil, err
	}
	return r, nil
}

func (a *App) buildLocker() (lock.Locker, error) {
	if a.Config.LockBackend == "memory" {
		return lock.NewKeyed(), nil
	}
	l, err := lock.NewRedisLocker(a.Redis, constants.LockTTL, a.Logger)
	if err != nil {
		return nil, err
	}
	return l, nil
}

func (a *App) converter() deposit.AmountConverter {
	if a.Config.ReferenceMint == "" {
		return deposit.TokenAConverter{}
	}
	return deposit.ReferenceConverter{
		Source:   jupiter.NewClient(a.Config.JupiterBaseURL, a.Config.JupiterAPIKey),
		Mint:     a.Config.ReferenceMint,
		Decimals: uint8(a.Config.ReferenceDecimals),
	}
}

// RunJanitor expires abandoned pairings every interval until ctx is done.
func (a *App) RunJanitor(ctx context.Context, interval time.Duration) {
	t := time.NewTicker(interval)
	defer t.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-t.C:
			n, err := a.Sessions.ExpireStale(ctx)
			if err != nil {
				if !errors.Is(err, context.Canceled) {
					a.Logger.WithError(err).Warn("Failed to expire stale sessions")
				}
				continue
			}
			if n > 0 {
				a.Metrics.SessionEvents("expired", n)
				a.Logger.WithField("sessions", n).Info("Expired stale sessions")
			}
		}
	}
}

// Health pings every configured backend.
func (a *App) Health(ctx context.Context) map[string]error {
	out := map[string]error{}
	sqlDB, err := a.DB.DB()
	if err == nil {
		err = sqlDB.PingContext(ctx)
	}
	out["database"] = err
	if a.Redis != nil {
		out["redis"] = a.Redis.Ping(ctx).Err()
	}
	if a.Store != nil {
		out["clickhouse"] = a.Store.Ping(ctx)
	}
	return out
}

// Close releases backends in reverse order of opening.
func (a *App) Close() error {
	var errs []error
	for i := len(a.closers) - 1; i >= 0; i-- {
		if err := a.closers[i](); err != nil {
			errs = append(errs, err)
		}
	}
	a.closers = nil
	return errors.Join(errs...)
}
