package orca

import (
	"context"
	"time"

	"github.com/sirupsen/logrus"

	"github.com/gbsoe/FiLotV2-sub001/internal/apperrors"
)

// PauseChecker reports operator pauses layered on top of the static config.
type PauseChecker interface {
	PoolPaused(ctx context.Context, poolID string) (bool, error)
}

// Gateway serves pool metadata: static accounts from the registry plus live
// reserves from the chain.
type Gateway struct {
	registry *PoolRegistry
	client   *Client
	pauses   PauseChecker
	logger   *logrus.Logger
	now      func() time.Time
}

// NewGateway wires a registry to a chain reader. pauses may be nil.
func NewGateway(registry *PoolRegistry, client *Client, pauses PauseChecker, logger *logrus.Logger) *Gateway {
	if logger == nil {
		logger = logrus.New()
	}
	return &Gateway{
		registry: registry,
		client:   client,
		pauses:   pauses,
		logger:   logger,
		now:      time.Now,
	}
}

// Lookup returns the static pool config without touching the network.
func (g *Gateway) Lookup(poolID string) (*LegacyPool, error) {
	return g.registry.FindPoolByID(poolID)
}

// Snapshot reads current reserves for pool and stamps the read time.
func (g *Gateway) Snapshot(ctx context.Context, pool *LegacyPool) (*PoolSnapshot, error) {
	reserveA, reserveB, supply, err := g.client.FetchReserves(ctx, pool)
	if err != nil {
		return nil, apperrors.Wrap(apperrors.KindRPC, err, "read pool reserves")
	}
	fetchedAt := g.now()

	active := pool.Active
	if active && g.pauses != nil {
		paused, err := g.pauses.PoolPaused(ctx, pool.ID)
		if err != nil {
			// pause lookups fail open
			g.logger.WithError(err).WithField("pool_id", pool.ID).Warn("pool pause lookup failed")
		} else if paused {
			active = false
		}
	}

	return &PoolSnapshot{
		Pool:      pool,
		ReserveA:  reserveA,
		ReserveB:  reserveB,
		LPSupply:  supply,
		FeeBps:    pool.FeeBps(),
		Active:    active,
		FetchedAt: fetchedAt,
	}, nil
}

// GetPool is Lookup followed by Snapshot.
func (g *Gateway) GetPool(ctx context.Context, poolID string) (*PoolSnapshot, error) {
	pool, err := g.Lookup(poolID)
	if err != nil {
		return nil, err
	}
	return g.Snapshot(ctx, pool)
}
