package flags

import (
	"context"
	"fmt"
)

// PoolPausedKey is the switch that stops new deposits into poolID.
func PoolPausedKey(poolID string) string {
	return fmt.Sprintf("pool.%s.paused", poolID)
}

// DepositsPausedKey stops new deposits into every pool.
const DepositsPausedKey = "deposits.paused"

// PoolPaused reports whether deposits into poolID are switched off, either
// for that pool or globally.
func (s *Store) PoolPaused(ctx context.Context, poolID string) (bool, error) {
	if paused, err := s.Enabled(ctx, DepositsPausedKey); err != nil || paused {
		return paused, err
	}
	return s.Enabled(ctx, PoolPausedKey(poolID))
}
