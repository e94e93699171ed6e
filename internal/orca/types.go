package orca

import (
	"time"
)

// Legacy Orca constant-product pool program ID
const (
	LegacyProgramID = "9W959DqEETiGZocYWCQPaJ6sBmUzgfxXfqGeTEdp3aQP"
)

// PoolSnapshot is the on-chain state of one pool at FetchedAt. It is read
// fresh for every attempt because reserves move.
type PoolSnapshot struct {
	Pool      *LegacyPool
	ReserveA  uint64 // Current balance in vault A
	ReserveB  uint64 // Current balance in vault B
	LPSupply  uint64 // Outstanding pool tokens
	FeeBps    uint16
	Active    bool
	FetchedAt time.Time
}

// PoolID returns the registry id of the snapshotted pool.
func (s *PoolSnapshot) PoolID() string {
	if s.Pool == nil {
		return ""
	}
	return s.Pool.ID
}

// Age returns how old the snapshot is at now.
func (s *PoolSnapshot) Age(now time.Time) time.Duration {
	return now.Sub(s.FetchedAt)
}
