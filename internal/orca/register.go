package orca

import (
	"encoding/json"
	"fmt"
	"os"
	"regexp"

	"github.com/gagliardetto/solana-go"

	"github.com/gbsoe/FiLotV2-sub001/internal/apperrors"
)

var poolIDRe = regexp.MustCompile(`^[a-zA-Z0-9._-]{1,64}$`)

// LegacyPoolConfig represents a pool entry in the JSON config
type LegacyPoolConfig struct {
	ID             string `json:"id"`
	Name           string `json:"name"`
	Active         *bool  `json:"active,omitempty"`
	ProgramID      string `json:"program_id"`
	SwapAccount    string `json:"swap_account"`
	Authority      string `json:"authority"`
	TokenMintA     string `json:"token_mint_a"`
	TokenMintB     string `json:"token_mint_b"`
	TokenADecimals uint8  `json:"token_a_decimals"`
	TokenBDecimals uint8  `json:"token_b_decimals"`
	VaultA         string `json:"vault_a"`
	VaultB         string `json:"vault_b"`
	PoolMint       string `json:"pool_mint"`
	FeeAccount     string `json:"fee_account"`
	FeeNumerator   uint64 `json:"fee_numerator"`
	FeeDenominator uint64 `json:"fee_denominator"`
}

// LegacyPool represents a parsed, ready-to-use pool configuration
type LegacyPool struct {
	ID             string
	Name           string
	Active         bool
	ProgramID      solana.PublicKey
	SwapAccount    solana.PublicKey
	Authority      solana.PublicKey
	TokenMintA     solana.PublicKey
	TokenMintB     solana.PublicKey
	TokenADecimals uint8
	TokenBDecimals uint8
	VaultA         solana.PublicKey
	VaultB         solana.PublicKey
	PoolMint       solana.PublicKey
	FeeAccount     solana.PublicKey
	FeeNumerator   uint64
	FeeDenominator uint64
}

// FeeBps returns the trade fee in basis points.
func (p *LegacyPool) FeeBps() uint16 {
	return CalculateFeeBps(p.FeeNumerator, p.FeeDenominator)
}

// PoolRegistry holds all configured pools
type PoolRegistry struct {
	pools []LegacyPool
	byID  map[string]int
}

// NewPoolRegistry loads pools from a JSON file
func NewPoolRegistry(configPath string) (*PoolRegistry, error) {
	pools, err := LoadLegacyPoolsFromJSON(configPath)
	if err != nil {
		return nil, fmt.Errorf("failed to load pools: %w", err)
	}
	return NewPoolRegistryFromPools(pools)
}

// NewPoolRegistryFromPools builds a registry from already parsed pools.
func NewPoolRegistryFromPools(pools []LegacyPool) (*PoolRegistry, error) {
	r := &PoolRegistry{
		pools: pools,
		byID:  make(map[string]int, len(pools)),
	}
	for i, p := range pools {
		if _, dup := r.byID[p.ID]; dup {
			return nil, fmt.Errorf("duplicate pool id %q", p.ID)
		}
		r.byID[p.ID] = i
	}
	return r, nil
}

// LoadLegacyPoolsFromJSON reads and parses pool configurations
func LoadLegacyPoolsFromJSON(path string) ([]LegacyPool, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read config file: %w", err)
	}

	var configs []LegacyPoolConfig
	if err := json.Unmarshal(data, &configs); err != nil {
		return nil, fmt.Errorf("failed to parse JSON: %w", err)
	}

	pools := make([]LegacyPool, 0, len(configs))
	for i, cfg := range configs {
		pool, err := parsePoolConfig(cfg)
		if err != nil {
			return nil, fmt.Errorf("pool %d (%s): %w", i, cfg.Name, err)
		}
		pools = append(pools, pool)
	}

	return pools, nil
}

// parsePoolConfig converts a config struct to a LegacyPool with validation
func parsePoolConfig(cfg LegacyPoolConfig) (LegacyPool, error) {
	if !poolIDRe.MatchString(cfg.ID) {
		return LegacyPool{}, fmt.Errorf("invalid pool id %q", cfg.ID)
	}
	if cfg.FeeDenominator == 0 {
		return LegacyPool{}, fmt.Errorf("fee_denominator must be > 0")
	}
	if cfg.FeeNumerator >= cfg.FeeDenominator {
		return LegacyPool{}, fmt.Errorf("fee_numerator must be < fee_denominator")
	}

	keys := map[string]string{
		"program_id":   cfg.ProgramID,
		"swap_account": cfg.SwapAccount,
		"authority":    cfg.Authority,
		"token_mint_a": cfg.TokenMintA,
		"token_mint_b": cfg.TokenMintB,
		"vault_a":      cfg.VaultA,
		"vault_b":      cfg.VaultB,
		"pool_mint":    cfg.PoolMint,
		"fee_account":  cfg.FeeAccount,
	}
	parsed := make(map[string]solana.PublicKey, len(keys))
	for field, v := range keys {
		pk, err := solana.PublicKeyFromBase58(v)
		if err != nil {
			return LegacyPool{}, fmt.Errorf("%s: %w", field, err)
		}
		parsed[field] = pk
	}

	active := true
	if cfg.Active != nil {
		active = *cfg.Active
	}

	return LegacyPool{
		ID:             cfg.ID,
		Name:           cfg.Name,
		Active:         active,
		ProgramID:      parsed["program_id"],
		SwapAccount:    parsed["swap_account"],
		Authority:      parsed["authority"],
		TokenMintA:     parsed["token_mint_a"],
		TokenMintB:     parsed["token_mint_b"],
		TokenADecimals: cfg.TokenADecimals,
		TokenBDecimals: cfg.TokenBDecimals,
		VaultA:         parsed["vault_a"],
		VaultB:         parsed["vault_b"],
		PoolMint:       parsed["pool_mint"],
		FeeAccount:     parsed["fee_account"],
		FeeNumerator:   cfg.FeeNumerator,
		FeeDenominator: cfg.FeeDenominator,
	}, nil
}

// FindPoolByID returns the pool registered under id.
func (r *PoolRegistry) FindPoolByID(id string) (*LegacyPool, error) {
	i, ok := r.byID[id]
	if !ok {
		return nil, apperrors.Newf(apperrors.KindPoolNotFound, "pool not found: %s", id)
	}
	return &r.pools[i], nil
}

// FindPoolByMints searches for a pool matching the given token pair
func (r *PoolRegistry) FindPoolByMints(
	mintA, mintB solana.PublicKey,
) (*LegacyPool, error) {

	for i := range r.pools {
		pool := &r.pools[i]

		// Check both orderings
		if (pool.TokenMintA.Equals(mintA) && pool.TokenMintB.Equals(mintB)) ||
			(pool.TokenMintA.Equals(mintB) && pool.TokenMintB.Equals(mintA)) {
			return pool, nil
		}
	}

	return nil, apperrors.Newf(apperrors.KindPoolNotFound, "no pool found for mints %s / %s", mintA, mintB)
}

// GetAllPools returns all registered pools
func (r *PoolRegistry) GetAllPools() []LegacyPool {
	return r.pools
}

// PoolCount returns the number of registered pools
func (r *PoolRegistry) PoolCount() int {
	return len(r.pools)
}
