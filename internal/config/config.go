package config

import (
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"
)

type Config struct {
	// RPC settings
	RPCUrl       string
	RPCTimeout   time.Duration
	MaxRetries   int
	RetryBackoff time.Duration
	Commitment   string

	// Ledger database (sqlite path, postgres:// or mysql:// DSN)
	DatabaseDSN string

	// Redis settings
	RedisAddr string

	// ClickHouse settings
	ClickHouseAddr     string
	ClickHouseDatabase string
	ClickHouseUsername string
	ClickHousePassword string

	// API settings
	APIAddr string
	APIKey  string
	DevMode bool

	// Pools
	PoolConfigPath string

	// Deposit policy
	DefaultSlippageBps int
	MaxSlippageBps     int
	StalenessWindow    time.Duration

	// Wallet interaction budgets
	SessionTTL     time.Duration
	PairingTimeout time.Duration
	SigningTimeout time.Duration

	// Confirmation polling
	ConfirmMaxWait        time.Duration
	ConfirmInitialBackoff time.Duration
	ConfirmMaxBackoff     time.Duration

	// Backends: "memory" or "redis"
	LockBackend  string
	RelayBackend string
	RelayURL     string

	// Reference currency conversion (empty = amounts are already in token A)
	ReferenceMint     string
	ReferenceDecimals int
	JupiterBaseURL    string
	JupiterAPIKey     string
}

func Load() *Config {
	return &Config{
		// RPC
		RPCUrl:       getEnv("SOLANA_RPC_URL", "https://api.mainnet-beta.solana.com"),
		RPCTimeout:   getDurationEnv("RPC_TIMEOUT", 30*time.Second),
		MaxRetries:   getIntEnv("MAX_RETRIES", 3),
		RetryBackoff: getDurationEnv("RETRY_BACKOFF", time.Second),
		Commitment:   getEnv("SOLANA_COMMITMENT", "confirmed"),

		DatabaseDSN: getEnv("DATABASE_DSN", "data/ledger.db"),

		// Redis
		RedisAddr: getEnv("REDIS_ADDR", "localhost:6379"),

		// ClickHouse (empty addr disables the analytics sink)
		ClickHouseAddr:     getEnv("CLICKHOUSE_ADDR", ""),
		ClickHouseDatabase: getEnv("CLICKHOUSE_DATABASE", "solana"),
		ClickHouseUsername: getEnv("CLICKHOUSE_USERNAME", "default"),
		ClickHousePassword: getEnv("CLICKHOUSE_PASSWORD", ""),

		// API
		APIAddr: getEnv("API_ADDR", ":8090"),
		APIKey:  getEnv("API_KEY", ""),
		DevMode: getBoolEnv("DEV_MODE", false),

		PoolConfigPath: getEnv("POOL_CONFIG_PATH", "internal/config/pools.json"),

		// Policy
		DefaultSlippageBps: getIntEnv("DEFAULT_SLIPPAGE_BPS", 50),
		MaxSlippageBps:     getIntEnv("MAX_SLIPPAGE_BPS", 1000),
		StalenessWindow:    getDurationEnv("STALENESS_WINDOW", 10*time.Second),

		SessionTTL:     getDurationEnv("SESSION_TTL", 5*time.Minute),
		PairingTimeout: getDurationEnv("PAIRING_TIMEOUT", 2*time.Minute),
		SigningTimeout: getDurationEnv("SIGNING_TIMEOUT", 120*time.Second),

		ConfirmMaxWait:        getDurationEnv("CONFIRM_MAX_WAIT", 60*time.Second),
		ConfirmInitialBackoff: getDurationEnv("CONFIRM_INITIAL_BACKOFF", time.Second),
		ConfirmMaxBackoff:     getDurationEnv("CONFIRM_MAX_BACKOFF", 8*time.Second),

		LockBackend:  strings.ToLower(getEnv("LOCK_BACKEND", "memory")),
		RelayBackend: strings.ToLower(getEnv("RELAY_BACKEND", "redis")),
		RelayURL:     getEnv("RELAY_URL", "wss://relay.walletconnect.com"),

		ReferenceMint:     getEnv("REFERENCE_MINT", ""),
		ReferenceDecimals: getIntEnv("REFERENCE_DECIMALS", 6),
		JupiterBaseURL:    getEnv("JUPITER_BASE_URL", ""),
		JupiterAPIKey:     getEnv("JUPITER_API_KEY", ""),
	}
}

// Validate checks bounds that would otherwise surface as confusing runtime errors.
func (c *Config) Validate() error {
	if strings.TrimSpace(c.RPCUrl) == "" {
		return fmt.Errorf("SOLANA_RPC_URL is required")
	}
	if strings.TrimSpace(c.DatabaseDSN) == "" {
		return fmt.Errorf("DATABASE_DSN is required")
	}
	if c.MaxSlippageBps < 0 || c.MaxSlippageBps > 10000 {
		return fmt.Errorf("MAX_SLIPPAGE_BPS must be within [0, 10000], got %d", c.MaxSlippageBps)
	}
	if c.DefaultSlippageBps < 0 || c.DefaultSlippageBps > c.MaxSlippageBps {
		return fmt.Errorf("DEFAULT_SLIPPAGE_BPS must be within [0, MAX_SLIPPAGE_BPS], got %d", c.DefaultSlippageBps)
	}
	if c.ReferenceDecimals < 0 || c.ReferenceDecimals > 18 {
		return fmt.Errorf("REFERENCE_DECIMALS out of range: %d", c.ReferenceDecimals)
	}

	durations := map[string]time.Duration{
		"STALENESS_WINDOW":        c.StalenessWindow,
		"SESSION_TTL":             c.SessionTTL,
		"PAIRING_TIMEOUT":         c.PairingTimeout,
		"SIGNING_TIMEOUT":         c.SigningTimeout,
		"CONFIRM_MAX_WAIT":        c.ConfirmMaxWait,
		"CONFIRM_INITIAL_BACKOFF": c.ConfirmInitialBackoff,
		"CONFIRM_MAX_BACKOFF":     c.ConfirmMaxBackoff,
	}
	for name, d := range durations {
		if d <= 0 {
			return fmt.Errorf("%s must be positive", name)
		}
	}
	if c.ConfirmMaxBackoff < c.ConfirmInitialBackoff {
		return fmt.Errorf("CONFIRM_MAX_BACKOFF must be >= CONFIRM_INITIAL_BACKOFF")
	}

	switch c.LockBackend {
	case "memory", "redis":
	default:
		return fmt.Errorf("LOCK_BACKEND must be memory or redis, got %q", c.LockBackend)
	}
	switch c.RelayBackend {
	case "memory", "redis":
	default:
		return fmt.Errorf("RELAY_BACKEND must be memory or redis, got %q", c.RelayBackend)
	}
	return nil
}

func getEnv(key, defaultVal string) string {
	if val := os.Getenv(key); val != "" {
		return val
	}
	return defaultVal
}

func getIntEnv(key string, defaultVal int) int {
	if val := os.Getenv(key); val != "" {
		if i, err := strconv.Atoi(val); err == nil {
			return i
		}
	}
	return defaultVal
}

func getBoolEnv(key string, defaultVal bool) bool {
	if val := os.Getenv(key); val != "" {
		if b, err := strconv.ParseBool(val); err == nil {
			return b
		}
	}
	return defaultVal
}

func getDurationEnv(key string, defaultVal time.Duration) time.Duration {
	if val := os.Getenv(key); val != "" {
		if d, err := time.ParseDuration(val); err == nil {
			return d
		}
	}
	return defaultVal
}
