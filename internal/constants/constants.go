package constants

import "time"

// Redis keys
const (
	RedisKeyRecentAttempts = "investments:recent"
	RedisKeyPairingPrefix  = "wallet:pairing:"
	RedisKeyLockPrefix     = "lock:session:"
)

// Redis Pub/Sub channels
const (
	PubSubChannelAttempts   = "investments:all"
	PubSubUserChannelPrefix = "investments:user:"
	// Wallet relay channels are "wallet:<session_id>:<direction>".
	RelayChannelPrefix    = "wallet:"
	RelayToWalletSuffix   = ":to_wallet"
	RelayFromWalletSuffix = ":from_wallet"
)

// Limits
const (
	MaxRecentAttempts  = 100
	MaxSlippageBpsCeil = 10000
	ResumeConcurrency  = 4
)

// Timing
const (
	RelayRetryBackoff = 500 * time.Millisecond
	RelayMaxAttempts  = 3
	LockTTL           = 10 * time.Minute
)

// Program addresses
const (
	// Orca legacy constant-product swap program (SPL token-swap fork)
	OrcaLegacyProgram      = "9W959DqEETiGZocYWCQPaJ6sBmUzgfxXfqGeTEdp3aQP"
	AssociatedTokenProgram = "ATokenGPvbdGVxr1b2hvZbsiqW5xWH25efTNsLJA8knL"
)

// Token mint addresses to symbols, used for human-readable summaries.
var TokenSymbols = map[string]string{
	"So11111111111111111111111111111111111111112":  "SOL",
	"EPjFWdd5AufqSSqeM2qN1xzybapC8G4wEGGkZwyTDt1v": "USDC",
	"Es9vMFrzaCERmJfrF4H2FYD4KCoNkY11McCe8BenwNYB": "USDT",
	"mSoLzYCxHdYgdzU16g5QSh3i5K3z3KZK7ytfqcJm7So":  "mSOL",
	"7vfCXTUXx5WJV5JADk17DUJ4ksgau7utNKj4b963voxs": "ETH",
	"DezXAZ8z7PnrnRJjz3wXBoRgixCa6xjnB7YaB1pPB263": "BONK",
	"JUPyiwrYJFskUPiHa7hkeR8VUtAeFoSYbKedZNsDvCN":  "JUP",
	"4k3Dyjzvzp8eMZWUXbBCjEvwSkkk59S5iCNLY3QrkX6R": "RAY",
	"orcaEKTdK7LKz57vaAYr9QeNsVEPfiu6QeMU1kektZE":  "ORCA",
}

// SymbolFor returns the known symbol for a mint, or a shortened mint address.
func SymbolFor(mint string) string {
	if s, ok := TokenSymbols[mint]; ok {
		return s
	}
	if len(mint) > 8 {
		return mint[:4] + ".." + mint[len(mint)-4:]
	}
	return mint
}
