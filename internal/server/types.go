package server

import (
	"github.com/gbsoe/FiLotV2-sub001/internal/models"
)

// ErrorResponse represents a standardized error response format
type ErrorResponse struct {
	Error   string `json:"error"`             // User-facing message
	Code    int    `json:"code"`              // HTTP status code
	Kind    string `json:"kind,omitempty"`    // Machine-readable error kind
	Details any    `json:"details,omitempty"` // Additional error details
}

// HealthResponse reports each backend; OK is false if any check failed.
type HealthResponse struct {
	OK     bool              `json:"ok"`
	Checks map[string]string `json:"checks,omitempty"`
}

type CreateSessionRequest struct {
	SessionID string `json:"session_id"` // optional, generated when empty
}

type AwaitSessionRequest struct {
	TimeoutSeconds int `json:"timeout_seconds"`
}

type AwaitSessionResponse struct {
	SessionID     string `json:"session_id"`
	WalletAddress string `json:"wallet_address"`
}

// AttemptResponse is one attempt with its audit trail.
type AttemptResponse struct {
	Attempt *models.InvestmentAttempt  `json:"attempt"`
	History []models.AttemptTransition `json:"history"`
}

// PoolQuoteResponse previews a deposit without building a transaction.
type PoolQuoteResponse struct {
	PoolID           string                 `json:"pool_id"`
	TokenAAmount     uint64                 `json:"token_a_amount"`
	TokenBAmount     uint64                 `json:"token_b_amount"`
	ExpectedLPTokens uint64                 `json:"expected_lp_tokens"`
	MinLPTokens      uint64                 `json:"min_lp_tokens"`
	SlippageBps      uint16                 `json:"slippage_bps"`
	FeeBps           uint16                 `json:"fee_bps"`
	ReserveA         uint64                 `json:"reserve_a"`
	ReserveB         uint64                 `json:"reserve_b"`
	Summary          *models.DepositSummary `json:"summary"`
}

// FlagUpsertRequest represents a request to create or update a feature flag
type FlagUpsertRequest struct {
	Key   string `json:"key"`   // Flag key (must match regex pattern)
	Value bool   `json:"value"` // Flag value (true/false)
}

// FlagUpdateRequest represents a request to update an existing feature flag
type FlagUpdateRequest struct {
	Value bool `json:"value"` // New flag value
}
