package models

import (
	"time"

	"github.com/shopspring/decimal"
)

type AttemptStatus string

const (
	StatusCreated           AttemptStatus = "created"
	StatusValidated         AttemptStatus = "validated"
	StatusBuilt             AttemptStatus = "built"
	StatusAwaitingSignature AttemptStatus = "awaiting_signature"
	StatusSigned            AttemptStatus = "signed"
	StatusSubmitted         AttemptStatus = "submitted"

	StatusConfirmed           AttemptStatus = "confirmed"
	StatusFailedOnchain       AttemptStatus = "failed_onchain"
	StatusUnknown             AttemptStatus = "unknown"
	StatusInsufficientBalance AttemptStatus = "insufficient_balance"
	StatusRejected            AttemptStatus = "rejected"
	StatusTimedOut            AttemptStatus = "timed_out"
	StatusCancelled           AttemptStatus = "cancelled"
	StatusRPCError            AttemptStatus = "rpc_error"
	StatusAborted             AttemptStatus = "aborted"
)

var terminalStatuses = map[AttemptStatus]bool{
	StatusConfirmed:           true,
	StatusFailedOnchain:       true,
	StatusUnknown:             true,
	StatusInsufficientBalance: true,
	StatusRejected:            true,
	StatusTimedOut:            true,
	StatusCancelled:           true,
	StatusRPCError:            true,
	StatusAborted:             true,
}

// IsTerminal reports whether s is final.
func (s AttemptStatus) IsTerminal() bool {
	return terminalStatuses[s]
}

// NonTerminalStatuses lists the in-flight statuses in pipeline order.
func NonTerminalStatuses() []AttemptStatus {
	return []AttemptStatus{
		StatusCreated,
		StatusValidated,
		StatusBuilt,
		StatusAwaitingSignature,
		StatusSigned,
		StatusSubmitted,
	}
}

// InvestmentAttempt is the durable record of one deposit request.
//
// InflightKey holds "user_id|pool_id" while the attempt is non-terminal and
// is NULLed by the terminal write. Its unique index allows at most one
// in-flight attempt per user and pool.
type InvestmentAttempt struct {
	AttemptID        string          `gorm:"primaryKey;type:varchar(64)" json:"attempt_id"`
	UserID           string          `gorm:"type:varchar(255);index;not null" json:"user_id"`
	SessionID        string          `gorm:"type:varchar(64);index" json:"session_id"`
	WalletAddress    string          `gorm:"type:varchar(64);not null" json:"wallet_address"`
	PoolID           string          `gorm:"type:varchar(64);index;not null" json:"pool_id"`
	RequestedAmount  decimal.Decimal `gorm:"type:varchar(64);not null" json:"requested_amount"`
	TokenAMint       string          `gorm:"type:varchar(64)" json:"token_a_mint,omitempty"`
	TokenBMint       string          `gorm:"type:varchar(64)" json:"token_b_mint,omitempty"`
	TokenAAmount     uint64          `json:"token_a_amount"`
	TokenBAmount     uint64          `json:"token_b_amount"`
	ExpectedLPTokens uint64          `json:"expected_lp_tokens"`
	MinLPTokens      uint64          `json:"min_lp_tokens"`
	SlippageBps      uint16          `json:"slippage_bps"`
	FeeBps           uint16          `json:"fee_bps"`
	QuotedAt         *time.Time      `json:"quoted_at,omitempty"`
	Status           AttemptStatus   `gorm:"type:varchar(32);index;not null" json:"status"`
	TxSignature      *string         `gorm:"type:varchar(128);uniqueIndex" json:"tx_signature,omitempty"`
	SignedTx         *string         `gorm:"type:text" json:"-"`
	FailureCode      *string         `gorm:"type:varchar(64)" json:"failure_code,omitempty"`
	FailureDetail    *string         `gorm:"type:text" json:"failure_detail,omitempty"`
	InflightKey      *string         `gorm:"type:varchar(320);uniqueIndex" json:"-"`
	CreatedAt        time.Time       `json:"created_at"`
	UpdatedAt        time.Time       `json:"updated_at"`
}

func (InvestmentAttempt) TableName() string { return "investment_attempts" }

// AttemptTransition is an append-only audit row written with every status
// change.
type AttemptTransition struct {
	ID          uint          `gorm:"primaryKey" json:"id"`
	AttemptID   string        `gorm:"type:varchar(64);index;not null" json:"attempt_id"`
	FromStatus  AttemptStatus `gorm:"type:varchar(32)" json:"from_status"`
	ToStatus    AttemptStatus `gorm:"type:varchar(32);not null" json:"to_status"`
	FailureCode *string       `gorm:"type:varchar(64)" json:"failure_code,omitempty"`
	At          time.Time     `json:"at"`
}

func (AttemptTransition) TableName() string { return "attempt_transitions" }

// InflightKey builds the uniqueness slot for a user and pool.
func InflightKey(userID, poolID string) string {
	return userID + "|" + poolID
}

// AttemptEvent is the flattened form published to caches and analytics
// sinks after a status change.
type AttemptEvent struct {
	AttemptID     string        `json:"attempt_id"`
	UserID        string        `json:"user_id"`
	WalletAddress string        `json:"wallet_address"`
	PoolID        string        `json:"pool_id"`
	Status        AttemptStatus `json:"status"`
	TokenAAmount  uint64        `json:"token_a_amount"`
	TokenBAmount  uint64        `json:"token_b_amount"`
	MinLPTokens   uint64        `json:"min_lp_tokens"`
	SlippageBps   uint16        `json:"slippage_bps"`
	TxSignature   string        `json:"tx_signature,omitempty"`
	FailureCode   string        `json:"failure_code,omitempty"`
	Timestamp     time.Time     `json:"timestamp"`
}

// Event flattens the attempt for publishing.
func (a *InvestmentAttempt) Event() *AttemptEvent {
	ev := &AttemptEvent{
		AttemptID:     a.AttemptID,
		UserID:        a.UserID,
		WalletAddress: a.WalletAddress,
		PoolID:        a.PoolID,
		Status:        a.Status,
		TokenAAmount:  a.TokenAAmount,
		TokenBAmount:  a.TokenBAmount,
		MinLPTokens:   a.MinLPTokens,
		SlippageBps:   a.SlippageBps,
		Timestamp:     a.UpdatedAt,
	}
	if a.TxSignature != nil {
		ev.TxSignature = *a.TxSignature
	}
	if a.FailureCode != nil {
		ev.FailureCode = *a.FailureCode
	}
	return ev
}
