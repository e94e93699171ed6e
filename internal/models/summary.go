package models

// DepositSummary is the human-readable description shown by the wallet next
// to the transaction it is asked to sign.
type DepositSummary struct {
	PoolID       string `json:"pool_id"`
	PoolName     string `json:"pool_name"`
	TokenASymbol string `json:"token_a_symbol"`
	TokenBSymbol string `json:"token_b_symbol"`
	TokenAAmount string `json:"token_a_amount"` // UI units
	TokenBAmount string `json:"token_b_amount"` // UI units
	MinLPTokens  uint64 `json:"min_lp_tokens"`
	SlippageBps  uint16 `json:"slippage_bps"`
}
