package rpc

import (
	"context"
	"encoding/base64"
	"fmt"
	"strconv"
	"strings"

	"github.com/gagliardetto/solana-go"
)

// GetTokenAccountBalance returns the raw balance of an SPL token account.
// A missing account yields ErrAccountNotFound.
func (c *Client) GetTokenAccountBalance(ctx context.Context, account solana.PublicKey) (uint64, error) {
	params := []any{
		account.String(),
		map[string]any{"commitment": c.commitment},
	}

	var resp tokenAmountResponse
	if err := c.Call(ctx, "getTokenAccountBalance", params, &resp); err != nil {
		return 0, fmt.Errorf("getTokenAccountBalance RPC failed: %w", err)
	}
	if resp.Error != nil {
		if isAccountMissing(resp.Error) {
			return 0, ErrAccountNotFound
		}
		return 0, fmt.Errorf("getTokenAccountBalance error: %w", resp.Error)
	}
	return parseAmount(resp.Result.Value.Amount)
}

// GetTokenSupply returns the raw supply of a mint (LP supply for pool mints).
func (c *Client) GetTokenSupply(ctx context.Context, mint solana.PublicKey) (uint64, error) {
	params := []any{
		mint.String(),
		map[string]any{"commitment": c.commitment},
	}

	var resp tokenAmountResponse
	if err := c.Call(ctx, "getTokenSupply", params, &resp); err != nil {
		return 0, fmt.Errorf("getTokenSupply RPC failed: %w", err)
	}
	if resp.Error != nil {
		return 0, fmt.Errorf("getTokenSupply error: %w", resp.Error)
	}
	return parseAmount(resp.Result.Value.Amount)
}

// GetLatestBlockhash fetches the most recent blockhash at the client commitment.
func (c *Client) GetLatestBlockhash(ctx context.Context) (solana.Hash, error) {
	params := []any{
		map[string]any{"commitment": c.commitment},
	}

	var resp blockhashResponse
	if err := c.Call(ctx, "getLatestBlockhash", params, &resp); err != nil {
		return solana.Hash{}, fmt.Errorf("getLatestBlockhash failed: %w", err)
	}
	if resp.Error != nil {
		return solana.Hash{}, fmt.Errorf("getLatestBlockhash error: %w", resp.Error)
	}

	hash, err := solana.HashFromBase58(resp.Result.Value.Blockhash)
	if err != nil {
		return solana.Hash{}, fmt.Errorf("invalid blockhash format: %w", err)
	}
	return hash, nil
}

// IsBlockhashValid reports whether transactions referencing hash can still land.
func (c *Client) IsBlockhashValid(ctx context.Context, hash solana.Hash) (bool, error) {
	params := []any{
		hash.String(),
		map[string]any{"commitment": "processed"},
	}

	var resp boolValueResponse
	if err := c.Call(ctx, "isBlockhashValid", params, &resp); err != nil {
		return false, fmt.Errorf("isBlockhashValid RPC failed: %w", err)
	}
	if resp.Error != nil {
		return false, fmt.Errorf("isBlockhashValid error: %w", resp.Error)
	}
	return resp.Result.Value, nil
}

// AccountExists checks if an account exists on-chain (getAccountInfo != nil).
func (c *Client) AccountExists(ctx context.Context, pubkey solana.PublicKey) (bool, error) {
	params := []any{
		pubkey.String(),
		map[string]any{
			"encoding":   "base64",
			"commitment": c.commitment,
		},
	}

	var resp accountInfoResponse
	if err := c.Call(ctx, "getAccountInfo", params, &resp); err != nil {
		return false, fmt.Errorf("getAccountInfo RPC failed: %w", err)
	}
	if resp.Error != nil {
		return false, fmt.Errorf("getAccountInfo error: %w", resp.Error)
	}
	return resp.Result.Value != nil, nil
}

// SendTransaction broadcasts a serialized, signed transaction exactly once.
// A JSON-RPC level rejection is returned as *RPCError; anything else is a
// transport failure.
func (c *Client) SendTransaction(ctx context.Context, raw []byte) (string, error) {
	params := []any{
		base64.StdEncoding.EncodeToString(raw),
		map[string]any{
			"encoding":            "base64",
			"skipPreflight":       false,
			"preflightCommitment": "processed",
			"maxRetries":          0,
		},
	}

	var resp sendTransactionResponse
	if err := c.CallOnce(ctx, "sendTransaction", params, &resp); err != nil {
		return "", fmt.Errorf("sendTransaction RPC failed: %w", err)
	}
	if resp.Error != nil {
		return "", resp.Error
	}
	return resp.Result, nil
}

// GetSignatureStatus returns the network status of a signature, or nil when
// the network has no record of it.
func (c *Client) GetSignatureStatus(ctx context.Context, signature string) (*SignatureStatus, error) {
	params := []any{
		[]string{signature},
		map[string]any{"searchTransactionHistory": true},
	}

	var resp signatureStatusesResponse
	if err := c.Call(ctx, "getSignatureStatuses", params, &resp); err != nil {
		return nil, fmt.Errorf("getSignatureStatuses RPC failed: %w", err)
	}
	if resp.Error != nil {
		return nil, fmt.Errorf("getSignatureStatuses error: %w", resp.Error)
	}
	if len(resp.Result.Value) == 0 || resp.Result.Value[0] == nil {
		return nil, nil
	}
	return resp.Result.Value[0], nil
}

func isAccountMissing(e *RPCError) bool {
	return strings.Contains(strings.ToLower(e.Message), "could not find account")
}

func parseAmount(s string) (uint64, error) {
	v, err := strconv.ParseUint(s, 10, 64)
	if err != nil {
		return 0, fmt.Errorf("invalid amount format %q: %w", s, err)
	}
	return v, nil
}
