package orca

import (
	"context"
	"fmt"

	"github.com/gagliardetto/solana-go"
	"golang.org/x/sync/errgroup"
)

// Reader is the subset of the RPC client needed to read pool state.
type Reader interface {
	GetTokenAccountBalance(ctx context.Context, account solana.PublicKey) (uint64, error)
	GetTokenSupply(ctx context.Context, mint solana.PublicKey) (uint64, error)
}

// Client provides RPC helpers for fetching Orca pool vault balances
type Client struct {
	reader Reader
}

// NewClient creates an Orca client on top of an RPC reader
func NewClient(reader Reader) *Client {
	return &Client{reader: reader}
}

// FetchReserves reads both vault balances and the LP supply concurrently.
func (c *Client) FetchReserves(
	ctx context.Context,
	pool *LegacyPool,
) (reserveA, reserveB, supply uint64, err error) {

	g, gctx := errgroup.WithContext(ctx)

	g.Go(func() error {
		v, err := c.reader.GetTokenAccountBalance(gctx, pool.VaultA)
		if err != nil {
			return fmt.Errorf("failed to fetch vault A balance: %w", err)
		}
		reserveA = v
		return nil
	})
	g.Go(func() error {
		v, err := c.reader.GetTokenAccountBalance(gctx, pool.VaultB)
		if err != nil {
			return fmt.Errorf("failed to fetch vault B balance: %w", err)
		}
		reserveB = v
		return nil
	})
	g.Go(func() error {
		v, err := c.reader.GetTokenSupply(gctx, pool.PoolMint)
		if err != nil {
			return fmt.Errorf("failed to fetch LP supply: %w", err)
		}
		supply = v
		return nil
	})

	if err := g.Wait(); err != nil {
		return 0, 0, 0, err
	}
	return reserveA, reserveB, supply, nil
}
