package orca

import (
	"context"
	"encoding/binary"
	"errors"
	"os"
	"path/filepath"
	"sync"
	"testing"
	"time"

	"github.com/gagliardetto/solana-go"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/gbsoe/FiLotV2-sub001/internal/apperrors"
)

type fakeReader struct {
	mu       sync.Mutex
	balances map[solana.PublicKey]uint64
	supply   map[solana.PublicKey]uint64
	err      error
}

func (f *fakeReader) GetTokenAccountBalance(_ context.Context, account solana.PublicKey) (uint64, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.err != nil {
		return 0, f.err
	}
	return f.balances[account], nil
}

func (f *fakeReader) GetTokenSupply(_ context.Context, mint solana.PublicKey) (uint64, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.err != nil {
		return 0, f.err
	}
	return f.supply[mint], nil
}

type fakePauses map[string]bool

func (f fakePauses) PoolPaused(_ context.Context, poolID string) (bool, error) {
	return f[poolID], nil
}

func testPool(id string) LegacyPool {
	return LegacyPool{
		ID:             id,
		Name:           "SOL/USDC",
		Active:         true,
		ProgramID:      solana.MustPublicKeyFromBase58(LegacyProgramID),
		SwapAccount:    solana.NewWallet().PublicKey(),
		Authority:      solana.NewWallet().PublicKey(),
		TokenMintA:     solana.NewWallet().PublicKey(),
		TokenMintB:     solana.NewWallet().PublicKey(),
		TokenADecimals: 9,
		TokenBDecimals: 6,
		VaultA:         solana.NewWallet().PublicKey(),
		VaultB:         solana.NewWallet().PublicKey(),
		PoolMint:       solana.NewWallet().PublicKey(),
		FeeAccount:     solana.NewWallet().PublicKey(),
		FeeNumerator:   30,
		FeeDenominator: 10000,
	}
}

func TestGateway_GetPool(t *testing.T) {
	pool := testPool("sol-usdc")
	reg, err := NewPoolRegistryFromPools([]LegacyPool{pool})
	require.NoError(t, err)

	reader := &fakeReader{
		balances: map[solana.PublicKey]uint64{pool.VaultA: 500000, pool.VaultB: 250000},
		supply:   map[solana.PublicKey]uint64{pool.PoolMint: 100000},
	}
	gw := NewGateway(reg, NewClient(reader), nil, nil)
	fixed := time.Date(2026, 1, 2, 3, 4, 5, 0, time.UTC)
	gw.now = func() time.Time { return fixed }

	snap, err := gw.GetPool(context.Background(), "sol-usdc")
	require.NoError(t, err)
	assert.Equal(t, "sol-usdc", snap.PoolID())
	assert.Equal(t, uint64(500000), snap.ReserveA)
	assert.Equal(t, uint64(250000), snap.ReserveB)
	assert.Equal(t, uint64(100000), snap.LPSupply)
	assert.Equal(t, uint16(30), snap.FeeBps)
	assert.True(t, snap.Active)
	assert.Equal(t, fixed, snap.FetchedAt)
}

func TestGateway_UnknownPool(t *testing.T) {
	reg, err := NewPoolRegistryFromPools(nil)
	require.NoError(t, err)
	gw := NewGateway(reg, NewClient(&fakeReader{}), nil, nil)

	_, err = gw.GetPool(context.Background(), "nope")
	assert.ErrorIs(t, err, apperrors.ErrPoolNotFound)
}

func TestGateway_PausedPoolIsInactive(t *testing.T) {
	pool := testPool("paused")
	reg, err := NewPoolRegistryFromPools([]LegacyPool{pool})
	require.NoError(t, err)

	gw := NewGateway(reg, NewClient(&fakeReader{}), fakePauses{"paused": true}, nil)
	snap, err := gw.GetPool(context.Background(), "paused")
	require.NoError(t, err)
	assert.False(t, snap.Active)
}

func TestGateway_ReadFailureIsRPCError(t *testing.T) {
	pool := testPool("p")
	reg, err := NewPoolRegistryFromPools([]LegacyPool{pool})
	require.NoError(t, err)

	gw := NewGateway(reg, NewClient(&fakeReader{err: errors.New("boom")}), nil, nil)
	_, err = gw.GetPool(context.Background(), "p")
	assert.ErrorIs(t, err, apperrors.ErrRPC)
	assert.True(t, apperrors.IsRetryable(err))
}

func TestRegistry_DuplicateID(t *testing.T) {
	_, err := NewPoolRegistryFromPools([]LegacyPool{testPool("x"), testPool("x")})
	assert.Error(t, err)
}

func TestLoadLegacyPoolsFromJSON(t *testing.T) {
	path := filepath.Join(t.TempDir(), "pools.json")
	body := `[{
		"id": "orca-sol-usdc", "name": "SOL/USDC", "active": false,
		"program_id": "9W959DqEETiGZocYWCQPaJ6sBmUzgfxXfqGeTEdp3aQP",
		"swap_account": "EGZ7tiLeH62TPV1gL8WwbXGzEPa9zmcpVnnkPKKnrE2U",
		"authority": "JU8kmKzDHF9sXWsnoznaFDFezLsE5uomX2JkRMbmsQP",
		"token_mint_a": "So11111111111111111111111111111111111111112",
		"token_mint_b": "EPjFWdd5AufqSSqeM2qN1xzybapC8G4wEGGkZwyTDt1v",
		"token_a_decimals": 9, "token_b_decimals": 6,
		"vault_a": "ANP74VNsHwSrq9uUSjiSNyNWvf6ZPrKTmE4gHoNd13Lg",
		"vault_b": "75HgnSvXbWKZBpZHveX68ZzAhDqMzNDS29X6BGLtxMo1",
		"pool_mint": "APDFRM3HMr8CAGXwKHiu2f5ePSpaiEJhaURwhsRrUUt9",
		"fee_account": "8JnSiuvQq3BVuCU3n4DrSTw9chBSPvEMswrhtifVkr1o",
		"fee_numerator": 30, "fee_denominator": 10000
	}]`
	require.NoError(t, os.WriteFile(path, []byte(body), 0o600))

	reg, err := NewPoolRegistry(path)
	require.NoError(t, err)
	assert.Equal(t, 1, reg.PoolCount())

	p, err := reg.FindPoolByID("orca-sol-usdc")
	require.NoError(t, err)
	assert.False(t, p.Active)
	assert.Equal(t, uint8(9), p.TokenADecimals)

	byMints, err := reg.FindPoolByMints(p.TokenMintB, p.TokenMintA)
	require.NoError(t, err)
	assert.Equal(t, p.ID, byMints.ID)
}

func TestLoadLegacyPoolsFromJSON_RejectsBadKey(t *testing.T) {
	path := filepath.Join(t.TempDir(), "pools.json")
	body := `[{"id": "bad", "program_id": "not-a-key", "fee_numerator": 1, "fee_denominator": 100}]`
	require.NoError(t, os.WriteFile(path, []byte(body), 0o600))

	_, err := NewPoolRegistry(path)
	assert.Error(t, err)
}

func TestBuildDepositInstruction(t *testing.T) {
	pool := testPool("p")
	accts := DepositAccounts{
		TransferAuthority: solana.NewWallet().PublicKey(),
		SourceA:           solana.NewWallet().PublicKey(),
		SourceB:           solana.NewWallet().PublicKey(),
		Destination:       solana.NewWallet().PublicKey(),
	}

	ix, err := BuildDepositInstruction(&pool, accts, 995, 1000, 2000)
	require.NoError(t, err)
	assert.Equal(t, pool.ProgramID, ix.ProgramID())

	data, err := ix.Data()
	require.NoError(t, err)
	require.Len(t, data, 25)
	assert.Equal(t, byte(2), data[0])
	assert.Equal(t, uint64(995), binary.LittleEndian.Uint64(data[1:9]))
	assert.Equal(t, uint64(1000), binary.LittleEndian.Uint64(data[9:17]))
	assert.Equal(t, uint64(2000), binary.LittleEndian.Uint64(data[17:25]))

	accs := ix.Accounts()
	require.Len(t, accs, 10)
	assert.Equal(t, accts.TransferAuthority, accs[2].PublicKey)
	assert.True(t, accs[2].IsSigner)
	assert.Equal(t, pool.PoolMint, accs[7].PublicKey)
	assert.Equal(t, accts.Destination, accs[8].PublicKey)

	_, err = BuildDepositInstruction(&pool, accts, 0, 1, 1)
	assert.Error(t, err)
}
