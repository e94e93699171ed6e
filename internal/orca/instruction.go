package orca

import (
	"encoding/binary"
	"fmt"

	"github.com/gagliardetto/solana-go"
)

// SPL Token Swap instruction discriminators
const (
	ixDepositAllTokenTypes = 2
)

// DepositAccounts are the user-side accounts for a two-sided deposit.
type DepositAccounts struct {
	TransferAuthority solana.PublicKey // signer holding the approvals
	SourceA           solana.PublicKey // user's token A account
	SourceB           solana.PublicKey // user's token B account
	Destination       solana.PublicKey // user's LP token account
}

// BuildDepositInstruction constructs an SPL Token Swap DepositAllTokenTypes
// instruction. The program mints exactly poolTokenAmount LP tokens and fails
// if that would take more than maxTokenA / maxTokenB from the user.
func BuildDepositInstruction(
	pool *LegacyPool,
	accts DepositAccounts,
	poolTokenAmount uint64,
	maxTokenA uint64,
	maxTokenB uint64,
) (solana.Instruction, error) {

	if pool == nil {
		return nil, fmt.Errorf("pool cannot be nil")
	}
	if poolTokenAmount == 0 {
		return nil, fmt.Errorf("pool token amount must be > 0")
	}

	// SPL Token Swap DepositAllTokenTypes account order:
	// 0. swap_state
	// 1. authority (PDA that controls vaults)
	// 2. user_transfer_authority (signer)
	// 3. user token A (source)
	// 4. user token B (source)
	// 5. pool vault A
	// 6. pool vault B
	// 7. pool_mint
	// 8. user pool token account (destination)
	// 9. token_program
	accounts := []*solana.AccountMeta{
		{PublicKey: pool.SwapAccount, IsWritable: false, IsSigner: false},
		{PublicKey: pool.Authority, IsWritable: false, IsSigner: false},
		{PublicKey: accts.TransferAuthority, IsWritable: false, IsSigner: true},
		{PublicKey: accts.SourceA, IsWritable: true, IsSigner: false},
		{PublicKey: accts.SourceB, IsWritable: true, IsSigner: false},
		{PublicKey: pool.VaultA, IsWritable: true, IsSigner: false},
		{PublicKey: pool.VaultB, IsWritable: true, IsSigner: false},
		{PublicKey: pool.PoolMint, IsWritable: true, IsSigner: false},
		{PublicKey: accts.Destination, IsWritable: true, IsSigner: false},
		{PublicKey: solana.TokenProgramID, IsWritable: false, IsSigner: false},
	}

	// Instruction data layout:
	// [0] = discriminator (2 = DepositAllTokenTypes)
	// [1:9] = pool_token_amount (u64, little-endian)
	// [9:17] = maximum_token_a_amount
	// [17:25] = maximum_token_b_amount
	data := make([]byte, 25)
	data[0] = ixDepositAllTokenTypes
	binary.LittleEndian.PutUint64(data[1:9], poolTokenAmount)
	binary.LittleEndian.PutUint64(data[9:17], maxTokenA)
	binary.LittleEndian.PutUint64(data[17:25], maxTokenB)

	return solana.NewInstruction(
		pool.ProgramID,
		accounts,
		data,
	), nil
}
