package spl

import (
	"encoding/binary"

	"github.com/gagliardetto/solana-go"

	"github.com/gbsoe/FiLotV2-sub001/internal/constants"
)

var (
	// SPL Associated Token Account program
	AssociatedTokenProgramID = solana.MustPublicKeyFromBase58(constants.AssociatedTokenProgram)
)

// SPL Token program instruction indexes.
const (
	tokenIxApprove = 4
)

// FindAssociatedTokenAddress derives the ATA PDA for (owner, mint).
func FindAssociatedTokenAddress(owner, mint solana.PublicKey) (ata solana.PublicKey, bump uint8, err error) {
	// Seeds: [owner, token_program, mint]
	return solana.FindProgramAddress(
		[][]byte{
			owner.Bytes(),
			solana.TokenProgramID.Bytes(),
			mint.Bytes(),
		},
		AssociatedTokenProgramID,
	)
}

// NewCreateAssociatedTokenAccountIx builds an instruction to create an ATA.
// Account order (ATA program):
// 0. payer (signer, writable)
// 1. ata (writable)
// 2. owner (read-only)
// 3. mint (read-only)
// 4. system_program
// 5. token_program
// 6. rent_sysvar
func NewCreateAssociatedTokenAccountIx(
	payer solana.PublicKey,
	ata solana.PublicKey,
	owner solana.PublicKey,
	mint solana.PublicKey,
) solana.Instruction {
	accounts := []*solana.AccountMeta{
		{PublicKey: payer, IsSigner: true, IsWritable: true},
		{PublicKey: ata, IsSigner: false, IsWritable: true},
		{PublicKey: owner, IsSigner: false, IsWritable: false},
		{PublicKey: mint, IsSigner: false, IsWritable: false},
		{PublicKey: solana.SystemProgramID, IsSigner: false, IsWritable: false},
		{PublicKey: solana.TokenProgramID, IsSigner: false, IsWritable: false},
		{PublicKey: solana.SysVarRentPubkey, IsSigner: false, IsWritable: false},
	}

	// ATA create instruction data is empty.
	return solana.NewInstruction(AssociatedTokenProgramID, accounts, nil)
}

// NewApproveIx builds a SPL Token Approve instruction letting delegate move up
// to amount tokens out of source.
func NewApproveIx(source, delegate, owner solana.PublicKey, amount uint64) solana.Instruction {
	// u8 instruction index, u64 amount
	data := make([]byte, 1+8)
	data[0] = tokenIxApprove
	binary.LittleEndian.PutUint64(data[1:9], amount)

	accounts := []*solana.AccountMeta{
		{PublicKey: source, IsSigner: false, IsWritable: true},
		{PublicKey: delegate, IsSigner: false, IsWritable: false},
		{PublicKey: owner, IsSigner: true, IsWritable: false},
	}
	return solana.NewInstruction(solana.TokenProgramID, accounts, data)
}
