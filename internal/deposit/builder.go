// Package deposit prices a two-sided liquidity deposit against a pool
// snapshot and assembles the transaction the wallet is asked to sign.
package deposit

import (
	"context"
	"fmt"
	"math/big"
	"time"

	"github.com/gagliardetto/solana-go"
	"github.com/shopspring/decimal"
	"github.com/sirupsen/logrus"
	"golang.org/x/sync/errgroup"

	"github.com/gbsoe/FiLotV2-sub001/internal/apperrors"
	"github.com/gbsoe/FiLotV2-sub001/internal/constants"
	"github.com/gbsoe/FiLotV2-sub001/internal/models"
	"github.com/gbsoe/FiLotV2-sub001/internal/orca"
	"github.com/gbsoe/FiLotV2-sub001/internal/spl"
	"github.com/gbsoe/FiLotV2-sub001/internal/wallet"
)

// Chain is the subset of the RPC client needed to assemble a transaction.
type Chain interface {
	GetLatestBlockhash(ctx context.Context) (solana.Hash, error)
	AccountExists(ctx context.Context, account solana.PublicKey) (bool, error)
}

// Policy bounds what callers may ask for.
// Policy bounds slippage. A nil field takes the default (50 and 1000 bps);
// zero is a valid setting.
type Policy struct {
	DefaultSlippageBps *uint16
	MaxSlippageBps     *uint16
	StalenessWindow    time.Duration
}

// Bps is shorthand for building a Policy.
func Bps(v uint16) *uint16 { return &v }

// Quote is the priced split for one deposit.
type Quote struct {
	PoolID           string
	TokenAAmount     uint64
	TokenBAmount     uint64
	ExpectedLPTokens uint64
	MinLPTokens      uint64
	SlippageBps      uint16
	FeeBps           uint16
	QuotedAt         time.Time // when the reserves were read
}

// UnsignedDeposit is a transaction awaiting the owner's signature. The
// transfer authority slot is already signed.
type UnsignedDeposit struct {
	Transaction       *solana.Transaction
	Encoded           string
	Quote             *Quote
	Summary           *models.DepositSummary
	TransferAuthority solana.PublicKey
	Blockhash         solana.Hash
}

type BuildRequest struct {
	Snapshot      *orca.PoolSnapshot
	Owner         solana.PublicKey
	AmountA       uint64
	SlippageBps   *uint16
	MinLPOverride *uint64
}

type Builder struct {
	chain      Chain
	policy     Policy
	defaultBps uint16
	maxBps     uint16
	logger     *logrus.Logger
	now        func() time.Time
}

func NewBuilder(chain Chain, policy Policy, logger *logrus.Logger) *Builder {
	if policy.DefaultSlippageBps == nil {
		policy.DefaultSlippageBps = Bps(50)
	}
	if policy.MaxSlippageBps == nil {
		policy.MaxSlippageBps = Bps(1000)
	}
	if policy.StalenessWindow <= 0 {
		policy.StalenessWindow = 10 * time.Second
	}
	if logger == nil {
		logger = logrus.New()
	}
	return &Builder{
		chain:      chain,
		policy:     policy,
		defaultBps: *policy.DefaultSlippageBps,
		maxBps:     *policy.MaxSlippageBps,
		logger:     logger,
		now:        time.Now,
	}
}

// Policy returns the effective policy.
func (b *Builder) Policy() Policy {
	return b.policy
}

// ResolveSlippage applies the default and rejects values above the maximum.
func (b *Builder) ResolveSlippage(requested *uint16) (uint16, error) {
	if requested == nil {
		return b.defaultBps, nil
	}
	if *requested > b.maxBps {
		return 0, apperrors.Newf(apperrors.KindSlippageOutOfRange,
			"slippage %d bps exceeds maximum %d bps", *requested, b.maxBps).
			WithDetails(map[string]interface{}{
				"slippage_bps":     *requested,
				"max_slippage_bps": b.maxBps,
			})
	}
	return *requested, nil
}

// Quote computes the split and the LP floor for depositing amountA of
// token A into the snapshotted pool.
func (b *Builder) Quote(snap *orca.PoolSnapshot, amountA uint64, slippage *uint16, minLPOverride *uint64) (*Quote, error) {
	bps, err := b.ResolveSlippage(slippage)
	if err != nil {
		return nil, err
	}
	if snap == nil || snap.Pool == nil {
		return nil, apperrors.New(apperrors.KindPoolNotFound, "no pool snapshot")
	}
	if !snap.Active {
		return nil, apperrors.Newf(apperrors.KindPoolInactive, "pool %s is not accepting deposits", snap.PoolID())
	}
	if age := snap.Age(b.now()); age > b.policy.StalenessWindow {
		return nil, apperrors.Newf(apperrors.KindReserveStale, "reserves read %s ago", age.Round(time.Millisecond)).
			WithDetails(map[string]interface{}{"age_ms": age.Milliseconds()})
	}
	if amountA == 0 {
		return nil, apperrors.New(apperrors.KindInvalidRequest, "amount must be greater than zero")
	}
	if snap.ReserveA == 0 || snap.ReserveB == 0 {
		return nil, apperrors.Newf(apperrors.KindPoolInactive, "pool %s has no liquidity", snap.PoolID())
	}

	amountB, err := orca.DepositSplit(amountA, snap.ReserveA, snap.ReserveB)
	if err != nil {
		return nil, apperrors.Wrap(apperrors.KindInvalidRequest, err, "amount out of range")
	}
	expected, err := orca.ExpectedLPTokens(amountA, amountB, snap.ReserveA, snap.ReserveB, snap.LPSupply)
	if err != nil {
		return nil, apperrors.Wrap(apperrors.KindInvalidRequest, err, "amount out of range")
	}

	minLP := orca.ApplySlippage(expected, bps)
	if minLPOverride != nil {
		if *minLPOverride > minLP {
			return nil, apperrors.Newf(apperrors.KindSlippageOutOfRange,
				"minimum LP override %d exceeds computed %d", *minLPOverride, minLP).
				WithDetails(map[string]interface{}{
					"override": *minLPOverride,
					"computed": minLP,
				})
		}
		minLP = *minLPOverride
	}
	if minLP == 0 {
		return nil, apperrors.New(apperrors.KindInvalidRequest, "amount too small to mint pool tokens")
	}

	return &Quote{
		PoolID:           snap.PoolID(),
		TokenAAmount:     amountA,
		TokenBAmount:     amountB,
		ExpectedLPTokens: expected,
		MinLPTokens:      minLP,
		SlippageBps:      bps,
		FeeBps:           snap.FeeBps,
		QuotedAt:         snap.FetchedAt,
	}, nil
}

// Assemble builds the deposit transaction for owner:
//  1. create the owner's token A, token B and LP token accounts if absent
//  2. approve an ephemeral transfer authority for both quoted maxima
//  3. deposit with the LP floor as the on-chain slippage guard
func (b *Builder) Assemble(ctx context.Context, snap *orca.PoolSnapshot, owner solana.PublicKey, q *Quote) (*UnsignedDeposit, error) {
	pool := snap.Pool
	if q.MinLPTokens == 0 {
		return nil, apperrors.New(apperrors.KindInvalidRequest, "quote has no LP floor")
	}

	mints := []solana.PublicKey{pool.TokenMintA, pool.TokenMintB, pool.PoolMint}
	atas := make([]solana.PublicKey, len(mints))
	for i, mint := range mints {
		ata, _, err := spl.FindAssociatedTokenAddress(owner, mint)
		if err != nil {
			return nil, fmt.Errorf("derive token account for %s: %w", mint, err)
		}
		atas[i] = ata
	}

	exists := make([]bool, len(atas))
	var blockhash solana.Hash

	g, gctx := errgroup.WithContext(ctx)
	for i := range atas {
		i := i
		g.Go(func() error {
			ok, err := b.chain.AccountExists(gctx, atas[i])
			if err != nil {
				return fmt.Errorf("check token account %s: %w", atas[i], err)
			}
			exists[i] = ok
			return nil
		})
	}
	g.Go(func() error {
		h, err := b.chain.GetLatestBlockhash(gctx)
		if err != nil {
			return fmt.Errorf("fetch blockhash: %w", err)
		}
		blockhash = h
		return nil
	})
	if err := g.Wait(); err != nil {
		return nil, apperrors.Wrap(apperrors.KindRPC, err, "prepare deposit")
	}

	authority := solana.NewWallet()

	var ixs []solana.Instruction
	for i, mint := range mints {
		if !exists[i] {
			ixs = append(ixs, spl.NewCreateAssociatedTokenAccountIx(owner, atas[i], owner, mint))
		}
	}
	ixs = append(ixs,
		spl.NewApproveIx(atas[0], authority.PublicKey(), owner, q.TokenAAmount),
		spl.NewApproveIx(atas[1], authority.PublicKey(), owner, q.TokenBAmount),
	)

	depositIx, err := orca.BuildDepositInstruction(pool, orca.DepositAccounts{
		TransferAuthority: authority.PublicKey(),
		SourceA:           atas[0],
		SourceB:           atas[1],
		Destination:       atas[2],
	}, q.MinLPTokens, q.TokenAAmount, q.TokenBAmount)
	if err != nil {
		return nil, fmt.Errorf("build deposit instruction: %w", err)
	}
	ixs = append(ixs, depositIx)

	tx, err := solana.NewTransaction(ixs, blockhash, solana.TransactionPayer(owner))
	if err != nil {
		return nil, fmt.Errorf("failed to create transaction: %w", err)
	}
	if err := wallet.PartialSign(tx, authority.PrivateKey); err != nil {
		return nil, err
	}
	encoded, err := wallet.EncodeTransaction(tx)
	if err != nil {
		return nil, err
	}

	b.logger.WithFields(logrus.Fields{
		"pool_id":      pool.ID,
		"owner":        owner.String(),
		"token_a":      q.TokenAAmount,
		"token_b":      q.TokenBAmount,
		"min_lp":       q.MinLPTokens,
		"instructions": len(ixs),
	}).Info("Deposit transaction assembled")

	return &UnsignedDeposit{
		Transaction:       tx,
		Encoded:           encoded,
		Quote:             q,
		Summary:           Summarize(pool, q),
		TransferAuthority: authority.PublicKey(),
		Blockhash:         blockhash,
	}, nil
}

// Build quotes and assembles in one step.
func (b *Builder) Build(ctx context.Context, req BuildRequest) (*UnsignedDeposit, error) {
	q, err := b.Quote(req.Snapshot, req.AmountA, req.SlippageBps, req.MinLPOverride)
	if err != nil {
		return nil, err
	}
	return b.Assemble(ctx, req.Snapshot, req.Owner, q)
}

// Summarize renders the quote for display in the wallet.
func Summarize(pool *orca.LegacyPool, q *Quote) *models.DepositSummary {
	return &models.DepositSummary{
		PoolID:       pool.ID,
		PoolName:     pool.Name,
		TokenASymbol: constants.SymbolFor(pool.TokenMintA.String()),
		TokenBSymbol: constants.SymbolFor(pool.TokenMintB.String()),
		TokenAAmount: ToUI(q.TokenAAmount, pool.TokenADecimals).String(),
		TokenBAmount: ToUI(q.TokenBAmount, pool.TokenBDecimals).String(),
		MinLPTokens:  q.MinLPTokens,
		SlippageBps:  q.SlippageBps,
	}
}

// ToUI converts base units to a decimal amount.
func ToUI(amount uint64, decimals uint8) decimal.Decimal {
	return decimal.NewFromBigInt(new(big.Int).SetUint64(amount), -int32(decimals))
}

// FromUI converts a decimal amount to base units, truncating extra
// precision.
func FromUI(amount decimal.Decimal, decimals uint8) (uint64, error) {
	if amount.IsNegative() {
		return 0, fmt.Errorf("amount must not be negative")
	}
	raw := amount.Shift(int32(decimals)).Truncate(0).BigInt()
	if !raw.IsUint64() {
		return 0, fmt.Errorf("amount overflows u64")
	}
	return raw.Uint64(), nil
}
