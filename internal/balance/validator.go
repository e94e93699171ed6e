// Package balance checks that a wallet holds both sides of a deposit.
package balance

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/gagliardetto/solana-go"
	"github.com/sirupsen/logrus"
	"golang.org/x/sync/errgroup"

	"github.com/gbsoe/FiLotV2-sub001/internal/apperrors"
	"github.com/gbsoe/FiLotV2-sub001/internal/rpc"
	"github.com/gbsoe/FiLotV2-sub001/internal/spl"
)

// Reader reads SPL token account balances.
type Reader interface {
	GetTokenAccountBalance(ctx context.Context, account solana.PublicKey) (uint64, error)
}

// Required is the split a deposit will pull from the wallet.
type Required struct {
	MintA   solana.PublicKey
	AmountA uint64
	MintB   solana.PublicKey
	AmountB uint64
}

// Balances are the wallet's holdings of both pool tokens at ReadAt.
type Balances struct {
	TokenA uint64
	TokenB uint64
	ReadAt time.Time
}

type Validator struct {
	reader Reader
	window time.Duration
	logger *logrus.Logger
	now    func() time.Time
}

// NewValidator creates a validator. window is how long a quote stays fresh
// before balances must be read again.
func NewValidator(reader Reader, window time.Duration, logger *logrus.Logger) *Validator {
	if window <= 0 {
		window = 10 * time.Second
	}
	if logger == nil {
		logger = logrus.New()
	}
	return &Validator{reader: reader, window: window, logger: logger, now: time.Now}
}

// Read fetches the owner's balances of both mints in parallel. A missing
// associated token account counts as zero.
func (v *Validator) Read(ctx context.Context, owner, mintA, mintB solana.PublicKey) (*Balances, error) {
	var out Balances
	g, gctx := errgroup.WithContext(ctx)

	g.Go(func() error {
		bal, err := v.readOne(gctx, owner, mintA)
		out.TokenA = bal
		return err
	})
	g.Go(func() error {
		bal, err := v.readOne(gctx, owner, mintB)
		out.TokenB = bal
		return err
	})

	if err := g.Wait(); err != nil {
		return nil, apperrors.Wrap(apperrors.KindRPC, err, "read wallet balances")
	}
	out.ReadAt = v.now()
	return &out, nil
}

func (v *Validator) readOne(ctx context.Context, owner, mint solana.PublicKey) (uint64, error) {
	ata, _, err := spl.FindAssociatedTokenAddress(owner, mint)
	if err != nil {
		return 0, fmt.Errorf("derive token account for %s: %w", mint, err)
	}
	bal, err := v.reader.GetTokenAccountBalance(ctx, ata)
	if errors.Is(err, rpc.ErrAccountNotFound) {
		return 0, nil
	}
	if err != nil {
		return 0, fmt.Errorf("balance of %s: %w", mint, err)
	}
	return bal, nil
}

// Check compares balances against the required split. Token A is checked
// first; the error names the short token and the shortfall in base units.
func Check(b *Balances, req Required) error {
	if b.TokenA < req.AmountA {
		return shortfall("token_a", req.MintA, req.AmountA-b.TokenA)
	}
	if b.TokenB < req.AmountB {
		return shortfall("token_b", req.MintB, req.AmountB-b.TokenB)
	}
	return nil
}

func shortfall(token string, mint solana.PublicKey, missing uint64) error {
	return apperrors.Newf(apperrors.KindInsufficientBalance, "insufficient %s: short by %d", token, missing).
		WithDetails(map[string]interface{}{
			"token":     token,
			"mint":      mint.String(),
			"shortfall": missing,
		})
}

// Validate reads balances and checks them against req.
func (v *Validator) Validate(ctx context.Context, owner solana.PublicKey, req Required) error {
	b, err := v.Read(ctx, owner, req.MintA, req.MintB)
	if err != nil {
		return err
	}
	if err := Check(b, req); err != nil {
		v.logger.WithFields(logrus.Fields{
			"owner":     owner.String(),
			"balance_a": b.TokenA,
			"balance_b": b.TokenB,
			"need_a":    req.AmountA,
			"need_b":    req.AmountB,
		}).Info("Balance check failed")
		return err
	}
	return nil
}

// Stale reports whether a quote computed at quotedAt is past the window.
func (v *Validator) Stale(quotedAt time.Time) bool {
	return v.now().Sub(quotedAt) > v.window
}

// Window returns the staleness window.
func (v *Validator) Window() time.Duration {
	return v.window
}
