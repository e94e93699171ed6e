package investment

import (
	"context"
	"errors"

	"github.com/gagliardetto/solana-go"
	"github.com/sirupsen/logrus"
	"golang.org/x/sync/errgroup"

	"github.com/gbsoe/FiLotV2-sub001/internal/apperrors"
	"github.com/gbsoe/FiLotV2-sub001/internal/constants"
	"github.com/gbsoe/FiLotV2-sub001/internal/ledger"
	"github.com/gbsoe/FiLotV2-sub001/internal/models"
	"github.com/gbsoe/FiLotV2-sub001/internal/wallet"
)

// Resume settles attempts left in flight by a previous process:
//   - submitted: keep polling the recorded signature
//   - signed: re-broadcast the stored bytes, then poll; identical bytes carry
//     the same signature so the network cannot apply them twice
//   - anything earlier: abort as interrupted, nothing reached the network
//
// Attempts this process is executing are skipped. Resume must only run where
// no other process is executing attempts against the same ledger.
func (e *Executor) Resume(ctx context.Context) ([]*Result, error) {
	inflight, err := e.ledger.ListInFlight(ctx)
	if err != nil {
		return nil, err
	}

	results := make([]*Result, len(inflight))
	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(constants.ResumeConcurrency)

	for i := range inflight {
		i := i
		a := inflight[i]
		if e.isRunning(a.AttemptID) {
			continue
		}
		g.Go(func() error {
			res, err := e.resumeOne(gctx, &a)
			if errors.Is(err, ledger.ErrStaleStatus) {
				// someone else moved it; report what is stored now
				if cur, gerr := e.ledger.Get(context.WithoutCancel(gctx), a.AttemptID); gerr == nil {
					results[i] = resultFor(cur, nil)
				}
				return nil
			}
			results[i] = res
			return err
		})
	}
	if err := g.Wait(); err != nil {
		return compact(results), err
	}

	out := compact(results)
	e.logger.WithField("attempts", len(out)).Info("Resumed in-flight attempts")
	return out, nil
}

func compact(rs []*Result) []*Result {
	out := make([]*Result, 0, len(rs))
	for _, r := range rs {
		if r != nil {
			out = append(out, r)
		}
	}
	return out
}

func (e *Executor) resumeOne(ctx context.Context, a *models.InvestmentAttempt) (*Result, error) {
	e.track(a.AttemptID)
	defer e.untrack(a.AttemptID)

	r := &run{
		e:    e,
		att:  a,
		wctx: context.WithoutCancel(ctx),
		log: e.logger.WithFields(logrus.Fields{
			"attempt_id": a.AttemptID,
			"user_id":    a.UserID,
			"pool_id":    a.PoolID,
			"resume":     true,
		}),
	}
	r.log.WithField("status", a.Status).Info("Resuming attempt")

	switch a.Status {
	case models.StatusSubmitted:
		if a.TxSignature == nil {
			return r.finish(models.StatusUnknown, ledger.Update{}, apperrors.New(apperrors.KindConfirmationUnknown, ""))
		}
		sig, err := solana.SignatureFromBase58(*a.TxSignature)
		if err != nil {
			return r.finish(models.StatusUnknown, ledger.Update{}, apperrors.New(apperrors.KindConfirmationUnknown, ""))
		}
		return r.confirm(sig, storedBlockhash(a))

	case models.StatusSigned:
		if a.SignedTx == nil {
			cause := apperrors.New(apperrors.KindInterrupted, "signed transaction missing")
			return r.finish(models.StatusAborted, ledger.Update{Failure: cause}, cause)
		}
		tx, err := wallet.DecodeTransaction(*a.SignedTx)
		if err != nil {
			cause := apperrors.Wrap(apperrors.KindInterrupted, err, "stored transaction unreadable")
			return r.finish(models.StatusAborted, ledger.Update{Failure: cause}, cause)
		}
		return r.submitAndConfirm(tx, tx.Message.RecentBlockhash)

	default:
		cause := apperrors.Newf(apperrors.KindInterrupted, "interrupted at %s", a.Status)
		return r.finish(models.StatusAborted, ledger.Update{Failure: cause}, cause)
	}
}

func storedBlockhash(a *models.InvestmentAttempt) solana.Hash {
	if a.SignedTx == nil {
		return solana.Hash{}
	}
	tx, err := wallet.DecodeTransaction(*a.SignedTx)
	if err != nil {
		return solana.Hash{}
	}
	return tx.Message.RecentBlockhash
}
