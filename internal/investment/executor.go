// Package investment drives one deposit from request to a terminal ledger
// status: quote, balance check, build, wallet signature, submission and
// confirmation. Every step is recorded in the ledger before the next one
// starts.
package investment

import (
	"context"
	"errors"
	"sync"
	"time"

	"github.com/gagliardetto/solana-go"
	"github.com/sirupsen/logrus"
	"golang.org/x/sync/errgroup"

	"github.com/gbsoe/FiLotV2-sub001/internal/apperrors"
	"github.com/gbsoe/FiLotV2-sub001/internal/balance"
	"github.com/gbsoe/FiLotV2-sub001/internal/deposit"
	"github.com/gbsoe/FiLotV2-sub001/internal/ledger"
	"github.com/gbsoe/FiLotV2-sub001/internal/metrics"
	"github.com/gbsoe/FiLotV2-sub001/internal/models"
	"github.com/gbsoe/FiLotV2-sub001/internal/orca"
	"github.com/gbsoe/FiLotV2-sub001/internal/signing"
	"github.com/gbsoe/FiLotV2-sub001/internal/storage"
	"github.com/gbsoe/FiLotV2-sub001/internal/submit"
	"github.com/gbsoe/FiLotV2-sub001/internal/wallet"
)

// SessionSource resolves the wallet behind a connected session.
type SessionSource interface {
	Connected(ctx context.Context, sessionID string) (string, error)
}

// PoolSource serves static pool config and live reserves.
type PoolSource interface {
	Lookup(poolID string) (*orca.LegacyPool, error)
	Snapshot(ctx context.Context, pool *orca.LegacyPool) (*orca.PoolSnapshot, error)
}

type Deps struct {
	Ledger    *ledger.Ledger
	Sessions  SessionSource
	Pools     PoolSource
	Balances  *balance.Validator
	Builder   *deposit.Builder
	Converter deposit.AmountConverter // nil: amounts are in token A
	Signer    *signing.Coordinator
	Submitter *submit.Submitter
	Cache     storage.AttemptCache // optional
	Store     storage.AttemptStore // optional
	Metrics   *metrics.Metrics     // optional
	Logger    *logrus.Logger
}

type Executor struct {
	ledger    *ledger.Ledger
	sessions  SessionSource
	pools     PoolSource
	balances  *balance.Validator
	builder   *deposit.Builder
	converter deposit.AmountConverter
	signer    *signing.Coordinator
	submitter *submit.Submitter
	cache     storage.AttemptCache
	store     storage.AttemptStore
	metrics   *metrics.Metrics
	logger    *logrus.Logger

	mu      sync.Mutex
	running map[string]struct{}
	signing map[string]*signing.Request
}

func NewExecutor(d Deps) *Executor {
	if d.Converter == nil {
		d.Converter = deposit.TokenAConverter{}
	}
	if d.Logger == nil {
		d.Logger = logrus.New()
	}
	return &Executor{
		ledger:    d.Ledger,
		sessions:  d.Sessions,
		pools:     d.Pools,
		balances:  d.Balances,
		builder:   d.Builder,
		converter: d.Converter,
		signer:    d.Signer,
		submitter: d.Submitter,
		cache:     d.Cache,
		store:     d.Store,
		metrics:   d.Metrics,
		logger:    d.Logger,
		running:   make(map[string]struct{}),
		signing:   make(map[string]*signing.Request),
	}
}

// ExecuteInvestment runs one deposit to a terminal status. Requests that
// fail before an attempt exists (validation, session, unknown pool, an
// attempt already in flight) return an error and no Result. Once the
// attempt exists, every outcome is a Result; the error is reserved for
// ledger failures.
func (e *Executor) ExecuteInvestment(ctx context.Context, req Request) (*Result, error) {
	if err := validateRequest(req); err != nil {
		return nil, err
	}
	slippage, err := e.builder.ResolveSlippage(req.SlippageBps)
	if err != nil {
		return nil, err
	}
	owner, err := solana.PublicKeyFromBase58(req.WalletAddress)
	if err != nil {
		return nil, apperrors.New(apperrors.KindInvalidRequest, "invalid wallet address")
	}

	paired, err := e.sessions.Connected(ctx, req.SessionID)
	if err != nil {
		return nil, err
	}
	if paired != req.WalletAddress {
		return nil, apperrors.New(apperrors.KindSessionNotConnected, "session is paired with a different wallet")
	}

	pool, err := e.pools.Lookup(req.PoolID)
	if err != nil {
		return nil, err
	}

	att, err := e.ledger.Create(ctx, ledger.NewAttempt{
		UserID:          req.UserID,
		SessionID:       req.SessionID,
		WalletAddress:   req.WalletAddress,
		PoolID:          req.PoolID,
		RequestedAmount: req.Amount,
		SlippageBps:     slippage,
	})
	if err != nil {
		return nil, err
	}

	e.track(att.AttemptID)
	defer e.untrack(att.AttemptID)
	e.metrics.InFlightInc()
	defer e.metrics.InFlightDec()

	r := &run{
		e:     e,
		att:   att,
		wctx:  context.WithoutCancel(ctx),
		owner: owner,
		pool:  pool,
		log: e.logger.WithFields(logrus.Fields{
			"attempt_id": att.AttemptID,
			"user_id":    req.UserID,
			"pool_id":    req.PoolID,
		}),
	}
	e.publish(r.wctx, att)
	return r.execute(ctx, req, slippage)
}

// run carries one attempt through the pipeline. Ledger writes use wctx so a
// cancelled caller still leaves an accurate record.
type run struct {
	e     *Executor
	att   *models.InvestmentAttempt
	wctx  context.Context
	owner solana.PublicKey
	pool  *orca.LegacyPool
	log   *logrus.Entry
}

func (r *run) execute(ctx context.Context, req Request, slippage uint16) (*Result, error) {
	e := r.e

	start := time.Now()
	amountA, err := e.converter.ToTokenA(ctx, r.pool, req.Amount)
	if err != nil {
		return r.failFor(err)
	}

	var (
		snap     *orca.PoolSnapshot
		balances *balance.Balances
	)
	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		s, err := e.pools.Snapshot(gctx, r.pool)
		snap = s
		return err
	})
	g.Go(func() error {
		b, err := e.balances.Read(gctx, r.owner, r.pool.TokenMintA, r.pool.TokenMintB)
		balances = b
		return err
	})
	if err := g.Wait(); err != nil {
		return r.failFor(err)
	}

	q, err := e.builder.Quote(snap, amountA, &slippage, req.MinLPOverride)
	if err != nil {
		return r.failFor(err)
	}
	if err := r.move(models.StatusValidated, ledger.Update{Quote: ledgerQuote(r.pool, q)}); err != nil {
		return nil, err
	}
	e.metrics.ObserveStage("quote", start)

	required := balance.Required{
		MintA:   r.pool.TokenMintA,
		AmountA: q.TokenAAmount,
		MintB:   r.pool.TokenMintB,
		AmountB: q.TokenBAmount,
	}
	if err := balance.Check(balances, required); err != nil {
		return r.finish(models.StatusInsufficientBalance, ledger.Update{Failure: err}, err)
	}

	start = time.Now()
	unsigned, err := e.builder.Assemble(ctx, snap, r.owner, q)
	if err != nil {
		return r.failFor(err)
	}
	if err := r.move(models.StatusBuilt, ledger.Update{}); err != nil {
		return nil, err
	}
	e.metrics.ObserveStage("build", start)

	signed, res, err := r.sign(ctx, unsigned)
	if res != nil || err != nil {
		return res, err
	}

	if e.balances.Stale(q.QuotedAt) {
		r.log.Info("Quote is stale, re-checking balances before submission")
		if err := e.balances.Validate(ctx, r.owner, required); err != nil {
			return r.failFor(err)
		}
	}

	return r.submitAndConfirm(signed, unsigned.Blockhash)
}

// sign asks the wallet for its signature and records the answer. A non-nil
// Result means the attempt ended here.
func (r *run) sign(ctx context.Context, unsigned *deposit.UnsignedDeposit) (*solana.Transaction, *Result, error) {
	e := r.e
	start := time.Now()

	sreq, err := e.signer.Acquire(ctx, r.att.SessionID)
	if err != nil {
		res, err := r.finish(models.StatusAborted, ledger.Update{Failure: err}, err)
		return nil, res, err
	}
	defer sreq.Release()

	e.mu.Lock()
	e.signing[r.att.AttemptID] = sreq
	e.mu.Unlock()
	defer func() {
		e.mu.Lock()
		delete(e.signing, r.att.AttemptID)
		e.mu.Unlock()
	}()

	if err := r.move(models.StatusAwaitingSignature, ledger.Update{}); err != nil {
		return nil, nil, err
	}

	if err := sreq.Deliver(ctx, unsigned.Transaction, unsigned.Summary); err != nil {
		res, err := r.finish(signFailureStatus(err), ledger.Update{Failure: err}, err)
		return nil, res, err
	}

	signed, err := sreq.Await(ctx, e.signer.Timeout())
	// Past this point Cancel can no longer stop the attempt.
	e.mu.Lock()
	delete(e.signing, r.att.AttemptID)
	e.mu.Unlock()
	sreq.Release()
	e.metrics.ObserveStage("sign", start)
	if err != nil {
		res, err := r.finish(signFailureStatus(err), ledger.Update{Failure: err}, err)
		return nil, res, err
	}

	encoded, err := wallet.EncodeTransaction(signed)
	if err != nil {
		return nil, nil, err
	}
	if err := r.move(models.StatusSigned, ledger.Update{SignedTx: encoded}); err != nil {
		return nil, nil, err
	}
	return signed, nil, nil
}

// signFailureStatus maps a failed signature round to its terminal status.
// A session terminated mid-request falls through to aborted.
func signFailureStatus(err error) models.AttemptStatus {
	switch apperrors.KindOf(err) {
	case apperrors.KindWalletRejected:
		return models.StatusRejected
	case apperrors.KindSigningTimeout:
		return models.StatusTimedOut
	case apperrors.KindCancelled:
		return models.StatusCancelled
	}
	return models.StatusAborted
}

// submitAndConfirm broadcasts a signed attempt and waits for the outcome.
// Once signed the attempt no longer follows the caller's context: polling
// is bounded by the submitter's max wait, and the attempt always ends in a
// terminal status.
func (r *run) submitAndConfirm(signed *solana.Transaction, blockhash solana.Hash) (*Result, error) {
	e := r.e
	start := time.Now()

	sig, err := e.submitter.Submit(r.wctx, signed)
	if err != nil {
		return r.finish(models.StatusRPCError, ledger.Update{Failure: err}, err)
	}
	if err := r.move(models.StatusSubmitted, ledger.Update{TxSignature: sig.String()}); err != nil {
		return nil, err
	}
	e.metrics.ObserveStage("submit", start)

	return r.confirm(sig, blockhash)
}

func (r *run) confirm(sig solana.Signature, blockhash solana.Hash) (*Result, error) {
	e := r.e
	start := time.Now()

	out, err := e.submitter.AwaitConfirmation(r.wctx, sig, blockhash, 0)
	if err != nil {
		// Not observed; keep the signature so it can be looked up later.
		r.log.WithError(err).Warn("Stopped waiting for confirmation")
		cause := apperrors.Wrap(apperrors.KindConfirmationUnknown, err, "confirmation not observed")
		return r.finish(models.StatusUnknown, ledger.Update{}, cause)
	}
	e.metrics.ObserveStage("confirm", start)

	switch out.Outcome {
	case submit.OutcomeConfirmed:
		return r.finish(models.StatusConfirmed, ledger.Update{}, nil)
	case submit.OutcomeFailed:
		cause := apperrors.New(apperrors.KindSubmissionRejected, "transaction failed on-chain").
			WithDetails(map[string]interface{}{"onchain_error": out.Err, "slot": out.Slot})
		return r.finish(models.StatusFailedOnchain, ledger.Update{Failure: cause}, cause)
	case submit.OutcomeExpired:
		cause := apperrors.New(apperrors.KindSubmissionRejected, "blockhash expired before the transaction landed")
		return r.finish(models.StatusTimedOut, ledger.Update{Failure: cause}, cause)
	default:
		cause := apperrors.New(apperrors.KindConfirmationUnknown, "")
		return r.finish(models.StatusUnknown, ledger.Update{}, cause)
	}
}

// failFor ends the attempt in the status matching err's class: network
// errors become rpc_error, short balances insufficient_balance, anything
// else aborted.
func (r *run) failFor(err error) (*Result, error) {
	to := models.StatusAborted
	switch apperrors.KindOf(err) {
	case apperrors.KindRPC:
		to = models.StatusRPCError
	case apperrors.KindInsufficientBalance:
		to = models.StatusInsufficientBalance
	}
	return r.finish(to, ledger.Update{Failure: err}, err)
}

func (r *run) move(to models.AttemptStatus, u ledger.Update) error {
	a, err := r.e.ledger.Transition(r.wctx, r.att.AttemptID, r.att.Status, to, u)
	if err != nil {
		r.log.WithError(err).WithField("to", to).Error("Failed to record attempt status")
		return err
	}
	r.att = a
	r.e.publish(r.wctx, a)
	return nil
}

func (r *run) finish(to models.AttemptStatus, u ledger.Update, cause error) (*Result, error) {
	if err := r.move(to, u); err != nil {
		return nil, err
	}
	entry := r.log.WithField("status", to)
	if cause != nil {
		entry = entry.WithError(cause)
	}
	entry.Info("Attempt finished")
	return resultFor(r.att, cause), nil
}

func ledgerQuote(pool *orca.LegacyPool, q *deposit.Quote) *ledger.Quote {
	return &ledger.Quote{
		TokenAMint:       pool.TokenMintA.String(),
		TokenBMint:       pool.TokenMintB.String(),
		TokenAAmount:     q.TokenAAmount,
		TokenBAmount:     q.TokenBAmount,
		ExpectedLPTokens: q.ExpectedLPTokens,
		MinLPTokens:      q.MinLPTokens,
		SlippageBps:      q.SlippageBps,
		FeeBps:           q.FeeBps,
		QuotedAt:         q.QuotedAt,
	}
}

func (e *Executor) track(attemptID string) {
	e.mu.Lock()
	e.running[attemptID] = struct{}{}
	e.mu.Unlock()
}

func (e *Executor) untrack(attemptID string) {
	e.mu.Lock()
	delete(e.running, attemptID)
	e.mu.Unlock()
}

func (e *Executor) isRunning(attemptID string) bool {
	e.mu.Lock()
	defer e.mu.Unlock()
	_, ok := e.running[attemptID]
	return ok
}

// Cancel stops an attempt that is waiting for the wallet. Cancelling a
// finished attempt is a no-op; an attempt already signed cannot be stopped.
func (e *Executor) Cancel(ctx context.Context, attemptID string) error {
	e.mu.Lock()
	sreq := e.signing[attemptID]
	e.mu.Unlock()
	if sreq != nil {
		if sreq.Cancel() {
			return nil
		}
		return apperrors.New(apperrors.KindInvalidRequest, "attempt is already signed and cannot be cancelled")
	}

	a, err := e.ledger.Get(ctx, attemptID)
	if err != nil {
		return err
	}
	if a.Status.IsTerminal() {
		return nil
	}
	return apperrors.Newf(apperrors.KindInvalidRequest, "attempt is %s and cannot be cancelled", a.Status)
}

// Status reads an attempt without side effects.
func (e *Executor) Status(ctx context.Context, attemptID string) (*models.InvestmentAttempt, error) {
	return e.ledger.Get(ctx, attemptID)
}

func (e *Executor) History(ctx context.Context, attemptID string) ([]models.AttemptTransition, error) {
	return e.ledger.History(ctx, attemptID)
}

func (e *Executor) Recent(ctx context.Context, userID string, limit int) ([]models.InvestmentAttempt, error) {
	return e.ledger.ListByUser(ctx, userID, limit)
}

// publish sends the attempt to the live cache on every change and to the
// analytics store and metrics once it is terminal. Both sinks are best
// effort.
func (e *Executor) publish(ctx context.Context, a *models.InvestmentAttempt) {
	ev := a.Event()
	ctx, cancel := context.WithTimeout(ctx, 2*time.Second)
	defer cancel()

	log := e.logger.WithField("attempt_id", a.AttemptID)
	if e.cache != nil {
		if err := e.cache.PublishAttempt(ctx, ev); err != nil {
			log.WithError(err).Warn("Failed to publish attempt event")
		}
	}
	if !a.Status.IsTerminal() {
		return
	}
	if e.store != nil {
		if err := e.store.InsertAttempt(ctx, ev); err != nil && !errors.Is(err, context.Canceled) {
			log.WithError(err).Warn("Failed to store attempt event")
		}
	}
	e.metrics.AttemptFinished(string(a.Status), a.PoolID)
}
