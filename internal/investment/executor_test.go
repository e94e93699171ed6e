package investment

import (
	"context"
	"encoding/json"
	"errors"
	"sync"
	"testing"
	"time"

	bin "github.com/gagliardetto/binary"
	"github.com/gagliardetto/solana-go"
	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/gbsoe/FiLotV2-sub001/internal/apperrors"
	"github.com/gbsoe/FiLotV2-sub001/internal/balance"
	"github.com/gbsoe/FiLotV2-sub001/internal/database"
	"github.com/gbsoe/FiLotV2-sub001/internal/deposit"
	"github.com/gbsoe/FiLotV2-sub001/internal/ledger"
	"github.com/gbsoe/FiLotV2-sub001/internal/lock"
	"github.com/gbsoe/FiLotV2-sub001/internal/models"
	"github.com/gbsoe/FiLotV2-sub001/internal/orca"
	"github.com/gbsoe/FiLotV2-sub001/internal/pairing"
	"github.com/gbsoe/FiLotV2-sub001/internal/rpc"
	"github.com/gbsoe/FiLotV2-sub001/internal/session"
	"github.com/gbsoe/FiLotV2-sub001/internal/signing"
	"github.com/gbsoe/FiLotV2-sub001/internal/spl"
	"github.com/gbsoe/FiLotV2-sub001/internal/submit"
	"github.com/gbsoe/FiLotV2-sub001/internal/wallet"
)

type confirmMode int

const (
	landConfirmed confirmMode = iota
	landFailed
	neverLand
)

// fakeChain serves pool reserves, wallet balances, blockhashes and
// broadcasts from memory.
type fakeChain struct {
	mu       sync.Mutex
	balances map[solana.PublicKey]uint64
	supply   map[solana.PublicKey]uint64
	mode     confirmMode
	sendErr  error
	sent     []*solana.Transaction
	landed   map[string]bool
}

func newFakeChain() *fakeChain {
	return &fakeChain{
		balances: map[solana.PublicKey]uint64{},
		supply:   map[solana.PublicKey]uint64{},
		landed:   map[string]bool{},
	}
}

func (f *fakeChain) GetTokenAccountBalance(ctx context.Context, account solana.PublicKey) (uint64, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	v, ok := f.balances[account]
	if !ok {
		return 0, rpc.ErrAccountNotFound
	}
	return v, nil
}

func (f *fakeChain) GetTokenSupply(ctx context.Context, mint solana.PublicKey) (uint64, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.supply[mint], nil
}

func (f *fakeChain) GetLatestBlockhash(ctx context.Context) (solana.Hash, error) {
	return solana.Hash{42}, nil
}

func (f *fakeChain) AccountExists(ctx context.Context, account solana.PublicKey) (bool, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	_, ok := f.balances[account]
	return ok, nil
}

func (f *fakeChain) SendTransaction(ctx context.Context, raw []byte) (string, error) {
	tx, err := solana.TransactionFromDecoder(bin.NewBinDecoder(raw))
	if err != nil {
		return "", err
	}
	f.mu.Lock()
	defer f.mu.Unlock()
	f.sent = append(f.sent, tx)
	if f.sendErr != nil {
		return "", f.sendErr
	}
	f.landed[tx.Signatures[0].String()] = true
	return tx.Signatures[0].String(), nil
}

func (f *fakeChain) GetSignatureStatus(ctx context.Context, signature string) (*rpc.SignatureStatus, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if !f.landed[signature] {
		return nil, nil
	}
	switch f.mode {
	case landConfirmed:
		return &rpc.SignatureStatus{Slot: 99, ConfirmationStatus: "confirmed"}, nil
	case landFailed:
		return &rpc.SignatureStatus{Slot: 99, ConfirmationStatus: "confirmed", Err: map[string]interface{}{"InstructionError": []interface{}{5, map[string]interface{}{"Custom": 16}}}}, nil
	default:
		return nil, nil
	}
}

func (f *fakeChain) IsBlockhashValid(ctx context.Context, hash solana.Hash) (bool, error) {
	return true, nil
}

func (f *fakeChain) sentCount() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return len(f.sent)
}

func (f *fakeChain) setBalance(account solana.PublicKey, v uint64) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.balances[account] = v
}

type harnessConfig struct {
	mode           wallet.Mode
	signTimeout    time.Duration
	balanceA       uint64
	balanceB       uint64
	confirm        confirmMode
	window         time.Duration
	inbox          func(next wallet.Inbox) wallet.Inbox
	withoutSession bool
}

type harness struct {
	exec      *Executor
	chain     *fakeChain
	ledger    *ledger.Ledger
	sessions  *session.Manager
	pool      orca.LegacyPool
	signer    *wallet.LocalSigner
	sessionID string
	ataA      solana.PublicKey
	ataB      solana.PublicKey
}

func newHarness(t *testing.T, cfg harnessConfig) *harness {
	t.Helper()
	ctx, cancel := context.WithCancel(context.Background())
	t.Cleanup(cancel)

	if cfg.signTimeout == 0 {
		cfg.signTimeout = 2 * time.Second
	}
	if cfg.window == 0 {
		cfg.window = 10 * time.Second
	}

	db, err := database.Open("file:"+uuid.NewString()+"?mode=memory&cache=shared", nil)
	require.NoError(t, err)
	t.Cleanup(func() { _ = database.Close(db) })

	relay := pairing.NewMemoryRelay("")
	t.Cleanup(func() { _ = relay.Close() })

	sessions := session.NewManager(db, relay, session.Config{TTL: time.Minute})
	s, err := sessions.Create(ctx, "")
	require.NoError(t, err)

	var inbox wallet.Inbox = sessions
	if cfg.inbox != nil {
		inbox = cfg.inbox(sessions)
	}
	signer, err := wallet.NewLocalSigner(relay, inbox, wallet.SignerConfig{Mode: cfg.mode})
	require.NoError(t, err)
	require.NoError(t, signer.Approve(ctx, s.SessionID))
	require.NoError(t, signer.Listen(ctx, s.SessionID))

	pool := orca.LegacyPool{
		ID:             "sol-usdc",
		Name:           "SOL/USDC",
		Active:         true,
		ProgramID:      solana.MustPublicKeyFromBase58(orca.LegacyProgramID),
		SwapAccount:    solana.NewWallet().PublicKey(),
		Authority:      solana.NewWallet().PublicKey(),
		TokenMintA:     solana.NewWallet().PublicKey(),
		TokenMintB:     solana.NewWallet().PublicKey(),
		VaultA:         solana.NewWallet().PublicKey(),
		VaultB:         solana.NewWallet().PublicKey(),
		PoolMint:       solana.NewWallet().PublicKey(),
		FeeAccount:     solana.NewWallet().PublicKey(),
		FeeNumerator:   30,
		FeeDenominator: 10000,
	}
	reg, err := orca.NewPoolRegistryFromPools([]orca.LegacyPool{pool})
	require.NoError(t, err)

	chain := newFakeChain()
	chain.mode = cfg.confirm
	chain.balances[pool.VaultA] = 500000
	chain.balances[pool.VaultB] = 500000
	chain.supply[pool.PoolMint] = 250000

	ataA, _, err := spl.FindAssociatedTokenAddress(signer.PublicKey(), pool.TokenMintA)
	require.NoError(t, err)
	ataB, _, err := spl.FindAssociatedTokenAddress(signer.PublicKey(), pool.TokenMintB)
	require.NoError(t, err)
	chain.balances[ataA] = cfg.balanceA
	chain.balances[ataB] = cfg.balanceB

	coord := signing.NewCoordinator(relay, lock.NewKeyed(), signing.Config{Timeout: cfg.signTimeout})
	sessions.AttachSigning(coord)

	l := ledger.New(db, nil)
	exec := NewExecutor(Deps{
		Ledger:    l,
		Sessions:  sessions,
		Pools:     orca.NewGateway(reg, orca.NewClient(chain), nil, nil),
		Balances:  balance.NewValidator(chain, cfg.window, nil),
		Builder:   deposit.NewBuilder(chain, deposit.Policy{}, nil),
		Signer:    coord,
		Submitter: submit.NewSubmitter(chain, submit.Config{InitialBackoff: 5 * time.Millisecond, MaxBackoff: 20 * time.Millisecond, MaxWait: 150 * time.Millisecond}),
	})

	return &harness{
		exec:      exec,
		chain:     chain,
		ledger:    l,
		sessions:  sessions,
		pool:      pool,
		signer:    signer,
		sessionID: s.SessionID,
		ataA:      ataA,
		ataB:      ataB,
	}
}

func (h *harness) request(user string) Request {
	return Request{
		UserID:        user,
		SessionID:     h.sessionID,
		WalletAddress: h.signer.Address(),
		PoolID:        h.pool.ID,
		Amount:        decimal.NewFromInt(1000),
	}
}

func slippage(v uint16) *uint16 { return &v }

func TestExecuteInvestment_Confirmed(t *testing.T) {
	h := newHarness(t, harnessConfig{balanceA: 5000, balanceB: 5000})
	req := h.request("u1")
	req.SlippageBps = slippage(50)

	res, err := h.exec.ExecuteInvestment(context.Background(), req)
	require.NoError(t, err)
	require.NoError(t, res.Err)
	assert.Equal(t, models.StatusConfirmed, res.Status)
	assert.NotEmpty(t, res.TxSignature)
	assert.Equal(t, "Deposit confirmed.", res.Message)

	a, err := h.exec.Status(context.Background(), res.AttemptID)
	require.NoError(t, err)
	assert.Equal(t, uint64(1000), a.TokenAAmount)
	assert.Equal(t, uint64(1000), a.TokenBAmount)
	assert.Equal(t, uint64(500), a.ExpectedLPTokens)
	assert.Equal(t, uint64(497), a.MinLPTokens)
	assert.Nil(t, a.FailureCode)

	require.Equal(t, 1, h.chain.sentCount())
	sent := h.chain.sent[0]
	assert.NoError(t, wallet.VerifySignatures(sent))
	assert.Equal(t, sent.Signatures[0].String(), res.TxSignature)

	hist, err := h.exec.History(context.Background(), res.AttemptID)
	require.NoError(t, err)
	var path []models.AttemptStatus
	for _, tr := range hist {
		path = append(path, tr.ToStatus)
	}
	assert.Equal(t, []models.AttemptStatus{
		models.StatusCreated,
		models.StatusValidated,
		models.StatusBuilt,
		models.StatusAwaitingSignature,
		models.StatusSigned,
		models.StatusSubmitted,
		models.StatusConfirmed,
	}, path)
}

func TestExecuteInvestment_SigningTimeout(t *testing.T) {
	h := newHarness(t, harnessConfig{mode: wallet.ModeIgnore, signTimeout: 100 * time.Millisecond, balanceA: 5000, balanceB: 5000})

	res, err := h.exec.ExecuteInvestment(context.Background(), h.request("u1"))
	require.NoError(t, err)
	assert.Equal(t, models.StatusTimedOut, res.Status)
	assert.Empty(t, res.TxSignature)
	assert.ErrorIs(t, res.Err, apperrors.ErrSigningTimeout)

	a, err := h.exec.Status(context.Background(), res.AttemptID)
	require.NoError(t, err)
	assert.Nil(t, a.TxSignature)
	assert.Equal(t, 0, h.chain.sentCount())
}

func TestExecuteInvestment_InsufficientTokenB(t *testing.T) {
	h := newHarness(t, harnessConfig{balanceA: 5000, balanceB: 950})

	res, err := h.exec.ExecuteInvestment(context.Background(), h.request("u1"))
	require.NoError(t, err)
	assert.Equal(t, models.StatusInsufficientBalance, res.Status)
	assert.Equal(t, "Insufficient balance for this pool.", res.Message)

	a, err := h.exec.Status(context.Background(), res.AttemptID)
	require.NoError(t, err)
	require.NotNil(t, a.FailureCode)
	assert.Equal(t, "insufficient_balance", *a.FailureCode)

	var detail map[string]interface{}
	require.NoError(t, json.Unmarshal([]byte(*a.FailureDetail), &detail))
	assert.Equal(t, "token_b", detail["token"])
	assert.Equal(t, float64(50), detail["shortfall"])
	assert.Equal(t, 0, h.chain.sentCount())
}

func TestExecuteInvestment_ConfirmationUnknown(t *testing.T) {
	h := newHarness(t, harnessConfig{balanceA: 5000, balanceB: 5000, confirm: neverLand})

	res, err := h.exec.ExecuteInvestment(context.Background(), h.request("u1"))
	require.NoError(t, err)
	assert.Equal(t, models.StatusUnknown, res.Status)
	assert.NotEmpty(t, res.TxSignature)
	assert.Contains(t, res.Message, "status unknown")

	a, err := h.exec.Status(context.Background(), res.AttemptID)
	require.NoError(t, err)
	require.NotNil(t, a.TxSignature)
	assert.Nil(t, a.FailureCode)
	assert.Nil(t, a.FailureDetail)
}

func TestExecuteInvestment_RejectedInWallet(t *testing.T) {
	h := newHarness(t, harnessConfig{mode: wallet.ModeReject, balanceA: 5000, balanceB: 5000})

	res, err := h.exec.ExecuteInvestment(context.Background(), h.request("u1"))
	require.NoError(t, err)
	assert.Equal(t, models.StatusRejected, res.Status)
	assert.Empty(t, res.TxSignature)
	assert.Equal(t, "Transaction cancelled in wallet.", res.Message)
	assert.Equal(t, 0, h.chain.sentCount())
}

func TestExecuteInvestment_FailedOnchain(t *testing.T) {
	h := newHarness(t, harnessConfig{balanceA: 5000, balanceB: 5000, confirm: landFailed})

	res, err := h.exec.ExecuteInvestment(context.Background(), h.request("u1"))
	require.NoError(t, err)
	assert.Equal(t, models.StatusFailedOnchain, res.Status)
	assert.NotEmpty(t, res.TxSignature)

	a, err := h.exec.Status(context.Background(), res.AttemptID)
	require.NoError(t, err)
	require.NotNil(t, a.FailureDetail)
	assert.Contains(t, *a.FailureDetail, "onchain_error")
}

func TestExecuteInvestment_SubmissionRejected(t *testing.T) {
	h := newHarness(t, harnessConfig{balanceA: 5000, balanceB: 5000})
	h.chain.sendErr = &rpc.RPCError{Code: -32002, Message: "Transaction simulation failed"}

	res, err := h.exec.ExecuteInvestment(context.Background(), h.request("u1"))
	require.NoError(t, err)
	assert.Equal(t, models.StatusRPCError, res.Status)
	assert.Empty(t, res.TxSignature)
	assert.ErrorIs(t, res.Err, apperrors.ErrSubmissionRejected)
}

func TestExecuteInvestment_ConcurrentSameUserAndPool(t *testing.T) {
	h := newHarness(t, harnessConfig{mode: wallet.ModeIgnore, signTimeout: 300 * time.Millisecond, balanceA: 5000, balanceB: 5000})

	var wg sync.WaitGroup
	results := make([]*Result, 2)
	errs := make([]error, 2)
	for i := 0; i < 2; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			results[i], errs[i] = h.exec.ExecuteInvestment(context.Background(), h.request("u1"))
		}(i)
	}
	wg.Wait()

	var proceeded, blocked int
	for i := range errs {
		if errs[i] != nil {
			assert.ErrorIs(t, errs[i], apperrors.ErrAlreadyInProgress)
			blocked++
			continue
		}
		proceeded++
		assert.Equal(t, models.StatusTimedOut, results[i].Status)
	}
	assert.Equal(t, 1, proceeded)
	assert.Equal(t, 1, blocked)
}

func TestExecuteInvestment_SessionBusy(t *testing.T) {
	h := newHarness(t, harnessConfig{mode: wallet.ModeIgnore, signTimeout: 300 * time.Millisecond, balanceA: 5000, balanceB: 5000})

	var wg sync.WaitGroup
	results := make([]*Result, 2)
	for i, user := range []string{"u1", "u2"} {
		wg.Add(1)
		go func(i int, user string) {
			defer wg.Done()
			res, err := h.exec.ExecuteInvestment(context.Background(), h.request(user))
			assert.NoError(t, err)
			results[i] = res
		}(i, user)
	}
	wg.Wait()

	statuses := map[models.AttemptStatus]int{}
	for _, r := range results {
		require.NotNil(t, r)
		statuses[r.Status]++
		if r.Status == models.StatusAborted {
			assert.Equal(t, "session_busy", r.FailureCode)
		}
	}
	assert.Equal(t, map[models.AttemptStatus]int{models.StatusTimedOut: 1, models.StatusAborted: 1}, statuses)
}

func TestExecuteInvestment_RejectsBeforeCreatingAttempt(t *testing.T) {
	h := newHarness(t, harnessConfig{balanceA: 5000, balanceB: 5000})
	ctx := context.Background()

	other := h.request("u1")
	other.WalletAddress = solana.NewWallet().PublicKey().String()
	_, err := h.exec.ExecuteInvestment(ctx, other)
	assert.ErrorIs(t, err, apperrors.ErrSessionNotConnected)

	unknownPool := h.request("u1")
	unknownPool.PoolID = "nope"
	_, err = h.exec.ExecuteInvestment(ctx, unknownPool)
	assert.ErrorIs(t, err, apperrors.ErrPoolNotFound)

	tooLoose := h.request("u1")
	tooLoose.SlippageBps = slippage(5000)
	_, err = h.exec.ExecuteInvestment(ctx, tooLoose)
	assert.ErrorIs(t, err, apperrors.ErrSlippageOutOfRange)

	zero := h.request("u1")
	zero.Amount = decimal.Zero
	_, err = h.exec.ExecuteInvestment(ctx, zero)
	assert.ErrorIs(t, err, apperrors.ErrInvalidRequest)

	missing := h.request("")
	_, err = h.exec.ExecuteInvestment(ctx, missing)
	assert.ErrorIs(t, err, apperrors.ErrInvalidRequest)

	recent, err := h.exec.Recent(ctx, "u1", 10)
	require.NoError(t, err)
	assert.Empty(t, recent)
}

func TestExecuteInvestment_TerminatedSession(t *testing.T) {
	h := newHarness(t, harnessConfig{balanceA: 5000, balanceB: 5000})
	require.NoError(t, h.sessions.Terminate(context.Background(), h.sessionID))

	_, err := h.exec.ExecuteInvestment(context.Background(), h.request("u1"))
	assert.ErrorIs(t, err, apperrors.ErrSessionNotConnected)
}

func TestCancel_WhileAwaitingSignature(t *testing.T) {
	h := newHarness(t, harnessConfig{mode: wallet.ModeIgnore, signTimeout: 5 * time.Second, balanceA: 5000, balanceB: 5000})
	ctx := context.Background()

	done := make(chan *Result, 1)
	go func() {
		res, err := h.exec.ExecuteInvestment(ctx, h.request("u1"))
		assert.NoError(t, err)
		done <- res
	}()

	var attemptID string
	require.Eventually(t, func() bool {
		inflight, err := h.ledger.ListInFlight(ctx)
		if err != nil || len(inflight) != 1 || inflight[0].Status != models.StatusAwaitingSignature {
			return false
		}
		attemptID = inflight[0].AttemptID
		return true
	}, 2*time.Second, 10*time.Millisecond)

	require.NoError(t, h.exec.Cancel(ctx, attemptID))

	select {
	case res := <-done:
		assert.Equal(t, models.StatusCancelled, res.Status)
		assert.Equal(t, attemptID, res.AttemptID)
	case <-time.After(2 * time.Second):
		t.Fatal("cancel did not unblock the attempt")
	}

	// cancelling again is a no-op
	assert.NoError(t, h.exec.Cancel(ctx, attemptID))
	assert.Equal(t, 0, h.chain.sentCount())
}

func TestExecuteInvestment_CallerGoneAfterBroadcast(t *testing.T) {
	h := newHarness(t, harnessConfig{balanceA: 5000, balanceB: 5000, confirm: neverLand})
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	go func() {
		for h.chain.sentCount() == 0 {
			time.Sleep(time.Millisecond)
		}
		cancel()
	}()

	res, err := h.exec.ExecuteInvestment(ctx, h.request("u1"))
	require.NoError(t, err)
	assert.Equal(t, models.StatusUnknown, res.Status)
	assert.NotEmpty(t, res.TxSignature)

	a, err := h.exec.Status(context.Background(), res.AttemptID)
	require.NoError(t, err)
	assert.Equal(t, models.StatusUnknown, a.Status)
	assert.True(t, a.Status.IsTerminal())
	require.NotNil(t, a.TxSignature)
	assert.Nil(t, a.FailureCode)

	inflight, err := h.ledger.ListInFlight(context.Background())
	require.NoError(t, err)
	assert.Empty(t, inflight)

	// the slot for this user and pool is free again
	h.chain.mu.Lock()
	h.chain.mode = landConfirmed
	h.chain.mu.Unlock()
	again, err := h.exec.ExecuteInvestment(context.Background(), h.request("u1"))
	require.NoError(t, err)
	assert.Equal(t, models.StatusConfirmed, again.Status)
}

func TestTerminate_WithdrawsPendingSignature(t *testing.T) {
	h := newHarness(t, harnessConfig{mode: wallet.ModeIgnore, signTimeout: 5 * time.Second, balanceA: 5000, balanceB: 5000})
	ctx := context.Background()

	done := make(chan *Result, 1)
	go func() {
		res, err := h.exec.ExecuteInvestment(ctx, h.request("u1"))
		assert.NoError(t, err)
		done <- res
	}()

	require.Eventually(t, func() bool {
		inflight, err := h.ledger.ListInFlight(ctx)
		return err == nil && len(inflight) == 1 && inflight[0].Status == models.StatusAwaitingSignature
	}, 2*time.Second, 10*time.Millisecond)

	require.NoError(t, h.sessions.Terminate(ctx, h.sessionID))

	select {
	case res := <-done:
		assert.Equal(t, models.StatusAborted, res.Status)
		assert.ErrorIs(t, res.Err, apperrors.ErrSessionNotConnected)

		a, err := h.exec.Status(ctx, res.AttemptID)
		require.NoError(t, err)
		require.NotNil(t, a.FailureCode)
		assert.Equal(t, "session_not_connected", *a.FailureCode)
	case <-time.After(2 * time.Second):
		t.Fatal("terminating the session did not end the attempt")
	}
	assert.Equal(t, 0, h.chain.sentCount())
}

func TestCancel_RefusedOnceSigned(t *testing.T) {
	h := newHarness(t, harnessConfig{balanceA: 5000, balanceB: 5000, confirm: neverLand})
	ctx := context.Background()

	done := make(chan *Result, 1)
	go func() {
		res, err := h.exec.ExecuteInvestment(ctx, h.request("u1"))
		assert.NoError(t, err)
		done <- res
	}()

	var attemptID string
	require.Eventually(t, func() bool {
		if h.chain.sentCount() == 0 {
			return false
		}
		inflight, err := h.ledger.ListInFlight(ctx)
		if err != nil || len(inflight) != 1 {
			return false
		}
		attemptID = inflight[0].AttemptID
		return true
	}, 2*time.Second, time.Millisecond)

	err := h.exec.Cancel(ctx, attemptID)
	assert.ErrorIs(t, err, apperrors.ErrInvalidRequest)

	res := <-done
	assert.Equal(t, models.StatusUnknown, res.Status)
	assert.NotEmpty(t, res.TxSignature)
}

// drainingInbox spends the wallet's token B as the signed reply goes out.
type drainingInbox struct {
	next  wallet.Inbox
	chain *fakeChain
	ata   solana.PublicKey
}

func (d *drainingInbox) HandleWalletEvent(ctx context.Context, env *pairing.Envelope) error {
	if env.Type == pairing.SignResult {
		d.chain.setBalance(d.ata, 10)
	}
	return d.next.HandleWalletEvent(ctx, env)
}

func TestExecuteInvestment_RecheckAfterSigning(t *testing.T) {
	inbox := &drainingInbox{}
	h := newHarness(t, harnessConfig{
		balanceA: 5000,
		balanceB: 5000,
		window:   time.Nanosecond,
		inbox: func(next wallet.Inbox) wallet.Inbox {
			inbox.next = next
			return inbox
		},
	})
	inbox.chain = h.chain
	inbox.ata = h.ataB

	res, err := h.exec.ExecuteInvestment(context.Background(), h.request("u1"))
	require.NoError(t, err)
	assert.Equal(t, models.StatusInsufficientBalance, res.Status)
	assert.Equal(t, 0, h.chain.sentCount())

	hist, err := h.exec.History(context.Background(), res.AttemptID)
	require.NoError(t, err)
	require.NotEmpty(t, hist)
	assert.Equal(t, models.StatusSigned, hist[len(hist)-1].FromStatus)
}

func TestStatus_TerminalIsStable(t *testing.T) {
	h := newHarness(t, harnessConfig{mode: wallet.ModeReject, balanceA: 5000, balanceB: 5000})
	ctx := context.Background()

	res, err := h.exec.ExecuteInvestment(ctx, h.request("u1"))
	require.NoError(t, err)

	first, err := h.exec.Status(ctx, res.AttemptID)
	require.NoError(t, err)
	second, err := h.exec.Status(ctx, res.AttemptID)
	require.NoError(t, err)
	assert.Equal(t, first.Status, second.Status)
	assert.Equal(t, first.UpdatedAt, second.UpdatedAt)

	_, err = h.exec.Status(ctx, "missing")
	assert.True(t, errors.Is(err, ledger.ErrNotFound))
}
