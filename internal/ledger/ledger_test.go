package ledger

import (
	"context"
	"encoding/json"
	"sync"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/gbsoe/FiLotV2-sub001/internal/apperrors"
	"github.com/gbsoe/FiLotV2-sub001/internal/database"
	"github.com/gbsoe/FiLotV2-sub001/internal/models"
)

func setupLedger(t *testing.T) *Ledger {
	db, err := database.Open("file:"+uuid.NewString()+"?mode=memory&cache=shared", nil)
	require.NoError(t, err)
	t.Cleanup(func() { _ = database.Close(db) })
	return New(db, nil)
}

func newAttempt(user, pool string) NewAttempt {
	return NewAttempt{
		UserID:          user,
		SessionID:       "sess-1",
		WalletAddress:   "wallet-1",
		PoolID:          pool,
		RequestedAmount: decimal.NewFromInt(1000),
		SlippageBps:     50,
	}
}

func testQuote() *Quote {
	return &Quote{
		TokenAMint:       "mintA",
		TokenBMint:       "mintB",
		TokenAAmount:     1000,
		TokenBAmount:     1000,
		ExpectedLPTokens: 1000,
		MinLPTokens:      995,
		SlippageBps:      50,
		FeeBps:           30,
		QuotedAt:         time.Now().UTC(),
	}
}

// walk drives an attempt along the forward path up to status.
func walk(t *testing.T, l *Ledger, id string, until models.AttemptStatus) *models.InvestmentAttempt {
	ctx := context.Background()
	steps := []struct {
		from, to models.AttemptStatus
		u        Update
	}{
		{models.StatusCreated, models.StatusValidated, Update{Quote: testQuote()}},
		{models.StatusValidated, models.StatusBuilt, Update{}},
		{models.StatusBuilt, models.StatusAwaitingSignature, Update{}},
		{models.StatusAwaitingSignature, models.StatusSigned, Update{SignedTx: "c2lnbmVk"}},
		{models.StatusSigned, models.StatusSubmitted, Update{TxSignature: "sig-" + id}},
	}
	var a *models.InvestmentAttempt
	for _, s := range steps {
		var err error
		a, err = l.Transition(ctx, id, s.from, s.to, s.u)
		require.NoError(t, err)
		if s.to == until {
			return a
		}
	}
	return a
}

func TestCreate_ClaimsInflightSlot(t *testing.T) {
	l := setupLedger(t)
	ctx := context.Background()

	a, err := l.Create(ctx, newAttempt("u1", "p1"))
	require.NoError(t, err)
	assert.Equal(t, models.StatusCreated, a.Status)
	require.NotNil(t, a.InflightKey)
	assert.Equal(t, "u1|p1", *a.InflightKey)

	_, err = l.Create(ctx, newAttempt("u1", "p1"))
	require.Error(t, err)
	assert.ErrorIs(t, err, apperrors.ErrAlreadyInProgress)
	e, ok := apperrors.As(err)
	require.True(t, ok)
	assert.Equal(t, a.AttemptID, e.Details["attempt_id"])

	// other pool and other user are independent
	_, err = l.Create(ctx, newAttempt("u1", "p2"))
	require.NoError(t, err)
	_, err = l.Create(ctx, newAttempt("u2", "p1"))
	require.NoError(t, err)
}

func TestTerminalWriteReleasesSlot(t *testing.T) {
	l := setupLedger(t)
	ctx := context.Background()

	a, err := l.Create(ctx, newAttempt("u1", "p1"))
	require.NoError(t, err)

	done, err := l.Transition(ctx, a.AttemptID, models.StatusCreated, models.StatusAborted,
		Update{Failure: apperrors.New(apperrors.KindPoolInactive, "pool paused")})
	require.NoError(t, err)
	assert.Nil(t, done.InflightKey)
	require.NotNil(t, done.FailureCode)
	assert.Equal(t, "pool_inactive", *done.FailureCode)

	next, err := l.Create(ctx, newAttempt("u1", "p1"))
	require.NoError(t, err)
	assert.NotEqual(t, a.AttemptID, next.AttemptID)
}

func TestCreate_ConcurrentSamePair(t *testing.T) {
	l := setupLedger(t)
	ctx := context.Background()

	const n = 8
	var (
		wg      sync.WaitGroup
		mu      sync.Mutex
		created int
		busy    int
	)
	for i := 0; i < n; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			_, err := l.Create(ctx, newAttempt("u1", "p1"))
			mu.Lock()
			defer mu.Unlock()
			if err == nil {
				created++
			} else if assert.ErrorIs(t, err, apperrors.ErrAlreadyInProgress) {
				busy++
			}
		}()
	}
	wg.Wait()

	assert.Equal(t, 1, created)
	assert.Equal(t, n-1, busy)
}

func TestTransition_RejectsIllegalEdges(t *testing.T) {
	l := setupLedger(t)
	ctx := context.Background()

	a, err := l.Create(ctx, newAttempt("u1", "p1"))
	require.NoError(t, err)

	cases := []struct {
		name     string
		from, to models.AttemptStatus
	}{
		{"skip ahead", models.StatusCreated, models.StatusSigned},
		{"rejected before signing", models.StatusCreated, models.StatusRejected},
		{"back edge", models.StatusValidated, models.StatusCreated},
		{"out of terminal", models.StatusConfirmed, models.StatusSubmitted},
		{"unknown before submit", models.StatusSigned, models.StatusUnknown},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			_, err := l.Transition(ctx, a.AttemptID, tc.from, tc.to, Update{})
			assert.ErrorIs(t, err, ErrIllegalTransition)
		})
	}

	got, err := l.Get(ctx, a.AttemptID)
	require.NoError(t, err)
	assert.Equal(t, models.StatusCreated, got.Status)
}

func TestTransition_CompareAndSet(t *testing.T) {
	l := setupLedger(t)
	ctx := context.Background()

	a, err := l.Create(ctx, newAttempt("u1", "p1"))
	require.NoError(t, err)

	_, err = l.Transition(ctx, a.AttemptID, models.StatusCreated, models.StatusValidated, Update{Quote: testQuote()})
	require.NoError(t, err)

	// second writer still believes the attempt is at created
	_, err = l.Transition(ctx, a.AttemptID, models.StatusCreated, models.StatusAborted, Update{})
	assert.ErrorIs(t, err, ErrStaleStatus)

	_, err = l.Transition(ctx, "missing", models.StatusCreated, models.StatusValidated, Update{})
	assert.ErrorIs(t, err, ErrNotFound)
}

func TestTransition_BuiltRequiresMinLP(t *testing.T) {
	l := setupLedger(t)
	ctx := context.Background()

	a, err := l.Create(ctx, newAttempt("u1", "p1"))
	require.NoError(t, err)
	_, err = l.Transition(ctx, a.AttemptID, models.StatusCreated, models.StatusValidated, Update{})
	require.NoError(t, err)

	_, err = l.Transition(ctx, a.AttemptID, models.StatusValidated, models.StatusBuilt, Update{})
	assert.ErrorIs(t, err, ErrIllegalTransition)
}

func TestTransition_SignatureOnlyAtSubmitted(t *testing.T) {
	l := setupLedger(t)
	ctx := context.Background()

	a, err := l.Create(ctx, newAttempt("u1", "p1"))
	require.NoError(t, err)
	walk(t, l, a.AttemptID, models.StatusAwaitingSignature)

	_, err = l.Transition(ctx, a.AttemptID, models.StatusAwaitingSignature, models.StatusSigned,
		Update{SignedTx: "x", TxSignature: "early"})
	assert.ErrorIs(t, err, ErrIllegalTransition)

	signed, err := l.Transition(ctx, a.AttemptID, models.StatusAwaitingSignature, models.StatusSigned, Update{SignedTx: "x"})
	require.NoError(t, err)
	assert.Nil(t, signed.TxSignature)

	_, err = l.Transition(ctx, a.AttemptID, models.StatusSigned, models.StatusSubmitted, Update{})
	assert.ErrorIs(t, err, ErrIllegalTransition)
}

func TestUnknownKeepsSignatureWithoutFailure(t *testing.T) {
	l := setupLedger(t)
	ctx := context.Background()

	a, err := l.Create(ctx, newAttempt("u1", "p1"))
	require.NoError(t, err)
	walk(t, l, a.AttemptID, models.StatusSubmitted)

	got, err := l.Transition(ctx, a.AttemptID, models.StatusSubmitted, models.StatusUnknown, Update{})
	require.NoError(t, err)
	assert.Equal(t, models.StatusUnknown, got.Status)
	require.NotNil(t, got.TxSignature)
	assert.Equal(t, "sig-"+a.AttemptID, *got.TxSignature)
	assert.Nil(t, got.FailureCode)
	assert.Nil(t, got.InflightKey)
}

func TestFailureDetailCarriesDetails(t *testing.T) {
	l := setupLedger(t)
	ctx := context.Background()

	a, err := l.Create(ctx, newAttempt("u1", "p1"))
	require.NoError(t, err)
	walk(t, l, a.AttemptID, models.StatusValidated)

	fail := apperrors.New(apperrors.KindInsufficientBalance, "not enough token_b").
		WithDetails(map[string]interface{}{"token": "token_b", "shortfall": uint64(50)})
	got, err := l.Transition(ctx, a.AttemptID, models.StatusValidated, models.StatusInsufficientBalance, Update{Failure: fail})
	require.NoError(t, err)

	require.NotNil(t, got.FailureDetail)
	var detail map[string]interface{}
	require.NoError(t, json.Unmarshal([]byte(*got.FailureDetail), &detail))
	assert.Equal(t, "token_b", detail["token"])
	assert.Equal(t, float64(50), detail["shortfall"])
}

func TestTerminalStatusIsStable(t *testing.T) {
	l := setupLedger(t)
	ctx := context.Background()

	a, err := l.Create(ctx, newAttempt("u1", "p1"))
	require.NoError(t, err)
	walk(t, l, a.AttemptID, models.StatusSubmitted)
	_, err = l.Transition(ctx, a.AttemptID, models.StatusSubmitted, models.StatusConfirmed, Update{})
	require.NoError(t, err)

	for i := 0; i < 3; i++ {
		got, err := l.Get(ctx, a.AttemptID)
		require.NoError(t, err)
		assert.Equal(t, models.StatusConfirmed, got.Status)
	}
	for _, to := range []models.AttemptStatus{models.StatusUnknown, models.StatusFailedOnchain, models.StatusTimedOut} {
		_, err := l.Transition(ctx, a.AttemptID, models.StatusConfirmed, to, Update{})
		assert.ErrorIs(t, err, ErrIllegalTransition)
	}
}

func TestHistoryAndListInFlight(t *testing.T) {
	l := setupLedger(t)
	ctx := context.Background()

	a, err := l.Create(ctx, newAttempt("u1", "p1"))
	require.NoError(t, err)
	walk(t, l, a.AttemptID, models.StatusBuilt)

	b, err := l.Create(ctx, newAttempt("u2", "p1"))
	require.NoError(t, err)
	_, err = l.Transition(ctx, b.AttemptID, models.StatusCreated, models.StatusRPCError,
		Update{Failure: apperrors.New(apperrors.KindRPC, "node down")})
	require.NoError(t, err)

	hist, err := l.History(ctx, a.AttemptID)
	require.NoError(t, err)
	require.Len(t, hist, 3)
	assert.Equal(t, models.StatusCreated, hist[0].ToStatus)
	assert.Equal(t, models.StatusValidated, hist[1].ToStatus)
	assert.Equal(t, models.StatusBuilt, hist[2].ToStatus)
	assert.Equal(t, models.StatusValidated, hist[2].FromStatus)

	inflight, err := l.ListInFlight(ctx)
	require.NoError(t, err)
	require.Len(t, inflight, 1)
	assert.Equal(t, a.AttemptID, inflight[0].AttemptID)

	found, err := l.FindInFlight(ctx, "u1", "p1")
	require.NoError(t, err)
	assert.Equal(t, a.AttemptID, found.AttemptID)

	_, err = l.FindInFlight(ctx, "u2", "p1")
	assert.ErrorIs(t, err, ErrNotFound)

	mine, err := l.ListByUser(ctx, "u2", 10)
	require.NoError(t, err)
	require.Len(t, mine, 1)
	assert.Equal(t, models.StatusRPCError, mine[0].Status)
}

func TestCanTransition_TerminalsHaveNoEdges(t *testing.T) {
	for s := range terminalSet(t) {
		for _, to := range append(models.NonTerminalStatuses(), models.StatusConfirmed, models.StatusAborted) {
			assert.False(t, CanTransition(s, to), "%s -> %s", s, to)
		}
	}
}

func terminalSet(t *testing.T) map[models.AttemptStatus]struct{} {
	out := map[models.AttemptStatus]struct{}{}
	for _, s := range []models.AttemptStatus{
		models.StatusConfirmed, models.StatusFailedOnchain, models.StatusUnknown,
		models.StatusInsufficientBalance, models.StatusRejected, models.StatusTimedOut,
		models.StatusCancelled, models.StatusRPCError, models.StatusAborted,
	} {
		require.True(t, s.IsTerminal())
		out[s] = struct{}{}
	}
	return out
}
