package submit

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/gagliardetto/solana-go"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/gbsoe/FiLotV2-sub001/internal/apperrors"
	"github.com/gbsoe/FiLotV2-sub001/internal/rpc"
)

type fakeNetwork struct {
	mu        sync.Mutex
	sendErr   error
	sent      [][]byte
	statuses  []*rpc.SignatureStatus // served in order, last one repeats
	statusErr error
	polls     int
	valid     bool
}

func (f *fakeNetwork) SendTransaction(ctx context.Context, raw []byte) (string, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.sent = append(f.sent, raw)
	return "", f.sendErr
}

func (f *fakeNetwork) GetSignatureStatus(ctx context.Context, signature string) (*rpc.SignatureStatus, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.polls++
	if f.statusErr != nil && f.polls == 1 {
		return nil, f.statusErr
	}
	if len(f.statuses) == 0 {
		return nil, nil
	}
	s := f.statuses[0]
	if len(f.statuses) > 1 {
		f.statuses = f.statuses[1:]
	}
	return s, nil
}

func (f *fakeNetwork) IsBlockhashValid(ctx context.Context, hash solana.Hash) (bool, error) {
	return f.valid, nil
}

func signedTx(t *testing.T) *solana.Transaction {
	payer := solana.NewWallet()
	ix := solana.NewInstruction(
		solana.NewWallet().PublicKey(),
		[]*solana.AccountMeta{{PublicKey: payer.PublicKey(), IsSigner: true, IsWritable: true}},
		[]byte{1},
	)
	tx, err := solana.NewTransaction([]solana.Instruction{ix}, solana.Hash{5}, solana.TransactionPayer(payer.PublicKey()))
	require.NoError(t, err)
	_, err = tx.Sign(func(key solana.PublicKey) *solana.PrivateKey {
		if key.Equals(payer.PublicKey()) {
			return &payer.PrivateKey
		}
		return nil
	})
	require.NoError(t, err)
	return tx
}

func fastSubmitter(net Network) *Submitter {
	return NewSubmitter(net, Config{
		InitialBackoff: 5 * time.Millisecond,
		MaxBackoff:     20 * time.Millisecond,
		MaxWait:        200 * time.Millisecond,
	})
}

func TestSubmit_ReturnsPayerSignature(t *testing.T) {
	net := &fakeNetwork{}
	tx := signedTx(t)

	sig, err := fastSubmitter(net).Submit(context.Background(), tx)
	require.NoError(t, err)
	assert.Equal(t, tx.Signatures[0], sig)
	require.Len(t, net.sent, 1)

	raw, err := tx.MarshalBinary()
	require.NoError(t, err)
	assert.Equal(t, raw, net.sent[0])
}

func TestSubmit_ErrorClasses(t *testing.T) {
	tests := []struct {
		name    string
		sendErr error
		want    error
	}{
		{"rejected", &rpc.RPCError{Code: -32002, Message: "Transaction simulation failed: insufficient funds"}, apperrors.ErrSubmissionRejected},
		{"transport", errors.New("connection reset"), apperrors.ErrRPC},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			net := &fakeNetwork{sendErr: tt.sendErr}
			_, err := fastSubmitter(net).Submit(context.Background(), signedTx(t))
			assert.ErrorIs(t, err, tt.want)
			assert.Len(t, net.sent, 1)
		})
	}
}

func TestSubmit_AlreadyProcessedIsSuccess(t *testing.T) {
	net := &fakeNetwork{sendErr: &rpc.RPCError{Code: -32002, Message: "This transaction has already been processed"}}
	tx := signedTx(t)
	sig, err := fastSubmitter(net).Submit(context.Background(), tx)
	require.NoError(t, err)
	assert.Equal(t, tx.Signatures[0], sig)
}

func TestSubmit_UnsignedIsInvalid(t *testing.T) {
	tx := signedTx(t)
	tx.Signatures = nil
	_, err := fastSubmitter(&fakeNetwork{}).Submit(context.Background(), tx)
	assert.ErrorIs(t, err, apperrors.ErrInvalidRequest)
}

func TestAwaitConfirmation_Outcomes(t *testing.T) {
	sig := solana.Signature{1}

	tests := []struct {
		name      string
		net       *fakeNetwork
		blockhash solana.Hash
		want      Outcome
	}{
		{
			name: "confirmed after processing",
			net: &fakeNetwork{statuses: []*rpc.SignatureStatus{
				nil,
				{Slot: 10, ConfirmationStatus: "processed"},
				{Slot: 10, ConfirmationStatus: "confirmed"},
			}},
			want: OutcomeConfirmed,
		},
		{
			name: "failed on-chain",
			net: &fakeNetwork{statuses: []*rpc.SignatureStatus{
				{Slot: 11, ConfirmationStatus: "confirmed", Err: map[string]interface{}{"InstructionError": []interface{}{2, "Custom"}}},
			}},
			want: OutcomeFailed,
		},
		{
			name: "read errors keep polling",
			net: &fakeNetwork{
				statusErr: errors.New("timeout"),
				statuses:  []*rpc.SignatureStatus{{Slot: 12, ConfirmationStatus: "finalized"}},
			},
			want: OutcomeConfirmed,
		},
		{
			name: "never seen",
			net:  &fakeNetwork{valid: true},
			want: OutcomeUnknown,
		},
		{
			name:      "blockhash expired",
			net:       &fakeNetwork{valid: false},
			blockhash: solana.Hash{4},
			want:      OutcomeExpired,
		},
		{
			name:      "valid blockhash still unknown",
			net:       &fakeNetwork{valid: true},
			blockhash: solana.Hash{4},
			want:      OutcomeUnknown,
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			res, err := fastSubmitter(tt.net).AwaitConfirmation(context.Background(), sig, tt.blockhash, 0)
			require.NoError(t, err)
			assert.Equal(t, tt.want, res.Outcome)
		})
	}
}

func TestAwaitConfirmation_RespectsMaxWait(t *testing.T) {
	start := time.Now()
	res, err := fastSubmitter(&fakeNetwork{}).AwaitConfirmation(context.Background(), solana.Signature{1}, solana.Hash{}, 60*time.Millisecond)
	require.NoError(t, err)
	assert.Equal(t, OutcomeUnknown, res.Outcome)
	assert.Less(t, time.Since(start), 500*time.Millisecond)
}

func TestAwaitConfirmation_ContextCancelled(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	s := NewSubmitter(&fakeNetwork{}, Config{MaxWait: time.Minute})
	res, err := s.AwaitConfirmation(ctx, solana.Signature{1}, solana.Hash{}, 0)
	assert.ErrorIs(t, err, context.Canceled)
	assert.Equal(t, OutcomeUnknown, res.Outcome)
}

func TestLanded(t *testing.T) {
	s := fastSubmitter(&fakeNetwork{statuses: []*rpc.SignatureStatus{{Slot: 3, ConfirmationStatus: "processed"}}})
	ok, err := s.Landed(context.Background(), solana.Signature{1})
	require.NoError(t, err)
	assert.True(t, ok)
}
