// Package submit broadcasts signed transactions and tracks them to a final
// outcome.
package submit

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/gagliardetto/solana-go"
	"github.com/sirupsen/logrus"

	"github.com/gbsoe/FiLotV2-sub001/internal/apperrors"
	"github.com/gbsoe/FiLotV2-sub001/internal/rpc"
	"github.com/gbsoe/FiLotV2-sub001/internal/wallet"
)

// Network is the part of the RPC client the submitter talks to.
type Network interface {
	SendTransaction(ctx context.Context, raw []byte) (string, error)
	GetSignatureStatus(ctx context.Context, signature string) (*rpc.SignatureStatus, error)
	IsBlockhashValid(ctx context.Context, hash solana.Hash) (bool, error)
}

type Outcome string

const (
	OutcomeConfirmed Outcome = "confirmed"
	OutcomeFailed    Outcome = "failed_onchain"
	OutcomeUnknown   Outcome = "unknown"
	// OutcomeExpired means the blockhash aged out without the transaction
	// landing, so it never will.
	OutcomeExpired Outcome = "expired"
)

type Result struct {
	Outcome Outcome
	Slot    uint64
	Err     interface{} // on-chain error for OutcomeFailed
}

type Config struct {
	Commitment     string
	InitialBackoff time.Duration
	MaxBackoff     time.Duration
	MaxWait        time.Duration
	Logger         *logrus.Logger
}

type Submitter struct {
	net            Network
	commitment     string
	initialBackoff time.Duration
	maxBackoff     time.Duration
	maxWait        time.Duration
	logger         *logrus.Logger
}

func NewSubmitter(net Network, cfg Config) *Submitter {
	if cfg.Commitment == "" {
		cfg.Commitment = "confirmed"
	}
	if cfg.InitialBackoff <= 0 {
		cfg.InitialBackoff = time.Second
	}
	if cfg.MaxBackoff < cfg.InitialBackoff {
		cfg.MaxBackoff = 8 * cfg.InitialBackoff
	}
	if cfg.MaxWait <= 0 {
		cfg.MaxWait = 60 * time.Second
	}
	if cfg.Logger == nil {
		cfg.Logger = logrus.New()
	}
	return &Submitter{
		net:            net,
		commitment:     cfg.Commitment,
		initialBackoff: cfg.InitialBackoff,
		maxBackoff:     cfg.MaxBackoff,
		maxWait:        cfg.MaxWait,
		logger:         cfg.Logger,
	}
}

func (s *Submitter) MaxWait() time.Duration {
	return s.maxWait
}

// Submit broadcasts tx once. The returned signature is the fee payer's, so
// re-broadcasting identical bytes yields the same id.
func (s *Submitter) Submit(ctx context.Context, tx *solana.Transaction) (solana.Signature, error) {
	sig, err := wallet.Signature(tx)
	if err != nil {
		return solana.Signature{}, apperrors.Wrap(apperrors.KindInvalidRequest, err, "transaction is not signed")
	}
	raw, err := tx.MarshalBinary()
	if err != nil {
		return solana.Signature{}, fmt.Errorf("failed to serialize transaction: %w", err)
	}

	log := s.logger.WithField("signature", sig.String())

	got, err := s.net.SendTransaction(ctx, raw)
	if err != nil {
		var rpcErr *rpc.RPCError
		if errors.As(err, &rpcErr) {
			if alreadyProcessed(rpcErr) {
				log.Info("Transaction already processed")
				return sig, nil
			}
			log.WithField("rpc_error", rpcErr.Message).Warn("Transaction rejected")
			return solana.Signature{}, apperrors.Wrap(apperrors.KindSubmissionRejected, err, "transaction rejected by the network").
				WithDetails(map[string]interface{}{"code": rpcErr.Code, "message": rpcErr.Message})
		}
		return solana.Signature{}, apperrors.Wrap(apperrors.KindRPC, err, "broadcast failed")
	}

	if got != "" && got != sig.String() {
		log.WithField("returned", got).Warn("Network returned a different signature")
	}
	log.Info("Transaction submitted")
	return sig, nil
}

func alreadyProcessed(e *rpc.RPCError) bool {
	return strings.Contains(strings.ToLower(e.Message), "already been processed")
}

// AwaitConfirmation polls the signature status with capped exponential
// backoff until an outcome is known or maxWait elapses. Read errors are
// logged and polling continues. A zero blockhash skips the expiry check.
func (s *Submitter) AwaitConfirmation(ctx context.Context, sig solana.Signature, blockhash solana.Hash, maxWait time.Duration) (*Result, error) {
	if maxWait <= 0 {
		maxWait = s.maxWait
	}
	deadline := time.Now().Add(maxWait)
	backoff := s.initialBackoff

	log := s.logger.WithField("signature", sig.String())

	for {
		status, err := s.net.GetSignatureStatus(ctx, sig.String())
		switch {
		case err != nil:
			log.WithError(err).Warn("Failed to read signature status")
		case status != nil && status.Err != nil:
			log.WithField("err", status.Err).Warn("Transaction failed on-chain")
			return &Result{Outcome: OutcomeFailed, Slot: status.Slot, Err: status.Err}, nil
		case status != nil && status.Reached(s.commitment):
			log.WithField("slot", status.Slot).Info("Transaction confirmed")
			return &Result{Outcome: OutcomeConfirmed, Slot: status.Slot}, nil
		case status == nil && !blockhash.IsZero():
			if s.expired(ctx, sig, blockhash) {
				log.Warn("Blockhash expired before the transaction landed")
				return &Result{Outcome: OutcomeExpired}, nil
			}
		}

		remaining := time.Until(deadline)
		if remaining <= 0 {
			log.WithField("max_wait", maxWait).Warn("Confirmation outcome unknown")
			return &Result{Outcome: OutcomeUnknown}, nil
		}
		wait := backoff
		if wait > remaining {
			wait = remaining
		}

		select {
		case <-ctx.Done():
			return &Result{Outcome: OutcomeUnknown}, ctx.Err()
		case <-time.After(wait):
			backoff *= 2
			if backoff > s.maxBackoff {
				backoff = s.maxBackoff
			}
		}
	}
}

// expired reports whether blockhash is no longer valid and the signature is
// still unseen. The status is re-read to close the window between the two
// calls.
func (s *Submitter) expired(ctx context.Context, sig solana.Signature, blockhash solana.Hash) bool {
	valid, err := s.net.IsBlockhashValid(ctx, blockhash)
	if err != nil || valid {
		return false
	}
	status, err := s.net.GetSignatureStatus(ctx, sig.String())
	return err == nil && status == nil
}

// Landed reports whether the network has any record of sig.
func (s *Submitter) Landed(ctx context.Context, sig solana.Signature) (bool, error) {
	status, err := s.net.GetSignatureStatus(ctx, sig.String())
	if err != nil {
		return false, apperrors.Wrap(apperrors.KindRPC, err, "read signature status")
	}
	return status != nil, nil
}
