// Package signing asks a paired wallet to sign a transaction and waits for
// the answer. At most one request is outstanding per session.
package signing

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/gagliardetto/solana-go"
	"github.com/google/uuid"
	"github.com/sirupsen/logrus"

	"github.com/gbsoe/FiLotV2-sub001/internal/apperrors"
	"github.com/gbsoe/FiLotV2-sub001/internal/lock"
	"github.com/gbsoe/FiLotV2-sub001/internal/models"
	"github.com/gbsoe/FiLotV2-sub001/internal/pairing"
	"github.com/gbsoe/FiLotV2-sub001/internal/wallet"
)

type Config struct {
	Timeout time.Duration
	Logger  *logrus.Logger
}

type Coordinator struct {
	relay   pairing.Relay
	locks   lock.Locker
	timeout time.Duration
	logger  *logrus.Logger

	mu     sync.Mutex
	active map[string]*Request // by session, this process only
}

func NewCoordinator(relay pairing.Relay, locks lock.Locker, cfg Config) *Coordinator {
	if locks == nil {
		locks = lock.NewKeyed()
	}
	if cfg.Timeout <= 0 {
		cfg.Timeout = 120 * time.Second
	}
	if cfg.Logger == nil {
		cfg.Logger = logrus.New()
	}
	return &Coordinator{
		relay:   relay,
		locks:   locks,
		timeout: cfg.Timeout,
		logger:  cfg.Logger,
		active:  make(map[string]*Request),
	}
}

// Timeout is the default wait for a wallet answer.
func (c *Coordinator) Timeout() time.Duration {
	return c.timeout
}

// Request is one outstanding signature request. Release must be called on
// every exit path.
type Request struct {
	c         *Coordinator
	sessionID string
	requestID string
	release   lock.Release

	mu       sync.Mutex
	sub      pairing.Subscription
	unsigned *solana.Transaction
	settled  bool  // Await returned a signed transaction
	cause    error // why cancelled was closed

	cancelled   chan struct{}
	cancelOnce  sync.Once
	releaseOnce sync.Once
}

// Acquire takes the session's signing slot without blocking.
func (c *Coordinator) Acquire(ctx context.Context, sessionID string) (*Request, error) {
	release, ok, err := c.locks.TryLock(ctx, sessionID)
	if err != nil {
		return nil, apperrors.Wrap(apperrors.KindRPC, err, "acquire session lock")
	}
	if !ok {
		return nil, apperrors.Newf(apperrors.KindSessionBusy, "session %s already has a pending signature request", sessionID)
	}
	req := &Request{
		c:         c,
		sessionID: sessionID,
		requestID: uuid.NewString(),
		release:   release,
		cancelled: make(chan struct{}),
	}
	c.mu.Lock()
	c.active[sessionID] = req
	c.mu.Unlock()
	return req, nil
}

// CancelSession withdraws the session's outstanding request, if any, because
// the session itself has ended. It reports whether a request was stopped.
func (c *Coordinator) CancelSession(sessionID string) bool {
	c.mu.Lock()
	req := c.active[sessionID]
	c.mu.Unlock()
	if req == nil {
		return false
	}
	stopped := req.cancelWith(
		apperrors.Newf(apperrors.KindSessionNotConnected, "session %s was terminated", sessionID),
		"session terminated",
	)
	if stopped {
		c.logger.WithFields(logrus.Fields{
			"session_id": sessionID,
			"request_id": req.requestID,
		}).Info("Sign request withdrawn, session terminated")
	}
	return stopped
}

func (r *Request) ID() string        { return r.requestID }
func (r *Request) SessionID() string { return r.sessionID }

// Deliver sends the transaction to the wallet. The reply subscription is
// opened first so a fast wallet cannot answer into the void.
func (r *Request) Deliver(ctx context.Context, tx *solana.Transaction, summary *models.DepositSummary) error {
	if r.isCancelled() {
		return r.cancelErr()
	}
	encoded, err := wallet.EncodeTransaction(tx)
	if err != nil {
		return err
	}

	sub, err := r.c.relay.Subscribe(ctx, r.sessionID)
	if err != nil {
		return apperrors.Wrap(apperrors.KindRPC, err, "subscribe to wallet replies")
	}
	r.mu.Lock()
	if r.sub != nil {
		r.mu.Unlock()
		_ = sub.Close()
		return fmt.Errorf("request %s already delivered", r.requestID)
	}
	r.sub = sub
	r.unsigned = tx
	r.mu.Unlock()

	err = r.c.relay.Publish(ctx, r.sessionID, &pairing.Envelope{
		Type:      pairing.SignRequest,
		SessionID: r.sessionID,
		RequestID: r.requestID,
		Payload:   encoded,
		Summary:   summary,
	})
	if err != nil {
		return apperrors.Wrap(apperrors.KindRPC, err, "send sign request")
	}
	// A Cancel that raced the publish may have notified the wallet before
	// the request reached it; withdraw it again.
	if r.isCancelled() {
		r.notifyWallet(pairing.SignCancelled, "cancelled")
		return r.cancelErr()
	}

	r.c.logger.WithFields(logrus.Fields{
		"session_id": r.sessionID,
		"request_id": r.requestID,
	}).Info("Sign request delivered")
	return nil
}

// Await blocks until the wallet answers, the timeout elapses, or the request
// is cancelled. A returned transaction carries the same message as the one
// delivered and valid signatures in every slot.
func (r *Request) Await(ctx context.Context, timeout time.Duration) (*solana.Transaction, error) {
	r.mu.Lock()
	sub, unsigned := r.sub, r.unsigned
	r.mu.Unlock()
	if sub == nil {
		return nil, fmt.Errorf("request %s was not delivered", r.requestID)
	}
	if timeout <= 0 {
		timeout = r.c.timeout
	}

	timer := time.NewTimer(timeout)
	defer timer.Stop()

	log := r.c.logger.WithFields(logrus.Fields{
		"session_id": r.sessionID,
		"request_id": r.requestID,
	})

	for {
		select {
		case <-ctx.Done():
			r.Cancel()
			return nil, apperrors.Wrap(apperrors.KindCancelled, ctx.Err(), "signature request cancelled")

		case <-r.cancelled:
			return nil, r.cancelErr()

		case <-timer.C:
			r.notifyWallet(pairing.SignCancelled, "timed out")
			log.WithField("timeout", timeout).Warn("Wallet did not answer sign request")
			return nil, apperrors.Newf(apperrors.KindSigningTimeout, "no answer from wallet within %s", timeout)

		case env, ok := <-sub.Events():
			if !ok {
				return nil, apperrors.New(apperrors.KindRPC, "wallet relay closed")
			}
			if env.RequestID != r.requestID {
				continue
			}

			switch env.Type {
			case pairing.SignRejected:
				log.WithField("reason", env.Reason).Info("Sign request rejected in wallet")
				return nil, apperrors.New(apperrors.KindWalletRejected, "transaction rejected in wallet").
					WithDetails(map[string]interface{}{"reason": env.Reason})

			case pairing.SignResult:
				signed, err := checkSigned(unsigned, env.Payload)
				if err != nil {
					log.WithError(err).Warn("Discarding invalid signed payload")
					continue
				}
				r.mu.Lock()
				if r.isCancelled() {
					r.mu.Unlock()
					return nil, r.cancelErr()
				}
				r.settled = true
				r.mu.Unlock()
				log.Info("Signed transaction received")
				return signed, nil
			}
		}
	}
}

func checkSigned(unsigned *solana.Transaction, payload string) (*solana.Transaction, error) {
	signed, err := wallet.DecodeTransaction(payload)
	if err != nil {
		return nil, err
	}
	same, err := wallet.SameMessage(unsigned, signed)
	if err != nil {
		return nil, err
	}
	if !same {
		return nil, fmt.Errorf("signed message differs from the requested one")
	}
	if err := wallet.VerifySignatures(signed); err != nil {
		return nil, err
	}
	return signed, nil
}

// Cancel stops a pending Await and tells the wallet to drop the request.
// It returns false once Await has handed back a signed transaction.
func (r *Request) Cancel() bool {
	return r.cancelWith(apperrors.New(apperrors.KindCancelled, "signature request cancelled"), "cancelled")
}

func (r *Request) cancelWith(cause error, reason string) bool {
	r.mu.Lock()
	if r.settled {
		r.mu.Unlock()
		return false
	}
	first := false
	r.cancelOnce.Do(func() {
		r.cause = cause
		close(r.cancelled)
		first = true
	})
	r.mu.Unlock()

	if first {
		r.notifyWallet(pairing.SignCancelled, reason)
	}
	return true
}

func (r *Request) isCancelled() bool {
	select {
	case <-r.cancelled:
		return true
	default:
		return false
	}
}

func (r *Request) cancelErr() error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.cause == nil {
		return apperrors.New(apperrors.KindCancelled, "signature request cancelled")
	}
	return r.cause
}

func (r *Request) notifyWallet(t pairing.MessageType, reason string) {
	r.mu.Lock()
	delivered := r.sub != nil
	r.mu.Unlock()
	if !delivered {
		return
	}

	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()
	err := r.c.relay.Publish(ctx, r.sessionID, &pairing.Envelope{
		Type:      t,
		SessionID: r.sessionID,
		RequestID: r.requestID,
		Reason:    reason,
	})
	if err != nil {
		r.c.logger.WithError(err).WithField("request_id", r.requestID).Warn("Failed to notify wallet")
	}
}

// Release frees the session slot. Safe to call more than once.
func (r *Request) Release() {
	r.releaseOnce.Do(func() {
		r.mu.Lock()
		sub := r.sub
		r.mu.Unlock()
		if sub != nil {
			_ = sub.Close()
		}
		r.c.mu.Lock()
		if r.c.active[r.sessionID] == r {
			delete(r.c.active, r.sessionID)
		}
		r.c.mu.Unlock()
		r.release()
	})
}

// RequestSignature runs acquire, deliver, await and release in one call.
func (c *Coordinator) RequestSignature(ctx context.Context, sessionID string, tx *solana.Transaction, summary *models.DepositSummary, timeout time.Duration) (*solana.Transaction, error) {
	req, err := c.Acquire(ctx, sessionID)
	if err != nil {
		return nil, err
	}
	defer req.Release()

	if err := req.Deliver(ctx, tx, summary); err != nil {
		return nil, err
	}
	return req.Await(ctx, timeout)
}
