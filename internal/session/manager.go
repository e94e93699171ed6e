// Package session owns the lifecycle of wallet pairings:
// pending -> connected -> terminated, or pending -> expired. Every status
// change is committed to the database before any caller can observe it.
package session

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/gagliardetto/solana-go"
	"github.com/google/uuid"
	"github.com/sirupsen/logrus"
	"gorm.io/gorm"

	"github.com/gbsoe/FiLotV2-sub001/internal/apperrors"
	"github.com/gbsoe/FiLotV2-sub001/internal/lock"
	"github.com/gbsoe/FiLotV2-sub001/internal/models"
	"github.com/gbsoe/FiLotV2-sub001/internal/pairing"
)

var ErrNotFound = errors.New("session not found")

// SigningCanceller withdraws a session's outstanding signature request.
type SigningCanceller interface {
	CancelSession(sessionID string) bool
}

type Config struct {
	TTL          time.Duration
	PairAttempts int
	PairBackoff  time.Duration
	Logger       *logrus.Logger
}

type Manager struct {
	db           *gorm.DB
	relay        pairing.Relay
	locks        *lock.Keyed
	ttl          time.Duration
	pairAttempts int
	pairBackoff  time.Duration
	logger       *logrus.Logger
	now          func() time.Time

	mu      sync.Mutex
	waiters map[string]context.CancelFunc
	signing SigningCanceller
}

func NewManager(db *gorm.DB, relay pairing.Relay, cfg Config) *Manager {
	if cfg.TTL <= 0 {
		cfg.TTL = 5 * time.Minute
	}
	if cfg.PairAttempts <= 0 {
		cfg.PairAttempts = 3
	}
	if cfg.PairBackoff <= 0 {
		cfg.PairBackoff = 200 * time.Millisecond
	}
	if cfg.Logger == nil {
		cfg.Logger = logrus.New()
	}
	return &Manager{
		db:           db,
		relay:        relay,
		locks:        lock.NewKeyed(),
		ttl:          cfg.TTL,
		pairAttempts: cfg.PairAttempts,
		pairBackoff:  cfg.PairBackoff,
		logger:       cfg.Logger,
		now:          func() time.Time { return time.Now().UTC() },
		waiters:      make(map[string]context.CancelFunc),
	}
}

// Create registers a pending session. sessionID may be empty, in which case
// one is generated.
func (m *Manager) Create(ctx context.Context, sessionID string) (*models.WalletSession, error) {
	if sessionID == "" {
		sessionID = uuid.NewString()
	}
	if len(sessionID) > 64 || strings.ContainsAny(sessionID, " :/|") {
		return nil, apperrors.New(apperrors.KindInvalidRequest, "invalid session id")
	}

	p, err := m.pair(ctx, sessionID)
	if err != nil {
		return nil, err
	}

	now := m.now()
	s := &models.WalletSession{
		SessionID:  sessionID,
		PairingURI: p.URI,
		Topic:      p.Topic,
		Status:     models.SessionPending,
		CreatedAt:  now,
		UpdatedAt:  now,
		ExpiresAt:  now.Add(m.ttl),
	}
	if err := m.db.WithContext(ctx).Create(s).Error; err != nil {
		if errors.Is(err, gorm.ErrDuplicatedKey) || strings.Contains(err.Error(), "UNIQUE constraint failed") {
			return nil, apperrors.Newf(apperrors.KindInvalidRequest, "session %s already exists", sessionID)
		}
		return nil, fmt.Errorf("persist session: %w", err)
	}

	m.logger.WithFields(logrus.Fields{
		"session_id": sessionID,
		"expires_at": s.ExpiresAt,
	}).Info("Wallet session created")
	return s, nil
}

// pair asks the relay for a topic, retrying with exponential backoff.
func (m *Manager) pair(ctx context.Context, sessionID string) (*pairing.Pairing, error) {
	backoff := m.pairBackoff
	var lastErr error
	for attempt := 1; attempt <= m.pairAttempts; attempt++ {
		p, err := m.relay.Pair(ctx, sessionID)
		if err == nil {
			return p, nil
		}
		lastErr = err
		m.logger.WithError(err).WithFields(logrus.Fields{
			"session_id": sessionID,
			"attempt":    attempt,
		}).Warn("Pairing request failed")

		if attempt == m.pairAttempts {
			break
		}
		select {
		case <-ctx.Done():
			return nil, apperrors.Wrap(apperrors.KindSessionCreation, ctx.Err(), "pairing interrupted")
		case <-time.After(backoff):
		}
		backoff *= 2
	}
	return nil, apperrors.Wrap(apperrors.KindSessionCreation, lastErr, "pairing service unreachable")
}

// Get returns the session, expiring it first if it is pending past its
// expiry.
func (m *Manager) Get(ctx context.Context, sessionID string) (*models.WalletSession, error) {
	s, err := m.load(ctx, sessionID)
	if err != nil {
		return nil, err
	}
	if s.Status == models.SessionPending && !m.now().Before(s.ExpiresAt) {
		if _, err := m.setStatus(ctx, sessionID, models.SessionPending, models.SessionExpired); err != nil {
			return nil, err
		}
		return m.load(ctx, sessionID)
	}
	return s, nil
}

func (m *Manager) load(ctx context.Context, sessionID string) (*models.WalletSession, error) {
	var s models.WalletSession
	err := m.db.WithContext(ctx).Where("session_id = ?", sessionID).First(&s).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("load session: %w", err)
	}
	return &s, nil
}

// Connected returns the wallet address of a connected session.
func (m *Manager) Connected(ctx context.Context, sessionID string) (string, error) {
	s, err := m.Get(ctx, sessionID)
	if err != nil {
		if errors.Is(err, ErrNotFound) {
			return "", apperrors.Newf(apperrors.KindSessionNotConnected, "unknown session %s", sessionID)
		}
		return "", err
	}
	return addressOf(s)
}

func addressOf(s *models.WalletSession) (string, error) {
	switch s.Status {
	case models.SessionConnected:
		if s.WalletAddress == nil {
			return "", fmt.Errorf("session %s connected without wallet address", s.SessionID)
		}
		return *s.WalletAddress, nil
	case models.SessionExpired:
		return "", apperrors.New(apperrors.KindSessionExpired, "")
	case models.SessionTerminated:
		return "", apperrors.New(apperrors.KindSessionNotConnected, "session terminated")
	default:
		return "", apperrors.New(apperrors.KindSessionNotConnected, "")
	}
}

// AwaitConnection blocks until the wallet approves the pairing, the wallet
// rejects it, timeout elapses or ctx is done. Waiters on the same session
// run one at a time.
func (m *Manager) AwaitConnection(ctx context.Context, sessionID string, timeout time.Duration) (string, error) {
	release, err := m.locks.Lock(ctx, sessionID)
	if err != nil {
		return "", apperrors.Wrap(apperrors.KindCancelled, err, "waiting for session")
	}
	defer release()

	s, err := m.Get(ctx, sessionID)
	if err != nil {
		return "", err
	}
	if s.Status != models.SessionPending {
		return addressOf(s)
	}

	waitCtx, cancel := context.WithCancel(ctx)
	defer cancel()
	m.registerWaiter(sessionID, cancel)
	defer m.unregisterWaiter(sessionID)

	sub, err := m.relay.Subscribe(waitCtx, sessionID)
	if err != nil {
		return "", apperrors.Wrap(apperrors.KindSessionCreation, err, "subscribe to wallet channel")
	}
	defer sub.Close()

	// An approval may have been persisted between Get and Subscribe.
	if s, err = m.Get(ctx, sessionID); err != nil {
		return "", err
	}
	if s.Status != models.SessionPending {
		return addressOf(s)
	}

	wait := timeout
	if untilExpiry := s.ExpiresAt.Sub(m.now()); wait <= 0 || untilExpiry < wait {
		wait = untilExpiry
	}
	timer := time.NewTimer(wait)
	defer timer.Stop()

	log := m.logger.WithField("session_id", sessionID)
	for {
		select {
		case env, ok := <-sub.Events():
			if !ok {
				return "", apperrors.New(apperrors.KindSessionNotConnected, "wallet channel closed")
			}
			switch env.Type {
			case pairing.PairApproved:
				if err := m.markConnected(ctx, sessionID, env.WalletAddress); err != nil {
					log.WithError(err).Warn("Ignoring pairing approval")
					continue
				}
				log.WithField("wallet", env.WalletAddress).Info("Wallet connected")
				return env.WalletAddress, nil
			case pairing.PairRejected:
				if _, err := m.setStatus(ctx, sessionID, models.SessionPending, models.SessionTerminated); err != nil {
					return "", err
				}
				log.Info("Pairing rejected in wallet")
				return "", apperrors.New(apperrors.KindSessionNotConnected, "pairing rejected in wallet")
			}

		case <-timer.C:
			if _, err := m.setStatus(ctx, sessionID, models.SessionPending, models.SessionExpired); err != nil {
				return "", err
			}
			// the CAS may have lost to a concurrent approval
			s, err := m.load(ctx, sessionID)
			if err != nil {
				return "", err
			}
			if s.Status == models.SessionConnected {
				return addressOf(s)
			}
			log.Info("Pairing timed out")
			return "", apperrors.New(apperrors.KindSessionExpired, "wallet did not approve pairing in time")

		case <-waitCtx.Done():
			s, err := m.load(context.WithoutCancel(ctx), sessionID)
			if err == nil && s.Status != models.SessionPending {
				return addressOf(s)
			}
			return "", apperrors.Wrap(apperrors.KindCancelled, waitCtx.Err(), "stopped waiting for wallet")
		}
	}
}

func (m *Manager) registerWaiter(sessionID string, cancel context.CancelFunc) {
	m.mu.Lock()
	m.waiters[sessionID] = cancel
	m.mu.Unlock()
}

func (m *Manager) unregisterWaiter(sessionID string) {
	m.mu.Lock()
	delete(m.waiters, sessionID)
	m.mu.Unlock()
}

// AttachSigning lets Terminate withdraw signature requests still waiting on
// the session.
func (m *Manager) AttachSigning(c SigningCanceller) {
	m.mu.Lock()
	m.signing = c
	m.mu.Unlock()
}

// Terminate moves the session to terminated, wakes any pairing waiter and
// withdraws a pending signature request. It is a no-op for sessions already
// expired or terminated.
func (m *Manager) Terminate(ctx context.Context, sessionID string) error {
	s, err := m.load(ctx, sessionID)
	if err != nil {
		return err
	}
	if !s.Status.IsFinal() {
		res := m.db.WithContext(ctx).Model(&models.WalletSession{}).
			Where("session_id = ? AND status IN ?", sessionID,
				[]models.SessionStatus{models.SessionPending, models.SessionConnected}).
			Updates(map[string]interface{}{
				"status":         models.SessionTerminated,
				"wallet_address": gorm.Expr("NULL"),
				"updated_at":     m.now(),
			})
		if res.Error != nil {
			return fmt.Errorf("terminate session: %w", res.Error)
		}
		if res.RowsAffected > 0 {
			m.logger.WithField("session_id", sessionID).Info("Wallet session terminated")
		}
	}

	m.mu.Lock()
	cancel := m.waiters[sessionID]
	signer := m.signing
	m.mu.Unlock()
	if cancel != nil {
		cancel()
	}
	if signer != nil {
		signer.CancelSession(sessionID)
	}
	return nil
}

// ExpireStale expires every pending session past its expiry and returns how
// many were changed.
func (m *Manager) ExpireStale(ctx context.Context) (int64, error) {
	res := m.db.WithContext(ctx).Model(&models.WalletSession{}).
		Where("status = ? AND expires_at <= ?", models.SessionPending, m.now()).
		Updates(map[string]interface{}{
			"status":     models.SessionExpired,
			"updated_at": m.now(),
		})
	if res.Error != nil {
		return 0, fmt.Errorf("expire sessions: %w", res.Error)
	}
	return res.RowsAffected, nil
}

// HandleWalletEvent is the ingress for messages a wallet sends through an
// HTTP callback. Pairing outcomes are persisted before being relayed.
func (m *Manager) HandleWalletEvent(ctx context.Context, env *pairing.Envelope) error {
	if env == nil || !env.Type.FromWallet() {
		return apperrors.New(apperrors.KindInvalidRequest, "unsupported wallet event")
	}

	switch env.Type {
	case pairing.PairApproved:
		if err := m.markConnected(ctx, env.SessionID, env.WalletAddress); err != nil {
			return err
		}
	case pairing.PairRejected:
		s, err := m.Get(ctx, env.SessionID)
		if err != nil {
			return err
		}
		if s.Status == models.SessionPending {
			if _, err := m.setStatus(ctx, env.SessionID, models.SessionPending, models.SessionTerminated); err != nil {
				return err
			}
		}
	default:
		if _, err := m.Connected(ctx, env.SessionID); err != nil {
			return err
		}
	}

	if err := m.relay.Deliver(ctx, env.SessionID, env); err != nil {
		return fmt.Errorf("relay wallet event: %w", err)
	}
	return nil
}

// markConnected records the approval. A repeated approval for the same
// address is accepted.
func (m *Manager) markConnected(ctx context.Context, sessionID, address string) error {
	if _, err := solana.PublicKeyFromBase58(address); err != nil {
		return apperrors.New(apperrors.KindInvalidRequest, "invalid wallet address")
	}

	s, err := m.Get(ctx, sessionID)
	if err != nil {
		return err
	}
	if s.Status != models.SessionPending {
		return pairedWith(s, address)
	}

	res := m.db.WithContext(ctx).Model(&models.WalletSession{}).
		Where("session_id = ? AND status = ?", sessionID, models.SessionPending).
		Updates(map[string]interface{}{
			"status":         models.SessionConnected,
			"wallet_address": address,
			"updated_at":     m.now(),
		})
	if res.Error != nil {
		return fmt.Errorf("connect session: %w", res.Error)
	}
	if res.RowsAffected > 0 {
		return nil
	}

	// lost the CAS; read the winner
	if s, err = m.load(ctx, sessionID); err != nil {
		return err
	}
	return pairedWith(s, address)
}

// pairedWith returns nil when s is connected to address.
func pairedWith(s *models.WalletSession, address string) error {
	got, err := addressOf(s)
	if err != nil {
		return err
	}
	if got != address {
		return apperrors.New(apperrors.KindInvalidRequest, "session already paired with another wallet")
	}
	return nil
}

func (m *Manager) setStatus(ctx context.Context, sessionID string, from, to models.SessionStatus) (bool, error) {
	res := m.db.WithContext(ctx).Model(&models.WalletSession{}).
		Where("session_id = ? AND status = ?", sessionID, from).
		Updates(map[string]interface{}{
			"status":     to,
			"updated_at": m.now(),
		})
	if res.Error != nil {
		return false, fmt.Errorf("update session status: %w", res.Error)
	}
	return res.RowsAffected > 0, nil
}
