package wallet

import (
	"context"
	"crypto/ed25519"
	"encoding/json"
	"fmt"
	"strings"

	"github.com/gagliardetto/solana-go"
	"github.com/mr-tron/base58"
	"github.com/sirupsen/logrus"

	"github.com/gbsoe/FiLotV2-sub001/internal/pairing"
)

// Mode selects how a LocalSigner answers sign requests.
type Mode int

const (
	ModeSign   Mode = iota // sign and return
	ModeReject             // decline every request
	ModeIgnore             // never answer
)

// Inbox accepts messages from the wallet side.
type Inbox interface {
	HandleWalletEvent(ctx context.Context, env *pairing.Envelope) error
}

// RelayInbox delivers straight onto the relay, skipping persistence.
type RelayInbox struct {
	Relay pairing.Relay
}

func (r RelayInbox) HandleWalletEvent(ctx context.Context, env *pairing.Envelope) error {
	return r.Relay.Deliver(ctx, env.SessionID, env)
}

type SignerConfig struct {
	PrivateKey string // base58-encoded 64-byte key OR solana-keygen JSON array
	Mode       Mode
	Logger     *logrus.Logger
}

// LocalSigner plays the external wallet for development runs and tests: it
// approves pairings and answers sign requests with a local key.
type LocalSigner struct {
	priv   solana.PrivateKey
	pub    solana.PublicKey
	relay  pairing.Relay
	inbox  Inbox
	mode   Mode
	logger *logrus.Logger
}

// NewLocalSigner loads cfg.PrivateKey, or generates a fresh key when empty.
func NewLocalSigner(relay pairing.Relay, inbox Inbox, cfg SignerConfig) (*LocalSigner, error) {
	var priv solana.PrivateKey
	if strings.TrimSpace(cfg.PrivateKey) == "" {
		priv = solana.NewWallet().PrivateKey
	} else {
		var err error
		if priv, err = parsePrivateKey(cfg.PrivateKey); err != nil {
			return nil, err
		}
	}
	if cfg.Logger == nil {
		cfg.Logger = logrus.New()
	}
	if inbox == nil {
		inbox = RelayInbox{Relay: relay}
	}
	return &LocalSigner{
		priv:   priv,
		pub:    priv.PublicKey(),
		relay:  relay,
		inbox:  inbox,
		mode:   cfg.Mode,
		logger: cfg.Logger,
	}, nil
}

func (s *LocalSigner) Address() string             { return s.pub.String() }
func (s *LocalSigner) PublicKey() solana.PublicKey { return s.pub }

// Approve answers the pairing request of sessionID.
func (s *LocalSigner) Approve(ctx context.Context, sessionID string) error {
	return s.inbox.HandleWalletEvent(ctx, &pairing.Envelope{
		Type:          pairing.PairApproved,
		SessionID:     sessionID,
		WalletAddress: s.Address(),
	})
}

// Listen subscribes to sign requests for sessionID and answers them in the
// background until ctx is done. The subscription is live when Listen
// returns.
func (s *LocalSigner) Listen(ctx context.Context, sessionID string) error {
	sub, err := s.relay.SubscribeRequests(ctx, sessionID)
	if err != nil {
		return fmt.Errorf("subscribe sign requests: %w", err)
	}
	go func() {
		defer sub.Close()
		for {
			select {
			case <-ctx.Done():
				return
			case env, ok := <-sub.Events():
				if !ok {
					return
				}
				if env.Type != pairing.SignRequest {
					continue
				}
				if err := s.answer(ctx, env); err != nil {
					s.logger.WithError(err).WithField("request_id", env.RequestID).Warn("Failed to answer sign request")
				}
			}
		}
	}()
	return nil
}

func (s *LocalSigner) answer(ctx context.Context, req *pairing.Envelope) error {
	reply := &pairing.Envelope{
		SessionID:     req.SessionID,
		RequestID:     req.RequestID,
		WalletAddress: s.Address(),
	}

	switch s.mode {
	case ModeIgnore:
		return nil
	case ModeReject:
		reply.Type = pairing.SignRejected
		reply.Reason = "declined by user"
	default:
		tx, err := DecodeTransaction(req.Payload)
		if err != nil {
			return err
		}
		if err := PartialSign(tx, s.priv); err != nil {
			return err
		}
		encoded, err := EncodeTransaction(tx)
		if err != nil {
			return err
		}
		reply.Type = pairing.SignResult
		reply.Payload = encoded
	}

	s.logger.WithFields(logrus.Fields{
		"session_id": req.SessionID,
		"request_id": req.RequestID,
		"reply":      reply.Type,
	}).Debug("Answering sign request")
	return s.inbox.HandleWalletEvent(ctx, reply)
}

func parsePrivateKey(s string) (solana.PrivateKey, error) {
	s = strings.TrimSpace(s)
	if strings.HasPrefix(s, "[") {
		var ints []int
		if err := json.Unmarshal([]byte(s), &ints); err != nil {
			return nil, fmt.Errorf("wallet: invalid JSON private key: %w", err)
		}
		b := make([]byte, len(ints))
		for i, v := range ints {
			if v < 0 || v > 255 {
				return nil, fmt.Errorf("wallet: invalid byte at %d: %d", i, v)
			}
			b[i] = byte(v)
		}
		if len(b) != ed25519.PrivateKeySize {
			return nil, fmt.Errorf("wallet: expected %d bytes, got %d", ed25519.PrivateKeySize, len(b))
		}
		return solana.PrivateKey(ed25519.PrivateKey(b)), nil
	}

	raw, err := base58.Decode(s)
	if err != nil {
		return nil, fmt.Errorf("wallet: invalid base58 private key: %w", err)
	}
	if len(raw) != ed25519.PrivateKeySize {
		return nil, fmt.Errorf("wallet: expected %d bytes, got %d", ed25519.PrivateKeySize, len(raw))
	}
	return solana.PrivateKey(ed25519.PrivateKey(raw)), nil
}
