// Package pairing carries messages between this service and an external
// wallet. Each session has two channels: one toward the wallet (pairing
// acknowledgements, sign requests, cancellations) and one from it
// (approvals, signed payloads, rejections).
package pairing

import (
	"context"
	"crypto/rand"
	"encoding/hex"
	"errors"
	"fmt"
	"net/url"

	"github.com/gbsoe/FiLotV2-sub001/internal/constants"
	"github.com/gbsoe/FiLotV2-sub001/internal/models"
)

type MessageType string

const (
	PairApproved  MessageType = "pair_approved"
	PairRejected  MessageType = "pair_rejected"
	SignRequest   MessageType = "sign_request"
	SignResult    MessageType = "sign_result"
	SignRejected  MessageType = "sign_rejected"
	SignCancelled MessageType = "sign_cancelled"
)

// FromWallet reports whether t only ever travels wallet -> service.
func (t MessageType) FromWallet() bool {
	switch t {
	case PairApproved, PairRejected, SignResult, SignRejected:
		return true
	}
	return false
}

var ErrClosed = errors.New("relay closed")

// Envelope is the JSON message exchanged on both channels. Payload is a
// base64 encoded transaction.
type Envelope struct {
	Type          MessageType            `json:"type" validate:"required,oneof=pair_approved pair_rejected sign_request sign_result sign_rejected sign_cancelled"`
	SessionID     string                 `json:"session_id" validate:"required,max=64"`
	RequestID     string                 `json:"request_id,omitempty" validate:"max=64"`
	WalletAddress string                 `json:"wallet_address,omitempty" validate:"max=64"`
	Payload       string                 `json:"payload,omitempty"`
	Summary       *models.DepositSummary `json:"summary,omitempty"`
	Reason        string                 `json:"reason,omitempty" validate:"max=256"`
}

// Pairing is what a wallet needs to join a session.
type Pairing struct {
	Topic  string
	SymKey string
	URI    string
}

// Subscription yields envelopes until closed.
type Subscription interface {
	Events() <-chan *Envelope
	Close() error
}

// Relay moves envelopes between the service and one wallet per session.
type Relay interface {
	// Pair registers a new topic for sessionID.
	Pair(ctx context.Context, sessionID string) (*Pairing, error)
	// Publish sends env toward the wallet.
	Publish(ctx context.Context, sessionID string, env *Envelope) error
	// Subscribe observes messages coming from the wallet. Messages
	// delivered before Subscribe returns are not replayed.
	Subscribe(ctx context.Context, sessionID string) (Subscription, error)
	// Deliver injects a wallet message, e.g. from an HTTP callback.
	Deliver(ctx context.Context, sessionID string, env *Envelope) error
	// SubscribeRequests is the wallet-side view of Publish.
	SubscribeRequests(ctx context.Context, sessionID string) (Subscription, error)
	Close() error
}

func toWalletChannel(sessionID string) string {
	return constants.RelayChannelPrefix + sessionID + constants.RelayToWalletSuffix
}

func fromWalletChannel(sessionID string) string {
	return constants.RelayChannelPrefix + sessionID + constants.RelayFromWalletSuffix
}

// newPairing generates a random topic and symmetric key and renders them as
// a WalletConnect v2 style URI.
func newPairing(relayURL string) (*Pairing, error) {
	topic, err := randomHex(32)
	if err != nil {
		return nil, err
	}
	key, err := randomHex(32)
	if err != nil {
		return nil, err
	}

	q := url.Values{}
	q.Set("relay-protocol", "irn")
	q.Set("symKey", key)
	if relayURL != "" {
		q.Set("relay-url", relayURL)
	}
	return &Pairing{
		Topic:  topic,
		SymKey: key,
		URI:    fmt.Sprintf("wc:%s@2?%s", topic, q.Encode()),
	}, nil
}

func randomHex(n int) (string, error) {
	b := make([]byte, n)
	if _, err := rand.Read(b); err != nil {
		return "", fmt.Errorf("generate random bytes: %w", err)
	}
	return hex.EncodeToString(b), nil
}
