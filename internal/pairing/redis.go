package pairing

import (
	"context"
	"encoding/json"
	"fmt"
	"sync"
	"time"

	"github.com/redis/go-redis/v9"
	"github.com/sirupsen/logrus"

	"github.com/gbsoe/FiLotV2-sub001/internal/constants"
)

// RedisRelay carries envelopes over Redis pub/sub so that the wallet bridge
// and any API replica can reach the process awaiting a session.
type RedisRelay struct {
	client     *redis.Client
	relayURL   string
	pairingTTL time.Duration
	logger     *logrus.Logger
}

type RedisRelayConfig struct {
	RelayURL   string
	PairingTTL time.Duration
	Logger     *logrus.Logger
}

func NewRedisRelay(client *redis.Client, cfg RedisRelayConfig) (*RedisRelay, error) {
	if client == nil {
		return nil, fmt.Errorf("redis client is nil")
	}
	if cfg.Logger == nil {
		cfg.Logger = logrus.New()
	}
	if cfg.PairingTTL <= 0 {
		cfg.PairingTTL = 5 * time.Minute
	}
	return &RedisRelay{
		client:     client,
		relayURL:   cfg.RelayURL,
		pairingTTL: cfg.PairingTTL,
		logger:     cfg.Logger,
	}, nil
}

// Pair registers topic -> session so that a bridge holding only the URI can
// find the session channels.
func (r *RedisRelay) Pair(ctx context.Context, sessionID string) (*Pairing, error) {
	p, err := newPairing(r.relayURL)
	if err != nil {
		return nil, err
	}
	if err := r.client.Set(ctx, constants.RedisKeyPairingPrefix+p.Topic, sessionID, r.pairingTTL).Err(); err != nil {
		return nil, fmt.Errorf("register pairing topic: %w", err)
	}
	return p, nil
}

// ResolveTopic returns the session registered for topic by Pair.
func (r *RedisRelay) ResolveTopic(ctx context.Context, topic string) (string, error) {
	sid, err := r.client.Get(ctx, constants.RedisKeyPairingPrefix+topic).Result()
	if err == redis.Nil {
		return "", fmt.Errorf("unknown pairing topic")
	}
	if err != nil {
		return "", fmt.Errorf("resolve pairing topic: %w", err)
	}
	return sid, nil
}

func (r *RedisRelay) Publish(ctx context.Context, sessionID string, env *Envelope) error {
	return r.publish(ctx, toWalletChannel(sessionID), env)
}

func (r *RedisRelay) Deliver(ctx context.Context, sessionID string, env *Envelope) error {
	return r.publish(ctx, fromWalletChannel(sessionID), env)
}

func (r *RedisRelay) Subscribe(ctx context.Context, sessionID string) (Subscription, error) {
	return r.subscribe(ctx, fromWalletChannel(sessionID))
}

func (r *RedisRelay) SubscribeRequests(ctx context.Context, sessionID string) (Subscription, error) {
	return r.subscribe(ctx, toWalletChannel(sessionID))
}

// publish retries transient Redis failures a few times with linear backoff.
func (r *RedisRelay) publish(ctx context.Context, channel string, env *Envelope) error {
	data, err := json.Marshal(env)
	if err != nil {
		return fmt.Errorf("marshal envelope: %w", err)
	}

	var lastErr error
	for attempt := 1; attempt <= constants.RelayMaxAttempts; attempt++ {
		lastErr = r.client.Publish(ctx, channel, data).Err()
		if lastErr == nil {
			return nil
		}
		r.logger.WithError(lastErr).WithFields(logrus.Fields{
			"channel": channel,
			"attempt": attempt,
		}).Warn("Relay publish failed")

		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-time.After(time.Duration(attempt) * constants.RelayRetryBackoff):
		}
	}
	return fmt.Errorf("publish to %s: %w", channel, lastErr)
}

type redisSub struct {
	ps     *redis.PubSub
	events chan *Envelope
	done   chan struct{}
	once   sync.Once
}

func (s *redisSub) Events() <-chan *Envelope { return s.events }

func (s *redisSub) Close() error {
	var err error
	s.once.Do(func() {
		close(s.done)
		err = s.ps.Close()
	})
	return err
}

func (r *RedisRelay) subscribe(ctx context.Context, channel string) (Subscription, error) {
	ps := r.client.Subscribe(ctx, channel)

	// Wait for the subscription confirmation so nothing published after
	// this call returns can be missed.
	if _, err := ps.Receive(ctx); err != nil {
		_ = ps.Close()
		return nil, fmt.Errorf("subscribe %s: %w", channel, err)
	}

	sub := &redisSub{
		ps:     ps,
		events: make(chan *Envelope, subscriptionBuffer),
		done:   make(chan struct{}),
	}
	go func() {
		defer close(sub.events)
		for msg := range ps.Channel() {
			var env Envelope
			if err := json.Unmarshal([]byte(msg.Payload), &env); err != nil {
				r.logger.WithError(err).WithField("channel", channel).Warn("Dropping malformed envelope")
				continue
			}
			select {
			case sub.events <- &env:
			case <-sub.done:
				return
			}
		}
	}()
	return sub, nil
}

// Close is a no-op; the client is owned by the caller.
func (r *RedisRelay) Close() error {
	return nil
}
