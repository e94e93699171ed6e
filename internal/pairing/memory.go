package pairing

import (
	"context"
	"sync"
)

const subscriptionBuffer = 32

// MemoryRelay is an in-process Relay for tests and single-binary dev runs.
type MemoryRelay struct {
	mu       sync.Mutex
	subs     map[string]map[*memorySub]struct{}
	relayURL string
	closed   bool
}

func NewMemoryRelay(relayURL string) *MemoryRelay {
	return &MemoryRelay{
		subs:     make(map[string]map[*memorySub]struct{}),
		relayURL: relayURL,
	}
}

type memorySub struct {
	relay   *MemoryRelay
	channel string
	ch      chan *Envelope
	done    chan struct{}
	once    sync.Once
}

func (s *memorySub) Events() <-chan *Envelope { return s.ch }

func (s *memorySub) Close() error {
	s.once.Do(func() {
		s.relay.mu.Lock()
		delete(s.relay.subs[s.channel], s)
		if len(s.relay.subs[s.channel]) == 0 {
			delete(s.relay.subs, s.channel)
		}
		s.relay.mu.Unlock()
		close(s.done)
	})
	return nil
}

func (r *MemoryRelay) Pair(_ context.Context, _ string) (*Pairing, error) {
	r.mu.Lock()
	closed := r.closed
	r.mu.Unlock()
	if closed {
		return nil, ErrClosed
	}
	return newPairing(r.relayURL)
}

func (r *MemoryRelay) Publish(ctx context.Context, sessionID string, env *Envelope) error {
	return r.send(ctx, toWalletChannel(sessionID), env)
}

func (r *MemoryRelay) Deliver(ctx context.Context, sessionID string, env *Envelope) error {
	return r.send(ctx, fromWalletChannel(sessionID), env)
}

func (r *MemoryRelay) Subscribe(_ context.Context, sessionID string) (Subscription, error) {
	return r.subscribe(fromWalletChannel(sessionID))
}

func (r *MemoryRelay) SubscribeRequests(_ context.Context, sessionID string) (Subscription, error) {
	return r.subscribe(toWalletChannel(sessionID))
}

func (r *MemoryRelay) subscribe(channel string) (Subscription, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.closed {
		return nil, ErrClosed
	}
	s := &memorySub{
		relay:   r,
		channel: channel,
		ch:      make(chan *Envelope, subscriptionBuffer),
		done:    make(chan struct{}),
	}
	if r.subs[channel] == nil {
		r.subs[channel] = make(map[*memorySub]struct{})
	}
	r.subs[channel][s] = struct{}{}
	return s, nil
}

// send fans env out to every current subscriber of channel. With no
// subscriber the message is dropped, like Redis pub/sub.
func (r *MemoryRelay) send(ctx context.Context, channel string, env *Envelope) error {
	r.mu.Lock()
	if r.closed {
		r.mu.Unlock()
		return ErrClosed
	}
	targets := make([]*memorySub, 0, len(r.subs[channel]))
	for s := range r.subs[channel] {
		targets = append(targets, s)
	}
	r.mu.Unlock()

	for _, s := range targets {
		cp := *env
		select {
		case s.ch <- &cp:
		case <-s.done:
		case <-ctx.Done():
			return ctx.Err()
		}
	}
	return nil
}

func (r *MemoryRelay) Close() error {
	r.mu.Lock()
	if r.closed {
		r.mu.Unlock()
		return nil
	}
	r.closed = true
	var all []*memorySub
	for _, set := range r.subs {
		for s := range set {
			all = append(all, s)
		}
	}
	r.mu.Unlock()

	for _, s := range all {
		_ = s.Close()
	}
	return nil
}
