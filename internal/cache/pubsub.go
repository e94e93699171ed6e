package cache

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/gbsoe/FiLotV2-sub001/internal/constants"
	"github.com/gbsoe/FiLotV2-sub001/internal/models"
)

// PublishAttempt publishes to the user and global channels and prepends to
// the user's recent list in one pipeline.
func (r *RedisCache) PublishAttempt(ctx context.Context, ev *models.AttemptEvent) error {
	data, err := json.Marshal(ev)
	if err != nil {
		return err
	}

	channels := []string{
		constants.PubSubChannelAttempts,
		userChannel(ev.UserID),
	}

	pipe := r.client.Pipeline()
	for _, channel := range channels {
		pipe.Publish(ctx, channel, data)
	}
	pipe.LPush(ctx, recentKey(ev.UserID), data)
	pipe.LTrim(ctx, recentKey(ev.UserID), 0, constants.MaxRecentAttempts-1)

	if _, err := pipe.Exec(ctx); err != nil {
		return fmt.Errorf("publish attempt: %w", err)
	}
	return nil
}

// SubscribeAttempts streams events until ctx is done. The subscription is
// confirmed before returning.
func (r *RedisCache) SubscribeAttempts(ctx context.Context, userID string) (<-chan *models.AttemptEvent, error) {
	channel := constants.PubSubChannelAttempts
	if userID != "" {
		channel = userChannel(userID)
	}

	pubsub := r.client.Subscribe(ctx, channel)
	if _, err := pubsub.Receive(ctx); err != nil {
		_ = pubsub.Close()
		return nil, fmt.Errorf("subscribe %s: %w", channel, err)
	}

	r.logger.WithField("channel", channel).Info("Subscribed to attempt events")

	out := make(chan *models.AttemptEvent, 16)
	go func() {
		defer close(out)
		defer pubsub.Close()

		ch := pubsub.Channel()
		for {
			select {
			case <-ctx.Done():
				return
			case msg, ok := <-ch:
				if !ok {
					return
				}
				var ev models.AttemptEvent
				if err := json.Unmarshal([]byte(msg.Payload), &ev); err != nil {
					r.logger.WithError(err).Warn("Error unmarshaling attempt event")
					continue
				}
				select {
				case out <- &ev:
				case <-ctx.Done():
					return
				}
			}
		}
	}()
	return out, nil
}
