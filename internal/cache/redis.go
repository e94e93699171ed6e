package cache

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/redis/go-redis/v9"
	"github.com/sirupsen/logrus"

	"github.com/gbsoe/FiLotV2-sub001/internal/constants"
	"github.com/gbsoe/FiLotV2-sub001/internal/models"
)

// RedisCache publishes attempt events and keeps the recent list per user.
type RedisCache struct {
	client *redis.Client
	logger *logrus.Logger
}

func NewRedisCache(client *redis.Client, logger *logrus.Logger) *RedisCache {
	if logger == nil {
		logger = logrus.New()
	}
	return &RedisCache{client: client, logger: logger}
}

func recentKey(userID string) string {
	return constants.RedisKeyRecentAttempts + ":" + userID
}

func userChannel(userID string) string {
	return constants.PubSubUserChannelPrefix + userID
}

func (r *RedisCache) GetRecentAttempts(ctx context.Context, userID string, limit int64) ([]*models.AttemptEvent, error) {
	if limit <= 0 || limit > constants.MaxRecentAttempts {
		limit = constants.MaxRecentAttempts
	}
	vals, err := r.client.LRange(ctx, recentKey(userID), 0, limit-1).Result()
	if err != nil {
		return nil, fmt.Errorf("read recent attempts: %w", err)
	}

	out := make([]*models.AttemptEvent, 0, len(vals))
	for _, v := range vals {
		var ev models.AttemptEvent
		if err := json.Unmarshal([]byte(v), &ev); err != nil {
			r.logger.WithError(err).Warn("Skipping malformed cached attempt")
			continue
		}
		out = append(out, &ev)
	}
	return out, nil
}

func (r *RedisCache) Ping(ctx context.Context) error {
	return r.client.Ping(ctx).Err()
}

func (r *RedisCache) Close() error {
	return r.client.Close()
}
