package lock

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"
	"github.com/sirupsen/logrus"

	"github.com/gbsoe/FiLotV2-sub001/internal/constants"
)

// releaseScript deletes the key only if it still holds our token.
var releaseScript = redis.NewScript(`
if redis.call("GET", KEYS[1]) == ARGV[1] then
	return redis.call("DEL", KEYS[1])
end
return 0
`)

// RedisLocker is a Locker shared by every replica pointing at the same
// Redis. Keys expire after ttl so a crashed holder cannot wedge a session.
type RedisLocker struct {
	client redis.Cmdable
	ttl    time.Duration
	logger *logrus.Logger
}

func NewRedisLocker(client redis.Cmdable, ttl time.Duration, logger *logrus.Logger) (*RedisLocker, error) {
	if client == nil {
		return nil, fmt.Errorf("redis client is nil")
	}
	if ttl <= 0 {
		ttl = constants.LockTTL
	}
	if logger == nil {
		logger = logrus.New()
	}
	return &RedisLocker{client: client, ttl: ttl, logger: logger}, nil
}

// TryLock implements Locker with SET NX PX.
func (r *RedisLocker) TryLock(ctx context.Context, key string) (Release, bool, error) {
	redisKey := constants.RedisKeyLockPrefix + key
	token := uuid.NewString()

	ok, err := r.client.SetNX(ctx, redisKey, token, r.ttl).Result()
	if err != nil {
		return nil, false, fmt.Errorf("acquire lock %s: %w", key, err)
	}
	if !ok {
		return nil, false, nil
	}

	var once sync.Once
	return func() {
		once.Do(func() {
			// ctx may already be cancelled on the exit path
			rctx, cancel := context.WithTimeout(context.WithoutCancel(ctx), 2*time.Second)
			defer cancel()
			if err := releaseScript.Run(rctx, r.client, []string{redisKey}, token).Err(); err != nil {
				r.logger.WithError(err).WithField("key", key).Warn("Failed to release lock")
			}
		})
	}, true, nil
}
