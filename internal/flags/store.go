package flags

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"regexp"
	"sort"
	"time"

	"github.com/redis/go-redis/v9"
)

// All switches share one hash, so a read of every flag is a single HGETALL
// and a write never leaves an index out of step with its value.
const hashKey = "deposit:flags"

var keyRe = regexp.MustCompile(`^[a-zA-Z0-9._-]{1,128}$`)

// Store keeps operator switches in Redis.
type Store struct {
	client redis.Cmdable
}

func NewStore(client redis.Cmdable) (*Store, error) {
	if client == nil {
		return nil, fmt.Errorf("redis client is nil")
	}
	return &Store{client: client}, nil
}

func ValidateKey(key string) error {
	if !keyRe.MatchString(key) {
		return fmt.Errorf("invalid flag key %q", key)
	}
	return nil
}

func (s *Store) Upsert(ctx context.Context, key string, value bool) (*Flag, error) {
	if err := ValidateKey(key); err != nil {
		return nil, err
	}
	f := &Flag{Key: key, Value: value, UpdatedAt: time.Now().UTC()}
	b, err := json.Marshal(f)
	if err != nil {
		return nil, fmt.Errorf("marshal flag: %w", err)
	}
	if err := s.client.HSet(ctx, hashKey, key, b).Err(); err != nil {
		return nil, fmt.Errorf("upsert flag %s: %w", key, err)
	}
	return f, nil
}

func (s *Store) Get(ctx context.Context, key string) (*Flag, error) {
	if err := ValidateKey(key); err != nil {
		return nil, err
	}
	raw, err := s.client.HGet(ctx, hashKey, key).Result()
	if errors.Is(err, redis.Nil) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("get flag %s: %w", key, err)
	}
	return decode(raw)
}

// Enabled reads a switch; an unset key is off.
func (s *Store) Enabled(ctx context.Context, key string) (bool, error) {
	f, err := s.Get(ctx, key)
	if errors.Is(err, ErrNotFound) {
		return false, nil
	}
	if err != nil {
		return false, err
	}
	return f.Value, nil
}

// List returns every switch ordered by key. Entries that fail to decode are
// skipped.
func (s *Store) List(ctx context.Context) ([]*Flag, error) {
	all, err := s.client.HGetAll(ctx, hashKey).Result()
	if err != nil {
		return nil, fmt.Errorf("list flags: %w", err)
	}
	out := make([]*Flag, 0, len(all))
	for _, raw := range all {
		f, err := decode(raw)
		if err != nil {
			continue
		}
		out = append(out, f)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Key < out[j].Key })
	return out, nil
}

func (s *Store) Delete(ctx context.Context, key string) error {
	if err := ValidateKey(key); err != nil {
		return err
	}
	if err := s.client.HDel(ctx, hashKey, key).Err(); err != nil {
		return fmt.Errorf("delete flag %s: %w", key, err)
	}
	return nil
}

func decode(raw string) (*Flag, error) {
	var f Flag
	if err := json.Unmarshal([]byte(raw), &f); err != nil {
		return nil, fmt.Errorf("unmarshal flag: %w", err)
	}
	return &f, nil
}
