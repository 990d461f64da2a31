package session

import (
	"context"
	"crypto/tls"
	"errors"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"
)

var deleteIfEqualsScript = redis.NewScript(`
if redis.call("GET", KEYS[1]) == ARGV[1] then
	return redis.call("DEL", KEYS[1])
end
return 0
`)

// RedisOptions configures the connection used by RedisStore.
type RedisOptions struct {
	Address   string
	Password  string
	DB        int
	TLSConfig *tls.Config
}

func DefaultRedisOptions() RedisOptions {
	return RedisOptions{
		Address: "localhost:6379",
	}
}

// RedisStore keeps sessions and histories in Redis so every API process sees
// the same state. Session expiry is delegated to Redis key TTLs.
type RedisStore struct {
	client *redis.Client
}

func NewRedisStore(options RedisOptions) *RedisStore {
	client := redis.NewClient(&redis.Options{
		TLSConfig: options.TLSConfig,
		Addr:      options.Address,
		Password:  options.Password,
		DB:        options.DB,
	})
	return &RedisStore{client: client}
}

func (s *RedisStore) Ping(ctx context.Context) error {
	if err := s.client.Ping(ctx).Err(); err != nil {
		return fmt.Errorf("RedisStore.Ping: %w", err)
	}
	return nil
}

func (s *RedisStore) Close() error {
	return s.client.Close()
}

func (s *RedisStore) Get(ctx context.Context, key string) (bool, string, error) {
	v, err := s.client.Get(ctx, key).Result()
	if errors.Is(err, redis.Nil) {
		return false, "", nil
	}
	if err != nil {
		return false, "", fmt.Errorf("RedisStore.Get %s: %w", key, err)
	}
	return true, v, nil
}

func (s *RedisStore) Set(ctx context.Context, key string, value string, ttl time.Duration) error {
	if ttl < 0 {
		ttl = 0
	}
	if err := s.client.Set(ctx, key, value, ttl).Err(); err != nil {
		return fmt.Errorf("RedisStore.Set %s: %w", key, err)
	}
	return nil
}

func (s *RedisStore) Delete(ctx context.Context, key string) (bool, error) {
	n, err := s.client.Del(ctx, key).Result()
	if err != nil {
		return false, fmt.Errorf("RedisStore.Delete %s: %w", key, err)
	}
	return n > 0, nil
}

func (s *RedisStore) DeleteIfEquals(ctx context.Context, key string, value string) (bool, error) {
	n, err := deleteIfEqualsScript.Run(ctx, s.client, []string{key}, value).Int64()
	if err != nil {
		return false, fmt.Errorf("RedisStore.DeleteIfEquals %s: %w", key, err)
	}
	return n > 0, nil
}

func (s *RedisStore) PushCapped(ctx context.Context, key string, value string, limit int) error {
	_, err := s.client.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
		pipe.LPush(ctx, key, value)
		if limit > 0 {
			pipe.LTrim(ctx, key, 0, int64(limit-1))
		}
		return nil
	})
	if err != nil {
		return fmt.Errorf("RedisStore.PushCapped %s: %w", key, err)
	}
	return nil
}

func (s *RedisStore) List(ctx context.Context, key string) ([]string, error) {
	items, err := s.client.LRange(ctx, key, 0, -1).Result()
	if err != nil {
		return nil, fmt.Errorf("RedisStore.List %s: %w", key, err)
	}
	return items, nil
}
