package store

import (
	"context"
	"time"

	"github.com/pkg/errors"
	"github.com/redis/go-redis/v9"
)

// RedisStore implements Store on a Redis server.
// Get polls the server until the key is set.
type RedisStore struct {
	client       *redis.Client
	prefix       string
	timeout      time.Duration
	pollInterval time.Duration
}

var _ Store = (*RedisStore)(nil)

// RedisOption configures a RedisStore.
type RedisOption func(*RedisStore)

// WithPrefix sets the prefix of all keys in Redis. The default is "collectives:".
func WithPrefix(prefix string) RedisOption {
	return func(s *RedisStore) {
		s.prefix = prefix
	}
}

// WithTimeout sets the maximum time Get waits for a key. The default is DefaultTimeout.
func WithTimeout(timeout time.Duration) RedisOption {
	return func(s *RedisStore) {
		s.timeout = timeout
	}
}

// WithPollInterval sets how often Get polls for a key that is not yet set. The default is 10ms.
func WithPollInterval(interval time.Duration) RedisOption {
	return func(s *RedisStore) {
		s.pollInterval = interval
	}
}

// NewRedisStore connects to the Redis server at address.
func NewRedisStore(address, password string, db int, opts ...RedisOption) *RedisStore {
	client := redis.NewClient(&redis.Options{
		Addr:     address,
		Password: password,
		DB:       db,
	})
	return NewRedisStoreFromClient(client, opts...)
}

// NewRedisStoreFromClient creates a RedisStore from an existing client.
func NewRedisStoreFromClient(client *redis.Client, opts ...RedisOption) *RedisStore {
	s := &RedisStore{
		client:       client,
		prefix:       "collectives:",
		timeout:      DefaultTimeout,
		pollInterval: 10 * time.Millisecond,
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

func (s *RedisStore) key(key string) string {
	return s.prefix + key
}

// Set implements Store.
func (s *RedisStore) Set(ctx context.Context, key string, value []byte) error {
	if err := s.client.Set(ctx, s.key(key), value, 0).Err(); err != nil {
		return errors.Wrapf(err, "RedisStore.Set(%q)", key)
	}
	return nil
}

// Get implements Store.
func (s *RedisStore) Get(ctx context.Context, key string) ([]byte, error) {
	ctx, cancel := withTimeout(ctx, s.timeout)
	defer cancel()
	ticker := time.NewTicker(s.pollInterval)
	defer ticker.Stop()
	for {
		value, err := s.client.Get(ctx, s.key(key)).Bytes()
		if err == nil {
			return value, nil
		}
		if ctx.Err() != nil {
			return nil, waitError(ctx, key, s.timeout)
		}
		if !errors.Is(err, redis.Nil) {
			return nil, errors.Wrapf(err, "RedisStore.Get(%q)", key)
		}
		select {
		case <-ticker.C:
		case <-ctx.Done():
			return nil, waitError(ctx, key, s.timeout)
		}
	}
}

// Add implements Store.
func (s *RedisStore) Add(ctx context.Context, key string, delta int64) (int64, error) {
	value, err := s.client.IncrBy(ctx, s.key(key), delta).Result()
	if err != nil {
		return 0, errors.Wrapf(err, "RedisStore.Add(%q)", key)
	}
	return value, nil
}

// compareSetScript implements CompareSet atomically: ARGV[1] is the expected value, ARGV[2] the desired one.
var compareSetScript = redis.NewScript(`
local current = redis.call("GET", KEYS[1])
if current == false then
	if ARGV[1] == "" then
		redis.call("SET", KEYS[1], ARGV[2])
		return ARGV[2]
	end
	return ARGV[1]
end
if current == ARGV[1] then
	redis.call("SET", KEYS[1], ARGV[2])
	return ARGV[2]
end
return current
`)

// CompareSet implements Store.
func (s *RedisStore) CompareSet(ctx context.Context, key string, expected, desired []byte) ([]byte, error) {
	value, err := compareSetScript.Run(ctx, s.client, []string{s.key(key)}, expected, desired).Text()
	if err != nil {
		return nil, errors.Wrapf(err, "RedisStore.CompareSet(%q)", key)
	}
	return []byte(value), nil
}

// DeleteKey implements Store.
func (s *RedisStore) DeleteKey(ctx context.Context, key string) (bool, error) {
	n, err := s.client.Del(ctx, s.key(key)).Result()
	if err != nil {
		return false, errors.Wrapf(err, "RedisStore.DeleteKey(%q)", key)
	}
	return n > 0, nil
}

// Check implements Store.
func (s *RedisStore) Check(ctx context.Context, keys ...string) (bool, error) {
	if len(keys) == 0 {
		return true, nil
	}
	prefixed := make([]string, len(keys))
	for i, key := range keys {
		prefixed[i] = s.key(key)
	}
	n, err := s.client.Exists(ctx, prefixed...).Result()
	if err != nil {
		return false, errors.Wrapf(err, "RedisStore.Check(%v)", keys)
	}
	return n == int64(len(keys)), nil
}

// NumKeys implements Store. It only counts the keys under the store's prefix.
func (s *RedisStore) NumKeys(ctx context.Context) (int64, error) {
	var count int64
	iter := s.client.Scan(ctx, 0, s.prefix+"*", 100).Iterator()
	for iter.Next(ctx) {
		count++
	}
	if err := iter.Err(); err != nil {
		return 0, errors.Wrap(err, "RedisStore.NumKeys")
	}
	return count, nil
}

// Close closes the Redis client.
func (s *RedisStore) Close() error {
	return s.client.Close()
}
