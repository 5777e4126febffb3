package kvstore

import (
	"context"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/tekton-fabric/core/errs"
)

// RedisStore is the key-value family's native backend, grounded on the
// same go-redis dial/Ping pattern the message bus uses. Keys are prefixed
// with the adapter's namespace so two namespaces never collide on one
// Redis instance.
type RedisStore struct {
	client    *redis.Client
	namespace string
}

// RedisConfig dials a Redis server for a RedisStore.
type RedisConfig struct {
	URL            string
	ConnectTimeout time.Duration
}

// NewRedisStore dials cfg.URL and verifies connectivity before returning.
// A failed dial or ping returns errs.Unavailable so the Factory falls
// through to the bbolt fallback.
func NewRedisStore(cfg RedisConfig, namespace string) (Store, error) {
	if cfg.URL == "" {
		cfg.URL = "redis://localhost:6379"
	}
	if cfg.ConnectTimeout == 0 {
		cfg.ConnectTimeout = 5 * time.Second
	}

	opts, err := redis.ParseURL(cfg.URL)
	if err != nil {
		return nil, errs.New(component, "dial", errs.InvalidArgument, "parse redis url").WithCause(err)
	}
	opts.DialTimeout = cfg.ConnectTimeout

	client := redis.NewClient(opts)

	ctx, cancel := context.WithTimeout(context.Background(), cfg.ConnectTimeout)
	defer cancel()
	if err := client.Ping(ctx).Err(); err != nil {
		return nil, errs.New(component, "dial", errs.Unavailable, "connect to redis").WithCause(err)
	}

	return &RedisStore{client: client, namespace: namespace}, nil
}

func (s *RedisStore) Namespace() string { return s.namespace }
func (s *RedisStore) Backend() string   { return "redis" }
func (s *RedisStore) Close() error      { return s.client.Close() }

func (s *RedisStore) prefixed(key string) string { return s.namespace + ":" + key }

func (s *RedisStore) Set(key string, value []byte, ttl time.Duration) error {
	if ttl < 0 {
		ttl = 0
	}
	ctx := context.Background()
	if err := s.client.Set(ctx, s.prefixed(key), value, ttl).Err(); err != nil {
		return errs.New(component, "set", errs.Internal, "redis set failed").WithCause(err)
	}
	return nil
}

func (s *RedisStore) Get(key string) ([]byte, bool, error) {
	ctx := context.Background()
	val, err := s.client.Get(ctx, s.prefixed(key)).Bytes()
	if err == redis.Nil {
		return nil, false, nil
	}
	if err != nil {
		return nil, false, errs.New(component, "get", errs.Internal, "redis get failed").WithCause(err)
	}
	return val, true, nil
}

func (s *RedisStore) Delete(key string) error {
	ctx := context.Background()
	if err := s.client.Del(ctx, s.prefixed(key)).Err(); err != nil {
		return errs.New(component, "delete", errs.Internal, "redis del failed").WithCause(err)
	}
	return nil
}

func (s *RedisStore) Exists(key string) (bool, error) {
	ctx := context.Background()
	n, err := s.client.Exists(ctx, s.prefixed(key)).Result()
	if err != nil {
		return false, errs.New(component, "exists", errs.Internal, "redis exists failed").WithCause(err)
	}
	return n > 0, nil
}

func (s *RedisStore) SetBatch(entries map[string][]byte, ttl time.Duration) error {
	if ttl < 0 {
		ttl = 0
	}
	ctx := context.Background()
	pipe := s.client.Pipeline()
	for key, value := range entries {
		pipe.Set(ctx, s.prefixed(key), value, ttl)
	}
	if _, err := pipe.Exec(ctx); err != nil {
		return errs.New(component, "set_batch", errs.Internal, "redis pipeline failed").WithCause(err)
	}
	return nil
}

func (s *RedisStore) GetBatch(keys []string) (map[string][]byte, error) {
	if len(keys) == 0 {
		return map[string][]byte{}, nil
	}
	ctx := context.Background()
	prefixed := make([]string, len(keys))
	for i, key := range keys {
		prefixed[i] = s.prefixed(key)
	}
	vals, err := s.client.MGet(ctx, prefixed...).Result()
	if err != nil {
		return nil, errs.New(component, "get_batch", errs.Internal, "redis mget failed").WithCause(err)
	}
	out := make(map[string][]byte, len(keys))
	for i, v := range vals {
		if v == nil {
			continue
		}
		str, ok := v.(string)
		if !ok {
			continue
		}
		out[keys[i]] = []byte(str)
	}
	return out, nil
}

func (s *RedisStore) DeleteBatch(keys []string) error {
	if len(keys) == 0 {
		return nil
	}
	ctx := context.Background()
	prefixed := make([]string, len(keys))
	for i, key := range keys {
		prefixed[i] = s.prefixed(key)
	}
	if err := s.client.Del(ctx, prefixed...).Err(); err != nil {
		return errs.New(component, "delete_batch", errs.Internal, "redis del failed").WithCause(err)
	}
	return nil
}

func (s *RedisStore) ClearNamespace() error {
	ctx := context.Background()
	var cursor uint64
	pattern := s.prefixed("*")
	for {
		keys, next, err := s.client.Scan(ctx, cursor, pattern, 100).Result()
		if err != nil {
			return errs.New(component, "clear_namespace", errs.Internal, "redis scan failed").WithCause(err)
		}
		if len(keys) > 0 {
			if err := s.client.Del(ctx, keys...).Err(); err != nil {
				return errs.New(component, "clear_namespace", errs.Internal, "redis del failed").WithCause(err)
			}
		}
		cursor = next
		if cursor == 0 {
			break
		}
	}
	return nil
}
