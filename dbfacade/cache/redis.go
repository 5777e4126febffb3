package cache

import (
	"context"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/tekton-fabric/core/errs"
)

// RedisStore is the cache family's networked variant, selected when an
// external cache is configured (spec §4.4 step 2: "Cache: always in-memory
// unless an external cache is configured"). It reuses the same go-redis
// client the key-value family's native backend and the message bus dial
// against.
type RedisStore struct {
	client    *redis.Client
	namespace string
}

// RedisConfig dials a Redis server for a cache RedisStore.
type RedisConfig struct {
	URL            string
	ConnectTimeout time.Duration
}

// NewRedisStore dials cfg.URL and verifies connectivity before returning.
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

func (s *RedisStore) Flush() error {
	ctx := context.Background()
	var cursor uint64
	pattern := s.prefixed("*")
	for {
		keys, next, err := s.client.Scan(ctx, cursor, pattern, 100).Result()
		if err != nil {
			return errs.New(component, "flush", errs.Internal, "redis scan failed").WithCause(err)
		}
		if len(keys) > 0 {
			if err := s.client.Del(ctx, keys...).Err(); err != nil {
				return errs.New(component, "flush", errs.Internal, "redis del failed").WithCause(err)
			}
		}
		cursor = next
		if cursor == 0 {
			break
		}
	}
	return nil
}

func (s *RedisStore) Touch(key string, ttl time.Duration) (bool, error) {
	ctx := context.Background()
	if ttl <= 0 {
		n, err := s.client.Exists(ctx, s.prefixed(key)).Result()
		if err == nil && n > 0 {
			err = s.client.Persist(ctx, s.prefixed(key)).Err()
		}
		if err != nil {
			return false, errs.New(component, "touch", errs.Internal, "redis persist failed").WithCause(err)
		}
		return n > 0, nil
	}
	ok, err := s.client.Expire(ctx, s.prefixed(key), ttl).Result()
	if err != nil {
		return false, errs.New(component, "touch", errs.Internal, "redis expire failed").WithCause(err)
	}
	return ok, nil
}
