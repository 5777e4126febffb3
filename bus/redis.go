package bus

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/redis/go-redis/v9"
)

// RedisBus implements Bus over Redis pub/sub, grounded on the same
// go-redis Publish/Subscribe pairing the fabric's queue client uses for
// work-item results. A pattern ending in "#" is translated to a Redis
// PSubscribe glob ("#" -> "*") so the bus's wildcard semantics map onto
// Redis's native pattern matching instead of being emulated client-side.
type RedisBus struct {
	client *redis.Client

	mu   sync.Mutex
	subs map[int]*redisSubscription
	next int
}

type redisSubscription struct {
	pubsub *redis.PubSub
	cancel context.CancelFunc
}

// RedisBusOptions configures the Redis connection backing a RedisBus.
type RedisBusOptions struct {
	URL            string
	ConnectTimeout time.Duration
}

// NewRedisBus dials Redis and verifies connectivity before returning.
func NewRedisBus(opts RedisBusOptions) (*RedisBus, error) {
	if opts.URL == "" {
		opts.URL = "redis://localhost:6379"
	}
	if opts.ConnectTimeout == 0 {
		opts.ConnectTimeout = 5 * time.Second
	}

	redisOpts, err := redis.ParseURL(opts.URL)
	if err != nil {
		return nil, fmt.Errorf("bus: parse redis url: %w", err)
	}
	redisOpts.DialTimeout = opts.ConnectTimeout

	client := redis.NewClient(redisOpts)

	ctx, cancel := context.WithTimeout(context.Background(), opts.ConnectTimeout)
	defer cancel()
	if err := client.Ping(ctx).Err(); err != nil {
		return nil, fmt.Errorf("bus: connect to redis: %w", err)
	}

	return &RedisBus{client: client, subs: make(map[int]*redisSubscription)}, nil
}

// NewRedisBusFromClient wraps an already-constructed go-redis client,
// primarily so tests can point the bus at a miniredis instance.
func NewRedisBusFromClient(client *redis.Client) *RedisBus {
	return &RedisBus{client: client, subs: make(map[int]*redisSubscription)}
}

type wireMessage struct {
	Payload map[string]any    `json:"payload"`
	Headers map[string]string `json:"headers,omitempty"`
}

// Publish marshals payload+headers and publishes to the Redis channel
// named by topic.
func (b *RedisBus) Publish(ctx context.Context, topic string, payload map[string]any, headers map[string]string) error {
	data, err := json.Marshal(wireMessage{Payload: payload, Headers: headers})
	if err != nil {
		return fmt.Errorf("bus: marshal message: %w", err)
	}
	if err := b.client.Publish(ctx, topic, data).Err(); err != nil {
		return fmt.Errorf("bus: publish to %s: %w", topic, err)
	}
	return nil
}

// Subscribe opens a Redis PSubscribe on the glob translation of pattern and
// dispatches decoded messages to handler until the returned unsubscribe
// func is called or ctx is cancelled.
func (b *RedisBus) Subscribe(ctx context.Context, pattern string, handler Handler) (func() error, error) {
	glob := toRedisGlob(pattern)
	pubsub := b.client.PSubscribe(ctx, glob)

	if _, err := pubsub.Receive(ctx); err != nil {
		pubsub.Close()
		return nil, fmt.Errorf("bus: subscribe to %s: %w", pattern, err)
	}

	subCtx, cancel := context.WithCancel(ctx)

	b.mu.Lock()
	id := b.next
	b.next++
	b.subs[id] = &redisSubscription{pubsub: pubsub, cancel: cancel}
	b.mu.Unlock()

	go func() {
		ch := pubsub.Channel()
		for {
			select {
			case <-subCtx.Done():
				return
			case msg, ok := <-ch:
				if !ok {
					return
				}
				var wire wireMessage
				if err := json.Unmarshal([]byte(msg.Payload), &wire); err != nil {
					continue
				}
				handler(subCtx, msg.Channel, wire.Payload)
			}
		}
	}()

	unsubscribe := func() error {
		b.mu.Lock()
		sub, ok := b.subs[id]
		delete(b.subs, id)
		b.mu.Unlock()
		if !ok {
			return nil
		}
		sub.cancel()
		return sub.pubsub.Close()
	}

	return unsubscribe, nil
}

// Close cancels every active subscription and closes the Redis client.
func (b *RedisBus) Close() error {
	b.mu.Lock()
	subs := b.subs
	b.subs = make(map[int]*redisSubscription)
	b.mu.Unlock()

	for _, sub := range subs {
		sub.cancel()
		sub.pubsub.Close()
	}
	return b.client.Close()
}

func toRedisGlob(pattern string) string {
	if strings.HasSuffix(pattern, "#") {
		return strings.TrimSuffix(pattern, "#") + "*"
	}
	return pattern
}
