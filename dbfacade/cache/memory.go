package cache

import (
	"time"

	lru "github.com/hashicorp/golang-lru/v2"
)

// entry pairs a cached value with its expiry; the LRU library owns
// eviction order, this adapter owns TTL semantics on top of it.
type entry struct {
	value     []byte
	expiresAt time.Time // zero means no expiry
}

// MemoryStore is the cache family's default backend: an in-process LRU
// (spec §4.4 says cache is always in-memory unless an external cache is
// configured) grounded on hashicorp/golang-lru, the same eviction library
// the pack's notification/publishing paths use for formatter caching.
type MemoryStore struct {
	namespace string
	lru       *lru.Cache[string, entry]
}

// DefaultCapacity bounds the LRU when the caller doesn't specify one.
const DefaultCapacity = 10_000

// NewMemoryStore constructs an in-process LRU cache holding up to
// capacity entries (DefaultCapacity if capacity <= 0).
func NewMemoryStore(namespace string, capacity int) (Store, error) {
	if capacity <= 0 {
		capacity = DefaultCapacity
	}
	c, err := lru.New[string, entry](capacity)
	if err != nil {
		return nil, err
	}
	return &MemoryStore{namespace: namespace, lru: c}, nil
}

func (s *MemoryStore) Namespace() string { return s.namespace }
func (s *MemoryStore) Backend() string   { return "memory" }
func (s *MemoryStore) Close() error      { return nil }

func (s *MemoryStore) Set(key string, value []byte, ttl time.Duration) error {
	e := entry{value: value}
	if ttl > 0 {
		e.expiresAt = time.Now().Add(ttl)
	}
	s.lru.Add(key, e)
	return nil
}

func (s *MemoryStore) Get(key string) ([]byte, bool, error) {
	e, ok := s.lru.Get(key)
	if !ok {
		return nil, false, nil
	}
	if !e.expiresAt.IsZero() && time.Now().After(e.expiresAt) {
		s.lru.Remove(key)
		return nil, false, nil
	}
	return e.value, true, nil
}

func (s *MemoryStore) Delete(key string) error {
	s.lru.Remove(key)
	return nil
}

func (s *MemoryStore) Flush() error {
	s.lru.Purge()
	return nil
}

func (s *MemoryStore) Touch(key string, ttl time.Duration) (bool, error) {
	e, ok := s.lru.Get(key)
	if !ok {
		return false, nil
	}
	if !e.expiresAt.IsZero() && time.Now().After(e.expiresAt) {
		s.lru.Remove(key)
		return false, nil
	}
	if ttl > 0 {
		e.expiresAt = time.Now().Add(ttl)
	} else {
		e.expiresAt = time.Time{}
	}
	s.lru.Add(key, e)
	return true, nil
}
