package kvstore

import (
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newTestRedisStore(t *testing.T) Store {
	t.Helper()
	mr := miniredis.RunT(t)
	s, err := NewRedisStore(RedisConfig{URL: "redis://" + mr.Addr()}, "ns-1")
	require.NoError(t, err)
	return s
}

func TestRedisStore_SetGetDelete(t *testing.T) {
	s := newTestRedisStore(t)

	require.NoError(t, s.Set("k", []byte("v"), 0))
	val, ok, err := s.Get("k")
	require.NoError(t, err)
	require.True(t, ok)
	assert.Equal(t, "v", string(val))

	require.NoError(t, s.Delete("k"))
	_, ok, err = s.Get("k")
	require.NoError(t, err)
	assert.False(t, ok)
}

func TestRedisStore_Exists(t *testing.T) {
	s := newTestRedisStore(t)
	ok, err := s.Exists("missing")
	require.NoError(t, err)
	assert.False(t, ok)

	require.NoError(t, s.Set("present", []byte("v"), 0))
	ok, err = s.Exists("present")
	require.NoError(t, err)
	assert.True(t, ok)
}

func TestRedisStore_BatchOperations(t *testing.T) {
	s := newTestRedisStore(t)

	require.NoError(t, s.SetBatch(map[string][]byte{"a": []byte("1"), "b": []byte("2")}, 0))

	got, err := s.GetBatch([]string{"a", "b", "missing"})
	require.NoError(t, err)
	assert.Equal(t, []byte("1"), got["a"])
	assert.Equal(t, []byte("2"), got["b"])
	_, ok := got["missing"]
	assert.False(t, ok)

	require.NoError(t, s.DeleteBatch([]string{"a", "b"}))
	got, err = s.GetBatch([]string{"a", "b"})
	require.NoError(t, err)
	assert.Empty(t, got)
}

func TestRedisStore_ClearNamespace(t *testing.T) {
	s := newTestRedisStore(t)
	require.NoError(t, s.SetBatch(map[string][]byte{"a": []byte("1"), "b": []byte("2")}, 0))

	require.NoError(t, s.ClearNamespace())

	ok, err := s.Exists("a")
	require.NoError(t, err)
	assert.False(t, ok)
}

func TestRedisStore_TTLExpiry(t *testing.T) {
	mr := miniredis.RunT(t)
	s, err := NewRedisStore(RedisConfig{URL: "redis://" + mr.Addr()}, "ns-1")
	require.NoError(t, err)

	require.NoError(t, s.Set("k", []byte("v"), time.Second))
	mr.FastForward(2 * time.Second)

	_, ok, err := s.Get("k")
	require.NoError(t, err)
	assert.False(t, ok)
}

func TestRedisStore_NamespaceIsolation(t *testing.T) {
	mr := miniredis.RunT(t)
	a, err := NewRedisStore(RedisConfig{URL: "redis://" + mr.Addr()}, "ns-a")
	require.NoError(t, err)
	b, err := NewRedisStore(RedisConfig{URL: "redis://" + mr.Addr()}, "ns-b")
	require.NoError(t, err)

	require.NoError(t, a.Set("k", []byte("from-a"), 0))
	_, ok, err := b.Get("k")
	require.NoError(t, err)
	assert.False(t, ok)
}
