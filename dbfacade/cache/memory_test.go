package cache

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestMemoryStore_SetGetDelete(t *testing.T) {
	s, err := NewMemoryStore("ns-1", 10)
	require.NoError(t, err)

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

func TestMemoryStore_TTLExpiry(t *testing.T) {
	s, err := NewMemoryStore("ns-1", 10)
	require.NoError(t, err)
	require.NoError(t, s.Set("k", []byte("v"), time.Millisecond))
	time.Sleep(10 * time.Millisecond)

	_, ok, err := s.Get("k")
	require.NoError(t, err)
	assert.False(t, ok)
}

func TestMemoryStore_Flush(t *testing.T) {
	s, err := NewMemoryStore("ns-1", 10)
	require.NoError(t, err)
	require.NoError(t, s.Set("a", []byte("1"), 0))
	require.NoError(t, s.Set("b", []byte("2"), 0))

	require.NoError(t, s.Flush())

	_, ok, err := s.Get("a")
	require.NoError(t, err)
	assert.False(t, ok)
}

func TestMemoryStore_TouchExtendsTTL(t *testing.T) {
	s, err := NewMemoryStore("ns-1", 10)
	require.NoError(t, err)
	require.NoError(t, s.Set("k", []byte("v"), 5*time.Millisecond))

	ok, err := s.Touch("k", time.Hour)
	require.NoError(t, err)
	assert.True(t, ok)

	time.Sleep(10 * time.Millisecond)
	_, ok, err = s.Get("k")
	require.NoError(t, err)
	assert.True(t, ok)
}

func TestMemoryStore_TouchAbsentKeyReturnsFalse(t *testing.T) {
	s, err := NewMemoryStore("ns-1", 10)
	require.NoError(t, err)
	ok, err := s.Touch("missing", time.Hour)
	require.NoError(t, err)
	assert.False(t, ok)
}

func TestMemoryStore_EvictsLeastRecentlyUsedAtCapacity(t *testing.T) {
	s, err := NewMemoryStore("ns-1", 2)
	require.NoError(t, err)
	require.NoError(t, s.Set("a", []byte("1"), 0))
	require.NoError(t, s.Set("b", []byte("2"), 0))
	_, _, _ = s.Get("a") // touch a so b is the LRU victim
	require.NoError(t, s.Set("c", []byte("3"), 0))

	_, ok, err := s.Get("b")
	require.NoError(t, err)
	assert.False(t, ok)

	_, ok, err = s.Get("a")
	require.NoError(t, err)
	assert.True(t, ok)
}
