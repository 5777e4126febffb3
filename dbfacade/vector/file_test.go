package vector

import (
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestFileStore_StoreAndGet(t *testing.T) {
	dir := t.TempDir()
	s, err := NewFileStore(dir, "ns-1")
	require.NoError(t, err)

	require.NoError(t, s.StoreVector("a", []float32{1, 0}, map[string]any{"tag": "x"}, "hi"))

	rec, ok, err := s.Get("a")
	require.NoError(t, err)
	require.True(t, ok)
	assert.Equal(t, "hi", rec.Text)
}

func TestFileStore_PersistsAcrossReopen(t *testing.T) {
	dir := t.TempDir()
	s, err := NewFileStore(dir, "ns-1")
	require.NoError(t, err)
	require.NoError(t, s.StoreVector("a", []float32{1, 0}, map[string]any{"tag": "x"}, "hi"))
	require.NoError(t, s.Close())

	reopened, err := NewFileStore(dir, "ns-1")
	require.NoError(t, err)
	rec, ok, err := reopened.Get("a")
	require.NoError(t, err)
	require.True(t, ok)
	assert.Equal(t, "hi", rec.Text)
}

func TestFileStore_WritesDataAndIndexFiles(t *testing.T) {
	dir := t.TempDir()
	s, err := NewFileStore(dir, "ns-1")
	require.NoError(t, err)
	require.NoError(t, s.StoreVector("a", []float32{1, 0}, nil, ""))

	assert.FileExists(t, filepath.Join(dir, "ns-1.data.json"))
	assert.FileExists(t, filepath.Join(dir, "ns-1.index.json"))
}

func TestFileStore_RejectsDimensionMismatch(t *testing.T) {
	dir := t.TempDir()
	s, err := NewFileStore(dir, "ns-1")
	require.NoError(t, err)
	require.NoError(t, s.StoreVector("a", []float32{1, 2, 3}, nil, ""))
	assert.Error(t, s.StoreVector("b", []float32{1, 2}, nil, ""))
}

func TestFileStore_DeleteRemovesFromOrder(t *testing.T) {
	dir := t.TempDir()
	s, err := NewFileStore(dir, "ns-1")
	require.NoError(t, err)
	require.NoError(t, s.StoreVector("a", []float32{1, 0}, nil, ""))
	require.NoError(t, s.StoreVector("b", []float32{0, 1}, nil, ""))

	require.NoError(t, s.Delete("a"))

	recs, err := s.List(10, 0, nil)
	require.NoError(t, err)
	require.Len(t, recs, 1)
	assert.Equal(t, "b", recs[0].ID)
}

func TestFileStore_ListPreservesInsertionOrder(t *testing.T) {
	dir := t.TempDir()
	s, err := NewFileStore(dir, "ns-1")
	require.NoError(t, err)
	require.NoError(t, s.StoreVector("b", []float32{0, 1}, nil, ""))
	require.NoError(t, s.StoreVector("a", []float32{1, 0}, nil, ""))

	recs, err := s.List(10, 0, nil)
	require.NoError(t, err)
	require.Len(t, recs, 2)
	assert.Equal(t, "b", recs[0].ID)
	assert.Equal(t, "a", recs[1].ID)
}

func TestFileStore_Backend(t *testing.T) {
	dir := t.TempDir()
	s, err := NewFileStore(dir, "ns-1")
	require.NoError(t, err)
	assert.Equal(t, "file", s.Backend())
	assert.Equal(t, "ns-1", s.Namespace())
}
