package document

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newTestStore(t *testing.T) Store {
	t.Helper()
	s, err := NewSQLiteStore(t.TempDir(), "ns-1")
	require.NoError(t, err)
	t.Cleanup(func() { s.Close() })
	return s
}

func TestSQLiteStore_InsertAssignsIDWhenAbsent(t *testing.T) {
	s := newTestStore(t)
	id, err := s.Insert("users", Doc{Data: map[string]any{"name": "alice"}})
	require.NoError(t, err)
	assert.NotEmpty(t, id)
}

func TestSQLiteStore_InsertHonorsCallerID(t *testing.T) {
	s := newTestStore(t)
	id, err := s.Insert("users", Doc{ID: "u-1", Data: map[string]any{"name": "alice"}})
	require.NoError(t, err)
	assert.Equal(t, "u-1", id)
}

func TestSQLiteStore_FindOneAndFind(t *testing.T) {
	s := newTestStore(t)
	_, err := s.Insert("users", Doc{ID: "u-1", Data: map[string]any{"name": "alice", "active": true}})
	require.NoError(t, err)
	_, err = s.Insert("users", Doc{ID: "u-2", Data: map[string]any{"name": "bob", "active": false}})
	require.NoError(t, err)

	doc, ok, err := s.FindOne("users", map[string]any{"name": "alice"}, nil)
	require.NoError(t, err)
	require.True(t, ok)
	assert.Equal(t, "u-1", doc.ID)

	docs, err := s.Find("users", map[string]any{"active": true}, nil)
	require.NoError(t, err)
	require.Len(t, docs, 1)
	assert.Equal(t, "alice", docs[0].Data["name"])
}

func TestSQLiteStore_FindAppliesProjection(t *testing.T) {
	s := newTestStore(t)
	_, err := s.Insert("users", Doc{ID: "u-1", Data: map[string]any{"name": "alice", "email": "a@example.com"}})
	require.NoError(t, err)

	docs, err := s.Find("users", nil, []string{"name"})
	require.NoError(t, err)
	require.Len(t, docs, 1)
	assert.Equal(t, "alice", docs[0].Data["name"])
	_, hasEmail := docs[0].Data["email"]
	assert.False(t, hasEmail)
}

func TestSQLiteStore_UpdateMergesPatch(t *testing.T) {
	s := newTestStore(t)
	_, err := s.Insert("users", Doc{ID: "u-1", Data: map[string]any{"name": "alice", "active": true}})
	require.NoError(t, err)

	n, err := s.Update("users", map[string]any{"name": "alice"}, map[string]any{"active": false}, UpdateOptions{})
	require.NoError(t, err)
	assert.Equal(t, 1, n)

	doc, ok, err := s.FindOne("users", map[string]any{"name": "alice"}, nil)
	require.NoError(t, err)
	require.True(t, ok)
	assert.Equal(t, false, doc.Data["active"])
}

func TestSQLiteStore_UpdateNoMatchWithoutUpsertIsNoop(t *testing.T) {
	s := newTestStore(t)
	n, err := s.Update("users", map[string]any{"name": "nobody"}, map[string]any{"active": false}, UpdateOptions{})
	require.NoError(t, err)
	assert.Equal(t, 0, n)
}

func TestSQLiteStore_UpdateUpsertsWhenNoMatch(t *testing.T) {
	s := newTestStore(t)
	n, err := s.Update("users", map[string]any{"name": "carol"}, map[string]any{"name": "carol", "active": true}, UpdateOptions{Upsert: true})
	require.NoError(t, err)
	assert.Equal(t, 1, n)

	doc, ok, err := s.FindOne("users", map[string]any{"name": "carol"}, nil)
	require.NoError(t, err)
	require.True(t, ok)
	assert.Equal(t, true, doc.Data["active"])
}

func TestSQLiteStore_DeleteAndCount(t *testing.T) {
	s := newTestStore(t)
	_, err := s.Insert("users", Doc{Data: map[string]any{"name": "alice"}})
	require.NoError(t, err)
	_, err = s.Insert("users", Doc{Data: map[string]any{"name": "bob"}})
	require.NoError(t, err)

	n, err := s.Count("users", nil)
	require.NoError(t, err)
	assert.Equal(t, 2, n)

	removed, err := s.Delete("users", map[string]any{"name": "alice"})
	require.NoError(t, err)
	assert.Equal(t, 1, removed)

	n, err = s.Count("users", nil)
	require.NoError(t, err)
	assert.Equal(t, 1, n)
}

func TestSQLiteStore_PersistsAcrossReopen(t *testing.T) {
	dir := t.TempDir()
	s, err := NewSQLiteStore(dir, "ns-1")
	require.NoError(t, err)
	_, err = s.Insert("users", Doc{ID: "u-1", Data: map[string]any{"name": "alice"}})
	require.NoError(t, err)
	require.NoError(t, s.Close())

	reopened, err := NewSQLiteStore(dir, "ns-1")
	require.NoError(t, err)
	defer reopened.Close()

	doc, ok, err := reopened.FindOne("users", nil, nil)
	require.NoError(t, err)
	require.True(t, ok)
	assert.Equal(t, "alice", doc.Data["name"])
}
