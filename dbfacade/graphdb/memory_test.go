package graphdb

import (
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestMemoryStore_AddAndGetNode(t *testing.T) {
	s, err := NewMemoryStore("", "ns-1")
	require.NoError(t, err)

	require.NoError(t, s.AddNode("a", []string{"Person"}, map[string]any{"name": "alice"}))

	n, ok, err := s.GetNode("a")
	require.NoError(t, err)
	require.True(t, ok)
	assert.Equal(t, []string{"Person"}, n.Labels)
	assert.Equal(t, "alice", n.Props["name"])
}

func TestMemoryStore_AddRelationshipRequiresBothNodes(t *testing.T) {
	s, err := NewMemoryStore("", "ns-1")
	require.NoError(t, err)
	require.NoError(t, s.AddNode("a", nil, nil))

	err = s.AddRelationship("a", "b", "KNOWS", nil)
	assert.Error(t, err)

	require.NoError(t, s.AddNode("b", nil, nil))
	require.NoError(t, s.AddRelationship("a", "b", "KNOWS", map[string]any{"since": 2020}))
}

func TestMemoryStore_GetRelationshipsByDirection(t *testing.T) {
	s, err := NewMemoryStore("", "ns-1")
	require.NoError(t, err)
	require.NoError(t, s.AddNode("a", nil, nil))
	require.NoError(t, s.AddNode("b", nil, nil))
	require.NoError(t, s.AddRelationship("a", "b", "KNOWS", nil))

	out, err := s.GetRelationships("a", nil, Out)
	require.NoError(t, err)
	require.Len(t, out, 1)
	assert.Equal(t, "b", out[0].Target)

	in, err := s.GetRelationships("b", nil, In)
	require.NoError(t, err)
	require.Len(t, in, 1)
	assert.Equal(t, "a", in[0].Source)

	none, err := s.GetRelationships("b", nil, Out)
	require.NoError(t, err)
	assert.Empty(t, none)
}

func TestMemoryStore_GetRelationshipsFiltersByType(t *testing.T) {
	s, err := NewMemoryStore("", "ns-1")
	require.NoError(t, err)
	require.NoError(t, s.AddNode("a", nil, nil))
	require.NoError(t, s.AddNode("b", nil, nil))
	require.NoError(t, s.AddRelationship("a", "b", "KNOWS", nil))
	require.NoError(t, s.AddRelationship("a", "b", "BLOCKS", nil))

	rels, err := s.GetRelationships("a", []string{"BLOCKS"}, Out)
	require.NoError(t, err)
	require.Len(t, rels, 1)
	assert.Equal(t, "BLOCKS", rels[0].Type)
}

func TestMemoryStore_DeleteNodeRemovesIncidentEdges(t *testing.T) {
	s, err := NewMemoryStore("", "ns-1")
	require.NoError(t, err)
	require.NoError(t, s.AddNode("a", nil, nil))
	require.NoError(t, s.AddNode("b", nil, nil))
	require.NoError(t, s.AddRelationship("a", "b", "KNOWS", nil))

	require.NoError(t, s.DeleteNode("b"))

	rels, err := s.GetRelationships("a", nil, Out)
	require.NoError(t, err)
	assert.Empty(t, rels)

	_, ok, err := s.GetNode("b")
	require.NoError(t, err)
	assert.False(t, ok)
}

func TestMemoryStore_DeleteRelationshipSpecificType(t *testing.T) {
	s, err := NewMemoryStore("", "ns-1")
	require.NoError(t, err)
	require.NoError(t, s.AddNode("a", nil, nil))
	require.NoError(t, s.AddNode("b", nil, nil))
	require.NoError(t, s.AddRelationship("a", "b", "KNOWS", nil))
	require.NoError(t, s.AddRelationship("a", "b", "BLOCKS", nil))

	require.NoError(t, s.DeleteRelationship("a", "b", "KNOWS"))

	rels, err := s.GetRelationships("a", nil, Out)
	require.NoError(t, err)
	require.Len(t, rels, 1)
	assert.Equal(t, "BLOCKS", rels[0].Type)
}

func TestMemoryStore_DeleteRelationshipAllTypes(t *testing.T) {
	s, err := NewMemoryStore("", "ns-1")
	require.NoError(t, err)
	require.NoError(t, s.AddNode("a", nil, nil))
	require.NoError(t, s.AddNode("b", nil, nil))
	require.NoError(t, s.AddRelationship("a", "b", "KNOWS", nil))
	require.NoError(t, s.AddRelationship("a", "b", "BLOCKS", nil))

	require.NoError(t, s.DeleteRelationship("a", "b", ""))

	rels, err := s.GetRelationships("a", nil, Out)
	require.NoError(t, err)
	assert.Empty(t, rels)
}

func TestMemoryStore_QueryUnsupported(t *testing.T) {
	s, err := NewMemoryStore("", "ns-1")
	require.NoError(t, err)
	_, err = s.Query("MATCH (n) RETURN n", nil)
	assert.Error(t, err)
}

func TestMemoryStore_PersistsAcrossReopen(t *testing.T) {
	dir := t.TempDir()
	s, err := NewMemoryStore(dir, "ns-1")
	require.NoError(t, err)
	require.NoError(t, s.AddNode("a", []string{"Person"}, map[string]any{"name": "alice"}))
	require.NoError(t, s.AddNode("b", nil, nil))
	require.NoError(t, s.AddRelationship("a", "b", "KNOWS", map[string]any{"since": float64(2020)}))
	require.NoError(t, s.Close())

	assert.FileExists(t, filepath.Join(dir, "ns-1.graph.json"))

	reopened, err := NewMemoryStore(dir, "ns-1")
	require.NoError(t, err)
	n, ok, err := reopened.GetNode("a")
	require.NoError(t, err)
	require.True(t, ok)
	assert.Equal(t, "alice", n.Props["name"])

	rels, err := reopened.GetRelationships("a", nil, Out)
	require.NoError(t, err)
	require.Len(t, rels, 1)
	assert.EqualValues(t, 2020, rels[0].Props["since"])
}

func TestMemoryStore_Backend(t *testing.T) {
	s, err := NewMemoryStore("", "ns-1")
	require.NoError(t, err)
	assert.Equal(t, "memory", s.Backend())
	assert.Equal(t, "ns-1", s.Namespace())
}
