package graphdb

import (
	"encoding/json"
	"os"
	"path/filepath"
	"sync"

	"github.com/tekton-fabric/core/errs"
)

// MemoryStore is an in-process adjacency-list graph, optionally mirrored to
// a JSON snapshot file so state survives a restart. It is the graph
// family's fallback backend, used whenever FalkorDB is unreachable (spec
// §4.4 backend-selection step 3).
type MemoryStore struct {
	namespace string
	snapshot  string

	mu    sync.RWMutex
	nodes map[string]Node
	// out[src][relType] -> set of dst ids
	out map[string]map[string]map[string]struct{}
	// in[dst][relType] -> set of src ids
	in    map[string]map[string]map[string]struct{}
	props map[string]map[string]map[string]any // edgeKey(src,dst,type) -> props
	dirty bool
}

type memorySnapshot struct {
	Nodes         map[string]Node `json:"nodes"`
	Relationships []Relationship  `json:"relationships"`
}

// NewMemoryStore constructs an adjacency-list graph for namespace. If dir is
// non-empty, an existing snapshot is loaded from it and each subsequent
// mutation is written back to it immediately.
func NewMemoryStore(dir, namespace string) (Store, error) {
	s := &MemoryStore{
		namespace: namespace,
		nodes:     make(map[string]Node),
		out:       make(map[string]map[string]map[string]struct{}),
		in:        make(map[string]map[string]map[string]struct{}),
		props:     make(map[string]map[string]map[string]any),
	}
	if dir != "" {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return nil, err
		}
		s.snapshot = filepath.Join(dir, namespace+".graph.json")
		if err := s.load(); err != nil {
			return nil, err
		}
	}
	return s, nil
}

func (s *MemoryStore) load() error {
	data, err := os.ReadFile(s.snapshot)
	if err != nil {
		if os.IsNotExist(err) {
			return nil
		}
		return err
	}
	var snap memorySnapshot
	if err := json.Unmarshal(data, &snap); err != nil {
		return err
	}
	for id, n := range snap.Nodes {
		s.nodes[id] = n
	}
	for _, rel := range snap.Relationships {
		s.linkLocked(rel.Source, rel.Target, rel.Type, rel.Props)
	}
	return nil
}

func (s *MemoryStore) flushLocked() error {
	if s.snapshot == "" || !s.dirty {
		return nil
	}
	snap := memorySnapshot{Nodes: s.nodes}
	for src, byType := range s.out {
		for relType, dsts := range byType {
			for dst := range dsts {
				snap.Relationships = append(snap.Relationships, Relationship{
					Source: src, Target: dst, Type: relType,
					Props: s.props[edgeKey(src, dst, relType)],
				})
			}
		}
	}
	data, err := json.Marshal(snap)
	if err != nil {
		return err
	}
	if err := os.WriteFile(s.snapshot, data, 0o644); err != nil {
		return err
	}
	s.dirty = false
	return nil
}

func edgeKey(src, dst, relType string) string { return src + "\x00" + dst + "\x00" + relType }

func (s *MemoryStore) Namespace() string { return s.namespace }
func (s *MemoryStore) Backend() string   { return "memory" }

func (s *MemoryStore) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.flushLocked()
}

func (s *MemoryStore) AddNode(id string, labels []string, props map[string]any) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.nodes[id] = Node{ID: id, Labels: labels, Props: props}
	s.dirty = true
	return s.flushLocked()
}

func (s *MemoryStore) linkLocked(src, dst, relType string, props map[string]any) {
	if s.out[src] == nil {
		s.out[src] = make(map[string]map[string]struct{})
	}
	if s.out[src][relType] == nil {
		s.out[src][relType] = make(map[string]struct{})
	}
	s.out[src][relType][dst] = struct{}{}

	if s.in[dst] == nil {
		s.in[dst] = make(map[string]map[string]struct{})
	}
	if s.in[dst][relType] == nil {
		s.in[dst][relType] = make(map[string]struct{})
	}
	s.in[dst][relType][src] = struct{}{}

	s.props[edgeKey(src, dst, relType)] = props
}

func (s *MemoryStore) AddRelationship(src, dst, relType string, props map[string]any) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.nodes[src]; !ok {
		return errNodeNotFound("add_relationship", src)
	}
	if _, ok := s.nodes[dst]; !ok {
		return errNodeNotFound("add_relationship", dst)
	}
	s.linkLocked(src, dst, relType, props)
	s.dirty = true
	return s.flushLocked()
}

func (s *MemoryStore) GetNode(id string) (Node, bool, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	n, ok := s.nodes[id]
	return n, ok, nil
}

func (s *MemoryStore) GetRelationships(id string, relTypes []string, dir Direction) ([]Relationship, error) {
	wantType := func(t string) bool {
		if len(relTypes) == 0 {
			return true
		}
		for _, rt := range relTypes {
			if rt == t {
				return true
			}
		}
		return false
	}

	s.mu.RLock()
	defer s.mu.RUnlock()

	var rels []Relationship
	if dir == Out || dir == Both {
		for relType, dsts := range s.out[id] {
			if !wantType(relType) {
				continue
			}
			for dst := range dsts {
				rels = append(rels, Relationship{Source: id, Target: dst, Type: relType, Props: s.props[edgeKey(id, dst, relType)]})
			}
		}
	}
	if dir == In || dir == Both {
		for relType, srcs := range s.in[id] {
			if !wantType(relType) {
				continue
			}
			for src := range srcs {
				rels = append(rels, Relationship{Source: src, Target: id, Type: relType, Props: s.props[edgeKey(src, id, relType)]})
			}
		}
	}
	return rels, nil
}

// Query is unsupported on the in-memory fallback: spec.md's Cypher-like
// surface is FalkorDB's query language, which this adjacency list does not
// implement. Callers needing Query should select the native backend
// explicitly.
func (s *MemoryStore) Query(statement string, params map[string]any) (*QueryResult, error) {
	return nil, errs.New(component, "query", errs.Unavailable, "query is not supported on the memory fallback backend")
}

func (s *MemoryStore) DeleteNode(id string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.nodes[id]; !ok {
		return errNodeNotFound("delete_node", id)
	}
	delete(s.nodes, id)

	for relType, dsts := range s.out[id] {
		for dst := range dsts {
			delete(s.props, edgeKey(id, dst, relType))
			if s.in[dst] != nil && s.in[dst][relType] != nil {
				delete(s.in[dst][relType], id)
			}
		}
	}
	delete(s.out, id)

	for relType, srcs := range s.in[id] {
		for src := range srcs {
			delete(s.props, edgeKey(src, id, relType))
			if s.out[src] != nil && s.out[src][relType] != nil {
				delete(s.out[src][relType], id)
			}
		}
	}
	delete(s.in, id)

	s.dirty = true
	return s.flushLocked()
}

func (s *MemoryStore) DeleteRelationship(src, dst, relType string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	types := []string{relType}
	if relType == "" {
		types = types[:0]
		for t := range s.out[src] {
			types = append(types, t)
		}
	}

	var removed bool
	for _, t := range types {
		if s.out[src] != nil && s.out[src][t] != nil {
			if _, ok := s.out[src][t][dst]; ok {
				delete(s.out[src][t], dst)
				delete(s.in[dst][t], src)
				delete(s.props, edgeKey(src, dst, t))
				removed = true
			}
		}
	}
	if !removed {
		return errs.New(component, "delete_relationship", errs.NotFound, "relationship not found").
			WithDetails(map[string]any{"source": src, "target": dst, "type": relType})
	}
	s.dirty = true
	return s.flushLocked()
}
