package vector

import (
	"sort"
	"sync"

	"github.com/tekton-fabric/core/errs"
)

const component = "dbfacade.vector"

// MemoryStore is a brute-force, in-process L2 index. It is the Factory's
// "native" vector backend — on a host with a real ANN library available
// this is where that library would be wired in; none of the pack examples
// carry one, so the reference behavior here is exhaustive scan, which is
// correct (if not sublinear) for every invariant spec.md pins.
type MemoryStore struct {
	namespace string

	mu         sync.RWMutex
	dimension  int
	records    map[string]Record
	tombstones int
}

// NewMemoryStore constructs an empty in-memory vector store for namespace.
func NewMemoryStore(namespace string) (Store, error) {
	return &MemoryStore{namespace: namespace, records: make(map[string]Record)}, nil
}

func (s *MemoryStore) Namespace() string { return s.namespace }
func (s *MemoryStore) Backend() string   { return "native" }
func (s *MemoryStore) Close() error      { return nil }

func (s *MemoryStore) StoreVector(id string, vec []float32, metadata map[string]any, text string) error {
	if id == "" {
		return errs.New(component, "store", errs.InvalidArgument, "id is required")
	}

	normalized := normalize(vec)

	s.mu.Lock()
	defer s.mu.Unlock()

	if len(s.records) == 0 {
		s.dimension = len(normalized)
	} else if len(normalized) != s.dimension {
		return errs.New(component, "store", errs.InvalidArgument, "vector dimension mismatch").
			WithDetails(map[string]any{"expected": s.dimension, "got": len(normalized)})
	}

	if _, exists := s.records[id]; exists {
		s.tombstones--
	}
	s.records[id] = Record{ID: id, Vector: normalized, Metadata: metadata, Text: text}
	return nil
}

func (s *MemoryStore) Search(queryVec []float32, k int, cond map[string]any) ([]SearchResult, error) {
	if k <= 0 {
		return nil, nil
	}
	pred, err := compileFilter(cond)
	if err != nil {
		return nil, err
	}
	query := normalize(queryVec)

	s.mu.RLock()
	candidates := make([]SearchResult, 0, len(s.records))
	for _, rec := range s.records {
		matched, err := pred.Match(rec.Metadata)
		if err != nil {
			s.mu.RUnlock()
			return nil, err
		}
		if !matched {
			continue
		}
		dist := l2Distance(query, rec.Vector)
		candidates = append(candidates, SearchResult{Record: rec, Similarity: similarity(dist)})
	}
	s.mu.RUnlock()

	sort.Slice(candidates, func(i, j int) bool { return candidates[i].Similarity > candidates[j].Similarity })

	limit := k * SearchMultiplier
	if limit > len(candidates) {
		limit = len(candidates)
	}
	candidates = candidates[:limit]
	if k < len(candidates) {
		candidates = candidates[:k]
	}
	return candidates, nil
}

func (s *MemoryStore) Get(id string) (Record, bool, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	rec, ok := s.records[id]
	return rec, ok, nil
}

func (s *MemoryStore) Delete(id string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.records[id]; !ok {
		return errs.New(component, "delete", errs.NotFound, "id not found")
	}
	delete(s.records, id)
	s.tombstones++
	s.maybeRebuildLocked()
	return nil
}

func (s *MemoryStore) DeleteByFilter(cond map[string]any) (int, error) {
	pred, err := compileFilter(cond)
	if err != nil {
		return 0, err
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	var removed int
	for id, rec := range s.records {
		matched, err := pred.Match(rec.Metadata)
		if err != nil {
			return removed, err
		}
		if matched {
			delete(s.records, id)
			s.tombstones++
			removed++
		}
	}
	s.maybeRebuildLocked()
	return removed, nil
}

func (s *MemoryStore) List(k, offset int, cond map[string]any) ([]Record, error) {
	pred, err := compileFilter(cond)
	if err != nil {
		return nil, err
	}

	s.mu.RLock()
	matches := make([]Record, 0, len(s.records))
	for _, rec := range s.records {
		matched, err := pred.Match(rec.Metadata)
		if err != nil {
			s.mu.RUnlock()
			return nil, err
		}
		if matched {
			matches = append(matches, rec)
		}
	}
	s.mu.RUnlock()

	sort.Slice(matches, func(i, j int) bool { return matches[i].ID < matches[j].ID })

	if offset >= len(matches) {
		return nil, nil
	}
	matches = matches[offset:]
	if k > 0 && k < len(matches) {
		matches = matches[:k]
	}
	return matches, nil
}

// maybeRebuildLocked compacts the tombstone count once the live fraction
// falls below RebuildBelowRatio. The map-backed index has no fragmentation
// of its own to repair; this tracks the spec's rebuild trigger so a real
// ANN index swapped in later has a ready hook.
func (s *MemoryStore) maybeRebuildLocked() {
	total := len(s.records) + s.tombstones
	if total == 0 {
		return
	}
	liveRatio := float64(len(s.records)) / float64(total)
	if liveRatio < RebuildBelowRatio {
		s.tombstones = 0
	}
}
