package vector

import (
	"encoding/json"
	"os"
	"path/filepath"
	"sort"
	"sync"

	"github.com/tekton-fabric/core/errs"
)

// FileStore is the flat-file fallback vector backend: records live in an
// in-memory index mirrored to a JSON data file, with a separate index file
// recording the dimension and id order. It is the vector family's
// registered fallback when the native backend is Unavailable (spec §4.4
// backend-selection step 3), and it persists across restarts where the
// native in-process index does not.
type FileStore struct {
	namespace string
	dataFile  string
	indexFile string

	mu        sync.Mutex
	dimension int
	order     []string
	records   map[string]Record
	dirty     bool
}

type fileIndex struct {
	Dimension int      `json:"dimension"`
	Order     []string `json:"order"`
}

// NewFileStore constructs a FileStore for namespace rooted at dir, loading
// any existing data_file/index_file pair if present.
func NewFileStore(dir, namespace string) (Store, error) {
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, errs.New(component, "open", errs.Internal, "create store dir").WithCause(err)
	}
	s := &FileStore{
		namespace: namespace,
		dataFile:  filepath.Join(dir, namespace+".data.json"),
		indexFile: filepath.Join(dir, namespace+".index.json"),
		records:   make(map[string]Record),
	}
	if err := s.load(); err != nil {
		return nil, err
	}
	return s, nil
}

func (s *FileStore) load() error {
	idxBytes, err := os.ReadFile(s.indexFile)
	if err != nil {
		if os.IsNotExist(err) {
			return nil
		}
		return errs.New(component, "open", errs.Internal, "read index file").WithCause(err)
	}
	var idx fileIndex
	if err := json.Unmarshal(idxBytes, &idx); err != nil {
		return errs.New(component, "open", errs.Internal, "decode index file").WithCause(err)
	}

	dataBytes, err := os.ReadFile(s.dataFile)
	if err != nil {
		if os.IsNotExist(err) {
			return nil
		}
		return errs.New(component, "open", errs.Internal, "read data file").WithCause(err)
	}
	var records map[string]Record
	if err := json.Unmarshal(dataBytes, &records); err != nil {
		return errs.New(component, "open", errs.Internal, "decode data file").WithCause(err)
	}

	s.dimension = idx.Dimension
	s.order = idx.Order
	s.records = records
	return nil
}

// flush persists the index and data files if dirty. Caller holds s.mu.
func (s *FileStore) flushLocked() error {
	if !s.dirty {
		return nil
	}
	dataBytes, err := json.Marshal(s.records)
	if err != nil {
		return errs.New(component, "flush", errs.Internal, "encode data file").WithCause(err)
	}
	if err := os.WriteFile(s.dataFile, dataBytes, 0o644); err != nil {
		return errs.New(component, "flush", errs.Internal, "write data file").WithCause(err)
	}

	idxBytes, err := json.Marshal(fileIndex{Dimension: s.dimension, Order: s.order})
	if err != nil {
		return errs.New(component, "flush", errs.Internal, "encode index file").WithCause(err)
	}
	if err := os.WriteFile(s.indexFile, idxBytes, 0o644); err != nil {
		return errs.New(component, "flush", errs.Internal, "write index file").WithCause(err)
	}
	s.dirty = false
	return nil
}

func (s *FileStore) Namespace() string { return s.namespace }
func (s *FileStore) Backend() string   { return "file" }

// Close flushes any pending writes before releasing the store.
func (s *FileStore) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.flushLocked()
}

func (s *FileStore) StoreVector(id string, vec []float32, metadata map[string]any, text string) error {
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

	if _, exists := s.records[id]; !exists {
		s.order = append(s.order, id)
	}
	s.records[id] = Record{ID: id, Vector: normalized, Metadata: metadata, Text: text}
	s.dirty = true
	return s.flushLocked()
}

func (s *FileStore) Search(queryVec []float32, k int, cond map[string]any) ([]SearchResult, error) {
	if k <= 0 {
		return nil, nil
	}
	pred, err := compileFilter(cond)
	if err != nil {
		return nil, err
	}
	query := normalize(queryVec)

	s.mu.Lock()
	candidates := make([]SearchResult, 0, len(s.records))
	for _, rec := range s.records {
		matched, err := pred.Match(rec.Metadata)
		if err != nil {
			s.mu.Unlock()
			return nil, err
		}
		if !matched {
			continue
		}
		dist := l2Distance(query, rec.Vector)
		candidates = append(candidates, SearchResult{Record: rec, Similarity: similarity(dist)})
	}
	s.mu.Unlock()

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

func (s *FileStore) Get(id string) (Record, bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	rec, ok := s.records[id]
	return rec, ok, nil
}

func (s *FileStore) Delete(id string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.records[id]; !ok {
		return errs.New(component, "delete", errs.NotFound, "id not found")
	}
	delete(s.records, id)
	s.removeFromOrderLocked(id)
	s.dirty = true
	return s.flushLocked()
}

func (s *FileStore) DeleteByFilter(cond map[string]any) (int, error) {
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
			s.removeFromOrderLocked(id)
			removed++
		}
	}
	if removed > 0 {
		s.dirty = true
		if err := s.flushLocked(); err != nil {
			return removed, err
		}
	}
	return removed, nil
}

func (s *FileStore) List(k, offset int, cond map[string]any) ([]Record, error) {
	pred, err := compileFilter(cond)
	if err != nil {
		return nil, err
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	matches := make([]Record, 0, len(s.order))
	for _, id := range s.order {
		rec, ok := s.records[id]
		if !ok {
			continue
		}
		matched, err := pred.Match(rec.Metadata)
		if err != nil {
			return nil, err
		}
		if matched {
			matches = append(matches, rec)
		}
	}

	if offset >= len(matches) {
		return nil, nil
	}
	matches = matches[offset:]
	if k > 0 && k < len(matches) {
		matches = matches[:k]
	}
	return matches, nil
}

func (s *FileStore) removeFromOrderLocked(id string) {
	for i, existing := range s.order {
		if existing == id {
			s.order = append(s.order[:i], s.order[i+1:]...)
			return
		}
	}
}
