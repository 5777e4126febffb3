// Package vector implements the Database Facade's vector adapter family
// (spec §4.4): L2-normalized store/search with metadata filtering, a
// k*multiplier over-fetch to absorb post-filter losses, and dimension
// adoption/rebuild rules pinned exactly as spec.md describes.
package vector

import (
	"math"

	"github.com/tekton-fabric/core/dbfacade/filter"
)

// SearchMultiplier is how many candidates are retrieved per requested k to
// absorb losses from post-retrieval filtering (spec §4.4).
const SearchMultiplier = 10

// RebuildBelowRatio is the live-to-total ratio below which the index is
// rebuilt from scratch rather than left fragmented by tombstones.
const RebuildBelowRatio = 0.5

// Record is one stored vector plus its associated metadata and text.
type Record struct {
	ID       string
	Vector   []float32
	Metadata map[string]any
	Text     string
}

// SearchResult pairs a Record with its similarity to the query vector.
type SearchResult struct {
	Record
	Similarity float64
}

// Store is the vector adapter's operation set.
type Store interface {
	// Namespace returns the isolation namespace this instance serves.
	Namespace() string
	// Backend names the concrete backend ("native" or "file").
	Backend() string
	// Close flushes and releases resources.
	Close() error

	// StoreVector upserts id with vec (L2-normalized on write), optional
	// metadata and text. Rejects a dimension mismatch unless the store is
	// currently empty, in which case the new dimension is adopted and the
	// index rebuilt.
	StoreVector(id string, vec []float32, metadata map[string]any, text string) error

	// Search L2-normalizes queryVec, retrieves k*SearchMultiplier
	// candidates, applies filter, and returns at most k results ordered by
	// descending similarity.
	Search(queryVec []float32, k int, cond map[string]any) ([]SearchResult, error)

	// Get returns id's record, or ok=false if absent.
	Get(id string) (Record, bool, error)

	// Delete removes id.
	Delete(id string) error

	// DeleteByFilter removes every record matching filter, returning the
	// count removed.
	DeleteByFilter(cond map[string]any) (int, error)

	// List returns up to k records matching filter, skipping the first
	// offset matches.
	List(k, offset int, cond map[string]any) ([]Record, error)
}

func compileFilter(cond map[string]any) (*filter.Predicate, error) {
	return filter.Compile(cond)
}

func normalize(vec []float32) []float32 {
	var sumSquares float64
	for _, v := range vec {
		sumSquares += float64(v) * float64(v)
	}
	if sumSquares == 0 {
		return append([]float32(nil), vec...)
	}
	norm := math.Sqrt(sumSquares)
	out := make([]float32, len(vec))
	for i, v := range vec {
		out[i] = float32(float64(v) / norm)
	}
	return out
}

func l2Distance(a, b []float32) float64 {
	var sum float64
	for i := range a {
		d := float64(a[i]) - float64(b[i])
		sum += d * d
	}
	return math.Sqrt(sum)
}

// similarity converts an L2 distance between two unit vectors into cosine
// similarity: for normalized a, b, ||a-b||^2 = 2 - 2*cos(a,b), so
// cos(a,b) = 1 - distance^2/2. distance must come from l2Distance on
// normalized vectors, not the raw (unsquared) value.
func similarity(distance float64) float64 {
	return 1 - (distance*distance)/2
}
