// Package document implements the Database Facade's document adapter
// family (spec §4.4): insert/find/find_one/update/delete/count over named
// collections, with upsert support on update — backed natively by
// PostgreSQL JSONB columns with an embedded SQLite fallback.
package document

import "github.com/tekton-fabric/core/dbfacade/filter"

const component = "dbfacade.document"

// Doc is one stored document: Data is arbitrary JSON-shaped content, ID is
// assigned on Insert if the caller didn't supply one.
type Doc struct {
	ID   string
	Data map[string]any
}

// UpdateOptions controls Update's match/write behavior.
type UpdateOptions struct {
	// Upsert inserts patch as a new document when no document matches
	// cond.
	Upsert bool
}

// Store is the document adapter's operation set.
type Store interface {
	Namespace() string
	Backend() string
	Close() error

	// Insert adds doc to collection, assigning an id if doc.ID is empty,
	// and returns the assigned id.
	Insert(collection string, doc Doc) (string, error)

	// Find returns every document in collection matching cond, applying
	// projection (field -> include) if non-empty.
	Find(collection string, cond map[string]any, projection []string) ([]Doc, error)

	// FindOne returns the first document matching cond, or ok=false if none.
	FindOne(collection string, cond map[string]any, projection []string) (Doc, bool, error)

	// Update applies patch to every document matching cond, upserting per
	// opts.Upsert if nothing matched. Returns the number of documents
	// modified (1 on upsert-insert).
	Update(collection string, cond map[string]any, patch map[string]any, opts UpdateOptions) (int, error)

	// Delete removes every document matching cond, returning the count
	// removed.
	Delete(collection string, cond map[string]any) (int, error)

	// Count returns the number of documents in collection matching cond.
	Count(collection string, cond map[string]any) (int, error)
}

func compileFilter(cond map[string]any) (*filter.Predicate, error) {
	return filter.Compile(cond)
}

func applyProjection(data map[string]any, projection []string) map[string]any {
	if len(projection) == 0 {
		return data
	}
	out := make(map[string]any, len(projection))
	for _, field := range projection {
		if v, ok := data[field]; ok {
			out[field] = v
		}
	}
	return out
}

func mergePatch(data, patch map[string]any) map[string]any {
	out := make(map[string]any, len(data)+len(patch))
	for k, v := range data {
		out[k] = v
	}
	for k, v := range patch {
		out[k] = v
	}
	return out
}
