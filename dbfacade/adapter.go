// Package dbfacade implements the Database Facade (spec §4.4): a single
// typed entry point over six storage models, with namespace isolation,
// lazy connection pooling, and backend autodetection with graceful
// fallback. The Facade itself never talks to a backend directly — it
// holds a Factory that constructs and pools per-(type, namespace, backend)
// adapters from the six family subpackages (vector, graphdb, kvstore,
// document, cache, relational).
package dbfacade

// DBType names one of the six storage models the Facade serves.
type DBType string

const (
	Vector     DBType = "vector"
	Graph      DBType = "graph"
	KeyValue   DBType = "kv"
	Document   DBType = "document"
	Cache      DBType = "cache"
	Relational DBType = "relational"
)

// Adapter is the minimal contract every family-specific adapter satisfies
// so the Factory can pool and close it without knowing its concrete method
// set. Callers type-assert the returned Adapter to the family interface
// they need (vector.Store, graphdb.Store, kvstore.Store, document.Store,
// cache.Store, relational.Store).
type Adapter interface {
	// Namespace returns the isolation namespace this adapter instance was
	// constructed with.
	Namespace() string

	// Backend names the concrete backend in use (e.g. "native", "file",
	// "redis", "bbolt") — primarily for observability.
	Backend() string

	// Close flushes and releases any underlying connection or file handle.
	Close() error
}
