package dbfacade

import (
	"sync"

	"github.com/tekton-fabric/core/errs"
)

const component = "dbfacade"

// Constructor builds a fresh Adapter for the given namespace.
type Constructor func(namespace string) (Adapter, error)

type namedConstructor struct {
	name string
	ctor Constructor
}

type poolKey struct {
	dbType    DBType
	namespace string
	backend   string
}

// Factory constructs and pools adapters by (type, namespace, backend). A
// single mutex guards the pool and the backend registry (spec §5); each
// adapter's internal locking is its own responsibility.
type Factory struct {
	mu       sync.Mutex
	backends map[DBType][]namedConstructor
	pool     map[poolKey]Adapter

	// OnFallback is called whenever the preferred backend for a (type,
	// namespace) pair fails with Unavailable and the Factory falls
	// through to the next registered backend. Defaults to a no-op; wire a
	// logger here.
	OnFallback func(dbType DBType, namespace, backend string, err error)
}

// NewFactory creates an empty Factory. Register backends with Register
// before calling Create.
func NewFactory() *Factory {
	return &Factory{
		backends:   make(map[DBType][]namedConstructor),
		pool:       make(map[poolKey]Adapter),
		OnFallback: func(DBType, string, string, error) {},
	}
}

// Register adds a named backend constructor for dbType. Registration order
// is preference order: Create tries backends in the order they were
// registered, falling through to the next on an Unavailable error.
func (f *Factory) Register(dbType DBType, backend string, ctor Constructor) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.backends[dbType] = append(f.backends[dbType], namedConstructor{name: backend, ctor: ctor})
}

// Create returns a pooled adapter for (dbType, namespace). If backend is
// non-empty, that specific registered backend is used with no fallback. If
// empty, Create tries registered backends in preference order, falling
// through to the next whenever a construction attempt fails with
// errs.Unavailable (spec §4.4 backend selection step 3); any other error,
// or exhausting every backend, is returned directly.
func (f *Factory) Create(dbType DBType, namespace, backend string) (Adapter, error) {
	f.mu.Lock()
	defer f.mu.Unlock()

	candidates := f.backends[dbType]
	if len(candidates) == 0 {
		return nil, errs.New(component, "create", errs.NotFound, "no backend registered for db type").
			WithDetails(map[string]any{"db_type": string(dbType)})
	}

	if backend != "" {
		for _, nc := range candidates {
			if nc.name != backend {
				continue
			}
			return f.getOrConstruct(dbType, namespace, nc)
		}
		return nil, errs.New(component, "create", errs.NotFound, "no such backend registered").
			WithDetails(map[string]any{"db_type": string(dbType), "backend": backend})
	}

	var lastErr error
	for i, nc := range candidates {
		adapter, err := f.getOrConstruct(dbType, namespace, nc)
		if err == nil {
			return adapter, nil
		}
		lastErr = err
		if errs.IsKind(err, errs.Unavailable) && i < len(candidates)-1 {
			f.OnFallback(dbType, namespace, nc.name, err)
			continue
		}
		return nil, err
	}
	return nil, lastErr
}

// ClientFor is the Registry-facing entry point for components obtaining a
// database client: it prefixes namespace with componentID before calling
// Create so two independently-registered components that happen to pass
// the same bare namespace string never collide on the same pooled adapter
// (spec §4.4's mandatory collision-avoidance rule).
func (f *Factory) ClientFor(componentID, namespace string, dbType DBType, backend string) (Adapter, error) {
	if componentID == "" {
		return nil, errs.New(component, "client_for", errs.InvalidArgument, "component id is required")
	}
	return f.Create(dbType, componentID+":"+namespace, backend)
}

func (f *Factory) getOrConstruct(dbType DBType, namespace string, nc namedConstructor) (Adapter, error) {
	key := poolKey{dbType: dbType, namespace: namespace, backend: nc.name}
	if adapter, ok := f.pool[key]; ok {
		return adapter, nil
	}
	adapter, err := nc.ctor(namespace)
	if err != nil {
		return nil, err
	}
	f.pool[key] = adapter
	return adapter, nil
}

// Close closes every pooled adapter, collecting but not stopping on
// individual errors.
func (f *Factory) Close() error {
	f.mu.Lock()
	defer f.mu.Unlock()

	var firstErr error
	for key, adapter := range f.pool {
		if err := adapter.Close(); err != nil && firstErr == nil {
			firstErr = err
		}
		delete(f.pool, key)
	}
	return firstErr
}
