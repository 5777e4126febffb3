// Package graphdb implements the Database Facade's graph adapter family
// (spec §4.4): node/relationship CRUD plus a narrow Cypher-like query
// surface, backed natively by FalkorDB with an in-memory adjacency-list
// fallback for when no graph server is reachable.
package graphdb

import "github.com/tekton-fabric/core/errs"

const component = "dbfacade.graphdb"

// Direction selects which edges GetRelationships traverses.
type Direction string

const (
	Out  Direction = "out"
	In   Direction = "in"
	Both Direction = "both"
)

// Node is a labeled, attributed graph vertex.
type Node struct {
	ID     string
	Labels []string
	Props  map[string]any
}

// Relationship is a typed, attributed, directed edge between two nodes.
type Relationship struct {
	Source string
	Target string
	Type   string
	Props  map[string]any
}

// QueryResult is the tabular result of a Query call: Columns names each
// returned field, and Rows holds one map per matched row keyed by column.
type QueryResult struct {
	Columns []string
	Rows    []map[string]any
}

// Store is the graph adapter's operation set (spec §4.4).
type Store interface {
	Namespace() string
	Backend() string
	Close() error

	// AddNode upserts a node by id with the given labels and properties.
	AddNode(id string, labels []string, props map[string]any) error

	// AddRelationship upserts a directed, typed edge from src to dst. Both
	// endpoints must already exist.
	AddRelationship(src, dst, relType string, props map[string]any) error

	// GetNode returns id's node, or ok=false if absent.
	GetNode(id string) (Node, bool, error)

	// GetRelationships returns every edge touching id in direction dir,
	// optionally filtered to relTypes (all types if empty).
	GetRelationships(id string, relTypes []string, dir Direction) ([]Relationship, error)

	// Query runs a backend-native Cypher-like statement with bound params.
	Query(statement string, params map[string]any) (*QueryResult, error)

	// DeleteNode removes id and every edge touching it.
	DeleteNode(id string) error

	// DeleteRelationship removes the edge src->dst. If relType is empty,
	// every edge between src and dst is removed regardless of type.
	DeleteRelationship(src, dst, relType string) error
}

func errNodeNotFound(op, id string) error {
	return errs.New(component, op, errs.NotFound, "node not found").
		WithDetails(map[string]any{"id": id})
}
