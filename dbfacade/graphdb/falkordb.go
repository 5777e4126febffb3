package graphdb

import (
	"fmt"
	"strings"

	falkordb "github.com/FalkorDB/falkordb-go/v2"

	"github.com/tekton-fabric/core/errs"
)

// FalkorStore is the graph family's native backend: a thin adapter over a
// FalkorDB graph, selected by namespace. Cypher-like statements pass
// through to FalkorDB directly; AddNode/AddRelationship/GetNode/
// GetRelationships/Delete* are expressed as parameterized Cypher so every
// call goes through the same query path the server optimizes.
type FalkorStore struct {
	namespace string
	client    *falkordb.FalkorDB
	graph     falkordb.Graph
}

// FalkorConfig names the FalkorDB server to dial.
type FalkorConfig struct {
	Addr     string
	Password string
}

// NewFalkorStore dials addr and selects namespace as the graph name. A
// failed dial (or failed initial ping) returns errs.Unavailable so the
// Factory falls through to the memory backend.
func NewFalkorStore(cfg FalkorConfig, namespace string) (Store, error) {
	client, err := falkordb.FalkorDBNew(&falkordb.ConnectionOption{
		Addr:     cfg.Addr,
		Password: cfg.Password,
	})
	if err != nil {
		return nil, errs.New(component, "dial", errs.Unavailable, "connect to falkordb").WithCause(err)
	}

	graph := client.SelectGraph(namespace)
	if _, err := graph.Query("RETURN 1", nil, nil); err != nil {
		return nil, errs.New(component, "dial", errs.Unavailable, "falkordb not reachable").WithCause(err)
	}

	return &FalkorStore{namespace: namespace, client: client, graph: graph}, nil
}

func (s *FalkorStore) Namespace() string { return s.namespace }
func (s *FalkorStore) Backend() string   { return "falkordb" }

func (s *FalkorStore) Close() error { return nil }

func (s *FalkorStore) AddNode(id string, labels []string, props map[string]any) error {
	label := "Node"
	if len(labels) > 0 {
		label = labels[0]
	}
	params := mergeParams(props, map[string]any{"id": id, "labels": labels})
	stmt := fmt.Sprintf("MERGE (n:%s {id: $id}) SET n += $props, n.labels = $labels", escapeLabel(label))
	_, err := s.graph.Query(stmt, params, nil)
	if err != nil {
		return errs.New(component, "add_node", errs.Internal, "falkordb query failed").WithCause(err)
	}
	return nil
}

func (s *FalkorStore) AddRelationship(src, dst, relType string, props map[string]any) error {
	params := mergeParams(props, map[string]any{"src": src, "dst": dst})
	stmt := fmt.Sprintf(
		"MATCH (a {id: $src}), (b {id: $dst}) MERGE (a)-[r:%s]->(b) SET r += $props",
		escapeLabel(relType),
	)
	_, err := s.graph.Query(stmt, params, nil)
	if err != nil {
		return errs.New(component, "add_relationship", errs.Internal, "falkordb query failed").WithCause(err)
	}
	return nil
}

func (s *FalkorStore) GetNode(id string) (Node, bool, error) {
	result, err := s.graph.Query("MATCH (n {id: $id}) RETURN n", map[string]any{"id": id}, nil)
	if err != nil {
		return Node{}, false, errs.New(component, "get_node", errs.Internal, "falkordb query failed").WithCause(err)
	}
	if result == nil || !result.Next() {
		return Node{}, false, nil
	}
	record := result.Record()
	raw, ok := record.GetByIndex(0).(*falkordb.Node)
	if !ok {
		return Node{}, false, nil
	}
	return Node{ID: id, Labels: raw.Labels, Props: raw.Properties}, true, nil
}

func (s *FalkorStore) GetRelationships(id string, relTypes []string, dir Direction) ([]Relationship, error) {
	pattern := "(a {id: $id})-[r]->(b)"
	switch dir {
	case In:
		pattern = "(a {id: $id})<-[r]-(b)"
	case Both:
		pattern = "(a {id: $id})-[r]-(b)"
	}
	stmt := fmt.Sprintf("MATCH %s RETURN type(r), a.id, b.id, properties(r), r", pattern)

	result, err := s.graph.Query(stmt, map[string]any{"id": id}, nil)
	if err != nil {
		return nil, errs.New(component, "get_relationships", errs.Internal, "falkordb query failed").WithCause(err)
	}

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

	var rels []Relationship
	for result != nil && result.Next() {
		record := result.Record()
		relType, _ := record.GetByIndex(0).(string)
		if !wantType(relType) {
			continue
		}
		srcID, _ := record.GetByIndex(1).(string)
		dstID, _ := record.GetByIndex(2).(string)
		props, _ := record.GetByIndex(3).(map[string]any)
		if dir == In {
			rels = append(rels, Relationship{Source: dstID, Target: srcID, Type: relType, Props: props})
		} else {
			rels = append(rels, Relationship{Source: srcID, Target: dstID, Type: relType, Props: props})
		}
	}
	return rels, nil
}

// Query runs statement directly against FalkorDB. This is the adapter
// family's only backend where Query is meaningfully supported — it is
// FalkorDB's own Cypher dialect.
func (s *FalkorStore) Query(statement string, params map[string]any) (*QueryResult, error) {
	result, err := s.graph.Query(statement, params, nil)
	if err != nil {
		return nil, errs.New(component, "query", errs.Internal, "falkordb query failed").WithCause(err)
	}
	out := &QueryResult{Columns: result.Header()}
	for result.Next() {
		record := result.Record()
		row := make(map[string]any, len(out.Columns))
		for i, col := range out.Columns {
			row[col] = record.GetByIndex(i)
		}
		out.Rows = append(out.Rows, row)
	}
	return out, nil
}

func (s *FalkorStore) DeleteNode(id string) error {
	_, err := s.graph.Query("MATCH (n {id: $id}) DETACH DELETE n", map[string]any{"id": id}, nil)
	if err != nil {
		return errs.New(component, "delete_node", errs.Internal, "falkordb query failed").WithCause(err)
	}
	return nil
}

func (s *FalkorStore) DeleteRelationship(src, dst, relType string) error {
	pattern := "[r]"
	if relType != "" {
		pattern = fmt.Sprintf("[r:%s]", escapeLabel(relType))
	}
	stmt := fmt.Sprintf("MATCH (a {id: $src})-%s->(b {id: $dst}) DELETE r", pattern)
	_, err := s.graph.Query(stmt, map[string]any{"src": src, "dst": dst}, nil)
	if err != nil {
		return errs.New(component, "delete_relationship", errs.Internal, "falkordb query failed").WithCause(err)
	}
	return nil
}

func mergeParams(props map[string]any, extra map[string]any) map[string]any {
	out := map[string]any{"props": props}
	for k, v := range extra {
		out[k] = v
	}
	return out
}

// escapeLabel strips characters Cypher label/relationship-type syntax
// can't carry, since labels here are interpolated rather than bound
// (FalkorDB, like Neo4j's Cypher, does not allow parameterized labels).
func escapeLabel(label string) string {
	var b strings.Builder
	for _, r := range label {
		if r == '_' || (r >= 'a' && r <= 'z') || (r >= 'A' && r <= 'Z') || (r >= '0' && r <= '9') {
			b.WriteRune(r)
		}
	}
	if b.Len() == 0 {
		return "Node"
	}
	return b.String()
}
