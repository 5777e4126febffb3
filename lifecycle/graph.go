package lifecycle

import "sync"

// DependencyGraph tracks component -> dependency edges. It is
// writer-exclusive; reads take a point-in-time snapshot (spec §5).
type DependencyGraph struct {
	mu    sync.Mutex
	edges map[string]map[string]bool // id -> set of dependency ids
}

func newDependencyGraph() *DependencyGraph {
	return &DependencyGraph{edges: make(map[string]map[string]bool)}
}

// RegisterDependency records that id depends on each of deps.
func (g *DependencyGraph) RegisterDependency(id string, deps []string) {
	g.mu.Lock()
	defer g.mu.Unlock()
	if g.edges[id] == nil {
		g.edges[id] = make(map[string]bool)
	}
	for _, dep := range deps {
		g.edges[id][dep] = true
	}
}

// snapshot returns a deep copy of the edge map for lock-free traversal.
func (g *DependencyGraph) snapshot() map[string][]string {
	g.mu.Lock()
	defer g.mu.Unlock()
	out := make(map[string][]string, len(g.edges))
	for id, deps := range g.edges {
		list := make([]string, 0, len(deps))
		for dep := range deps {
			list = append(list, dep)
		}
		out[id] = list
	}
	return out
}

// removeEdge deletes a single dependency edge.
func (g *DependencyGraph) removeEdge(from, to string) {
	g.mu.Lock()
	defer g.mu.Unlock()
	if deps, ok := g.edges[from]; ok {
		delete(deps, to)
	}
}

// DependenciesOf returns the current dependency ids for id.
func (g *DependencyGraph) DependenciesOf(id string) []string {
	snap := g.snapshot()
	return snap[id]
}

// Cycle is one cycle discovered by DetectCycles, given as the path of ids
// walked before returning to its starting point.
type Cycle struct {
	Path []string
}

// DetectCycles runs DFS with path tracking over the current snapshot and
// returns every cycle found.
func (g *DependencyGraph) DetectCycles() []Cycle {
	snap := g.snapshot()

	var cycles []Cycle
	visited := make(map[string]bool)
	onPath := make(map[string]bool)
	var path []string

	var visit func(id string)
	visit = func(id string) {
		visited[id] = true
		onPath[id] = true
		path = append(path, id)

		for _, dep := range snap[id] {
			if onPath[dep] {
				// found a cycle: the portion of path from dep's first
				// occurrence to the current tail, closed back to dep.
				start := indexOf(path, dep)
				cyclePath := append(append([]string(nil), path[start:]...), dep)
				cycles = append(cycles, Cycle{Path: cyclePath})
				continue
			}
			if !visited[dep] {
				visit(dep)
			}
		}

		path = path[:len(path)-1]
		onPath[id] = false
	}

	for id := range snap {
		if !visited[id] {
			visit(id)
		}
	}
	return cycles
}

func indexOf(path []string, id string) int {
	for i, v := range path {
		if v == id {
			return i
		}
	}
	return 0
}

// ResolveCycles breaks every cycle DetectCycles finds by removing the last
// edge in its discovered path (spec §4.3's explicit, simple rule) and
// reports each removal via onResolve. Repeated cycles imply
// misconfiguration; the supervisor reports but continues rather than
// failing the whole graph.
func (g *DependencyGraph) ResolveCycles(onResolve func(cycle Cycle, removedFrom, removedTo string)) []Cycle {
	cycles := g.DetectCycles()
	for _, cycle := range cycles {
		if len(cycle.Path) < 2 {
			continue
		}
		from := cycle.Path[len(cycle.Path)-2]
		to := cycle.Path[len(cycle.Path)-1]
		g.removeEdge(from, to)
		if onResolve != nil {
			onResolve(cycle, from, to)
		}
	}
	return cycles
}
