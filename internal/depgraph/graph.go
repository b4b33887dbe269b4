// Package depgraph orders relations so that every relation is created and
// loaded after the relations it depends on.
//
// Nodes live in a flat slice and are addressed by index; a name index maps
// relation names to node indexes. Edges are stored with their kind because
// the two kinds point in opposite directions relative to load order: a
// foreign key edge runs from the owning table to the table it references,
// a usage edge runs from a base relation to the view that reads it.
package depgraph

import (
	"fmt"
	"sort"
	"strings"

	"github.com/johndauphine/pg2sqlite/internal/migerr"
)

// NodeKind tags a node as a table or a view.
type NodeKind int

const (
	Table NodeKind = iota + 1
	View
)

func (k NodeKind) String() string {
	switch k {
	case Table:
		return "table"
	case View:
		return "view"
	default:
		return "unknown"
	}
}

// EdgeKind tags an edge as a foreign key or a view usage.
type EdgeKind int

const (
	// ForeignKey runs from the owning table to the referenced table.
	ForeignKey EdgeKind = iota + 1
	// Usage runs from a base relation to the view reading it.
	Usage
)

// Node is one relation.
type Node struct {
	Name string
	Kind NodeKind
}

// Edge connects two nodes by index.
type Edge struct {
	From, To int
	Kind     EdgeKind
	// Label is the constraint name for foreign keys.
	Label string
}

// Graph is a directed multigraph over relations. Parallel edges are kept.
type Graph struct {
	nodes []Node
	edges []Edge
	index map[string]int
}

// New returns an empty graph.
func New() *Graph {
	return &Graph{index: make(map[string]int)}
}

// AddNode adds a relation. Names must be unique across tables and views.
func (g *Graph) AddNode(name string, kind NodeKind) error {
	if existing, ok := g.index[name]; ok {
		return migerr.Newf(migerr.KindNamespaceConflict,
			"%s %s conflicts with %s %s", kind, name, g.nodes[existing].Kind, name)
	}
	g.index[name] = len(g.nodes)
	g.nodes = append(g.nodes, Node{Name: name, Kind: kind})
	return nil
}

// AddEdge connects two existing relations. A foreign key from a table to
// itself does not constrain ordering and is ignored.
func (g *Graph) AddEdge(from, to string, kind EdgeKind, label string) error {
	fi, ok := g.index[from]
	if !ok {
		return migerr.Newf(migerr.KindDependencyIntegrity, "edge %s references missing relation %s", label, from)
	}
	ti, ok := g.index[to]
	if !ok {
		return migerr.Newf(migerr.KindDependencyIntegrity, "edge %s references missing relation %s", label, to)
	}
	if fi == ti && kind == ForeignKey {
		return nil
	}
	g.edges = append(g.edges, Edge{From: fi, To: ti, Kind: kind, Label: label})
	return nil
}

// Len returns the number of nodes.
func (g *Graph) Len() int { return len(g.nodes) }

// Node returns the node registered under name.
func (g *Graph) Node(name string) (Node, bool) {
	i, ok := g.index[name]
	if !ok {
		return Node{}, false
	}
	return g.nodes[i], true
}

// Edges returns a copy of the edge list.
func (g *Graph) Edges() []Edge {
	out := make([]Edge, len(g.edges))
	copy(out, g.edges)
	return out
}

// TopologicalSort returns node names such that for every edge u->v, u comes
// before v. Nodes that are ready at the same time are taken in name order.
func (g *Graph) TopologicalSort() ([]string, error) {
	return g.kahn(func(e Edge) (int, int) { return e.From, e.To })
}

// LoadOrder returns the creation and load order: every referenced table
// precedes the tables holding foreign keys to it, and every base relation
// precedes the views reading it. Foreign key edges are followed against
// their direction, usage edges along it.
func (g *Graph) LoadOrder() ([]string, error) {
	return g.kahn(func(e Edge) (int, int) {
		if e.Kind == ForeignKey {
			return e.To, e.From
		}
		return e.From, e.To
	})
}

// kahn runs Kahn's algorithm over the edges as oriented by dir, where dir
// returns (before, after) for an edge.
func (g *Graph) kahn(dir func(Edge) (int, int)) ([]string, error) {
	n := len(g.nodes)
	indegree := make([]int, n)
	dependents := make([][]int, n)
	for _, e := range g.edges {
		before, after := dir(e)
		indegree[after]++
		dependents[before] = append(dependents[before], after)
	}

	var ready []int
	for i := 0; i < n; i++ {
		if indegree[i] == 0 {
			ready = append(ready, i)
		}
	}

	order := make([]string, 0, n)
	for len(ready) > 0 {
		sort.Slice(ready, func(a, b int) bool {
			return g.nodes[ready[a]].Name < g.nodes[ready[b]].Name
		})
		next := ready[0]
		ready = ready[1:]
		order = append(order, g.nodes[next].Name)
		for _, d := range dependents[next] {
			indegree[d]--
			if indegree[d] == 0 {
				ready = append(ready, d)
			}
		}
	}

	if len(order) != n {
		var stuck []string
		for i := 0; i < n; i++ {
			if indegree[i] > 0 {
				stuck = append(stuck, g.nodes[i].Name)
			}
		}
		sort.Strings(stuck)
		return nil, &CycleError{Relations: stuck}
	}
	return order, nil
}

// CycleError reports relations that take part in, or depend on, a cycle.
type CycleError struct {
	Relations []string
}

func (e *CycleError) Error() string {
	return fmt.Sprintf("dependency graph has a cycle among: %s", strings.Join(e.Relations, ", "))
}

// Order builds the load order and tags a cycle as a graph cycle error.
func (g *Graph) Order() ([]string, error) {
	order, err := g.LoadOrder()
	if err != nil {
		return nil, migerr.Wrap(migerr.KindGraphCycle, "ordering relations", err)
	}
	return order, nil
}

// Dependency names the two ends of an edge by relation name.
type Dependency struct {
	From, To string
	Label    string
}

// Build creates one node per table and view, one edge per foreign key
// (owner -> referenced) and one edge per usage (base -> view).
func Build(tables, views []string, foreignKeys, usages []Dependency) (*Graph, error) {
	g := New()
	for _, name := range tables {
		if err := g.AddNode(name, Table); err != nil {
			return nil, err
		}
	}
	for _, name := range views {
		if err := g.AddNode(name, View); err != nil {
			return nil, err
		}
	}
	for _, fk := range foreignKeys {
		if err := g.AddEdge(fk.From, fk.To, ForeignKey, fk.Label); err != nil {
			return nil, err
		}
	}
	for _, u := range usages {
		if err := g.AddEdge(u.From, u.To, Usage, u.Label); err != nil {
			return nil, err
		}
	}
	return g, nil
}
