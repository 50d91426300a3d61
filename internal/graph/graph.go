package graph

import (
	"fmt"
	"sort"

	"cloudforge/internal/resource"
	"cloudforge/internal/scoring"
)

// Error marks an unresolvable structural conflict, e.g. a declared dependency
// name matching no node. It stops the run before synthesis.
type Error struct {
	Resource string
	Reason   string
}

func (e *Error) Error() string {
	return fmt.Sprintf("graph: %s: %s", e.Resource, e.Reason)
}

// Node is one resource in the dependency graph. Synthesis later attaches the
// finalized spec; each synthesis owns exactly one node and never touches a
// sibling's.
type Node struct {
	Name        string
	ServiceType string
	Confidence  float64
	DependsOn   []string

	// Set by synthesis; nil until then or when synthesis was skipped.
	Spec *resource.Spec
}

// RemovedEdge records one edge dropped during cycle resolution.
type RemovedEdge struct {
	From string
	To   string
}

// Graph is the directed "depends-on" relation over resource nodes. After
// Resolve it is acyclic; after Order it is read-only.
type Graph struct {
	nodes   map[string]*Node
	edges   map[string]map[string]bool
	removed []RemovedEdge
	order   []string
}

// Build creates one node per scored dependency and an edge A -> B whenever
// A declares B's logical name. Duplicate logical names violate the
// uniqueness invariant; a declared name matching no node is an *Error.
func Build(deps []scoring.Dependency) (*Graph, error) {
	g := &Graph{
		nodes: make(map[string]*Node, len(deps)),
		edges: make(map[string]map[string]bool, len(deps)),
	}

	for _, dep := range deps {
		name := dep.SuggestedName
		if name == "" {
			return nil, &Error{Resource: dep.ServiceType, Reason: "empty logical name"}
		}
		if _, exists := g.nodes[name]; exists {
			return nil, &Error{Resource: name, Reason: "duplicate logical name"}
		}
		dependsOn := make([]string, len(dep.DependsOn))
		copy(dependsOn, dep.DependsOn)
		g.nodes[name] = &Node{
			Name:        name,
			ServiceType: dep.ServiceType,
			Confidence:  dep.Confidence,
			DependsOn:   dependsOn,
		}
		g.edges[name] = make(map[string]bool)
	}

	for name, node := range g.nodes {
		for _, target := range node.DependsOn {
			if _, ok := g.nodes[target]; !ok {
				return nil, &Error{Resource: name, Reason: fmt.Sprintf("declared dependency %q not present among nodes", target)}
			}
			if target == name {
				// A self-loop is a one-node cycle; drop it at build time.
				g.removed = append(g.removed, RemovedEdge{From: name, To: name})
				continue
			}
			g.edges[name][target] = true
		}
	}

	return g, nil
}

// Node returns the named node.
func (g *Graph) Node(name string) (*Node, bool) {
	node, ok := g.nodes[name]
	return node, ok
}

// Len returns the node count.
func (g *Graph) Len() int {
	return len(g.nodes)
}

// Names returns all logical names in lexicographic order.
func (g *Graph) Names() []string {
	names := make([]string, 0, len(g.nodes))
	for name := range g.nodes {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

// RemovedEdges returns the edges dropped by cycle resolution.
func (g *Graph) RemovedEdges() []RemovedEdge {
	out := make([]RemovedEdge, len(g.removed))
	copy(out, g.removed)
	return out
}

// Resolve detects cycles and breaks each by removing the outgoing edge of
// the cycle's lowest-confidence source node; on exact confidence ties the
// lexicographically later logical name loses its edge. Detection reruns
// until the graph is acyclic. Each pass removes one edge, so it terminates.
func (g *Graph) Resolve() []RemovedEdge {
	var removedNow []RemovedEdge
	for {
		cycle := g.findCycle()
		if cycle == nil {
			break
		}
		edge := chooseEdgeToRemove(g, cycle)
		delete(g.edges[edge.From], edge.To)
		g.removed = append(g.removed, edge)
		removedNow = append(removedNow, edge)
	}
	return removedNow
}

// findCycle runs DFS with white/grey/black coloring and returns one cycle as
// a node sequence (closing node repeated at the end), or nil if acyclic.
// Neighbors are visited in sorted order so resolution is deterministic.
func (g *Graph) findCycle() []string {
	const (
		white = 0
		grey  = 1
		black = 2
	)
	color := make(map[string]int, len(g.nodes))
	var stack []string
	var cycle []string

	var visit func(name string) bool
	visit = func(name string) bool {
		color[name] = grey
		stack = append(stack, name)

		for _, next := range g.sortedNeighbors(name) {
			switch color[next] {
			case grey:
				start := 0
				for i, n := range stack {
					if n == next {
						start = i
						break
					}
				}
				cycle = append(append([]string{}, stack[start:]...), next)
				return true
			case white:
				if visit(next) {
					return true
				}
			}
		}

		stack = stack[:len(stack)-1]
		color[name] = black
		return false
	}

	for _, name := range g.Names() {
		if color[name] == white {
			if visit(name) {
				return cycle
			}
		}
	}
	return nil
}

func (g *Graph) sortedNeighbors(name string) []string {
	targets := make([]string, 0, len(g.edges[name]))
	for target := range g.edges[name] {
		targets = append(targets, target)
	}
	sort.Strings(targets)
	return targets
}

// chooseEdgeToRemove picks the cycle edge whose source has the lowest
// confidence, favoring edges sourced from higher-confidence nodes. Exact
// ties fall to the lexicographically later source name.
func chooseEdgeToRemove(g *Graph, cycle []string) RemovedEdge {
	best := RemovedEdge{From: cycle[0], To: cycle[1]}
	bestConf := g.nodes[best.From].Confidence

	for i := 1; i < len(cycle)-1; i++ {
		from, to := cycle[i], cycle[i+1]
		conf := g.nodes[from].Confidence
		if conf < bestConf || (conf == bestConf && from > best.From) {
			best = RemovedEdge{From: from, To: to}
			bestConf = conf
		}
	}
	return best
}

// Order computes the deployment order with Kahn's algorithm. A node becomes
// eligible once every node it depends on has been emitted; among eligible
// nodes the lexicographically smallest logical name goes first, making the
// order reproducible regardless of input iteration order. The graph must be
// acyclic (call Resolve first).
func (g *Graph) Order() ([]string, error) {
	if g.order != nil {
		out := make([]string, len(g.order))
		copy(out, g.order)
		return out, nil
	}

	// indegree counts unmet dependencies: edge A -> B means A waits for B.
	indegree := make(map[string]int, len(g.nodes))
	dependents := make(map[string][]string, len(g.nodes))
	for name := range g.nodes {
		indegree[name] = len(g.edges[name])
		for target := range g.edges[name] {
			dependents[target] = append(dependents[target], name)
		}
	}

	var ready []string
	for _, name := range g.Names() {
		if indegree[name] == 0 {
			ready = append(ready, name)
		}
	}

	order := make([]string, 0, len(g.nodes))
	for len(ready) > 0 {
		sort.Strings(ready)
		name := ready[0]
		ready = ready[1:]
		order = append(order, name)

		for _, dependent := range dependents[name] {
			indegree[dependent]--
			if indegree[dependent] == 0 {
				ready = append(ready, dependent)
			}
		}
	}

	if len(order) != len(g.nodes) {
		return nil, &Error{Resource: "", Reason: "cycle remained after resolution"}
	}

	g.order = order
	out := make([]string, len(order))
	copy(out, order)
	return out, nil
}
