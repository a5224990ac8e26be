// Package graph provides the import graph used to order and check .proto
// files. Nodes are canonical file names; an edge from a file to one of its
// imports means the import must come first.
package graph

import (
	"slices"
)

// Graph is a directed import graph with forward edges. Edges keep the
// order in which they were added, which is the declaration order of the
// imports.
type Graph struct {
	nodes map[string]struct{}
	edges map[string][]string
}

// New returns an empty graph with room for sizeHint nodes.
func New(sizeHint int) *Graph {
	return &Graph{
		nodes: make(map[string]struct{}, sizeHint),
		edges: make(map[string][]string, sizeHint),
	}
}

// AddNode registers a file. Duplicate calls are no-ops.
func (g *Graph) AddNode(name string) {
	g.nodes[name] = struct{}{}
}

// AddEdge records that "from" imports "to". Missing nodes are created
// implicitly. Duplicate edges are ignored.
func (g *Graph) AddEdge(from, to string) {
	g.nodes[from] = struct{}{}
	g.nodes[to] = struct{}{}

	if slices.Contains(g.edges[from], to) {
		return
	}
	g.edges[from] = append(g.edges[from], to)
}

// Imports returns the files that name imports, in declaration order.
func (g *Graph) Imports(name string) []string {
	return g.edges[name]
}

// HasNode reports whether the file exists in the graph.
func (g *Graph) HasNode(name string) bool {
	_, ok := g.nodes[name]
	return ok
}

// Len returns the number of files in the graph.
func (g *Graph) Len() int {
	return len(g.nodes)
}

// Nodes returns every file name, sorted.
func (g *Graph) Nodes() []string {
	names := make([]string, 0, len(g.nodes))
	for name := range g.nodes {
		names = append(names, name)
	}
	slices.Sort(names)
	return names
}

// ResolutionOrder returns files ordered so that imports come before
// importers, using Tarjan's algorithm. Strongly connected components with
// more than one file (or a single file importing itself) are reported as
// cycles and excluded from the order.
func (g *Graph) ResolutionOrder() (order []string, cycles [][]string) {
	for _, scc := range g.components() {
		if g.isCycle(scc) {
			cycles = append(cycles, scc)
		} else {
			order = append(order, scc[0])
		}
	}
	return order, cycles
}

// FindCycles returns every import cycle in the graph.
func (g *Graph) FindCycles() [][]string {
	_, cycles := g.ResolutionOrder()
	return cycles
}

// HasCycles reports whether the graph contains any cycles.
func (g *Graph) HasCycles() bool {
	return len(g.FindCycles()) > 0
}

func (g *Graph) isCycle(scc []string) bool {
	return len(scc) > 1 || slices.Contains(g.edges[scc[0]], scc[0])
}

// components returns the strongly connected components in reverse
// topological order (imports first). Start nodes are visited in sorted
// order so the result is deterministic.
func (g *Graph) components() [][]string {
	var (
		index    int
		stack    []string
		sccs     [][]string
		onStack  = make(map[string]bool)
		indices  = make(map[string]int)
		lowlinks = make(map[string]int)
	)

	var strongConnect func(name string)
	strongConnect = func(name string) {
		indices[name] = index
		lowlinks[name] = index
		index++
		stack = append(stack, name)
		onStack[name] = true

		for _, dep := range g.edges[name] {
			if _, visited := indices[dep]; !visited {
				strongConnect(dep)
				lowlinks[name] = min(lowlinks[name], lowlinks[dep])
			} else if onStack[dep] {
				lowlinks[name] = min(lowlinks[name], indices[dep])
			}
		}

		if lowlinks[name] == indices[name] {
			var scc []string
			for {
				w := stack[len(stack)-1]
				stack = stack[:len(stack)-1]
				onStack[w] = false
				scc = append(scc, w)
				if w == name {
					break
				}
			}
			slices.Sort(scc)
			sccs = append(sccs, scc)
		}
	}

	for _, name := range g.Nodes() {
		if _, visited := indices[name]; !visited {
			strongConnect(name)
		}
	}
	return sccs
}
