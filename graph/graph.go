// Package graph implements NodeGraph, the ordered collection of
// NodeMachines that a loaded Karma program is made of, plus the
// adjacency relation between them. A node's position in the Nodes
// slice is its identity, and cross-node edges are recorded by index
// rather than by name once the manifest is resolved.
package graph

import (
	"fmt"
	"strings"

	"github.com/mihirlaud/karma/vm"
)

// NodeGraph owns every NodeMachine loaded for a program and the
// adjacency between them. Node 0 is always the entry node: the loader
// guarantees this by assigning indices in manifest key order.
type NodeGraph struct {
	Names     []string
	Nodes     []*vm.NodeMachine
	Adjacency map[int][]int
}

// New builds an empty graph, ready to be populated by a loader.
func New() *NodeGraph {
	return &NodeGraph{Adjacency: make(map[int][]int)}
}

// AddNode appends a node, returning its assigned index.
func (g *NodeGraph) AddNode(name string, m *vm.NodeMachine) int {
	idx := len(g.Nodes)
	g.Names = append(g.Names, name)
	g.Nodes = append(g.Nodes, m)
	return idx
}

// Neighbors returns the ordered list of node indices reachable from
// idx. Cross-node dispatch itself is not implemented (see
// loader.VirtualMachine.Execute); this accessor exists so callers and tests can inspect
// the graph's shape without it.
func (g *NodeGraph) Neighbors(idx int) []int {
	return g.Adjacency[idx]
}

// Entry returns the entry node, i.e. Nodes[0].
func (g *NodeGraph) Entry() *vm.NodeMachine {
	if len(g.Nodes) == 0 {
		return nil
	}
	return g.Nodes[0]
}

// String renders the node count and adjacency in a form suitable for
// the debug REPL's startup banner and for readable test failures.
func (g *NodeGraph) String() string {
	var b strings.Builder
	fmt.Fprintf(&b, "NodeGraph{%d nodes}\n", len(g.Nodes))
	for idx, name := range g.Names {
		fmt.Fprintf(&b, "  [%d] %s -> %v\n", idx, name, g.Adjacency[idx])
	}
	return b.String()
}
