package audit

import (
	"github.com/pkg/errors"
)

// NodeIdx is a stable index into a DepGraph's node slice. Edges reference
// nodes by index rather than by pointer, the same way the teacher lineage's
// own gps solver addresses project atoms by slice position rather than
// building an ownership-cycle-prone pointer graph.
type NodeIdx int

// Node is one package-version participating in the build, plus its three
// edge kinds and the booleans the resolver's policy propagation needs.
type Node struct {
	ID               PackageId
	IsWorkspaceMember bool
	IsRoot           bool
	IsDevOnly        bool
	NormalDeps       []NodeIdx
	DevDeps          []NodeIdx
	BuildDeps        []NodeIdx
}

func (n *Node) isThirdParty() bool { return n.ID.IsThirdParty() }

// allDeps returns every outgoing edge, regardless of kind.
func (n *Node) allDeps() []NodeIdx {
	out := make([]NodeIdx, 0, len(n.NormalDeps)+len(n.DevDeps)+len(n.BuildDeps))
	out = append(out, n.NormalDeps...)
	out = append(out, n.DevDeps...)
	out = append(out, n.BuildDeps...)
	return out
}

// Package is one entry in the raw Metadata input: a package-version and its
// declared edges to other entries, by index within Metadata.Packages.
type Package struct {
	Name       string
	Version    string
	Source     Source
	IsRoot     bool
	Deps       []int
	DevDeps    []int
	BuildDeps  []int
}

// Metadata is the workspace graph input the engine is handed; acquiring it
// (running `go list`, parsing go.mod/go.sum) is out of scope for this
// package (see internal/metadata for a thin, best-effort loader).
type Metadata struct {
	WorkspaceRoot string
	Packages      []Package
}

// DepGraph is a filtered, topologically-ordered view of a Metadata value:
// leaves first, stable indices for the life of the instance.
type DepGraph struct {
	Nodes []Node
	byID  map[PackageId]NodeIdx
}

// NodeByID looks up a node by its package identity.
func (g *DepGraph) NodeByID(id PackageId) (NodeIdx, bool) {
	idx, ok := g.byID[id]
	return idx, ok
}

// Roots returns the indices of every workspace-member root node.
func (g *DepGraph) Roots() []NodeIdx {
	var out []NodeIdx
	for i, n := range g.Nodes {
		if n.IsRoot {
			out = append(out, NodeIdx(i))
		}
	}
	return out
}

// BuildDepGraph constructs the original, unfiltered graph from md: is_root
// is taken from each workspace member's metadata root flag, the nodes are
// topologically sorted, and is_dev_only is computed by reachability from
// the roots. A GraphCycle error is returned if the declared edges are not
// acyclic.
func BuildDepGraph(md Metadata) (*DepGraph, error) {
	n := len(md.Packages)
	nodes := make([]Node, n)
	byID := make(map[PackageId]NodeIdx, n)

	for i, p := range md.Packages {
		id := PackageId{Name: p.Name, Version: NewVersion(p.Version), Source: p.Source}
		nodes[i] = Node{
			ID:                id,
			IsWorkspaceMember: !p.Source.IsThirdParty(),
			NormalDeps:        toNodeIdx(p.Deps),
			DevDeps:           toNodeIdx(p.DevDeps),
			BuildDeps:         toNodeIdx(p.BuildDeps),
		}
		if _, dup := byID[id]; dup {
			return nil, errors.Errorf("duplicate package id in metadata: %s", id)
		}
		byID[id] = NodeIdx(i)
	}
	for i := range nodes {
		if md.Packages[i].IsRoot && !nodes[i].IsWorkspaceMember {
			return nil, errors.Errorf("package %s marked root but has a third-party source", nodes[i].ID)
		}
		nodes[i].IsRoot = md.Packages[i].IsRoot && nodes[i].IsWorkspaceMember
	}

	order, err := topoSort(nodes)
	if err != nil {
		return nil, err
	}
	nodes, byID = reorderNodes(nodes, order)

	markDevOnlyAndRoots(nodes)

	return &DepGraph{Nodes: nodes, byID: byID}, nil
}

// reorderNodes rearranges nodes into the leaves-first order produced by
// topoSort, remapping every edge slice and the by-ID index to the new
// positions. Callers that depend on this order (the resolver's
// topoOrderStable, and dependents reading an already-resolved dependency's
// effective criteria) require that a dependency always precedes every node
// that depends on it.
func reorderNodes(nodes []Node, order []NodeIdx) ([]Node, map[PackageId]NodeIdx) {
	remap := make([]NodeIdx, len(nodes))
	out := make([]Node, len(nodes))
	for newIdx, oldIdx := range order {
		remap[oldIdx] = NodeIdx(newIdx)
		out[newIdx] = nodes[oldIdx]
	}
	for i := range out {
		out[i].NormalDeps = remapEdges(out[i].NormalDeps, remap)
		out[i].DevDeps = remapEdges(out[i].DevDeps, remap)
		out[i].BuildDeps = remapEdges(out[i].BuildDeps, remap)
	}
	byID := make(map[PackageId]NodeIdx, len(out))
	for i, n := range out {
		byID[n.ID] = NodeIdx(i)
	}
	return out, byID
}

// topoSort returns nodes in leaves-first order, or a GraphCycle error.
func topoSort(nodes []Node) ([]NodeIdx, error) {
	const (
		white = 0
		gray  = 1
		black = 2
	)
	color := make([]int, len(nodes))
	var order []NodeIdx
	var stack []NodeIdx

	var visit func(i NodeIdx) error
	visit = func(i NodeIdx) error {
		color[i] = gray
		stack = append(stack, i)
		for _, d := range nodes[i].allDeps() {
			switch color[d] {
			case gray:
				return errors.Errorf("dependency cycle detected involving %s and %s", nodes[i].ID, nodes[d].ID)
			case white:
				if err := visit(d); err != nil {
					return err
				}
			}
		}
		stack = stack[:len(stack)-1]
		color[i] = black
		order = append(order, i)
		return nil
	}

	for i := range nodes {
		if color[i] == white {
			if err := visit(NodeIdx(i)); err != nil {
				return nil, err
			}
		}
	}
	return order, nil
}

// markDevOnlyAndRoots computes is_dev_only(n) := every path from any
// workspace root to n uses at least one dev-edge, via two reachability
// passes: one over all edges, one restricted to non-dev edges.
func markDevOnlyAndRoots(nodes []Node) {
	reachableAny := make([]bool, len(nodes))
	reachableNonDev := make([]bool, len(nodes))

	var roots []NodeIdx
	for i, n := range nodes {
		if n.IsRoot {
			roots = append(roots, NodeIdx(i))
		}
	}

	var walk func(start NodeIdx, nonDevOnly bool, seen []bool)
	walk = func(start NodeIdx, nonDevOnly bool, seen []bool) {
		var rec func(i NodeIdx)
		rec = func(i NodeIdx) {
			if seen[i] {
				return
			}
			seen[i] = true
			deps := nodes[i].NormalDeps
			deps = append(append([]NodeIdx{}, deps...), nodes[i].BuildDeps...)
			if !nonDevOnly {
				deps = append(deps, nodes[i].DevDeps...)
			}
			for _, d := range deps {
				rec(d)
			}
		}
		rec(start)
	}

	for _, r := range roots {
		walk(r, false, reachableAny)
		walk(r, true, reachableNonDev)
	}

	for i := range nodes {
		if nodes[i].IsRoot {
			nodes[i].IsDevOnly = false
			continue
		}
		nodes[i].IsDevOnly = reachableAny[i] && !reachableNonDev[i]
	}
}

func toNodeIdx(is []int) []NodeIdx {
	out := make([]NodeIdx, len(is))
	for i, v := range is {
		out[i] = NodeIdx(v)
	}
	return out
}

// Filter narrows g to the nodes matching expr: retain nodes matching
// include and not matching exclude, then reachable-close from retained
// workspace members, dropping orphaned third-party nodes even if they
// individually passed. Indices are reassigned by a fresh topological sort.
func (g *DepGraph) Filter(expr *FilterExpr) (*DepGraph, error) {
	if expr == nil {
		return g, nil
	}

	keep := make([]bool, len(g.Nodes))
	for i, n := range g.Nodes {
		matched := expr.q.eval(&n)
		switch expr.kind {
		case filterInclude:
			keep[i] = matched
		case filterExclude:
			keep[i] = !matched
		}
	}

	// Reachable-close from retained workspace members over the retained
	// edge set; this is the "re-projection" step, dropping third-party
	// nodes that no longer have a path from any kept root.
	closed := make([]bool, len(g.Nodes))
	var rec func(i NodeIdx)
	rec = func(i NodeIdx) {
		if closed[i] || !keep[i] {
			return
		}
		closed[i] = true
		for _, d := range g.Nodes[i].allDeps() {
			rec(d)
		}
	}
	for i, n := range g.Nodes {
		if keep[i] && n.IsWorkspaceMember {
			rec(NodeIdx(i))
		}
	}

	remap := make([]NodeIdx, len(g.Nodes))
	for i := range remap {
		remap[i] = -1
	}
	var newNodes []Node
	for i, n := range g.Nodes {
		if !closed[i] {
			continue
		}
		remap[i] = NodeIdx(len(newNodes))
		newNodes = append(newNodes, n)
	}
	for i := range newNodes {
		newNodes[i].NormalDeps = remapEdges(newNodes[i].NormalDeps, remap)
		newNodes[i].DevDeps = remapEdges(newNodes[i].DevDeps, remap)
		newNodes[i].BuildDeps = remapEdges(newNodes[i].BuildDeps, remap)
	}

	order, err := topoSort(newNodes)
	if err != nil {
		return nil, err
	}
	newNodes, byID := reorderNodes(newNodes, order)
	markDevOnlyAndRoots(newNodes)

	return &DepGraph{Nodes: newNodes, byID: byID}, nil
}

func remapEdges(edges []NodeIdx, remap []NodeIdx) []NodeIdx {
	var out []NodeIdx
	for _, e := range edges {
		if r := remap[e]; r >= 0 {
			out = append(out, r)
		}
	}
	return out
}
