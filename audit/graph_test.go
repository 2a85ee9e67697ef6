package audit

import "testing"

func simpleMetadata() Metadata {
	return Metadata{
		WorkspaceRoot: "/ws",
		Packages: []Package{
			{Name: "example.com/ws", Version: "v0.0.0", Source: "", IsRoot: true, Deps: []int{1}, DevDeps: []int{2}},
			{Name: "example.com/lib", Version: "v1.0.0", Source: "proxy.golang.org"},
			{Name: "example.com/testtool", Version: "v1.0.0", Source: "proxy.golang.org"},
		},
	}
}

func nodeByName(t *testing.T, g *DepGraph, name string) *Node {
	t.Helper()
	for i, n := range g.Nodes {
		if n.ID.Name == name {
			return &g.Nodes[i]
		}
	}
	t.Fatalf("no node named %s", name)
	return nil
}

func TestBuildDepGraphBasic(t *testing.T) {
	g, err := BuildDepGraph(simpleMetadata())
	if err != nil {
		t.Fatalf("BuildDepGraph: %v", err)
	}
	if len(g.Nodes) != 3 {
		t.Fatalf("expected 3 nodes, got %d", len(g.Nodes))
	}
	root := nodeByName(t, g, "example.com/ws")
	if !root.IsRoot || !root.IsWorkspaceMember {
		t.Fatal("example.com/ws should be the workspace root")
	}
	lib := nodeByName(t, g, "example.com/lib")
	if !lib.isThirdParty() || lib.IsDevOnly {
		t.Fatal("lib should be third-party and not dev-only")
	}
	tool := nodeByName(t, g, "example.com/testtool")
	if !tool.IsDevOnly {
		t.Fatal("testtool is only reachable via a dev edge and should be dev-only")
	}
}

// Nodes must come out leaves-first: every dependency precedes every node
// that depends on it, so a resolver walking the slice in order always has a
// dependency's effective criteria computed before visiting its dependent.
func TestBuildDepGraphTopoOrder(t *testing.T) {
	g, err := BuildDepGraph(simpleMetadata())
	if err != nil {
		t.Fatalf("BuildDepGraph: %v", err)
	}
	pos := make(map[string]int, len(g.Nodes))
	for i, n := range g.Nodes {
		pos[n.ID.Name] = i
	}
	if pos["example.com/lib"] >= pos["example.com/ws"] {
		t.Fatalf("lib (pos %d) should precede its dependent ws (pos %d)", pos["example.com/lib"], pos["example.com/ws"])
	}
	if pos["example.com/testtool"] >= pos["example.com/ws"] {
		t.Fatalf("testtool (pos %d) should precede its dependent ws (pos %d)", pos["example.com/testtool"], pos["example.com/ws"])
	}
}

func TestBuildDepGraphDetectsCycle(t *testing.T) {
	md := Metadata{Packages: []Package{
		{Name: "a", Version: "v1.0.0", IsRoot: true, Deps: []int{1}},
		{Name: "b", Version: "v1.0.0", Source: "proxy.golang.org", Deps: []int{0}},
	}}
	_, err := BuildDepGraph(md)
	if err == nil {
		t.Fatal("expected a cycle error")
	}
}

func TestFilterExcludeDevOnly(t *testing.T) {
	g, err := BuildDepGraph(simpleMetadata())
	if err != nil {
		t.Fatal(err)
	}
	expr, err := ParseFilterExpr("exclude(is_dev_only(true))")
	if err != nil {
		t.Fatalf("parse: %v", err)
	}
	filtered, err := g.Filter(expr)
	if err != nil {
		t.Fatalf("filter: %v", err)
	}
	for _, n := range filtered.Nodes {
		if n.ID.Name == "example.com/testtool" {
			t.Fatal("dev-only node should have been excluded")
		}
	}
	if len(filtered.Nodes) != 2 {
		t.Fatalf("expected 2 nodes after filtering, got %d", len(filtered.Nodes))
	}
}

func TestFilterIdempotent(t *testing.T) {
	g, err := BuildDepGraph(simpleMetadata())
	if err != nil {
		t.Fatal(err)
	}
	expr, err := ParseFilterExpr("exclude(is_dev_only(true))")
	if err != nil {
		t.Fatal(err)
	}
	once, err := g.Filter(expr)
	if err != nil {
		t.Fatal(err)
	}
	twice, err := once.Filter(expr)
	if err != nil {
		t.Fatal(err)
	}
	if len(once.Nodes) != len(twice.Nodes) {
		t.Fatalf("filter should be idempotent: %d vs %d", len(once.Nodes), len(twice.Nodes))
	}
}
