package audit

import (
	"context"
	"sort"
)

// FailureReason classifies why a node could not be resolved.
type FailureReason int

const (
	ReasonUnreachable FailureReason = iota
	ReasonViolation
	ReasonDepFailed
)

// Failure is the per-node diagnostic the resolver emits when it cannot
// prove the required criteria.
type Failure struct {
	Node       NodeIdx
	Package    PackageId
	Required   CriteriaSet
	Reached    CriteriaSet
	Reason     FailureReason
	ViolationID int // index into the violating AuditEntry, when Reason == ReasonViolation
	DepNode    NodeIdx // when Reason == ReasonDepFailed
}

// UsedAudit records one audit/exemption/import entry that contributed to a
// successful resolution, for the report's used-audits section.
type UsedAudit struct {
	Node    NodeIdx
	Package PackageId
	Kind    AuditKind
	IsExemption bool
	ImportPeer  string // non-empty if sourced from an import
}

// Conclusion is the overall outcome of a resolve pass.
type Conclusion int

const (
	ConclusionSuccess Conclusion = iota
	ConclusionFailVet
)

// Report is the full output of Resolve: success, or a list of per-node
// failures plus the set of audits that did contribute.
type Report struct {
	Conclusion Conclusion
	Failures   []Failure
	Used       []UsedAudit
}

// DiffProvider supplies a line-count diffstat between two package
// checkouts, used only by the suggester to rank candidates. The resolver
// itself never calls it.
type DiffProvider interface {
	Diffstat(ctx context.Context, a, b string) (uint64, error)
}

// Params carries options that don't affect the resolver's verdict. Resolve
// reads neither field: it writes no trace output, and the suggester takes
// its DiffProvider as a separate argument rather than from Diff.
type Params struct {
	Trace bool
	Diff  DiffProvider
}

// resolver carries the fixed inputs for one Resolve call.
type resolver struct {
	graph   *DepGraph
	mapper  *CriteriaMapper
	store   *Store
	params  Params

	// effective[node] is the criteria set actually proven for that node,
	// filled in topological order so dependents can read it.
	effective []CriteriaSet
	failed    []bool
}

// Resolve proves, for every workspace member, that every transitive
// third-party dependency satisfies its propagated required CriteriaSet.
// It is a pure function of (graph, mapper, store) given fixed provider
// responses: no resolver call mutates the store, and nodes are visited in
// topological (leaves-first) order so a dependency's effective criteria are
// always known before its dependents are evaluated.
func Resolve(graph *DepGraph, mapper *CriteriaMapper, store *Store, params Params) Report {
	r := &resolver{
		graph:     graph,
		mapper:    mapper,
		store:     store,
		params:    params,
		effective: make([]CriteriaSet, len(graph.Nodes)),
		failed:    make([]bool, len(graph.Nodes)),
	}

	required := r.propagate()

	var failures []Failure
	var used []UsedAudit

	order := topoOrderStable(graph)
	for _, idx := range order {
		n := &graph.Nodes[idx]
		req := required[idx]
		if req.IsEmpty() {
			r.effective[idx] = req
			continue
		}

		if !n.isThirdParty() {
			// First-party code (workspace members, including the root)
			// is trusted by construction; it still propagates
			// requirements to its dependencies but needs no audit of
			// its own.
			r.effective[idx] = req
			continue
		}

		for _, dep := range n.allDeps() {
			if r.failed[dep] {
				failures = append(failures, Failure{
					Node: idx, Package: n.ID, Required: req,
					Reached: r.effective[idx], Reason: ReasonDepFailed, DepNode: dep,
				})
				r.failed[idx] = true
				break
			}
		}
		if r.failed[idx] {
			continue
		}

		if viol, ok := r.violatingEntry(n, req); ok {
			failures = append(failures, Failure{
				Node: idx, Package: n.ID, Required: req,
				Reached: CriteriaSet{}, Reason: ReasonViolation, ViolationID: viol,
			})
			r.failed[idx] = true
			continue
		}

		reached, contributing := r.proveNode(idx, n, req)
		r.effective[idx] = reached
		if reached.Contains(req) {
			used = append(used, contributing...)
		} else {
			failures = append(failures, Failure{
				Node: idx, Package: n.ID, Required: req, Reached: reached, Reason: ReasonUnreachable,
			})
			r.failed[idx] = true
		}
	}

	conclusion := ConclusionSuccess
	if len(failures) > 0 {
		conclusion = ConclusionFailVet
	}
	sort.Slice(failures, func(i, j int) bool {
		return failures[i].Package.Name < failures[j].Package.Name ||
			(failures[i].Package.Name == failures[j].Package.Name &&
				failures[i].Package.Version.Less(failures[j].Package.Version))
	})
	return Report{Conclusion: conclusion, Failures: failures, Used: used}
}

// topoOrderStable returns node indices in leaves-first order. DepGraph
// already stores nodes in that order after BuildDepGraph/Filter, so this is
// just the identity ordering made explicit for readability at call sites.
func topoOrderStable(g *DepGraph) []NodeIdx {
	order := make([]NodeIdx, len(g.Nodes))
	for i := range order {
		order[i] = NodeIdx(i)
	}
	return order
}

// propagate computes, for every node, the union of every required criteria
// set reaching it from a workspace root (normal-dependency propagation) or
// from a workspace root's own dev-dependency frontier (a separate,
// dev_criteria-rooted requirement that does not flow through non-dev
// paths).
func (r *resolver) propagate() []CriteriaSet {
	req := make([]CriteriaSet, len(r.graph.Nodes))

	type edge struct {
		parent NodeIdx
		child  NodeIdx
		set    CriteriaSet
	}

	var queue []edge
	for i, n := range r.graph.Nodes {
		if !n.IsRoot {
			continue
		}
		idx := NodeIdx(i)
		pol := r.store.Policy[n.ID.Name]
		normalCriteria := pol.Criteria
		if len(normalCriteria) == 0 {
			normalCriteria = []CriteriaName{SafeToDeploy}
		}
		devCriteria := pol.DevCriteria
		if len(devCriteria) == 0 {
			devCriteria = []CriteriaName{SafeToRun}
		}
		normalSet := r.mapper.SetFrom(normalCriteria...)
		devSet := r.mapper.SetFrom(devCriteria...)

		req[idx] = req[idx].Union(normalSet)

		for _, d := range n.NormalDeps {
			queue = append(queue, edge{parent: idx, child: d, set: r.edgeRequirement(n, d, normalSet, pol)})
		}
		for _, d := range n.BuildDeps {
			queue = append(queue, edge{parent: idx, child: d, set: r.edgeRequirement(n, d, normalSet, pol)})
		}
		for _, d := range n.DevDeps {
			queue = append(queue, edge{parent: idx, child: d, set: r.edgeRequirement(n, d, devSet, pol)})
		}
	}

	// Breadth-first propagation; a node may be enqueued multiple times
	// (once per incoming edge) and its requirement is the union of all of
	// them, so repeated visits are cheap no-ops once the set stabilizes.
	for len(queue) > 0 {
		e := queue[0]
		queue = queue[1:]

		before := req[e.child]
		after := before.Union(e.set)
		if after.Equal(before) && !before.IsEmpty() {
			continue
		}
		req[e.child] = after

		n := &r.graph.Nodes[e.child]
		childPol := r.store.Policy[n.ID.Name]
		for _, d := range n.allDeps() {
			queue = append(queue, edge{parent: e.child, child: d, set: r.edgeRequirement(n, d, after, childPol)})
		}
	}
	return req
}

// edgeRequirement computes the required set propagated across one edge
// parent -> dep, per the precedence order in the spec: an explicit
// per-dependency policy on the parent, else the per-dependency constraint
// carried by whatever covers the parent, else the parent's own set.
func (r *resolver) edgeRequirement(parent *Node, dep NodeIdx, parentSet CriteriaSet, pol PolicyEntry) CriteriaSet {
	depName := r.graph.Nodes[dep].ID.Name
	if parent.IsWorkspaceMember {
		if names, ok := pol.DependencyCriteria[depName]; ok {
			return r.mapper.SetFrom(names...)
		}
	}
	if names, ok := r.coveringDependencyCriteria(parent, depName); ok {
		return r.mapper.SetFrom(names...)
	}
	return parentSet
}

// coveringDependencyCriteria finds the dependency_criteria map of whatever
// audit/exemption would cover `parent` for its own effective requirement,
// if any, so the contract it grants about its own dependencies can be
// propagated onward.
func (r *resolver) coveringDependencyCriteria(parent *Node, dep string) ([]CriteriaName, bool) {
	if !parent.isThirdParty() {
		return nil, false
	}
	for _, e := range r.store.Exemptions[parent.ID.Name] {
		if e.Version.Equal(parent.ID.Version) {
			if names, ok := e.DependencyCriteria[dep]; ok {
				return names, true
			}
		}
	}
	for _, a := range r.store.Audits[parent.ID.Name] {
		if a.Kind == KindFull && a.Version.Equal(parent.ID.Version) {
			if names, ok := a.DependencyCriteria[dep]; ok {
				return names, true
			}
		}
	}
	return nil, false
}

// violatingEntry reports the index of the first Violation audit for n whose
// version requirement matches n's version and whose criteria intersect req.
// Per the spec, a matching violation dominates: it fails resolution
// regardless of any covering audit.
func (r *resolver) violatingEntry(n *Node, req CriteriaSet) (int, bool) {
	for i, a := range r.store.Audits[n.ID.Name] {
		if a.Kind != KindViolation {
			continue
		}
		if !a.VersionReq.Matches(n.ID.Version) {
			continue
		}
		viol := r.mapper.SetFrom(a.Criteria...)
		if !viol.Intersect(req).IsEmpty() {
			return i, true
		}
	}
	return 0, false
}

// proveNode runs the per-criterion search structure: for each criterion c
// in req, build the reachability graph of deltas meeting c (plus virtual
// sources from Full audits/exemptions meeting c) and check whether the
// package's own version is reached. The returned set is the union, across
// all of req's criteria, of the criteria actually proven; contributing
// lists every entry used in at least one successful criterion's proof.
func (r *resolver) proveNode(idx NodeIdx, n *Node, req CriteriaSet) (CriteriaSet, []UsedAudit) {
	proven := newCriteriaSet(len(req.words))
	var contributing []UsedAudit
	seen := map[int]bool{}

	names := r.mapper.All()
	for _, c := range names {
		cIdx, ok := r.mapper.Index(c)
		if !ok || !req.has(cIdx) {
			continue
		}
		if proven.has(cIdx) {
			continue
		}
		ok2, path := r.reachesForCriterion(n, c)
		if !ok2 {
			continue
		}
		closure, _ := r.mapper.Close(c)
		proven = proven.Union(closure)
		for _, ua := range path {
			key := ua.entryKey()
			if !seen[key] {
				seen[key] = true
				contributing = append(contributing, UsedAudit{
					Node: idx, Package: n.ID, Kind: ua.kind, IsExemption: ua.isExemption, ImportPeer: ua.importPeer,
				})
			}
		}
	}
	return proven, contributing
}

type pathEntry struct {
	kind        AuditKind
	isExemption bool
	importPeer  string
	id          int
}

func (p pathEntry) entryKey() int { return p.id }

// reachesForCriterion checks whether n.ID.Version is reachable from a
// virtual source in the version-delta graph restricted to criterion c:
// direct Full audits/exemptions meeting c are sources; Delta audits meeting
// c are edges. A small DFS with memoized visited-version set suffices since
// per-package version graphs are tiny in practice.
func (r *resolver) reachesForCriterion(n *Node, c CriteriaName) (bool, []pathEntry) {
	pkg := n.ID.Name
	target := n.ID.Version

	// An entry "meets c" if c is in the implication closure of its own
	// declared criteria, not merely if c appears literally in its list: a
	// Full{safe-to-deploy} audit must also satisfy a safe-to-run requirement.
	cIdx, ok := r.mapper.Index(c)
	if !ok {
		return false, nil
	}
	meets := func(names []CriteriaName) bool {
		return r.mapper.SetFrom(names...).has(cIdx)
	}

	// Build the candidate edge set once: deltas meeting c, keyed by `to`.
	type delta struct {
		from, to Version
		id       int
	}
	var deltas []delta
	for i, a := range r.store.Audits[pkg] {
		if a.Kind != KindDelta {
			continue
		}
		if !meets(a.Criteria) {
			continue
		}
		deltas = append(deltas, delta{from: a.From, to: a.To, id: i})
	}

	isSource := func(v Version) (bool, pathEntry, bool) {
		for i, e := range r.store.Exemptions[pkg] {
			if e.Version.Equal(v) && meets(e.Criteria) {
				return true, pathEntry{kind: KindFull, isExemption: true, id: 1_000_000 + i}, true
			}
		}
		for i, a := range r.store.Audits[pkg] {
			if a.Kind == KindFull && a.Version.Equal(v) && meets(a.Criteria) {
				return true, pathEntry{kind: KindFull, id: i}, true
			}
		}
		return false, pathEntry{}, false
	}

	var search func(v Version, seen map[string]bool) (bool, []pathEntry)
	search = func(v Version, seen map[string]bool) (bool, []pathEntry) {
		if seen[v.String()] {
			return false, nil
		}
		seen[v.String()] = true
		if ok, pe, _ := isSource(v); ok {
			return true, []pathEntry{pe}
		}
		for _, d := range deltas {
			if !d.to.Equal(v) {
				continue
			}
			if ok, path := search(d.from, seen); ok {
				return true, append(path, pathEntry{kind: KindDelta, id: d.id})
			}
		}
		return false, nil
	}

	ok, path := search(target, map[string]bool{})
	return ok, path
}
