package audit

import "testing"

func md2(depName, depVersion string, devName, devVersion string) Metadata {
	pkgs := []Package{
		{Name: "example.com/ws", Version: "v0.0.0", IsRoot: true, Deps: []int{1}},
		{Name: depName, Version: depVersion, Source: "proxy.golang.org"},
	}
	if devName != "" {
		pkgs[0].DevDeps = []int{2}
		pkgs = append(pkgs, Package{Name: devName, Version: devVersion, Source: "proxy.golang.org"})
	}
	return Metadata{Packages: pkgs}
}

func buildGraph(t *testing.T, md Metadata) *DepGraph {
	t.Helper()
	g, err := BuildDepGraph(md)
	if err != nil {
		t.Fatalf("BuildDepGraph: %v", err)
	}
	return g
}

// S1: trivial success.
func TestResolveTrivialSuccess(t *testing.T) {
	g := buildGraph(t, md2("example.com/b", "v1.0.0", "", ""))
	m := mustMapper(t, nil)
	store := NewStore()
	store.Audits["example.com/b"] = []AuditEntry{
		{Kind: KindFull, Version: NewVersion("v1.0.0"), Criteria: []CriteriaName{SafeToDeploy}},
	}
	report := Resolve(g, m, store, Params{})
	if report.Conclusion != ConclusionSuccess {
		t.Fatalf("expected success, got failures: %+v", report.Failures)
	}
}

// S2: delta chain success.
func TestResolveDeltaChain(t *testing.T) {
	g := buildGraph(t, md2("example.com/b", "v1.2.0", "", ""))
	m := mustMapper(t, nil)
	store := NewStore()
	store.Audits["example.com/b"] = []AuditEntry{
		{Kind: KindFull, Version: NewVersion("v1.0.0"), Criteria: []CriteriaName{SafeToDeploy}},
		{Kind: KindDelta, From: NewVersion("v1.0.0"), To: NewVersion("v1.1.0"), Criteria: []CriteriaName{SafeToDeploy}},
		{Kind: KindDelta, From: NewVersion("v1.1.0"), To: NewVersion("v1.2.0"), Criteria: []CriteriaName{SafeToDeploy}},
	}
	report := Resolve(g, m, store, Params{})
	if report.Conclusion != ConclusionSuccess {
		t.Fatalf("expected success, got failures: %+v", report.Failures)
	}
	if len(report.Used) != 3 {
		t.Fatalf("expected all 3 audits used, got %d", len(report.Used))
	}
}

// S3: missing gap in the delta chain causes fail-vet, and the suggester
// proposes filling exactly that gap.
func TestResolveMissingGapSuggestsDiff(t *testing.T) {
	g := buildGraph(t, md2("example.com/b", "v1.2.0", "", ""))
	m := mustMapper(t, nil)
	store := NewStore()
	store.Audits["example.com/b"] = []AuditEntry{
		{Kind: KindFull, Version: NewVersion("v1.0.0"), Criteria: []CriteriaName{SafeToDeploy}},
		{Kind: KindDelta, From: NewVersion("v1.0.0"), To: NewVersion("v1.1.0"), Criteria: []CriteriaName{SafeToDeploy}},
	}
	report := Resolve(g, m, store, Params{})
	if report.Conclusion != ConclusionFailVet {
		t.Fatalf("expected fail-vet, got %+v", report)
	}
	sugs := Suggest(nil, g, m, store, report, nil, nil, false)
	if len(sugs) != 1 {
		t.Fatalf("expected exactly one suggestion, got %d", len(sugs))
	}
	if sugs[0].Kind != CandidateDiff || sugs[0].From.String() != "v1.1.0" {
		t.Fatalf("expected a diff suggestion from v1.1.0, got %+v", sugs[0])
	}
}

// S4: a matching violation dominates even a covering full audit.
func TestResolveViolationDominates(t *testing.T) {
	g := buildGraph(t, md2("example.com/c", "v2.0.0", "", ""))
	m := mustMapper(t, nil)
	store := NewStore()
	req, err := NewVersionReq(">=2.0.0")
	if err != nil {
		t.Fatal(err)
	}
	store.Audits["example.com/c"] = []AuditEntry{
		{Kind: KindFull, Version: NewVersion("v2.0.0"), Criteria: []CriteriaName{SafeToDeploy}},
		{Kind: KindViolation, VersionReq: req, Criteria: []CriteriaName{SafeToDeploy}},
	}
	report := Resolve(g, m, store, Params{})
	if report.Conclusion != ConclusionFailVet {
		t.Fatalf("expected fail-vet from violation, got %+v", report)
	}
	if report.Failures[0].Reason != ReasonViolation {
		t.Fatalf("expected ReasonViolation, got %v", report.Failures[0].Reason)
	}
	sugs := Suggest(nil, g, m, store, report, nil, nil, false)
	if len(sugs) != 0 {
		t.Fatalf("expected no suggestions for a violated package, got %+v", sugs)
	}
}

// S5: dev-only dependency only needs safe-to-run, even with no explicit
// policy override.
func TestResolveDevSplit(t *testing.T) {
	g := buildGraph(t, md2("example.com/lib", "v1.0.0", "example.com/tool", "v1.0.0"))
	m := mustMapper(t, nil)
	store := NewStore()
	store.Audits["example.com/lib"] = []AuditEntry{
		{Kind: KindFull, Version: NewVersion("v1.0.0"), Criteria: []CriteriaName{SafeToDeploy}},
	}
	store.Audits["example.com/tool"] = []AuditEntry{
		{Kind: KindFull, Version: NewVersion("v1.0.0"), Criteria: []CriteriaName{SafeToRun}},
	}
	report := Resolve(g, m, store, Params{})
	if report.Conclusion != ConclusionSuccess {
		t.Fatalf("expected success (dev dep only needs safe-to-run), got %+v", report.Failures)
	}
}

// S6: safe-to-deploy alone satisfies a safe-to-run requirement, via
// implication closure.
func TestResolveCriteriaImplication(t *testing.T) {
	g := buildGraph(t, md2("example.com/d", "v1.0.0", "", ""))
	m := mustMapper(t, nil)
	store := NewStore()
	store.Policy["example.com/ws"] = PolicyEntry{Criteria: []CriteriaName{SafeToRun}}
	store.Audits["example.com/d"] = []AuditEntry{
		{Kind: KindFull, Version: NewVersion("v1.0.0"), Criteria: []CriteriaName{SafeToDeploy}},
	}
	report := Resolve(g, m, store, Params{})
	if report.Conclusion != ConclusionSuccess {
		t.Fatalf("expected success via implication, got %+v", report.Failures)
	}
}

func TestResolveDeterministic(t *testing.T) {
	g := buildGraph(t, md2("example.com/b", "v1.0.0", "", ""))
	m := mustMapper(t, nil)
	store := NewStore()
	store.Audits["example.com/b"] = []AuditEntry{
		{Kind: KindFull, Version: NewVersion("v1.0.0"), Criteria: []CriteriaName{SafeToDeploy}},
	}
	r1 := Resolve(g, m, store, Params{})
	r2 := Resolve(g, m, store, Params{})
	if r1.Conclusion != r2.Conclusion || len(r1.Failures) != len(r2.Failures) || len(r1.Used) != len(r2.Used) {
		t.Fatalf("resolve should be deterministic: %+v vs %+v", r1, r2)
	}
}

func TestExemptionActsAsFull(t *testing.T) {
	g := buildGraph(t, md2("example.com/b", "v1.0.0", "", ""))
	m := mustMapper(t, nil)
	store := NewStore()
	store.Exemptions["example.com/b"] = []ExemptionEntry{
		{Version: NewVersion("v1.0.0"), Criteria: []CriteriaName{SafeToDeploy}, Suggest: true},
	}
	report := Resolve(g, m, store, Params{})
	if report.Conclusion != ConclusionSuccess {
		t.Fatalf("expected exemption to stand in for a full audit, got %+v", report.Failures)
	}
}
