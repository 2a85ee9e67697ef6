package audit

import (
	"context"
	"testing"
)

// fakeFetch and fakeDiff let tests exercise rankCandidates without any real
// I/O, the same way the spec's §4.8/§9 "provider seams" intend: the core
// is tested against in-memory fakes, never real VCS or filesystem state.
type fakeFetch struct{}

func (fakeFetch) Fetch(ctx context.Context, name string, v Version) (string, error) {
	return "/fake/" + name + "@" + v.String(), nil
}

type fakeDiff struct {
	sizes map[string]uint64
}

func (f fakeDiff) Diffstat(ctx context.Context, a, b string) (uint64, error) {
	if sz, ok := f.sizes[a+"->"+b]; ok {
		return sz, nil
	}
	return 1000, nil
}

// TestSuggestPrefersSmallestDiff confirms the smallest-diffstat-first
// ranking: a delta from an already-covered version with a tiny diffstat
// should beat a full re-audit of the whole package.
func TestSuggestPrefersSmallestDiff(t *testing.T) {
	g := buildGraph(t, md2("example.com/b", "v1.2.0", "", ""))
	m := mustMapper(t, nil)
	store := NewStore()
	store.Audits["example.com/b"] = []AuditEntry{
		{Kind: KindFull, Version: NewVersion("v1.0.0"), Criteria: []CriteriaName{SafeToDeploy}},
	}

	report := Resolve(g, m, store, Params{})
	if report.Conclusion != ConclusionFailVet {
		t.Fatalf("expected fail-vet, got %+v", report)
	}

	diff := fakeDiff{sizes: map[string]uint64{
		"/fake/example.com/b@v1.0.0->/fake/example.com/b@v1.2.0": 5,
		"->/fake/example.com/b@v1.2.0":                            500,
	}}
	sugs := Suggest(context.Background(), g, m, store, report, fakeFetch{}, diff, false)
	if len(sugs) != 1 {
		t.Fatalf("expected exactly one suggestion, got %d", len(sugs))
	}
	if sugs[0].Kind != CandidateDiff || !sugs[0].HasDiffstat || sugs[0].Diffstat != 5 {
		t.Fatalf("expected the cheap diff candidate to win, got %+v", sugs[0])
	}
}
