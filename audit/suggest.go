package audit

import (
	"context"
	"sort"
)

// FetchProvider checks out a package version to a local path, so the
// suggester's DiffProvider has something to diff against. The resolver
// never calls it; only suggestion ranking does.
type FetchProvider interface {
	Fetch(ctx context.Context, name string, version Version) (path string, err error)
}

// CandidateKind distinguishes a suggested full audit from a suggested delta.
type CandidateKind int

const (
	CandidateInspect CandidateKind = iota // a Full audit at the target version
	CandidateDiff                        // a Delta from an already-covered version
)

// Suggestion is the single best next step proposed for one failing node.
type Suggestion struct {
	Package  PackageId
	Kind     CandidateKind
	From     Version // meaningful only for CandidateDiff
	Diffstat uint64
	HasDiffstat bool
	Criteria []CriteriaName // the criteria this suggestion would help satisfy
}

// candidate is an internal, not-yet-ranked suggestion.
type candidate struct {
	kind     CandidateKind
	from     Version
	missing  CriteriaSet
}

// Suggest enumerates, ranks, and emits at most one suggestion per failing
// node in report. guessDeeper controls whether a node whose failure reason
// is ReasonDepFailed is still given a suggestion of its own (propagating
// the parent's required criteria speculatively) or skipped, per §4.4.
func Suggest(ctx context.Context, graph *DepGraph, mapper *CriteriaMapper, store *Store, report Report, fetch FetchProvider, diff DiffProvider, guessDeeper bool) []Suggestion {
	var out []Suggestion
	for _, f := range report.Failures {
		if f.Reason == ReasonDepFailed && !guessDeeper {
			continue
		}
		if f.Reason == ReasonViolation {
			// Per S4: no audit path can cure a violation, so no
			// suggestion is useful; the only remedy is editing the
			// violation itself or picking a different version.
			continue
		}
		n := &graph.Nodes[f.Node]
		missing := subtract(f.Required, f.Reached)

		cands := enumerateCandidates(mapper, store, n, missing)
		if len(cands) == 0 {
			continue
		}
		ranked := rankCandidates(ctx, n, cands, fetch, diff)
		if len(ranked) == 0 {
			continue
		}
		top := ranked[0]
		out = append(out, Suggestion{
			Package:     n.ID,
			Kind:        top.kind,
			From:        top.from,
			Diffstat:    top.diffstat,
			HasDiffstat: top.hasDiffstat,
			Criteria:    mapper.Names(top.missing),
		})
	}
	return out
}

func subtract(required, reached CriteriaSet) CriteriaSet {
	out := newCriteriaSet(len(required.words))
	for i := range out.words {
		var r, h uint64
		if i < len(required.words) {
			r = required.words[i]
		}
		if i < len(reached.words) {
			h = reached.words[i]
		}
		out.words[i] = r &^ h
	}
	return out
}

// enumerateCandidates builds the two candidate shapes from §4.4.1: a full
// audit at the target version, and every delta from a version that is
// already a source for at least one of the missing criteria, filtered to
// those that would actually reduce the missing set.
func enumerateCandidates(mapper *CriteriaMapper, store *Store, n *Node, missing CriteriaSet) []candidate {
	var out []candidate
	out = append(out, candidate{kind: CandidateInspect, missing: missing})

	seen := map[string]bool{}
	for _, a := range store.Audits[n.ID.Name] {
		if a.Kind != KindFull && a.Kind != KindDelta {
			continue
		}
		var from Version
		if a.Kind == KindFull {
			from = a.Version
		} else {
			from = a.From
		}
		if seen[from.String()] {
			continue
		}
		covered := isSourceVersion(mapper, store, n.ID.Name, from)
		if !covered {
			continue
		}
		seen[from.String()] = true
		out = append(out, candidate{kind: CandidateDiff, from: from, missing: missing})
	}
	for _, e := range store.Exemptions[n.ID.Name] {
		if seen[e.Version.String()] {
			continue
		}
		seen[e.Version.String()] = true
		out = append(out, candidate{kind: CandidateDiff, from: e.Version, missing: missing})
	}
	return out
}

func isSourceVersion(mapper *CriteriaMapper, store *Store, pkg string, v Version) bool {
	for _, e := range store.Exemptions[pkg] {
		if e.Version.Equal(v) {
			return true
		}
	}
	for _, a := range store.Audits[pkg] {
		if a.Kind == KindFull && a.Version.Equal(v) {
			return true
		}
	}
	return false
}

type rankedCandidate struct {
	candidate
	diffstat    uint64
	hasDiffstat bool
}

// rankCandidates obtains a diffstat per candidate (falling back to "no
// diffstat" on ProviderError, per §7) and sorts smallest-first, breaking
// ties in favor of deltas over full audits.
func rankCandidates(ctx context.Context, n *Node, cands []candidate, fetch FetchProvider, diff DiffProvider) []rankedCandidate {
	var ranked []rankedCandidate
	for _, c := range cands {
		rc := rankedCandidate{candidate: c}
		if fetch == nil || diff == nil {
			ranked = append(ranked, rc)
			continue
		}
		toPath, err := fetch.Fetch(ctx, n.ID.Name, n.ID.Version)
		if err != nil {
			ranked = append(ranked, rc)
			continue
		}
		var fromPath string
		if c.kind == CandidateDiff {
			fromPath, err = fetch.Fetch(ctx, n.ID.Name, c.from)
			if err != nil {
				ranked = append(ranked, rc)
				continue
			}
		}
		d, err := diff.Diffstat(ctx, fromPath, toPath)
		if err != nil {
			ranked = append(ranked, rc)
			continue
		}
		rc.diffstat, rc.hasDiffstat = d, true
		ranked = append(ranked, rc)
	}

	sort.SliceStable(ranked, func(i, j int) bool {
		a, b := ranked[i], ranked[j]
		if a.hasDiffstat != b.hasDiffstat {
			return a.hasDiffstat // candidates with a known diffstat sort first
		}
		if a.hasDiffstat && a.diffstat != b.diffstat {
			return a.diffstat < b.diffstat
		}
		// Tie (or neither has a diffstat): prefer deltas over fulls.
		if a.kind != b.kind {
			return a.kind == CandidateDiff
		}
		return false
	})
	return ranked
}
