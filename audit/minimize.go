package audit

import "context"

// Minimize regenerates store's exemption list so it is the smallest set
// that still makes Resolve succeed (if any exemption set could): it clears
// all exemptions, resolves, and for every unresolved node asks the
// suggester (with guessDeeper=true) for the single best new exemption.
// Existing exemptions that still match a suggestion for the same
// (package, version) keep their Notes, Suggest flag, and dependency
// criteria, with their criteria merged with the suggestion's; entries are
// emitted in suggestion order.
func Minimize(ctx context.Context, graph *DepGraph, mapper *CriteriaMapper, store *Store, fetch FetchProvider, diff DiffProvider) *Store {
	original := store
	working := store.Clone()
	working.ClearExemptions()

	report := Resolve(graph, mapper, working, Params{Diff: diff})
	if report.Conclusion == ConclusionSuccess {
		return working
	}

	suggestions := Suggest(ctx, graph, mapper, working, report, fetch, diff, true)

	newExemptions := map[string][]ExemptionEntry{}
	for _, s := range suggestions {
		var version Version
		switch s.Kind {
		case CandidateInspect:
			version = s.Package.Version
		case CandidateDiff:
			version = s.Package.Version
		}
		entry := ExemptionEntry{
			Version:  version,
			Criteria: s.Criteria,
			Suggest:  true,
		}
		if preserved, ok := findMatchingExemption(original, s.Package.Name, version); ok {
			entry.Notes = preserved.Notes
			entry.Suggest = preserved.Suggest
			entry.DependencyCriteria = preserved.DependencyCriteria
			entry.Criteria = mergeCriteriaNames(preserved.Criteria, s.Criteria)
		}
		newExemptions[s.Package.Name] = append(newExemptions[s.Package.Name], entry)
	}

	// Re-add any originally-preserved exemption for a package that the
	// suggester didn't need to touch at all (it was already sufficient and
	// resolution succeeded for that node without regenerating it).
	for pkg, entries := range original.Exemptions {
		if _, touched := newExemptions[pkg]; touched {
			continue
		}
		needed := false
		for _, f := range report.Failures {
			if f.Package.Name == pkg {
				needed = true
				break
			}
		}
		if !needed {
			newExemptions[pkg] = append([]ExemptionEntry{}, entries...)
		}
	}

	working.Exemptions = newExemptions
	return working
}

func findMatchingExemption(store *Store, pkg string, version Version) (ExemptionEntry, bool) {
	for _, e := range store.Exemptions[pkg] {
		if e.Version.Equal(version) {
			return e, true
		}
	}
	return ExemptionEntry{}, false
}

func mergeCriteriaNames(a, b []CriteriaName) []CriteriaName {
	seen := map[CriteriaName]bool{}
	var out []CriteriaName
	for _, n := range append(append([]CriteriaName{}, a...), b...) {
		if !seen[n] {
			seen[n] = true
			out = append(out, n)
		}
	}
	return out
}
