package audit

import "testing"

func mustMapper(t *testing.T, table map[CriteriaName]CriteriaEntry) *CriteriaMapper {
	t.Helper()
	m, err := NewCriteriaMapper(table)
	if err != nil {
		t.Fatalf("NewCriteriaMapper: %v", err)
	}
	return m
}

func TestBuiltinImplication(t *testing.T) {
	m := mustMapper(t, nil)
	s := m.SetFrom(SafeToDeploy)
	idx, ok := m.Index(SafeToRun)
	if !ok {
		t.Fatal("safe-to-run should always be known")
	}
	if !s.has(idx) {
		t.Fatal("close({safe-to-deploy}) must contain safe-to-run")
	}
}

func TestClosureIdempotent(t *testing.T) {
	m := mustMapper(t, map[CriteriaName]CriteriaEntry{
		"crypto-reviewed": {Implies: []CriteriaName{"safe-to-deploy"}},
	})
	s1 := m.SetFrom("crypto-reviewed")
	s2 := m.SetFrom(m.Names(s1)...)
	if !s1.Equal(s2) {
		t.Fatalf("close(close(s)) != close(s): %v vs %v", s1, s2)
	}
}

func TestImplicationMonotone(t *testing.T) {
	m := mustMapper(t, map[CriteriaName]CriteriaEntry{
		"crypto-reviewed": {Implies: []CriteriaName{"safe-to-deploy"}},
		"license-reviewed": {},
	})
	a := m.SetFrom("crypto-reviewed")
	b := m.SetFrom("crypto-reviewed", "license-reviewed")
	if !b.Contains(a) {
		t.Fatal("a subset b should imply close(a) subset close(b)")
	}
}

func TestCycleDetected(t *testing.T) {
	_, err := NewCriteriaMapper(map[CriteriaName]CriteriaEntry{
		"a": {Implies: []CriteriaName{"b"}},
		"b": {Implies: []CriteriaName{"a"}},
	})
	if err == nil {
		t.Fatal("expected cyclic implies to be rejected")
	}
}

func TestUnknownImpliedCriterionRejected(t *testing.T) {
	_, err := NewCriteriaMapper(map[CriteriaName]CriteriaEntry{
		"a": {Implies: []CriteriaName{"nonexistent"}},
	})
	if err == nil {
		t.Fatal("expected unknown implied criterion to be rejected")
	}
}

func TestNamesMinimal(t *testing.T) {
	m := mustMapper(t, nil)
	s := m.SetFrom(SafeToDeploy)
	names := m.Names(s)
	if len(names) != 1 || names[0] != SafeToDeploy {
		t.Fatalf("expected only [safe-to-deploy], got %v", names)
	}
}

func TestClearRemovesRedundant(t *testing.T) {
	m := mustMapper(t, nil)
	s := m.SetFrom(SafeToDeploy)
	cleared := m.Clear(s, SafeToDeploy)
	if !cleared.IsEmpty() {
		t.Fatalf("clearing safe-to-deploy from {safe-to-deploy} should be empty, got %v", m.Names(cleared))
	}
}

func TestContainsAndUnion(t *testing.T) {
	m := mustMapper(t, map[CriteriaName]CriteriaEntry{"license-reviewed": {}})
	a := m.SetFrom(SafeToRun)
	b := m.SetFrom("license-reviewed")
	u := a.Union(b)
	if !u.Contains(a) || !u.Contains(b) {
		t.Fatal("union must contain both operands")
	}
	if a.Contains(b) {
		t.Fatal("disjoint sets must not contain each other")
	}
}
