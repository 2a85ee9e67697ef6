package audit

import "testing"

func TestVersionOrdering(t *testing.T) {
	a := NewVersion("v1.0.0")
	b := NewVersion("v1.2.0")
	if !a.Less(b) {
		t.Fatalf("expected v1.0.0 < v1.2.0")
	}
	if a.Compare(a) != 0 {
		t.Fatalf("expected equal version to compare 0")
	}
}

func TestVersionFallsBackForNonSemver(t *testing.T) {
	v := NewVersion("deadbeef")
	if v.IsSemver() {
		t.Fatalf("a bare revision should not parse as semver")
	}
	if v.String() != "deadbeef" {
		t.Fatalf("raw string should be preserved")
	}
}

func TestVersionReqMatches(t *testing.T) {
	req, err := NewVersionReq(">=2.0.0")
	if err != nil {
		t.Fatal(err)
	}
	if !req.Matches(NewVersion("v2.0.0")) {
		t.Fatal("expected v2.0.0 to satisfy >=2.0.0")
	}
	if req.Matches(NewVersion("v1.9.0")) {
		t.Fatal("expected v1.9.0 to not satisfy >=2.0.0")
	}
}
