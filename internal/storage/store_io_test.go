package storage

import (
	"io/ioutil"
	"os"
	"testing"

	"github.com/pkgvet/pkgvet/audit"
)

func TestCommitLoadRoundTrip(t *testing.T) {
	dir, err := ioutil.TempDir("", "pkgvet-store-test")
	if err != nil {
		t.Fatal(err)
	}
	defer os.RemoveAll(dir)

	store := audit.NewStore()
	store.DefaultCriteria = []audit.CriteriaName{audit.SafeToDeploy}
	store.Criteria["fuzzed"] = audit.CriteriaEntry{Description: "has fuzz coverage"}
	store.Audits["example.com/a"] = []audit.AuditEntry{
		{Kind: audit.KindFull, Version: audit.NewVersion("v1.0.0"), Criteria: []audit.CriteriaName{audit.SafeToDeploy}, Who: "alice", Notes: "looked fine"},
		{Kind: audit.KindDelta, From: audit.NewVersion("v1.0.0"), To: audit.NewVersion("v1.1.0"), Criteria: []audit.CriteriaName{audit.SafeToRun}},
	}
	store.Exemptions["example.com/b"] = []audit.ExemptionEntry{
		{Version: audit.NewVersion("v2.0.0"), Criteria: []audit.CriteriaName{audit.SafeToRun}, Notes: "trusted internally", Suggest: true},
	}
	store.Policy["example.com/root"] = audit.PolicyEntry{Criteria: []audit.CriteriaName{audit.SafeToDeploy}}
	store.Imports["example.com/peer"] = audit.ImportPeer{
		URL:      "https://example.com/peer/audits.toml",
		Audits:   map[string][]audit.AuditEntry{"example.com/a": {{Kind: audit.KindFull, Version: audit.NewVersion("v1.0.0"), Criteria: []audit.CriteriaName{audit.SafeToDeploy}}}},
		Criteria: map[audit.CriteriaName]audit.CriteriaEntry{"fuzzed": {Description: "has fuzz coverage"}},
	}

	if err := Commit(dir, store); err != nil {
		t.Fatalf("Commit: %v", err)
	}

	got, err := Load(dir)
	if err != nil {
		t.Fatalf("Load: %v", err)
	}

	if len(got.Audits["example.com/a"]) != 2 {
		t.Fatalf("expected 2 audits for example.com/a, got %d", len(got.Audits["example.com/a"]))
	}
	if got.Audits["example.com/a"][0].Who != "alice" {
		t.Fatalf("expected Who to round-trip, got %+v", got.Audits["example.com/a"][0])
	}
	if got.Audits["example.com/a"][1].Kind != audit.KindDelta || !got.Audits["example.com/a"][1].To.Equal(audit.NewVersion("v1.1.0")) {
		t.Fatalf("expected delta audit to round-trip, got %+v", got.Audits["example.com/a"][1])
	}
	if len(got.Exemptions["example.com/b"]) != 1 || !got.Exemptions["example.com/b"][0].Suggest {
		t.Fatalf("expected exemption to round-trip with suggest=true, got %+v", got.Exemptions["example.com/b"])
	}
	if _, ok := got.Policy["example.com/root"]; !ok {
		t.Fatalf("expected policy entry to round-trip")
	}
	peer, ok := got.Imports["example.com/peer"]
	if !ok || peer.URL == "" || len(peer.Audits["example.com/a"]) != 1 {
		t.Fatalf("expected import peer to round-trip, got %+v", peer)
	}
	if _, ok := got.Criteria["fuzzed"]; !ok {
		t.Fatalf("expected custom criterion to round-trip")
	}
}

// TestCommitRollsBackOnFailure confirms that committing into a directory
// that doesn't exist reports an error instead of succeeding.
func TestCommitRollsBackOnFailure(t *testing.T) {
	store := audit.NewStore()
	if err := Commit("/nonexistent-pkgvet-store-dir", store); err == nil {
		t.Fatal("expected Commit to fail against a missing directory")
	}
}
