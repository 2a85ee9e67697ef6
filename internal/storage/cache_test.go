package storage

import (
	"io/ioutil"
	"os"
	"testing"
	"time"
)

type fakeReport struct {
	Conclusion string `json:"conclusion"`
}

func TestReportCacheGetPut(t *testing.T) {
	dir, err := ioutil.TempDir("", "pkgvet-reportcache")
	if err != nil {
		t.Fatal(err)
	}
	defer os.RemoveAll(dir)

	c, err := OpenReportCache(dir, time.Now().Add(-time.Hour).Unix())
	if err != nil {
		t.Fatal(err)
	}
	defer c.Close()

	var out fakeReport
	if ok, err := c.Get("missing", &out); err != nil || ok {
		t.Fatalf("expected a miss for an absent key, got ok=%v err=%v", ok, err)
	}

	want := fakeReport{Conclusion: "success"}
	if err := c.Put("k1", want); err != nil {
		t.Fatal(err)
	}

	ok, err := c.Get("k1", &out)
	if err != nil {
		t.Fatal(err)
	}
	if !ok || out != want {
		t.Fatalf("expected cached entry to round-trip, got ok=%v out=%+v", ok, out)
	}
}

func TestReportCacheEpochInvalidation(t *testing.T) {
	dir, err := ioutil.TempDir("", "pkgvet-reportcache-epoch")
	if err != nil {
		t.Fatal(err)
	}
	defer os.RemoveAll(dir)

	c, err := OpenReportCache(dir, time.Now().Add(-time.Hour).Unix())
	if err != nil {
		t.Fatal(err)
	}
	if err := c.Put("k1", fakeReport{Conclusion: "success"}); err != nil {
		t.Fatal(err)
	}
	c.Close()

	// Reopen with an epoch in the future: every existing entry predates it.
	c2, err := OpenReportCache(dir, time.Now().Add(time.Hour).Unix())
	if err != nil {
		t.Fatal(err)
	}
	defer c2.Close()

	var out fakeReport
	if ok, err := c2.Get("k1", &out); err != nil || ok {
		t.Fatalf("expected the entry to be invalidated by the later epoch, got ok=%v err=%v", ok, err)
	}
}
