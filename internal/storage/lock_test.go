package storage

import (
	"context"
	"io/ioutil"
	"os"
	"testing"
	"time"
)

func TestDirLockExclusion(t *testing.T) {
	dir, err := ioutil.TempDir("", "pkgvet-lock")
	if err != nil {
		t.Fatal(err)
	}
	defer os.RemoveAll(dir)

	a := NewDirLock(dir)
	ok, err := a.TryLock()
	if err != nil {
		t.Fatal(err)
	}
	if !ok {
		t.Fatal("expected first lock attempt to succeed")
	}
	defer a.Unlock()

	b := NewDirLock(dir)
	ok, err = b.TryLock()
	if err != nil {
		t.Fatal(err)
	}
	if ok {
		t.Fatal("expected second lock attempt on the same directory to fail while the first is held")
	}

	if err := a.Unlock(); err != nil {
		t.Fatal(err)
	}

	ok, err = b.TryLock()
	if err != nil {
		t.Fatal(err)
	}
	if !ok {
		t.Fatal("expected lock to be acquirable once the first holder released it")
	}
	b.Unlock()
}

func TestDirLockWaitTimesOutWithContext(t *testing.T) {
	dir, err := ioutil.TempDir("", "pkgvet-lock-wait")
	if err != nil {
		t.Fatal(err)
	}
	defer os.RemoveAll(dir)

	a := NewDirLock(dir)
	if ok, err := a.TryLock(); err != nil || !ok {
		t.Fatalf("expected first lock to succeed, got ok=%v err=%v", ok, err)
	}
	defer a.Unlock()

	b := NewDirLock(dir)
	ctx, cancel := context.WithTimeout(context.Background(), 100*time.Millisecond)
	defer cancel()

	if err := b.Lock(ctx, nil); err == nil {
		t.Fatal("expected Lock to fail once the context is done while the first holder keeps the lock")
	}
}
