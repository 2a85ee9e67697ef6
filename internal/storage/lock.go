package storage

import (
	"context"
	"path/filepath"
	"time"

	"github.com/pkg/errors"
	flock "github.com/theckman/go-flock"
)

// lockGracePeriod is how long Lock waits before it considers the hold
// "notable" enough to warn the caller with onWait, mirroring the short grace
// period the teacher lineage's own source manager grants before printing its
// advisory lock message.
const lockGracePeriod = 500 * time.Millisecond

// LockFileName is the advisory lock file kept alongside the store's TOML
// files, the same role the teacher lineage reserves for its own vendor
// directory lock: it guards against two pkgvet processes mutating the same
// store directory concurrently, not against any other actor on the system.
const LockFileName = ".pkgvet-lock"

// DirLock wraps a flock.Flock scoped to one store directory.
type DirLock struct {
	fl *flock.Flock
}

// NewDirLock builds a DirLock for the store rooted at dir. It does not
// acquire the lock; call TryLock or Lock to do that.
func NewDirLock(dir string) *DirLock {
	return &DirLock{fl: flock.NewFlock(filepath.Join(dir, LockFileName))}
}

// TryLock attempts to acquire the lock without blocking. ok is false if
// another process currently holds it.
func (d *DirLock) TryLock() (ok bool, err error) {
	ok, err = d.fl.TryLock()
	if err != nil {
		return false, errors.Wrap(err, "acquiring store lock")
	}
	return ok, nil
}

// Lock blocks until the lock is acquired or ctx is done, polling TryLock.
// If acquisition takes longer than lockGracePeriod, onWait is invoked
// exactly once so the caller can print a "waiting for file lock" message.
func (d *DirLock) Lock(ctx context.Context, onWait func()) error {
	deadline := time.Now().Add(lockGracePeriod)
	warned := false
	for {
		ok, err := d.TryLock()
		if err != nil {
			return err
		}
		if ok {
			return nil
		}
		if !warned && time.Now().After(deadline) {
			warned = true
			if onWait != nil {
				onWait()
			}
		}
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-time.After(50 * time.Millisecond):
		}
	}
}

// Unlock releases the lock. It is a no-op if the lock was never acquired.
func (d *DirLock) Unlock() error {
	if !d.fl.Locked() {
		return nil
	}
	return errors.Wrap(d.fl.Unlock(), "releasing store lock")
}
