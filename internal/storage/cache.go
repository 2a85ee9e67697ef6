package storage

import (
	"encoding/json"
	"os"
	"path/filepath"
	"time"

	"github.com/boltdb/bolt"
	"github.com/pkg/errors"
)

var reportsBucket = []byte("reports")

// ReportCache stores JSON-encoded reports under caller-supplied keys, in a
// BoltDB file under the workspace's cache directory —
// the same embedded-KV approach the teacher lineage's own boltCache uses
// for its source-version lookups, generalized here to whole check results
// instead of VCS metadata.
type ReportCache struct {
	db    *bolt.DB
	epoch int64 // cached values older than this unix timestamp are ignored
}

// OpenReportCache opens (creating if necessary) a BoltDB-backed report
// cache at <cacheDir>/reports.db. epoch is the oldest timestamp, in Unix
// seconds, whose cached entries are still considered fresh; callers
// typically pass the mtime of the store's audits.toml so that editing
// audits invalidates every previously cached report.
func OpenReportCache(cacheDir string, epoch int64) (*ReportCache, error) {
	if err := os.MkdirAll(cacheDir, 0755); err != nil {
		return nil, errors.Wrapf(err, "creating cache directory %s", cacheDir)
	}
	path := filepath.Join(cacheDir, "reports.db")
	db, err := bolt.Open(path, 0600, &bolt.Options{Timeout: 1 * time.Second})
	if err != nil {
		return nil, errors.Wrapf(err, "opening report cache %s", path)
	}
	err = db.Update(func(tx *bolt.Tx) error {
		_, err := tx.CreateBucketIfNotExists(reportsBucket)
		return err
	})
	if err != nil {
		db.Close()
		return nil, errors.Wrap(err, "initializing report cache bucket")
	}
	return &ReportCache{db: db, epoch: epoch}, nil
}

// Close releases the underlying BoltDB file handle.
func (c *ReportCache) Close() error {
	return errors.Wrap(c.db.Close(), "closing report cache")
}

type cachedEntry struct {
	Timestamp int64           `json:"timestamp"`
	Report    json.RawMessage `json:"report"`
}

// Get looks up a previously stored report for key. ok is false if there is
// no entry, or the entry predates c.epoch.
func (c *ReportCache) Get(key string, out interface{}) (ok bool, err error) {
	err = c.db.View(func(tx *bolt.Tx) error {
		b := tx.Bucket(reportsBucket)
		raw := b.Get([]byte(key))
		if raw == nil {
			return nil
		}
		var entry cachedEntry
		if err := json.Unmarshal(raw, &entry); err != nil {
			return errors.Wrap(err, "decoding cache entry")
		}
		if entry.Timestamp < c.epoch {
			return nil
		}
		if err := json.Unmarshal(entry.Report, out); err != nil {
			return errors.Wrap(err, "decoding cached report")
		}
		ok = true
		return nil
	})
	return ok, errors.Wrap(err, "reading report cache")
}

// Put stores report under key, stamped with the current time so a future
// epoch bump can invalidate it.
func (c *ReportCache) Put(key string, report interface{}) error {
	body, err := json.Marshal(report)
	if err != nil {
		return errors.Wrap(err, "encoding report for cache")
	}
	entry := cachedEntry{Timestamp: time.Now().Unix(), Report: body}
	raw, err := json.Marshal(entry)
	if err != nil {
		return errors.Wrap(err, "encoding cache entry")
	}
	err = c.db.Update(func(tx *bolt.Tx) error {
		return tx.Bucket(reportsBucket).Put([]byte(key), raw)
	})
	return errors.Wrap(err, "writing report cache")
}
