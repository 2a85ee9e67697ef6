package main

import (
	"context"
	"encoding/json"
	"flag"
	"fmt"
	"io/ioutil"
	"os"
	"path/filepath"

	"github.com/pkgvet/pkgvet/audit"
	"github.com/pkgvet/pkgvet/internal/storage"
	"github.com/pkgvet/pkgvet/vetlog"
)

const certifyShortHelp = `Record a full or delta audit for a package`
const certifyLongHelp = `
pkgvet certify <package> <version> -criteria=<name>[,<name>...]
pkgvet certify <package> <version> -from=<version> -criteria=<name>[,<name>...]

Records that a human reviewed the named package (optionally as a delta from
an already-covered version) and found it to meet the given criteria.

An interactive certify walking the reviewer through a diff against the
package's last-fetched version is left for a future iteration; this command
is stubbed to the non-interactive flags above, consulting the "last fetch"
hint cache only to pre-fill -from when it isn't given.
`

type certifyCommand struct {
	globalFlags
	from     string
	criteria string
	who      string
	notes    string
}

func (cmd *certifyCommand) Name() string      { return "certify" }
func (cmd *certifyCommand) Args() string      { return "<package> <version>" }
func (cmd *certifyCommand) ShortHelp() string { return certifyShortHelp }
func (cmd *certifyCommand) LongHelp() string  { return certifyLongHelp }
func (cmd *certifyCommand) Hidden() bool      { return false }

func (cmd *certifyCommand) Register(fs *flag.FlagSet) {
	cmd.globalFlags.register(fs)
	fs.StringVar(&cmd.from, "from", "", "if set, record a delta audit from this version instead of a full audit")
	fs.StringVar(&cmd.criteria, "criteria", string(audit.SafeToDeploy), "comma-separated criteria this audit grants")
	fs.StringVar(&cmd.who, "who", "", "who performed this audit")
	fs.StringVar(&cmd.notes, "notes", "", "freeform notes from the review")
}

func (cmd *certifyCommand) Run(c *Config, args []string) error {
	if len(args) != 2 {
		return fmt.Errorf("certify requires exactly a package name and a version")
	}
	pkg, rawVersion := args[0], args[1]
	version := audit.NewVersion(rawVersion)

	ctx, err := cmd.newContext(c)
	if err != nil {
		return err
	}

	if cmd.from == "" {
		if hint, ok := readLastFetchHint(ctx.CacheDir, pkg); ok {
			cmd.from = hint
		}
	}

	logger := vetlog.New(c.Stderr)
	return withStoreLock(ctx.StoreDir, logger, func() error {
		store, err := storage.Load(ctx.StoreDir)
		if err != nil {
			return err
		}

		entry := audit.AuditEntry{
			Criteria: criteriaNames(cmd.criteria),
			Who:      cmd.who,
			Notes:    cmd.notes,
		}
		if cmd.from != "" {
			entry.Kind = audit.KindDelta
			entry.From = audit.NewVersion(cmd.from)
			entry.To = version
		} else {
			entry.Kind = audit.KindFull
			entry.Version = version
		}
		store.Audits[pkg] = append(store.Audits[pkg], entry)

		if err := storage.Commit(ctx.StoreDir, store); err != nil {
			return err
		}
		if entry.Kind == audit.KindDelta {
			fmt.Fprintf(c.Stdout, "pkgvet: certified %s %s -> %s\n", pkg, cmd.from, rawVersion)
		} else {
			fmt.Fprintf(c.Stdout, "pkgvet: certified %s@%s\n", pkg, rawVersion)
		}
		return nil
	})
}

// lastFetchHints is the unversioned, best-effort command-history file kept
// under the cache directory (separate from the audited store, per the
// design notes on interactive certify state), recording the most recent
// version of each package a fetch was performed for.
type lastFetchHints struct {
	Packages map[string]string `json:"packages"`
}

const lastFetchHintsFile = "last-fetch.json"

// readLastFetchHint returns the version pkg was last fetched at, if the
// hint cache exists and names it. A missing or corrupt file is silently
// treated as "no hint", per the design notes: this state is best-effort and
// lives outside the audited store.
func readLastFetchHint(cacheDir, pkg string) (version string, ok bool) {
	b, err := ioutil.ReadFile(filepath.Join(cacheDir, lastFetchHintsFile))
	if err != nil {
		return "", false
	}
	var h lastFetchHints
	if err := json.Unmarshal(b, &h); err != nil {
		return "", false
	}
	v, ok := h.Packages[pkg]
	return v, ok
}

// writeLastFetchHint records pkg's most recently fetched version into the
// hint cache, creating the cache directory if needed. Failures are ignored
// by the caller: this state is advisory only.
func writeLastFetchHint(cacheDir, pkg, version string) error {
	path := filepath.Join(cacheDir, lastFetchHintsFile)
	h := lastFetchHints{Packages: map[string]string{}}
	if b, err := ioutil.ReadFile(path); err == nil {
		json.Unmarshal(b, &h)
	}
	if h.Packages == nil {
		h.Packages = map[string]string{}
	}
	h.Packages[pkg] = version

	if err := os.MkdirAll(cacheDir, 0755); err != nil {
		return err
	}
	b, err := json.Marshal(h)
	if err != nil {
		return err
	}
	return ioutil.WriteFile(path, b, 0644)
}

// hintRecordingFetcher wraps a FetchProvider so every successful fetch
// updates the last-fetch hint cache certify consults to pre-fill -from.
type hintRecordingFetcher struct {
	cacheDir string
	inner    audit.FetchProvider
}

func (f hintRecordingFetcher) Fetch(ctx context.Context, name string, version audit.Version) (string, error) {
	path, err := f.inner.Fetch(ctx, name, version)
	if err != nil {
		return "", err
	}
	writeLastFetchHint(f.cacheDir, name, version.String())
	return path, nil
}
