// Package storage persists an audit.Store as a small set of TOML files on
// disk, the same raw-struct-plus-toml.Marshal approach the teacher lineage
// uses for its own registry config, and commits them with the teacher
// lineage's temp-dir-then-rename SafeWriter pattern so a crash mid-write
// never leaves a half-updated store behind.
package storage

import (
	"io/ioutil"
	"os"
	"path/filepath"
	"runtime"
	"sort"

	"github.com/pelletier/go-toml"
	"github.com/pkg/errors"

	"github.com/pkgvet/pkgvet/audit"
)

const (
	// ConfigFile names the file holding default criteria, imports,
	// exemptions, and policy.
	ConfigFile = "config.toml"
	// AuditsFile names the file holding criteria definitions and audits.
	AuditsFile = "audits.toml"
	// ImportsFile names the file holding imported peer-store snapshots.
	ImportsFile = "imports-lock.toml"
)

type rawCriterion struct {
	Name           string   `toml:"name"`
	Description    string   `toml:"description,omitempty"`
	DescriptionURL string   `toml:"description-url,omitempty"`
	Implies        []string `toml:"implies,omitempty"`
}

type rawPolicy struct {
	Package            string              `toml:"package"`
	Criteria           []string            `toml:"criteria,omitempty"`
	DevCriteria        []string            `toml:"dev-criteria,omitempty"`
	DependencyCriteria map[string][]string `toml:"dependency-criteria,omitempty"`
}

type rawImportRef struct {
	URL string `toml:"url"`
}

type rawConfig struct {
	DefaultCriteria []string                       `toml:"default-criteria,omitempty"`
	Imports         map[string]rawImportRef        `toml:"imports,omitempty"`
	Exemptions      map[string][]rawExemptionEntry `toml:"exemptions,omitempty"`
	Policy          []rawPolicy                    `toml:"policy,omitempty"`
}

type rawAuditEntry struct {
	Kind               string              `toml:"kind,omitempty"`
	Version            string              `toml:"version,omitempty"`
	From               string              `toml:"from,omitempty"`
	To                 string              `toml:"to,omitempty"`
	VersionReq         string              `toml:"version-req,omitempty"`
	Criteria           []string            `toml:"criteria,omitempty"`
	DependencyCriteria map[string][]string `toml:"dependency-criteria,omitempty"`
	Who                string              `toml:"who,omitempty"`
	Notes              string              `toml:"notes,omitempty"`
}

type rawExemptionEntry struct {
	Version            string              `toml:"version"`
	Criteria           []string            `toml:"criteria,omitempty"`
	DependencyCriteria map[string][]string `toml:"dependency-criteria,omitempty"`
	Notes              string              `toml:"notes,omitempty"`
	Suggest            bool                `toml:"suggest"`
}

// rawAuditsFile is the shape shared by audits.toml (the local store's own
// criteria/audits) and each peer snapshot pinned in imports-lock.toml.
type rawAuditsFile struct {
	Criteria []rawCriterion             `toml:"criteria,omitempty"`
	Audits   map[string][]rawAuditEntry `toml:"audits,omitempty"`
}

type rawImportsLock struct {
	Audits map[string]rawAuditsFile `toml:"audits,omitempty"`
}

// Load reads the three store files rooted at dir into an audit.Store. A
// missing audits or imports file is treated as empty; a missing config file
// is an error.
func Load(dir string) (*audit.Store, error) {
	cfgPath := filepath.Join(dir, ConfigFile)
	cfgBytes, err := ioutil.ReadFile(cfgPath)
	if err != nil {
		return nil, errors.Wrapf(err, "reading %s", cfgPath)
	}
	var rc rawConfig
	if err := toml.Unmarshal(cfgBytes, &rc); err != nil {
		return nil, errors.Wrapf(err, "parsing %s", cfgPath)
	}

	store := audit.NewStore()
	store.DefaultCriteria = namesOf(rc.DefaultCriteria)
	for _, p := range rc.Policy {
		store.Policy[p.Package] = audit.PolicyEntry{
			Criteria:           namesOf(p.Criteria),
			DevCriteria:        namesOf(p.DevCriteria),
			DependencyCriteria: depCriteriaOf(p.DependencyCriteria),
		}
	}
	for pkg, entries := range rc.Exemptions {
		for _, e := range entries {
			store.Exemptions[pkg] = append(store.Exemptions[pkg], audit.ExemptionEntry{
				Version:            audit.NewVersion(e.Version),
				Criteria:           namesOf(e.Criteria),
				DependencyCriteria: depCriteriaOf(e.DependencyCriteria),
				Notes:              e.Notes,
				Suggest:            e.Suggest,
			})
		}
	}
	for name, ref := range rc.Imports {
		store.Imports[name] = audit.ImportPeer{
			URL:      ref.URL,
			Audits:   map[string][]audit.AuditEntry{},
			Criteria: map[audit.CriteriaName]audit.CriteriaEntry{},
		}
	}

	auditsPath := filepath.Join(dir, AuditsFile)
	if auditsBytes, err := ioutil.ReadFile(auditsPath); err == nil {
		var ra rawAuditsFile
		if err := toml.Unmarshal(auditsBytes, &ra); err != nil {
			return nil, errors.Wrapf(err, "parsing %s", auditsPath)
		}
		for _, c := range ra.Criteria {
			store.Criteria[audit.CriteriaName(c.Name)] = audit.CriteriaEntry{
				Description:    c.Description,
				DescriptionURL: c.DescriptionURL,
				Implies:        namesOf(c.Implies),
			}
		}
		for pkg, entries := range ra.Audits {
			for _, e := range entries {
				ae, err := decodeAuditEntry(e)
				if err != nil {
					return nil, errors.Wrapf(err, "package %s", pkg)
				}
				store.Audits[pkg] = append(store.Audits[pkg], ae)
			}
		}
	} else if !os.IsNotExist(err) {
		return nil, errors.Wrapf(err, "reading %s", auditsPath)
	}

	importsPath := filepath.Join(dir, ImportsFile)
	if importBytes, err := ioutil.ReadFile(importsPath); err == nil {
		var ril rawImportsLock
		if err := toml.Unmarshal(importBytes, &ril); err != nil {
			return nil, errors.Wrapf(err, "parsing %s", importsPath)
		}
		for name, snapshot := range ril.Audits {
			peer, ok := store.Imports[name]
			if !ok {
				// A pinned snapshot with no matching [imports.<name>] entry
				// in config.toml is stale; keep it so `pkgvet` can still
				// warn about it, but it has no URL to refresh from.
				peer = audit.ImportPeer{
					Audits:   map[string][]audit.AuditEntry{},
					Criteria: map[audit.CriteriaName]audit.CriteriaEntry{},
				}
			}
			for _, c := range snapshot.Criteria {
				peer.Criteria[audit.CriteriaName(c.Name)] = audit.CriteriaEntry{
					Description:    c.Description,
					DescriptionURL: c.DescriptionURL,
					Implies:        namesOf(c.Implies),
				}
			}
			for pkg, entries := range snapshot.Audits {
				for _, e := range entries {
					ae, err := decodeAuditEntry(e)
					if err != nil {
						return nil, errors.Wrapf(err, "import %s package %s", name, pkg)
					}
					peer.Audits[pkg] = append(peer.Audits[pkg], ae)
				}
			}
			store.Imports[name] = peer
		}
	} else if !os.IsNotExist(err) {
		return nil, errors.Wrapf(err, "reading %s", importsPath)
	}

	return store, nil
}

func decodeAuditEntry(e rawAuditEntry) (audit.AuditEntry, error) {
	ae := audit.AuditEntry{
		Version:            audit.NewVersion(e.Version),
		From:               audit.NewVersion(e.From),
		To:                 audit.NewVersion(e.To),
		Criteria:           namesOf(e.Criteria),
		DependencyCriteria: depCriteriaOf(e.DependencyCriteria),
		Who:                e.Who,
		Notes:              e.Notes,
	}
	switch e.Kind {
	case "full", "":
		ae.Kind = audit.KindFull
	case "delta":
		ae.Kind = audit.KindDelta
	case "violation":
		ae.Kind = audit.KindViolation
		req, err := audit.NewVersionReq(e.VersionReq)
		if err != nil {
			return audit.AuditEntry{}, err
		}
		ae.VersionReq = req
	default:
		return audit.AuditEntry{}, errors.Errorf("unknown audit kind %q", e.Kind)
	}
	return ae, nil
}

func namesOf(ss []string) []audit.CriteriaName {
	if len(ss) == 0 {
		return nil
	}
	out := make([]audit.CriteriaName, len(ss))
	for i, s := range ss {
		out[i] = audit.CriteriaName(s)
	}
	return out
}

func stringsOf(ns []audit.CriteriaName) []string {
	if len(ns) == 0 {
		return nil
	}
	out := make([]string, len(ns))
	for i, n := range ns {
		out[i] = string(n)
	}
	return out
}

func depCriteriaOf(raw map[string][]string) audit.DependencyCriteria {
	if len(raw) == 0 {
		return nil
	}
	out := make(audit.DependencyCriteria, len(raw))
	for dep, names := range raw {
		out[dep] = namesOf(names)
	}
	return out
}

func rawDepCriteriaOf(dc audit.DependencyCriteria) map[string][]string {
	if len(dc) == 0 {
		return nil
	}
	out := make(map[string][]string, len(dc))
	for dep, names := range dc {
		out[dep] = stringsOf(names)
	}
	return out
}

// Commit writes store back to dir as config.toml/audits.toml/imports-lock.toml,
// building each file in a fresh temp directory and swapping it into place
// only once every file has encoded successfully, mirroring the teacher
// lineage's SafeWriter: a failed encode or a failed rename rolls back rather
// than leaving a half-written store on disk.
func Commit(dir string, store *audit.Store) error {
	td, err := ioutil.TempDir(os.TempDir(), "pkgvet-store")
	if err != nil {
		return errors.Wrap(err, "creating temp dir for store commit")
	}
	defer os.RemoveAll(td)

	if err := writeTOML(filepath.Join(td, ConfigFile), toConfig(store)); err != nil {
		return errors.Wrap(err, "encoding config.toml")
	}
	if err := writeTOML(filepath.Join(td, AuditsFile), toAudits(store)); err != nil {
		return errors.Wrap(err, "encoding audits.toml")
	}
	if err := writeTOML(filepath.Join(td, ImportsFile), toImports(store)); err != nil {
		return errors.Wrap(err, "encoding imports-lock.toml")
	}

	type swap struct{ from, to string }
	var done []swap
	var failed error
	for _, name := range []string{ConfigFile, AuditsFile, ImportsFile} {
		dest := filepath.Join(dir, name)
		src := filepath.Join(td, name)
		bak := src + ".orig"
		hadOld := false
		if _, err := os.Stat(dest); err == nil {
			hadOld = true
			if failed = renameWithFallback(dest, bak); failed != nil {
				break
			}
		}
		if failed = renameWithFallback(src, dest); failed != nil {
			if hadOld {
				renameWithFallback(bak, dest)
			}
			break
		}
		if hadOld {
			done = append(done, swap{from: bak, to: dest})
		} else {
			done = append(done, swap{from: "", to: dest})
		}
	}
	if failed != nil {
		for i := len(done) - 1; i >= 0; i-- {
			if done[i].from == "" {
				os.Remove(done[i].to)
				continue
			}
			renameWithFallback(done[i].from, done[i].to)
		}
		return errors.Wrap(failed, "committing store")
	}
	return nil
}

func writeTOML(path string, v interface{}) error {
	b, err := toml.Marshal(v)
	if err != nil {
		return err
	}
	return ioutil.WriteFile(path, b, 0644)
}

func toConfig(store *audit.Store) rawConfig {
	rc := rawConfig{DefaultCriteria: stringsOf(store.DefaultCriteria)}

	pkgs := make([]string, 0, len(store.Policy))
	for pkg := range store.Policy {
		pkgs = append(pkgs, pkg)
	}
	sort.Strings(pkgs)
	for _, pkg := range pkgs {
		p := store.Policy[pkg]
		rc.Policy = append(rc.Policy, rawPolicy{
			Package:            pkg,
			Criteria:           stringsOf(p.Criteria),
			DevCriteria:        stringsOf(p.DevCriteria),
			DependencyCriteria: rawDepCriteriaOf(p.DependencyCriteria),
		})
	}

	expkgs := make([]string, 0, len(store.Exemptions))
	for pkg := range store.Exemptions {
		expkgs = append(expkgs, pkg)
	}
	sort.Strings(expkgs)
	if len(expkgs) > 0 {
		rc.Exemptions = map[string][]rawExemptionEntry{}
	}
	for _, pkg := range expkgs {
		for _, e := range store.Exemptions[pkg] {
			rc.Exemptions[pkg] = append(rc.Exemptions[pkg], rawExemptionEntry{
				Version:            e.Version.String(),
				Criteria:           stringsOf(e.Criteria),
				DependencyCriteria: rawDepCriteriaOf(e.DependencyCriteria),
				Notes:              e.Notes,
				Suggest:            e.Suggest,
			})
		}
	}

	names := make([]string, 0, len(store.Imports))
	for n := range store.Imports {
		names = append(names, n)
	}
	sort.Strings(names)
	if len(names) > 0 {
		rc.Imports = map[string]rawImportRef{}
	}
	for _, n := range names {
		rc.Imports[n] = rawImportRef{URL: store.Imports[n].URL}
	}
	return rc
}

func toRawAuditEntry(a audit.AuditEntry) rawAuditEntry {
	re := rawAuditEntry{
		Criteria:           stringsOf(a.Criteria),
		DependencyCriteria: rawDepCriteriaOf(a.DependencyCriteria),
		Who:                a.Who,
		Notes:              a.Notes,
	}
	switch a.Kind {
	case audit.KindFull:
		re.Kind = "full"
		re.Version = a.Version.String()
	case audit.KindDelta:
		re.Kind = "delta"
		re.From = a.From.String()
		re.To = a.To.String()
	case audit.KindViolation:
		re.Kind = "violation"
		re.VersionReq = a.VersionReq.String()
	}
	return re
}

func toAudits(store *audit.Store) rawAuditsFile {
	ra := rawAuditsFile{Audits: map[string][]rawAuditEntry{}}

	names := make([]string, 0, len(store.Criteria))
	for n := range store.Criteria {
		names = append(names, string(n))
	}
	sort.Strings(names)
	for _, n := range names {
		c := store.Criteria[audit.CriteriaName(n)]
		ra.Criteria = append(ra.Criteria, rawCriterion{
			Name:           n,
			Description:    c.Description,
			DescriptionURL: c.DescriptionURL,
			Implies:        stringsOf(c.Implies),
		})
	}

	pkgs := make([]string, 0, len(store.Audits))
	for pkg := range store.Audits {
		pkgs = append(pkgs, pkg)
	}
	sort.Strings(pkgs)
	for _, pkg := range pkgs {
		for _, a := range store.Audits[pkg] {
			ra.Audits[pkg] = append(ra.Audits[pkg], toRawAuditEntry(a))
		}
	}
	return ra
}

func toImports(store *audit.Store) rawImportsLock {
	ril := rawImportsLock{}
	names := make([]string, 0, len(store.Imports))
	for n := range store.Imports {
		names = append(names, n)
	}
	sort.Strings(names)
	if len(names) > 0 {
		ril.Audits = map[string]rawAuditsFile{}
	}
	for _, n := range names {
		peer := store.Imports[n]
		snapshot := rawAuditsFile{Audits: map[string][]rawAuditEntry{}}
		cnames := make([]string, 0, len(peer.Criteria))
		for cn := range peer.Criteria {
			cnames = append(cnames, string(cn))
		}
		sort.Strings(cnames)
		for _, cn := range cnames {
			c := peer.Criteria[audit.CriteriaName(cn)]
			snapshot.Criteria = append(snapshot.Criteria, rawCriterion{
				Name:           cn,
				Description:    c.Description,
				DescriptionURL: c.DescriptionURL,
				Implies:        stringsOf(c.Implies),
			})
		}
		pkgs := make([]string, 0, len(peer.Audits))
		for pkg := range peer.Audits {
			pkgs = append(pkgs, pkg)
		}
		sort.Strings(pkgs)
		for _, pkg := range pkgs {
			for _, a := range peer.Audits[pkg] {
				snapshot.Audits[pkg] = append(snapshot.Audits[pkg], toRawAuditEntry(a))
			}
		}
		ril.Audits[n] = snapshot
	}
	return ril
}

// renameWithFallback attempts a rename, falling back to a copy-then-remove
// when the rename fails across a device boundary — the same guard the
// teacher lineage's own fs.go carries for its manifest/lock commit.
func renameWithFallback(src, dest string) error {
	fi, err := os.Lstat(src)
	if err != nil {
		return err
	}
	if runtime.GOOS == "windows" && fi.IsDir() {
		return errors.New("directory rename fallback not supported for store commit")
	}
	if err := os.Rename(src, dest); err == nil {
		return nil
	}
	data, err := ioutil.ReadFile(src)
	if err != nil {
		return err
	}
	if err := ioutil.WriteFile(dest, data, fi.Mode()); err != nil {
		return err
	}
	return os.Remove(src)
}
