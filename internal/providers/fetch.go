// Package providers implements the audit package's FetchProvider and
// DiffProvider seams against real version control checkouts, the way the
// teacher lineage's own vcs_repo.go/vcs_source.go wrap Masterminds/vcs
// repos and shutil.CopyTree to materialize a package version on disk.
package providers

import (
	"context"
	"os"
	"path/filepath"
	"sync"

	"github.com/Masterminds/vcs"
	"github.com/pkg/errors"
	shutil "github.com/termie/go-shutil"

	"github.com/pkgvet/pkgvet/audit"
)

// VCSFetcher checks a package's source out from its origin repository and
// exports each requested version into its own directory under cacheDir,
// one clone per package shared across versions (cloning once, then
// switching the working tree with UpdateVersion), mirroring how the
// teacher lineage's cache repo keeps a single local clone per project root.
type VCSFetcher struct {
	CacheDir string

	mu     sync.Mutex
	clones map[string]vcs.Repo
}

// NewVCSFetcher returns a fetcher that clones into subdirectories of
// cacheDir, creating it if necessary.
func NewVCSFetcher(cacheDir string) *VCSFetcher {
	return &VCSFetcher{CacheDir: cacheDir, clones: map[string]vcs.Repo{}}
}

// Fetch implements audit.FetchProvider. It clones name's repository on
// first use, then checks the requested version out into its own export
// directory and returns that path.
func (f *VCSFetcher) Fetch(ctx context.Context, name string, v audit.Version) (string, error) {
	if err := ctx.Err(); err != nil {
		return "", err
	}
	repo, err := f.repoFor(name)
	if err != nil {
		return "", err
	}

	f.mu.Lock()
	defer f.mu.Unlock()

	if err := repo.UpdateVersion(v.String()); err != nil {
		return "", errors.Wrapf(err, "checking out %s@%s", name, v)
	}

	exportDir := filepath.Join(f.CacheDir, "export", sanitize(name), sanitize(v.String()))
	if _, err := os.Stat(exportDir); err == nil {
		return exportDir, nil
	}
	if err := os.MkdirAll(filepath.Dir(exportDir), 0755); err != nil {
		return "", errors.Wrap(err, "creating export directory")
	}

	cfg := &shutil.CopyTreeOptions{
		Symlinks:     true,
		CopyFunction: shutil.Copy,
		Ignore: func(src string, contents []os.FileInfo) (ignore []string) {
			for _, fi := range contents {
				if fi.IsDir() && (fi.Name() == ".git" || fi.Name() == ".hg" || fi.Name() == ".bzr" || fi.Name() == ".svn") {
					ignore = append(ignore, fi.Name())
				}
			}
			return
		},
	}
	if err := shutil.CopyTree(repo.LocalPath(), exportDir, cfg); err != nil {
		return "", errors.Wrapf(err, "exporting %s@%s", name, v)
	}
	return exportDir, nil
}

func (f *VCSFetcher) repoFor(name string) (vcs.Repo, error) {
	f.mu.Lock()
	defer f.mu.Unlock()

	if r, ok := f.clones[name]; ok {
		return r, nil
	}

	local := filepath.Join(f.CacheDir, "clone", sanitize(name))
	remote := "https://" + name

	repo, err := vcs.NewRepo(remote, local)
	if err != nil {
		return nil, errors.Wrapf(err, "resolving repository for %s", name)
	}

	if !repo.CheckLocal() {
		if err := repo.Get(); err != nil {
			return nil, errors.Wrapf(err, "cloning %s", name)
		}
	} else {
		if err := repo.Update(); err != nil {
			return nil, errors.Wrapf(err, "updating clone of %s", name)
		}
	}

	f.clones[name] = repo
	return repo, nil
}

func sanitize(s string) string {
	out := make([]rune, 0, len(s))
	for _, r := range s {
		switch {
		case r >= 'a' && r <= 'z', r >= 'A' && r <= 'Z', r >= '0' && r <= '9', r == '-', r == '_', r == '.':
			out = append(out, r)
		default:
			out = append(out, '_')
		}
	}
	return string(out)
}
