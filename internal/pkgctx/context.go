// Package pkgctx discovers the three directories a pkgvet invocation needs:
// the workspace root, the store directory, and the user cache directory.
// Grounded on the teacher lineage's own context.go/project.go, which walk up
// from the working directory looking for a manifest file and apply the same
// explicit-flag > environment variable > discovered-default precedence for
// GOPATH.
package pkgctx

import (
	"os"
	"path/filepath"

	"github.com/pkg/errors"
)

const (
	workspaceEnv = "PKGVET_WORKSPACE"
	storeEnv     = "PKGVET_STORE"
	cacheEnv     = "PKGVET_CACHE"

	storeDirName = "pkgvet"
	goModName    = "go.mod"
)

// errWorkspaceNotFound mirrors the teacher lineage's errProjectNotFound: a
// plain, fixed error rather than one built per call, since it carries no
// call-specific detail.
var errWorkspaceNotFound = errors.Errorf("could not find a %s in any parent directory", goModName)

// Context holds the three directories pkgvet's commands operate against.
type Context struct {
	WorkspaceRoot string
	StoreDir      string
	CacheDir      string
}

// Overrides carries explicit values a caller (typically a CLI flag) wants to
// take precedence over both the environment and discovery, mirroring the
// teacher lineage's explicit-flag > environment variable > discovered
// default order.
type Overrides struct {
	Workspace string
	Store     string
	Cache     string
}

// NewContext resolves a Context starting from wd. Precedence for each of
// the three directories is: the matching field in overrides, then the
// matching environment variable in env (a slice of "KEY=VALUE" strings, the
// same shape os.Environ() returns), then a discovered default.
func NewContext(wd string, env []string, overrides Overrides) (*Context, error) {
	root := overrides.Workspace
	if root == "" {
		root = getEnv(env, workspaceEnv)
	}
	if root == "" {
		var err error
		root, err = findWorkspaceRoot(wd)
		if err != nil {
			return nil, err
		}
	}

	store := overrides.Store
	if store == "" {
		store = getEnv(env, storeEnv)
	}
	if store == "" {
		store = filepath.Join(root, storeDirName)
	}

	cache := overrides.Cache
	if cache == "" {
		cache = getEnv(env, cacheEnv)
	}
	if cache == "" {
		dir, err := os.UserCacheDir()
		if err != nil {
			return nil, errors.Wrap(err, "resolving user cache directory")
		}
		cache = filepath.Join(dir, storeDirName)
	}

	return &Context{WorkspaceRoot: root, StoreDir: store, CacheDir: cache}, nil
}

// findWorkspaceRoot searches from wd upward for the nearest ancestor
// directory containing a go.mod, the same upward walk the teacher
// lineage's findProjectRoot performs for its own manifest file.
func findWorkspaceRoot(wd string) (string, error) {
	from := wd
	for {
		if _, err := os.Stat(filepath.Join(from, goModName)); err == nil {
			return from, nil
		} else if !os.IsNotExist(err) {
			return "", err
		}

		parent := filepath.Dir(from)
		if parent == from {
			return "", errWorkspaceNotFound
		}
		from = parent
	}
}

// getEnv returns the last occurrence of key in env, mirroring the teacher
// lineage's own getEnv (later entries in os.Environ() shadow earlier ones).
func getEnv(env []string, key string) string {
	for i := len(env) - 1; i >= 0; i-- {
		k, v := splitEnv(env[i])
		if k == key {
			return v
		}
	}
	return ""
}

func splitEnv(kv string) (key, value string) {
	for i := 0; i < len(kv); i++ {
		if kv[i] == '=' {
			return kv[:i], kv[i+1:]
		}
	}
	return kv, ""
}
