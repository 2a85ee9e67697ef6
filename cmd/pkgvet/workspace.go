package main

import (
	"context"
	"encoding/json"
	"flag"
	"io"
	"os"
	"path/filepath"

	"github.com/pkg/errors"

	"github.com/pkgvet/pkgvet/audit"
	"github.com/pkgvet/pkgvet/internal/metadata"
	"github.com/pkgvet/pkgvet/internal/pkgctx"
	"github.com/pkgvet/pkgvet/internal/storage"
	"github.com/pkgvet/pkgvet/vetlog"
)

const defaultMetadataName = "pkgvet-metadata.json"

// globalFlags holds the directory-override and output flags common to
// every command, registered once per command's FlagSet the same way the
// teacher lineage's dep commands each re-register a shared -v flag.
type globalFlags struct {
	workspace string
	store     string
	cache     string
	metadata  string
	verbose   bool
}

func (g *globalFlags) register(fs *flag.FlagSet) {
	fs.StringVar(&g.workspace, "workspace", "", "override the discovered workspace root")
	fs.StringVar(&g.store, "store", "", "override the store directory")
	fs.StringVar(&g.cache, "cache", "", "override the user cache directory")
	fs.StringVar(&g.metadata, "metadata", "", "path to a metadata JSON dump (default: <workspace>/"+defaultMetadataName+")")
	fs.BoolVar(&g.verbose, "v", false, "accepted by every command; no command writes extra output for it")
}

func (g *globalFlags) newContext(c *Config) (*pkgctx.Context, error) {
	return pkgctx.NewContext(c.WorkingDir, c.Env, pkgctx.Overrides{
		Workspace: g.workspace,
		Store:     g.store,
		Cache:     g.cache,
	})
}

func (g *globalFlags) metadataPath(ctx *pkgctx.Context) string {
	if g.metadata != "" {
		return g.metadata
	}
	return filepath.Join(ctx.WorkspaceRoot, defaultMetadataName)
}

// workspace bundles everything a resolve/suggest/minimize command needs
// after loading: the filtered graph, the criteria universe, and the store
// it was loaded from.
type workspace struct {
	Graph  *audit.DepGraph
	Mapper *audit.CriteriaMapper
	Store  *audit.Store
}

// loadWorkspace reads the metadata dump and the store, builds the graph and
// criteria mapper, and validates the store against that mapper -- the one
// validation step storage.Load itself can't perform, since it has no
// mapper to validate against until the store's own criteria table has been
// read.
func loadWorkspace(ctx *pkgctx.Context, metadataPath string) (*workspace, error) {
	f, err := os.Open(metadataPath)
	if err != nil {
		return nil, errors.Wrapf(err, "opening metadata file %s", metadataPath)
	}
	defer f.Close()

	md, err := metadata.Load(f)
	if err != nil {
		return nil, err
	}

	graph, err := audit.BuildDepGraph(md)
	if err != nil {
		return nil, audit.Wrap(audit.ErrGraphCycle, err)
	}

	store, err := storage.Load(ctx.StoreDir)
	if err != nil {
		return nil, audit.Wrap(audit.ErrStoreValidation, err)
	}

	mapper, err := audit.NewCriteriaMapper(store.Criteria)
	if err != nil {
		return nil, audit.Wrap(audit.ErrStoreValidation, err)
	}

	if err := store.Validate(mapper); err != nil {
		return nil, audit.Wrap(audit.ErrStoreValidation, err)
	}

	return &workspace{Graph: graph, Mapper: mapper, Store: store}, nil
}

// applyFilter narrows ws.Graph to expr, if expr is non-empty, per the
// --filter-graph flag shared by check/suggest/dump-graph.
func applyFilter(graph *audit.DepGraph, expr string) (*audit.DepGraph, error) {
	if expr == "" {
		return graph, nil
	}
	fe, err := audit.ParseFilterExpr(expr)
	if err != nil {
		return nil, audit.Wrap(audit.ErrFilterParse, err)
	}
	return graph.Filter(fe)
}

// withStoreLock acquires the store directory's advisory lock around fn,
// printing a "waiting for file lock" message to logger if acquisition takes
// longer than the grace period, and always releasing it afterward.
func withStoreLock(storeDir string, logger *vetlog.Logger, fn func() error) error {
	lock := storage.NewDirLock(storeDir)
	onWait := func() { logger.LogVetfln("waiting for file lock on %s", storeDir) }
	if err := lock.Lock(context.Background(), onWait); err != nil {
		return errors.Wrap(err, "acquiring store lock")
	}
	defer lock.Unlock()
	return fn()
}

func writeJSON(w io.Writer, v interface{}) error {
	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	return enc.Encode(v)
}
