package main

import (
	"context"
	"flag"
	"fmt"

	"github.com/pkgvet/pkgvet/audit"
	"github.com/pkgvet/pkgvet/internal/pkgctx"
	"github.com/pkgvet/pkgvet/internal/providers"
	"github.com/pkgvet/pkgvet/vetlog"
)

const suggestShortHelp = `Resolve the workspace and suggest the smallest next audit for each failure`
const suggestLongHelp = `
Runs the same resolve as check, then for each failing package proposes the
single cheapest next audit or delta that would help satisfy it, ranked by a
diffstat against the package's already-covered versions.
`

type suggestCommand struct {
	globalFlags
	filterGraph string
	outputJSON  bool
	guessDeeper bool
}

func (cmd *suggestCommand) Name() string      { return "suggest" }
func (cmd *suggestCommand) Args() string      { return "" }
func (cmd *suggestCommand) ShortHelp() string { return suggestShortHelp }
func (cmd *suggestCommand) LongHelp() string  { return suggestLongHelp }
func (cmd *suggestCommand) Hidden() bool      { return false }

func (cmd *suggestCommand) Register(fs *flag.FlagSet) {
	cmd.globalFlags.register(fs)
	fs.StringVar(&cmd.filterGraph, "filter-graph", "", "restrict the resolve to a filter-graph expression")
	fs.BoolVar(&cmd.outputJSON, "output-format-json", false, "print suggestions as JSON instead of a human-readable list")
	fs.BoolVar(&cmd.guessDeeper, "guess-deeper", false, "also suggest for nodes that only failed because a dependency failed")
}

func (cmd *suggestCommand) Run(c *Config, args []string) error {
	ctx, err := cmd.newContext(c)
	if err != nil {
		return err
	}
	ws, err := loadWorkspace(ctx, cmd.metadataPath(ctx))
	if err != nil {
		return err
	}
	graph, err := applyFilter(ws.Graph, cmd.filterGraph)
	if err != nil {
		return err
	}

	fetch, diff := newProviders(ctx)
	logger := vetlog.New(c.Stderr)

	var suggestions []audit.Suggestion
	var report audit.Report
	err = withStoreLock(ctx.StoreDir, logger, func() error {
		report = audit.Resolve(graph, ws.Mapper, ws.Store, audit.Params{})
		suggestions = audit.Suggest(context.Background(), graph, ws.Mapper, ws.Store, report, fetch, diff, cmd.guessDeeper)
		return nil
	})
	if err != nil {
		return err
	}

	if cmd.outputJSON {
		return writeJSON(c.Stdout, audit.ToJSON(ws.Mapper, report, suggestions))
	}
	if len(suggestions) == 0 {
		fmt.Fprintln(c.Stdout, "pkgvet: no suggestions; every failing dependency already has its best next step recorded")
		return nil
	}
	for _, s := range suggestions {
		switch s.Kind {
		case audit.CandidateInspect:
			fmt.Fprintf(c.Stdout, "%s@%s: audit %v (inspect %s)\n", s.Package.Name, s.Package.Version, s.Criteria, s.Package.Version)
		case audit.CandidateDiff:
			fmt.Fprintf(c.Stdout, "%s@%s: audit %v (diff %s -> %s)\n", s.Package.Name, s.Package.Version, s.Criteria, s.From, s.Package.Version)
		}
	}
	return nil
}

// newProviders builds the real FetchProvider/DiffProvider pair rooted at
// ctx's cache directory, shared by suggest and minimize-exemptions. The
// fetcher is wrapped so every version it checks out updates the hint cache
// certify consults to pre-fill -from.
func newProviders(ctx *pkgctx.Context) (audit.FetchProvider, audit.DiffProvider) {
	fetch := hintRecordingFetcher{cacheDir: ctx.CacheDir, inner: providers.NewVCSFetcher(ctx.CacheDir)}
	return fetch, providers.TreeDiffer{}
}
