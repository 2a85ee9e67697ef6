package main

import (
	"flag"
	"fmt"

	"github.com/pkgvet/pkgvet/audit"
	"github.com/pkgvet/pkgvet/vetlog"
)

const checkShortHelp = `Resolve the workspace and report whether every dependency is covered`
const checkLongHelp = `
Reads the workspace's metadata and audit store, resolves every workspace
member's transitive third-party dependencies against the criteria required
of it, and reports the result.

Exits nonzero if any dependency fails to meet its required criteria.
`

type checkCommand struct {
	globalFlags
	filterGraph string
	outputJSON  bool
	trace       bool
}

func (cmd *checkCommand) Name() string      { return "check" }
func (cmd *checkCommand) Args() string      { return "" }
func (cmd *checkCommand) ShortHelp() string { return checkShortHelp }
func (cmd *checkCommand) LongHelp() string  { return checkLongHelp }
func (cmd *checkCommand) Hidden() bool      { return false }

func (cmd *checkCommand) Register(fs *flag.FlagSet) {
	cmd.globalFlags.register(fs)
	fs.StringVar(&cmd.filterGraph, "filter-graph", "", "restrict the resolve to a filter-graph expression")
	fs.BoolVar(&cmd.outputJSON, "output-format-json", false, "print the report as JSON instead of a human-readable summary")
	fs.BoolVar(&cmd.trace, "trace", false, "sets the resolver's Trace parameter; the resolver writes no trace output")
}

func (cmd *checkCommand) Run(c *Config, args []string) error {
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

	logger := vetlog.New(c.Stderr)
	var report audit.Report
	err = withStoreLock(ctx.StoreDir, logger, func() error {
		report = audit.Resolve(graph, ws.Mapper, ws.Store, audit.Params{Trace: cmd.trace})
		return nil
	})
	if err != nil {
		return err
	}

	if cmd.outputJSON {
		if err := writeJSON(c.Stdout, audit.ToJSON(ws.Mapper, report, nil)); err != nil {
			return err
		}
	} else {
		printHumanReport(c, ws.Mapper, report)
	}

	if report.Conclusion != audit.ConclusionSuccess {
		return fmt.Errorf("%d package(s) failed to resolve", len(report.Failures))
	}
	return nil
}

// printHumanReport renders a Report the way a terminal user reads it:
// a single summary line on success, one line per failure otherwise.
func printHumanReport(c *Config, mapper *audit.CriteriaMapper, report audit.Report) {
	if report.Conclusion == audit.ConclusionSuccess {
		fmt.Fprintln(c.Stdout, "pkgvet: all dependencies satisfy their required criteria")
		return
	}
	for _, f := range report.Failures {
		missing := missingCriteriaNames(mapper, f.Required, f.Reached)
		fmt.Fprintf(c.Stdout, "%s@%s: %s (missing: %v)\n", f.Package.Name, f.Package.Version, f.Reason.String(), missing)
	}
}

// missingCriteriaNames names every criterion present in required but not in
// reached. CriteriaSet itself exposes no subtraction, so this works from the
// two sides' own minimal name projections instead.
func missingCriteriaNames(mapper *audit.CriteriaMapper, required, reached audit.CriteriaSet) []string {
	have := map[string]bool{}
	for _, n := range mapper.Names(reached) {
		have[string(n)] = true
	}
	var missing []string
	for _, n := range mapper.Names(required) {
		if !have[string(n)] {
			missing = append(missing, string(n))
		}
	}
	return missing
}
