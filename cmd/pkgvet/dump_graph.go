package main

import (
	"flag"
	"fmt"
)

const dumpGraphShortHelp = `Print the (optionally filtered) dependency graph`
const dumpGraphLongHelp = `
Reads the workspace's metadata, applies -filter-graph if given, and prints
one line per retained node: its package id, whether it's a workspace
member/root/dev-only, and its total edge count (normal, dev, and build).
`

type dumpGraphCommand struct {
	globalFlags
	filterGraph string
}

func (cmd *dumpGraphCommand) Name() string      { return "dump-graph" }
func (cmd *dumpGraphCommand) Args() string      { return "" }
func (cmd *dumpGraphCommand) ShortHelp() string { return dumpGraphShortHelp }
func (cmd *dumpGraphCommand) LongHelp() string  { return dumpGraphLongHelp }
func (cmd *dumpGraphCommand) Hidden() bool      { return false }

func (cmd *dumpGraphCommand) Register(fs *flag.FlagSet) {
	cmd.globalFlags.register(fs)
	fs.StringVar(&cmd.filterGraph, "filter-graph", "", "restrict the dump to a filter-graph expression")
}

func (cmd *dumpGraphCommand) Run(c *Config, args []string) error {
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

	for _, n := range graph.Nodes {
		fmt.Fprintf(c.Stdout, "%s\troot=%v\tworkspace_member=%v\tdev_only=%v\tdeps=%d\n",
			n.ID, n.IsRoot, n.IsWorkspaceMember, n.IsDevOnly, len(n.NormalDeps)+len(n.DevDeps)+len(n.BuildDeps))
	}
	return nil
}
