package main

import (
	"context"
	"flag"
	"fmt"

	"github.com/pkgvet/pkgvet/audit"
	"github.com/pkgvet/pkgvet/internal/storage"
	"github.com/pkgvet/pkgvet/vetlog"
)

const minimizeShortHelp = `Regenerate the exemption list to the smallest set that still resolves`
const minimizeLongHelp = `
Clears every exemption, resolves, and for each remaining failure asks the
suggester for the single best new exemption, preserving notes and the
suggest flag from any exemption a suggestion still matches.

Writes the result back to the store unless -dry-run is given.
`

type minimizeExemptionsCommand struct {
	globalFlags
	dryRun bool
}

func (cmd *minimizeExemptionsCommand) Name() string      { return "minimize-exemptions" }
func (cmd *minimizeExemptionsCommand) Args() string      { return "" }
func (cmd *minimizeExemptionsCommand) ShortHelp() string { return minimizeShortHelp }
func (cmd *minimizeExemptionsCommand) LongHelp() string  { return minimizeLongHelp }
func (cmd *minimizeExemptionsCommand) Hidden() bool      { return false }

func (cmd *minimizeExemptionsCommand) Register(fs *flag.FlagSet) {
	cmd.globalFlags.register(fs)
	fs.BoolVar(&cmd.dryRun, "dry-run", false, "print the resulting exemption count without writing the store")
}

func (cmd *minimizeExemptionsCommand) Run(c *Config, args []string) error {
	ctx, err := cmd.newContext(c)
	if err != nil {
		return err
	}
	ws, err := loadWorkspace(ctx, cmd.metadataPath(ctx))
	if err != nil {
		return err
	}

	fetch, diff := newProviders(ctx)
	logger := vetlog.New(c.Stderr)

	var minimized *audit.Store
	err = withStoreLock(ctx.StoreDir, logger, func() error {
		minimized = audit.Minimize(context.Background(), ws.Graph, ws.Mapper, ws.Store, fetch, diff)
		if cmd.dryRun {
			return nil
		}
		return storage.Commit(ctx.StoreDir, minimized)
	})
	if err != nil {
		return err
	}

	total := 0
	for _, entries := range minimized.Exemptions {
		total += len(entries)
	}
	if cmd.dryRun {
		fmt.Fprintf(c.Stdout, "pkgvet: minimization would leave %d exemption(s) (dry run, store not written)\n", total)
	} else {
		fmt.Fprintf(c.Stdout, "pkgvet: minimized exemptions to %d entr(ies), store updated\n", total)
	}
	return nil
}
