package main

import (
	"flag"
	"fmt"
	"strings"

	"github.com/pkgvet/pkgvet/audit"
	"github.com/pkgvet/pkgvet/internal/storage"
	"github.com/pkgvet/pkgvet/vetlog"
)

const addExemptionShortHelp = `Record a local, unaudited trust exemption for a package version`
const addExemptionLongHelp = `
pkgvet add-exemption <package> <version> -criteria=<name>[,<name>...]

Adds an exemption entry to the store for the given package at the given
version, granting the listed criteria without an audit having taken place.
`

type addExemptionCommand struct {
	globalFlags
	criteria string
	notes    string
}

func (cmd *addExemptionCommand) Name() string      { return "add-exemption" }
func (cmd *addExemptionCommand) Args() string      { return "<package> <version>" }
func (cmd *addExemptionCommand) ShortHelp() string { return addExemptionShortHelp }
func (cmd *addExemptionCommand) LongHelp() string  { return addExemptionLongHelp }
func (cmd *addExemptionCommand) Hidden() bool      { return false }

func (cmd *addExemptionCommand) Register(fs *flag.FlagSet) {
	cmd.globalFlags.register(fs)
	fs.StringVar(&cmd.criteria, "criteria", string(audit.SafeToDeploy), "comma-separated criteria this exemption grants")
	fs.StringVar(&cmd.notes, "notes", "", "freeform notes explaining the exemption")
}

func (cmd *addExemptionCommand) Run(c *Config, args []string) error {
	if len(args) != 2 {
		return fmt.Errorf("add-exemption requires exactly a package name and a version")
	}
	pkg, rawVersion := args[0], args[1]

	ctx, err := cmd.newContext(c)
	if err != nil {
		return err
	}

	logger := vetlog.New(c.Stderr)
	return withStoreLock(ctx.StoreDir, logger, func() error {
		store, err := storage.Load(ctx.StoreDir)
		if err != nil {
			return err
		}

		entry := audit.ExemptionEntry{
			Version:  audit.NewVersion(rawVersion),
			Criteria: criteriaNames(cmd.criteria),
			Notes:    cmd.notes,
			Suggest:  false,
		}
		store.Exemptions[pkg] = append(store.Exemptions[pkg], entry)

		if err := storage.Commit(ctx.StoreDir, store); err != nil {
			return err
		}
		fmt.Fprintf(c.Stdout, "pkgvet: recorded exemption for %s@%s\n", pkg, rawVersion)
		return nil
	})
}

func criteriaNames(csv string) []audit.CriteriaName {
	var out []audit.CriteriaName
	for _, s := range strings.Split(csv, ",") {
		s = strings.TrimSpace(s)
		if s != "" {
			out = append(out, audit.CriteriaName(s))
		}
	}
	return out
}
