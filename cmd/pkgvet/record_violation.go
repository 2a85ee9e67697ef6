package main

import (
	"flag"
	"fmt"

	"github.com/pkgvet/pkgvet/audit"
	"github.com/pkgvet/pkgvet/internal/storage"
	"github.com/pkgvet/pkgvet/vetlog"
)

const recordViolationShortHelp = `Record that a version range of a package must never satisfy given criteria`
const recordViolationLongHelp = `
pkgvet record-violation <package> <version-req> -criteria=<name>[,<name>...]

Adds a violation entry to the store: any version of the package matching
the given semver requirement is dominated -- it fails resolution for those
criteria regardless of any audit or exemption that would otherwise cover it.
`

type recordViolationCommand struct {
	globalFlags
	criteria string
	who      string
	notes    string
}

func (cmd *recordViolationCommand) Name() string      { return "record-violation" }
func (cmd *recordViolationCommand) Args() string      { return "<package> <version-req>" }
func (cmd *recordViolationCommand) ShortHelp() string { return recordViolationShortHelp }
func (cmd *recordViolationCommand) LongHelp() string  { return recordViolationLongHelp }
func (cmd *recordViolationCommand) Hidden() bool      { return false }

func (cmd *recordViolationCommand) Register(fs *flag.FlagSet) {
	cmd.globalFlags.register(fs)
	fs.StringVar(&cmd.criteria, "criteria", string(audit.SafeToRun), "comma-separated criteria this version range violates")
	fs.StringVar(&cmd.who, "who", "", "who recorded this violation")
	fs.StringVar(&cmd.notes, "notes", "", "freeform notes explaining the violation")
}

func (cmd *recordViolationCommand) Run(c *Config, args []string) error {
	if len(args) != 2 {
		return fmt.Errorf("record-violation requires exactly a package name and a version requirement")
	}
	pkg, rawReq := args[0], args[1]

	req, err := audit.NewVersionReq(rawReq)
	if err != nil {
		return err
	}

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

		entry := audit.AuditEntry{
			Kind:       audit.KindViolation,
			VersionReq: req,
			Criteria:   criteriaNames(cmd.criteria),
			Who:        cmd.who,
			Notes:      cmd.notes,
		}
		store.Audits[pkg] = append(store.Audits[pkg], entry)

		if err := storage.Commit(ctx.StoreDir, store); err != nil {
			return err
		}
		fmt.Fprintf(c.Stdout, "pkgvet: recorded violation for %s %s\n", pkg, rawReq)
		return nil
	})
}
