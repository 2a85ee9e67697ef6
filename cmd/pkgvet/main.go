// Command pkgvet audits a workspace's third-party dependencies against a
// set of human-authored criteria. Out of scope for correctness per the
// engine's own design, but present as the ambient entry point, built the
// way the teacher lineage's own main.go/cmd.go/flags.go hand-roll a
// command interface and flag-set dispatch table: this is the one ambient
// concern the teacher itself implements on the standard library rather
// than a third-party CLI framework, so none is introduced here either.
package main

import (
	"bytes"
	"flag"
	"fmt"
	"io"
	"log"
	"os"
	"strings"
	"text/tabwriter"
)

type command interface {
	Name() string           // "check"
	Args() string           // "[package...]"
	ShortHelp() string      // "Resolve the workspace and report the result"
	LongHelp() string       // full usage text
	Register(*flag.FlagSet) // command-specific flags
	Hidden() bool
	Run(c *Config, args []string) error
}

func main() {
	wd, err := os.Getwd()
	if err != nil {
		fmt.Fprintln(os.Stderr, "pkgvet: failed to get working directory:", err)
		os.Exit(1)
	}
	c := &Config{
		Args:       os.Args,
		Stdout:     os.Stdout,
		Stderr:     os.Stderr,
		WorkingDir: wd,
		Env:        os.Environ(),
	}
	os.Exit(c.Run())
}

// Config specifies a full configuration for a pkgvet execution.
type Config struct {
	WorkingDir     string
	Args           []string
	Env            []string
	Stdout, Stderr io.Writer
}

// Run executes a configuration and returns an exit code.
func (c *Config) Run() (exitCode int) {
	commands := []command{
		&checkCommand{},
		&suggestCommand{},
		&minimizeExemptionsCommand{},
		&certifyCommand{},
		&addExemptionCommand{},
		&recordViolationCommand{},
		&dumpGraphCommand{},
	}

	errLogger := log.New(c.Stderr, "", 0)

	usage := func() {
		errLogger.Println("pkgvet audits a workspace's third-party dependencies against a set of criteria")
		errLogger.Println()
		errLogger.Println("Usage: pkgvet <command>")
		errLogger.Println()
		errLogger.Println("Commands:")
		errLogger.Println()
		w := tabwriter.NewWriter(c.Stderr, 0, 4, 2, ' ', 0)
		for _, cmd := range commands {
			if !cmd.Hidden() {
				fmt.Fprintf(w, "\t%s\t%s\n", cmd.Name(), cmd.ShortHelp())
			}
		}
		w.Flush()
		errLogger.Println()
		errLogger.Println(`Use "pkgvet help <command>" for more information about a command.`)
	}

	cmdName, printCommandHelp, exit := parseArgs(c.Args)
	if exit {
		usage()
		return 1
	}

	for _, cmd := range commands {
		if cmd.Name() != cmdName {
			continue
		}

		fs := flag.NewFlagSet(cmdName, flag.ContinueOnError)
		fs.SetOutput(c.Stderr)
		cmd.Register(fs)
		resetUsage(errLogger, fs, cmdName, cmd.Args(), cmd.LongHelp())

		if printCommandHelp {
			fs.Usage()
			return 1
		}

		if err := fs.Parse(c.Args[2:]); err != nil {
			return 1
		}

		if err := cmd.Run(c, fs.Args()); err != nil {
			errLogger.Printf("pkgvet: %v\n", err)
			return 1
		}
		return 0
	}

	errLogger.Printf("pkgvet: %s: no such command\n", cmdName)
	usage()
	return 1
}

func resetUsage(logger *log.Logger, fs *flag.FlagSet, name, args, longHelp string) {
	var (
		hasFlags   bool
		flagBlock  bytes.Buffer
		flagWriter = tabwriter.NewWriter(&flagBlock, 0, 4, 2, ' ', 0)
	)
	fs.VisitAll(func(f *flag.Flag) {
		hasFlags = true
		defValue := f.DefValue
		if defValue == "" {
			defValue = "<none>"
		}
		fmt.Fprintf(flagWriter, "\t-%s\t%s (default: %s)\n", f.Name, f.Usage, defValue)
	})
	flagWriter.Flush()
	fs.Usage = func() {
		logger.Printf("Usage: pkgvet %s %s\n", name, args)
		logger.Println()
		logger.Println(strings.TrimSpace(longHelp))
		logger.Println()
		if hasFlags {
			logger.Println("Flags:")
			logger.Println()
			logger.Println(flagBlock.String())
		}
	}
}

// parseArgs determines the requested command name and whether the user
// asked for help to be printed, mirroring the teacher lineage's own
// dispatcher.
func parseArgs(args []string) (cmdName string, printCmdUsage bool, exit bool) {
	isHelpArg := func() bool {
		return strings.Contains(strings.ToLower(args[1]), "help") || strings.ToLower(args[1]) == "-h"
	}

	switch len(args) {
	case 0, 1:
		exit = true
	case 2:
		if isHelpArg() {
			exit = true
		} else {
			cmdName = args[1]
		}
	default:
		if isHelpArg() {
			cmdName = args[2]
			printCmdUsage = true
		} else {
			cmdName = args[1]
		}
	}
	return cmdName, printCmdUsage, exit
}
