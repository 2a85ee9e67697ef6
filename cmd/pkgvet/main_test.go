package main

import (
	"bytes"
	"testing"
)

func TestParseArgs(t *testing.T) {
	cases := []struct {
		args    []string
		cmdName string
		cmdHelp bool
		exit    bool
	}{
		{[]string{"pkgvet"}, "", false, true},
		{[]string{"pkgvet", "check"}, "check", false, false},
		{[]string{"pkgvet", "help"}, "", false, true},
		{[]string{"pkgvet", "-h"}, "", false, true},
		{[]string{"pkgvet", "help", "check"}, "check", true, false},
		{[]string{"pkgvet", "check", "-v"}, "check", false, false},
	}
	for _, c := range cases {
		name, help, exit := parseArgs(c.args)
		if name != c.cmdName || help != c.cmdHelp || exit != c.exit {
			t.Errorf("parseArgs(%v) = (%q, %v, %v), want (%q, %v, %v)",
				c.args, name, help, exit, c.cmdName, c.cmdHelp, c.exit)
		}
	}
}

func TestConfigRunUnknownCommand(t *testing.T) {
	var stdout, stderr bytes.Buffer
	c := &Config{
		Args:       []string{"pkgvet", "bogus"},
		Stdout:     &stdout,
		Stderr:     &stderr,
		WorkingDir: ".",
	}
	if code := c.Run(); code != 1 {
		t.Errorf("Run() with an unknown command = %d, want 1", code)
	}
}
