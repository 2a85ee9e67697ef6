// Package vetlog is a minimal wrapper around an io.Writer, generalizing the
// teacher lineage's own log.Logger to the pkgvet prefix.
package vetlog

import (
	"fmt"
	"io"
)

// Logger wraps an io.Writer with a couple of formatting conveniences. It
// carries no level filtering of its own; callers gate verbosity before
// calling in.
type Logger struct {
	io.Writer
}

// New returns a new logger which writes to w.
func New(w io.Writer) *Logger {
	return &Logger{Writer: w}
}

// Logln logs a line.
func (l *Logger) Logln(args ...interface{}) {
	fmt.Fprintln(l, args...)
}

// Logf logs a formatted string.
func (l *Logger) Logf(f string, args ...interface{}) {
	fmt.Fprintf(l, f, args...)
}

// LogVetfln logs a formatted line, prefixed with "pkgvet: ".
func (l *Logger) LogVetfln(format string, args ...interface{}) {
	fmt.Fprintf(l, "pkgvet: "+format+"\n", args...)
}
