// Package logx is a thin wrapper over the standard library log package,
// used sparingly at VM diagnostic boundaries (module loading, GC sweeps)
// rather than for anything a script's own `print` statement produces.
package logx

import (
	"log"
	"os"
)

// Level distinguishes routine diagnostics from conditions worth a
// closer look without promoting either to an error.
type Level int

const (
	Debug Level = iota
	Info
)

func (l Level) String() string {
	if l == Info {
		return "info"
	}
	return "debug"
}

var std = log.New(os.Stderr, "", log.LstdFlags)

// Enabled gates Debug-level output; Info always prints. Tests leave it
// at the default (off) so -v output stays free of VM chatter.
var Enabled = false

func Debugf(format string, args ...interface{}) {
	if !Enabled {
		return
	}
	logf(Debug, format, args...)
}

func Infof(format string, args ...interface{}) { logf(Info, format, args...) }

func logf(level Level, format string, args ...interface{}) {
	std.Printf("["+level.String()+"] "+format, args...)
}
