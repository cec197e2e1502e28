package core

import (
	"fmt"
	"os"
)

// Logger is a minimal gated debug logger, adapted from the teacher
// daemon's debugf helper. No structured logging library is introduced:
// every log call in this system is either a debug trace gated behind a
// flag or a user-facing line written straight to stdout/stderr by the
// CLI layer, and the teacher codebase makes the same call throughout.
type Logger struct {
	prefix string
	debug  bool
}

// NewLogger creates a Logger with the given bracketed prefix, e.g. "ken".
func NewLogger(prefix string, debug bool) *Logger {
	return &Logger{prefix: prefix, debug: debug}
}

// Debugf writes a debug line to stderr when debug mode is enabled.
func (l *Logger) Debugf(format string, args ...any) {
	if l == nil || !l.debug {
		return
	}
	fmt.Fprintf(os.Stderr, "["+l.prefix+"] "+format+"\n", args...)
}
