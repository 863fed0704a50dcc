package dubbo

import (
	"log"
	"os"
)

// Logger is the minimal sink the module logs through. Watcher re-list
// failures, broken connections, and ephemeral znode creation failures are
// logged rather than silently swallowed (spec.md §4.5: "logged but does
// not fail discovery"). *log.Logger satisfies this interface already, so
// the default requires no adapter; a caller wanting zap/logrus output can
// supply a one-method shim without this package importing either.
type Logger interface {
	Printf(format string, args ...interface{})
}

// NewStdLogger returns a Logger backed by the standard library's log
// package, matching the teacher's own use of log.Println in config.go.
func NewStdLogger() Logger {
	return log.New(os.Stderr, "dubbo: ", log.LstdFlags)
}

type discardLogger struct{}

func (discardLogger) Printf(string, ...interface{}) {}

var defaultLogger Logger = discardLogger{}

func orDefaultLogger(l Logger) Logger {
	if l == nil {
		return defaultLogger
	}
	return l
}
