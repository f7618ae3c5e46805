// Package telemetry wires structured logging and Prometheus metrics for the
// runtime. Logging follows evalgo-org-eve/common/logging.go: a single
// package-level logrus.Logger with an output splitter that routes error-level
// lines to stderr and everything else to stdout, so operators can tail normal
// activity and alert on errors independently even when both are collected by
// the same log shipper.
package telemetry

import (
	"io"
	"os"
	"strings"

	"github.com/sirupsen/logrus"
)

// Log is the package-level logger used by components that don't carry their
// own *logrus.Entry. Runtime and executor code prefer a scoped entry (via
// NewEntry) so every line carries session_id context, but Log is
// available for startup and shutdown logging before a session exists.
var Log = logrus.New()

func init() {
	Log.SetFormatter(&logrus.TextFormatter{FullTimestamp: true})
	Log.SetOutput(&severitySplitter{out: os.Stdout, err: os.Stderr})
}

// severitySplitter is an io.Writer that sends already-formatted log lines to
// stderr when they carry an error or fatal level and to stdout otherwise.
// logrus formats one line per Write call, so a single substring check per
// call is sufficient; it avoids a second formatter pass or a custom Hook.
type severitySplitter struct {
	out io.Writer
	err io.Writer
}

func (s *severitySplitter) Write(p []byte) (int, error) {
	if strings.Contains(string(p), "level=error") || strings.Contains(string(p), "level=fatal") {
		return s.err.Write(p)
	}
	return s.out.Write(p)
}

// SetLevel adjusts the package logger's verbosity; callers typically parse
// this from configuration (e.g. viper's "log.level" key) at startup.
func SetLevel(level logrus.Level) {
	Log.SetLevel(level)
}

// NewEntry returns a logger scoped to one dialogue session, pre-populated
// with the fields every subsequent line in that session's lifetime should
// carry. Callers attach further fields per call via entry.WithField (the
// set executor adds set_target; the Telegram transport adds update_type).
func NewEntry(sessionID string) *logrus.Entry {
	return Log.WithField("session_id", sessionID)
}
