// Package logging configures the process-wide logrus logger.
//
// Output always goes to stderr because stdout carries the MCP protocol.
package logging

import (
	"io"
	"os"

	"github.com/sirupsen/logrus"
)

// Setup applies the named level ("debug", "info", "warn", "error") and the
// text formatter. Unknown levels fall back to info and are reported once.
func Setup(level string) {
	SetupWriter(os.Stderr, level)
}

// SetupWriter is Setup with an explicit destination, used by tests.
func SetupWriter(w io.Writer, level string) {
	logrus.SetOutput(w)
	logrus.SetFormatter(&logrus.TextFormatter{FullTimestamp: true})

	lvl, err := logrus.ParseLevel(level)
	if err != nil {
		logrus.SetLevel(logrus.InfoLevel)
		logrus.WithField("level", level).Warn("Unknown log level, using info")
		return
	}
	logrus.SetLevel(lvl)
}
