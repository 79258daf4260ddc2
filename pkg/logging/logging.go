// Package logging provides the structured logger shared by the lock manager
// and the hash index. It wraps a single logrus.Logger so every component
// emits fields in the same shape instead of each rolling its own prefix
// formatting.
package logging

import (
	"os"

	"github.com/sirupsen/logrus"
)

var base = newBase()

func newBase() *logrus.Logger {
	l := logrus.New()
	l.SetOutput(os.Stderr)
	l.SetFormatter(&logrus.TextFormatter{
		FullTimestamp: true,
	})
	l.SetLevel(logrus.InfoLevel)
	return l
}

// SetLevel adjusts the package-wide log level, e.g. logrus.DebugLevel to see
// wound-wait grant traffic and hash-table split/merge events during tests.
func SetLevel(level logrus.Level) {
	base.SetLevel(level)
}

// WithComponent returns a logrus.Entry tagged with the given component name,
// e.g. logging.WithComponent("LockManager").
func WithComponent(component string) *logrus.Entry {
	return base.WithField("component", component)
}
