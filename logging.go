package daqdio

import (
	"io"
	"os"

	"github.com/charmbracelet/log"
	"github.com/pkg/errors"
)

func newLogger(prefix string) *log.Logger {
	return newLoggerTo(os.Stderr, prefix)
}

// newLoggerTo builds a component logger; the logger adds the colon after prefix.
func newLoggerTo(w io.Writer, prefix string) *log.Logger {
	return log.NewWithOptions(w, log.Options{
		Prefix:          prefix,
		Level:           log.GetLevel(),
		ReportTimestamp: true,
	})
}

// SetLogLevel sets the level of every logger created afterwards.
func SetLogLevel(level string) error {
	if len(level) == 0 {
		return nil
	}

	lvl, err := log.ParseLevel(level)
	if err != nil {
		return errors.Wrapf(err, "unknown log level %s", level)
	}
	log.SetLevel(lvl)
	return nil
}
