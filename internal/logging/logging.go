// Package logging configures the process-wide logrus logger.
package logging

import (
	"fmt"
	"io"
	"os"

	logger "github.com/sirupsen/logrus"
	"golang.org/x/term"
)

// Configure sets the level and formatter of the standard logger. format is auto,
// text or json; auto uses text when out is a terminal.
func Configure(level, format string, out io.Writer) error {
	lvl, err := logger.ParseLevel(level)
	if err != nil {
		return fmt.Errorf("invalid log level %q: %w", level, err)
	}
	if out == nil {
		out = os.Stderr
	}

	logger.SetOutput(out)
	logger.SetLevel(lvl)
	logger.SetFormatter(formatter(format, isTerminal(out)))
	return nil
}

func formatter(format string, tty bool) logger.Formatter {
	if format == "json" || (format != "text" && !tty) {
		return &logger.JSONFormatter{}
	}
	return &logger.TextFormatter{
		ForceColors:   tty,
		FullTimestamp: true,
	}
}

func isTerminal(out io.Writer) bool {
	f, ok := out.(*os.File)
	return ok && term.IsTerminal(int(f.Fd()))
}
