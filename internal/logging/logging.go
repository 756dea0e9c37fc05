package logging

import (
	"io"
	"os"

	"github.com/sirupsen/logrus"
)

// Verbosity levels understood by the experiment configuration.
const (
	VerbosityMute    = 0
	VerbosityError   = 1
	VerbosityInfo    = 2
	VerbosityVerbose = 3
)

// New returns a logger writing to stdout whose level follows the configured
// verbosity: 0 mutes everything, 1 errors only, 2 informational, 3 debug.
func New(verbosity int) *logrus.Logger {
	return NewWithWriter(os.Stdout, verbosity)
}

func NewWithWriter(w io.Writer, verbosity int) *logrus.Logger {
	logger := logrus.New()
	logger.SetOutput(w)
	logger.SetFormatter(&logrus.TextFormatter{
		FullTimestamp:   true,
		TimestampFormat: "2006-01-02T15:04:05.000Z07:00",
	})
	logger.SetLevel(Level(verbosity))
	if verbosity <= VerbosityMute {
		logger.SetOutput(io.Discard)
	}
	return logger
}

// Level maps a verbosity value onto a logrus level.
func Level(verbosity int) logrus.Level {
	switch {
	case verbosity <= VerbosityMute:
		return logrus.PanicLevel
	case verbosity == VerbosityError:
		return logrus.ErrorLevel
	case verbosity == VerbosityInfo:
		return logrus.InfoLevel
	default:
		return logrus.DebugLevel
	}
}

// Discard returns a logger that drops everything, for tests and optional deps.
func Discard() *logrus.Logger {
	logger := logrus.New()
	logger.SetOutput(io.Discard)
	return logger
}
