package cli

import (
	"os"

	"github.com/rs/zerolog"
)

// NewLogger builds the process-wide zerolog.Logger. It always writes
// console-formatted (not JSON) lines to stderr, whether or not stderr is
// a terminal.
func NewLogger(debug bool) zerolog.Logger {
	level := zerolog.InfoLevel
	if debug {
		level = zerolog.DebugLevel
	}

	var writer = os.Stderr
	logger := zerolog.New(zerolog.ConsoleWriter{Out: writer}).
		Level(level).
		With().
		Timestamp().
		Str("service", "gridwalkd").
		Logger()
	return logger
}
