// Wraps zerolog logger, ensuring the timestamp goes in the beginning.
package log

import (
	"io"
	"os"
	"time"

	"github.com/rs/zerolog"
	"github.com/rs/zerolog/pkgerrors"
)

var logger zerolog.Logger

func init() {
	zerolog.ErrorStackMarshaler = pkgerrors.MarshalStack
	zerolog.DurationFieldInteger = true
	zerolog.TimeFieldFormat = time.RFC3339Nano
	logger = zerolog.New(os.Stderr).With().Stack().Logger()
}

// SetOutput redirects all subsequent log events.
func SetOutput(w io.Writer) {
	logger = zerolog.New(w).With().Stack().Logger()
}

// ConsoleMode switches to human-readable output for interactive runs.
func ConsoleMode(verbose bool) {
	level := zerolog.InfoLevel
	if verbose {
		level = zerolog.DebugLevel
	}
	writer := zerolog.ConsoleWriter{Out: os.Stderr, TimeFormat: time.TimeOnly} //nolint:exhaustruct
	logger = zerolog.New(writer).Level(level).With().Stack().Logger()
}

// With returns a child logger carrying extra fields, e.g. the target being backed up.
func With() zerolog.Context {
	return logger.With().Timestamp()
}

func Debug() *zerolog.Event {
	return logger.Debug().Timestamp()
}

func Info() *zerolog.Event {
	return logger.Info().Timestamp()
}

func Warn() *zerolog.Event {
	return logger.Warn().Timestamp()
}

func Error() *zerolog.Event {
	return logger.Error().Timestamp()
}
