package crawler

import (
	"fmt"

	"soupbackup/log"

	"github.com/google/uuid"
	"github.com/rs/zerolog"
)

type Logger interface {
	Info(format string, args ...any)
	Warn(format string, args ...any)
	Error(format string, args ...any)
}

// ZeroLogger tags every line with the target and the run it belongs to, so interleaved output of
// parallel targets can be told apart.
type ZeroLogger struct {
	Logger zerolog.Logger
	RunId  string
}

func NewZeroLogger(targetName string) *ZeroLogger {
	runId := uuid.New().String()
	return &ZeroLogger{
		Logger: log.With().Str("target", targetName).Str("run_id", runId).Logger(),
		RunId:  runId,
	}
}

func (l *ZeroLogger) Info(format string, args ...any) {
	l.Logger.Info().Msgf(format, args...)
}

func (l *ZeroLogger) Warn(format string, args ...any) {
	l.Logger.Warn().Msgf(format, args...)
}

func (l *ZeroLogger) Error(format string, args ...any) {
	l.Logger.Error().Msgf(format, args...)
}

type DummyLogger struct {
	entries []logEntry
}

type logLevel int

const (
	logLevelInfo logLevel = iota
	logLevelWarn
	logLevelError
)

type logEntry struct {
	Level   logLevel
	Message string
}

func NewDummyLogger() *DummyLogger {
	return &DummyLogger{
		entries: nil,
	}
}

func (d *DummyLogger) Info(format string, args ...any) {
	d.log(logLevelInfo, format, args...)
}

func (d *DummyLogger) Warn(format string, args ...any) {
	d.log(logLevelWarn, format, args...)
}

func (d *DummyLogger) Error(format string, args ...any) {
	d.log(logLevelError, format, args...)
}

func (d *DummyLogger) log(level logLevel, format string, args ...any) {
	d.entries = append(d.entries, logEntry{
		Level:   level,
		Message: fmt.Sprintf(format, args...),
	})
}

// Warnings and Errors are used by tests to assert that recoverable problems were reported.
func (d *DummyLogger) Warnings() []string {
	return d.messages(logLevelWarn)
}

func (d *DummyLogger) Errors() []string {
	return d.messages(logLevelError)
}

func (d *DummyLogger) messages(level logLevel) []string {
	var result []string
	for _, entry := range d.entries {
		if entry.Level == level {
			result = append(result, entry.Message)
		}
	}
	return result
}
