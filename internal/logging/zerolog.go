package logging

import (
	"io"
	"time"

	"github.com/rs/zerolog"
)

// NewZerolog returns a zerolog logger writing to out at the given level.
// A nil out writes a console rendering to stdout.
func NewZerolog(out io.Writer, level string) zerolog.Logger {
	lvl, err := zerolog.ParseLevel(level)
	if err != nil || level == "" {
		lvl = zerolog.InfoLevel
	}
	if out == nil {
		out = zerolog.ConsoleWriter{Out: osStdout, TimeFormat: time.RFC3339}
	}
	return zerolog.New(out).Level(lvl).With().Timestamp().Logger()
}

// EventLogger writes the fix dispatcher's key/value logs through zerolog.
// Errors and durations keep their zerolog encoding instead of being rendered
// through reflection.
type EventLogger struct {
	logger zerolog.Logger
}

// NewEventLogger tags every entry of logger with component=dispatcher.
func NewEventLogger(logger zerolog.Logger) *EventLogger {
	return &EventLogger{logger: logger.With().Str("component", "dispatcher").Logger()}
}

func (l *EventLogger) Debug(msg string, keysAndValues ...any) {
	writeEvent(l.logger.Debug(), msg, keysAndValues)
}

func (l *EventLogger) Info(msg string, keysAndValues ...any) {
	writeEvent(l.logger.Info(), msg, keysAndValues)
}

func (l *EventLogger) Error(msg string, keysAndValues ...any) {
	writeEvent(l.logger.Error(), msg, keysAndValues)
}

// writeEvent drops a trailing key without value and any non-string key.
func writeEvent(e *zerolog.Event, msg string, keysAndValues []any) {
	if e == nil {
		return
	}
	for i := 0; i+1 < len(keysAndValues); i += 2 {
		key, ok := keysAndValues[i].(string)
		if !ok {
			continue
		}
		switch v := keysAndValues[i+1].(type) {
		case error:
			e = e.AnErr(key, v)
		case time.Duration:
			e = e.Dur(key, v)
		case string:
			e = e.Str(key, v)
		default:
			e = e.Interface(key, v)
		}
	}
	e.Msg(msg)
}
