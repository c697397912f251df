package logging

import (
	"fmt"
	"io"
	"os"
	"strings"

	"github.com/rs/zerolog"
)

// Logger adapts zerolog to the key/value logger interface used by the auth
// package: Debug, Info, Warn and Error take a message followed by pairs.
type Logger struct {
	zl zerolog.Logger
}

// New creates a root logger writing to w at the given level. An empty or
// unknown level falls back to info.
func New(w io.Writer, level string, pretty bool) *Logger {
	if w == nil {
		w = os.Stderr
	}

	if pretty {
		w = zerolog.ConsoleWriter{Out: w}
	}

	lvl, err := zerolog.ParseLevel(strings.ToLower(strings.TrimSpace(level)))
	if err != nil || lvl == zerolog.NoLevel {
		lvl = zerolog.InfoLevel
	}

	zl := zerolog.New(w).Level(lvl).With().Timestamp().Logger()
	return &Logger{zl: zl}
}

// FromZerolog wraps an existing zerolog logger
func FromZerolog(zl zerolog.Logger) *Logger {
	return &Logger{zl: zl}
}

// GetLogger returns a child logger tagged with component name
func (l *Logger) GetLogger(name string) *Logger {
	return &Logger{zl: l.zl.With().Str("component", name).Logger()}
}

// Zerolog exposes the underlying logger for packages that take one
func (l *Logger) Zerolog() *zerolog.Logger {
	return &l.zl
}

func (l *Logger) Debug(msg string, args ...any) {
	withFields(l.zl.Debug(), args).Msg(msg)
}

func (l *Logger) Info(msg string, args ...any) {
	withFields(l.zl.Info(), args).Msg(msg)
}

func (l *Logger) Warn(msg string, args ...any) {
	withFields(l.zl.Warn(), args).Msg(msg)
}

func (l *Logger) Error(msg string, args ...any) {
	withFields(l.zl.Error(), args).Msg(msg)
}

func withFields(evt *zerolog.Event, args []any) *zerolog.Event {
	if evt == nil {
		return evt
	}

	for i := 0; i < len(args); i += 2 {
		key, ok := args[i].(string)
		if !ok {
			key = fmt.Sprint(args[i])
		}

		if i+1 >= len(args) {
			evt = evt.Interface("!BADKEY", args[i])
			break
		}

		switch v := args[i+1].(type) {
		case error:
			evt = evt.AnErr(key, v)
		case string:
			evt = evt.Str(key, v)
		default:
			evt = evt.Interface(key, v)
		}
	}

	return evt
}
