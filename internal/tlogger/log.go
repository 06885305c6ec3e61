package tlogger

import (
	"io"

	"github.com/go-kit/log"
	"github.com/go-kit/log/level"
)

// Logger is a leveled logfmt logger. It is built once by the command and
// handed to every component that needs to report something.
type Logger struct {
	l log.Logger
}

// New returns a logger writing logfmt lines to w, filtered at lvl.
// Recognized levels are debug, warn, error, all; anything else means info.
func New(w io.Writer, lvl string) *Logger {
	l := log.NewLogfmtLogger(log.NewSyncWriter(w))
	l = log.With(l, "ts", log.DefaultTimestampUTC, "caller", log.Caller(6))

	return &Logger{l: level.NewFilter(l, levelOption(lvl))}
}

// Nop returns a logger that discards everything.
func Nop() *Logger {
	return &Logger{l: log.NewNopLogger()}
}

func levelOption(lvl string) level.Option {
	switch lvl {
	case "debug":
		return level.AllowDebug()
	case "warn":
		return level.AllowWarn()
	case "error":
		return level.AllowError()
	case "all":
		return level.AllowAll()
	default:
		return level.AllowInfo()
	}
}

// LevelFromVerbosity maps a -v counter to a level name.
func LevelFromVerbosity(v int) string {
	switch v {
	case 0:
		return "info"
	case 1:
		return "debug"
	default:
		return "all"
	}
}

// With returns a logger that prefixes every entry with keyvals.
func (lg *Logger) With(keyvals ...interface{}) *Logger {
	return &Logger{l: log.With(lg.l, keyvals...)}
}

// Debug add a log entry w/ Debug level
func (lg *Logger) Debug(keyvals ...interface{}) {
	level.Debug(lg.l).Log(keyvals...)
}

// Info add a log entry w/ Info level
func (lg *Logger) Info(keyvals ...interface{}) {
	level.Info(lg.l).Log(keyvals...)
}

// Warn add a log entry w/ Warn level
func (lg *Logger) Warn(keyvals ...interface{}) {
	level.Warn(lg.l).Log(keyvals...)
}

// Error add a log entry w/ Error level
func (lg *Logger) Error(keyvals ...interface{}) {
	level.Error(lg.l).Log(keyvals...)
}
