// Package logging provides a small leveled logger with a colorized
// terminal formatter, shared by all three roles (coordinator, operator,
// robot). It wraps logrus rather than hand-rolling level filtering and
// ANSI coloring, but keeps the same call surface the rest of this
// codebase expects: Debug/Info/Warn/Error, a per-component prefix, and
// LOG_LEVEL env var support.
package logging

import (
	"os"
	"strings"

	"github.com/sirupsen/logrus"
)

// Logger is a leveled, component-tagged logger.
type Logger struct {
	entry *logrus.Entry
}

var base = func() *logrus.Logger {
	l := logrus.New()
	l.SetOutput(os.Stdout)
	l.SetFormatter(&logrus.TextFormatter{
		FullTimestamp:   true,
		TimestampFormat: "15:04:05.000",
	})
	l.SetLevel(levelFromEnv())
	return l
}()

func levelFromEnv() logrus.Level {
	switch strings.ToLower(os.Getenv("LOG_LEVEL")) {
	case "debug":
		return logrus.DebugLevel
	case "warn", "warning":
		return logrus.WarnLevel
	case "error":
		return logrus.ErrorLevel
	default:
		return logrus.InfoLevel
	}
}

// New returns a Logger tagged with component (e.g. "coordinator",
// "operator:3", "robot:3").
func New(component string) *Logger {
	return &Logger{entry: base.WithField("component", component)}
}

// SetLevel changes the process-wide minimum level at runtime.
func SetLevel(level string) {
	switch strings.ToLower(level) {
	case "debug":
		base.SetLevel(logrus.DebugLevel)
	case "warn", "warning":
		base.SetLevel(logrus.WarnLevel)
	case "error":
		base.SetLevel(logrus.ErrorLevel)
	default:
		base.SetLevel(logrus.InfoLevel)
	}
}

func (l *Logger) Debug(format string, args ...interface{}) { l.entry.Debugf(format, args...) }
func (l *Logger) Info(format string, args ...interface{})  { l.entry.Infof(format, args...) }
func (l *Logger) Warn(format string, args ...interface{})  { l.entry.Warnf(format, args...) }
func (l *Logger) Error(format string, args ...interface{}) { l.entry.Errorf(format, args...) }

// With returns a child logger with an additional field, useful for
// tagging a log line with a team_id or match_id without building a
// new format string each time.
func (l *Logger) With(key string, value interface{}) *Logger {
	return &Logger{entry: l.entry.WithField(key, value)}
}
