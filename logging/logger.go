// Package logging provides the leveled, prefix-forking Logger used by every
// long-lived component in execfabric. It adapts the teacher's
// share/logger.go interface, backing it with logrus instead of the stdlib
// log.Logger so that forked loggers carry structured fields (gateway id,
// channel id) through the gateway/channel/group lifecycle.
package logging

import (
	"fmt"
	"os"

	"github.com/sirupsen/logrus"
)

// Logger is a leveled logging component that supports prefix forking, the
// same contract the teacher's share.Logger exposes.
type Logger interface {
	// Log emits a message at logLevel if it is enabled.
	Log(level Level, args ...interface{})
	// Logf emits a formatted message at logLevel if it is enabled.
	Logf(level Level, f string, args ...interface{})

	ELog(args ...interface{})
	ELogf(f string, args ...interface{})
	WLog(args ...interface{})
	WLogf(f string, args ...interface{})
	ILog(args ...interface{})
	ILogf(f string, args ...interface{})
	DLog(args ...interface{})
	DLogf(f string, args ...interface{})
	TLog(args ...interface{})
	TLogf(f string, args ...interface{})

	// Panic logs then panics.
	Panic(args ...interface{})
	// PanicOnError panics (after logging) iff err is non-nil.
	PanicOnError(err error)
	// Fatal logs then os.Exit(1)s.
	Fatal(args ...interface{})
	Fatalf(f string, args ...interface{})

	// Error returns an error whose text carries this logger's prefix.
	Error(args ...interface{}) error
	Errorf(f string, args ...interface{}) error

	// ELogError logs at ELog level and returns the same text as an error.
	ELogError(args ...interface{}) error
	ELogErrorf(f string, args ...interface{}) error
	DLogErrorf(f string, args ...interface{}) error

	// Fork returns a child Logger with an additional prefix segment and,
	// when fields is non-nil, additional structured fields.
	Fork(prefix string, args ...interface{}) Logger
	ForkFields(prefix string, fields Fields) Logger

	Prefix() string
	GetLevel() Level
	SetLevel(level Level)
}

// Fields is a set of structured key/value pairs attached to log lines,
// mirroring logrus.Fields.
type Fields map[string]interface{}

type logrusLogger struct {
	entry  *logrus.Entry
	prefix string
	level  Level
}

func levelToLogrus(l Level) logrus.Level {
	switch l {
	case LevelPanic:
		return logrus.PanicLevel
	case LevelFatal:
		return logrus.FatalLevel
	case LevelError:
		return logrus.ErrorLevel
	case LevelWarning:
		return logrus.WarnLevel
	case LevelInfo:
		return logrus.InfoLevel
	case LevelDebug:
		return logrus.DebugLevel
	case LevelTrace:
		return logrus.TraceLevel
	default:
		return logrus.InfoLevel
	}
}

// New creates a root Logger with the given prefix and level, writing
// structured lines to stderr via logrus.
func New(prefix string, level Level) Logger {
	base := logrus.New()
	base.SetOutput(os.Stderr)
	base.SetLevel(levelToLogrus(LevelTrace))
	entry := base.WithField("component", prefix)
	return &logrusLogger{entry: entry, prefix: prefix, level: level}
}

func (l *logrusLogger) enabled(level Level) bool {
	return level <= l.level || level <= LevelFatal
}

func (l *logrusLogger) Sprint(args ...interface{}) string {
	msg := fmt.Sprint(args...)
	if l.prefix == "" {
		return msg
	}
	return l.prefix + ": " + msg
}

func (l *logrusLogger) Sprintf(f string, args ...interface{}) string {
	return l.Sprint(fmt.Sprintf(f, args...))
}

func (l *logrusLogger) Log(level Level, args ...interface{}) {
	if !l.enabled(level) {
		return
	}
	msg := fmt.Sprint(args...)
	l.entry.Log(levelToLogrus(level), msg)
	if level == LevelFatal {
		os.Exit(1)
	}
	if level == LevelPanic {
		panic(msg)
	}
}

func (l *logrusLogger) Logf(level Level, f string, args ...interface{}) {
	l.Log(level, fmt.Sprintf(f, args...))
}

func (l *logrusLogger) ELog(args ...interface{})             { l.Log(LevelError, args...) }
func (l *logrusLogger) ELogf(f string, args ...interface{})  { l.Logf(LevelError, f, args...) }
func (l *logrusLogger) WLog(args ...interface{})             { l.Log(LevelWarning, args...) }
func (l *logrusLogger) WLogf(f string, args ...interface{})  { l.Logf(LevelWarning, f, args...) }
func (l *logrusLogger) ILog(args ...interface{})             { l.Log(LevelInfo, args...) }
func (l *logrusLogger) ILogf(f string, args ...interface{})  { l.Logf(LevelInfo, f, args...) }
func (l *logrusLogger) DLog(args ...interface{})             { l.Log(LevelDebug, args...) }
func (l *logrusLogger) DLogf(f string, args ...interface{})  { l.Logf(LevelDebug, f, args...) }
func (l *logrusLogger) TLog(args ...interface{})             { l.Log(LevelTrace, args...) }
func (l *logrusLogger) TLogf(f string, args ...interface{})  { l.Logf(LevelTrace, f, args...) }

func (l *logrusLogger) Panic(args ...interface{}) { l.Log(LevelPanic, args...) }
func (l *logrusLogger) PanicOnError(err error) {
	if err != nil {
		l.Panic(err)
	}
}
func (l *logrusLogger) Fatal(args ...interface{})            { l.Log(LevelFatal, args...) }
func (l *logrusLogger) Fatalf(f string, args ...interface{}) { l.Logf(LevelFatal, f, args...) }

func (l *logrusLogger) Error(args ...interface{}) error {
	return fmt.Errorf("%s", l.Sprint(args...))
}
func (l *logrusLogger) Errorf(f string, args ...interface{}) error {
	return fmt.Errorf("%s", l.Sprintf(f, args...))
}

func (l *logrusLogger) ELogError(args ...interface{}) error {
	err := l.Error(args...)
	l.ELog(args...)
	return err
}
func (l *logrusLogger) ELogErrorf(f string, args ...interface{}) error {
	return l.ELogError(fmt.Sprintf(f, args...))
}
func (l *logrusLogger) DLogErrorf(f string, args ...interface{}) error {
	err := l.Errorf(f, args...)
	l.DLog(err.Error())
	return err
}

func (l *logrusLogger) Fork(prefix string, args ...interface{}) Logger {
	if len(args) > 0 {
		prefix = fmt.Sprintf(prefix, args...)
	}
	return l.ForkFields(prefix, nil)
}

func (l *logrusLogger) ForkFields(prefix string, fields Fields) Logger {
	newPrefix := prefix
	if l.prefix != "" {
		newPrefix = l.prefix + "." + prefix
	}
	entry := l.entry.WithField("component", newPrefix)
	if fields != nil {
		entry = entry.WithFields(logrus.Fields(fields))
	}
	return &logrusLogger{entry: entry, prefix: newPrefix, level: l.level}
}

func (l *logrusLogger) Prefix() string    { return l.prefix }
func (l *logrusLogger) GetLevel() Level   { return l.level }
func (l *logrusLogger) SetLevel(lv Level) { l.level = lv }
