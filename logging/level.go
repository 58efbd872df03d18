package logging

import (
	"os"
	"strings"
)

// Level specifies how much spew should go to the log, mirroring the
// teacher's LogLevel enum (share/logger.go) in both name and ordering.
type Level int

const (
	// LevelUnknown is a default value for Level. Its behavior is undefined.
	LevelUnknown Level = iota
	// LevelPanic causes output of an error message followed by a panic.
	LevelPanic
	// LevelFatal causes output of an error message followed by os.Exit(1).
	LevelFatal
	// LevelError is for unexpected error messages.
	LevelError
	// LevelWarning is for warning messages.
	LevelWarning
	// LevelInfo is for informational messages.
	LevelInfo
	// LevelDebug is for debug messages.
	LevelDebug
	// LevelTrace is for trace messages.
	LevelTrace
)

var levelNames = [...]string{
	"unknown", "panic", "fatal", "error", "warning", "info", "debug", "trace",
}

var nameToLevel = func() map[string]Level {
	m := make(map[string]Level, len(levelNames))
	for i, name := range levelNames {
		m[name] = Level(i)
	}
	return m
}()

// StringToLevel converts a string to a Level, returning LevelUnknown if
// the string is not recognized.
func StringToLevel(s string) Level {
	l, ok := nameToLevel[strings.ToLower(s)]
	if !ok {
		return LevelUnknown
	}
	return l
}

func (l Level) String() string {
	if l < LevelUnknown || l > LevelTrace {
		return levelNames[LevelUnknown]
	}
	return levelNames[l]
}

// LevelFromEnv derives the default log level from EXECNET_DEBUG (spec §6):
// unset/empty disables debug logging (LevelInfo); any non-empty value
// enables LevelDebug; the value "2" additionally means "mirror to stderr",
// which callers check for separately via MirrorToStderr.
func LevelFromEnv() Level {
	v := os.Getenv("EXECNET_DEBUG")
	if v == "" {
		return LevelInfo
	}
	return LevelDebug
}

// MirrorToStderr reports whether EXECNET_DEBUG is "2" (spec §6). No
// per-process debug log file is written: loggers from New always write to
// stderr, whatever this returns.
func MirrorToStderr() bool {
	return os.Getenv("EXECNET_DEBUG") == "2"
}
