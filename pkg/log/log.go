// Package log provides leveled logging for MuninDB.
//
// A single process-wide logger writes timestamped lines to stderr. The
// level is normally set once at startup from configuration.
package log

import (
	"fmt"
	stdlog "log"
	"os"
	"strings"
	"sync/atomic"
)

// Level represents log levels.
type Level int32

const (
	LevelDebug Level = iota
	LevelInfo
	LevelWarn
	LevelError
)

var (
	currentLevel atomic.Int32
	logger       = stdlog.New(os.Stderr, "", stdlog.LstdFlags)
)

func init() {
	currentLevel.Store(int32(LevelInfo))
}

// SetLevel sets the minimum level that gets logged.
func SetLevel(l Level) {
	currentLevel.Store(int32(l))
}

// ParseLevel maps a level name ("debug", "info", "warn", "error") to a
// Level. Unknown names default to info.
func ParseLevel(name string) Level {
	switch strings.ToLower(name) {
	case "debug":
		return LevelDebug
	case "warn", "warning":
		return LevelWarn
	case "error":
		return LevelError
	default:
		return LevelInfo
	}
}

// Debug logs a debug message.
func Debug(format string, args ...interface{}) {
	logAt(LevelDebug, "DEBUG", format, args...)
}

// Info logs an info message.
func Info(format string, args ...interface{}) {
	logAt(LevelInfo, "INFO", format, args...)
}

// Warn logs a warning message.
func Warn(format string, args ...interface{}) {
	logAt(LevelWarn, "WARN", format, args...)
}

// Error logs an error message.
func Error(format string, args ...interface{}) {
	logAt(LevelError, "ERROR", format, args...)
}

func logAt(l Level, tag, format string, args ...interface{}) {
	if Level(currentLevel.Load()) > l {
		return
	}
	logger.Output(3, fmt.Sprintf("%s: %s", tag, fmt.Sprintf(format, args...)))
}
