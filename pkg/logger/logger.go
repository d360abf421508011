// Package logger provides a small leveled logging utility.
package logger

import (
	"fmt"
	"os"
	"strings"
	"sync/atomic"
)

// Level is a log severity level.
type Level int32

const (
	LevelDebug Level = iota
	LevelInfo
	LevelWarn
	LevelError
)

// Current level, defaults to Info.
var currentLevel atomic.Int32

func init() {
	currentLevel.Store(int32(LevelInfo))
}

// SetLevel sets the log level.
func SetLevel(level Level) {
	currentLevel.Store(int32(level))
}

// SetLevelFromString sets the log level from its string name.
// Unknown names fall back to Info.
func SetLevelFromString(level string) {
	switch strings.ToLower(level) {
	case "debug":
		SetLevel(LevelDebug)
	case "info":
		SetLevel(LevelInfo)
	case "warn", "warning":
		SetLevel(LevelWarn)
	case "error":
		SetLevel(LevelError)
	default:
		SetLevel(LevelInfo)
	}
}

// IsDebugEnabled reports whether debug logging is enabled.
func IsDebugEnabled() bool {
	return Level(currentLevel.Load()) <= LevelDebug
}

// Debug logs a debug message.
func Debug(format string, args ...interface{}) {
	logf(LevelDebug, "[DEBUG] ", format, args...)
}

// Info logs an informational message.
func Info(format string, args ...interface{}) {
	logf(LevelInfo, "[INFO] ", format, args...)
}

// Warn logs a warning message.
func Warn(format string, args ...interface{}) {
	logf(LevelWarn, "[WARN] ", format, args...)
}

// Error logs an error message.
func Error(format string, args ...interface{}) {
	logf(LevelError, "[ERROR] ", format, args...)
}

func logf(level Level, prefix, format string, args ...interface{}) {
	if Level(currentLevel.Load()) <= level {
		fmt.Fprintf(os.Stderr, prefix+format+"\n", args...)
	}
}
