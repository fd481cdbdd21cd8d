package logger

import (
	"os"
	"strings"
)

type LogLevel int

const (
	LevelDebug LogLevel = iota
	LevelInfo
	LevelWarn
	LevelError
	LevelNone
)

// GetLevelFromEnv returns the log level configured by the
// MARKETCACHE_LOG_LEVEL environment variable, defaulting to info.
func GetLevelFromEnv() LogLevel {
	switch strings.ToLower(os.Getenv("MARKETCACHE_LOG_LEVEL")) {
	case "debug", "trace":
		return LevelDebug
	case "info":
		return LevelInfo
	case "warn", "warning":
		return LevelWarn
	case "error":
		return LevelError
	case "none", "off":
		return LevelNone
	}
	return LevelInfo
}

type Logger interface {
	// With returns a new Logger with the metadata attached to every entry.
	With(metadata map[string]interface{}) Logger
	// WithPrefix returns a new Logger with a prefix prepended to each message.
	WithPrefix(prefix string) Logger

	Debug(msg string, args ...interface{})
	Info(msg string, args ...interface{})
	Warn(msg string, args ...interface{})
	Error(msg string, args ...interface{})

	IsDebugEnabled() bool
}
