// Package logger provides the process-wide leveled logger used by the batch engine and the
// customer application. It wraps the standard `log` package and drops messages below the
// configured level.
package logger

import (
	"io"
	"log"
	"os"
	"strings"
	"sync/atomic"
)

// LogLevel is the severity of a log message. Smaller values are more verbose.
type LogLevel int32

const (
	// LevelDebug is used for chunk-level and SQL-level detail.
	LevelDebug LogLevel = iota
	// LevelInfo is used for job and step lifecycle messages.
	LevelInfo
	// LevelWarn is used for recoverable problems.
	LevelWarn
	// LevelError is used for failed runs and failed infrastructure calls.
	LevelError
	// LevelFatal is used right before the process exits.
	LevelFatal
)

// String returns the upper-case name of the level.
func (l LogLevel) String() string {
	switch l {
	case LevelDebug:
		return "DEBUG"
	case LevelInfo:
		return "INFO"
	case LevelWarn:
		return "WARN"
	case LevelError:
		return "ERROR"
	case LevelFatal:
		return "FATAL"
	default:
		return "UNKNOWN"
	}
}

var (
	level  atomic.Int32
	std    = log.New(os.Stderr, "", log.LstdFlags|log.Lmicroseconds)
	exitFn = os.Exit
)

func init() {
	level.Store(int32(LevelInfo))
}

// SetLogLevel sets the global log level.
// Valid values are "DEBUG", "INFO", "WARN", "ERROR" and "FATAL" (case-insensitive).
// Anything else falls back to INFO.
func SetLogLevel(name string) {
	switch strings.ToUpper(strings.TrimSpace(name)) {
	case "DEBUG", "TRACE":
		level.Store(int32(LevelDebug))
	case "INFO", "":
		level.Store(int32(LevelInfo))
	case "WARN", "WARNING":
		level.Store(int32(LevelWarn))
	case "ERROR":
		level.Store(int32(LevelError))
	case "FATAL":
		level.Store(int32(LevelFatal))
	default:
		level.Store(int32(LevelInfo))
		std.Printf("[WARN] Unknown log level '%s' specified. Defaulting to INFO level.", name)
	}
}

// GetLogLevel returns the current global log level.
func GetLogLevel() LogLevel {
	return LogLevel(level.Load())
}

// SetOutput redirects all log output. Tests use it to capture messages.
func SetOutput(w io.Writer) {
	std.SetOutput(w)
}

func enabled(l LogLevel) bool {
	return LogLevel(level.Load()) <= l
}

// Debugf logs at DEBUG level.
func Debugf(format string, v ...interface{}) {
	if enabled(LevelDebug) {
		std.Printf("[DEBUG] "+format, v...)
	}
}

// Infof logs at INFO level.
func Infof(format string, v ...interface{}) {
	if enabled(LevelInfo) {
		std.Printf("[INFO] "+format, v...)
	}
}

// Warnf logs at WARN level.
func Warnf(format string, v ...interface{}) {
	if enabled(LevelWarn) {
		std.Printf("[WARN] "+format, v...)
	}
}

// Errorf logs at ERROR level.
func Errorf(format string, v ...interface{}) {
	if enabled(LevelError) {
		std.Printf("[ERROR] "+format, v...)
	}
}

// Fatalf logs at FATAL level and terminates the process with exit code 1.
func Fatalf(format string, v ...interface{}) {
	std.Printf("[FATAL] "+format, v...)
	exitFn(1)
}
