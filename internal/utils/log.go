package utils

import (
	"log"
	"os"
	"strconv"
	"time"
)

// LogLevel of the loss detector package.
type LogLevel uint8

const (
	logEnv = "QUIC_LD_LOG_LEVEL"

	// LogLevelNothing disables logging.
	LogLevelNothing LogLevel = 0
	// LogLevelError enables error logs.
	LogLevelError LogLevel = 1
	// LogLevelInfo enables info logs (e.g. loss declarations and probes).
	LogLevelInfo LogLevel = 2
	// LogLevelDebug enables debug logs (e.g. alarm scheduling detail).
	LogLevelDebug LogLevel = 3
)

var (
	logLevel   = LogLevelNothing
	timeFormat = ""
)

// SetLogLevel sets the log level.
func SetLogLevel(level LogLevel) {
	logLevel = level
}

// SetLogTimeFormat sets the format of the timestamp.
// An empty string disables the logging of timestamps.
func SetLogTimeFormat(format string) {
	log.SetFlags(0)
	timeFormat = format
}

// Debugf logs something at debug level.
func Debugf(format string, args ...interface{}) {
	if logLevel == LogLevelDebug {
		logMessage(format, args...)
	}
}

// Infof logs something at info level.
func Infof(format string, args ...interface{}) {
	if logLevel >= LogLevelInfo {
		logMessage(format, args...)
	}
}

// Errorf logs something at error level.
func Errorf(format string, args ...interface{}) {
	if logLevel >= LogLevelError {
		logMessage(format, args...)
	}
}

// Debug returns true if debug level logging is enabled.
func Debug() bool {
	return logLevel == LogLevelDebug
}

func logMessage(format string, args ...interface{}) {
	if timeFormat != "" {
		log.Printf(time.Now().Format(timeFormat)+" "+format, args...)
	} else {
		log.Printf(format, args...)
	}
}

func init() {
	if e := os.Getenv(logEnv); e != "" {
		if i, err := strconv.Atoi(e); err == nil {
			SetLogLevel(LogLevel(i))
		}
	}
}
