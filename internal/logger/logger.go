package logger

import (
	"io"
	"log"
	"os"
	"sync"

	"github.com/zerodha/logf"
)

var (
	globalLogger logf.Logger
	once         sync.Once
	logFile      *os.File
	defaultOpts  = logf.Opts{
		EnableCaller:    true,
		TimestampFormat: "15:04:05",
		EnableColor:     false,
		Level:           logf.InfoLevel,
	}
)

// GetDefaultOpts returns a copy of the default logger options.
// This is useful for tests that need to modify options for a specific logger instance.
func GetDefaultOpts() logf.Opts {
	return defaultOpts
}

// GetLogger returns the singleton instance of the logger.
// If filePath is provided, it attempts to tee output into that file.
// The 'level' and 'filePath' parameters are only effective on the first
// call that initializes the logger.
func GetLogger(level string, filePath ...string) *logf.Logger {
	once.Do(func() {
		currentOpts := GetDefaultOpts()
		var logLevel logf.Level
		switch level {
		case "debug":
			logLevel = logf.DebugLevel
		case "info":
			logLevel = logf.InfoLevel
		case "warn":
			logLevel = logf.WarnLevel
		case "error":
			logLevel = logf.ErrorLevel
		case "fatal":
			logLevel = logf.FatalLevel
		default:
			logLevel = currentOpts.Level
		}
		currentOpts.Level = logLevel

		var writers []io.Writer
		writers = append(writers, os.Stdout)

		if len(filePath) > 0 && filePath[0] != "" {
			var err error
			logFile, err = os.OpenFile(filePath[0], os.O_APPEND|os.O_CREATE|os.O_WRONLY, 0644)
			if err != nil {
				// Use standard log package for this specific error, as
				// logf isn't fully set up yet.
				log.Printf("[logger] Failed to open log file '%s': %v. Continuing with stdout only.", filePath[0], err)
			} else {
				writers = append(writers, logFile)
			}
		}
		currentOpts.Writer = io.MultiWriter(writers...)
		globalLogger = logf.New(currentOpts)
	})
	return &globalLogger
}

// Reset is for testing so that we can reset the logger singleton
func Reset() {
	once = sync.Once{}
	if logFile != nil {
		_ = logFile.Close()
		logFile = nil
	}
	globalLogger = logf.Logger{}
}
