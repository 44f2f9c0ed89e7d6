package utils

import (
	"sync"

	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
)

var (
	log  *zap.Logger
	once sync.Once
)

// InitLogger initializes the global logger instance. Entries are also
// appended to logFile when it is set.
func InitLogger(debug bool, logFile string) *zap.Logger {
	once.Do(func() {
		logger, err := NewLogger(debug, logFile)
		if err != nil {
			panic(err)
		}
		log = logger
	})

	return log
}

// NewLogger builds a production logger with ISO8601 timestamps
func NewLogger(debug bool, logFile string) (*zap.Logger, error) {
	config := zap.NewProductionConfig()
	if debug {
		config.Level = zap.NewAtomicLevelAt(zapcore.DebugLevel)
	}

	config.OutputPaths = []string{"stdout"}
	config.ErrorOutputPaths = []string{"stderr"}
	if logFile != "" {
		config.OutputPaths = append(config.OutputPaths, logFile)
		config.ErrorOutputPaths = append(config.ErrorOutputPaths, logFile)
	}

	config.EncoderConfig.TimeKey = "timestamp"
	config.EncoderConfig.EncodeTime = zapcore.ISO8601TimeEncoder
	config.EncoderConfig.StacktraceKey = "stacktrace"

	return config.Build(
		zap.AddCaller(),
		zap.AddStacktrace(zapcore.ErrorLevel),
	)
}

// GetLogger returns the global logger instance
func GetLogger() *zap.Logger {
	if log == nil {
		return InitLogger(false, "")
	}
	return log
}

// CleanupLogger flushes any buffered log entries
func CleanupLogger() {
	if log != nil {
		_ = log.Sync()
	}
}
