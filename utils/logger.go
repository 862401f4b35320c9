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

// LogFile is where the process log is written besides stdout.
const LogFile = "arb-bot.log"

// InitLogger initializes the process logger. Only the first call has an effect.
func InitLogger(debug bool) *zap.Logger {
	once.Do(func() {
		logger, err := NewLogger(debug, []string{"stdout", LogFile}, []string{"stderr"})
		if err != nil {
			panic(err)
		}
		log = logger
	})

	return log
}

// NewLogger builds a production-style JSON logger writing to the given sinks.
func NewLogger(debug bool, outputs, errorOutputs []string) (*zap.Logger, error) {
	config := zap.NewProductionConfig()
	if debug {
		config.Level = zap.NewAtomicLevelAt(zapcore.DebugLevel)
	}

	config.OutputPaths = outputs
	config.ErrorOutputPaths = errorOutputs

	config.EncoderConfig.TimeKey = "timestamp"
	config.EncoderConfig.EncodeTime = zapcore.ISO8601TimeEncoder
	config.EncoderConfig.StacktraceKey = "stacktrace"

	return config.Build(
		zap.AddCaller(),
		zap.AddStacktrace(zapcore.ErrorLevel),
	)
}

// GetLogger returns the process logger, creating it on first use.
func GetLogger() *zap.Logger {
	if log == nil {
		return InitLogger(false)
	}
	return log
}

// CleanupLogger flushes any buffered log entries
func CleanupLogger() {
	if log != nil {
		_ = log.Sync()
	}
}
