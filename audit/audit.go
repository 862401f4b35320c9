// Package audit keeps the human-readable trading history: one timestamped line
// per event, appended to a file and mirrored to the process logger.
package audit

import (
	"fmt"
	"io"
	"os"
	"sync"
	"time"

	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
)

// Log is safe for concurrent use.
type Log struct {
	mu      sync.Mutex
	core    zapcore.Core
	closer  io.Closer
	console *zap.Logger
}

// Open appends to the history file at path, creating it if needed.
func Open(path string, console *zap.Logger) (*Log, error) {
	f, err := os.OpenFile(path, os.O_APPEND|os.O_CREATE|os.O_WRONLY, 0o644)
	if err != nil {
		return nil, fmt.Errorf("failed to open history file: %w", err)
	}
	l := NewWriter(f, console)
	l.closer = f
	return l, nil
}

// NewWriter writes history lines to w.
func NewWriter(w io.Writer, console *zap.Logger) *Log {
	if console == nil {
		console = zap.NewNop()
	}
	return &Log{
		core:    zapcore.NewCore(newEncoder(), zapcore.AddSync(w), zapcore.DebugLevel),
		console: console.Named("history"),
	}
}

// newEncoder renders entries as "[2006-01-02T15:04:05Z07:00] message".
func newEncoder() zapcore.Encoder {
	return zapcore.NewConsoleEncoder(zapcore.EncoderConfig{
		TimeKey:    "time",
		MessageKey: "msg",
		LineEnding: zapcore.DefaultLineEnding,
		EncodeTime: func(t time.Time, enc zapcore.PrimitiveArrayEncoder) {
			enc.AppendString("[" + t.UTC().Format(time.RFC3339) + "]")
		},
		ConsoleSeparator: " ",
	})
}

// Printf appends a formatted history line.
func (l *Log) Printf(format string, args ...interface{}) {
	l.Print(fmt.Sprintf(format, args...))
}

// Print appends msg as one history line.
func (l *Log) Print(msg string) {
	l.mu.Lock()
	defer l.mu.Unlock()

	entry := zapcore.Entry{Level: zapcore.InfoLevel, Time: time.Now(), Message: msg}
	if err := l.core.Write(entry, nil); err != nil {
		l.console.Warn("failed to write history line", zap.Error(err))
	}
	l.console.Info(msg)
}

// Close flushes and closes the underlying file, if any.
func (l *Log) Close() error {
	l.mu.Lock()
	defer l.mu.Unlock()

	_ = l.core.Sync()
	if l.closer != nil {
		return l.closer.Close()
	}
	return nil
}
