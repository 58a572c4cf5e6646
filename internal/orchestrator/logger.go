package orchestrator

import (
	"bytes"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"sync"

	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
)

// LogSink receives each formatted log line, without the trailing newline.
type LogSink func(line string)

// LogOptions configures NewLogger.
type LogOptions struct {
	// Level is a zap level name; empty means info.
	Level string
	// Verbose forces debug.
	Verbose bool
	// Console receives human-readable lines; nil means stderr.
	Console io.Writer
	// Quiet drops the console core.
	Quiet bool
	// File, when set, receives JSON lines.
	File string
	// Sink, when set, receives every console-formatted line.
	Sink LogSink
}

// NewLogger builds the run logger. The returned close func flushes and
// releases the log file.
func NewLogger(o LogOptions) (*zap.Logger, func() error, error) {
	level := zapcore.InfoLevel
	if o.Level != "" {
		if err := level.UnmarshalText([]byte(o.Level)); err != nil {
			return nil, nil, fmt.Errorf("log level %q: %w", o.Level, err)
		}
	}
	if o.Verbose {
		level = zapcore.DebugLevel
	}
	enabler := zap.NewAtomicLevelAt(level)

	consoleCfg := zap.NewDevelopmentEncoderConfig()
	consoleCfg.EncodeTime = zapcore.TimeEncoderOfLayout("15:04:05.000")

	var cores []zapcore.Core
	if !o.Quiet {
		out := o.Console
		if out == nil {
			out = os.Stderr
		}
		cores = append(cores, zapcore.NewCore(zapcore.NewConsoleEncoder(consoleCfg), zapcore.Lock(zapcore.AddSync(out)), enabler))
	}

	var file *os.File
	if o.File != "" {
		if err := os.MkdirAll(filepath.Dir(o.File), 0755); err != nil {
			return nil, nil, fmt.Errorf("create log directory: %w", err)
		}
		f, err := os.OpenFile(o.File, os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0644)
		if err != nil {
			return nil, nil, fmt.Errorf("open log file: %w", err)
		}
		file = f
		cores = append(cores, zapcore.NewCore(zapcore.NewJSONEncoder(zap.NewProductionEncoderConfig()), zapcore.Lock(f), enabler))
	}

	if o.Sink != nil {
		cores = append(cores, zapcore.NewCore(zapcore.NewConsoleEncoder(consoleCfg), &sinkWriter{fn: o.Sink}, enabler))
	}

	logger := zap.New(zapcore.NewTee(cores...))
	closeFn := func() error {
		_ = logger.Sync()
		if file != nil {
			return file.Close()
		}
		return nil
	}
	return logger, closeFn, nil
}

// sinkWriter splits encoded entries into lines for a LogSink.
type sinkWriter struct {
	mu  sync.Mutex
	fn  LogSink
	buf []byte
}

func (w *sinkWriter) Write(p []byte) (int, error) {
	w.mu.Lock()
	defer w.mu.Unlock()
	w.buf = append(w.buf, p...)
	for {
		i := bytes.IndexByte(w.buf, '\n')
		if i < 0 {
			break
		}
		w.fn(string(w.buf[:i]))
		w.buf = w.buf[i+1:]
	}
	return len(p), nil
}

func (w *sinkWriter) Sync() error { return nil }
