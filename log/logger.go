// Package log provides structured logging with bundle-run context.
//
// Two logger variants are available:
//   - Logger: non-sugared zap.Logger for engine-core paths (high performance, structured fields)
//   - SugaredLogger: printf-style logging for CLI/debug surfaces (convenience over performance)
//
// Use Logger.Sugar() to obtain a SugaredLogger when needed.
package log

import (
	"fmt"
	"io"
	"os"
	"time"

	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
)

// Identity carries the per-process context every log entry is tagged
// with: which bundle, which run, and whether this process is the
// elevated companion or the controller.
type Identity struct {
	BundleID  string
	RunID     string
	Elevated  bool
}

// Logger provides structured logging tagged with bundle identity.
//
// Use this for engine-core paths where performance matters. For
// CLI/debug surfaces, use Sugar() to get a SugaredLogger.
type Logger struct {
	zap *zap.Logger
}

// SugaredLogger provides printf-style logging for CLI and debug surfaces.
type SugaredLogger struct {
	sugar *zap.SugaredLogger
}

// NewLogger creates a new logger tagged with id. Output defaults to
// os.Stderr.
func NewLogger(id Identity) *Logger {
	return newLoggerWithWriter(id, os.Stderr)
}

// WithOutput returns a new logger with a different output writer.
func (l *Logger) WithOutput(w io.Writer) *Logger {
	core := jsonCore(w)
	return &Logger{zap: l.zap.WithOptions(zap.WrapCore(func(zapcore.Core) zapcore.Core { return core }))}
}

func jsonCore(w io.Writer) zapcore.Core {
	encoderConfig := zapcore.EncoderConfig{
		TimeKey:     "timestamp",
		LevelKey:    "level",
		MessageKey:  "message",
		EncodeTime:  zapcore.RFC3339NanoTimeEncoder,
		EncodeLevel: zapcore.LowercaseLevelEncoder,
	}
	return zapcore.NewCore(
		zapcore.NewJSONEncoder(encoderConfig),
		zapcore.AddSync(w),
		zapcore.DebugLevel,
	)
}

func newLoggerWithWriter(id Identity, w io.Writer) *Logger {
	core := jsonCore(w)

	contextFields := []zap.Field{
		zap.String("bundle_id", id.BundleID),
		zap.String("run_id", id.RunID),
		zap.Bool("elevated", id.Elevated),
	}

	zapLogger := zap.New(core).With(contextFields...)
	return &Logger{zap: zapLogger}
}

// redact replaces any field value equal to a known-hidden marker with the
// fixed mask, so a caller that accidentally passes a hidden variant's
// plaintext into a log field doesn't leak it. Callers are still
// responsible for not logging hidden values in the first place; this is
// a backstop, not the primary control.
func redact(fields map[string]any, hidden map[string]bool) map[string]any {
	if len(hidden) == 0 {
		return fields
	}
	out := make(map[string]any, len(fields))
	for k, v := range fields {
		if hidden[k] {
			out[k] = "*****"
			continue
		}
		out[k] = v
	}
	return out
}

// Debug logs a debug message. hiddenKeys names field keys whose values
// should be redacted before logging.
func (l *Logger) Debug(message string, fields map[string]any, hiddenKeys ...string) {
	l.zap.Debug(message, zap.Any("fields", redact(fields, keySet(hiddenKeys))))
}

// Info logs an info message.
func (l *Logger) Info(message string, fields map[string]any, hiddenKeys ...string) {
	l.zap.Info(message, zap.Any("fields", redact(fields, keySet(hiddenKeys))))
}

// Warn logs a warning message.
func (l *Logger) Warn(message string, fields map[string]any, hiddenKeys ...string) {
	l.zap.Warn(message, zap.Any("fields", redact(fields, keySet(hiddenKeys))))
}

// Error logs an error message.
func (l *Logger) Error(message string, fields map[string]any, hiddenKeys ...string) {
	l.zap.Error(message, zap.Any("fields", redact(fields, keySet(hiddenKeys))))
}

func keySet(keys []string) map[string]bool {
	if len(keys) == 0 {
		return nil
	}
	m := make(map[string]bool, len(keys))
	for _, k := range keys {
		m[k] = true
	}
	return m
}

// Sugar returns a SugaredLogger for printf-style logging.
func (l *Logger) Sugar() *SugaredLogger {
	return &SugaredLogger{sugar: l.zap.Sugar()}
}

func (s *SugaredLogger) Debugf(template string, args ...any) { s.sugar.Debugf(template, args...) }
func (s *SugaredLogger) Infof(template string, args ...any)  { s.sugar.Infof(template, args...) }
func (s *SugaredLogger) Warnf(template string, args ...any)  { s.sugar.Warnf(template, args...) }
func (s *SugaredLogger) Errorf(template string, args ...any) { s.sugar.Errorf(template, args...) }

// With returns a SugaredLogger with additional context fields.
func (s *SugaredLogger) With(args ...any) *SugaredLogger {
	return &SugaredLogger{sugar: s.sugar.With(args...)}
}

// Header writes the fixed preamble every opened bundle log starts with:
// engine version, command line, and bundle id. Grounded on Burn's
// logging.cpp, which always writes this same preamble before any other
// line lands in the log.
func Header(w io.Writer, engineVersion, commandLine string, id Identity) {
	fmt.Fprintf(w, "[%s] bundleforge %s\n", time.Now().UTC().Format(time.RFC3339), engineVersion)
	fmt.Fprintf(w, "bundle: %s\n", id.BundleID)
	fmt.Fprintf(w, "command line: %s\n", commandLine)
}

// NewBundleLogger opens path for appending, writes the header, and
// returns a Logger writing JSON entries after it.
func NewBundleLogger(path, engineVersion, commandLine string, id Identity) (*Logger, *os.File, error) {
	f, err := os.OpenFile(path, os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0o644)
	if err != nil {
		return nil, nil, err
	}
	Header(f, engineVersion, commandLine, id)
	return newLoggerWithWriter(id, f), f, nil
}
