package monitoring

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"os"
	"path/filepath"
	"runtime"
	"strings"
	"time"
)

// Logger is the logging surface every keyring component depends on.
// Messages are printf-style.
type Logger interface {
	Debug(msg string, args ...any)
	Info(msg string, args ...any)
	Warn(msg string, args ...any)
	Error(msg string, args ...any)
}

// NopLogger discards everything.
type NopLogger struct{}

func (NopLogger) Debug(msg string, args ...any) {}
func (NopLogger) Info(msg string, args ...any)  {}
func (NopLogger) Warn(msg string, args ...any)  {}
func (NopLogger) Error(msg string, args ...any) {}

// LogLevel represents the severity level of a log message
type LogLevel int

const (
	LevelDebug LogLevel = iota
	LevelInfo
	LevelWarn
	LevelError
)

// String returns the string representation of the log level
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
	default:
		return "UNKNOWN"
	}
}

// ParseLogLevel maps "debug", "info", "warn" and "error" to a LogLevel.
// Anything else yields LevelInfo.
func ParseLogLevel(s string) LogLevel {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "debug":
		return LevelDebug
	case "warn", "warning":
		return LevelWarn
	case "error":
		return LevelError
	default:
		return LevelInfo
	}
}

func (l LogLevel) slogLevel() slog.Level {
	switch l {
	case LevelDebug:
		return slog.LevelDebug
	case LevelWarn:
		return slog.LevelWarn
	case LevelError:
		return slog.LevelError
	default:
		return slog.LevelInfo
	}
}

// LogFormat represents the output format for logs
type LogFormat int

const (
	FormatJSON LogFormat = iota
	FormatText
)

// StructuredLogger provides leveled slog output with a fixed set of fields
// attached to every record.
type StructuredLogger struct {
	logger    *slog.Logger
	level     LogLevel
	fields    map[string]any
	component string
}

// LoggerConfig configures the structured logger
type LoggerConfig struct {
	Level     LogLevel
	Format    LogFormat
	Output    io.Writer
	Component string
	Fields    map[string]any
}

// NewStructuredLogger creates a new structured logger with the given configuration
func NewStructuredLogger(config LoggerConfig) *StructuredLogger {
	if config.Output == nil {
		config.Output = os.Stderr
	}

	fields := make(map[string]any, len(config.Fields)+2)
	for k, v := range config.Fields {
		fields[k] = v
	}
	if config.Component != "" {
		fields["component"] = config.Component
	}
	fields["service"] = "keyring_vault"

	opts := &slog.HandlerOptions{
		Level:     config.Level.slogLevel(),
		AddSource: config.Level == LevelDebug,
		ReplaceAttr: func(groups []string, a slog.Attr) slog.Attr {
			if a.Key == slog.TimeKey {
				a.Value = slog.StringValue(a.Value.Time().Format(time.RFC3339Nano))
			}
			return a
		},
	}

	var handler slog.Handler
	switch config.Format {
	case FormatText:
		handler = slog.NewTextHandler(config.Output, opts)
	default:
		handler = slog.NewJSONHandler(config.Output, opts)
	}

	return &StructuredLogger{
		logger:    slog.New(handler),
		level:     config.Level,
		fields:    fields,
		component: config.Component,
	}
}

// NewProductionLogger builds a JSON logger whose level comes from
// KEYRING_VAULT_LOG_LEVEL and format from KEYRING_VAULT_LOG_FORMAT.
func NewProductionLogger(component string) *StructuredLogger {
	format := FormatJSON
	if strings.EqualFold(os.Getenv("KEYRING_VAULT_LOG_FORMAT"), "text") {
		format = FormatText
	}

	return NewStructuredLogger(LoggerConfig{
		Level:     ParseLogLevel(os.Getenv("KEYRING_VAULT_LOG_LEVEL")),
		Format:    format,
		Component: component,
		Fields: map[string]any{
			"pid": os.Getpid(),
		},
	})
}

// WithFields returns a new logger with additional fields
func (l *StructuredLogger) WithFields(fields map[string]any) *StructuredLogger {
	merged := make(map[string]any, len(l.fields)+len(fields))
	for k, v := range l.fields {
		merged[k] = v
	}
	for k, v := range fields {
		merged[k] = v
	}

	return &StructuredLogger{
		logger:    l.logger,
		level:     l.level,
		fields:    merged,
		component: l.component,
	}
}

// WithComponent returns a copy of the logger tagged with another component name.
func (l *StructuredLogger) WithComponent(component string) *StructuredLogger {
	child := l.WithFields(map[string]any{"component": component})
	child.component = component
	return child
}

// Debug logs a debug level message
func (l *StructuredLogger) Debug(msg string, args ...any) {
	l.log(context.Background(), LevelDebug, msg, args...)
}

// Info logs an info level message
func (l *StructuredLogger) Info(msg string, args ...any) {
	l.log(context.Background(), LevelInfo, msg, args...)
}

// Warn logs a warning level message
func (l *StructuredLogger) Warn(msg string, args ...any) {
	l.log(context.Background(), LevelWarn, msg, args...)
}

// Error logs an error level message
func (l *StructuredLogger) Error(msg string, args ...any) {
	l.log(context.Background(), LevelError, msg, args...)
}

func (l *StructuredLogger) log(ctx context.Context, level LogLevel, msg string, args ...any) {
	if level < l.level {
		return
	}

	logger := l.logger
	for k, v := range l.fields {
		logger = logger.With(k, v)
	}

	if level >= LevelError {
		_, file, line, ok := runtime.Caller(2)
		if ok {
			logger = logger.With("caller", fmt.Sprintf("%s:%d", filepath.Base(file), line))
		}
	}

	if len(args) > 0 {
		msg = fmt.Sprintf(msg, args...)
	}
	logger.Log(ctx, level.slogLevel(), msg)
}
