package logging

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"runtime"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/kyleking/askdb/internal/config"
)

// LogLevel represents the severity level of a log message
type LogLevel int

const (
	DebugLevel LogLevel = iota
	InfoLevel
	WarnLevel
	ErrorLevel
)

const (
	logDirPerm  = 0755
	logFilePerm = 0644
	callerSkip  = 3
)

// String returns the string representation of the log level
func (l LogLevel) String() string {
	switch l {
	case DebugLevel:
		return "DEBUG"
	case InfoLevel:
		return "INFO"
	case WarnLevel:
		return "WARN"
	case ErrorLevel:
		return "ERROR"
	default:
		return "UNKNOWN"
	}
}

// Entry is a single rendered log line
type Entry struct {
	Timestamp string         `json:"timestamp"`
	Level     string         `json:"level"`
	Message   string         `json:"message"`
	Fields    map[string]any `json:"fields,omitempty"`
	Caller    string         `json:"caller,omitempty"`
	Error     string         `json:"error,omitempty"`
}

// sink is shared by a logger and every child derived from it, so all of
// them serialize on the same writer.
type sink struct {
	mu     sync.Mutex
	output io.Writer
	file   *os.File
}

// Logger provides structured logging. Derived loggers are immutable
// copies that share the parent's sink.
type Logger struct {
	level      LogLevel
	format     string
	showCaller bool
	fields     map[string]any
	sink       *sink
}

var (
	globalMu     sync.RWMutex
	globalLogger = Discard()
)

// InitializeLogger replaces the global logger with one built from cfg
func InitializeLogger(cfg config.LoggingConfig) error {
	logger, err := NewLogger(cfg)
	if err != nil {
		return err
	}

	SetLogger(logger)

	return nil
}

// NewLogger creates a new logger with the given configuration
func NewLogger(cfg config.LoggingConfig) (*Logger, error) {
	s := &sink{}

	switch strings.ToLower(cfg.Output) {
	case "stdout":
		s.output = os.Stdout
	case "stderr", "":
		s.output = os.Stderr
	case "file":
		if cfg.File == "" {
			return nil, errors.New("log file path is required when output is 'file'")
		}

		path := config.ExpandPath(cfg.File)
		if err := os.MkdirAll(filepath.Dir(path), logDirPerm); err != nil {
			return nil, fmt.Errorf("failed to create log directory: %w", err)
		}

		file, err := os.OpenFile(path, os.O_CREATE|os.O_WRONLY|os.O_APPEND, logFilePerm)
		if err != nil {
			return nil, fmt.Errorf("failed to open log file: %w", err)
		}

		s.file = file
		s.output = file
	default:
		return nil, fmt.Errorf("invalid log output: %s", cfg.Output)
	}

	level := parseLogLevel(cfg.Level)

	return &Logger{
		level:      level,
		format:     strings.ToLower(cfg.Format),
		showCaller: level == DebugLevel,
		fields:     map[string]any{},
		sink:       s,
	}, nil
}

// NewWriterLogger builds a logger that writes to w; used by tests and
// embedding callers that already own an output stream.
func NewWriterLogger(w io.Writer, level LogLevel, format string) *Logger {
	return &Logger{
		level:  level,
		format: format,
		fields: map[string]any{},
		sink:   &sink{output: w},
	}
}

// Discard returns a logger that drops everything
func Discard() *Logger {
	return NewWriterLogger(io.Discard, ErrorLevel+1, "text")
}

func parseLogLevel(level string) LogLevel {
	switch strings.ToLower(level) {
	case "debug":
		return DebugLevel
	case "info":
		return InfoLevel
	case "warn", "warning":
		return WarnLevel
	case "error":
		return ErrorLevel
	default:
		return InfoLevel
	}
}

func (l *Logger) derive(extra map[string]any) *Logger {
	fields := make(map[string]any, len(l.fields)+len(extra))
	for k, v := range l.fields {
		fields[k] = v
	}

	for k, v := range extra {
		fields[k] = v
	}

	return &Logger{
		level:      l.level,
		format:     l.format,
		showCaller: l.showCaller,
		fields:     fields,
		sink:       l.sink,
	}
}

// WithField returns a child logger carrying key=value
func (l *Logger) WithField(key string, value any) *Logger {
	return l.derive(map[string]any{key: value})
}

// WithFields returns a child logger carrying all of fields
func (l *Logger) WithFields(fields map[string]any) *Logger {
	return l.derive(fields)
}

// WithError returns a child logger carrying err's message
func (l *Logger) WithError(err error) *Logger {
	if err == nil {
		return l
	}

	return l.WithField("error", err.Error())
}

// Enabled reports whether messages at level would be written
func (l *Logger) Enabled(level LogLevel) bool {
	return level >= l.level
}

func (l *Logger) log(level LogLevel, message string, err error) {
	if !l.Enabled(level) {
		return
	}

	entry := Entry{
		Timestamp: time.Now().Format(time.RFC3339),
		Level:     level.String(),
		Message:   message,
		Fields:    l.fields,
	}

	if err != nil {
		entry.Error = err.Error()
	}

	if l.showCaller {
		entry.Caller = getCaller()
	}

	var line string

	if l.format == "json" {
		data, _ := json.Marshal(entry)
		line = string(data)
	} else {
		line = formatText(entry)
	}

	l.sink.mu.Lock()
	defer l.sink.mu.Unlock()

	_, _ = fmt.Fprintln(l.sink.output, line)
}

// formatText renders an entry with fields in key order
func formatText(entry Entry) string {
	parts := []string{fmt.Sprintf("[%s] %s", entry.Timestamp, entry.Level)}

	if entry.Caller != "" {
		parts = append(parts, fmt.Sprintf("(%s)", entry.Caller))
	}

	parts = append(parts, entry.Message)

	if len(entry.Fields) > 0 {
		keys := make([]string, 0, len(entry.Fields))
		for k := range entry.Fields {
			keys = append(keys, k)
		}

		sort.Strings(keys)

		fieldParts := make([]string, 0, len(keys))
		for _, k := range keys {
			fieldParts = append(fieldParts, fmt.Sprintf("%s=%v", k, entry.Fields[k]))
		}

		parts = append(parts, fmt.Sprintf("{%s}", strings.Join(fieldParts, " ")))
	}

	if entry.Error != "" {
		parts = append(parts, "error="+entry.Error)
	}

	return strings.Join(parts, " ")
}

func getCaller() string {
	_, file, line, ok := runtime.Caller(callerSkip)
	if !ok {
		return "unknown"
	}

	return fmt.Sprintf("%s:%d", filepath.Base(file), line)
}

// Debug logs a debug message
func (l *Logger) Debug(message string) { l.log(DebugLevel, message, nil) }

// Debugf logs a formatted debug message
func (l *Logger) Debugf(format string, args ...any) {
	l.log(DebugLevel, fmt.Sprintf(format, args...), nil)
}

// Info logs an info message
func (l *Logger) Info(message string) { l.log(InfoLevel, message, nil) }

// Infof logs a formatted info message
func (l *Logger) Infof(format string, args ...any) {
	l.log(InfoLevel, fmt.Sprintf(format, args...), nil)
}

// Warn logs a warning message
func (l *Logger) Warn(message string) { l.log(WarnLevel, message, nil) }

// Warnf logs a formatted warning message
func (l *Logger) Warnf(format string, args ...any) {
	l.log(WarnLevel, fmt.Sprintf(format, args...), nil)
}

// Error logs an error message
func (l *Logger) Error(message string) { l.log(ErrorLevel, message, nil) }

// Errorf logs a formatted error message
func (l *Logger) Errorf(format string, args ...any) {
	l.log(ErrorLevel, fmt.Sprintf(format, args...), nil)
}

// ErrorWithErr logs an error message with an associated error
func (l *Logger) ErrorWithErr(message string, err error) {
	l.log(ErrorLevel, message, err)
}

// Close releases the log file, if any
func (l *Logger) Close() error {
	l.sink.mu.Lock()
	defer l.sink.mu.Unlock()

	if l.sink.file != nil {
		err := l.sink.file.Close()
		l.sink.file = nil
		l.sink.output = io.Discard

		return err
	}

	return nil
}

// GetLogger returns the global logger; never nil
func GetLogger() *Logger {
	globalMu.RLock()
	defer globalMu.RUnlock()

	return globalLogger
}

// SetLogger replaces the global logger
func SetLogger(logger *Logger) {
	if logger == nil {
		logger = Discard()
	}

	globalMu.Lock()
	globalLogger = logger
	globalMu.Unlock()
}

// SetupFallbackLogger installs a plain stderr logger for when configuration fails
func SetupFallbackLogger() {
	SetLogger(NewWriterLogger(os.Stderr, InfoLevel, "text"))
}

// Debug logs a debug message using the global logger
func Debug(message string) { GetLogger().Debug(message) }

// Debugf logs a formatted debug message using the global logger
func Debugf(format string, args ...any) { GetLogger().Debugf(format, args...) }

// Info logs an info message using the global logger
func Info(message string) { GetLogger().Info(message) }

// Infof logs a formatted info message using the global logger
func Infof(format string, args ...any) { GetLogger().Infof(format, args...) }

// Warn logs a warning message using the global logger
func Warn(message string) { GetLogger().Warn(message) }

// Warnf logs a formatted warning message using the global logger
func Warnf(format string, args ...any) { GetLogger().Warnf(format, args...) }

// Error logs an error message using the global logger
func Error(message string) { GetLogger().Error(message) }

// Errorf logs a formatted error message using the global logger
func Errorf(format string, args ...any) { GetLogger().Errorf(format, args...) }

// ErrorWithErr logs an error with its cause using the global logger
func ErrorWithErr(message string, err error) { GetLogger().ErrorWithErr(message, err) }

// WithField adds a field to the global logger context
func WithField(key string, value any) *Logger { return GetLogger().WithField(key, value) }

// WithFields adds multiple fields to the global logger context
func WithFields(fields map[string]any) *Logger { return GetLogger().WithFields(fields) }

// WithError adds an error to the global logger context
func WithError(err error) *Logger { return GetLogger().WithError(err) }

type ctxKey struct{}

// NewContext returns a copy of ctx carrying logger
func NewContext(ctx context.Context, logger *Logger) context.Context {
	return context.WithValue(ctx, ctxKey{}, logger)
}

// FromContext returns the logger stored in ctx, or the global logger
func FromContext(ctx context.Context) *Logger {
	if logger, ok := ctx.Value(ctxKey{}).(*Logger); ok && logger != nil {
		return logger
	}

	return GetLogger()
}

// Timed runs fn and logs its duration and outcome under operation
func Timed(ctx context.Context, operation string, fn func() error) error {
	logger := FromContext(ctx).WithField("operation", operation)
	logger.Debug("starting")

	start := time.Now()
	err := fn()
	logger = logger.WithField("duration", time.Since(start).Round(time.Millisecond))

	if err != nil {
		logger.ErrorWithErr("failed", err)
	} else {
		logger.Debug("completed")
	}

	return err
}
