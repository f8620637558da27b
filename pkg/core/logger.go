// Package core holds the logger and invocation IDs shared by the VM packages.
package core

import (
	"context"
	"fmt"
	"io"
	"log"
	"os"
	"strings"
	"sync"
	"time"
)

// Logger provides structured logging capabilities
// This abstraction allows swapping logging implementations
type Logger interface {
	// Error logs an error message
	Error(args ...interface{})

	// Errorf logs a formatted error message
	Errorf(format string, args ...interface{})

	// Warn logs a warning message
	Warn(args ...interface{})

	// Warnf logs a formatted warning message
	Warnf(format string, args ...interface{})

	// Info logs an informational message
	Info(args ...interface{})

	// Infof logs a formatted informational message
	Infof(format string, args ...interface{})

	// Debug logs a debug message
	Debug(args ...interface{})

	// Debugf logs a formatted debug message
	Debugf(format string, args ...interface{})

	// WithFields returns a logger that adds fields to every entry
	WithFields(fields map[string]interface{}) Logger

	// WithContext returns a logger that adds the context's invocation ID
	WithContext(ctx context.Context) Logger
}

// Level is a logging severity.
type Level int

const (
	LevelDebug Level = iota
	LevelInfo
	LevelWarn
	LevelError
)

func (l Level) String() string {
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
		return fmt.Sprintf("LEVEL(%d)", int(l))
	}
}

// ParseLevel parses debug, info, warn or error.
func ParseLevel(s string) (Level, error) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "debug":
		return LevelDebug, nil
	case "", "info":
		return LevelInfo, nil
	case "warn", "warning":
		return LevelWarn, nil
	case "error":
		return LevelError, nil
	}
	return LevelInfo, &Error{Code: "INVALID_LEVEL", Message: fmt.Sprintf("unknown log level %q", s)}
}

// LoggerConfig selects the logger implementation.
type LoggerConfig struct {
	Level  Level
	Format string    // "text" (default) or "json"
	Output io.Writer // nil splits text output between stderr and stdout, json goes to stdout

	// Plain drops timestamps and caller information, for reproducible output.
	Plain bool
}

// NewLogger builds a logger from cfg.
func NewLogger(cfg LoggerConfig) Logger {
	if strings.EqualFold(cfg.Format, "json") {
		out := cfg.Output
		if out == nil {
			out = os.Stdout
		}
		return &jsonLogger{out: out, mu: &sync.Mutex{}, level: cfg.Level, plain: cfg.Plain}
	}

	flags := log.LstdFlags | log.Lshortfile
	if cfg.Plain {
		flags = 0
	}
	errOut, stdOut := io.Writer(os.Stderr), io.Writer(os.Stdout)
	if cfg.Output != nil {
		errOut, stdOut = cfg.Output, cfg.Output
	}
	return &defaultLogger{
		errorLogger: log.New(errOut, "[ERROR] ", flags),
		warnLogger:  log.New(errOut, "[WARN] ", flags),
		infoLogger:  log.New(stdOut, "[INFO] ", flags),
		debugLogger: log.New(stdOut, "[DEBUG] ", flags),
		level:       cfg.Level,
	}
}

// defaultLogger implements Logger using Go's standard log package
// Can be swapped with other logging implementations (e.g., structured loggers)
type defaultLogger struct {
	errorLogger *log.Logger
	warnLogger  *log.Logger
	infoLogger  *log.Logger
	debugLogger *log.Logger
	level       Level
	fields      map[string]interface{}
}

// NewDefaultLogger creates a new default logger implementation
func NewDefaultLogger() Logger {
	return NewLogger(LoggerConfig{Level: LevelDebug})
}

// NewJSONLogger creates a logger that writes one JSON object per entry to stdout
func NewJSONLogger() Logger {
	return NewLogger(LoggerConfig{Level: LevelDebug, Format: "json"})
}

// NewNopLogger returns a logger that discards everything.
func NewNopLogger() Logger {
	return NewLogger(LoggerConfig{Level: LevelError + 1, Output: io.Discard})
}

func (l *defaultLogger) output(lg *log.Logger, level Level, msg string) {
	if level < l.level {
		return
	}
	if len(l.fields) > 0 {
		msg = fmt.Sprintf("%s %v", msg, l.fields)
	}
	lg.Output(3, msg)
}

// Error logs an error message
func (l *defaultLogger) Error(args ...interface{}) {
	l.output(l.errorLogger, LevelError, fmt.Sprint(args...))
}

// Errorf logs a formatted error message
func (l *defaultLogger) Errorf(format string, args ...interface{}) {
	l.output(l.errorLogger, LevelError, fmt.Sprintf(format, args...))
}

// Warn logs a warning message
func (l *defaultLogger) Warn(args ...interface{}) {
	l.output(l.warnLogger, LevelWarn, fmt.Sprint(args...))
}

// Warnf logs a formatted warning message
func (l *defaultLogger) Warnf(format string, args ...interface{}) {
	l.output(l.warnLogger, LevelWarn, fmt.Sprintf(format, args...))
}

// Info logs an informational message
func (l *defaultLogger) Info(args ...interface{}) {
	l.output(l.infoLogger, LevelInfo, fmt.Sprint(args...))
}

// Infof logs a formatted informational message
func (l *defaultLogger) Infof(format string, args ...interface{}) {
	l.output(l.infoLogger, LevelInfo, fmt.Sprintf(format, args...))
}

// Debug logs a debug message
func (l *defaultLogger) Debug(args ...interface{}) {
	l.output(l.debugLogger, LevelDebug, fmt.Sprint(args...))
}

// Debugf logs a formatted debug message
func (l *defaultLogger) Debugf(format string, args ...interface{}) {
	l.output(l.debugLogger, LevelDebug, fmt.Sprintf(format, args...))
}

func (l *defaultLogger) WithFields(fields map[string]interface{}) Logger {
	cp := *l
	cp.fields = mergeFields(l.fields, fields)
	return &cp
}

func (l *defaultLogger) WithContext(ctx context.Context) Logger {
	return l.WithFields(contextFields(ctx))
}

// jsonLogger writes entries as single-line JSON objects.
type jsonLogger struct {
	out    io.Writer
	mu     *sync.Mutex
	level  Level
	plain  bool
	fields map[string]interface{}
}

type jsonEntry struct {
	Timestamp string                 `json:"timestamp,omitempty"`
	Level     string                 `json:"level"`
	Message   string                 `json:"message"`
	Fields    map[string]interface{} `json:"fields,omitempty"`
}

func (l *jsonLogger) write(level Level, msg string) {
	if level < l.level {
		return
	}
	e := jsonEntry{Level: level.String(), Message: msg, Fields: l.fields}
	if !l.plain {
		e.Timestamp = time.Now().UTC().Format(time.RFC3339)
	}
	data, err := JSONEncode(e)
	if err != nil {
		data = []byte(fmt.Sprintf(`{"level":"ERROR","message":%q}`, err.Error()))
	}
	l.mu.Lock()
	defer l.mu.Unlock()
	l.out.Write(append(data, '\n'))
}

func (l *jsonLogger) Error(args ...interface{}) { l.write(LevelError, fmt.Sprint(args...)) }
func (l *jsonLogger) Errorf(format string, args ...interface{}) {
	l.write(LevelError, fmt.Sprintf(format, args...))
}
func (l *jsonLogger) Warn(args ...interface{}) { l.write(LevelWarn, fmt.Sprint(args...)) }
func (l *jsonLogger) Warnf(format string, args ...interface{}) {
	l.write(LevelWarn, fmt.Sprintf(format, args...))
}
func (l *jsonLogger) Info(args ...interface{}) { l.write(LevelInfo, fmt.Sprint(args...)) }
func (l *jsonLogger) Infof(format string, args ...interface{}) {
	l.write(LevelInfo, fmt.Sprintf(format, args...))
}
func (l *jsonLogger) Debug(args ...interface{}) { l.write(LevelDebug, fmt.Sprint(args...)) }
func (l *jsonLogger) Debugf(format string, args ...interface{}) {
	l.write(LevelDebug, fmt.Sprintf(format, args...))
}

func (l *jsonLogger) WithFields(fields map[string]interface{}) Logger {
	cp := *l
	cp.fields = mergeFields(l.fields, fields)
	return &cp
}

func (l *jsonLogger) WithContext(ctx context.Context) Logger {
	return l.WithFields(contextFields(ctx))
}

func mergeFields(base, extra map[string]interface{}) map[string]interface{} {
	if len(extra) == 0 {
		return base
	}
	out := make(map[string]interface{}, len(base)+len(extra))
	for k, v := range base {
		out[k] = v
	}
	for k, v := range extra {
		out[k] = v
	}
	return out
}

func contextFields(ctx context.Context) map[string]interface{} {
	if ctx == nil {
		return nil
	}
	if id := InvocationID(ctx); id != "" {
		return map[string]interface{}{"invocation_id": id}
	}
	return nil
}
