// Package logging provides the structured, component-scoped logger used
// across the bot. It keeps the same surface the rest of the codebase
// expects (New, Default, WithComponent, WithTraceID, WithField/Fields,
// WithError) but is backed by zerolog instead of a hand-rolled encoder.
package logging

import (
	"io"
	"os"
	"strings"
	"sync"
	"time"

	"github.com/rs/zerolog"
)

// Config holds logger configuration.
type Config struct {
	Level       string `json:"level"`
	Output      string `json:"output"` // "stdout", "stderr", or file path
	Component   string `json:"component"`
	IncludeFile bool   `json:"include_file"`
	JSONFormat  bool   `json:"json_format"`
}

// Logger wraps a zerolog.Logger with component/trace-id/field propagation.
type Logger struct {
	base zerolog.Logger
}

func parseLevel(s string) zerolog.Level {
	switch strings.ToUpper(s) {
	case "DEBUG":
		return zerolog.DebugLevel
	case "INFO":
		return zerolog.InfoLevel
	case "WARN", "WARNING":
		return zerolog.WarnLevel
	case "ERROR":
		return zerolog.ErrorLevel
	case "FATAL":
		return zerolog.FatalLevel
	default:
		return zerolog.InfoLevel
	}
}

// New creates a new logger with the given configuration.
func New(cfg *Config) *Logger {
	var output io.Writer = os.Stdout
	switch cfg.Output {
	case "", "stdout":
		output = os.Stdout
	case "stderr":
		output = os.Stderr
	default:
		if f, err := os.OpenFile(cfg.Output, os.O_CREATE|os.O_APPEND|os.O_WRONLY, 0644); err == nil {
			output = f
		}
	}

	if !cfg.JSONFormat {
		output = zerolog.ConsoleWriter{Out: output, TimeFormat: time.RFC3339}
	}

	zl := zerolog.New(output).
		Level(parseLevel(cfg.Level)).
		With().
		Timestamp().
		Logger()

	if cfg.IncludeFile {
		zl = zl.With().Caller().Logger()
	}
	if cfg.Component != "" {
		zl = zl.With().Str("component", cfg.Component).Logger()
	}

	return &Logger{base: zl}
}

var (
	defaultLogger *Logger
	defaultOnce   sync.Once
	defaultMu     sync.RWMutex
)

// Default returns the default logger instance.
func Default() *Logger {
	defaultOnce.Do(func() {
		defaultMu.Lock()
		defaultLogger = New(&Config{Level: "INFO", Output: "stdout", Component: "app", JSONFormat: true})
		defaultMu.Unlock()
	})
	defaultMu.RLock()
	defer defaultMu.RUnlock()
	return defaultLogger
}

// SetDefault replaces the default logger.
func SetDefault(l *Logger) {
	defaultMu.Lock()
	defer defaultMu.Unlock()
	defaultLogger = l
}

// WithComponent returns a new logger scoped to the given component.
func (l *Logger) WithComponent(component string) *Logger {
	return &Logger{base: l.base.With().Str("component", component).Logger()}
}

// WithTraceID returns a new logger carrying the given trace ID.
func (l *Logger) WithTraceID(traceID string) *Logger {
	return &Logger{base: l.base.With().Str("trace_id", traceID).Logger()}
}

// WithField returns a new logger with one extra structured field.
func (l *Logger) WithField(key string, value interface{}) *Logger {
	return &Logger{base: l.base.With().Interface(key, value).Logger()}
}

// WithFields returns a new logger with several extra structured fields.
func (l *Logger) WithFields(fields map[string]interface{}) *Logger {
	ctx := l.base.With()
	for k, v := range fields {
		ctx = ctx.Interface(k, v)
	}
	return &Logger{base: ctx.Logger()}
}

// WithError returns a new logger carrying an error field.
func (l *Logger) WithError(err error) *Logger {
	if err == nil {
		return l
	}
	return &Logger{base: l.base.With().Err(err).Logger()}
}

// WithDuration returns a new logger carrying a duration field.
func (l *Logger) WithDuration(d time.Duration) *Logger {
	return &Logger{base: l.base.With().Dur("duration", d).Logger()}
}

func (l *Logger) Debug(msg string, args ...interface{}) { logf(l.base.Debug(), msg, args...) }
func (l *Logger) Info(msg string, args ...interface{})  { logf(l.base.Info(), msg, args...) }
func (l *Logger) Warn(msg string, args ...interface{})  { logf(l.base.Warn(), msg, args...) }
func (l *Logger) Error(msg string, args ...interface{}) { logf(l.base.Error(), msg, args...) }

// Fatal logs at fatal level and terminates the process.
func (l *Logger) Fatal(msg string, args ...interface{}) {
	logf(l.base.Fatal(), msg, args...)
}

// logf supports both key/value pairs ("k1", v1, "k2", v2) and printf-style
// formatting, matching the calling convention used throughout the codebase.
func logf(ev *zerolog.Event, msg string, args ...interface{}) {
	if len(args) >= 2 && len(args)%2 == 0 {
		if _, ok := args[0].(string); ok {
			for i := 0; i < len(args); i += 2 {
				key, ok := args[i].(string)
				if !ok {
					continue
				}
				ev = ev.Interface(key, args[i+1])
			}
			ev.Msg(msg)
			return
		}
	}
	if len(args) > 0 {
		ev.Msgf(msg, args...)
		return
	}
	ev.Msg(msg)
}

// Package-level convenience functions operating on the default logger.

func Debug(msg string, args ...interface{}) { Default().Debug(msg, args...) }
func Info(msg string, args ...interface{})  { Default().Info(msg, args...) }
func Warn(msg string, args ...interface{})  { Default().Warn(msg, args...) }
func Error(msg string, args ...interface{}) { Default().Error(msg, args...) }
func Fatal(msg string, args ...interface{}) { Default().Fatal(msg, args...) }

func WithComponent(component string) *Logger            { return Default().WithComponent(component) }
func WithTraceID(traceID string) *Logger                { return Default().WithTraceID(traceID) }
func WithField(key string, value interface{}) *Logger   { return Default().WithField(key, value) }
func WithFields(fields map[string]interface{}) *Logger  { return Default().WithFields(fields) }
func WithError(err error) *Logger                       { return Default().WithError(err) }
