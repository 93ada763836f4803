package observability

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"os"
	"sort"
	"strings"

	"github.com/sirupsen/logrus"

	"github.com/platinummonkey/fleet/pkg/contextkeys"
)

// LogLevel is the verbosity shared by the daemon's slog logger and the
// runtime's logrus logger.
type LogLevel int

const (
	DebugLevel LogLevel = iota
	InfoLevel
	WarnLevel
	ErrorLevel
)

var levels = [...]struct {
	name   string
	slog   slog.Level
	logrus logrus.Level
}{
	DebugLevel: {"DEBUG", slog.LevelDebug, logrus.DebugLevel},
	InfoLevel:  {"INFO", slog.LevelInfo, logrus.InfoLevel},
	WarnLevel:  {"WARN", slog.LevelWarn, logrus.WarnLevel},
	ErrorLevel: {"ERROR", slog.LevelError, logrus.ErrorLevel},
}

func (l LogLevel) valid() LogLevel {
	if l < DebugLevel || l > ErrorLevel {
		return InfoLevel
	}
	return l
}

func (l LogLevel) String() string { return levels[l.valid()].name }

// Logrus returns the matching logrus level.
func (l LogLevel) Logrus() logrus.Level { return levels[l.valid()].logrus }

// ParseLogLevel parses a level name; unknown names are InfoLevel.
func ParseLogLevel(level string) LogLevel {
	switch strings.ToLower(strings.TrimSpace(level)) {
	case "debug":
		return DebugLevel
	case "warn", "warning":
		return WarnLevel
	case "error":
		return ErrorLevel
	default:
		return InfoLevel
	}
}

// NewRuntimeLogger returns the logrus logger handed to the plugin runtime
// packages, writing JSON at level.
func NewRuntimeLogger(level LogLevel, output io.Writer) *logrus.Logger {
	if output == nil {
		output = os.Stderr
	}
	logger := logrus.New()
	logger.SetOutput(output)
	logger.SetLevel(level.Logrus())
	logger.SetFormatter(&logrus.JSONFormatter{})
	return logger
}

// Logger is the daemon's JSON logger. Values are immutable; the With
// methods return a derived logger.
type Logger struct {
	logger *slog.Logger
}

// NewLogger writes JSON records at level to output, stdout when nil.
func NewLogger(level LogLevel, output io.Writer) *Logger {
	if output == nil {
		output = os.Stdout
	}
	handler := slog.NewJSONHandler(output, &slog.HandlerOptions{Level: levels[level.valid()].slog})
	return &Logger{logger: slog.New(handler)}
}

func (l *Logger) with(args ...interface{}) *Logger {
	return &Logger{logger: l.logger.With(args...)}
}

func (l *Logger) WithField(key string, value interface{}) *Logger {
	return l.with(key, value)
}

// WithFields adds fields in key order.
func (l *Logger) WithFields(fields map[string]interface{}) *Logger {
	keys := make([]string, 0, len(fields))
	for k := range fields {
		keys = append(keys, k)
	}
	sort.Strings(keys)

	args := make([]interface{}, 0, len(fields)*2)
	for _, k := range keys {
		args = append(args, k, fields[k])
	}
	return l.with(args...)
}

// WithError records err under "error"; a nil err leaves l unchanged.
func (l *Logger) WithError(err error) *Logger {
	if err == nil {
		return l
	}
	return l.with("error", err.Error())
}

func (l *Logger) Debug(msg string) { l.logger.Debug(msg) }
func (l *Logger) Info(msg string)  { l.logger.Info(msg) }
func (l *Logger) Warn(msg string)  { l.logger.Warn(msg) }
func (l *Logger) Error(msg string) { l.logger.Error(msg) }

func (l *Logger) Debugf(format string, args ...interface{}) { l.logger.Debug(fmt.Sprintf(format, args...)) }
func (l *Logger) Infof(format string, args ...interface{})  { l.logger.Info(fmt.Sprintf(format, args...)) }
func (l *Logger) Warnf(format string, args ...interface{})  { l.logger.Warn(fmt.Sprintf(format, args...)) }
func (l *Logger) Errorf(format string, args ...interface{}) { l.logger.Error(fmt.Sprintf(format, args...)) }

func stringValue(ctx context.Context, key contextkeys.Key) string {
	v, _ := ctx.Value(key).(string)
	return v
}

func WithRequestID(ctx context.Context, requestID string) context.Context {
	return context.WithValue(ctx, contextkeys.RequestIDKey, requestID)
}

func GetRequestID(ctx context.Context) string {
	return stringValue(ctx, contextkeys.RequestIDKey)
}

// WithPluginID records the plugin a request or capability call concerns.
func WithPluginID(ctx context.Context, pluginID string) context.Context {
	return context.WithValue(ctx, contextkeys.PluginIDKey, pluginID)
}

func GetPluginID(ctx context.Context) string {
	return stringValue(ctx, contextkeys.PluginIDKey)
}

func WithLogger(ctx context.Context, logger *Logger) context.Context {
	return context.WithValue(ctx, contextkeys.LoggerKey, logger)
}

// GetLogger returns the logger stored by WithLogger, or a fresh info-level
// logger on stdout.
func GetLogger(ctx context.Context) *Logger {
	if logger, ok := ctx.Value(contextkeys.LoggerKey).(*Logger); ok {
		return logger
	}
	return NewLogger(InfoLevel, os.Stdout)
}

// FromContext returns the context's logger annotated with its request and
// plugin ids.
func FromContext(ctx context.Context) *Logger {
	fields := make(map[string]interface{}, 2)
	if id := GetRequestID(ctx); id != "" {
		fields["request_id"] = id
	}
	if id := GetPluginID(ctx); id != "" {
		fields["plugin_id"] = id
	}
	return GetLogger(ctx).WithFields(fields)
}
