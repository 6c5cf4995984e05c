package logger

import (
	"context"
	"os"
	"strings"

	"go.opentelemetry.io/otel/trace"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
)

var (
	// Global sugared logger instance
	globalLogger *zap.SugaredLogger
	// Whether debug-level logging is enabled
	detailedLogging bool
)

// LogConfig holds logging configuration.
type LogConfig struct {
	Level           string // DEBUG, INFO, WARN, ERROR
	Format          string // json or console
	DetailedLogging bool   // Enable debug logs
}

// Init initializes the global logger from environment variables.
func Init() error {
	return InitWithConfig(LoadConfigFromEnv())
}

// LoadConfigFromEnv loads logging configuration from environment variables.
func LoadConfigFromEnv() LogConfig {
	return LogConfig{
		Level:           getEnvOrDefault("LOG_LEVEL", "INFO"),
		Format:          getEnvOrDefault("LOG_FORMAT", "json"),
		DetailedLogging: getEnvOrDefault("LOG_DETAILED", "false") == "true",
	}
}

// InitWithConfig initializes the logger with specific configuration.
func InitWithConfig(config LogConfig) error {
	detailedLogging = config.DetailedLogging

	level := parseLogLevel(config.Level)
	if detailedLogging {
		level = zapcore.DebugLevel
	}

	encCfg := zap.NewProductionEncoderConfig()
	encCfg.TimeKey = "ts"
	encCfg.EncodeTime = zapcore.ISO8601TimeEncoder
	encCfg.EncodeLevel = zapcore.LowercaseLevelEncoder

	var enc zapcore.Encoder
	if config.Format == "console" {
		enc = zapcore.NewConsoleEncoder(encCfg)
	} else {
		enc = zapcore.NewJSONEncoder(encCfg)
	}

	core := zapcore.NewCore(enc, zapcore.Lock(os.Stdout), level)
	globalLogger = zap.New(core, zap.AddCaller(), zap.AddCallerSkip(1)).Sugar()
	return nil
}

// Sync flushes any buffered log entries.
func Sync() {
	if globalLogger != nil {
		_ = globalLogger.Sync()
	}
}

func parseLogLevel(level string) zapcore.Level {
	switch strings.ToUpper(level) {
	case "DEBUG":
		return zapcore.DebugLevel
	case "INFO":
		return zapcore.InfoLevel
	case "WARN":
		return zapcore.WarnLevel
	case "ERROR":
		return zapcore.ErrorLevel
	default:
		return zapcore.InfoLevel
	}
}

func getEnvOrDefault(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

// getTraceAttrs extracts trace ID and span ID from context for log correlation.
func getTraceAttrs(ctx context.Context) []any {
	if ctx == nil {
		return nil
	}
	span := trace.SpanFromContext(ctx)
	if !span.SpanContext().IsValid() {
		return nil
	}
	return []any{
		"trace_id", span.SpanContext().TraceID().String(),
		"span_id", span.SpanContext().SpanID().String(),
	}
}

func log(ctx context.Context, level zapcore.Level, msg string, args ...any) {
	if globalLogger == nil {
		// Logging before Init: fall back to a default production logger
		// so early failures are not silently dropped.
		l, err := zap.NewProduction()
		if err != nil {
			return
		}
		globalLogger = l.Sugar()
	}
	args = append(args, getTraceAttrs(ctx)...)
	switch level {
	case zapcore.DebugLevel:
		globalLogger.Debugw(msg, args...)
	case zapcore.WarnLevel:
		globalLogger.Warnw(msg, args...)
	case zapcore.ErrorLevel:
		globalLogger.Errorw(msg, args...)
	default:
		globalLogger.Infow(msg, args...)
	}
}

// Debug logs a debug message. Suppressed unless detailed logging is on.
func Debug(ctx context.Context, msg string, args ...any) {
	if !detailedLogging {
		return
	}
	log(ctx, zapcore.DebugLevel, msg, args...)
}

// Info logs an info message.
func Info(ctx context.Context, msg string, args ...any) {
	log(ctx, zapcore.InfoLevel, msg, args...)
}

// Warn logs a warning message.
func Warn(ctx context.Context, msg string, args ...any) {
	log(ctx, zapcore.WarnLevel, msg, args...)
}

// Error logs an error message.
func Error(ctx context.Context, msg string, args ...any) {
	log(ctx, zapcore.ErrorLevel, msg, args...)
}

// ErrorWithErr logs an error message with the error attached.
func ErrorWithErr(ctx context.Context, msg string, err error, args ...any) {
	args = append(args, "error", err)
	log(ctx, zapcore.ErrorLevel, msg, args...)
}
