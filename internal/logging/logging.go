package logging

import (
	"fmt"
	"os"
	"strings"
	"sync"

	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
)

// LogLevel represents the severity of a log message
type LogLevel int

const (
	// LevelDebug is the debug log level
	LevelDebug LogLevel = iota
	// LevelInfo is the info log level
	LevelInfo
	// LevelWarn is the warning log level
	LevelWarn
	// LevelError is the error log level
	LevelError
)

var (
	currentLevel LogLevel
	sugar        *zap.SugaredLogger
	initOnce     sync.Once
	mu           sync.RWMutex
)

// parseLevel resolves the effective level from the DEBUG and LOG_LEVEL values.
// DEBUG wins when it holds a truthy value.
func parseLevel(debug, level string) LogLevel {
	switch strings.ToLower(debug) {
	case "1", "true", "yes", "on":
		return LevelDebug
	}

	switch strings.ToLower(level) {
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

func (l LogLevel) zapLevel() zapcore.Level {
	switch l {
	case LevelDebug:
		return zapcore.DebugLevel
	case LevelWarn:
		return zapcore.WarnLevel
	case LevelError:
		return zapcore.ErrorLevel
	default:
		return zapcore.InfoLevel
	}
}

// newLogger builds the zap logger used by the package-level helpers.
// LOG_FORMAT=json switches to the production JSON encoder.
func newLogger(level LogLevel, format string) *zap.Logger {
	var cfg zap.Config
	if strings.EqualFold(format, "json") {
		cfg = zap.NewProductionConfig()
	} else {
		cfg = zap.NewDevelopmentConfig()
		cfg.EncoderConfig.EncodeLevel = zapcore.CapitalLevelEncoder
		cfg.DisableStacktrace = true
	}
	cfg.Level = zap.NewAtomicLevelAt(level.zapLevel())
	cfg.OutputPaths = []string{"stderr"}
	cfg.DisableCaller = true

	logger, err := cfg.Build()
	if err != nil {
		fmt.Fprintf(os.Stderr, "logging: falling back to no-op logger: %v\n", err)
		return zap.NewNop()
	}
	return logger
}

func initLogger() {
	initOnce.Do(func() {
		mu.Lock()
		defer mu.Unlock()
		if sugar != nil {
			return
		}
		currentLevel = parseLevel(os.Getenv("DEBUG"), os.Getenv("LOG_LEVEL"))
		sugar = newLogger(currentLevel, os.Getenv("LOG_FORMAT")).Sugar()
	})
}

func get() *zap.SugaredLogger {
	initLogger()
	mu.RLock()
	defer mu.RUnlock()
	return sugar
}

// SetLogger replaces the underlying logger. Tests use it with zaptest or
// observer cores.
func SetLogger(logger *zap.Logger, level LogLevel) {
	initLogger()
	mu.Lock()
	defer mu.Unlock()
	sugar = logger.Sugar()
	currentLevel = level
}

// Sync flushes any buffered log entries.
func Sync() {
	_ = get().Sync()
}

// GetLevel returns the current log level
func GetLevel() LogLevel {
	initLogger()
	mu.RLock()
	defer mu.RUnlock()
	return currentLevel
}

// IsDebugEnabled returns true if debug logging is enabled
func IsDebugEnabled() bool {
	return GetLevel() <= LevelDebug
}

// Debug logs a debug message (only if DEBUG=true or LOG_LEVEL=debug)
func Debug(format string, args ...interface{}) {
	get().Debugf(format, args...)
}

// Info logs an info message
func Info(format string, args ...interface{}) {
	get().Infof(format, args...)
}

// Warn logs a warning message
func Warn(format string, args ...interface{}) {
	get().Warnf(format, args...)
}

// Error logs an error message
func Error(format string, args ...interface{}) {
	get().Errorf(format, args...)
}

// Fatal logs an error message and exits
func Fatal(format string, args ...interface{}) {
	get().Fatalf(format, args...)
}

// String returns the string representation of a log level
func (l LogLevel) String() string {
	switch l {
	case LevelDebug:
		return "debug"
	case LevelInfo:
		return "info"
	case LevelWarn:
		return "warn"
	case LevelError:
		return "error"
	default:
		return fmt.Sprintf("unknown(%d)", l)
	}
}
