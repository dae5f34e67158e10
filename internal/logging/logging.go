// Package logging configures the application wide slog loggers.
package logging

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"os"
	"path/filepath"

	"gopkg.in/natefinch/lumberjack.v2"
)

var structuredLogger *slog.Logger

const (
	LevelTrace = slog.Level(-8)
	LevelFatal = slog.Level(12)
)

// Add trace and fatal level names.
var levelNames = map[slog.Leveler]string{
	LevelTrace: "TRACE",
	LevelFatal: "FATAL",
}

// Log rotation defaults, overridable per file logger via SetRotation.
var (
	rotationMaxSizeMB  = 100
	rotationMaxBackups = 3
	rotationMaxAgeDays = 28
)

func replaceLevelNames(groups []string, a slog.Attr) slog.Attr {
	if a.Key == slog.LevelKey {
		level := a.Value.Any().(slog.Level)
		levelLabel, exists := levelNames[level]
		if !exists {
			levelLabel = level.String()
		}
		a.Value = slog.StringValue(levelLabel)
	}
	return a
}

// Init initializes the logging system with a structured JSON logger on stdout
// and sets it as the slog default.
func Init(level slog.Leveler) {
	structuredHandler := slog.NewJSONHandler(os.Stdout, &slog.HandlerOptions{
		Level:       level,
		ReplaceAttr: replaceLevelNames,
	})
	structuredLogger = slog.New(structuredHandler)
	slog.SetDefault(structuredLogger)
}

// SetOutput redirects the structured logger, used by tests to capture output.
func SetOutput(w io.Writer, level slog.Leveler) {
	structuredHandler := slog.NewJSONHandler(w, &slog.HandlerOptions{
		Level:       level,
		ReplaceAttr: replaceLevelNames,
	})
	structuredLogger = slog.New(structuredHandler)
	slog.SetDefault(structuredLogger)
}

// SetRotation overrides the lumberjack rotation defaults used by NewFileLogger.
func SetRotation(maxSizeMB, maxBackups, maxAgeDays int) {
	if maxSizeMB > 0 {
		rotationMaxSizeMB = maxSizeMB
	}
	if maxBackups > 0 {
		rotationMaxBackups = maxBackups
	}
	if maxAgeDays > 0 {
		rotationMaxAgeDays = maxAgeDays
	}
}

// Structured returns the globally configured structured (JSON) logger.
// Returns nil if Init() has not been called.
func Structured() *slog.Logger {
	return structuredLogger
}

// ForService creates a new logger instance with the 'service' attribute added.
// It uses the global structured logger as the base.
func ForService(serviceName string) *slog.Logger {
	if structuredLogger == nil {
		return slog.Default().With("service", serviceName)
	}
	return structuredLogger.With("service", serviceName)
}

// --- Convenience functions using the default logger ---

// Debug logs a debug message using the default slog logger.
func Debug(msg string, args ...any) {
	slog.Debug(msg, args...)
}

// Info logs an info message using the default slog logger.
func Info(msg string, args ...any) {
	slog.Info(msg, args...)
}

// Warn logs a warning message using the default slog logger.
func Warn(msg string, args ...any) {
	slog.Warn(msg, args...)
}

// Error logs an error message using the default slog logger.
func Error(msg string, args ...any) {
	slog.Error(msg, args...)
}

// Fatal logs a fatal message using the custom Fatal level and then exits.
func Fatal(msg string, args ...any) {
	slog.Log(context.TODO(), LevelFatal, msg, args...)
	os.Exit(1)
}

// Trace logs a trace message using the custom Trace level.
func Trace(msg string, args ...any) {
	slog.Log(context.TODO(), LevelTrace, msg, args...)
}

// NewFileLogger creates a new slog.Logger instance configured to write JSON
// logs to the specified file path using lumberjack for rotation. It includes
// a 'service' attribute in all logs. It returns the logger, a function to
// close the underlying log writer, and an error if setup fails.
func NewFileLogger(filePath, serviceName string, level slog.Leveler) (*slog.Logger, func() error, error) {
	// Ensure the directory exists (lumberjack doesn't create directories)
	logDir := filepath.Dir(filePath)
	if logDir != "." {
		if err := os.MkdirAll(logDir, 0o755); err != nil {
			return nil, nil, fmt.Errorf("failed to create log directory %s: %w", logDir, err)
		}
	}

	logWriter := &lumberjack.Logger{
		Filename:   filePath,
		MaxSize:    rotationMaxSizeMB,
		MaxBackups: rotationMaxBackups,
		MaxAge:     rotationMaxAgeDays,
	}

	fileHandler := slog.NewJSONHandler(logWriter, &slog.HandlerOptions{
		Level:       level,
		ReplaceAttr: replaceLevelNames,
	})

	logger := slog.New(fileHandler).With("service", serviceName)

	closeFunc := func() error {
		return logWriter.Close()
	}

	return logger, closeFunc, nil
}
