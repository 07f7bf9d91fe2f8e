// Package logger provides standardized logging utilities for the gsmc compiler
package logger

import (
	"fmt"
	"io"
	"log/slog"
	"os"
	"strings"
)

// Global logger instance
var defaultLogger *slog.Logger

// LogLevel represents the logging level
type LogLevel int

const (
	LevelDebug LogLevel = iota
	LevelInfo
	LevelWarn
	LevelError
)

// ParseLevel maps a config string ("debug", "info", "warn", "error") to a LogLevel.
func ParseLevel(s string) (LogLevel, error) {
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
	return LevelInfo, fmt.Errorf("unknown log level %q", s)
}

// Config holds logger configuration
type Config struct {
	Level     LogLevel
	Format    string // "text" or "json"
	Output    io.Writer
	AddSource bool
	LogFile   string
}

// DefaultConfig returns the default logger configuration
func DefaultConfig() Config {
	return Config{
		Level:  LevelWarn,
		Format: "text",
		Output: os.Stderr,
	}
}

// Init initializes the global logger with the given configuration. A
// LogFile receives a copy of everything written to Output.
func Init(cfg Config) error {
	var handler slog.Handler

	output := cfg.Output
	if output == nil {
		output = os.Stderr
	}
	if cfg.LogFile != "" {
		file, err := os.OpenFile(cfg.LogFile, os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0644)
		if err != nil {
			return err
		}
		output = io.MultiWriter(output, file)
	}

	opts := &slog.HandlerOptions{
		Level:     toSlogLevel(cfg.Level),
		AddSource: cfg.AddSource,
	}

	if cfg.Format == "json" {
		handler = slog.NewJSONHandler(output, opts)
	} else {
		handler = slog.NewTextHandler(output, opts)
	}

	defaultLogger = slog.New(handler)
	slog.SetDefault(defaultLogger)

	return nil
}

func toSlogLevel(level LogLevel) slog.Level {
	switch level {
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

// Debug logs a debug message
func Debug(msg string, args ...any) {
	if defaultLogger != nil {
		defaultLogger.Debug(msg, args...)
	}
}

// Info logs an info message
func Info(msg string, args ...any) {
	if defaultLogger != nil {
		defaultLogger.Info(msg, args...)
	}
}

// Warn logs a warning message
func Warn(msg string, args ...any) {
	if defaultLogger != nil {
		defaultLogger.Warn(msg, args...)
	}
}

// Error logs an error message
func Error(msg string, args ...any) {
	if defaultLogger != nil {
		defaultLogger.Error(msg, args...)
	}
}

// With returns a new logger with the given attributes
func With(args ...any) *slog.Logger {
	if defaultLogger != nil {
		return defaultLogger.With(args...)
	}
	return slog.Default().With(args...)
}

// Compiler-specific logging helpers

// LogPhase logs the start of a compilation phase
func LogPhase(phase string, file string) {
	Debug("Starting compilation phase", "phase", phase, "file", file)
}

// LogPhaseComplete logs the completion of a compilation phase
func LogPhaseComplete(phase string, file string) {
	Debug("Completed compilation phase", "phase", phase, "file", file)
}

// LogLexing logs lexing activity
func LogLexing(file string, tokenCount int) {
	Debug("Lexing complete", "file", file, "tokens", tokenCount)
}

// LogParsing logs parsing activity
func LogParsing(file string, stmtCount int, errCount int) {
	Debug("Parsing complete", "file", file, "statements", stmtCount, "errors", errCount)
}

// LogIRGeneration logs AST to IR lowering
func LogIRGeneration(file string, blockCount int, instCount int) {
	Debug("IR generation complete", "file", file, "blocks", blockCount, "instructions", instCount)
}

// LogCodeGen logs backend emission
func LogCodeGen(target string, funcName string, instructionCount int) {
	Debug("Code generation complete",
		"target", target,
		"function", funcName,
		"instructions", instructionCount)
}

// LogOptimization logs optimization passes
func LogOptimization(pass string, changeCount int) {
	Debug("Optimization pass complete", "pass", pass, "changes", changeCount)
}

// LogError logs a compilation error
func LogError(phase string, file string, line int, msg string) {
	Error("Compilation error",
		"phase", phase,
		"file", file,
		"line", line,
		"message", msg)
}

// LogCompilerStart logs compiler startup
func LogCompilerStart(args []string) {
	Info("gsmc starting", "args", args)
}

// LogCompilerComplete logs compiler completion
func LogCompilerComplete(file string, success bool, duration string) {
	if success {
		Info("Compilation successful", "file", file, "duration", duration)
	} else {
		Error("Compilation failed", "file", file, "duration", duration)
	}
}

// LogCacheHit logs an artifact served from the build cache
func LogCacheHit(file string, key string) {
	Debug("Build cache hit", "file", file, "key", key)
}
