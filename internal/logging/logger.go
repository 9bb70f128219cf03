// Package logging provides categorized file-based logging for the pipeline.
// Logs are written to <workspace>/logs/ with one file per category. When the
// package is not initialized (or debug mode is off) every call is a no-op, so
// hot paths can log unconditionally.
package logging

import (
	"fmt"
	"log"
	"os"
	"path/filepath"
	"sync"
)

// Category represents a log category/system.
type Category string

const (
	CategoryEngine   Category = "engine"   // Pipeline engine: resume, checkpoints, summaries
	CategoryProvider Category = "provider" // Provider calls, retries, polling
	CategoryStore    Category = "store"    // Artifact store: appends, flushes, atomic writes
	CategoryExpand   Category = "expand"   // Template expansion
	CategoryDecode   Category = "decode"   // Structured output decoding
)

// Logger wraps a standard logger bound to one category file.
type Logger struct {
	category Category
	logger   *log.Logger
	file     *os.File
}

var (
	loggers   = make(map[Category]*Logger)
	loggersMu sync.RWMutex
	logsDir   string
	enabled   bool
)

// Initialize sets up the logging directory. Called once at startup; when
// debug is false the package stays a silent no-op.
func Initialize(workspace string, debug bool) error {
	if !debug {
		return nil
	}
	if workspace == "" {
		return fmt.Errorf("workspace path required")
	}
	logsDir = filepath.Join(workspace, "logs")
	if err := os.MkdirAll(logsDir, 0o755); err != nil {
		return fmt.Errorf("failed to create logs directory: %w", err)
	}
	enabled = true
	return nil
}

// Get returns the logger for a category, creating its file on first use.
func Get(category Category) *Logger {
	loggersMu.RLock()
	l, ok := loggers[category]
	loggersMu.RUnlock()
	if ok {
		return l
	}

	loggersMu.Lock()
	defer loggersMu.Unlock()
	if l, ok = loggers[category]; ok {
		return l
	}

	l = &Logger{category: category}
	if enabled {
		path := filepath.Join(logsDir, string(category)+".log")
		f, err := os.OpenFile(path, os.O_APPEND|os.O_CREATE|os.O_WRONLY, 0o644)
		if err == nil {
			l.file = f
			l.logger = log.New(f, "", log.LstdFlags|log.Lmicroseconds)
		}
	}
	loggers[category] = l
	return l
}

// Close flushes and closes all category files.
func Close() {
	loggersMu.Lock()
	defer loggersMu.Unlock()
	for _, l := range loggers {
		if l.file != nil {
			_ = l.file.Close()
		}
	}
	loggers = make(map[Category]*Logger)
	enabled = false
}

func (l *Logger) printf(level, format string, args ...any) {
	if l == nil || l.logger == nil {
		return
	}
	l.logger.Printf("[%s] %s", level, fmt.Sprintf(format, args...))
}

// Info logs at info level.
func (l *Logger) Info(format string, args ...any) { l.printf("INFO", format, args...) }

// Warn logs at warn level.
func (l *Logger) Warn(format string, args ...any) { l.printf("WARN", format, args...) }

// Error logs at error level.
func (l *Logger) Error(format string, args ...any) { l.printf("ERROR", format, args...) }

// Package-level helpers for the hot-path categories.

// Engine logs to the engine category.
func Engine(format string, args ...any) { Get(CategoryEngine).Info(format, args...) }

// EngineError logs an error to the engine category.
func EngineError(format string, args ...any) { Get(CategoryEngine).Error(format, args...) }

// Provider logs to the provider category.
func Provider(format string, args ...any) { Get(CategoryProvider).Info(format, args...) }

// ProviderError logs an error to the provider category.
func ProviderError(format string, args ...any) { Get(CategoryProvider).Error(format, args...) }

// Store logs to the store category.
func Store(format string, args ...any) { Get(CategoryStore).Info(format, args...) }

// Decode logs to the decode category.
func Decode(format string, args ...any) { Get(CategoryDecode).Info(format, args...) }

// Expand logs to the expand category.
func Expand(format string, args ...any) { Get(CategoryExpand).Info(format, args...) }
