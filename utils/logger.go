package utils

import (
	"fmt"
	"io"
	"log/slog"
	"os"
	"strings"
)

// Logger 日志封装：保留 printf 风格的 Info/Warn/Error，底层使用 slog
type Logger struct {
	base *slog.Logger
}

// NewLogger builds a text logger writing to w at the given level
// ("debug", "info", "warn", "error"; unknown values mean info).
func NewLogger(w io.Writer, level string) *Logger {
	h := slog.NewTextHandler(w, &slog.HandlerOptions{Level: ParseLevel(level)})
	return &Logger{base: slog.New(h)}
}

// ParseLevel maps a config string to a slog level.
func ParseLevel(level string) slog.Level {
	switch strings.ToLower(strings.TrimSpace(level)) {
	case "debug":
		return slog.LevelDebug
	case "warn", "warning":
		return slog.LevelWarn
	case "error":
		return slog.LevelError
	default:
		return slog.LevelInfo
	}
}

// With returns a logger that adds the given key/value pairs to every record.
func (l *Logger) With(args ...any) *Logger {
	return &Logger{base: l.base.With(args...)}
}

// Slog exposes the underlying structured logger.
func (l *Logger) Slog() *slog.Logger {
	return l.base
}

// Debug 调试日志
func (l *Logger) Debug(msg string, args ...interface{}) {
	l.base.Debug(fmt.Sprintf(msg, args...))
}

// Info 信息日志
func (l *Logger) Info(msg string, args ...interface{}) {
	l.base.Info(fmt.Sprintf(msg, args...))
}

// Warn 警告日志
func (l *Logger) Warn(msg string, args ...interface{}) {
	l.base.Warn(fmt.Sprintf(msg, args...))
}

// Error 错误日志
func (l *Logger) Error(msg string, args ...interface{}) {
	l.base.Error(fmt.Sprintf(msg, args...))
}

var DefaultLogger = NewLogger(os.Stderr, "info")

// Discard is a logger that drops everything; handy in tests.
var Discard = &Logger{base: slog.New(slog.NewTextHandler(io.Discard, nil))}
