// Package logger is a thin façade over log/slog shared by every package in
// the server. It keeps one process-wide logger so level and format changes
// apply everywhere, and the Ctx variants fold request-scoped fields carried
// in a context into each record.
package logger

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"os"
	"strings"
	"sync"
)

// Config holds the logging settings from the server configuration.
type Config struct {
	Level  string // DEBUG, INFO, WARN or ERROR
	Format string // text or json
	Output string // stdout, stderr or a file path
}

var (
	level slog.LevelVar // shared by every handler built here

	mu      sync.RWMutex
	output  io.Writer = os.Stdout
	format            = "text"
	slogger           = slog.New(slog.NewTextHandler(os.Stdout, &slog.HandlerOptions{Level: &level}))
)

// Init configures the process-wide logger. Output may be "stdout", "stderr"
// or a file path, which is opened in append mode.
func Init(cfg Config) error {
	if cfg.Level != "" {
		SetLevel(cfg.Level)
	}

	mu.Lock()
	defer mu.Unlock()

	switch strings.ToLower(cfg.Output) {
	case "", "stdout":
		output = os.Stdout
	case "stderr":
		output = os.Stderr
	default:
		f, err := os.OpenFile(cfg.Output, os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0644)
		if err != nil {
			return fmt.Errorf("failed to open log file %q: %w", cfg.Output, err)
		}
		output = f
	}
	if cfg.Format == "text" || cfg.Format == "json" {
		format = cfg.Format
	}
	reconfigure()
	return nil
}

// InitWithWriter points the logger at an arbitrary writer. Used by tests to
// capture output.
func InitWithWriter(w io.Writer, levelName, formatName string) {
	if levelName != "" {
		SetLevel(levelName)
	}

	mu.Lock()
	defer mu.Unlock()
	output = w
	if formatName == "text" || formatName == "json" {
		format = formatName
	}
	reconfigure()
}

// SetLevel changes the minimum level. Unknown names are ignored.
func SetLevel(name string) {
	switch strings.ToUpper(name) {
	case "DEBUG":
		level.Set(slog.LevelDebug)
	case "INFO":
		level.Set(slog.LevelInfo)
	case "WARN":
		level.Set(slog.LevelWarn)
	case "ERROR":
		level.Set(slog.LevelError)
	}
}

// SetFormat switches between text and json output. Unknown formats are
// ignored.
func SetFormat(name string) {
	name = strings.ToLower(name)
	if name != "text" && name != "json" {
		return
	}
	mu.Lock()
	defer mu.Unlock()
	format = name
	reconfigure()
}

// reconfigure rebuilds the handler for the current output and format.
// Callers must hold mu.
func reconfigure() {
	opts := &slog.HandlerOptions{Level: &level}
	if format == "json" {
		slogger = slog.New(slog.NewJSONHandler(output, opts))
	} else {
		slogger = slog.New(slog.NewTextHandler(output, opts))
	}
}

func get() *slog.Logger {
	mu.RLock()
	l := slogger
	mu.RUnlock()
	return l
}

// Debug logs at debug level with structured key/value fields.
func Debug(msg string, args ...any) { get().Debug(msg, args...) }

// Info logs at info level with structured key/value fields.
func Info(msg string, args ...any) { get().Info(msg, args...) }

// Warn logs at warn level with structured key/value fields.
func Warn(msg string, args ...any) { get().Warn(msg, args...) }

// Error logs at error level with structured key/value fields.
func Error(msg string, args ...any) { get().Error(msg, args...) }

// DebugCtx logs at debug level, including the request fields carried by ctx.
func DebugCtx(ctx context.Context, msg string, args ...any) {
	get().Debug(msg, appendContextFields(ctx, args)...)
}

// InfoCtx logs at info level, including the request fields carried by ctx.
func InfoCtx(ctx context.Context, msg string, args ...any) {
	get().Info(msg, appendContextFields(ctx, args)...)
}

// WarnCtx logs at warn level, including the request fields carried by ctx.
func WarnCtx(ctx context.Context, msg string, args ...any) {
	get().Warn(msg, appendContextFields(ctx, args)...)
}

// ErrorCtx logs at error level, including the request fields carried by ctx.
func ErrorCtx(ctx context.Context, msg string, args ...any) {
	get().Error(msg, appendContextFields(ctx, args)...)
}

// appendContextFields prepends the request-scoped fields from ctx so they
// appear before the call-site fields in the record.
func appendContextFields(ctx context.Context, args []any) []any {
	lc := FromContext(ctx)
	if lc == nil {
		return args
	}

	out := make([]any, 0, 12+len(args))
	if lc.RequestID != "" {
		out = append(out, "request_id", lc.RequestID)
	}
	if lc.TransactionID != "" {
		out = append(out, "transaction_id", lc.TransactionID)
	}
	if lc.Username != "" {
		out = append(out, "username", lc.Username)
	}
	if lc.Operation != "" {
		out = append(out, "operation", lc.Operation)
	}
	if lc.Service != "" {
		out = append(out, "service", lc.Service)
	}
	if lc.ClientIP != "" {
		out = append(out, "client_ip", lc.ClientIP)
	}
	return append(out, args...)
}
