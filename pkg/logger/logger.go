package logger

import (
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"runtime"
	"strings"
)

var Log *slog.Logger

// Audit is an optional dedicated audit logger. When attached it receives
// every exception record with channel/user/socket context; if nil, audit
// events fall back to the main logger.
var Audit *slog.Logger

// Init initializes the global slog logger. Sink and level can be
// overridden via HUDDLE_LOG_SINK (e.g. "file:/var/log/huddle.log") and
// HUDDLE_LOG_LEVEL for tests and production.
func Init() {
	InitWithLevel("")
}

// InitWithLevel initializes the global logger honoring the provided level
// string ("debug", "info", "warn", "error"). An empty level falls back to
// the HUDDLE_LOG_LEVEL environment variable.
func InitWithLevel(level string) {
	sink := os.Getenv("HUDDLE_LOG_SINK")
	lvl := strings.ToLower(strings.TrimSpace(level))
	if lvl == "" {
		lvl = strings.ToLower(strings.TrimSpace(os.Getenv("HUDDLE_LOG_LEVEL")))
	}
	var lv slog.Level
	switch lvl {
	case "debug":
		lv = slog.LevelDebug
	case "warn", "warning":
		lv = slog.LevelWarn
	case "error":
		lv = slog.LevelError
	default:
		lv = slog.LevelInfo
	}

	if strings.HasPrefix(sink, "file:") {
		path := strings.TrimPrefix(sink, "file:")
		f, err := os.OpenFile(path, os.O_CREATE|os.O_APPEND|os.O_WRONLY, 0o640)
		if err == nil {
			Log = slog.New(slog.NewTextHandler(f, &slog.HandlerOptions{Level: lv}))
			return
		}
		fmt.Fprintf(os.Stderr, "failed to open log file %s: %v\n", path, err)
	}
	Log = slog.New(slog.NewTextHandler(os.Stdout, &slog.HandlerOptions{Level: lv}))
}

// AttachAuditFileSink configures a JSON-file audit logger writing to
// <auditDir>/audit.log. If the file cannot be opened the function returns
// an error and leaves Audit as nil.
func AttachAuditFileSink(auditDir string) error {
	if auditDir == "" {
		return fmt.Errorf("empty audit dir")
	}
	// If the path exists and is a symlink, fail early to avoid TOCTOU.
	if fi, err := os.Lstat(auditDir); err == nil {
		if fi.Mode()&os.ModeSymlink != 0 {
			return fmt.Errorf("audit path is a symlink: %s", auditDir)
		}
		if !fi.IsDir() {
			return fmt.Errorf("audit path exists and is not a directory: %s", auditDir)
		}
	}
	if err := os.MkdirAll(auditDir, 0o700); err != nil {
		return fmt.Errorf("failed to create audit directory: %w", err)
	}

	fname := filepath.Join(auditDir, "audit.log")
	if err := RotateIfLarge(fname, 10*1024*1024); err != nil {
		return err
	}
	f, err := os.OpenFile(fname, os.O_CREATE|os.O_APPEND|os.O_WRONLY, 0o600)
	if err != nil {
		return fmt.Errorf("failed to open audit log file: %w", err)
	}
	h := slog.NewJSONHandler(f, &slog.HandlerOptions{Level: slog.LevelInfo})
	Audit = slog.New(h)
	// Emit an initial marker so consumers (and tests) can observe that the
	// sink was attached and the file is writable.
	Audit.Info("audit_sink_attached", "path", fname)
	return nil
}

// RotateIfLarge renames the file aside when it exceeds maxSize bytes.
func RotateIfLarge(fname string, maxSize int64) error {
	fi, err := os.Stat(fname)
	if err != nil {
		return nil
	}
	if fi.Size() <= maxSize {
		return nil
	}
	bak := fname + "." + fi.ModTime().UTC().Format("20060102T150405Z")
	if err := os.Rename(fname, bak); err != nil {
		return fmt.Errorf("failed to rotate audit log: %w", err)
	}
	return nil
}

// AuditEvent appends one record to the audit sink with the standard
// channel/user/socket context. Stack traces are captured for error-level
// records only.
func AuditEvent(level slog.Level, msg, channel, user, socket string, details ...any) {
	sink := Audit
	if sink == nil {
		sink = Log
	}
	if sink == nil {
		return
	}
	args := []any{"channel", channel, "user", user, "socket", socket}
	if level >= slog.LevelError {
		buf := make([]byte, 16<<10)
		n := runtime.Stack(buf, false)
		args = append(args, "stack", string(buf[:n]))
	}
	args = append(args, details...)
	switch {
	case level >= slog.LevelError:
		sink.Error(msg, args...)
	case level >= slog.LevelWarn:
		sink.Warn(msg, args...)
	default:
		sink.Info(msg, args...)
	}
}

// Debug logs with slog-style key/value pairs.
func Debug(msg string, args ...any) {
	if Log == nil {
		return
	}
	Log.Debug(msg, args...)
}

// Info logs with slog-style key/value pairs.
func Info(msg string, args ...any) {
	if Log == nil {
		return
	}
	Log.Info(msg, args...)
}

// Warn logs with slog-style key/value pairs.
func Warn(msg string, args ...any) {
	if Log == nil {
		return
	}
	Log.Warn(msg, args...)
}

// Error logs with slog-style key/value pairs.
func Error(msg string, args ...any) {
	if Log == nil {
		return
	}
	Log.Error(msg, args...)
}
