// Package logging implements C11: one structured logger per mounted
// filesystem instance, writing through a rotating file the way the
// teacher's consumer wires gopkg.in/natefinch/lumberjack.v2 behind its
// own async writer (internal/logger/async_logger.go) — simplified here to
// a direct io.Writer since TFS has no comparable log-volume concern.
package logging

import (
	"io"
	"log/slog"
	"os"
	"path/filepath"

	"gopkg.in/natefinch/lumberjack.v2"

	"github.com/JoshuaXOng/tag-filesystem/internal/tfserrors"
)

// New builds the per-mount logger, rotating JSON lines under
// <configRoot>/log/tfs.log and also echoing to stderr so `mount plain`
// remains usable without tailing a file.
func New(configRoot, level string) *slog.Logger {
	logDir := filepath.Join(configRoot, "log")
	_ = os.MkdirAll(logDir, 0755)

	rotator := &lumberjack.Logger{
		Filename:   filepath.Join(logDir, "tfs.log"),
		MaxSize:    50,
		MaxBackups: 5,
		MaxAge:     30,
		Compress:   true,
	}

	var out io.Writer = io.MultiWriter(rotator, os.Stderr)
	handler := slog.NewJSONHandler(out, &slog.HandlerOptions{Level: parseLevel(level)})
	return slog.New(handler)
}

func parseLevel(level string) slog.Level {
	switch level {
	case "debug":
		return slog.LevelDebug
	case "warn":
		return slog.LevelWarn
	case "error":
		return slog.LevelError
	default:
		return slog.LevelInfo
	}
}

// LogError logs err at the severity its tfserrors.Kind implies: NotFound is
// routine (INFO per spec.md §7), everything else is an ERROR.
func LogError(log *slog.Logger, msg string, err error) {
	if err == nil {
		return
	}
	if tfserrors.Is(err, tfserrors.NotFound) {
		log.Info(msg, "error", err)
		return
	}
	log.Error(msg, "error", err)
}

// LogOp logs a single kernel op at DEBUG with a correlation id, so a slow
// or wedged op can be traced back to the triggering syscall across the
// handler and whatever background persistence tick happens to interleave
// with it in the log stream.
func LogOp(log *slog.Logger, opName string, correlationID string, fields ...any) {
	args := append([]any{"op", opName, "correlation_id", correlationID}, fields...)
	log.Debug("kernel op", args...)
}
