package logging

import (
	"fmt"
	"log/slog"
	"os"
	"strings"
)

// Log is the process-wide logger. Init must be called once at startup;
// packages that may run before Init (tests, library embedding) can rely on
// the package-level default below.
var Log = slog.New(slog.NewTextHandler(os.Stderr, nil))

// Init configures the global slog logger. Level and sink are overridable
// via HIVECHAT_LOG_LEVEL and HIVECHAT_LOG_SINK (e.g. "file:/path/to/log")
// so the terminal client and tests can redirect output.
func Init() {
	lvl := strings.ToLower(strings.TrimSpace(os.Getenv("HIVECHAT_LOG_LEVEL")))
	var level slog.Level
	switch lvl {
	case "debug":
		level = slog.LevelDebug
	case "warn", "warning":
		level = slog.LevelWarn
	case "error":
		level = slog.LevelError
	default:
		level = slog.LevelInfo
	}

	sink := os.Getenv("HIVECHAT_LOG_SINK")
	if strings.HasPrefix(sink, "file:") {
		path := strings.TrimPrefix(sink, "file:")
		f, err := os.OpenFile(path, os.O_CREATE|os.O_APPEND|os.O_WRONLY, 0o640)
		if err == nil {
			Log = slog.New(slog.NewTextHandler(f, &slog.HandlerOptions{Level: level}))
			return
		}
		fmt.Fprintf(os.Stderr, "failed to open log file %s: %v\n", path, err)
	}
	Log = slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: level}))
}
