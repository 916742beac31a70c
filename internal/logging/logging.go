// Package logging provides a configured slog logger.
// Format is chosen by LOG_FORMAT (text/json) with TTY fallback; level
// by LOG_LEVEL (debug/info/warn/error). Source locations are emitted
// relative to the working directory.
package logging

import (
	"log/slog"
	"os"
	"path/filepath"
	"strings"
)

// New creates a configured logger.
func New() *slog.Logger {
	logFormat := os.Getenv("LOG_FORMAT")
	useText := logFormat == "text" || (logFormat == "" && isatty(os.Stdout))

	wd, _ := os.Getwd()

	opts := &slog.HandlerOptions{
		Level:     parseLogLevel(os.Getenv("LOG_LEVEL")),
		AddSource: true,
		ReplaceAttr: func(groups []string, a slog.Attr) slog.Attr {
			if a.Key == slog.SourceKey {
				if src, ok := a.Value.Any().(*slog.Source); ok {
					if rel, err := filepath.Rel(wd, src.File); err == nil {
						src.File = rel
					} else {
						src.File = filepath.Base(src.File)
					}
				}
			}
			return a
		},
	}

	var handler slog.Handler
	if useText {
		handler = slog.NewTextHandler(os.Stdout, opts)
	} else {
		handler = slog.NewJSONHandler(os.Stdout, opts)
	}
	return slog.New(handler)
}

// SetDefault creates a logger and installs it as the slog default.
func SetDefault() *slog.Logger {
	logger := New()
	slog.SetDefault(logger)
	return logger
}

func parseLogLevel(level string) slog.Level {
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

func isatty(f *os.File) bool {
	stat, err := f.Stat()
	if err != nil {
		return false
	}
	return (stat.Mode() & os.ModeCharDevice) != 0
}
