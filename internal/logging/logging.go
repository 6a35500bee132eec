package logging

import (
	"fmt"
	"io"
	"log/slog"
	"strings"
)

var level = new(slog.LevelVar)

// Setup installs a text handler writing to w as the process default logger and
// returns it. Unknown level names fall back to INFO and are reported.
func Setup(w io.Writer, levelName string) *slog.Logger {
	lvl, err := ParseLevel(levelName)
	level.Set(lvl)

	logger := slog.New(slog.NewTextHandler(w, &slog.HandlerOptions{Level: level}))
	slog.SetDefault(logger)
	if err != nil {
		logger.Warn("falling back to INFO log level", "err", err)
	}
	return logger
}

// ParseLevel understands the Python-style names used by LOG_LEVEL
// (WARNING and CRITICAL included) as well as slog's own.
func ParseLevel(name string) (slog.Level, error) {
	switch strings.ToUpper(strings.TrimSpace(name)) {
	case "DEBUG":
		return slog.LevelDebug, nil
	case "", "INFO":
		return slog.LevelInfo, nil
	case "WARN", "WARNING":
		return slog.LevelWarn, nil
	case "ERROR", "CRITICAL", "FATAL":
		return slog.LevelError, nil
	}
	return slog.LevelInfo, fmt.Errorf("unknown log level %q", name)
}
