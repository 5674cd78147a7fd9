package logger

import (
	"fmt"
	"io"
	"log/slog"
	"os"
	"strings"

	"github.com/phrazzld/relay-api/internal/config"
)

// ParseLevel converts a configured level name (case-insensitive) into a
// slog.Level.
func ParseLevel(name string) (slog.Level, error) {
	switch strings.ToLower(strings.TrimSpace(name)) {
	case "debug":
		return slog.LevelDebug, nil
	case "info", "":
		return slog.LevelInfo, nil
	case "warn", "warning":
		return slog.LevelWarn, nil
	case "error":
		return slog.LevelError, nil
	default:
		return slog.LevelInfo, fmt.Errorf("unknown log level %q", name)
	}
}

// Setup initializes the application's logging system from the server
// configuration. It creates a structured JSON logger on stdout, installs it as
// the slog default, and returns it.
//
// An unrecognized level falls back to info with a warning on stderr rather
// than preventing startup.
func Setup(cfg config.ServerConfig) (*slog.Logger, error) {
	return setup(os.Stdout, os.Stderr, cfg.LogLevel), nil
}

func setup(out, warn io.Writer, levelName string) *slog.Logger {
	level, err := ParseLevel(levelName)
	if err != nil {
		tmp := slog.New(slog.NewTextHandler(warn, nil))
		tmp.Warn("invalid log level configured, using default level",
			"configured_level", levelName,
			"default_level", "info")
	}

	logger := New(out, level)
	slog.SetDefault(logger)
	return logger
}

// New returns a JSON logger writing to out at the given level without
// touching the process default.
func New(out io.Writer, level slog.Level) *slog.Logger {
	return slog.New(slog.NewJSONHandler(out, &slog.HandlerOptions{Level: level}))
}
