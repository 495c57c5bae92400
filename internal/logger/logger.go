package logger

import (
	"fmt"
	"io"
	"log/slog"
	"os"
	"strings"
)

var levels = map[string]slog.Level{
	"debug": slog.LevelDebug,
	"info":  slog.LevelInfo,
	"warn":  slog.LevelWarn,
	"error": slog.LevelError,
}

// NewLogger creates a new structured logger with the specified log level.
// Valid levels are: debug, info, warn, error
func NewLogger(level string, output io.Writer) (*slog.Logger, error) {
	slogLevel, ok := levels[strings.ToLower(level)]
	if !ok {
		return nil, fmt.Errorf("invalid log level: %s (valid: debug, info, warn, error)", level)
	}

	if output == nil {
		output = os.Stderr
	}

	handler := slog.NewJSONHandler(output, &slog.HandlerOptions{
		Level: slogLevel,
	})

	return slog.New(handler), nil
}

// Default creates a logger with info level writing to stderr.
// Progress output is owned by the bootstrap pipeline on stdout, so logs
// stay on stderr where CI systems expect diagnostics.
func Default() *slog.Logger {
	logger, _ := NewLogger("info", os.Stderr)
	return logger
}
