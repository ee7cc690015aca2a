package telemetry

import (
	"log/slog"
	"os"
	"strings"
)

// NewLogger builds the process logger. When parquetDir is non-empty, error
// records are additionally buffered into Parquet files under that directory.
func NewLogger(level, format, parquetDir string) *slog.Logger {
	opts := &slog.HandlerOptions{Level: parseLevel(level)}

	var base slog.Handler
	if strings.EqualFold(format, "json") {
		base = slog.NewJSONHandler(os.Stderr, opts)
	} else {
		base = slog.NewTextHandler(os.Stderr, opts)
	}

	if parquetDir != "" {
		if h, err := NewParquetHandler(base, parquetDir); err == nil {
			base = h
		}
	}

	return slog.New(base)
}

func parseLevel(level string) slog.Level {
	switch strings.ToLower(level) {
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
