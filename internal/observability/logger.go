package observability

import (
	"io"
	"log/slog"
	"math"
	"os"
)

// ParseLevel maps a LOG_LEVEL value to a slog level. "silent" maps to a
// level above anything slog emits.
func ParseLevel(level string) slog.Level {
	switch level {
	case "debug":
		return slog.LevelDebug
	case "info":
		return slog.LevelInfo
	case "warn":
		return slog.LevelWarn
	case "error", "fatal":
		return slog.LevelError
	case "silent":
		return slog.Level(math.MaxInt32)
	default:
		return slog.LevelInfo
	}
}

func NewLogger(level string) *slog.Logger {
	var out io.Writer = os.Stdout

	if level == "silent" {
		out = io.Discard
	}

	handler := slog.NewJSONHandler(out, &slog.HandlerOptions{
		Level: ParseLevel(level),
	})

	return slog.New(NewTraceHandler(handler))
}
