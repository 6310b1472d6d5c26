package telemetry

import (
	"log/slog"
	"os"
	"strings"
)

// parseLogLevel maps a configured level string to a slog.Level. Unknown or
// empty values fall back to info so a bad config never silences logging.
func parseLogLevel(level string) slog.Level {
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

// SetupLogger installs the global slog default logger from the logging section
// of the configuration. format "json" selects JSONHandler (production);
// anything else selects TextHandler. level accepts debug/info/warn/error,
// case-insensitive.
//
// Source locations (file:line) are attached only at debug level; they cost an
// extra runtime.Caller per record and production records carry request IDs for
// correlation instead.
//
// Call this before anything else logs: every slog.Info/Warn/Error in the
// server, middleware, and jobs goes through the default logger.
func SetupLogger(format, level string) {
	lvl := parseLogLevel(level)
	opts := &slog.HandlerOptions{
		Level:     lvl,
		AddSource: lvl == slog.LevelDebug,
	}

	var handler slog.Handler
	if strings.EqualFold(format, "json") {
		handler = slog.NewJSONHandler(os.Stdout, opts)
	} else {
		handler = slog.NewTextHandler(os.Stdout, opts)
	}

	slog.SetDefault(slog.New(handler))
	slog.Info("logger configured", "format", format, "level", lvl.String())
}
