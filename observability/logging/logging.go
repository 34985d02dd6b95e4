package logging

import (
	"log"
	"log/slog"
	"os"
	"strings"
)

// Setup wires the process-wide slog default to a JSON handler and returns a
// logger tagged with the daemon name and deployment environment. The minimum
// level comes from VNET_LOG_LEVEL (debug, info, warn, error; default info).
func Setup(service, env string) *slog.Logger {
	handler := slog.NewJSONHandler(os.Stdout, &slog.HandlerOptions{
		Level: levelFromEnv(),
	})

	logger := slog.New(handler).With(slog.String("daemon", strings.TrimSpace(service)))
	if env = strings.TrimSpace(env); env != "" {
		logger = logger.With(slog.String("env", env))
	}
	slog.SetDefault(logger)

	// Route the standard library logger through the same handler so library
	// code calling log.Printf emits structured lines too.
	bridge := slog.NewLogLogger(handler, slog.LevelInfo)
	log.SetOutput(bridge.Writer())
	log.SetFlags(0)
	log.SetPrefix("")

	return logger
}

func levelFromEnv() slog.Level {
	switch strings.ToLower(strings.TrimSpace(os.Getenv("VNET_LOG_LEVEL"))) {
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
