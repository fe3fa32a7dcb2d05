package logging

import (
	"io"
	"log/slog"
	"os"
)

const (
	EnvLocal = "local"
	EnvDev   = "dev"
	EnvProd  = "prod"
)

// Setup builds the relay logger for env: human-readable text locally,
// JSON in dev and prod. LOG_LEVEL overrides the level chosen by env.
func Setup(env string) *slog.Logger {
	return newLogger(env, os.Stdout)
}

func newLogger(env string, w io.Writer) *slog.Logger {
	var handler slog.Handler

	switch env {
	case EnvDev:
		handler = slog.NewJSONHandler(w, &slog.HandlerOptions{Level: levelFromEnv(slog.LevelDebug)})
	case EnvProd:
		handler = slog.NewJSONHandler(w, &slog.HandlerOptions{Level: levelFromEnv(slog.LevelInfo)})
	default:
		handler = slog.NewTextHandler(w, &slog.HandlerOptions{Level: levelFromEnv(slog.LevelDebug)})
	}

	return slog.New(handler)
}

// Init installs the CLI's default logger on stderr so it never interleaves
// with the terminal UI. Only errors are shown unless LOG_LEVEL says otherwise.
func Init() {
	logger := slog.New(
		slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{
			Level: levelFromEnv(slog.LevelError),
		}),
	)
	slog.SetDefault(logger)
}

func levelFromEnv(fallback slog.Level) slog.Level {
	l, ok := os.LookupEnv("LOG_LEVEL")
	if !ok {
		return fallback
	}

	switch l {
	case "dev", "development", "debug":
		return slog.LevelDebug
	case "info":
		return slog.LevelInfo
	case "warn", "warning":
		return slog.LevelWarn
	case "error", "production", "prod":
		return slog.LevelError
	}
	return fallback
}

// Err returns the attribute used for errors in every log line.
func Err(err error) slog.Attr {
	if err == nil {
		return slog.String("error", "")
	}
	return slog.String("error", err.Error())
}

// Discard is a logger that drops everything, handy in tests.
func Discard() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}
