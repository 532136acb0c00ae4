package logger

import (
	"io"
	"os"
	"strings"
	"time"

	"github.com/rs/zerolog"
)

// New builds the service logger. Development writes human-readable console
// output; other environments write JSON. An explicit level wins over the
// environment default.
func New(env, level string) zerolog.Logger {
	return build(os.Stderr, env, level)
}

func build(out io.Writer, env, level string) zerolog.Logger {
	if env == "development" {
		out = zerolog.ConsoleWriter{Out: out, TimeFormat: time.RFC3339}
	}
	return zerolog.New(out).
		Level(resolveLevel(env, level)).
		With().
		Timestamp().
		Str("service", "ip-workflow").
		Logger()
}

func resolveLevel(env, level string) zerolog.Level {
	if level = strings.TrimSpace(level); level != "" {
		if lvl, err := zerolog.ParseLevel(strings.ToLower(level)); err == nil && lvl != zerolog.NoLevel {
			return lvl
		}
	}
	switch env {
	case "development":
		return zerolog.DebugLevel
	case "test":
		return zerolog.WarnLevel
	default:
		return zerolog.InfoLevel
	}
}
