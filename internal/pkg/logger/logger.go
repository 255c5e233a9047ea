package logger

import (
	"io"
	"log/slog"
	"os"
	"strings"

	"github.com/go-chi/httplog/v3"
)

// New builds the process logger. Production writes ECS-shaped JSON, the same
// schema the HTTP request logger uses; development writes plain text.
func New(app, env, level string) *slog.Logger {
	return NewWithWriter(os.Stdout, app, env, level)
}

func NewWithWriter(w io.Writer, app, env, level string) *slog.Logger {
	opts := &slog.HandlerOptions{Level: ParseLevel(level)}

	var handler slog.Handler
	if env == "development" {
		handler = slog.NewTextHandler(w, opts)
	} else {
		opts.ReplaceAttr = httplog.SchemaECS.Concise(false).ReplaceAttr
		handler = slog.NewJSONHandler(w, opts)
	}

	return slog.New(handler).With(
		slog.String("app", app),
		slog.String("env", env),
	)
}

// ParseLevel maps debug|info|warn|error to a slog level, defaulting to info.
func ParseLevel(level string) slog.Level {
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
