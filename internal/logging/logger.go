// Package logging configures log/slog for the importer.
//
// Loggers taken from a request context carry chi's request id, so every
// line written while handling one import call can be correlated.
package logging

import (
	"context"
	"log/slog"
	"os"
	"strings"

	"github.com/go-chi/chi/v5/middleware"
)

// Setup configures the global slog logger based on level and format.
//
// Level values: "debug", "info", "warn", "error" (default: "info")
// Format values: "text", "json" (default: "text")
//
// The server reads both from LOG_LEVEL and LOG_FORMAT. importctl always
// logs text, since its JSON output goes to stdout for piping.
func Setup(level, format string) {
	opts := &slog.HandlerOptions{
		Level: ParseLevel(level),
	}

	var handler slog.Handler
	if strings.ToLower(format) == "json" {
		handler = slog.NewJSONHandler(os.Stdout, opts)
	} else {
		handler = slog.NewTextHandler(os.Stdout, opts)
	}

	slog.SetDefault(slog.New(handler))
}

// ParseLevel converts a string log level to slog.Level.
func ParseLevel(level string) slog.Level {
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

// FromContext returns the default logger, with request_id added when ctx
// came from a request that passed chi's RequestID middleware.
//
// The logger is resolved on every call rather than cached, so a later
// Setup takes effect for requests already in flight. Contexts detached
// with context.WithoutCancel keep their values and still log the
// request id.
//
// Usage:
//
//	func (s *Server) handleCommit(w http.ResponseWriter, r *http.Request) {
//	    log := logging.FromContext(r.Context())
//	    log.Info("commit requested", "session_id", chi.URLParam(r, "sessionID"))
//	}
func FromContext(ctx context.Context) *slog.Logger {
	logger := slog.Default()

	// Set by chi's RequestID middleware; empty outside HTTP handlers.
	if reqID := middleware.GetReqID(ctx); reqID != "" {
		logger = logger.With("request_id", reqID)
	}
	return logger
}

// WithFields returns a request logger with additional structured fields.
//
//	log := logging.WithFields(ctx, "file", header.Filename, "kind", mapping.Kind)
//	log.Info("upload received")
//	// ... later ...
//	log.Warn("upload rejected", "error", err)
func WithFields(ctx context.Context, args ...any) *slog.Logger {
	return FromContext(ctx).With(args...)
}

// ForSession returns a request logger tagged with an import session and
// its owner. Every log line about one session goes through it.
//
//	log := logging.ForSession(ctx, sess.ID, ownerID)
//	log.Info("import committed", "inserted", n)
func ForSession(ctx context.Context, sessionID, ownerID string) *slog.Logger {
	return FromContext(ctx).With("session_id", sessionID, "owner_id", ownerID)
}
