// Package logging defines the structured-logging interface used across the
// project and its log/slog implementation. Attributes can travel with a
// context (see ContextWith) so that a build's records carry its task key
// without threading a child logger through every call.
package logging

import "context"

// Logger is a context-aware, structured logger.
//
// The variadic args are interpreted as key–value pairs, e.g.:
//
//	log.Info(ctx, "build finished", "task_key", key, "url", url)
type Logger interface {
	// Debug logs verbose diagnostics (per-instruction progress and similar).
	Debug(ctx context.Context, msg string, args ...any)

	// Info logs an informational message.
	Info(ctx context.Context, msg string, args ...any)

	// Warn logs a warning message for unusual but non-fatal conditions.
	Warn(ctx context.Context, msg string, args ...any)

	// Error logs an error message for failures.
	Error(ctx context.Context, msg string, args ...any)

	// With returns a child logger that always includes the given key–value pairs.
	With(args ...any) Logger
}
