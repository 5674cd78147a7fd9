// Package logger provides structured logging for the application.
//
// It builds JSON log/slog handlers from configuration, carries request- and
// job-scoped loggers through context.Context, and offers helpers for
// capturing log output in tests.
package logger
