// Package logger configures the process-wide log/slog JSON logger and
// carries request-scoped loggers through context.
package logger
