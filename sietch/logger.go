package sietch

import (
	"context"
	"log/slog"
	"time"
)

// QueryLogger defines the interface for logging store operations
type QueryLogger interface {
	// LogQuery logs a query execution with timing and error information
	LogQuery(ctx context.Context, operation string, query string, args []any, duration time.Duration, err error)

	// LogOperation logs a high-level store operation
	LogOperation(ctx context.Context, operation string, entityType string, duration time.Duration, err error)
}

// SlogLogger writes store operations to a slog.Logger. Successful operations
// are logged at Debug, failures at Error.
type SlogLogger struct {
	logger *slog.Logger
}

// NewSlogLogger wraps logger; nil means slog.Default()
func NewSlogLogger(logger *slog.Logger) *SlogLogger {
	if logger == nil {
		logger = slog.Default()
	}
	return &SlogLogger{logger: logger.With("component", "sietch")}
}

// LogQuery implements QueryLogger
func (l *SlogLogger) LogQuery(ctx context.Context, operation string, query string, args []any, duration time.Duration, err error) {
	if err != nil {
		l.logger.ErrorContext(ctx, "query failed",
			"operation", operation, "query", query, "args", len(args), "duration", duration, "error", err)
		return
	}
	l.logger.DebugContext(ctx, "query",
		"operation", operation, "query", query, "args", len(args), "duration", duration)
}

// LogOperation implements QueryLogger
func (l *SlogLogger) LogOperation(ctx context.Context, operation string, entityType string, duration time.Duration, err error) {
	if err != nil {
		l.logger.ErrorContext(ctx, "operation failed",
			"operation", operation, "entity_type", entityType, "duration", duration, "error", err)
		return
	}
	l.logger.DebugContext(ctx, "operation",
		"operation", operation, "entity_type", entityType, "duration", duration)
}

// NoOpLogger is a logger that does nothing (useful for disabling logging)
type NoOpLogger struct{}

// NewNoOpLogger creates a no-op logger
func NewNoOpLogger() *NoOpLogger {
	return &NoOpLogger{}
}

// LogQuery implements QueryLogger
func (l *NoOpLogger) LogQuery(ctx context.Context, operation string, query string, args []any, duration time.Duration, err error) {
}

// LogOperation implements QueryLogger
func (l *NoOpLogger) LogOperation(ctx context.Context, operation string, entityType string, duration time.Duration, err error) {
}

// logOperation is a helper to log an operation with timing
func logOperation(logger QueryLogger, ctx context.Context, operation string, entityType string, start time.Time, err error) {
	if logger != nil {
		logger.LogOperation(ctx, operation, entityType, time.Since(start), err)
	}
}

// logQuery is a helper to log a query with timing
func logQuery(logger QueryLogger, ctx context.Context, operation string, query string, args []any, start time.Time, err error) {
	if logger != nil {
		logger.LogQuery(ctx, operation, query, args, time.Since(start), err)
	}
}
