// Package logger builds configured slog loggers and provides attribute
// helpers with the key names used across the delivery pipeline, so logs stay
// queryable by a consistent schema.
package logger
