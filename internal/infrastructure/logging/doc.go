// Package logging provides structured logging for EMQX Bridge.
//
// It wraps log/slog with configuration-driven level, format, and output
// selection plus service-wide default attributes. Components derive
// scoped loggers with With("component", ...) so every line carries its
// origin.
package logging
