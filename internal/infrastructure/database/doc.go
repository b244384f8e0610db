// Package database provides the SQLite persistence layer for EMQX Bridge.
//
// It wraps database/sql with WAL-mode configuration, a single-writer
// connection pool matching SQLite's concurrency model, health checks,
// and embedded schema migrations.
//
// The single-writer pool matters beyond performance: the device session
// reconciler relies on it to make its upserts atomic under concurrent
// webhook delivery for the same client.
package database
