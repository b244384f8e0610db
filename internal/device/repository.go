package device

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"
)

// Repository defines the interface for device session persistence.
type Repository interface {
	// Upsert records a connect for the given client. A new row is
	// created on first sight; an existing row is reassigned to the
	// given user and marked online. Returns true when the row was
	// created rather than updated.
	Upsert(ctx context.Context, userID, clientID, ip string) (created bool, err error)

	// Deactivate marks a session offline, but only when the row
	// belongs to the given user. Returns true when a row matched.
	Deactivate(ctx context.Context, userID, clientID string) (updated bool, err error)

	// GetByClientID retrieves a session by its client ID.
	GetByClientID(ctx context.Context, clientID string) (*Session, error)

	// ListByUser retrieves all sessions belonging to a user.
	ListByUser(ctx context.Context, userID string) ([]Session, error)

	// List retrieves all sessions.
	List(ctx context.Context) ([]Session, error)
}

// SQLiteRepository implements Repository using SQLite.
type SQLiteRepository struct {
	db *sql.DB
}

// NewRepository creates a new SQLite-backed session repository.
func NewRepository(db *sql.DB) *SQLiteRepository {
	return &SQLiteRepository{db: db}
}

// Upsert performs the connect-side reconciliation in one transaction.
// The existence check and the write run on the same connection; the
// pool is capped at a single writer so no other statement interleaves.
func (r *SQLiteRepository) Upsert(ctx context.Context, userID, clientID, ip string) (bool, error) {
	tx, err := r.db.BeginTx(ctx, nil)
	if err != nil {
		return false, fmt.Errorf("beginning upsert: %w", err)
	}
	defer tx.Rollback() //nolint:errcheck // no-op after commit

	var exists bool
	err = tx.QueryRowContext(ctx,
		"SELECT EXISTS(SELECT 1 FROM device_sessions WHERE client_id = ?)", clientID,
	).Scan(&exists)
	if err != nil {
		return false, fmt.Errorf("checking session existence: %w", err)
	}

	now := time.Now().UTC().Format(time.RFC3339)
	_, err = tx.ExecContext(ctx, `
		INSERT INTO device_sessions (client_id, user_id, active, status, last_connected_at, last_ip, created_at)
		VALUES (?, ?, 1, ?, ?, ?, ?)
		ON CONFLICT(client_id) DO UPDATE SET
			user_id = excluded.user_id,
			active = 1,
			status = excluded.status,
			last_connected_at = excluded.last_connected_at,
			last_ip = excluded.last_ip`,
		clientID, userID, StatusOnline, now, ip, now,
	)
	if err != nil {
		return false, fmt.Errorf("upserting session: %w", err)
	}

	if err := tx.Commit(); err != nil {
		return false, fmt.Errorf("committing upsert: %w", err)
	}

	return !exists, nil
}

// Deactivate marks a session offline. The user ID is part of the match:
// a stale disconnect for a client that has since reconnected under
// another user must not touch the new owner's row.
func (r *SQLiteRepository) Deactivate(ctx context.Context, userID, clientID string) (bool, error) {
	res, err := r.db.ExecContext(ctx, `
		UPDATE device_sessions
		SET active = 0, status = ?
		WHERE client_id = ? AND user_id = ?`,
		StatusOffline, clientID, userID,
	)
	if err != nil {
		return false, fmt.Errorf("deactivating session: %w", err)
	}

	affected, err := res.RowsAffected()
	if err != nil {
		return false, fmt.Errorf("reading affected rows: %w", err)
	}

	return affected > 0, nil
}

// GetByClientID retrieves a session by its client ID.
func (r *SQLiteRepository) GetByClientID(ctx context.Context, clientID string) (*Session, error) {
	row := r.db.QueryRowContext(ctx, selectSessions+" WHERE client_id = ?", clientID)
	return scanSession(row)
}

// ListByUser retrieves all sessions belonging to a user, newest first.
func (r *SQLiteRepository) ListByUser(ctx context.Context, userID string) ([]Session, error) {
	rows, err := r.db.QueryContext(ctx,
		selectSessions+" WHERE user_id = ? ORDER BY created_at DESC", userID)
	if err != nil {
		return nil, fmt.Errorf("listing sessions: %w", err)
	}
	return collectSessions(rows)
}

// List retrieves all sessions, newest first.
func (r *SQLiteRepository) List(ctx context.Context) ([]Session, error) {
	rows, err := r.db.QueryContext(ctx, selectSessions+" ORDER BY created_at DESC")
	if err != nil {
		return nil, fmt.Errorf("listing sessions: %w", err)
	}
	return collectSessions(rows)
}

const selectSessions = `SELECT client_id, user_id, active, status, last_connected_at, last_ip, subscribed_topics, created_at FROM device_sessions`

// scanner is an interface for sql.Row and sql.Rows Scan methods.
type scanner interface {
	Scan(dest ...any) error
}

func scanSession(s scanner) (*Session, error) {
	var sess Session
	var active int
	var status, createdAt string
	var lastConnected, lastIP, topics sql.NullString

	err := s.Scan(&sess.ClientID, &sess.UserID, &active, &status,
		&lastConnected, &lastIP, &topics, &createdAt)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, ErrSessionNotFound
		}
		return nil, fmt.Errorf("scanning session: %w", err)
	}

	sess.Active = active != 0
	sess.Status = Status(status)
	sess.LastIP = lastIP.String
	sess.SubscribedTopics = topics.String
	sess.CreatedAt, _ = time.Parse(time.RFC3339, createdAt) //nolint:errcheck // format is controlled

	if lastConnected.Valid {
		if t, err := time.Parse(time.RFC3339, lastConnected.String); err == nil {
			sess.LastConnectedAt = &t
		}
	}

	return &sess, nil
}

func collectSessions(rows *sql.Rows) ([]Session, error) {
	defer rows.Close()

	sessions := []Session{}
	for rows.Next() {
		s, err := scanSession(rows)
		if err != nil {
			return nil, err
		}
		sessions = append(sessions, *s)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterating sessions: %w", err)
	}
	return sessions, nil
}
