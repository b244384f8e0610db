package notify

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
)

// MessageRepository persists broadcast messages.
type MessageRepository interface {
	Create(ctx context.Context, msg *Message) error
	GetByID(ctx context.Context, id string) (*Message, error)
	ListRecent(ctx context.Context, limit int) ([]Message, error)
}

// NotificationRepository persists per-recipient notification rows.
type NotificationRepository interface {
	Create(ctx context.Context, n *Notification) error
	MarkDelivered(ctx context.Context, id string) error
	Acknowledge(ctx context.Context, id, recipientID string) error
	ListByRecipient(ctx context.Context, recipientID string) ([]Notification, error)
	ListFeed(ctx context.Context, recipientID string) ([]FeedItem, error)
}

// SQLiteMessageRepository implements MessageRepository using SQLite.
type SQLiteMessageRepository struct {
	db *sql.DB
}

// NewMessageRepository creates a SQLite-backed message repository.
func NewMessageRepository(db *sql.DB) *SQLiteMessageRepository {
	return &SQLiteMessageRepository{db: db}
}

// Create inserts a message. The ID is generated if empty; Data is
// stored as JSON text.
func (r *SQLiteMessageRepository) Create(ctx context.Context, msg *Message) error {
	if msg.ID == "" {
		msg.ID = uuid.NewString()
	}
	msg.CreatedAt = time.Now().UTC().Truncate(time.Second)

	var data any
	if len(msg.Data) > 0 {
		encoded, err := json.Marshal(msg.Data)
		if err != nil {
			return fmt.Errorf("encoding message data: %w", err)
		}
		data = string(encoded)
	}

	_, err := r.db.ExecContext(ctx,
		`INSERT INTO messages (id, topic, title, body, data, created_by, created_at)
		 VALUES (?, ?, ?, ?, ?, ?, ?)`,
		msg.ID, nullable(msg.Topic), msg.Title, msg.Body, data,
		nullable(msg.CreatedBy), msg.CreatedAt.Format(time.RFC3339),
	)
	if err != nil {
		return fmt.Errorf("creating message: %w", err)
	}
	return nil
}

// GetByID retrieves a message by ID.
func (r *SQLiteMessageRepository) GetByID(ctx context.Context, id string) (*Message, error) {
	row := r.db.QueryRowContext(ctx,
		"SELECT id, topic, title, body, data, created_by, created_at FROM messages WHERE id = ?", id)
	return scanMessage(row)
}

// ListRecent retrieves the newest messages, up to limit.
func (r *SQLiteMessageRepository) ListRecent(ctx context.Context, limit int) ([]Message, error) {
	rows, err := r.db.QueryContext(ctx,
		"SELECT id, topic, title, body, data, created_by, created_at FROM messages ORDER BY created_at DESC LIMIT ?",
		limit)
	if err != nil {
		return nil, fmt.Errorf("listing messages: %w", err)
	}
	defer rows.Close()

	messages := []Message{}
	for rows.Next() {
		m, err := scanMessage(rows)
		if err != nil {
			return nil, err
		}
		messages = append(messages, *m)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterating messages: %w", err)
	}
	return messages, nil
}

// SQLiteNotificationRepository implements NotificationRepository using SQLite.
type SQLiteNotificationRepository struct {
	db *sql.DB
}

// NewNotificationRepository creates a SQLite-backed notification repository.
func NewNotificationRepository(db *sql.DB) *SQLiteNotificationRepository {
	return &SQLiteNotificationRepository{db: db}
}

// Create inserts a notification row. The ID is generated if empty.
func (r *SQLiteNotificationRepository) Create(ctx context.Context, n *Notification) error {
	if n.ID == "" {
		n.ID = uuid.NewString()
	}

	_, err := r.db.ExecContext(ctx,
		`INSERT INTO notifications (id, message_id, recipient_id, is_acknowledged)
		 VALUES (?, ?, ?, 0)`,
		n.ID, n.MessageID, n.RecipientID,
	)
	if err != nil {
		return fmt.Errorf("creating notification: %w", err)
	}
	return nil
}

// MarkDelivered stamps the broker-acknowledged delivery time.
func (r *SQLiteNotificationRepository) MarkDelivered(ctx context.Context, id string) error {
	res, err := r.db.ExecContext(ctx,
		"UPDATE notifications SET delivered_at = ? WHERE id = ?",
		time.Now().UTC().Format(time.RFC3339), id)
	if err != nil {
		return fmt.Errorf("marking notification delivered: %w", err)
	}
	return requireAffected(res)
}

// Acknowledge marks a notification as seen by its recipient. The
// transition is monotonic: once acknowledged, replays keep the original
// timestamp. The recipient ID is part of the match so users cannot
// acknowledge each other's notifications.
func (r *SQLiteNotificationRepository) Acknowledge(ctx context.Context, id, recipientID string) error {
	res, err := r.db.ExecContext(ctx, `
		UPDATE notifications
		SET is_acknowledged = 1, acknowledged_at = ?
		WHERE id = ? AND recipient_id = ? AND is_acknowledged = 0`,
		time.Now().UTC().Format(time.RFC3339), id, recipientID)
	if err != nil {
		return fmt.Errorf("acknowledging notification: %w", err)
	}

	affected, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("reading affected rows: %w", err)
	}
	if affected > 0 {
		return nil
	}

	// Nothing updated: either already acknowledged (fine) or not this
	// recipient's notification (not found).
	var acked int
	err = r.db.QueryRowContext(ctx,
		"SELECT is_acknowledged FROM notifications WHERE id = ? AND recipient_id = ?",
		id, recipientID).Scan(&acked)
	if errors.Is(err, sql.ErrNoRows) {
		return ErrNotificationNotFound
	}
	if err != nil {
		return fmt.Errorf("checking notification: %w", err)
	}
	return nil
}

// ListByRecipient retrieves a user's notifications, newest first.
func (r *SQLiteNotificationRepository) ListByRecipient(ctx context.Context, recipientID string) ([]Notification, error) {
	rows, err := r.db.QueryContext(ctx, `
		SELECT n.id, n.message_id, n.recipient_id, n.delivered_at, n.acknowledged_at, n.is_acknowledged
		FROM notifications n
		JOIN messages m ON m.id = n.message_id
		WHERE n.recipient_id = ?
		ORDER BY m.created_at DESC`,
		recipientID)
	if err != nil {
		return nil, fmt.Errorf("listing notifications: %w", err)
	}
	defer rows.Close()

	notifications := []Notification{}
	for rows.Next() {
		var n Notification
		var delivered, acked sql.NullString
		var isAcked int
		if err := rows.Scan(&n.ID, &n.MessageID, &n.RecipientID, &delivered, &acked, &isAcked); err != nil {
			return nil, fmt.Errorf("scanning notification: %w", err)
		}
		n.IsAcknowledged = isAcked != 0
		n.DeliveredAt = parseNullTime(delivered)
		n.AcknowledgedAt = parseNullTime(acked)
		notifications = append(notifications, n)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterating notifications: %w", err)
	}
	return notifications, nil
}

// ListFeed retrieves a user's notifications flattened with message
// content, newest first.
func (r *SQLiteNotificationRepository) ListFeed(ctx context.Context, recipientID string) ([]FeedItem, error) {
	rows, err := r.db.QueryContext(ctx, `
		SELECT n.id, n.message_id, m.title, m.body, m.data,
		       n.delivered_at, n.acknowledged_at, n.is_acknowledged, m.created_at
		FROM notifications n
		JOIN messages m ON m.id = n.message_id
		WHERE n.recipient_id = ?
		ORDER BY m.created_at DESC`,
		recipientID)
	if err != nil {
		return nil, fmt.Errorf("listing notification feed: %w", err)
	}
	defer rows.Close()

	items := []FeedItem{}
	for rows.Next() {
		var item FeedItem
		var data, delivered, acked sql.NullString
		var isAcked int
		var createdAt string
		err := rows.Scan(&item.ID, &item.MessageID, &item.Title, &item.Body, &data,
			&delivered, &acked, &isAcked, &createdAt)
		if err != nil {
			return nil, fmt.Errorf("scanning feed item: %w", err)
		}
		item.IsAcknowledged = isAcked != 0
		item.DeliveredAt = parseNullTime(delivered)
		item.AcknowledgedAt = parseNullTime(acked)
		item.CreatedAt, _ = time.Parse(time.RFC3339, createdAt) //nolint:errcheck // format is controlled
		if data.Valid && data.String != "" {
			if err := json.Unmarshal([]byte(data.String), &item.Data); err != nil {
				return nil, fmt.Errorf("decoding feed item data: %w", err)
			}
		}
		items = append(items, item)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterating feed items: %w", err)
	}
	return items, nil
}

type scanner interface {
	Scan(dest ...any) error
}

func scanMessage(s scanner) (*Message, error) {
	var m Message
	var topic, data, createdBy sql.NullString
	var createdAt string

	if err := s.Scan(&m.ID, &topic, &m.Title, &m.Body, &data, &createdBy, &createdAt); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, ErrMessageNotFound
		}
		return nil, fmt.Errorf("scanning message: %w", err)
	}

	m.Topic = topic.String
	m.CreatedBy = createdBy.String
	m.CreatedAt, _ = time.Parse(time.RFC3339, createdAt) //nolint:errcheck // format is controlled

	if data.Valid && data.String != "" {
		if err := json.Unmarshal([]byte(data.String), &m.Data); err != nil {
			return nil, fmt.Errorf("decoding message data: %w", err)
		}
	}

	return &m, nil
}

func parseNullTime(v sql.NullString) *time.Time {
	if !v.Valid {
		return nil
	}
	t, err := time.Parse(time.RFC3339, v.String)
	if err != nil {
		return nil
	}
	return &t
}

func nullable(s string) any {
	if s == "" {
		return nil
	}
	return s
}

func requireAffected(res sql.Result) error {
	affected, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("reading affected rows: %w", err)
	}
	if affected == 0 {
		return ErrNotificationNotFound
	}
	return nil
}
