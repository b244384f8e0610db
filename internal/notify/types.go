package notify

import (
	"errors"
	"time"
)

// Message is the broadcast content, stored once per Broadcast call.
type Message struct {
	ID        string            `json:"id"`
	Topic     string            `json:"topic,omitempty"`
	Title     string            `json:"title"`
	Body      string            `json:"body"`
	Data      map[string]string `json:"data,omitempty"`
	CreatedBy string            `json:"created_by,omitempty"`
	CreatedAt time.Time         `json:"created_at"`
}

// Notification is one recipient's copy of a message. DeliveredAt is set
// when the MQTT publish into the recipient's namespace was acknowledged
// by the broker; acknowledgment is the recipient's device reporting the
// notification was seen.
type Notification struct {
	ID             string     `json:"id"`
	MessageID      string     `json:"message_id"`
	RecipientID    string     `json:"recipient_id"`
	DeliveredAt    *time.Time `json:"delivered_at,omitempty"`
	AcknowledgedAt *time.Time `json:"acknowledged_at,omitempty"`
	IsAcknowledged bool       `json:"is_acknowledged"`
}

// FeedItem is a notification flattened with its message content, the
// shape the API returns to clients.
type FeedItem struct {
	ID             string            `json:"id"`
	MessageID      string            `json:"message_id"`
	Title          string            `json:"title"`
	Body           string            `json:"body"`
	Data           map[string]string `json:"data,omitempty"`
	DeliveredAt    *time.Time        `json:"delivered_at,omitempty"`
	AcknowledgedAt *time.Time        `json:"acknowledged_at,omitempty"`
	IsAcknowledged bool              `json:"is_acknowledged"`
	CreatedAt      time.Time         `json:"created_at"`
}

// wirePayload is the JSON shape published to user/<id>/ topics.
type wirePayload struct {
	MsgID string            `json:"msg_id"`
	Title string            `json:"title"`
	Body  string            `json:"body"`
	Data  map[string]string `json:"data,omitempty"`
}

// Sentinel errors for notification operations.
var (
	ErrMessageNotFound      = errors.New("message not found")
	ErrNotificationNotFound = errors.New("notification not found")
)
