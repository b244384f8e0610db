package device

import (
	"context"
	"errors"
	"time"
)

// Status represents the connectivity state of a device session.
type Status string

// Valid device session statuses.
const (
	StatusOnline  Status = "online"
	StatusOffline Status = "offline"
	StatusError   Status = "error"
)

// Session is one MQTT client's standing with the bridge. The client ID
// is the natural key: a device that reconnects under a different user
// moves to that user rather than creating a second row.
type Session struct {
	ClientID         string     `json:"client_id"`
	UserID           string     `json:"user_id"`
	Active           bool       `json:"active"`
	Status           Status     `json:"status"`
	LastConnectedAt  *time.Time `json:"last_connected_at,omitempty"`
	LastIP           string     `json:"last_ip,omitempty"`
	SubscribedTopics string     `json:"subscribed_topics,omitempty"`
	CreatedAt        time.Time  `json:"created_at"`
}

// EventType identifies a device lifecycle transition.
type EventType string

// Lifecycle events emitted by the Reconciler. FirstSeen fires once per
// client ID; Connected fires on every subsequent connect including
// replays that change nothing.
const (
	EventFirstSeen    EventType = "device_first_seen"
	EventConnected    EventType = "device_connected"
	EventDisconnected EventType = "device_disconnected"
)

// Event carries the facts of one lifecycle transition.
type Event struct {
	Type     EventType `json:"type"`
	UserID   string    `json:"user_id"`
	ClientID string    `json:"client_id"`
	IP       string    `json:"ip,omitempty"`
	Time     time.Time `json:"time"`
}

// Sink observes device lifecycle events. Implementations must not
// block; a slow sink delays webhook responses to the broker.
type Sink interface {
	OnDeviceEvent(ctx context.Context, event Event)
}

// ErrSessionNotFound is returned when a session lookup finds no row.
var ErrSessionNotFound = errors.New("device session not found")
