// Package push delivers notifications to mobile devices when they are
// not connected to the broker. The provider is chosen at startup; the
// relay only ever sees the Sink interface.
package push

import "context"

// Notification is the provider-independent push payload.
type Notification struct {
	Title string
	Body  string
	Data  map[string]string
}

// Sink sends a push notification to all of a user's enrolled devices.
type Sink interface {
	Send(ctx context.Context, userID string, n Notification) error
}

// Noop is the sink used when no push provider is configured.
type Noop struct{}

// Send implements Sink by doing nothing.
func (Noop) Send(_ context.Context, _ string, _ Notification) error {
	return nil
}
