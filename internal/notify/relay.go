package notify

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/quartzlab/emqx-bridge/internal/identity"
	"github.com/quartzlab/emqx-bridge/internal/infrastructure/logging"
	"github.com/quartzlab/emqx-bridge/internal/infrastructure/mqtt"
	"github.com/quartzlab/emqx-bridge/internal/notify/push"
)

// Publisher is the slice of the MQTT client the relay needs.
type Publisher interface {
	Publish(topic string, payload []byte, qos byte) error
}

// Relay stores messages and fans them out to recipients over MQTT and
// push.
type Relay struct {
	messages      MessageRepository
	notifications NotificationRepository
	publisher     Publisher
	push          push.Sink
	qos           byte
	logger        *logging.Logger
}

// NewRelay creates a relay. The push sink must not be nil; pass
// push.Noop{} when no provider is configured.
func NewRelay(
	messages MessageRepository,
	notifications NotificationRepository,
	publisher Publisher,
	pushSink push.Sink,
	qos byte,
	logger *logging.Logger,
) *Relay {
	return &Relay{
		messages:      messages,
		notifications: notifications,
		publisher:     publisher,
		push:          pushSink,
		qos:           qos,
		logger:        logger,
	}
}

// Delivery reports the outcome of one recipient's fan-out leg.
type Delivery struct {
	RecipientID    string `json:"recipient_id"`
	NotificationID string `json:"notification_id,omitempty"`
	Published      bool   `json:"published"`
	Pushed         bool   `json:"pushed"`
	Error          string `json:"error,omitempty"`
}

// Broadcast stores the message and delivers it to every recipient.
//
// Each recipient gets a notification row, an MQTT publish to their
// user/<id>/ topic, and a push send. A failure in any leg is recorded
// in that recipient's Delivery and does not stop the remaining
// recipients. The returned error is non-nil only when the message
// itself could not be stored.
func (r *Relay) Broadcast(ctx context.Context, msg *Message, recipients []identity.User) ([]Delivery, error) {
	if err := r.messages.Create(ctx, msg); err != nil {
		return nil, fmt.Errorf("storing message: %w", err)
	}

	payload, err := json.Marshal(wirePayload{
		MsgID: msg.ID,
		Title: msg.Title,
		Body:  msg.Body,
		Data:  msg.Data,
	})
	if err != nil {
		return nil, fmt.Errorf("encoding payload: %w", err)
	}

	deliveries := make([]Delivery, 0, len(recipients))
	for _, recipient := range recipients {
		deliveries = append(deliveries, r.deliver(ctx, msg, payload, recipient))
	}

	return deliveries, nil
}

// deliver runs one recipient's fan-out leg.
func (r *Relay) deliver(ctx context.Context, msg *Message, payload []byte, recipient identity.User) Delivery {
	d := Delivery{RecipientID: recipient.ID}

	n := &Notification{MessageID: msg.ID, RecipientID: recipient.ID}
	if err := r.notifications.Create(ctx, n); err != nil {
		r.logger.Error("storing notification failed",
			"message_id", msg.ID, "recipient_id", recipient.ID, "error", err)
		d.Error = err.Error()
		return d
	}
	d.NotificationID = n.ID

	topic := mqtt.Topics{}.UserNotification(recipient.ID)
	if err := r.publisher.Publish(topic, payload, r.qos); err != nil {
		r.logger.Error("publishing notification failed",
			"topic", topic, "message_id", msg.ID, "error", err)
		d.Error = err.Error()
	} else {
		d.Published = true
		if err := r.notifications.MarkDelivered(ctx, n.ID); err != nil {
			r.logger.Warn("marking notification delivered failed",
				"notification_id", n.ID, "error", err)
		}
	}

	if err := r.push.Send(ctx, recipient.ID, push.Notification{
		Title: msg.Title,
		Body:  msg.Body,
		Data:  msg.Data,
	}); err != nil {
		r.logger.Error("push send failed",
			"recipient_id", recipient.ID, "message_id", msg.ID, "error", err)
		if d.Error == "" {
			d.Error = err.Error()
		}
	} else {
		d.Pushed = true
	}

	return d
}
