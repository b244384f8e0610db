package notify

import (
	"context"
	"encoding/json"
	"errors"
	"sync"
	"testing"

	"github.com/quartzlab/emqx-bridge/internal/identity"
	"github.com/quartzlab/emqx-bridge/internal/infrastructure/logging"
	"github.com/quartzlab/emqx-bridge/internal/notify/push"
)

// fakeMessages stores messages in memory.
type fakeMessages struct {
	created []Message
	err     error
}

func (f *fakeMessages) Create(_ context.Context, msg *Message) error {
	if f.err != nil {
		return f.err
	}
	if msg.ID == "" {
		msg.ID = "msg-1"
	}
	f.created = append(f.created, *msg)
	return nil
}

func (f *fakeMessages) GetByID(_ context.Context, _ string) (*Message, error) {
	return nil, ErrMessageNotFound
}

func (f *fakeMessages) ListRecent(_ context.Context, _ int) ([]Message, error) {
	return nil, nil
}

// fakeNotifications stores notification rows in memory.
type fakeNotifications struct {
	mu        sync.Mutex
	created   []Notification
	delivered []string
	failFor   map[string]error
}

func (f *fakeNotifications) Create(_ context.Context, n *Notification) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if err := f.failFor[n.RecipientID]; err != nil {
		return err
	}
	n.ID = "ntf-" + n.RecipientID
	f.created = append(f.created, *n)
	return nil
}

func (f *fakeNotifications) MarkDelivered(_ context.Context, id string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.delivered = append(f.delivered, id)
	return nil
}

func (f *fakeNotifications) Acknowledge(_ context.Context, _, _ string) error { return nil }

func (f *fakeNotifications) ListByRecipient(_ context.Context, _ string) ([]Notification, error) {
	return nil, nil
}

func (f *fakeNotifications) ListFeed(_ context.Context, _ string) ([]FeedItem, error) {
	return nil, nil
}

// fakePublisher records publishes and can fail for selected topics.
type fakePublisher struct {
	mu        sync.Mutex
	published map[string][]byte
	failFor   map[string]error
}

func newFakePublisher() *fakePublisher {
	return &fakePublisher{published: map[string][]byte{}, failFor: map[string]error{}}
}

func (f *fakePublisher) Publish(topic string, payload []byte, _ byte) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if err := f.failFor[topic]; err != nil {
		return err
	}
	f.published[topic] = payload
	return nil
}

// fakePush records push sends and can fail for selected users.
type fakePush struct {
	mu      sync.Mutex
	sent    []string
	failFor map[string]error
}

func newFakePush() *fakePush {
	return &fakePush{failFor: map[string]error{}}
}

func (f *fakePush) Send(_ context.Context, userID string, _ push.Notification) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if err := f.failFor[userID]; err != nil {
		return err
	}
	f.sent = append(f.sent, userID)
	return nil
}

func recipients(ids ...string) []identity.User {
	users := make([]identity.User, 0, len(ids))
	for _, id := range ids {
		users = append(users, identity.User{ID: id, Username: "user-" + id, IsActive: true})
	}
	return users
}

func TestBroadcast(t *testing.T) {
	messages := &fakeMessages{}
	notifications := &fakeNotifications{}
	publisher := newFakePublisher()
	pushSink := newFakePush()
	relay := NewRelay(messages, notifications, publisher, pushSink, 1, logging.Default())

	msg := &Message{Title: "Alert", Body: "Something happened", Data: map[string]string{"k": "v"}}
	deliveries, err := relay.Broadcast(context.Background(), msg, recipients("usr-1", "usr-2"))
	if err != nil {
		t.Fatalf("Broadcast() error = %v", err)
	}

	if len(messages.created) != 1 {
		t.Errorf("messages stored = %d, want 1", len(messages.created))
	}
	if len(deliveries) != 2 {
		t.Fatalf("deliveries = %d, want 2", len(deliveries))
	}
	for _, d := range deliveries {
		if !d.Published || !d.Pushed || d.Error != "" {
			t.Errorf("delivery %+v, want published and pushed with no error", d)
		}
	}

	payload, ok := publisher.published["user/usr-1/"]
	if !ok {
		t.Fatalf("nothing published to user/usr-1/, got topics %v", publisher.published)
	}
	var wire struct {
		MsgID string            `json:"msg_id"`
		Title string            `json:"title"`
		Body  string            `json:"body"`
		Data  map[string]string `json:"data"`
	}
	if err := json.Unmarshal(payload, &wire); err != nil {
		t.Fatalf("payload is not valid JSON: %v", err)
	}
	if wire.MsgID != msg.ID || wire.Title != "Alert" || wire.Data["k"] != "v" {
		t.Errorf("payload = %+v, want msg_id/title/data echoed", wire)
	}

	if len(notifications.delivered) != 2 {
		t.Errorf("delivered marks = %d, want 2", len(notifications.delivered))
	}
	if len(pushSink.sent) != 2 {
		t.Errorf("push sends = %d, want 2", len(pushSink.sent))
	}
}

func TestBroadcastRecipientIsolation(t *testing.T) {
	messages := &fakeMessages{}
	notifications := &fakeNotifications{}
	publisher := newFakePublisher()
	publisher.failFor["user/usr-2/"] = errors.New("broker rejected publish")
	pushSink := newFakePush()
	relay := NewRelay(messages, notifications, publisher, pushSink, 1, logging.Default())

	msg := &Message{Title: "t", Body: "b"}
	deliveries, err := relay.Broadcast(context.Background(), msg, recipients("usr-1", "usr-2", "usr-3"))
	if err != nil {
		t.Fatalf("Broadcast() error = %v", err)
	}

	byRecipient := map[string]Delivery{}
	for _, d := range deliveries {
		byRecipient[d.RecipientID] = d
	}

	if d := byRecipient["usr-2"]; d.Published || d.Error == "" {
		t.Errorf("usr-2 delivery = %+v, want failed publish with error", d)
	}
	for _, id := range []string{"usr-1", "usr-3"} {
		if d := byRecipient[id]; !d.Published || !d.Pushed {
			t.Errorf("%s delivery = %+v, want unaffected by usr-2 failure", id, d)
		}
	}

	// The failed recipient still got a push attempt.
	if d := byRecipient["usr-2"]; !d.Pushed {
		t.Errorf("usr-2 delivery = %+v, push leg should still run", d)
	}
}

func TestBroadcastNotificationStoreFailure(t *testing.T) {
	messages := &fakeMessages{}
	notifications := &fakeNotifications{failFor: map[string]error{"usr-1": errors.New("disk full")}}
	publisher := newFakePublisher()
	relay := NewRelay(messages, notifications, publisher, newFakePush(), 1, logging.Default())

	deliveries, err := relay.Broadcast(context.Background(), &Message{Title: "t", Body: "b"}, recipients("usr-1", "usr-2"))
	if err != nil {
		t.Fatalf("Broadcast() error = %v", err)
	}

	for _, d := range deliveries {
		switch d.RecipientID {
		case "usr-1":
			if d.Error == "" || d.Published {
				t.Errorf("usr-1 delivery = %+v, want store failure recorded", d)
			}
		case "usr-2":
			if !d.Published {
				t.Errorf("usr-2 delivery = %+v, want successful", d)
			}
		}
	}

	// The failed recipient's publish leg was skipped entirely.
	if _, ok := publisher.published["user/usr-1/"]; ok {
		t.Error("publish should not run when the notification row was not stored")
	}
}

func TestBroadcastMessageStoreFailure(t *testing.T) {
	messages := &fakeMessages{err: errors.New("disk full")}
	relay := NewRelay(messages, &fakeNotifications{}, newFakePublisher(), newFakePush(), 1, logging.Default())

	_, err := relay.Broadcast(context.Background(), &Message{Title: "t"}, recipients("usr-1"))
	if err == nil {
		t.Error("Broadcast() should fail when the message cannot be stored")
	}
}

func TestBroadcastNoRecipients(t *testing.T) {
	messages := &fakeMessages{}
	relay := NewRelay(messages, &fakeNotifications{}, newFakePublisher(), newFakePush(), 1, logging.Default())

	deliveries, err := relay.Broadcast(context.Background(), &Message{Title: "t"}, nil)
	if err != nil {
		t.Fatalf("Broadcast() error = %v", err)
	}
	if len(deliveries) != 0 {
		t.Errorf("deliveries = %d, want 0", len(deliveries))
	}
	if len(messages.created) != 1 {
		t.Error("message should still be stored with no recipients")
	}
}
