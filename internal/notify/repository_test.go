package notify

import (
	"context"
	"database/sql"
	"errors"
	"path/filepath"
	"testing"
	"time"

	_ "github.com/quartzlab/emqx-bridge/migrations"

	"github.com/quartzlab/emqx-bridge/internal/infrastructure/database"
)

// testDB creates a temporary SQLite database with migrations applied
// and the given users seeded.
func testDB(t *testing.T, userIDs ...string) *sql.DB {
	t.Helper()

	db, err := database.Open(database.Config{
		Path:        filepath.Join(t.TempDir(), "notify-test.db"),
		WALMode:     true,
		BusyTimeout: 5,
	})
	if err != nil {
		t.Fatalf("opening test db: %v", err)
	}
	t.Cleanup(func() { db.Close() })

	if err := db.Migrate(context.Background()); err != nil {
		t.Fatalf("migrating test db: %v", err)
	}

	for _, id := range userIDs {
		_, err := db.ExecContext(context.Background(),
			"INSERT INTO users (id, username, is_active, created_at) VALUES (?, ?, 1, ?)",
			id, "user-"+id, time.Now().UTC().Format(time.RFC3339))
		if err != nil {
			t.Fatalf("seeding user %s: %v", id, err)
		}
	}

	return db.DB
}

func TestMessageCreateAndGet(t *testing.T) {
	repo := NewMessageRepository(testDB(t, "usr-1"))
	ctx := context.Background()

	msg := &Message{
		Title:     "Maintenance window",
		Body:      "Broker restart at 02:00 UTC",
		Data:      map[string]string{"severity": "info"},
		CreatedBy: "usr-1",
	}
	if err := repo.Create(ctx, msg); err != nil {
		t.Fatalf("Create() error = %v", err)
	}
	if msg.ID == "" {
		t.Fatal("Create() should generate an ID")
	}

	got, err := repo.GetByID(ctx, msg.ID)
	if err != nil {
		t.Fatalf("GetByID() error = %v", err)
	}
	if got.Title != msg.Title || got.Body != msg.Body {
		t.Errorf("GetByID() = %q/%q, want %q/%q", got.Title, got.Body, msg.Title, msg.Body)
	}
	if got.Data["severity"] != "info" {
		t.Errorf("Data = %v, want severity=info", got.Data)
	}
	if got.CreatedBy != "usr-1" {
		t.Errorf("CreatedBy = %q, want usr-1", got.CreatedBy)
	}
}

func TestMessageGetByIDNotFound(t *testing.T) {
	repo := NewMessageRepository(testDB(t))

	_, err := repo.GetByID(context.Background(), "missing")
	if !errors.Is(err, ErrMessageNotFound) {
		t.Errorf("GetByID() error = %v, want ErrMessageNotFound", err)
	}
}

func TestMessageListRecent(t *testing.T) {
	repo := NewMessageRepository(testDB(t))
	ctx := context.Background()

	for i := 0; i < 3; i++ {
		if err := repo.Create(ctx, &Message{Title: "t", Body: "b"}); err != nil {
			t.Fatalf("Create() error = %v", err)
		}
	}

	messages, err := repo.ListRecent(ctx, 2)
	if err != nil {
		t.Fatalf("ListRecent() error = %v", err)
	}
	if len(messages) != 2 {
		t.Errorf("ListRecent(2) = %d messages, want 2", len(messages))
	}
}

func notificationFixture(t *testing.T, db *sql.DB, recipientID string) *Notification {
	t.Helper()
	ctx := context.Background()

	msg := &Message{Title: "t", Body: "b"}
	if err := NewMessageRepository(db).Create(ctx, msg); err != nil {
		t.Fatalf("creating fixture message: %v", err)
	}

	n := &Notification{MessageID: msg.ID, RecipientID: recipientID}
	if err := NewNotificationRepository(db).Create(ctx, n); err != nil {
		t.Fatalf("creating fixture notification: %v", err)
	}
	return n
}

func TestNotificationDeliveredAndAcknowledged(t *testing.T) {
	db := testDB(t, "usr-1")
	repo := NewNotificationRepository(db)
	ctx := context.Background()

	n := notificationFixture(t, db, "usr-1")

	if err := repo.MarkDelivered(ctx, n.ID); err != nil {
		t.Fatalf("MarkDelivered() error = %v", err)
	}
	if err := repo.Acknowledge(ctx, n.ID, "usr-1"); err != nil {
		t.Fatalf("Acknowledge() error = %v", err)
	}

	list, err := repo.ListByRecipient(ctx, "usr-1")
	if err != nil {
		t.Fatalf("ListByRecipient() error = %v", err)
	}
	if len(list) != 1 {
		t.Fatalf("ListByRecipient() = %d notifications, want 1", len(list))
	}
	got := list[0]
	if got.DeliveredAt == nil {
		t.Error("DeliveredAt should be set after MarkDelivered")
	}
	if !got.IsAcknowledged || got.AcknowledgedAt == nil {
		t.Error("notification should be acknowledged with a timestamp")
	}
}

func TestAcknowledgeMonotonic(t *testing.T) {
	db := testDB(t, "usr-1")
	repo := NewNotificationRepository(db)
	ctx := context.Background()

	n := notificationFixture(t, db, "usr-1")

	if err := repo.Acknowledge(ctx, n.ID, "usr-1"); err != nil {
		t.Fatalf("Acknowledge() error = %v", err)
	}

	list, _ := repo.ListByRecipient(ctx, "usr-1")
	first := list[0].AcknowledgedAt

	// Replay keeps the original timestamp and stays successful.
	time.Sleep(1100 * time.Millisecond)
	if err := repo.Acknowledge(ctx, n.ID, "usr-1"); err != nil {
		t.Fatalf("replayed Acknowledge() error = %v", err)
	}

	list, _ = repo.ListByRecipient(ctx, "usr-1")
	if !list[0].AcknowledgedAt.Equal(*first) {
		t.Errorf("AcknowledgedAt changed on replay: %v -> %v", first, list[0].AcknowledgedAt)
	}
}

func TestAcknowledgeWrongRecipient(t *testing.T) {
	db := testDB(t, "usr-1", "usr-2")
	repo := NewNotificationRepository(db)

	n := notificationFixture(t, db, "usr-1")

	err := repo.Acknowledge(context.Background(), n.ID, "usr-2")
	if !errors.Is(err, ErrNotificationNotFound) {
		t.Errorf("Acknowledge() by non-recipient error = %v, want ErrNotificationNotFound", err)
	}
}

func TestMarkDeliveredUnknownNotification(t *testing.T) {
	repo := NewNotificationRepository(testDB(t))

	err := repo.MarkDelivered(context.Background(), "missing")
	if !errors.Is(err, ErrNotificationNotFound) {
		t.Errorf("MarkDelivered() error = %v, want ErrNotificationNotFound", err)
	}
}
