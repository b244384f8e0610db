package device

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
// and the given users seeded. Sessions reference users by foreign key.
func testDB(t *testing.T, userIDs ...string) *sql.DB {
	t.Helper()

	db, err := database.Open(database.Config{
		Path:        filepath.Join(t.TempDir(), "device-test.db"),
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

func TestUpsertCreatesThenUpdates(t *testing.T) {
	repo := NewRepository(testDB(t, "usr-1"))
	ctx := context.Background()

	created, err := repo.Upsert(ctx, "usr-1", "dev-a", "10.0.0.5")
	if err != nil {
		t.Fatalf("Upsert() error = %v", err)
	}
	if !created {
		t.Error("first Upsert() created = false, want true")
	}

	created, err = repo.Upsert(ctx, "usr-1", "dev-a", "10.0.0.6")
	if err != nil {
		t.Fatalf("second Upsert() error = %v", err)
	}
	if created {
		t.Error("second Upsert() created = true, want false")
	}

	sess, err := repo.GetByClientID(ctx, "dev-a")
	if err != nil {
		t.Fatalf("GetByClientID() error = %v", err)
	}
	if !sess.Active || sess.Status != StatusOnline {
		t.Errorf("session = active:%v status:%s, want online", sess.Active, sess.Status)
	}
	if sess.LastIP != "10.0.0.6" {
		t.Errorf("LastIP = %q, want the latest connect's address", sess.LastIP)
	}
	if sess.LastConnectedAt == nil {
		t.Error("LastConnectedAt should be set after a connect")
	}
}

func TestUpsertReassignsUser(t *testing.T) {
	repo := NewRepository(testDB(t, "usr-1", "usr-2"))
	ctx := context.Background()

	if _, err := repo.Upsert(ctx, "usr-1", "dev-a", ""); err != nil {
		t.Fatalf("Upsert() error = %v", err)
	}
	created, err := repo.Upsert(ctx, "usr-2", "dev-a", "")
	if err != nil {
		t.Fatalf("Upsert() reassign error = %v", err)
	}
	if created {
		t.Error("reassigning Upsert() created = true, want false")
	}

	sess, err := repo.GetByClientID(ctx, "dev-a")
	if err != nil {
		t.Fatalf("GetByClientID() error = %v", err)
	}
	if sess.UserID != "usr-2" {
		t.Errorf("UserID = %q, want usr-2 (latest claimant)", sess.UserID)
	}
}

func TestDeactivate(t *testing.T) {
	repo := NewRepository(testDB(t, "usr-1"))
	ctx := context.Background()

	if _, err := repo.Upsert(ctx, "usr-1", "dev-a", ""); err != nil {
		t.Fatalf("Upsert() error = %v", err)
	}

	updated, err := repo.Deactivate(ctx, "usr-1", "dev-a")
	if err != nil {
		t.Fatalf("Deactivate() error = %v", err)
	}
	if !updated {
		t.Error("Deactivate() updated = false, want true")
	}

	sess, err := repo.GetByClientID(ctx, "dev-a")
	if err != nil {
		t.Fatalf("GetByClientID() error = %v", err)
	}
	if sess.Active || sess.Status != StatusOffline {
		t.Errorf("session = active:%v status:%s, want offline", sess.Active, sess.Status)
	}

	// Replaying the disconnect still matches the row; state converges.
	updated, err = repo.Deactivate(ctx, "usr-1", "dev-a")
	if err != nil {
		t.Fatalf("replayed Deactivate() error = %v", err)
	}
	if !updated {
		t.Error("replayed Deactivate() updated = false, want true (row still matches)")
	}
}

func TestDeactivateWrongUser(t *testing.T) {
	repo := NewRepository(testDB(t, "usr-1", "usr-2"))
	ctx := context.Background()

	if _, err := repo.Upsert(ctx, "usr-2", "dev-a", ""); err != nil {
		t.Fatalf("Upsert() error = %v", err)
	}

	// Stale disconnect from the previous owner must not touch the row.
	updated, err := repo.Deactivate(ctx, "usr-1", "dev-a")
	if err != nil {
		t.Fatalf("Deactivate() error = %v", err)
	}
	if updated {
		t.Error("Deactivate() for non-owner updated = true, want false")
	}

	sess, err := repo.GetByClientID(ctx, "dev-a")
	if err != nil {
		t.Fatalf("GetByClientID() error = %v", err)
	}
	if !sess.Active {
		t.Error("session should still be active for its current owner")
	}
}

func TestDeactivateUnknownClient(t *testing.T) {
	repo := NewRepository(testDB(t, "usr-1"))

	updated, err := repo.Deactivate(context.Background(), "usr-1", "never-seen")
	if err != nil {
		t.Fatalf("Deactivate() error = %v", err)
	}
	if updated {
		t.Error("Deactivate() for unknown client updated = true, want false")
	}
}

func TestGetByClientIDNotFound(t *testing.T) {
	repo := NewRepository(testDB(t))

	_, err := repo.GetByClientID(context.Background(), "missing")
	if !errors.Is(err, ErrSessionNotFound) {
		t.Errorf("GetByClientID() error = %v, want ErrSessionNotFound", err)
	}
}

func TestListByUser(t *testing.T) {
	repo := NewRepository(testDB(t, "usr-1", "usr-2"))
	ctx := context.Background()

	for _, c := range []struct{ user, client string }{
		{"usr-1", "dev-a"},
		{"usr-1", "dev-b"},
		{"usr-2", "dev-c"},
	} {
		if _, err := repo.Upsert(ctx, c.user, c.client, ""); err != nil {
			t.Fatalf("Upsert(%s) error = %v", c.client, err)
		}
	}

	sessions, err := repo.ListByUser(ctx, "usr-1")
	if err != nil {
		t.Fatalf("ListByUser() error = %v", err)
	}
	if len(sessions) != 2 {
		t.Errorf("ListByUser() = %d sessions, want 2", len(sessions))
	}

	all, err := repo.List(ctx)
	if err != nil {
		t.Fatalf("List() error = %v", err)
	}
	if len(all) != 3 {
		t.Errorf("List() = %d sessions, want 3", len(all))
	}
}
