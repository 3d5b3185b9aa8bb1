package session

import (
	"context"
	"path/filepath"
	"testing"
	"time"

	"github.com/TristanIsrael/mqtt-tunnels/internal/discovery"
	"github.com/TristanIsrael/mqtt-tunnels/internal/infrastructure/database"
	"github.com/TristanIsrael/mqtt-tunnels/internal/tunnel"
	_ "github.com/TristanIsrael/mqtt-tunnels/migrations" // real schema
)

func openTestRepo(t *testing.T) *SQLiteRepository {
	t.Helper()

	db, err := database.Open(database.Config{
		Path:        filepath.Join(t.TempDir(), "history.db"),
		WALMode:     true,
		BusyTimeout: 5,
	})
	if err != nil {
		t.Fatalf("opening test database: %v", err)
	}
	t.Cleanup(func() { db.Close() }) //nolint:errcheck // Test cleanup

	if err := db.Migrate(context.Background()); err != nil {
		t.Fatalf("migrating test database: %v", err)
	}
	return NewSQLiteRepository(db.DB)
}

func testRecord(slot int, reason string, started time.Time) tunnel.SessionRecord {
	return tunnel.SessionRecord{
		ClientSocketPath:    "/run/clients/alpha.sock",
		SlotID:              slot,
		BrokerSocketPath:    "/run/brokers/mosquitto_1.sock",
		StartedAt:           started,
		EndedAt:             started.Add(time.Minute),
		Reason:              reason,
		BytesClientToBroker: 128,
		BytesBrokerToClient: 256,
	}
}

func TestRecordAndListSessions(t *testing.T) {
	repo := openTestRepo(t)
	ctx := context.Background()

	base := time.Date(2026, 8, 15, 12, 0, 0, 0, time.UTC)
	if err := repo.RecordSession(ctx, testRecord(1, "peer_closed", base)); err != nil {
		t.Fatalf("RecordSession() error = %v", err)
	}
	if err := repo.RecordSession(ctx, testRecord(2, "io_error", base.Add(time.Hour))); err != nil {
		t.Fatalf("RecordSession() error = %v", err)
	}

	sessions, err := repo.ListSessions(ctx, Filter{})
	if err != nil {
		t.Fatalf("ListSessions() error = %v", err)
	}
	if len(sessions) != 2 {
		t.Fatalf("got %d sessions, want 2", len(sessions))
	}

	// Most recent first.
	if sessions[0].SlotID != 2 || sessions[1].SlotID != 1 {
		t.Fatalf("order = [%d %d], want [2 1]", sessions[0].SlotID, sessions[1].SlotID)
	}

	got := sessions[1]
	if got.Reason != "peer_closed" {
		t.Errorf("Reason = %q, want peer_closed", got.Reason)
	}
	if got.BytesClientToBroker != 128 || got.BytesBrokerToClient != 256 {
		t.Errorf("bytes = %d/%d, want 128/256", got.BytesClientToBroker, got.BytesBrokerToClient)
	}
	if !got.StartedAt.Equal(base) {
		t.Errorf("StartedAt = %v, want %v", got.StartedAt, base)
	}
	if !got.EndedAt.Equal(base.Add(time.Minute)) {
		t.Errorf("EndedAt = %v, want %v", got.EndedAt, base.Add(time.Minute))
	}
}

func TestListSessionsFilter(t *testing.T) {
	repo := openTestRepo(t)
	ctx := context.Background()

	base := time.Date(2026, 8, 15, 12, 0, 0, 0, time.UTC)
	for i := 1; i <= 3; i++ {
		reason := "peer_closed"
		if i == 2 {
			reason = "broker_unavailable"
		}
		if err := repo.RecordSession(ctx, testRecord(i, reason, base.Add(time.Duration(i)*time.Minute))); err != nil {
			t.Fatalf("RecordSession() error = %v", err)
		}
	}

	t.Run("by slot", func(t *testing.T) {
		sessions, err := repo.ListSessions(ctx, Filter{SlotID: 2})
		if err != nil {
			t.Fatalf("ListSessions() error = %v", err)
		}
		if len(sessions) != 1 || sessions[0].SlotID != 2 {
			t.Fatalf("got %+v, want one session for slot 2", sessions)
		}
	})

	t.Run("by reason", func(t *testing.T) {
		sessions, err := repo.ListSessions(ctx, Filter{Reason: "peer_closed"})
		if err != nil {
			t.Fatalf("ListSessions() error = %v", err)
		}
		if len(sessions) != 2 {
			t.Fatalf("got %d sessions, want 2", len(sessions))
		}
	})

	t.Run("limit and offset", func(t *testing.T) {
		sessions, err := repo.ListSessions(ctx, Filter{Limit: 1, Offset: 1})
		if err != nil {
			t.Fatalf("ListSessions() error = %v", err)
		}
		if len(sessions) != 1 || sessions[0].SlotID != 2 {
			t.Fatalf("got %+v, want the middle session", sessions)
		}
	})
}

func TestRecordAndListRejections(t *testing.T) {
	repo := openTestRepo(t)
	ctx := context.Background()

	if err := repo.RecordRejection(ctx, "overflow.sock"); err != nil {
		t.Fatalf("RecordRejection() error = %v", err)
	}

	rejections, err := repo.ListRejections(ctx, 10)
	if err != nil {
		t.Fatalf("ListRejections() error = %v", err)
	}
	if len(rejections) != 1 {
		t.Fatalf("got %d rejections, want 1", len(rejections))
	}
	if rejections[0].SocketName != "overflow.sock" {
		t.Errorf("SocketName = %q, want overflow.sock", rejections[0].SocketName)
	}
	if rejections[0].RejectedAt.IsZero() {
		t.Error("RejectedAt not set")
	}
}

// The repository must satisfy the interfaces the worker and watcher consume.
var (
	_ tunnel.Recorder             = (*SQLiteRepository)(nil)
	_ discovery.RejectionRecorder = (*SQLiteRepository)(nil)
	_ Repository                  = (*SQLiteRepository)(nil)
)
