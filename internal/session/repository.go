package session

import (
	"context"
	"database/sql"
	"fmt"
	"strings"
	"time"

	"github.com/TristanIsrael/mqtt-tunnels/internal/tunnel"
)

// Session is one row of tunnel session history.
type Session struct {
	ID                  int64     `json:"id"`
	ClientSocketPath    string    `json:"client_socket_path"`
	SlotID              int       `json:"slot_id"`
	BrokerSocketPath    string    `json:"broker_socket_path"`
	StartedAt           time.Time `json:"started_at"`
	EndedAt             time.Time `json:"ended_at"`
	Reason              string    `json:"reason"`
	BytesClientToBroker uint64    `json:"bytes_client_to_broker"`
	BytesBrokerToClient uint64    `json:"bytes_broker_to_client"`
}

// Rejection is one client socket turned away at the capacity cap.
type Rejection struct {
	ID         int64     `json:"id"`
	SocketName string    `json:"socket_name"`
	RejectedAt time.Time `json:"rejected_at"`
}

// Filter controls which sessions ListSessions returns.
type Filter struct {
	SlotID int    // optional: filter by slot (slots start at 1, zero means any)
	Reason string // optional: filter by close reason
	Limit  int    // default 50, max 200
	Offset int    // pagination offset
}

// Repository defines the session history operations. The write half
// satisfies tunnel.Recorder and the discovery watcher's rejection sink.
type Repository interface {
	RecordSession(ctx context.Context, rec tunnel.SessionRecord) error
	RecordRejection(ctx context.Context, socketName string) error
	ListSessions(ctx context.Context, filter Filter) ([]Session, error)
}

// SQLiteRepository stores session history in SQLite.
type SQLiteRepository struct {
	db *sql.DB
}

// NewSQLiteRepository creates a new session history repository.
func NewSQLiteRepository(db *sql.DB) *SQLiteRepository {
	return &SQLiteRepository{db: db}
}

// RecordSession inserts one finished session.
func (r *SQLiteRepository) RecordSession(ctx context.Context, rec tunnel.SessionRecord) error {
	_, err := r.db.ExecContext(ctx,
		`INSERT INTO tunnel_sessions
		 (client_socket_path, slot_id, broker_socket_path, started_at, ended_at, reason,
		  bytes_client_to_broker, bytes_broker_to_client)
		 VALUES (?, ?, ?, ?, ?, ?, ?, ?)`,
		rec.ClientSocketPath,
		rec.SlotID,
		rec.BrokerSocketPath,
		rec.StartedAt.UTC().Format(time.RFC3339),
		rec.EndedAt.UTC().Format(time.RFC3339),
		rec.Reason,
		rec.BytesClientToBroker,
		rec.BytesBrokerToClient,
	)
	if err != nil {
		return fmt.Errorf("inserting tunnel session: %w", err)
	}
	return nil
}

// RecordRejection inserts one capacity rejection.
func (r *SQLiteRepository) RecordRejection(ctx context.Context, socketName string) error {
	_, err := r.db.ExecContext(ctx,
		`INSERT INTO tunnel_rejections (socket_name, rejected_at) VALUES (?, ?)`,
		socketName,
		time.Now().UTC().Format(time.RFC3339),
	)
	if err != nil {
		return fmt.Errorf("inserting tunnel rejection: %w", err)
	}
	return nil
}

// ListSessions returns sessions matching the filter, most recent first.
func (r *SQLiteRepository) ListSessions(ctx context.Context, filter Filter) ([]Session, error) {
	if filter.Limit <= 0 {
		filter.Limit = 50
	}
	if filter.Limit > 200 { //nolint:mnd // max page size for history queries
		filter.Limit = 200
	}
	if filter.Offset < 0 {
		filter.Offset = 0
	}

	var conditions []string
	var args []any
	if filter.SlotID > 0 {
		conditions = append(conditions, "slot_id = ?")
		args = append(args, filter.SlotID)
	}
	if filter.Reason != "" {
		conditions = append(conditions, "reason = ?")
		args = append(args, filter.Reason)
	}

	query := `SELECT id, client_socket_path, slot_id, broker_socket_path,
	                 started_at, ended_at, reason,
	                 bytes_client_to_broker, bytes_broker_to_client
	          FROM tunnel_sessions`
	if len(conditions) > 0 {
		query += " WHERE " + strings.Join(conditions, " AND ")
	}
	query += " ORDER BY started_at DESC, id DESC LIMIT ? OFFSET ?"
	args = append(args, filter.Limit, filter.Offset)

	rows, err := r.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("querying tunnel sessions: %w", err)
	}
	defer rows.Close()

	var sessions []Session
	for rows.Next() {
		var s Session
		var startedAt, endedAt string
		if err := rows.Scan(
			&s.ID, &s.ClientSocketPath, &s.SlotID, &s.BrokerSocketPath,
			&startedAt, &endedAt, &s.Reason,
			&s.BytesClientToBroker, &s.BytesBrokerToClient,
		); err != nil {
			return nil, fmt.Errorf("scanning tunnel session: %w", err)
		}
		s.StartedAt, _ = time.Parse(time.RFC3339, startedAt) //nolint:errcheck // Format is controlled
		s.EndedAt, _ = time.Parse(time.RFC3339, endedAt)     //nolint:errcheck // Format is controlled
		sessions = append(sessions, s)
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterating tunnel sessions: %w", err)
	}
	return sessions, nil
}

// ListRejections returns capacity rejections, most recent first.
func (r *SQLiteRepository) ListRejections(ctx context.Context, limit int) ([]Rejection, error) {
	if limit <= 0 {
		limit = 50
	}

	rows, err := r.db.QueryContext(ctx,
		`SELECT id, socket_name, rejected_at
		 FROM tunnel_rejections
		 ORDER BY rejected_at DESC, id DESC LIMIT ?`,
		limit,
	)
	if err != nil {
		return nil, fmt.Errorf("querying tunnel rejections: %w", err)
	}
	defer rows.Close()

	var rejections []Rejection
	for rows.Next() {
		var rej Rejection
		var rejectedAt string
		if err := rows.Scan(&rej.ID, &rej.SocketName, &rejectedAt); err != nil {
			return nil, fmt.Errorf("scanning tunnel rejection: %w", err)
		}
		rej.RejectedAt, _ = time.Parse(time.RFC3339, rejectedAt) //nolint:errcheck // Format is controlled
		rejections = append(rejections, rej)
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterating tunnel rejections: %w", err)
	}
	return rejections, nil
}
