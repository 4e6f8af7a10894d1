// Package audit persists tool call and result events to SQLite so a
// session's tool activity can be inspected after the fact.
package audit

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"time"

	_ "modernc.org/sqlite"

	"github.com/haasonsaas/axon/pkg/models"
)

const schema = `
CREATE TABLE IF NOT EXISTS tool_events (
	id INTEGER PRIMARY KEY AUTOINCREMENT,
	session_id TEXT NOT NULL,
	tool_call_id TEXT NOT NULL,
	tool_name TEXT NOT NULL,
	event_type TEXT NOT NULL,
	payload TEXT NOT NULL DEFAULT '',
	success INTEGER,
	created_at TEXT NOT NULL
);
CREATE INDEX IF NOT EXISTS idx_tool_events_session ON tool_events(session_id, id);
`

// Event is one recorded tool call or result.
type Event struct {
	ID         int64
	SessionID  string
	ToolCallID string
	ToolName   string
	EventType  string
	Payload    string
	Success    *bool
	CreatedAt  time.Time
}

// Store writes tool events to a SQLite database.
type Store struct {
	db *sql.DB
}

// Open opens (creating if needed) the audit database at path.
func Open(path string) (*Store, error) {
	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, fmt.Errorf("open audit db: %w", err)
	}
	if _, err := db.Exec(schema); err != nil {
		db.Close()
		return nil, fmt.Errorf("create audit schema: %w", err)
	}
	return &Store{db: db}, nil
}

// Close releases the database handle.
func (s *Store) Close() error {
	return s.db.Close()
}

// AddToolCall records a tool invocation request.
func (s *Store) AddToolCall(ctx context.Context, sessionID string, call models.ToolCall) error {
	_, err := s.db.ExecContext(ctx, `
		INSERT INTO tool_events (session_id, tool_call_id, tool_name, event_type, payload, created_at)
		VALUES (?, ?, ?, 'call', ?, ?)`,
		sessionID, call.ID, call.Name, string(call.Input), time.Now().UTC().Format(time.RFC3339Nano))
	if err != nil {
		return fmt.Errorf("insert tool call: %w", err)
	}
	return nil
}

// AddToolResult records the outcome of a tool invocation.
func (s *Store) AddToolResult(ctx context.Context, sessionID string, call models.ToolCall, result *models.ToolResult) error {
	payload, err := json.Marshal(result)
	if err != nil {
		return fmt.Errorf("encode tool result: %w", err)
	}
	success := 0
	if result != nil && result.Success {
		success = 1
	}
	_, err = s.db.ExecContext(ctx, `
		INSERT INTO tool_events (session_id, tool_call_id, tool_name, event_type, payload, success, created_at)
		VALUES (?, ?, ?, 'result', ?, ?, ?)`,
		sessionID, call.ID, call.Name, string(payload), success, time.Now().UTC().Format(time.RFC3339Nano))
	if err != nil {
		return fmt.Errorf("insert tool result: %w", err)
	}
	return nil
}

// ListEvents returns a session's tool events in insertion order.
func (s *Store) ListEvents(ctx context.Context, sessionID string) ([]Event, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT id, session_id, tool_call_id, tool_name, event_type, payload, success, created_at
		FROM tool_events WHERE session_id = ? ORDER BY id`,
		sessionID)
	if err != nil {
		return nil, fmt.Errorf("query tool events: %w", err)
	}
	defer rows.Close()

	var events []Event
	for rows.Next() {
		var ev Event
		var success sql.NullInt64
		var createdAt string
		if err := rows.Scan(&ev.ID, &ev.SessionID, &ev.ToolCallID, &ev.ToolName,
			&ev.EventType, &ev.Payload, &success, &createdAt); err != nil {
			return nil, fmt.Errorf("scan tool event: %w", err)
		}
		if success.Valid {
			v := success.Int64 == 1
			ev.Success = &v
		}
		if ts, err := time.Parse(time.RFC3339Nano, createdAt); err == nil {
			ev.CreatedAt = ts
		}
		events = append(events, ev)
	}
	return events, rows.Err()
}
