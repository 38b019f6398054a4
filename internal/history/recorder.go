package history

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"

	"github.com/nerrad567/phd2-mqtt-bridge/internal/infrastructure/database"
)

const schema = `
CREATE TABLE IF NOT EXISTS sessions (
	id         TEXT PRIMARY KEY,
	started_at TIMESTAMP NOT NULL
);

CREATE TABLE IF NOT EXISTS events (
	id         INTEGER PRIMARY KEY AUTOINCREMENT,
	session_id TEXT NOT NULL REFERENCES sessions(id),
	at         TIMESTAMP NOT NULL,
	kind       TEXT NOT NULL,
	detail     TEXT NOT NULL DEFAULT ''
);

CREATE INDEX IF NOT EXISTS idx_events_session ON events(session_id, at);
`

// Event is one recorded session event.
type Event struct {
	ID        int64
	SessionID string
	At        time.Time
	Kind      string
	Detail    string
}

// Recorder appends bridge lifecycle events to the session log.
type Recorder struct {
	db        *database.DB
	sessionID string
}

// New creates the schema if needed and opens a new session.
//
// Parameters:
//   - ctx: Context for the schema and session inserts
//   - db: Open database handle; the recorder does not own it
//
// Returns:
//   - *Recorder: Recorder bound to a fresh session id
//   - error: If schema creation or the session insert fails
func New(ctx context.Context, db *database.DB) (*Recorder, error) {
	if _, err := db.ExecContext(ctx, schema); err != nil {
		return nil, fmt.Errorf("creating history schema: %w", err)
	}

	sessionID := uuid.NewString()
	_, err := db.ExecContext(ctx,
		"INSERT INTO sessions (id, started_at) VALUES (?, ?)",
		sessionID, time.Now().UTC(),
	)
	if err != nil {
		return nil, fmt.Errorf("starting session: %w", err)
	}

	return &Recorder{db: db, sessionID: sessionID}, nil
}

// SessionID returns this process run's session identifier.
func (r *Recorder) SessionID() string {
	return r.sessionID
}

// RecordEvent appends one event to the current session.
//
// Parameters:
//   - ctx: Context for the insert
//   - kind: Event kind (e.g. "phd2_connected", "guide_star_lost")
//   - detail: Optional free-form detail, may be empty
func (r *Recorder) RecordEvent(ctx context.Context, kind, detail string) error {
	_, err := r.db.ExecContext(ctx,
		"INSERT INTO events (session_id, at, kind, detail) VALUES (?, ?, ?, ?)",
		r.sessionID, time.Now().UTC(), kind, detail,
	)
	if err != nil {
		return fmt.Errorf("recording %s event: %w", kind, err)
	}
	return nil
}

// Events returns all events for a session, oldest first.
func (r *Recorder) Events(ctx context.Context, sessionID string) ([]Event, error) {
	rows, err := r.db.QueryContext(ctx,
		"SELECT id, session_id, at, kind, detail FROM events WHERE session_id = ? ORDER BY at, id",
		sessionID,
	)
	if err != nil {
		return nil, fmt.Errorf("querying events: %w", err)
	}
	defer rows.Close()

	var events []Event
	for rows.Next() {
		var e Event
		if err := rows.Scan(&e.ID, &e.SessionID, &e.At, &e.Kind, &e.Detail); err != nil {
			return nil, fmt.Errorf("scanning event: %w", err)
		}
		events = append(events, e)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterating events: %w", err)
	}
	return events, nil
}
