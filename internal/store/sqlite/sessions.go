package sqlite

import (
	"database/sql"
	"errors"
	"fmt"

	"github.com/webrlabs/arcadiaforge/internal/types"
)

// CreateSession inserts a new Session row and returns its assigned id.
func (s *Store) CreateSession(sess types.Session) (int64, error) {
	res, err := s.db.Exec(
		`INSERT INTO sessions (start_time, end_time, status, summary) VALUES (?, ?, ?, ?)`,
		sess.StartTime, sess.EndTime, string(sess.Status), sess.Summary,
	)
	if err != nil {
		return 0, fmt.Errorf("create session: %w", err)
	}
	return res.LastInsertId()
}

// UpdateSession overwrites an existing Session row by id.
func (s *Store) UpdateSession(sess types.Session) error {
	_, err := s.db.Exec(
		`UPDATE sessions SET start_time = ?, end_time = ?, status = ?, summary = ? WHERE id = ?`,
		sess.StartTime, sess.EndTime, string(sess.Status), sess.Summary, sess.ID,
	)
	if err != nil {
		return fmt.Errorf("update session %d: %w", sess.ID, err)
	}
	return nil
}

// LatestSession returns the most recently started Session row, if any.
func (s *Store) LatestSession() (types.Session, bool, error) {
	row := s.db.QueryRow(`SELECT id, start_time, end_time, status, summary FROM sessions ORDER BY start_time DESC LIMIT 1`)
	var sess types.Session
	var status string
	if err := row.Scan(&sess.ID, &sess.StartTime, &sess.EndTime, &status, &sess.Summary); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return types.Session{}, false, nil
		}
		return types.Session{}, false, fmt.Errorf("latest session: %w", err)
	}
	sess.Status = types.SessionStatus(status)
	return sess, true, nil
}

// SaveEvent writes the cached relational view of one Event Log row
// (internal/eventlog.Log remains authoritative; this table exists so
// the store can answer event queries without replaying the JSONL
// file). Callers write through on the same logical step as the append
// to the log, matching the event log's own documented invariant.
func (s *Store) SaveEvent(event types.Event) error {
	payload, err := marshalJSON(event.Payload)
	if err != nil {
		return fmt.Errorf("marshal event payload: %w", err)
	}
	_, err = s.db.Exec(
		`INSERT OR REPLACE INTO events (event_id, session_id, timestamp, type, payload) VALUES (?, ?, ?, ?, ?)`,
		event.EventID, event.SessionID, event.Timestamp, string(event.Type), payload,
	)
	if err != nil {
		return fmt.Errorf("save event %d: %w", event.EventID, err)
	}
	return nil
}

// Events returns the cached rows for one session in event-id order. 0
// means every session, matching internal/eventlog.Log.Iter's convention.
func (s *Store) Events(sessionID int64) ([]types.Event, error) {
	query := `SELECT event_id, session_id, timestamp, type, payload FROM events`
	args := []any{}
	if sessionID != 0 {
		query += ` WHERE session_id = ?`
		args = append(args, sessionID)
	}
	query += ` ORDER BY event_id ASC`

	rows, err := s.db.Query(query, args...)
	if err != nil {
		return nil, fmt.Errorf("query events: %w", err)
	}
	defer rows.Close()

	var out []types.Event
	for rows.Next() {
		var event types.Event
		var typ, payload string
		if err := rows.Scan(&event.EventID, &event.SessionID, &event.Timestamp, &typ, &payload); err != nil {
			return nil, fmt.Errorf("scan event: %w", err)
		}
		event.Type = types.EventType(typ)
		if err := unmarshalJSONInto(payload, &event.Payload); err != nil {
			return nil, fmt.Errorf("unmarshal event %d payload: %w", event.EventID, err)
		}
		out = append(out, event)
	}
	return out, rows.Err()
}
