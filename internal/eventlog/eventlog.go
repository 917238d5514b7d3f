// Package eventlog implements the append-only, crash-safe timeline of
// every observable action (spec.md §4.2). It is the authoritative record:
// metrics, replay, and failure analysis are all computed from it, while
// the relational Event rows in the state store are a cached view written
// through on the same logical step.
package eventlog

import (
	"bufio"
	"encoding/json"
	"fmt"
	"os"
	"sync"
	"time"

	"github.com/webrlabs/arcadiaforge/internal/types"
)

// record is the on-disk shape of one line in .events.jsonl.
type record struct {
	EventID   int64          `json:"event_id"`
	SessionID int64          `json:"session_id"`
	Timestamp time.Time      `json:"ts"`
	Type      types.EventType `json:"type"`
	Payload   map[string]any `json:"payload"`
}

// Log is an append-only JSONL sink. Append is the single-consumer writer
// the rest of the core funnels through; it returns only after the record
// is durable on disk (open-append-write-flush-sync).
type Log struct {
	path string

	mu     sync.Mutex
	nextID int64
}

// Open opens (creating if necessary) the event log at path and primes the
// next event id by scanning existing well-formed records.
func Open(path string) (*Log, error) {
	if err := ensureFile(path); err != nil {
		return nil, err
	}
	l := &Log{path: path}
	maxID, err := l.scanMaxID()
	if err != nil {
		return nil, err
	}
	l.nextID = maxID + 1
	return l, nil
}

func ensureFile(path string) error {
	f, err := os.OpenFile(path, os.O_CREATE|os.O_APPEND|os.O_WRONLY, 0644) // nolint:gosec // log is project-local and not secret
	if err != nil {
		return fmt.Errorf("create event log: %w", err)
	}
	return f.Close()
}

// scanMaxID reads the file once to find the highest event id already
// present, discarding any partially-written trailing record (recovery
// semantics from spec.md §4.2).
func (l *Log) scanMaxID() (int64, error) {
	f, err := os.Open(l.path)
	if err != nil {
		return 0, fmt.Errorf("open event log: %w", err)
	}
	defer f.Close()

	var maxID int64
	scanner := bufio.NewScanner(f)
	scanner.Buffer(make([]byte, 64*1024), 16*1024*1024)
	for scanner.Scan() {
		line := scanner.Bytes()
		if len(line) == 0 {
			continue
		}
		var r record
		if err := json.Unmarshal(line, &r); err != nil {
			// Malformed trailing record from a mid-write crash: skip it,
			// per spec.md's "partially written final record is discarded
			// on recovery" failure semantics.
			continue
		}
		if r.EventID > maxID {
			maxID = r.EventID
		}
	}
	return maxID, scanner.Err()
}

// Append durably writes one event and returns it with its assigned id.
// It writes only the JSONL file; the State Store's cached Event row
// (sqlite Store.SaveEvent) is a separate write the caller makes after
// this returns, and the two are not wrapped in one transaction.
func (l *Log) Append(sessionID int64, typ types.EventType, payload map[string]any) (types.Event, error) {
	l.mu.Lock()
	defer l.mu.Unlock()

	ev := types.Event{
		EventID:   l.nextID,
		SessionID: sessionID,
		Timestamp: time.Now().UTC(),
		Type:      typ,
		Payload:   payload,
	}

	f, err := os.OpenFile(l.path, os.O_APPEND|os.O_WRONLY, 0644)
	if err != nil {
		return types.Event{}, fmt.Errorf("open event log for append: %w", err)
	}
	defer f.Close()

	rec := record{
		EventID:   ev.EventID,
		SessionID: ev.SessionID,
		Timestamp: ev.Timestamp,
		Type:      ev.Type,
		Payload:   ev.Payload,
	}
	buf, err := json.Marshal(rec)
	if err != nil {
		return types.Event{}, fmt.Errorf("marshal event: %w", err)
	}
	buf = append(buf, '\n')

	if _, err := f.Write(buf); err != nil {
		return types.Event{}, fmt.Errorf("write event: %w", err)
	}
	if err := f.Sync(); err != nil {
		return types.Event{}, fmt.Errorf("fsync event log: %w", err)
	}

	l.nextID++
	return ev, nil
}

// Iter returns every well-formed event, optionally filtered to one
// session (sessionID == 0 means all sessions).
func (l *Log) Iter(sessionID int64) ([]types.Event, error) {
	f, err := os.Open(l.path)
	if err != nil {
		return nil, fmt.Errorf("open event log: %w", err)
	}
	defer f.Close()

	var out []types.Event
	scanner := bufio.NewScanner(f)
	scanner.Buffer(make([]byte, 64*1024), 16*1024*1024)
	for scanner.Scan() {
		line := scanner.Bytes()
		if len(line) == 0 {
			continue
		}
		var r record
		if err := json.Unmarshal(line, &r); err != nil {
			continue // discard malformed trailing record
		}
		if sessionID != 0 && r.SessionID != sessionID {
			continue
		}
		out = append(out, types.Event{
			EventID:   r.EventID,
			SessionID: r.SessionID,
			Timestamp: r.Timestamp,
			Type:      r.Type,
			Payload:   r.Payload,
		})
	}
	return out, scanner.Err()
}

// ReconstructSession returns the ordered list of events for one session,
// identical in shape to what a live run would have produced.
func (l *Log) ReconstructSession(sessionID int64) ([]types.Event, error) {
	return l.Iter(sessionID)
}

// RunMetrics summarizes token/tool-call volume for one session, derived
// purely from the event log.
type RunMetrics struct {
	SessionID      int64
	ToolCalls      int
	ToolErrors     int
	ToolBlocked    int
	InputTokens    int64
	OutputTokens   int64
}

// Metrics computes RunMetrics for a session by scanning TOOL_CALL /
// TOOL_RESULT / TOOL_ERROR / TOOL_BLOCKED payloads.
func (l *Log) Metrics(sessionID int64) (RunMetrics, error) {
	events, err := l.Iter(sessionID)
	if err != nil {
		return RunMetrics{}, err
	}
	m := RunMetrics{SessionID: sessionID}
	for _, e := range events {
		switch e.Type {
		case types.EventToolCall:
			m.ToolCalls++
			if v, ok := e.Payload["input_tokens"].(float64); ok {
				m.InputTokens += int64(v)
			}
		case types.EventToolResult:
			if v, ok := e.Payload["output_tokens"].(float64); ok {
				m.OutputTokens += int64(v)
			}
		case types.EventToolError:
			m.ToolErrors++
		case types.EventToolBlocked:
			m.ToolBlocked++
		}
	}
	return m, nil
}

// ContextSnapshot is the best-effort session state ContextAt derives as of
// a timestamp by folding every event up to it. It is intentionally narrow:
// it reconstructs only what the Session Supervisor needs to resume
// (current feature under discussion, last checkpoint observed).
type ContextSnapshot struct {
	CurrentFeature   int
	LastCheckpointID int64
}

// ContextAt walks the session's events in order and returns the state as
// of the most recent event not after ts.
func (l *Log) ContextAt(sessionID int64, ts time.Time) (ContextSnapshot, error) {
	events, err := l.Iter(sessionID)
	if err != nil {
		return ContextSnapshot{}, err
	}
	var snap ContextSnapshot
	for _, e := range events {
		if e.Timestamp.After(ts) {
			break
		}
		switch e.Type {
		case types.EventToolCall:
			if v, ok := e.Payload["feature_index"].(float64); ok {
				snap.CurrentFeature = int(v)
			}
		case types.EventCheckpoint:
			if v, ok := e.Payload["checkpoint_id"].(float64); ok {
				snap.LastCheckpointID = int64(v)
			}
		}
	}
	return snap, nil
}
