package sqlite

import (
	"database/sql"
	"errors"
	"fmt"

	"github.com/webrlabs/arcadiaforge/internal/memory"
	"github.com/webrlabs/arcadiaforge/internal/types"
)

// SaveHotState persists the single in-flight Hot memory row for a
// session, overwriting whatever was there before.
func (s *Store) SaveHotState(h memory.HotState) error {
	raw, err := marshalJSON(h)
	if err != nil {
		return fmt.Errorf("marshal hot state: %w", err)
	}
	_, err = s.db.Exec(`
		INSERT INTO hot_state (session_id, state) VALUES (?, ?)
		ON CONFLICT(session_id) DO UPDATE SET state = excluded.state
	`, h.SessionID, raw)
	if err != nil {
		return fmt.Errorf("save hot state: %w", err)
	}
	return nil
}

// LoadHotState reads back a session's Hot memory, if any. JSON cannot
// carry HotState's unexported sequence counters, so they're rebuilt from
// the already-issued Error/Decision ids before returning.
func (s *Store) LoadHotState(sessionID int64) (memory.HotState, bool, error) {
	row := s.db.QueryRow(`SELECT state FROM hot_state WHERE session_id = ?`, sessionID)
	var raw string
	if err := row.Scan(&raw); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return memory.HotState{}, false, nil
		}
		return memory.HotState{}, false, fmt.Errorf("load hot state: %w", err)
	}

	var h memory.HotState
	if err := unmarshalJSONInto(raw, &h); err != nil {
		return memory.HotState{}, false, fmt.Errorf("unmarshal hot state: %w", err)
	}
	h.RebuildSequenceCounters()
	return h, true, nil
}

// ClearHotState removes a session's Hot memory row, called once it has
// been synthesized into a Warm summary at SESSION_END.
func (s *Store) ClearHotState(sessionID int64) error {
	_, err := s.db.Exec(`DELETE FROM hot_state WHERE session_id = ?`, sessionID)
	if err != nil {
		return fmt.Errorf("clear hot state: %w", err)
	}
	return nil
}

// SaveWarmSummary inserts or replaces one session's Warm summary.
func (s *Store) SaveWarmSummary(w types.WarmSummary) error {
	accomplished, err := marshalJSON(w.Accomplished)
	if err != nil {
		return err
	}
	testsCompleted, err := marshalJSON(w.TestsCompleted)
	if err != nil {
		return err
	}
	nextSteps, err := marshalJSON(w.NextSteps)
	if err != nil {
		return err
	}
	issuesFound, err := marshalJSON(w.IssuesFound)
	if err != nil {
		return err
	}
	issuesFixed, err := marshalJSON(w.IssuesFixed)
	if err != nil {
		return err
	}

	_, err = s.db.Exec(`
		INSERT INTO warm_summaries (
			session_id, accomplished, tests_completed, status_string, next_steps,
			issues_found, issues_fixed, notes, created_at
		) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT(session_id) DO UPDATE SET
			accomplished = excluded.accomplished,
			tests_completed = excluded.tests_completed,
			status_string = excluded.status_string,
			next_steps = excluded.next_steps,
			issues_found = excluded.issues_found,
			issues_fixed = excluded.issues_fixed,
			notes = excluded.notes,
			created_at = excluded.created_at
	`,
		w.SessionID, accomplished, testsCompleted, w.StatusString, nextSteps,
		issuesFound, issuesFixed, w.Notes, w.CreatedAt,
	)
	if err != nil {
		return fmt.Errorf("save warm summary: %w", err)
	}
	return nil
}

// ListWarmSummaries returns every Warm summary, newest first. The Warm
// window's bound (spec default 5) is enforced by memory.Manager, not
// the store.
func (s *Store) ListWarmSummaries() ([]types.WarmSummary, error) {
	rows, err := s.db.Query(`
		SELECT session_id, accomplished, tests_completed, status_string, next_steps,
		       issues_found, issues_fixed, notes, created_at
		FROM warm_summaries ORDER BY created_at DESC
	`)
	if err != nil {
		return nil, fmt.Errorf("list warm summaries: %w", err)
	}
	defer rows.Close()

	var out []types.WarmSummary
	for rows.Next() {
		var w types.WarmSummary
		var accomplished, testsCompleted, nextSteps, issuesFound, issuesFixed string
		if err := rows.Scan(
			&w.SessionID, &accomplished, &testsCompleted, &w.StatusString, &nextSteps,
			&issuesFound, &issuesFixed, &w.Notes, &w.CreatedAt,
		); err != nil {
			return nil, fmt.Errorf("scan warm summary: %w", err)
		}
		for _, pair := range []struct {
			raw string
			out *[]string
		}{
			{accomplished, &w.Accomplished},
			{testsCompleted, &w.TestsCompleted},
			{nextSteps, &w.NextSteps},
			{issuesFound, &w.IssuesFound},
			{issuesFixed, &w.IssuesFixed},
		} {
			if err := unmarshalJSONInto(pair.raw, pair.out); err != nil {
				return nil, err
			}
		}
		out = append(out, w)
	}
	return out, rows.Err()
}

// DeleteWarmSummary removes a session's Warm summary once it has been
// demoted into Cold memory.
func (s *Store) DeleteWarmSummary(sessionID int64) error {
	_, err := s.db.Exec(`DELETE FROM warm_summaries WHERE session_id = ?`, sessionID)
	if err != nil {
		return fmt.Errorf("delete warm summary: %w", err)
	}
	return nil
}

// SaveColdRecord appends a new Cold memory archive row.
func (s *Store) SaveColdRecord(r types.ColdRecord) error {
	keywords, err := marshalJSON(r.Keywords)
	if err != nil {
		return err
	}
	provenSolutions, err := marshalJSON(r.ProvenSolutions)
	if err != nil {
		return err
	}
	_, err = s.db.Exec(`
		INSERT INTO cold_records (session_id, keywords, distilled_text, proven_solutions, archived_at)
		VALUES (?, ?, ?, ?, ?)
	`, r.SessionID, keywords, r.DistilledText, provenSolutions, r.ArchivedAt)
	if err != nil {
		return fmt.Errorf("save cold record: %w", err)
	}
	return nil
}

// ListColdRecords returns the unbounded Cold memory archive, for
// memory.Manager.SearchKnowledge to scan by keyword match.
func (s *Store) ListColdRecords() ([]types.ColdRecord, error) {
	rows, err := s.db.Query(`
		SELECT id, session_id, keywords, distilled_text, proven_solutions, archived_at
		FROM cold_records ORDER BY archived_at DESC
	`)
	if err != nil {
		return nil, fmt.Errorf("list cold records: %w", err)
	}
	defer rows.Close()

	var out []types.ColdRecord
	for rows.Next() {
		var r types.ColdRecord
		var keywords, provenSolutions string
		if err := rows.Scan(&r.ID, &r.SessionID, &keywords, &r.DistilledText, &provenSolutions, &r.ArchivedAt); err != nil {
			return nil, fmt.Errorf("scan cold record: %w", err)
		}
		if err := unmarshalJSONInto(keywords, &r.Keywords); err != nil {
			return nil, err
		}
		if err := unmarshalJSONInto(provenSolutions, &r.ProvenSolutions); err != nil {
			return nil, err
		}
		out = append(out, r)
	}
	return out, rows.Err()
}
