package sqlite

import (
	"database/sql"
	"errors"
	"fmt"

	"github.com/webrlabs/arcadiaforge/internal/types"
)

// NextCheckpointSequence returns the next sequence number for a session
// and advances the counter, so two checkpoints for the same session
// never share a sequence even across process restarts.
func (s *Store) NextCheckpointSequence(sessionID int64) (int, error) {
	tx, err := s.db.Begin()
	if err != nil {
		return 0, fmt.Errorf("begin next checkpoint sequence: %w", err)
	}
	defer tx.Rollback()

	var next int
	row := tx.QueryRow(`SELECT next_sequence FROM checkpoint_sequences WHERE session_id = ?`, sessionID)
	switch err := row.Scan(&next); {
	case errors.Is(err, sql.ErrNoRows):
		next = 0
		if _, err := tx.Exec(`INSERT INTO checkpoint_sequences (session_id, next_sequence) VALUES (?, 1)`, sessionID); err != nil {
			return 0, fmt.Errorf("seed checkpoint sequence: %w", err)
		}
	case err != nil:
		return 0, fmt.Errorf("read checkpoint sequence: %w", err)
	default:
		if _, err := tx.Exec(`UPDATE checkpoint_sequences SET next_sequence = ? WHERE session_id = ?`, next+1, sessionID); err != nil {
			return 0, fmt.Errorf("advance checkpoint sequence: %w", err)
		}
	}

	if err := tx.Commit(); err != nil {
		return 0, fmt.Errorf("commit checkpoint sequence: %w", err)
	}
	return next, nil
}

// SaveCheckpoint inserts a new Checkpoint row and returns its id.
func (s *Store) SaveCheckpoint(cp types.Checkpoint) (int64, error) {
	snapshot, err := marshalJSON(intBoolMapToStringKeys(cp.FeatureStatusSnapshot))
	if err != nil {
		return 0, err
	}
	pendingWork, err := marshalJSON(cp.PendingWork)
	if err != nil {
		return 0, err
	}

	res, err := s.db.Exec(`
		INSERT INTO checkpoints (
			session_id, timestamp, trigger_type, vcs_commit_hash,
			feature_status_snapshot, pending_work, notes, sequence
		) VALUES (?, ?, ?, ?, ?, ?, ?, ?)
	`,
		cp.SessionID, cp.Timestamp, string(cp.Trigger), cp.VCSCommitHash,
		snapshot, pendingWork, cp.Notes, cp.Sequence,
	)
	if err != nil {
		return 0, fmt.Errorf("save checkpoint: %w", err)
	}
	return res.LastInsertId()
}

// GetCheckpoint looks up a Checkpoint by id.
func (s *Store) GetCheckpoint(id int64) (types.Checkpoint, bool, error) {
	row := s.db.QueryRow(`
		SELECT id, session_id, timestamp, trigger_type, vcs_commit_hash,
		       feature_status_snapshot, pending_work, notes, sequence
		FROM checkpoints WHERE id = ?
	`, id)
	return scanCheckpoint(row)
}

// FindCheckpoint looks up a Checkpoint by the (session, trigger,
// sequence) triple RollbackTo resolves a human-named target against.
func (s *Store) FindCheckpoint(sessionID int64, trigger types.CheckpointTrigger, sequence int) (types.Checkpoint, bool, error) {
	row := s.db.QueryRow(`
		SELECT id, session_id, timestamp, trigger_type, vcs_commit_hash,
		       feature_status_snapshot, pending_work, notes, sequence
		FROM checkpoints WHERE session_id = ? AND trigger_type = ? AND sequence = ?
	`, sessionID, string(trigger), sequence)
	return scanCheckpoint(row)
}

// ListCheckpoints returns up to limit checkpoints for a session, newest
// first, optionally filtered by trigger. trigger == "" means any trigger,
// limit <= 0 means unbounded.
func (s *Store) ListCheckpoints(sessionID int64, trigger types.CheckpointTrigger, limit int) ([]types.Checkpoint, error) {
	query := `
		SELECT id, session_id, timestamp, trigger_type, vcs_commit_hash,
		       feature_status_snapshot, pending_work, notes, sequence
		FROM checkpoints WHERE session_id = ?
	`
	args := []any{sessionID}
	if trigger != "" {
		query += ` AND trigger_type = ?`
		args = append(args, string(trigger))
	}
	query += ` ORDER BY sequence DESC`
	if limit > 0 {
		query += ` LIMIT ?`
		args = append(args, limit)
	}

	rows, err := s.db.Query(query, args...)
	if err != nil {
		return nil, fmt.Errorf("list checkpoints: %w", err)
	}
	defer rows.Close()

	var out []types.Checkpoint
	for rows.Next() {
		cp, err := scanCheckpointRow(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, cp)
	}
	return out, rows.Err()
}

type rowScanner interface {
	Scan(dest ...any) error
}

func scanCheckpoint(row *sql.Row) (types.Checkpoint, bool, error) {
	cp, err := scanCheckpointRow(row)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return types.Checkpoint{}, false, nil
		}
		return types.Checkpoint{}, false, err
	}
	return cp, true, nil
}

func scanCheckpointRow(row rowScanner) (types.Checkpoint, error) {
	var cp types.Checkpoint
	var trigger, snapshot, pendingWork string
	if err := row.Scan(
		&cp.ID, &cp.SessionID, &cp.Timestamp, &trigger, &cp.VCSCommitHash,
		&snapshot, &pendingWork, &cp.Notes, &cp.Sequence,
	); err != nil {
		return types.Checkpoint{}, fmt.Errorf("scan checkpoint: %w", err)
	}
	cp.Trigger = types.CheckpointTrigger(trigger)

	var snapshotByString map[string]bool
	if err := unmarshalJSONInto(snapshot, &snapshotByString); err != nil {
		return types.Checkpoint{}, err
	}
	cp.FeatureStatusSnapshot = stringKeysToIntBoolMap(snapshotByString)

	if err := unmarshalJSONInto(pendingWork, &cp.PendingWork); err != nil {
		return types.Checkpoint{}, err
	}
	return cp, nil
}

// intBoolMapToStringKeys converts a map[int]bool to map[string]bool so it
// round-trips through JSON object keys, which must be strings.
func intBoolMapToStringKeys(m map[int]bool) map[string]bool {
	out := make(map[string]bool, len(m))
	for k, v := range m {
		out[fmt.Sprintf("%d", k)] = v
	}
	return out
}

func stringKeysToIntBoolMap(m map[string]bool) map[int]bool {
	out := make(map[int]bool, len(m))
	for k, v := range m {
		var idx int
		if _, err := fmt.Sscanf(k, "%d", &idx); err == nil {
			out[idx] = v
		}
	}
	return out
}
