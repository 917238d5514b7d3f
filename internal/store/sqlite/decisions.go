package sqlite

import (
	"database/sql"
	"fmt"

	"github.com/webrlabs/arcadiaforge/internal/types"
)

// SaveDecision inserts a new Decision row and returns its id.
func (s *Store) SaveDecision(d types.Decision) (int64, error) {
	alternatives, err := marshalJSON(d.Alternatives)
	if err != nil {
		return 0, err
	}
	relatedFeatures, err := marshalJSON(d.RelatedFeatures)
	if err != nil {
		return 0, err
	}

	res, err := s.db.Exec(`
		INSERT INTO decisions (
			session_id, type, context, choice, alternatives, rationale,
			confidence, related_features, outcome, outcome_success, timestamp
		) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
	`,
		d.SessionID, d.Type, d.Context, d.Choice, alternatives, d.Rationale,
		d.Confidence, relatedFeatures, d.Outcome, nullableBool(d.OutcomeSuccess), d.Timestamp,
	)
	if err != nil {
		return 0, fmt.Errorf("save decision: %w", err)
	}
	return res.LastInsertId()
}

// ListDecisions returns the most recently logged decisions, newest
// first, limited to limit rows (limit <= 0 means unbounded).
func (s *Store) ListDecisions(limit int) ([]types.Decision, error) {
	query := `
		SELECT id, session_id, type, context, choice, alternatives, rationale,
		       confidence, related_features, outcome, outcome_success, timestamp
		FROM decisions ORDER BY timestamp DESC
	`
	args := []any{}
	if limit > 0 {
		query += ` LIMIT ?`
		args = append(args, limit)
	}

	rows, err := s.db.Query(query, args...)
	if err != nil {
		return nil, fmt.Errorf("list decisions: %w", err)
	}
	defer rows.Close()

	var out []types.Decision
	for rows.Next() {
		var d types.Decision
		var alternatives, relatedFeatures string
		var outcomeSuccess sql.NullBool
		if err := rows.Scan(
			&d.ID, &d.SessionID, &d.Type, &d.Context, &d.Choice, &alternatives, &d.Rationale,
			&d.Confidence, &relatedFeatures, &d.Outcome, &outcomeSuccess, &d.Timestamp,
		); err != nil {
			return nil, fmt.Errorf("scan decision: %w", err)
		}
		if outcomeSuccess.Valid {
			v := outcomeSuccess.Bool
			d.OutcomeSuccess = &v
		}
		if err := unmarshalJSONInto(alternatives, &d.Alternatives); err != nil {
			return nil, err
		}
		if err := unmarshalJSONInto(relatedFeatures, &d.RelatedFeatures); err != nil {
			return nil, err
		}
		out = append(out, d)
	}
	return out, rows.Err()
}

func nullableBool(b *bool) any {
	if b == nil {
		return nil
	}
	return *b
}

// SaveHypothesis inserts a new Hypothesis row and returns its id.
func (s *Store) SaveHypothesis(h types.Hypothesis) (int64, error) {
	evidenceFor, err := marshalJSON(h.EvidenceFor)
	if err != nil {
		return 0, err
	}
	evidenceAgainst, err := marshalJSON(h.EvidenceAgainst)
	if err != nil {
		return 0, err
	}
	relatedFeatures, err := marshalJSON(h.RelatedFeatures)
	if err != nil {
		return 0, err
	}

	res, err := s.db.Exec(`
		INSERT INTO hypotheses (
			created_session, observation, hypothesis_text, confidence,
			evidence_for, evidence_against, status, related_features, timestamp
		) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)
	`,
		h.CreatedSession, h.Observation, h.HypothesisText, h.Confidence,
		evidenceFor, evidenceAgainst, string(h.Status), relatedFeatures, h.Timestamp,
	)
	if err != nil {
		return 0, fmt.Errorf("save hypothesis: %w", err)
	}
	return res.LastInsertId()
}

// ListHypotheses returns every Hypothesis with the given status, newest
// first.
func (s *Store) ListHypotheses(status types.HypothesisStatus) ([]types.Hypothesis, error) {
	rows, err := s.db.Query(`
		SELECT id, created_session, observation, hypothesis_text, confidence,
		       evidence_for, evidence_against, status, related_features, timestamp
		FROM hypotheses WHERE status = ? ORDER BY timestamp DESC
	`, string(status))
	if err != nil {
		return nil, fmt.Errorf("list hypotheses: %w", err)
	}
	defer rows.Close()

	var out []types.Hypothesis
	for rows.Next() {
		var h types.Hypothesis
		var statusStr, evidenceFor, evidenceAgainst, relatedFeatures string
		if err := rows.Scan(
			&h.ID, &h.CreatedSession, &h.Observation, &h.HypothesisText, &h.Confidence,
			&evidenceFor, &evidenceAgainst, &statusStr, &relatedFeatures, &h.Timestamp,
		); err != nil {
			return nil, fmt.Errorf("scan hypothesis: %w", err)
		}
		h.Status = types.HypothesisStatus(statusStr)
		if err := unmarshalJSONInto(evidenceFor, &h.EvidenceFor); err != nil {
			return nil, err
		}
		if err := unmarshalJSONInto(evidenceAgainst, &h.EvidenceAgainst); err != nil {
			return nil, err
		}
		if err := unmarshalJSONInto(relatedFeatures, &h.RelatedFeatures); err != nil {
			return nil, err
		}
		out = append(out, h)
	}
	return out, rows.Err()
}

// UpdateHypothesisStatus sets a Hypothesis's status by id, reporting
// whether a row matched.
func (s *Store) UpdateHypothesisStatus(id int64, status types.HypothesisStatus) (bool, error) {
	res, err := s.db.Exec(`UPDATE hypotheses SET status = ? WHERE id = ?`, string(status), id)
	if err != nil {
		return false, fmt.Errorf("update hypothesis %d status: %w", id, err)
	}
	affected, err := res.RowsAffected()
	if err != nil {
		return false, fmt.Errorf("update hypothesis %d status: %w", id, err)
	}
	return affected > 0, nil
}
