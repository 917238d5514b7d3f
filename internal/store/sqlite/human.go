package sqlite

import (
	"database/sql"
	"errors"
	"fmt"

	"github.com/webrlabs/arcadiaforge/internal/types"
)

// SaveInjectionPoint inserts a new Injection Point row and returns its id.
func (s *Store) SaveInjectionPoint(p types.InjectionPoint) (int64, error) {
	options, err := marshalJSON(p.Options)
	if err != nil {
		return 0, err
	}
	res, err := s.db.Exec(`
		INSERT INTO injection_points (
			session_id, type, context, options, recommendation, timeout_s,
			default_on_timeout, status, response, responded_by, created_at, responded_at
		) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
	`,
		p.SessionID, string(p.Type), p.Context, options, p.Recommendation, p.TimeoutSeconds,
		p.DefaultOnTimeout, string(p.Status), p.Response, p.RespondedBy, p.CreatedAt, p.RespondedAt,
	)
	if err != nil {
		return 0, fmt.Errorf("save injection point: %w", err)
	}
	return res.LastInsertId()
}

// GetInjectionPoint looks up an Injection Point by id.
func (s *Store) GetInjectionPoint(id int64) (types.InjectionPoint, bool, error) {
	row := s.db.QueryRow(`
		SELECT id, session_id, type, context, options, recommendation, timeout_s,
		       default_on_timeout, status, response, responded_by, created_at, responded_at
		FROM injection_points WHERE id = ?
	`, id)
	p, err := scanInjectionPoint(row)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return types.InjectionPoint{}, false, nil
		}
		return types.InjectionPoint{}, false, err
	}
	return p, true, nil
}

// UpdateInjectionPoint overwrites an existing Injection Point row,
// typically to resolve, time out, or cancel it.
func (s *Store) UpdateInjectionPoint(p types.InjectionPoint) error {
	options, err := marshalJSON(p.Options)
	if err != nil {
		return err
	}
	_, err = s.db.Exec(`
		UPDATE injection_points SET
			type = ?, context = ?, options = ?, recommendation = ?, timeout_s = ?,
			default_on_timeout = ?, status = ?, response = ?, responded_by = ?,
			responded_at = ?
		WHERE id = ?
	`,
		string(p.Type), p.Context, options, p.Recommendation, p.TimeoutSeconds,
		p.DefaultOnTimeout, string(p.Status), p.Response, p.RespondedBy,
		p.RespondedAt, p.ID,
	)
	if err != nil {
		return fmt.Errorf("update injection point %d: %w", p.ID, err)
	}
	return nil
}

// ListPendingInjectionPoints returns every Injection Point Channel.poll
// still needs to watch, oldest first.
func (s *Store) ListPendingInjectionPoints() ([]types.InjectionPoint, error) {
	rows, err := s.db.Query(`
		SELECT id, session_id, type, context, options, recommendation, timeout_s,
		       default_on_timeout, status, response, responded_by, created_at, responded_at
		FROM injection_points WHERE status = ? ORDER BY created_at ASC
	`, string(types.InjectionPending))
	if err != nil {
		return nil, fmt.Errorf("list pending injection points: %w", err)
	}
	defer rows.Close()

	var out []types.InjectionPoint
	for rows.Next() {
		p, err := scanInjectionPointRow(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, p)
	}
	return out, rows.Err()
}

func scanInjectionPoint(row *sql.Row) (types.InjectionPoint, error) {
	return scanInjectionPointRow(row)
}

func scanInjectionPointRow(row rowScanner) (types.InjectionPoint, error) {
	var p types.InjectionPoint
	var typ, status, options string
	if err := row.Scan(
		&p.ID, &p.SessionID, &typ, &p.Context, &options, &p.Recommendation, &p.TimeoutSeconds,
		&p.DefaultOnTimeout, &status, &p.Response, &p.RespondedBy, &p.CreatedAt, &p.RespondedAt,
	); err != nil {
		return types.InjectionPoint{}, fmt.Errorf("scan injection point: %w", err)
	}
	p.Type = types.InjectionType(typ)
	p.Status = types.InjectionStatus(status)
	if err := unmarshalJSONInto(options, &p.Options); err != nil {
		return types.InjectionPoint{}, err
	}
	return p, nil
}

// SaveIntervention records one resolved, non-default injection response.
func (s *Store) SaveIntervention(iv types.Intervention) (int64, error) {
	res, err := s.db.Exec(`
		INSERT INTO interventions (
			session_id, injection_point_id, context_signature,
			agent_recommendation, human_response, timestamp
		) VALUES (?, ?, ?, ?, ?, ?)
	`,
		iv.SessionID, iv.InjectionPointID, iv.ContextSignature,
		iv.AgentRecommendation, iv.HumanResponse, iv.Timestamp,
	)
	if err != nil {
		return 0, fmt.Errorf("save intervention: %w", err)
	}
	return res.LastInsertId()
}

// LoadInterventionPatterns returns every learned Intervention Pattern.
func (s *Store) LoadInterventionPatterns() ([]types.InterventionPattern, error) {
	rows, err := s.db.Query(`
		SELECT id, context_signature, learned_response, times_applied,
		       times_succeeded, confidence, auto_apply, min_confidence_for_auto
		FROM intervention_patterns
	`)
	if err != nil {
		return nil, fmt.Errorf("query intervention patterns: %w", err)
	}
	defer rows.Close()

	var out []types.InterventionPattern
	for rows.Next() {
		var p types.InterventionPattern
		var autoApply int
		if err := rows.Scan(
			&p.ID, &p.ContextSignature, &p.LearnedResponse, &p.TimesApplied,
			&p.TimesSucceeded, &p.Confidence, &autoApply, &p.MinConfidenceForAuto,
		); err != nil {
			return nil, fmt.Errorf("scan intervention pattern: %w", err)
		}
		p.AutoApply = autoApply != 0
		out = append(out, p)
	}
	return out, rows.Err()
}

// SaveInterventionPattern inserts or updates a learned pattern row, keyed
// by its context signature.
func (s *Store) SaveInterventionPattern(p types.InterventionPattern) (int64, error) {
	_, err := s.db.Exec(`
		INSERT INTO intervention_patterns (
			context_signature, learned_response, times_applied, times_succeeded,
			confidence, auto_apply, min_confidence_for_auto
		) VALUES (?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT(context_signature) DO UPDATE SET
			learned_response = excluded.learned_response,
			times_applied = excluded.times_applied,
			times_succeeded = excluded.times_succeeded,
			confidence = excluded.confidence,
			auto_apply = excluded.auto_apply,
			min_confidence_for_auto = excluded.min_confidence_for_auto
	`,
		p.ContextSignature, p.LearnedResponse, p.TimesApplied, p.TimesSucceeded,
		p.Confidence, boolToInt(p.AutoApply), p.MinConfidenceForAuto,
	)
	if err != nil {
		return 0, fmt.Errorf("save intervention pattern %s: %w", p.ContextSignature, err)
	}
	// last_insert_rowid() is unreliable across the upsert's insert/update
	// branches, so re-read the row by its natural key instead of trusting
	// sql.Result.
	row := s.db.QueryRow(`SELECT id FROM intervention_patterns WHERE context_signature = ?`, p.ContextSignature)
	var id int64
	if err := row.Scan(&id); err != nil {
		return 0, fmt.Errorf("resolve intervention pattern id: %w", err)
	}
	return id, nil
}

// LoadCustomEscalationRules returns operator-defined rules that override
// or extend the built-in table NewEscalator compiles in process memory.
func (s *Store) LoadCustomEscalationRules() ([]types.EscalationRule, error) {
	rows, err := s.db.Query(`
		SELECT id, condition_name, severity, injection_type, message_template,
		       suggested_actions, auto_pause, timeout_s, built_in
		FROM escalation_rules WHERE built_in = 0
	`)
	if err != nil {
		return nil, fmt.Errorf("query custom escalation rules: %w", err)
	}
	defer rows.Close()

	var out []types.EscalationRule
	for rows.Next() {
		var r types.EscalationRule
		var injectionType, actions string
		var autoPause, builtIn int
		if err := rows.Scan(
			&r.ID, &r.Condition, &r.Severity, &injectionType, &r.MessageTemplate,
			&actions, &autoPause, &r.TimeoutSeconds, &builtIn,
		); err != nil {
			return nil, fmt.Errorf("scan escalation rule: %w", err)
		}
		r.InjectionType = types.InjectionType(injectionType)
		r.AutoPause = autoPause != 0
		r.BuiltIn = builtIn != 0
		if err := unmarshalJSONInto(actions, &r.SuggestedActions); err != nil {
			return nil, err
		}
		out = append(out, r)
	}
	return out, rows.Err()
}
