package sqlite

import (
	"fmt"

	"github.com/webrlabs/arcadiaforge/internal/types"
)

// LoadRiskPatterns returns every enabled pattern row, built-in seed rows
// and custom rows alike. risk.New always carries risk.DefaultPatterns in
// process memory regardless of what's here, then adds whatever this
// returns that isn't already a known pattern id — so the built-ins
// migrations.Run seeded are harmlessly deduped away, leaving any
// operator-added custom rows.
func (s *Store) LoadRiskPatterns() ([]types.RiskPattern, error) {
	rows, err := s.db.Query(`
		SELECT pattern_id, description, tool, input_field, input_pattern,
		       risk_level, is_reversible, affects_source_of_truth,
		       has_external_side_effects, requires_approval, requires_checkpoint,
		       mitigation, is_enabled
		FROM risk_patterns WHERE is_enabled = 1
	`)
	if err != nil {
		return nil, fmt.Errorf("query risk patterns: %w", err)
	}
	defer rows.Close()

	var out []types.RiskPattern
	for rows.Next() {
		var p types.RiskPattern
		var riskLevel int
		var isReversible, affectsSourceOfTruth, hasExternalSideEffects, requiresApproval, requiresCheckpoint, enabled int
		if err := rows.Scan(
			&p.PatternID, &p.Description, &p.Tool, &p.InputField, &p.InputPattern,
			&riskLevel, &isReversible, &affectsSourceOfTruth,
			&hasExternalSideEffects, &requiresApproval, &requiresCheckpoint,
			&p.Mitigation, &enabled,
		); err != nil {
			return nil, fmt.Errorf("scan risk pattern: %w", err)
		}
		p.RiskLevel = types.RiskLevel(riskLevel)
		p.IsReversible = isReversible != 0
		p.AffectsSourceOfTruth = affectsSourceOfTruth != 0
		p.HasExternalSideEffects = hasExternalSideEffects != 0
		p.RequiresApproval = requiresApproval != 0
		p.RequiresCheckpoint = requiresCheckpoint != 0
		p.Enabled = enabled != 0
		out = append(out, p)
	}
	return out, rows.Err()
}

// SaveRiskPattern inserts or replaces a custom risk pattern row.
func (s *Store) SaveRiskPattern(p types.RiskPattern) error {
	_, err := s.db.Exec(`
		INSERT INTO risk_patterns (
			pattern_id, description, tool, input_field, input_pattern,
			risk_level, is_reversible, affects_source_of_truth,
			has_external_side_effects, requires_approval, requires_checkpoint,
			mitigation, is_enabled, is_custom
		) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, 1)
		ON CONFLICT(pattern_id) DO UPDATE SET
			description = excluded.description,
			tool = excluded.tool,
			input_field = excluded.input_field,
			input_pattern = excluded.input_pattern,
			risk_level = excluded.risk_level,
			is_reversible = excluded.is_reversible,
			affects_source_of_truth = excluded.affects_source_of_truth,
			has_external_side_effects = excluded.has_external_side_effects,
			requires_approval = excluded.requires_approval,
			requires_checkpoint = excluded.requires_checkpoint,
			mitigation = excluded.mitigation,
			is_enabled = excluded.is_enabled
	`,
		p.PatternID, p.Description, p.Tool, p.InputField, p.InputPattern,
		int(p.RiskLevel), boolToInt(p.IsReversible), boolToInt(p.AffectsSourceOfTruth),
		boolToInt(p.HasExternalSideEffects), boolToInt(p.RequiresApproval), boolToInt(p.RequiresCheckpoint),
		p.Mitigation, boolToInt(p.Enabled),
	)
	if err != nil {
		return fmt.Errorf("save risk pattern %s: %w", p.PatternID, err)
	}
	return nil
}

// LogRiskAssessment appends one assessment to the audit history.
func (s *Store) LogRiskAssessment(a types.RiskAssessment) error {
	concerns, err := marshalJSON(a.Concerns)
	if err != nil {
		return err
	}
	_, err = s.db.Exec(`
		INSERT INTO risk_assessments (
			session_id, action, tool, input_summary, risk_level,
			is_reversible, affects_source_of_truth, has_external_side_effects,
			concerns, requires_approval, requires_checkpoint, requires_review,
			mitigation, timestamp
		) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
	`,
		a.SessionID, a.Action, a.Tool, a.InputSummary, int(a.RiskLevel),
		boolToInt(a.IsReversible), boolToInt(a.AffectsSourceOfTruth), boolToInt(a.HasExternalSideEffects),
		concerns, boolToInt(a.RequiresApproval), boolToInt(a.RequiresCheckpoint), boolToInt(a.RequiresReview),
		a.Mitigation, a.Timestamp,
	)
	if err != nil {
		return fmt.Errorf("log risk assessment: %w", err)
	}
	return nil
}
