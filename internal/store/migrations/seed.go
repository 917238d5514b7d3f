package migrations

import (
	"database/sql"
	"fmt"

	"github.com/webrlabs/arcadiaforge/internal/risk"
)

// MigrateRiskPatternSeed inserts the built-in Risk Pattern rows
// (internal/risk.DefaultPatterns) the first time a database is created,
// per spec.md §4.4's rule table. risk.New already carries these
// in process memory regardless of what's in the database, so the insert
// only needs to happen once; OR IGNORE makes re-runs (and a custom row
// that happens to reuse a built-in pattern_id) no-ops rather than errors.
func MigrateRiskPatternSeed(db *sql.DB) error {
	stmt, err := db.Prepare(`
		INSERT OR IGNORE INTO risk_patterns (
			pattern_id, description, tool, input_field, input_pattern,
			risk_level, is_reversible, affects_source_of_truth,
			has_external_side_effects, requires_approval, requires_checkpoint,
			mitigation, is_enabled, is_custom
		) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, 0)
	`)
	if err != nil {
		return fmt.Errorf("prepare risk pattern seed: %w", err)
	}
	defer stmt.Close()

	for _, p := range risk.DefaultPatterns {
		if _, err := stmt.Exec(
			p.PatternID, p.Description, p.Tool, p.InputField, p.InputPattern,
			int(p.RiskLevel), boolInt(p.IsReversible), boolInt(p.AffectsSourceOfTruth),
			boolInt(p.HasExternalSideEffects), boolInt(p.RequiresApproval), boolInt(p.RequiresCheckpoint),
			p.Mitigation, boolInt(p.Enabled),
		); err != nil {
			return fmt.Errorf("seed risk pattern %s: %w", p.PatternID, err)
		}
	}
	return nil
}

func boolInt(b bool) int {
	if b {
		return 1
	}
	return 0
}
