package sqlite

import (
	"database/sql"
	"errors"
	"fmt"

	"github.com/webrlabs/arcadiaforge/internal/autonomy"
)

const (
	autonomyConfigKey  = "config"
	autonomyMetricsKey = "metrics"
)

// LoadAutonomyConfig loads the singleton Config row, JSON-encoded since
// none of its fields (a map and two nested slices) are queried directly.
func (s *Store) LoadAutonomyConfig() (autonomy.Config, bool, error) {
	var cfg autonomy.Config
	found, err := s.loadAutonomyState(autonomyConfigKey, &cfg)
	return cfg, found, err
}

// SaveAutonomyConfig persists the singleton Config row.
func (s *Store) SaveAutonomyConfig(cfg autonomy.Config) error {
	return s.saveAutonomyState(autonomyConfigKey, cfg)
}

// LoadAutonomyMetrics loads the singleton Metrics row.
func (s *Store) LoadAutonomyMetrics() (autonomy.Metrics, bool, error) {
	var metrics autonomy.Metrics
	found, err := s.loadAutonomyState(autonomyMetricsKey, &metrics)
	return metrics, found, err
}

// SaveAutonomyMetrics persists the singleton Metrics row.
func (s *Store) SaveAutonomyMetrics(metrics autonomy.Metrics) error {
	return s.saveAutonomyState(autonomyMetricsKey, metrics)
}

func (s *Store) loadAutonomyState(name string, v any) (bool, error) {
	row := s.db.QueryRow(`SELECT value FROM autonomy_state WHERE name = ?`, name)
	var raw string
	if err := row.Scan(&raw); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return false, nil
		}
		return false, fmt.Errorf("load autonomy state %s: %w", name, err)
	}
	if err := unmarshalJSONInto(raw, v); err != nil {
		return false, fmt.Errorf("unmarshal autonomy state %s: %w", name, err)
	}
	return true, nil
}

func (s *Store) saveAutonomyState(name string, v any) error {
	raw, err := marshalJSON(v)
	if err != nil {
		return fmt.Errorf("marshal autonomy state %s: %w", name, err)
	}
	_, err = s.db.Exec(`
		INSERT INTO autonomy_state (name, value) VALUES (?, ?)
		ON CONFLICT(name) DO UPDATE SET value = excluded.value
	`, name, raw)
	if err != nil {
		return fmt.Errorf("save autonomy state %s: %w", name, err)
	}
	return nil
}

// LogAutonomyDecision appends one gating decision to the audit history.
func (s *Store) LogAutonomyDecision(d autonomy.Decision) error {
	alternatives, err := marshalJSON(d.Alternatives)
	if err != nil {
		return err
	}
	_, err = s.db.Exec(`
		INSERT INTO autonomy_decisions (
			timestamp, action, tool, allowed, required_level, current_level,
			effective_level, reason, alternatives, requires_approval,
			requires_checkpoint, confidence
		) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
	`,
		d.Timestamp, d.Action, d.Tool, boolToInt(d.Allowed), int(d.RequiredLevel), int(d.CurrentLevel),
		int(d.EffectiveLevel), d.Reason, alternatives, boolToInt(d.RequiresApproval),
		boolToInt(d.RequiresCheckpoint), nullableFloat(d.Confidence),
	)
	if err != nil {
		return fmt.Errorf("log autonomy decision: %w", err)
	}
	return nil
}

func nullableFloat(f *float64) any {
	if f == nil {
		return nil
	}
	return *f
}
