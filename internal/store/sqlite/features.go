package sqlite

import (
	"fmt"

	"github.com/webrlabs/arcadiaforge/internal/types"
)

// LoadFeatures returns every Feature row ordered by index, the catalogue
// order feature.Load rebuilds its Registry from.
func (s *Store) LoadFeatures() ([]types.Feature, error) {
	rows, err := s.db.Query(`
		SELECT idx, category, description, steps, passes, priority, failure_count,
		       last_worked, blocked_by, blocks, verified_at, verification_artifacts,
		       skip_verification, blocked_reason
		FROM features ORDER BY idx ASC
	`)
	if err != nil {
		return nil, fmt.Errorf("query features: %w", err)
	}
	defer rows.Close()

	var out []types.Feature
	for rows.Next() {
		var f types.Feature
		var category string
		var steps, blockedBy, blocks, artifacts string
		var passes, skipVerification int
		if err := rows.Scan(
			&f.Index, &category, &f.Description, &steps, &passes, &f.Priority, &f.FailureCount,
			&f.LastWorked, &blockedBy, &blocks, &f.VerifiedAt, &artifacts,
			&skipVerification, &f.BlockedReason,
		); err != nil {
			return nil, fmt.Errorf("scan feature: %w", err)
		}
		f.Category = types.FeatureCategory(category)
		f.Passes = passes != 0
		f.SkipVerification = skipVerification != 0
		if err := unmarshalJSONInto(steps, &f.Steps); err != nil {
			return nil, err
		}
		if err := unmarshalJSONInto(blockedBy, &f.BlockedBy); err != nil {
			return nil, err
		}
		if err := unmarshalJSONInto(blocks, &f.Blocks); err != nil {
			return nil, err
		}
		if err := unmarshalJSONInto(artifacts, &f.VerificationArtifacts); err != nil {
			return nil, err
		}
		out = append(out, f)
	}
	return out, rows.Err()
}

// SaveFeature overwrites the mutable columns of an existing Feature row.
func (s *Store) SaveFeature(f types.Feature) error {
	steps, err := marshalJSON(f.Steps)
	if err != nil {
		return err
	}
	blockedBy, err := marshalJSON(f.BlockedBy)
	if err != nil {
		return err
	}
	blocks, err := marshalJSON(f.Blocks)
	if err != nil {
		return err
	}
	artifacts, err := marshalJSON(f.VerificationArtifacts)
	if err != nil {
		return err
	}

	_, err = s.db.Exec(`
		UPDATE features SET
			category = ?, description = ?, steps = ?, passes = ?, priority = ?,
			failure_count = ?, last_worked = ?, blocked_by = ?, blocks = ?,
			verified_at = ?, verification_artifacts = ?, skip_verification = ?,
			blocked_reason = ?
		WHERE idx = ?
	`,
		string(f.Category), f.Description, steps, boolToInt(f.Passes), f.Priority,
		f.FailureCount, f.LastWorked, blockedBy, blocks,
		f.VerifiedAt, artifacts, boolToInt(f.SkipVerification),
		f.BlockedReason, f.Index,
	)
	if err != nil {
		return fmt.Errorf("save feature %d: %w", f.Index, err)
	}
	return nil
}

// InsertFeature creates a new Feature row, used only at project
// initialization and the "add requirement" flow. Returns the assigned
// index (features.idx is a caller-supplied INTEGER PRIMARY KEY, not an
// AUTOINCREMENT column, so the catalogue's index ordering matches the
// order features were defined in, not insertion order).
func (s *Store) InsertFeature(f types.Feature) (int, error) {
	steps, err := marshalJSON(f.Steps)
	if err != nil {
		return 0, err
	}
	blockedBy, err := marshalJSON(f.BlockedBy)
	if err != nil {
		return 0, err
	}
	blocks, err := marshalJSON(f.Blocks)
	if err != nil {
		return 0, err
	}
	artifacts, err := marshalJSON(f.VerificationArtifacts)
	if err != nil {
		return 0, err
	}

	idx := f.Index
	if idx == 0 {
		row := s.db.QueryRow(`SELECT COALESCE(MAX(idx), -1) + 1 FROM features`)
		if err := row.Scan(&idx); err != nil {
			return 0, fmt.Errorf("next feature index: %w", err)
		}
	}

	_, err = s.db.Exec(`
		INSERT INTO features (
			idx, category, description, steps, passes, priority, failure_count,
			last_worked, blocked_by, blocks, verified_at, verification_artifacts,
			skip_verification, blocked_reason
		) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
	`,
		idx, string(f.Category), f.Description, steps, boolToInt(f.Passes), f.Priority, f.FailureCount,
		f.LastWorked, blockedBy, blocks, f.VerifiedAt, artifacts,
		boolToInt(f.SkipVerification), f.BlockedReason,
	)
	if err != nil {
		return 0, fmt.Errorf("insert feature: %w", err)
	}
	return idx, nil
}

// RestoreFeatureStatus bulk-overwrites Passes for the features named in
// status, the checkpoint.Store half of a rollback. Features absent from
// status are left untouched.
func (s *Store) RestoreFeatureStatus(status map[int]bool) error {
	tx, err := s.db.Begin()
	if err != nil {
		return fmt.Errorf("begin restore feature status: %w", err)
	}
	defer tx.Rollback()

	stmt, err := tx.Prepare(`UPDATE features SET passes = ? WHERE idx = ?`)
	if err != nil {
		return fmt.Errorf("prepare restore feature status: %w", err)
	}
	defer stmt.Close()

	for idx, passes := range status {
		if _, err := stmt.Exec(boolToInt(passes), idx); err != nil {
			return fmt.Errorf("restore feature %d status: %w", idx, err)
		}
	}
	return tx.Commit()
}
