package sqlite

import (
	"fmt"

	"github.com/webrlabs/arcadiaforge/internal/types"
)

func artifactFeatureIndex(metadata map[string]any) int {
	v, ok := metadata["feature_index"]
	if !ok {
		return -1
	}
	switch n := v.(type) {
	case int:
		return n
	case float64:
		return int(n)
	default:
		return -1
	}
}

// SaveArtifact inserts a new Artifact row and returns its id.
// feature_index is denormalized out of Metadata into its own column so
// ListArtifacts can filter without scanning every row's JSON blob.
func (s *Store) SaveArtifact(a types.Artifact) (int64, error) {
	metadata, err := marshalJSON(a.Metadata)
	if err != nil {
		return 0, err
	}
	res, err := s.db.Exec(`
		INSERT INTO artifacts (session_id, type, path_relative, sha256_checksum, feature_index, metadata)
		VALUES (?, ?, ?, ?, ?, ?)
	`, a.SessionID, string(a.Type), a.PathRelative, a.SHA256, artifactFeatureIndex(a.Metadata), metadata)
	if err != nil {
		return 0, fmt.Errorf("save artifact: %w", err)
	}
	return res.LastInsertId()
}

// ListArtifacts returns every Artifact recorded against a feature.
func (s *Store) ListArtifacts(featureIndex int) ([]types.Artifact, error) {
	rows, err := s.db.Query(`
		SELECT id, session_id, type, path_relative, sha256_checksum, metadata
		FROM artifacts WHERE feature_index = ?
	`, featureIndex)
	if err != nil {
		return nil, fmt.Errorf("list artifacts: %w", err)
	}
	defer rows.Close()

	var out []types.Artifact
	for rows.Next() {
		var a types.Artifact
		var typ, metadata string
		if err := rows.Scan(&a.ID, &a.SessionID, &typ, &a.PathRelative, &a.SHA256, &metadata); err != nil {
			return nil, fmt.Errorf("scan artifact: %w", err)
		}
		a.Type = types.ArtifactType(typ)
		if err := unmarshalJSONInto(metadata, &a.Metadata); err != nil {
			return nil, err
		}
		out = append(out, a)
	}
	return out, rows.Err()
}
