package toolreg

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/webrlabs/arcadiaforge/internal/types"
)

// ArtifactStore persists Artifact rows — the evidence a feature's
// verification claim must be backed by.
type ArtifactStore interface {
	SaveArtifact(types.Artifact) (int64, error)
	ListArtifacts(featureIndex int) ([]types.Artifact, error)
}

// EvidenceTools turns a screenshot, written file, or test-result file on disk
// into a content-addressed Artifact the Feature Registry can point a
// feature's VerificationArtifacts at.
type EvidenceTools struct {
	store       ArtifactStore
	projectRoot string
	sessionID   int64
}

// NewEvidenceTools wraps store for the given project root and session.
func NewEvidenceTools(store ArtifactStore, projectRoot string, sessionID int64) *EvidenceTools {
	return &EvidenceTools{store: store, projectRoot: projectRoot, sessionID: sessionID}
}

// RegisterAll adds every evidence tool to r.
func (et *EvidenceTools) RegisterAll(r *Registry) error {
	regs := []struct {
		name, desc string
		schema     string
		handler    Handler
	}{
		{"evidence_save", "Record a verification artifact (screenshot, file write, commit ref, test result) for a feature.", `{
			"type": "object",
			"properties": {
				"feature_index": {"type": "integer"},
				"path": {"type": "string"},
				"type": {"type": "string", "enum": ["screenshot", "file_write", "commit_ref", "test_result"]}
			},
			"required": ["feature_index", "path", "type"]
		}`, et.save},
		{"evidence_list", "List verification artifacts recorded for a feature.", `{
			"type": "object",
			"properties": {"feature_index": {"type": "integer"}},
			"required": ["feature_index"]
		}`, et.list},
	}
	for _, reg := range regs {
		if err := r.Register(reg.name, reg.desc, []byte(reg.schema), reg.handler); err != nil {
			return fmt.Errorf("register %s: %w", reg.name, err)
		}
	}
	return nil
}

func (et *EvidenceTools) save(ctx context.Context, input map[string]any) (map[string]any, error) {
	featureIndex, err := requireInt(input, "feature_index")
	if err != nil {
		return nil, err
	}
	relPath, err := requireString(input, "path")
	if err != nil {
		return nil, err
	}
	artifactType, err := requireString(input, "type")
	if err != nil {
		return nil, err
	}

	absPath, err := resolveWithinRoot(et.projectRoot, relPath)
	if err != nil {
		return nil, err
	}
	data, err := os.ReadFile(absPath)
	if err != nil {
		return nil, fmt.Errorf("read evidence file: %w", err)
	}
	sum := sha256.Sum256(data)

	artifact := types.Artifact{
		SessionID:    et.sessionID,
		Type:         types.ArtifactType(artifactType),
		PathRelative: relPath,
		SHA256:       hex.EncodeToString(sum[:]),
		Metadata:     map[string]any{"feature_index": featureIndex},
	}
	id, err := et.store.SaveArtifact(artifact)
	if err != nil {
		return nil, fmt.Errorf("save artifact: %w", err)
	}
	return map[string]any{"id": id, "sha256": artifact.SHA256}, nil
}

func (et *EvidenceTools) list(ctx context.Context, input map[string]any) (map[string]any, error) {
	featureIndex, err := requireInt(input, "feature_index")
	if err != nil {
		return nil, err
	}
	artifacts, err := et.store.ListArtifacts(featureIndex)
	if err != nil {
		return nil, fmt.Errorf("list artifacts: %w", err)
	}
	out := make([]map[string]any, 0, len(artifacts))
	for _, a := range artifacts {
		out = append(out, map[string]any{
			"id":            a.ID,
			"type":          string(a.Type),
			"path_relative": a.PathRelative,
			"sha256":        a.SHA256,
		})
	}
	return map[string]any{"artifacts": out}, nil
}

// resolveWithinRoot joins root and relPath and rejects any result that
// escapes root, so a malicious or buggy relative path like
// "../../etc/passwd" can never reach outside the project directory.
func resolveWithinRoot(root, relPath string) (string, error) {
	joined := filepath.Join(root, relPath)
	cleanRoot := filepath.Clean(root)
	rel, err := filepath.Rel(cleanRoot, joined)
	if err != nil {
		return "", fmt.Errorf("resolve path: %w", err)
	}
	if rel == ".." || filepath.IsAbs(rel) || strings.HasPrefix(rel, ".."+string(filepath.Separator)) {
		return "", fmt.Errorf("path %q escapes project root", relPath)
	}
	return joined, nil
}
