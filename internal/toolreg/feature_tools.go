package toolreg

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/webrlabs/arcadiaforge/internal/feature"
	"github.com/webrlabs/arcadiaforge/internal/types"
)

// FeatureTools exposes the Feature Registry to the LLM runtime: the
// next-to-work-on query, pass/fail marking, search, and the dependency-
// blocking bookkeeping feature_tools.py groups under one MCP server.
type FeatureTools struct {
	registry    *feature.Registry
	artifacts   ArtifactStore
	projectRoot string
	now         func() time.Time
}

// NewFeatureTools wraps registry for tool dispatch. artifacts and
// projectRoot back the Invariant F1 evidence check feature_mark runs
// before accepting a passing claim. now defaults to time.Now when nil;
// tests supply a fixed clock.
func NewFeatureTools(registry *feature.Registry, artifacts ArtifactStore, projectRoot string, now func() time.Time) *FeatureTools {
	if now == nil {
		now = time.Now
	}
	return &FeatureTools{registry: registry, artifacts: artifacts, projectRoot: projectRoot, now: now}
}

// RegisterAll adds every feature tool to r.
func (ft *FeatureTools) RegisterAll(r *Registry) error {
	regs := []struct {
		name, desc string
		schema     string
		handler    Handler
	}{
		{"feature_stats", "Summarize pass/fail progress across the feature catalogue.", `{}`, ft.stats},
		{"feature_next", "Pick the next incomplete feature to work on, ranked by salience.", `{
			"type": "object",
			"properties": {
				"skip_blocked": {"type": "boolean"},
				"category": {"type": "string"}
			}
		}`, ft.next},
		{"feature_show", "Show one feature by index.", `{
			"type": "object",
			"properties": {"index": {"type": "integer"}},
			"required": ["index"]
		}`, ft.show},
		{"feature_list", "List features, optionally filtered to passing or failing only.", `{
			"type": "object",
			"properties": {"passing": {"type": "boolean"}}
		}`, ft.list},
		{"feature_search", "Search feature descriptions for a substring.", `{
			"type": "object",
			"properties": {"query": {"type": "string"}},
			"required": ["query"]
		}`, ft.search},
		{"feature_mark", "Mark a feature passing or failing after an implementation attempt. Marking passing requires at least one verification artifact under verification/feature_<index>_*, an artifact recorded via evidence_save, or skip_verification.", `{
			"type": "object",
			"properties": {
				"index": {"type": "integer"},
				"passing": {"type": "boolean"},
				"artifacts": {"type": "array", "items": {"type": "string"}},
				"skip_verification": {"type": "boolean"}
			},
			"required": ["index", "passing"]
		}`, ft.mark},
		{"feature_mark_blocked", "Record a blocking reason on one or more features.", `{
			"type": "object",
			"properties": {
				"feature_ids": {"type": "array", "items": {"type": "integer"}},
				"reason": {"type": "string"}
			},
			"required": ["feature_ids", "reason"]
		}`, ft.markBlocked},
		{"feature_unblock", "Clear the blocking reason on one or more features.", `{
			"type": "object",
			"properties": {"feature_ids": {"type": "array", "items": {"type": "integer"}}},
			"required": ["feature_ids"]
		}`, ft.unblock},
		{"feature_list_blocked", "List features blocked by an unsatisfied dependency or carrying a blocking reason.", `{}`, ft.listBlocked},
		{"feature_add", "Add a new feature to the catalogue.", `{
			"type": "object",
			"properties": {
				"category": {"type": "string", "enum": ["functional", "style"]},
				"description": {"type": "string"},
				"steps": {"type": "array", "items": {"type": "string"}}
			},
			"required": ["category", "description"]
		}`, ft.add},
	}

	for _, reg := range regs {
		if err := r.Register(reg.name, reg.desc, []byte(reg.schema), reg.handler); err != nil {
			return fmt.Errorf("register %s: %w", reg.name, err)
		}
	}
	return nil
}

func (ft *FeatureTools) stats(ctx context.Context, input map[string]any) (map[string]any, error) {
	s := ft.registry.Stats()
	return map[string]any{
		"total":              s.Total,
		"passing":            s.Passing,
		"failing":            s.Failing,
		"functional_total":   s.FunctionalTotal,
		"functional_passing": s.FunctionalPassing,
		"style_total":        s.StyleTotal,
		"style_passing":      s.StylePassing,
		"progress_percent":   s.ProgressPercent(),
	}, nil
}

func (ft *FeatureTools) next(ctx context.Context, input map[string]any) (map[string]any, error) {
	category, _ := argString(input, "category")
	skipBlocked := argBool(input, "skip_blocked", true)

	f, ok := ft.registry.NextBySalience(feature.Context{}, types.FeatureCategory(category), skipBlocked, ft.now())
	if !ok {
		return map[string]any{"found": false}, nil
	}
	out := featureToMap(f)
	out["found"] = true
	return out, nil
}

func (ft *FeatureTools) show(ctx context.Context, input map[string]any) (map[string]any, error) {
	index, err := requireInt(input, "index")
	if err != nil {
		return nil, err
	}
	f, ok := ft.registry.Get(index)
	if !ok {
		return nil, fmt.Errorf("feature %d not found", index)
	}
	return featureToMap(f), nil
}

func (ft *FeatureTools) list(ctx context.Context, input map[string]any) (map[string]any, error) {
	filterPassing, hasFilter := input["passing"].(bool)
	var out []map[string]any
	for _, f := range ft.registry.All() {
		if hasFilter && f.Passes != filterPassing {
			continue
		}
		out = append(out, featureToMap(f))
	}
	return map[string]any{"features": out}, nil
}

func (ft *FeatureTools) search(ctx context.Context, input map[string]any) (map[string]any, error) {
	query, err := requireString(input, "query")
	if err != nil {
		return nil, err
	}
	var out []map[string]any
	for _, f := range ft.registry.Search(query, 0) {
		out = append(out, featureToMap(f))
	}
	return map[string]any{"features": out}, nil
}

func (ft *FeatureTools) mark(ctx context.Context, input map[string]any) (map[string]any, error) {
	index, err := requireInt(input, "index")
	if err != nil {
		return nil, err
	}
	passing, ok := input["passing"].(bool)
	if !ok {
		return nil, fmt.Errorf("missing required field %q", "passing")
	}

	var f types.Feature
	var found bool
	if passing {
		skipVerification := argBool(input, "skip_verification", false)
		evidence := ft.resolveEvidence(index, argStringSlice(input, "artifacts"))
		f, found, err = ft.registry.MarkPassing(index, evidence, skipVerification)
		if err != nil {
			if err == feature.ErrMissingEvidence {
				return nil, fmt.Errorf("MissingEvidence: no verification artifacts found for feature %d; save one under verification/feature_%d_<slug>.<ext>, record one via evidence_save, or pass skip_verification", index, index)
			}
			return nil, err
		}
	} else {
		f, found, err = ft.registry.MarkFailing(index)
		if err != nil {
			return nil, err
		}
	}
	if !found {
		return nil, fmt.Errorf("feature %d not found", index)
	}
	return featureToMap(f), nil
}

// resolveEvidence gathers every verification artifact on record for
// index: explicit paths the caller named (validated to exist under the
// project root), anything already recorded in the Artifact store via
// evidence_save, and any file on disk matching
// verification/feature_<index>_*. Order is stable but not meaningful;
// duplicates are not filtered since the registry only cares whether the
// slice is non-empty.
func (ft *FeatureTools) resolveEvidence(index int, explicit []string) []string {
	var evidence []string
	for _, path := range explicit {
		abs, err := resolveWithinRoot(ft.projectRoot, path)
		if err != nil {
			continue
		}
		if _, err := os.Stat(abs); err != nil {
			continue
		}
		evidence = append(evidence, path)
	}
	if ft.artifacts != nil {
		if recorded, err := ft.artifacts.ListArtifacts(index); err == nil {
			for _, a := range recorded {
				evidence = append(evidence, a.PathRelative)
			}
		}
	}
	if ft.projectRoot != "" {
		pattern := filepath.Join(ft.projectRoot, "verification", fmt.Sprintf("feature_%d_*", index))
		if matches, err := filepath.Glob(pattern); err == nil {
			for _, m := range matches {
				if rel, err := filepath.Rel(ft.projectRoot, m); err == nil {
					evidence = append(evidence, rel)
				}
			}
		}
	}
	return evidence
}

func (ft *FeatureTools) markBlocked(ctx context.Context, input map[string]any) (map[string]any, error) {
	ids := argIntSlice(input, "feature_ids")
	reason, err := requireString(input, "reason")
	if err != nil {
		return nil, err
	}
	var updated []int
	for _, id := range ids {
		ok, err := ft.registry.SetBlockedReason(id, reason)
		if err != nil {
			return nil, err
		}
		if ok {
			updated = append(updated, id)
		}
	}
	return map[string]any{"updated": updated}, nil
}

func (ft *FeatureTools) unblock(ctx context.Context, input map[string]any) (map[string]any, error) {
	ids := argIntSlice(input, "feature_ids")
	var updated []int
	for _, id := range ids {
		ok, err := ft.registry.SetBlockedReason(id, "")
		if err != nil {
			return nil, err
		}
		if ok {
			updated = append(updated, id)
		}
	}
	return map[string]any{"updated": updated}, nil
}

func (ft *FeatureTools) listBlocked(ctx context.Context, input map[string]any) (map[string]any, error) {
	var out []map[string]any
	for _, f := range ft.registry.Blocked() {
		out = append(out, featureToMap(f))
	}
	for _, f := range ft.registry.All() {
		if f.BlockedReason != "" && !f.Passes && !containsFeature(out, f.Index) {
			out = append(out, featureToMap(f))
		}
	}
	return map[string]any{"features": out}, nil
}

func (ft *FeatureTools) add(ctx context.Context, input map[string]any) (map[string]any, error) {
	category, err := requireString(input, "category")
	if err != nil {
		return nil, err
	}
	description, err := requireString(input, "description")
	if err != nil {
		return nil, err
	}
	steps := argStringSlice(input, "steps")

	f, err := ft.registry.Add(types.FeatureCategory(category), description, steps)
	if err != nil {
		return nil, err
	}
	return featureToMap(f), nil
}

func featureToMap(f types.Feature) map[string]any {
	m := map[string]any{
		"index":          f.Index,
		"category":       string(f.Category),
		"description":    f.Description,
		"steps":          f.Steps,
		"passes":         f.Passes,
		"priority":       f.Priority,
		"failure_count":  f.FailureCount,
		"blocked_by":     f.BlockedBy,
		"blocks":         f.Blocks,
		"blocked_reason": f.BlockedReason,
	}
	if f.LastWorked != nil {
		m["last_worked"] = f.LastWorked.Format(time.RFC3339)
	}
	if f.VerifiedAt != nil {
		m["verified_at"] = f.VerifiedAt.Format(time.RFC3339)
		m["verification_artifacts"] = f.VerificationArtifacts
		m["skip_verification"] = f.SkipVerification
	}
	return m
}

func containsFeature(features []map[string]any, index int) bool {
	for _, f := range features {
		if f["index"] == index {
			return true
		}
	}
	return false
}
