// Package feature implements the Feature Registry (spec.md §4.8): the
// catalogue of test cases an autonomous session works through, plus the
// salience score used to pick what to work on next.
package feature

import (
	"errors"
	"fmt"
	"sort"
	"strings"
	"time"

	"github.com/webrlabs/arcadiaforge/internal/types"
)

// ErrMissingEvidence is returned by MarkPassing when Invariant F1 (a
// passing feature must carry at least one verification artifact, or
// have verification explicitly skipped) is not satisfied.
var ErrMissingEvidence = errors.New("MissingEvidence")

// Store is the persistence surface the registry needs. Features are
// created only at initialization and explicit "add requirement" flows;
// everything else is an update to an existing row.
type Store interface {
	LoadFeatures() ([]types.Feature, error)
	SaveFeature(types.Feature) error
	InsertFeature(types.Feature) (int, error)
}

// Stats summarizes progress across the catalogue.
type Stats struct {
	Total             int
	Passing           int
	Failing           int
	FunctionalTotal   int
	FunctionalPassing int
	StyleTotal        int
	StylePassing      int
}

// ProgressPercent is Passing/Total as a percentage, 0 when Total is 0.
func (s Stats) ProgressPercent() float64 {
	if s.Total == 0 {
		return 0
	}
	return float64(s.Passing) / float64(s.Total) * 100
}

// Context carries request-scoped signal into salience scoring.
type Context struct {
	RelatedFeatures []int
}

// Registry holds the in-memory feature catalogue for one project and
// keeps it synced with Store.
type Registry struct {
	store    Store
	features []types.Feature
	byIndex  map[int]int // feature.Index -> slice position
}

// Load reads the full catalogue from store.
func Load(store Store) (*Registry, error) {
	features, err := store.LoadFeatures()
	if err != nil {
		return nil, fmt.Errorf("load features: %w", err)
	}
	r := &Registry{store: store}
	r.reindex(features)
	return r, nil
}

func (r *Registry) reindex(features []types.Feature) {
	r.features = features
	r.byIndex = make(map[int]int, len(features))
	for i, f := range features {
		r.byIndex[f.Index] = i
	}
}

// Len returns the number of features in the catalogue.
func (r *Registry) Len() int { return len(r.features) }

// Get returns a feature by index.
func (r *Registry) Get(index int) (types.Feature, bool) {
	pos, ok := r.byIndex[index]
	if !ok {
		return types.Feature{}, false
	}
	return r.features[pos], true
}

// All returns every feature in catalogue order.
func (r *Registry) All() []types.Feature {
	out := make([]types.Feature, len(r.features))
	copy(out, r.features)
	return out
}

// Add appends a new feature and persists it. Index is assigned as the
// next free position; features are otherwise immutable once created.
func (r *Registry) Add(category types.FeatureCategory, description string, steps []string) (types.Feature, error) {
	f := types.Feature{
		Index:       len(r.features),
		Category:    category,
		Description: description,
		Steps:       steps,
		Priority:    3,
	}
	idx, err := r.store.InsertFeature(f)
	if err != nil {
		return types.Feature{}, fmt.Errorf("insert feature: %w", err)
	}
	f.Index = idx
	r.features = append(r.features, f)
	r.byIndex[f.Index] = len(r.features) - 1
	return f, nil
}

// MarkPassing flips a feature's passes flag to true, resets its failure
// count, and persists the change. Invariant F1 requires at least one
// verification artifact unless skipVerification is set; if neither
// holds, the feature is left untouched and ErrMissingEvidence is
// returned. Calling MarkPassing again on an already-passing feature
// with the same evidence is a no-op: the existing row is returned
// unchanged rather than re-saved.
func (r *Registry) MarkPassing(index int, artifacts []string, skipVerification bool) (types.Feature, bool, error) {
	pos, ok := r.byIndex[index]
	if !ok {
		return types.Feature{}, false, nil
	}
	if len(artifacts) == 0 && !skipVerification {
		return types.Feature{}, true, ErrMissingEvidence
	}
	existing := r.features[pos]
	if existing.Passes {
		return existing, true, nil
	}

	f := &r.features[pos]
	f.Passes = true
	now := time.Now().UTC()
	f.LastWorked = &now
	f.FailureCount = 0
	f.VerifiedAt = &now
	f.VerificationArtifacts = artifacts
	f.SkipVerification = skipVerification
	if err := r.store.SaveFeature(*f); err != nil {
		return types.Feature{}, true, fmt.Errorf("save feature %d: %w", index, err)
	}
	return *f, true, nil
}

// MarkFailing flips a feature's passes flag back to false and persists
// the change. Returns false if index is unknown.
func (r *Registry) MarkFailing(index int) (types.Feature, bool, error) {
	pos, ok := r.byIndex[index]
	if !ok {
		return types.Feature{}, false, nil
	}
	f := &r.features[pos]
	f.Passes = false
	now := time.Now().UTC()
	f.LastWorked = &now
	f.FailureCount++
	if err := r.store.SaveFeature(*f); err != nil {
		return types.Feature{}, true, fmt.Errorf("save feature %d: %w", index, err)
	}
	return *f, true, nil
}

// RecordAttempt updates last-worked and failure bookkeeping for a
// feature without changing its passes flag, for cases where an
// implementation attempt was made but verification has not run yet.
func (r *Registry) RecordAttempt(index int, success bool) (types.Feature, bool, error) {
	pos, ok := r.byIndex[index]
	if !ok {
		return types.Feature{}, false, nil
	}
	f := &r.features[pos]
	now := time.Now().UTC()
	f.LastWorked = &now
	if success {
		f.FailureCount = 0
	} else {
		f.FailureCount++
	}
	if err := r.store.SaveFeature(*f); err != nil {
		return types.Feature{}, true, fmt.Errorf("save feature %d: %w", index, err)
	}
	return *f, true, nil
}

// SetBlockedReason records why a feature cannot currently be attempted,
// independent of the dependency-based blocking in IsBlocked.
func (r *Registry) SetBlockedReason(index int, reason string) (bool, error) {
	pos, ok := r.byIndex[index]
	if !ok {
		return false, nil
	}
	r.features[pos].BlockedReason = reason
	if err := r.store.SaveFeature(r.features[pos]); err != nil {
		return true, fmt.Errorf("save feature %d: %w", index, err)
	}
	return true, nil
}

// AddDependency marks feature featureIndex as blocked by dependsOn and
// updates dependsOn's Blocks list to match.
func (r *Registry) AddDependency(featureIndex, dependsOn int) (bool, error) {
	fp, ok1 := r.byIndex[featureIndex]
	dp, ok2 := r.byIndex[dependsOn]
	if !ok1 || !ok2 || featureIndex == dependsOn {
		return false, nil
	}
	f := &r.features[fp]
	if !containsInt(f.BlockedBy, dependsOn) {
		f.BlockedBy = append(f.BlockedBy, dependsOn)
	}
	blocker := &r.features[dp]
	if !containsInt(blocker.Blocks, featureIndex) {
		blocker.Blocks = append(blocker.Blocks, featureIndex)
	}
	if err := r.store.SaveFeature(*f); err != nil {
		return true, fmt.Errorf("save feature %d: %w", featureIndex, err)
	}
	if err := r.store.SaveFeature(*blocker); err != nil {
		return true, fmt.Errorf("save feature %d: %w", dependsOn, err)
	}
	return true, nil
}

func containsInt(s []int, v int) bool {
	for _, x := range s {
		if x == v {
			return true
		}
	}
	return false
}

// IsBlocked reports whether f has an unsatisfied dependency, given the
// current pass/fail status of every feature in the catalogue.
func (r *Registry) IsBlocked(f types.Feature) bool {
	for _, blockerIdx := range f.BlockedBy {
		blocker, ok := r.Get(blockerIdx)
		if !ok || !blocker.Passes {
			return true
		}
	}
	return false
}

// Stats computes aggregate progress over the catalogue.
func (r *Registry) Stats() Stats {
	var s Stats
	for _, f := range r.features {
		s.Total++
		if f.Passes {
			s.Passing++
		}
		switch f.Category {
		case types.CategoryFunctional:
			s.FunctionalTotal++
			if f.Passes {
				s.FunctionalPassing++
			}
		case types.CategoryStyle:
			s.StyleTotal++
			if f.Passes {
				s.StylePassing++
			}
		}
	}
	s.Failing = s.Total - s.Passing
	return s
}

// StatusSnapshot implements checkpoint.FeatureSnapshot: a point-in-time
// map of feature index to passes status, alongside pass/total counts.
func (r *Registry) StatusSnapshot() (status map[int]bool, passing, total int) {
	status = make(map[int]bool, len(r.features))
	for _, f := range r.features {
		status[f.Index] = f.Passes
		total++
		if f.Passes {
			passing++
		}
	}
	return status, passing, total
}

// RestoreStatus writes back a feature-status snapshot, as produced by
// StatusSnapshot, after a checkpoint rollback. Only the passes flag is
// restored; everything else about the feature (steps, category,
// dependencies) is left alone since it is immutable by design.
func (r *Registry) RestoreStatus(status map[int]bool) error {
	for index, passes := range status {
		pos, ok := r.byIndex[index]
		if !ok {
			continue
		}
		if r.features[pos].Passes == passes {
			continue
		}
		r.features[pos].Passes = passes
		if err := r.store.SaveFeature(r.features[pos]); err != nil {
			return fmt.Errorf("restore feature %d: %w", index, err)
		}
	}
	return nil
}

// NextIncomplete returns the first feature in catalogue order that is
// not yet passing, optionally filtered by category. This is the file-
// order fallback; prefer NextBySalience for priority-aware selection.
func (r *Registry) NextIncomplete(category types.FeatureCategory) (types.Feature, bool) {
	for _, f := range r.features {
		if f.Passes {
			continue
		}
		if category != "" && f.Category != category {
			continue
		}
		return f, true
	}
	return types.Feature{}, false
}

// Salience computes s(f, ctx) per the scoring formula: base priority
// weight, minus a capped failure penalty, plus a dependency-unblock
// bonus, minus a capped staleness penalty, plus a related-work bonus,
// clamped to [0,1].
func Salience(f types.Feature, ctx Context, now time.Time) float64 {
	priorityWeight := map[int]float64{1: 0.40, 2: 0.30, 3: 0.20, 4: 0.10}

	score := priorityWeight[f.Priority]
	if _, ok := priorityWeight[f.Priority]; !ok {
		score = 0.20
	}

	score -= 0.10 * float64(min(f.FailureCount, 3))
	score += 0.05 * float64(len(f.Blocks))

	if f.LastWorked != nil {
		days := now.Sub(*f.LastWorked).Hours() / 24
		if days < 0 {
			days = 0
		}
		score -= 0.02 * min(days, 5)
	}

	for _, idx := range ctx.RelatedFeatures {
		if idx == f.Index {
			score += 0.20
			break
		}
	}

	if score < 0 {
		score = 0
	}
	if score > 1 {
		score = 1
	}
	return score
}

// Scored pairs a feature with its computed salience.
type Scored struct {
	Feature  types.Feature
	Salience float64
}

// NextBySalience returns the highest-scoring incomplete feature. Ties
// are broken by lower index. Features with an unsatisfied dependency are
// skipped unless skipBlocked is false, in which case they are eligible
// too (so a caller can surface what's blocked rather than starve on it).
func (r *Registry) NextBySalience(ctx Context, category types.FeatureCategory, skipBlocked bool, now time.Time) (types.Feature, bool) {
	var candidates []Scored
	for _, f := range r.features {
		if f.Passes {
			continue
		}
		if category != "" && f.Category != category {
			continue
		}
		if skipBlocked && r.IsBlocked(f) {
			continue
		}
		candidates = append(candidates, Scored{Feature: f, Salience: Salience(f, ctx, now)})
	}
	if len(candidates) == 0 {
		return types.Feature{}, false
	}
	sort.SliceStable(candidates, func(i, j int) bool {
		if candidates[i].Salience != candidates[j].Salience {
			return candidates[i].Salience > candidates[j].Salience
		}
		return candidates[i].Feature.Index < candidates[j].Feature.Index
	})
	return candidates[0].Feature, true
}

// RankedBySalience returns up to limit incomplete features ordered by
// salience, highest first. includePassing controls whether already-
// passing features are scored and included, which is useful for
// auditing the ranking rather than picking the next one to run.
func (r *Registry) RankedBySalience(ctx Context, limit int, includePassing bool, now time.Time) []Scored {
	var scored []Scored
	for _, f := range r.features {
		if !includePassing && f.Passes {
			continue
		}
		scored = append(scored, Scored{Feature: f, Salience: Salience(f, ctx, now)})
	}
	sort.SliceStable(scored, func(i, j int) bool {
		if scored[i].Salience != scored[j].Salience {
			return scored[i].Salience > scored[j].Salience
		}
		return scored[i].Feature.Index < scored[j].Feature.Index
	})
	if limit > 0 && len(scored) > limit {
		scored = scored[:limit]
	}
	return scored
}

// Blocked returns every incomplete feature currently blocked by a
// dependency.
func (r *Registry) Blocked() []types.Feature {
	var out []types.Feature
	for _, f := range r.features {
		if !f.Passes && r.IsBlocked(f) {
			out = append(out, f)
		}
	}
	return out
}

// Search returns features whose description contains query,
// case-insensitively, in catalogue order.
func (r *Registry) Search(query string, limit int) []types.Feature {
	var out []types.Feature
	q := strings.ToLower(query)
	for _, f := range r.features {
		if strings.Contains(strings.ToLower(f.Description), q) {
			out = append(out, f)
			if limit > 0 && len(out) >= limit {
				break
			}
		}
	}
	return out
}
