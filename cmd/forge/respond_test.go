package main

import (
	"strings"
	"testing"

	"github.com/webrlabs/arcadiaforge/internal/types"
)

func TestPickInjectionPointByID(t *testing.T) {
	pending := []types.InjectionPoint{
		{ID: 1, Context: "first"},
		{ID: 2, Context: "second"},
	}

	got, err := pickInjectionPoint(pending, 2)
	if err != nil {
		t.Fatalf("pickInjectionPoint: %v", err)
	}
	if got.Context != "second" {
		t.Errorf("got %q, want second", got.Context)
	}
}

func TestPickInjectionPointUnknownID(t *testing.T) {
	pending := []types.InjectionPoint{{ID: 1, Context: "first"}}

	if _, err := pickInjectionPoint(pending, 99); err == nil {
		t.Error("expected an error for a point id that is not pending")
	}
}

func TestPickInjectionPointSingleCandidateNeedsNoPrompt(t *testing.T) {
	pending := []types.InjectionPoint{{ID: 5, Context: "only one"}}

	got, err := pickInjectionPoint(pending, 0)
	if err != nil {
		t.Fatalf("pickInjectionPoint: %v", err)
	}
	if got.ID != 5 {
		t.Errorf("got ID %d, want 5", got.ID)
	}
}

func TestRenderInjectionPointIncludesRecommendation(t *testing.T) {
	point := types.InjectionPoint{
		ID:             9,
		Type:           types.InjectionDecision,
		Context:        "pick a caching strategy",
		Recommendation: "use an LRU cache",
	}

	out := renderInjectionPoint(point)
	if !strings.Contains(out, "pick a caching strategy") {
		t.Error("expected the context to appear")
	}
	if !strings.Contains(out, "use an LRU cache") {
		t.Error("expected the recommendation to appear")
	}
}
