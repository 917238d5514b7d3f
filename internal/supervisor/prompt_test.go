package supervisor

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"

	"github.com/webrlabs/arcadiaforge/internal/feature"
	"github.com/webrlabs/arcadiaforge/internal/types"
)

func TestComposePromptIncludesResumePrompt(t *testing.T) {
	system, user := composePrompt(promptInput{
		ResumePrompt:    "pick up feature 3 where you left off",
		CapabilityNames: []string{"Read", "Write"},
	})

	assert.Contains(t, system, "Available tools: Read, Write")
	assert.Contains(t, user, "Resuming a paused session")
	assert.Contains(t, user, "pick up feature 3")
}

func TestComposePromptListsCandidatesBySalience(t *testing.T) {
	candidates := []feature.Scored{
		{Feature: types.Feature{Index: 1, Category: types.CategoryFunctional, Description: "parse config"}, Salience: 0.8},
		{Feature: types.Feature{Index: 2, Category: types.CategoryStyle, Description: "format output"}, Salience: 0.3},
	}

	_, user := composePrompt(promptInput{Candidates: candidates})

	assert.Contains(t, user, "#1 [functional]")
	assert.Contains(t, user, "parse config")
	assert.Contains(t, user, "#2 [style]")
}

func TestComposePromptNoCandidatesSaysSo(t *testing.T) {
	_, user := composePrompt(promptInput{})
	assert.Contains(t, user, "No incomplete features remain unblocked")
}

func TestComposePromptIncludesWarmSummaryIssues(t *testing.T) {
	warm := []types.WarmSummary{
		{
			SessionID:    5,
			StatusString: "success",
			Accomplished: []string{"implemented login"},
			IssuesFound:  []string{"flaky test in auth package"},
			NextSteps:    []string{"resolve flaky test"},
			CreatedAt:    time.Now(),
		},
	}

	_, user := composePrompt(promptInput{WarmSummaries: warm})

	assert.Contains(t, user, "session 5 (success)")
	assert.Contains(t, user, "implemented login")
	assert.Contains(t, user, "flaky test in auth package")
	assert.Contains(t, user, "resolve flaky test")
}
