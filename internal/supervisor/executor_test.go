package supervisor

import (
	"testing"

	"github.com/stretchr/testify/assert"

	"github.com/webrlabs/arcadiaforge/internal/agent"
	"github.com/webrlabs/arcadiaforge/internal/types"
)

func TestUsageStamperConsumesOnce(t *testing.T) {
	s := &usageStamper{}
	s.set(agent.Usage{InputTokens: 100, OutputTokens: 50})

	first := s.take()
	assert.Equal(t, types.TokenUsage{InputTokens: 100, OutputTokens: 50}, first)

	second := s.take()
	assert.Equal(t, types.TokenUsage{}, second)
}

func TestUsageStamperLatestOverwritesUnconsumed(t *testing.T) {
	s := &usageStamper{}
	s.set(agent.Usage{InputTokens: 10, OutputTokens: 5})
	s.set(agent.Usage{InputTokens: 20, OutputTokens: 15})

	assert.Equal(t, types.TokenUsage{InputTokens: 20, OutputTokens: 15}, s.take())
}

func TestExtractConfidencePresent(t *testing.T) {
	c := extractConfidence(map[string]any{"confidence": 0.75})
	if assert.NotNil(t, c) {
		assert.Equal(t, 0.75, *c)
	}
}

func TestExtractConfidenceAbsent(t *testing.T) {
	assert.Nil(t, extractConfidence(map[string]any{}))
}

func TestExtractConfidenceWrongType(t *testing.T) {
	assert.Nil(t, extractConfidence(map[string]any{"confidence": "high"}))
}

func TestRenderOutputNilIsEmptyObject(t *testing.T) {
	assert.Equal(t, "{}", renderOutput(nil))
}

func TestRenderOutputMarshalsMap(t *testing.T) {
	out := renderOutput(map[string]any{"passes": true})
	assert.JSONEq(t, `{"passes": true}`, out)
}

func TestToolNamesFollowCatalogOrder(t *testing.T) {
	catalog := []agent.ToolSpec{{Name: "Read"}, {Name: "Write"}}
	assert.Equal(t, []string{"Read", "Write"}, toolNames(catalog))
}
