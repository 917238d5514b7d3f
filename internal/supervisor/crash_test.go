package supervisor

import (
	"testing"

	"github.com/stretchr/testify/assert"

	"github.com/webrlabs/arcadiaforge/internal/types"
)

func TestSessionEndedTrue(t *testing.T) {
	events := []types.Event{
		{Type: types.EventToolCall},
		{Type: types.EventSessionEnd},
	}
	assert.True(t, sessionEnded(events))
}

func TestSessionEndedFalseWhenMissing(t *testing.T) {
	events := []types.Event{
		{Type: types.EventToolCall},
		{Type: types.EventToolResult},
	}
	assert.False(t, sessionEnded(events))
}

func TestSessionEndedFalseOnEmptyLog(t *testing.T) {
	assert.False(t, sessionEnded(nil))
}
