package supervisor

import (
	"github.com/webrlabs/arcadiaforge/internal/memory"
	"github.com/webrlabs/arcadiaforge/internal/types"
)

// sessionObserver implements hooks.Observer: it forwards every event to
// the Event Log the way the bare emit helper does, and additionally
// folds TOOL_CALL/TOOL_RESULT/TOOL_ERROR payloads into Hot memory so
// SETTLE has something to synthesize into a Warm summary.
type sessionObserver struct {
	sup *Supervisor
	hot *memory.HotState
}

func (o *sessionObserver) Emit(event types.Event) {
	o.sup.emit(event)

	switch event.Type {
	case types.EventToolCall:
		tool, _ := event.Payload["tool"].(string)
		o.hot.AddAction(event.Timestamp, tool, "", tool)
	case types.EventToolResult:
		tool, _ := event.Payload["tool"].(string)
		o.hot.AddAction(event.Timestamp, tool, "ok", tool)
	case types.EventToolError:
		tool, _ := event.Payload["tool"].(string)
		message, _ := event.Payload["error"].(string)
		o.hot.AddError(event.Timestamp, tool, message, nil)
	}
}
