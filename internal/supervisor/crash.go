package supervisor

import (
	"context"
	"fmt"
	"time"

	"github.com/webrlabs/arcadiaforge/internal/types"
)

// recoverCrash looks for a Session row left running with no matching
// SESSION_END event and closes it out with a synthetic one, the same
// gap the teacher's daemon fills in on restart after an unclean exit.
func (s *Supervisor) recoverCrash(ctx context.Context) error {
	latest, ok, err := s.deps.Sessions.LatestSession()
	if err != nil {
		return fmt.Errorf("load latest session: %w", err)
	}
	if !ok || latest.Status != types.SessionRunning {
		return nil
	}

	events, err := s.deps.EventLog.Iter(latest.ID)
	if err != nil {
		return fmt.Errorf("read event log for session %d: %w", latest.ID, err)
	}
	if sessionEnded(events) {
		return nil
	}

	s.emit(types.Event{
		SessionID: latest.ID,
		Type:      types.EventSessionEnd,
		Payload:   map[string]any{"synthetic": true, "type": "crash", "reason": "crash"},
	})

	if _, err := s.deps.Checkpoint.Create(ctx, latest.ID, types.TriggerErrorRecovery, nil, "crash recovery"); err != nil {
		return fmt.Errorf("crash recovery checkpoint: %w", err)
	}

	endTime := time.Now().UTC()
	latest.EndTime = &endTime
	latest.Status = types.SessionFailed
	latest.Summary = "session did not terminate cleanly; recovered on restart"
	return s.deps.Sessions.UpdateSession(latest)
}

func sessionEnded(events []types.Event) bool {
	for _, e := range events {
		if e.Type == types.EventSessionEnd {
			return true
		}
	}
	return false
}
