package sqlite

import (
	"fmt"

	"github.com/webrlabs/arcadiaforge/internal/types"
)

// SaveFailureReport inserts a new Failure Report row and returns its id.
func (s *Store) SaveFailureReport(r types.FailureReport) (int64, error) {
	errorMessages, err := marshalJSON(r.ErrorMessages)
	if err != nil {
		return 0, err
	}
	similar, err := marshalJSON(r.SimilarPastFailures)
	if err != nil {
		return 0, err
	}
	fixes, err := marshalJSON(r.SuggestedFixes)
	if err != nil {
		return 0, err
	}

	res, err := s.db.Exec(`
		INSERT INTO failure_reports (
			session_id, category, last_successful_action, failing_action,
			error_messages, likely_cause, confidence, similar_past_failures,
			suggested_fixes, created_at
		) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
	`,
		r.SessionID, string(r.Category), r.LastSuccessfulAction, r.FailingAction,
		errorMessages, r.LikelyCause, r.Confidence, similar,
		fixes, r.CreatedAt,
	)
	if err != nil {
		return 0, fmt.Errorf("save failure report: %w", err)
	}
	return res.LastInsertId()
}
