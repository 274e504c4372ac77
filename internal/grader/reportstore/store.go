// Package reportstore persists grade reports so regrades and the report API
// can see what was posted and why.
package reportstore

import (
	"context"

	"hdlgrade/internal/grader/model"
)

// Store records the terminal grade report of every graded submission. Save is
// an upsert keyed on (run, assignment, student): regrading a submission in the
// same run overwrites its previous report.
type Store interface {
	Save(ctx context.Context, report model.GradeReport) error
	// Get returns the most recent report for the submission key.
	Get(ctx context.Context, assignmentID, studentID string) (model.GradeReport, error)
	// ListByAssignment returns the most recent report per student, newest first.
	ListByAssignment(ctx context.Context, assignmentID string) ([]model.GradeReport, error)
}
