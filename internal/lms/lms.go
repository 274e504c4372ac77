// Package lms defines the boundary to the learning-management-system
// collaborator. The grading core only ever talks to these interfaces.
package lms

import (
	"context"

	"hdlgrade/internal/grader/model"
)

// Student identifies one enrolled student.
type Student struct {
	ID   string
	Name string
}

// Roster supplies assignments, students and submission files.
type Roster interface {
	// GetAssignment resolves an assignment id to its metadata.
	GetAssignment(ctx context.Context, assignmentID string) (model.Assignment, error)
	// ListStudents returns every student enrolled for the assignment's course.
	ListStudents(ctx context.Context, assignmentID string) ([]Student, error)
	// ListSubmissionFiles fetches one student's submission including file
	// contents. A nil submission means the student has not submitted.
	ListSubmissionFiles(ctx context.Context, assignmentID, studentID string) (*model.Submission, error)
}

// Reporter receives the grading results. PostGrade is called exactly once per
// graded submission after its pipeline reaches a terminal state.
type Reporter interface {
	PostGrade(ctx context.Context, assignmentID, studentID string, score float64) error
	PostComment(ctx context.Context, assignmentID, studentID, comment string) error
}
