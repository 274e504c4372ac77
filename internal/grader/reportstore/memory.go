package reportstore

import (
	"context"
	"sort"
	"sync"

	"hdlgrade/internal/grader/model"
	appErr "hdlgrade/pkg/errors"
)

// MemoryStore is an in-process Store used when no database is configured.
type MemoryStore struct {
	mu      sync.RWMutex
	reports map[string][]model.GradeReport // keyed by assignment id, append order
}

var _ Store = (*MemoryStore)(nil)

// NewMemoryStore creates an empty in-memory store.
func NewMemoryStore() *MemoryStore {
	return &MemoryStore{reports: make(map[string][]model.GradeReport)}
}

func (m *MemoryStore) Save(_ context.Context, report model.GradeReport) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	list := m.reports[report.AssignmentID]
	for i, existing := range list {
		if existing.RunID == report.RunID && existing.StudentID == report.StudentID {
			list[i] = report
			return nil
		}
	}
	m.reports[report.AssignmentID] = append(list, report)
	return nil
}

func (m *MemoryStore) Get(_ context.Context, assignmentID, studentID string) (model.GradeReport, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	list := m.reports[assignmentID]
	for i := len(list) - 1; i >= 0; i-- {
		if list[i].StudentID == studentID {
			return list[i], nil
		}
	}
	return model.GradeReport{}, appErr.Newf(appErr.RecordNotFound,
		"no grade report for assignment %s student %s", assignmentID, studentID)
}

func (m *MemoryStore) ListByAssignment(_ context.Context, assignmentID string) ([]model.GradeReport, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	latest := make(map[string]model.GradeReport)
	for _, report := range m.reports[assignmentID] {
		latest[report.StudentID] = report
	}
	out := make([]model.GradeReport, 0, len(latest))
	for _, report := range latest {
		out = append(out, report)
	}
	sort.Slice(out, func(i, j int) bool {
		if out[i].GradedAt.Equal(out[j].GradedAt) {
			return out[i].StudentID < out[j].StudentID
		}
		return out[i].GradedAt.After(out[j].GradedAt)
	})
	return out, nil
}
