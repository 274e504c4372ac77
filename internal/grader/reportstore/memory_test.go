package reportstore

import (
	"context"
	"testing"
	"time"

	"hdlgrade/internal/grader/model"
	appErr "hdlgrade/pkg/errors"
)

func report(run, student string, score float64, at time.Time) model.GradeReport {
	return model.GradeReport{
		RunID:        run,
		AssignmentID: "101",
		StudentID:    student,
		Stage:        model.StageScored,
		Score:        score,
		GradedAt:     at,
	}
}

func TestSaveUpsertsWithinRun(t *testing.T) {
	t.Parallel()
	s := NewMemoryStore()
	ctx := context.Background()
	now := time.Now()

	if err := s.Save(ctx, report("run-1", "42", 50, now)); err != nil {
		t.Fatal(err)
	}
	if err := s.Save(ctx, report("run-1", "42", 75, now.Add(time.Minute))); err != nil {
		t.Fatal(err)
	}

	got, err := s.Get(ctx, "101", "42")
	if err != nil {
		t.Fatal(err)
	}
	if got.Score != 75 {
		t.Fatalf("regrade in the same run must overwrite, got score %v", got.Score)
	}
	list, err := s.ListByAssignment(ctx, "101")
	if err != nil {
		t.Fatal(err)
	}
	if len(list) != 1 {
		t.Fatalf("expected one report after upsert, got %d", len(list))
	}
}

func TestGetReturnsLatestAcrossRuns(t *testing.T) {
	t.Parallel()
	s := NewMemoryStore()
	ctx := context.Background()
	now := time.Now()

	_ = s.Save(ctx, report("run-1", "42", 25, now))
	_ = s.Save(ctx, report("run-2", "42", 100, now.Add(time.Hour)))

	got, err := s.Get(ctx, "101", "42")
	if err != nil {
		t.Fatal(err)
	}
	if got.RunID != "run-2" || got.Score != 100 {
		t.Fatalf("expected latest run's report, got %+v", got)
	}
}

func TestListOnePerStudentNewestFirst(t *testing.T) {
	t.Parallel()
	s := NewMemoryStore()
	ctx := context.Background()
	now := time.Now()

	_ = s.Save(ctx, report("run-1", "42", 25, now))
	_ = s.Save(ctx, report("run-2", "42", 50, now.Add(time.Hour)))
	_ = s.Save(ctx, report("run-2", "43", 80, now.Add(2*time.Hour)))

	list, err := s.ListByAssignment(ctx, "101")
	if err != nil {
		t.Fatal(err)
	}
	if len(list) != 2 {
		t.Fatalf("expected one row per student, got %d", len(list))
	}
	if list[0].StudentID != "43" {
		t.Fatalf("expected newest first, got %+v", list)
	}
	if list[1].Score != 50 {
		t.Fatalf("expected latest report for student 42, got %+v", list[1])
	}
}

func TestGetUnknownIsRecordNotFound(t *testing.T) {
	t.Parallel()
	s := NewMemoryStore()
	_, err := s.Get(context.Background(), "101", "nope")
	if !appErr.Is(err, appErr.RecordNotFound) {
		t.Fatalf("expected RecordNotFound, got %v", err)
	}
}
