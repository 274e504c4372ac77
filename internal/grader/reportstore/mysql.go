package reportstore

import (
	"context"
	"database/sql"
	"encoding/json"

	"hdlgrade/internal/grader/model"
	appErr "hdlgrade/pkg/errors"
)

// Schema is the DDL for the grade report table. Outcomes are stored as a JSON
// document since the report API returns them opaquely.
const Schema = `
CREATE TABLE IF NOT EXISTS grade_reports (
    id            BIGINT UNSIGNED NOT NULL AUTO_INCREMENT,
    run_id        VARCHAR(64)  NOT NULL,
    assignment_id VARCHAR(64)  NOT NULL,
    student_id    VARCHAR(64)  NOT NULL,
    stage         VARCHAR(32)  NOT NULL,
    score         DOUBLE       NOT NULL,
    posted_score  DOUBLE       NOT NULL,
    passed        INT          NOT NULL,
    total         INT          NOT NULL,
    outcomes      JSON         NULL,
    comment       MEDIUMTEXT   NOT NULL,
    timed_out     TINYINT(1)   NOT NULL DEFAULT 0,
    no_output     TINYINT(1)   NOT NULL DEFAULT 0,
    fail_reason   TEXT         NOT NULL,
    graded_at     DATETIME(6)  NOT NULL,
    PRIMARY KEY (id),
    UNIQUE KEY uk_run_submission (run_id, assignment_id, student_id),
    KEY idx_assignment_graded (assignment_id, graded_at)
) ENGINE=InnoDB DEFAULT CHARSET=utf8mb4;
`

// MySQLStore implements Store on a MySQL connection pool.
type MySQLStore struct {
	db *sql.DB
}

var _ Store = (*MySQLStore)(nil)

// NewMySQLStore wraps an open connection pool.
func NewMySQLStore(db *sql.DB) (*MySQLStore, error) {
	if db == nil {
		return nil, appErr.ValidationError("db", "required")
	}
	return &MySQLStore{db: db}, nil
}

// EnsureSchema creates the grade report table if it does not exist.
func (s *MySQLStore) EnsureSchema(ctx context.Context) error {
	if _, err := s.db.ExecContext(ctx, Schema); err != nil {
		return appErr.Wrapf(err, appErr.DatabaseError, "create grade_reports table failed")
	}
	return nil
}

func (s *MySQLStore) Save(ctx context.Context, report model.GradeReport) error {
	outcomes, err := json.Marshal(report.Outcomes)
	if err != nil {
		return appErr.Wrapf(err, appErr.DatabaseError, "encode outcomes failed")
	}

	const query = `
INSERT INTO grade_reports
    (run_id, assignment_id, student_id, stage, score, posted_score,
     passed, total, outcomes, comment, timed_out, no_output, fail_reason, graded_at)
VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
ON DUPLICATE KEY UPDATE
    stage = VALUES(stage), score = VALUES(score), posted_score = VALUES(posted_score),
    passed = VALUES(passed), total = VALUES(total), outcomes = VALUES(outcomes),
    comment = VALUES(comment), timed_out = VALUES(timed_out),
    no_output = VALUES(no_output), fail_reason = VALUES(fail_reason),
    graded_at = VALUES(graded_at)`

	_, err = s.db.ExecContext(ctx, query,
		report.RunID, report.AssignmentID, report.StudentID, string(report.Stage),
		report.Score, report.PostedScore, report.Passed, report.Total,
		outcomes, report.Comment, report.TimedOut, report.NoOutput,
		report.FailReason, report.GradedAt)
	if err != nil {
		return appErr.Wrapf(err, appErr.DatabaseError, "save grade report failed")
	}
	return nil
}

func (s *MySQLStore) Get(ctx context.Context, assignmentID, studentID string) (model.GradeReport, error) {
	const query = selectColumns + `
WHERE assignment_id = ? AND student_id = ?
ORDER BY graded_at DESC
LIMIT 1`

	row := s.db.QueryRowContext(ctx, query, assignmentID, studentID)
	report, err := scanReport(row)
	if err == sql.ErrNoRows {
		return model.GradeReport{}, appErr.Newf(appErr.RecordNotFound,
			"no grade report for assignment %s student %s", assignmentID, studentID)
	}
	if err != nil {
		return model.GradeReport{}, appErr.Wrapf(err, appErr.DatabaseError, "load grade report failed")
	}
	return report, nil
}

func (s *MySQLStore) ListByAssignment(ctx context.Context, assignmentID string) ([]model.GradeReport, error) {
	// One row per student: the latest graded_at wins.
	const query = selectColumns + `
WHERE assignment_id = ?
  AND id IN (
      SELECT MAX(id) FROM grade_reports WHERE assignment_id = ? GROUP BY student_id
  )
ORDER BY graded_at DESC`

	rows, err := s.db.QueryContext(ctx, query, assignmentID, assignmentID)
	if err != nil {
		return nil, appErr.Wrapf(err, appErr.DatabaseError, "list grade reports failed")
	}
	defer func() { _ = rows.Close() }()

	var reports []model.GradeReport
	for rows.Next() {
		report, err := scanReport(rows)
		if err != nil {
			return nil, appErr.Wrapf(err, appErr.DatabaseError, "scan grade report failed")
		}
		reports = append(reports, report)
	}
	if err := rows.Err(); err != nil {
		return nil, appErr.Wrapf(err, appErr.DatabaseError, "iterate grade reports failed")
	}
	return reports, nil
}

const selectColumns = `
SELECT run_id, assignment_id, student_id, stage, score, posted_score,
       passed, total, outcomes, comment, timed_out, no_output, fail_reason, graded_at
FROM grade_reports`

type scannable interface {
	Scan(dest ...interface{}) error
}

func scanReport(row scannable) (model.GradeReport, error) {
	var (
		report   model.GradeReport
		stage    string
		outcomes []byte
	)
	err := row.Scan(&report.RunID, &report.AssignmentID, &report.StudentID, &stage,
		&report.Score, &report.PostedScore, &report.Passed, &report.Total,
		&outcomes, &report.Comment, &report.TimedOut, &report.NoOutput,
		&report.FailReason, &report.GradedAt)
	if err != nil {
		return model.GradeReport{}, err
	}
	report.Stage = model.Stage(stage)
	if len(outcomes) > 0 {
		if err := json.Unmarshal(outcomes, &report.Outcomes); err != nil {
			return model.GradeReport{}, err
		}
	}
	return report, nil
}
