// Package pipeline orchestrates grading: testbench resolution once per
// assignment, then a bounded worker pool grading submissions concurrently,
// each through the sandbox -> compile -> run -> parse -> score stages.
package pipeline

import (
	"context"
	"sync"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"hdlgrade/internal/grader/archive"
	"hdlgrade/internal/grader/model"
	"hdlgrade/internal/grader/reportstore"
	"hdlgrade/internal/grader/resultparse"
	"hdlgrade/internal/grader/sandbox"
	"hdlgrade/internal/grader/score"
	"hdlgrade/internal/grader/testbench"
	"hdlgrade/internal/lms"
	appErr "hdlgrade/pkg/errors"
	"hdlgrade/pkg/utils/contextkey"
	"hdlgrade/pkg/utils/logger"
)

const (
	defaultPoolSize    = 4
	defaultPostRetries = 3
	defaultPostBackoff = 2 * time.Second
)

// BuildRunner runs the compile+simulate phase for one sandbox.
type BuildRunner interface {
	BuildAndRun(ctx context.Context, sb *sandbox.Sandbox) (model.ExecOutcome, error)
}

// Retainer applies the sandbox retention policy after grading.
type Retainer interface {
	Retain(ctx context.Context, sb *sandbox.Sandbox) error
}

var _ Retainer = (*archive.Keeper)(nil)

// Config holds orchestration settings.
type Config struct {
	// PoolSize bounds how many submissions grade concurrently.
	PoolSize int `yaml:"poolSize"`
	// Force regrades submissions that already carry a score.
	Force bool `yaml:"force"`
	// PostComments attaches the report text as a submission comment.
	PostComments bool `yaml:"postComments"`
	// PostRetries bounds grade posting attempts per submission.
	PostRetries int `yaml:"postRetries"`
	// PostBackoff is the delay between posting attempts.
	PostBackoff time.Duration `yaml:"postBackoff"`
}

// Pipeline wires the grading collaborators together.
type Pipeline struct {
	roster    lms.Roster
	reporter  lms.Reporter
	resolver  *testbench.Resolver
	sandboxes *sandbox.Manager
	runner    BuildRunner
	parser    *resultparse.Parser
	scorer    *score.Scorer
	store     reportstore.Store
	keeper    Retainer
	cfg       Config
}

// New creates a pipeline. store and keeper may be nil; persistence and
// retention are then skipped.
func New(roster lms.Roster, reporter lms.Reporter, resolver *testbench.Resolver,
	sandboxes *sandbox.Manager, runner BuildRunner, parser *resultparse.Parser,
	scorer *score.Scorer, store reportstore.Store, keeper Retainer, cfg Config) (*Pipeline, error) {
	if roster == nil || reporter == nil {
		return nil, appErr.ValidationError("lms", "roster and reporter required")
	}
	if resolver == nil || sandboxes == nil || runner == nil {
		return nil, appErr.ValidationError("pipeline", "resolver, sandbox manager and runner required")
	}
	if parser == nil {
		parser = resultparse.New("")
	}
	if scorer == nil {
		scorer = score.New(0)
	}
	if cfg.PoolSize <= 0 {
		cfg.PoolSize = defaultPoolSize
	}
	if cfg.PostRetries <= 0 {
		cfg.PostRetries = defaultPostRetries
	}
	if cfg.PostBackoff <= 0 {
		cfg.PostBackoff = defaultPostBackoff
	}
	return &Pipeline{
		roster:    roster,
		reporter:  reporter,
		resolver:  resolver,
		sandboxes: sandboxes,
		runner:    runner,
		parser:    parser,
		scorer:    scorer,
		store:     store,
		keeper:    keeper,
		cfg:       cfg,
	}, nil
}

// AssignmentSummary aggregates one assignment's run.
type AssignmentSummary struct {
	AssignmentID string
	Name         string
	// SkipReason is set when the whole assignment was skipped (testbench not
	// ready or missing); no submissions were touched.
	SkipReason   string
	Graded       int
	Skipped      int
	PostFailures int
	Reports      []model.GradeReport
}

// RunSummary aggregates a whole grading run.
type RunSummary struct {
	RunID       string
	Assignments []AssignmentSummary
}

// Run grades every listed assignment sequentially. A per-assignment skip
// (testbench not ready, missing, or unknown assignment) never aborts the run;
// the summary records it and the next assignment proceeds.
func (p *Pipeline) Run(ctx context.Context, assignmentIDs []string) (RunSummary, error) {
	runID := uuid.NewString()
	ctx = context.WithValue(ctx, contextkey.RunID, runID)
	summary := RunSummary{RunID: runID}

	logger.Info(ctx, "grading run started",
		zap.Int("assignments", len(assignmentIDs)),
		zap.Int("pool_size", p.cfg.PoolSize))

	for _, assignmentID := range assignmentIDs {
		if err := ctx.Err(); err != nil {
			summary.Assignments = append(summary.Assignments, AssignmentSummary{
				AssignmentID: assignmentID,
				SkipReason:   "run cancelled before assignment started",
			})
			continue
		}
		summary.Assignments = append(summary.Assignments, p.runAssignment(ctx, assignmentID))
	}

	logger.Info(ctx, "grading run finished",
		zap.Int("assignments", len(summary.Assignments)))
	return summary, ctx.Err()
}

func (p *Pipeline) runAssignment(parent context.Context, assignmentID string) AssignmentSummary {
	ctx := context.WithValue(parent, contextkey.AssignmentID, assignmentID)
	summary := AssignmentSummary{AssignmentID: assignmentID}

	assignment, err := p.roster.GetAssignment(ctx, assignmentID)
	if err != nil {
		logger.Warn(ctx, "assignment lookup failed, skipping", zap.Error(err))
		summary.SkipReason = "assignment lookup failed: " + err.Error()
		return summary
	}
	summary.Name = assignment.Name

	// Resolved once; every submission of this assignment runs against the
	// same testbench file.
	tbPath, err := p.resolver.Resolve(ctx, assignmentID)
	if err != nil {
		switch {
		case appErr.Is(err, appErr.TestbenchNotReady):
			summary.SkipReason = "testbench directory created, add a testbench and rerun"
		case appErr.Is(err, appErr.TestbenchMissing):
			summary.SkipReason = "no testbench file present"
		default:
			summary.SkipReason = "testbench resolution failed: " + err.Error()
		}
		logger.Warn(ctx, "assignment skipped", zap.String("reason", summary.SkipReason))
		return summary
	}

	students, err := p.roster.ListStudents(ctx, assignmentID)
	if err != nil {
		logger.Warn(ctx, "roster unavailable, skipping assignment", zap.Error(err))
		summary.SkipReason = "roster unavailable: " + err.Error()
		return summary
	}

	var (
		mu  sync.Mutex
		wg  sync.WaitGroup
		sem = make(chan struct{}, p.cfg.PoolSize)
	)
	for _, student := range students {
		// A cancelled run stops admitting work; in-flight submissions
		// finish and report, queued ones are counted as skipped.
		if ctx.Err() != nil {
			mu.Lock()
			summary.Skipped++
			mu.Unlock()
			continue
		}
		sem <- struct{}{}
		wg.Add(1)
		go func(student lms.Student) {
			defer wg.Done()
			defer func() { <-sem }()

			report, graded, postFailed := p.gradeStudent(ctx, assignment, student, tbPath)
			mu.Lock()
			defer mu.Unlock()
			if !graded {
				summary.Skipped++
				return
			}
			summary.Graded++
			if postFailed {
				summary.PostFailures++
			}
			summary.Reports = append(summary.Reports, report)
		}(student)
	}
	wg.Wait()

	logger.Info(ctx, "assignment graded",
		zap.String("assignment_name", assignment.Name),
		zap.Int("graded", summary.Graded),
		zap.Int("skipped", summary.Skipped),
		zap.Int("post_failures", summary.PostFailures))
	return summary
}

// gradeStudent returns the report plus whether the submission was graded and
// whether the grade post ultimately failed.
func (p *Pipeline) gradeStudent(parent context.Context, assignment model.Assignment, student lms.Student, tbPath string) (model.GradeReport, bool, bool) {
	ctx := context.WithValue(parent, contextkey.StudentID, student.ID)

	sub, err := p.roster.ListSubmissionFiles(ctx, assignment.ID, student.ID)
	if err != nil {
		logger.Warn(ctx, "submission fetch failed, skipping student", zap.Error(err))
		return model.GradeReport{}, false, false
	}
	if sub == nil {
		logger.Debug(ctx, "no submission, skipping student")
		return model.GradeReport{}, false, false
	}
	if sub.Scored && !p.cfg.Force {
		logger.Debug(ctx, "already scored, skipping student")
		return model.GradeReport{}, false, false
	}

	report, postFailed := p.gradeSubmission(ctx, assignment, sub, tbPath)
	p.persist(ctx, report)
	return report, true, postFailed
}

// gradeSubmission walks one submission through the stages and always returns a
// terminal report, StageScored or StageFailed. Either terminal delivers
// exactly one report to the reporter; a Failed terminal posts a zero with the
// failure reason in the comment. The boolean reports whether the grade post
// ultimately failed.
func (p *Pipeline) gradeSubmission(ctx context.Context, assignment model.Assignment, sub *model.Submission, tbPath string) (model.GradeReport, bool) {
	runID, _ := ctx.Value(contextkey.RunID).(string)
	report := model.GradeReport{
		RunID:        runID,
		AssignmentID: assignment.ID,
		StudentID:    sub.StudentID,
		Stage:        model.StageSandboxing,
		GradedAt:     time.Now().UTC(),
	}

	sb, err := p.sandboxes.Create(ctx, assignment.ID, sub.StudentID, sub.Files, tbPath)
	if err != nil {
		// A submission with no usable source files is a gradable zero, not
		// an infrastructure failure.
		if appErr.Is(err, appErr.SandboxNoSources) {
			report.Stage = model.StageScored
			report.NoOutput = true
			report.Comment = "Autograded HDL assignment.\n" +
				"No source files with the expected extension were found in the submission.\n"
			p.persist(ctx, report)
			postFailed := p.deliver(ctx, assignment, &report)
			return report, postFailed
		}
		return p.failed(ctx, assignment, report, "sandbox creation failed", err)
	}
	defer func() {
		if p.keeper == nil {
			return
		}
		if err := p.keeper.Retain(ctx, sb); err != nil {
			logger.Error(ctx, "sandbox retention failed", zap.Error(err))
		}
	}()

	report.Stage = model.StageCompiling
	exec, err := p.runner.BuildAndRun(ctx, sb)
	if err != nil {
		return p.failed(ctx, assignment, report, "build and run failed", err)
	}
	report.Stage = model.StageParsing
	outcomes := p.parser.Parse(exec.Output())

	summary, comment := p.scorer.Score(exec, outcomes)
	report.Stage = model.StageScored
	report.Score = summary.Score
	report.Passed = summary.Passed
	report.Total = summary.Total
	report.TimedOut = summary.TimedOut
	report.NoOutput = summary.NoOutput
	report.Outcomes = outcomes
	report.Comment = comment
	report.PostedScore = summary.Score / 100 * assignment.PointsPossible
	report.GradedAt = time.Now().UTC()

	// Persisted before posting so the score survives a lost LMS call; the
	// caller saves again afterwards to record any posting failure.
	p.persist(ctx, report)
	postFailed := p.deliver(ctx, assignment, &report)

	logger.Info(ctx, "submission graded",
		zap.Float64("score", report.Score),
		zap.Float64("posted_score", report.PostedScore),
		zap.Int("passed", report.Passed),
		zap.Int("total", report.Total))
	return report, postFailed
}

// persist is best effort; a store failure never blocks grading or posting.
func (p *Pipeline) persist(ctx context.Context, report model.GradeReport) {
	if p.store == nil {
		return
	}
	if err := p.store.Save(ctx, report); err != nil {
		logger.Error(ctx, "persist grade report failed", zap.Error(err))
	}
}

// deliver posts the grade (with retries) and optionally the comment. It
// reports whether the grade post ultimately failed; an earlier FailReason is
// kept and the posting failure appended.
func (p *Pipeline) deliver(ctx context.Context, assignment model.Assignment, report *model.GradeReport) bool {
	if err := p.postGrade(ctx, assignment.ID, report.StudentID, report.PostedScore); err != nil {
		logger.Error(ctx, "grade post failed after retries", zap.Error(err))
		reason := "grade post failed: " + err.Error()
		if report.FailReason != "" {
			reason = report.FailReason + "; " + reason
		}
		report.FailReason = reason
		return true
	}
	if p.cfg.PostComments {
		if err := p.reporter.PostComment(ctx, assignment.ID, report.StudentID, report.Comment); err != nil {
			// The numeric grade landed; a lost comment is logged, not fatal.
			logger.Warn(ctx, "comment post failed", zap.Error(err))
		}
	}
	return false
}

// failed folds an infrastructure error into a Failed terminal. The report is
// still persisted and a zero posted, so every graded submission attempt
// reaches the reporter exactly once.
func (p *Pipeline) failed(ctx context.Context, assignment model.Assignment, report model.GradeReport, reason string, err error) (model.GradeReport, bool) {
	logger.Error(ctx, reason,
		zap.String("stage", string(report.Stage)),
		zap.Error(err))
	report.FailReason = reason + ": " + err.Error()
	report.Stage = model.StageFailed
	report.Comment = "Autograded HDL assignment.\n" +
		"Grading could not complete: " + report.FailReason + "\n"
	report.GradedAt = time.Now().UTC()
	p.persist(ctx, report)
	postFailed := p.deliver(ctx, assignment, &report)
	return report, postFailed
}

// postGrade retries with a fixed backoff; transient LMS errors should not
// cost a student their grade.
func (p *Pipeline) postGrade(ctx context.Context, assignmentID, studentID string, score float64) error {
	var lastErr error
	for attempt := 1; attempt <= p.cfg.PostRetries; attempt++ {
		lastErr = p.reporter.PostGrade(ctx, assignmentID, studentID, score)
		if lastErr == nil {
			return nil
		}
		logger.Warn(ctx, "grade post attempt failed",
			zap.Int("attempt", attempt),
			zap.Error(lastErr))
		if attempt == p.cfg.PostRetries {
			break
		}
		select {
		case <-ctx.Done():
			return appErr.Wrap(ctx.Err(), appErr.GradePostFailed)
		case <-time.After(p.cfg.PostBackoff):
		}
	}
	return appErr.Wrap(lastErr, appErr.GradePostFailed)
}
