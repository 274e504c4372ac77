// Package model defines the grading domain types shared across the pipeline.
package model

import "time"

// Stage represents the lifecycle state of one submission's grading pipeline.
type Stage string

const (
	StagePending    Stage = "Pending"
	StageResolving  Stage = "ResolvingTestbench"
	StageSandboxing Stage = "Sandboxing"
	StageCompiling  Stage = "Compiling"
	StageRunning    Stage = "Running"
	StageParsing    Stage = "Parsing"
	StageScored     Stage = "Scored"
	StageFailed     Stage = "Failed"
)

// Assignment is one gradable unit identified by an opaque id.
type Assignment struct {
	ID             string
	Name           string
	PointsPossible float64
}

// SubmissionFile is one uploaded file, content byte-identical to the upload.
type SubmissionFile struct {
	Name    string
	Content []byte
}

// Submission is one student's set of source files for one assignment.
type Submission struct {
	AssignmentID  string
	StudentID     string
	StudentName   string
	WorkflowState string
	Scored        bool
	Files         []SubmissionFile
}

// ExecutionResult captures one external invocation (compile or run).
type ExecutionResult struct {
	ExitCode int
	Stdout   string
	Stderr   string
	Elapsed  time.Duration
	TimedOut bool
}

// OutcomeStatus is the parsed status token of a structured grading line.
type OutcomeStatus string

const (
	OutcomePass OutcomeStatus = "PASS"
	OutcomeFail OutcomeStatus = "FAIL"
)

// TestOutcome is the parsed representation of one structured grading line.
type TestOutcome struct {
	Name      string
	Status    OutcomeStatus
	Expected  string
	Got       string
	Malformed bool
	Raw       string
}

// ExecKind tags the closed set of build-and-run outcomes handed to the scorer.
type ExecKind string

const (
	ExecCompileFailed ExecKind = "CompileFailed"
	ExecRunCompleted  ExecKind = "RunCompleted"
	ExecRunTimedOut   ExecKind = "RunTimedOut"
	ExecRunFailed     ExecKind = "RunFailed"
)

// ExecOutcome is the tagged result of the compile+run phase for one submission.
// Compile is always populated; Run only when the compile step succeeded.
type ExecOutcome struct {
	Kind    ExecKind
	Compile ExecutionResult
	Run     *ExecutionResult
}

// Output returns the run stdout available for parsing. Partial output from a
// timed-out run is included so best-effort scoring still sees it.
func (o ExecOutcome) Output() string {
	if o.Run == nil {
		return ""
	}
	return o.Run.Stdout
}

// GradeReport is the terminal artifact of grading one submission.
// Score is on a 0-100 scale; PostedScore is scaled to the assignment's
// points_possible when reporting upstream.
type GradeReport struct {
	RunID        string
	AssignmentID string
	StudentID    string
	Stage        Stage
	Score        float64
	PostedScore  float64
	Passed       int
	Total        int
	Outcomes     []TestOutcome
	Comment      string
	TimedOut     bool
	NoOutput     bool
	FailReason   string
	GradedAt     time.Time
}
