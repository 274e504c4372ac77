// Package score reduces parsed test outcomes plus the executor outcome into
// a numeric score and a human-readable report.
package score

import (
	"fmt"
	"strings"

	"hdlgrade/internal/grader/model"
	"hdlgrade/internal/grader/resultparse"
)

const defaultMaxDiagnosticBytes = 8 * 1024

// Summary is the scorer's output: a 0-100 score plus the rendered comment.
type Summary struct {
	Score    float64
	Passed   int
	Total    int
	TimedOut bool
	NoOutput bool
}

// Scorer renders deterministic reports: identical inputs produce byte-identical
// comment text, which keeps re-grading audits trivial to diff.
type Scorer struct {
	maxDiagnosticBytes int
}

// New creates a scorer. maxDiagnosticBytes bounds embedded compiler/simulator
// diagnostics (0 selects the default).
func New(maxDiagnosticBytes int) *Scorer {
	if maxDiagnosticBytes <= 0 {
		maxDiagnosticBytes = defaultMaxDiagnosticBytes
	}
	return &Scorer{maxDiagnosticBytes: maxDiagnosticBytes}
}

// Score computes the summary and comment for one submission.
//
// Score = 100 * PASS / total outcomes observed. Zero observed outcomes score 0
// with an explicit "no grading output detected" note, which is distinct from
// n observed outcomes that all failed.
func (s *Scorer) Score(exec model.ExecOutcome, outcomes []model.TestOutcome) (Summary, string) {
	if exec.Kind == model.ExecCompileFailed {
		return s.compileFailed(exec)
	}

	passed := 0
	for _, o := range outcomes {
		if o.Status == model.OutcomePass {
			passed++
		}
	}
	total := len(outcomes)

	summary := Summary{
		Passed:   passed,
		Total:    total,
		TimedOut: exec.Kind == model.ExecRunTimedOut,
		NoOutput: total == 0,
	}
	if total > 0 {
		summary.Score = 100 * float64(passed) / float64(total)
	}

	var b strings.Builder
	b.WriteString("Autograded HDL assignment.\n")
	if total > 0 {
		fraction := float64(passed) / float64(total)
		fmt.Fprintf(&b, "Tests passed: %d/%d (%.1f%%).\n", passed, total, fraction*100)
	} else {
		b.WriteString("No grading output detected (0 tests observed).\n")
	}

	switch exec.Kind {
	case model.ExecRunTimedOut:
		b.WriteString("NOTE: the simulation exceeded its time limit and was terminated; ")
		b.WriteString("the score covers only the tests completed before the timeout.\n")
	case model.ExecRunFailed:
		var exitCode int
		if exec.Run != nil {
			exitCode = exec.Run.ExitCode
		}
		fmt.Fprintf(&b, "NOTE: the simulator exited with status %d.\n", exitCode)
	}

	if malformed := resultparse.CountMalformed(outcomes); malformed > 0 {
		fmt.Fprintf(&b, "NOTE: %d grading line(s) were malformed and counted as FAIL.\n", malformed)
	}

	if total > 0 {
		b.WriteString("\nDetails:\n")
		for _, o := range outcomes {
			b.WriteString(o.Raw)
			b.WriteString("\n")
		}
	} else {
		// Raw output helps students debug a testbench that printed nothing
		// structured.
		if raw := strings.TrimSpace(exec.Output()); raw != "" {
			b.WriteString("\nRaw simulation output:\n")
			b.WriteString(s.bound(raw))
			b.WriteString("\n")
		}
		if exec.Run != nil && strings.TrimSpace(exec.Run.Stderr) != "" {
			b.WriteString("\nSimulator diagnostics:\n")
			b.WriteString(s.bound(strings.TrimSpace(exec.Run.Stderr)))
			b.WriteString("\n")
		}
	}

	return summary, b.String()
}

func (s *Scorer) compileFailed(exec model.ExecOutcome) (Summary, string) {
	summary := Summary{NoOutput: true, TimedOut: exec.Compile.TimedOut}

	var b strings.Builder
	b.WriteString("Autograded HDL assignment.\n")
	if exec.Compile.TimedOut {
		b.WriteString("Compilation exceeded its time limit and was terminated.\n")
	} else {
		b.WriteString("Compilation failed; the testbench was never run.\n")
	}

	diag := strings.TrimSpace(exec.Compile.Stderr)
	if diag == "" {
		diag = strings.TrimSpace(exec.Compile.Stdout)
	}
	if diag != "" {
		b.WriteString("\nCompiler diagnostics:\n")
		b.WriteString(s.bound(diag))
		b.WriteString("\n")
	}
	return summary, b.String()
}

func (s *Scorer) bound(text string) string {
	if len(text) <= s.maxDiagnosticBytes {
		return text
	}
	return text[:s.maxDiagnosticBytes] + "\n[diagnostics truncated]"
}
