package executor

import (
	"context"
	"testing"

	"hdlgrade/internal/grader/model"
	"hdlgrade/internal/grader/sandbox"
	"hdlgrade/internal/grader/toolchain"
)

type fakeCompiler struct {
	res    model.ExecutionResult
	called bool
}

func (f *fakeCompiler) Compile(context.Context, toolchain.CompileRequest) (model.ExecutionResult, error) {
	f.called = true
	return f.res, nil
}

type fakeSimulator struct {
	res    model.ExecutionResult
	called bool
}

func (f *fakeSimulator) Simulate(context.Context, toolchain.SimulateRequest) (model.ExecutionResult, error) {
	f.called = true
	return f.res, nil
}

func testSandbox() *sandbox.Sandbox {
	return &sandbox.Sandbox{
		AssignmentID: "101",
		StudentID:    "42",
		Dir:          "/work/a101_u42",
		SourceFiles:  []string{"dut_0_adder.v"},
		Testbench:    "tb.v",
	}
}

func TestCompileFailureShortCircuitsRun(t *testing.T) {
	t.Parallel()
	c := &fakeCompiler{res: model.ExecutionResult{ExitCode: 1, Stderr: "tb.v:3: syntax error"}}
	s := &fakeSimulator{}
	e, err := New(c, s, 0, 0)
	if err != nil {
		t.Fatal(err)
	}

	out, err := e.BuildAndRun(context.Background(), testSandbox())
	if err != nil {
		t.Fatal(err)
	}
	if out.Kind != model.ExecCompileFailed {
		t.Fatalf("expected CompileFailed, got %s", out.Kind)
	}
	if s.called {
		t.Fatal("run step was invoked after a failed compile")
	}
	if out.Run != nil {
		t.Fatal("run result present on compile failure")
	}
}

func TestCompilerStderrAloneFailsCompile(t *testing.T) {
	t.Parallel()
	c := &fakeCompiler{res: model.ExecutionResult{ExitCode: 0, Stderr: "warning treated as diagnostic"}}
	s := &fakeSimulator{}
	e, _ := New(c, s, 0, 0)

	out, err := e.BuildAndRun(context.Background(), testSandbox())
	if err != nil {
		t.Fatal(err)
	}
	if out.Kind != model.ExecCompileFailed {
		t.Fatalf("expected CompileFailed, got %s", out.Kind)
	}
}

func TestRunTimeoutKeepsPartialOutput(t *testing.T) {
	t.Parallel()
	c := &fakeCompiler{res: model.ExecutionResult{ExitCode: 0}}
	s := &fakeSimulator{res: model.ExecutionResult{ExitCode: -1, TimedOut: true, Stdout: "RESULT: t1 PASS\n"}}
	e, _ := New(c, s, 0, 0)

	out, err := e.BuildAndRun(context.Background(), testSandbox())
	if err != nil {
		t.Fatal(err)
	}
	if out.Kind != model.ExecRunTimedOut {
		t.Fatalf("expected RunTimedOut, got %s", out.Kind)
	}
	if out.Output() != "RESULT: t1 PASS\n" {
		t.Fatalf("partial output lost: %q", out.Output())
	}
}

func TestRunNonZeroExitIsRunFailed(t *testing.T) {
	t.Parallel()
	c := &fakeCompiler{res: model.ExecutionResult{ExitCode: 0}}
	s := &fakeSimulator{res: model.ExecutionResult{ExitCode: 2, Stderr: "vvp: assertion failed"}}
	e, _ := New(c, s, 0, 0)

	out, err := e.BuildAndRun(context.Background(), testSandbox())
	if err != nil {
		t.Fatal(err)
	}
	if out.Kind != model.ExecRunFailed {
		t.Fatalf("expected RunFailed, got %s", out.Kind)
	}
}

func TestCleanRunIsRunCompleted(t *testing.T) {
	t.Parallel()
	c := &fakeCompiler{res: model.ExecutionResult{ExitCode: 0}}
	s := &fakeSimulator{res: model.ExecutionResult{ExitCode: 0, Stdout: "RESULT: t1 PASS\n"}}
	e, _ := New(c, s, 0, 0)

	out, err := e.BuildAndRun(context.Background(), testSandbox())
	if err != nil {
		t.Fatal(err)
	}
	if out.Kind != model.ExecRunCompleted {
		t.Fatalf("expected RunCompleted, got %s", out.Kind)
	}
	if !c.called || !s.called {
		t.Fatal("both phases should have been invoked")
	}
}
