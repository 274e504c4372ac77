// Package executor drives the two-phase compile+run workflow for one sandbox.
package executor

import (
	"context"
	"strings"
	"time"

	"hdlgrade/internal/grader/model"
	"hdlgrade/internal/grader/sandbox"
	"hdlgrade/internal/grader/toolchain"
	appErr "hdlgrade/pkg/errors"
	"hdlgrade/pkg/utils/logger"

	"go.uber.org/zap"
)

const (
	defaultCompileTimeout = 30 * time.Second
	defaultRunTimeout     = 2 * time.Minute
)

// Executor invokes the compiler and, on success, the simulator inside the
// sandbox. The two invocations are strictly sequential within a submission;
// concurrency across submissions is the pipeline's concern.
type Executor struct {
	compiler       toolchain.Compiler
	simulator      toolchain.Simulator
	compileTimeout time.Duration
	runTimeout     time.Duration
}

// New creates an executor. Zero timeouts select defaults; the run bound is
// typically larger than the compile bound.
func New(compiler toolchain.Compiler, simulator toolchain.Simulator, compileTimeout, runTimeout time.Duration) (*Executor, error) {
	if compiler == nil {
		return nil, appErr.ValidationError("compiler", "required")
	}
	if simulator == nil {
		return nil, appErr.ValidationError("simulator", "required")
	}
	if compileTimeout <= 0 {
		compileTimeout = defaultCompileTimeout
	}
	if runTimeout <= 0 {
		runTimeout = defaultRunTimeout
	}
	return &Executor{
		compiler:       compiler,
		simulator:      simulator,
		compileTimeout: compileTimeout,
		runTimeout:     runTimeout,
	}, nil
}

// BuildAndRun returns a tagged outcome covering the closed set of cases the
// scorer handles: CompileFailed, RunTimedOut, RunFailed, RunCompleted.
//
// A non-zero compiler exit or any compiler diagnostic on stderr short-circuits
// the run step. A timed-out run keeps its partial stdout for best-effort
// parsing.
func (e *Executor) BuildAndRun(ctx context.Context, sb *sandbox.Sandbox) (model.ExecOutcome, error) {
	if sb == nil {
		return model.ExecOutcome{}, appErr.ValidationError("sandbox", "required")
	}

	compileRes, err := e.compiler.Compile(ctx, toolchain.CompileRequest{
		Dir:       sb.Dir,
		Sources:   sb.SourceFiles,
		Testbench: sb.Testbench,
		Timeout:   e.compileTimeout,
	})
	if err != nil {
		return model.ExecOutcome{}, err
	}
	if compileRes.ExitCode != 0 || compileRes.TimedOut || strings.TrimSpace(compileRes.Stderr) != "" {
		logger.Info(ctx, "compile failed, skipping run step",
			zap.Int("exit_code", compileRes.ExitCode),
			zap.Bool("timed_out", compileRes.TimedOut))
		return model.ExecOutcome{Kind: model.ExecCompileFailed, Compile: compileRes}, nil
	}

	runRes, err := e.simulator.Simulate(ctx, toolchain.SimulateRequest{
		Dir:     sb.Dir,
		Timeout: e.runTimeout,
	})
	if err != nil {
		return model.ExecOutcome{}, err
	}

	outcome := model.ExecOutcome{Compile: compileRes, Run: &runRes}
	switch {
	case runRes.TimedOut:
		outcome.Kind = model.ExecRunTimedOut
	case runRes.ExitCode != 0:
		outcome.Kind = model.ExecRunFailed
	default:
		outcome.Kind = model.ExecRunCompleted
	}
	logger.Debug(ctx, "build and run finished",
		zap.String("kind", string(outcome.Kind)),
		zap.Duration("run_elapsed", runRes.Elapsed))
	return outcome, nil
}
