// Package engine executes external toolchain processes with wall-clock
// bounds and independent, size-limited stdout/stderr capture.
package engine

import (
	"context"
	"errors"
	"os"
	"os/exec"
	"sync/atomic"
	"time"

	"hdlgrade/internal/grader/model"
	appErr "hdlgrade/pkg/errors"
	"hdlgrade/pkg/utils/logger"

	"go.uber.org/zap"
)

const defaultMaxCaptureBytes int64 = 64 * 1024

// RunSpec describes one external invocation.
type RunSpec struct {
	// Dir is the working directory; all file arguments in Cmd should be
	// relative to it.
	Dir string
	Cmd []string
	// Timeout bounds wall-clock time. Zero means no bound.
	Timeout time.Duration
}

// Engine runs external processes on behalf of the executor.
type Engine interface {
	Run(ctx context.Context, spec RunSpec) (model.ExecutionResult, error)
}

type localEngine struct {
	maxCaptureBytes int64
}

// NewEngine creates a process engine capturing at most maxCaptureBytes per
// stream (0 selects the default).
func NewEngine(maxCaptureBytes int64) Engine {
	if maxCaptureBytes <= 0 {
		maxCaptureBytes = defaultMaxCaptureBytes
	}
	return &localEngine{maxCaptureBytes: maxCaptureBytes}
}

// Run starts the process in its own process group, waits for completion or
// the wall-clock bound, and kills the whole group on timeout so simulator
// children cannot outlive the grading attempt.
func (e *localEngine) Run(ctx context.Context, spec RunSpec) (model.ExecutionResult, error) {
	if len(spec.Cmd) == 0 {
		return model.ExecutionResult{}, appErr.ValidationError("cmd", "required")
	}
	if spec.Dir == "" {
		return model.ExecutionResult{}, appErr.ValidationError("dir", "required")
	}

	cmd := exec.Command(spec.Cmd[0], spec.Cmd[1:]...)
	cmd.Dir = spec.Dir
	setProcessGroup(cmd)

	stdout := newLimitedBuffer(e.maxCaptureBytes)
	stderr := newLimitedBuffer(e.maxCaptureBytes)
	cmd.Stdout = stdout
	cmd.Stderr = stderr

	start := time.Now()
	if err := cmd.Start(); err != nil {
		return model.ExecutionResult{}, appErr.Wrapf(err, appErr.ToolchainError, "start %s failed", spec.Cmd[0])
	}

	var timedOut atomic.Bool
	done := make(chan struct{})
	go func() {
		var wallTimer <-chan time.Time
		if spec.Timeout > 0 {
			wallTimer = time.After(spec.Timeout)
		}
		select {
		case <-ctx.Done():
			killProcessGroup(cmd.Process.Pid)
		case <-wallTimer:
			timedOut.Store(true)
			killProcessGroup(cmd.Process.Pid)
		case <-done:
		}
	}()

	waitErr := cmd.Wait()
	close(done)

	res := model.ExecutionResult{
		ExitCode: exitCodeFromErr(waitErr, cmd.ProcessState),
		Stdout:   stdout.String(),
		Stderr:   stderr.String(),
		Elapsed:  time.Since(start),
		TimedOut: timedOut.Load(),
	}
	if res.TimedOut {
		logger.Warn(ctx, "process killed on timeout",
			zap.String("cmd", spec.Cmd[0]),
			zap.Duration("timeout", spec.Timeout))
	}
	return res, nil
}

func exitCodeFromErr(err error, state *os.ProcessState) int {
	if state != nil {
		return state.ExitCode()
	}
	if err == nil {
		return 0
	}
	var exitErr *exec.ExitError
	if errors.As(err, &exitErr) {
		return exitErr.ExitCode()
	}
	return -1
}

// limitedBuffer keeps at most max bytes and silently discards the rest,
// reporting the full write as accepted so the child never sees EPIPE.
type limitedBuffer struct {
	max       int64
	buf       []byte
	truncated bool
}

func newLimitedBuffer(max int64) *limitedBuffer {
	return &limitedBuffer{max: max}
}

func (b *limitedBuffer) Write(p []byte) (int, error) {
	remaining := b.max - int64(len(b.buf))
	if remaining > 0 {
		if int64(len(p)) <= remaining {
			b.buf = append(b.buf, p...)
		} else {
			b.buf = append(b.buf, p[:remaining]...)
			b.truncated = true
		}
	} else if len(p) > 0 {
		b.truncated = true
	}
	return len(p), nil
}

func (b *limitedBuffer) String() string {
	if b.truncated {
		return string(b.buf) + "\n[output truncated]"
	}
	return string(b.buf)
}
