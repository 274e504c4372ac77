package engine

import (
	"context"
	"os/exec"
	"strings"
	"testing"
	"time"
)

func requireShell(t *testing.T) {
	t.Helper()
	if _, err := exec.LookPath("sh"); err != nil {
		t.Skip("sh not available")
	}
}

func TestRunCapturesStreamsIndependently(t *testing.T) {
	t.Parallel()
	requireShell(t)

	eng := NewEngine(0)
	res, err := eng.Run(context.Background(), RunSpec{
		Dir: t.TempDir(),
		Cmd: []string{"sh", "-c", "echo out; echo err 1>&2"},
	})
	if err != nil {
		t.Fatalf("run failed: %v", err)
	}
	if res.ExitCode != 0 {
		t.Fatalf("expected exit 0, got %d", res.ExitCode)
	}
	if strings.TrimSpace(res.Stdout) != "out" {
		t.Fatalf("unexpected stdout: %q", res.Stdout)
	}
	if strings.TrimSpace(res.Stderr) != "err" {
		t.Fatalf("unexpected stderr: %q", res.Stderr)
	}
}

func TestRunReportsNonZeroExit(t *testing.T) {
	t.Parallel()
	requireShell(t)

	eng := NewEngine(0)
	res, err := eng.Run(context.Background(), RunSpec{
		Dir: t.TempDir(),
		Cmd: []string{"sh", "-c", "exit 3"},
	})
	if err != nil {
		t.Fatalf("run failed: %v", err)
	}
	if res.ExitCode != 3 {
		t.Fatalf("expected exit 3, got %d", res.ExitCode)
	}
}

func TestRunKillsOnTimeoutKeepingPartialOutput(t *testing.T) {
	t.Parallel()
	requireShell(t)

	eng := NewEngine(0)
	start := time.Now()
	res, err := eng.Run(context.Background(), RunSpec{
		Dir:     t.TempDir(),
		Cmd:     []string{"sh", "-c", "echo partial; sleep 30"},
		Timeout: 300 * time.Millisecond,
	})
	if err != nil {
		t.Fatalf("run failed: %v", err)
	}
	if !res.TimedOut {
		t.Fatal("expected TimedOut to be set")
	}
	if !strings.Contains(res.Stdout, "partial") {
		t.Fatalf("partial stdout lost: %q", res.Stdout)
	}
	if elapsed := time.Since(start); elapsed > 5*time.Second {
		t.Fatalf("process was not killed promptly, took %v", elapsed)
	}
}

func TestRunTruncatesOversizedOutput(t *testing.T) {
	t.Parallel()
	requireShell(t)

	eng := NewEngine(32)
	res, err := eng.Run(context.Background(), RunSpec{
		Dir: t.TempDir(),
		Cmd: []string{"sh", "-c", "yes x | head -c 4096"},
	})
	if err != nil {
		t.Fatalf("run failed: %v", err)
	}
	if !strings.Contains(res.Stdout, "[output truncated]") {
		t.Fatal("expected truncation marker")
	}
	if len(res.Stdout) > 64 {
		t.Fatalf("capture bound not enforced: %d bytes", len(res.Stdout))
	}
}

func TestRunUnknownCommandFails(t *testing.T) {
	t.Parallel()
	eng := NewEngine(0)
	_, err := eng.Run(context.Background(), RunSpec{
		Dir: t.TempDir(),
		Cmd: []string{"definitely-not-a-real-binary-xyz"},
	})
	if err == nil {
		t.Fatal("expected start failure for unknown command")
	}
}
