package sandbox

import (
	"bytes"
	"context"
	"os"
	"path/filepath"
	"testing"

	"hdlgrade/internal/grader/model"
	appErr "hdlgrade/pkg/errors"
)

func testbenchFile(t *testing.T) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "tb_adder.v")
	if err := os.WriteFile(path, []byte("module tb_adder; endmodule\n"), 0644); err != nil {
		t.Fatal(err)
	}
	return path
}

func TestCreateStagesSourcesAndTestbench(t *testing.T) {
	t.Parallel()
	m, err := NewManager(t.TempDir(), ".v")
	if err != nil {
		t.Fatal(err)
	}

	content := []byte("module adder(input a, b, output s);\nendmodule\n")
	files := []model.SubmissionFile{
		{Name: "adder.v", Content: content},
		{Name: "notes.txt", Content: []byte("ignore me")},
	}
	sb, err := m.Create(context.Background(), "101", "42", files, testbenchFile(t))
	if err != nil {
		t.Fatalf("create failed: %v", err)
	}

	if len(sb.SourceFiles) != 1 || sb.SourceFiles[0] != "dut_0_adder.v" {
		t.Fatalf("unexpected staged sources: %v", sb.SourceFiles)
	}
	if sb.Testbench != "tb_adder.v" {
		t.Fatalf("unexpected testbench name: %s", sb.Testbench)
	}

	staged, err := os.ReadFile(filepath.Join(sb.Dir, "dut_0_adder.v"))
	if err != nil {
		t.Fatal(err)
	}
	if !bytes.Equal(staged, content) {
		t.Fatal("staged content differs from submission content")
	}
}

func TestCreateClearsStaleSandbox(t *testing.T) {
	t.Parallel()
	m, err := NewManager(t.TempDir(), ".v")
	if err != nil {
		t.Fatal(err)
	}

	dir := m.Dir("101", "42")
	if err := os.MkdirAll(dir, 0755); err != nil {
		t.Fatal(err)
	}
	stale := filepath.Join(dir, "dut_0_old.v")
	if err := os.WriteFile(stale, []byte("module old; endmodule\n"), 0644); err != nil {
		t.Fatal(err)
	}

	files := []model.SubmissionFile{{Name: "fresh.v", Content: []byte("module fresh; endmodule\n")}}
	sb, err := m.Create(context.Background(), "101", "42", files, testbenchFile(t))
	if err != nil {
		t.Fatalf("create failed: %v", err)
	}
	if sb.Dir != dir {
		t.Fatalf("sandbox dir not deterministic: %s vs %s", sb.Dir, dir)
	}
	if _, err := os.Stat(stale); !os.IsNotExist(err) {
		t.Fatal("stale file survived a new grading attempt")
	}
}

func TestCreateIsolatesSubmissions(t *testing.T) {
	t.Parallel()
	m, err := NewManager(t.TempDir(), ".v")
	if err != nil {
		t.Fatal(err)
	}

	tb := testbenchFile(t)
	a, err := m.Create(context.Background(), "101", "1", []model.SubmissionFile{{Name: "a.v", Content: []byte("module a; endmodule\n")}}, tb)
	if err != nil {
		t.Fatal(err)
	}
	b, err := m.Create(context.Background(), "101", "2", []model.SubmissionFile{{Name: "b.v", Content: []byte("module b; endmodule\n")}}, tb)
	if err != nil {
		t.Fatal(err)
	}
	if a.Dir == b.Dir {
		t.Fatal("two submissions share a sandbox directory")
	}
	if _, err := os.Stat(filepath.Join(a.Dir, "dut_0_b.v")); !os.IsNotExist(err) {
		t.Fatal("submission B's file leaked into submission A's sandbox")
	}
}

func TestCreateRejectsSubmissionWithoutSources(t *testing.T) {
	t.Parallel()
	m, err := NewManager(t.TempDir(), ".v")
	if err != nil {
		t.Fatal(err)
	}
	files := []model.SubmissionFile{{Name: "report.pdf", Content: []byte("%PDF")}}
	_, err = m.Create(context.Background(), "101", "42", files, testbenchFile(t))
	if !appErr.Is(err, appErr.SandboxNoSources) {
		t.Fatalf("expected SandboxNoSources, got %v", err)
	}
}

func TestCreateStripsPathTraversalNames(t *testing.T) {
	t.Parallel()
	root := t.TempDir()
	m, err := NewManager(root, ".v")
	if err != nil {
		t.Fatal(err)
	}
	files := []model.SubmissionFile{{Name: "../../escape.v", Content: []byte("module e; endmodule\n")}}
	sb, err := m.Create(context.Background(), "101", "42", files, testbenchFile(t))
	if err != nil {
		t.Fatal(err)
	}
	if sb.SourceFiles[0] != "dut_0_escape.v" {
		t.Fatalf("expected traversal components stripped, got %s", sb.SourceFiles[0])
	}
	if _, err := os.Stat(filepath.Join(root, "escape.v")); !os.IsNotExist(err) {
		t.Fatal("file escaped the sandbox directory")
	}
}
