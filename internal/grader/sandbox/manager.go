// Package sandbox manages isolated per-submission build directories.
package sandbox

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"hdlgrade/internal/grader/model"
	appErr "hdlgrade/pkg/errors"
	"hdlgrade/pkg/utils/logger"

	"go.uber.org/zap"
)

// Sandbox is an exclusively-owned working directory for one submission.
// Later stages reference staged files by name relative to Dir so external
// tools never see host-specific path prefixes.
type Sandbox struct {
	AssignmentID string
	StudentID    string
	Dir          string
	SourceFiles  []string
	Testbench    string
}

// Manager creates sandboxes under a fixed work root. Directory names derive
// only from the (assignment, student) key, so concurrent submissions can
// never collide.
type Manager struct {
	root string
	ext  string
}

// NewManager creates a sandbox manager rooted at workRoot.
func NewManager(workRoot, ext string) (*Manager, error) {
	if workRoot == "" {
		return nil, appErr.ValidationError("work_root", "required")
	}
	if ext == "" {
		ext = ".v"
	}
	if !strings.HasPrefix(ext, ".") {
		ext = "." + ext
	}
	abs, err := filepath.Abs(workRoot)
	if err != nil {
		return nil, appErr.Wrapf(err, appErr.SandboxError, "resolve work root failed")
	}
	if err := os.MkdirAll(abs, 0755); err != nil {
		return nil, appErr.Wrapf(err, appErr.SandboxError, "create work root failed")
	}
	return &Manager{root: abs, ext: ext}, nil
}

// Dir returns the deterministic sandbox path for a submission key.
func (m *Manager) Dir(assignmentID, studentID string) string {
	return filepath.Join(m.root, fmt.Sprintf("a%s_u%s", assignmentID, studentID))
}

// Create builds a fresh sandbox for the submission and stages its files plus
// the resolved testbench. A leftover directory from a previous run is removed
// first so stale files never leak into a new grading attempt.
//
// Only files matching the source extension are staged; they keep their
// original content byte for byte and are renamed dut_<n>_<name> so student
// uploads cannot shadow the testbench or the simulation artifact.
func (m *Manager) Create(ctx context.Context, assignmentID, studentID string, files []model.SubmissionFile, testbenchPath string) (*Sandbox, error) {
	if assignmentID == "" || studentID == "" {
		return nil, appErr.ValidationError("submission_key", "required")
	}
	if testbenchPath == "" {
		return nil, appErr.ValidationError("testbench_path", "required")
	}

	dir := m.Dir(assignmentID, studentID)
	if err := os.RemoveAll(dir); err != nil {
		return nil, appErr.Wrapf(err, appErr.SandboxError, "clear stale sandbox failed")
	}
	if err := os.MkdirAll(dir, 0755); err != nil {
		return nil, appErr.Wrapf(err, appErr.SandboxError, "create sandbox failed")
	}

	sb := &Sandbox{
		AssignmentID: assignmentID,
		StudentID:    studentID,
		Dir:          dir,
	}

	idx := 0
	for _, file := range files {
		name := filepath.Base(file.Name)
		if name == "." || name == string(filepath.Separator) {
			continue
		}
		if !strings.EqualFold(filepath.Ext(name), m.ext) {
			continue
		}
		staged := fmt.Sprintf("dut_%d_%s", idx, name)
		if err := os.WriteFile(filepath.Join(dir, staged), file.Content, 0644); err != nil {
			return nil, appErr.Wrapf(err, appErr.SandboxStageFailed, "stage %s failed", name)
		}
		sb.SourceFiles = append(sb.SourceFiles, staged)
		idx++
	}
	if len(sb.SourceFiles) == 0 {
		return nil, appErr.New(appErr.SandboxNoSources).WithDetail("ext", m.ext)
	}

	tbName := filepath.Base(testbenchPath)
	tbContent, err := os.ReadFile(testbenchPath)
	if err != nil {
		return nil, appErr.Wrapf(err, appErr.SandboxStageFailed, "read testbench failed")
	}
	if err := os.WriteFile(filepath.Join(dir, tbName), tbContent, 0644); err != nil {
		return nil, appErr.Wrapf(err, appErr.SandboxStageFailed, "stage testbench failed")
	}
	sb.Testbench = tbName

	logger.Debug(ctx, "sandbox populated",
		zap.String("dir", dir),
		zap.Int("source_files", len(sb.SourceFiles)))
	return sb, nil
}

// Remove deletes the sandbox directory and everything staged in it.
func (s *Sandbox) Remove() error {
	if s.Dir == "" {
		return nil
	}
	if err := os.RemoveAll(s.Dir); err != nil {
		return appErr.Wrapf(err, appErr.SandboxError, "remove sandbox failed")
	}
	return nil
}
