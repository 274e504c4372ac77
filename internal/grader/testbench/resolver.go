// Package testbench resolves the instructor testbench paired with an assignment.
package testbench

import (
	"context"
	"os"
	"path/filepath"
	"strings"

	appErr "hdlgrade/pkg/errors"
	"hdlgrade/pkg/utils/logger"

	"go.uber.org/zap"
)

const defaultSourceExt = ".v"

// Resolver locates the single testbench source file for an assignment under
// <root>/<assignment-id>/. It never mutates directory contents beyond the
// idempotent creation of a missing assignment directory.
type Resolver struct {
	root string
	ext  string
}

// NewResolver creates a resolver rooted at the testbench directory.
func NewResolver(root, ext string) (*Resolver, error) {
	if root == "" {
		return nil, appErr.ValidationError("testbench_root", "required")
	}
	if ext == "" {
		ext = defaultSourceExt
	}
	if !strings.HasPrefix(ext, ".") {
		ext = "." + ext
	}
	abs, err := filepath.Abs(root)
	if err != nil {
		return nil, appErr.Wrapf(err, appErr.InternalServerError, "resolve testbench root failed")
	}
	return &Resolver{root: abs, ext: ext}, nil
}

// Resolve returns the absolute path of the testbench for the assignment.
//
// A missing assignment directory is created and reported as TestbenchNotReady;
// an existing directory with no matching source file is TestbenchMissing. With
// one or more candidates the filename sorting first under case-sensitive
// lexicographic ordering wins, so the selection is stable across runs.
func (r *Resolver) Resolve(ctx context.Context, assignmentID string) (string, error) {
	if assignmentID == "" {
		return "", appErr.ValidationError("assignment_id", "required")
	}

	dir := filepath.Join(r.root, assignmentID)
	entries, err := os.ReadDir(dir)
	if err != nil {
		if !os.IsNotExist(err) {
			return "", appErr.Wrapf(err, appErr.InternalServerError, "read testbench dir failed")
		}
		// MkdirAll tolerates a concurrent create, so double resolution of a
		// fresh assignment still creates the directory exactly once.
		if mkErr := os.MkdirAll(dir, 0755); mkErr != nil {
			return "", appErr.Wrapf(mkErr, appErr.InternalServerError, "create testbench dir failed")
		}
		logger.Warn(ctx, "testbench directory created, add a testbench file",
			zap.String("dir", dir))
		return "", appErr.New(appErr.TestbenchNotReady).WithDetail("dir", dir)
	}

	// os.ReadDir returns entries sorted by filename, so the first match is
	// the case-sensitive lexicographic minimum.
	for _, entry := range entries {
		if entry.IsDir() {
			continue
		}
		if !strings.EqualFold(filepath.Ext(entry.Name()), r.ext) {
			continue
		}
		chosen := filepath.Join(dir, entry.Name())
		logger.Info(ctx, "testbench resolved",
			zap.String("path", chosen))
		return chosen, nil
	}

	return "", appErr.New(appErr.TestbenchMissing).
		WithDetail("dir", dir).
		WithDetail("ext", r.ext)
}
