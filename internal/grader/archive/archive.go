// Package archive implements sandbox retention after grading: discard the
// directory, keep it on disk, or pack it into a compressed archive for audit.
package archive

import (
	"archive/tar"
	"bytes"
	"context"
	"fmt"
	"io"
	"io/fs"
	"os"
	"path/filepath"
	"time"

	"github.com/klauspost/compress/zstd"
	"go.uber.org/zap"

	"hdlgrade/internal/common/storage"
	"hdlgrade/internal/grader/sandbox"
	appErr "hdlgrade/pkg/errors"
	"hdlgrade/pkg/utils/contextkey"
	"hdlgrade/pkg/utils/logger"
)

// Policy selects what happens to a sandbox once its submission is graded.
type Policy string

const (
	// PolicyDiscard removes the sandbox directory.
	PolicyDiscard Policy = "discard"
	// PolicyKeep leaves the sandbox on disk untouched.
	PolicyKeep Policy = "keep"
	// PolicyArchive packs the sandbox into a tar.zst archive, then removes
	// the directory.
	PolicyArchive Policy = "archive"
)

// Config holds retention settings.
type Config struct {
	Policy Policy `yaml:"policy"`
	// ArchiveDir receives local archives when no object storage is wired.
	ArchiveDir string `yaml:"archiveDir"`
	// Bucket routes archives to object storage instead of ArchiveDir.
	Bucket string `yaml:"bucket"`
}

// Keeper applies the retention policy to graded sandboxes.
type Keeper struct {
	cfg   Config
	store storage.ObjectStorage
}

// NewKeeper creates a keeper. store may be nil, in which case PolicyArchive
// writes local files under cfg.ArchiveDir.
func NewKeeper(cfg Config, store storage.ObjectStorage) (*Keeper, error) {
	switch cfg.Policy {
	case "", PolicyDiscard:
		cfg.Policy = PolicyDiscard
	case PolicyKeep:
	case PolicyArchive:
		if cfg.Bucket == "" && cfg.ArchiveDir == "" {
			return nil, appErr.ValidationError("retention", "archive policy needs a bucket or archiveDir")
		}
		if cfg.Bucket != "" && store == nil {
			return nil, appErr.ValidationError("retention.bucket", "object storage not configured")
		}
	default:
		return nil, appErr.ValidationError("retention.policy", "must be discard, keep or archive")
	}
	return &Keeper{cfg: cfg, store: store}, nil
}

// Retain applies the configured policy. Retention failures never change the
// grade; callers log and move on.
func (k *Keeper) Retain(ctx context.Context, sb *sandbox.Sandbox) error {
	if sb == nil || sb.Dir == "" {
		return nil
	}
	switch k.cfg.Policy {
	case PolicyKeep:
		return nil
	case PolicyDiscard:
		return sb.Remove()
	}

	name := fmt.Sprintf("a%s_u%s_%s.tar.zst",
		sb.AssignmentID, sb.StudentID, time.Now().UTC().Format("20060102T150405Z"))
	// Archives of one grading run group under its run id.
	if runID, ok := ctx.Value(contextkey.RunID).(string); ok && runID != "" {
		name = runID + "/" + name
	}
	data, err := packDir(sb.Dir)
	if err != nil {
		return err
	}

	if k.cfg.Bucket != "" {
		err = k.store.PutObject(ctx, k.cfg.Bucket, name, bytes.NewReader(data), int64(len(data)), "application/zstd")
		if err != nil {
			return appErr.Wrapf(err, appErr.SandboxArchiveError, "upload archive %s failed", name)
		}
	} else {
		path := filepath.Join(k.cfg.ArchiveDir, filepath.FromSlash(name))
		if err := os.MkdirAll(filepath.Dir(path), 0755); err != nil {
			return appErr.Wrapf(err, appErr.SandboxArchiveError, "create archive dir failed")
		}
		if err := os.WriteFile(path, data, 0644); err != nil {
			return appErr.Wrapf(err, appErr.SandboxArchiveError, "write archive %s failed", name)
		}
	}
	logger.Info(ctx, "sandbox archived",
		zap.String("archive", name),
		zap.Int("bytes", len(data)))
	return sb.Remove()
}

// packDir tars the directory contents (paths relative to the sandbox root)
// and compresses the stream with zstd.
func packDir(dir string) ([]byte, error) {
	var buf bytes.Buffer
	zw, err := zstd.NewWriter(&buf)
	if err != nil {
		return nil, appErr.Wrapf(err, appErr.SandboxArchiveError, "create zstd writer failed")
	}
	tw := tar.NewWriter(zw)

	walkErr := filepath.WalkDir(dir, func(path string, d fs.DirEntry, err error) error {
		if err != nil {
			return err
		}
		if d.IsDir() {
			return nil
		}
		rel, err := filepath.Rel(dir, path)
		if err != nil {
			return err
		}
		info, err := d.Info()
		if err != nil {
			return err
		}
		hdr, err := tar.FileInfoHeader(info, "")
		if err != nil {
			return err
		}
		hdr.Name = filepath.ToSlash(rel)
		if err := tw.WriteHeader(hdr); err != nil {
			return err
		}
		f, err := os.Open(path)
		if err != nil {
			return err
		}
		defer func() { _ = f.Close() }()
		_, err = io.Copy(tw, f)
		return err
	})
	if walkErr != nil {
		return nil, appErr.Wrapf(walkErr, appErr.SandboxArchiveError, "pack sandbox failed")
	}
	if err := tw.Close(); err != nil {
		return nil, appErr.Wrapf(err, appErr.SandboxArchiveError, "finalize tar failed")
	}
	if err := zw.Close(); err != nil {
		return nil, appErr.Wrapf(err, appErr.SandboxArchiveError, "finalize zstd failed")
	}
	return buf.Bytes(), nil
}
