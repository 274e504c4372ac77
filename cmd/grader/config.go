package main

import (
	"fmt"
	"os"
	"time"

	"gopkg.in/yaml.v3"

	"hdlgrade/internal/common/db"
	"hdlgrade/internal/common/storage"
	"hdlgrade/internal/grader/archive"
	"hdlgrade/internal/grader/pipeline"
	"hdlgrade/internal/grader/toolchain"
	"hdlgrade/internal/lms/canvas"
	"hdlgrade/pkg/utils/logger"
)

const (
	defaultWorkRoot       = "work"
	defaultTestbenchRoot  = "testbenches"
	defaultCompileTimeout = 30 * time.Second
	defaultRunTimeout     = 2 * time.Minute
)

// WorkerConfig holds execution settings per submission.
type WorkerConfig struct {
	PoolSize        int           `yaml:"poolSize"`
	CompileTimeout  time.Duration `yaml:"compileTimeout"`
	RunTimeout      time.Duration `yaml:"runTimeout"`
	MaxCaptureBytes int64         `yaml:"maxCaptureBytes"`
}

// SandboxConfig holds sandbox placement settings.
type SandboxConfig struct {
	WorkRoot string `yaml:"workRoot"`
}

// TestbenchConfig holds testbench resolution settings.
type TestbenchConfig struct {
	Root      string `yaml:"root"`
	SourceExt string `yaml:"sourceExt"`
}

// GradingConfig holds run-level grading settings.
type GradingConfig struct {
	// Assignments lists the assignment ids graded per run; the -assignments
	// flag overrides it.
	Assignments  []string      `yaml:"assignments"`
	Marker       string        `yaml:"marker"`
	Force        bool          `yaml:"force"`
	PostComments bool          `yaml:"postComments"`
	PostRetries  int           `yaml:"postRetries"`
	PostBackoff  time.Duration `yaml:"postBackoff"`
	// MaxDiagnosticBytes bounds compiler/simulator output embedded in comments.
	MaxDiagnosticBytes int `yaml:"maxDiagnosticBytes"`
}

// AppConfig holds grader config.
type AppConfig struct {
	Logger    logger.Config       `yaml:"logger"`
	Canvas    canvas.Config       `yaml:"canvas"`
	Toolchain toolchain.Spec      `yaml:"toolchain"`
	Worker    WorkerConfig        `yaml:"worker"`
	Sandbox   SandboxConfig       `yaml:"sandbox"`
	Testbench TestbenchConfig     `yaml:"testbench"`
	Grading   GradingConfig       `yaml:"grading"`
	Retention archive.Config      `yaml:"retention"`
	Database  db.MySQLConfig      `yaml:"database"`
	MinIO     storage.MinIOConfig `yaml:"minio"`
}

func loadYAML(path string, out interface{}) error {
	data, err := os.ReadFile(path)
	if err != nil {
		return fmt.Errorf("read config file failed: %w", err)
	}
	if err := yaml.Unmarshal(data, out); err != nil {
		return fmt.Errorf("parse config file failed: %w", err)
	}
	return nil
}

func loadAppConfig(path string) (*AppConfig, error) {
	var cfg AppConfig
	if err := loadYAML(path, &cfg); err != nil {
		return nil, err
	}
	if cfg.Canvas.BaseURL == "" {
		return nil, fmt.Errorf("canvas baseURL is required")
	}
	if cfg.Canvas.CourseID == "" {
		return nil, fmt.Errorf("canvas courseID is required")
	}
	if cfg.Canvas.APIToken == "" {
		cfg.Canvas.APIToken = os.Getenv("CANVAS_API_TOKEN")
	}
	if cfg.Canvas.APIToken == "" {
		return nil, fmt.Errorf("canvas apiToken is required (config or CANVAS_API_TOKEN)")
	}
	if cfg.Sandbox.WorkRoot == "" {
		cfg.Sandbox.WorkRoot = defaultWorkRoot
	}
	if cfg.Testbench.Root == "" {
		cfg.Testbench.Root = defaultTestbenchRoot
	}
	if cfg.Testbench.SourceExt == "" {
		cfg.Testbench.SourceExt = cfg.Toolchain.SourceExt
	}
	if cfg.Canvas.SourceExt == "" {
		cfg.Canvas.SourceExt = cfg.Testbench.SourceExt
	}
	if cfg.Worker.PoolSize <= 0 {
		cfg.Worker.PoolSize = 4
	}
	if cfg.Worker.CompileTimeout == 0 {
		cfg.Worker.CompileTimeout = defaultCompileTimeout
	}
	if cfg.Worker.RunTimeout == 0 {
		cfg.Worker.RunTimeout = defaultRunTimeout
	}
	return &cfg, nil
}

func (c *AppConfig) pipelineConfig() pipeline.Config {
	return pipeline.Config{
		PoolSize:     c.Worker.PoolSize,
		Force:        c.Grading.Force,
		PostComments: c.Grading.PostComments,
		PostRetries:  c.Grading.PostRetries,
		PostBackoff:  c.Grading.PostBackoff,
	}
}
