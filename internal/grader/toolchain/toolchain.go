// Package toolchain abstracts the external compiler/simulator pair behind
// capability interfaces so a different backend can be substituted without
// touching the resolver, parser, or scorer.
package toolchain

import (
	"context"
	"strings"
	"time"

	"hdlgrade/internal/grader/engine"
	"hdlgrade/internal/grader/model"
	appErr "hdlgrade/pkg/errors"

	"github.com/google/shlex"
)

// Spec declares a toolchain via command templates. Placeholders:
// {files} expands to the staged submission sources, {testbench} to the staged
// testbench name, {artifact} to the compiled artifact name. All names are
// relative to the sandbox root.
type Spec struct {
	Name       string `yaml:"name"`
	SourceExt  string `yaml:"sourceExt"`
	Artifact   string `yaml:"artifact"`
	CompileCmd string `yaml:"compileCmd"`
	RunCmd     string `yaml:"runCmd"`
}

// DefaultIcarus returns the Icarus Verilog toolchain definition.
func DefaultIcarus() Spec {
	return Spec{
		Name:       "icarus",
		SourceExt:  ".v",
		Artifact:   "sim.out",
		CompileCmd: "iverilog -o {artifact} {files} {testbench}",
		RunCmd:     "vvp {artifact}",
	}
}

// CompileRequest describes one compilation of staged sources plus testbench.
type CompileRequest struct {
	Dir       string
	Sources   []string
	Testbench string
	Timeout   time.Duration
}

// SimulateRequest describes one simulation of the compiled artifact.
type SimulateRequest struct {
	Dir     string
	Timeout time.Duration
}

// Compiler turns staged sources into an executable artifact.
type Compiler interface {
	Compile(ctx context.Context, req CompileRequest) (model.ExecutionResult, error)
}

// Simulator runs the compiled artifact and produces line-oriented output.
type Simulator interface {
	Simulate(ctx context.Context, req SimulateRequest) (model.ExecutionResult, error)
}

// CommandToolchain implements Compiler and Simulator by expanding the spec's
// command templates and handing them to the process engine.
type CommandToolchain struct {
	spec Spec
	eng  engine.Engine
}

// New creates a toolchain from a spec, filling unset fields from the Icarus
// defaults.
func New(spec Spec, eng engine.Engine) (*CommandToolchain, error) {
	if eng == nil {
		return nil, appErr.ValidationError("engine", "required")
	}
	defaults := DefaultIcarus()
	if spec.Artifact == "" {
		spec.Artifact = defaults.Artifact
	}
	if spec.CompileCmd == "" {
		spec.CompileCmd = defaults.CompileCmd
	}
	if spec.RunCmd == "" {
		spec.RunCmd = defaults.RunCmd
	}
	if spec.SourceExt == "" {
		spec.SourceExt = defaults.SourceExt
	}
	return &CommandToolchain{spec: spec, eng: eng}, nil
}

// SourceExt returns the source file extension this toolchain accepts.
func (t *CommandToolchain) SourceExt() string {
	return t.spec.SourceExt
}

func (t *CommandToolchain) Compile(ctx context.Context, req CompileRequest) (model.ExecutionResult, error) {
	if len(req.Sources) == 0 {
		return model.ExecutionResult{}, appErr.ValidationError("sources", "required")
	}
	if req.Testbench == "" {
		return model.ExecutionResult{}, appErr.ValidationError("testbench", "required")
	}
	cmd, err := t.buildCommand(t.spec.CompileCmd, req.Sources, req.Testbench)
	if err != nil {
		return model.ExecutionResult{}, err
	}
	return t.eng.Run(ctx, engine.RunSpec{Dir: req.Dir, Cmd: cmd, Timeout: req.Timeout})
}

func (t *CommandToolchain) Simulate(ctx context.Context, req SimulateRequest) (model.ExecutionResult, error) {
	cmd, err := t.buildCommand(t.spec.RunCmd, nil, "")
	if err != nil {
		return model.ExecutionResult{}, err
	}
	return t.eng.Run(ctx, engine.RunSpec{Dir: req.Dir, Cmd: cmd, Timeout: req.Timeout})
}

// buildCommand splits the template first and substitutes per token, so file
// names containing whitespace survive expansion intact.
func (t *CommandToolchain) buildCommand(tpl string, sources []string, testbench string) ([]string, error) {
	if strings.TrimSpace(tpl) == "" {
		return nil, appErr.New(appErr.InvalidParams).WithMessage("command template is required")
	}
	tokens, err := shlex.Split(tpl)
	if err != nil {
		return nil, appErr.Wrapf(err, appErr.InvalidParams, "parse command template failed")
	}

	out := make([]string, 0, len(tokens)+len(sources))
	for _, token := range tokens {
		if token == "{files}" {
			out = append(out, sources...)
			continue
		}
		token = strings.ReplaceAll(token, "{artifact}", t.spec.Artifact)
		token = strings.ReplaceAll(token, "{testbench}", testbench)
		if token == "" {
			continue
		}
		out = append(out, token)
	}
	if len(out) == 0 {
		return nil, appErr.New(appErr.InvalidParams).WithMessage("command is empty after expansion")
	}
	return out, nil
}
