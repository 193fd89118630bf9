// Package workflow drives the external workflow engine that compiles and
// runs a simulation. The engine is a subprocess; nothing here interprets
// rule files.
package workflow

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io/fs"
	"log/slog"
	"os"
	"os/exec"
	"path/filepath"
	"sort"
	"strconv"
	"strings"
)

// DefaultRule is executed when no rule is given.
const DefaultRule = "run"

// Snakefile is the rule file expected in every run directory.
const Snakefile = "Snakefile"

// Runner executes a program in a directory and returns its standard output.
//
// Implementations must be safe for concurrent use.
type Runner interface {
	Run(ctx context.Context, dir, name string, args ...string) ([]byte, error)
}

// ExecRunner runs real processes with os/exec.
type ExecRunner struct{}

// Run implements Runner. On failure the error carries the process's
// standard error.
func (ExecRunner) Run(ctx context.Context, dir, name string, args ...string) ([]byte, error) {
	cmd := exec.CommandContext(ctx, name, args...)
	cmd.Dir = dir
	var stdout, stderr bytes.Buffer
	cmd.Stdout = &stdout
	cmd.Stderr = &stderr

	if err := cmd.Run(); err != nil {
		return stdout.Bytes(), &ExecError{
			Command: append([]string{name}, args...),
			Stderr:  strings.TrimSpace(stderr.String()),
			Err:     err,
		}
	}
	return stdout.Bytes(), nil
}

// ExecError is returned when the engine process fails.
type ExecError struct {
	Command []string
	Stderr  string
	Err     error
}

func (e *ExecError) Error() string {
	msg := fmt.Sprintf("%s: %v", strings.Join(e.Command, " "), e.Err)
	if e.Stderr != "" {
		msg += "\n" + e.Stderr
	}
	return msg
}

func (e *ExecError) Unwrap() error { return e.Err }

// RunOptions are passed to the engine on every Run.
type RunOptions struct {
	DryRun bool
	// KeepIncomplete keeps output files of failed jobs.
	KeepIncomplete bool
	// Jobs is the number of parallel jobs; 0 means 1.
	Jobs int
	// Resources are passed as --resources name=value.
	Resources map[string]int
	// Config entries are passed as --config key=value.
	Config map[string]string
}

// Engine is the workflow engine contract.
type Engine interface {
	Run(ctx context.Context, dir string, opts RunOptions, targets ...string) error
	ListRules(ctx context.Context, dir string) ([]string, error)
	Unlock(ctx context.Context, dir string) error
}

// Snakemake is the Engine backed by the snakemake executable.
type Snakemake struct {
	Executable string
	Runner     Runner
}

// NewSnakemake returns an engine running executable, "snakemake" when
// empty, through os/exec.
func NewSnakemake(executable string) *Snakemake {
	if executable == "" {
		executable = "snakemake"
	}
	return &Snakemake{Executable: executable, Runner: ExecRunner{}}
}

// RunArgs builds the command line of a Run.
func RunArgs(opts RunOptions, targets ...string) []string {
	jobs := opts.Jobs
	if jobs <= 0 {
		jobs = 1
	}
	args := []string{"--snakefile", Snakefile, "--jobs", strconv.Itoa(jobs)}
	if opts.DryRun {
		args = append(args, "--dry-run")
	}
	if opts.KeepIncomplete {
		args = append(args, "--keep-incomplete")
	}
	if len(opts.Resources) > 0 {
		args = append(args, "--resources")
		for _, k := range sortedKeys(opts.Resources) {
			args = append(args, fmt.Sprintf("%s=%d", k, opts.Resources[k]))
		}
	}
	if len(opts.Config) > 0 {
		args = append(args, "--config")
		for _, k := range sortedKeys(opts.Config) {
			args = append(args, k+"="+opts.Config[k])
		}
	}
	return append(args, targets...)
}

func sortedKeys[V any](m map[string]V) []string {
	keys := make([]string, 0, len(m))
	for k := range m {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}

// Run executes targets in dir.
func (s *Snakemake) Run(ctx context.Context, dir string, opts RunOptions, targets ...string) error {
	args := RunArgs(opts, targets...)
	slog.Info("running workflow", "dir", dir, "targets", targets, "dry_run", opts.DryRun)
	out, err := s.Runner.Run(ctx, dir, s.Executable, args...)
	if len(out) > 0 {
		slog.Debug("workflow output", "output", string(out))
	}
	return err
}

// ListRules returns the target rules of the Snakefile in dir.
func (s *Snakemake) ListRules(ctx context.Context, dir string) ([]string, error) {
	out, err := s.Runner.Run(ctx, dir, s.Executable, "--snakefile", Snakefile, "--list-target-rules")
	if err != nil {
		return nil, err
	}
	var rules []string
	for _, line := range strings.Split(string(out), "\n") {
		if line = strings.TrimSpace(line); line != "" {
			rules = append(rules, line)
		}
	}
	return rules, nil
}

// Unlock removes the engine's locks from dir.
func (s *Snakemake) Unlock(ctx context.Context, dir string) error {
	slog.Info("unlocking", "dir", dir)
	_, err := s.Runner.Run(ctx, dir, s.Executable, "--snakefile", Snakefile, "--unlock")
	return err
}

// Make runs the rules of one run directory.
type Make struct {
	Dir    string
	Engine Engine
}

// NewMake checks that dir has a Snakefile.
func NewMake(dir string, engine Engine) (*Make, error) {
	if _, err := os.Stat(filepath.Join(dir, Snakefile)); err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			return nil, fmt.Errorf("no %s in %s", Snakefile, dir)
		}
		return nil, err
	}
	return &Make{Dir: dir, Engine: engine}, nil
}

// Exec runs rules in sequence, DefaultRule when none are given.
func (m *Make) Exec(ctx context.Context, opts RunOptions, rules ...string) error {
	if len(rules) == 0 {
		rules = []string{DefaultRule}
	}
	return m.Engine.Run(ctx, m.Dir, opts, rules...)
}

// List returns the target rules.
func (m *Make) List(ctx context.Context) ([]string, error) {
	return m.Engine.ListRules(ctx, m.Dir)
}

// Unlock removes the locks of the run directory.
func (m *Make) Unlock(ctx context.Context) error {
	return m.Engine.Unlock(ctx, m.Dir)
}
