package workflow

import (
	"context"
	"errors"
	"os"
	"os/exec"
	"path/filepath"
	"strings"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type call struct {
	Dir  string
	Name string
	Args []string
}

type fakeRunner struct {
	mu     sync.Mutex
	calls  []call
	output string
	err    error
}

func (f *fakeRunner) Run(_ context.Context, dir, name string, args ...string) ([]byte, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.calls = append(f.calls, call{Dir: dir, Name: name, Args: args})
	return []byte(f.output), f.err
}

func newMake(t *testing.T, runner Runner) *Make {
	t.Helper()
	dir := t.TempDir()
	require.NoError(t, os.WriteFile(filepath.Join(dir, Snakefile), nil, 0o644))
	m, err := NewMake(dir, &Snakemake{Executable: "snakemake", Runner: runner})
	require.NoError(t, err)
	return m
}

func TestRunArgs(t *testing.T) {
	args := RunArgs(RunOptions{
		DryRun:         true,
		KeepIncomplete: true,
		Jobs:           4,
		Resources:      map[string]int{"nproc": 2, "mem": 8},
		Config:         map[string]string{"CC": "mpicc"},
	}, "compile", "run")
	assert.Equal(t, []string{
		"--snakefile", "Snakefile", "--jobs", "4", "--dry-run", "--keep-incomplete",
		"--resources", "mem=8", "nproc=2",
		"--config", "CC=mpicc",
		"compile", "run",
	}, args)

	assert.Equal(t, []string{"--snakefile", "Snakefile", "--jobs", "1"}, RunArgs(RunOptions{}))
}

func TestMakeExecDefaultsToRun(t *testing.T) {
	r := &fakeRunner{}
	m := newMake(t, r)
	require.NoError(t, m.Exec(context.Background(), RunOptions{}))

	require.Len(t, r.calls, 1)
	assert.Equal(t, m.Dir, r.calls[0].Dir)
	assert.Equal(t, "snakemake", r.calls[0].Name)
	assert.Equal(t, "run", r.calls[0].Args[len(r.calls[0].Args)-1])
}

func TestMakeExecRules(t *testing.T) {
	r := &fakeRunner{}
	m := newMake(t, r)
	require.NoError(t, m.Exec(context.Background(), RunOptions{Resources: map[string]int{"nproc": 4}}, "mesh", "compile"))
	assert.Equal(t, []string{"--snakefile", "Snakefile", "--jobs", "1", "--resources", "nproc=4", "mesh", "compile"}, r.calls[0].Args)
}

func TestMakeList(t *testing.T) {
	r := &fakeRunner{output: "compile\n  run\n\nmesh\n"}
	m := newMake(t, r)
	rules, err := m.List(context.Background())
	require.NoError(t, err)
	assert.Equal(t, []string{"compile", "run", "mesh"}, rules)
	assert.Contains(t, r.calls[0].Args, "--list-target-rules")
}

func TestMakeUnlock(t *testing.T) {
	r := &fakeRunner{}
	m := newMake(t, r)
	require.NoError(t, m.Unlock(context.Background()))
	assert.Equal(t, []string{"--snakefile", "Snakefile", "--unlock"}, r.calls[0].Args)
}

func TestMakeErrorsPropagate(t *testing.T) {
	boom := errors.New("boom")
	m := newMake(t, &fakeRunner{err: boom})
	assert.ErrorIs(t, m.Exec(context.Background(), RunOptions{}), boom)
	_, err := m.List(context.Background())
	assert.ErrorIs(t, err, boom)
}

func TestNewMakeNeedsSnakefile(t *testing.T) {
	_, err := NewMake(t.TempDir(), NewSnakemake(""))
	require.Error(t, err)
	assert.Contains(t, err.Error(), "no Snakefile in")
}

func TestExecRunner(t *testing.T) {
	sh, err := exec.LookPath("sh")
	if err != nil {
		t.Skip("sh not available")
	}
	dir := t.TempDir()

	out, err := ExecRunner{}.Run(context.Background(), dir, sh, "-c", "pwd")
	require.NoError(t, err)
	resolved, _ := filepath.EvalSymlinks(dir)
	assert.Contains(t, []string{dir, resolved}, strings.TrimSpace(string(out)))

	_, err = ExecRunner{}.Run(context.Background(), dir, sh, "-c", "echo nope >&2; exit 3")
	var execErr *ExecError
	require.ErrorAs(t, err, &execErr)
	assert.Equal(t, "nope", execErr.Stderr)
	assert.Contains(t, err.Error(), "exit status 3")
}

func TestExecRunnerHonoursContext(t *testing.T) {
	sh, err := exec.LookPath("sh")
	if err != nil {
		t.Skip("sh not available")
	}
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	_, err = ExecRunner{}.Run(ctx, t.TempDir(), sh, "-c", "sleep 5")
	assert.Error(t, err)
}
