package cli

import (
	"bytes"
	"context"
	"io"
	"path/filepath"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/roach88/snek/internal/config"
	"github.com/roach88/snek/internal/solver"
	"github.com/roach88/snek/internal/testutil"
)

var fixedNow = time.Date(2024, 1, 2, 3, 4, 5, 0, time.UTC)

// recordingRunner stands in for the workflow engine executable.
type recordingRunner struct {
	mu    sync.Mutex
	calls [][]string
	out   []byte
	err   error
}

func (r *recordingRunner) Run(_ context.Context, dir, name string, args ...string) ([]byte, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.calls = append(r.calls, append([]string{dir, name}, args...))
	return r.out, r.err
}

// testRoot returns options isolated from the real environment: XDG
// directories and the registry live in a temporary directory.
func testRoot(t *testing.T) (*RootOptions, *recordingRunner) {
	t.Helper()
	home := t.TempDir()
	vars := map[string]string{
		"HOME":            home,
		"XDG_CONFIG_HOME": filepath.Join(home, "config"),
		"XDG_DATA_HOME":   filepath.Join(home, "data"),
	}
	runner := &recordingRunner{}
	return &RootOptions{
		Env: config.Env{
			Getenv:   func(k string) string { return vars[k] },
			Hostname: func() (string, error) { return "testhost", nil },
		},
		Runner: runner,
		Now:    func() time.Time { return fixedNow },
	}, runner
}

// execute runs the root command with args and returns its standard output.
func execute(t *testing.T, opts *RootOptions, args ...string) (string, error) {
	t.Helper()
	cmd := newRootCommand(opts)
	buf := &bytes.Buffer{}
	cmd.SetOut(buf)
	cmd.SetErr(io.Discard)
	cmd.SetArgs(args)
	err := cmd.Execute()
	return buf.String(), err
}

// newRun creates a run directory of solver short with saved default
// parameters, ready to restart.
func newRun(t *testing.T, short, name string) (*solver.Registry, *testutil.SimDir) {
	t.Helper()
	reg, err := solver.NewRegistry()
	require.NoError(t, err)
	p, err := reg.CreateDefaultParams(short)
	require.NoError(t, err)

	d := testutil.NewSimDir(t, name).Ready()
	require.NoError(t, reg.SaveParams(p, d.Root, short))
	return reg, d
}
