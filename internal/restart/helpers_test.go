package restart

import (
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/roach88/snek/internal/solver"
	"github.com/roach88/snek/internal/testutil"
)

// newRun creates a run directory of solver short with saved default
// parameters, ready to restart.
func newRun(t *testing.T, short string) (*solver.Registry, *testutil.SimDir) {
	t.Helper()
	reg, err := solver.NewRegistry()
	require.NoError(t, err)
	p, err := reg.CreateDefaultParams(short)
	require.NoError(t, err)

	d := testutil.NewSimDir(t, short+"_run_2024-01-02_03-04-05").Ready()
	require.NoError(t, reg.SaveParams(p, d.Root, short))
	return reg, d
}

func intPtr(i int) *int { return &i }

func floatPtr(f float64) *float64 { return &f }
