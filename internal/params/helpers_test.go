package params

import (
	"testing"

	"github.com/google/go-cmp/cmp"
	"github.com/stretchr/testify/require"

	"github.com/roach88/snek/internal/value"
)

// valueComparer lets cmp treat NaN reals as equal.
var valueComparer = cmp.Comparer(func(a, b value.Value) bool {
	return value.Equal(a, b)
})

func mustSet(t *testing.T, n *Node, name string, v value.Value) {
	t.Helper()
	require.NoError(t, n.Set(name, v))
}

// buildTree creates a small tree shaped like a solver's defaults, without
// any user parameters recorded.
func buildTree(t *testing.T) *Node {
	t.Helper()
	root := New()
	mustSet(t, root, "prandtl", value.Float(0.71))
	mustSet(t, root, "rayleigh", value.Float(1.8e8))

	nek := root.MustChild("nek")
	nek.SetUser(false)

	general := nek.MustChild("general")
	general.SetUser(false)
	mustSet(t, general, "start_from", value.String(""))
	mustSet(t, general, "stop_at", value.String("num_steps"))
	mustSet(t, general, "end_time", value.NaN())
	mustSet(t, general, "num_steps", value.Int(10))
	mustSet(t, general, "dt", value.Float(0.005))
	mustSet(t, general, "variable_dt", value.Bool(true))
	mustSet(t, general, "filtering", value.Null{})
	mustSet(t, general, "write_interval", value.Int(10))

	problem := nek.MustChild("problemtype")
	problem.SetUser(false)
	mustSet(t, problem, "equation", value.String("incompNS"))
	mustSet(t, problem, "variable_properties", value.Bool(false))

	velocity := nek.MustChild("velocity")
	velocity.SetUser(false)
	mustSet(t, velocity, "residual_tol", value.Float(1e-8))
	mustSet(t, velocity, "viscosity", value.NaN())
	mustSet(t, velocity, "density", value.Float(1))

	mesh := nek.MustChild("mesh")
	mesh.SetUser(false)
	mesh.SetEnabled(false)
	mustSet(t, mesh, "write_to_field_file", value.Bool(true))

	runpar := nek.MustChild("runpar")
	mustSet(t, runpar, "parf_write", value.Bool(false))

	hp := root.MustChild("output").MustChild("history_points")
	mustSet(t, hp, "write_interval", value.Int(100))
	return root
}

// buildRecordedTree is buildTree with three user parameters recorded.
func buildRecordedTree(t *testing.T) *Node {
	t.Helper()
	root := buildTree(t)
	diags, err := root.Record(map[string]int{"prandtl": 1, "rayleigh": 2}, false)
	require.NoError(t, err)
	require.Empty(t, diags)

	hp := root.Child("output").Child("history_points")
	_, err = hp.Record(map[string]int{"write_interval": 10}, false)
	require.NoError(t, err)
	return root
}
