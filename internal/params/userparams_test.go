package params

import (
	"fmt"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/roach88/snek/internal/value"
)

func TestRecordQualifiesPathsFromRoot(t *testing.T) {
	root := buildRecordedTree(t)
	assert.Equal(t, map[int]string{
		1:  "prandtl",
		2:  "rayleigh",
		10: "output.history_points.write_interval",
	}, RecordedUserParams(root))
}

func TestRecordSamePathSameSlotIsIdempotent(t *testing.T) {
	root := buildRecordedTree(t)
	_, err := root.Record(map[string]int{"prandtl": 1}, false)
	require.NoError(t, err)
	assert.Len(t, RecordedUserParams(root), 3)
}

func TestRecordCollisionWithoutOverwrite(t *testing.T) {
	root := buildRecordedTree(t)
	other := root.Child("output").MustChild("other")
	mustSet(t, other, "write_interval", value.Int(100))

	_, err := other.Record(map[string]int{"write_interval": 10}, false)
	require.True(t, IsSlotError(err, SlotCollision), "got %v", err)
	assert.Equal(t, "output.history_points.write_interval", RecordedUserParams(root)[10])
}

func TestRecordMovingPathWithoutOverwrite(t *testing.T) {
	root := buildRecordedTree(t)
	_, err := root.Record(map[string]int{"prandtl": 3}, false)
	require.True(t, IsSlotError(err, PathCollision), "got %v", err)
	assert.Equal(t, "prandtl", RecordedUserParams(root)[1])
}

func TestRecordOverwrite(t *testing.T) {
	root := buildRecordedTree(t)
	other := root.Child("output").MustChild("other")
	mustSet(t, other, "write_interval", value.Int(100))

	_, err := other.Record(map[string]int{"write_interval": 10}, true)
	require.NoError(t, err)
	assert.Equal(t, map[int]string{
		1:  "prandtl",
		2:  "rayleigh",
		10: "output.other.write_interval",
	}, RecordedUserParams(root))
}

func TestRecordOverwriteMovesPath(t *testing.T) {
	root := buildRecordedTree(t)
	_, err := root.Record(map[string]int{"prandtl": 3}, true)
	require.NoError(t, err)
	m := RecordedUserParams(root)
	assert.Equal(t, "prandtl", m[3])
	_, stillThere := m[1]
	assert.False(t, stillThere)
}

func TestRecordSlotRange(t *testing.T) {
	root := buildTree(t)
	for _, slot := range []int{0, -1, 21} {
		_, err := root.Record(map[string]int{"prandtl": slot}, false)
		assert.True(t, IsSlotError(err, SlotRange), "slot %d", slot)
	}
	assert.Nil(t, RecordedUserParams(root))
}

func TestRecordDuplicateSlotInOneCall(t *testing.T) {
	root := buildTree(t)
	_, err := root.Record(map[string]int{"prandtl": 4, "rayleigh": 4}, true)
	assert.True(t, IsSlotError(err, SlotCollision))
}

func TestRecordOnIsolatedTreeWarns(t *testing.T) {
	output := NewDetached("output")
	hp := output.MustChild("history_points")
	mustSet(t, hp, "write_interval", value.Int(100))

	diags, err := hp.Record(map[string]int{"write_interval": 10}, false)
	require.NoError(t, err)
	require.Len(t, diags, 1)
	assert.Equal(t, DiagNoSolverTree, diags[0].Code)
}

// Mirrors the usual life cycle: record, overwrite, try unsafe remaps, swap.
func TestChangeIndex(t *testing.T) {
	root := buildRecordedTree(t)
	other := root.Child("output").MustChild("other")
	mustSet(t, other, "write_interval", value.Int(100))
	_, err := other.Record(map[string]int{"write_interval": 10}, true)
	require.NoError(t, err)

	err = root.ChangeIndex(map[int]string{2: "prandtl"})
	assert.True(t, IsSlotError(err, UnsafeRemap), "got %v", err)

	err = root.ChangeIndex(map[int]string{5: "foo"})
	assert.True(t, IsSlotError(err, UnrecordedPath), "got %v", err)

	require.NoError(t, root.ChangeIndex(map[int]string{2: "prandtl", 1: "rayleigh"}))
	assert.Equal(t, map[int]string{
		2:  "prandtl",
		1:  "rayleigh",
		10: "output.other.write_interval",
	}, RecordedUserParams(root))
}

func TestChangeIndexToFreeSlot(t *testing.T) {
	root := buildRecordedTree(t)
	require.NoError(t, root.ChangeIndex(map[int]string{8: "output.history_points.write_interval"}))
	assert.Equal(t, map[int]string{1: "prandtl", 2: "rayleigh", 8: "output.history_points.write_interval"}, RecordedUserParams(root))
}

func TestChangeIndexRejectsDuplicatePaths(t *testing.T) {
	root := buildRecordedTree(t)
	err := root.ChangeIndex(map[int]string{3: "prandtl", 4: "prandtl"})
	assert.True(t, IsSlotError(err, PathCollision))
}

func TestChangeIndexPreconditions(t *testing.T) {
	root := buildRecordedTree(t)
	err := root.Child("output").ChangeIndex(map[int]string{1: "prandtl"})
	assert.True(t, IsSlotError(err, NotRoot))

	err = buildTree(t).ChangeIndex(map[int]string{1: "prandtl"})
	assert.True(t, IsSlotError(err, NoRecord))

	err = New().ChangeIndex(map[int]string{1: "prandtl"})
	assert.True(t, IsSlotError(err, NoGeneral))
}

func TestOverwriteThenStaleChangeIndex(t *testing.T) {
	root := New()
	root.MustChild("nek").MustChild("general")
	a := root.MustChild("a")
	mustSet(t, a, "b", value.Int(1))
	c := root.MustChild("c")
	mustSet(t, c, "d", value.Int(2))

	_, err := a.Record(map[string]int{"b": 5}, false)
	require.NoError(t, err)

	_, err = c.Record(map[string]int{"d": 5}, false)
	require.True(t, IsSlotError(err, SlotCollision))

	_, err = c.Record(map[string]int{"d": 5}, true)
	require.NoError(t, err)
	assert.Equal(t, map[int]string{5: "c.d"}, RecordedUserParams(root))

	err = root.ChangeIndex(map[int]string{6: "a.b"})
	assert.True(t, IsSlotError(err, UnrecordedPath))
}

// After any sequence of accepted operations the map stays injective and in
// range.
func TestSlotMapStaysInjective(t *testing.T) {
	root := New()
	root.MustChild("nek").MustChild("general")
	leaves := root.MustChild("leaves")
	for i := 0; i < 8; i++ {
		mustSet(t, leaves, fmt.Sprintf("x%d", i), value.Int(int64(i)))
	}

	check := func() {
		t.Helper()
		seen := map[string]bool{}
		for slot, path := range RecordedUserParams(root) {
			assert.GreaterOrEqual(t, slot, MinSlot)
			assert.LessOrEqual(t, slot, MaxSlot)
			assert.False(t, seen[path], "path %s appears twice", path)
			seen[path] = true
		}
	}

	for step := 0; step < 60; step++ {
		name := fmt.Sprintf("x%d", step%8)
		slot := (step*7)%22 - 1
		_, _ = leaves.Record(map[string]int{name: slot}, step%3 == 0)
		check()

		m := RecordedUserParams(root)
		if len(m) >= 2 {
			var paths []string
			for _, p := range m {
				paths = append(paths, p)
			}
			_ = root.ChangeIndex(map[int]string{(step % 20) + 1: paths[0]})
			check()
		}
	}
}

func TestSetRecordedUserParams(t *testing.T) {
	root := buildTree(t)
	require.NoError(t, SetRecordedUserParams(root, map[int]string{3: "prandtl"}))
	assert.Equal(t, map[int]string{3: "prandtl"}, RecordedUserParams(root))

	err := SetRecordedUserParams(root, map[int]string{3: "prandtl", 4: "prandtl"})
	assert.True(t, IsSlotError(err, PathCollision))

	err = SetRecordedUserParams(root, map[int]string{30: "prandtl"})
	assert.True(t, IsSlotError(err, SlotRange))
}
