package params

import (
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/google/go-cmp/cmp"
	"github.com/sebdah/goldie/v2"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/roach88/snek/internal/parfile"
	"github.com/roach88/snek/internal/value"
)

func TestParStringGolden(t *testing.T) {
	root := buildRecordedTree(t)

	text, err := ParString(root)
	require.NoError(t, err)

	g := goldie.New(t,
		goldie.WithFixtureDir("testdata/golden"),
		goldie.WithNameSuffix(".golden"),
	)
	g.Assert(t, "par_basic", []byte(text))
}

func TestDisabledSectionNeverWritten(t *testing.T) {
	root := buildTree(t)
	mesh := root.Child("nek").Child("mesh")
	mustSet(t, mesh, "write_to_field_file", value.Bool(false))
	mustSet(t, mesh, "motion", value.String("user"))

	text, err := ParString(root)
	require.NoError(t, err)
	assert.NotContains(t, text, "[MESH]")
	assert.NotContains(t, text, "motion")

	nek := root.Child("nek")
	f, err := SyncPar(nek, SyncOptions{KeepAllSections: true})
	require.NoError(t, err)
	require.NotNil(t, f.Section("MESH"))
	v, _ := f.Section("MESH").Get("motion")
	assert.Equal(t, "user", v)
}

func TestInternalMarkersRemoved(t *testing.T) {
	f, err := SyncPar(buildTree(t).Child("nek"), SyncOptions{KeepAllSections: true})
	require.NoError(t, err)
	for _, sec := range f.Sections() {
		_, hasEnabled := sec.Get("_enabled")
		_, hasUser := sec.Get("_user")
		assert.False(t, hasEnabled, sec.Name)
		assert.False(t, hasUser, sec.Name)
	}
}

func TestSectionNames(t *testing.T) {
	root := New()
	core := root.MustChild("scalar01")
	core.SetUser(false)
	assert.Equal(t, "SCALAR01", SectionName(core))

	user := root.MustChild("chkpoint")
	assert.Equal(t, "_CHKPOINT", SectionName(user))
}

func TestKeepPrunable(t *testing.T) {
	nek := buildTree(t).Child("nek")
	f, err := SyncPar(nek, SyncOptions{KeepPrunable: true})
	require.NoError(t, err)
	v, ok := f.Section("GENERAL").Get("endTime")
	require.True(t, ok)
	assert.Equal(t, "<real>", v)
	v, _ = f.Section("GENERAL").Get("startFrom")
	assert.Equal(t, "", v)
}

func TestUserParamsAreReadLive(t *testing.T) {
	root := buildRecordedTree(t)
	require.NoError(t, root.Set("prandtl", value.Float(7)))
	require.NoError(t, root.SetPath("output.history_points.write_interval", value.Int(3)))

	text, err := ParString(root)
	require.NoError(t, err)
	assert.Contains(t, text, "userParam01 = 7.0\n")
	assert.Contains(t, text, "userParam10 = 3\n")
}

func TestNodeWithoutChildrenIsOneSection(t *testing.T) {
	n := NewDetached("stat")
	n.SetUser(false)
	mustSet(t, n, "av_step", value.Int(4))
	f, err := SyncPar(n, SyncOptions{})
	require.NoError(t, err)
	assert.Equal(t, "[STAT]\navStep = 4\n\n", f.String())
}

func TestSaveParAndReadBack(t *testing.T) {
	root := buildRecordedTree(t)
	require.NoError(t, root.Set("prandtl", value.Float(0.5)))
	require.NoError(t, root.SetPath("nek.general.num_steps", value.Int(42)))
	require.NoError(t, root.SetPath("nek.velocity.viscosity", value.Float(1e-3)))

	dir := t.TempDir()
	path := filepath.Join(dir, "case.par")
	require.NoError(t, SavePar(root, path))

	side, err := LoadSlotMap(filepath.Join(dir, SlotMapFile))
	require.NoError(t, err)
	assert.Equal(t, map[int]string{1: "prandtl", 2: "rayleigh", 10: "output.history_points.write_interval"}, side)

	fresh := buildTree(t)
	diags, err := ReadPar(fresh, path)
	require.NoError(t, err)
	assert.Empty(t, diags)

	for _, p := range []string{"prandtl", "rayleigh", "nek.general.num_steps", "nek.velocity.viscosity", "output.history_points.write_interval"} {
		want, err := root.GetPath(p)
		require.NoError(t, err)
		got, err := fresh.GetPath(p)
		require.NoError(t, err)
		assert.Truef(t, value.Equal(want, got), "%s: want %s, got %s", p, want.Repr(), got.Repr())
	}

	// Values written as option names come back camel-cased.
	got, _ := fresh.GetPath("nek.general.stop_at")
	assert.Equal(t, value.String("numSteps"), got)

	// Pruned values are untouched, so the rest of the tree matches.
	if diff := cmp.Diff(Flatten(root.Child("nek").Child("velocity")), Flatten(fresh.Child("nek").Child("velocity")), valueComparer); diff != "" {
		t.Errorf("velocity mismatch (-want +got):\n%s", diff)
	}
}

func TestSlotMapSideFileFormat(t *testing.T) {
	dir := t.TempDir()
	require.NoError(t, SaveSlotMap(dir, map[int]string{10: "output.history_points.write_interval", 2: "rayleigh"}))
	data, err := os.ReadFile(filepath.Join(dir, SlotMapFile))
	require.NoError(t, err)
	assert.Equal(t, `{"2": "rayleigh", "10": "output.history_points.write_interval"}`, string(data))
}

func TestReadParFallsBackToInMemoryMap(t *testing.T) {
	root := buildRecordedTree(t)
	path := filepath.Join(t.TempDir(), "case.par")
	text, err := ParString(root)
	require.NoError(t, err)
	require.NoError(t, os.WriteFile(path, []byte(strings.Replace(text, "userParam02 = 180000000.0", "userParam02 = 2.0", 1)), 0o644))

	fresh := buildRecordedTree(t)
	diags, err := ReadPar(fresh, path)
	require.NoError(t, err)
	assert.Empty(t, diags)
	got, _ := fresh.Get("rayleigh")
	assert.Equal(t, value.Float(2), got)
}

func TestReadParStaleSideFile(t *testing.T) {
	root := buildRecordedTree(t)
	dir := t.TempDir()
	path := filepath.Join(dir, "case.par")
	require.NoError(t, SavePar(root, path))
	require.NoError(t, os.WriteFile(filepath.Join(dir, SlotMapFile), []byte("{not json"), 0o644))

	diags, err := ReadPar(buildRecordedTree(t), path)
	require.NoError(t, err)
	require.Len(t, diags, 1)
	assert.Equal(t, DiagStaleSideFile, diags[0].Code)
}

func TestReadParStaleSideFilePath(t *testing.T) {
	root := buildRecordedTree(t)
	dir := t.TempDir()
	path := filepath.Join(dir, "case.par")
	require.NoError(t, SavePar(root, path))
	require.NoError(t, os.WriteFile(filepath.Join(dir, SlotMapFile),
		[]byte(`{"1": "prandtl", "2": "rayleigh", "10": "output.hist.write_interval"}`), 0o644))

	fresh := buildRecordedTree(t)
	require.NoError(t, fresh.Set("prandtl", value.Float(3)))
	diags, err := ReadPar(fresh, path)
	require.NoError(t, err)
	require.Len(t, diags, 1)
	assert.Equal(t, DiagStaleSideFile, diags[0].Code)
	assert.Equal(t, 10, diags[0].Attrs["slot"])

	v, _ := fresh.Get("prandtl")
	assert.Equal(t, value.Float(0.71), v)
	v, _ = fresh.GetPath("output.history_points.write_interval")
	assert.Equal(t, value.Int(100), v)
}

func TestReadParInvalidSideFileFallsBack(t *testing.T) {
	for name, side := range map[string]string{
		"slot out of range": `{"1": "prandtl", "21": "rayleigh"}`,
		"duplicate path":    `{"1": "prandtl", "2": "prandtl"}`,
	} {
		t.Run(name, func(t *testing.T) {
			root := buildRecordedTree(t)
			require.NoError(t, root.Set("rayleigh", value.Float(2)))
			dir := t.TempDir()
			path := filepath.Join(dir, "case.par")
			require.NoError(t, SavePar(root, path))
			require.NoError(t, os.WriteFile(filepath.Join(dir, SlotMapFile), []byte(side), 0o644))

			fresh := buildRecordedTree(t)
			diags, err := ReadPar(fresh, path)
			require.NoError(t, err)
			require.Len(t, diags, 1)
			assert.Equal(t, DiagStaleSideFile, diags[0].Code)

			// The in-memory map routes the slots instead.
			v, _ := fresh.Get("rayleigh")
			assert.Equal(t, value.Float(2), v)
		})
	}
}

func TestSetRecordedUserParamsMissingPath(t *testing.T) {
	root := buildRecordedTree(t)
	err := SetRecordedUserParams(root, map[int]string{1: "prandtl", 4: "output.gone.x"})
	assert.True(t, IsSlotError(err, MissingPath), "got %v", err)
	assert.Equal(t, "prandtl", RecordedUserParams(root)[1])
	assert.Len(t, RecordedUserParams(root), 3)
}

func parseText(t *testing.T, text string) *parfile.File {
	t.Helper()
	f, err := parfile.Parse(strings.NewReader(text))
	require.NoError(t, err)
	return f
}

func TestCompleteFromParUnknownSectionAborts(t *testing.T) {
	root := buildTree(t)
	f := parseText(t, "[GENERAL]\nnumSteps = 77\n\n[_NOPE]\nx = 1\n")

	_, err := CompleteFromPar(root, f, nil)
	var secErr *UnknownSectionError
	require.ErrorAs(t, err, &secErr)
	assert.Equal(t, "_NOPE", secErr.Section)

	// Nothing was applied.
	v, _ := root.GetPath("nek.general.num_steps")
	assert.Equal(t, value.Int(10), v)
}

func TestCompleteFromParUnknownOption(t *testing.T) {
	root := buildTree(t)
	f := parseText(t, "[VELOCITY]\nresidualTol = 1e-06\nmadeUp = 3\n")

	_, err := CompleteFromPar(root, f, nil)
	var optErr *UnknownOptionError
	require.ErrorAs(t, err, &optErr)
	assert.Equal(t, "madeUp", optErr.Key)
}

func TestCompleteFromParUnknownSlotWarns(t *testing.T) {
	root := buildTree(t)
	f := parseText(t, "[GENERAL]\nnumSteps = 5\nuserParam05 = 3.0\n")

	diags, err := CompleteFromPar(root, f, map[int]string{1: "prandtl"})
	require.NoError(t, err)
	require.Len(t, diags, 1)
	assert.Equal(t, DiagUnknownSlot, diags[0].Code)
	assert.Equal(t, 5, diags[0].Attrs["slot"])

	v, _ := root.GetPath("nek.general.num_steps")
	assert.Equal(t, value.Int(5), v)
}

func TestCompleteFromParSlotAboveTwenty(t *testing.T) {
	root := buildTree(t)
	f := parseText(t, "[GENERAL]\nuserParam21 = 1\n")

	_, err := CompleteFromPar(root, f, map[int]string{21: "prandtl"})
	assert.True(t, IsSlotError(err, SlotRange))
}

func TestCompleteFromParRoutesUserParams(t *testing.T) {
	root := buildTree(t)
	f := parseText(t, "[GENERAL]\nuserParam01 = 0.9\nuserParam10 = 7\n")

	diags, err := CompleteFromPar(root, f, map[int]string{1: "prandtl", 10: "output.history_points.write_interval"})
	require.NoError(t, err)
	assert.Empty(t, diags)

	v, _ := root.Get("prandtl")
	assert.Equal(t, value.Float(0.9), v)
	v, _ = root.GetPath("output.history_points.write_interval")
	assert.Equal(t, value.Int(7), v)
	assert.False(t, root.Child("nek").Child("general").Has("user_param01"))
}

func TestAutodocPar(t *testing.T) {
	nek := buildTree(t).Child("nek")
	nek.SetDoc("Solver settings.")
	require.NoError(t, AutodocPar(nek, 4))

	doc := nek.Doc()
	assert.True(t, strings.HasPrefix(doc, "Solver settings.\n    .. code-block:: ini\n\n       [GENERAL]\n"))
	assert.Contains(t, doc, "       [MESH]\n")
	assert.Contains(t, doc, "       endTime = <real>\n")
}

func TestSolverNodeRequiresRoot(t *testing.T) {
	_, err := ParString(NewDetached("output"))
	assert.Error(t, err)

	_, err = ParString(New())
	var pathErr *PathError
	assert.ErrorAs(t, err, &pathErr)
}
