package restart

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/roach88/snek/internal/value"
)

func getPath(t *testing.T, res *Result, path string) value.Value {
	t.Helper()
	v, err := res.Params.GetPath(path)
	require.NoError(t, err)
	return v
}

func TestLoadForRestartNeedsASource(t *testing.T) {
	reg, d := newRun(t, "cbox")
	_, err := LoadForRestart(reg, Options{Path: d.Root})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "No restart files were requested")

	_, err = LoadForRestart(reg, Options{Path: d.Root, UseStartFrom: "-1", UseCheckpoint: 1})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "mutually exclusive")
}

func TestLoadForRestartRefusesFailedStatus(t *testing.T) {
	reg, d := newRun(t, "cbox")
	d.Locked()

	_, err := LoadForRestart(reg, Options{Path: d.Root, UseCheckpoint: 1})
	require.Error(t, err)
	assert.True(t, IsStatusError(err, 423))
	assert.Equal(t, StatusLocked.String(), err.Error())

	// Skipping the check reaches the restart source validation, where a
	// locked directory is not a usable checkpoint status.
	_, err = LoadForRestart(reg, Options{Path: d.Root, UseCheckpoint: 1, SkipVerify: true})
	require.Error(t, err)
	assert.False(t, IsStatusError(err, 423))
	assert.Contains(t, err.Error(), "Restart checkpoint 1 is invalid")
}

func TestLoadForRestartCheckpoint(t *testing.T) {
	reg, d := newRun(t, "cbox")
	d.Checkpoint("cbox", 1).FieldFile(0, "cbox", 1)

	res, err := LoadForRestart(reg, Options{Path: d.Root, UseCheckpoint: 2})
	require.NoError(t, err)
	assert.Equal(t, StatusResetContent, res.Status)
	assert.Equal(t, value.Int(2), getPath(t, res, "nek.chkpoint.chkp_fnumber"))
	assert.Equal(t, value.Bool(true), getPath(t, res, "nek.chkpoint.read_chkpt"))
	assert.Equal(t, value.String(""), getPath(t, res, "nek.general.start_from"))

	assert.Equal(t, 1, res.SessionID)
	assert.Equal(t, filepath.Join(res.Run, "session_01"), res.NewSession)
	assert.DirExists(t, res.NewSession)
	assert.NoFileExists(t, filepath.Join(res.NewSession, "init_state.restart"))
	assert.Equal(t, value.Int(1), getPath(t, res, "output.session_id"))
	assert.Equal(t, value.String(res.NewSession), getPath(t, res, "output.path_session"))
	assert.Equal(t, value.Bool(true), getPath(t, res, "output.HAS_TO_SAVE"))
	assert.Equal(t, value.Bool(false), getPath(t, res, "NEW_DIR_RESULTS"))
}

func TestLoadForRestartInvalidCheckpoint(t *testing.T) {
	reg, d := newRun(t, "cbox")
	_, err := LoadForRestart(reg, Options{Path: d.Root, UseCheckpoint: 3})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "Restart checkpoint 3 is invalid / does not exist")

	// 206 means no checkpoint set is present.
	d.FieldFile(0, "cbox", 1)
	_, err = LoadForRestart(reg, Options{Path: d.Root, UseCheckpoint: 1})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "Restart checkpoint 1 is invalid")
}

func TestLoadForRestartCheckpointNeedsSection(t *testing.T) {
	reg, d := newRun(t, "nek")
	_, err := LoadForRestart(reg, Options{Path: d.Root, UseCheckpoint: 1})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "chkpoint")
}

func TestLoadForRestartStartFromName(t *testing.T) {
	reg, d := newRun(t, "cbox")
	d.FieldFile(0, "cbox", 1).FieldFile(0, "cbox", 2)

	res, err := LoadForRestart(reg, Options{Path: d.Root, UseStartFrom: "cbox0.f00001"})
	require.NoError(t, err)
	assert.Equal(t, StatusPartialContent, res.Status)
	assert.Equal(t, filepath.Join(res.OldSession, "cbox0.f00001"), res.StartFrom)
	assert.Equal(t, value.String("init_state.restart"), getPath(t, res, "nek.general.start_from"))

	link := filepath.Join(res.NewSession, "init_state.restart")
	target, err := os.Readlink(link)
	require.NoError(t, err)
	assert.Equal(t, filepath.Join("..", "session_00", "cbox0.f00001"), target)
	assert.FileExists(t, link)
}

func TestLoadForRestartStartFromIndex(t *testing.T) {
	reg, d := newRun(t, "cbox")
	d.FieldFile(0, "cbox", 1).FieldFile(0, "cbox", 2).FieldFile(0, "cbox", 3)

	for spec, want := range map[string]string{"0": "cbox0.f00001", "-1": "cbox0.f00003", "-2": "cbox0.f00002"} {
		res, err := LoadForRestart(reg, Options{Path: d.Root, UseStartFrom: spec, OnlyCheck: true})
		require.NoError(t, err, spec)
		assert.Equal(t, want, filepath.Base(res.StartFrom), spec)
	}

	_, err := LoadForRestart(reg, Options{Path: d.Root, UseStartFrom: "3", OnlyCheck: true})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "out of range")
}

func TestLoadForRestartMissingStartFileCreatesNothing(t *testing.T) {
	reg, d := newRun(t, "cbox")
	_, err := LoadForRestart(reg, Options{Path: d.Root, UseStartFrom: "cbox0.f00009"})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "Restart file")
	assert.Contains(t, err.Error(), "not found")
	assert.NoDirExists(t, d.Path("session_01"))
}

func TestLoadForRestartOnlyCheck(t *testing.T) {
	reg, d := newRun(t, "cbox")
	d.FieldFile(0, "cbox", 1)

	res, err := LoadForRestart(reg, Options{Path: d.Root, UseStartFrom: "-1", OnlyCheck: true})
	require.NoError(t, err)
	assert.Equal(t, filepath.Join(res.Run, "session_01"), res.NewSession)
	assert.NoDirExists(t, res.NewSession)
}

func TestLoadForRestartFromSessionPath(t *testing.T) {
	reg, d := newRun(t, "cbox")
	d.Dir("session_01").FieldFile(1, "cbox", 7)

	res, err := LoadForRestart(reg, Options{Path: d.Path("session_01"), UseStartFrom: "-1", OnlyCheck: true})
	require.NoError(t, err)
	assert.Equal(t, filepath.Base(d.Root), filepath.Base(res.Run))
	assert.Equal(t, "session_01", filepath.Base(res.OldSession))
	assert.Equal(t, "cbox0.f00007", filepath.Base(res.StartFrom))
	// session_00 is empty and counts as free.
	assert.Equal(t, 0, res.SessionID)
}

func TestLoadForRestartExplicitSession(t *testing.T) {
	reg, d := newRun(t, "cbox")
	d.Dir("session_01").FieldFile(1, "cbox", 4)

	res, err := LoadForRestart(reg, Options{Path: d.Root, SessionID: intPtr(1), UseStartFrom: "0", OnlyCheck: true})
	require.NoError(t, err)
	assert.Equal(t, "cbox0.f00004", filepath.Base(res.StartFrom))
}

func TestLoadForRestartNewDir(t *testing.T) {
	reg, d := newRun(t, "cbox")
	d.FieldFile(0, "cbox", 1)

	res, err := LoadForRestart(reg, Options{Path: d.Root, UseStartFrom: "-1", NewDirResults: true})
	require.NoError(t, err)
	assert.Empty(t, res.NewSession)
	assert.NoDirExists(t, d.Path("session_01"))
	assert.Equal(t, value.Bool(true), getPath(t, res, "NEW_DIR_RESULTS"))
	assert.Equal(t, value.String(""), getPath(t, res, "path_run"))
	assert.Equal(t, value.Int(0), getPath(t, res, "output.session_id"))
	assert.Equal(t, value.String("init_state.restart"), getPath(t, res, "nek.general.start_from"))

	now := time.Date(2025, 3, 4, 5, 6, 7, 0, time.UTC)
	dir, err := CreateNewDir(res, now)
	require.NoError(t, err)
	assert.Equal(t, "cbox_run_2025-03-04_05-06-07", filepath.Base(dir))
	assert.Equal(t, filepath.Dir(res.Run), filepath.Dir(dir))

	target, err := os.Readlink(filepath.Join(dir, "session_00", "init_state.restart"))
	require.NoError(t, err)
	assert.True(t, filepath.IsAbs(target))
	assert.Equal(t, res.StartFrom, target)
	assert.Equal(t, value.String(dir), getPath(t, res, "path_run"))
	assert.Equal(t, value.String(filepath.Join(dir, "session_00")), getPath(t, res, "output.path_session"))

	// A second restart in the same second gets a suffix.
	dir2, err := CreateNewDir(res, now)
	require.NoError(t, err)
	assert.Equal(t, "cbox_run_2025-03-04_05-06-07_00", filepath.Base(dir2))
}

func TestCreateNewDirLinksCheckpoints(t *testing.T) {
	reg, d := newRun(t, "cbox")
	d.Checkpoint("cbox", 1).Checkpoint("cbox", 2)

	res, err := LoadForRestart(reg, Options{Path: d.Root, UseCheckpoint: 1, NewDirResults: true})
	require.NoError(t, err)
	dir, err := CreateNewDir(res, time.Date(2025, 1, 1, 0, 0, 0, 0, time.UTC))
	require.NoError(t, err)

	for _, name := range []string{"rs6cbox0.f00001", "rs6cbox0.f00002"} {
		target, err := os.Readlink(filepath.Join(dir, name))
		require.NoError(t, err, name)
		assert.Equal(t, filepath.Join(res.Run, name), target)
	}
}

func TestLoadForRestartMissingParams(t *testing.T) {
	reg, _ := newRun(t, "cbox")
	_, err := LoadForRestart(reg, Options{Path: t.TempDir(), UseCheckpoint: 1})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "load params")
}

func TestTimeOverrides(t *testing.T) {
	reg, _ := newRun(t, "cbox")
	p, err := reg.CreateDefaultParams("cbox")
	require.NoError(t, err)

	err = TimeOverrides{NumSteps: intPtr(3), EndTime: floatPtr(1)}.Validate()
	assert.EqualError(t, err, "--add-to-end-time, --end-time and --num-steps are exclusive options")

	require.NoError(t, TimeOverrides{NumSteps: intPtr(30)}.Apply(p))
	v, _ := p.GetPath("nek.general.stop_at")
	assert.Equal(t, value.String("numSteps"), v)
	v, _ = p.GetPath("nek.general.num_steps")
	assert.Equal(t, value.Int(30), v)

	require.NoError(t, TimeOverrides{EndTime: floatPtr(2)}.Apply(p))
	v, _ = p.GetPath("nek.general.stop_at")
	assert.Equal(t, value.String("endTime"), v)

	require.NoError(t, TimeOverrides{AddToEndTime: floatPtr(0.5)}.Apply(p))
	v, _ = p.GetPath("nek.general.end_time")
	assert.Equal(t, value.Float(2.5), v)

	// A null end time cannot be extended.
	fresh, err := reg.CreateDefaultParams("cbox")
	require.NoError(t, err)
	require.NoError(t, fresh.SetPath("nek.general.end_time", value.Null{}))
	assert.Error(t, TimeOverrides{AddToEndTime: floatPtr(1)}.Apply(fresh))

	require.NoError(t, TimeOverrides{}.Apply(fresh))
}
