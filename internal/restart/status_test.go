package restart

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/roach88/snek/internal/testutil"
)

func TestClassify(t *testing.T) {
	tests := []struct {
		name  string
		build func(d *testutil.SimDir)
		want  Status
	}{
		{
			name:  "never executed",
			build: func(d *testutil.SimDir) { d.Compiled() },
			want:  StatusTooEarly,
		},
		{
			name:  "too early wins over everything",
			build: func(d *testutil.SimDir) { d.FieldFile(0, "cbox", 1).Checkpoint("cbox", 1) },
			want:  StatusTooEarly,
		},
		{
			name:  "locked",
			build: func(d *testutil.SimDir) { d.Executed().Locked().Compiled() },
			want:  StatusLocked,
		},
		{
			name:  "locked wins over missing files",
			build: func(d *testutil.SimDir) { d.Executed().Locked() },
			want:  StatusLocked,
		},
		{
			name:  "empty locks dir is not locked",
			build: func(d *testutil.SimDir) { d.Executed().Dir(".snakemake/locks").Compiled() },
			want:  StatusOK,
		},
		{
			name:  "missing binary",
			build: func(d *testutil.SimDir) { d.Executed().File("SIZE", "") },
			want:  StatusNotFound,
		},
		{
			name:  "missing SIZE",
			build: func(d *testutil.SimDir) { d.Executed().File("nek5000", "") },
			want:  StatusNotFound,
		},
		{
			name:  "clean",
			build: func(d *testutil.SimDir) { d.Ready() },
			want:  StatusOK,
		},
		{
			name:  "field files only",
			build: func(d *testutil.SimDir) { d.Ready().FieldFile(0, "cbox", 1) },
			want:  StatusPartialContent,
		},
		{
			name:  "field files and checkpoints",
			build: func(d *testutil.SimDir) { d.Ready().FieldFile(0, "cbox", 1).Checkpoint("cbox", 1) },
			want:  StatusResetContent,
		},
		{
			name: "checkpoints in the session",
			build: func(d *testutil.SimDir) {
				d.Ready().FieldFile(0, "cbox", 1).File("session_00/rs6cbox0.f00002", "")
			},
			want: StatusResetContent,
		},
		{
			name:  "checkpoints only",
			build: func(d *testutil.SimDir) { d.Ready().Checkpoint("cbox", 1) },
			want:  StatusOK,
		},
		{
			name:  "no session directory",
			build: func(d *testutil.SimDir) { d.Executed().Compiled() },
			want:  StatusOK,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			d := testutil.NewSimDir(t, "cbox_run")
			tt.build(d)
			got, err := ClassifySession(d.Root, 0)
			require.NoError(t, err)
			assert.Equal(t, tt.want, got)
		})
	}
}

func TestClassifyOtherSession(t *testing.T) {
	d := testutil.NewSimDir(t, "cbox_run").Ready().FieldFile(0, "cbox", 1).Dir("session_01")
	got, err := ClassifySession(d.Root, 1)
	require.NoError(t, err)
	assert.Equal(t, StatusOK, got)
}

func TestClassifyMissingRun(t *testing.T) {
	_, err := Classify(t.TempDir()+"/nope", "")
	assert.Error(t, err)
}

func TestStatusString(t *testing.T) {
	assert.Equal(t, "425: Too Early: Seems like snakemake was never executed.", StatusTooEarly.String())
	assert.True(t, StatusNotFound.Failed())
	assert.False(t, StatusPartialContent.Failed())
	assert.Len(t, Statuses, 6)
	assert.Equal(t, StatusTooEarly, Statuses[0])
}
