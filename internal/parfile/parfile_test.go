package parfile

import (
	"path/filepath"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestWriteOrderAndLayout(t *testing.T) {
	f := New()
	general, err := f.AddSection("GENERAL")
	require.NoError(t, err)
	general.Set("stopAt", "numSteps")
	general.Set("numSteps", "1")
	general.Set("dt", "0.01")

	user, err := f.AddSection("_RUNPAR")
	require.NoError(t, err)
	user.Set("parfWrite", "no")

	want := "[GENERAL]\n" +
		"stopAt = numSteps\n" +
		"numSteps = 1\n" +
		"dt = 0.01\n" +
		"\n" +
		"[_RUNPAR]\n" +
		"parfWrite = no\n" +
		"\n"
	assert.Equal(t, want, f.String())
}

func TestSetKeepsPosition(t *testing.T) {
	f := New()
	s, _ := f.AddSection("A")
	s.Set("x", "1")
	s.Set("y", "2")
	s.Set("x", "3")

	assert.Equal(t, []string{"x", "y"}, s.Keys())
	v, ok := s.Get("x")
	assert.True(t, ok)
	assert.Equal(t, "3", v)
}

func TestParse(t *testing.T) {
	text := `# leading comment
[GENERAL]
stopAt = numSteps   # inline comment
numSteps=10
writeInterval : 5
filtering = none
note = a#b

[MONITOR]
wallTime = 23:45
multi = first
	second
`
	f, err := Parse(strings.NewReader(text))
	require.NoError(t, err)

	require.Len(t, f.Sections(), 2)
	general := f.Section("GENERAL")
	require.NotNil(t, general)
	assert.Equal(t, []string{"stopAt", "numSteps", "writeInterval", "filtering", "note"}, general.Keys())

	v, _ := general.Get("stopAt")
	assert.Equal(t, "numSteps", v)
	v, _ = general.Get("numSteps")
	assert.Equal(t, "10", v)
	v, _ = general.Get("writeInterval")
	assert.Equal(t, "5", v)
	v, _ = general.Get("note")
	assert.Equal(t, "a#b", v)

	monitor := f.Section("MONITOR")
	v, _ = monitor.Get("wallTime")
	assert.Equal(t, "23:45", v)
	v, _ = monitor.Get("multi")
	assert.Equal(t, "first\nsecond", v)
}

func TestParseKeysAreCaseSensitive(t *testing.T) {
	f, err := Parse(strings.NewReader("[S]\nnumSteps = 1\nnumsteps = 2\n"))
	require.NoError(t, err)
	s := f.Section("S")
	assert.Equal(t, []string{"numSteps", "numsteps"}, s.Keys())
}

func TestParseErrors(t *testing.T) {
	tests := map[string]string{
		"key before section": "a = 1\n",
		"duplicate section":  "[A]\n[A]\n",
		"duplicate key":      "[A]\nx = 1\nx = 2\n",
		"missing delimiter":  "[A]\njustakey\n",
		"unterminated":       "[A\n",
		"reserved section":   "[DEFAULT]\nx = 1\n",
	}
	for name, text := range tests {
		t.Run(name, func(t *testing.T) {
			_, err := Parse(strings.NewReader(text))
			var perr *ParseError
			require.ErrorAs(t, err, &perr)
		})
	}
}

func TestFileRoundTrip(t *testing.T) {
	f := New()
	s, _ := f.AddSection("VELOCITY")
	s.Set("residualTol", "1e-08")
	s.Set("writeToFieldFile", "yes")
	s.Set("multi", "a\nb")

	path := filepath.Join(t.TempDir(), "case.par")
	require.NoError(t, f.WriteFile(path))

	back, err := ReadFile(path)
	require.NoError(t, err)
	assert.Equal(t, f.String(), back.String())
}

func TestBlankLineInsideValue(t *testing.T) {
	f := New()
	s, _ := f.AddSection("A")
	s.Set("x", "a\n\nb")
	s.Set("y", "1")
	assert.Equal(t, "[A]\nx = a\n\t\n\tb\ny = 1\n\n", f.String())

	path := filepath.Join(t.TempDir(), "case.par")
	require.NoError(t, f.WriteFile(path))
	back, err := ReadFile(path)
	require.NoError(t, err)

	v, ok := back.Section("A").Get("x")
	require.True(t, ok)
	assert.Equal(t, "a\n\nb", v)
	v, _ = back.Section("A").Get("y")
	assert.Equal(t, "1", v)
}

func TestParseSemicolonComments(t *testing.T) {
	f, err := Parse(strings.NewReader("; header\n[A]\nx = 1 ; note\ny = a;b\n"))
	require.NoError(t, err)
	s := f.Section("A")
	v, _ := s.Get("x")
	assert.Equal(t, "1", v)
	v, _ = s.Get("y")
	assert.Equal(t, "a;b", v)
}

func TestAddSectionRejectsReservedName(t *testing.T) {
	f := New()
	_, err := f.AddSection("DEFAULT")
	require.Error(t, err)
	assert.Nil(t, f.Section("DEFAULT"))
	assert.Empty(t, f.Sections())
}

func TestRemove(t *testing.T) {
	f := New()
	a, _ := f.AddSection("A")
	a.Set("x", "1")
	_, _ = f.AddSection("B")

	assert.True(t, a.Delete("x"))
	assert.False(t, a.Delete("x"))
	assert.True(t, f.RemoveSection("A"))
	assert.False(t, f.RemoveSection("A"))
	assert.Equal(t, "[B]\n\n", f.String())
}
