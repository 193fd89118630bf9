// Package testutil provides helpers for building simulation directories and
// deterministic identifiers in tests.
package testutil

import (
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"testing"

	"github.com/roach88/snek/internal/rundir"
)

// Layout describes the contents of a simulation directory. Paths are
// relative to the directory; a trailing "/" in Dirs is optional.
type Layout struct {
	Files    map[string]string
	Dirs     []string
	Symlinks map[string]string
}

// Materialize creates layout under root. Files are written in sorted order
// so that failures are reproducible.
func Materialize(root string, layout Layout) error {
	if err := os.MkdirAll(root, 0o755); err != nil {
		return err
	}
	for _, d := range layout.Dirs {
		if err := os.MkdirAll(filepath.Join(root, d), 0o755); err != nil {
			return err
		}
	}

	names := make([]string, 0, len(layout.Files))
	for name := range layout.Files {
		names = append(names, name)
	}
	sort.Strings(names)
	for _, name := range names {
		path := filepath.Join(root, name)
		if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
			return err
		}
		if err := os.WriteFile(path, []byte(layout.Files[name]), 0o644); err != nil {
			return err
		}
	}

	links := make([]string, 0, len(layout.Symlinks))
	for name := range layout.Symlinks {
		links = append(links, name)
	}
	sort.Strings(links)
	for _, name := range links {
		path := filepath.Join(root, name)
		if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
			return err
		}
		if err := os.Symlink(layout.Symlinks[name], path); err != nil {
			return err
		}
	}
	return nil
}

// SimDir builds a simulation directory step by step inside a test's
// temporary directory.
type SimDir struct {
	t    testing.TB
	Root string
}

// NewSimDir creates an empty directory named name under t.TempDir().
func NewSimDir(t testing.TB, name string) *SimDir {
	t.Helper()
	root := filepath.Join(t.TempDir(), name)
	if err := os.MkdirAll(root, 0o755); err != nil {
		t.Fatalf("create sim dir: %v", err)
	}
	return &SimDir{t: t, Root: root}
}

// Path joins elem onto the directory root.
func (d *SimDir) Path(elem ...string) string {
	return filepath.Join(append([]string{d.Root}, elem...)...)
}

// File writes content to rel.
func (d *SimDir) File(rel, content string) *SimDir {
	d.t.Helper()
	if err := Materialize(d.Root, Layout{Files: map[string]string{rel: content}}); err != nil {
		d.t.Fatalf("write %s: %v", rel, err)
	}
	return d
}

// Dir creates the directory rel.
func (d *SimDir) Dir(rel string) *SimDir {
	d.t.Helper()
	if err := os.MkdirAll(d.Path(rel), 0o755); err != nil {
		d.t.Fatalf("mkdir %s: %v", rel, err)
	}
	return d
}

// Executed marks the directory as touched by the workflow engine.
func (d *SimDir) Executed() *SimDir {
	return d.Dir(rundir.WorkflowDir)
}

// Locked adds a lock file to the workflow engine's locks directory.
func (d *SimDir) Locked() *SimDir {
	return d.File(filepath.Join(rundir.WorkflowDir, rundir.LocksDir, "0.input.lock"), "")
}

// Compiled adds the files needed to start the solver.
func (d *SimDir) Compiled() *SimDir {
	return d.File(rundir.SizeFile, "").File(rundir.SolverBinary, "")
}

// Ready is Executed and Compiled with an empty session_00.
func (d *SimDir) Ready() *SimDir {
	return d.Executed().Compiled().Dir(filepath.Base(rundir.SessionPath("", 0)))
}

// FieldFile writes field file number n of case short into session id.
func (d *SimDir) FieldFile(session int, short string, n int) *SimDir {
	return d.File(filepath.Join(sessionName(session), fmt.Sprintf("%s0.f%05d", short, n)), "")
}

// Checkpoint writes checkpoint set n of case short into the run directory.
func (d *SimDir) Checkpoint(short string, n int) *SimDir {
	return d.File(fmt.Sprintf("rs6%s0.f%05d", short, n), "")
}

func sessionName(id int) string {
	return filepath.Base(rundir.SessionPath("", id))
}
