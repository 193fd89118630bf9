// Package rundir describes the on-disk layout of a simulation run directory:
// the files the workflow engine and the solver leave behind, session
// sub-directories and the solver identification file.
package rundir

import (
	"errors"
	"fmt"
	"io"
	"io/fs"
	"log/slog"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	"gopkg.in/yaml.v3"
)

// Names of files and directories inside a run directory.
const (
	WorkflowDir     = ".snakemake"
	LocksDir        = "locks"
	SizeFile        = "SIZE"
	SolverBinary    = "nek5000"
	SessionNameFile = "SESSION.NAME"
	RestartFile     = "init_state.restart"
	InfoSolverFile  = "info_solver.yaml"
	SessionPrefix   = "session"
)

// Glob patterns for solver output. Checkpoint sets are written as rs6<case>0.fNNNNN.
const (
	CheckpointGlob = "rs6*0.f?????"
	FieldGlob      = "*0.f?????"
)

// SessionPath returns run/session_NN.
func SessionPath(run string, id int) string {
	return filepath.Join(run, fmt.Sprintf("%s_%02d", SessionPrefix, id))
}

// ParseSessionPath splits a path pointing at a session directory into the
// run directory and the session index. ok is false, and run is the cleaned
// absolute input, when the last element is not session_<digits>.
func ParseSessionPath(path string) (run string, id int, ok bool) {
	abs, err := filepath.Abs(path)
	if err != nil {
		abs = filepath.Clean(path)
	}
	if resolved, err := filepath.EvalSymlinks(abs); err == nil {
		abs = resolved
	}
	head, tail, found := strings.Cut(filepath.Base(abs), "_")
	if !found || head != SessionPrefix || tail == "" {
		return abs, 0, false
	}
	for _, r := range tail {
		if r < '0' || r > '9' {
			return abs, 0, false
		}
	}
	id, err = strconv.Atoi(tail)
	if err != nil {
		return abs, 0, false
	}
	return filepath.Dir(abs), id, true
}

// RunName builds the directory name of a new run: <short>_<type>_<timestamp>.
func RunName(short, typeRun string, now time.Time) string {
	return fmt.Sprintf("%s_%s_%s", short, typeRun, now.Format("2006-01-02_15-04-05"))
}

// SessionFiles names the files a new session links to or copies.
type SessionFiles struct {
	Case string
	Mesh string // .re2
	Map  string // .ma2
	Par  string
}

// CreateSession prepares session inside run: it writes run/SESSION.NAME
// pointing the solver at the session, links the mesh files relative to
// the run directory and copies the par file, so the solver can be started
// without recompiling.
func CreateSession(run, session string, files SessionFiles) error {
	rel, err := filepath.Rel(run, session)
	if err != nil {
		return fmt.Errorf("create session: %w", err)
	}
	if strings.HasPrefix(rel, "..") {
		return fmt.Errorf("create session: %s is not inside %s", session, run)
	}

	if err := os.MkdirAll(session, 0o755); err != nil {
		return fmt.Errorf("create session: %w", err)
	}

	content := fmt.Sprintf("%s\n./%s\n", files.Case, filepath.ToSlash(rel))
	if err := os.WriteFile(filepath.Join(run, SessionNameFile), []byte(content), 0o644); err != nil {
		return fmt.Errorf("create session: %w", err)
	}

	up := strings.Repeat("../", strings.Count(filepath.ToSlash(rel), "/")+1)
	for _, name := range []string{files.Mesh, files.Map} {
		if name == "" {
			continue
		}
		link := filepath.Join(session, name)
		if err := os.Symlink(up+name, link); err != nil && !errors.Is(err, fs.ErrExist) {
			return fmt.Errorf("create session: link %s: %w", name, err)
		}
	}

	if files.Par != "" {
		if err := copyFile(filepath.Join(run, files.Par), filepath.Join(session, files.Par)); err != nil {
			return fmt.Errorf("create session: %w", err)
		}
	}

	slog.Debug("session created", "run", run, "session", rel)
	return nil
}

func copyFile(src, dst string) error {
	in, err := os.Open(src)
	if err != nil {
		return err
	}
	defer in.Close()

	info, err := in.Stat()
	if err != nil {
		return err
	}
	out, err := os.OpenFile(dst, os.O_WRONLY|os.O_CREATE|os.O_TRUNC, info.Mode().Perm())
	if err != nil {
		return err
	}
	if _, err := io.Copy(out, in); err != nil {
		out.Close()
		return err
	}
	if err := out.Close(); err != nil {
		return err
	}
	return os.Chtimes(dst, info.ModTime(), info.ModTime())
}

// InfoSolver identifies the solver that produced a run directory.
type InfoSolver struct {
	ShortName string   `yaml:"short_name"`
	Extends   []string `yaml:"extends,omitempty"`
	Sections  []string `yaml:"par_sections,omitempty"`
	Disabled  []string `yaml:"par_sections_disabled,omitempty"`
}

// WriteInfoSolver writes dir/info_solver.yaml.
func WriteInfoSolver(dir string, info InfoSolver) error {
	data, err := yaml.Marshal(info)
	if err != nil {
		return fmt.Errorf("encode %s: %w", InfoSolverFile, err)
	}
	path := filepath.Join(dir, InfoSolverFile)
	if err := os.WriteFile(path, data, 0o644); err != nil {
		return fmt.Errorf("write %s: %w", path, err)
	}
	return nil
}

// ReadInfoSolver reads dir/info_solver.yaml.
func ReadInfoSolver(dir string) (InfoSolver, error) {
	var info InfoSolver
	f, err := os.Open(filepath.Join(dir, InfoSolverFile))
	if err != nil {
		return info, err
	}
	defer f.Close()

	dec := yaml.NewDecoder(f)
	dec.KnownFields(true)
	if err := dec.Decode(&info); err != nil {
		return info, fmt.Errorf("parse %s: %w", InfoSolverFile, err)
	}
	if info.ShortName == "" {
		return info, fmt.Errorf("parse %s: short_name is empty", InfoSolverFile)
	}
	return info, nil
}

// ShortName detects the solver of a run directory, from info_solver.yaml
// when present, otherwise from the directory name up to the first "_".
func ShortName(dir string) (string, error) {
	info, err := ReadInfoSolver(dir)
	switch {
	case err == nil:
		return info.ShortName, nil
	case !errors.Is(err, fs.ErrNotExist):
		return "", err
	}

	slog.Warn("solver info file missing, guessing solver from the directory name",
		"path", filepath.Join(dir, InfoSolverFile))
	abs, err := filepath.Abs(dir)
	if err != nil {
		return "", err
	}
	short, _, _ := strings.Cut(filepath.Base(abs), "_")
	return short, nil
}
