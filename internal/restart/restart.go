package restart

import (
	"errors"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"strconv"

	"github.com/roach88/snek/internal/fsutil"
	"github.com/roach88/snek/internal/params"
	"github.com/roach88/snek/internal/rundir"
	"github.com/roach88/snek/internal/solver"
	"github.com/roach88/snek/internal/value"
)

// Error reports why a restart cannot proceed. Status is set when the
// directory itself was classified as unusable.
type Error struct {
	Status  *Status
	Message string
	Err     error
}

func (e *Error) Error() string {
	switch {
	case e.Status != nil:
		return e.Status.String()
	case e.Err != nil && e.Message != "":
		return e.Message + ": " + e.Err.Error()
	case e.Err != nil:
		return e.Err.Error()
	default:
		return e.Message
	}
}

func (e *Error) Unwrap() error { return e.Err }

// IsStatusError reports whether err is a restart Error carrying a status
// with the given code.
func IsStatusError(err error, code int) bool {
	var re *Error
	return errors.As(err, &re) && re.Status != nil && re.Status.Code == code
}

// ParamsLoader loads the parameters of a run directory.
type ParamsLoader interface {
	LoadParams(dir string) (*solver.Loaded, error)
}

// Options selects what a restart starts from. Exactly one of UseStartFrom
// and UseCheckpoint must be set.
type Options struct {
	// Path is the run directory, or a session_NN directory inside it.
	Path string
	// UseStartFrom is a field file name in the old session, or an index
	// into its sorted field files; negative indices count from the end.
	UseStartFrom string
	// UseCheckpoint is the checkpoint set to restart from: 1 or 2.
	UseCheckpoint int
	// SessionID selects the old session. When nil it is taken from Path,
	// then from the saved parameters.
	SessionID *int
	// SkipVerify skips refusing directories classified >= 400.
	SkipVerify bool
	// NewDirResults restarts into a new run directory instead of a new
	// session.
	NewDirResults bool
	// OnlyCheck computes everything without creating the session.
	OnlyCheck bool
}

// Result is the outcome of LoadForRestart. The run itself is not started.
type Result struct {
	Params      *params.Node
	ShortName   string
	Status      Status
	Run         string
	OldSession  string
	NewSession  string // empty with NewDirResults
	SessionID   int
	StartFrom   string // absolute path of the file restarted from, if any
	Diagnostics []params.Diagnostic
}

// LoadForRestart loads the parameters of an existing run and modifies a
// copy so that the next run restarts from a field file or a checkpoint set.
// Every check that can fail runs before the new session directory is
// created or the restart file is linked.
func LoadForRestart(loader ParamsLoader, opts Options) (*Result, error) {
	run := opts.Path
	if run == "" {
		run = "."
	}
	var sessionID *int
	if opts.SessionID != nil {
		sessionID = opts.SessionID
		abs, err := filepath.Abs(run)
		if err != nil {
			return nil, &Error{Err: err}
		}
		run = abs
	} else {
		var id int
		var ok bool
		run, id, ok = rundir.ParseSessionPath(run)
		if ok {
			sessionID = &id
		}
	}

	loaded, err := loader.LoadParams(run)
	if err != nil {
		return nil, &Error{Message: "load params", Err: err}
	}
	p := loaded.Params
	res := &Result{
		Params:      p,
		ShortName:   loaded.ShortName,
		Run:         run,
		Diagnostics: loaded.Diagnostics,
	}

	res.OldSession, err = oldSession(p, run, sessionID)
	if err != nil {
		return nil, &Error{Err: err}
	}
	res.Status, err = Classify(run, res.OldSession)
	if err != nil {
		return nil, &Error{Err: err}
	}
	if !opts.SkipVerify {
		if res.Status.Failed() {
			st := res.Status
			return nil, &Error{Status: &st}
		}
		slog.Info(res.Status.String())
	}

	startFrom := opts.UseStartFrom != ""
	switch {
	case startFrom && opts.UseCheckpoint != 0:
		return nil, &Error{Message: "Options use_start_from and use_checkpoint are mutually exclusive. " +
			"Use only one option at a time."}
	case !startFrom && opts.UseCheckpoint == 0:
		return nil, &Error{Message: "No restart files were requested. " +
			"This would result in a fresh simulation in a new session."}
	case opts.UseCheckpoint != 0:
		okStatus := res.Status == StatusOK || res.Status == StatusResetContent
		if (opts.UseCheckpoint != 1 && opts.UseCheckpoint != 2) || !okStatus {
			return nil, &Error{Message: fmt.Sprintf("Restart checkpoint %d is invalid / does not exist", opts.UseCheckpoint)}
		}
		if err := p.SetPath("nek.chkpoint.chkp_fnumber", value.Int(opts.UseCheckpoint)); err != nil {
			return nil, &Error{Message: "checkpoint restart needs the chkpoint section", Err: err}
		}
		if err := p.SetPath("nek.chkpoint.read_chkpt", value.Bool(true)); err != nil {
			return nil, &Error{Message: "checkpoint restart needs the chkpoint section", Err: err}
		}
	default:
		res.StartFrom, err = resolveStartFrom(res.OldSession, res.ShortName, opts.UseStartFrom)
		if err != nil {
			return nil, err
		}
	}

	if out := p.Child("output"); out != nil && out.Has("HAS_TO_SAVE") {
		if err := out.Set("HAS_TO_SAVE", value.Bool(true)); err != nil {
			return nil, &Error{Err: err}
		}
	}
	if err := p.Set("NEW_DIR_RESULTS", value.Bool(opts.NewDirResults)); err != nil {
		return nil, &Error{Err: err}
	}

	if opts.NewDirResults {
		for path, v := range map[string]value.Value{
			"path_run":            value.String(""),
			"output.path_session": value.String(""),
			"output.session_id":   value.Int(0),
		} {
			if err := setIfPresent(p, path, v); err != nil {
				return nil, &Error{Err: err}
			}
		}
		if startFrom {
			if err := p.SetPath("nek.general.start_from", value.String(rundir.RestartFile)); err != nil {
				return nil, &Error{Err: err}
			}
		}
		return res, nil
	}

	id, next, err := fsutil.NextPathSuffix(filepath.Join(run, rundir.SessionPrefix), true)
	if err != nil {
		return nil, &Error{Err: err}
	}
	res.NewSession, res.SessionID = next, id
	if err := setIfPresent(p, "output.session_id", value.Int(int64(id))); err != nil {
		return nil, &Error{Err: err}
	}
	if err := setIfPresent(p, "output.path_session", value.String(next)); err != nil {
		return nil, &Error{Err: err}
	}
	if startFrom {
		if err := p.SetPath("nek.general.start_from", value.String(rundir.RestartFile)); err != nil {
			return nil, &Error{Err: err}
		}
	}
	if opts.OnlyCheck {
		return res, nil
	}

	if err := os.MkdirAll(next, 0o755); err != nil {
		return nil, &Error{Err: err}
	}
	if startFrom {
		src := filepath.Join("..", filepath.Base(res.OldSession), filepath.Base(res.StartFrom))
		dest := filepath.Join(next, rundir.RestartFile)
		slog.Debug("symlinking restart file", "dest", dest, "src", src)
		if err := os.Symlink(src, dest); err != nil {
			return nil, &Error{Err: err}
		}
	}
	return res, nil
}

// oldSession picks the session restarted from: session_NN when an id is
// known, else the session path saved in the parameters.
func oldSession(p *params.Node, run string, id *int) (string, error) {
	if id != nil {
		return rundir.SessionPath(run, *id), nil
	}
	if v, err := p.GetPath("output.path_session"); err == nil {
		if s, ok := v.(value.String); ok && s != "" {
			return string(s), nil
		}
	}
	if v, err := p.GetPath("output.session_id"); err == nil {
		if i, ok := v.(value.Int); ok {
			return rundir.SessionPath(run, int(i)), nil
		}
	}
	return "", fmt.Errorf("cannot tell which session of %s to restart from", run)
}

func resolveStartFrom(session, short, spec string) (string, error) {
	index, err := strconv.Atoi(spec)
	if err != nil {
		path := filepath.Join(session, spec)
		if _, err := os.Stat(path); err != nil {
			return "", &Error{Message: fmt.Sprintf("Restart file %s not found", path)}
		}
		return path, nil
	}

	files, err := rundir.StartFiles(session, short)
	if err != nil {
		return "", &Error{Err: err}
	}
	if index < 0 {
		index += len(files)
	}
	if index < 0 || index >= len(files) {
		return "", &Error{Message: fmt.Sprintf("Restart file index %s out of range: %d files in %s", spec, len(files), session)}
	}
	return filepath.Join(session, files[index]), nil
}

func setIfPresent(p *params.Node, path string, v value.Value) error {
	if _, err := p.GetPath(path); err != nil {
		return nil
	}
	return p.SetPath(path, v)
}
