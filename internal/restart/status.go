// Package restart classifies simulation directories and prepares parameters
// for restarting a run.
package restart

import (
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"

	"github.com/roach88/snek/internal/rundir"
)

// Status is the state of a run directory, coded after HTTP status codes.
// Callers branch on Code >= 400 or on exact codes.
type Status struct {
	Code    int
	Message string
}

func (s Status) String() string {
	return fmt.Sprintf("%d: %s", s.Code, s.Message)
}

// Failed reports whether the directory cannot be used at all.
func (s Status) Failed() bool { return s.Code >= 400 }

var (
	StatusOK = Status{200, "OK: All prerequisities satisfied to restart."}

	StatusResetContent = Status{205, "Reset Content: Multi-file restart found. Some field files exist. " +
		"Restarting in the same session would overwrite files. " +
		"Ensure current session is archived or restart in a new session or " +
		"a new directory."}

	StatusPartialContent = Status{206, "Partial Content: No multi-file restart found. Some field files exist. " +
		"Ensure current session is archived or restart in a new session or " +
		"a new directory."}

	StatusNotFound = Status{404, "Not Found: SIZE and/or nek5000 is missing."}

	StatusLocked = Status{423, "Locked: The path is currently locked by snakemake. " +
		"Execute `snakemake --unlock` or `snek unlock`."}

	StatusTooEarly = Status{425, "Too Early: Seems like snakemake was never executed."}
)

// Statuses lists every status, in the order Classify checks them.
var Statuses = []Status{StatusTooEarly, StatusLocked, StatusNotFound, StatusResetContent, StatusPartialContent, StatusOK}

// Classify inspects run and the given session directory. The checks run in
// a fixed order and the first match wins: the workflow marker, then its
// locks, then the files needed to start the solver, then the output of the
// session. Nothing is created or modified.
func Classify(run, session string) (Status, error) {
	info, err := os.Stat(run)
	if err != nil {
		return Status{}, fmt.Errorf("classify %s: %w", run, err)
	}
	if !info.IsDir() {
		return Status{}, fmt.Errorf("classify %s: not a directory", run)
	}

	marker := filepath.Join(run, rundir.WorkflowDir)
	if _, err := os.Stat(marker); errors.Is(err, fs.ErrNotExist) {
		return StatusTooEarly, nil
	} else if err != nil {
		return Status{}, err
	}

	locks, err := os.ReadDir(filepath.Join(marker, rundir.LocksDir))
	if err != nil && !errors.Is(err, fs.ErrNotExist) {
		return Status{}, err
	}
	if len(locks) > 0 {
		return StatusLocked, nil
	}

	for _, name := range []string{rundir.SizeFile, rundir.SolverBinary} {
		if _, err := os.Lstat(filepath.Join(run, name)); err != nil {
			if errors.Is(err, fs.ErrNotExist) {
				return StatusNotFound, nil
			}
			return Status{}, err
		}
	}

	checkpoints, err := checkpointFiles(run, session)
	if err != nil {
		return Status{}, err
	}
	fields, err := rundir.FieldFiles(session)
	if err != nil {
		return Status{}, err
	}

	switch {
	case len(checkpoints) > 0 && len(fields) > 0:
		return StatusResetContent, nil
	case len(fields) > 0:
		return StatusPartialContent, nil
	default:
		return StatusOK, nil
	}
}

// checkpointFiles collects checkpoint sets from the run directory and the
// session, where the solver may write them depending on SESSION.NAME.
func checkpointFiles(run, session string) ([]string, error) {
	inRun, err := rundir.CheckpointFiles(run)
	if err != nil {
		return nil, err
	}
	if filepath.Clean(session) == filepath.Clean(run) {
		return inRun, nil
	}
	inSession, err := rundir.CheckpointFiles(session)
	if err != nil {
		return nil, err
	}
	return append(inRun, inSession...), nil
}

// ClassifySession classifies run using session_NN.
func ClassifySession(run string, sessionID int) (Status, error) {
	return Classify(run, rundir.SessionPath(run, sessionID))
}
