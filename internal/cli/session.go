package cli

import (
	"fmt"
	"path/filepath"

	"github.com/spf13/cobra"

	"github.com/roach88/snek/internal/fsutil"
	"github.com/roach88/snek/internal/restart"
	"github.com/roach88/snek/internal/rundir"
	"github.com/roach88/snek/internal/value"
)

// SessionResult is the JSON payload of the session command.
type SessionResult struct {
	Run       string `json:"run"`
	Session   string `json:"session"`
	SessionID int    `json:"session_id"`
}

// NewSessionCommand creates the session command.
func NewSessionCommand(rootOpts *RootOptions) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "session [run-dir]",
		Short: "Create the next session of a run without restarting",
		Long: `Create the next free session_NN directory of a run for a fresh start:
SESSION.NAME points the solver at it, the mesh files are linked and the
par file is copied. The session index is saved in the parameters.

Example:
  snek session ./cbox_run_2024-01-02_03-04-05`,
		Args:          cobra.MaximumNArgs(1),
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runSession(rootOpts, args, cmd)
		},
	}
	return cmd
}

func runSession(opts *RootOptions, args []string, cmd *cobra.Command) error {
	run, err := runDir(args)
	if err != nil {
		return err
	}
	reg, err := opts.registry()
	if err != nil {
		return err
	}
	loaded, err := reg.LoadParams(run)
	if err != nil {
		return WrapExitError(ExitCommandError, "cannot load parameters", err)
	}

	id, session, err := fsutil.NextPathSuffix(filepath.Join(run, rundir.SessionPrefix), true)
	if err != nil {
		return WrapExitError(ExitCommandError, "cannot choose session directory", err)
	}
	p := loaded.Params
	for path, v := range map[string]value.Value{
		"output.session_id":   value.Int(int64(id)),
		"output.path_session": value.String(session),
	} {
		if _, err := p.GetPath(path); err == nil {
			if err := p.SetPath(path, v); err != nil {
				return err
			}
		}
	}
	if err := prepareSession(reg, p, loaded.ShortName, run, session); err != nil {
		return err
	}

	res := &restart.Result{ShortName: loaded.ShortName, NewSession: session, SessionID: id}
	if err := recordSession(cmd, opts, run, res, 0); err != nil {
		return err
	}

	return opts.formatter(cmd).Success(
		fmt.Sprintf("session: %s", session),
		SessionResult{Run: run, Session: session, SessionID: id},
	)
}
