package cli

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/spf13/cobra"

	"github.com/roach88/snek/internal/restart"
	"github.com/roach88/snek/internal/rundir"
	"github.com/roach88/snek/internal/store"
	"github.com/roach88/snek/internal/watch"
)

// StatusOptions holds flags for the status command.
type StatusOptions struct {
	*RootOptions
	Session  int
	Wait     bool
	Poll     time.Duration
	Timeout  time.Duration
	NoRecord bool
}

// StatusResult is the JSON payload of the status command.
type StatusResult struct {
	Run     string `json:"run"`
	Session string `json:"session"`
	Code    int    `json:"code"`
	Message string `json:"message"`
}

// NewStatusCommand creates the status command.
func NewStatusCommand(rootOpts *RootOptions) *cobra.Command {
	opts := &StatusOptions{RootOptions: rootOpts}

	cmd := &cobra.Command{
		Use:   "status [run-dir | session-dir]",
		Short: "Tell whether a run directory can be restarted",
		Long: `Classify a run directory with an HTTP-like status code:

  425 Too Early        the workflow engine never ran here
  423 Locked           the workflow engine holds the directory
  404 Not Found        the solver was never compiled
  205 Reset Content    field files and checkpoint sets exist
  206 Partial Content  only field files exist
  200 OK               ready to restart

The observation is recorded in the run registry.

Exit codes:
  0 - The directory is usable (2xx)
  1 - The directory is not usable (4xx)
  2 - Command error

Examples:
  snek status
  snek status ./cbox_run_2024-01-02_03-04-05 --session 1
  snek status ./run --wait --timeout 1h`,
		Args:          cobra.MaximumNArgs(1),
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runStatus(opts, args, cmd)
		},
	}

	cmd.Flags().IntVar(&opts.Session, "session", -1, "session index (default: from the path, else 0)")
	cmd.Flags().BoolVar(&opts.Wait, "wait", false, "wait until the workflow engine has run and released the directory")
	cmd.Flags().DurationVar(&opts.Poll, "poll", watch.DefaultPoll, "fallback re-check interval while waiting")
	cmd.Flags().DurationVar(&opts.Timeout, "timeout", 0, "give up waiting after this long (0 waits forever)")
	cmd.Flags().BoolVar(&opts.NoRecord, "no-record", false, "do not record the observation in the registry")

	return cmd
}

func runStatus(opts *StatusOptions, args []string, cmd *cobra.Command) error {
	dir, err := runDir(args)
	if err != nil {
		return err
	}
	run, id, _ := rundir.ParseSessionPath(dir)
	if opts.Session >= 0 {
		id = opts.Session
	}
	session := rundir.SessionPath(run, id)
	f := opts.formatter(cmd)
	f.VerboseLog("classifying %s", session)

	var st restart.Status
	if opts.Wait {
		st, err = waitStatus(cmd.Context(), opts, run, session)
	} else {
		st, err = restart.Classify(run, session)
	}
	if err != nil {
		return WrapExitError(ExitCommandError, "failed to classify run directory", err)
	}

	if !opts.NoRecord {
		if err := recordStatus(cmd.Context(), opts.RootOptions, run, id, st); err != nil {
			return err
		}
	}

	result := StatusResult{Run: run, Session: session, Code: st.Code, Message: st.Message}
	if st.Failed() {
		if f.Format == "json" {
			if err := f.Error(fmt.Sprintf("E%d", st.Code), st.Message, result); err != nil {
				return err
			}
		} else {
			fmt.Fprintln(f.Writer, st.String())
		}
		return NewExitError(ExitFailure, fmt.Sprintf("run directory not usable: %d", st.Code))
	}
	return f.Success(st.String(), result)
}

func waitStatus(ctx context.Context, opts *StatusOptions, run, session string) (restart.Status, error) {
	if opts.Timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, opts.Timeout)
		defer cancel()
	}
	return watch.Wait(ctx, run, session, watch.Options{
		Poll: opts.Poll,
		OnStatus: func(s restart.Status) {
			slog.Info("waiting", "status", s.Code, "run", run)
		},
	})
}

// recordStatus registers run if needed and stores the observation.
func recordStatus(ctx context.Context, opts *RootOptions, run string, session int, st restart.Status) error {
	db, err := opts.openStore()
	if err != nil {
		return err
	}
	defer closeStore(db)

	r, err := trackRun(ctx, db, run)
	if err != nil {
		return err
	}
	if _, err := db.RecordStatus(ctx, r.ID, session, st.Code, st.Message); err != nil {
		return WrapExitError(ExitCommandError, "failed to record status", err)
	}
	return nil
}

// trackRun registers run under its detected solver, "unknown" when the
// directory does not say.
func trackRun(ctx context.Context, db *store.Store, run string) (store.Run, error) {
	short, err := rundir.ShortName(run)
	if err != nil {
		slog.Debug("cannot detect solver", "run", run, "error", err)
		short = "unknown"
	}
	r, err := db.RegisterRun(ctx, run, short)
	if err != nil {
		return store.Run{}, WrapExitError(ExitCommandError, "failed to register run", err)
	}
	return r, nil
}
