package cli

import (
	"errors"
	"fmt"
	"path/filepath"
	"strings"

	"github.com/spf13/cobra"

	"github.com/roach88/snek/internal/store"
)

// RunsOptions holds flags for the runs command.
type RunsOptions struct {
	*RootOptions
	Sessions bool
	Forget   string
}

// RunSummary is one entry of the runs command.
type RunSummary struct {
	Path     string          `json:"path"`
	Solver   string          `json:"solver"`
	Created  string          `json:"created_at"`
	Status   int             `json:"status,omitempty"`
	Sessions []store.Session `json:"sessions,omitempty"`
}

// NewRunsCommand creates the runs command.
func NewRunsCommand(rootOpts *RootOptions) *cobra.Command {
	opts := &RunsOptions{RootOptions: rootOpts}

	cmd := &cobra.Command{
		Use:   "runs",
		Short: "List the runs in the registry",
		Long: `List registered runs in registration order with their last observed
status. Runs are registered by init, status, restart and session.

Examples:
  snek runs
  snek runs --sessions
  snek runs --forget ./cbox_run_2024-01-02_03-04-05`,
		Args:          cobra.NoArgs,
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runRuns(opts, cmd)
		},
	}

	cmd.Flags().BoolVar(&opts.Sessions, "sessions", false, "list the sessions of each run")
	cmd.Flags().StringVar(&opts.Forget, "forget", "", "remove a run and its history from the registry")
	return cmd
}

func runRuns(opts *RunsOptions, cmd *cobra.Command) error {
	db, err := opts.openStore()
	if err != nil {
		return err
	}
	defer closeStore(db)
	ctx := cmd.Context()
	f := opts.formatter(cmd)

	if opts.Forget != "" {
		path, err := filepath.Abs(opts.Forget)
		if err != nil {
			return WrapExitError(ExitCommandError, "invalid path", err)
		}
		if err := db.ForgetRun(ctx, path); err != nil {
			if errors.Is(err, store.ErrNotFound) {
				return WrapExitError(ExitCommandError, "run not registered", err)
			}
			return err
		}
		return f.Success("forgot "+path, map[string]string{"forgot": path})
	}

	runs, err := db.ListRuns(ctx)
	if err != nil {
		return err
	}
	summaries := make([]RunSummary, 0, len(runs))
	var b strings.Builder
	for _, r := range runs {
		s := RunSummary{Path: r.Path, Solver: r.Solver, Created: r.CreatedAt}
		status := "-"
		obs, err := db.LatestStatus(ctx, r.ID)
		switch {
		case err == nil:
			s.Status = obs.Code
			status = fmt.Sprint(obs.Code)
		case !errors.Is(err, store.ErrNotFound):
			return err
		}
		fmt.Fprintf(&b, "%-4s %-6s %s\n", status, r.Solver, r.Path)

		if opts.Sessions {
			s.Sessions, err = db.ListSessions(ctx, r.ID)
			if err != nil {
				return err
			}
			for _, sess := range s.Sessions {
				line := fmt.Sprintf("       session_%02d", sess.Index)
				if sess.StartFrom != "" {
					line += " from " + sess.StartFrom
				} else if sess.Checkpoint != 0 {
					line += fmt.Sprintf(" from checkpoint %d", sess.Checkpoint)
				}
				b.WriteString(line + "\n")
			}
		}
		summaries = append(summaries, s)
	}
	if len(runs) == 0 {
		b.WriteString("No runs registered.\n")
	}
	return f.Success(strings.TrimSuffix(b.String(), "\n"), summaries)
}
