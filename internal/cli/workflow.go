package cli

import (
	"strings"

	"github.com/spf13/cobra"

	"github.com/roach88/snek/internal/workflow"
)

// ExecOptions holds flags for the exec command.
type ExecOptions struct {
	*RootOptions
	Jobs           int
	DryRun         bool
	KeepIncomplete bool
}

func newMake(opts *RootOptions, args []string) (*workflow.Make, error) {
	dir, err := runDir(args)
	if err != nil {
		return nil, err
	}
	eng, err := opts.engine()
	if err != nil {
		return nil, err
	}
	m, err := workflow.NewMake(dir, eng)
	if err != nil {
		return nil, WrapExitError(ExitCommandError, "cannot run workflow", err)
	}
	return m, nil
}

// NewRulesCommand creates the rules command.
func NewRulesCommand(rootOpts *RootOptions) *cobra.Command {
	cmd := &cobra.Command{
		Use:           "rules [run-dir]",
		Short:         "List the workflow rules of a run directory",
		Args:          cobra.MaximumNArgs(1),
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			m, err := newMake(rootOpts, args)
			if err != nil {
				return err
			}
			rules, err := m.List(cmd.Context())
			if err != nil {
				return WrapExitError(ExitFailure, "cannot list rules", err)
			}
			return rootOpts.formatter(cmd).Success(strings.Join(rules, "\n"), rules)
		},
	}
	return cmd
}

// NewExecCommand creates the exec command.
func NewExecCommand(rootOpts *RootOptions) *cobra.Command {
	opts := &ExecOptions{RootOptions: rootOpts}

	cmd := &cobra.Command{
		Use:   "exec [run-dir] [rules...]",
		Short: "Run workflow rules in a run directory",
		Long: `Run workflow rules in a run directory, "run" when none are given.
The configured nproc is passed as a resource and the compiler entries of
the configuration as workflow config.

Examples:
  snek exec
  snek exec ./run compile --dry-run
  snek exec ./run run --jobs 4`,
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			m, err := newMake(rootOpts, args[:min(1, len(args))])
			if err != nil {
				return err
			}
			ro, err := rootOpts.runOptions(opts.Jobs, opts.DryRun, opts.KeepIncomplete)
			if err != nil {
				return err
			}
			var rules []string
			if len(args) > 1 {
				rules = args[1:]
			}
			if err := m.Exec(cmd.Context(), ro, rules...); err != nil {
				return WrapExitError(ExitFailure, "workflow failed", err)
			}
			return rootOpts.formatter(cmd).Success("", map[string]any{"run": m.Dir, "rules": rules})
		},
	}

	cmd.Flags().IntVarP(&opts.Jobs, "jobs", "j", 1, "parallel jobs")
	cmd.Flags().BoolVarP(&opts.DryRun, "dry-run", "n", false, "only show what would run")
	cmd.Flags().BoolVar(&opts.KeepIncomplete, "keep-incomplete", false, "keep output of failed jobs")
	return cmd
}

// NewUnlockCommand creates the unlock command.
func NewUnlockCommand(rootOpts *RootOptions) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "unlock [run-dir]",
		Short: "Remove stale workflow engine locks",
		Long: `Remove the workflow engine's locks from a run directory, for instance
after a job was killed. A locked directory classifies as 423.`,
		Args:          cobra.MaximumNArgs(1),
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			m, err := newMake(rootOpts, args)
			if err != nil {
				return err
			}
			if err := m.Unlock(cmd.Context()); err != nil {
				return WrapExitError(ExitFailure, "unlock failed", err)
			}
			return rootOpts.formatter(cmd).Success("unlocked "+m.Dir, map[string]string{"run": m.Dir})
		},
	}
	return cmd
}
