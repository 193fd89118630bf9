package cli

import (
	"fmt"
	"log/slog"
	"path/filepath"

	"github.com/spf13/cobra"

	"github.com/roach88/snek/internal/fsutil"
	"github.com/roach88/snek/internal/rundir"
	"github.com/roach88/snek/internal/value"
)

// InitOptions holds flags for the init command.
type InitOptions struct {
	*RootOptions
	Parent  string // directory the run is created in
	TypeRun string // middle part of the directory name
}

// InitResult is the JSON payload of the init command.
type InitResult struct {
	Solver string `json:"solver"`
	Run    string `json:"run"`
}

// NewInitCommand creates the init command.
func NewInitCommand(rootOpts *RootOptions) *cobra.Command {
	opts := &InitOptions{RootOptions: rootOpts}

	cmd := &cobra.Command{
		Use:   "init <solver>",
		Short: "Create a run directory with default parameters",
		Long: `Create a new run directory <solver>_<type>_<timestamp> holding the
solver's default parameters: <solver>.par, params_simul.yaml,
map_user_params.json and info_solver.yaml. The run is added to the registry.

Example:
  snek init cbox --dir ./runs
  snek init kth --type test`,
		Args:          cobra.ExactArgs(1),
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runInit(opts, args[0], cmd)
		},
	}

	cmd.Flags().StringVar(&opts.Parent, "dir", ".", "directory the run is created in")
	cmd.Flags().StringVar(&opts.TypeRun, "type", "", "run type in the directory name (default from the solver)")

	return cmd
}

func runInit(opts *InitOptions, name string, cmd *cobra.Command) error {
	reg, err := opts.registry()
	if err != nil {
		return err
	}
	p, err := reg.CreateDefaultParams(name)
	if err != nil {
		return WrapExitError(ExitCommandError, fmt.Sprintf("unknown solver %q", name), err)
	}

	typeRun := opts.TypeRun
	if typeRun == "" {
		typeRun = "run"
		if v, ok := p.Get("short_name_type_run"); ok {
			if s, ok := v.(value.String); ok && s != "" {
				typeRun = string(s)
			}
		}
	}

	parent, err := filepath.Abs(opts.Parent)
	if err != nil {
		return WrapExitError(ExitCommandError, "invalid directory", err)
	}
	dir, err := fsutil.NextPath(filepath.Join(parent, rundir.RunName(name, typeRun, opts.now())), false)
	if err != nil {
		return WrapExitError(ExitCommandError, "cannot choose run directory", err)
	}
	if p.Has("path_run") {
		if err := p.Set("path_run", value.String(dir)); err != nil {
			return err
		}
	}
	if err := reg.SaveParams(p, dir, name); err != nil {
		return WrapExitError(ExitCommandError, "failed to write parameters", err)
	}
	slog.Info("run directory created", "dir", dir, "solver", name)

	st, err := opts.openStore()
	if err != nil {
		return err
	}
	defer closeStore(st)
	if _, err := st.RegisterRun(cmd.Context(), dir, name); err != nil {
		return WrapExitError(ExitCommandError, "failed to register run", err)
	}

	return opts.formatter(cmd).Success(dir, InitResult{Solver: name, Run: dir})
}
