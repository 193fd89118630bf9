package cli

import (
	"fmt"
	"sort"
	"strings"

	"github.com/spf13/cobra"

	"github.com/roach88/snek/internal/fsutil"
	"github.com/roach88/snek/internal/params"
)

// ParamsOptions holds flags for the par and params commands.
type ParamsOptions struct {
	*RootOptions
	Solver string // show the defaults of a solver instead of a run
	Slots  bool   // params: list recorded user parameters
	Get    string // params: print one dotted path
}

// ParamEntry is one attribute in the JSON output of the params command.
type ParamEntry struct {
	Path  string `json:"path"`
	Value string `json:"value"`
}

// NewParCommand creates the par command.
func NewParCommand(rootOpts *RootOptions) *cobra.Command {
	opts := &ParamsOptions{RootOptions: rootOpts}

	cmd := &cobra.Command{
		Use:   "par [run-dir]",
		Short: "Print the .par file of a run or a solver",
		Long: `Print the .par text generated from the parameters of a run directory,
or from the defaults of a solver with --solver.

Examples:
  snek par ./cbox_run_2024-01-02_03-04-05
  snek par --solver kth`,
		Args:          cobra.MaximumNArgs(1),
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			p, err := loadTree(opts, args)
			if err != nil {
				return err
			}
			text, err := params.ParString(p)
			if err != nil {
				return WrapExitError(ExitCommandError, "cannot render par file", err)
			}
			return opts.formatter(cmd).Success(strings.TrimSuffix(text, "\n"), map[string]string{"par": text})
		},
	}

	cmd.Flags().StringVar(&opts.Solver, "solver", "", "print the defaults of this solver")
	return cmd
}

// NewParamsCommand creates the params command.
func NewParamsCommand(rootOpts *RootOptions) *cobra.Command {
	opts := &ParamsOptions{RootOptions: rootOpts}

	cmd := &cobra.Command{
		Use:   "params [run-dir]",
		Short: "List the parameters of a run or a solver",
		Long: `List every parameter as "dotted.path = value", or one parameter with
--get. With --slots, list the user parameters recorded in
nek.general as "userParamNN = path".

Examples:
  snek params
  snek params --solver cbox --get nek.general.num_steps
  snek params ./run --slots`,
		Args:          cobra.MaximumNArgs(1),
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runParams(opts, args, cmd)
		},
	}

	cmd.Flags().StringVar(&opts.Solver, "solver", "", "list the defaults of this solver")
	cmd.Flags().BoolVar(&opts.Slots, "slots", false, "list recorded user parameters")
	cmd.Flags().StringVar(&opts.Get, "get", "", "print the value at this dotted path")
	return cmd
}

func loadTree(opts *ParamsOptions, args []string) (*params.Node, error) {
	reg, err := opts.registry()
	if err != nil {
		return nil, err
	}
	if opts.Solver != "" {
		if len(args) > 0 {
			return nil, NewExitError(ExitCommandError, "--solver and a run directory are exclusive")
		}
		p, err := reg.CreateDefaultParams(opts.Solver)
		if err != nil {
			return nil, WrapExitError(ExitCommandError, fmt.Sprintf("unknown solver %q", opts.Solver), err)
		}
		return p, nil
	}

	dir, err := runDir(args)
	if err != nil {
		return nil, err
	}
	loaded, err := reg.LoadParams(dir)
	if err != nil {
		return nil, WrapExitError(ExitCommandError, "cannot load parameters", err)
	}
	return loaded.Params, nil
}

func runParams(opts *ParamsOptions, args []string, cmd *cobra.Command) error {
	p, err := loadTree(opts, args)
	if err != nil {
		return err
	}
	f := opts.formatter(cmd)

	switch {
	case opts.Get != "":
		v, err := p.GetPath(opts.Get)
		if err != nil {
			return WrapExitError(ExitCommandError, "no such parameter", err)
		}
		return f.Success(v.Repr(), ParamEntry{Path: opts.Get, Value: v.Repr()})

	case opts.Slots:
		slots := params.RecordedUserParams(p)
		keys := make([]int, 0, len(slots))
		for k := range slots {
			keys = append(keys, k)
		}
		sort.Ints(keys)
		var lines []string
		entries := make([]ParamEntry, 0, len(keys))
		for _, k := range keys {
			name := fmt.Sprintf("userParam%02d", k)
			lines = append(lines, fmt.Sprintf("%s = %s", name, slots[k]))
			entries = append(entries, ParamEntry{Path: name, Value: slots[k]})
		}
		return f.Success(strings.Join(lines, "\n"), entries)
	}

	flat := params.Flatten(p)
	lines := make([]string, 0, len(flat))
	entries := make([]ParamEntry, 0, len(flat))
	for _, e := range flat {
		lines = append(lines, fmt.Sprintf("%s = %s", e.Path, e.Value.Repr()))
		entries = append(entries, ParamEntry{Path: e.Path, Value: e.Value.Repr()})
	}
	return f.Success(strings.Join(lines, "\n"), entries)
}

// NextPathOptions holds flags for the next-path command.
type NextPathOptions struct {
	*RootOptions
	ForceSuffix bool
}

// NewNextPathCommand creates the next-path command.
func NewNextPathCommand(rootOpts *RootOptions) *cobra.Command {
	opts := &NextPathOptions{RootOptions: rootOpts}

	cmd := &cobra.Command{
		Use:   "next-path <path>",
		Short: "Print the next free versioned path",
		Long: `Print the first free path among path, path_00, path_01, ... An empty
directory counts as free. With --force-suffix the bare path is skipped.
The suffix goes before the extensions: case.tar.gz gives case_00.tar.gz.

Examples:
  snek next-path ./runs/cbox_run
  snek next-path ./run/session --force-suffix`,
		Args:          cobra.ExactArgs(1),
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			next, err := fsutil.NextPath(args[0], opts.ForceSuffix)
			if err != nil {
				return WrapExitError(ExitCommandError, "cannot compute next path", err)
			}
			return opts.formatter(cmd).Success(next, map[string]string{"path": next})
		},
	}

	cmd.Flags().BoolVar(&opts.ForceSuffix, "force-suffix", false, "always add a numeric suffix")
	return cmd
}

// SolverInfo is one entry of the solvers command.
type SolverInfo struct {
	Name    string   `json:"name"`
	Extends []string `json:"extends,omitempty"`
	Doc     string   `json:"doc,omitempty"`
}

// NewSolversCommand creates the solvers command.
func NewSolversCommand(rootOpts *RootOptions) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "solvers",
		Short: "List known solver descriptions",
		Long: `List the built-in solver descriptions and those found in the
configured solvers_dir, with the chain of solvers each one extends.`,
		Args:          cobra.NoArgs,
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			reg, err := rootOpts.registry()
			if err != nil {
				return err
			}
			var (
				lines []string
				infos []SolverInfo
			)
			for _, name := range reg.Names() {
				chain, err := reg.Chain(name)
				if err != nil {
					return err
				}
				info := SolverInfo{Name: name, Doc: chain[len(chain)-1].Doc}
				for _, spec := range chain[:len(chain)-1] {
					info.Extends = append(info.Extends, spec.Name)
				}
				infos = append(infos, info)

				line := name
				if len(info.Extends) > 0 {
					line += " (extends " + strings.Join(info.Extends, " > ") + ")"
				}
				lines = append(lines, line)
			}
			return rootOpts.formatter(cmd).Success(strings.Join(lines, "\n"), infos)
		},
	}
	return cmd
}
