package cli

import (
	"fmt"
	"io"
	"log/slog"
	"os"
	"path/filepath"
	"time"

	"github.com/spf13/cobra"

	"github.com/roach88/snek/internal/config"
	"github.com/roach88/snek/internal/solver"
	"github.com/roach88/snek/internal/store"
	"github.com/roach88/snek/internal/workflow"
)

// RootOptions holds global flags for all commands.
type RootOptions struct {
	Verbose    bool
	Format     string // "json" | "text"
	ConfigFile string // overrides the per-host lookup
	Registry   string // overrides config registry
	Snakemake  string // overrides config snakemake

	// Env, Runner and Now default to the real environment, os/exec and
	// time.Now. Tests replace them.
	Env    config.Env
	Runner workflow.Runner
	Now    func() time.Time

	cfg *config.Config
}

// ValidFormats defines the allowed output formats.
var ValidFormats = []string{"text", "json"}

// NewRootCommand creates the root command for the snek CLI.
func NewRootCommand() *cobra.Command {
	return newRootCommand(&RootOptions{})
}

func newRootCommand(opts *RootOptions) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "snek",
		Short: "snek - simulation directories for Nek5000",
		Long: `Create, inspect and restart Nek5000 simulation directories.

snek keeps a typed parameter tree in sync with the solver's .par file,
tells whether a run directory can safely be restarted, and drives the
workflow engine that compiles and launches the solver.`,
		SilenceUsage:  true,
		SilenceErrors: true,
		PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
			if !isValidFormat(opts.Format) {
				return fmt.Errorf("invalid format %q: must be one of %v", opts.Format, ValidFormats)
			}
			return opts.setupLogging(cmd.ErrOrStderr())
		},
	}

	cmd.PersistentFlags().BoolVarP(&opts.Verbose, "verbose", "v", false, "verbose output")
	cmd.PersistentFlags().StringVar(&opts.Format, "format", "text", "output format (json|text)")
	cmd.PersistentFlags().StringVar(&opts.ConfigFile, "config", "", "configuration file (default: per-host lookup)")
	cmd.PersistentFlags().StringVar(&opts.Registry, "registry", "", "run registry database (overrides config)")
	cmd.PersistentFlags().StringVar(&opts.Snakemake, "snakemake", "", "workflow engine executable (overrides config)")

	cmd.AddCommand(NewInitCommand(opts))
	cmd.AddCommand(NewStatusCommand(opts))
	cmd.AddCommand(NewRestartCommand(opts))
	cmd.AddCommand(NewSessionCommand(opts))
	cmd.AddCommand(NewParCommand(opts))
	cmd.AddCommand(NewParamsCommand(opts))
	cmd.AddCommand(NewNextPathCommand(opts))
	cmd.AddCommand(NewSolversCommand(opts))
	cmd.AddCommand(NewRulesCommand(opts))
	cmd.AddCommand(NewExecCommand(opts))
	cmd.AddCommand(NewUnlockCommand(opts))
	cmd.AddCommand(NewRunsCommand(opts))
	cmd.AddCommand(NewTestCommand(opts))
	cmd.AddCommand(NewConfigCommand(opts))

	return cmd
}

// isValidFormat checks if the format is one of the allowed values.
func isValidFormat(format string) bool {
	for _, f := range ValidFormats {
		if f == format {
			return true
		}
	}
	return false
}

func (o *RootOptions) env() config.Env {
	if o.Env.Getenv == nil {
		return config.OSEnv()
	}
	return o.Env
}

func (o *RootOptions) now() time.Time {
	if o.Now == nil {
		return time.Now()
	}
	return o.Now()
}

// Config returns the configuration in effect: the --config file or the
// per-host lookup, with flag overrides applied. It is loaded once.
func (o *RootOptions) Config() (config.Config, error) {
	if o.cfg != nil {
		return *o.cfg, nil
	}
	env := o.env()

	var (
		cfg config.Config
		err error
	)
	if o.ConfigFile != "" {
		cfg, err = config.Load(env, o.ConfigFile)
	} else {
		var path string
		cfg, path, err = config.Resolve(env)
		if path != "" {
			slog.Debug("using configuration file", "path", path)
		}
	}
	if err != nil {
		return config.Config{}, WrapExitError(ExitCommandError, "failed to load configuration", err)
	}

	if o.Registry != "" {
		cfg.Registry = o.Registry
	}
	if o.Snakemake != "" {
		cfg.Snakemake = o.Snakemake
	}
	o.cfg = &cfg
	return cfg, nil
}

// setupLogging installs the default slog handler. Debug level is used when
// --verbose is given or SNEK_DEBUG is set.
func (o *RootOptions) setupLogging(w io.Writer) error {
	cfg, err := o.Config()
	if err != nil {
		return err
	}
	level, err := config.ParseLevel(cfg.LogLevel)
	if err != nil {
		return err
	}
	if o.Verbose || o.env().Debug() {
		level = slog.LevelDebug
	}
	handler := slog.NewTextHandler(w, &slog.HandlerOptions{Level: level})
	slog.SetDefault(slog.New(handler))
	return nil
}

// openStore opens the run registry, creating its directory if needed.
func (o *RootOptions) openStore() (*store.Store, error) {
	cfg, err := o.Config()
	if err != nil {
		return nil, err
	}
	if cfg.Registry != ":memory:" {
		if err := os.MkdirAll(filepath.Dir(cfg.Registry), 0o755); err != nil {
			return nil, WrapExitError(ExitCommandError, "failed to create registry directory", err)
		}
	}
	st, err := store.Open(cfg.Registry)
	if err != nil {
		return nil, WrapExitError(ExitCommandError, "failed to open registry", err)
	}
	return st, nil
}

func closeStore(st *store.Store) {
	if err := st.Close(); err != nil {
		slog.Error("error closing registry", "error", err)
	}
}

// registry returns the solver registry with the configured extra
// descriptions loaded.
func (o *RootOptions) registry() (*solver.Registry, error) {
	cfg, err := o.Config()
	if err != nil {
		return nil, err
	}
	reg, err := solver.NewRegistry()
	if err != nil {
		return nil, err
	}
	if cfg.SolversDir != "" {
		if err := reg.LoadDir(cfg.SolversDir); err != nil {
			return nil, WrapExitError(ExitCommandError, "failed to load solver descriptions", err)
		}
	}
	return reg, nil
}

// engine returns the workflow engine.
func (o *RootOptions) engine() (*workflow.Snakemake, error) {
	cfg, err := o.Config()
	if err != nil {
		return nil, err
	}
	eng := workflow.NewSnakemake(cfg.Snakemake)
	if o.Runner != nil {
		eng.Runner = o.Runner
	}
	return eng, nil
}

// runOptions builds the workflow options shared by every engine run.
func (o *RootOptions) runOptions(jobs int, dryRun, keepIncomplete bool) (workflow.RunOptions, error) {
	cfg, err := o.Config()
	if err != nil {
		return workflow.RunOptions{}, err
	}
	opts := workflow.RunOptions{
		DryRun:         dryRun,
		KeepIncomplete: keepIncomplete,
		Jobs:           jobs,
		Config:         cfg.Compiler,
	}
	if cfg.NProc > 0 {
		opts.Resources = map[string]int{"nproc": cfg.NProc}
	}
	return opts, nil
}

func (o *RootOptions) formatter(cmd *cobra.Command) *OutputFormatter {
	return &OutputFormatter{
		Format:    o.Format,
		Writer:    cmd.OutOrStdout(),
		ErrWriter: cmd.ErrOrStderr(),
		Verbose:   o.Verbose,
	}
}

// runDir returns the absolute run directory named by args, "." when absent.
func runDir(args []string) (string, error) {
	dir := "."
	if len(args) > 0 {
		dir = args[0]
	}
	abs, err := filepath.Abs(dir)
	if err != nil {
		return "", WrapExitError(ExitCommandError, "invalid directory", err)
	}
	info, err := os.Stat(abs)
	if err != nil {
		return "", WrapExitError(ExitCommandError, "run directory not found", err)
	}
	if !info.IsDir() {
		return "", NewExitError(ExitCommandError, fmt.Sprintf("not a directory: %s", abs))
	}
	return abs, nil
}
