package cli

import (
	"errors"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"

	"github.com/spf13/cobra"

	"github.com/roach88/snek/internal/params"
	"github.com/roach88/snek/internal/restart"
	"github.com/roach88/snek/internal/rundir"
	"github.com/roach88/snek/internal/solver"
	"github.com/roach88/snek/internal/store"
	"github.com/roach88/snek/internal/workflow"
)

// RestartOptions holds flags for the restart command.
type RestartOptions struct {
	*RootOptions
	StartFrom  string
	Checkpoint int
	Session    int
	NewDir     bool
	OnlyCheck  bool
	SkipVerify bool

	EndTime      float64
	AddToEndTime float64
	NumSteps     int

	Exec bool
	Jobs int
}

// RestartResult is the JSON payload of the restart command.
type RestartResult struct {
	Run        string `json:"run"`
	Status     int    `json:"status"`
	Session    string `json:"session,omitempty"`
	SessionID  int    `json:"session_id"`
	StartFrom  string `json:"start_from,omitempty"`
	Checkpoint int    `json:"checkpoint,omitempty"`
	NewDir     bool   `json:"new_dir"`
	Checked    bool   `json:"only_check,omitempty"`
}

// NewRestartCommand creates the restart command.
func NewRestartCommand(rootOpts *RootOptions) *cobra.Command {
	opts := &RestartOptions{RootOptions: rootOpts}

	cmd := &cobra.Command{
		Use:   "restart [run-dir | session-dir]",
		Short: "Prepare a new session restarting from a previous one",
		Long: `Prepare the restart of a run from a field file or a checkpoint set.

The run directory is classified first and refused when it is not usable
(see "snek status"). Parameters are loaded from the run, modified for the
restart and saved. Unless --new-dir is given, a new session_NN directory is
created in the run with init_state.restart linked to the field file.

Exactly one of --start-from and --checkpoint is required. At most one of
--end-time, --add-to-end-time and --num-steps may be given.

Examples:
  snek restart --start-from -1
  snek restart ./run/session_01 --start-from cbox0.f00003 --num-steps 2000
  snek restart ./run --checkpoint 1 --new-dir
  snek restart ./run --start-from -1 --only-check --format json`,
		Args:          cobra.MaximumNArgs(1),
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runRestart(opts, args, cmd)
		},
	}

	cmd.Flags().StringVar(&opts.StartFrom, "start-from", "", "field file name or index (negative counts from the end)")
	cmd.Flags().IntVar(&opts.Checkpoint, "checkpoint", 0, "checkpoint set to restart from (1 or 2)")
	cmd.Flags().IntVar(&opts.Session, "session", -1, "session restarted from (default: from the path or the parameters)")
	cmd.Flags().BoolVar(&opts.NewDir, "new-dir", false, "restart into a new run directory")
	cmd.Flags().BoolVar(&opts.OnlyCheck, "only-check", false, "check the restart without creating anything")
	cmd.Flags().BoolVar(&opts.SkipVerify, "skip-verify", false, "do not refuse runs whose status is >= 400")
	cmd.Flags().Float64Var(&opts.EndTime, "end-time", 0, "new end time")
	cmd.Flags().Float64Var(&opts.AddToEndTime, "add-to-end-time", 0, "extend the end time by this much")
	cmd.Flags().IntVar(&opts.NumSteps, "num-steps", 0, "new number of time steps")
	cmd.Flags().BoolVar(&opts.Exec, "exec", false, "run the workflow engine's default rule afterwards")
	cmd.Flags().IntVar(&opts.Jobs, "jobs", 1, "parallel jobs for --exec")

	return cmd
}

func (o *RestartOptions) overrides(cmd *cobra.Command) restart.TimeOverrides {
	var t restart.TimeOverrides
	if cmd.Flags().Changed("end-time") {
		t.EndTime = &o.EndTime
	}
	if cmd.Flags().Changed("add-to-end-time") {
		t.AddToEndTime = &o.AddToEndTime
	}
	if cmd.Flags().Changed("num-steps") {
		t.NumSteps = &o.NumSteps
	}
	return t
}

func (o *RestartOptions) restartOptions(path string) restart.Options {
	ro := restart.Options{
		Path:          path,
		UseStartFrom:  o.StartFrom,
		UseCheckpoint: o.Checkpoint,
		SkipVerify:    o.SkipVerify,
		NewDirResults: o.NewDir,
		OnlyCheck:     o.OnlyCheck,
	}
	if o.Session >= 0 {
		id := o.Session
		ro.SessionID = &id
	}
	return ro
}

func runRestart(opts *RestartOptions, args []string, cmd *cobra.Command) error {
	dir, err := runDir(args)
	if err != nil {
		return err
	}
	overrides := opts.overrides(cmd)
	if err := overrides.Validate(); err != nil {
		return WrapExitError(ExitCommandError, "invalid options", err)
	}
	reg, err := opts.registry()
	if err != nil {
		return err
	}

	// Dry pass: every check, overrides included, before anything is
	// written.
	check := opts.restartOptions(dir)
	check.OnlyCheck = true
	res, err := restart.LoadForRestart(reg, check)
	if err != nil {
		return restartExitError(err)
	}
	if err := overrides.Apply(res.Params); err != nil {
		return WrapExitError(ExitCommandError, "invalid time-stepping override", err)
	}
	f := opts.formatter(cmd)
	f.VerboseLog("restart checks passed: status %d, session %d", res.Status.Code, res.SessionID)
	if opts.OnlyCheck {
		return f.Success(describeRestart(res, opts, ""), restartResult(res, opts))
	}

	res, err = restart.LoadForRestart(reg, opts.restartOptions(dir))
	if err != nil {
		return restartExitError(err)
	}
	if err := overrides.Apply(res.Params); err != nil {
		return WrapExitError(ExitCommandError, "invalid time-stepping override", err)
	}

	target := res.Run
	if opts.NewDir {
		target, err = restart.CreateNewDir(res, opts.now())
		if err != nil {
			return WrapExitError(ExitCommandError, "failed to create new run directory", err)
		}
	}
	if err := prepareSession(reg, res.Params, res.ShortName, target, res.NewSession); err != nil {
		return err
	}
	if err := recordSession(cmd, opts.RootOptions, target, res, opts.Checkpoint); err != nil {
		return err
	}

	if opts.Exec {
		if err := execDefault(cmd, opts.RootOptions, target, opts.Jobs); err != nil {
			return err
		}
	}

	out := restartResult(res, opts)
	out.Run = target
	return f.Success(describeRestart(res, opts, target), out)
}

// prepareSession saves the parameters into the run directory and points
// the solver at the new session.
func prepareSession(reg *solver.Registry, p *params.Node, short, run, session string) error {
	if err := reg.SaveParams(p, run, short); err != nil {
		return WrapExitError(ExitCommandError, "failed to save parameters", err)
	}
	files := rundir.SessionFiles{Case: short, Par: short + ".par"}
	for ext, dst := range map[string]*string{".re2": &files.Mesh, ".ma2": &files.Map} {
		if _, err := os.Stat(filepath.Join(run, short+ext)); err == nil {
			*dst = short + ext
		}
	}
	if err := rundir.CreateSession(run, session, files); err != nil {
		return WrapExitError(ExitCommandError, "failed to create session", err)
	}
	return nil
}

func recordSession(cmd *cobra.Command, opts *RootOptions, run string, res *restart.Result, checkpoint int) error {
	db, err := opts.openStore()
	if err != nil {
		return err
	}
	defer closeStore(db)

	ctx := cmd.Context()
	r, err := db.RegisterRun(ctx, run, res.ShortName)
	if err != nil {
		return WrapExitError(ExitCommandError, "failed to register run", err)
	}
	if _, err := db.RecordSession(ctx, store.Session{
		RunID:      r.ID,
		Index:      res.SessionID,
		Path:       res.NewSession,
		StartFrom:  res.StartFrom,
		Checkpoint: checkpoint,
	}); err != nil {
		return WrapExitError(ExitCommandError, "failed to record session", err)
	}
	return nil
}

func execDefault(cmd *cobra.Command, opts *RootOptions, run string, jobs int) error {
	eng, err := opts.engine()
	if err != nil {
		return err
	}
	m, err := workflow.NewMake(run, eng)
	if err != nil {
		return WrapExitError(ExitCommandError, "cannot run workflow", err)
	}
	ro, err := opts.runOptions(jobs, false, false)
	if err != nil {
		return err
	}
	if err := m.Exec(cmd.Context(), ro); err != nil {
		return WrapExitError(ExitFailure, "workflow failed", err)
	}
	return nil
}

// restartExitError maps refused directories to ExitFailure and every other
// failure to ExitCommandError.
func restartExitError(err error) error {
	var re *restart.Error
	if errors.As(err, &re) && re.Status != nil {
		return WrapExitError(ExitFailure, "restart refused", err)
	}
	return WrapExitError(ExitCommandError, "cannot restart", err)
}

func restartResult(res *restart.Result, opts *RestartOptions) RestartResult {
	return RestartResult{
		Run:        res.Run,
		Status:     res.Status.Code,
		Session:    res.NewSession,
		SessionID:  res.SessionID,
		StartFrom:  res.StartFrom,
		Checkpoint: opts.Checkpoint,
		NewDir:     opts.NewDir,
		Checked:    opts.OnlyCheck,
	}
}

func describeRestart(res *restart.Result, opts *RestartOptions, target string) string {
	from := res.StartFrom
	if from == "" {
		from = fmt.Sprintf("checkpoint %d", opts.Checkpoint)
	}
	switch {
	case opts.OnlyCheck && opts.NewDir:
		return fmt.Sprintf("%s\nrestart from %s into a new directory", res.Status, from)
	case opts.OnlyCheck:
		return fmt.Sprintf("%s\nrestart from %s into %s", res.Status, from, res.NewSession)
	default:
		slog.Info("restart prepared", "run", target, "session", res.NewSession)
		return fmt.Sprintf("%s\nrestart from %s\nsession: %s", res.Status, from, res.NewSession)
	}
}
