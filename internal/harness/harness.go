package harness

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/roach88/snek/internal/restart"
	"github.com/roach88/snek/internal/rundir"
	"github.com/roach88/snek/internal/solver"
	"github.com/roach88/snek/internal/store"
	"github.com/roach88/snek/internal/testutil"
)

// FixedTime names the run directories created by new_dir restarts.
var FixedTime = time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC)

// Harness executes scenarios against a fresh directory and an in-memory
// registry.
type Harness struct {
	registry *solver.Registry
	store    *store.Store
	logger   *slog.Logger

	run     string
	runID   string
	aliases []string
	last    *restart.Result
}

// Run executes a scenario inside root, which must exist and should be
// empty, and returns the result.
//
// Execution flow:
// 1. Materialise the layout in root/<run>
// 2. Save solver defaults when the scenario names a solver
// 3. Execute steps, recording each outcome in the trace
// 4. Evaluate assertions
func Run(scenario *Scenario, root string) (*Result, error) {
	st, err := store.Open(":memory:",
		store.WithIDs(testutil.NewSequentialIDs(scenario.Name)),
		store.WithClock(testutil.NewStepClock(FixedTime, time.Second)),
	)
	if err != nil {
		return nil, fmt.Errorf("failed to create in-memory store: %w", err)
	}
	defer st.Close()

	reg, err := solver.NewRegistry()
	if err != nil {
		return nil, err
	}

	h := &Harness{
		registry: reg,
		store:    st,
		logger:   slog.New(slog.NewTextHandler(io.Discard, nil)), // Suppress logs in tests
		run:      filepath.Join(root, scenario.runName()),
	}
	if resolved, err := filepath.EvalSymlinks(root); err == nil && resolved != root {
		h.aliases = append(h.aliases, filepath.Join(resolved, scenario.runName()))
	}

	ctx := context.Background()
	if err := h.setup(ctx, scenario); err != nil {
		return nil, fmt.Errorf("failed to set up scenario: %w", err)
	}

	result := NewResult()
	for i, step := range scenario.Steps {
		ev := h.execute(ctx, i, step)
		h.logger.Info("step executed", "step", i, "action", step.Action, "error", ev.Error)
		result.AddTrace(ev)
	}

	actx := &AssertionContext{Ctx: ctx, Store: st, Run: h.run, RunID: h.runID, Restart: h.last, rel: h.rel}
	for _, msg := range EvaluateAssertions(result, scenario.Assertions, actx) {
		result.AddError(msg)
	}
	return result, nil
}

func (h *Harness) setup(ctx context.Context, sc *Scenario) error {
	if err := testutil.Materialize(h.run, testutil.Layout{
		Dirs:     sc.Layout.Dirs,
		Files:    sc.Layout.Files,
		Symlinks: sc.Layout.Symlinks,
	}); err != nil {
		return err
	}

	solverName := sc.Solver
	if solverName != "" {
		p, err := h.registry.CreateDefaultParams(solverName)
		if err != nil {
			return err
		}
		if err := h.registry.SaveParams(p, h.run, solverName); err != nil {
			return err
		}
	} else {
		solverName = "unknown"
	}

	run, err := h.store.RegisterRun(ctx, h.run, solverName)
	if err != nil {
		return err
	}
	h.runID = run.ID
	return nil
}

func (h *Harness) execute(ctx context.Context, i int, step Step) TraceEvent {
	ev := TraceEvent{Step: i, Action: step.Action, Path: step.Path}
	var err error

	switch step.Action {
	case ActionStatus:
		err = h.status(ctx, step, &ev)
	case ActionRestart:
		err = h.restart(ctx, step, &ev)
	case ActionTouch:
		err = testutil.Materialize(h.run, testutil.Layout{Files: map[string]string{step.Path: ""}})
	case ActionMkdir:
		err = os.MkdirAll(filepath.Join(h.run, step.Path), 0o755)
	case ActionRemove:
		err = os.RemoveAll(filepath.Join(h.run, step.Path))
	default:
		err = fmt.Errorf("unknown action %q", step.Action)
	}

	if err != nil {
		ev.Error = h.rel(err.Error())
	}
	return ev
}

func (h *Harness) status(ctx context.Context, step Step, ev *TraceEvent) error {
	session := rundir.SessionPath(h.run, 0)
	if step.Path != "" {
		session = filepath.Join(h.run, step.Path)
	}
	st, err := restart.Classify(h.run, session)
	if err != nil {
		return err
	}
	ev.Code = st.Code

	idx := 0
	if _, id, ok := rundir.ParseSessionPath(session); ok {
		idx = id
	}
	_, err = h.store.RecordStatus(ctx, h.runID, idx, st.Code, st.Message)
	return err
}

func (h *Harness) restart(ctx context.Context, step Step, ev *TraceEvent) error {
	res, err := restart.LoadForRestart(h.registry, restart.Options{
		Path:          filepath.Join(h.run, step.From),
		UseStartFrom:  step.StartFrom,
		UseCheckpoint: step.Checkpoint,
		SessionID:     step.Session,
		SkipVerify:    step.SkipVerify,
		NewDirResults: step.NewDir,
		OnlyCheck:     step.OnlyCheck,
	})
	if err != nil {
		var re *restart.Error
		if errors.As(err, &re) && re.Status != nil {
			ev.Code = re.Status.Code
		}
		return err
	}
	ev.Code = res.Status.Code
	ev.StartFrom = h.rel(res.StartFrom)
	h.last = res

	if step.NewDir {
		if step.OnlyCheck {
			return nil
		}
		dir, err := restart.CreateNewDir(res, FixedTime)
		if err != nil {
			return err
		}
		ev.NewDir = h.rel(dir)
		return nil
	}

	id := res.SessionID
	ev.SessionID = &id
	ev.NewSession = h.rel(res.NewSession)
	if step.OnlyCheck {
		return nil
	}
	_, err = h.store.RecordSession(ctx, store.Session{
		RunID:      h.runID,
		Index:      res.SessionID,
		Path:       res.NewSession,
		StartFrom:  res.StartFrom,
		Checkpoint: step.Checkpoint,
	})
	return err
}

// rel rewrites absolute paths in s relative to the run directory. Paths
// next to it, the run directory included, become ../<name>.
func (h *Harness) rel(s string) string {
	if s == "" {
		return s
	}
	sep := string(filepath.Separator)
	for _, base := range append([]string{h.run}, h.aliases...) {
		s = strings.ReplaceAll(s, base+sep, "")
		s = strings.ReplaceAll(s, filepath.Dir(base)+sep, ".."+sep)
	}
	return filepath.ToSlash(s)
}
