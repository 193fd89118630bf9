// Package watch waits for a run directory to be released by the workflow
// engine.
package watch

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"time"

	"github.com/fsnotify/fsnotify"

	"github.com/roach88/snek/internal/restart"
	"github.com/roach88/snek/internal/rundir"
)

// DefaultPoll is the interval of the fallback re-classification.
const DefaultPoll = 2 * time.Second

// Options configures Wait.
type Options struct {
	// Poll re-classifies the directory periodically in case an event was
	// missed, for instance on network file systems. Zero means DefaultPoll.
	Poll time.Duration
	// OnStatus is called with every new status while waiting.
	OnStatus func(restart.Status)
	Logger   *slog.Logger
}

// Busy reports whether the workflow engine still holds, or has not yet
// touched, the directory.
func Busy(s restart.Status) bool {
	return s == restart.StatusLocked || s == restart.StatusTooEarly
}

// Wait blocks until the run directory leaves the Locked and Too Early
// states, then returns its status. On cancellation it returns the last
// status seen together with the context's error.
func Wait(ctx context.Context, run, session string, opts Options) (restart.Status, error) {
	logger := opts.Logger
	if logger == nil {
		logger = slog.Default()
	}
	poll := opts.Poll
	if poll <= 0 {
		poll = DefaultPoll
	}

	watcher, err := fsnotify.NewWatcher()
	if err != nil {
		return restart.Status{}, fmt.Errorf("watch %s: %w", run, err)
	}
	defer watcher.Close()

	marker := filepath.Join(run, rundir.WorkflowDir)
	locks := filepath.Join(marker, rundir.LocksDir)
	if err := watcher.Add(run); err != nil {
		return restart.Status{}, fmt.Errorf("watch %s: %w", run, err)
	}
	addIfExists(watcher, logger, marker)
	addIfExists(watcher, logger, locks)

	var last restart.Status
	check := func() (bool, error) {
		st, err := restart.Classify(run, session)
		if err != nil {
			return false, err
		}
		if st != last {
			logger.Debug("run directory status", "dir", run, "status", st.Code)
			if opts.OnStatus != nil {
				opts.OnStatus(st)
			}
			last = st
		}
		return !Busy(st), nil
	}

	if done, err := check(); err != nil || done {
		return last, err
	}

	ticker := time.NewTicker(poll)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return last, ctx.Err()

		case event, ok := <-watcher.Events:
			if !ok {
				return last, errors.New("watch: event channel closed")
			}
			if event.Op&fsnotify.Create != 0 && (event.Name == marker || event.Name == locks) {
				addIfExists(watcher, logger, event.Name)
				if event.Name == marker {
					addIfExists(watcher, logger, locks)
				}
			}

		case err, ok := <-watcher.Errors:
			if !ok {
				return last, errors.New("watch: error channel closed")
			}
			logger.Warn("watch error", "dir", run, "error", err)
			continue

		case <-ticker.C:
		}

		if done, err := check(); err != nil || done {
			return last, err
		}
	}
}

func addIfExists(w *fsnotify.Watcher, logger *slog.Logger, path string) {
	if _, err := os.Stat(path); err != nil {
		return
	}
	if err := w.Add(path); err != nil {
		logger.Warn("cannot watch", "path", path, "error", err)
	}
}
