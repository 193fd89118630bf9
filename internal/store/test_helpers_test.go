package store

import (
	"context"
	"path/filepath"
	"testing"
	"time"

	"github.com/roach88/snek/internal/testutil"
)

// createTestStore creates a store in a temporary directory with
// deterministic identifiers and timestamps.
func createTestStore(t *testing.T) *Store {
	t.Helper()
	path := filepath.Join(t.TempDir(), "test.db")
	s, err := Open(path,
		WithIDs(testutil.NewSequentialIDs("id")),
		WithClock(testutil.NewStepClock(time.Date(2024, 5, 6, 7, 8, 9, 0, time.UTC), time.Second)),
	)
	if err != nil {
		t.Fatalf("Open() failed: %v", err)
	}
	t.Cleanup(func() { s.Close() })
	return s
}

// registerTestRun registers a cbox run at path.
func registerTestRun(t *testing.T, s *Store, path string) Run {
	t.Helper()
	run, err := s.RegisterRun(context.Background(), path, "cbox")
	if err != nil {
		t.Fatalf("RegisterRun() failed: %v", err)
	}
	return run
}
