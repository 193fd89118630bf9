package store

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
)

// Run is a registered run directory.
type Run struct {
	ID        string
	Path      string
	Solver    string
	CreatedAt string
	Seq       int64
}

// Session is a session directory created inside a run.
type Session struct {
	ID         string `json:"id"`
	RunID      string `json:"run_id"`
	Index      int    `json:"index"`
	Path       string `json:"path"`
	StartFrom  string `json:"start_from,omitempty"` // restart file, empty for fresh sessions
	Checkpoint int    `json:"checkpoint,omitempty"` // checkpoint set restarted from, 0 if none
	CreatedAt  string `json:"created_at"`
	Seq        int64  `json:"seq"`
}

// RegisterRun records a run directory. Registering a path twice returns the
// existing run unchanged.
func (s *Store) RegisterRun(ctx context.Context, path, solver string) (Run, error) {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return Run{}, fmt.Errorf("register run: begin tx: %w", err)
	}
	defer tx.Rollback() // No-op if committed

	seq, err := nextSeq(ctx, tx, "runs")
	if err != nil {
		return Run{}, fmt.Errorf("register run: %w", err)
	}
	_, err = tx.ExecContext(ctx, `
		INSERT INTO runs (id, path, solver, created_at, seq)
		VALUES (?, ?, ?, ?, ?)
		ON CONFLICT(path) DO NOTHING
	`, s.ids.NewID(), path, solver, s.now(), seq)
	if err != nil {
		return Run{}, fmt.Errorf("register run: %w", err)
	}

	run, err := scanRun(tx.QueryRowContext(ctx, `
		SELECT id, path, solver, created_at, seq FROM runs WHERE path = ?
	`, path))
	if err != nil {
		return Run{}, fmt.Errorf("register run: %w", err)
	}
	if err := tx.Commit(); err != nil {
		return Run{}, fmt.Errorf("register run: commit: %w", err)
	}
	return run, nil
}

// GetRun returns the run registered at path, or ErrNotFound.
func (s *Store) GetRun(ctx context.Context, path string) (Run, error) {
	run, err := scanRun(s.db.QueryRowContext(ctx, `
		SELECT id, path, solver, created_at, seq FROM runs WHERE path = ?
	`, path))
	if err != nil {
		return Run{}, fmt.Errorf("get run %s: %w", path, err)
	}
	return run, nil
}

// ListRuns returns every run in registration order.
func (s *Store) ListRuns(ctx context.Context) ([]Run, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT id, path, solver, created_at, seq FROM runs
		ORDER BY seq ASC, id ASC COLLATE BINARY
	`)
	if err != nil {
		return nil, fmt.Errorf("list runs: %w", err)
	}
	defer rows.Close()

	var runs []Run
	for rows.Next() {
		run, err := scanRun(rows)
		if err != nil {
			return nil, fmt.Errorf("list runs: %w", err)
		}
		runs = append(runs, run)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("list runs: %w", err)
	}
	return runs, nil
}

// ForgetRun removes a run with its sessions and observations.
func (s *Store) ForgetRun(ctx context.Context, path string) error {
	res, err := s.db.ExecContext(ctx, `DELETE FROM runs WHERE path = ?`, path)
	if err != nil {
		return fmt.Errorf("forget run %s: %w", path, err)
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return fmt.Errorf("forget run %s: %w", path, ErrNotFound)
	}
	return nil
}

// RecordSession records a session of a run. Recording the same index twice
// keeps the first record.
//
// Note: The run referenced by RunID must exist (foreign key constraint).
func (s *Store) RecordSession(ctx context.Context, sess Session) (Session, error) {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return Session{}, fmt.Errorf("record session: begin tx: %w", err)
	}
	defer tx.Rollback()

	seq, err := nextSeq(ctx, tx, "sessions")
	if err != nil {
		return Session{}, fmt.Errorf("record session: %w", err)
	}
	_, err = tx.ExecContext(ctx, `
		INSERT INTO sessions
		(id, run_id, session_index, path, start_from, checkpoint, created_at, seq)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT(run_id, session_index) DO NOTHING
	`,
		s.ids.NewID(),
		sess.RunID,
		sess.Index,
		sess.Path,
		sess.StartFrom,
		sess.Checkpoint,
		s.now(),
		seq,
	)
	if err != nil {
		return Session{}, fmt.Errorf("record session: %w", err)
	}

	out, err := scanSession(tx.QueryRowContext(ctx, `
		SELECT id, run_id, session_index, path, start_from, checkpoint, created_at, seq
		FROM sessions WHERE run_id = ? AND session_index = ?
	`, sess.RunID, sess.Index))
	if err != nil {
		return Session{}, fmt.Errorf("record session: %w", err)
	}
	if err := tx.Commit(); err != nil {
		return Session{}, fmt.Errorf("record session: commit: %w", err)
	}
	return out, nil
}

// ListSessions returns the sessions of a run in creation order.
func (s *Store) ListSessions(ctx context.Context, runID string) ([]Session, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT id, run_id, session_index, path, start_from, checkpoint, created_at, seq
		FROM sessions WHERE run_id = ?
		ORDER BY seq ASC, id ASC COLLATE BINARY
	`, runID)
	if err != nil {
		return nil, fmt.Errorf("list sessions: %w", err)
	}
	defer rows.Close()

	var out []Session
	for rows.Next() {
		sess, err := scanSession(rows)
		if err != nil {
			return nil, fmt.Errorf("list sessions: %w", err)
		}
		out = append(out, sess)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("list sessions: %w", err)
	}
	return out, nil
}

type scanner interface {
	Scan(dest ...any) error
}

func scanRun(row scanner) (Run, error) {
	var r Run
	err := row.Scan(&r.ID, &r.Path, &r.Solver, &r.CreatedAt, &r.Seq)
	if errors.Is(err, sql.ErrNoRows) {
		return Run{}, ErrNotFound
	}
	return r, err
}

func scanSession(row scanner) (Session, error) {
	var s Session
	err := row.Scan(&s.ID, &s.RunID, &s.Index, &s.Path, &s.StartFrom, &s.Checkpoint, &s.CreatedAt, &s.Seq)
	if errors.Is(err, sql.ErrNoRows) {
		return Session{}, ErrNotFound
	}
	return s, err
}
