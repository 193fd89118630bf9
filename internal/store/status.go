package store

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
)

// Observation is one classification of a run directory.
type Observation struct {
	ID           int64
	RunID        string
	SessionIndex int
	Code         int
	Message      string
	ObservedAt   string
	Seq          int64
}

// RecordStatus appends an observation to the history of a run.
func (s *Store) RecordStatus(ctx context.Context, runID string, sessionIndex, code int, message string) (Observation, error) {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return Observation{}, fmt.Errorf("record status: begin tx: %w", err)
	}
	defer tx.Rollback()

	seq, err := nextSeq(ctx, tx, "status_observations")
	if err != nil {
		return Observation{}, fmt.Errorf("record status: %w", err)
	}
	obs := Observation{
		RunID:        runID,
		SessionIndex: sessionIndex,
		Code:         code,
		Message:      message,
		ObservedAt:   s.now(),
		Seq:          seq,
	}
	res, err := tx.ExecContext(ctx, `
		INSERT INTO status_observations
		(run_id, session_index, code, message, observed_at, seq)
		VALUES (?, ?, ?, ?, ?, ?)
	`, obs.RunID, obs.SessionIndex, obs.Code, obs.Message, obs.ObservedAt, obs.Seq)
	if err != nil {
		return Observation{}, fmt.Errorf("record status: %w", err)
	}
	if obs.ID, err = res.LastInsertId(); err != nil {
		return Observation{}, fmt.Errorf("record status: %w", err)
	}
	if err := tx.Commit(); err != nil {
		return Observation{}, fmt.Errorf("record status: commit: %w", err)
	}
	return obs, nil
}

// LatestStatus returns the most recent observation of a run, or
// ErrNotFound.
func (s *Store) LatestStatus(ctx context.Context, runID string) (Observation, error) {
	row := s.db.QueryRowContext(ctx, `
		SELECT id, run_id, session_index, code, message, observed_at, seq
		FROM status_observations WHERE run_id = ?
		ORDER BY seq DESC LIMIT 1
	`, runID)
	obs, err := scanObservation(row)
	if errors.Is(err, sql.ErrNoRows) {
		return Observation{}, fmt.Errorf("latest status: %w", ErrNotFound)
	}
	if err != nil {
		return Observation{}, fmt.Errorf("latest status: %w", err)
	}
	return obs, nil
}

// StatusHistory returns every observation of a run, oldest first.
func (s *Store) StatusHistory(ctx context.Context, runID string) ([]Observation, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT id, run_id, session_index, code, message, observed_at, seq
		FROM status_observations WHERE run_id = ?
		ORDER BY seq ASC, id ASC
	`, runID)
	if err != nil {
		return nil, fmt.Errorf("status history: %w", err)
	}
	defer rows.Close()

	var out []Observation
	for rows.Next() {
		obs, err := scanObservation(rows)
		if err != nil {
			return nil, fmt.Errorf("status history: %w", err)
		}
		out = append(out, obs)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("status history: %w", err)
	}
	return out, nil
}

func scanObservation(row scanner) (Observation, error) {
	var o Observation
	err := row.Scan(&o.ID, &o.RunID, &o.SessionIndex, &o.Code, &o.Message, &o.ObservedAt, &o.Seq)
	return o, err
}
