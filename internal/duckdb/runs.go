package duckdb

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"github.com/setwatch/setwatch/internal/model"
)

// RecordRun appends one finished update job run to update_runs.
func (s *Store) RecordRun(ctx context.Context, run model.UpdateRun) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	ctx, cancel := s.queryCtx(ctx)
	defer cancel()

	_, err := s.db.ExecContext(ctx, `INSERT INTO update_runs
		(started_at, finished_at, ok, message, current_count, all_count, removed_count, new_tracks, removed_tracks)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		run.StartedAt, run.FinishedAt, run.OK, run.Message,
		run.Result.CurrentCount, run.Result.AllCount, run.Result.RemovedCount,
		run.Result.NewTracks, run.Result.RemovedTracks)
	if err != nil {
		return fmt.Errorf("duckdb: record run: %w", err)
	}
	return nil
}

// LastRun returns the most recently finished run, or nil when none was recorded.
func (s *Store) LastRun(ctx context.Context) (*model.UpdateRun, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	ctx, cancel := s.queryCtx(ctx)
	defer cancel()

	var run model.UpdateRun
	err := s.db.QueryRowContext(ctx, `SELECT started_at, finished_at, ok, message,
		current_count, all_count, removed_count, new_tracks, removed_tracks
		FROM update_runs ORDER BY finished_at DESC, id DESC LIMIT 1`).Scan(
		&run.StartedAt, &run.FinishedAt, &run.OK, &run.Message,
		&run.Result.CurrentCount, &run.Result.AllCount, &run.Result.RemovedCount,
		&run.Result.NewTracks, &run.Result.RemovedTracks)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("duckdb: last run: %w", err)
	}
	return &run, nil
}
