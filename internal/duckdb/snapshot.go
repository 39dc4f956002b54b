package duckdb

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/setwatch/setwatch/internal/model"
	"github.com/sirupsen/logrus"
)

// ErrEmptySnapshot is returned when a snapshot carries no tracks. An empty
// playlist fetch is treated as a failed fetch, never as "everything removed".
var ErrEmptySnapshot = errors.New("duckdb: empty playlist snapshot")

// ApplySnapshot reconciles the stored collections with the live playlist in
// one transaction:
//   - tracks not yet in all are inserted there
//   - current is replaced by the snapshot
//   - active tracks in all that are missing from the snapshot are marked
//     removed and copied into removed; tracks already removed keep their
//     original removal time
//   - snapshot tracks are marked active in all and dropped from removed
func (s *Store) ApplySnapshot(ctx context.Context, tracks []model.Track) (model.UpdateResult, error) {
	snapshot := dedupeTracks(tracks)
	if len(snapshot) == 0 {
		return model.UpdateResult{}, ErrEmptySnapshot
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	ctx, cancel := s.queryCtx(ctx)
	defer cancel()

	now := s.now()
	for i := range snapshot {
		snapshot[i].Status = model.StatusActive
		snapshot[i].LastUpdated = now
		snapshot[i].RemovedAt = nil
	}

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return model.UpdateResult{}, fmt.Errorf("duckdb: begin snapshot: %w", err)
	}
	committed := false
	defer func() {
		if !committed {
			_ = tx.Rollback()
		}
	}()

	existing, err := existingIDs(ctx, tx)
	if err != nil {
		return model.UpdateResult{}, err
	}

	inSnapshot := make(map[string]struct{}, len(snapshot))
	var added []model.Track
	for _, t := range snapshot {
		inSnapshot[t.ID] = struct{}{}
		if _, ok := existing[t.ID]; !ok {
			added = append(added, t)
		}
	}
	var removed []string
	for id, status := range existing {
		if _, ok := inSnapshot[id]; !ok && status != model.StatusRemoved {
			removed = append(removed, id)
		}
	}

	if err := insertTracks(ctx, tx, "all_tracks", added); err != nil {
		return model.UpdateResult{}, err
	}

	if _, err := tx.ExecContext(ctx, "DELETE FROM current_tracks"); err != nil {
		return model.UpdateResult{}, fmt.Errorf("duckdb: clear current: %w", err)
	}
	if err := insertTracks(ctx, tx, "current_tracks", snapshot); err != nil {
		return model.UpdateResult{}, err
	}

	if err := markRemoved(ctx, tx, removed, now); err != nil {
		return model.UpdateResult{}, err
	}
	if err := markActive(ctx, tx, snapshot, now); err != nil {
		return model.UpdateResult{}, err
	}

	result := model.UpdateResult{
		CurrentCount:  len(snapshot),
		NewTracks:     len(added),
		RemovedTracks: len(removed),
	}
	if err := tx.QueryRowContext(ctx, "SELECT COUNT(*) FROM all_tracks").Scan(&result.AllCount); err != nil {
		return model.UpdateResult{}, fmt.Errorf("duckdb: count all: %w", err)
	}
	if err := tx.QueryRowContext(ctx, "SELECT COUNT(*) FROM removed_tracks").Scan(&result.RemovedCount); err != nil {
		return model.UpdateResult{}, fmt.Errorf("duckdb: count removed: %w", err)
	}

	if err := tx.Commit(); err != nil {
		return model.UpdateResult{}, fmt.Errorf("duckdb: commit snapshot: %w", err)
	}
	committed = true

	s.log.WithFields(logrus.Fields{
		"current": result.CurrentCount,
		"all":     result.AllCount,
		"new":     result.NewTracks,
		"removed": result.RemovedTracks,
	}).Info("applied playlist snapshot")
	return result, nil
}

// dedupeTracks drops tracks without an id and keeps the first occurrence of each id.
func dedupeTracks(tracks []model.Track) []model.Track {
	seen := make(map[string]struct{}, len(tracks))
	out := make([]model.Track, 0, len(tracks))
	for _, t := range tracks {
		if t.ID == "" {
			continue
		}
		if _, dup := seen[t.ID]; dup {
			continue
		}
		seen[t.ID] = struct{}{}
		out = append(out, t)
	}
	return out
}

// existingIDs maps every id in all to its status.
func existingIDs(ctx context.Context, tx *sql.Tx) (map[string]string, error) {
	rows, err := tx.QueryContext(ctx, "SELECT id, status FROM all_tracks")
	if err != nil {
		return nil, fmt.Errorf("duckdb: list ids: %w", err)
	}
	defer rows.Close()

	ids := make(map[string]string)
	for rows.Next() {
		var id, status string
		if err := rows.Scan(&id, &status); err != nil {
			return nil, fmt.Errorf("duckdb: scan id: %w", err)
		}
		ids[id] = status
	}
	return ids, rows.Err()
}

func insertTracks(ctx context.Context, tx *sql.Tx, table string, tracks []model.Track) error {
	if len(tracks) == 0 {
		return nil
	}
	stmt, err := tx.PrepareContext(ctx, fmt.Sprintf(`INSERT INTO %s (%s) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)`, table, trackColumns))
	if err != nil {
		return fmt.Errorf("duckdb: prepare insert %s: %w", table, err)
	}
	defer stmt.Close()

	for _, t := range tracks {
		var removedAt any
		if t.RemovedAt != nil {
			removedAt = *t.RemovedAt
		}
		if _, err := stmt.ExecContext(ctx, t.ID, t.Title, t.Artist, t.DurationSeconds, t.PermalinkURL,
			t.PlaylistURL, t.Status, t.LastUpdated, removedAt); err != nil {
			return fmt.Errorf("duckdb: insert %s %q: %w", table, t.ID, err)
		}
	}
	return nil
}

func markRemoved(ctx context.Context, tx *sql.Tx, ids []string, now time.Time) error {
	if len(ids) == 0 {
		return nil
	}
	update, err := tx.PrepareContext(ctx, `UPDATE all_tracks SET status = 'removed', removed_at = ?, last_updated = ? WHERE id = ?`)
	if err != nil {
		return fmt.Errorf("duckdb: prepare mark removed: %w", err)
	}
	defer update.Close()

	drop, err := tx.PrepareContext(ctx, `DELETE FROM removed_tracks WHERE id = ?`)
	if err != nil {
		return fmt.Errorf("duckdb: prepare drop removed: %w", err)
	}
	defer drop.Close()

	copyRow, err := tx.PrepareContext(ctx, fmt.Sprintf(`INSERT INTO removed_tracks (%[1]s) SELECT %[1]s FROM all_tracks WHERE id = ?`, trackColumns))
	if err != nil {
		return fmt.Errorf("duckdb: prepare copy removed: %w", err)
	}
	defer copyRow.Close()

	for _, id := range ids {
		if _, err := update.ExecContext(ctx, now, now, id); err != nil {
			return fmt.Errorf("duckdb: mark removed %q: %w", id, err)
		}
		if _, err := drop.ExecContext(ctx, id); err != nil {
			return fmt.Errorf("duckdb: drop removed %q: %w", id, err)
		}
		if _, err := copyRow.ExecContext(ctx, id); err != nil {
			return fmt.Errorf("duckdb: copy removed %q: %w", id, err)
		}
	}
	return nil
}

func markActive(ctx context.Context, tx *sql.Tx, tracks []model.Track, now time.Time) error {
	update, err := tx.PrepareContext(ctx, `UPDATE all_tracks SET status = 'active', removed_at = NULL, last_updated = ? WHERE id = ?`)
	if err != nil {
		return fmt.Errorf("duckdb: prepare mark active: %w", err)
	}
	defer update.Close()

	drop, err := tx.PrepareContext(ctx, `DELETE FROM removed_tracks WHERE id = ?`)
	if err != nil {
		return fmt.Errorf("duckdb: prepare restore: %w", err)
	}
	defer drop.Close()

	for _, t := range tracks {
		if _, err := update.ExecContext(ctx, now, t.ID); err != nil {
			return fmt.Errorf("duckdb: mark active %q: %w", t.ID, err)
		}
		if _, err := drop.ExecContext(ctx, t.ID); err != nil {
			return fmt.Errorf("duckdb: restore %q: %w", t.ID, err)
		}
	}
	return nil
}
