package duckdb

import (
	"context"
	"database/sql"
	"fmt"
	"strings"

	"github.com/setwatch/setwatch/internal/model"
	"golang.org/x/sync/errgroup"
)

// MaxPerPage caps the page size a caller may request.
const MaxPerPage = 500

const trackColumns = `id, title, artist, duration_seconds, permalink_url, playlist_url, status, last_updated, removed_at`

// searchFilter returns a case-insensitive substring filter on title or artist.
func searchFilter(search string) (clause string, args []any) {
	search = strings.ToLower(strings.TrimSpace(search))
	if search == "" {
		return "", nil
	}
	return " WHERE (contains(lower(title), ?) OR contains(lower(artist), ?))", []any{search, search}
}

// TracksPage returns one page of a collection ordered by most recently
// updated. The returned page is clamped into [1, max(TotalPages, 1)].
func (s *Store) TracksPage(ctx context.Context, q model.PageQuery) (model.PagedResult, error) {
	table, err := tableFor(q.Collection)
	if err != nil {
		return model.PagedResult{}, err
	}
	perPage := q.PerPage
	if perPage <= 0 {
		perPage = model.DefaultPerPage
	}
	perPage = min(perPage, MaxPerPage)

	s.mu.RLock()
	defer s.mu.RUnlock()

	ctx, cancel := s.queryCtx(ctx)
	defer cancel()

	where, args := searchFilter(q.Search)

	var total int
	if err := s.db.QueryRowContext(ctx, fmt.Sprintf("SELECT COUNT(*) FROM %s%s", table, where), args...).Scan(&total); err != nil {
		return model.PagedResult{}, fmt.Errorf("duckdb: count %s: %w", table, err)
	}

	totalPages := (total + perPage - 1) / perPage
	page := min(max(q.Page, 1), max(totalPages, 1))

	query := fmt.Sprintf(`SELECT %s FROM %s%s ORDER BY last_updated DESC, id LIMIT ? OFFSET ?`, trackColumns, table, where)
	rows, err := s.db.QueryContext(ctx, query, append(args, perPage, (page-1)*perPage)...)
	if err != nil {
		return model.PagedResult{}, fmt.Errorf("duckdb: page %s: %w", table, err)
	}
	defer rows.Close()

	tracks := make([]model.Track, 0, perPage)
	for rows.Next() {
		t, err := scanTrack(rows)
		if err != nil {
			return model.PagedResult{}, err
		}
		tracks = append(tracks, t)
	}
	if err := rows.Err(); err != nil {
		return model.PagedResult{}, err
	}

	return model.PagedResult{
		Tracks:     tracks,
		Total:      total,
		Page:       page,
		PerPage:    perPage,
		TotalPages: totalPages,
		Search:     strings.TrimSpace(q.Search),
	}, nil
}

type rowScanner interface {
	Scan(dest ...any) error
}

func scanTrack(r rowScanner) (model.Track, error) {
	var (
		t         model.Track
		removedAt sql.NullTime
	)
	if err := r.Scan(&t.ID, &t.Title, &t.Artist, &t.DurationSeconds, &t.PermalinkURL, &t.PlaylistURL,
		&t.Status, &t.LastUpdated, &removedAt); err != nil {
		return model.Track{}, fmt.Errorf("duckdb: scan track: %w", err)
	}
	if removedAt.Valid {
		ts := removedAt.Time
		t.RemovedAt = &ts
	}
	return t, nil
}

// CollectionStats returns the size of every collection and the active/removed
// split of the all collection. The counts run concurrently.
func (s *Store) CollectionStats(ctx context.Context) (model.CollectionStats, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	ctx, cancel := s.queryCtx(ctx)
	defer cancel()

	var stats model.CollectionStats
	counts := []struct {
		dest  *int64
		query string
	}{
		{&stats.Current, "SELECT COUNT(*) FROM current_tracks"},
		{&stats.All, "SELECT COUNT(*) FROM all_tracks"},
		{&stats.Removed, "SELECT COUNT(*) FROM removed_tracks"},
		{&stats.AllActive, "SELECT COUNT(*) FROM all_tracks WHERE status = 'active'"},
		{&stats.AllRemoved, "SELECT COUNT(*) FROM all_tracks WHERE status = 'removed'"},
	}

	g, gctx := errgroup.WithContext(ctx)
	for _, c := range counts {
		g.Go(func() error {
			if err := s.db.QueryRowContext(gctx, c.query).Scan(c.dest); err != nil {
				return fmt.Errorf("duckdb: %s: %w", c.query, err)
			}
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return model.CollectionStats{}, err
	}
	return stats, nil
}
