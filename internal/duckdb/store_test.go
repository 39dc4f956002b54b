package duckdb

import (
	"context"
	"errors"
	"fmt"
	"testing"
	"time"

	"github.com/setwatch/setwatch/internal/model"
)

// stepClock returns a time source that advances one minute per call so
// last_updated ordering is deterministic.
func stepClock(start time.Time) func() time.Time {
	now := start
	return func() time.Time {
		now = now.Add(time.Minute)
		return now
	}
}

var testEpoch = time.Date(2025, 3, 1, 12, 0, 0, 0, time.UTC)

func newTestStore(t *testing.T, opts ...Option) *Store {
	t.Helper()
	opts = append([]Option{WithClock(stepClock(testEpoch))}, opts...)
	store, err := NewStore("", opts...)
	if err != nil {
		t.Fatalf("NewStore(\"\") failed: %v", err)
	}
	t.Cleanup(func() { store.Close() })
	return store
}

func track(id, title, artist string) model.Track {
	return model.Track{
		ID:              id,
		Title:           artist + " - " + title,
		Artist:          artist,
		DurationSeconds: 240,
		PermalinkURL:    "https://example.com/" + id,
		PlaylistURL:     "https://example.com/sets/mix",
	}
}

func applySnapshot(t *testing.T, store *Store, tracks ...model.Track) model.UpdateResult {
	t.Helper()
	res, err := store.ApplySnapshot(context.Background(), tracks)
	if err != nil {
		t.Fatalf("ApplySnapshot: %v", err)
	}
	return res
}

func pageIDs(res model.PagedResult) []string {
	ids := make([]string, len(res.Tracks))
	for i, tr := range res.Tracks {
		ids[i] = tr.ID
	}
	return ids
}

func TestTracksPage_Paginates(t *testing.T) {
	store := newTestStore(t)

	var tracks []model.Track
	for i := range 7 {
		tracks = append(tracks, track(fmt.Sprintf("t%d", i), fmt.Sprintf("Song %d", i), "Artist"))
	}
	applySnapshot(t, store, tracks...)

	res, err := store.TracksPage(context.Background(), model.PageQuery{Collection: model.CollectionCurrent, Page: 2, PerPage: 3})
	if err != nil {
		t.Fatalf("TracksPage: %v", err)
	}
	if res.Total != 7 || res.TotalPages != 3 || res.Page != 2 || res.PerPage != 3 {
		t.Fatalf("unexpected paging: %+v", res)
	}
	if len(res.Tracks) != 3 {
		t.Fatalf("got %d tracks, want 3", len(res.Tracks))
	}

	last, err := store.TracksPage(context.Background(), model.PageQuery{Collection: model.CollectionCurrent, Page: 3, PerPage: 3})
	if err != nil {
		t.Fatalf("TracksPage: %v", err)
	}
	if len(last.Tracks) != 1 {
		t.Fatalf("last page has %d tracks, want 1", len(last.Tracks))
	}
}

func TestTracksPage_ClampsPage(t *testing.T) {
	store := newTestStore(t)
	applySnapshot(t, store, track("a", "One", "X"), track("b", "Two", "Y"))

	tests := []struct {
		name string
		page int
		want int
	}{
		{name: "zero", page: 0, want: 1},
		{name: "negative", page: -4, want: 1},
		{name: "past end", page: 9, want: 1},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			res, err := store.TracksPage(context.Background(), model.PageQuery{Collection: model.CollectionAll, Page: tt.page, PerPage: 10})
			if err != nil {
				t.Fatalf("TracksPage: %v", err)
			}
			if res.Page != tt.want {
				t.Fatalf("page = %d, want %d", res.Page, tt.want)
			}
			if len(res.Tracks) != 2 {
				t.Fatalf("got %d tracks, want 2", len(res.Tracks))
			}
		})
	}
}

func TestTracksPage_EmptyCollection(t *testing.T) {
	store := newTestStore(t)

	res, err := store.TracksPage(context.Background(), model.PageQuery{Collection: model.CollectionRemoved, Page: 3})
	if err != nil {
		t.Fatalf("TracksPage: %v", err)
	}
	if res.Total != 0 || res.TotalPages != 0 || res.Page != 1 || len(res.Tracks) != 0 {
		t.Fatalf("unexpected empty result: %+v", res)
	}
	if res.PerPage != model.DefaultPerPage {
		t.Fatalf("per page = %d, want default %d", res.PerPage, model.DefaultPerPage)
	}
}

func TestTracksPage_Search(t *testing.T) {
	store := newTestStore(t)
	applySnapshot(t, store,
		track("a", "Midnight City", "M83"),
		track("b", "Windowlicker", "Aphex Twin"),
		track("c", "Xtal", "aphex twin"),
	)

	res, err := store.TracksPage(context.Background(), model.PageQuery{Collection: model.CollectionCurrent, Page: 1, PerPage: 10, Search: "  APHEX "})
	if err != nil {
		t.Fatalf("TracksPage: %v", err)
	}
	if res.Total != 2 || res.TotalPages != 1 {
		t.Fatalf("unexpected totals: %+v", res)
	}
	if res.Search != "APHEX" {
		t.Fatalf("search echoed as %q", res.Search)
	}

	res, err = store.TracksPage(context.Background(), model.PageQuery{Collection: model.CollectionCurrent, Page: 1, PerPage: 10, Search: "midnight"})
	if err != nil {
		t.Fatalf("TracksPage: %v", err)
	}
	if ids := pageIDs(res); len(ids) != 1 || ids[0] != "a" {
		t.Fatalf("title search returned %v", ids)
	}
}

func TestTracksPage_OrdersByLastUpdated(t *testing.T) {
	store := newTestStore(t)
	applySnapshot(t, store, track("b", "Two", "B"), track("a", "One", "A"))
	applySnapshot(t, store, track("a", "One", "A"))
	applySnapshot(t, store, track("a", "One", "A"))

	// b stopped being touched once it was removed; a is refreshed every run.
	res, err := store.TracksPage(context.Background(), model.PageQuery{Collection: model.CollectionAll, Page: 1, PerPage: 10})
	if err != nil {
		t.Fatalf("TracksPage: %v", err)
	}
	ids := pageIDs(res)
	if len(ids) != 2 || ids[0] != "a" || ids[1] != "b" {
		t.Fatalf("got order %v, want [a b]", ids)
	}
	if !res.Tracks[0].LastUpdated.After(res.Tracks[1].LastUpdated) {
		t.Fatalf("expected a newer than b: %v vs %v", res.Tracks[0].LastUpdated, res.Tracks[1].LastUpdated)
	}
}

func TestTracksPage_UnknownCollection(t *testing.T) {
	store := newTestStore(t)

	_, err := store.TracksPage(context.Background(), model.PageQuery{Collection: "archive", Page: 1})
	if !errors.Is(err, model.ErrUnknownCollection) {
		t.Fatalf("expected ErrUnknownCollection, got %v", err)
	}
}

func TestTracksPage_CapsPerPage(t *testing.T) {
	store := newTestStore(t)
	applySnapshot(t, store, track("a", "One", "X"))

	res, err := store.TracksPage(context.Background(), model.PageQuery{Collection: model.CollectionAll, Page: 1, PerPage: MaxPerPage * 4})
	if err != nil {
		t.Fatalf("TracksPage: %v", err)
	}
	if res.PerPage != MaxPerPage {
		t.Fatalf("per page = %d, want %d", res.PerPage, MaxPerPage)
	}
}

func TestCollectionStats(t *testing.T) {
	store := newTestStore(t)
	applySnapshot(t, store, track("a", "One", "X"), track("b", "Two", "Y"), track("c", "Three", "Z"))
	applySnapshot(t, store, track("a", "One", "X"))

	stats, err := store.CollectionStats(context.Background())
	if err != nil {
		t.Fatalf("CollectionStats: %v", err)
	}
	want := model.CollectionStats{Current: 1, All: 3, Removed: 2, AllActive: 1, AllRemoved: 2}
	if stats != want {
		t.Fatalf("stats = %+v, want %+v", stats, want)
	}
}

func TestNewStore_OnDiskReopen(t *testing.T) {
	dbPath := t.TempDir() + "/data/setwatch.duckdb"

	store, err := NewStore(dbPath)
	if err != nil {
		t.Fatalf("NewStore: %v", err)
	}
	if _, err := store.ApplySnapshot(context.Background(), []model.Track{track("a", "One", "X")}); err != nil {
		t.Fatalf("ApplySnapshot: %v", err)
	}
	if err := store.Close(); err != nil {
		t.Fatalf("Close: %v", err)
	}

	reopened, err := NewStore(dbPath)
	if err != nil {
		t.Fatalf("reopen: %v", err)
	}
	defer reopened.Close()

	stats, err := reopened.CollectionStats(context.Background())
	if err != nil {
		t.Fatalf("CollectionStats: %v", err)
	}
	if stats.All != 1 || stats.Current != 1 {
		t.Fatalf("data not persisted: %+v", stats)
	}
}

func TestSchemaStateIsCurrent(t *testing.T) {
	s := newTestStore(t)

	st, err := s.SchemaState(context.Background())
	if err != nil {
		t.Fatalf("SchemaState: %v", err)
	}
	if st.Current == 0 || st.Current != st.Latest || len(st.Pending) != 0 {
		t.Fatalf("store should be fully migrated: %+v", st)
	}
}
