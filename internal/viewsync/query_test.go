package viewsync

import (
	"testing"

	"github.com/setwatch/setwatch/internal/model"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newTestQuery(t *testing.T) *ViewQuery {
	t.Helper()
	q, err := NewViewQuery(model.KnownCollections, model.CollectionCurrent, 10)
	require.NoError(t, err)
	return q
}

func TestNewViewQuery_Defaults(t *testing.T) {
	t.Parallel()

	q, err := NewViewQuery(model.KnownCollections, "", 0)
	require.NoError(t, err)
	assert.Equal(t, model.CollectionCurrent, q.Collection())
	assert.Equal(t, 1, q.Page())
	assert.Equal(t, 1, q.TotalPages())
	assert.Equal(t, model.DefaultPerPage, q.PerPage())
	assert.Empty(t, q.Search())
}

func TestNewViewQuery_RejectsUnknownInitial(t *testing.T) {
	t.Parallel()

	_, err := NewViewQuery(model.KnownCollections, "archived", 10)
	require.ErrorIs(t, err, ErrUnknownCollection)

	_, err = NewViewQuery(nil, "", 10)
	require.Error(t, err)
}

func TestViewQuery_SwitchCollectionResetsPageAndSearch(t *testing.T) {
	t.Parallel()

	q := newTestQuery(t)
	q.ApplyResult(model.PagedResult{Page: 4, TotalPages: 9})
	q.SetSearch("daft")
	q.ApplyResult(model.PagedResult{Page: 2, TotalPages: 3})

	dirty, err := q.SwitchCollection(model.CollectionRemoved)
	require.NoError(t, err)
	assert.True(t, dirty)
	assert.Equal(t, model.CollectionRemoved, q.Collection())
	assert.Equal(t, 1, q.Page())
	assert.Empty(t, q.Search())

	dirty, err = q.SwitchCollection(model.CollectionRemoved)
	require.NoError(t, err)
	assert.True(t, dirty, "switching to the same collection still reloads")
}

func TestViewQuery_SwitchCollectionUnknownLeavesState(t *testing.T) {
	t.Parallel()

	q := newTestQuery(t)
	q.SetSearch("x")

	dirty, err := q.SwitchCollection("archived")
	require.ErrorIs(t, err, ErrUnknownCollection)
	assert.False(t, dirty)
	assert.Equal(t, model.CollectionCurrent, q.Collection())
	assert.Equal(t, "x", q.Search())
}

func TestViewQuery_SetSearchTrimsAndResetsPage(t *testing.T) {
	t.Parallel()

	q := newTestQuery(t)
	q.ApplyResult(model.PagedResult{Page: 3, TotalPages: 5})

	assert.True(t, q.SetSearch("  boards of canada "))
	assert.Equal(t, "boards of canada", q.Search())
	assert.Equal(t, 1, q.Page())
}

func TestViewQuery_EmptySearchEqualsClear(t *testing.T) {
	t.Parallel()

	a := newTestQuery(t)
	b := newTestQuery(t)
	for _, q := range []*ViewQuery{a, b} {
		q.SetSearch("abc")
		q.ApplyResult(model.PagedResult{Page: 2, TotalPages: 4})
	}

	assert.True(t, a.SetSearch("   "))
	assert.True(t, b.ClearSearch())
	assert.Equal(t, b.Snapshot(), a.Snapshot())
	assert.Empty(t, a.Search())
	assert.Equal(t, 1, a.Page())
}

func TestViewQuery_PageBoundsAreNoOps(t *testing.T) {
	t.Parallel()

	q := newTestQuery(t)
	before := q.Snapshot()
	assert.False(t, q.PrevPage())
	assert.False(t, q.NextPage(), "single page result has no next page")
	assert.Equal(t, before, q.Snapshot())

	q.ApplyResult(model.PagedResult{Page: 3, TotalPages: 3})
	assert.False(t, q.NextPage())
	assert.Equal(t, 3, q.Page())

	assert.True(t, q.PrevPage())
	assert.Equal(t, 2, q.Page())
	assert.True(t, q.NextPage())
	assert.Equal(t, 3, q.Page())
}

func TestViewQuery_ApplyResultTrustsServer(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name       string
		result     model.PagedResult
		page       int
		totalPages int
	}{
		{name: "server page", result: model.PagedResult{Page: 4, TotalPages: 7}, page: 4, totalPages: 7},
		{name: "empty collection", result: model.PagedResult{Page: 1, TotalPages: 0}, page: 1, totalPages: 1},
		{name: "page beyond total", result: model.PagedResult{Page: 9, TotalPages: 2}, page: 2, totalPages: 2},
		{name: "zero page", result: model.PagedResult{Page: 0, TotalPages: 3}, page: 1, totalPages: 3},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()
			q := newTestQuery(t)
			q.ApplyResult(tt.result)
			assert.Equal(t, tt.page, q.Page())
			assert.Equal(t, tt.totalPages, q.TotalPages())
		})
	}
}

func TestViewQuery_SnapshotIsDetached(t *testing.T) {
	t.Parallel()

	q := newTestQuery(t)
	snap := q.Snapshot()
	q.SetSearch("later")

	assert.Equal(t, model.PageQuery{Collection: model.CollectionCurrent, Page: 1, PerPage: 10}, snap)
}
