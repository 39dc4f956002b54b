package viewsync

import (
	"errors"
	"fmt"
	"strings"

	"github.com/setwatch/setwatch/internal/model"
)

// ErrUnknownCollection is returned when a collection outside the configured set is selected.
var ErrUnknownCollection = errors.New("viewsync: unknown collection")

// ViewQuery is the mutable query state behind the track view.
// Transitions report whether the view needs a reload; ViewQuery itself does no IO.
type ViewQuery struct {
	known      []model.Collection
	collection model.Collection
	page       int
	perPage    int
	totalPages int
	search     string
}

// NewViewQuery creates a query positioned on page 1 of initial.
// An empty initial selects the first known collection.
func NewViewQuery(known []model.Collection, initial model.Collection, perPage int) (*ViewQuery, error) {
	if len(known) == 0 {
		return nil, fmt.Errorf("viewsync: at least one collection is required")
	}
	if perPage <= 0 {
		perPage = model.DefaultPerPage
	}
	if initial == "" {
		initial = known[0]
	}
	q := &ViewQuery{
		known:      append([]model.Collection(nil), known...),
		page:       1,
		perPage:    perPage,
		totalPages: 1,
	}
	if !q.isKnown(initial) {
		return nil, fmt.Errorf("%w: %q", ErrUnknownCollection, initial)
	}
	q.collection = initial
	return q, nil
}

func (q *ViewQuery) isKnown(id model.Collection) bool {
	for _, c := range q.known {
		if c == id {
			return true
		}
	}
	return false
}

// Collections returns the configured collection set.
func (q *ViewQuery) Collections() []model.Collection {
	return append([]model.Collection(nil), q.known...)
}

func (q *ViewQuery) Collection() model.Collection { return q.collection }
func (q *ViewQuery) Page() int                    { return q.page }
func (q *ViewQuery) PerPage() int                 { return q.perPage }
func (q *ViewQuery) TotalPages() int              { return q.totalPages }
func (q *ViewQuery) Search() string               { return q.search }

// SwitchCollection selects id, returning to page 1 with no search.
// Switching always requires a reload, even to the current collection.
func (q *ViewQuery) SwitchCollection(id model.Collection) (bool, error) {
	if !q.isKnown(id) {
		return false, fmt.Errorf("%w: %q", ErrUnknownCollection, id)
	}
	q.collection = id
	q.page = 1
	q.search = ""
	return true, nil
}

// SetSearch applies a trimmed search string. An empty string clears the search.
func (q *ViewQuery) SetSearch(text string) bool {
	text = strings.TrimSpace(text)
	if text == "" {
		return q.ClearSearch()
	}
	q.search = text
	q.page = 1
	return true
}

// ClearSearch drops the search filter and returns to page 1.
func (q *ViewQuery) ClearSearch() bool {
	q.search = ""
	q.page = 1
	return true
}

// NextPage advances one page; it is a no-op on the last page.
func (q *ViewQuery) NextPage() bool {
	if q.page >= q.totalPages {
		return false
	}
	q.page++
	return true
}

// PrevPage goes back one page; it is a no-op on page 1.
func (q *ViewQuery) PrevPage() bool {
	if q.page <= 1 {
		return false
	}
	q.page--
	return true
}

// ApplyResult adopts the server's page and page count.
// An empty result reports zero pages, which is held as one.
func (q *ViewQuery) ApplyResult(result model.PagedResult) {
	q.totalPages = max(result.TotalPages, 1)
	q.page = min(max(result.Page, 1), q.totalPages)
}

// Snapshot captures the query as an immutable request.
func (q *ViewQuery) Snapshot() model.PageQuery {
	return model.PageQuery{
		Collection: q.collection,
		Page:       q.page,
		PerPage:    q.perPage,
		Search:     q.search,
	}
}
