package viewsync

import (
	"context"
	"time"

	"github.com/setwatch/setwatch/internal/model"
)

// CollectionClient fetches pages and aggregate counts from the remote service.
type CollectionClient interface {
	FetchPage(ctx context.Context, q model.PageQuery) (model.PagedResult, error)
	FetchAggregateCounts(ctx context.Context) (model.CollectionStats, error)
}

// JobClient reads the update job status and requests manual runs.
type JobClient interface {
	FetchJobStatus(ctx context.Context) (model.JobStatus, error)
	TriggerJob(ctx context.Context) error
}

// NotificationKind selects how a transient notification is styled.
type NotificationKind int

const (
	NotifySuccess NotificationKind = iota
	NotifyError
)

func (k NotificationKind) String() string {
	if k == NotifyError {
		return "error"
	}
	return "success"
}

// TrackView is the display projection of a track handed to the Surface.
type TrackView struct {
	ID          string
	Title       string
	Artist      string
	Duration    string
	LastUpdated time.Time
}

func trackViews(tracks []model.Track) []TrackView {
	views := make([]TrackView, len(tracks))
	for i, t := range tracks {
		views[i] = TrackView{
			ID:          t.ID,
			Title:       t.Title,
			Artist:      t.Artist,
			Duration:    model.FormatDuration(t.DurationSeconds),
			LastUpdated: t.LastUpdated,
		}
	}
	return views
}

// Surface renders controller output. Implementations must not call back into
// the controller synchronously from a render method.
type Surface interface {
	RenderLoading(loading bool)
	RenderRecords(tracks []TrackView)
	RenderEmptyState()
	RenderErrorState(message string)
	RenderPagination(page, totalPages int)
	// RenderSearchFeedback receives a nil total when no search is active.
	RenderSearchFeedback(query string, totalMatches *int)
	RenderJobStatus(status model.JobStatus)
	RenderAggregateCounts(stats model.CollectionStats)
	ShowNotification(message string, kind NotificationKind)
	SetTriggerEnabled(enabled bool)
}
