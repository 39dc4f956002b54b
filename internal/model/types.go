package model

import (
	"fmt"
	"time"
)

// Collection names a logical partition of the tracked playlist.
type Collection string

const (
	CollectionCurrent Collection = "current"
	CollectionAll     Collection = "all"
	CollectionRemoved Collection = "removed"
)

// KnownCollections lists every collection the service stores, in display order.
var KnownCollections = []Collection{CollectionCurrent, CollectionAll, CollectionRemoved}

// ParseCollection validates a collection name.
func ParseCollection(name string) (Collection, bool) {
	for _, c := range KnownCollections {
		if string(c) == name {
			return c, true
		}
	}
	return "", false
}

// Track status values stored on the "all" collection.
const (
	StatusActive  = "active"
	StatusRemoved = "removed"
)

// Track is one playlist entry. It is the canonical type for storage,
// transport (HTTP and socket RPC), and display.
type Track struct {
	ID              string     `json:"id"`
	Title           string     `json:"title"`
	Artist          string     `json:"artist"`
	DurationSeconds float64    `json:"duration_seconds"`
	PermalinkURL    string     `json:"permalink_url,omitempty"`
	PlaylistURL     string     `json:"playlist_url,omitempty"`
	Status          string     `json:"status,omitempty"`
	LastUpdated     time.Time  `json:"last_updated"`
	RemovedAt       *time.Time `json:"removed_date,omitempty"`
}

// FormatDuration renders seconds as m:ss.
func FormatDuration(seconds float64) string {
	if seconds <= 0 {
		return "0:00"
	}
	total := int(seconds)
	return fmt.Sprintf("%d:%02d", total/60, total%60)
}

// PageQuery selects one page of a collection, optionally filtered by a search string.
type PageQuery struct {
	Collection Collection `json:"collection"`
	Page       int        `json:"page"`
	PerPage    int        `json:"per_page"`
	Search     string     `json:"search,omitempty"`
}

// PagedResult is the authoritative response to a PageQuery.
type PagedResult struct {
	Tracks     []Track `json:"songs"`
	Total      int     `json:"total"`
	Page       int     `json:"page"`
	PerPage    int     `json:"per_page"`
	TotalPages int     `json:"total_pages"`
	Search     string  `json:"search_query"`
}

// CollectionStats holds aggregate counts per collection.
type CollectionStats struct {
	Current    int64 `json:"current"`
	All        int64 `json:"all"`
	Removed    int64 `json:"removed"`
	AllActive  int64 `json:"all_active"`
	AllRemoved int64 `json:"all_removed"`
}

// Count returns the total for one collection.
func (s CollectionStats) Count(c Collection) int64 {
	switch c {
	case CollectionCurrent:
		return s.Current
	case CollectionAll:
		return s.All
	case CollectionRemoved:
		return s.Removed
	}
	return 0
}

// UpdateResult summarizes one completed run of the update job.
type UpdateResult struct {
	CurrentCount  int `json:"current_count"`
	AllCount      int `json:"all_count"`
	RemovedCount  int `json:"removed_count"`
	NewTracks     int `json:"new_songs"`
	RemovedTracks int `json:"removed_songs"`
}

// JobStatus is a point-in-time view of the background update job.
// Consumers replace it wholesale on every poll; fields are never merged.
type JobStatus struct {
	Enabled         bool          `json:"enabled"`
	InProgress      bool          `json:"in_progress"`
	LastUpdateAt    *time.Time    `json:"last_update,omitempty"`
	NextUpdateAt    *time.Time    `json:"next_update,omitempty"`
	IntervalMinutes int           `json:"interval_minutes"`
	LastResultOK    *bool         `json:"last_result_ok,omitempty"`
	Message         string        `json:"message"`
	LastResult      *UpdateResult `json:"last_result,omitempty"`
}

// UpdateRun is the persisted record of one finished update job run.
type UpdateRun struct {
	StartedAt  time.Time    `json:"started_at"`
	FinishedAt time.Time    `json:"finished_at"`
	OK         bool         `json:"ok"`
	Message    string       `json:"message"`
	Result     UpdateResult `json:"result"`
}
