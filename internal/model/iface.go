package model

import (
	"context"
	"errors"
)

// TrackQuerier provides read-only queries on the stored collections.
type TrackQuerier interface {
	TracksPage(ctx context.Context, q PageQuery) (PagedResult, error)
	CollectionStats(ctx context.Context) (CollectionStats, error)
}

// SnapshotWriter applies a full playlist snapshot to the stored collections.
type SnapshotWriter interface {
	ApplySnapshot(ctx context.Context, tracks []Track) (UpdateResult, error)
}

// JobController starts the update job and reports its status.
type JobController interface {
	Status() JobStatus
	Trigger() error
}

// ErrJobInProgress is returned by JobController.Trigger while a run is active.
var ErrJobInProgress = errors.New("update already in progress")

// ErrUnknownCollection is returned by queries naming a collection that is not stored.
var ErrUnknownCollection = errors.New("unknown collection")

// RunRecorder persists update job runs so status survives restarts.
type RunRecorder interface {
	RecordRun(ctx context.Context, run UpdateRun) error
	LastRun(ctx context.Context) (*UpdateRun, error)
}
