package duckdb

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/sirupsen/logrus"
	"k8s.io/utils/clock"
)

// DefaultRetentionInterval is how often the cleaner checks for expired removed tracks.
const DefaultRetentionInterval = time.Hour

// PurgeRemovedBefore permanently deletes tracks removed before cutoff from
// both the removed and all collections. It returns the number of tracks purged.
func (s *Store) PurgeRemovedBefore(ctx context.Context, cutoff time.Time) (int64, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	ctx, cancel := s.queryCtx(ctx)
	defer cancel()

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return 0, fmt.Errorf("duckdb: begin purge: %w", err)
	}
	defer func() { _ = tx.Rollback() }()

	if _, err := tx.ExecContext(ctx, `DELETE FROM removed_tracks WHERE removed_at < ?`, cutoff); err != nil {
		return 0, fmt.Errorf("duckdb: purge removed: %w", err)
	}
	res, err := tx.ExecContext(ctx, `DELETE FROM all_tracks WHERE status = 'removed' AND removed_at < ?`, cutoff)
	if err != nil {
		return 0, fmt.Errorf("duckdb: purge all: %w", err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return 0, fmt.Errorf("duckdb: purge rows affected: %w", err)
	}
	if err := tx.Commit(); err != nil {
		return 0, fmt.Errorf("duckdb: commit purge: %w", err)
	}
	return n, nil
}

// RetentionConfig holds configuration for the retention cleaner.
type RetentionConfig struct {
	RetentionDays int
	Interval      time.Duration
	Clock         clock.WithTicker
	Logger        *logrus.Entry
}

// RetentionCleaner periodically purges tracks that have been removed for
// longer than the configured retention period.
type RetentionCleaner struct {
	store         *Store
	retentionDays int
	clock         clock.WithTicker
	log           *logrus.Entry
	done          chan struct{}
	wg            sync.WaitGroup
	stopOnce      sync.Once
}

// NewRetentionCleaner creates a retention cleaner and runs one purge
// immediately. Returns nil when retention is 0 (disabled).
func NewRetentionCleaner(store *Store, cfg RetentionConfig) *RetentionCleaner {
	if cfg.RetentionDays <= 0 {
		return nil
	}
	if cfg.Interval <= 0 {
		cfg.Interval = DefaultRetentionInterval
	}
	if cfg.Clock == nil {
		cfg.Clock = clock.RealClock{}
	}
	if cfg.Logger == nil {
		cfg.Logger = logrus.NewEntry(logrus.StandardLogger())
	}

	rc := &RetentionCleaner{
		store:         store,
		retentionDays: cfg.RetentionDays,
		clock:         cfg.Clock,
		log:           cfg.Logger.WithField("component", "retention"),
		done:          make(chan struct{}),
	}

	// Catch up after downtime.
	rc.cleanup()

	ticker := rc.clock.NewTicker(cfg.Interval)
	rc.wg.Add(1)
	go rc.tickLoop(ticker)

	return rc
}

func (rc *RetentionCleaner) tickLoop(ticker clock.Ticker) {
	defer rc.wg.Done()
	defer ticker.Stop()

	for {
		select {
		case <-ticker.C():
			rc.cleanup()
		case <-rc.done:
			return
		}
	}
}

func (rc *RetentionCleaner) cleanup() {
	cutoff := rc.clock.Now().Add(-time.Duration(rc.retentionDays) * 24 * time.Hour)

	rows, err := rc.store.PurgeRemovedBefore(context.Background(), cutoff)
	if err != nil {
		rc.log.WithError(err).Warn("retention cleanup failed")
		return
	}
	if rows > 0 {
		rc.log.WithFields(logrus.Fields{"purged": rows, "days": rc.retentionDays}).Info("purged expired removed tracks")
	}
}

// Stop signals the cleaner to stop and waits for it to finish.
func (rc *RetentionCleaner) Stop() {
	rc.stopOnce.Do(func() {
		close(rc.done)
		rc.wg.Wait()
	})
}
