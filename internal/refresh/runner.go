// Package refresh runs the playlist update job: fetch a snapshot from the
// playlist source and reconcile it into the store. Runs are single-flight and
// start either on a schedule or on demand.
package refresh

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/setwatch/setwatch/internal/model"
	"github.com/sirupsen/logrus"
	"k8s.io/utils/clock"
)

// DefaultFetchTimeout bounds one playlist fetch plus reconcile.
const DefaultFetchTimeout = 2 * time.Minute

// ErrClosed is returned when a run is requested after Close.
var ErrClosed = errors.New("refresh: runner closed")

// Source produces the live playlist.
type Source interface {
	Fetch(ctx context.Context) ([]model.Track, error)
}

// Config controls the runner.
type Config struct {
	// IntervalMinutes schedules a run every N minutes; 0 disables scheduling.
	IntervalMinutes int
	FetchTimeout    time.Duration
	Clock           clock.WithTicker
	Logger          *logrus.Entry
}

// Runner executes update runs and reports their status. It implements
// model.JobController.
type Runner struct {
	source Source
	store  model.SnapshotWriter
	runs   model.RunRecorder
	cfg    Config
	clock  clock.WithTicker
	log    *logrus.Entry

	mu         sync.Mutex
	inProgress bool
	lastUpdate *time.Time
	nextUpdate *time.Time
	lastOK     *bool
	message    string
	lastResult *model.UpdateResult
	started    bool

	ctx    context.Context
	cancel context.CancelFunc
	wg     sync.WaitGroup
}

// New builds a runner. runs may be nil, in which case run history is not persisted.
func New(source Source, store model.SnapshotWriter, runs model.RunRecorder, cfg Config) (*Runner, error) {
	if source == nil {
		return nil, errors.New("refresh: nil playlist source")
	}
	if store == nil {
		return nil, errors.New("refresh: nil store")
	}
	if cfg.IntervalMinutes < 0 {
		return nil, fmt.Errorf("refresh: negative update interval %d", cfg.IntervalMinutes)
	}
	if cfg.FetchTimeout <= 0 {
		cfg.FetchTimeout = DefaultFetchTimeout
	}
	if cfg.Clock == nil {
		cfg.Clock = clock.RealClock{}
	}
	if cfg.Logger == nil {
		cfg.Logger = logrus.NewEntry(logrus.StandardLogger())
	}

	ctx, cancel := context.WithCancel(context.Background())
	return &Runner{
		source: source,
		store:  store,
		runs:   runs,
		cfg:    cfg,
		clock:  cfg.Clock,
		log:    cfg.Logger.WithField("component", "refresh"),
		ctx:    ctx,
		cancel: cancel,
	}, nil
}

// Restore seeds the status from the last persisted run.
func (r *Runner) Restore(ctx context.Context) error {
	if r.runs == nil {
		return nil
	}
	run, err := r.runs.LastRun(ctx)
	if err != nil {
		return fmt.Errorf("refresh: restore last run: %w", err)
	}
	if run == nil {
		return nil
	}

	r.mu.Lock()
	defer r.mu.Unlock()
	finished := run.FinishedAt
	ok := run.OK
	r.lastUpdate = &finished
	r.lastOK = &ok
	r.message = run.Message
	if run.OK {
		result := run.Result
		r.lastResult = &result
	}
	return nil
}

// Start begins scheduled runs when an interval is configured. It is a no-op
// after the first call.
func (r *Runner) Start() {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.started || r.cfg.IntervalMinutes == 0 {
		return
	}
	r.started = true

	interval := time.Duration(r.cfg.IntervalMinutes) * time.Minute
	ticker := r.clock.NewTicker(interval)
	next := r.clock.Now().Add(interval)
	r.nextUpdate = &next

	r.wg.Add(1)
	go r.schedule(ticker, interval)
}

func (r *Runner) schedule(ticker clock.Ticker, interval time.Duration) {
	defer r.wg.Done()
	defer ticker.Stop()

	for {
		select {
		case <-ticker.C():
			r.mu.Lock()
			next := r.clock.Now().Add(interval)
			r.nextUpdate = &next
			r.mu.Unlock()

			if err := r.Trigger(); errors.Is(err, model.ErrJobInProgress) {
				r.log.Debug("scheduled update skipped, run already in progress")
			}
		case <-r.ctx.Done():
			return
		}
	}
}

// Trigger starts a run in the background. It returns model.ErrJobInProgress
// when a run is already active.
func (r *Runner) Trigger() error {
	if err := r.begin(); err != nil {
		return err
	}
	go func() {
		defer r.wg.Done()
		_, _ = r.execute(r.ctx)
	}()
	return nil
}

// RunNow runs an update synchronously and returns its result.
func (r *Runner) RunNow(ctx context.Context) (model.UpdateResult, error) {
	if err := r.begin(); err != nil {
		return model.UpdateResult{}, err
	}
	defer r.wg.Done()
	return r.execute(ctx)
}

// begin claims the single run slot and registers the run with wg; the caller
// must call wg.Done when the run finishes.
func (r *Runner) begin() error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.ctx.Err() != nil {
		return ErrClosed
	}
	if r.inProgress {
		return model.ErrJobInProgress
	}
	r.inProgress = true
	r.message = model.JobStartedMessage
	r.wg.Add(1)
	return nil
}

func (r *Runner) execute(ctx context.Context) (model.UpdateResult, error) {
	startedAt := r.clock.Now()
	log := r.log.WithField("run_started", startedAt.Format(time.RFC3339))
	log.Info("update started")

	result, err := r.update(ctx)
	finishedAt := r.clock.Now()

	run := model.UpdateRun{StartedAt: startedAt, FinishedAt: finishedAt, OK: err == nil, Result: result}
	if err != nil {
		run.Message = model.JobFailedMessage(err)
		log.WithError(err).Warn("update failed")
	} else {
		run.Message = model.JobSucceededMessage
		log.WithFields(logrus.Fields{
			"new":      result.NewTracks,
			"removed":  result.RemovedTracks,
			"current":  result.CurrentCount,
			"duration": finishedAt.Sub(startedAt),
		}).Info("update completed")
	}

	if r.runs != nil {
		// The job context may already be cancelled on shutdown; the record
		// still gets its own short deadline.
		rctx, cancel := context.WithTimeout(context.WithoutCancel(ctx), 5*time.Second)
		if rerr := r.runs.RecordRun(rctx, run); rerr != nil {
			log.WithError(rerr).Warn("failed to record update run")
		}
		cancel()
	}

	r.mu.Lock()
	r.inProgress = false
	r.lastUpdate = &finishedAt
	ok := run.OK
	r.lastOK = &ok
	r.message = run.Message
	if run.OK {
		res := result
		r.lastResult = &res
	}
	r.mu.Unlock()

	return result, err
}

func (r *Runner) update(ctx context.Context) (model.UpdateResult, error) {
	ctx, cancel := context.WithTimeout(ctx, r.cfg.FetchTimeout)
	defer cancel()

	tracks, err := r.source.Fetch(ctx)
	if err != nil {
		return model.UpdateResult{}, fmt.Errorf("fetch playlist: %w", err)
	}
	result, err := r.store.ApplySnapshot(ctx, tracks)
	if err != nil {
		return model.UpdateResult{}, fmt.Errorf("apply snapshot: %w", err)
	}
	return result, nil
}

// Status returns a point-in-time copy of the job status.
func (r *Runner) Status() model.JobStatus {
	r.mu.Lock()
	defer r.mu.Unlock()

	st := model.JobStatus{
		Enabled:         r.cfg.IntervalMinutes > 0,
		InProgress:      r.inProgress,
		IntervalMinutes: r.cfg.IntervalMinutes,
		Message:         r.message,
	}
	if r.lastUpdate != nil {
		t := *r.lastUpdate
		st.LastUpdateAt = &t
	}
	if r.nextUpdate != nil && st.Enabled {
		t := *r.nextUpdate
		st.NextUpdateAt = &t
	}
	if r.lastOK != nil {
		ok := *r.lastOK
		st.LastResultOK = &ok
	}
	if r.lastResult != nil {
		res := *r.lastResult
		st.LastResult = &res
	}
	return st
}

// Close stops the scheduler, cancels a background run and waits for it.
func (r *Runner) Close() {
	r.mu.Lock()
	r.cancel()
	r.mu.Unlock()
	r.wg.Wait()
}
