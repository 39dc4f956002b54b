package viewsync

import (
	"context"
	"sync"
	"time"

	"github.com/setwatch/setwatch/internal/model"
	"github.com/sirupsen/logrus"
	"k8s.io/utils/clock"
)

const (
	ambientLoopName     = "ambient"
	postTriggerLoopName = "post-trigger"

	triggerAcceptedMessage = "Update started"
	triggerFailedMessage   = "Failed to start update"
	jobSucceededMessage    = "Update completed successfully!"
	jobFailedMessage       = "Update failed"
)

// JobMonitorConfig configures the job monitor's polling cadences.
type JobMonitorConfig struct {
	AmbientEnabled      bool
	AmbientInterval     time.Duration
	PostTriggerEnabled  bool
	PostTriggerInterval time.Duration
	// FollowScheduledRuns starts post-trigger polling when an ambient tick
	// sees a run the user did not trigger.
	FollowScheduledRuns bool
	RequestTimeout      time.Duration
	Clock               clock.WithTicker
	Logger              *logrus.Entry
}

// JobMonitor polls the update job status and runs the manual trigger workflow.
type JobMonitor struct {
	client      JobClient
	surface     Surface
	onCompleted func()
	cfg         JobMonitorConfig
	log         *logrus.Entry

	ctx    context.Context
	cancel context.CancelFunc
	wg     sync.WaitGroup

	ambient *PollingLoop
	post    *PollingLoop

	mu         sync.Mutex
	closed     bool
	triggering bool
}

// NewJobMonitor creates a stopped monitor. onCompleted runs after post-trigger
// polling observes a successful run.
func NewJobMonitor(client JobClient, surface Surface, cfg JobMonitorConfig, onCompleted func()) *JobMonitor {
	if cfg.Clock == nil {
		cfg.Clock = clock.RealClock{}
	}
	if cfg.Logger == nil {
		cfg.Logger = logrus.NewEntry(logrus.StandardLogger())
	}
	if cfg.AmbientInterval <= 0 {
		cfg.AmbientInterval = model.DefaultAmbientInterval
	}
	if cfg.PostTriggerInterval <= 0 {
		cfg.PostTriggerInterval = model.DefaultPostTriggerInterval
	}
	if onCompleted == nil {
		onCompleted = func() {}
	}

	ctx, cancel := context.WithCancel(context.Background())
	m := &JobMonitor{
		client:      client,
		surface:     surface,
		onCompleted: onCompleted,
		cfg:         cfg,
		log:         cfg.Logger.WithField("component", "job-monitor"),
		ctx:         ctx,
		cancel:      cancel,
	}
	m.ambient = NewPollingLoop(ambientLoopName, cfg.AmbientInterval, cfg.Clock, m.log, m.ambientTick)
	m.post = NewPollingLoop(postTriggerLoopName, cfg.PostTriggerInterval, cfg.Clock, m.log, m.postTick)
	return m
}

// Start begins ambient polling with an immediate first tick.
func (m *JobMonitor) Start() {
	m.mu.Lock()
	defer m.mu.Unlock()

	if m.closed || !m.cfg.AmbientEnabled {
		return
	}
	m.ambient.Start(m.ctx, true)
}

// StartPostTrigger (re)starts post-trigger polling. A running instance is
// cancelled first.
func (m *JobMonitor) StartPostTrigger() {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.startPostLocked()
}

func (m *JobMonitor) startPostLocked() {
	if m.closed || !m.cfg.PostTriggerEnabled {
		return
	}
	m.post.Start(m.ctx, false)
}

// Trigger requests a manual run. It returns false when the request was
// coalesced into one already in flight or the monitor is closed.
func (m *JobMonitor) Trigger() bool {
	m.mu.Lock()
	defer m.mu.Unlock()

	if m.closed || m.triggering {
		return false
	}
	m.triggering = true
	m.surface.SetTriggerEnabled(false)

	m.wg.Add(1)
	go func() {
		defer m.wg.Done()
		ctx, cancel := m.requestCtx(m.ctx)
		err := m.client.TriggerJob(ctx)
		cancel()
		m.completeTrigger(err)
	}()
	return true
}

func (m *JobMonitor) completeTrigger(err error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	m.triggering = false
	if m.closed {
		return
	}
	m.surface.SetTriggerEnabled(true)

	if err != nil {
		m.log.WithField("kind", model.FailureKindOf(err)).WithError(err).Warn("update trigger rejected")
		m.surface.ShowNotification(triggerFailedMessage+": "+model.FailureMessage(err, "request failed"), NotifyError)
		return
	}
	m.log.Info("update triggered")
	m.surface.ShowNotification(triggerAcceptedMessage, NotifySuccess)
	m.startPostLocked()
}

func (m *JobMonitor) requestCtx(parent context.Context) (context.Context, context.CancelFunc) {
	if m.cfg.RequestTimeout > 0 {
		return context.WithTimeout(parent, m.cfg.RequestTimeout)
	}
	return context.WithCancel(parent)
}

func (m *JobMonitor) fetchStatus(ctx context.Context) (model.JobStatus, error) {
	reqCtx, cancel := m.requestCtx(ctx)
	defer cancel()
	return m.client.FetchJobStatus(reqCtx)
}

func (m *JobMonitor) ambientTick(ctx context.Context) {
	status, err := m.fetchStatus(ctx)

	m.mu.Lock()
	defer m.mu.Unlock()

	if m.closed || ctx.Err() != nil {
		return
	}
	if err != nil {
		m.log.WithFields(logrus.Fields{"loop": ambientLoopName, "kind": model.FailureKindOf(err)}).
			WithError(err).Warn("job status poll failed")
		return
	}
	m.surface.RenderJobStatus(status)

	if m.cfg.FollowScheduledRuns && status.InProgress && !m.post.Running() {
		m.log.Debug("following update run observed by ambient poll")
		m.startPostLocked()
	}
}

func (m *JobMonitor) postTick(ctx context.Context) {
	status, err := m.fetchStatus(ctx)

	m.mu.Lock()
	defer m.mu.Unlock()

	if m.closed || ctx.Err() != nil {
		return
	}
	if err != nil {
		m.log.WithFields(logrus.Fields{"loop": postTriggerLoopName, "kind": model.FailureKindOf(err)}).
			WithError(err).Warn("job status poll failed")
		return
	}
	m.surface.RenderJobStatus(status)
	if status.InProgress {
		return
	}

	m.post.Stop()
	if status.LastResultOK != nil && *status.LastResultOK {
		m.log.Info("update run completed")
		m.onCompleted()
		msg := status.Message
		if msg == "" {
			msg = jobSucceededMessage
		}
		m.surface.ShowNotification(msg, NotifySuccess)
		return
	}

	msg := status.Message
	if msg == "" {
		msg = jobFailedMessage
	}
	m.log.WithField("message", msg).Warn("update run failed")
	m.surface.ShowNotification(msg, NotifyError)
	m.surface.SetTriggerEnabled(true)
}

// PostTriggerRunning reports whether post-trigger polling is active.
func (m *JobMonitor) PostTriggerRunning() bool {
	return m.post.Running()
}

// AmbientRunning reports whether ambient polling is active.
func (m *JobMonitor) AmbientRunning() bool {
	return m.ambient.Running()
}

// Close stops both loops and waits for in-flight requests to return.
// No render happens after Close returns.
func (m *JobMonitor) Close() {
	m.mu.Lock()
	if m.closed {
		m.mu.Unlock()
		return
	}
	m.closed = true
	m.ambient.Stop()
	m.post.Stop()
	m.mu.Unlock()

	m.cancel()
	m.ambient.Wait()
	m.post.Wait()
	m.wg.Wait()
}
