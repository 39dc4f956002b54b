package viewsync

import (
	"strings"
	"sync/atomic"
	"testing"
	"time"

	"github.com/setwatch/setwatch/internal/model"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	testingclock "k8s.io/utils/clock/testing"
)

const postInterval = 2 * time.Second

type monitorHarness struct {
	monitor   *JobMonitor
	jobs      *fakeJobs
	surface   *recordingSurface
	clock     *testingclock.FakeClock
	completed atomic.Int32
}

func newMonitorHarness(t *testing.T, ambient, follow bool) *monitorHarness {
	t.Helper()
	h := &monitorHarness{
		jobs:    &fakeJobs{},
		surface: &recordingSurface{},
		clock:   testingclock.NewFakeClock(time.Now()),
	}
	h.monitor = NewJobMonitor(h.jobs, h.surface, JobMonitorConfig{
		AmbientEnabled:      ambient,
		AmbientInterval:     30 * time.Second,
		PostTriggerEnabled:  true,
		PostTriggerInterval: postInterval,
		FollowScheduledRuns: follow,
		RequestTimeout:      waitFor,
		Clock:               h.clock,
		Logger:              quietLogger(),
	}, func() { h.completed.Add(1) })
	t.Cleanup(h.monitor.Close)
	return h
}

// stepPost advances one post-trigger interval and waits for the resulting poll.
func (h *monitorHarness) stepPost(t *testing.T) {
	t.Helper()
	before := h.surface.statusCount()
	h.clock.Step(postInterval)
	require.Eventually(t, func() bool { return h.surface.statusCount() > before }, waitFor, time.Millisecond)
	require.Eventually(t, func() bool { return !h.monitor.post.inFlight.Load() }, waitFor, time.Millisecond)
}

func TestJobMonitor_AmbientRendersStatusWithoutRefresh(t *testing.T) {
	t.Parallel()

	h := newMonitorHarness(t, true, true)
	h.jobs.setStatus(model.JobStatus{Enabled: true, InProgress: false, LastResultOK: boolPtr(true), Message: "Update completed successfully!"}, nil)

	h.monitor.Start()
	require.Eventually(t, func() bool { return h.surface.statusCount() == 1 }, waitFor, time.Millisecond)

	h.clock.Step(30 * time.Second)
	require.Eventually(t, func() bool { return h.surface.statusCount() == 2 }, waitFor, time.Millisecond)

	assert.Zero(t, h.completed.Load(), "ambient polling never refreshes the view")
	assert.Empty(t, h.surface.notificationList())
	assert.False(t, h.monitor.PostTriggerRunning())
	assert.True(t, h.monitor.AmbientRunning())
}

func TestJobMonitor_AmbientErrorsKeepPolling(t *testing.T) {
	t.Parallel()

	h := newMonitorHarness(t, true, false)
	h.jobs.setStatus(model.JobStatus{}, model.NewFailure(model.FailureTransport, "connection refused", nil))

	h.monitor.Start()
	require.Eventually(t, func() bool { return h.jobs.statusCalls.Load() == 1 }, waitFor, time.Millisecond)
	require.Eventually(t, func() bool { return !h.monitor.ambient.inFlight.Load() }, waitFor, time.Millisecond)

	h.jobs.setStatus(model.JobStatus{Enabled: true}, nil)
	h.clock.Step(30 * time.Second)
	require.Eventually(t, func() bool { return h.surface.statusCount() == 1 }, waitFor, time.Millisecond)
	assert.True(t, h.monitor.AmbientRunning())
}

func TestJobMonitor_TriggerFailureRearmsWithoutPolling(t *testing.T) {
	t.Parallel()

	h := newMonitorHarness(t, false, false)
	h.jobs.triggerErr = model.NewFailure(model.FailureServer, "locked", nil)

	require.True(t, h.monitor.Trigger())
	require.Eventually(t, func() bool { return len(h.surface.notificationList()) == 1 }, waitFor, time.Millisecond)

	n := h.surface.notificationList()[0]
	assert.Equal(t, NotifyError, n.kind)
	assert.True(t, strings.Contains(n.message, "locked"), n.message)

	enabled, ok := h.surface.lastTriggerState()
	require.True(t, ok)
	assert.True(t, enabled)
	assert.Equal(t, []bool{false, true}, h.surface.triggerStates)
	assert.False(t, h.monitor.PostTriggerRunning())
	assert.Zero(t, h.jobs.statusCalls.Load())
}

func TestJobMonitor_TriggerCoalescesWhileInFlight(t *testing.T) {
	t.Parallel()

	h := newMonitorHarness(t, false, false)
	gate := make(chan struct{})
	h.jobs.triggerGate = gate

	require.True(t, h.monitor.Trigger())
	assert.False(t, h.monitor.Trigger())
	assert.False(t, h.monitor.Trigger())

	close(gate)
	require.Eventually(t, func() bool { return h.monitor.PostTriggerRunning() }, waitFor, time.Millisecond)
	assert.Equal(t, int32(1), h.jobs.triggerCalls.Load())

	require.True(t, h.monitor.Trigger(), "trigger is re-armed once the request returns")
}

func TestJobMonitor_PostTriggerCompletionRefreshes(t *testing.T) {
	t.Parallel()

	h := newMonitorHarness(t, false, false)
	h.jobs.setStatus(model.JobStatus{Enabled: true, InProgress: true, Message: "Update started..."}, nil)

	require.True(t, h.monitor.Trigger())
	require.Eventually(t, func() bool { return h.monitor.PostTriggerRunning() }, waitFor, time.Millisecond)

	notes := h.surface.notificationList()
	require.Len(t, notes, 1)
	assert.Equal(t, NotifySuccess, notes[0].kind)
	enabled, _ := h.surface.lastTriggerState()
	assert.True(t, enabled, "accepting a trigger re-enables it immediately")

	h.stepPost(t)
	assert.True(t, h.monitor.PostTriggerRunning())
	assert.Zero(t, h.completed.Load())

	h.jobs.setStatus(model.JobStatus{}, model.NewFailure(model.FailureServer, "busy", nil))
	h.clock.Step(postInterval)
	require.Eventually(t, func() bool { return h.jobs.statusCalls.Load() == 2 }, waitFor, time.Millisecond)
	require.Eventually(t, func() bool { return !h.monitor.post.inFlight.Load() }, waitFor, time.Millisecond)
	assert.True(t, h.monitor.PostTriggerRunning(), "poll errors do not end post-trigger polling")

	h.jobs.setStatus(model.JobStatus{Enabled: true, InProgress: false, LastResultOK: boolPtr(true), Message: "Update completed successfully!"}, nil)
	h.stepPost(t)

	require.Eventually(t, func() bool { return !h.monitor.PostTriggerRunning() }, waitFor, time.Millisecond)
	assert.Equal(t, int32(1), h.completed.Load())
	notes = h.surface.notificationList()
	require.Len(t, notes, 2)
	assert.Equal(t, notification{message: "Update completed successfully!", kind: NotifySuccess}, notes[1])

	calls := h.jobs.statusCalls.Load()
	h.clock.Step(postInterval)
	assert.Never(t, func() bool { return h.jobs.statusCalls.Load() > calls }, 50*time.Millisecond, 5*time.Millisecond)
}

func TestJobMonitor_PostTriggerFailedRunRearmsTrigger(t *testing.T) {
	t.Parallel()

	h := newMonitorHarness(t, false, false)
	h.jobs.setStatus(model.JobStatus{InProgress: false, LastResultOK: boolPtr(false), Message: "Error: playlist unavailable"}, nil)

	h.monitor.StartPostTrigger()
	h.stepPost(t)

	require.Eventually(t, func() bool { return !h.monitor.PostTriggerRunning() }, waitFor, time.Millisecond)
	assert.Zero(t, h.completed.Load())
	notes := h.surface.notificationList()
	require.Len(t, notes, 1)
	assert.Equal(t, notification{message: "Error: playlist unavailable", kind: NotifyError}, notes[0])
	enabled, ok := h.surface.lastTriggerState()
	require.True(t, ok)
	assert.True(t, enabled)
}

func TestJobMonitor_AmbientFollowsScheduledRun(t *testing.T) {
	t.Parallel()

	h := newMonitorHarness(t, true, true)
	h.jobs.setStatus(model.JobStatus{Enabled: true, InProgress: true}, nil)

	h.monitor.Start()
	require.Eventually(t, func() bool { return h.monitor.PostTriggerRunning() }, waitFor, time.Millisecond)

	h.jobs.setStatus(model.JobStatus{Enabled: true, LastResultOK: boolPtr(true)}, nil)
	h.stepPost(t)
	require.Eventually(t, func() bool { return h.completed.Load() == 1 }, waitFor, time.Millisecond)
}

func TestJobMonitor_CloseStopsLoopsAndSilencesSurface(t *testing.T) {
	t.Parallel()

	h := newMonitorHarness(t, true, false)
	h.jobs.setStatus(model.JobStatus{InProgress: true}, nil)

	h.monitor.Start()
	h.monitor.StartPostTrigger()
	require.Eventually(t, func() bool { return h.surface.statusCount() == 1 }, waitFor, time.Millisecond)

	h.monitor.Close()
	calls := h.surface.callCount()
	assert.False(t, h.monitor.AmbientRunning())
	assert.False(t, h.monitor.PostTriggerRunning())

	h.clock.Step(time.Minute)
	assert.False(t, h.monitor.Trigger())
	h.monitor.StartPostTrigger()
	assert.False(t, h.monitor.PostTriggerRunning())
	assert.Never(t, func() bool { return h.surface.callCount() != calls }, 50*time.Millisecond, 5*time.Millisecond)

	h.monitor.Close()
}
