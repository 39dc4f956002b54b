package refresh

import (
	"context"
	"errors"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/setwatch/setwatch/internal/model"
	"github.com/sirupsen/logrus"
	logtest "github.com/sirupsen/logrus/hooks/test"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	testingclock "k8s.io/utils/clock/testing"
)

const waitFor = 2 * time.Second

var epoch = time.Date(2025, 3, 1, 12, 0, 0, 0, time.UTC)

func quietLogger() *logrus.Entry {
	l, _ := logtest.NewNullLogger()
	return logrus.NewEntry(l)
}

// gatedSource blocks each Fetch until release is closed, unless gate is nil.
type gatedSource struct {
	gate    chan struct{}
	tracks  []model.Track
	err     error
	fetches atomic.Int32
}

func (s *gatedSource) Fetch(ctx context.Context) ([]model.Track, error) {
	s.fetches.Add(1)
	if s.gate != nil {
		select {
		case <-s.gate:
		case <-ctx.Done():
			return nil, ctx.Err()
		}
	}
	return s.tracks, s.err
}

type fakeStore struct {
	mu     sync.Mutex
	result model.UpdateResult
	err    error
	seen   [][]model.Track
}

func (f *fakeStore) ApplySnapshot(_ context.Context, tracks []model.Track) (model.UpdateResult, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.seen = append(f.seen, tracks)
	return f.result, f.err
}

type memRuns struct {
	mu   sync.Mutex
	runs []model.UpdateRun
}

func (m *memRuns) RecordRun(_ context.Context, run model.UpdateRun) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.runs = append(m.runs, run)
	return nil
}

func (m *memRuns) LastRun(context.Context) (*model.UpdateRun, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if len(m.runs) == 0 {
		return nil, nil
	}
	run := m.runs[len(m.runs)-1]
	return &run, nil
}

func (m *memRuns) count() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.runs)
}

func newRunner(t *testing.T, src Source, store model.SnapshotWriter, runs model.RunRecorder, cfg Config) *Runner {
	t.Helper()
	if cfg.Clock == nil {
		cfg.Clock = testingclock.NewFakeClock(epoch)
	}
	cfg.Logger = quietLogger()
	r, err := New(src, store, runs, cfg)
	require.NoError(t, err)
	t.Cleanup(r.Close)
	return r
}

func waitIdle(t *testing.T, r *Runner) model.JobStatus {
	t.Helper()
	require.Eventually(t, func() bool { return !r.Status().InProgress }, waitFor, 5*time.Millisecond)
	return r.Status()
}

func TestNew_Validates(t *testing.T) {
	_, err := New(nil, &fakeStore{}, nil, Config{})
	require.Error(t, err)
	_, err = New(&gatedSource{}, nil, nil, Config{})
	require.Error(t, err)
	_, err = New(&gatedSource{}, &fakeStore{}, nil, Config{IntervalMinutes: -1})
	require.Error(t, err)
}

func TestTrigger_SingleFlight(t *testing.T) {
	src := &gatedSource{gate: make(chan struct{}), tracks: []model.Track{{ID: "a"}}}
	r := newRunner(t, src, &fakeStore{}, nil, Config{})

	require.NoError(t, r.Trigger())
	st := r.Status()
	assert.True(t, st.InProgress)
	assert.Equal(t, model.JobStartedMessage, st.Message)

	assert.ErrorIs(t, r.Trigger(), model.ErrJobInProgress)
	_, err := r.RunNow(context.Background())
	assert.ErrorIs(t, err, model.ErrJobInProgress)

	close(src.gate)
	st = waitIdle(t, r)
	assert.Equal(t, int32(1), src.fetches.Load())
	require.NotNil(t, st.LastResultOK)
	assert.True(t, *st.LastResultOK)
}

func TestRunNow_Success(t *testing.T) {
	want := model.UpdateResult{CurrentCount: 2, AllCount: 3, RemovedCount: 1, NewTracks: 1, RemovedTracks: 1}
	store := &fakeStore{result: want}
	runs := &memRuns{}
	r := newRunner(t, &gatedSource{tracks: []model.Track{{ID: "a"}, {ID: "b"}}}, store, runs, Config{})

	got, err := r.RunNow(context.Background())
	require.NoError(t, err)
	assert.Equal(t, want, got)
	require.Len(t, store.seen, 1)
	assert.Len(t, store.seen[0], 2)

	st := r.Status()
	assert.False(t, st.InProgress)
	assert.Equal(t, model.JobSucceededMessage, st.Message)
	require.NotNil(t, st.LastResult)
	assert.Equal(t, want, *st.LastResult)
	require.NotNil(t, st.LastUpdateAt)
	assert.True(t, st.LastUpdateAt.Equal(epoch))

	require.Equal(t, 1, runs.count())
	assert.True(t, runs.runs[0].OK)
}

func TestRunNow_FetchFailure(t *testing.T) {
	runs := &memRuns{}
	store := &fakeStore{}
	r := newRunner(t, &gatedSource{err: errors.New("playlist unavailable")}, store, runs, Config{})

	_, err := r.RunNow(context.Background())
	require.Error(t, err)
	assert.Empty(t, store.seen, "store must not be touched when the fetch fails")

	st := r.Status()
	require.NotNil(t, st.LastResultOK)
	assert.False(t, *st.LastResultOK)
	assert.Equal(t, "Error: fetch playlist: playlist unavailable", st.Message)
	assert.Nil(t, st.LastResult)
	require.Equal(t, 1, runs.count())
	assert.False(t, runs.runs[0].OK)
}

func TestRunNow_KeepsLastGoodResultAfterFailure(t *testing.T) {
	good := model.UpdateResult{CurrentCount: 5}
	store := &fakeStore{result: good}
	r := newRunner(t, &gatedSource{tracks: []model.Track{{ID: "a"}}}, store, nil, Config{})

	_, err := r.RunNow(context.Background())
	require.NoError(t, err)

	store.mu.Lock()
	store.err = errors.New("disk full")
	store.mu.Unlock()
	_, err = r.RunNow(context.Background())
	require.Error(t, err)

	st := r.Status()
	assert.False(t, *st.LastResultOK)
	require.NotNil(t, st.LastResult)
	assert.Equal(t, good, *st.LastResult)
}

func TestRestore_SeedsStatusFromLastRun(t *testing.T) {
	runs := &memRuns{}
	finished := epoch.Add(-time.Hour)
	require.NoError(t, runs.RecordRun(context.Background(), model.UpdateRun{
		StartedAt:  finished.Add(-time.Second),
		FinishedAt: finished,
		OK:         true,
		Message:    model.JobSucceededMessage,
		Result:     model.UpdateResult{CurrentCount: 9},
	}))
	r := newRunner(t, &gatedSource{}, &fakeStore{}, runs, Config{})

	require.NoError(t, r.Restore(context.Background()))
	st := r.Status()
	require.NotNil(t, st.LastUpdateAt)
	assert.True(t, st.LastUpdateAt.Equal(finished))
	require.NotNil(t, st.LastResultOK)
	assert.True(t, *st.LastResultOK)
	assert.Equal(t, 9, st.LastResult.CurrentCount)
	assert.Equal(t, model.JobSucceededMessage, st.Message)
}

func TestSchedule_RunsEveryInterval(t *testing.T) {
	clk := testingclock.NewFakeClock(epoch)
	src := &gatedSource{tracks: []model.Track{{ID: "a"}}}
	r := newRunner(t, src, &fakeStore{}, nil, Config{IntervalMinutes: 15, Clock: clk})

	st := r.Status()
	assert.True(t, st.Enabled)
	assert.Nil(t, st.NextUpdateAt, "next update is unknown before Start")

	r.Start()
	st = r.Status()
	assert.True(t, st.Enabled)
	assert.Equal(t, 15, st.IntervalMinutes)
	require.NotNil(t, st.NextUpdateAt)
	assert.True(t, st.NextUpdateAt.Equal(epoch.Add(15*time.Minute)))

	clk.Step(15 * time.Minute)
	require.Eventually(t, func() bool { return src.fetches.Load() == 1 }, waitFor, 5*time.Millisecond)
	waitIdle(t, r)
	require.Eventually(t, func() bool {
		next := r.Status().NextUpdateAt
		return next != nil && next.Equal(epoch.Add(30*time.Minute))
	}, waitFor, 5*time.Millisecond)

	clk.Step(15 * time.Minute)
	require.Eventually(t, func() bool { return src.fetches.Load() == 2 }, waitFor, 5*time.Millisecond)
}

func TestSchedule_DisabledWithZeroInterval(t *testing.T) {
	clk := testingclock.NewFakeClock(epoch)
	src := &gatedSource{}
	r := newRunner(t, src, &fakeStore{}, nil, Config{Clock: clk})

	r.Start()
	assert.False(t, clk.HasWaiters(), "no ticker should be registered")
	st := r.Status()
	assert.False(t, st.Enabled)
	assert.Nil(t, st.NextUpdateAt)
}

func TestClose_CancelsRunAndRejectsNew(t *testing.T) {
	src := &gatedSource{gate: make(chan struct{})}
	r := newRunner(t, src, &fakeStore{}, nil, Config{})

	require.NoError(t, r.Trigger())
	require.Eventually(t, func() bool { return src.fetches.Load() == 1 }, waitFor, 5*time.Millisecond)

	done := make(chan struct{})
	go func() {
		r.Close()
		close(done)
	}()
	select {
	case <-done:
	case <-time.After(waitFor):
		t.Fatal("Close did not cancel the in-flight run")
	}

	assert.ErrorIs(t, r.Trigger(), ErrClosed)
}
