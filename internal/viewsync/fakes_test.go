package viewsync

import (
	"context"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/setwatch/setwatch/internal/model"
	"github.com/sirupsen/logrus"
	"github.com/sirupsen/logrus/hooks/test"
)

const waitFor = 2 * time.Second

func quietLogger() *logrus.Entry {
	logger, _ := test.NewNullLogger()
	return logrus.NewEntry(logger)
}

type fetchReply struct {
	result model.PagedResult
	err    error
}

type pendingFetch struct {
	query model.PageQuery
	reply chan fetchReply
}

func (p pendingFetch) respond(result model.PagedResult, err error) {
	p.reply <- fetchReply{result: result, err: err}
}

// fakeCollections parks every FetchPage call until the test responds to it.
type fakeCollections struct {
	calls       chan pendingFetch
	countsCalls atomic.Int32

	mu    sync.Mutex
	stats model.CollectionStats
}

func newFakeCollections() *fakeCollections {
	return &fakeCollections{calls: make(chan pendingFetch, 32)}
}

func (f *fakeCollections) FetchPage(ctx context.Context, q model.PageQuery) (model.PagedResult, error) {
	p := pendingFetch{query: q, reply: make(chan fetchReply, 1)}
	f.calls <- p
	select {
	case r := <-p.reply:
		return r.result, r.err
	case <-ctx.Done():
		return model.PagedResult{}, ctx.Err()
	}
}

func (f *fakeCollections) FetchAggregateCounts(context.Context) (model.CollectionStats, error) {
	f.countsCalls.Add(1)
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.stats, nil
}

func (f *fakeCollections) next(t *testing.T) pendingFetch {
	t.Helper()
	select {
	case p := <-f.calls:
		return p
	case <-time.After(waitFor):
		t.Fatal("timed out waiting for page request")
		return pendingFetch{}
	}
}

func (f *fakeCollections) pending() int {
	return len(f.calls)
}

// fakeJobs serves a configurable status and trigger outcome.
type fakeJobs struct {
	statusCalls  atomic.Int32
	triggerCalls atomic.Int32

	mu          sync.Mutex
	status      model.JobStatus
	statusErr   error
	triggerErr  error
	triggerGate chan struct{}
}

func (f *fakeJobs) setStatus(s model.JobStatus, err error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.status = s
	f.statusErr = err
}

func (f *fakeJobs) FetchJobStatus(context.Context) (model.JobStatus, error) {
	f.statusCalls.Add(1)
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.status, f.statusErr
}

func (f *fakeJobs) TriggerJob(ctx context.Context) error {
	f.triggerCalls.Add(1)
	f.mu.Lock()
	gate := f.triggerGate
	err := f.triggerErr
	f.mu.Unlock()
	if gate != nil {
		select {
		case <-gate:
		case <-ctx.Done():
			return ctx.Err()
		}
	}
	return err
}

type notification struct {
	message string
	kind    NotificationKind
}

// recordingSurface captures every render call.
type recordingSurface struct {
	mu            sync.Mutex
	calls         int
	loading       []bool
	records       [][]TrackView
	empty         int
	errors        []string
	pages         [][2]int
	searchQuery   string
	searchTotal   *int
	statuses      []model.JobStatus
	counts        []model.CollectionStats
	notifications []notification
	triggerStates []bool
}

func (s *recordingSurface) RenderLoading(loading bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.calls++
	s.loading = append(s.loading, loading)
}

func (s *recordingSurface) RenderRecords(tracks []TrackView) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.calls++
	s.records = append(s.records, tracks)
}

func (s *recordingSurface) RenderEmptyState() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.calls++
	s.empty++
}

func (s *recordingSurface) RenderErrorState(message string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.calls++
	s.errors = append(s.errors, message)
}

func (s *recordingSurface) RenderPagination(page, totalPages int) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.calls++
	s.pages = append(s.pages, [2]int{page, totalPages})
}

func (s *recordingSurface) RenderSearchFeedback(query string, totalMatches *int) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.calls++
	s.searchQuery = query
	s.searchTotal = totalMatches
}

func (s *recordingSurface) RenderJobStatus(status model.JobStatus) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.calls++
	s.statuses = append(s.statuses, status)
}

func (s *recordingSurface) RenderAggregateCounts(stats model.CollectionStats) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.calls++
	s.counts = append(s.counts, stats)
}

func (s *recordingSurface) ShowNotification(message string, kind NotificationKind) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.calls++
	s.notifications = append(s.notifications, notification{message: message, kind: kind})
}

func (s *recordingSurface) SetTriggerEnabled(enabled bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.calls++
	s.triggerStates = append(s.triggerStates, enabled)
}

func (s *recordingSurface) callCount() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.calls
}

func (s *recordingSurface) lastPage() [2]int {
	s.mu.Lock()
	defer s.mu.Unlock()
	if len(s.pages) == 0 {
		return [2]int{}
	}
	return s.pages[len(s.pages)-1]
}

func (s *recordingSurface) pageRenders() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.pages)
}

func (s *recordingSurface) lastLoading() (bool, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if len(s.loading) == 0 {
		return false, false
	}
	return s.loading[len(s.loading)-1], true
}

func (s *recordingSurface) errorStates() []string {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]string(nil), s.errors...)
}

func (s *recordingSurface) statusCount() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.statuses)
}

func (s *recordingSurface) countsRenders() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.counts)
}

func (s *recordingSurface) notificationList() []notification {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]notification(nil), s.notifications...)
}

func (s *recordingSurface) lastTriggerState() (bool, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if len(s.triggerStates) == 0 {
		return false, false
	}
	return s.triggerStates[len(s.triggerStates)-1], true
}

func (s *recordingSurface) search() (string, *int) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.searchQuery, s.searchTotal
}

func pageResult(page, totalPages, total int, search string, n int) model.PagedResult {
	tracks := make([]model.Track, n)
	for i := range tracks {
		tracks[i] = model.Track{ID: "t" + string(rune('a'+i)), Title: "Artist - Song", Artist: "artist", DurationSeconds: 125}
	}
	return model.PagedResult{
		Tracks:     tracks,
		Total:      total,
		Page:       page,
		PerPage:    10,
		TotalPages: totalPages,
		Search:     search,
	}
}

func boolPtr(b bool) *bool { return &b }
