package tui

import (
	"sync"

	tea "github.com/charmbracelet/bubbletea"
	"github.com/setwatch/setwatch/internal/model"
	"github.com/setwatch/setwatch/internal/viewsync"
)

// Messages produced by Surface. Each render call becomes one message that the
// Bubble Tea loop applies to the dashboard model.
type (
	loadingMsg        bool
	recordsMsg        []viewsync.TrackView
	emptyMsg          struct{}
	errorStateMsg     string
	paginationMsg     struct{ page, totalPages int }
	searchFeedbackMsg struct {
		query string
		total *int
	}
	jobStatusMsg    model.JobStatus
	countsMsg       model.CollectionStats
	notificationMsg struct {
		text string
		kind viewsync.NotificationKind
	}
	triggerEnabledMsg bool

	// surfaceBatchMsg carries every render queued since the last delivery.
	surfaceBatchMsg []tea.Msg
)

// Surface implements viewsync.Surface by queueing renders for the Bubble Tea
// program. Render calls never block: the controller invokes them while
// holding its locks, and the UI goroutine may be waiting on those same locks.
type Surface struct {
	mu     sync.Mutex
	queue  []tea.Msg
	notify chan struct{}
	done   chan struct{}
	once   sync.Once
}

var _ viewsync.Surface = (*Surface)(nil)

// NewSurface creates an empty surface.
func NewSurface() *Surface {
	return &Surface{
		notify: make(chan struct{}, 1),
		done:   make(chan struct{}),
	}
}

func (s *Surface) push(msg tea.Msg) {
	s.mu.Lock()
	s.queue = append(s.queue, msg)
	s.mu.Unlock()
	select {
	case s.notify <- struct{}{}:
	default:
	}
}

// listen returns a command that waits for queued renders and delivers them
// as one batch. The model re-issues it after every batch.
func (s *Surface) listen() tea.Cmd {
	return func() tea.Msg {
		for {
			select {
			case <-s.done:
				return nil
			case <-s.notify:
			}
			s.mu.Lock()
			batch := s.queue
			s.queue = nil
			s.mu.Unlock()
			if len(batch) > 0 {
				return surfaceBatchMsg(batch)
			}
		}
	}
}

// Close releases a pending listen command.
func (s *Surface) Close() {
	s.once.Do(func() { close(s.done) })
}

func (s *Surface) RenderLoading(loading bool) { s.push(loadingMsg(loading)) }

func (s *Surface) RenderRecords(tracks []viewsync.TrackView) { s.push(recordsMsg(tracks)) }

func (s *Surface) RenderEmptyState() { s.push(emptyMsg{}) }

func (s *Surface) RenderErrorState(message string) { s.push(errorStateMsg(message)) }

func (s *Surface) RenderPagination(page, totalPages int) {
	s.push(paginationMsg{page: page, totalPages: totalPages})
}

func (s *Surface) RenderSearchFeedback(query string, totalMatches *int) {
	var total *int
	if totalMatches != nil {
		n := *totalMatches
		total = &n
	}
	s.push(searchFeedbackMsg{query: query, total: total})
}

func (s *Surface) RenderJobStatus(status model.JobStatus) { s.push(jobStatusMsg(status)) }

func (s *Surface) RenderAggregateCounts(stats model.CollectionStats) { s.push(countsMsg(stats)) }

func (s *Surface) ShowNotification(message string, kind viewsync.NotificationKind) {
	s.push(notificationMsg{text: message, kind: kind})
}

func (s *Surface) SetTriggerEnabled(enabled bool) { s.push(triggerEnabledMsg(enabled)) }
