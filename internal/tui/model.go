// Package tui is the setwatch terminal dashboard. It renders the output of a
// viewsync.Controller and turns key presses into controller events.
package tui

import (
	"time"

	"github.com/charmbracelet/bubbles/help"
	"github.com/charmbracelet/bubbles/spinner"
	"github.com/charmbracelet/bubbles/table"
	"github.com/charmbracelet/bubbles/textinput"
	tea "github.com/charmbracelet/bubbletea"
	"github.com/setwatch/setwatch/internal/model"
	"github.com/setwatch/setwatch/internal/viewsync"
)

// notificationTTL is how long a notification stays on screen.
const notificationTTL = 4 * time.Second

// Controller is the part of viewsync.Controller the dashboard drives.
type Controller interface {
	Mount()
	OnCollectionSelected(id string) error
	OnPageRequested(dir viewsync.PageDirection) bool
	OnSearchSubmitted(text string)
	OnSearchCleared()
	OnRefreshRequested()
	OnTriggerRequested() bool
}

// Options configures the dashboard.
type Options struct {
	Collections       []model.Collection
	InitialCollection model.Collection
	// DataSource is shown in the status line, e.g. "socket" or "http".
	DataSource string
	// Now is the time source for relative timestamps.
	Now func() time.Time
}

// PageState is what the dashboard currently shows for the active collection.
type PageState struct {
	loading     bool
	tracks      []viewsync.TrackView
	empty       bool
	errMessage  string
	page        int
	totalPages  int
	searchQuery string
	searchTotal *int
}

// JobState is the latest job status and trigger affordance.
type JobState struct {
	status         *model.JobStatus
	counts         *model.CollectionStats
	triggerEnabled bool
}

type notification struct {
	text string
	kind viewsync.NotificationKind
	seq  int
}

// clearNotificationMsg expires the notification with the same seq.
type clearNotificationMsg struct{ seq int }

// DashboardModel is the Bubble Tea model of the dashboard.
type DashboardModel struct {
	PageState
	JobState

	ctrl    Controller
	surface *Surface
	keys    KeyMap
	opts    Options

	collections []model.Collection
	active      int

	table    table.Model
	search   textinput.Model
	spinner  spinner.Model
	help     help.Model
	spinning bool

	searchActive bool
	notice       *notification
	noticeSeq    int

	width  int
	height int
}

// NewDashboardModel builds the dashboard. ctrl must emit its renders into surface.
func NewDashboardModel(ctrl Controller, surface *Surface, opts Options) *DashboardModel {
	if len(opts.Collections) == 0 {
		opts.Collections = model.KnownCollections
	}
	if opts.Now == nil {
		opts.Now = time.Now
	}
	active := 0
	for i, c := range opts.Collections {
		if c == opts.InitialCollection {
			active = i
		}
	}

	search := textinput.New()
	search.Placeholder = "title or artist"
	search.Prompt = "/ "
	search.CharLimit = 200

	sp := spinner.New(spinner.WithSpinner(spinner.Dot), spinner.WithStyle(spinnerStyle))

	t := table.New(table.WithColumns(trackColumns(80)), table.WithFocused(true), table.WithHeight(10))
	t.SetStyles(tableStyles())

	return &DashboardModel{
		PageState:   PageState{page: 1, totalPages: 1},
		JobState:    JobState{triggerEnabled: true},
		ctrl:        ctrl,
		surface:     surface,
		keys:        DefaultKeyMap(),
		opts:        opts,
		collections: opts.Collections,
		active:      active,
		table:       t,
		search:      search,
		spinner:     sp,
		help:        help.New(),
	}
}

// Init mounts the controller and starts listening for renders.
func (m *DashboardModel) Init() tea.Cmd {
	ctrl := m.ctrl
	return tea.Batch(
		func() tea.Msg {
			ctrl.Mount()
			return nil
		},
		m.surface.listen(),
	)
}

func (m *DashboardModel) activeCollection() model.Collection {
	return m.collections[m.active]
}
