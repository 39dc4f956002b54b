package tui

import (
	"time"

	"github.com/charmbracelet/bubbles/key"
	"github.com/charmbracelet/bubbles/spinner"
	tea "github.com/charmbracelet/bubbletea"
	"github.com/setwatch/setwatch/internal/model"
	"github.com/setwatch/setwatch/internal/viewsync"
)

// Update handles messages.
func (m *DashboardModel) Update(msg tea.Msg) (tea.Model, tea.Cmd) {
	switch msg := msg.(type) {
	case tea.WindowSizeMsg:
		m.width = msg.Width
		m.height = msg.Height
		m.resize()
		return m, nil

	case tea.KeyMsg:
		return m.handleKeyPress(msg)

	case surfaceBatchMsg:
		cmds := []tea.Cmd{m.surface.listen()}
		for _, sub := range msg {
			cmds = append(cmds, m.applyRender(sub))
		}
		return m, tea.Batch(cmds...)

	case clearNotificationMsg:
		if m.notice != nil && m.notice.seq == msg.seq {
			m.notice = nil
		}
		return m, nil

	case spinner.TickMsg:
		// Let the spinner stop once nothing is loading.
		if !m.loading {
			m.spinning = false
			return m, nil
		}
		var cmd tea.Cmd
		m.spinner, cmd = m.spinner.Update(msg)
		return m, cmd
	}
	return m, nil
}

// applyRender applies one Surface render to the model.
func (m *DashboardModel) applyRender(msg tea.Msg) tea.Cmd {
	switch msg := msg.(type) {
	case loadingMsg:
		m.loading = bool(msg)
		if m.loading {
			m.errMessage = ""
			if !m.spinning {
				m.spinning = true
				return m.spinner.Tick
			}
		}

	case recordsMsg:
		m.tracks = msg
		m.empty = false
		m.errMessage = ""
		m.table.SetRows(trackRows(m.tracks))
		m.table.GotoTop()

	case emptyMsg:
		m.tracks = nil
		m.empty = true
		m.errMessage = ""
		m.table.SetRows(nil)

	case errorStateMsg:
		m.errMessage = string(msg)

	case paginationMsg:
		m.page = msg.page
		m.totalPages = msg.totalPages

	case searchFeedbackMsg:
		m.searchQuery = msg.query
		m.searchTotal = msg.total

	case jobStatusMsg:
		st := model.JobStatus(msg)
		m.status = &st

	case countsMsg:
		stats := model.CollectionStats(msg)
		m.counts = &stats

	case triggerEnabledMsg:
		m.triggerEnabled = bool(msg)

	case notificationMsg:
		m.noticeSeq++
		seq := m.noticeSeq
		m.notice = &notification{text: msg.text, kind: msg.kind, seq: seq}
		return tea.Tick(notificationTTL, func(time.Time) tea.Msg {
			return clearNotificationMsg{seq: seq}
		})
	}
	return nil
}

func (m *DashboardModel) handleKeyPress(msg tea.KeyMsg) (tea.Model, tea.Cmd) {
	if key.Matches(msg, m.keys.ForceQuit) {
		return m, tea.Quit
	}
	if m.searchActive {
		return m.handleSearchInput(msg)
	}

	switch {
	case key.Matches(msg, m.keys.Quit):
		return m, tea.Quit
	case key.Matches(msg, m.keys.Help):
		m.help.ShowAll = !m.help.ShowAll
		m.resize()
	case key.Matches(msg, m.keys.Tab1):
		m.selectCollection(0)
	case key.Matches(msg, m.keys.Tab2):
		m.selectCollection(1)
	case key.Matches(msg, m.keys.Tab3):
		m.selectCollection(2)
	case key.Matches(msg, m.keys.NextTab):
		m.selectCollection((m.active + 1) % len(m.collections))
	case key.Matches(msg, m.keys.PrevTab):
		m.selectCollection((m.active + len(m.collections) - 1) % len(m.collections))
	case key.Matches(msg, m.keys.NextPage):
		m.ctrl.OnPageRequested(viewsync.PageNext)
	case key.Matches(msg, m.keys.PrevPage):
		m.ctrl.OnPageRequested(viewsync.PagePrev)
	case key.Matches(msg, m.keys.Search):
		m.searchActive = true
		m.search.SetValue(m.searchQuery)
		m.search.CursorEnd()
		m.resize()
		return m, m.search.Focus()
	case key.Matches(msg, m.keys.Escape):
		if m.searchQuery != "" {
			m.ctrl.OnSearchCleared()
		}
	case key.Matches(msg, m.keys.Refresh):
		m.ctrl.OnRefreshRequested()
	case key.Matches(msg, m.keys.Trigger):
		if m.triggerEnabled {
			m.ctrl.OnTriggerRequested()
		}
	default:
		var cmd tea.Cmd
		m.table, cmd = m.table.Update(msg)
		return m, cmd
	}
	return m, nil
}

func (m *DashboardModel) handleSearchInput(msg tea.KeyMsg) (tea.Model, tea.Cmd) {
	switch {
	case key.Matches(msg, m.keys.Submit):
		m.closeSearch()
		m.ctrl.OnSearchSubmitted(m.search.Value())
		return m, nil
	case key.Matches(msg, m.keys.Escape):
		m.closeSearch()
		if m.searchQuery != "" {
			m.ctrl.OnSearchCleared()
		}
		return m, nil
	}
	var cmd tea.Cmd
	m.search, cmd = m.search.Update(msg)
	return m, cmd
}

func (m *DashboardModel) closeSearch() {
	m.searchActive = false
	m.search.Blur()
	m.resize()
}

// selectCollection switches tabs. Selecting the active tab reloads it.
func (m *DashboardModel) selectCollection(idx int) {
	if idx < 0 || idx >= len(m.collections) {
		return
	}
	if err := m.ctrl.OnCollectionSelected(string(m.collections[idx])); err != nil {
		m.errMessage = err.Error()
		return
	}
	m.active = idx
}
