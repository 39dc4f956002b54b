package tui

import (
	"fmt"
	"strings"
	"time"

	"github.com/charmbracelet/bubbles/table"
	"github.com/charmbracelet/lipgloss"
	"github.com/dustin/go-humanize"
	"github.com/setwatch/setwatch/internal/model"
	"github.com/setwatch/setwatch/internal/viewsync"
)

// Fixed rows around the table: tabs, pagination, job status, notification, help.
const chromeHeight = 6

// View renders the dashboard.
func (m *DashboardModel) View() string {
	if m.width <= 0 || m.height <= 0 {
		return "Initializing dashboard..."
	}

	sections := []string{
		m.renderTabs(),
		m.renderBody(),
		m.renderPagination(),
		m.renderJobStatus(),
		m.renderNotification(),
	}
	if m.searchActive {
		sections = append(sections, m.search.View())
	}
	sections = append(sections, m.renderHelp())
	return lipgloss.JoinVertical(lipgloss.Left, sections...)
}

func (m *DashboardModel) renderTabs() string {
	tabs := []string{statusBarStyle.Render(" ") + renderBranding() + statusBarStyle.Render(" ")}
	for i, c := range m.collections {
		label := fmt.Sprintf("%d %s", i+1, collectionTitle(c))
		if m.counts != nil {
			label += " " + humanize.Comma(m.counts.Count(c))
		}
		style := tabStyle
		if i == m.active {
			style = activeTabStyle
		}
		tabs = append(tabs, style.Render(label))
	}
	row := lipgloss.JoinHorizontal(lipgloss.Top, tabs...)
	if m.opts.DataSource != "" {
		src := mutedStyle.Render(m.opts.DataSource)
		if gap := m.width - lipgloss.Width(row) - lipgloss.Width(src); gap > 0 {
			row += strings.Repeat(" ", gap) + src
		}
	}
	return row
}

func collectionTitle(c model.Collection) string {
	s := string(c)
	if s == "" {
		return s
	}
	return strings.ToUpper(s[:1]) + s[1:]
}

func (m *DashboardModel) bodyHeight() int {
	h := m.height - chromeHeight
	if m.searchActive {
		h--
	}
	if m.help.ShowAll {
		h -= 4
	}
	return max(h, 3)
}

func (m *DashboardModel) renderBody() string {
	h := m.bodyHeight()
	switch {
	case m.errMessage != "":
		return lipgloss.Place(m.width, h, lipgloss.Center, lipgloss.Center,
			errorStyle.Render(m.errMessage)+"\n"+mutedStyle.Render("press r to retry"))
	case m.loading && len(m.tracks) == 0:
		return lipgloss.Place(m.width, h, lipgloss.Center, lipgloss.Center,
			m.spinner.View()+mutedStyle.Italic(true).Render(" Loading..."))
	case m.empty:
		text := "No tracks in this collection"
		if m.searchQuery != "" {
			text = fmt.Sprintf("No tracks match %q", m.searchQuery)
		}
		return lipgloss.Place(m.width, h, lipgloss.Center, lipgloss.Center, mutedStyle.Render(text))
	}
	return m.table.View()
}

func (m *DashboardModel) renderPagination() string {
	var parts []string
	if m.loading {
		parts = append(parts, m.spinner.View())
	}
	parts = append(parts, fmt.Sprintf("Page %d of %d", m.page, max(m.totalPages, 1)))
	if m.searchQuery != "" && m.searchTotal != nil {
		parts = append(parts, fmt.Sprintf("%s for %q", pluralize(*m.searchTotal, "match", "matches"), m.searchQuery))
	}
	return mutedStyle.Render(strings.Join(parts, " · "))
}

func pluralize(n int, one, many string) string {
	if n == 1 {
		return "1 " + one
	}
	return humanize.Comma(int64(n)) + " " + many
}

func (m *DashboardModel) renderJobStatus() string {
	var parts []string
	st := m.status
	switch {
	case st == nil:
		parts = append(parts, mutedStyle.Render("Update status unknown"))
	case st.InProgress:
		parts = append(parts, warnStyle.Render("● Updating"))
	case st.LastResultOK != nil && *st.LastResultOK:
		parts = append(parts, successStyle.Render("✓ Last update ok"))
	case st.LastResultOK != nil:
		parts = append(parts, errorStyle.Render("✗ Last update failed"))
	default:
		parts = append(parts, mutedStyle.Render("No update yet"))
	}

	if st != nil {
		now := m.opts.Now()
		if st.LastUpdateAt != nil {
			parts = append(parts, "last "+relativeTime(*st.LastUpdateAt, now))
		}
		if st.Enabled && st.NextUpdateAt != nil {
			parts = append(parts, "next "+relativeTime(*st.NextUpdateAt, now))
		}
		if st.Enabled {
			parts = append(parts, fmt.Sprintf("every %d min", st.IntervalMinutes))
		}
		if st.LastResult != nil && !st.InProgress {
			parts = append(parts, fmt.Sprintf("+%d −%d", st.LastResult.NewTracks, st.LastResult.RemovedTracks))
		}
	}

	trigger := mutedStyle.Render("[u] update now")
	if !m.triggerEnabled {
		trigger = mutedStyle.Faint(true).Render("[u] starting…")
	}
	parts = append(parts, trigger)
	return strings.Join(parts, mutedStyle.Render(" · "))
}

// relativeTime renders t relative to now, e.g. "3 minutes ago" or "10 minutes from now".
func relativeTime(t, now time.Time) string {
	if d := now.Sub(t); d < time.Minute && d > -time.Minute {
		return "just now"
	}
	return humanize.RelTime(t, now, "ago", "from now")
}

func (m *DashboardModel) renderNotification() string {
	if m.notice == nil {
		return ""
	}
	if m.notice.kind == viewsync.NotifyError {
		return errorStyle.Render(m.notice.text)
	}
	return successStyle.Render(m.notice.text)
}

func (m *DashboardModel) renderHelp() string {
	m.help.Width = m.width
	if m.searchActive {
		return m.help.View(searchKeys{m.keys})
	}
	return m.help.View(m.keys)
}

// resize fits the table to the window.
func (m *DashboardModel) resize() {
	if m.width <= 0 || m.height <= 0 {
		return
	}
	m.table.SetColumns(trackColumns(m.width))
	m.table.SetWidth(m.width)
	m.table.SetHeight(m.bodyHeight())
}

// trackColumns splits width between the fixed and flexible columns.
func trackColumns(width int) []table.Column {
	const (
		durW     = 7
		updatedW = 16
		padding  = 10
	)
	flex := max(width-durW-updatedW-padding, 20)
	titleW := flex * 3 / 5
	return []table.Column{
		{Title: "Title", Width: titleW},
		{Title: "Artist", Width: flex - titleW},
		{Title: "Length", Width: durW},
		{Title: "Updated", Width: updatedW},
	}
}

func trackRows(tracks []viewsync.TrackView) []table.Row {
	rows := make([]table.Row, len(tracks))
	for i, t := range tracks {
		rows[i] = table.Row{t.Title, t.Artist, t.Duration, t.LastUpdated.Local().Format("2006-01-02 15:04")}
	}
	return rows
}
