package tui

import (
	"context"
	"fmt"

	tea "github.com/charmbracelet/bubbletea"
)

// Run starts the dashboard and blocks until the user quits or ctx is
// cancelled. The caller tears the controller down afterwards.
func Run(ctx context.Context, ctrl Controller, surface *Surface, opts Options) error {
	defer surface.Close()

	m := NewDashboardModel(ctrl, surface, opts)
	p := tea.NewProgram(m, tea.WithAltScreen(), tea.WithContext(ctx))
	if _, err := p.Run(); err != nil && ctx.Err() == nil {
		return fmt.Errorf("tui: %w", err)
	}
	return nil
}
