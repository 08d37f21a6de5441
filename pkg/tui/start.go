package tui

import (
	"context"

	tea "github.com/charmbracelet/bubbletea"
)

// Start runs the UI until the user quits or ctx is cancelled.
func Start(ctx context.Context, app App, version string) error {
	Version = version
	m := initialModel(ctx, app)
	if app.Watcher != nil {
		defer app.Watcher.Unsubscribe(m.sub)
	}
	p := tea.NewProgram(m, tea.WithAltScreen(), tea.WithContext(ctx))
	_, err := p.Run()
	return err
}
